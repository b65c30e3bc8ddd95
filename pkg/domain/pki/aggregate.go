package pki

import (
	"crypto/x509"
	"crypto/x509/pkix"
	"fmt"

	"github.com/google/uuid"

	common "github.com/TheCowboyAI/cim-keys-sub008/pkg/domain"
	"github.com/TheCowboyAI/cim-keys-sub008/pkg/domain/hardware"
	"github.com/TheCowboyAI/cim-keys-sub008/pkg/domain/pki/entities"
	"github.com/TheCowboyAI/cim-keys-sub008/pkg/domain/pkicrypto"
	"github.com/TheCowboyAI/cim-keys-sub008/pkg/domain/seed"
	"github.com/TheCowboyAI/cim-keys-sub008/pkg/domain/trust"
)

// Handle is the sole entry point into the aggregate: it validates cmd
// against proj's current state and, on success, returns the events that
// move the system forward. Handle performs no disk or hardware I/O — key
// generation and certificate signing here are pure functions of the
// command's own seed bytes. New entity and event ids come from common.NewID
// (UUIDv7: wall clock plus randomness), so handling the same command against
// two copies of the same projection yields events with different ids; a
// repeated MessageIdentity against the same projection returns the events
// recorded the first time.
func Handle(cmd Command, proj *Projection) ([]Event, error) {
	if cached, ok := proj.previousResult(cmd.Identity()); ok {
		return cached, nil
	}

	events, err := dispatch(cmd, proj)
	if err != nil {
		return nil, err
	}

	proj.remember(cmd.Identity(), events)
	return events, nil
}

func dispatch(cmd Command, proj *Projection) ([]Event, error) {
	switch c := cmd.(type) {
	case BootstrapOrganization:
		return handleBootstrapOrganization(c, proj)
	case AddOrganizationUnit:
		return handleAddOrganizationUnit(c, proj)
	case AddPerson:
		return handleAddPerson(c, proj)
	case GenerateRootCA:
		return handleGenerateRootCA(c, proj)
	case GenerateIntermediateCA:
		return handleGenerateIntermediateCA(c, proj)
	case GeneratePersonalKey:
		return handleGeneratePersonalKey(c, proj)
	case RegisterYubiKeyDevice:
		return handleRegisterYubiKeyDevice(c, proj)
	case AssignYubiKeyDevice:
		return handleAssignYubiKeyDevice(c, proj)
	case ProvisionYubiKeySlot:
		return handleProvisionYubiKeySlot(c, proj)
	case ClearYubiKeySlot:
		return handleClearYubiKeySlot(c, proj)
	case Delegate:
		return handleDelegate(c, proj)
	case RevokeDelegation:
		return handleRevokeDelegation(c, proj)
	case ExportManifest:
		return handleExportManifest(c, proj)
	default:
		return nil, common.NewErrInvariantViolation(fmt.Sprintf("unknown command type %T", cmd))
	}
}

func handleBootstrapOrganization(c BootstrapOrganization, proj *Projection) ([]Event, error) {
	if len(proj.Organizations) > 0 {
		return nil, common.NewErrDuplicateAggregate("organization", c.Name)
	}
	if c.Name == "" {
		return nil, common.NewErrInvalidInput("organization name must not be empty")
	}

	orgID := common.NewID()
	return []Event{
		newEvent(EventOrganizationCreated, c.MsgID, OrganizationCreatedPayload{
			OrganizationID: orgID,
			Name:           c.Name,
			DisplayName:    c.DisplayName,
		}),
	}, nil
}

func handleAddOrganizationUnit(c AddOrganizationUnit, proj *Projection) ([]Event, error) {
	if _, ok := proj.Organizations[c.ParentOrg]; !ok {
		return nil, common.NewErrNotFound("organization", stringerOf(c.ParentOrg))
	}
	if c.Name == "" {
		return nil, common.NewErrInvalidInput("unit name must not be empty")
	}

	unitID := common.NewID()
	return []Event{
		newEvent(EventUnitAdded, c.MsgID, UnitAddedPayload{
			UnitID:   unitID,
			OrgID:    c.ParentOrg,
			Name:     c.Name,
			UnitType: c.UnitType,
		}),
	}, nil
}

func handleAddPerson(c AddPerson, proj *Projection) ([]Event, error) {
	if _, ok := proj.Organizations[c.Org]; !ok {
		return nil, common.NewErrNotFound("organization", stringerOf(c.Org))
	}
	if _, ok := proj.Units[c.Unit]; !ok {
		return nil, common.NewErrNotFound("organization unit", stringerOf(c.Unit))
	}
	if c.Input.LegalName == "" {
		return nil, common.NewErrInvalidInput("person legal name must not be empty")
	}

	personID := common.NewID()
	events := []Event{
		newEvent(EventPersonCreated, c.MsgID, PersonCreatedPayload{
			PersonID:  personID,
			OrgID:     c.Org,
			UnitID:    c.Unit,
			LegalName: c.Input.LegalName,
		}),
	}

	if c.Input.ContactAddress != "" {
		locationID := common.NewID()
		events = append(events, newEvent(EventLocationCreated, c.MsgID.Derive(), LocationCreatedPayload{
			LocationID: locationID,
			OwnerID:    personID,
			Kind:       c.Input.ContactKind,
			Address:    c.Input.ContactAddress,
		}))
	}

	return events, nil
}

func handleGenerateRootCA(c GenerateRootCA, proj *Projection) ([]Event, error) {
	o, ok := proj.Organizations[c.Org]
	if !ok {
		return nil, common.NewErrNotFound("organization", stringerOf(c.Org))
	}
	if _, exists := proj.OrgRootKey[c.Org]; exists {
		return nil, common.NewErrDuplicateAggregate("root CA", o.Name)
	}

	kp, err := pkicrypto.GenerateKeyPair(c.Algo, seed.Seed(c.Seed))
	if err != nil {
		return nil, common.NewErrInvalidInput(fmt.Sprintf("generate root key: %v", err))
	}
	fingerprint, err := pkicrypto.Fingerprint(kp.Public)
	if err != nil {
		return nil, common.NewErrInvalidInput(fmt.Sprintf("fingerprint root key: %v", err))
	}

	keyID := common.NewID()
	notBefore := common.TimeOf(c.MsgID.MessageID)
	subject := pkix.Name{CommonName: o.Name + " Root CA", Organization: []string{o.Name}}

	_, der, err := pkicrypto.SignCert(pkicrypto.Template{
		CertType:  pkicrypto.CertTypeRoot,
		Subject:   subject,
		NotBefore: notBefore,
	}, kp.Public, kp.Private, nil)
	if err != nil {
		return nil, common.NewErrInvalidInput(fmt.Sprintf("sign root certificate: %v", err))
	}

	certID := common.NewID()
	return []Event{
		newEvent(EventRootCAKeyGenerated, c.MsgID, KeyGeneratedPayload{
			KeyID:       keyID,
			OwnerID:     &c.Org,
			Algorithm:   string(c.Algo),
			Fingerprint: fingerprint,
			Purposes:    []string{"signing"},
			StorageKind: "software",
		}),
		newEvent(EventCertificateIssued, c.MsgID.Derive(), CertificateIssuedPayload{
			CertificateID: certID,
			SubjectKeyID:  keyID,
			SignerKeyID:   keyID,
			CertType:      string(pkicrypto.CertTypeRoot),
			SubjectDN:     subject.String(),
			NotBefore:     notBefore,
			NotAfter:      notBefore.Add(pkicrypto.RootValidity),
			DER:           der,
		}),
	}, nil
}

func handleGenerateIntermediateCA(c GenerateIntermediateCA, proj *Projection) ([]Event, error) {
	unit, ok := proj.Units[c.UnitID]
	if !ok {
		return nil, common.NewErrNotFound("organization unit", stringerOf(c.UnitID))
	}
	if _, exists := proj.UnitIntermediateKey[c.UnitID]; exists {
		return nil, common.NewErrDuplicateAggregate("intermediate CA", unit.Name)
	}
	rootKeyID, ok := proj.OrgRootKey[unit.ParentOrgID]
	if !ok || rootKeyID != c.IssuerKeyID {
		return nil, common.NewErrChainInvalid("issuer is not the organization's root CA", "")
	}

	issuerCert, issuerKP, err := reconstructIssuer(proj, c.IssuerKeyID, c.IssuerSeed)
	if err != nil {
		return nil, err
	}

	kp, err := pkicrypto.GenerateKeyPair(c.Algo, seed.Seed(c.Seed))
	if err != nil {
		return nil, common.NewErrInvalidInput(fmt.Sprintf("generate intermediate key: %v", err))
	}
	fingerprint, err := pkicrypto.Fingerprint(kp.Public)
	if err != nil {
		return nil, common.NewErrInvalidInput(fmt.Sprintf("fingerprint intermediate key: %v", err))
	}

	keyID := common.NewID()
	notBefore := common.TimeOf(c.MsgID.MessageID)
	subject := pkix.Name{CommonName: unit.Name + " Intermediate CA", Organization: []string{unit.Name}}

	_, der, err := pkicrypto.SignCert(pkicrypto.Template{
		CertType:  pkicrypto.CertTypeIntermediate,
		Subject:   subject,
		NotBefore: notBefore,
	}, kp.Public, issuerKP.Private, issuerCert)
	if err != nil {
		return nil, common.NewErrInvalidInput(fmt.Sprintf("sign intermediate certificate: %v", err))
	}

	certID := common.NewID()
	return []Event{
		newEvent(EventIntermediateCAKeyGenerated, c.MsgID, KeyGeneratedPayload{
			KeyID:       keyID,
			OwnerID:     &c.UnitID,
			Algorithm:   string(c.Algo),
			Fingerprint: fingerprint,
			Purposes:    []string{"signing"},
			StorageKind: "software",
		}),
		newEvent(EventCertificateIssued, c.MsgID.Derive(), CertificateIssuedPayload{
			CertificateID: certID,
			SubjectKeyID:  keyID,
			SignerKeyID:   c.IssuerKeyID,
			CertType:      string(pkicrypto.CertTypeIntermediate),
			SubjectDN:     subject.String(),
			NotBefore:     notBefore,
			NotAfter:      notBefore.Add(pkicrypto.IntermediateValidity),
			DER:           der,
		}),
	}, nil
}

func handleGeneratePersonalKey(c GeneratePersonalKey, proj *Projection) ([]Event, error) {
	person, ok := proj.People[c.PersonID]
	if !ok {
		return nil, common.NewErrNotFound("person", stringerOf(c.PersonID))
	}
	if !person.Active {
		return nil, common.NewErrStateInapplicable("inactive", "generate personal key")
	}
	if c.RequestedBy != nil {
		at := common.TimeOf(c.MsgID.MessageID)
		if !holdsPermission(trust.Permissions(proj, *c.RequestedBy, at), PermissionKeyGen) {
			return nil, common.NewErrInsufficientDelegatorPermissions()
		}
	}
	if len(c.SANs) == 0 {
		return nil, common.NewErrInvalidInput("personal certificate requires at least one SAN")
	}

	issuerCert, issuerKP, err := reconstructIssuer(proj, c.IssuerKeyID, c.IssuerSeed)
	if err != nil {
		return nil, err
	}

	kp, err := pkicrypto.GenerateKeyPair(c.Algo, seed.Seed(c.Seed))
	if err != nil {
		return nil, common.NewErrInvalidInput(fmt.Sprintf("generate personal key: %v", err))
	}
	fingerprint, err := pkicrypto.Fingerprint(kp.Public)
	if err != nil {
		return nil, common.NewErrInvalidInput(fmt.Sprintf("fingerprint personal key: %v", err))
	}

	keyID := common.NewID()
	notBefore := common.TimeOf(c.MsgID.MessageID)
	subject := pkix.Name{CommonName: person.LegalName}

	_, der, err := pkicrypto.SignCert(pkicrypto.Template{
		CertType:  pkicrypto.CertTypeLeaf,
		Subject:   subject,
		SANs:      c.SANs,
		NotBefore: notBefore,
	}, kp.Public, issuerKP.Private, issuerCert)
	if err != nil {
		return nil, common.NewErrInvalidInput(fmt.Sprintf("sign personal certificate: %v", err))
	}

	pgpPublic, err := pkicrypto.OpenPGPPublicIdentity(person.LegalName, c.SANs[0], seed.Seed(c.Seed), notBefore)
	if err != nil {
		return nil, common.NewErrInvalidInput(fmt.Sprintf("derive openpgp identity: %v", err))
	}

	personIDCopy := c.PersonID
	certID := common.NewID()
	return []Event{
		newEvent(EventPersonalKeyGenerated, c.MsgID, KeyGeneratedPayload{
			KeyID:         keyID,
			OwnerID:       &personIDCopy,
			Algorithm:     string(c.Algo),
			Fingerprint:   fingerprint,
			Purposes:      c.Purposes,
			StorageKind:   "software",
			OpenPGPPublic: pgpPublic,
		}),
		newEvent(EventCertificateIssued, c.MsgID.Derive(), CertificateIssuedPayload{
			CertificateID: certID,
			SubjectKeyID:  keyID,
			SignerKeyID:   c.IssuerKeyID,
			CertType:      string(pkicrypto.CertTypeLeaf),
			SubjectDN:     subject.String(),
			NotBefore:     notBefore,
			NotAfter:      notBefore.Add(pkicrypto.LeafValidity),
			DER:           der,
		}),
	}, nil
}

// reconstructIssuer re-derives an issuer's key pair from its seed (never
// persisted in the projection) and parses its already-issued certificate
// back into an *x509.Certificate to use as the signing parent.
func reconstructIssuer(proj *Projection, issuerKeyID uuid.UUID, issuerSeed [32]byte) (*x509.Certificate, pkicrypto.KeyPair, error) {
	issuerKey, ok := proj.Keys[issuerKeyID]
	if !ok {
		return nil, pkicrypto.KeyPair{}, common.NewErrNotFound("crypto key", stringerOf(issuerKeyID))
	}
	issuerCertID, ok := proj.CertBySubjectKeyID[issuerKeyID]
	if !ok {
		return nil, pkicrypto.KeyPair{}, common.NewErrChainInvalid("issuer has no issued certificate", issuerKey.Fingerprint)
	}
	issuerCertRecord := proj.Certificates[issuerCertID]
	if issuerCertRecord.Status != entities.CertStatusActive {
		return nil, pkicrypto.KeyPair{}, common.NewErrChainInvalid("issuer certificate is not active", issuerKey.Fingerprint)
	}

	issuerKP, err := pkicrypto.GenerateKeyPair(issuerKey.Algorithm, seed.Seed(issuerSeed))
	if err != nil {
		return nil, pkicrypto.KeyPair{}, common.NewErrInvalidInput(fmt.Sprintf("regenerate issuer key: %v", err))
	}
	gotFingerprint, err := pkicrypto.Fingerprint(issuerKP.Public)
	if err != nil || gotFingerprint != issuerKey.Fingerprint {
		return nil, pkicrypto.KeyPair{}, common.NewErrChainInvalid("issuer seed does not reproduce the recorded key", issuerKey.Fingerprint)
	}

	issuerCert, err := x509.ParseCertificate(issuerCertRecord.DER)
	if err != nil {
		return nil, pkicrypto.KeyPair{}, common.NewErrChainInvalid("issuer certificate DER is unparseable", issuerKey.Fingerprint)
	}
	return issuerCert, issuerKP, nil
}

func handleRegisterYubiKeyDevice(c RegisterYubiKeyDevice, proj *Projection) ([]Event, error) {
	if c.Serial == "" {
		return nil, common.NewErrInvalidInput("device serial must not be empty")
	}
	if _, ok := proj.Devices[c.Serial]; ok {
		return nil, common.NewErrDuplicateAggregate("YubiKeyDevice", c.Serial)
	}

	return []Event{
		newEvent(EventYubiKeyDeviceRegistered, c.MsgID, YubiKeyDeviceRegisteredPayload{
			Serial:     c.Serial,
			Firmware:   c.Firmware,
			FormFactor: c.FormFactor,
		}),
	}, nil
}

func handleAssignYubiKeyDevice(c AssignYubiKeyDevice, proj *Projection) ([]Event, error) {
	if _, ok := proj.Devices[c.Serial]; !ok {
		return nil, common.NewErrDeviceNotFound(c.Serial)
	}
	person, ok := proj.People[c.PersonID]
	if !ok {
		return nil, common.NewErrNotFound("person", stringerOf(c.PersonID))
	}
	if !person.Active {
		return nil, common.NewErrStateInapplicable("inactive", "assign device")
	}

	return []Event{
		newEvent(EventYubiKeyDeviceAssigned, c.MsgID, YubiKeyDeviceAssignedPayload{
			Serial:   c.Serial,
			PersonID: c.PersonID,
		}),
	}, nil
}

func handleProvisionYubiKeySlot(c ProvisionYubiKeySlot, proj *Projection) ([]Event, error) {
	if _, ok := proj.Devices[c.Serial]; !ok {
		return nil, common.NewErrDeviceNotFound(c.Serial)
	}
	if _, ok := proj.Keys[c.KeyID]; !ok {
		return nil, common.NewErrNotFound("crypto key", stringerOf(c.KeyID))
	}
	slotKey := c.Serial + "/" + string(c.Tag)
	if existing, ok := proj.Slots[slotKey]; ok && existing.State == hardware.SlotOccupied {
		return nil, common.NewErrSlotOccupied(c.Serial, string(c.Tag))
	}

	return []Event{
		newEvent(EventSlotProvisioned, c.MsgID, SlotProvisionedPayload{
			Serial: c.Serial,
			Slot:   string(c.Tag),
			KeyID:  c.KeyID,
		}),
	}, nil
}

func handleClearYubiKeySlot(c ClearYubiKeySlot, proj *Projection) ([]Event, error) {
	slotKey := c.Serial + "/" + string(c.Tag)
	slot, ok := proj.Slots[slotKey]
	if !ok || slot.State != hardware.SlotOccupied {
		return nil, common.NewErrNotFound("PivSlot", slotKeyStringer{c.Serial, string(c.Tag)})
	}

	keyID, err := uuid.Parse(slot.OccupiedKeyID)
	if err != nil {
		return nil, common.NewErrInvariantViolation("occupied slot has unparseable key id: " + slot.OccupiedKeyID)
	}

	return []Event{
		newEvent(EventSlotCleared, c.MsgID, SlotClearedPayload{
			Serial: c.Serial,
			Slot:   string(c.Tag),
			KeyID:  keyID,
		}),
	}, nil
}

func handleDelegate(c Delegate, proj *Projection) ([]Event, error) {
	if c.Delegator == c.Delegate {
		return nil, common.NewErrSelfDelegationNotAllowed()
	}
	if _, ok := proj.People[c.Delegator]; !ok {
		return nil, common.NewErrNotFound("person", stringerOf(c.Delegator))
	}
	if _, ok := proj.People[c.Delegate]; !ok {
		return nil, common.NewErrDelegateNotFound(stringerOf(c.Delegate))
	}

	if c.Parent != nil {
		parent, ok := proj.Delegations[*c.Parent]
		if !ok {
			return nil, common.NewErrNotFound("delegation", stringerOf(*c.Parent))
		}
		if parent.DelegatorPersonID != c.Delegator && parent.DelegatePersonID != c.Delegator {
			return nil, common.NewErrInsufficientDelegatorPermissions()
		}
		if !permissionsSubsetOf(c.Permissions, parent.Permissions) {
			return nil, common.NewErrInsufficientDelegatorPermissions()
		}
		if wouldCycle(proj, *c.Parent, c.Delegate) {
			return nil, common.NewErrCircularDelegationDetected()
		}
	}

	delegationID := common.NewID()
	return []Event{
		newEvent(EventDelegationCreated, c.MsgID, DelegationCreatedPayload{
			DelegationID:       delegationID,
			Delegator:          c.Delegator,
			Delegate:           c.Delegate,
			Permissions:        c.Permissions,
			ParentDelegationID: c.Parent,
		}),
	}, nil
}

func holdsPermission(perms []string, want string) bool {
	for _, p := range perms {
		if p == want {
			return true
		}
	}
	return false
}

// permissionsSubsetOf reports whether every permission in requested also
// appears in granted; a delegate can never hold more than its delegator.
func permissionsSubsetOf(requested, granted []string) bool {
	grantedSet := make(map[string]struct{}, len(granted))
	for _, p := range granted {
		grantedSet[p] = struct{}{}
	}
	for _, p := range requested {
		if _, ok := grantedSet[p]; !ok {
			return false
		}
	}
	return true
}

// wouldCycle reports whether chaining a new delegation under parentID to
// newDelegate would create a cycle: newDelegate must not already appear as
// a delegator anywhere in parentID's ancestor chain.
func wouldCycle(proj *Projection, parentID, newDelegate uuid.UUID) bool {
	current := parentID
	for {
		d, ok := proj.Delegations[current]
		if !ok {
			return false
		}
		if d.DelegatorPersonID == newDelegate {
			return true
		}
		if d.ParentDelegationID == nil {
			return false
		}
		current = *d.ParentDelegationID
	}
}

func handleRevokeDelegation(c RevokeDelegation, proj *Projection) ([]Event, error) {
	d, ok := proj.Delegations[c.DelegationID]
	if !ok {
		return nil, common.NewErrNotFound("delegation", stringerOf(c.DelegationID))
	}
	if d.DelegatorPersonID != c.RevokerID && d.DelegatePersonID != c.RevokerID {
		return nil, common.NewErrUnauthorizedRevocation()
	}
	if d.Status != entities.DelegationStatusActive {
		return nil, common.NewErrStateInapplicable(string(d.Status), "revoke")
	}

	root := newEvent(EventDelegationRevoked, c.MsgID, DelegationRevokedPayload{
		DelegationID: c.DelegationID,
		Reason:       c.Reason,
	})
	events := []Event{root}

	// Each cascade event's causation chains to the event immediately before
	// it, not back to the root command: DelegationCascadeRevoked(child)'s
	// causation_id is the previous cascade event (or the root revocation)'s
	// event_id, while every event in the burst still shares c.MsgID's
	// correlation_id.
	prev := root
	for _, descendantID := range proj.DescendantDelegations(c.DelegationID) {
		descendant := proj.Delegations[descendantID]
		if descendant.Status != entities.DelegationStatusActive {
			continue
		}
		identity := common.MessageIdentity{
			CorrelationID: c.MsgID.CorrelationID,
			CausationID:   prev.EventID,
			MessageID:     common.NewID(),
		}
		next := newEvent(EventDelegationCascadeRevoked, identity, DelegationCascadeRevokedPayload{
			DelegationID:       descendantID,
			ParentDelegationID: c.DelegationID,
			Reason:             "Parent delegation revoked: " + c.Reason,
		})
		events = append(events, next)
		prev = next
	}

	return events, nil
}

func handleExportManifest(c ExportManifest, proj *Projection) ([]Event, error) {
	if c.IncludePrivateMaterial {
		return nil, common.NewErrInvalidInput("manifest export must never include private material")
	}
	if c.TargetPath == "" {
		return nil, common.NewErrInvalidInput("manifest export requires a target path")
	}
	if c.ManifestSHA256 == "" {
		return nil, common.NewErrInvalidInput("manifest export requires the written manifest's hash")
	}

	return []Event{
		newEvent(EventManifestExported, c.MsgID, ManifestExportedPayload{
			TargetPath:     c.TargetPath,
			ManifestSHA256: c.ManifestSHA256,
		}),
	}, nil
}

type stringerOf uuid.UUID

func (s stringerOf) String() string { return uuid.UUID(s).String() }

// slotKeyStringer names a (serial, slot) pair in NotFound rejections without
// allocating an intermediate fmt.Sprintf just to satisfy fmt.Stringer.
type slotKeyStringer struct{ serial, tag string }

func (s slotKeyStringer) String() string { return s.serial + "/" + s.tag }

package pki

import (
	"bytes"
	"sort"

	"github.com/google/uuid"

	common "github.com/TheCowboyAI/cim-keys-sub008/pkg/domain"
	"github.com/TheCowboyAI/cim-keys-sub008/pkg/domain/hardware"
	"github.com/TheCowboyAI/cim-keys-sub008/pkg/domain/org"
	"github.com/TheCowboyAI/cim-keys-sub008/pkg/domain/pki/entities"
	"github.com/TheCowboyAI/cim-keys-sub008/pkg/domain/pkicrypto"
)

// Projection is the in-memory read model Handle validates commands against:
// a fold of the event log. It is never mutated directly by a
// command; Handle computes events, and Fold is the only function that
// applies them to a Projection.
type Projection struct {
	Organizations map[uuid.UUID]org.Organization
	Units         map[uuid.UUID]org.OrganizationUnit
	People        map[uuid.UUID]org.Person
	Locations     map[uuid.UUID]org.Location

	Keys         map[uuid.UUID]entities.CryptoKey
	Certificates map[uuid.UUID]entities.Certificate
	Delegations  map[uuid.UUID]entities.Delegation

	Devices map[string]entities.YubiKeyDevice // keyed by serial
	Slots   map[string]hardware.Slot          // keyed by serial+"/"+tag

	// PersonUnit records which unit a person belongs to, derived from
	// PersonCreated events (a published-language fact other commands need
	// without re-deriving it from AddPerson's input each time).
	PersonUnit map[uuid.UUID]uuid.UUID

	// OrgRootKey and UnitIntermediateKey record the one CA key generated for
	// each organization/unit (invariant: at most one root per organization,
	// one intermediate per unit).
	OrgRootKey          map[uuid.UUID]uuid.UUID
	UnitIntermediateKey map[uuid.UUID]uuid.UUID

	// CertBySubjectKeyID finds the certificate issued for a given key, so a
	// later signing command can look up its issuer's certificate (needed as
	// the x509 parent template) from the key id alone.
	CertBySubjectKeyID map[uuid.UUID]uuid.UUID

	// OpenPGPByKey holds the armored OpenPGP public identity derived with
	// each personal key; the writer materializes it beside public.pem.
	OpenPGPByKey map[uuid.UUID][]byte

	// idempotency is keyed by (correlation_id, message_id); a repeated key
	// returns the originally produced event vector unchanged.
	idempotency map[[2]uuid.UUID][]Event
}

// NewProjection returns an empty projection ready to fold a fresh event log.
func NewProjection() *Projection {
	return &Projection{
		Organizations:       make(map[uuid.UUID]org.Organization),
		Units:               make(map[uuid.UUID]org.OrganizationUnit),
		People:              make(map[uuid.UUID]org.Person),
		Locations:           make(map[uuid.UUID]org.Location),
		Keys:                make(map[uuid.UUID]entities.CryptoKey),
		Certificates:        make(map[uuid.UUID]entities.Certificate),
		Delegations:         make(map[uuid.UUID]entities.Delegation),
		Devices:             make(map[string]entities.YubiKeyDevice),
		Slots:               make(map[string]hardware.Slot),
		PersonUnit:          make(map[uuid.UUID]uuid.UUID),
		OrgRootKey:          make(map[uuid.UUID]uuid.UUID),
		UnitIntermediateKey: make(map[uuid.UUID]uuid.UUID),
		CertBySubjectKeyID:  make(map[uuid.UUID]uuid.UUID),
		OpenPGPByKey:        make(map[uuid.UUID][]byte),
		idempotency:         make(map[[2]uuid.UUID][]Event),
	}
}

func idempotencyKey(id common.MessageIdentity) [2]uuid.UUID {
	return [2]uuid.UUID{id.CorrelationID, id.MessageID}
}

// remember records which events a (correlation_id, message_id) pair
// produced so a retried command with the same identity replays them instead
// of re-executing.
func (p *Projection) remember(id common.MessageIdentity, events []Event) {
	p.idempotency[idempotencyKey(id)] = events
}

// previousResult returns the event vector already produced for this command
// identity, if any.
func (p *Projection) previousResult(id common.MessageIdentity) ([]Event, bool) {
	events, ok := p.idempotency[idempotencyKey(id)]
	return events, ok
}

// Fold applies one event to the projection. It is total: every defined
// EventKind has a case; an undefined kind can only come from a corrupted or
// foreign event log, so it panics rather than silently no-opping.
func (p *Projection) Fold(e Event) {
	switch e.Kind {
	case EventOrganizationCreated:
		payload := e.Payload.(OrganizationCreatedPayload)
		p.Organizations[payload.OrganizationID] = org.Organization{
			BaseEntity:  baseEntityFromID(payload.OrganizationID),
			Name:        payload.Name,
			DisplayName: payload.DisplayName,
		}

	case EventUnitAdded:
		payload := e.Payload.(UnitAddedPayload)
		p.Units[payload.UnitID] = org.OrganizationUnit{
			BaseEntity:  baseEntityFromID(payload.UnitID),
			ParentOrgID: payload.OrgID,
			Name:        payload.Name,
			UnitType:    payload.UnitType,
		}

	case EventPersonCreated:
		payload := e.Payload.(PersonCreatedPayload)
		p.People[payload.PersonID] = org.Person{
			BaseEntity: baseEntityFromID(payload.PersonID),
			LegalName:  payload.LegalName,
			Active:     true,
		}
		p.PersonUnit[payload.PersonID] = payload.UnitID

	case EventLocationCreated:
		payload := e.Payload.(LocationCreatedPayload)
		p.Locations[payload.LocationID] = org.Location{
			BaseEntity: baseEntityFromID(payload.LocationID),
			Kind:       payload.Kind,
			Address:    payload.Address,
		}

	case EventRootCAKeyGenerated:
		payload := e.Payload.(KeyGeneratedPayload)
		p.Keys[payload.KeyID] = entities.CryptoKey{
			BaseEntity:    baseEntityFromID(payload.KeyID),
			OwnerPersonID: nil,
			Algorithm:     pkicrypto.Algorithm(payload.Algorithm),
			Purposes:      keyPurposesOf(payload.Purposes),
			Fingerprint:   payload.Fingerprint,
			StorageKind:   storageKindOf(payload.StorageKind),
		}
		if payload.OwnerID != nil {
			p.OrgRootKey[*payload.OwnerID] = payload.KeyID
		}

	case EventIntermediateCAKeyGenerated:
		payload := e.Payload.(KeyGeneratedPayload)
		p.Keys[payload.KeyID] = entities.CryptoKey{
			BaseEntity:    baseEntityFromID(payload.KeyID),
			OwnerPersonID: nil,
			Algorithm:     pkicrypto.Algorithm(payload.Algorithm),
			Purposes:      keyPurposesOf(payload.Purposes),
			Fingerprint:   payload.Fingerprint,
			StorageKind:   storageKindOf(payload.StorageKind),
		}
		if payload.OwnerID != nil {
			p.UnitIntermediateKey[*payload.OwnerID] = payload.KeyID
		}

	case EventPersonalKeyGenerated:
		payload := e.Payload.(KeyGeneratedPayload)
		p.Keys[payload.KeyID] = entities.CryptoKey{
			BaseEntity:    baseEntityFromID(payload.KeyID),
			OwnerPersonID: payload.OwnerID,
			Algorithm:     pkicrypto.Algorithm(payload.Algorithm),
			Purposes:      keyPurposesOf(payload.Purposes),
			Fingerprint:   payload.Fingerprint,
			StorageKind:   storageKindOf(payload.StorageKind),
		}
		if len(payload.OpenPGPPublic) > 0 {
			p.OpenPGPByKey[payload.KeyID] = payload.OpenPGPPublic
		}

	case EventCertificateIssued:
		payload := e.Payload.(CertificateIssuedPayload)
		p.Certificates[payload.CertificateID] = entities.Certificate{
			BaseEntity:   baseEntityFromID(payload.CertificateID),
			SubjectDN:    payload.SubjectDN,
			CertType:     entities.CertType(payload.CertType),
			NotBefore:    payload.NotBefore,
			NotAfter:     payload.NotAfter,
			Status:       entities.CertStatusActive,
			SignerKeyID:  payload.SignerKeyID,
			SubjectKeyID: payload.SubjectKeyID,
			DER:          payload.DER,
		}
		p.CertBySubjectKeyID[payload.SubjectKeyID] = payload.CertificateID

	case EventYubiKeyDeviceRegistered:
		payload := e.Payload.(YubiKeyDeviceRegisteredPayload)
		p.Devices[payload.Serial] = entities.YubiKeyDevice{
			Serial:       payload.Serial,
			Firmware:     payload.Firmware,
			FormFactor:   payload.FormFactor,
			RegisteredAt: common.TimeOf(e.EventID),
		}

	case EventYubiKeyDeviceAssigned:
		payload := e.Payload.(YubiKeyDeviceAssignedPayload)
		d := p.Devices[payload.Serial]
		d.AssignTo(payload.PersonID)
		p.Devices[payload.Serial] = d

	case EventSlotProvisioned:
		payload := e.Payload.(SlotProvisionedPayload)
		slotKey := payload.Serial + "/" + payload.Slot
		slot := p.Slots[slotKey]
		slot.Serial = payload.Serial
		slot.Tag = hardware.SlotTag(payload.Slot)
		slot.State = hardware.SlotOccupied
		slot.OccupiedKeyID = payload.KeyID.String()
		p.Slots[slotKey] = slot

		if k, ok := p.Keys[payload.KeyID]; ok {
			k.StorageKind = entities.StorageKindYubiKey
			k.Hardware = &entities.HardwareLocation{Serial: payload.Serial, Slot: payload.Slot}
			p.Keys[payload.KeyID] = k
		}

	case EventSlotCleared:
		payload := e.Payload.(SlotClearedPayload)
		slotKey := payload.Serial + "/" + payload.Slot
		slot := p.Slots[slotKey]
		slot.State = hardware.SlotEmpty
		slot.OccupiedKeyID = ""
		p.Slots[slotKey] = slot

		if k, ok := p.Keys[payload.KeyID]; ok {
			k.StorageKind = entities.StorageKindSoftware
			k.Hardware = nil
			p.Keys[payload.KeyID] = k
		}

	case EventDelegationCreated:
		payload := e.Payload.(DelegationCreatedPayload)
		p.Delegations[payload.DelegationID] = entities.Delegation{
			BaseEntity:         baseEntityFromID(payload.DelegationID),
			DelegatorPersonID:  payload.Delegator,
			DelegatePersonID:   payload.Delegate,
			Permissions:        payload.Permissions,
			ParentDelegationID: payload.ParentDelegationID,
			Status:             entities.DelegationStatusActive,
		}

	case EventDelegationRevoked:
		payload := e.Payload.(DelegationRevokedPayload)
		d := p.Delegations[payload.DelegationID]
		d.Revoke(payload.Reason, common.TimeOf(e.EventID))
		p.Delegations[payload.DelegationID] = d

	case EventDelegationCascadeRevoked:
		payload := e.Payload.(DelegationCascadeRevokedPayload)
		d := p.Delegations[payload.DelegationID]
		d.Revoke(payload.Reason, common.TimeOf(e.EventID))
		p.Delegations[payload.DelegationID] = d

	case EventManifestExported, EventProjectionWriteFailed:
		// No projection state changes; these are append-only audit facts.

	default:
		panic("pki: undefined event kind in fold: " + string(e.Kind))
	}
}

// keyPurposesOf converts the wire string form of a key's purposes to the
// entities package's typed enum.
func keyPurposesOf(raw []string) []entities.KeyPurpose {
	if len(raw) == 0 {
		return nil
	}
	out := make([]entities.KeyPurpose, len(raw))
	for i, p := range raw {
		out[i] = entities.KeyPurpose(p)
	}
	return out
}

// storageKindOf defaults an empty wire value to software storage: every key
// this aggregate generates starts as a software key until a later
// ProvisionYubiKeySlot command binds it to hardware.
func storageKindOf(raw string) entities.StorageKind {
	if raw == "" {
		return entities.StorageKindSoftware
	}
	return entities.StorageKind(raw)
}

// baseEntityFromID reconstructs a BaseEntity whose CreatedAt is derived from
// the UUIDv7's own timestamp, matching common.NewBaseEntity's invariant that
// CreatedAt is never stored independently of the ID.
func baseEntityFromID(id uuid.UUID) common.BaseEntity {
	t := common.TimeOf(id)
	return common.BaseEntity{ID: id, CreatedAt: t, UpdatedAt: t}
}

// DelegationByID satisfies trust.DelegationProjection, letting the trust
// graph engine walk a delegation's ancestry without importing this package's
// internal Projection type.
func (p *Projection) DelegationByID(id uuid.UUID) (entities.Delegation, bool) {
	d, ok := p.Delegations[id]
	return d, ok
}

// DelegationsByDelegate satisfies trust.DelegationProjection: every
// delegation naming personID as its delegate, in no particular order.
func (p *Projection) DelegationsByDelegate(personID uuid.UUID) []entities.Delegation {
	var out []entities.Delegation
	for _, d := range p.Delegations {
		if d.DelegatePersonID == personID {
			out = append(out, d)
		}
	}
	return out
}

// DescendantDelegations returns every delegation whose ParentDelegationID,
// followed transitively, reaches root, breadth-first with siblings in ID
// (therefore chronological) order. Map iteration order must not leak into
// the result: the cascade emits one event per descendant, and a command
// replayed against the same projection has to produce the same vector.
func (p *Projection) DescendantDelegations(root uuid.UUID) []uuid.UUID {
	children := make(map[uuid.UUID][]uuid.UUID)
	for id, d := range p.Delegations {
		if d.ParentDelegationID != nil {
			children[*d.ParentDelegationID] = append(children[*d.ParentDelegationID], id)
		}
	}
	for _, siblings := range children {
		sort.Slice(siblings, func(i, j int) bool {
			return bytes.Compare(siblings[i][:], siblings[j][:]) < 0
		})
	}

	var out []uuid.UUID
	queue := append([]uuid.UUID{}, children[root]...)
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		out = append(out, id)
		queue = append(queue, children[id]...)
	}
	return out
}

// Organization satisfies org.OrgContextPort: the natsid context resolves an
// organization reference to mint its NatsOperator without ever importing
// this package's internal Organization type.
func (p *Projection) Organization(id uuid.UUID) (org.OrganizationReference, bool) {
	o, ok := p.Organizations[id]
	if !ok {
		return org.OrganizationReference{}, false
	}
	return o.Reference(), true
}

// Unit satisfies org.OrgContextPort: resolves the unit reference natsid
// needs to mint a NatsAccount.
func (p *Projection) Unit(id uuid.UUID) (org.OrganizationUnitReference, bool) {
	u, ok := p.Units[id]
	if !ok {
		return org.OrganizationUnitReference{}, false
	}
	return u.Reference(), true
}

// Person satisfies org.PersonContextPort: resolves the person reference
// natsid needs to mint a NatsUser.
func (p *Projection) Person(id uuid.UUID) (org.PersonReference, bool) {
	person, ok := p.People[id]
	if !ok {
		return org.PersonReference{}, false
	}
	return person.Reference(), true
}

// Key satisfies PkiContextPort: a downstream context resolves a key
// reference without importing pki/entities directly.
func (p *Projection) Key(id uuid.UUID) (entities.KeyReference, bool) {
	k, ok := p.Keys[id]
	if !ok {
		return entities.KeyReference{}, false
	}
	return k.Reference(), true
}

// Certificate satisfies PkiContextPort.
func (p *Projection) Certificate(id uuid.UUID) (entities.CertificateReference, bool) {
	c, ok := p.Certificates[id]
	if !ok {
		return entities.CertificateReference{}, false
	}
	return c.Reference(), true
}

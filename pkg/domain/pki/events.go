package pki

import (
	"time"

	"github.com/google/uuid"

	common "github.com/TheCowboyAI/cim-keys-sub008/pkg/domain"
	"github.com/TheCowboyAI/cim-keys-sub008/pkg/domain/org"
)

// EventKind names every defined event; Projection.Fold is total over this
// set, so an undefined kind can only appear in a corrupted or foreign log.
type EventKind string

const (
	EventOrganizationCreated        EventKind = "OrganizationCreated"
	EventUnitAdded                  EventKind = "UnitAdded"
	EventPersonCreated              EventKind = "PersonCreated"
	EventLocationCreated            EventKind = "LocationCreated"
	EventRootCAKeyGenerated         EventKind = "RootCAKeyGenerated"
	EventIntermediateCAKeyGenerated EventKind = "IntermediateCAKeyGenerated"
	EventPersonalKeyGenerated       EventKind = "PersonalKeyGenerated"
	EventCertificateIssued          EventKind = "CertificateIssued"
	EventYubiKeyDeviceRegistered    EventKind = "YubiKeyDeviceRegistered"
	EventYubiKeyDeviceAssigned      EventKind = "YubiKeyDeviceAssigned"
	EventSlotProvisioned            EventKind = "SlotProvisioned"
	EventSlotCleared                EventKind = "SlotCleared"
	EventDelegationCreated          EventKind = "DelegationCreated"
	EventDelegationRevoked          EventKind = "DelegationRevoked"
	EventDelegationCascadeRevoked   EventKind = "DelegationCascadeRevoked"
	EventManifestExported           EventKind = "ManifestExported"
	EventProjectionWriteFailed      EventKind = "ProjectionWriteFailed"
)

// Event is the immutable record Handle produces: a payload plus the
// MessageIdentity it was derived from plus its own UUIDv7 event ID. Sorting
// by EventID yields chronological order.
type Event struct {
	EventID  uuid.UUID
	Kind     EventKind
	Identity common.MessageIdentity
	Payload  any
}

func newEvent(kind EventKind, identity common.MessageIdentity, payload any) Event {
	return Event{EventID: common.NewID(), Kind: kind, Identity: identity, Payload: payload}
}

// TraceID and TraceCausation satisfy the trust graph engine's causality
// surface (trust.Traceable) without that package naming this one.
func (e Event) TraceID() uuid.UUID { return e.EventID }

func (e Event) TraceCausation() uuid.UUID { return e.Identity.CausationID }

// --- Event payloads ---

type OrganizationCreatedPayload struct {
	OrganizationID uuid.UUID
	Name           string
	DisplayName    string
}

type UnitAddedPayload struct {
	UnitID   uuid.UUID
	OrgID    uuid.UUID
	Name     string
	UnitType org.UnitType
}

type PersonCreatedPayload struct {
	PersonID  uuid.UUID
	OrgID     uuid.UUID
	UnitID    uuid.UUID
	LegalName string
}

type LocationCreatedPayload struct {
	LocationID uuid.UUID
	OwnerID    uuid.UUID
	Kind       org.LocationKind
	Address    string
}

// KeyGeneratedPayload's OwnerID is the entity the key belongs to: an
// organization for a root CA key, a unit for an intermediate CA key, or a
// person for a personal key.
type KeyGeneratedPayload struct {
	KeyID       uuid.UUID
	OwnerID     *uuid.UUID
	Algorithm   string
	Fingerprint string
	Purposes    []string
	StorageKind string

	// OpenPGPPublic is the armored OpenPGP public identity derived alongside
	// a personal key; empty for CA keys, which have no email/SSH/PGP life.
	OpenPGPPublic []byte
}

type CertificateIssuedPayload struct {
	CertificateID uuid.UUID
	SubjectKeyID  uuid.UUID
	SignerKeyID   uuid.UUID
	CertType      string
	SubjectDN     string
	NotBefore     time.Time
	NotAfter      time.Time
	DER           []byte
}

type YubiKeyDeviceRegisteredPayload struct {
	Serial     string
	Firmware   string
	FormFactor string
}

type YubiKeyDeviceAssignedPayload struct {
	Serial   string
	PersonID uuid.UUID
}

type SlotProvisionedPayload struct {
	Serial string
	Slot   string
	KeyID  uuid.UUID
}

type SlotClearedPayload struct {
	Serial string
	Slot   string
	KeyID  uuid.UUID
}

type DelegationCreatedPayload struct {
	DelegationID       uuid.UUID
	Delegator          uuid.UUID
	Delegate           uuid.UUID
	Permissions        []string
	ParentDelegationID *uuid.UUID
}

type DelegationRevokedPayload struct {
	DelegationID uuid.UUID
	Reason       string
}

type DelegationCascadeRevokedPayload struct {
	DelegationID       uuid.UUID
	ParentDelegationID uuid.UUID
	Reason             string
}

type ManifestExportedPayload struct {
	TargetPath     string
	ManifestSHA256 string
}

type ProjectionWriteFailedPayload struct {
	Reason string
}

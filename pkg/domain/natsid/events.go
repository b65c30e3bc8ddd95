package natsid

import (
	"github.com/google/uuid"

	common "github.com/TheCowboyAI/cim-keys-sub008/pkg/domain"
)

// EventKind names every defined natsid event; Projection.Fold is total over
// this set.
type EventKind string

const (
	EventOperatorCreated EventKind = "NatsOperatorCreated"
	EventAccountCreated  EventKind = "NatsAccountCreated"
	EventUserCreated     EventKind = "NatsUserCreated"
)

// Event mirrors pki.Event's shape: an immutable record carrying the
// MessageIdentity it was derived from plus its own UUIDv7 event ID.
type Event struct {
	EventID  uuid.UUID
	Kind     EventKind
	Identity common.MessageIdentity
	Payload  any
}

func newEvent(kind EventKind, identity common.MessageIdentity, payload any) Event {
	return Event{EventID: common.NewID(), Kind: kind, Identity: identity, Payload: payload}
}

type OperatorCreatedPayload struct {
	SigningNKeyPublic string
	OrganizationID    uuid.UUID
	JWT               string
}

type AccountCreatedPayload struct {
	SigningNKeyPublic string
	OperatorID        string
	UnitID            uuid.UUID
	Limits            Limits
	JWT               string
}

type UserCreatedPayload struct {
	SigningNKeyPublic string
	AccountID         string
	PersonID          uuid.UUID
	Permissions       Permissions
	JWT               string
	CredsFile         []byte
}

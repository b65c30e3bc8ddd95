// Package common holds the shared kernel used by every bounded context:
// identity helpers, the MessageIdentity causality triple, and the rejection
// taxonomy. Nothing here is specific to organizations, PKI, or NATS.
package common

import (
	"time"

	"github.com/google/uuid"
)

// Entity is satisfied by every aggregate member that carries a UUIDv7 identity.
type Entity interface {
	GetID() uuid.UUID
}

// NewID mints a time-ordered (version-7) UUID. Sorting by this value yields
// chronological order, so no entity or event needs a separate CreatedAt index.
func NewID() uuid.UUID {
	id, err := uuid.NewV7()
	if err != nil {
		// uuid.NewV7 only fails if crypto/rand is unavailable, which makes the
		// process unfit to mint key material anyway.
		panic(err)
	}
	return id
}

// TimeOf extracts the millisecond timestamp encoded in a UUIDv7's leading 48 bits.
func TimeOf(id uuid.UUID) time.Time {
	sec, nsec := id.Time().UnixTime()
	return time.Unix(sec, nsec).UTC()
}

// BaseEntity is embedded by every domain entity.
type BaseEntity struct {
	ID        uuid.UUID `json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (b BaseEntity) GetID() uuid.UUID {
	return b.ID
}

// NewBaseEntity mints a fresh UUIDv7 identity with CreatedAt derived from it.
func NewBaseEntity() BaseEntity {
	id := NewID()
	now := TimeOf(id)
	return BaseEntity{ID: id, CreatedAt: now, UpdatedAt: now}
}

// Touch refreshes UpdatedAt, used by the handful of entities with mutation
// lifecycles (Organization rename, Person deactivation, PivSlot occupancy).
// It takes the instant explicitly rather than reading the wall clock: every
// mutation inside the aggregate is caused by a command, and a command's own
// MessageID already carries a UUIDv7 timestamp, so re-folding the same event
// log always touches an entity to the same instant.
func (b *BaseEntity) Touch(at time.Time) {
	b.UpdatedAt = at
}

// MessageIdentity is carried by every command and event.
//
// A root command is self-referential: CorrelationID == CausationID == MessageID.
// A derived command or an event-from-command sets CausationID to the parent's
// MessageID and inherits CorrelationID. CausationID is never the nil UUID.
type MessageIdentity struct {
	CorrelationID uuid.UUID `json:"correlation_id"`
	CausationID   uuid.UUID `json:"causation_id"`
	MessageID     uuid.UUID `json:"message_id"`
}

// NewRootMessageIdentity starts a new causal chain.
func NewRootMessageIdentity() MessageIdentity {
	id := NewID()
	return MessageIdentity{CorrelationID: id, CausationID: id, MessageID: id}
}

// Derive produces the MessageIdentity of a command or event caused by this one.
func (m MessageIdentity) Derive() MessageIdentity {
	return MessageIdentity{
		CorrelationID: m.CorrelationID,
		CausationID:   m.MessageID,
		MessageID:     NewID(),
	}
}

// Valid reports whether every leg of the causality triple is populated:
// causation is never the nil UUID.
func (m MessageIdentity) Valid() bool {
	return m.CausationID != uuid.Nil && m.MessageID != uuid.Nil && m.CorrelationID != uuid.Nil
}

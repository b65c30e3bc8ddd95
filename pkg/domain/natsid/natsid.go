// Package natsid holds the NATS identity bounded context: Operator, Account,
// and User entities that mirror the Organization/OrganizationUnit/Person
// hierarchy one-to-one, each keyed by its own signing NKey public identifier
// rather than a UUID, since the NKey public key is what NATS servers
// actually trust.
package natsid

import (
	"time"

	"github.com/google/uuid"
)

// Limits mirrors the NATS account JWT resource-limit fields an operator
// assigns per unit.
type Limits struct {
	MaxConnections int
	MaxData        int64
	MaxSubs        int
	MaxPayload     int32
}

// NatsOperator maps 1:1 to an Organization and signs every Account JWT
// beneath it.
type NatsOperator struct {
	SigningNKeyPublic string
	OrganizationID    uuid.UUID
	JWT               string
	CreatedAt         time.Time
}

// NewNatsOperator records an operator created at bootstrap. createdAt comes
// from the causing command's own MessageID (a UUIDv7), not the wall clock,
// so replaying the same command produces a byte-identical record.
func NewNatsOperator(signingNKeyPublic string, organizationID uuid.UUID, jwt string, createdAt time.Time) NatsOperator {
	return NatsOperator{
		SigningNKeyPublic: signingNKeyPublic,
		OrganizationID:    organizationID,
		JWT:               jwt,
		CreatedAt:         createdAt,
	}
}

// NatsAccount maps 1:1 to an OrganizationUnit and is signed by its operator.
type NatsAccount struct {
	SigningNKeyPublic string
	OperatorID        string // NatsOperator.SigningNKeyPublic
	UnitID            uuid.UUID
	Limits            Limits
	JWT               string
	CreatedAt         time.Time
}

// NewNatsAccount records an account created per unit.
func NewNatsAccount(signingNKeyPublic, operatorID string, unitID uuid.UUID, limits Limits, jwt string, createdAt time.Time) NatsAccount {
	return NatsAccount{
		SigningNKeyPublic: signingNKeyPublic,
		OperatorID:        operatorID,
		UnitID:            unitID,
		Limits:            limits,
		JWT:               jwt,
		CreatedAt:         createdAt,
	}
}

// NatsUser maps 1:1 to a Person (or service account) and belongs to the
// account of the unit that person belongs to.
type NatsUser struct {
	SigningNKeyPublic string
	AccountID         string // NatsAccount.SigningNKeyPublic
	PersonID          uuid.UUID
	Permissions       Permissions
	JWT               string
	CredsFile         []byte
	CreatedAt         time.Time
}

// Permissions is the publish/subscribe/deny-rule set a NatsUser JWT carries.
type Permissions struct {
	Publish   []string
	Subscribe []string
	Deny      []string
}

// NewNatsUser records a user created per organization member.
func NewNatsUser(signingNKeyPublic, accountID string, personID uuid.UUID, permissions Permissions, jwt string, credsFile []byte, createdAt time.Time) NatsUser {
	return NatsUser{
		SigningNKeyPublic: signingNKeyPublic,
		AccountID:         accountID,
		PersonID:          personID,
		Permissions:       permissions,
		JWT:               jwt,
		CredsFile:         credsFile,
		CreatedAt:         createdAt,
	}
}

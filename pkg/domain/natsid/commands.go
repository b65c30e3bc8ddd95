package natsid

import (
	common "github.com/TheCowboyAI/cim-keys-sub008/pkg/domain"
	"github.com/TheCowboyAI/cim-keys-sub008/pkg/domain/org"
	"github.com/TheCowboyAI/cim-keys-sub008/pkg/domain/seed"
)

// Command is satisfied by every natsid command: it carries a MessageIdentity
// and nothing else is assumed about its shape.
type Command interface {
	Identity() common.MessageIdentity
}

// CreateOperator mints the one NatsOperator for an organization, self-signed
// with its own NKey. OrgRef crosses from the org bounded context as a
// published-language reference, never org's internal Organization type.
type CreateOperator struct {
	MsgID  common.MessageIdentity
	OrgRef org.OrganizationReference
	Seed   seed.Seed
}

func (c CreateOperator) Identity() common.MessageIdentity { return c.MsgID }

// CreateAccount mints the one NatsAccount for an OrganizationUnit, signed by
// its operator. OperatorSeed lets Handle re-derive the operator's keypair and
// check its fingerprint against the recorded OperatorID before signing,
// exactly as GenerateIntermediateCA checks its issuer seed.
type CreateAccount struct {
	MsgID        common.MessageIdentity
	UnitRef      org.OrganizationUnitReference
	OperatorID   string // NatsOperator.SigningNKeyPublic
	OperatorSeed seed.Seed
	Seed         seed.Seed
	Limits       Limits
}

func (c CreateAccount) Identity() common.MessageIdentity { return c.MsgID }

// CreateUser mints the one NatsUser for a Person, signed by the account of
// the unit that person belongs to.
type CreateUser struct {
	MsgID       common.MessageIdentity
	PersonRef   org.PersonReference
	AccountID   string // NatsAccount.SigningNKeyPublic
	AccountSeed seed.Seed
	Seed        seed.Seed
	Permissions Permissions
}

func (c CreateUser) Identity() common.MessageIdentity { return c.MsgID }

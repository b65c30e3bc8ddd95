package natsid

import (
	"github.com/nats-io/jwt/v2"

	common "github.com/TheCowboyAI/cim-keys-sub008/pkg/domain"
	"github.com/TheCowboyAI/cim-keys-sub008/pkg/domain/pkicrypto"
)

// Handle validates cmd against proj and returns the event vector it
// produces, never mutating proj directly. This context mirrors the
// organization one-to-one (Organization -> Operator, Unit -> Account,
// Person -> User), choreographed by events rather than direct calls: the
// engine façade is the only caller that sees both org/pki and natsid.
func Handle(cmd Command, proj *Projection) ([]Event, error) {
	if events, ok := proj.previousResult(cmd.Identity()); ok {
		return events, nil
	}

	var (
		events []Event
		err    error
	)

	switch c := cmd.(type) {
	case CreateOperator:
		events, err = handleCreateOperator(c, proj)
	case CreateAccount:
		events, err = handleCreateAccount(c, proj)
	case CreateUser:
		events, err = handleCreateUser(c, proj)
	default:
		return nil, common.NewErrInvalidInput("unknown natsid command")
	}
	if err != nil {
		return nil, err
	}

	proj.remember(cmd.Identity(), events)
	return events, nil
}

func handleCreateOperator(c CreateOperator, proj *Projection) ([]Event, error) {
	if _, ok := proj.OperatorByOrg[c.OrgRef.ID]; ok {
		return nil, common.NewErrDuplicateAggregate("NatsOperator", c.OrgRef.ID.String())
	}

	kp, err := pkicrypto.NKeyFromSeed(c.Seed, pkicrypto.NatsRoleOperator)
	if err != nil {
		return nil, common.NewErrInvalidInput(err.Error())
	}
	pub, err := kp.PublicKey()
	if err != nil {
		return nil, common.NewErrInvalidInput(err.Error())
	}

	claims := jwt.NewOperatorClaims(pub)
	claims.Name = c.OrgRef.DisplayName

	token, err := pkicrypto.SignJWT(claims, kp)
	if err != nil {
		return nil, common.NewErrInvalidInput(err.Error())
	}

	return []Event{
		newEvent(EventOperatorCreated, c.MsgID, OperatorCreatedPayload{
			SigningNKeyPublic: pub,
			OrganizationID:    c.OrgRef.ID,
			JWT:               token,
		}),
	}, nil
}

func handleCreateAccount(c CreateAccount, proj *Projection) ([]Event, error) {
	if _, ok := proj.Operators[c.OperatorID]; !ok {
		return nil, common.NewErrNotFound("NatsOperator", idStringer(c.OperatorID))
	}
	if _, ok := proj.AccountByUnit[c.UnitRef.ID]; ok {
		return nil, common.NewErrDuplicateAggregate("NatsAccount", c.UnitRef.ID.String())
	}

	operatorKp, err := pkicrypto.NKeyFromSeed(c.OperatorSeed, pkicrypto.NatsRoleOperator)
	if err != nil {
		return nil, common.NewErrInvalidInput(err.Error())
	}
	operatorPub, err := operatorKp.PublicKey()
	if err != nil {
		return nil, common.NewErrInvalidInput(err.Error())
	}
	if operatorPub != c.OperatorID {
		return nil, common.NewErrStateInapplicable("operator seed", "recorded operator identity")
	}

	kp, err := pkicrypto.NKeyFromSeed(c.Seed, pkicrypto.NatsRoleAccount)
	if err != nil {
		return nil, common.NewErrInvalidInput(err.Error())
	}
	pub, err := kp.PublicKey()
	if err != nil {
		return nil, common.NewErrInvalidInput(err.Error())
	}

	claims := jwt.NewAccountClaims(pub)
	claims.Name = c.UnitRef.Name
	claims.Limits.Conn = int64(c.Limits.MaxConnections)
	claims.Limits.Data = c.Limits.MaxData
	claims.Limits.Subs = int64(c.Limits.MaxSubs)
	claims.Limits.Payload = int64(c.Limits.MaxPayload)

	token, err := pkicrypto.SignJWT(claims, operatorKp)
	if err != nil {
		return nil, common.NewErrInvalidInput(err.Error())
	}

	return []Event{
		newEvent(EventAccountCreated, c.MsgID, AccountCreatedPayload{
			SigningNKeyPublic: pub,
			OperatorID:        c.OperatorID,
			UnitID:            c.UnitRef.ID,
			Limits:            c.Limits,
			JWT:               token,
		}),
	}, nil
}

func handleCreateUser(c CreateUser, proj *Projection) ([]Event, error) {
	if _, ok := proj.Accounts[c.AccountID]; !ok {
		return nil, common.NewErrNotFound("NatsAccount", idStringer(c.AccountID))
	}
	if _, ok := proj.UserByPerson[c.PersonRef.ID]; ok {
		return nil, common.NewErrDuplicateAggregate("NatsUser", c.PersonRef.ID.String())
	}

	accountKp, err := pkicrypto.NKeyFromSeed(c.AccountSeed, pkicrypto.NatsRoleAccount)
	if err != nil {
		return nil, common.NewErrInvalidInput(err.Error())
	}
	accountPub, err := accountKp.PublicKey()
	if err != nil {
		return nil, common.NewErrInvalidInput(err.Error())
	}
	if accountPub != c.AccountID {
		return nil, common.NewErrStateInapplicable("account seed", "recorded account identity")
	}

	kp, err := pkicrypto.NKeyFromSeed(c.Seed, pkicrypto.NatsRoleUser)
	if err != nil {
		return nil, common.NewErrInvalidInput(err.Error())
	}
	pub, err := kp.PublicKey()
	if err != nil {
		return nil, common.NewErrInvalidInput(err.Error())
	}

	claims := jwt.NewUserClaims(pub)
	claims.Permissions.Pub.Allow = c.Permissions.Publish
	claims.Permissions.Sub.Allow = c.Permissions.Subscribe
	claims.Permissions.Pub.Deny = c.Permissions.Deny

	token, err := pkicrypto.SignJWT(claims, accountKp)
	if err != nil {
		return nil, common.NewErrInvalidInput(err.Error())
	}

	seedBytes, err := kp.Seed()
	if err != nil {
		return nil, common.NewErrInvalidInput(err.Error())
	}
	creds, err := jwt.FormatUserConfig(token, seedBytes)
	if err != nil {
		return nil, common.NewErrInvalidInput(err.Error())
	}

	return []Event{
		newEvent(EventUserCreated, c.MsgID, UserCreatedPayload{
			SigningNKeyPublic: pub,
			AccountID:         c.AccountID,
			PersonID:          c.PersonRef.ID,
			Permissions:       c.Permissions,
			JWT:               token,
			CredsFile:         creds,
		}),
	}, nil
}

// idStringer adapts a bare NKey public identifier to fmt.Stringer for
// NewErrNotFound, which is shared with entities keyed by uuid.UUID.
type idStringer string

func (s idStringer) String() string { return string(s) }

package natsid

import (
	"github.com/google/uuid"

	common "github.com/TheCowboyAI/cim-keys-sub008/pkg/domain"
)

// Projection is the in-memory read model Handle validates commands against,
// folded from this context's own events (the engine folds them locally and
// does not publish them to the event bus), kept separate from pki's
// projection per the choreography-not-orchestration rule between bounded
// contexts.
type Projection struct {
	Operators map[string]NatsOperator // keyed by SigningNKeyPublic
	Accounts  map[string]NatsAccount
	Users     map[string]NatsUser

	OperatorByOrg map[uuid.UUID]string
	AccountByUnit map[uuid.UUID]string
	UserByPerson  map[uuid.UUID]string

	idempotency map[[2]uuid.UUID][]Event
}

// NewProjection returns an empty projection ready to fold a fresh event log.
func NewProjection() *Projection {
	return &Projection{
		Operators:     make(map[string]NatsOperator),
		Accounts:      make(map[string]NatsAccount),
		Users:         make(map[string]NatsUser),
		OperatorByOrg: make(map[uuid.UUID]string),
		AccountByUnit: make(map[uuid.UUID]string),
		UserByPerson:  make(map[uuid.UUID]string),
		idempotency:   make(map[[2]uuid.UUID][]Event),
	}
}

func idempotencyKey(id common.MessageIdentity) [2]uuid.UUID {
	return [2]uuid.UUID{id.CorrelationID, id.MessageID}
}

func (p *Projection) remember(id common.MessageIdentity, events []Event) {
	p.idempotency[idempotencyKey(id)] = events
}

func (p *Projection) previousResult(id common.MessageIdentity) ([]Event, bool) {
	events, ok := p.idempotency[idempotencyKey(id)]
	return events, ok
}

// Fold applies one event to the projection. Total over EventKind, matching
// pki.Projection.Fold's contract.
func (p *Projection) Fold(e Event) {
	switch e.Kind {
	case EventOperatorCreated:
		payload := e.Payload.(OperatorCreatedPayload)
		p.Operators[payload.SigningNKeyPublic] = NewNatsOperator(payload.SigningNKeyPublic, payload.OrganizationID, payload.JWT, common.TimeOf(e.EventID))
		p.OperatorByOrg[payload.OrganizationID] = payload.SigningNKeyPublic

	case EventAccountCreated:
		payload := e.Payload.(AccountCreatedPayload)
		p.Accounts[payload.SigningNKeyPublic] = NewNatsAccount(payload.SigningNKeyPublic, payload.OperatorID, payload.UnitID, payload.Limits, payload.JWT, common.TimeOf(e.EventID))
		p.AccountByUnit[payload.UnitID] = payload.SigningNKeyPublic

	case EventUserCreated:
		payload := e.Payload.(UserCreatedPayload)
		p.Users[payload.SigningNKeyPublic] = NewNatsUser(payload.SigningNKeyPublic, payload.AccountID, payload.PersonID, payload.Permissions, payload.JWT, payload.CredsFile, common.TimeOf(e.EventID))
		p.UserByPerson[payload.PersonID] = payload.SigningNKeyPublic

	default:
		panic("natsid: undefined event kind in fold: " + string(e.Kind))
	}
}

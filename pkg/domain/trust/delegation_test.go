package trust_test

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/TheCowboyAI/cim-keys-sub008/pkg/domain/pki/entities"
	"github.com/TheCowboyAI/cim-keys-sub008/pkg/domain/trust"
)

type fakeProjection struct {
	byID map[uuid.UUID]entities.Delegation
}

func (f fakeProjection) DelegationByID(id uuid.UUID) (entities.Delegation, bool) {
	d, ok := f.byID[id]
	return d, ok
}

func (f fakeProjection) DelegationsByDelegate(personID uuid.UUID) []entities.Delegation {
	var out []entities.Delegation
	for _, d := range f.byID {
		if d.DelegatePersonID == personID {
			out = append(out, d)
		}
	}
	return out
}

func TestPermissions_UnionAcrossActiveDelegations(t *testing.T) {
	alice, bob := uuid.New(), uuid.New()
	d1 := entities.NewDelegation(alice, bob, []string{"sign-cert"}, nil, nil)
	d2 := entities.NewDelegation(alice, bob, []string{"issue-delegation"}, nil, nil)

	proj := fakeProjection{byID: map[uuid.UUID]entities.Delegation{
		d1.GetID(): d1,
		d2.GetID(): d2,
	}}

	perms := trust.Permissions(proj, bob, time.Now())
	require.ElementsMatch(t, []string{"sign-cert", "issue-delegation"}, perms)
}

func TestPermissions_EmptyAfterAncestorRevoked(t *testing.T) {
	alice, bob, charlie := uuid.New(), uuid.New(), uuid.New()

	parent := entities.NewDelegation(alice, bob, []string{"sign-cert"}, nil, nil)
	parent.Revoke("termination", time.Now())

	parentID := parent.GetID()
	child := entities.NewDelegation(bob, charlie, []string{"sign-cert"}, &parentID, nil)

	proj := fakeProjection{byID: map[uuid.UUID]entities.Delegation{
		parent.GetID(): parent,
		child.GetID():  child,
	}}

	perms := trust.Permissions(proj, charlie, time.Now())
	require.Empty(t, perms)
}

func TestPermissions_RespectsExpiry(t *testing.T) {
	alice, bob := uuid.New(), uuid.New()
	past := time.Now().Add(-time.Hour)
	d := entities.NewDelegation(alice, bob, []string{"sign-cert"}, nil, &past)

	proj := fakeProjection{byID: map[uuid.UUID]entities.Delegation{d.GetID(): d}}

	require.Empty(t, trust.Permissions(proj, bob, time.Now()))
}

package trust_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	common "github.com/TheCowboyAI/cim-keys-sub008/pkg/domain"
	"github.com/TheCowboyAI/cim-keys-sub008/pkg/domain/pki"
	"github.com/TheCowboyAI/cim-keys-sub008/pkg/domain/trust"
)

func newTestEvent(kind pki.EventKind, identity common.MessageIdentity) pki.Event {
	id := common.NewID()
	return pki.Event{EventID: id, Kind: kind, Identity: identity}
}

func TestCausalChain_ReconstructsRootToLeaf(t *testing.T) {
	root := common.NewRootMessageIdentity()
	e1 := newTestEvent(pki.EventDelegationRevoked, root)

	mid := common.MessageIdentity{CorrelationID: root.CorrelationID, CausationID: e1.EventID, MessageID: common.NewID()}
	e2 := newTestEvent(pki.EventDelegationCascadeRevoked, mid)

	tail := common.MessageIdentity{CorrelationID: root.CorrelationID, CausationID: e2.EventID, MessageID: common.NewID()}
	e3 := newTestEvent(pki.EventDelegationCascadeRevoked, tail)

	chain, err := trust.CausalChain([]pki.Event{e1, e2, e3}, e3.EventID)
	require.NoError(t, err)
	require.Len(t, chain, 3)
	require.Equal(t, e1.EventID, chain[0].EventID)
	require.Equal(t, e2.EventID, chain[1].EventID)
	require.Equal(t, e3.EventID, chain[2].EventID)
}

func TestEventsInRange_FiltersByUUIDv7Timestamp(t *testing.T) {
	root := common.NewRootMessageIdentity()
	var events []pki.Event
	for i := 0; i < 5; i++ {
		events = append(events, newTestEvent(pki.EventManifestExported, root))
		time.Sleep(time.Millisecond)
	}

	mid := common.TimeOf(events[2].EventID)
	inRange := trust.EventsInRange(events, mid, time.Now().Add(time.Hour))
	require.LessOrEqual(t, len(inRange), len(events))
	for _, e := range inRange {
		require.False(t, common.TimeOf(e.EventID).Before(mid))
	}
}

package eventbus_test

import (
	"context"
	"testing"

	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/require"

	common "github.com/TheCowboyAI/cim-keys-sub008/pkg/domain"
	"github.com/TheCowboyAI/cim-keys-sub008/pkg/domain/pki"
	"github.com/TheCowboyAI/cim-keys-sub008/pkg/infra/eventbus"
)

func TestBus_AppendAndReadAllRoundTrips(t *testing.T) {
	bus, err := eventbus.Start(eventbus.DefaultConfig())
	require.NoError(t, err)
	defer bus.Close()

	root := common.NewRootMessageIdentity()
	ev := pki.Event{
		EventID:  common.NewID(),
		Kind:     pki.EventOrganizationCreated,
		Identity: root,
		Payload: pki.OrganizationCreatedPayload{
			OrganizationID: common.NewID(),
			Name:           "cowboyai",
			DisplayName:    "CowboyAI",
		},
	}

	seq, err := bus.Append(context.Background(), "pki", ev)
	require.NoError(t, err)
	require.Equal(t, uint64(1), seq)

	got, err := bus.ReadAll(context.Background(), "pki")
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.Equal(t, ev.EventID, got[0].EventID)
	require.Equal(t, ev.Kind, got[0].Kind)
	require.Equal(t, ev.Identity, got[0].Identity)
}

func TestBus_AggregateVersionIncrementsPerContext(t *testing.T) {
	bus, err := eventbus.Start(eventbus.DefaultConfig())
	require.NoError(t, err)
	defer bus.Close()

	root := common.NewRootMessageIdentity()
	first := pki.Event{
		EventID:  common.NewID(),
		Kind:     pki.EventOrganizationCreated,
		Identity: root,
		Payload:  pki.OrganizationCreatedPayload{OrganizationID: common.NewID(), Name: "a"},
	}
	second := pki.Event{
		EventID:  common.NewID(),
		Kind:     pki.EventUnitAdded,
		Identity: root.Derive(),
		Payload:  pki.UnitAddedPayload{UnitID: common.NewID(), OrgID: common.NewID(), Name: "Engineering"},
	}

	seq1, err := bus.Append(context.Background(), "pki", first)
	require.NoError(t, err)
	seq2, err := bus.Append(context.Background(), "pki", second)
	require.NoError(t, err)
	seq3, err := bus.Append(context.Background(), "natsid", first)
	require.NoError(t, err)

	got, err := bus.ReadAll(context.Background(), "pki")
	require.NoError(t, err)
	require.Len(t, got, 2)

	nc, err := nats.Connect(bus.ClientURL())
	require.NoError(t, err)
	defer nc.Close()
	js, err := nc.JetStream()
	require.NoError(t, err)
	for seq, want := range map[uint64]string{seq1: "1", seq2: "2", seq3: "1"} {
		msg, err := js.GetMsg(eventbus.StreamName, seq)
		require.NoError(t, err)
		require.Equal(t, want, msg.Header.Get("Aggregate-Version"), "stream seq %d", seq)
	}
}

func TestSubject_NamesBoundedContextAndEventKind(t *testing.T) {
	require.Equal(t, "cim.keys.pki.events.OrganizationCreated",
		eventbus.Subject("pki", pki.EventOrganizationCreated))
}

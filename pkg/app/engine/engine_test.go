package engine_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/TheCowboyAI/cim-keys-sub008/pkg/app/engine"
	common "github.com/TheCowboyAI/cim-keys-sub008/pkg/domain"
	"github.com/TheCowboyAI/cim-keys-sub008/pkg/domain/natsid"
	"github.com/TheCowboyAI/cim-keys-sub008/pkg/domain/org"
	"github.com/TheCowboyAI/cim-keys-sub008/pkg/domain/pki"
	"github.com/TheCowboyAI/cim-keys-sub008/pkg/domain/pkicrypto"
	"github.com/TheCowboyAI/cim-keys-sub008/pkg/infra/ioc"
)

func newTestEngine(t *testing.T) *engine.Engine {
	t.Helper()

	cfg := ioc.DefaultEngineConfig()
	cfg.ProjectionRoot = filepath.Join(t.TempDir(), "projection")

	cfgPath := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, cfg.Save(cfgPath))
	t.Setenv("CIM_KEYS_CONFIG", cfgPath)
	t.Setenv("CIM_KEYS_HARDWARE", "")

	b := ioc.NewContainerBuilder().
		WithEnvFile().
		WithHardwareProvider().
		WithEventBus().
		WithProjectionWriter()

	e, err := engine.New(b)
	require.NoError(t, err)
	t.Cleanup(e.Close)
	return e
}

func TestEngine_SubmitBootstrapsAndFoldsEvents(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	root := common.NewRootMessageIdentity()
	events, err := e.Submit(ctx, pki.BootstrapOrganization{
		MsgID:             root,
		Name:              "cowboyai",
		DisplayName:       "CowboyAI",
		PassphraseWitness: "witness",
		MasterSeed:        [32]byte{1},
	})
	require.NoError(t, err)
	require.Len(t, events, 1)

	orgID := events[0].Payload.(pki.OrganizationCreatedPayload).OrganizationID

	_, err = e.Submit(ctx, pki.GenerateRootCA{
		MsgID: root.Derive(),
		Org:   orgID,
		Algo:  pkicrypto.AlgorithmEd25519,
		Seed:  [32]byte{2},
	})
	require.NoError(t, err)

	// Resubmitting a second bootstrap is rejected: one organization per
	// engine instance, exactly as the aggregate's own invariant states.
	_, err = e.Submit(ctx, pki.BootstrapOrganization{
		MsgID:             common.NewRootMessageIdentity(),
		Name:              "other",
		DisplayName:       "Other",
		PassphraseWitness: "witness",
		MasterSeed:        [32]byte{9},
	})
	require.Error(t, err)
}

func TestEngine_MirrorOperatorAccountUser_ResolvesThroughPorts(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	root := common.NewRootMessageIdentity()
	orgEvents, err := e.Submit(ctx, pki.BootstrapOrganization{
		MsgID:             root,
		Name:              "cowboyai",
		DisplayName:       "CowboyAI",
		PassphraseWitness: "witness",
		MasterSeed:        [32]byte{1},
	})
	require.NoError(t, err)
	orgID := orgEvents[0].Payload.(pki.OrganizationCreatedPayload).OrganizationID

	unitEvents, err := e.Submit(ctx, pki.AddOrganizationUnit{
		MsgID:     root.Derive(),
		ParentOrg: orgID,
		Name:      "Engineering",
		UnitType:  org.UnitTypeDepartment,
	})
	require.NoError(t, err)
	unitID := unitEvents[0].Payload.(pki.UnitAddedPayload).UnitID

	personEvents, err := e.Submit(ctx, pki.AddPerson{
		MsgID: root.Derive(),
		Org:   orgID,
		Unit:  unitID,
		Input: org.PersonInput{LegalName: "Alice"},
	})
	require.NoError(t, err)
	personID := personEvents[0].Payload.(pki.PersonCreatedPayload).PersonID

	opEvents, err := e.MirrorOperator(e.PkiProjection(), orgID, [32]byte{4})
	require.NoError(t, err)
	require.Len(t, opEvents, 1)
	operatorID := opEvents[0].Payload.(natsid.OperatorCreatedPayload).SigningNKeyPublic

	acctEvents, err := e.MirrorAccount(e.PkiProjection(), unitID, operatorID, [32]byte{4}, [32]byte{5}, natsid.Limits{MaxConnections: 10})
	require.NoError(t, err)
	require.Len(t, acctEvents, 1)
	accountID := acctEvents[0].Payload.(natsid.AccountCreatedPayload).SigningNKeyPublic

	userEvents, err := e.MirrorUser(e.PkiProjection(), personID, accountID, [32]byte{5}, [32]byte{6}, natsid.Permissions{Publish: []string{"cim.keys.>"}})
	require.NoError(t, err)
	require.Len(t, userEvents, 1)

	_, err = e.MirrorOperator(e.PkiProjection(), common.NewID(), [32]byte{7})
	require.Error(t, err)
}

func TestEngine_Export_WritesManifestToProjectionRoot(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	root := common.NewRootMessageIdentity()
	_, err := e.Submit(ctx, pki.BootstrapOrganization{
		MsgID:             root,
		Name:              "cowboyai",
		DisplayName:       "CowboyAI",
		PassphraseWitness: "witness",
		MasterSeed:        [32]byte{1},
	})
	require.NoError(t, err)

	manifest, err := e.Export(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, manifest.ManifestSHA256)
}

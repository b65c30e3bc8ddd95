package projection_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	common "github.com/TheCowboyAI/cim-keys-sub008/pkg/domain"
	"github.com/TheCowboyAI/cim-keys-sub008/pkg/domain/natsid"
	"github.com/TheCowboyAI/cim-keys-sub008/pkg/domain/org"
	"github.com/TheCowboyAI/cim-keys-sub008/pkg/domain/pki"
	"github.com/TheCowboyAI/cim-keys-sub008/pkg/domain/pkicrypto"
	"github.com/TheCowboyAI/cim-keys-sub008/pkg/infra/projection"
)

func bootstrapProjection(t *testing.T) (*pki.Projection, []pki.Event) {
	t.Helper()
	proj := pki.NewProjection()
	var all []pki.Event

	root := common.NewRootMessageIdentity()
	orgEvents, err := pki.Handle(pki.BootstrapOrganization{
		MsgID:             root,
		Name:              "cowboyai",
		DisplayName:       "CowboyAI",
		PassphraseWitness: "witness",
		MasterSeed:        [32]byte{1},
	}, proj)
	require.NoError(t, err)
	for _, e := range orgEvents {
		proj.Fold(e)
	}
	all = append(all, orgEvents...)

	orgID := orgEvents[0].Payload.(pki.OrganizationCreatedPayload).OrganizationID

	rootCAEvents, err := pki.Handle(pki.GenerateRootCA{
		MsgID: root.Derive(),
		Org:   orgID,
		Algo:  pkicrypto.AlgorithmEd25519,
		Seed:  [32]byte{2},
	}, proj)
	require.NoError(t, err)
	for _, e := range rootCAEvents {
		proj.Fold(e)
	}
	all = append(all, rootCAEvents...)

	return proj, all
}

func TestMaterialize_WritesManifestAndFiles(t *testing.T) {
	proj, events := bootstrapProjection(t)

	dir := t.TempDir()
	w, err := projection.NewWriter(dir)
	require.NoError(t, err)
	defer w.Close()

	manifest, err := w.Materialize(proj, nil)
	require.NoError(t, err)
	require.NotEmpty(t, manifest.Entries)
	require.NotEmpty(t, manifest.ManifestSHA256)

	require.NoError(t, w.AppendEventLog(0, events))

	_, err = os.Stat(filepath.Join(dir, "manifest.json"))
	require.NoError(t, err)
	_, err = os.Stat(filepath.Join(dir, "domain", "organization.json"))
	require.NoError(t, err)
}

func TestMaterialize_Deterministic(t *testing.T) {
	proj, _ := bootstrapProjection(t)

	dirA, dirB := t.TempDir(), t.TempDir()

	wA, err := projection.NewWriter(dirA)
	require.NoError(t, err)
	defer wA.Close()
	manifestA, err := wA.Materialize(proj, nil)
	require.NoError(t, err)

	wB, err := projection.NewWriter(dirB)
	require.NoError(t, err)
	defer wB.Close()
	manifestB, err := wB.Materialize(proj, nil)
	require.NoError(t, err)

	require.Equal(t, manifestA.ManifestSHA256, manifestB.ManifestSHA256)
}

func TestMaterialize_NatsResolverConfCrossReferencesUnitIntermediateFingerprint(t *testing.T) {
	proj, _ := bootstrapProjection(t)

	root := common.NewRootMessageIdentity()
	orgID := firstKey(proj)

	unitEvents, err := pki.Handle(pki.AddOrganizationUnit{
		MsgID:     root.Derive(),
		ParentOrg: orgID,
		Name:      "Engineering",
		UnitType:  org.UnitTypeDepartment,
	}, proj)
	require.NoError(t, err)
	for _, e := range unitEvents {
		proj.Fold(e)
	}
	unitID := unitEvents[0].Payload.(pki.UnitAddedPayload).UnitID

	interEvents, err := pki.Handle(pki.GenerateIntermediateCA{
		MsgID:       root.Derive(),
		UnitID:      unitID,
		Algo:        pkicrypto.AlgorithmEd25519,
		Seed:        [32]byte{3},
		IssuerKeyID: proj.OrgRootKey[orgID],
		IssuerSeed:  [32]byte{2},
	}, proj)
	require.NoError(t, err)
	for _, e := range interEvents {
		proj.Fold(e)
	}

	natsProj := natsid.NewProjection()
	opEvents, err := natsid.Handle(natsid.CreateOperator{
		MsgID:  common.NewRootMessageIdentity(),
		OrgRef: proj.Organizations[orgID].Reference(),
		Seed:   [32]byte{4},
	}, natsProj)
	require.NoError(t, err)
	for _, e := range opEvents {
		natsProj.Fold(e)
	}
	operatorID := opEvents[0].Payload.(natsid.OperatorCreatedPayload).SigningNKeyPublic

	acctEvents, err := natsid.Handle(natsid.CreateAccount{
		MsgID:        common.NewRootMessageIdentity(),
		UnitRef:      proj.Units[unitID].Reference(),
		OperatorID:   operatorID,
		OperatorSeed: [32]byte{4},
		Seed:         [32]byte{5},
	}, natsProj)
	require.NoError(t, err)
	for _, e := range acctEvents {
		natsProj.Fold(e)
	}

	dir := t.TempDir()
	w, err := projection.NewWriter(dir)
	require.NoError(t, err)
	defer w.Close()

	_, err = w.Materialize(proj, natsProj)
	require.NoError(t, err)

	confBytes, err := os.ReadFile(filepath.Join(dir, "nats", "accounts", unitID.String(), "resolver.conf"))
	require.NoError(t, err)
	conf := string(confBytes)
	require.Contains(t, conf, "resolver_preload")
	require.Contains(t, conf, "unit intermediate CA fingerprint")

	key := proj.Keys[proj.UnitIntermediateKey[unitID]]
	require.True(t, strings.Contains(conf, key.Fingerprint))
}

func firstKey(proj *pki.Projection) uuid.UUID {
	for k := range proj.Organizations {
		return k
	}
	return uuid.UUID{}
}

func TestNewWriter_SecondOpenFailsWhileLocked(t *testing.T) {
	dir := t.TempDir()
	w, err := projection.NewWriter(dir)
	require.NoError(t, err)
	defer w.Close()

	_, err = projection.NewWriter(dir)
	require.Error(t, err)
}

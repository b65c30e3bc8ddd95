package seed_test

import (
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/TheCowboyAI/cim-keys-sub008/pkg/domain/seed"
)

func testParams() seed.KdfParams {
	// Keep the test suite fast: real bootstraps use seed.DefaultKdfParams(),
	// but exercising the 1 GiB / 10-iteration floor on every test run would
	// make the suite unusable. Floor enforcement lives in the engine config's
	// Validate and is covered there.
	return seed.KdfParams{MemoryKiB: 1024, Iterations: 10, Parallelism: 4}
}

func TestDeriveMasterSeed_Deterministic(t *testing.T) {
	orgID := uuid.New()
	params := testParams()

	s1, err := seed.DeriveMasterSeed("correct horse battery staple", orgID, params)
	require.NoError(t, err)

	s2, err := seed.DeriveMasterSeed("correct horse battery staple", orgID, params)
	require.NoError(t, err)

	require.True(t, s1.Equal(s2))
}

func TestDeriveMasterSeed_DifferentOrgDiffers(t *testing.T) {
	params := testParams()
	s1, err := seed.DeriveMasterSeed("correct horse battery staple", uuid.New(), params)
	require.NoError(t, err)
	s2, err := seed.DeriveMasterSeed("correct horse battery staple", uuid.New(), params)
	require.NoError(t, err)

	require.False(t, s1.Equal(s2))
}

func TestDeriveMasterSeed_WeakPassphraseRejected(t *testing.T) {
	_, err := seed.DeriveMasterSeed("abc", uuid.New(), testParams())
	require.Error(t, err)
	var weak *seed.ErrWeakPassphrase
	require.ErrorAs(t, err, &weak)
}

func TestDeriveMasterSeed_KdfParameterBudget(t *testing.T) {
	_, err := seed.DeriveMasterSeed("correct horse battery staple", uuid.New(), seed.KdfParams{MemoryKiB: 0, Iterations: 10, Parallelism: 4})
	require.Error(t, err)
	var budget *seed.ErrKdfParameterBudget
	require.ErrorAs(t, err, &budget)
}

func TestDeriveChild_DeterministicAndInjective(t *testing.T) {
	master, err := seed.DeriveMasterSeed("correct horse battery staple", uuid.New(), testParams())
	require.NoError(t, err)

	paths := []string{
		"root-ca",
		"root-ca/intermediate-engineering",
		"root-ca/intermediate-engineering/nats-server-prod-01",
		"root-ca/intermediate-operations",
	}

	derived := make(map[string]seed.Seed, len(paths))
	for _, p := range paths {
		s, err := seed.DerivePath(master, p)
		require.NoError(t, err)
		derived[p] = s

		// Determinism: re-deriving the same path yields the same seed.
		s2, err := seed.DerivePath(master, p)
		require.NoError(t, err)
		require.True(t, s.Equal(s2), "path %s not deterministic", p)
	}

	// Injectivity per salt: distinct paths never collide.
	for a := range derived {
		for b := range derived {
			if a == b {
				continue
			}
			require.False(t, derived[a].Equal(derived[b]), "paths %q and %q collided", a, b)
		}
	}
}

func TestDerivePath_PropertyAcrossGeneratedPaths(t *testing.T) {
	master, err := seed.DeriveMasterSeed("a sufficiently long passphrase for testing", uuid.New(), testParams())
	require.NoError(t, err)

	seen := map[seed.Seed]string{}
	for i := 0; i < 1000; i++ {
		p := fmt.Sprintf("unit-%d/person-%d", i%7, i)
		s, err := seed.DerivePath(master, p)
		require.NoError(t, err)

		if existing, ok := seen[s]; ok {
			require.Equal(t, existing, p, "seed collision between %q and %q", existing, p)
		}
		seen[s] = p
	}
}

package common_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	common "github.com/TheCowboyAI/cim-keys-sub008/pkg/domain"
)

func TestLanguageRegistry_RejectsProhibitedAlias(t *testing.T) {
	r := common.NewLanguageRegistry()
	err := r.CheckAlias("permission grant")
	require.Error(t, err)
	require.Contains(t, err.Error(), "delegation")
}

func TestLanguageRegistry_AllowsCanonicalTerm(t *testing.T) {
	r := common.NewLanguageRegistry()
	require.NoError(t, r.CheckAlias("delegation"))

	term, ok := r.Lookup("delegation")
	require.True(t, ok)
	require.NotEmpty(t, term.Definition)
}

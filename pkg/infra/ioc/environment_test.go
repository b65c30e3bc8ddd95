package ioc_test

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/TheCowboyAI/cim-keys-sub008/pkg/infra/ioc"
)

func TestDefaultEngineConfig_PassesValidate(t *testing.T) {
	require.NoError(t, ioc.DefaultEngineConfig().Validate())
}

func TestEngineConfig_Validate_RejectsKdfParamsBelowFloor(t *testing.T) {
	cfg := ioc.DefaultEngineConfig()
	cfg.KdfParams.MemoryKiB = 1024
	require.Error(t, cfg.Validate())
}

func TestEngineConfig_Validate_RejectsEmptyProjectionRoot(t *testing.T) {
	cfg := ioc.DefaultEngineConfig()
	cfg.ProjectionRoot = ""
	require.Error(t, cfg.Validate())
}

func TestEngineConfig_SaveAndLoad_RoundTrips(t *testing.T) {
	cfg := ioc.DefaultEngineConfig()
	cfg.ProjectionRoot = "/mnt/removable/projection"

	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, cfg.Save(path))

	loaded, err := ioc.LoadEngineConfig(path)
	require.NoError(t, err)
	require.Equal(t, cfg.ProjectionRoot, loaded.ProjectionRoot)
	require.Equal(t, cfg.KdfParams, loaded.KdfParams)
	require.NoError(t, loaded.Validate())
}

func TestLoadEngineConfig_MissingFileErrors(t *testing.T) {
	_, err := ioc.LoadEngineConfig(filepath.Join(t.TempDir(), "does-not-exist.yaml"))
	require.Error(t, err)
}

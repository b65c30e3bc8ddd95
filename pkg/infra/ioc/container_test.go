package ioc_test

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/TheCowboyAI/cim-keys-sub008/pkg/domain/hardware"
	"github.com/TheCowboyAI/cim-keys-sub008/pkg/infra/eventbus"
	"github.com/TheCowboyAI/cim-keys-sub008/pkg/infra/ioc"
	"github.com/TheCowboyAI/cim-keys-sub008/pkg/infra/projection"
)

func TestContainerBuilder_ResolvesEveryRegisteredPort(t *testing.T) {
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

	c := b.Build()

	var resolved ioc.EngineConfig
	require.NoError(t, c.Resolve(&resolved))
	require.Equal(t, cfg.ProjectionRoot, resolved.ProjectionRoot)

	var hw hardware.TokenProvider
	require.NoError(t, c.Resolve(&hw))
	require.NotNil(t, hw)

	var bus *eventbus.Bus
	require.NoError(t, c.Resolve(&bus))
	defer bus.Close()

	var writer *projection.Writer
	require.NoError(t, c.Resolve(&writer))
	defer writer.Close()
}

func TestContainerBuilder_SatisfiesContainerInterface(t *testing.T) {
	var _ ioc.Container = ioc.NewContainerBuilder()
}

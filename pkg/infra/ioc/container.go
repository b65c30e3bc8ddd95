package ioc

import (
	"log/slog"
	"os"

	"github.com/joho/godotenv"

	container "github.com/golobby/container/v3"

	"github.com/TheCowboyAI/cim-keys-sub008/pkg/domain/hardware"
	"github.com/TheCowboyAI/cim-keys-sub008/pkg/infra/eventbus"
	"github.com/TheCowboyAI/cim-keys-sub008/pkg/infra/hardware/mock"
	"github.com/TheCowboyAI/cim-keys-sub008/pkg/infra/projection"
)

// ContainerBuilder wires this engine's ports (hardware token provider,
// event bus, projection writer, EngineConfig): one `With*` method per
// concern, each registering a singleton resolver and panicking on
// registration failure, since a container that can't even register its own
// dependencies can't run.
type ContainerBuilder struct {
	Container container.Container
}

// NewContainerBuilder constructs an empty container and registers itself so
// any later-resolved component can reach back into the builder if needed.
func NewContainerBuilder() *ContainerBuilder {
	c := container.New()

	b := &ContainerBuilder{Container: c}

	if err := c.Singleton(func() container.Container { return b.Container }); err != nil {
		slog.Error("failed to register container.Container in NewContainerBuilder")
		panic(err)
	}

	if err := c.Singleton(func() *ContainerBuilder { return b }); err != nil {
		slog.Error("failed to register *ContainerBuilder in NewContainerBuilder")
		panic(err)
	}

	return b
}

// Build returns the underlying container for resolving.
func (b *ContainerBuilder) Build() container.Container {
	return b.Container
}

// Resolve, Singleton, Transient, and Scoped forward to the underlying
// golobby container so *ContainerBuilder itself satisfies Container.
func (b *ContainerBuilder) Resolve(target interface{}) error {
	return b.Container.Resolve(target)
}

func (b *ContainerBuilder) Singleton(resolver interface{}) error {
	return b.Container.Singleton(resolver)
}

func (b *ContainerBuilder) Transient(resolver interface{}) error {
	return b.Container.Transient(resolver)
}

// golobby/container v3 has no scoped lifetime; Singleton is the closest
// available semantics and is used as a fallback.
func (b *ContainerBuilder) Scoped(resolver interface{}) error {
	return b.Container.Singleton(resolver)
}

// WithEnvFile loads a local .env file in development (DEV_ENV=true) and
// registers EngineConfig, read from CIM_KEYS_CONFIG if set or the built-in
// defaults otherwise.
func (b *ContainerBuilder) WithEnvFile() *ContainerBuilder {
	if os.Getenv("DEV_ENV") == "true" {
		if err := godotenv.Load(); err != nil {
			slog.Error("failed to load .env file")
			panic(err)
		}
	}

	err := b.Container.Singleton(func() (EngineConfig, error) {
		path := os.Getenv("CIM_KEYS_CONFIG")
		if path == "" {
			return DefaultEngineConfig(), nil
		}
		return LoadEngineConfig(path)
	})
	if err != nil {
		slog.Error("failed to register EngineConfig")
		panic(err)
	}

	return b
}

// WithHardwareProvider registers the hardware.TokenProvider the aggregate's
// ProvisionYubiKeySlot command drives. It always registers the in-memory
// mock: pcsc.New needs a Transport bound to an actual reader, which this
// container has no way to synthesize, so CIM_KEYS_HARDWARE=pcsc only logs an
// error before falling back to the mock. A deployment with a real reader
// builds pcsc.New(transport) itself instead of calling this method.
func (b *ContainerBuilder) WithHardwareProvider() *ContainerBuilder {
	c := b.Container

	err := c.Singleton(func() (hardware.TokenProvider, error) {
		if os.Getenv("CIM_KEYS_HARDWARE") == "pcsc" {
			slog.Error("CIM_KEYS_HARDWARE=pcsc requires a Transport registered ahead of WithHardwareProvider; falling back to the mock provider")
		}
		return mock.New(), nil
	})
	if err != nil {
		slog.Error("failed to register hardware.TokenProvider")
		panic(err)
	}

	return b
}

// WithEventBus starts the embedded loopback event bus and registers it as a
// singleton so every aggregate in the process shares one durable log.
func (b *ContainerBuilder) WithEventBus() *ContainerBuilder {
	c := b.Container

	err := c.Singleton(func() (*eventbus.Bus, error) {
		var cfg EngineConfig
		if err := c.Resolve(&cfg); err != nil {
			slog.Error("failed to resolve EngineConfig for WithEventBus", "err", err)
			return nil, err
		}
		return eventbus.Start(cfg.EventBusConfig())
	})
	if err != nil {
		slog.Error("failed to register *eventbus.Bus")
		panic(err)
	}

	return b
}

// WithProjectionWriter registers the on-disk projection materializer,
// opened (and locked) at EngineConfig.ProjectionRoot.
func (b *ContainerBuilder) WithProjectionWriter() *ContainerBuilder {
	c := b.Container

	err := c.Singleton(func() (*projection.Writer, error) {
		var cfg EngineConfig
		if err := c.Resolve(&cfg); err != nil {
			slog.Error("failed to resolve EngineConfig for WithProjectionWriter", "err", err)
			return nil, err
		}
		return projection.NewWriter(cfg.ProjectionRoot)
	})
	if err != nil {
		slog.Error("failed to register *projection.Writer")
		panic(err)
	}

	return b
}

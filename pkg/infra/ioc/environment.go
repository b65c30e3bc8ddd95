package ioc

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/TheCowboyAI/cim-keys-sub008/pkg/domain/seed"
	"github.com/TheCowboyAI/cim-keys-sub008/pkg/infra/eventbus"
)

// EngineConfig is the `bootstrap`/`validate-config`/`create-example-config`/
// `show-config` config file schema: KDF parameters, CA validity windows, the
// loopback event-bus bind address, and the projection root path. The
// validity-window fields are loaded and saved with the file but certificate
// issuance does not read them: it uses pkicrypto's fixed RootValidity,
// IntermediateValidity and LeafValidity.
type EngineConfig struct {
	KdfParams seed.KdfParams `yaml:"kdf_params"`

	RootCAValidity         time.Duration `yaml:"root_ca_validity"`
	IntermediateCAValidity time.Duration `yaml:"intermediate_ca_validity"`
	LeafValidity           time.Duration `yaml:"leaf_validity"`

	EventBusHost string `yaml:"event_bus_host"`
	EventBusPort int    `yaml:"event_bus_port"`

	ProjectionRoot string `yaml:"projection_root"`
}

// DefaultEngineConfig returns the engine defaults: a 1 GiB/10-iteration
// Argon2id floor, root/intermediate/leaf validity windows of 20y/3y/90d,
// and a loopback event bus on an OS-assigned ephemeral port.
func DefaultEngineConfig() EngineConfig {
	return EngineConfig{
		KdfParams:              seed.DefaultKdfParams(),
		RootCAValidity:         20 * 365 * 24 * time.Hour,
		IntermediateCAValidity: 3 * 365 * 24 * time.Hour,
		LeafValidity:           90 * 24 * time.Hour,
		EventBusHost:           "127.0.0.1",
		EventBusPort:           -1,
		ProjectionRoot:         "./projection",
	}
}

// EventBusConfig projects the subset of EngineConfig eventbus.Start needs.
func (c EngineConfig) EventBusConfig() eventbus.Config {
	return eventbus.Config{Host: c.EventBusHost, Port: c.EventBusPort}
}

// LoadEngineConfig reads path as YAML into a EngineConfig seeded with
// DefaultEngineConfig, so a config file only needs to override what it cares
// about.
func LoadEngineConfig(path string) (EngineConfig, error) {
	cfg := DefaultEngineConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return EngineConfig{}, fmt.Errorf("ioc: read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return EngineConfig{}, fmt.Errorf("ioc: parse config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate reports the first config error found, matching the
// `validate-config` CLI command's exit-2-on-invalid contract.
func (c EngineConfig) Validate() error {
	floor := seed.DefaultKdfParams()
	if c.KdfParams.MemoryKiB < floor.MemoryKiB {
		return fmt.Errorf("ioc: kdf_params memory below the %d KiB floor", floor.MemoryKiB)
	}
	if c.KdfParams.Iterations < floor.Iterations {
		return fmt.Errorf("ioc: kdf_params.iterations below the %d floor", floor.Iterations)
	}
	if c.ProjectionRoot == "" {
		return fmt.Errorf("ioc: projection_root must not be empty")
	}
	return nil
}

// Save writes cfg to path as YAML, the implementation behind
// `create-example-config`.
func (c EngineConfig) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("ioc: marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("ioc: write config %s: %w", path, err)
	}
	return nil
}

package main

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/yanet-platform/softrouter/common/go/logging"
	"github.com/yanet-platform/softrouter/devices/afpacket"
	router "github.com/yanet-platform/softrouter/modules/router/controlplane"
)

type Config config
type config struct {
	// Logging configuration.
	Logging logging.Config `yaml:"logging"`
	// Router configuration.
	Router *router.Config `yaml:"router"`
	// Device configuration.
	Device *afpacket.Config `yaml:"device"`
}

func DefaultConfig() *Config {
	return &Config{
		Logging: logging.DefaultConfig(),
		Router:  router.DefaultConfig(),
		Device:  afpacket.DefaultConfig(),
	}
}

// LoadConfig loads the configuration from the given path.
func LoadConfig(path string) (*Config, error) {
	buf, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(buf, cfg); err != nil {
		return nil, fmt.Errorf("failed to deserialize config: %w", err)
	}

	return cfg, nil
}

// UnmarshalYAML serves as a proxy for validation.
//
// The wrapper decodes into the private config struct, which has no
// unmarshal method, so decoding does not recurse.
func (m *Config) UnmarshalYAML(value *yaml.Node) error {
	if err := value.Decode((*config)(m)); err != nil {
		return err
	}
	return m.Validate()
}

// Validate validates the configuration.
func (m *Config) Validate() error {
	if m.Router == nil {
		return fmt.Errorf("router is not configured")
	}
	if err := m.Router.Validate(); err != nil {
		return fmt.Errorf("router: %w", err)
	}
	if m.Device == nil {
		return fmt.Errorf("device is not configured")
	}
	if err := m.Device.Validate(); err != nil {
		return fmt.Errorf("device: %w", err)
	}
	return nil
}

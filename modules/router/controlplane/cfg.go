package router

import (
	"fmt"
	"time"
)

// Config is the router module configuration.
type Config struct {
	// RouteTable is the path to the static route table file.
	//
	// Lines are "destination mask gateway interface".
	RouteTable string `yaml:"route_table"`
	// ARPCache is the path to the static ARP cache file.
	//
	// Lines are "ip link-address".
	ARPCache string `yaml:"arp_cache"`
	// Resolve configures next hop link address resolution.
	Resolve ResolveConfig `yaml:"resolve"`
	// RIP configures dynamic routing.
	RIP RIPConfig `yaml:"rip"`
}

// ResolveConfig configures the pending resolution queue.
type ResolveConfig struct {
	// PollInterval is how often pending resolutions are checked.
	PollInterval time.Duration `yaml:"poll_interval"`
	// RetryInterval is the minimum time between two resolution attempts.
	RetryInterval time.Duration `yaml:"retry_interval"`
	// MaxAttempts is the number of resolution requests sent before the
	// waiting packets are dropped.
	MaxAttempts int `yaml:"max_attempts"`
}

// RIPConfig configures the RIP engine.
type RIPConfig struct {
	// Enabled turns dynamic routing on or off.
	//
	// When unset, dynamic routing runs only if no static route table is
	// configured.
	Enabled *bool `yaml:"enabled"`
	// TickInterval is how often learned routes are checked for expiration.
	TickInterval time.Duration `yaml:"tick_interval"`
	// RouteTTL is how long a learned route lives without refresh.
	RouteTTL time.Duration `yaml:"route_ttl"`
	// UpdateInterval is the periodic full table broadcast interval.
	UpdateInterval time.Duration `yaml:"update_interval"`
}

// DefaultConfig returns the default router module configuration.
func DefaultConfig() *Config {
	return &Config{
		Resolve: ResolveConfig{
			PollInterval:  500 * time.Millisecond,
			RetryInterval: time.Second,
			MaxAttempts:   3,
		},
		RIP: RIPConfig{
			TickInterval:   time.Second,
			RouteTTL:       30 * time.Second,
			UpdateInterval: 10 * time.Second,
		},
	}
}

// RIPEnabled reports whether dynamic routing should run.
func (m *Config) RIPEnabled() bool {
	if m.RIP.Enabled != nil {
		return *m.RIP.Enabled
	}
	return m.RouteTable == ""
}

// Validate validates the router configuration.
func (m *Config) Validate() error {
	if err := m.Resolve.Validate(); err != nil {
		return fmt.Errorf("resolve: %w", err)
	}
	if err := m.RIP.Validate(); err != nil {
		return fmt.Errorf("rip: %w", err)
	}
	return nil
}

func (m *ResolveConfig) Validate() error {
	if m.PollInterval <= 0 {
		return fmt.Errorf("poll interval must be positive")
	}
	if m.RetryInterval < 0 {
		return fmt.Errorf("retry interval must not be negative")
	}
	if m.MaxAttempts < 1 {
		return fmt.Errorf("max attempts must be at least 1")
	}
	return nil
}

func (m *RIPConfig) Validate() error {
	if m.TickInterval <= 0 {
		return fmt.Errorf("tick interval must be positive")
	}
	if m.UpdateInterval <= 0 {
		return fmt.Errorf("update interval must be positive")
	}
	if m.RouteTTL <= 0 {
		return fmt.Errorf("route TTL must be positive")
	}
	return nil
}

package router

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())
	require.True(t, cfg.RIPEnabled())
}

func TestRIPEnabled(t *testing.T) {
	on, off := true, false

	tests := []struct {
		name       string
		routeTable string
		enabled    *bool
		expected   bool
	}{
		{name: "no route table", expected: true},
		{name: "route table", routeTable: "/etc/softrouter/rtable", expected: false},
		{name: "forced on", routeTable: "/etc/softrouter/rtable", enabled: &on, expected: true},
		{name: "forced off", enabled: &off, expected: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			cfg.RouteTable = tt.routeTable
			cfg.RIP.Enabled = tt.enabled
			require.Equal(t, tt.expected, cfg.RIPEnabled())
		})
	}
}

func TestConfigFromYAML(t *testing.T) {
	input := `
route_table: /etc/softrouter/rtable
resolve:
  retry_interval: 2s
rip:
  enabled: true
  route_ttl: 1m
`
	cfg := DefaultConfig()
	require.NoError(t, yaml.Unmarshal([]byte(input), cfg))
	require.NoError(t, cfg.Validate())

	require.Equal(t, "/etc/softrouter/rtable", cfg.RouteTable)
	require.Equal(t, 2*time.Second, cfg.Resolve.RetryInterval)
	require.Equal(t, 500*time.Millisecond, cfg.Resolve.PollInterval)
	require.Equal(t, time.Minute, cfg.RIP.RouteTTL)
	require.True(t, cfg.RIPEnabled())
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(cfg *Config)
	}{
		{name: "zero poll interval", modify: func(cfg *Config) { cfg.Resolve.PollInterval = 0 }},
		{name: "no attempts", modify: func(cfg *Config) { cfg.Resolve.MaxAttempts = 0 }},
		{name: "zero tick interval", modify: func(cfg *Config) { cfg.RIP.TickInterval = 0 }},
		{name: "zero update interval", modify: func(cfg *Config) { cfg.RIP.UpdateInterval = 0 }},
		{name: "zero route TTL", modify: func(cfg *Config) { cfg.RIP.RouteTTL = 0 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.modify(cfg)
			require.Error(t, cfg.Validate())
		})
	}
}

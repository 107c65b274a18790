package afpacket

import (
	"testing"

	"github.com/c2h5oh/datasize"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestDefaultConfigIsValid(t *testing.T) {
	require.NoError(t, DefaultConfig().Validate())
}

func TestConfigFromYAML(t *testing.T) {
	input := `
interfaces: ["eth*", "ens1f?"]
recv_buffer_size: 8MB
snaplen: 2KB
`
	cfg := DefaultConfig()
	require.NoError(t, yaml.Unmarshal([]byte(input), cfg))
	require.NoError(t, cfg.Validate())
	require.Equal(t, 8*datasize.MB, cfg.RecvBufferSize)
	require.Equal(t, 2*datasize.KB, cfg.Snaplen)

	patterns, err := cfg.patterns()
	require.NoError(t, err)
	require.True(t, matchAny(patterns, "eth0"))
	require.True(t, matchAny(patterns, "ens1f1"))
	require.False(t, matchAny(patterns, "ens1f10"))
	require.False(t, matchAny(patterns, "wlan0"))
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(cfg *Config)
	}{
		{name: "no patterns", modify: func(cfg *Config) { cfg.Interfaces = nil }},
		{name: "bad pattern", modify: func(cfg *Config) { cfg.Interfaces = []string{"eth[0"} }},
		{name: "tiny snaplen", modify: func(cfg *Config) { cfg.Snaplen = 14 }},
		{name: "no buffer", modify: func(cfg *Config) { cfg.RecvBufferSize = 0 }},
		{name: "no timeout", modify: func(cfg *Config) { cfg.ReadTimeout = 0 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.modify(cfg)
			require.Error(t, cfg.Validate())
		})
	}
}

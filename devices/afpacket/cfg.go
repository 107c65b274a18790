package afpacket

import (
	"fmt"
	"time"

	"github.com/c2h5oh/datasize"
	"github.com/gobwas/glob"
)

// Config represents AF_PACKET device configuration.
type Config struct {
	// Interfaces are glob patterns selecting the links to route between,
	// e.g. "eth*". Loopback links are never selected.
	Interfaces []string `yaml:"interfaces"`
	// RecvBufferSize is the kernel receive buffer size of every socket.
	RecvBufferSize datasize.ByteSize `yaml:"recv_buffer_size"`
	// Snaplen is the maximum number of bytes read per frame.
	Snaplen datasize.ByteSize `yaml:"snaplen"`
	// ReadTimeout bounds a single blocking read, so readers notice
	// cancellation.
	ReadTimeout time.Duration `yaml:"read_timeout"`
}

func DefaultConfig() *Config {
	return &Config{
		Interfaces:     []string{"*"},
		RecvBufferSize: 4 * datasize.MB,
		Snaplen:        64 * datasize.KB,
		ReadTimeout:    100 * time.Millisecond,
	}
}

// Validate checks if the configuration is valid.
func (m *Config) Validate() error {
	if len(m.Interfaces) == 0 {
		return fmt.Errorf("at least one interface pattern is required")
	}
	if _, err := m.patterns(); err != nil {
		return err
	}
	if m.Snaplen < 64*datasize.B || m.Snaplen > 256*datasize.KB {
		return fmt.Errorf("snaplen %s is out of range [64B, 256KB]", m.Snaplen)
	}
	if m.RecvBufferSize == 0 {
		return fmt.Errorf("receive buffer size must be greater than 0")
	}
	if m.ReadTimeout <= 0 {
		return fmt.Errorf("read timeout must be positive")
	}
	return nil
}

func (m *Config) patterns() ([]glob.Glob, error) {
	patterns := make([]glob.Glob, 0, len(m.Interfaces))
	for _, pattern := range m.Interfaces {
		g, err := glob.Compile(pattern)
		if err != nil {
			return nil, fmt.Errorf("invalid interface pattern %q: %w", pattern, err)
		}
		patterns = append(patterns, g)
	}
	return patterns, nil
}

// matchAny reports whether the name matches at least one pattern.
func matchAny(patterns []glob.Glob, name string) bool {
	for _, g := range patterns {
		if g.Match(name) {
			return true
		}
	}
	return false
}

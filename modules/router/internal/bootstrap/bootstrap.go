// Package bootstrap loads the static route table and ARP cache files.
package bootstrap

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"net"
	"net/netip"
	"os"
	"strings"

	"github.com/yanet-platform/softrouter/common/go/xnetip"
	"github.com/yanet-platform/softrouter/modules/router/internal/discovery/neigh"
	"github.com/yanet-platform/softrouter/modules/router/internal/rib"
)

// ErrMalformedLine is returned for lines that cannot be parsed.
var ErrMalformedLine = errors.New("malformed line")

// LineError describes a parse failure at a specific line of a file.
type LineError struct {
	File string
	Line int
	Err  error
}

func (m *LineError) Error() string {
	return fmt.Sprintf("%s:%d: %v", m.File, m.Line, m.Err)
}

func (m *LineError) Unwrap() error {
	return m.Err
}

// LoadRoutes reads the route table file.
func LoadRoutes(path string) ([]rib.Route, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open route table: %w", err)
	}
	defer f.Close()

	return ParseRoutes(f, path)
}

// ParseRoutes parses route table lines of the form
// "destination mask gateway interface".
//
// Routes are static, so they have zero cost and never expire.
func ParseRoutes(r io.Reader, name string) ([]rib.Route, error) {
	routes := []rib.Route{}

	err := scanLines(r, name, func(fields []string) error {
		if len(fields) != 4 {
			return fmt.Errorf("%w: expected 4 fields, got %d", ErrMalformedLine, len(fields))
		}

		dst, err := parseIPv4(fields[0])
		if err != nil {
			return fmt.Errorf("destination: %w", err)
		}
		mask, err := parseIPv4(fields[1])
		if err != nil {
			return fmt.Errorf("mask: %w", err)
		}
		gateway, err := parseIPv4(fields[2])
		if err != nil {
			return fmt.Errorf("gateway: %w", err)
		}

		n, err := xnetip.NewNetWithMask(dst, mask)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrMalformedLine, err)
		}
		prefix, err := n.ToPrefix()
		if err != nil {
			return fmt.Errorf("%w: %v", ErrMalformedLine, err)
		}

		routes = append(routes, rib.Route{
			Prefix:    prefix,
			Gateway:   gateway,
			Interface: fields[3],
			SourceID:  rib.RouteSourceStatic,
		})
		return nil
	})
	if err != nil {
		return nil, err
	}

	return routes, nil
}

// LoadNeighbours reads the ARP cache file.
func LoadNeighbours(path string) ([]neigh.NeighbourEntry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open ARP cache: %w", err)
	}
	defer f.Close()

	return ParseNeighbours(f, path)
}

// ParseNeighbours parses ARP cache lines of the form "ip link-address".
func ParseNeighbours(r io.Reader, name string) ([]neigh.NeighbourEntry, error) {
	entries := []neigh.NeighbourEntry{}

	err := scanLines(r, name, func(fields []string) error {
		if len(fields) != 2 {
			return fmt.Errorf("%w: expected 2 fields, got %d", ErrMalformedLine, len(fields))
		}

		addr, err := parseIPv4(fields[0])
		if err != nil {
			return err
		}
		hw, err := net.ParseMAC(fields[1])
		if err != nil || len(hw) != 6 {
			return fmt.Errorf("%w: invalid link address %q", ErrMalformedLine, fields[1])
		}

		entry := neigh.NeighbourEntry{
			NextHop: addr,
			State:   neigh.StatePermanent,
		}
		copy(entry.HardwareAddr[:], hw)
		entries = append(entries, entry)
		return nil
	})
	if err != nil {
		return nil, err
	}

	return entries, nil
}

func scanLines(r io.Reader, name string, fn func(fields []string) error) error {
	scanner := bufio.NewScanner(r)

	line := 0
	for scanner.Scan() {
		line++

		text := scanner.Text()
		if idx := strings.IndexByte(text, '#'); idx >= 0 {
			text = text[:idx]
		}
		fields := strings.Fields(text)
		if len(fields) == 0 {
			continue
		}

		if err := fn(fields); err != nil {
			return &LineError{File: name, Line: line, Err: err}
		}
	}

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("failed to read %s: %w", name, err)
	}
	return nil
}

func parseIPv4(s string) (netip.Addr, error) {
	addr, err := netip.ParseAddr(s)
	if err != nil || !addr.Is4() {
		return netip.Addr{}, fmt.Errorf("%w: invalid IPv4 address %q", ErrMalformedLine, s)
	}
	return addr, nil
}

// Package devicetest provides an in-memory device for tests.
package devicetest

import (
	"fmt"
	"net"
	"net/netip"
	"slices"
	"sync"
	"testing"

	"github.com/gopacket/gopacket"
	"github.com/stretchr/testify/require"

	"github.com/yanet-platform/softrouter/common/go/device"
	"github.com/yanet-platform/softrouter/common/go/xpacket"
)

// Sent is a frame captured by the Recorder.
type Sent struct {
	Iface  string
	Frame  *device.Frame
	Packet gopacket.Packet
}

// Recorder is a device that captures every transmitted frame.
//
// Frames are serialized at transmit time and decoded back, so tests observe
// exactly what would have been put on the wire.
type Recorder struct {
	mu     sync.Mutex
	ifaces []device.Interface
	sent   []Sent
}

// NewRecorder creates a recorder with the given interfaces.
func NewRecorder(ifaces ...device.Interface) *Recorder {
	return &Recorder{ifaces: ifaces}
}

// Iface is a shortcut for constructing interfaces in tests.
func Iface(name string, prefix string, mac string) device.Interface {
	p := netip.MustParsePrefix(prefix)
	hw, err := net.ParseMAC(mac)
	if err != nil {
		panic(err)
	}
	return device.Interface{
		Name:         name,
		Addr:         p.Addr(),
		Prefix:       p,
		HardwareAddr: hw,
	}
}

func (m *Recorder) Interfaces() []device.Interface {
	return slices.Clone(m.ifaces)
}

func (m *Recorder) Transmit(iface string, frame *device.Frame) error {
	if !slices.ContainsFunc(m.ifaces, func(i device.Interface) bool { return i.Name == iface }) {
		return fmt.Errorf("unknown interface %q", iface)
	}

	data, err := frame.Serialize()
	if err != nil {
		return err
	}
	decoded, err := device.DecodeFrame(data)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, Sent{Iface: iface, Frame: decoded, Packet: xpacket.ParseEtherPacket(data)})
	return nil
}

// Sent returns captured frames in transmit order.
func (m *Recorder) Sent() []Sent {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.sent)
}

// Take returns captured frames and forgets them.
func (m *Recorder) Take() []Sent {
	m.mu.Lock()
	defer m.mu.Unlock()
	sent := m.sent
	m.sent = nil
	return sent
}

// RequireNone fails the test if anything was transmitted.
func (m *Recorder) RequireNone(t *testing.T) {
	t.Helper()
	sent := m.Sent()
	require.Empty(t, sent, "unexpected frames: %v", sent)
}

// RequireOne fails the test unless exactly one frame was transmitted, which
// is then returned and forgotten.
func (m *Recorder) RequireOne(t *testing.T) Sent {
	t.Helper()
	sent := m.Take()
	require.Len(t, sent, 1, "frames: %v", sent)
	return sent[0]
}

func (m Sent) String() string {
	return fmt.Sprintf("%s: %s", m.Iface, m.Packet)
}

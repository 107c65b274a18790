package rip

import (
	"encoding/binary"
	"errors"
	"fmt"
	"net/netip"

	"github.com/gopacket/gopacket"
	"github.com/gopacket/gopacket/layers"

	"github.com/yanet-platform/softrouter/common/go/xnetip"
)

const (
	// Port is the well-known RIP UDP port.
	Port = 520
	// Version is the only supported protocol version.
	Version = 2
	// Infinity is the metric denoting an unreachable destination.
	Infinity = 16
	// MaxEntries is the maximum number of route entries in a single message.
	MaxEntries = 25
	// AddressFamilyIPv4 is the address family identifier of IPv4 entries.
	AddressFamilyIPv4 = 2

	headerLen = 4
	entryLen  = 20
)

// MulticastAddr is the RIPv2 routers group address.
var MulticastAddr = netip.AddrFrom4([4]byte{224, 0, 0, 9})

// LayerTypeRIP is the gopacket layer type of RIPv2 messages.
var LayerTypeRIP = gopacket.RegisterLayerType(2520, gopacket.LayerTypeMetadata{
	Name:    "RIPv2",
	Decoder: gopacket.DecodeFunc(decodeRIP),
})

var errTruncated = errors.New("truncated RIP message")

// Command is the RIP message command.
type Command uint8

const (
	CommandRequest  Command = 1
	CommandResponse Command = 2
)

func (m Command) String() string {
	switch m {
	case CommandRequest:
		return "request"
	case CommandResponse:
		return "response"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(m))
	}
}

// Entry is a single route entry of a RIPv2 message.
type Entry struct {
	Family  uint16
	Tag     uint16
	Addr    netip.Addr
	Mask    netip.Addr
	NextHop netip.Addr
	Metric  uint32
}

// NewEntry creates an IPv4 route entry for the prefix.
func NewEntry(prefix netip.Prefix, nextHop netip.Addr, metric uint32) Entry {
	if !nextHop.IsValid() {
		nextHop = netip.IPv4Unspecified()
	}

	return Entry{
		Family:  AddressFamilyIPv4,
		Addr:    prefix.Masked().Addr(),
		Mask:    xnetip.FromPrefix(prefix).MaskAddr(),
		NextHop: nextHop,
		Metric:  metric,
	}
}

// WholeTableEntry is the single entry of a request asking for the entire
// routing table.
func WholeTableEntry() Entry {
	return Entry{
		Addr:    netip.IPv4Unspecified(),
		Mask:    netip.IPv4Unspecified(),
		NextHop: netip.IPv4Unspecified(),
		Metric:  Infinity,
	}
}

// Prefix returns the destination network of the entry.
func (m Entry) Prefix() (netip.Prefix, error) {
	n, err := xnetip.NewNetWithMask(m.Addr, m.Mask)
	if err != nil {
		return netip.Prefix{}, err
	}
	return n.ToPrefix()
}

// RIP is a RIPv2 message as carried in a UDP datagram.
type RIP struct {
	layers.BaseLayer
	Command Command
	Version uint8
	Entries []Entry
}

func (m *RIP) LayerType() gopacket.LayerType {
	return LayerTypeRIP
}

func (m *RIP) CanDecode() gopacket.LayerClass {
	return LayerTypeRIP
}

func (m *RIP) NextLayerType() gopacket.LayerType {
	return gopacket.LayerTypeZero
}

func (m *RIP) DecodeFromBytes(data []byte, df gopacket.DecodeFeedback) error {
	if len(data) < headerLen {
		df.SetTruncated()
		return errTruncated
	}
	if (len(data)-headerLen)%entryLen != 0 {
		df.SetTruncated()
		return fmt.Errorf("%w: %d bytes of entries", errTruncated, len(data)-headerLen)
	}

	m.Command = Command(data[0])
	m.Version = data[1]
	m.Entries = make([]Entry, 0, (len(data)-headerLen)/entryLen)

	for offset := headerLen; offset < len(data); offset += entryLen {
		b := data[offset : offset+entryLen]
		m.Entries = append(m.Entries, Entry{
			Family:  binary.BigEndian.Uint16(b[0:2]),
			Tag:     binary.BigEndian.Uint16(b[2:4]),
			Addr:    netip.AddrFrom4([4]byte(b[4:8])),
			Mask:    netip.AddrFrom4([4]byte(b[8:12])),
			NextHop: netip.AddrFrom4([4]byte(b[12:16])),
			Metric:  binary.BigEndian.Uint32(b[16:20]),
		})
	}

	m.BaseLayer = layers.BaseLayer{Contents: data}
	return nil
}

func (m *RIP) SerializeTo(b gopacket.SerializeBuffer, opts gopacket.SerializeOptions) error {
	if len(m.Entries) > MaxEntries {
		return fmt.Errorf("too many RIP entries: %d > %d", len(m.Entries), MaxEntries)
	}

	data, err := b.PrependBytes(headerLen + entryLen*len(m.Entries))
	if err != nil {
		return err
	}

	data[0] = byte(m.Command)
	data[1] = m.Version
	data[2], data[3] = 0, 0

	for idx, entry := range m.Entries {
		e := data[headerLen+idx*entryLen:]
		binary.BigEndian.PutUint16(e[0:2], entry.Family)
		binary.BigEndian.PutUint16(e[2:4], entry.Tag)
		putAddr(e[4:8], entry.Addr)
		putAddr(e[8:12], entry.Mask)
		putAddr(e[12:16], entry.NextHop)
		binary.BigEndian.PutUint32(e[16:20], entry.Metric)
	}

	return nil
}

// DecodeRIP decodes a RIP message from a UDP payload.
func DecodeRIP(data []byte) (*RIP, error) {
	m := &RIP{}
	if err := m.DecodeFromBytes(data, gopacket.NilDecodeFeedback); err != nil {
		return nil, err
	}
	return m, nil
}

func decodeRIP(data []byte, p gopacket.PacketBuilder) error {
	m := &RIP{}
	if err := m.DecodeFromBytes(data, p); err != nil {
		return err
	}
	p.AddLayer(m)
	return nil
}

func putAddr(b []byte, addr netip.Addr) {
	if !addr.Is4() {
		copy(b, []byte{0, 0, 0, 0})
		return
	}
	a := addr.As4()
	copy(b, a[:])
}

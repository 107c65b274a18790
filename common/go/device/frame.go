package device

import (
	"errors"
	"fmt"

	"github.com/gopacket/gopacket"
	"github.com/gopacket/gopacket/layers"

	"github.com/yanet-platform/softrouter/common/go/xpacket"
)

var (
	// ErrMalformed is returned when a frame cannot be decoded.
	ErrMalformed = errors.New("malformed frame")
	// ErrUnsupported is returned for frames that are neither IPv4 nor ARP.
	ErrUnsupported = errors.New("unsupported ethernet type")
)

// Frame is an Ethernet frame carrying either an ARP or an IPv4 packet.
//
// Headers are kept as mutable gopacket layers. Everything above the network
// header lives in Upper and is serialized verbatim, so forwarded transport
// payloads are never re-encoded.
type Frame struct {
	Ethernet *layers.Ethernet
	ARP      *layers.ARP
	IPv4     *layers.IPv4
	// Upper holds the layers above the network header.
	Upper []gopacket.SerializableLayer

	// packet is the decoded source of an inbound frame, nil for frames built
	// locally.
	packet gopacket.Packet
}

// DecodeFrame decodes wire bytes into a frame.
func DecodeFrame(data []byte) (*Frame, error) {
	return FrameFromPacket(xpacket.ParseEtherPacket(data))
}

// FrameFromPacket builds a frame from an already decoded packet.
func FrameFromPacket(pkt gopacket.Packet) (*Frame, error) {
	eth, ok := pkt.Layer(layers.LayerTypeEthernet).(*layers.Ethernet)
	if !ok {
		return nil, fmt.Errorf("%w: no ethernet header", ErrMalformed)
	}

	frame := &Frame{
		Ethernet: eth,
		packet:   pkt,
	}

	switch eth.EthernetType {
	case layers.EthernetTypeARP:
		arp, ok := pkt.Layer(layers.LayerTypeARP).(*layers.ARP)
		if !ok || pkt.ErrorLayer() != nil {
			return nil, fmt.Errorf("%w: truncated ARP payload", ErrMalformed)
		}
		frame.ARP = arp
	case layers.EthernetTypeIPv4:
		ip, ok := pkt.Layer(layers.LayerTypeIPv4).(*layers.IPv4)
		if !ok {
			return nil, fmt.Errorf("%w: truncated IPv4 header", ErrMalformed)
		}
		// The packet keeps a partially decoded layer on failure, and a failure
		// above the network header must not reject transit traffic, so the
		// header is validated on its own.
		hdr := layers.IPv4{}
		if err := hdr.DecodeFromBytes(eth.Payload, gopacket.NilDecodeFeedback); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
		}
		frame.IPv4 = ip
		frame.Upper = []gopacket.SerializableLayer{gopacket.Payload(ip.Payload)}
		if frame.Truncated() {
			return nil, fmt.Errorf("%w: IPv4 total length %d exceeds %d captured bytes",
				ErrMalformed, ip.Length, len(ip.Contents)+len(ip.Payload))
		}
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupported, eth.EthernetType)
	}

	return frame, nil
}

// NewIPv4Frame builds a locally originated IPv4 frame.
//
// Link addresses are left for the forwarding path to fill in.
func NewIPv4Frame(ip *layers.IPv4, upper ...gopacket.SerializableLayer) *Frame {
	return &Frame{
		Ethernet: &layers.Ethernet{EthernetType: layers.EthernetTypeIPv4},
		IPv4:     ip,
		Upper:    upper,
	}
}

// Layers returns the serializable layers of the frame, outermost first.
func (m *Frame) Layers() []gopacket.SerializableLayer {
	lyrs := []gopacket.SerializableLayer{m.Ethernet}
	switch {
	case m.ARP != nil:
		lyrs = append(lyrs, m.ARP)
	case m.IPv4 != nil:
		lyrs = append(lyrs, m.IPv4)
		lyrs = append(lyrs, m.Upper...)
	}
	return lyrs
}

// Serialize encodes the frame into wire bytes.
func (m *Frame) Serialize() ([]byte, error) {
	return xpacket.Serialize(m.Layers()...)
}

// ICMPv4 returns the ICMPv4 header of the frame, if any.
func (m *Frame) ICMPv4() (*layers.ICMPv4, bool) {
	return upperLayer[*layers.ICMPv4](m, layers.LayerTypeICMPv4)
}

// UDP returns the UDP header of the frame, if any.
func (m *Frame) UDP() (*layers.UDP, bool) {
	return upperLayer[*layers.UDP](m, layers.LayerTypeUDP)
}

// Truncated reports whether the IPv4 packet of an inbound frame carries fewer
// bytes than its total length claims.
func (m *Frame) Truncated() bool {
	if m.IPv4 == nil || m.packet == nil {
		return false
	}
	return int(m.IPv4.Length) > len(m.IPv4.Contents)+len(m.IPv4.Payload)
}

func upperLayer[T gopacket.Layer](m *Frame, layerType gopacket.LayerType) (T, bool) {
	for _, l := range m.Upper {
		if v, ok := l.(T); ok {
			return v, true
		}
	}

	if m.packet != nil {
		if v, ok := m.packet.Layer(layerType).(T); ok {
			return v, true
		}
	}

	var zero T
	return zero, false
}

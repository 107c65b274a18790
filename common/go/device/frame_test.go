package device

import (
	"net"
	"testing"

	"github.com/gopacket/gopacket"
	"github.com/gopacket/gopacket/layers"
	"github.com/stretchr/testify/require"

	"github.com/yanet-platform/softrouter/common/go/xpacket"
)

func udpLayers() []gopacket.SerializableLayer {
	eth := &layers.Ethernet{
		SrcMAC:       net.HardwareAddr{0x00, 0x00, 0x00, 0x00, 0x00, 0x01},
		DstMAC:       net.HardwareAddr{0x00, 0x11, 0x22, 0x33, 0x44, 0x55},
		EthernetType: layers.EthernetTypeIPv4,
	}
	ip := &layers.IPv4{
		Version:  4,
		IHL:      5,
		TTL:      17,
		Protocol: layers.IPProtocolUDP,
		SrcIP:    net.IPv4(10, 0, 1, 5),
		DstIP:    net.IPv4(10, 0, 3, 9),
	}
	udp := &layers.UDP{SrcPort: 4000, DstPort: 5000}
	udp.SetNetworkLayerForChecksum(ip)

	return []gopacket.SerializableLayer{eth, ip, udp, gopacket.Payload("hello")}
}

func TestDecodeIPv4Frame(t *testing.T) {
	pkt := xpacket.LayersToPacket(t, udpLayers()...)

	frame, err := DecodeFrame(pkt.Data())
	require.NoError(t, err)
	require.NotNil(t, frame.IPv4)
	require.Nil(t, frame.ARP)
	require.EqualValues(t, 17, frame.IPv4.TTL)

	udp, ok := frame.UDP()
	require.True(t, ok)
	require.EqualValues(t, 5000, udp.DstPort)
	require.Equal(t, []byte("hello"), udp.Payload)

	_, ok = frame.ICMPv4()
	require.False(t, ok)
}

func TestForwardedPayloadIsPreserved(t *testing.T) {
	pkt := xpacket.LayersToPacket(t, udpLayers()...)
	frame, err := DecodeFrame(pkt.Data())
	require.NoError(t, err)

	frame.IPv4.TTL--
	frame.Ethernet.DstMAC = net.HardwareAddr{0xaa, 0xbb, 0xcc, 0xdd, 0xee, 0xff}

	data, err := frame.Serialize()
	require.NoError(t, err)

	out := xpacket.ParseEtherPacket(data)
	ip := out.Layer(layers.LayerTypeIPv4).(*layers.IPv4)
	require.EqualValues(t, 16, ip.TTL)
	_, res := ip.VerifyChecksum()
	require.True(t, res.Valid)

	orig := pkt.Layer(layers.LayerTypeUDP).(*layers.UDP)
	udp := out.Layer(layers.LayerTypeUDP).(*layers.UDP)
	require.Equal(t, orig.Checksum, udp.Checksum)
	require.Equal(t, orig.Payload, udp.Payload)
}

func TestDecodeARPFrame(t *testing.T) {
	pkt := xpacket.LayersToPacket(t,
		&layers.Ethernet{
			SrcMAC:       net.HardwareAddr{0x00, 0x00, 0x00, 0x00, 0x00, 0x01},
			DstMAC:       layers.EthernetBroadcast,
			EthernetType: layers.EthernetTypeARP,
		},
		&layers.ARP{
			AddrType:          layers.LinkTypeEthernet,
			Protocol:          layers.EthernetTypeIPv4,
			HwAddressSize:     6,
			ProtAddressSize:   4,
			Operation:         layers.ARPRequest,
			SourceHwAddress:   []byte{0x00, 0x00, 0x00, 0x00, 0x00, 0x01},
			SourceProtAddress: []byte{10, 0, 1, 5},
			DstHwAddress:      []byte{0, 0, 0, 0, 0, 0},
			DstProtAddress:    []byte{10, 0, 1, 1},
		},
	)

	frame, err := DecodeFrame(pkt.Data())
	require.NoError(t, err)
	require.NotNil(t, frame.ARP)
	require.Nil(t, frame.IPv4)
	require.EqualValues(t, layers.ARPRequest, frame.ARP.Operation)
}

func TestDecodeUnsupportedFrame(t *testing.T) {
	data, err := xpacket.Serialize(
		&layers.Ethernet{
			SrcMAC:       net.HardwareAddr{0x00, 0x00, 0x00, 0x00, 0x00, 0x01},
			DstMAC:       layers.EthernetBroadcast,
			EthernetType: layers.EthernetTypeIPv6,
		},
		&layers.IPv6{
			Version:    6,
			NextHeader: layers.IPProtocolNoNextHeader,
			HopLimit:   64,
			SrcIP:      net.ParseIP("fe80::1"),
			DstIP:      net.ParseIP("ff02::1"),
		},
	)
	require.NoError(t, err)

	_, err = DecodeFrame(data)
	require.ErrorIs(t, err, ErrUnsupported)
}

func TestDecodeInvalidHeaderLength(t *testing.T) {
	pkt := xpacket.LayersToPacket(t, udpLayers()...)
	data := pkt.Data()
	// IHL of 1 word is shorter than the fixed IPv4 header.
	data[14] = 0x41

	_, err := DecodeFrame(data)
	require.ErrorIs(t, err, ErrMalformed)
}

func TestDecodeTruncatedFrame(t *testing.T) {
	lyrs := udpLayers()
	lyrs[len(lyrs)-1] = gopacket.Payload(make([]byte, 200))
	data, err := xpacket.Serialize(lyrs...)
	require.NoError(t, err)

	frame, err := DecodeFrame(data)
	require.NoError(t, err)
	require.False(t, frame.Truncated())

	tests := []struct {
		name string
		cut  int
	}{
		{name: "payload", cut: 50},
		{name: "transport header", cut: 205},
		{name: "network header", cut: 220},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeFrame(data[:len(data)-tt.cut])
			require.ErrorIs(t, err, ErrMalformed)
		})
	}
}

func TestDecodeUnknownTransport(t *testing.T) {
	data, err := xpacket.Serialize(
		&layers.Ethernet{
			SrcMAC:       net.HardwareAddr{0x00, 0x00, 0x00, 0x00, 0x00, 0x01},
			DstMAC:       net.HardwareAddr{0x00, 0x11, 0x22, 0x33, 0x44, 0x55},
			EthernetType: layers.EthernetTypeIPv4,
		},
		&layers.IPv4{
			Version:  4,
			IHL:      5,
			TTL:      17,
			Protocol: layers.IPProtocol(253),
			SrcIP:    net.IPv4(10, 0, 1, 5),
			DstIP:    net.IPv4(10, 0, 3, 9),
		},
		gopacket.Payload(make([]byte, 64)),
	)
	require.NoError(t, err)

	frame, err := DecodeFrame(data)
	require.NoError(t, err)
	require.Len(t, frame.IPv4.Payload, 64)
	require.False(t, frame.Truncated())
}

package rip

import (
	"net"
	"net/netip"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/gopacket/gopacket"
	"github.com/gopacket/gopacket/layers"
	"github.com/stretchr/testify/require"

	"github.com/yanet-platform/softrouter/common/go/xpacket"
)

func ripLayers(msg *RIP) []gopacket.SerializableLayer {
	ip := &layers.IPv4{
		Version:  4,
		IHL:      5,
		TTL:      TTL,
		Protocol: layers.IPProtocolUDP,
		SrcIP:    net.IPv4(10, 0, 2, 2),
		DstIP:    net.IPv4(224, 0, 0, 9),
	}
	udp := &layers.UDP{SrcPort: Port, DstPort: Port}
	udp.SetNetworkLayerForChecksum(ip)

	return []gopacket.SerializableLayer{
		&layers.Ethernet{
			SrcMAC:       net.HardwareAddr{0x02, 0x00, 0x00, 0x00, 0x02, 0x02},
			DstMAC:       layers.EthernetBroadcast,
			EthernetType: layers.EthernetTypeIPv4,
		},
		ip,
		udp,
		msg,
	}
}

func TestRIPRoundTrip(t *testing.T) {
	msg := &RIP{
		Command: CommandResponse,
		Version: Version,
		Entries: []Entry{
			NewEntry(netip.MustParsePrefix("192.168.5.0/24"), netip.Addr{}, 2),
			NewEntry(netip.MustParsePrefix("10.0.0.0/8"), netip.MustParseAddr("10.0.2.9"), 7),
		},
	}

	pkt := xpacket.LayersToPacket(t, ripLayers(msg)...)
	udp := pkt.Layer(layers.LayerTypeUDP).(*layers.UDP)
	require.Len(t, udp.Payload, headerLen+2*entryLen)

	decoded, err := DecodeRIP(udp.Payload)
	require.NoError(t, err)

	diff := cmp.Diff(msg, decoded,
		cmpopts.IgnoreFields(RIP{}, "BaseLayer"),
		cmp.Comparer(func(a, b netip.Addr) bool { return a == b }),
	)
	require.Empty(t, diff)

	prefix, err := decoded.Entries[0].Prefix()
	require.NoError(t, err)
	require.Equal(t, netip.MustParsePrefix("192.168.5.0/24"), prefix)
	require.Equal(t, netip.IPv4Unspecified(), decoded.Entries[0].NextHop)
}

func TestRIPWireFormat(t *testing.T) {
	msg := &RIP{
		Command: CommandRequest,
		Version: Version,
		Entries: []Entry{WholeTableEntry()},
	}

	data, err := xpacket.Serialize(msg)
	require.NoError(t, err)
	require.Equal(t, []byte{
		1, 2, 0, 0,
		0, 0, 0, 0,
		0, 0, 0, 0,
		0, 0, 0, 0,
		0, 0, 0, 0,
		0, 0, 0, 16,
	}, data)
}

func TestRIPDecodeAsLayer(t *testing.T) {
	data, err := xpacket.Serialize(&RIP{
		Command: CommandResponse,
		Version: Version,
		Entries: []Entry{NewEntry(netip.MustParsePrefix("172.16.0.0/12"), netip.Addr{}, 1)},
	})
	require.NoError(t, err)

	pkt := gopacket.NewPacket(data, LayerTypeRIP, gopacket.Default)
	require.Nil(t, pkt.ErrorLayer())

	msg, ok := pkt.Layer(LayerTypeRIP).(*RIP)
	require.True(t, ok)
	require.Equal(t, CommandResponse, msg.Command)
	require.Equal(t, netip.MustParseAddr("255.240.0.0"), msg.Entries[0].Mask)
}

func TestRIPDecodeErrors(t *testing.T) {
	tests := []struct {
		name string
		data []byte
	}{
		{name: "short header", data: []byte{2, 2}},
		{name: "partial entry", data: []byte{2, 2, 0, 0, 0, 2, 0, 0, 10}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeRIP(tt.data)
			require.Error(t, err)
		})
	}
}

func TestRIPSerializeTooManyEntries(t *testing.T) {
	msg := &RIP{Command: CommandResponse, Version: Version}
	for range MaxEntries + 1 {
		msg.Entries = append(msg.Entries, NewEntry(netip.MustParsePrefix("10.0.0.0/8"), netip.Addr{}, 1))
	}

	_, err := xpacket.Serialize(msg)
	require.Error(t, err)
}

func TestEntryNonContiguousMask(t *testing.T) {
	entry := Entry{
		Family: AddressFamilyIPv4,
		Addr:   netip.MustParseAddr("10.0.0.0"),
		Mask:   netip.MustParseAddr("255.0.255.0"),
	}
	_, err := entry.Prefix()
	require.Error(t, err)
}

package router

import (
	"net"
	"net/netip"
	"sync"
	"testing"
	"time"

	"github.com/gopacket/gopacket"
	"github.com/gopacket/gopacket/layers"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/yanet-platform/softrouter/common/go/device"
	"github.com/yanet-platform/softrouter/common/go/device/devicetest"
	"github.com/yanet-platform/softrouter/common/go/xpacket"
	"github.com/yanet-platform/softrouter/modules/router/internal/discovery/neigh"
	"github.com/yanet-platform/softrouter/modules/router/internal/rib"
)

var (
	eth0MAC = mustMAC("02:00:00:00:01:01")
	eth1MAC = mustMAC("02:00:00:00:02:01")
	eth2MAC = mustMAC("02:00:00:00:04:01")
	// hostMAC is the link address of 10.0.1.5 behind eth0.
	hostMAC = mustMAC("02:00:00:00:01:05")
	// gatewayMAC is the link address of 10.0.2.2 behind eth1.
	gatewayMAC = mustMAC("02:00:00:00:02:02")
	// peerMAC is the link address of 10.0.4.7 behind eth2.
	peerMAC = mustMAC("02:00:00:00:04:07")
)

func mustMAC(s string) net.HardwareAddr {
	hw, err := net.ParseMAC(s)
	if err != nil {
		panic(err)
	}
	return hw
}

func neighbour(addr string, hw net.HardwareAddr) neigh.NeighbourEntry {
	entry := neigh.NeighbourEntry{
		NextHop: netip.MustParseAddr(addr),
		State:   neigh.StatePermanent,
	}
	copy(entry.HardwareAddr[:], hw)
	return entry
}

func connected(prefix string, iface string) rib.Route {
	return rib.Route{
		Prefix:    netip.MustParsePrefix(prefix),
		Interface: iface,
		SourceID:  rib.RouteSourceConnected,
	}
}

func static(prefix string, gateway string, iface string) rib.Route {
	return rib.Route{
		Prefix:    netip.MustParsePrefix(prefix),
		Gateway:   netip.MustParseAddr(gateway),
		Interface: iface,
		SourceID:  rib.RouteSourceStatic,
	}
}

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (m *clock) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now
}

type testRouter struct {
	*Router
	dev *devicetest.Recorder
}

type testSetup struct {
	cfg        *Config
	routes     []rib.Route
	neighbours []neigh.NeighbourEntry
}

func staticSetup() *testSetup {
	cfg := DefaultConfig()
	enabled := false
	cfg.RIP.Enabled = &enabled

	return &testSetup{
		cfg: cfg,
		routes: []rib.Route{
			connected("10.0.1.0/24", "eth0"),
			connected("10.0.2.0/24", "eth1"),
			connected("10.0.4.0/24", "eth2"),
			static("10.0.3.0/24", "10.0.2.2", "eth1"),
		},
		neighbours: []neigh.NeighbourEntry{
			neighbour("10.0.1.5", hostMAC),
			neighbour("10.0.4.7", peerMAC),
		},
	}
}

func newTestRouter(t *testing.T, setup *testSetup) *testRouter {
	t.Helper()

	dev := devicetest.NewRecorder(
		devicetest.Iface("eth0", "10.0.1.1/24", eth0MAC.String()),
		devicetest.Iface("eth1", "10.0.2.1/24", eth1MAC.String()),
		devicetest.Iface("eth2", "10.0.4.1/24", eth2MAC.String()),
	)
	clk := &clock{now: time.Unix(1000, 0)}

	return newTestRouterOn(t, setup, dev, clk.Now)
}

func newTestRouterOn(t *testing.T, setup *testSetup, dev *devicetest.Recorder, now func() time.Time) *testRouter {
	t.Helper()

	log := zap.NewNop().Sugar()
	table := rib.NewRIB(log)
	for _, route := range setup.routes {
		require.NoError(t, table.Insert(route))
	}

	router := NewRouter(setup.cfg, dev, table, neigh.NewCache(setup.neighbours, log), WithClock(now))
	require.NoError(t, router.Bootstrap())
	dev.Take()

	return &testRouter{Router: router, dev: dev}
}

// inject serializes the layers, decodes them back and feeds the frame to the
// router.
func (m *testRouter) inject(t *testing.T, iface string, lyrs ...gopacket.SerializableLayer) gopacket.Packet {
	t.Helper()

	data, err := xpacket.Serialize(lyrs...)
	require.NoError(t, err)
	frame, err := device.DecodeFrame(data)
	require.NoError(t, err)

	m.HandleFrame(frame, iface)
	return xpacket.ParseEtherPacket(data)
}

type ipOpt func(ip *layers.IPv4)

func withTTL(ttl uint8) ipOpt {
	return func(ip *layers.IPv4) {
		ip.TTL = ttl
	}
}

func ipv4(src string, dst string, proto layers.IPProtocol, opts ...ipOpt) *layers.IPv4 {
	ip := &layers.IPv4{
		Version:  4,
		IHL:      5,
		TTL:      64,
		Protocol: proto,
		SrcIP:    net.ParseIP(src).To4(),
		DstIP:    net.ParseIP(dst).To4(),
	}
	for _, o := range opts {
		o(ip)
	}
	return ip
}

func ether(src net.HardwareAddr, dst net.HardwareAddr, t layers.EthernetType) *layers.Ethernet {
	return &layers.Ethernet{
		SrcMAC:       src,
		DstMAC:       dst,
		EthernetType: t,
	}
}

func udpPacket(srcMAC net.HardwareAddr, dstMAC net.HardwareAddr, src string, dst string, opts ...ipOpt) []gopacket.SerializableLayer {
	ip := ipv4(src, dst, layers.IPProtocolUDP, opts...)
	udp := &layers.UDP{SrcPort: 40000, DstPort: 5000}
	udp.SetNetworkLayerForChecksum(ip)

	return []gopacket.SerializableLayer{
		ether(srcMAC, dstMAC, layers.EthernetTypeIPv4),
		ip,
		udp,
		gopacket.Payload("softrouter payload"),
	}
}

func echoRequest(srcMAC net.HardwareAddr, dstMAC net.HardwareAddr, src string, dst string) []gopacket.SerializableLayer {
	return []gopacket.SerializableLayer{
		ether(srcMAC, dstMAC, layers.EthernetTypeIPv4),
		ipv4(src, dst, layers.IPProtocolICMPv4),
		&layers.ICMPv4{
			TypeCode: layers.CreateICMPv4TypeCode(layers.ICMPv4TypeEchoRequest, 0),
			Id:       0x1234,
			Seq:      7,
		},
		gopacket.Payload("ping payload"),
	}
}

func arpPacket(op uint16, srcMAC net.HardwareAddr, srcIP string, dstMAC net.HardwareAddr, dstIP string) []gopacket.SerializableLayer {
	ethDst := dstMAC
	if op == layers.ARPRequest {
		ethDst = layers.EthernetBroadcast
	}

	return []gopacket.SerializableLayer{
		ether(srcMAC, ethDst, layers.EthernetTypeARP),
		&layers.ARP{
			AddrType:          layers.LinkTypeEthernet,
			Protocol:          layers.EthernetTypeIPv4,
			HwAddressSize:     6,
			ProtAddressSize:   4,
			Operation:         op,
			SourceHwAddress:   srcMAC,
			SourceProtAddress: net.ParseIP(srcIP).To4(),
			DstHwAddress:      dstMAC,
			DstProtAddress:    net.ParseIP(dstIP).To4(),
		},
	}
}

func requireICMP(t *testing.T, sent devicetest.Sent, typ uint8, code uint8) *layers.ICMPv4 {
	t.Helper()

	icmp, ok := sent.Packet.Layer(layers.LayerTypeICMPv4).(*layers.ICMPv4)
	require.True(t, ok, "not an ICMP packet: %s", sent)
	require.Equal(t, layers.CreateICMPv4TypeCode(typ, code), icmp.TypeCode)
	require.EqualValues(t, icmpTTL, sent.Frame.IPv4.TTL)
	return icmp
}

func requireIPv4(t *testing.T, sent devicetest.Sent, src string, dst string) {
	t.Helper()

	require.NotNil(t, sent.Frame.IPv4)
	require.Equal(t, src, sent.Frame.IPv4.SrcIP.String())
	require.Equal(t, dst, sent.Frame.IPv4.DstIP.String())
	requireValidChecksum(t, sent.Frame.IPv4)
}

func requireValidChecksum(t *testing.T, ip *layers.IPv4) {
	t.Helper()

	_, res := ip.VerifyChecksum()
	require.True(t, res.Valid, "checksum %#04x, expected %#04x", res.Actual, res.Correct)
}

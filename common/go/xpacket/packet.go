package xpacket

import (
	"fmt"
	"testing"

	"github.com/gopacket/gopacket"
	"github.com/gopacket/gopacket/layers"
	"github.com/stretchr/testify/require"
)

// SerializeOptions are used for every frame built or re-emitted by the
// router: lengths and checksums always reflect the final layer contents.
var SerializeOptions = gopacket.SerializeOptions{
	FixLengths:       true,
	ComputeChecksums: true,
}

// Serialize encodes the given layers into wire bytes.
func Serialize(lyrs ...gopacket.SerializableLayer) ([]byte, error) {
	buf := gopacket.NewSerializeBuffer()
	if err := gopacket.SerializeLayers(buf, SerializeOptions, lyrs...); err != nil {
		return nil, fmt.Errorf("failed to serialize layers: %w", err)
	}
	return buf.Bytes(), nil
}

// LayersToPacket serializes layers and decodes them back as an Ethernet
// packet, failing the test on any error.
func LayersToPacket(t *testing.T, lyrs ...gopacket.SerializableLayer) gopacket.Packet {
	pkt, err := LayersToPacketChecked(lyrs...)
	require.NoError(t, err, "%#+v", lyrs)
	return pkt
}

// LayersToPacketChecked works like LayersToPacket, but returns an error
// instead of failing the test.
func LayersToPacketChecked(lyrs ...gopacket.SerializableLayer) (gopacket.Packet, error) {
	data, err := Serialize(lyrs...)
	if err != nil {
		return nil, err
	}

	pkt := ParseEtherPacket(data)
	if pkt.ErrorLayer() != nil {
		return nil, fmt.Errorf("failed to parse packet: %v", pkt.ErrorLayer())
	}

	return pkt, nil
}

func ParseEtherPacket(data []byte) gopacket.Packet {
	// Pad the packet with zero bytes to align its size at 60 bytes
	// https://github.com/google/gopacket/issues/361
	// github.com/gopacket/gopacket@v1.3.1/layers/ethernet.go#L95
	if len(data) < 60 {
		var zeros [60]byte
		data = append(data, zeros[:60-len(data)]...)
	}

	return gopacket.NewPacket(
		data,
		layers.LayerTypeEthernet,
		gopacket.Default,
	)
}

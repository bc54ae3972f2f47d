package emit

import (
	"fmt"
	"math/rand/v2"
	"net"

	"github.com/ghostcap/ghostcap/internal/pkg/stream"
	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
)

// TCPFlags is the set of TCP control bits carried by a fabricated segment.
type TCPFlags uint8

const (
	FlagFIN TCPFlags = 1 << iota
	FlagSYN
	FlagRST
	FlagPSH
	FlagACK
)

// windowSize is the advertised receive window on every fabricated segment.
// The trace is a replay of bytes already delivered, so flow control is
// cosmetic; the value just has to look plausible to analyzers.
const windowSize = 32767

// FrameBuilder constructs one finished Ethernet/IP/TCP frame from a stream
// context. Implementations accumulate header state across the build and must
// be Reset between frames so no stale fields leak into the next one. The
// returned slice is only valid until the next BuildFrame or Reset call.
type FrameBuilder interface {
	BuildFrame(ctx *stream.Context, flags TCPFlags, payload []byte) ([]byte, error)
	Reset()
}

// LayerBuilder fabricates frames with gopacket layer serialization, letting
// it fix up lengths and checksums. It reuses one serialize buffer across
// frames and is not safe for concurrent use.
type LayerBuilder struct {
	buf  gopacket.SerializeBuffer
	opts gopacket.SerializeOptions
}

// NewLayerBuilder creates a LayerBuilder.
func NewLayerBuilder() *LayerBuilder {
	return &LayerBuilder{
		buf: gopacket.NewSerializeBuffer(),
		opts: gopacket.SerializeOptions{
			FixLengths:       true,
			ComputeChecksums: true,
		},
	}
}

// BuildFrame serializes an Ethernet frame enclosing an IP packet enclosing a
// TCP segment with the context's addressing and counters.
func (b *LayerBuilder) BuildFrame(ctx *stream.Context, flags TCPFlags, payload []byte) ([]byte, error) {
	tcp := layers.TCP{
		SrcPort: layers.TCPPort(ctx.SrcPort),
		DstPort: layers.TCPPort(ctx.DstPort),
		Seq:     ctx.Seq,
		Ack:     ctx.Ack,
		Window:  windowSize,
		FIN:     flags&FlagFIN != 0,
		SYN:     flags&FlagSYN != 0,
		RST:     flags&FlagRST != 0,
		PSH:     flags&FlagPSH != 0,
		ACK:     flags&FlagACK != 0,
	}

	eth := layers.Ethernet{
		SrcMAC: ctx.SrcMAC,
		DstMAC: ctx.DstMAC,
	}

	var ip gopacket.SerializableLayer
	switch ctx.Family {
	case stream.FamilyIPv4:
		v4 := &layers.IPv4{
			Version:  4,
			Id:       uint16(rand.Uint32()),
			Flags:    layers.IPv4DontFragment,
			TTL:      64,
			Protocol: layers.IPProtocolTCP,
			SrcIP:    net.IP(ctx.SrcIP.AsSlice()),
			DstIP:    net.IP(ctx.DstIP.AsSlice()),
		}
		if err := tcp.SetNetworkLayerForChecksum(v4); err != nil {
			return nil, fmt.Errorf("binding tcp checksum: %w", err)
		}
		eth.EthernetType = layers.EthernetTypeIPv4
		ip = v4
	case stream.FamilyIPv6:
		v6 := &layers.IPv6{
			Version:    6,
			NextHeader: layers.IPProtocolTCP,
			HopLimit:   255,
			SrcIP:      net.IP(ctx.SrcIP.AsSlice()),
			DstIP:      net.IP(ctx.DstIP.AsSlice()),
		}
		if err := tcp.SetNetworkLayerForChecksum(v6); err != nil {
			return nil, fmt.Errorf("binding tcp checksum: %w", err)
		}
		eth.EthernetType = layers.EthernetTypeIPv6
		ip = v6
	default:
		return nil, fmt.Errorf("unknown address family %d", ctx.Family)
	}

	err := gopacket.SerializeLayers(b.buf, b.opts, &eth, ip, &tcp, gopacket.Payload(payload))
	if err != nil {
		return nil, fmt.Errorf("serializing frame: %w", err)
	}
	return b.buf.Bytes(), nil
}

// Reset clears the accumulated serialize buffer.
func (b *LayerBuilder) Reset() {
	_ = b.buf.Clear()
}

package emit

import (
	"net"
	"testing"

	"github.com/ghostcap/ghostcap/internal/pkg/stream"
	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	testSrcMAC = net.HardwareAddr{0x02, 0x00, 0x00, 0x00, 0x00, 0x01}
	testDstMAC = net.HardwareAddr{0x02, 0x00, 0x00, 0x00, 0x00, 0x02}
)

func testContextIPv4(t *testing.T) *stream.Context {
	t.Helper()
	ctx, err := stream.Build("10.0.0.1", "1234", "10.0.0.2", "443")
	require.NoError(t, err)
	ctx.SrcMAC, ctx.DstMAC = testSrcMAC, testDstMAC
	return ctx
}

func testContextIPv6(t *testing.T) *stream.Context {
	t.Helper()
	ctx, err := stream.Build("2001:db8::1", "1234", "2001:db8::2", "443")
	require.NoError(t, err)
	ctx.SrcMAC, ctx.DstMAC = testSrcMAC, testDstMAC
	return ctx
}

func TestBuildFrameIPv4RoundTrip(t *testing.T) {
	ctx := testContextIPv4(t)
	ctx.Seq = 1000
	ctx.Ack = 2000

	builder := NewLayerBuilder()
	payload := []byte("intercepted application bytes")
	frame, err := builder.BuildFrame(ctx, FlagPSH|FlagACK, payload)
	require.NoError(t, err)

	pkt := gopacket.NewPacket(frame, layers.LayerTypeEthernet, gopacket.Default)
	require.Nil(t, pkt.ErrorLayer())

	eth := pkt.Layer(layers.LayerTypeEthernet).(*layers.Ethernet)
	assert.Equal(t, testSrcMAC, eth.SrcMAC)
	assert.Equal(t, testDstMAC, eth.DstMAC)
	assert.Equal(t, layers.EthernetTypeIPv4, eth.EthernetType)

	ip := pkt.Layer(layers.LayerTypeIPv4).(*layers.IPv4)
	assert.Equal(t, "10.0.0.1", ip.SrcIP.String())
	assert.Equal(t, "10.0.0.2", ip.DstIP.String())
	assert.Equal(t, uint8(64), ip.TTL)
	assert.Equal(t, layers.IPv4DontFragment, ip.Flags)
	assert.Equal(t, layers.IPProtocolTCP, ip.Protocol)

	tcp := pkt.Layer(layers.LayerTypeTCP).(*layers.TCP)
	assert.Equal(t, layers.TCPPort(1234), tcp.SrcPort)
	assert.Equal(t, layers.TCPPort(443), tcp.DstPort)
	assert.Equal(t, uint32(1000), tcp.Seq)
	assert.Equal(t, uint32(2000), tcp.Ack)
	assert.Equal(t, uint16(32767), tcp.Window)
	assert.True(t, tcp.PSH)
	assert.True(t, tcp.ACK)
	assert.False(t, tcp.SYN)
	assert.Equal(t, payload, tcp.Payload)
}

func TestBuildFrameIPv6RoundTrip(t *testing.T) {
	ctx := testContextIPv6(t)
	ctx.Seq = 42

	builder := NewLayerBuilder()
	payload := []byte("v6 payload")
	frame, err := builder.BuildFrame(ctx, FlagACK, payload)
	require.NoError(t, err)

	pkt := gopacket.NewPacket(frame, layers.LayerTypeEthernet, gopacket.Default)
	require.Nil(t, pkt.ErrorLayer())

	eth := pkt.Layer(layers.LayerTypeEthernet).(*layers.Ethernet)
	assert.Equal(t, layers.EthernetTypeIPv6, eth.EthernetType)

	ip := pkt.Layer(layers.LayerTypeIPv6).(*layers.IPv6)
	assert.Equal(t, "2001:db8::1", ip.SrcIP.String())
	assert.Equal(t, "2001:db8::2", ip.DstIP.String())
	assert.Equal(t, uint8(255), ip.HopLimit)
	assert.Equal(t, layers.IPProtocolTCP, ip.NextHeader)

	tcp := pkt.Layer(layers.LayerTypeTCP).(*layers.TCP)
	assert.Equal(t, uint32(42), tcp.Seq)
	assert.True(t, tcp.ACK)
	assert.Equal(t, payload, tcp.Payload)
}

func TestBuildFrameFlagMapping(t *testing.T) {
	ctx := testContextIPv4(t)
	builder := NewLayerBuilder()

	frame, err := builder.BuildFrame(ctx, FlagSYN|FlagFIN|FlagRST, nil)
	require.NoError(t, err)

	pkt := gopacket.NewPacket(frame, layers.LayerTypeEthernet, gopacket.Default)
	tcp := pkt.Layer(layers.LayerTypeTCP).(*layers.TCP)
	assert.True(t, tcp.SYN)
	assert.True(t, tcp.FIN)
	assert.True(t, tcp.RST)
	assert.False(t, tcp.ACK)
	assert.False(t, tcp.PSH)
	assert.Empty(t, tcp.Payload)
}

func TestBuildFrameRejectsZeroFamily(t *testing.T) {
	builder := NewLayerBuilder()
	_, err := builder.BuildFrame(&stream.Context{}, FlagACK, nil)
	assert.Error(t, err)
}

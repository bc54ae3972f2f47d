package emit

import (
	"errors"
	"testing"
	"time"

	"github.com/ghostcap/ghostcap/internal/pkg/stream"
	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sunkFrame struct {
	data []byte
	ts   time.Time
}

type fakeSink struct {
	frames  []sunkFrame
	failAll bool
}

func (s *fakeSink) WriteFrame(frame []byte, ts time.Time) error {
	if s.failAll {
		return errors.New("sink failure")
	}
	data := make([]byte, len(frame))
	copy(data, frame)
	s.frames = append(s.frames, sunkFrame{data: data, ts: ts})
	return nil
}

type failingBuilder struct {
	resets int
}

func (b *failingBuilder) BuildFrame(ctx *stream.Context, flags TCPFlags, payload []byte) ([]byte, error) {
	return nil, errors.New("build failure")
}

func (b *failingBuilder) Reset() { b.resets++ }

func newTestEmitter(sink FrameSink) *Emitter {
	e := NewEmitter(NewLayerBuilder(), sink)
	e.now = func() time.Time { return time.Unix(1700000000, 0) }
	e.randSeq = func() uint32 { return 0x10000000 }
	return e
}

// decodeTCP parses a fabricated frame back into its TCP layer.
func decodeTCP(t *testing.T, frame []byte) *layers.TCP {
	t.Helper()
	pkt := gopacket.NewPacket(frame, layers.LayerTypeEthernet, gopacket.Default)
	require.Nil(t, pkt.ErrorLayer())
	tcpLayer := pkt.Layer(layers.LayerTypeTCP)
	require.NotNil(t, tcpLayer)
	return tcpLayer.(*layers.TCP)
}

func TestWritePacketAdvancesSeq(t *testing.T) {
	sink := &fakeSink{}
	e := newTestEmitter(sink)
	ctx := testContextIPv4(t)

	require.NoError(t, e.WritePacket(ctx, FlagPSH|FlagACK, []byte("hello")))
	assert.Equal(t, uint32(5), ctx.Seq)
	require.Len(t, sink.frames, 1)

	// Zero-length payload does not advance.
	require.NoError(t, e.WritePacket(ctx, FlagACK, nil))
	assert.Equal(t, uint32(5), ctx.Seq)
}

func TestWritePacketSYNAssignsInitialSeq(t *testing.T) {
	sink := &fakeSink{}
	e := newTestEmitter(sink)
	ctx := testContextIPv4(t)

	require.NoError(t, e.WritePacket(ctx, FlagSYN, nil))
	assert.Equal(t, uint32(0x10000000), ctx.Seq)

	tcp := decodeTCP(t, sink.frames[0].data)
	assert.Equal(t, uint32(0x10000000), tcp.Seq)

	// A non-SYN packet must not touch the initial value.
	require.NoError(t, e.WritePacket(ctx, FlagACK, nil))
	assert.Equal(t, uint32(0x10000000), ctx.Seq)
}

func TestWritePacketBuildFailure(t *testing.T) {
	sink := &fakeSink{}
	builder := &failingBuilder{}
	e := NewEmitter(builder, sink)
	e.now = time.Now
	ctx := testContextIPv4(t)

	err := e.WritePacket(ctx, FlagACK, []byte("data"))
	assert.ErrorIs(t, err, ErrBuild)
	assert.Empty(t, sink.frames)
	assert.Equal(t, uint32(0), ctx.Seq)
	// Workspace cleared even though construction failed.
	assert.Equal(t, 1, builder.resets)
}

func TestWritePacketSinkFailure(t *testing.T) {
	sink := &fakeSink{failAll: true}
	e := newTestEmitter(sink)
	ctx := testContextIPv4(t)

	err := e.WritePacket(ctx, FlagPSH|FlagACK, []byte("data"))
	assert.ErrorIs(t, err, ErrIO)
	assert.Equal(t, uint32(0), ctx.Seq)
}

func TestWritePacketStampsSinkTime(t *testing.T) {
	sink := &fakeSink{}
	e := newTestEmitter(sink)
	ctx := testContextIPv4(t)

	require.NoError(t, e.WritePacket(ctx, FlagACK, nil))
	require.Len(t, sink.frames, 1)
	assert.Equal(t, time.Unix(1700000000, 0), sink.frames[0].ts)
}

// Package emit fabricates sequence/acknowledgment-consistent TCP frames from
// intercepted payload bytes and dispatches them to a frame sink: a capture
// file or a live injection handle. It performs no locking; an Emitter and
// the contexts it mutates belong to one logical caller at a time.
package emit

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/ghostcap/ghostcap/internal/pkg/stream"
)

var (
	// ErrBuild indicates frame construction failed.
	ErrBuild = errors.New("frame build error")

	// ErrIO indicates the built frame could not be dispatched.
	ErrIO = errors.New("frame dispatch error")
)

// FrameSink receives finished frames. capfile.Writer implements it for file
// mode, mirror.Sink for live mode.
type FrameSink interface {
	WriteFrame(frame []byte, ts time.Time) error
}

// Emitter builds frames for one logical connection and hands them to a sink.
type Emitter struct {
	builder FrameBuilder
	sink    FrameSink

	// Injection points for deterministic tests.
	now     func() time.Time
	randSeq func() uint32
}

// NewEmitter creates an Emitter dispatching to sink.
func NewEmitter(builder FrameBuilder, sink FrameSink) *Emitter {
	return &Emitter{
		builder: builder,
		sink:    sink,
		now:     time.Now,
		randSeq: rand.Uint32,
	}
}

// WritePacket fabricates one frame from ctx and dispatches it. A SYN flag
// assigns ctx.Seq a fresh pseudo-random initial value; this happens once per
// side at connection establishment. On success ctx.Seq advances by the
// payload length. The builder's accumulated state is reset on every path so
// no header fields leak into the next frame.
func (e *Emitter) WritePacket(ctx *stream.Context, flags TCPFlags, payload []byte) error {
	defer e.builder.Reset()

	if flags&FlagSYN != 0 {
		ctx.Seq = e.randSeq()
	}

	frame, err := e.builder.BuildFrame(ctx, flags, payload)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrBuild, err)
	}

	if err := e.sink.WriteFrame(frame, e.now()); err != nil {
		return fmt.Errorf("%w: %v", ErrIO, err)
	}

	ctx.Seq += uint32(len(payload))
	return nil
}

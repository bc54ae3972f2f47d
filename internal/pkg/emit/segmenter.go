package emit

import (
	"github.com/ghostcap/ghostcap/internal/pkg/stream"
)

// MSS is the largest payload carried in one fabricated segment. Headroom
// below the Ethernet MTU leaves space for the IPv6 and TCP headers.
const MSS = 1420

// WritePayload replays one payload burst from the "from" side: the payload
// is split into MSS-bounded segments, each emitted via WritePacket with the
// receiver's Ack advanced in step, followed by exactly one zero-payload
// ACK from the "to" side acknowledging the burst. A zero-length payload
// still produces the trailing ACK. On failure the burst is aborted; frames
// already emitted stay in the trace.
func (e *Emitter) WritePayload(from, to *stream.Context, flags TCPFlags, payload []byte) error {
	for len(payload) > 0 {
		n := len(payload)
		if n > MSS {
			n = MSS
		}
		if err := e.WritePacket(from, flags, payload[:n]); err != nil {
			return err
		}
		to.Ack += uint32(n)
		payload = payload[n:]
	}
	return e.WritePacket(to, FlagACK, nil)
}

// WriteHandshake fabricates the three-way opening of the conversation:
// SYN, SYN+ACK, ACK. Each SYN consumes one sequence number, so afterwards
// both sides' counters line up the way a real established connection would.
func (e *Emitter) WriteHandshake(from, to *stream.Context) error {
	if err := e.WritePacket(from, FlagSYN, nil); err != nil {
		return err
	}
	from.Seq++
	to.Ack = from.Seq

	if err := e.WritePacket(to, FlagSYN|FlagACK, nil); err != nil {
		return err
	}
	to.Seq++
	from.Ack = to.Seq

	return e.WritePacket(from, FlagACK, nil)
}

// WriteClose fabricates an orderly shutdown: FIN+ACK from each side and a
// final ACK. Each FIN consumes one sequence number.
func (e *Emitter) WriteClose(from, to *stream.Context) error {
	if err := e.WritePacket(from, FlagFIN|FlagACK, nil); err != nil {
		return err
	}
	from.Seq++
	to.Ack = from.Seq

	if err := e.WritePacket(to, FlagFIN|FlagACK, nil); err != nil {
		return err
	}
	to.Seq++
	from.Ack = to.Seq

	return e.WritePacket(from, FlagACK, nil)
}

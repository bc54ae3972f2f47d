package mirror

import (
	"fmt"
	"time"

	"github.com/ghostcap/ghostcap/internal/pkg/logger"
	"github.com/google/gopacket/pcap"
)

// injectHandle is the transmit-only slice of *pcap.Handle the sink needs.
type injectHandle interface {
	WritePacketData(data []byte) error
	Close()
}

// Sink transmits fabricated frames onto a live segment toward the mirror
// observer. It satisfies the frame sink interface of the emit package.
type Sink struct {
	device string
	handle injectHandle
}

// OpenSink opens an injection handle on the named interface.
func OpenSink(device string) (*Sink, error) {
	handle, err := pcap.OpenLive(device, capfileSnaplen, false, pcap.BlockForever)
	if err != nil {
		return nil, fmt.Errorf("opening injection handle on %s: %w", device, err)
	}
	logger.Debug("Opened mirror injection handle", "interface", device)
	return &Sink{device: device, handle: handle}, nil
}

// capfileSnaplen mirrors the capture-file snapshot length; the handle is
// used for transmission only, so the value never truncates anything.
const capfileSnaplen = 1500

// WriteFrame transmits one frame. The timestamp only exists for the sink
// interface; the wire carries its own time.
func (s *Sink) WriteFrame(frame []byte, _ time.Time) error {
	if err := s.handle.WritePacketData(frame); err != nil {
		return fmt.Errorf("transmitting frame on %s: %w", s.device, err)
	}
	return nil
}

// Close releases the injection handle.
func (s *Sink) Close() {
	s.handle.Close()
}

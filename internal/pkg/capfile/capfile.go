// Package capfile manages pcap-format capture files that fabricated frames
// are appended to. Unlike a plain pcapgo writer it can continue an existing
// capture: a file that already carries the pcap magic is appended to in
// place, anything else is truncated and restarted with a fresh header.
package capfile

import (
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/ghostcap/ghostcap/internal/pkg/logger"
	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
)

const (
	// Magic is the classic pcap global header magic, as written by pcapgo
	// (little-endian, microsecond timestamps).
	Magic = 0xa1b2c3d4

	// Snaplen is the snapshot length recorded in the global header. The
	// largest fabricated frame is an MSS-sized segment plus headers, which
	// fits within the classic Ethernet limit.
	Snaplen = 1500

	// GlobalHeaderLen is the size of the pcap global header.
	GlobalHeaderLen = 24
)

// Writer appends pcap records to an open capture file. The caller retains
// ownership of the underlying file and is responsible for closing it.
type Writer struct {
	file *os.File
	pw   *pcapgo.Writer
}

// Open prepares f for record appends.
//
// An empty file receives a fresh global header (Ethernet link type, snaplen
// 1500). A non-empty file whose first bytes carry the pcap magic is appended
// to; its existing content is never altered. A non-empty file without the
// magic is truncated to zero and restarted with a fresh header. On error the
// file is left open in an unspecified position; the caller may retry or
// abandon it.
func Open(f *os.File) (*Writer, error) {
	size, err := f.Seek(0, io.SeekEnd)
	if err != nil {
		return nil, fmt.Errorf("seeking capture file: %w", err)
	}

	w := &Writer{file: f, pw: pcapgo.NewWriter(f)}

	if size > 0 {
		if _, err := f.Seek(0, io.SeekStart); err != nil {
			return nil, fmt.Errorf("seeking capture file: %w", err)
		}
		var hdr [GlobalHeaderLen]byte
		_, err := io.ReadFull(f, hdr[:])
		switch {
		case err == nil && binary.LittleEndian.Uint32(hdr[0:4]) == Magic:
			// Continue the existing capture.
			if _, err := f.Seek(0, io.SeekEnd); err != nil {
				return nil, fmt.Errorf("seeking capture file: %w", err)
			}
			logger.Debug("Appending to existing capture file",
				"file", f.Name(), "size", size)
			return w, nil
		case err != nil && err != io.ErrUnexpectedEOF:
			return nil, fmt.Errorf("reading capture file header: %w", err)
		default:
			// Wrong magic or short header: not a capture we can
			// continue, start over.
			if _, err := f.Seek(0, io.SeekStart); err != nil {
				return nil, fmt.Errorf("seeking capture file: %w", err)
			}
			if err := f.Truncate(0); err != nil {
				return nil, fmt.Errorf("truncating capture file: %w", err)
			}
			logger.Warn("Capture file has no pcap magic, restarting it",
				"file", f.Name(), "size", size)
		}
	}

	if err := w.pw.WriteFileHeader(Snaplen, layers.LinkTypeEthernet); err != nil {
		return nil, fmt.Errorf("writing capture file header: %w", err)
	}
	return w, nil
}

// WriteRecord appends one record: a 16-byte record header carrying ts and
// the frame length (included == original), followed by the raw frame bytes.
// A short write leaves a truncated record behind; the caller must treat the
// file as unreliable after an error.
func (w *Writer) WriteRecord(frame []byte, ts time.Time) error {
	ci := gopacket.CaptureInfo{
		Timestamp:     ts,
		CaptureLength: len(frame),
		Length:        len(frame),
	}
	if err := w.pw.WritePacket(ci, frame); err != nil {
		return fmt.Errorf("writing capture record: %w", err)
	}
	return nil
}

// WriteFrame dispatches a fabricated frame to the capture file. It satisfies
// the frame sink interface of the emit package.
func (w *Writer) WriteFrame(frame []byte, ts time.Time) error {
	return w.WriteRecord(frame, ts)
}

// Package stream tracks per-direction TCP state for fabricated conversations.
// A connection is represented by a pair of Contexts, one per direction; the
// emit package mutates their sequence and acknowledgment counters as frames
// are fabricated.
package stream

import (
	"errors"
	"fmt"
	"net"
	"net/netip"
	"strconv"
)

// ErrAddress indicates an unusable address literal: unparsable, the
// unspecified address, or a source/destination family mismatch.
var ErrAddress = errors.New("address error")

// Family is the address family of one conversation. Exactly one of the two
// IP representations is reachable per family; the netip.Addr values in a
// Context always match the tag.
type Family int

const (
	FamilyIPv4 Family = iota + 1
	FamilyIPv6
)

func (f Family) String() string {
	switch f {
	case FamilyIPv4:
		return "ipv4"
	case FamilyIPv6:
		return "ipv6"
	default:
		return "unknown"
	}
}

// Context is one direction of a fabricated TCP conversation. Seq counts
// bytes this side has announced as sent, Ack counts bytes this side
// acknowledges from the peer. Both are advanced in place by the emitter;
// a Context must only be used by one logical caller at a time.
type Context struct {
	Family  Family
	SrcIP   netip.Addr
	DstIP   netip.Addr
	SrcPort uint16
	DstPort uint16
	SrcMAC  net.HardwareAddr
	DstMAC  net.HardwareAddr
	Seq     uint32
	Ack     uint32
}

// Build parses the four addressing strings into a Context with zeroed
// counters. The family is taken from srcAddr; a destination in a different
// family is rejected. No partial context is returned on failure.
func Build(srcAddr, srcPort, dstAddr, dstPort string) (*Context, error) {
	src, fam, err := parseAddr(srcAddr)
	if err != nil {
		return nil, err
	}
	dst, dstFam, err := parseAddr(dstAddr)
	if err != nil {
		return nil, err
	}
	if dstFam != fam {
		return nil, fmt.Errorf("%w: source %s is %s but destination %s is %s",
			ErrAddress, srcAddr, fam, dstAddr, dstFam)
	}

	sport, err := parsePort(srcPort)
	if err != nil {
		return nil, err
	}
	dport, err := parsePort(dstPort)
	if err != nil {
		return nil, err
	}

	return &Context{
		Family:  fam,
		SrcIP:   src,
		DstIP:   dst,
		SrcPort: sport,
		DstPort: dport,
	}, nil
}

// NewPair builds both directions of one conversation. The "from" context
// carries the given addressing as-is, the "to" context mirrors it.
func NewPair(srcAddr, srcPort, dstAddr, dstPort string, srcMAC, dstMAC net.HardwareAddr) (from, to *Context, err error) {
	from, err = Build(srcAddr, srcPort, dstAddr, dstPort)
	if err != nil {
		return nil, nil, err
	}
	to, err = Build(dstAddr, dstPort, srcAddr, srcPort)
	if err != nil {
		return nil, nil, err
	}
	from.SrcMAC, from.DstMAC = srcMAC, dstMAC
	to.SrcMAC, to.DstMAC = dstMAC, srcMAC
	return from, to, nil
}

func parseAddr(s string) (netip.Addr, Family, error) {
	addr, err := netip.ParseAddr(s)
	if err != nil {
		return netip.Addr{}, 0, fmt.Errorf("%w: %q: %v", ErrAddress, s, err)
	}
	// The all-zeros address is the conversion-failure sentinel of the
	// underlying address families; it can never appear in a trace.
	if addr.IsUnspecified() {
		return netip.Addr{}, 0, fmt.Errorf("%w: %q: unspecified address", ErrAddress, s)
	}
	if addr.Is4() || addr.Is4In6() {
		return addr.Unmap(), FamilyIPv4, nil
	}
	return addr, FamilyIPv6, nil
}

func parsePort(s string) (uint16, error) {
	p, err := strconv.ParseUint(s, 10, 16)
	if err != nil {
		return 0, fmt.Errorf("%w: port %q: %v", ErrAddress, s, err)
	}
	return uint16(p), nil
}

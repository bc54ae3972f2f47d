// Package mirror discovers and feeds a live mirror observer: it resolves the
// observer's hardware address over ARP and provides the injection sink that
// fabricated frames are transmitted through.
package mirror

import (
	"bytes"
	"errors"
	"fmt"
	"net"
	"net/netip"
	"time"

	"github.com/ghostcap/ghostcap/internal/pkg/logger"
	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcap"
)

var (
	// ErrResolve indicates the target or the resolving interface's own
	// addresses could not be determined.
	ErrResolve = errors.New("resolution error")

	// ErrCapture indicates the ARP reply capture could not be set up.
	ErrCapture = errors.New("capture error")

	// ErrTimeout indicates no valid ARP reply arrived within the retry
	// budget.
	ErrTimeout = errors.New("resolution timed out")
)

// Config bounds the ARP retry protocol. Only IPv4 mirror targets are
// supported.
type Config struct {
	Rounds        int           // request transmissions before giving up
	Interval      time.Duration // pause between rounds
	DispatchLimit int           // captured frames inspected per round
	SnapLen       int32         // reply capture snapshot length
	ReadTimeout   time.Duration // reply capture read timeout
}

// DefaultConfig returns the resolver defaults: 50 one-second rounds with up
// to 1000 frames inspected per round.
func DefaultConfig() Config {
	return Config{
		Rounds:        50,
		Interval:      time.Second,
		DispatchLimit: 1000,
		SnapLen:       100,
		ReadTimeout:   10 * time.Millisecond,
	}
}

// Resolution is the outcome of a successful lookup.
type Resolution struct {
	IfaceIP   netip.Addr       // resolving interface's IPv4 address
	IfaceMAC  net.HardwareAddr // resolving interface's hardware address
	TargetMAC net.HardwareAddr // discovered mirror target hardware address
}

// arpHandle is the slice of *pcap.Handle the resolver needs; tests provide
// scripted fakes.
type arpHandle interface {
	SetBPFFilter(filter string) error
	WritePacketData(data []byte) error
	ReadPacketData() ([]byte, gopacket.CaptureInfo, error)
	Close()
}

// Resolver performs bounded ARP lookups of mirror targets.
type Resolver struct {
	config Config

	// Injection points for deterministic tests.
	sleep       func(time.Duration)
	openLive    func(device string, snaplen int32, promisc bool, timeout time.Duration) (arpHandle, error)
	ifaceByName func(name string) (*net.Interface, error)
	ifaceAddrs  func(iface *net.Interface) ([]net.Addr, error)
}

// NewResolver creates a Resolver with the given retry bounds.
func NewResolver(config Config) *Resolver {
	return &Resolver{
		config: config,
		sleep:  time.Sleep,
		openLive: func(device string, snaplen int32, promisc bool, timeout time.Duration) (arpHandle, error) {
			return pcap.OpenLive(device, snaplen, promisc, timeout)
		},
		ifaceByName: net.InterfaceByName,
		ifaceAddrs:  (*net.Interface).Addrs,
	}
}

// Lookup resolves the hardware address of the IPv4 mirror target dstIP by
// broadcasting ARP requests on ifaceName and inspecting the replies. It
// blocks for up to Rounds*Interval; callers needing bounded latency must
// impose it externally. The capture handle and its filter are released on
// every exit path.
func (r *Resolver) Lookup(dstIP, ifaceName string) (*Resolution, error) {
	target, err := netip.ParseAddr(dstIP)
	if err != nil || !target.Is4() {
		return nil, fmt.Errorf("%w: mirror target %q is not an IPv4 address", ErrResolve, dstIP)
	}
	targetIP := target.As4()

	iface, err := r.ifaceByName(ifaceName)
	if err != nil {
		return nil, fmt.Errorf("%w: interface %s: %v", ErrResolve, ifaceName, err)
	}
	if len(iface.HardwareAddr) != 6 {
		return nil, fmt.Errorf("%w: interface %s has no hardware address", ErrResolve, ifaceName)
	}
	srcIP, err := r.interfaceIPv4(iface)
	if err != nil {
		return nil, err
	}

	request, err := buildRequest(iface.HardwareAddr, srcIP, targetIP)
	if err != nil {
		return nil, err
	}

	handle, err := r.openLive(ifaceName, r.config.SnapLen, false, r.config.ReadTimeout)
	if err != nil {
		return nil, fmt.Errorf("%w: opening capture on %s: %v", ErrCapture, ifaceName, err)
	}
	defer handle.Close()

	if err := handle.SetBPFFilter("arp"); err != nil {
		return nil, fmt.Errorf("%w: setting arp filter: %v", ErrCapture, err)
	}

	for round := 0; round < r.config.Rounds; round++ {
		if err := handle.WritePacketData(request); err != nil {
			return nil, fmt.Errorf("writing arp request: %w", err)
		}

		// Bound the number of frames inspected per round so the loop
		// keeps re-sending requests on busy segments.
		for i := 0; i < r.config.DispatchLimit; i++ {
			data, _, err := handle.ReadPacketData()
			if err != nil {
				if errors.Is(err, pcap.NextErrorTimeoutExpired) {
					break // capture buffer drained
				}
				return nil, fmt.Errorf("%w: dispatching replies: %v", ErrCapture, err)
			}
			if mac, ok := inspectReply(data, targetIP); ok {
				logger.Debug("Mirror target is up",
					"target", dstIP, "mac", mac.String())
				return &Resolution{
					IfaceIP:   srcIP,
					IfaceMAC:  iface.HardwareAddr,
					TargetMAC: mac,
				}, nil
			}
		}

		if round < r.config.Rounds-1 {
			r.sleep(r.config.Interval)
		}
	}

	return nil, fmt.Errorf("%w: no arp reply from %s after %d rounds",
		ErrTimeout, dstIP, r.config.Rounds)
}

// inspectReply accepts a captured frame as the answer only if it is an
// Ethernet/IPv4 ARP reply whose sender protocol address is the target being
// resolved and whose ARP sender hardware address matches the Ethernet source
// address. The last check rejects spoofed or relayed replies.
func inspectReply(data []byte, targetIP [4]byte) (net.HardwareAddr, bool) {
	pkt := gopacket.NewPacket(data, layers.LayerTypeEthernet, gopacket.NoCopy)
	ethLayer := pkt.Layer(layers.LayerTypeEthernet)
	arpLayer := pkt.Layer(layers.LayerTypeARP)
	if ethLayer == nil || arpLayer == nil {
		return nil, false
	}
	eth := ethLayer.(*layers.Ethernet)
	arp := arpLayer.(*layers.ARP)

	if arp.Operation != layers.ARPReply {
		return nil, false
	}
	if arp.Protocol != layers.EthernetTypeIPv4 {
		return nil, false
	}
	if arp.AddrType != layers.LinkTypeEthernet {
		return nil, false
	}
	if !bytes.Equal(arp.SourceProtAddress, targetIP[:]) {
		return nil, false
	}
	if !bytes.Equal(arp.SourceHwAddress, eth.SrcMAC) {
		return nil, false
	}

	mac := make(net.HardwareAddr, len(arp.SourceHwAddress))
	copy(mac, arp.SourceHwAddress)
	return mac, true
}

// buildRequest serializes one broadcast ARP request for targetIP.
func buildRequest(srcMAC net.HardwareAddr, srcIP netip.Addr, targetIP [4]byte) ([]byte, error) {
	src4 := srcIP.As4()
	eth := layers.Ethernet{
		SrcMAC:       srcMAC,
		DstMAC:       net.HardwareAddr{0xff, 0xff, 0xff, 0xff, 0xff, 0xff},
		EthernetType: layers.EthernetTypeARP,
	}
	arp := layers.ARP{
		AddrType:          layers.LinkTypeEthernet,
		Protocol:          layers.EthernetTypeIPv4,
		HwAddressSize:     6,
		ProtAddressSize:   4,
		Operation:         layers.ARPRequest,
		SourceHwAddress:   []byte(srcMAC),
		SourceProtAddress: src4[:],
		DstHwAddress:      []byte{0, 0, 0, 0, 0, 0},
		DstProtAddress:    targetIP[:],
	}

	buf := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{FixLengths: true, ComputeChecksums: true}
	if err := gopacket.SerializeLayers(buf, opts, &eth, &arp); err != nil {
		return nil, fmt.Errorf("building arp request: %w", err)
	}
	return buf.Bytes(), nil
}

// interfaceIPv4 returns the first IPv4 address assigned to iface.
func (r *Resolver) interfaceIPv4(iface *net.Interface) (netip.Addr, error) {
	addrs, err := r.ifaceAddrs(iface)
	if err != nil {
		return netip.Addr{}, fmt.Errorf("%w: addresses of %s: %v", ErrResolve, iface.Name, err)
	}
	for _, addr := range addrs {
		ipnet, ok := addr.(*net.IPNet)
		if !ok {
			continue
		}
		if v4 := ipnet.IP.To4(); v4 != nil {
			ip, _ := netip.AddrFromSlice(v4)
			return ip, nil
		}
	}
	return netip.Addr{}, fmt.Errorf("%w: interface %s has no IPv4 address", ErrResolve, iface.Name)
}

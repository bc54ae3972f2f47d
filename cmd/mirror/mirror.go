// Package mirror implements the mirror command: resolve a mirror observer's
// hardware address over ARP and transmit a fabricated conversation toward it
// on a live segment.
package mirror

import (
	"context"
	"os"
	"time"

	"github.com/ghostcap/ghostcap/internal/pkg/addrutil"
	"github.com/ghostcap/ghostcap/internal/pkg/cmdutil"
	"github.com/ghostcap/ghostcap/internal/pkg/emit"
	"github.com/ghostcap/ghostcap/internal/pkg/logger"
	"github.com/ghostcap/ghostcap/internal/pkg/mirror"
	"github.com/ghostcap/ghostcap/internal/pkg/signals"
	"github.com/ghostcap/ghostcap/internal/pkg/stream"
	"github.com/spf13/cobra"
)

var MirrorCmd = &cobra.Command{
	Use:   "mirror",
	Short: "Mirror fabricated traffic to a live observer",
	Long: `Mirror fabricated traffic to a live observer. The observer's hardware
address is discovered over ARP on the given interface, then the payload is
replayed toward it as a synthetic TCP conversation.`,
	Run: runMirror,
}

var (
	ifaceName   string
	targetIP    string
	srcEndpoint string
	dstEndpoint string
	payloadPath string
	handshake   bool
	teardown    bool
	arpRounds   int
	arpInterval time.Duration
	arpDispatch int
)

func runMirror(cmd *cobra.Command, args []string) {
	if err := run(); err != nil {
		logger.Error("Mirroring failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	cleanup := signals.SetupHandler(ctx, cancel)
	defer cleanup()

	payload, err := cmdutil.ReadInput(payloadPath)
	if err != nil {
		return err
	}

	srcHost, srcPort, err := addrutil.SplitEndpoint(srcEndpoint)
	if err != nil {
		return err
	}
	dstHost, dstPort, err := addrutil.SplitEndpoint(dstEndpoint)
	if err != nil {
		return err
	}

	config := mirror.DefaultConfig()
	config.Rounds = cmdutil.GetIntConfig("mirror.arp_rounds", arpRounds)
	config.Interval = cmdutil.GetDurationConfig("mirror.arp_interval", arpInterval)
	config.DispatchLimit = cmdutil.GetIntConfig("mirror.arp_dispatch", arpDispatch)

	// Resolution can block for the whole retry budget; run it off the
	// signal context so an interrupt exits cleanly.
	logger.Info("Resolving mirror target", "target", targetIP, "interface", ifaceName)
	resolver := mirror.NewResolver(config)
	type outcome struct {
		res *mirror.Resolution
		err error
	}
	resolved := make(chan outcome, 1)
	go func() {
		res, err := resolver.Lookup(targetIP, ifaceName)
		resolved <- outcome{res, err}
	}()

	var res *mirror.Resolution
	select {
	case <-ctx.Done():
		return ctx.Err()
	case o := <-resolved:
		if o.err != nil {
			return o.err
		}
		res = o.res
	}
	logger.Info("Mirror target is up", "target", targetIP, "mac", res.TargetMAC.String())

	from, to, err := stream.NewPair(srcHost, srcPort, dstHost, dstPort, res.IfaceMAC, res.TargetMAC)
	if err != nil {
		return err
	}

	sink, err := mirror.OpenSink(ifaceName)
	if err != nil {
		return err
	}
	defer sink.Close()

	emitter := emit.NewEmitter(emit.NewLayerBuilder(), sink)

	if handshake {
		if err := emitter.WriteHandshake(from, to); err != nil {
			return err
		}
	}
	if err := emitter.WritePayload(from, to, emit.FlagPSH|emit.FlagACK, payload); err != nil {
		return err
	}
	if teardown {
		if err := emitter.WriteClose(from, to); err != nil {
			return err
		}
	}

	logger.Info("Mirrored trace",
		"interface", ifaceName,
		"target", targetIP,
		"payload_bytes", len(payload))
	return nil
}

func init() {
	MirrorCmd.Flags().StringVarP(&ifaceName, "interface", "i", "", "interface to resolve and inject on")
	MirrorCmd.Flags().StringVarP(&targetIP, "target", "t", "", "mirror observer IPv4 address")
	MirrorCmd.Flags().StringVarP(&srcEndpoint, "src", "s", "", "source endpoint as host:port")
	MirrorCmd.Flags().StringVarP(&dstEndpoint, "dst", "d", "", "destination endpoint as host:port")
	MirrorCmd.Flags().StringVarP(&payloadPath, "payload", "p", "-", "payload file, - for stdin")
	MirrorCmd.Flags().BoolVar(&handshake, "handshake", false, "fabricate the opening handshake")
	MirrorCmd.Flags().BoolVar(&teardown, "close", false, "fabricate the closing exchange")
	MirrorCmd.Flags().IntVar(&arpRounds, "arp-rounds", 50, "ARP request rounds before giving up")
	MirrorCmd.Flags().DurationVar(&arpInterval, "arp-interval", time.Second, "pause between ARP rounds")
	MirrorCmd.Flags().IntVar(&arpDispatch, "arp-dispatch", 1000, "captured frames inspected per round")
	MirrorCmd.MarkFlagRequired("interface")
	MirrorCmd.MarkFlagRequired("target")
	MirrorCmd.MarkFlagRequired("src")
	MirrorCmd.MarkFlagRequired("dst")
}

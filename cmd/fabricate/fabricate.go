// Package fabricate implements the fabricate command: replay intercepted
// payload bytes into a pcap capture file as a synthetic TCP conversation.
package fabricate

import (
	"net"
	"os"

	"github.com/ghostcap/ghostcap/internal/pkg/addrutil"
	"github.com/ghostcap/ghostcap/internal/pkg/capfile"
	"github.com/ghostcap/ghostcap/internal/pkg/cmdutil"
	"github.com/ghostcap/ghostcap/internal/pkg/emit"
	"github.com/ghostcap/ghostcap/internal/pkg/logger"
	"github.com/ghostcap/ghostcap/internal/pkg/stream"
	"github.com/spf13/cobra"
)

var FabricateCmd = &cobra.Command{
	Use:   "fabricate",
	Short: "Fabricate a pcap trace from payload bytes",
	Long: `Fabricate a pcap trace from payload bytes. The payload is replayed as a
sequence-consistent TCP conversation between the given endpoints and appended
to the capture file. An existing capture file is continued, anything else is
restarted.`,
	Run: fabricate,
}

var (
	srcEndpoint string
	dstEndpoint string
	srcMACText  string
	dstMACText  string
	payloadPath string
	writeFile   string
	handshake   bool
	teardown    bool
)

func fabricate(cmd *cobra.Command, args []string) {
	if err := run(); err != nil {
		logger.Error("Fabrication failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
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

	srcMAC, err := net.ParseMAC(srcMACText)
	if err != nil {
		return err
	}
	dstMAC, err := net.ParseMAC(dstMACText)
	if err != nil {
		return err
	}

	from, to, err := stream.NewPair(srcHost, srcPort, dstHost, dstPort, srcMAC, dstMAC)
	if err != nil {
		return err
	}

	f, err := os.OpenFile(writeFile, os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		return err
	}
	defer f.Close()

	w, err := capfile.Open(f)
	if err != nil {
		return err
	}

	emitter := emit.NewEmitter(emit.NewLayerBuilder(), w)

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

	logger.Info("Fabricated trace",
		"file", writeFile,
		"payload_bytes", len(payload),
		"src", srcEndpoint,
		"dst", dstEndpoint)
	return nil
}

func init() {
	FabricateCmd.Flags().StringVarP(&srcEndpoint, "src", "s", "", "source endpoint as host:port")
	FabricateCmd.Flags().StringVarP(&dstEndpoint, "dst", "d", "", "destination endpoint as host:port")
	FabricateCmd.Flags().StringVar(&srcMACText, "src-mac", "02:00:00:00:00:01", "source hardware address")
	FabricateCmd.Flags().StringVar(&dstMACText, "dst-mac", "02:00:00:00:00:02", "destination hardware address")
	FabricateCmd.Flags().StringVarP(&payloadPath, "payload", "p", "-", "payload file, - for stdin")
	FabricateCmd.Flags().StringVarP(&writeFile, "write", "w", "", "pcap file to write or append to")
	FabricateCmd.Flags().BoolVar(&handshake, "handshake", false, "fabricate the opening handshake")
	FabricateCmd.Flags().BoolVar(&teardown, "close", false, "fabricate the closing exchange")
	FabricateCmd.MarkFlagRequired("src")
	FabricateCmd.MarkFlagRequired("dst")
	FabricateCmd.MarkFlagRequired("write")
}

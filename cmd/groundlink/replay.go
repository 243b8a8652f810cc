package main

import (
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/muurk/groundlink/internal/dispatcher"
	"github.com/muurk/groundlink/internal/logging"
	"github.com/muurk/groundlink/internal/protocol"
	"github.com/muurk/groundlink/internal/replay"
	"github.com/muurk/groundlink/internal/ui"
)

// Replay command flags
var (
	replayPcap      bool
	replayUDPPort   uint16
	replayChunkSize int
	replayRealtime  bool
)

var replayCmd = &cobra.Command{
	Use:   "replay <file>",
	Short: "Replay a capture and report per-source loss",
	Long: `Feed a recorded stream through the decoder and print the counters it produces.

Raw captures written by 'serve --capture' are replayed as a single link.
pcap and pcapng files are detected by extension (or forced with --pcap);
each UDP flow in them is replayed as its own link.`,
	Example: `  # Replay a raw capture
  groundlink replay flight.bin

  # Replay only the MAVLink port of a network capture
  groundlink replay field-test.pcapng --udp-port 14550`,
	Args: cobra.ExactArgs(1),
	RunE: runReplay,
}

func init() {
	replayCmd.Flags().BoolVar(&replayPcap, "pcap", false, "Treat the file as pcap/pcapng")
	replayCmd.Flags().Uint16Var(&replayUDPPort, "udp-port", 0, "Only replay UDP datagrams to or from this port (pcap)")
	replayCmd.Flags().IntVar(&replayChunkSize, "chunk-size", replay.DefaultChunkSize, "Delivery size for raw captures")
	replayCmd.Flags().BoolVar(&replayRealtime, "realtime", false, "Honour pcap timestamps between packets")

	rootCmd.AddCommand(replayCmd)
}

func isPcapPath(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".pcap", ".pcapng", ".cap":
		return true
	}
	return false
}

func runReplay(cmd *cobra.Command, args []string) error {
	path := args[0]

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if err := initLogging(cfg); err != nil {
		return err
	}
	defer logging.Sync()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	codec, err := protocol.NewCodec(nil)
	if err != nil {
		return err
	}
	d := dispatcher.New(cfg.Dispatcher(), codec)
	defer d.Close()

	var statuses []string
	unsub := d.Subscribe(dispatcher.ListenerFuncs{
		OnStatus: func(title, text string) {
			statuses = append(statuses, title+": "+text)
		},
	})
	defer unsub()

	pcap := replayPcap || isPcapPath(path)
	mode := "raw"
	if pcap {
		mode = "pcap"
	}

	out := cmd.OutOrStdout()
	fmt.Fprintln(out, ui.NewHeader("Replay", "groundlink replay "+path,
		ui.Param{Key: "File", Value: path},
		ui.Param{Key: "Format", Value: mode},
	).Render())

	opts := replay.Options{
		ChunkSize: replayChunkSize,
		UDPPort:   replayUDPPort,
		Realtime:  replayRealtime,
	}

	var st replay.Stats
	if pcap {
		st, err = replay.Pcap(ctx, path, d, opts)
	} else {
		st, err = replay.File(ctx, path, d, opts)
	}
	if err != nil {
		return err
	}

	ds := d.Stats()
	fmt.Fprintln(out)
	fmt.Fprintln(out, ui.RenderSourceSummary(d.Snapshot()))
	fmt.Fprintln(out)
	fmt.Fprintln(out, ui.MutedStyle.Render(fmt.Sprintf("  %d bytes in %d chunks, %d flows, %d messages, %d dropped bytes, %d filtered",
		st.Bytes, st.Chunks, max(st.Flows, 1), ds.Messages, ds.DroppedBytes, ds.Filtered)))
	if st.Skipped > 0 {
		fmt.Fprintln(out, ui.MutedStyle.Render("  "+strconv.Itoa(st.Skipped)+" packets skipped"))
	}
	for _, s := range statuses {
		fmt.Fprintln(out, ui.StatusTitleStyle.Render("  "+s))
	}
	return nil
}

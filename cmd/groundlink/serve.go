package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/muurk/groundlink/internal/config"
	"github.com/muurk/groundlink/internal/discovery"
	"github.com/muurk/groundlink/internal/dispatcher"
	"github.com/muurk/groundlink/internal/link"
	"github.com/muurk/groundlink/internal/logging"
	"github.com/muurk/groundlink/internal/metrics"
	"github.com/muurk/groundlink/internal/monitor"
	"github.com/muurk/groundlink/internal/protocol"
	"github.com/muurk/groundlink/internal/ui"
	"github.com/muurk/groundlink/internal/version"
)

// Serve command flags
var (
	serveLinks     []string
	serveCapture   string
	serveTUI       bool
	serveMetrics   string
	serveAdvertise bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Receive MAVLink traffic and track packet loss",
	Long: `Open every configured link and account for the MAVLink traffic received.

Links come from the config file unless --link is given, in which case only
the links named on the command line are opened. Link specifications take
the form type:address, for example:

  udp:0.0.0.0:14550           listen for datagrams
  tcp:192.168.1.10:5760       connect to a TCP endpoint
  tcp-server::5760            accept TCP connections
  serial:/dev/ttyUSB0@57600   open a serial port
  ws:ws://host:8080/mavlink   connect to a WebSocket
  ws-server::8080             accept WebSocket connections`,
	Example: `  # Listen on the standard UDP port
  groundlink serve

  # Two links with a live dashboard
  groundlink serve --link udp:0.0.0.0:14550 --link serial:/dev/ttyACM0@115200 --tui

  # Record the raw inbound stream while serving metrics
  groundlink serve --capture flight.bin --metrics :9464`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringArrayVar(&serveLinks, "link", nil, "Link specification type:address (repeatable, replaces configured links)")
	serveCmd.Flags().StringVar(&serveCapture, "capture", "", "Record all inbound bytes to this file")
	serveCmd.Flags().BoolVar(&serveTUI, "tui", false, "Show the live dashboard")
	serveCmd.Flags().StringVar(&serveMetrics, "metrics", "", "Serve Prometheus metrics on this address")
	serveCmd.Flags().BoolVar(&serveAdvertise, "advertise", false, "Advertise the station over mDNS")

	rootCmd.AddCommand(serveCmd)
}

// applyServeFlags merges command line overrides into cfg.
func applyServeFlags(cfg *config.Config) error {
	if len(serveLinks) > 0 {
		cfg.Links = cfg.Links[:0]
		for _, spec := range serveLinks {
			lc, err := link.ParseSpec(spec)
			if err != nil {
				return err
			}
			cfg.Links = append(cfg.Links, config.LinkConfig{
				Name:      lc.Name,
				Type:      string(lc.Type),
				Address:   lc.Address,
				BaudRate:  lc.BaudRate,
				Reconnect: lc.Reconnect,
			})
		}
	}
	if serveCapture != "" {
		cfg.Capture.Path = serveCapture
	}
	if serveMetrics != "" {
		cfg.Metrics.Enabled = true
		cfg.Metrics.Listen = serveMetrics
	}
	if serveAdvertise {
		cfg.Advertise.Enabled = true
	}
	return cfg.Validate()
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if err := applyServeFlags(cfg); err != nil {
		return err
	}

	tui := dashboardEnabled(serveTUI, ui.IsTerminal(), cmd.ErrOrStderr())
	if tui {
		logging.InitializeFileOnly(effectiveLogLevel(cfg), cfg.Log.FileOptions())
	} else if err := initLogging(cfg); err != nil {
		return err
	}
	defer logging.Sync()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := startStation(ctx, cfg)
	if err != nil {
		return err
	}

	logging.Info("Groundlink started",
		zap.String("version", version.String()),
		zap.Int("links", len(cfg.Links)),
		zap.Uint8("system_id", cfg.SystemID),
	)

	if tui {
		err = runDashboard(ctx, st, cfg)
		stop()
	} else {
		<-ctx.Done()
		logging.Info("Shutdown signal received, stopping links...")
	}

	err = multierr.Append(err, st.shutdown())
	fmt.Fprintln(cmd.OutOrStdout(), ui.RenderSourceSummary(st.dispatcher.Snapshot()))
	return err
}

// dashboardEnabled falls back to plain log output when --tui is set but stdout
// is not a terminal.
func dashboardEnabled(requested, isTerminal bool, w io.Writer) bool {
	if !requested {
		return false
	}
	if !isTerminal {
		fmt.Fprintln(w, "warning: --tui needs a terminal on stdout, continuing without the dashboard")
		return false
	}
	return true
}

// station holds the running components of serve.
type station struct {
	dispatcher *dispatcher.Dispatcher
	links      *link.Manager
	monitor    *monitor.Monitor
	metrics    *metrics.Server
	advertiser *discovery.Advertiser
	unsub      func()
}

func startStation(ctx context.Context, cfg *config.Config) (*station, error) {
	codec, err := protocol.NewCodec(nil)
	if err != nil {
		return nil, err
	}

	st := &station{dispatcher: dispatcher.New(cfg.Dispatcher(), codec)}
	st.unsub = st.dispatcher.Subscribe(dispatcher.ListenerFuncs{
		OnStatus: func(title, text string) {
			logging.Warn(title, zap.String("detail", text))
		},
	})

	if cfg.Capture.Path != "" {
		if err := st.dispatcher.StartCapture(cfg.Capture.Path); err != nil {
			_ = st.dispatcher.Close()
			return nil, err
		}
		logging.Info("Capture started", zap.String("path", cfg.Capture.Path))
	}

	st.links = link.NewManager(st.dispatcher)
	for _, lc := range cfg.LinkConfigs() {
		if _, err := st.links.Add(lc); err != nil {
			_ = st.dispatcher.Close()
			return nil, err
		}
	}
	st.links.Start(ctx)

	st.monitor = monitor.New(st.dispatcher, cfg.RateInterval)
	samples := make(chan []monitor.Sample, 1)
	go st.monitor.Run(ctx, samples)
	go logLoss(ctx, samples)

	if cfg.Metrics.Enabled {
		srv, err := metrics.NewServer(cfg.Metrics.Listen, cfg.Metrics.Path,
			metrics.NewCollector(st.dispatcher, st.links, st.monitor))
		if err == nil {
			err = srv.Start(ctx)
		}
		if err != nil {
			return nil, multierr.Append(err, st.shutdown())
		}
		st.metrics = srv
	}

	if cfg.Advertise.Enabled {
		adv, err := discovery.Advertise(discovery.Registration{
			Instance:    cfg.Advertise.Instance,
			Port:        cfg.AdvertisePort(),
			SystemID:    cfg.SystemID,
			ComponentID: cfg.ComponentID,
			Version:     version.String(),
		})
		if err != nil {
			logging.Warn("mDNS advertisement unavailable", zap.Error(err))
		} else {
			st.advertiser = adv
		}
	}

	return st, nil
}

// logLoss reports sources that lost messages in the last interval.
func logLoss(ctx context.Context, samples <-chan []monitor.Sample) {
	for {
		select {
		case <-ctx.Done():
			return
		case batch := <-samples:
			for _, s := range batch {
				if s.Lost == 0 {
					continue
				}
				logging.Info("Packet loss",
					zap.Uint8("sysid", s.Source),
					zap.Uint64("received", s.Received),
					zap.Uint64("lost", s.Lost),
					zap.String("rate", ui.FormatRate(s.Rate)),
				)
			}
		}
	}
}

func runDashboard(ctx context.Context, st *station, cfg *config.Config) error {
	capturePath := cfg.Capture.Path
	if capturePath == "" {
		capturePath = "groundlink-capture.bin"
	}

	dash := ui.NewDashboard(ui.DashboardConfig{
		Source:      st.dispatcher,
		Links:       st.links,
		Rates:       st.monitor,
		Refresh:     cfg.RateInterval,
		CapturePath: capturePath,
	})
	p := tea.NewProgram(dash, tea.WithAltScreen(), tea.WithContext(ctx))
	unsub := st.dispatcher.Subscribe(dash.Listener(p.Send))
	defer unsub()

	_, err := p.Run()
	if errors.Is(err, tea.ErrProgramKilled) {
		return nil
	}
	return err
}

// shutdown stops components in reverse start order.
func (st *station) shutdown() error {
	var err error
	if st.advertiser != nil {
		st.advertiser.Stop()
	}
	if st.metrics != nil {
		err = multierr.Append(err, st.metrics.Stop(context.Background()))
	}
	if st.links != nil {
		err = multierr.Append(err, st.links.Stop())
	}
	st.unsub()
	return multierr.Append(err, st.dispatcher.Close())
}

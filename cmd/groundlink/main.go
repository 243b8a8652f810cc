// Groundlink receives MAVLink telemetry from UDP, TCP, serial and WebSocket
// links and accounts for every source system's packet loss.
//
// It decodes each link's byte stream independently, counts received and
// lost messages per source system from sequence gaps, can record the raw
// inbound stream for later replay, and exposes the counters to Prometheus
// and a terminal dashboard.
//
// Usage:
//
//	groundlink [command] [flags]
//
// See 'groundlink --help' for available commands.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/muurk/groundlink/internal/config"
	"github.com/muurk/groundlink/internal/logging"
	"github.com/muurk/groundlink/internal/version"
)

// Global flags
var (
	configPath string
	logLevel   string
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "groundlink",
	Short: "MAVLink ground station link monitor",
	Long: `A MAVLink receiver for ground stations.

Groundlink listens on one or more links, decodes MAVLink 1 and 2 frames,
tracks per-vehicle packet loss from sequence numbers and can record the raw
inbound stream for replay.`,
	Version:       version.String(),
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.CompletionOptions.DisableDefaultCmd = true

	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Config file (default is $XDG_CONFIG_HOME/groundlink/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level (debug, info, warn, error), overrides the config file")

	rootCmd.AddCommand(versionCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "groundlink %s\n", version.Full())
	},
}

// loadConfig reads --config, or the default location when unset.
func loadConfig() (*config.Config, error) {
	if configPath != "" {
		return config.Load(configPath)
	}
	return config.LoadDefault()
}

// effectiveLogLevel prefers the flag over the file.
func effectiveLogLevel(cfg *config.Config) string {
	if logLevel != "" {
		return logLevel
	}
	return cfg.Log.Level
}

func initLogging(cfg *config.Config) error {
	if err := logging.InitializeWithFile(effectiveLogLevel(cfg), cfg.Log.FileOptions()); err != nil {
		return fmt.Errorf("failed to initialize logging: %w", err)
	}
	return nil
}

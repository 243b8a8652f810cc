package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/muurk/groundlink/internal/discovery"
	"github.com/muurk/groundlink/internal/ui"
)

var discoverTimeout time.Duration

var discoverCmd = &cobra.Command{
	Use:   "discover",
	Short: "Find groundlink stations on the local network",
	Long: `Browse mDNS for stations started with 'serve --advertise' and print
the link specification for reaching each one.`,
	Example: `  groundlink discover
  groundlink discover --timeout 10s`,
	RunE: runDiscover,
}

func init() {
	discoverCmd.Flags().DurationVar(&discoverTimeout, "timeout", discovery.DefaultScanTimeout, "How long to listen for answers")
	rootCmd.AddCommand(discoverCmd)
}

func runDiscover(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	fmt.Fprintln(out, ui.NewHeader("Discover", "groundlink discover",
		ui.Param{Key: "Service", Value: discovery.ServiceType},
		ui.Param{Key: "Timeout", Value: discoverTimeout.String()},
	).Render())

	scanner := discovery.NewScanner()
	scanner.Timeout = discoverTimeout

	endpoints, err := scanner.Scan(cmd.Context())
	if err != nil {
		return err
	}
	fmt.Fprintln(out, ui.RenderEndpoints(endpoints))
	return nil
}

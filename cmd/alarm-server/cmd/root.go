package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/LeoXDXp/ACS/internal/config"
	"github.com/LeoXDXp/ACS/internal/service/collector"
	"github.com/LeoXDXp/ACS/internal/version"
)

var (
	// configPath to the configuration YAML file.
	configPath string
	// stateFile overrides the collector state file from settings.
	stateFile string
	// metricsAddress overrides the Prometheus listen address from settings.
	metricsAddress string

	// rootCmd represents the base command for running the fault collector.
	rootCmd = &cobra.Command{
		Use:   "alarm-server [listen-address]",
		Short: "Run the fault collector that receives alarms from the external backend.",
		Long: `Starts the gRPC fault collector that the external alarm backend pushes to.

Only the port of the collector address from the settings file is used for
listening (e.g., :50061). A listen address argument overrides it.
The latest fault state per family/member/code is persisted to a JSON file
and restored on restart. When a metrics address is configured, Prometheus
metrics are served on /metrics.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
			defer stop()

			var listenAddress string
			if len(args) > 0 {
				listenAddress = args[0]
			}

			options := &collector.Options{
				ConfigPath:     configPath,
				ListenAddress:  listenAddress,
				StateFile:      stateFile,
				MetricsAddress: metricsAddress,
			}

			return collector.Run(ctx, options)
		},
	}
)

// Execute runs the alarm-server CLI and exits with non-zero status on error.
func Execute() {
	version.AttachCobraVersionCommand(rootCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

//nolint:gochecknoinits // Required by Cobra CLI framework architecture.
func init() {
	rootCmd.Flags().StringVarP(&configPath, "config", "c", config.DefaultConfigFilename, "path to configuration file")
	rootCmd.Flags().StringVarP(&stateFile, "state-file", "s", "", "path to persist fault states (overrides settings)")
	rootCmd.Flags().StringVarP(&metricsAddress, "metrics-address", "m", "", "Prometheus listen address (overrides settings)")
}

package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/LeoXDXp/ACS/internal/config"
	"github.com/LeoXDXp/ACS/internal/service/raiser"
	"github.com/LeoXDXp/ACS/internal/version"
)

var (
	// options collects the flag values.
	options = new(raiser.Options)
	// clearAlarm sends TERMINATE instead of ACTIVE.
	clearAlarm bool

	// rootCmd raises or clears one alarm through the alarm-source factory.
	rootCmd = &cobra.Command{
		Use:   "alarm-raise",
		Short: "Raise or clear an alarm through the alarm-source factory.",
		Long: `Bootstraps the alarm-source factory from the settings file and pushes one
fault state through its shared source.

The backend is chosen by the "Implementation" property of the configured
configuration service: "CERN" selects the external backend, which forwards
to the fault collector; anything else, or no reachable configuration
service, selects the native backend, which writes the alarm to the log.`,
		Args: cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
			defer stop()

			options.Active = !clearAlarm

			return raiser.Run(ctx, options)
		},
	}
)

// Execute runs the alarm-raise CLI and exits with non-zero status on error.
func Execute() {
	version.AttachCobraVersionCommand(rootCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

//nolint:gochecknoinits // Required by Cobra CLI framework architecture.
func init() {
	flags := rootCmd.Flags()

	flags.StringVarP(&options.ConfigPath, "config", "c", config.DefaultConfigFilename, "path to configuration file")
	flags.StringVarP(&options.Family, "family", "f", "", "fault family")
	flags.StringVarP(&options.Member, "member", "m", "", "fault member")
	flags.IntVarP(&options.Code, "code", "k", 0, "fault code")
	flags.BoolVar(&clearAlarm, "clear", false, "send TERMINATE instead of ACTIVE")
	flags.StringToStringVarP(&options.Properties, "property", "p", nil, "user property as key=value, repeatable")
	flags.StringVar(&options.SourceName, "source", "", "source name (the shared source is always used)")
	flags.IntVarP(&options.Repeat, "repeat", "n", 1, "number of times to push the alarm")
	flags.IntVarP(&options.Rate, "rate", "r", 0, "pushes per second when repeating, 0 for unpaced")

	_ = rootCmd.MarkFlagRequired("family")
	_ = rootCmd.MarkFlagRequired("member")
}

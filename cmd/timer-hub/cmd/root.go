package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/oshokin/satellite-timers/internal/config"
	"github.com/oshokin/satellite-timers/internal/logger"
	"github.com/oshokin/satellite-timers/internal/service/hub"
	"github.com/oshokin/satellite-timers/internal/version"
)

var (
	// configPath to the configuration YAML file.
	configPath string
	// listenAddress overrides the configured websocket listen address.
	listenAddress string
	// databaseFile path where timers are persisted.
	databaseFile string
	// logLevel sets the logging verbosity.
	logLevel string
	// h24 switches displayed clock times to 24-hour format.
	h24 bool

	// rootCmd represents the base command for running the timer hub.
	rootCmd = &cobra.Command{
		Use:   "timer-hub",
		Short: "Run the satellite timer hub.",
		Long: `Starts the websocket hub that manages timers, alarms and reminders for
voice satellites.

Satellites connect to the /ws endpoint to create and resolve timers and to
receive expiry, snooze and dismissal events. Timers are persisted to SQLite
and re-armed after a restart; overdue ones fire immediately.`,
		Args: cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			if level, ok := logger.ParseLogLevel(logLevel); ok {
				logger.SetLevel(level)
			}

			// Setup graceful shutdown handling.
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
			defer stop()

			options := &hub.Options{
				ConfigPath:    configPath,
				ListenAddress: listenAddress,
				DatabaseFile:  databaseFile,
				H24:           h24,
			}

			return hub.Run(ctx, options)
		},
	}
)

// Execute runs the timer-hub CLI and exits with non-zero status on error.
func Execute() {
	version.AttachCobraVersionCommand(rootCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

//nolint:gochecknoinits // Required by Cobra CLI framework architecture.
func init() {
	// Setup command flags with consistent naming and descriptions.
	rootCmd.Flags().StringVarP(&configPath, "config", "c", config.DefaultConfigFilename, "path to configuration file")
	rootCmd.Flags().
		StringVarP(&listenAddress, "listen", "l", "", "websocket listen address (overrides config, e.g. :9090)")
	rootCmd.Flags().
		StringVarP(&databaseFile, "database", "d", "", "path to the SQLite database (overrides config)")
	rootCmd.Flags().StringVar(&logLevel, "log-level", "info", "log level: debug, info, warn, error, fatal")
	rootCmd.Flags().BoolVar(&h24, "24h", false, "render clock times in 24-hour format")
}

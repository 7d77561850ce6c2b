package main

import (
	"fmt"
	"os"

	"github.com/awnumar/memguard"
	"github.com/spf13/cobra"

	"github.com/systmms/credcache/cmd/credcache/commands"
	"github.com/systmms/credcache/internal/config"
	"github.com/systmms/credcache/internal/logging"
	"github.com/systmms/credcache/internal/metrics"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	memguard.CatchInterrupt()
	defer memguard.Purge()

	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		memguard.Purge()
		os.Exit(1)
	}
}

func run() error {
	// Global flags
	var (
		configFile      string
		envFile         string
		noColor         bool
		debug           bool
		metricsTextfile string
	)

	cfg := config.New("", "", nil)

	rootCmd := &cobra.Command{
		Use:   "credcache",
		Short: "Encrypted local cache for 1Password credentials",
		Long: `credcache fetches credential fields from 1Password and keeps them in an
encrypted local file for a configurable time, so repeated requests do not
shell out to the op CLI every time.`,
		Version:       fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			cfg.Path = configFile
			cfg.EnvFile = envFile
			cfg.Logger = logging.New(debug, noColor)
			cfg.Metrics = metrics.NewRecorder()
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			if metricsTextfile == "" {
				return nil
			}
			if err := cfg.Metrics.WriteTextfile(metricsTextfile); err != nil {
				return fmt.Errorf("failed to write metrics to %s: %w", metricsTextfile, err)
			}
			cfg.Logger.Debug("Wrote metrics to %s", metricsTextfile)
			return nil
		},
	}

	rootCmd.PersistentFlags().StringVar(&configFile, "config", config.DefaultPath, "Config file path")
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", config.DefaultEnvFile, "Dotenv file with CREDCACHE_* overrides")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "Disable colored output")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "Enable debug logging")
	rootCmd.PersistentFlags().StringVar(&metricsTextfile, "metrics-textfile", "", "Write prometheus metrics to this file on exit")

	rootCmd.AddCommand(
		commands.NewGetCommand(cfg),
		commands.NewStatusCommand(cfg),
		commands.NewDoctorCommand(cfg),
		commands.NewClearCommand(cfg),
	)

	return rootCmd.Execute()
}

package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/GustavPetterssonBjorklund/Statix/internal/config"
	"github.com/GustavPetterssonBjorklund/Statix/internal/logging"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "statix",
	Short: "Statix fleet telemetry server",
	Long: `Statix collects metrics and system inventory from a fleet of agents over
MQTT, stores them, and serves a REST API plus a live roster WebSocket.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load()
		if err != nil {
			return fmt.Errorf("failed to load configuration: %w", err)
		}

		level := logging.InfoLevel
		if cfg.Debug {
			level = logging.DebugLevel
		}
		logging.Init(logging.Config{Level: level, JSONOutput: cfg.LogJSON})
		return nil
	},
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

package cmd

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/GustavPetterssonBjorklund/Statix/internal/agent"
	"github.com/GustavPetterssonBjorklund/Statix/internal/config"
	"github.com/GustavPetterssonBjorklund/Statix/internal/logging"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the telemetry loop",
	Long:  `Exchanges the node token for broker credentials and publishes telemetry until interrupted.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.LoadAgent()
		if err != nil {
			return fmt.Errorf("failed to load configuration: %w", err)
		}

		level := logging.InfoLevel
		if cfg.Debug {
			level = logging.DebugLevel
		}
		logging.Init(logging.Config{Level: level, JSONOutput: cfg.LogJSON})

		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		return agent.New(cfg).Run(ctx)
	},
}

func init() {
	rootCmd.AddCommand(runCmd)
}

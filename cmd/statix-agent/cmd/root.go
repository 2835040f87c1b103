package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "statix-agent",
	Short: "Statix telemetry agent",
	Long: `The Statix agent publishes host metrics and system inventory to the
fleet broker. It enrolls with a node ID and token issued by the server
(STATIX_AGENT_NODE_ID / STATIX_AGENT_NODE_TOKEN).`,
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

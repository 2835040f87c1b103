package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/GustavPetterssonBjorklund/Statix/internal/buildinfo"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		info := buildinfo.Resolve()
		fmt.Printf("statix %s (commit %s, built %s)\n", info.Version, info.GitCommit, info.BuildTime)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}

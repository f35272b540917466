package cmd

import (
	"github.com/spf13/cobra"
)

// batchCmd represents the base command for batch operations.
var batchCmd = &cobra.Command{
	Use:   "batch",
	Short: "Inspect Gemini batch jobs recorded in the state file",
}

func init() {
	rootCmd.AddCommand(batchCmd)
	// Subcommands register themselves in their own files' init()
}

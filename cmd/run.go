package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the agents daemon and the garment watcher together",
	RunE: func(cmd *cobra.Command, args []string) error {
		appInstance, err := GetAppFromContext(cmd.Context())
		if err != nil {
			return fmt.Errorf("failed to get application context: %w", err)
		}
		if err := appInstance.Config.ValidateAgents(); err != nil {
			return fmt.Errorf("invalid agents configuration: %w", err)
		}
		if err := appInstance.Config.ValidateGarment(); err != nil {
			return fmt.Errorf("invalid garment configuration: %w", err)
		}

		// A failing component stops the other one too.
		g, ctx := errgroup.WithContext(cmd.Context())
		g.Go(func() error { return runAgents(ctx, appInstance) })
		g.Go(func() error { return runGarment(ctx, appInstance) })
		return g.Wait()
	},
}

func init() {
	rootCmd.AddCommand(runCmd)
}

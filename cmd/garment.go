package cmd

import (
	"context"
	"fmt"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"hotfolder/internal/app"
)

var garmentCmd = &cobra.Command{
	Use:   "garment",
	Short: "Run the editor round-trip watcher",
	Long: `Opens new garment photos in the configured editor. When the editor exports a
result, the original photo is uploaded to the bucket, moved to the output folder
and reported to the web API. Runs until interrupted.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		appInstance, err := GetAppFromContext(cmd.Context())
		if err != nil {
			return fmt.Errorf("failed to get application context: %w", err)
		}
		if err := appInstance.Config.ValidateGarment(); err != nil {
			return fmt.Errorf("invalid garment configuration: %w", err)
		}
		return runGarment(cmd.Context(), appInstance)
	},
}

func init() {
	rootCmd.AddCommand(garmentCmd)
}

func runGarment(ctx context.Context, appInstance *app.App) error {
	if err := appInstance.InitGarment(ctx); err != nil {
		return err
	}
	if err := appInstance.GarmentService.Prepare(); err != nil {
		return fmt.Errorf("failed to prepare garment folders: %w", err)
	}
	if err := appInstance.GarmentService.Run(ctx); err != nil {
		return err
	}
	log.Info("Garment watcher stopped.")
	return nil
}

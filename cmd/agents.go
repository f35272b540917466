package cmd

import (
	"context"
	"errors"
	"fmt"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"hotfolder/internal/app"
	"hotfolder/internal/logging"
	"hotfolder/internal/models"
	"hotfolder/internal/scheduler"
	"hotfolder/internal/services"
	"hotfolder/internal/store"
)

// agentsCmd represents the agents command
var agentsCmd = &cobra.Command{
	Use:   "agents",
	Short: "Run the Gemini batch touch-up daemon",
	Long: `Watches the agents watch folder, submits new images as one Gemini batch job per
cycle, polls submitted jobs and saves the touched-up images to the output folder.
Runs until interrupted.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		// Retrieve the application instance from context
		appInstance, err := GetAppFromContext(cmd.Context())
		if err != nil {
			return fmt.Errorf("failed to get application context: %w", err)
		}
		if err := appInstance.Config.ValidateAgents(); err != nil {
			return fmt.Errorf("invalid agents configuration: %w", err)
		}
		return runAgents(cmd.Context(), appInstance)
	},
}

func init() {
	rootCmd.AddCommand(agentsCmd)
}

// runAgents prepares the folders and the ledger, then drives the cycle until ctx ends.
func runAgents(ctx context.Context, appInstance *app.App) error {
	cfg := appInstance.Config.Agents

	if !providerEnabled(appInstance.BatchAPIProvider) {
		return fmt.Errorf("cannot submit batch jobs: %w", models.ErrProviderDisabled)
	}

	if err := appInstance.AgentsService.Prepare(); err != nil {
		return fmt.Errorf("failed to prepare agents folders: %w", err)
	}

	if _, err := appInstance.Ledger.Load(ctx); err != nil {
		if !errors.Is(err, store.ErrCorruptLedger) {
			return err
		}
		moved, qerr := appInstance.Ledger.Quarantine(ctx)
		if qerr != nil {
			return fmt.Errorf("failed to move corrupt state file aside: %w", qerr)
		}
		log.Warnf("State file was unreadable and has been moved to %s", moved)
	}

	sched := scheduler.New()
	err := sched.Add(scheduler.Task{
		Name:       models.TaskAgentsCycle,
		Interval:   cfg.Interval,
		Jitter:     cfg.Jitter,
		RunOnStart: true,
		Run:        appInstance.AgentsService.RunCycle,
	})
	if err != nil {
		return err
	}

	log.Infof("Agents watching %s (every %s, model %s)", cfg.WatchPath, cfg.Interval, cfg.Model)
	log.Infof("Processing: %s  Output: %s  State: %s",
		logging.ShortPath(cfg.ProcessingPath), logging.ShortPath(cfg.OutputPath), appInstance.Ledger.Path())

	if err := sched.Run(ctx); err != nil {
		return err
	}
	log.Info("Agents stopped.")
	return nil
}

// providerEnabled reports false only for providers that know they have no credentials.
func providerEnabled(p services.BatchAPIProvider) bool {
	if p == nil {
		return false
	}
	if e, ok := p.(interface{ Enabled() bool }); ok {
		return e.Enabled()
	}
	return true
}

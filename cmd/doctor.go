package cmd

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"hotfolder/internal/app"
	"hotfolder/internal/models"
)

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Check configuration, folders, the state file and bucket connectivity",
	RunE: func(cmd *cobra.Command, args []string) error {
		appInstance, err := GetAppFromContext(cmd.Context())
		if err != nil {
			return fmt.Errorf("failed to get app instance: %w", err)
		}
		if failed := runDoctor(cmd.Context(), cmd.OutOrStdout(), appInstance); failed > 0 {
			return fmt.Errorf("%d check(s) failed", failed)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(doctorCmd)
}

type check struct {
	name string
	run  func(ctx context.Context) error
}

func runDoctor(ctx context.Context, w io.Writer, a *app.App) int {
	cfg := a.Config
	checks := []check{
		{"agents configuration", func(context.Context) error { return cfg.ValidateAgents() }},
		{"agents folders", func(context.Context) error {
			return dirsExist(cfg.Agents.WatchPath, cfg.Agents.ProcessingPath, cfg.Agents.OutputPath)
		}},
		{"gemini batch provider", func(context.Context) error {
			if !providerEnabled(a.BatchAPIProvider) {
				return models.ErrProviderDisabled
			}
			return nil
		}},
		{"state file", func(ctx context.Context) error {
			counts, err := a.BatchService.Summary(ctx)
			if err != nil {
				return err
			}
			total := 0
			for _, n := range counts {
				total += n
			}
			fmt.Fprintf(w, "    %s: %d job(s), %d pending, %d running\n", a.BatchService.LedgerPath(), total,
				counts[models.JobStatusPending], counts[models.JobStatusRunning])
			return nil
		}},
		{"garment configuration", func(context.Context) error { return cfg.ValidateGarment() }},
		{"garment folders", func(context.Context) error {
			return dirsExist(cfg.Garment.WatchPath, cfg.Garment.ExportPath, cfg.Garment.OutPath)
		}},
		{"bucket", func(ctx context.Context) error {
			if err := cfg.ValidateGarment(); err != nil {
				return fmt.Errorf("skipped: %w", err)
			}
			return a.InitGarment(ctx)
		}},
	}

	ok := color.New(color.FgGreen).SprintFunc()
	bad := color.New(color.FgRed, color.Bold).SprintFunc()

	failed := 0
	for _, c := range checks {
		if err := c.run(ctx); err != nil {
			failed++
			fmt.Fprintf(w, "%s %s: %v\n", bad("FAIL"), c.name, err)
			continue
		}
		fmt.Fprintf(w, "%s   %s\n", ok("OK"), c.name)
	}
	return failed
}

func dirsExist(dirs ...string) error {
	for _, d := range dirs {
		info, err := os.Stat(d)
		if err != nil {
			return err
		}
		if !info.IsDir() {
			return fmt.Errorf("%s is not a directory", d)
		}
	}
	return nil
}

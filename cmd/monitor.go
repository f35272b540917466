package cmd

import (
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"hotfolder/internal/monitor"
)

var monitorOnce bool

var monitorCmd = &cobra.Command{
	Use:   "monitor",
	Short: "Show submitted batch jobs, refreshed periodically",
	RunE: func(cmd *cobra.Command, args []string) error {
		appInstance, err := GetAppFromContext(cmd.Context())
		if err != nil {
			return err
		}
		if err := appInstance.Config.ValidateMonitor(); err != nil {
			return fmt.Errorf("invalid monitor configuration: %w", err)
		}
		interval := appInstance.Config.Monitor.RefreshInterval

		if monitorOnce {
			fmt.Fprint(cmd.OutOrStdout(), monitor.Once(cmd.Context(), appInstance.Ledger, interval))
			return nil
		}

		p := tea.NewProgram(monitor.New(appInstance.Ledger, interval), tea.WithAltScreen(), tea.WithContext(cmd.Context()))
		if _, err := p.Run(); err != nil && cmd.Context().Err() == nil {
			return fmt.Errorf("monitor: %w", err)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(monitorCmd)
	monitorCmd.Flags().BoolVar(&monitorOnce, "once", false, "print one snapshot and exit")
}

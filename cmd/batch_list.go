package cmd

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/olekukonko/tablewriter"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"hotfolder/internal/clix"
	"hotfolder/internal/util"
)

// batchListCmd represents the list command for batches
var batchListCmd = &cobra.Command{
	Use:   "list",
	Short: "List batch jobs recorded in the state file",
	Long:  `Lists the Gemini batch jobs that are still tracked in the agents state file, newest first.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		appInstance, err := GetAppFromContext(cmd.Context())
		if err != nil {
			return err
		}

		page, err := clix.ParsePagination(cmd.Flags())
		if err != nil {
			return err
		}
		statuses, err := clix.ParseStatuses(cmd.Flags())
		if err != nil {
			return err
		}

		log.Debugf("Listing batch jobs (limit: %d, offset: %d)", page.Limit, page.Offset)

		batches, err := appInstance.BatchService.ListBatches(cmd.Context(), page.Limit, page.Offset, statuses...)
		if err != nil {
			return fmt.Errorf("failed to list batch jobs: %w", err)
		}

		// Display results in a table
		table := tablewriter.NewWriter(os.Stdout)
		table.SetHeader([]string{"Job", "Status", "Files", "Submitted At", "First File"})
		table.SetBorder(true)  // Set true to draw borders
		table.SetRowLine(true) // Enable row line

		for _, batch := range batches {
			first := "N/A"
			if len(batch.Files) > 0 {
				first = util.Snippet(batch.Files[0], 40)
			}
			table.Append([]string{
				batch.JobName,
				string(batch.Status),
				strconv.Itoa(len(batch.Files)),
				batch.SubmittedTime().Format(time.RFC3339),
				first,
			})
		}

		if len(batches) == 0 {
			fmt.Println("No batch jobs found.")
			return nil
		}
		table.Render() // Send output
		return nil
	},
}

func init() {
	// Add batchListCmd as a subcommand of batchCmd (defined in cmd/batch.go)
	batchCmd.AddCommand(batchListCmd)

	// Add flags for pagination
	batchListCmd.Flags().IntP("limit", "n", 20, "Maximum number of batch jobs to list")
	batchListCmd.Flags().IntP("offset", "o", 0, "Number of batch jobs to skip")
	batchListCmd.Flags().String("status", "", "Only show these statuses (comma separated)")
}

package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/toolscheap/toolscheap/internal/cli/output"
)

var jobsCmd = &cobra.Command{
	Use:   "jobs",
	Short: "List your jobs",
	RunE:  runJobs,
}

var (
	jobsLimit  int
	jobsOffset int
)

func init() {
	jobsCmd.Flags().IntVar(&jobsLimit, "limit", 20, "Max jobs to list")
	jobsCmd.Flags().IntVar(&jobsOffset, "offset", 0, "Pagination offset")
}

func runJobs(cmd *cobra.Command, args []string) error {
	ctx := GetContext()

	list, err := apiClient.ListJobs(ctx, jobsLimit, jobsOffset)
	if err != nil {
		return fmt.Errorf("failed to list jobs: %w", err)
	}

	if jsonOutput {
		return printer.JSON(list)
	}

	if len(list.Jobs) == 0 {
		printer.Info("No jobs yet. Submit one with 'toolctl submit'.")
		return nil
	}

	table := output.NewTable([]string{"ID", "Tool", "Status", "Progress", "Created"}, quietMode)
	for _, j := range list.Jobs {
		table.Append([]string{
			shortID(j.JobID),
			j.Tool,
			output.StatusColored(j.StatusName),
			fmt.Sprintf("%d%%", j.Progress),
			formatTime(j.CreatedAt),
		})
	}
	table.Render()

	if list.HasMore {
		printer.Println()
		printer.Info("More jobs available: --offset %d", jobsOffset+jobsLimit)
	}
	return nil
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8] + "..."
	}
	return id
}

var cancelCmd = &cobra.Command{
	Use:   "cancel <job-id>",
	Short: "Cancel a pending job",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := GetContext()

		status, err := apiClient.CancelJob(ctx, args[0])
		if err != nil {
			return fmt.Errorf("failed to cancel job: %w", err)
		}

		if jsonOutput {
			return printer.JSON(status)
		}
		printer.Success("Job %s cancelled", status.JobID)
		return nil
	},
}

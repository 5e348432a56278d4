package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/toolscheap/toolscheap/internal/cli/client"
	"github.com/toolscheap/toolscheap/internal/cli/output"
)

var statusCmd = &cobra.Command{
	Use:   "status <job-id>",
	Short: "Check job status",
	Long: `Check the status of a queued job.

Examples:
  toolctl status 3f1c...            # One-shot status
  toolctl status 3f1c... --watch    # Poll until the job finishes`,
	Args: cobra.ExactArgs(1),
	RunE: runStatus,
}

var (
	statusWatch   bool
	statusTimeout time.Duration
)

func init() {
	statusCmd.Flags().BoolVarP(&statusWatch, "watch", "w", false, "Watch until the job finishes")
	statusCmd.Flags().DurationVar(&statusTimeout, "timeout", 15*time.Minute, "Max time to watch")
}

func runStatus(cmd *cobra.Command, args []string) error {
	ctx := GetContext()
	jobID := args[0]

	if statusWatch {
		status, err := watchJob(ctx, jobID, statusTimeout)
		if err != nil {
			return err
		}
		if jsonOutput {
			return printer.JSON(status)
		}
		return reportTerminal(status)
	}

	status, err := apiClient.JobStatus(ctx, jobID)
	if err != nil {
		return fmt.Errorf("failed to get job status: %w", err)
	}

	if jsonOutput {
		return printer.JSON(status)
	}

	printJobStatus(status)
	return nil
}

// watchJob polls the job with a spinner until it reaches a terminal state.
func watchJob(ctx context.Context, jobID string, timeout time.Duration) (*client.JobStatus, error) {
	spinner := output.NewSpinner(fmt.Sprintf("Waiting for %s...", jobID), quietMode || jsonOutput)
	defer spinner.Finish()

	return apiClient.WaitForJob(ctx, jobID, 2*time.Second, timeout, func(s *client.JobStatus) {
		if s.Progress > 0 {
			spinner.Update(fmt.Sprintf("Status: %s (%d%%)", s.StatusName, s.Progress))
		} else {
			spinner.Update(fmt.Sprintf("Status: %s", s.StatusName))
		}
	})
}

// reportTerminal prints a finished job's outcome and returns an error for
// non-success so the process exit code reflects it.
func reportTerminal(status *client.JobStatus) error {
	switch status.StatusName {
	case "completed":
		printer.Success("Job %s completed", status.JobID)
		if status.DownloadURL != "" {
			printer.Info("Download: %s", status.DownloadURL)
		}
		return nil
	case "cancelled":
		printer.Warn("Job %s was cancelled", status.JobID)
		return fmt.Errorf("job %s cancelled", status.JobID)
	default:
		printer.Error("Job %s failed: %s", status.JobID, status.ErrorMessage)
		return fmt.Errorf("job %s failed", status.JobID)
	}
}

func printJobStatus(status *client.JobStatus) {
	printer.Section("Job Status")
	printer.KeyValue("ID", status.JobID)
	printer.KeyValue("Tool", status.Tool)
	printer.KeyValue("Status", output.StatusColored(status.StatusName))
	printer.KeyValue("Progress", fmt.Sprintf("%d%%", status.Progress))
	printer.KeyValue("Created", formatTime(status.CreatedAt))
	if status.CompletedAt != nil {
		printer.KeyValue("Finished", formatTime(*status.CompletedAt))
	}
	if status.DownloadURL != "" {
		printer.KeyValue("Download", status.DownloadURL)
	}
	if status.ErrorMessage != "" {
		printer.KeyValue("Error", status.ErrorMessage)
	}
}

func formatTime(t time.Time) string {
	return t.Local().Format("2006-01-02 15:04:05")
}

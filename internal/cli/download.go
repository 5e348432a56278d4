package cli

import (
	"context"
	"fmt"
	"path"
	"strings"

	"github.com/spf13/cobra"

	"github.com/toolscheap/toolscheap/internal/cli/client"
	"github.com/toolscheap/toolscheap/internal/cli/output"
)

var downloadCmd = &cobra.Command{
	Use:   "download <job-id>",
	Short: "Download a completed job's result",
	Long: `Download the output of a completed job.

Examples:
  toolctl download 3f1c...                  # Saves under the output's name
  toolctl download 3f1c... -o merged.pdf    # Explicit destination`,
	Args: cobra.ExactArgs(1),
	RunE: runDownload,
}

var downloadDest string

func init() {
	downloadCmd.Flags().StringVarP(&downloadDest, "output", "o", "", "Destination path")
}

func runDownload(cmd *cobra.Command, args []string) error {
	ctx := GetContext()

	status, err := apiClient.JobStatus(ctx, args[0])
	if err != nil {
		return fmt.Errorf("failed to get job status: %w", err)
	}
	if status.StatusName != "completed" {
		return fmt.Errorf("job %s is %s, nothing to download", status.JobID, status.StatusName)
	}
	if status.DownloadURL == "" {
		return fmt.Errorf("the download link for job %s has expired", status.JobID)
	}

	return downloadResult(ctx, status, downloadDest)
}

func downloadResult(ctx context.Context, status *client.JobStatus, dest string) error {
	if dest == "" {
		dest = destFromStatus(status)
	}

	progress := output.NewByteProgress(-1, "Downloading", quietMode || jsonOutput)
	n, err := apiClient.Download(ctx, status.DownloadURL, dest, progress)
	progress.Finish()
	if err != nil {
		return err
	}

	if jsonOutput {
		return printer.JSON(map[string]any{
			"jobId": status.JobID,
			"path":  dest,
			"bytes": n,
		})
	}
	printer.Success("Saved %s (%s)", dest, formatSize(n))
	return nil
}

// destFromStatus derives a local filename from the output key, falling back
// to the job ID.
func destFromStatus(status *client.JobStatus) string {
	if status.OutputFileKey != "" {
		if name := path.Base(status.OutputFileKey); name != "." && name != "/" {
			return name
		}
	}
	// Strip any query string the signed URL carries.
	if u := status.DownloadURL; u != "" {
		if i := strings.IndexByte(u, '?'); i > 0 {
			u = u[:i]
		}
		if name := path.Base(u); name != "." && name != "/" {
			return name
		}
	}
	return status.JobID + ".out"
}

func formatSize(n int64) string {
	switch {
	case n >= 1<<30:
		return fmt.Sprintf("%.1f GB", float64(n)/(1<<30))
	case n >= 1<<20:
		return fmt.Sprintf("%.1f MB", float64(n)/(1<<20))
	case n >= 1<<10:
		return fmt.Sprintf("%.1f KB", float64(n)/(1<<10))
	default:
		return fmt.Sprintf("%d B", n)
	}
}

package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/toolscheap/toolscheap/internal/cli/client"
	"github.com/toolscheap/toolscheap/internal/cli/output"
)

var (
	jsonOutput bool
	quietMode  bool
	apiURL     string
	apiToken   string

	apiClient *client.Client
	printer   *output.Printer
)

var rootCmd = &cobra.Command{
	Use:   "toolctl",
	Short: "tools.cheap CLI - run file tools from the terminal",
	Long: `toolctl is the command-line interface for tools.cheap.

Submit files to any tool, poll job progress, and download results.

Get started:
  toolctl submit pdf_merge a.pdf b.pdf      # Merge two PDFs
  toolctl submit video_compress clip.mp4 -P crf=28 --wait
  toolctl jobs                              # List your jobs
  toolctl status <job-id> --watch           # Watch a job`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Name() == "help" || cmd.Name() == "version" {
			return nil
		}

		printer = output.New(
			output.WithJSON(jsonOutput),
			output.WithQuiet(quietMode),
		)

		apiClient = client.New(apiURL, apiToken)
		return nil
	},
	SilenceUsage:  true,
	SilenceErrors: true,
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Output as JSON (for scripting)")
	rootCmd.PersistentFlags().BoolVar(&quietMode, "quiet", false, "Suppress non-error output")
	rootCmd.PersistentFlags().StringVar(&apiURL, "api", envOr("TOOLSCHEAP_API_URL", "https://api.tools.cheap"), "API base URL")
	rootCmd.PersistentFlags().StringVar(&apiToken, "token", os.Getenv("TOOLSCHEAP_TOKEN"), "API token (defaults to $TOOLSCHEAP_TOKEN)")

	rootCmd.AddCommand(submitCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(jobsCmd)
	rootCmd.AddCommand(cancelCmd)
	rootCmd.AddCommand(downloadCmd)
	rootCmd.AddCommand(toolsCmd)
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// GetContext returns a context cancelled by SIGINT/SIGTERM so long-running
// polls and transfers abort cleanly.
func GetContext() context.Context {
	ctx, _ := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	return ctx
}

package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/toolscheap/toolscheap/internal/cli/client"
	"github.com/toolscheap/toolscheap/internal/cli/output"
	"github.com/toolscheap/toolscheap/internal/job"
)

var submitCmd = &cobra.Command{
	Use:   "submit <tool> [files...]",
	Short: "Submit files to a tool",
	Long: `Submit one or more files to a tool. Small or trivial work answers
inline; everything else is queued and returns a job ID.

Examples:
  toolctl submit pdf_merge a.pdf b.pdf
  toolctl submit image_compress photo.jpg -P quality=70
  toolctl submit video_compress clip.mp4 -P crf=28 --wait -o small.mp4
  toolctl submit json_format data.json -P sort_keys=true
  toolctl submit regex_generate -P "description=match an email" --test bob@example.com`,
	Args: cobra.MinimumNArgs(1),
	RunE: runSubmit,
}

var (
	submitParams  []string
	submitTests   []string
	submitWait    bool
	submitOutput  string
	submitTimeout time.Duration
)

func init() {
	submitCmd.Flags().StringArrayVarP(&submitParams, "param", "P", nil, "Tool parameter as key=value (repeatable)")
	submitCmd.Flags().StringArrayVar(&submitTests, "test", nil, "Test string for regex_generate (repeatable)")
	submitCmd.Flags().BoolVarP(&submitWait, "wait", "w", false, "Wait for the job to finish")
	submitCmd.Flags().StringVarP(&submitOutput, "output", "o", "", "Download the result to this path (implies --wait)")
	submitCmd.Flags().DurationVar(&submitTimeout, "timeout", 15*time.Minute, "Max time to wait for a job")
}

func runSubmit(cmd *cobra.Command, args []string) error {
	tool := args[0]
	files := args[1:]

	if !job.ValidTool(job.ToolType(tool)) {
		return fmt.Errorf("unknown tool %q (see 'toolctl tools')", tool)
	}

	params, err := parseParams(submitParams)
	if err != nil {
		return err
	}

	ctx := GetContext()

	if tool == string(job.ToolRegexGenerate) {
		return submitRegex(ctx, params)
	}

	if len(files) == 0 {
		return fmt.Errorf("no files specified")
	}
	for _, f := range files {
		if _, err := os.Stat(f); err != nil {
			return fmt.Errorf("file not found: %s", f)
		}
	}

	progress := output.NewByteProgress(client.SizeOf(files), "Uploading", quietMode || jsonOutput)
	result, err := apiClient.Submit(ctx, tool, files, params, progress)
	progress.Finish()
	if err != nil {
		return err
	}

	if !result.Async() {
		return printSyncResult(result)
	}

	if jsonOutput && !submitWait && submitOutput == "" {
		return printer.JSON(result)
	}
	printer.Success("Job %s queued", result.JobID)

	if !submitWait && submitOutput == "" {
		printer.Info("Check progress: toolctl status %s", result.JobID)
		return nil
	}

	status, err := watchJob(ctx, result.JobID, submitTimeout)
	if err != nil {
		return err
	}
	if status.StatusName != "completed" {
		return reportTerminal(status)
	}

	if submitOutput != "" {
		return downloadResult(ctx, status, submitOutput)
	}
	if jsonOutput {
		return printer.JSON(status)
	}
	printer.Success("Job %s completed", status.JobID)
	if status.DownloadURL != "" {
		printer.Info("Download: %s", status.DownloadURL)
	}
	return nil
}

func submitRegex(ctx context.Context, params map[string]string) error {
	extra := url.Values{}
	for _, s := range submitTests {
		extra.Add("test", s)
	}

	raw, err := apiClient.SubmitForm(ctx, string(job.ToolRegexGenerate), params, extra)
	if err != nil {
		return err
	}

	if jsonOutput {
		var v any
		if err := json.Unmarshal(raw, &v); err != nil {
			return err
		}
		return printer.JSON(v)
	}

	var result struct {
		Pattern     string          `json:"pattern"`
		Explanation string          `json:"explanation"`
		Matches     map[string]bool `json:"matches"`
	}
	if err := json.Unmarshal(raw, &result); err != nil {
		return err
	}

	printer.Section("Pattern")
	printer.Printf("  %s\n", result.Pattern)
	if result.Explanation != "" {
		printer.KeyValue("Explanation", result.Explanation)
	}
	for s, matched := range result.Matches {
		if matched {
			printer.Success("matches %q", s)
		} else {
			printer.Error("does not match %q", s)
		}
	}
	return nil
}

func printSyncResult(result *client.SubmitResult) error {
	if jsonOutput {
		return printer.JSON(result)
	}

	printer.Success("%s completed", result.Tool)
	if len(result.Output) > 0 {
		printer.Println(string(result.Output))
	}
	if result.DownloadURL != "" {
		printer.Info("Download: %s", result.DownloadURL)
	}
	return nil
}

func parseParams(pairs []string) (map[string]string, error) {
	params := make(map[string]string, len(pairs))
	for _, pair := range pairs {
		k, v, ok := strings.Cut(pair, "=")
		if !ok || k == "" {
			return nil, fmt.Errorf("invalid parameter %q, expected key=value", pair)
		}
		params[k] = v
	}
	return params, nil
}

package worker

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/toolscheap/toolscheap/internal/job"
	"github.com/toolscheap/toolscheap/internal/queue"
	"github.com/toolscheap/toolscheap/internal/tools"
)

// ExcelProcessor runs the workbook cleanup passes.
type ExcelProcessor struct{}

func NewExcelProcessor() *ExcelProcessor {
	return &ExcelProcessor{}
}

func (p *ExcelProcessor) Process(ctx context.Context, j *job.Job, inputPath, workDir string) (string, error) {
	var params job.ExcelCleanParams
	if err := job.DecodeParams(j.Params, job.ToolExcelClean, &params); err != nil {
		return "", queue.Permanent(err)
	}
	params.Normalize()

	input, err := os.ReadFile(inputPath)
	if err != nil {
		return "", fmt.Errorf("read scratch input: %w", err)
	}

	cleaned, err := tools.CleanWorkbook(input, tools.ExcelCleanOptions{
		DropEmptyRows:    params.DropEmptyRows,
		TrimWhitespace:   params.TrimWhitespace,
		RemoveDuplicates: params.RemoveDuplicates,
	})
	if err != nil {
		return "", queue.Permanent(err)
	}

	outputPath := filepath.Join(workDir, "cleaned.xlsx")
	if err := os.WriteFile(outputPath, cleaned, 0o644); err != nil {
		return "", fmt.Errorf("write output: %w", err)
	}
	return outputPath, nil
}

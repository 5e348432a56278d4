package worker

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/toolscheap/toolscheap/internal/job"
	"github.com/toolscheap/toolscheap/internal/queue"
	"github.com/toolscheap/toolscheap/internal/services"
)

// SummarizeProcessor extracts text from the uploaded document and asks the
// summarization service for a digest. PDFs get their text layer extracted;
// anything else is treated as plain text.
type SummarizeProcessor struct {
	summarizer services.Summarizer
}

func NewSummarizeProcessor(summarizer services.Summarizer) *SummarizeProcessor {
	return &SummarizeProcessor{summarizer: summarizer}
}

func (p *SummarizeProcessor) Process(ctx context.Context, j *job.Job, inputPath, workDir string) (string, error) {
	if p.summarizer == nil {
		return "", queue.Permanent(fmt.Errorf("summarization is not configured"))
	}

	var params job.AiSummarizeParams
	if err := job.DecodeParams(j.Params, job.ToolAiSummarize, &params); err != nil {
		return "", queue.Permanent(err)
	}
	params.Normalize()

	text, err := p.extractText(inputPath)
	if err != nil {
		return "", queue.Permanent(err)
	}
	if text == "" {
		return "", queue.Permanent(fmt.Errorf("document contains no extractable text"))
	}

	summary, err := p.summarizer.Summarize(ctx, text, params.MaxWords, params.Language)
	if err != nil {
		return "", fmt.Errorf("summarize: %w", err)
	}

	outputPath := filepath.Join(workDir, "summary.txt")
	if err := os.WriteFile(outputPath, []byte(summary), 0o644); err != nil {
		return "", fmt.Errorf("write output: %w", err)
	}
	return outputPath, nil
}

func (p *SummarizeProcessor) extractText(inputPath string) (string, error) {
	data, err := os.ReadFile(inputPath)
	if err != nil {
		return "", fmt.Errorf("read scratch input: %w", err)
	}

	if strings.EqualFold(filepath.Ext(inputPath), ".pdf") {
		text, err := services.ExtractPDFText(data)
		if err != nil {
			return "", fmt.Errorf("extract pdf text: %w", err)
		}
		return text, nil
	}
	return strings.TrimSpace(string(data)), nil
}

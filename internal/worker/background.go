package worker

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/toolscheap/toolscheap/internal/job"
	"github.com/toolscheap/toolscheap/internal/queue"
	"github.com/toolscheap/toolscheap/internal/services"
)

// BackgroundProcessor delegates image background removal to the external
// segmentation service.
type BackgroundProcessor struct {
	remover services.BackgroundRemover
}

func NewBackgroundProcessor(remover services.BackgroundRemover) *BackgroundProcessor {
	return &BackgroundProcessor{remover: remover}
}

func (p *BackgroundProcessor) Process(ctx context.Context, j *job.Job, inputPath, workDir string) (string, error) {
	if p.remover == nil {
		return "", queue.Permanent(fmt.Errorf("background removal is not configured"))
	}

	image, err := os.ReadFile(inputPath)
	if err != nil {
		return "", fmt.Errorf("read scratch input: %w", err)
	}

	cutout, err := p.remover.RemoveBackground(ctx, image, filepath.Base(inputPath))
	if err != nil {
		return "", fmt.Errorf("remove background: %w", err)
	}

	outputPath := filepath.Join(workDir, "output.png")
	if err := os.WriteFile(outputPath, cutout, 0o644); err != nil {
		return "", fmt.Errorf("write output: %w", err)
	}
	return outputPath, nil
}

package worker

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/toolscheap/toolscheap/internal/job"
	"github.com/toolscheap/toolscheap/internal/logger"
	"github.com/toolscheap/toolscheap/internal/queue"
)

// DocumentProcessor converts office documents to PDF with a headless
// LibreOffice. soffice writes the result next to nothing we control, so we
// point --outdir at the scratch dir and find the produced file there.
type DocumentProcessor struct {
	sofficePath string
}

func NewDocumentProcessor(sofficePath string) *DocumentProcessor {
	if sofficePath == "" {
		sofficePath = "soffice"
	}
	return &DocumentProcessor{sofficePath: sofficePath}
}

func (p *DocumentProcessor) Process(ctx context.Context, j *job.Job, inputPath, workDir string) (string, error) {
	cmd := exec.CommandContext(ctx, p.sofficePath,
		"--headless",
		"--convert-to", "pdf",
		"--outdir", workDir,
		inputPath,
	)
	// Concurrent soffice instances need separate profile dirs.
	cmd.Env = append(os.Environ(), "HOME="+workDir)

	out, err := cmd.CombinedOutput()
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return "", fmt.Errorf("document conversion killed after timeout: %w", ctx.Err())
		}
		return "", fmt.Errorf("soffice failed: %w: %s", err, strings.TrimSpace(string(out)))
	}

	base := strings.TrimSuffix(filepath.Base(inputPath), filepath.Ext(inputPath))
	outputPath := filepath.Join(workDir, base+".pdf")
	if _, err := os.Stat(outputPath); err != nil {
		// soffice exits 0 on some unconvertible inputs; treat a missing
		// artifact as a bad file, not a transient fault.
		logger.FromContext(ctx).Error("soffice produced no output",
			"job_id", j.ID, "output", strings.TrimSpace(string(out)))
		return "", queue.Permanent(fmt.Errorf("document could not be converted to pdf"))
	}
	return outputPath, nil
}

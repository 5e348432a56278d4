package worker

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/toolscheap/toolscheap/internal/job"
	"github.com/toolscheap/toolscheap/internal/queue"
	"github.com/toolscheap/toolscheap/internal/storage"
	"github.com/toolscheap/toolscheap/internal/tools"
)

// PdfProcessor runs the merge and split tools on the async path. Merges
// land here when the combined upload is too large for the inline fast path.
type PdfProcessor struct {
	store storage.Storage
}

func NewPdfProcessor(store storage.Storage) *PdfProcessor {
	return &PdfProcessor{store: store}
}

func (p *PdfProcessor) Merge(ctx context.Context, j *job.Job, inputPath, workDir string) (string, error) {
	var params job.PdfMergeParams
	if err := job.DecodeParams(j.Params, job.ToolPdfMerge, &params); err != nil {
		return "", queue.Permanent(err)
	}

	first, err := os.ReadFile(inputPath)
	if err != nil {
		return "", fmt.Errorf("read scratch input: %w", err)
	}

	inputs := [][]byte{first}
	for _, key := range params.ExtraFileKeys {
		data, err := p.fetch(ctx, key)
		if err != nil {
			return "", err
		}
		inputs = append(inputs, data)
	}

	merged, err := tools.MergePDFs(inputs)
	if err != nil {
		return "", queue.Permanent(err)
	}

	outputPath := filepath.Join(workDir, "merged.pdf")
	if err := os.WriteFile(outputPath, merged, 0o644); err != nil {
		return "", fmt.Errorf("write output: %w", err)
	}

	// Extra temp inputs are this processor's to clean; the runner only
	// deletes the primary one.
	for _, key := range params.ExtraFileKeys {
		_ = p.store.Delete(ctx, key)
	}
	return outputPath, nil
}

func (p *PdfProcessor) Split(ctx context.Context, j *job.Job, inputPath, workDir string) (string, error) {
	var params job.PdfSplitParams
	if err := job.DecodeParams(j.Params, job.ToolPdfSplit, &params); err != nil {
		return "", queue.Permanent(err)
	}

	input, err := os.ReadFile(inputPath)
	if err != nil {
		return "", fmt.Errorf("read scratch input: %w", err)
	}

	extracted, err := tools.ExtractPDFPages(input, params.Pages)
	if err != nil {
		return "", queue.Permanent(err)
	}

	outputPath := filepath.Join(workDir, "extracted.pdf")
	if err := os.WriteFile(outputPath, extracted, 0o644); err != nil {
		return "", fmt.Errorf("write output: %w", err)
	}
	return outputPath, nil
}

func (p *PdfProcessor) fetch(ctx context.Context, key string) ([]byte, error) {
	rc, err := p.store.Download(ctx, key)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, queue.Permanent(fmt.Errorf("merge input missing: %s", key))
		}
		return nil, fmt.Errorf("download merge input %s: %w", key, err)
	}
	defer func() { _ = rc.Close() }()

	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("read merge input %s: %w", key, err)
	}
	return data, nil
}

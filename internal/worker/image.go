package worker

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/disintegration/imaging"

	"github.com/toolscheap/toolscheap/internal/job"
	"github.com/toolscheap/toolscheap/internal/queue"
)

// ImageProcessor recompresses images as JPEG at the requested quality,
// optionally capping the width (height follows to keep aspect ratio).
type ImageProcessor struct{}

func NewImageProcessor() *ImageProcessor {
	return &ImageProcessor{}
}

func (p *ImageProcessor) Process(ctx context.Context, j *job.Job, inputPath, workDir string) (string, error) {
	var params job.ImageCompressParams
	if err := job.DecodeParams(j.Params, job.ToolImageCompress, &params); err != nil {
		return "", queue.Permanent(err)
	}
	params.Normalize()

	img, err := imaging.Open(inputPath, imaging.AutoOrientation(true))
	if err != nil {
		return "", queue.Permanent(fmt.Errorf("decode image: %w", err))
	}

	if params.MaxWidth > 0 && img.Bounds().Dx() > params.MaxWidth {
		img = imaging.Resize(img, params.MaxWidth, 0, imaging.Lanczos)
	}

	outputPath := filepath.Join(workDir, "output.jpg")
	if err := imaging.Save(img, outputPath, imaging.JPEGQuality(params.Quality)); err != nil {
		return "", fmt.Errorf("encode image: %w", err)
	}
	return outputPath, nil
}

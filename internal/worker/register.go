package worker

import (
	"time"

	"github.com/toolscheap/toolscheap/internal/job"
	"github.com/toolscheap/toolscheap/internal/queue"
	"github.com/toolscheap/toolscheap/internal/services"
	"github.com/toolscheap/toolscheap/internal/storage"
)

// Deps collects everything the processors need.
type Deps struct {
	Jobs       job.Store
	Storage    storage.Storage
	Signer     *storage.URLSigner
	Usage      job.UsageRecorder
	Remover    services.BackgroundRemover
	Summarizer services.Summarizer

	TempDir      string
	SignedURLTTL time.Duration

	FFmpegPath  string
	FFprobePath string
	SofficePath string

	JobTimeout      time.Duration
	VideoJobTimeout time.Duration

	Metrics queue.Collector
}

// BuildRegistry wires every async tool to its processor, behind the shared
// middleware stack.
func BuildRegistry(deps Deps) *queue.Registry {
	runner := NewRunner(deps.Jobs, deps.Storage, deps.Signer, deps.Usage, deps.TempDir, deps.SignedURLTTL)

	registry := queue.NewRegistry()
	registry.Use(queue.Recovery(), queue.Logging())
	if deps.Metrics != nil {
		registry.Use(queue.Metrics(deps.Metrics))
	}
	registry.Use(queue.Timeout(deps.JobTimeout, map[job.ToolType]time.Duration{
		job.ToolVideoCompress: deps.VideoJobTimeout,
	}))

	video := NewVideoProcessor(deps.FFmpegPath, deps.FFprobePath, runner)
	document := NewDocumentProcessor(deps.SofficePath)
	background := NewBackgroundProcessor(deps.Remover)
	image := NewImageProcessor()
	pdf := NewPdfProcessor(deps.Storage)
	excel := NewExcelProcessor()
	summarize := NewSummarizeProcessor(deps.Summarizer)

	registry.Register(job.ToolVideoCompress, runner.Wrap(video.Process))
	registry.Register(job.ToolDocToPdf, runner.Wrap(document.Process))
	registry.Register(job.ToolImageRemoveBackground, runner.Wrap(background.Process))
	registry.Register(job.ToolImageCompress, runner.Wrap(image.Process))
	registry.Register(job.ToolPdfMerge, runner.Wrap(pdf.Merge))
	registry.Register(job.ToolPdfSplit, runner.Wrap(pdf.Split))
	registry.Register(job.ToolExcelClean, runner.Wrap(excel.Process))
	registry.Register(job.ToolAiSummarize, runner.Wrap(summarize.Process))

	return registry
}

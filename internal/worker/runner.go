package worker

import (
	"context"
	"errors"
	"fmt"
	"mime"
	"os"
	"path"
	"path/filepath"
	"time"

	"github.com/toolscheap/toolscheap/internal/job"
	"github.com/toolscheap/toolscheap/internal/logger"
	"github.com/toolscheap/toolscheap/internal/queue"
	"github.com/toolscheap/toolscheap/internal/storage"
)

// ProcessFunc does the tool-specific part of a job: read the downloaded
// input at inputPath, write the artifact somewhere under workDir, and return
// its path. The runner handles everything around it.
type ProcessFunc func(ctx context.Context, j *job.Job, inputPath, workDir string) (outputPath string, err error)

// Runner owns the lifecycle every processor shares: download the input to a
// scratch dir, run the tool, upload the artifact, sign the download URL,
// persist completion, record usage, and clean up. Processors stay small and
// only differ in the middle step.
//
// Re-running a job after a crash is safe: the input is re-downloaded and the
// output key is rebuilt, so a retry overwrites nothing it depends on.
type Runner struct {
	jobs    job.Store
	store   storage.Storage
	signer  *storage.URLSigner
	usage   job.UsageRecorder
	tempDir string
	urlTTL  time.Duration
}

func NewRunner(jobs job.Store, store storage.Storage, signer *storage.URLSigner, usage job.UsageRecorder, tempDir string, urlTTL time.Duration) *Runner {
	if urlTTL <= 0 {
		urlTTL = 24 * time.Hour
	}
	return &Runner{
		jobs:    jobs,
		store:   store,
		signer:  signer,
		usage:   usage,
		tempDir: tempDir,
		urlTTL:  urlTTL,
	}
}

// Wrap turns a ProcessFunc into a queue handler.
func (r *Runner) Wrap(process ProcessFunc) queue.HandlerFunc {
	return func(ctx context.Context, j *job.Job) error {
		return r.run(ctx, j, process)
	}
}

func (r *Runner) run(ctx context.Context, j *job.Job, process ProcessFunc) error {
	log := logger.FromContext(ctx)

	workDir, err := os.MkdirTemp(r.tempDir, "job-"+j.ID.String()+"-")
	if err != nil {
		return fmt.Errorf("create scratch dir: %w", err)
	}
	defer func() {
		if err := os.RemoveAll(workDir); err != nil {
			log.Warn("scratch dir cleanup failed", "dir", workDir, "error", err)
		}
	}()

	inputPath, inputSize, err := r.downloadInput(ctx, j, workDir)
	if err != nil {
		return err
	}
	r.progress(ctx, j, 10)

	outputPath, err := process(ctx, j, inputPath, workDir)
	if err != nil {
		return err
	}
	r.progress(ctx, j, 90)

	outputKey, downloadURL, expiresAt, err := r.uploadOutput(ctx, j, outputPath)
	if err != nil {
		return err
	}

	if err := j.Complete(outputKey, downloadURL, expiresAt); err != nil {
		return queue.Permanent(fmt.Errorf("complete job: %w", err))
	}
	if err := r.jobs.Update(ctx, j); err != nil {
		return fmt.Errorf("persist job completion: %w", err)
	}

	if err := r.usage.Record(ctx, job.NewUsageRecord(j.UserID, &j.ID, j.ToolType, inputSize)); err != nil {
		// The job already succeeded; a ledger miss is not worth a retry.
		log.Error("usage record failed", "job_id", j.ID, "error", err)
	}

	// The temporary input blob is only removed after success; a pending
	// retry still needs it.
	if err := r.store.Delete(ctx, j.InputFileKey); err != nil {
		log.Warn("temp input cleanup failed", "key", j.InputFileKey, "error", err)
	}

	return nil
}

func (r *Runner) downloadInput(ctx context.Context, j *job.Job, workDir string) (string, int64, error) {
	src, err := r.store.Download(ctx, j.InputFileKey)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			// The input is gone; no retry will bring it back.
			return "", 0, queue.Permanent(fmt.Errorf("input file missing: %s", j.InputFileKey))
		}
		return "", 0, fmt.Errorf("download input %s: %w", j.InputFileKey, err)
	}
	defer func() { _ = src.Close() }()

	inputPath := filepath.Join(workDir, "input"+path.Ext(j.InputFileKey))
	f, err := os.Create(inputPath)
	if err != nil {
		return "", 0, fmt.Errorf("create scratch input: %w", err)
	}
	size, err := f.ReadFrom(src)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return "", 0, fmt.Errorf("write scratch input: %w", err)
	}
	return inputPath, size, nil
}

func (r *Runner) uploadOutput(ctx context.Context, j *job.Job, outputPath string) (string, string, time.Time, error) {
	f, err := os.Open(outputPath)
	if err != nil {
		return "", "", time.Time{}, fmt.Errorf("open output: %w", err)
	}
	defer func() { _ = f.Close() }()

	info, err := f.Stat()
	if err != nil {
		return "", "", time.Time{}, fmt.Errorf("stat output: %w", err)
	}

	key := storage.BuildKey(outputFolder(j), filepath.Base(outputPath))
	contentType := mime.TypeByExtension(filepath.Ext(outputPath))
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	if err := r.store.Upload(ctx, key, f, contentType, info.Size()); err != nil {
		return "", "", time.Time{}, fmt.Errorf("upload output: %w", err)
	}

	expiresAt := time.Now().UTC().Add(r.urlTTL)
	return key, r.signer.Sign(key, expiresAt), expiresAt, nil
}

// outputFolder namespaces artifacts per tool and owner.
func outputFolder(j *job.Job) string {
	owner := "anonymous"
	if j.UserID != nil {
		owner = j.UserID.String()
	}
	return path.Join(string(j.ToolType), owner)
}

func (r *Runner) progress(ctx context.Context, j *job.Job, pct int) {
	j.SetProgress(pct)
	if err := r.jobs.SetProgress(ctx, j.ID, pct); err != nil {
		logger.FromContext(ctx).Warn("progress update failed", "job_id", j.ID, "error", err)
	}
}

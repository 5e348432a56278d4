package worker

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/toolscheap/toolscheap/internal/job"
	"github.com/toolscheap/toolscheap/internal/queue"
	"github.com/toolscheap/toolscheap/internal/storage"
)

type runnerFixture struct {
	runner *Runner
	jobs   *job.MemoryStore
	store  *storage.MemoryStorage
	usage  *job.MemoryUsageRecorder
	signer *storage.URLSigner
}

func newRunnerFixture(t *testing.T) *runnerFixture {
	t.Helper()
	jobs := job.NewMemoryStore()
	store := storage.NewMemoryStorage()
	usage := job.NewMemoryUsageRecorder()
	signer := storage.NewURLSigner("test-secret", "https://files.example.com")
	return &runnerFixture{
		runner: NewRunner(jobs, store, signer, usage, t.TempDir(), 24*time.Hour),
		jobs:   jobs,
		store:  store,
		usage:  usage,
		signer: signer,
	}
}

// startedJob creates a processing job with its input blob uploaded, the way
// the pool hands jobs to handlers.
func (f *runnerFixture) startedJob(t *testing.T, tool job.ToolType, input []byte) *job.Job {
	t.Helper()
	ctx := context.Background()
	userID := uuid.New()

	key := "uploads/" + string(tool) + "/in.bin"
	require.NoError(t, f.store.Upload(ctx, key, bytes.NewReader(input), "application/octet-stream", int64(len(input))))

	j, err := job.New(&userID, tool, key, nil)
	require.NoError(t, err)
	require.NoError(t, j.Start())
	require.NoError(t, f.jobs.Create(ctx, j))
	return j
}

func TestRunnerHappyPath(t *testing.T) {
	ctx := context.Background()
	f := newRunnerFixture(t)
	j := f.startedJob(t, job.ToolDocToPdf, []byte("input bytes"))

	handler := f.runner.Wrap(func(ctx context.Context, j *job.Job, inputPath, workDir string) (string, error) {
		data, err := os.ReadFile(inputPath)
		require.NoError(t, err)
		assert.Equal(t, []byte("input bytes"), data)

		out := filepath.Join(workDir, "result.pdf")
		return out, os.WriteFile(out, []byte("converted"), 0o644)
	})

	require.NoError(t, handler(ctx, j))

	final, err := f.jobs.Get(ctx, j.ID)
	require.NoError(t, err)
	assert.Equal(t, job.StatusCompleted, final.Status)
	assert.Equal(t, 100, final.Progress)
	require.NotEmpty(t, final.OutputFileKey)
	assert.True(t, strings.HasPrefix(final.OutputFileKey, "doc_to_pdf/"+j.UserID.String()+"/"))
	require.NotNil(t, final.URLExpiresAt)

	// Output artifact is in storage and the signed URL verifies.
	data, ok := f.store.GetData(final.OutputFileKey)
	require.True(t, ok)
	assert.Equal(t, []byte("converted"), data)

	// Temp input is gone.
	exists, err := f.store.Exists(ctx, j.InputFileKey)
	require.NoError(t, err)
	assert.False(t, exists, "temp input blob must be deleted after success")

	// Usage was recorded against the job.
	records := f.usage.Records()
	require.Len(t, records, 1)
	assert.Equal(t, j.ID, *records[0].JobID)
	assert.Equal(t, int64(len("input bytes")), records[0].FileSize)
}

func TestRunnerProcessErrorKeepsInput(t *testing.T) {
	ctx := context.Background()
	f := newRunnerFixture(t)
	j := f.startedJob(t, job.ToolExcelClean, []byte("workbook"))

	handler := f.runner.Wrap(func(ctx context.Context, j *job.Job, inputPath, workDir string) (string, error) {
		return "", errors.New("transient hiccup")
	})

	err := handler(ctx, j)
	require.Error(t, err)
	assert.False(t, queue.IsPermanent(err))

	// The job is still processing (the pool decides terminal state) and
	// the input survives for the retry.
	mid, err := f.jobs.Get(ctx, j.ID)
	require.NoError(t, err)
	assert.Equal(t, job.StatusProcessing, mid.Status)

	exists, err := f.store.Exists(ctx, j.InputFileKey)
	require.NoError(t, err)
	assert.True(t, exists, "input must survive a failed attempt")

	assert.Empty(t, f.usage.Records(), "no usage for failed work")
}

func TestRunnerMissingInputIsPermanent(t *testing.T) {
	ctx := context.Background()
	f := newRunnerFixture(t)

	userID := uuid.New()
	j, err := job.New(&userID, job.ToolImageCompress, "uploads/never-uploaded.jpg", nil)
	require.NoError(t, err)
	require.NoError(t, j.Start())
	require.NoError(t, f.jobs.Create(ctx, j))

	handler := f.runner.Wrap(func(ctx context.Context, j *job.Job, inputPath, workDir string) (string, error) {
		t.Fatal("process must not run without input")
		return "", nil
	})

	err = handler(ctx, j)
	require.Error(t, err)
	assert.True(t, queue.IsPermanent(err), "missing input cannot be fixed by retrying")
}

func TestRunnerRetryOverwritesOutput(t *testing.T) {
	// At-least-once delivery means the same job can run twice; the second
	// run must produce a fresh, complete result.
	ctx := context.Background()
	f := newRunnerFixture(t)
	j := f.startedJob(t, job.ToolPdfSplit, []byte("pdf bytes"))

	runs := 0
	handler := f.runner.Wrap(func(ctx context.Context, j *job.Job, inputPath, workDir string) (string, error) {
		runs++
		if runs == 1 {
			return "", errors.New("crash after partial work")
		}
		out := filepath.Join(workDir, "extracted.pdf")
		return out, os.WriteFile(out, []byte("second attempt"), 0o644)
	})

	require.Error(t, handler(ctx, j))
	require.NoError(t, handler(ctx, j))

	final, err := f.jobs.Get(ctx, j.ID)
	require.NoError(t, err)
	require.Equal(t, job.StatusCompleted, final.Status)

	rc, err := f.store.Download(ctx, final.OutputFileKey)
	require.NoError(t, err)
	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	require.NoError(t, rc.Close())
	assert.Equal(t, []byte("second attempt"), data)
}

package job

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewJob(t *testing.T) {
	userID := uuid.New()
	j, err := New(&userID, ToolVideoCompress, "uploads/in.mp4", nil)
	require.NoError(t, err)

	assert.Equal(t, StatusPending, j.Status)
	assert.Equal(t, 0, j.Progress)
	assert.Equal(t, ToolVideoCompress, j.ToolType)
	assert.Equal(t, "uploads/in.mp4", j.InputFileKey)
	assert.NotEqual(t, uuid.Nil, j.ID)
	assert.Nil(t, j.StartedAt)
	assert.Nil(t, j.CompletedAt)
}

func TestNewJobRejectsUnknownTool(t *testing.T) {
	_, err := New(nil, ToolType("laundry"), "in", nil)
	assert.ErrorIs(t, err, ErrInvalidTool)
}

func TestJobLifecycleHappyPath(t *testing.T) {
	j, err := New(nil, ToolDocToPdf, "uploads/in.docx", nil)
	require.NoError(t, err)

	require.NoError(t, j.Start())
	assert.Equal(t, StatusProcessing, j.Status)
	require.NotNil(t, j.StartedAt)

	j.SetProgress(50)
	assert.Equal(t, 50, j.Progress)

	expiry := time.Now().Add(24 * time.Hour).UTC()
	require.NoError(t, j.Complete("doc_to_pdf/out.pdf", "https://example.com/d", expiry))
	assert.Equal(t, StatusCompleted, j.Status)
	assert.Equal(t, 100, j.Progress)
	assert.Equal(t, "doc_to_pdf/out.pdf", j.OutputFileKey)
	require.NotNil(t, j.URLExpiresAt)
	assert.Equal(t, expiry, *j.URLExpiresAt)
	assert.Empty(t, j.ErrorMessage)
	require.NotNil(t, j.CompletedAt)
}

func TestJobProgressClampAndMonotone(t *testing.T) {
	j, err := New(nil, ToolImageCompress, "in", nil)
	require.NoError(t, err)
	require.NoError(t, j.Start())

	j.SetProgress(150)
	assert.Equal(t, 100, j.Progress)

	j.SetProgress(-5)
	assert.Equal(t, 100, j.Progress, "progress must not move backwards")

	j2, err := New(nil, ToolImageCompress, "in", nil)
	require.NoError(t, err)
	j2.SetProgress(30)
	j2.SetProgress(10)
	assert.Equal(t, 30, j2.Progress)
}

func TestJobFail(t *testing.T) {
	j, err := New(nil, ToolVideoCompress, "in", nil)
	require.NoError(t, err)
	require.NoError(t, j.Start())

	require.NoError(t, j.Fail("ffmpeg exited with code 1"))
	assert.Equal(t, StatusFailed, j.Status)
	assert.Equal(t, "ffmpeg exited with code 1", j.ErrorMessage)
	assert.Empty(t, j.OutputFileKey)
	assert.Empty(t, j.DownloadURL)
}

func TestJobFailFromPending(t *testing.T) {
	// Entitlement denials fail a job that never ran.
	j, err := New(nil, ToolAiSummarize, "in", nil)
	require.NoError(t, err)

	require.NoError(t, j.Fail("upgrade required for this tool"))
	assert.Equal(t, StatusFailed, j.Status)
	assert.Nil(t, j.StartedAt)
}

func TestJobInvalidTransitions(t *testing.T) {
	completed := func() *Job {
		j, err := New(nil, ToolPdfMerge, "in", nil)
		require.NoError(t, err)
		require.NoError(t, j.Start())
		require.NoError(t, j.Complete("out", "url", time.Now().Add(time.Hour)))
		return j
	}

	tests := []struct {
		name string
		run  func() error
	}{
		{"start twice", func() error {
			j, _ := New(nil, ToolPdfMerge, "in", nil)
			_ = j.Start()
			return j.Start()
		}},
		{"complete without start", func() error {
			j, _ := New(nil, ToolPdfMerge, "in", nil)
			return j.Complete("out", "url", time.Now().Add(time.Hour))
		}},
		{"fail after complete", func() error {
			return completed().Fail("late failure")
		}},
		{"cancel completed job", func() error {
			return completed().Cancel()
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, tt.run(), ErrInvalidTransition)
		})
	}
}

func TestJobCancel(t *testing.T) {
	j, err := New(nil, ToolExcelClean, "in", nil)
	require.NoError(t, err)
	require.NoError(t, j.Cancel())
	assert.Equal(t, StatusCancelled, j.Status)
	assert.True(t, j.Status.Terminal())
}

func TestJobOwnedBy(t *testing.T) {
	owner := uuid.New()
	stranger := uuid.New()

	owned, err := New(&owner, ToolPdfSplit, "in", nil)
	require.NoError(t, err)
	assert.True(t, owned.OwnedBy(&owner))
	assert.False(t, owned.OwnedBy(&stranger))
	assert.False(t, owned.OwnedBy(nil))

	anon, err := New(nil, ToolPdfSplit, "in", nil)
	require.NoError(t, err)
	assert.True(t, anon.OwnedBy(nil))
	assert.True(t, anon.OwnedBy(&stranger))
}

func TestStatusString(t *testing.T) {
	assert.Equal(t, "pending", StatusPending.String())
	assert.Equal(t, "processing", StatusProcessing.String())
	assert.Equal(t, "completed", StatusCompleted.String())
	assert.Equal(t, "failed", StatusFailed.String())
	assert.Equal(t, "cancelled", StatusCancelled.String())
}

func TestMemoryStoreCancelOnlyPending(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	j, err := New(nil, ToolVideoCompress, "in", nil)
	require.NoError(t, err)
	require.NoError(t, store.Create(ctx, j))

	require.NoError(t, store.Cancel(ctx, j.ID))

	got, err := store.Get(ctx, j.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusCancelled, got.Status)

	// A second cancel finds no pending job.
	assert.ErrorIs(t, store.Cancel(ctx, j.ID), ErrNotFound)
}

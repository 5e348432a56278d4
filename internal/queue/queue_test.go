package queue

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/toolscheap/toolscheap/internal/job"
)

func TestBackoffFor(t *testing.T) {
	assert.Equal(t, 60*time.Second, BackoffFor(0))
	assert.Equal(t, 60*time.Second, BackoffFor(1))
	assert.Equal(t, 120*time.Second, BackoffFor(2))
	assert.Equal(t, 300*time.Second, BackoffFor(3))
	assert.Equal(t, 300*time.Second, BackoffFor(7), "past the schedule reuses the last delay")
}

func TestPermanent(t *testing.T) {
	base := errors.New("bad input")
	perm := Permanent(base)

	assert.True(t, IsPermanent(perm))
	assert.False(t, IsPermanent(base))
	assert.ErrorIs(t, perm, base)
	assert.Equal(t, "bad input", perm.Error())

	wrapped := Permanent(nil)
	assert.Nil(t, wrapped)

	// Permanence survives further wrapping.
	assert.True(t, IsPermanent(errors.Join(errors.New("outer"), perm)))
}

func TestQueueFor(t *testing.T) {
	assert.Equal(t, VideoQueue, QueueFor(job.ToolVideoCompress))
	assert.Equal(t, DefaultQueue, QueueFor(job.ToolPdfMerge))
	assert.Equal(t, DefaultQueue, QueueFor(job.ToolDocToPdf))
}

func TestNewEntryAttemptBudget(t *testing.T) {
	j, err := job.New(nil, job.ToolVideoCompress, "in", nil)
	require.NoError(t, err)

	e := NewEntry(j.ID, j.ToolType, 3)
	assert.Equal(t, 4, e.MaxAttempts, "3 retries means 4 total attempts")
	assert.Equal(t, VideoQueue, e.Queue)
	assert.False(t, e.Exhausted())

	e.Attempts = 4
	assert.True(t, e.Exhausted())
}

func TestRegistryResolveAppliesMiddleware(t *testing.T) {
	reg := NewRegistry()

	var order []string
	reg.Use(func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, j *job.Job) error {
			order = append(order, "outer")
			return next(ctx, j)
		}
	})
	reg.Use(func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, j *job.Job) error {
			order = append(order, "inner")
			return next(ctx, j)
		}
	})
	reg.Register(job.ToolDocToPdf, func(ctx context.Context, j *job.Job) error {
		order = append(order, "handler")
		return nil
	})

	h, err := reg.Resolve(job.ToolDocToPdf)
	require.NoError(t, err)

	j, err := job.New(nil, job.ToolDocToPdf, "in", nil)
	require.NoError(t, err)
	require.NoError(t, h(context.Background(), j))
	assert.Equal(t, []string{"outer", "inner", "handler"}, order)
}

func TestRegistryUnknownTool(t *testing.T) {
	reg := NewRegistry()
	_, err := reg.Resolve(job.ToolExcelClean)
	assert.Error(t, err)
}

func TestRegistryDuplicatePanics(t *testing.T) {
	reg := NewRegistry()
	noop := func(ctx context.Context, j *job.Job) error { return nil }
	reg.Register(job.ToolPdfMerge, noop)
	assert.Panics(t, func() { reg.Register(job.ToolPdfMerge, noop) })
}

func TestRecoveryMiddleware(t *testing.T) {
	h := Recovery()(func(ctx context.Context, j *job.Job) error {
		panic("boom")
	})

	j, err := job.New(nil, job.ToolPdfMerge, "in", nil)
	require.NoError(t, err)

	err = h(context.Background(), j)
	require.Error(t, err)
	assert.True(t, IsPermanent(err), "panics must not be retried")
	assert.Contains(t, err.Error(), "boom")
}

func TestTimeoutMiddleware(t *testing.T) {
	perTool := map[job.ToolType]time.Duration{
		job.ToolVideoCompress: 50 * time.Millisecond,
	}
	h := Timeout(10*time.Millisecond, perTool)(func(ctx context.Context, j *job.Job) error {
		<-ctx.Done()
		return ctx.Err()
	})

	j, err := job.New(nil, job.ToolDocToPdf, "in", nil)
	require.NoError(t, err)
	err = h(context.Background(), j)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "timeout")

	// Per-tool override applies.
	vj, err := job.New(nil, job.ToolVideoCompress, "in", nil)
	require.NoError(t, err)
	start := time.Now()
	_ = h(context.Background(), vj)
	assert.GreaterOrEqual(t, time.Since(start), 50*time.Millisecond)
}

func TestMemoryStoreClaimOrderAndAttempts(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	j1, _ := job.New(nil, job.ToolPdfMerge, "a", nil)
	j2, _ := job.New(nil, job.ToolPdfMerge, "b", nil)

	e1 := NewEntry(j1.ID, j1.ToolType, 3)
	e1.RunAt = time.Now().UTC().Add(-2 * time.Minute)
	e2 := NewEntry(j2.ID, j2.ToolType, 3)
	e2.RunAt = time.Now().UTC().Add(-1 * time.Minute)
	require.NoError(t, store.Enqueue(ctx, e1))
	require.NoError(t, store.Enqueue(ctx, e2))

	got, err := store.Claim(ctx, []string{DefaultQueue})
	require.NoError(t, err)
	assert.Equal(t, e1.ID, got.ID, "oldest ready entry first")
	assert.Equal(t, 1, got.Attempts)

	// e1 is claimed now; next claim returns e2.
	got2, err := store.Claim(ctx, []string{DefaultQueue})
	require.NoError(t, err)
	assert.Equal(t, e2.ID, got2.ID)

	_, err = store.Claim(ctx, []string{DefaultQueue})
	assert.ErrorIs(t, err, ErrEmpty)
}

func TestMemoryStoreClaimRespectsRunAt(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	j, _ := job.New(nil, job.ToolPdfMerge, "a", nil)
	e := NewEntry(j.ID, j.ToolType, 3)
	e.RunAt = time.Now().UTC().Add(time.Hour)
	require.NoError(t, store.Enqueue(ctx, e))

	_, err := store.Claim(ctx, []string{DefaultQueue})
	assert.ErrorIs(t, err, ErrEmpty)
}

func TestMemoryStoreRequeueStale(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	j, _ := job.New(nil, job.ToolPdfMerge, "a", nil)
	require.NoError(t, store.Enqueue(ctx, NewEntry(j.ID, j.ToolType, 3)))

	claimed, err := store.Claim(ctx, []string{DefaultQueue})
	require.NoError(t, err)

	n, err := store.RequeueStale(ctx, time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 0, n, "fresh claims stay claimed")

	n, err = store.RequeueStale(ctx, -time.Second)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	again, err := store.Claim(ctx, []string{DefaultQueue})
	require.NoError(t, err)
	assert.Equal(t, claimed.ID, again.ID)
	assert.Equal(t, 2, again.Attempts)
}

package queue

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/toolscheap/toolscheap/internal/job"
	"github.com/toolscheap/toolscheap/internal/logger"
)

// Enqueuer persists a job and makes it runnable.
type Enqueuer interface {
	Enqueue(ctx context.Context, j *job.Job) error
}

// TxEnqueuer creates the job row and its queue entry in one transaction.
// Either both exist or neither does, so there is never a visible job that
// no worker will ever pick up.
type TxEnqueuer struct {
	pool       *pgxpool.Pool
	jobs       *job.Repository
	store      *PostgresStore
	maxRetries int
}

var _ Enqueuer = (*TxEnqueuer)(nil)

func NewTxEnqueuer(pool *pgxpool.Pool, jobs *job.Repository, store *PostgresStore, maxRetries int) *TxEnqueuer {
	return &TxEnqueuer{
		pool:       pool,
		jobs:       jobs,
		store:      store,
		maxRetries: maxRetries,
	}
}

func (e *TxEnqueuer) Enqueue(ctx context.Context, j *job.Job) error {
	tx, err := e.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin enqueue tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := e.jobs.CreateTx(ctx, tx, j); err != nil {
		return err
	}
	entry := NewEntry(j.ID, j.ToolType, e.maxRetries)
	if err := e.store.EnqueueTx(ctx, tx, entry); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit enqueue tx: %w", err)
	}

	logger.FromContext(ctx).Info("job enqueued",
		"job_id", j.ID, "tool", j.ToolType, "queue", entry.Queue)
	return nil
}

// MemoryEnqueuer wires the in-memory job store and queue together for tests.
type MemoryEnqueuer struct {
	Jobs       *job.MemoryStore
	Store      *MemoryStore
	MaxRetries int
}

var _ Enqueuer = (*MemoryEnqueuer)(nil)

func NewMemoryEnqueuer(jobs *job.MemoryStore, store *MemoryStore, maxRetries int) *MemoryEnqueuer {
	return &MemoryEnqueuer{Jobs: jobs, Store: store, MaxRetries: maxRetries}
}

func (e *MemoryEnqueuer) Enqueue(ctx context.Context, j *job.Job) error {
	if err := e.Jobs.Create(ctx, j); err != nil {
		return err
	}
	return e.Store.Enqueue(ctx, NewEntry(j.ID, j.ToolType, e.MaxRetries))
}

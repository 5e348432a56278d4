package queue

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore keeps the queue in the same database as the job rows, so a
// job and its queue entry are created in one transaction and a half-enqueued
// job cannot exist.
type PostgresStore struct {
	pool *pgxpool.Pool
}

var _ Store = (*PostgresStore)(nil)

func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

const insertEntrySQL = `
	INSERT INTO queue_entries (id, job_id, queue, tool, attempts, max_attempts,
		run_at, claimed_at, last_error, created_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

func insertEntryArgs(e *Entry) []any {
	return []any{
		e.ID, e.JobID, e.Queue, e.Tool, e.Attempts, e.MaxAttempts,
		e.RunAt, e.ClaimedAt, e.LastError, e.CreatedAt,
	}
}

func (s *PostgresStore) Enqueue(ctx context.Context, e *Entry) error {
	if _, err := s.pool.Exec(ctx, insertEntrySQL, insertEntryArgs(e)...); err != nil {
		return fmt.Errorf("enqueue job %s: %w", e.JobID, err)
	}
	return nil
}

// EnqueueTx inserts the entry inside an existing transaction, alongside the
// job row it points at.
func (s *PostgresStore) EnqueueTx(ctx context.Context, tx pgx.Tx, e *Entry) error {
	if _, err := tx.Exec(ctx, insertEntrySQL, insertEntryArgs(e)...); err != nil {
		return fmt.Errorf("enqueue job %s: %w", e.JobID, err)
	}
	return nil
}

// Claim takes the oldest ready entry with FOR UPDATE SKIP LOCKED, so
// concurrent workers never double-claim and never block on each other.
func (s *PostgresStore) Claim(ctx context.Context, queues []string) (*Entry, error) {
	now := time.Now().UTC()
	row := s.pool.QueryRow(ctx, `
		UPDATE queue_entries SET claimed_at = $1, attempts = attempts + 1
		WHERE id = (
			SELECT id FROM queue_entries
			WHERE queue = ANY($2) AND claimed_at IS NULL AND run_at <= $1
			ORDER BY run_at ASC
			FOR UPDATE SKIP LOCKED
			LIMIT 1
		)
		RETURNING id, job_id, queue, tool, attempts, max_attempts,
			run_at, claimed_at, last_error, created_at`,
		now, queues,
	)

	var e Entry
	err := row.Scan(
		&e.ID, &e.JobID, &e.Queue, &e.Tool, &e.Attempts, &e.MaxAttempts,
		&e.RunAt, &e.ClaimedAt, &e.LastError, &e.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrEmpty
		}
		return nil, fmt.Errorf("claim queue entry: %w", err)
	}
	return &e, nil
}

func (s *PostgresStore) Complete(ctx context.Context, id uuid.UUID) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM queue_entries WHERE id = $1`, id); err != nil {
		return fmt.Errorf("complete queue entry %s: %w", id, err)
	}
	return nil
}

func (s *PostgresStore) Retry(ctx context.Context, id uuid.UUID, runAt time.Time, lastError string) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE queue_entries SET claimed_at = NULL, run_at = $2, last_error = $3
		WHERE id = $1`,
		id, runAt, lastError,
	)
	if err != nil {
		return fmt.Errorf("retry queue entry %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("retry queue entry %s: entry gone", id)
	}
	return nil
}

func (s *PostgresStore) RequeueStale(ctx context.Context, olderThan time.Duration) (int, error) {
	cutoff := time.Now().UTC().Add(-olderThan)
	tag, err := s.pool.Exec(ctx, `
		UPDATE queue_entries SET claimed_at = NULL, last_error = 'worker lost'
		WHERE claimed_at IS NOT NULL AND claimed_at < $1`,
		cutoff,
	)
	if err != nil {
		return 0, fmt.Errorf("requeue stale entries: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

func (s *PostgresStore) Depth(ctx context.Context) (map[string]int, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT queue, COUNT(*) FROM queue_entries
		WHERE claimed_at IS NULL
		GROUP BY queue`)
	if err != nil {
		return nil, fmt.Errorf("queue depth: %w", err)
	}
	defer rows.Close()

	depth := make(map[string]int)
	for rows.Next() {
		var q string
		var n int
		if err := rows.Scan(&q, &n); err != nil {
			return nil, fmt.Errorf("scan queue depth: %w", err)
		}
		depth[q] = n
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("queue depth: %w", err)
	}
	return depth, nil
}

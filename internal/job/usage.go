package job

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// UsageRecord is one line in the usage ledger: who ran which tool, when, and
// on how many bytes. Sync tools record usage too even though they never
// create a job, so JobID is optional.
type UsageRecord struct {
	ID        uuid.UUID
	UserID    *uuid.UUID
	JobID     *uuid.UUID
	ToolType  ToolType
	FileSize  int64
	CreatedAt time.Time
}

// NewUsageRecord builds a ledger entry timestamped now.
func NewUsageRecord(userID, jobID *uuid.UUID, tool ToolType, fileSize int64) *UsageRecord {
	return &UsageRecord{
		ID:        uuid.New(),
		UserID:    userID,
		JobID:     jobID,
		ToolType:  tool,
		FileSize:  fileSize,
		CreatedAt: time.Now().UTC(),
	}
}

// UsageRecorder appends to and queries the usage ledger.
type UsageRecorder interface {
	Record(ctx context.Context, rec *UsageRecord) error
	CountSince(ctx context.Context, userID uuid.UUID, since time.Time) (int, error)
}

// UsageRepository persists the ledger in Postgres.
type UsageRepository struct {
	pool *pgxpool.Pool
}

var _ UsageRecorder = (*UsageRepository)(nil)

func NewUsageRepository(pool *pgxpool.Pool) *UsageRepository {
	return &UsageRepository{pool: pool}
}

func (r *UsageRepository) Record(ctx context.Context, rec *UsageRecord) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO usage_records (id, user_id, job_id, tool_type, file_size, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		rec.ID, rec.UserID, rec.JobID, rec.ToolType, rec.FileSize, rec.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert usage record: %w", err)
	}
	return nil
}

// CountSince returns how many operations the user has run since the given
// time. This backs the per-tier monthly quota check.
func (r *UsageRepository) CountSince(ctx context.Context, userID uuid.UUID, since time.Time) (int, error) {
	var n int
	err := r.pool.QueryRow(ctx, `
		SELECT COUNT(*) FROM usage_records
		WHERE user_id = $1 AND created_at >= $2`,
		userID, since,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count usage for user %s: %w", userID, err)
	}
	return n, nil
}

// UsageByTool aggregates ledger entries per tool since the given time, for
// the admin dashboard.
func (r *UsageRepository) UsageByTool(ctx context.Context, since time.Time) (map[ToolType]int, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT tool_type, COUNT(*) FROM usage_records
		WHERE created_at >= $1
		GROUP BY tool_type`, since)
	if err != nil {
		return nil, fmt.Errorf("aggregate usage by tool: %w", err)
	}
	defer rows.Close()

	counts := make(map[ToolType]int)
	for rows.Next() {
		var t ToolType
		var n int
		if err := rows.Scan(&t, &n); err != nil {
			return nil, fmt.Errorf("scan usage count: %w", err)
		}
		counts[t] = n
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("aggregate usage by tool: %w", err)
	}
	return counts, nil
}

// MemoryUsageRecorder is an in-memory UsageRecorder for tests.
type MemoryUsageRecorder struct {
	mu      sync.Mutex
	records []*UsageRecord
}

var _ UsageRecorder = (*MemoryUsageRecorder)(nil)

func NewMemoryUsageRecorder() *MemoryUsageRecorder {
	return &MemoryUsageRecorder{}
}

func (r *MemoryUsageRecorder) Record(ctx context.Context, rec *UsageRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *rec
	r.records = append(r.records, &cp)
	return nil
}

func (r *MemoryUsageRecorder) CountSince(ctx context.Context, userID uuid.UUID, since time.Time) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, rec := range r.records {
		if rec.UserID != nil && *rec.UserID == userID && !rec.CreatedAt.Before(since) {
			n++
		}
	}
	return n, nil
}

// Records returns a copy of everything recorded (test helper).
func (r *MemoryUsageRecorder) Records() []*UsageRecord {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*UsageRecord, len(r.records))
	copy(out, r.records)
	return out
}

package job

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrNotFound is returned when no job exists for the given ID.
var ErrNotFound = errors.New("job: not found")

// Repository persists jobs in Postgres.
type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Pool exposes the underlying pool so callers can open transactions that
// span the job table and the queue table.
func (r *Repository) Pool() *pgxpool.Pool {
	return r.pool
}

const jobColumns = `id, user_id, tool_type, status, progress, input_file_key,
	output_file_key, download_url, url_expires_at, params, error_message,
	created_at, updated_at, started_at, completed_at`

func scanJob(row pgx.Row) (*Job, error) {
	var j Job
	err := row.Scan(
		&j.ID, &j.UserID, &j.ToolType, &j.Status, &j.Progress, &j.InputFileKey,
		&j.OutputFileKey, &j.DownloadURL, &j.URLExpiresAt, &j.Params, &j.ErrorMessage,
		&j.CreatedAt, &j.UpdatedAt, &j.StartedAt, &j.CompletedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scan job: %w", err)
	}
	return &j, nil
}

const insertJobSQL = `
	INSERT INTO jobs (id, user_id, tool_type, status, progress, input_file_key,
		output_file_key, download_url, url_expires_at, params, error_message,
		created_at, updated_at, started_at, completed_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`

func insertArgs(j *Job) []any {
	return []any{
		j.ID, j.UserID, j.ToolType, j.Status, j.Progress, j.InputFileKey,
		j.OutputFileKey, j.DownloadURL, j.URLExpiresAt, j.Params, j.ErrorMessage,
		j.CreatedAt, j.UpdatedAt, j.StartedAt, j.CompletedAt,
	}
}

// Create inserts a new job row.
func (r *Repository) Create(ctx context.Context, j *Job) error {
	if _, err := r.pool.Exec(ctx, insertJobSQL, insertArgs(j)...); err != nil {
		return fmt.Errorf("insert job %s: %w", j.ID, err)
	}
	return nil
}

// CreateTx inserts a job inside an existing transaction, so a job and its
// queue entry commit or roll back together.
func (r *Repository) CreateTx(ctx context.Context, tx pgx.Tx, j *Job) error {
	if _, err := tx.Exec(ctx, insertJobSQL, insertArgs(j)...); err != nil {
		return fmt.Errorf("insert job %s: %w", j.ID, err)
	}
	return nil
}

// Get fetches a job by ID.
func (r *Repository) Get(ctx context.Context, id uuid.UUID) (*Job, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+jobColumns+` FROM jobs WHERE id = $1`, id)
	return scanJob(row)
}

// Update writes back every mutable field of the job.
func (r *Repository) Update(ctx context.Context, j *Job) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE jobs SET status = $2, progress = $3, output_file_key = $4,
			download_url = $5, url_expires_at = $6, error_message = $7,
			updated_at = $8, started_at = $9, completed_at = $10
		WHERE id = $1`,
		j.ID, j.Status, j.Progress, j.OutputFileKey,
		j.DownloadURL, j.URLExpiresAt, j.ErrorMessage,
		j.UpdatedAt, j.StartedAt, j.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("update job %s: %w", j.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// SetProgress updates only the progress column without racing other fields.
// Progress never moves backwards.
func (r *Repository) SetProgress(ctx context.Context, id uuid.UUID, pct int) error {
	if pct < 0 {
		pct = 0
	}
	if pct > 100 {
		pct = 100
	}
	_, err := r.pool.Exec(ctx, `
		UPDATE jobs SET progress = $2, updated_at = $3
		WHERE id = $1 AND progress < $2`,
		id, pct, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("update job progress %s: %w", id, err)
	}
	return nil
}

// ListByUser returns the user's jobs, newest first.
func (r *Repository) ListByUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*Job, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	rows, err := r.pool.Query(ctx, `
		SELECT `+jobColumns+` FROM jobs
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3`,
		userID, limit, offset,
	)
	if err != nil {
		return nil, fmt.Errorf("list jobs for user %s: %w", userID, err)
	}
	defer rows.Close()

	var jobs []*Job
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, j)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list jobs for user %s: %w", userID, err)
	}
	return jobs, nil
}

// CountByStatus returns how many jobs sit in each status, for the admin
// dashboard.
func (r *Repository) CountByStatus(ctx context.Context) (map[Status]int, error) {
	rows, err := r.pool.Query(ctx, `SELECT status, COUNT(*) FROM jobs GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("count jobs by status: %w", err)
	}
	defer rows.Close()

	counts := make(map[Status]int)
	for rows.Next() {
		var s Status
		var n int
		if err := rows.Scan(&s, &n); err != nil {
			return nil, fmt.Errorf("scan status count: %w", err)
		}
		counts[s] = n
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("count jobs by status: %w", err)
	}
	return counts, nil
}

// CountByTool returns per-tool job counts since the given time.
func (r *Repository) CountByTool(ctx context.Context, since time.Time) (map[ToolType]int, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT tool_type, COUNT(*) FROM jobs
		WHERE created_at >= $1
		GROUP BY tool_type`, since)
	if err != nil {
		return nil, fmt.Errorf("count jobs by tool: %w", err)
	}
	defer rows.Close()

	counts := make(map[ToolType]int)
	for rows.Next() {
		var t ToolType
		var n int
		if err := rows.Scan(&t, &n); err != nil {
			return nil, fmt.Errorf("scan tool count: %w", err)
		}
		counts[t] = n
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("count jobs by tool: %w", err)
	}
	return counts, nil
}

// DailyCount is one day's worth of job volume.
type DailyCount struct {
	Day       time.Time
	Total     int
	Completed int
	Failed    int
}

// DailyVolume returns per-day job counts since the given time, oldest first.
func (r *Repository) DailyVolume(ctx context.Context, since time.Time) ([]DailyCount, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT date_trunc('day', created_at) AS day,
		       COUNT(*),
		       COUNT(*) FILTER (WHERE status = $2),
		       COUNT(*) FILTER (WHERE status = $3)
		FROM jobs
		WHERE created_at >= $1
		GROUP BY day
		ORDER BY day`, since, StatusCompleted, StatusFailed)
	if err != nil {
		return nil, fmt.Errorf("daily job volume: %w", err)
	}
	defer rows.Close()

	var out []DailyCount
	for rows.Next() {
		var d DailyCount
		if err := rows.Scan(&d.Day, &d.Total, &d.Completed, &d.Failed); err != nil {
			return nil, fmt.Errorf("scan daily volume: %w", err)
		}
		out = append(out, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("daily job volume: %w", err)
	}
	return out, nil
}

// Cancel marks a pending job cancelled. It does nothing once a worker has
// started the job; the caller learns that from ErrNotFound.
func (r *Repository) Cancel(ctx context.Context, id uuid.UUID) error {
	now := time.Now().UTC()
	tag, err := r.pool.Exec(ctx, `
		UPDATE jobs SET status = $2, completed_at = $3, updated_at = $3
		WHERE id = $1 AND status = $4`,
		id, StatusCancelled, now, StatusPending,
	)
	if err != nil {
		return fmt.Errorf("cancel job %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteByIDs removes job rows. Used by the cleanup binary after the
// associated files are gone.
func (r *Repository) DeleteByIDs(ctx context.Context, ids []uuid.UUID) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	tag, err := r.pool.Exec(ctx, `DELETE FROM jobs WHERE id = ANY($1)`, ids)
	if err != nil {
		return 0, fmt.Errorf("delete jobs: %w", err)
	}
	return tag.RowsAffected(), nil
}

// ListExpired returns terminal jobs older than the cutoff, so cleanup can
// delete their stored files before removing the rows.
func (r *Repository) ListExpired(ctx context.Context, cutoff time.Time, limit int) ([]*Job, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.pool.Query(ctx, `
		SELECT `+jobColumns+` FROM jobs
		WHERE completed_at IS NOT NULL AND completed_at < $1
		ORDER BY completed_at ASC
		LIMIT $2`, cutoff, limit)
	if err != nil {
		return nil, fmt.Errorf("list expired jobs: %w", err)
	}
	defer rows.Close()

	var jobs []*Job
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, j)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list expired jobs: %w", err)
	}
	return jobs, nil
}

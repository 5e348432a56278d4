package queue

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/toolscheap/toolscheap/internal/job"
)

// Entry is one row in the durable work queue. The queue carries only the
// pointer to the job plus delivery bookkeeping; the job row holds the
// user-visible state. Delivery is at-least-once: a worker crash after claim
// leaves the entry claimed until the stale requeue sweep returns it.
type Entry struct {
	ID          uuid.UUID
	JobID       uuid.UUID
	Queue       string
	Tool        job.ToolType
	Attempts    int
	MaxAttempts int
	RunAt       time.Time
	ClaimedAt   *time.Time
	LastError   string
	CreatedAt   time.Time
}

// DefaultQueue receives every tool except video transcodes, which get their
// own queue so long-running ffmpeg work cannot starve quick conversions.
const (
	DefaultQueue = "default"
	VideoQueue   = "video"
)

// QueueFor routes a tool to its queue.
func QueueFor(tool job.ToolType) string {
	if tool == job.ToolVideoCompress {
		return VideoQueue
	}
	return DefaultQueue
}

// NewEntry builds a ready-to-run entry for the job. maxRetries counts
// re-deliveries after the first attempt, so the entry allows maxRetries+1
// total attempts.
func NewEntry(jobID uuid.UUID, tool job.ToolType, maxRetries int) *Entry {
	now := time.Now().UTC()
	return &Entry{
		ID:          uuid.New(),
		JobID:       jobID,
		Queue:       QueueFor(tool),
		Tool:        tool,
		Attempts:    0,
		MaxAttempts: maxRetries + 1,
		RunAt:       now,
		CreatedAt:   now,
	}
}

// Exhausted reports whether the entry has used up all its attempts.
func (e *Entry) Exhausted() bool {
	return e.Attempts >= e.MaxAttempts
}

// ErrEmpty is returned by Claim when no entry is ready to run.
var ErrEmpty = errors.New("queue: no entries ready")

// Store is the durable queue backend.
type Store interface {
	// Enqueue adds an entry.
	Enqueue(ctx context.Context, e *Entry) error
	// Claim atomically takes the oldest ready entry from one of the given
	// queues, increments its attempt counter and marks it claimed. Returns
	// ErrEmpty when nothing is ready.
	Claim(ctx context.Context, queues []string) (*Entry, error)
	// Complete removes a finished entry.
	Complete(ctx context.Context, id uuid.UUID) error
	// Retry releases a claimed entry to run again at runAt, recording the
	// error that caused the retry.
	Retry(ctx context.Context, id uuid.UUID, runAt time.Time, lastError string) error
	// RequeueStale releases entries claimed longer ago than the timeout,
	// covering workers that died mid-job.
	RequeueStale(ctx context.Context, olderThan time.Duration) (int, error)
	// Depth returns the number of ready entries per queue.
	Depth(ctx context.Context) (map[string]int, error)
}

// Backoff is the delay schedule between retry attempts. Attempt n (1-based,
// counting failures) waits Backoff[n-1]; failures past the end of the
// schedule reuse the last delay.
var Backoff = []time.Duration{
	60 * time.Second,
	120 * time.Second,
	300 * time.Second,
}

// BackoffFor returns the delay before the next attempt after `failures`
// failed attempts.
func BackoffFor(failures int) time.Duration {
	if failures <= 0 {
		return Backoff[0]
	}
	if failures > len(Backoff) {
		return Backoff[len(Backoff)-1]
	}
	return Backoff[failures-1]
}

type permanentError struct {
	err error
}

func (p *permanentError) Error() string { return p.err.Error() }
func (p *permanentError) Unwrap() error { return p.err }

// Permanent wraps an error so the pool fails the job immediately instead of
// retrying. Use it for errors that cannot succeed on a second attempt, like
// malformed input.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// IsPermanent reports whether err (or anything it wraps) is permanent.
func IsPermanent(err error) bool {
	var p *permanentError
	return errors.As(err, &p)
}

package queue

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/toolscheap/toolscheap/internal/job"
	"github.com/toolscheap/toolscheap/internal/logger"
)

// Recovery converts a handler panic into a permanent error. A panic is a
// bug, not a transient condition, so retrying would only repeat it.
func Recovery() Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, j *job.Job) (err error) {
			defer func() {
				if r := recover(); r != nil {
					logger.FromContext(ctx).Error("handler panicked",
						"job_id", j.ID, "tool", j.ToolType, "panic", r,
						"stack", string(debug.Stack()))
					err = Permanent(fmt.Errorf("handler panic: %v", r))
				}
			}()
			return next(ctx, j)
		}
	}
}

// Logging records start, outcome and duration of every handler run.
func Logging() Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, j *job.Job) error {
			ctx = logger.WithJobID(ctx, j.ID.String())
			log := logger.FromContext(ctx)
			log.Info("job started", "job_id", j.ID, "tool", j.ToolType)

			start := time.Now()
			err := next(ctx, j)
			durationMs := time.Since(start).Milliseconds()

			if err != nil {
				log.Error("job failed", "job_id", j.ID, "tool", j.ToolType,
					"error", err, "permanent", IsPermanent(err), "duration_ms", durationMs)
				return err
			}
			log.Info("job completed", "job_id", j.ID, "tool", j.ToolType, "duration_ms", durationMs)
			return nil
		}
	}
}

// Timeout bounds a handler run. perTool overrides the default for specific
// tools; video transcodes get a longer leash than quick conversions.
func Timeout(defaultTimeout time.Duration, perTool map[job.ToolType]time.Duration) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, j *job.Job) error {
			timeout := defaultTimeout
			if t, ok := perTool[j.ToolType]; ok {
				timeout = t
			}
			ctx, cancel := context.WithTimeout(ctx, timeout)
			defer cancel()

			err := next(ctx, j)
			if err != nil && ctx.Err() == context.DeadlineExceeded {
				return fmt.Errorf("job exceeded %s timeout: %w", timeout, err)
			}
			return err
		}
	}
}

// Collector receives per-job observations. Satisfied by the metrics package;
// declared here so the queue does not depend on it.
type Collector interface {
	JobStarted(tool string)
	JobFinished(tool, outcome string, duration time.Duration)
}

// Metrics reports handler runs to the collector.
func Metrics(c Collector) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, j *job.Job) error {
			tool := string(j.ToolType)
			c.JobStarted(tool)

			start := time.Now()
			err := next(ctx, j)
			duration := time.Since(start)

			switch {
			case err == nil:
				c.JobFinished(tool, "success", duration)
			case IsPermanent(err):
				c.JobFinished(tool, "permanent_failure", duration)
			default:
				c.JobFinished(tool, "retryable_failure", duration)
			}
			return err
		}
	}
}

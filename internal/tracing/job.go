package tracing

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/toolscheap/toolscheap/internal/job"
	"github.com/toolscheap/toolscheap/internal/queue"
)

// JobSpans is queue middleware that wraps each handler run in a span.
func JobSpans() queue.Middleware {
	return func(next queue.HandlerFunc) queue.HandlerFunc {
		return func(ctx context.Context, j *job.Job) error {
			ctx, span := StartSpan(ctx, "job.process",
				trace.WithAttributes(
					attribute.String("job.id", j.ID.String()),
					attribute.String("job.tool", string(j.ToolType)),
				),
			)
			defer span.End()

			start := time.Now()
			err := next(ctx, j)
			span.SetAttributes(attribute.Int64("job.duration_ms", time.Since(start).Milliseconds()))

			if err != nil {
				span.RecordError(err)
				span.SetStatus(codes.Error, err.Error())
				span.SetAttributes(attribute.Bool("job.permanent_failure", queue.IsPermanent(err)))
			} else {
				span.SetStatus(codes.Ok, "")
			}
			return err
		}
	}
}

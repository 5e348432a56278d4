package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/toolscheap/toolscheap/internal/job"
	"github.com/toolscheap/toolscheap/internal/logger"
	"github.com/toolscheap/toolscheap/internal/storage"
)

// Cleaner removes expired job artifacts: output files past their retention
// window, then the job rows themselves. It runs from a scheduled binary, not
// inside the worker pool.
type Cleaner struct {
	jobs      *job.Repository
	store     storage.Storage
	retention time.Duration
	batchSize int
}

func NewCleaner(jobs *job.Repository, store storage.Storage, retention time.Duration) *Cleaner {
	if retention <= 0 {
		retention = 7 * 24 * time.Hour
	}
	return &Cleaner{
		jobs:      jobs,
		store:     store,
		retention: retention,
		batchSize: 100,
	}
}

// Run deletes one batch at a time until nothing old enough remains.
func (c *Cleaner) Run(ctx context.Context) (int, error) {
	log := logger.FromContext(ctx)
	cutoff := time.Now().UTC().Add(-c.retention)
	total := 0

	for {
		expired, err := c.jobs.ListExpired(ctx, cutoff, c.batchSize)
		if err != nil {
			return total, fmt.Errorf("list expired jobs: %w", err)
		}
		if len(expired) == 0 {
			return total, nil
		}

		ids := make([]uuid.UUID, 0, len(expired))
		for _, j := range expired {
			if j.OutputFileKey != "" {
				if err := c.store.Delete(ctx, j.OutputFileKey); err != nil {
					log.Warn("delete expired output failed", "job_id", j.ID, "key", j.OutputFileKey, "error", err)
				}
			}
			// Failed jobs may still hold their temp input.
			if j.InputFileKey != "" {
				if err := c.store.Delete(ctx, j.InputFileKey); err != nil {
					log.Warn("delete expired input failed", "job_id", j.ID, "key", j.InputFileKey, "error", err)
				}
			}
			ids = append(ids, j.ID)
		}

		deleted, err := c.jobs.DeleteByIDs(ctx, ids)
		if err != nil {
			return total, fmt.Errorf("delete expired jobs: %w", err)
		}
		total += int(deleted)
		log.Info("cleanup batch done", "deleted", deleted, "cutoff", cutoff)

		if len(expired) < c.batchSize {
			return total, nil
		}
	}
}

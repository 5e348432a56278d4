package queue

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/toolscheap/toolscheap/internal/job"
	"github.com/toolscheap/toolscheap/internal/logger"
)

// PoolOptions configures a worker pool.
type PoolOptions struct {
	// Queues to consume, in no particular priority order.
	Queues []string
	// Concurrency is the number of goroutines claiming work.
	Concurrency int
	// PollInterval is how long an idle worker sleeps between claims.
	PollInterval time.Duration
	// VisibilityTimeout is how long a claim may be held before the sweeper
	// assumes the worker died and releases the entry.
	VisibilityTimeout time.Duration
	// BackoffFunc maps the number of failed attempts to the delay before
	// the next one. Defaults to the standard schedule.
	BackoffFunc func(failures int) time.Duration
}

func (o *PoolOptions) withDefaults() {
	if len(o.Queues) == 0 {
		o.Queues = []string{DefaultQueue}
	}
	if o.Concurrency <= 0 {
		o.Concurrency = 4
	}
	if o.PollInterval <= 0 {
		o.PollInterval = time.Second
	}
	if o.VisibilityTimeout <= 0 {
		o.VisibilityTimeout = 15 * time.Minute
	}
	if o.BackoffFunc == nil {
		o.BackoffFunc = BackoffFor
	}
}

// Pool claims entries from the queue and runs their handlers. Job state
// transitions happen here: a pool marks the job processing before the first
// attempt, and writes the terminal failure only when retries are exhausted.
// Intermediate failures stay on the queue entry so a polling client never
// sees a job flicker through failed on its way to a successful retry.
type Pool struct {
	store    Store
	jobs     job.Store
	registry *Registry
	opts     PoolOptions
}

func NewPool(store Store, jobs job.Store, registry *Registry, opts PoolOptions) *Pool {
	opts.withDefaults()
	return &Pool{
		store:    store,
		jobs:     jobs,
		registry: registry,
		opts:     opts,
	}
}

// Run blocks, processing jobs until ctx is cancelled, then waits for
// in-flight handlers to return.
func (p *Pool) Run(ctx context.Context) {
	log := logger.FromContext(ctx)
	log.Info("worker pool starting",
		"queues", p.opts.Queues,
		"concurrency", p.opts.Concurrency,
		"poll_interval", p.opts.PollInterval.String())

	var wg sync.WaitGroup
	for i := 0; i < p.opts.Concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			p.workerLoop(ctx)
		}()
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		p.sweepLoop(ctx)
	}()

	wg.Wait()
	log.Info("worker pool stopped")
}

func (p *Pool) workerLoop(ctx context.Context) {
	for {
		entry, err := p.store.Claim(ctx, p.opts.Queues)
		switch {
		case errors.Is(err, ErrEmpty):
			if !sleep(ctx, p.opts.PollInterval) {
				return
			}
			continue
		case err != nil:
			if ctx.Err() != nil {
				return
			}
			logger.FromContext(ctx).Error("queue claim failed", "error", err)
			if !sleep(ctx, p.opts.PollInterval) {
				return
			}
			continue
		}

		p.process(ctx, entry)

		if ctx.Err() != nil {
			return
		}
	}
}

// sweepLoop periodically returns entries whose worker vanished mid-claim.
func (p *Pool) sweepLoop(ctx context.Context) {
	interval := p.opts.VisibilityTimeout / 3
	if interval < time.Second {
		interval = time.Second
	}
	for {
		if !sleep(ctx, interval) {
			return
		}
		n, err := p.store.RequeueStale(ctx, p.opts.VisibilityTimeout)
		if err != nil {
			if ctx.Err() == nil {
				logger.FromContext(ctx).Error("stale requeue failed", "error", err)
			}
			continue
		}
		if n > 0 {
			logger.FromContext(ctx).Warn("requeued stale entries", "count", n)
		}
	}
}

func (p *Pool) process(ctx context.Context, entry *Entry) {
	log := logger.FromContext(ctx)

	j, err := p.jobs.Get(ctx, entry.JobID)
	if err != nil {
		if errors.Is(err, job.ErrNotFound) {
			log.Warn("queue entry points at missing job", "job_id", entry.JobID)
			p.finishEntry(ctx, entry)
			return
		}
		log.Error("load job failed", "job_id", entry.JobID, "error", err)
		p.retryEntry(ctx, entry, err)
		return
	}

	// A job cancelled while waiting in the queue is simply dropped.
	if j.Status.Terminal() {
		log.Info("skipping terminal job", "job_id", j.ID, "status", j.Status.String())
		p.finishEntry(ctx, entry)
		return
	}

	if j.Status == job.StatusPending {
		if err := j.Start(); err != nil {
			log.Error("start job failed", "job_id", j.ID, "error", err)
			p.finishEntry(ctx, entry)
			return
		}
		if err := p.jobs.Update(ctx, j); err != nil {
			log.Error("persist job start failed", "job_id", j.ID, "error", err)
			p.retryEntry(ctx, entry, err)
			return
		}
	}

	handler, err := p.registry.Resolve(entry.Tool)
	if err != nil {
		p.failJob(ctx, entry, j, err)
		return
	}

	if err := handler(ctx, j); err != nil {
		if IsPermanent(err) || entry.Exhausted() {
			p.failJob(ctx, entry, j, err)
			return
		}
		p.retryEntry(ctx, entry, err)
		return
	}

	p.finishEntry(ctx, entry)
}

// failJob writes the terminal failure to the job row and removes the entry.
func (p *Pool) failJob(ctx context.Context, entry *Entry, j *job.Job, cause error) {
	log := logger.FromContext(ctx)
	if err := j.Fail(cause.Error()); err != nil {
		log.Error("mark job failed rejected", "job_id", j.ID, "error", err)
	} else if err := p.jobs.Update(ctx, j); err != nil {
		log.Error("persist job failure failed", "job_id", j.ID, "error", err)
	}
	p.finishEntry(ctx, entry)
}

func (p *Pool) finishEntry(ctx context.Context, entry *Entry) {
	if err := p.store.Complete(ctx, entry.ID); err != nil {
		logger.FromContext(ctx).Error("remove queue entry failed", "entry_id", entry.ID, "error", err)
	}
}

func (p *Pool) retryEntry(ctx context.Context, entry *Entry, cause error) {
	delay := p.opts.BackoffFunc(entry.Attempts)
	runAt := time.Now().UTC().Add(delay)
	logger.FromContext(ctx).Warn("scheduling retry",
		"job_id", entry.JobID, "attempt", entry.Attempts,
		"max_attempts", entry.MaxAttempts, "delay", delay.String(), "error", cause)
	if err := p.store.Retry(ctx, entry.ID, runAt, cause.Error()); err != nil {
		logger.FromContext(ctx).Error("schedule retry failed", "entry_id", entry.ID, "error", err)
	}
}

// sleep waits for d or until ctx is done; it reports false on cancellation.
func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

package pipeline

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/pressbound/bindery/internal/jobs"
)

// defaultPollInterval is how long an idle worker waits before checking
// the queue again.
const defaultPollInterval = time.Second

// Pool runs N independent workers, each an infinite loop of
// dequeue → orchestrate. Worker count bounds the number of books
// processed concurrently; the queue's atomic dequeue keeps two workers
// off the same job.
type Pool struct {
	queue        *jobs.Queue
	orchestrator *Orchestrator
	workers      int
	pollInterval time.Duration
	logger       *slog.Logger

	wg sync.WaitGroup
}

// NewPool creates a worker pool over the queue.
func NewPool(queue *jobs.Queue, orchestrator *Orchestrator, workers int, logger *slog.Logger) *Pool {
	if workers <= 0 {
		workers = 1
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Pool{
		queue:        queue,
		orchestrator: orchestrator,
		workers:      workers,
		pollInterval: defaultPollInterval,
		logger:       logger,
	}
}

// Start launches the workers. They stop when ctx is cancelled.
func (p *Pool) Start(ctx context.Context) {
	p.logger.Info("starting worker pool", "workers", p.workers)
	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.run(ctx, i)
	}
}

// Wait blocks until every worker has exited.
func (p *Pool) Wait() {
	p.wg.Wait()
}

func (p *Pool) run(ctx context.Context, id int) {
	defer p.wg.Done()
	logger := p.logger.With("worker", id)

	for {
		select {
		case <-ctx.Done():
			logger.Debug("worker stopping")
			return
		default:
		}

		job, err := p.queue.Dequeue(ctx)
		if err != nil {
			logger.Error("dequeue failed", "error", err)
			if !sleepCtx(ctx, p.pollInterval) {
				return
			}
			continue
		}
		if job == nil {
			if !sleepCtx(ctx, p.pollInterval) {
				return
			}
			continue
		}

		if err := p.orchestrator.Run(ctx, job); err != nil {
			// Run already recorded the terminal failure.
			logger.Debug("job ended in failure", "job_id", job.ID, "error", err)
		}
	}
}

// sleepCtx sleeps for d or until ctx is done; reports whether the
// caller should keep running.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	select {
	case <-ctx.Done():
		return false
	case <-time.After(d):
		return true
	}
}

package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// KnownJobTypes are the job types the queue admits.
var KnownJobTypes = []string{"full_pipeline", "text_only", "audio_only"}

// Queue is the admission and dispatch service in front of the job
// repository. It validates submissions, applies defaults, and logs
// lifecycle events.
type Queue struct {
	store              Store
	logger             *slog.Logger
	defaultPriority    Priority
	defaultMaxAttempts int
}

// NewQueue creates a queue over the given store.
func NewQueue(store Store, logger *slog.Logger, defaultPriority Priority, defaultMaxAttempts int) *Queue {
	if logger == nil {
		logger = slog.Default()
	}
	if defaultMaxAttempts <= 0 {
		defaultMaxAttempts = 3
	}
	return &Queue{
		store:              store,
		logger:             logger,
		defaultPriority:    defaultPriority,
		defaultMaxAttempts: defaultMaxAttempts,
	}
}

// ValidJobType reports whether jobType is one the pipeline understands.
func ValidJobType(jobType string) bool {
	for _, t := range KnownJobTypes {
		if t == jobType {
			return true
		}
	}
	return false
}

// Enqueue admits a new job for a book. Returns ErrJobExists when an
// active job for the same (book, job type) is already queued or running.
func (q *Queue) Enqueue(ctx context.Context, bookID, jobType string, priority Priority, maxAttempts int) (*Job, error) {
	if bookID == "" {
		return nil, fmt.Errorf("book id is required")
	}
	if !ValidJobType(jobType) {
		return nil, fmt.Errorf("unknown job type: %q", jobType)
	}
	if maxAttempts <= 0 {
		maxAttempts = q.defaultMaxAttempts
	}

	job := NewJob(bookID, jobType, priority, maxAttempts)
	if err := q.store.CreateJob(ctx, job); err != nil {
		return nil, err
	}

	q.logger.Info("job enqueued",
		"job_id", job.ID,
		"book_id", bookID,
		"job_type", jobType,
		"priority", priority.String())
	return job, nil
}

// EnqueueDefault admits a job with the queue's default priority.
func (q *Queue) EnqueueDefault(ctx context.Context, bookID, jobType string) (*Job, error) {
	return q.Enqueue(ctx, bookID, jobType, q.defaultPriority, 0)
}

// Dequeue claims the next pending job, or returns (nil, nil) when the
// queue is empty.
func (q *Queue) Dequeue(ctx context.Context) (*Job, error) {
	job, err := q.store.DequeueJob(ctx)
	if err != nil {
		return nil, err
	}
	if job != nil {
		q.logger.Info("job dequeued",
			"job_id", job.ID,
			"book_id", job.BookID,
			"job_type", job.JobType,
			"priority", job.Priority.String())
	}
	return job, nil
}

// Get returns a job by ID.
func (q *Queue) Get(ctx context.Context, id string) (*Job, error) {
	return q.store.GetJob(ctx, id)
}

// List returns jobs matching the filter.
func (q *Queue) List(ctx context.Context, filter ListFilter) ([]*Job, error) {
	return q.store.ListJobs(ctx, filter)
}

// Complete marks a running job completed.
func (q *Queue) Complete(ctx context.Context, id string) error {
	if err := q.store.UpdateJobStatus(ctx, id, StatusCompleted, ""); err != nil {
		return err
	}
	q.logger.Info("job completed", "job_id", id)
	return nil
}

// Fail marks a running job failed, recording the final error.
func (q *Queue) Fail(ctx context.Context, id, lastError string) error {
	if err := q.store.UpdateJobStatus(ctx, id, StatusFailed, lastError); err != nil {
		return err
	}
	q.logger.Warn("job failed", "job_id", id, "error", lastError)
	return nil
}

// Cancel cancels a job. Pending jobs become cancelled immediately;
// running jobs get the cancel flag set and transition once the
// orchestrator observes it between stages.
func (q *Queue) Cancel(ctx context.Context, id string) error {
	job, err := q.store.GetJob(ctx, id)
	if err != nil {
		return err
	}

	switch job.Status {
	case StatusPending:
		if err := q.store.UpdateJobStatus(ctx, id, StatusCancelled, ""); err != nil {
			return err
		}
		q.logger.Info("job cancelled", "job_id", id)
		return nil
	case StatusRunning:
		if err := q.store.RequestCancel(ctx, id); err != nil {
			return err
		}
		q.logger.Info("job cancellation requested", "job_id", id)
		return nil
	default:
		return fmt.Errorf("%w: cannot cancel %s job %s", ErrIllegalTransition, job.Status, id)
	}
}

// Stats returns aggregate queue counts.
func (q *Queue) Stats(ctx context.Context) (*Stats, error) {
	return q.store.Stats(ctx)
}

// PurgeTerminal removes terminal jobs older than the retention window.
func (q *Queue) PurgeTerminal(ctx context.Context, olderThan time.Duration) (int, error) {
	removed, err := q.store.PurgeTerminal(ctx, olderThan)
	if err != nil {
		return 0, err
	}
	if removed > 0 {
		q.logger.Info("purged terminal jobs", "count", removed, "older_than", olderThan.String())
	}
	return removed, nil
}

package jobs

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrJobExists indicates an active job already occupies the
	// (book_id, job_type) slot.
	ErrJobExists = errors.New("active job already exists for this book and job type")

	// ErrJobNotFound indicates the requested job does not exist.
	ErrJobNotFound = errors.New("job not found")

	// ErrIllegalTransition indicates a status change the state machine
	// does not permit.
	ErrIllegalTransition = errors.New("illegal job status transition")
)

// ListFilter specifies criteria for listing jobs.
type ListFilter struct {
	BookID  string // Filter by book (empty = all)
	JobType string // Filter by job type (empty = all)
	Status  Status // Filter by status (empty = all)
	Limit   int    // Max results (0 = default 100)
}

// Store is the durable job repository. Implementations must be safe
// for concurrent use and must provide atomic dequeue semantics: no two
// callers may claim the same job.
type Store interface {
	// CreateJob persists a new pending job. Fails with ErrJobExists if
	// an active job for the same (book_id, job_type) exists.
	CreateJob(ctx context.Context, job *Job) error

	// GetJob returns a job by ID or ErrJobNotFound.
	GetJob(ctx context.Context, id string) (*Job, error)

	// ListJobs returns jobs matching the filter, newest first.
	ListJobs(ctx context.Context, filter ListFilter) ([]*Job, error)

	// DequeueJob atomically claims the highest-priority pending job
	// (FIFO within a priority level), transitions it to running, and
	// returns it. Returns (nil, nil) when no pending job exists.
	DequeueJob(ctx context.Context) (*Job, error)

	// UpdateJobStatus applies a status transition, validating it
	// against the state machine. lastError is recorded when non-empty.
	UpdateJobStatus(ctx context.Context, id string, status Status, lastError string) error

	// SetCurrentStage records the stage the job is working on and the
	// attempt count within that stage.
	SetCurrentStage(ctx context.Context, id, stage string, attempt int) error

	// RequestCancel sets the cooperative cancellation flag on an
	// active job. The orchestrator observes it between stages.
	RequestCancel(ctx context.Context, id string) error

	// AppendStageResult appends one stage execution attempt record.
	AppendStageResult(ctx context.Context, result *StageResult) error

	// LatestStageResults returns the most recent result per stage for
	// a (book_id, job_type) pair, across all of its jobs.
	LatestStageResults(ctx context.Context, bookID, jobType string) (map[string]*StageResult, error)

	// StageResults returns the full attempt history for one job,
	// oldest first.
	StageResults(ctx context.Context, jobID string) ([]*StageResult, error)

	// Stats aggregates job counts by status and priority.
	Stats(ctx context.Context) (*Stats, error)

	// PurgeTerminal removes terminal jobs (and their stage results)
	// completed before now-olderThan. Returns the number removed.
	PurgeTerminal(ctx context.Context, olderThan time.Duration) (int, error)

	// Close releases the underlying database.
	Close() error
}

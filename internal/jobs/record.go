// Package jobs provides the durable processing-job records, the job
// repository, and the queue service that admits and dispatches work.
package jobs

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Priority orders pending jobs in the queue. Higher values dequeue first.
type Priority int

const (
	PriorityLow    Priority = 0
	PriorityNormal Priority = 10
	PriorityHigh   Priority = 20
	PriorityUrgent Priority = 30
)

// String returns the priority name.
func (p Priority) String() string {
	switch p {
	case PriorityLow:
		return "low"
	case PriorityNormal:
		return "normal"
	case PriorityHigh:
		return "high"
	case PriorityUrgent:
		return "urgent"
	default:
		return fmt.Sprintf("priority(%d)", int(p))
	}
}

// ParsePriority converts a priority name into a Priority.
func ParsePriority(s string) (Priority, error) {
	switch s {
	case "low":
		return PriorityLow, nil
	case "normal", "":
		return PriorityNormal, nil
	case "high":
		return PriorityHigh, nil
	case "urgent":
		return PriorityUrgent, nil
	default:
		return PriorityNormal, fmt.Errorf("unknown priority: %q", s)
	}
}

// Status represents the lifecycle state of a processing job.
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// validTransitions is the exhaustive job state machine. Transitions not
// listed here are rejected at the repository boundary.
var validTransitions = map[Status]map[Status]bool{
	StatusPending: {
		StatusRunning:   true,
		StatusCancelled: true,
	},
	StatusRunning: {
		StatusCompleted: true,
		StatusFailed:    true,
		StatusCancelled: true,
	},
	StatusCompleted: {},
	StatusFailed:    {},
	StatusCancelled: {},
}

// CanTransitionTo reports whether moving from s to next is legal.
func (s Status) CanTransitionTo(next Status) bool {
	return validTransitions[s][next]
}

// Terminal reports whether s is a terminal state.
func (s Status) Terminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusCancelled:
		return true
	}
	return false
}

// Active reports whether a job in this state occupies the
// one-active-job-per-(book, job type) slot.
func (s Status) Active() bool {
	return s == StatusPending || s == StatusRunning
}

// StageStatus represents the state of one stage execution attempt.
type StageStatus string

const (
	StagePending   StageStatus = "pending"
	StageRunning   StageStatus = "running"
	StageSucceeded StageStatus = "succeeded"
	StageFailed    StageStatus = "failed"
	StageSkipped   StageStatus = "skipped"
)

// Job is one pipeline run for a given book and job type. At most one
// job per (book_id, job_type) may be pending or running at any time.
type Job struct {
	ID              string     `json:"id"`
	BookID          string     `json:"book_id"`
	JobType         string     `json:"job_type"`
	Priority        Priority   `json:"priority"`
	Status          Status     `json:"status"`
	CurrentStage    string     `json:"current_stage,omitempty"`
	AttemptCount    int        `json:"attempt_count"`
	MaxAttempts     int        `json:"max_attempts"`
	CancelRequested bool       `json:"cancel_requested,omitempty"`
	LastError       string     `json:"last_error,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
	StartedAt       *time.Time `json:"started_at,omitempty"`
	CompletedAt     *time.Time `json:"completed_at,omitempty"`
}

// NewJob creates a pending job record for submission.
func NewJob(bookID, jobType string, priority Priority, maxAttempts int) *Job {
	now := time.Now().UTC()
	return &Job{
		ID:          uuid.New().String(),
		BookID:      bookID,
		JobType:     jobType,
		Priority:    priority,
		Status:      StatusPending,
		MaxAttempts: maxAttempts,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// StageResult records one execution attempt of one stage. The history
// is append-only; the latest result per stage decides resumption.
type StageResult struct {
	ID          int64       `json:"id"`
	JobID       string      `json:"job_id"`
	BookID      string      `json:"book_id"`
	JobType     string      `json:"job_type"`
	Stage       string      `json:"stage"`
	Status      StageStatus `json:"status"`
	Method      string      `json:"method,omitempty"`
	Attempt     int         `json:"attempt"`
	ArtifactRef string      `json:"artifact_ref,omitempty"`
	ErrorDetail string      `json:"error_detail,omitempty"`
	StartedAt   time.Time   `json:"started_at"`
	CompletedAt *time.Time  `json:"completed_at,omitempty"`
}

// Stats aggregates job counts by status and priority. Derived, never
// authoritative: always recomputable from the job records.
type Stats struct {
	Total      int              `json:"total"`
	ByStatus   map[Status]int   `json:"by_status"`
	ByPriority map[Priority]int `json:"by_priority"`
}

package jobs

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"
)

// MemoryStore is an in-memory Store used by tests and by callers that
// do not need durability. Behavior matches SQLiteStore, including
// transition validation and the active-job uniqueness invariant.
type MemoryStore struct {
	mu      sync.Mutex
	jobs    map[string]*Job
	order   []string // job IDs in creation order, for FIFO tie-breaks
	results []*StageResult
	nextID  int64
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{jobs: make(map[string]*Job)}
}

// CreateJob persists a new pending job.
func (s *MemoryStore) CreateJob(_ context.Context, job *Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.jobs {
		if existing.BookID == job.BookID && existing.JobType == job.JobType && existing.Status.Active() {
			return fmt.Errorf("%w: book=%s type=%s", ErrJobExists, job.BookID, job.JobType)
		}
	}

	if job.CreatedAt.IsZero() {
		job.CreatedAt = time.Now().UTC()
	}
	if job.UpdatedAt.IsZero() {
		job.UpdatedAt = job.CreatedAt
	}

	clone := *job
	s.jobs[job.ID] = &clone
	s.order = append(s.order, job.ID)
	return nil
}

// GetJob returns a job by ID.
func (s *MemoryStore) GetJob(_ context.Context, id string) (*Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.getLocked(id)
}

func (s *MemoryStore) getLocked(id string) (*Job, error) {
	job, ok := s.jobs[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrJobNotFound, id)
	}
	clone := *job
	return &clone, nil
}

// ListJobs returns jobs matching the filter, newest first.
func (s *MemoryStore) ListJobs(_ context.Context, filter ListFilter) ([]*Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var jobs []*Job
	for i := len(s.order) - 1; i >= 0; i-- {
		job := s.jobs[s.order[i]]
		if filter.BookID != "" && job.BookID != filter.BookID {
			continue
		}
		if filter.JobType != "" && job.JobType != filter.JobType {
			continue
		}
		if filter.Status != "" && job.Status != filter.Status {
			continue
		}
		clone := *job
		jobs = append(jobs, &clone)
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	if len(jobs) > limit {
		jobs = jobs[:limit]
	}
	return jobs, nil
}

// DequeueJob atomically claims the highest-priority pending job.
func (s *MemoryStore) DequeueJob(_ context.Context) (*Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var best *Job
	for _, id := range s.order {
		job := s.jobs[id]
		if job.Status != StatusPending {
			continue
		}
		if best == nil || job.Priority > best.Priority {
			best = job
		}
	}
	if best == nil {
		return nil, nil
	}

	now := time.Now().UTC()
	best.Status = StatusRunning
	best.StartedAt = &now
	best.UpdatedAt = now

	clone := *best
	return &clone, nil
}

// UpdateJobStatus applies a validated status transition.
func (s *MemoryStore) UpdateJobStatus(_ context.Context, id string, status Status, lastError string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrJobNotFound, id)
	}
	if !job.Status.CanTransitionTo(status) {
		return fmt.Errorf("%w: %s -> %s (job %s)", ErrIllegalTransition, job.Status, status, id)
	}

	now := time.Now().UTC()
	job.Status = status
	job.UpdatedAt = now
	if status == StatusRunning {
		job.StartedAt = &now
	}
	if status.Terminal() {
		job.CompletedAt = &now
	}
	if lastError != "" {
		job.LastError = lastError
	}
	return nil
}

// SetCurrentStage records the stage and attempt the job is working on.
func (s *MemoryStore) SetCurrentStage(_ context.Context, id, stage string, attempt int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrJobNotFound, id)
	}
	job.CurrentStage = stage
	job.AttemptCount = attempt
	job.UpdatedAt = time.Now().UTC()
	return nil
}

// RequestCancel sets the cooperative cancellation flag.
func (s *MemoryStore) RequestCancel(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrJobNotFound, id)
	}
	if job.Status.Terminal() {
		return fmt.Errorf("%w: job %s is terminal", ErrIllegalTransition, id)
	}
	job.CancelRequested = true
	job.UpdatedAt = time.Now().UTC()
	return nil
}

// AppendStageResult appends one stage execution attempt record.
func (s *MemoryStore) AppendStageResult(_ context.Context, result *StageResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextID++
	result.ID = s.nextID
	if result.StartedAt.IsZero() {
		result.StartedAt = time.Now().UTC()
	}
	clone := *result
	s.results = append(s.results, &clone)
	return nil
}

// LatestStageResults returns the most recent result per stage for a
// (book_id, job_type) pair.
func (s *MemoryStore) LatestStageResults(_ context.Context, bookID, jobType string) (map[string]*StageResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	latest := make(map[string]*StageResult)
	for _, result := range s.results {
		if result.BookID != bookID || result.JobType != jobType {
			continue
		}
		clone := *result
		latest[result.Stage] = &clone
	}
	return latest, nil
}

// StageResults returns the full attempt history for one job.
func (s *MemoryStore) StageResults(_ context.Context, jobID string) ([]*StageResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var results []*StageResult
	for _, result := range s.results {
		if result.JobID == jobID {
			clone := *result
			results = append(results, &clone)
		}
	}
	sort.Slice(results, func(i, j int) bool { return results[i].ID < results[j].ID })
	return results, nil
}

// Stats aggregates job counts by status and priority.
func (s *MemoryStore) Stats(_ context.Context) (*Stats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	stats := &Stats{
		ByStatus:   make(map[Status]int),
		ByPriority: make(map[Priority]int),
	}
	for _, job := range s.jobs {
		stats.ByStatus[job.Status]++
		stats.ByPriority[job.Priority]++
		stats.Total++
	}
	return stats, nil
}

// PurgeTerminal removes terminal jobs completed before now-olderThan.
func (s *MemoryStore) PurgeTerminal(_ context.Context, olderThan time.Duration) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := time.Now().UTC().Add(-olderThan)
	removed := 0
	kept := s.order[:0]
	for _, id := range s.order {
		job := s.jobs[id]
		if job.Status.Terminal() && job.CompletedAt != nil && job.CompletedAt.Before(cutoff) {
			delete(s.jobs, id)
			results := s.results[:0]
			for _, r := range s.results {
				if r.JobID != id {
					results = append(results, r)
				}
			}
			s.results = results
			removed++
			continue
		}
		kept = append(kept, id)
	}
	s.order = kept
	return removed, nil
}

// Close is a no-op for the in-memory store.
func (s *MemoryStore) Close() error { return nil }

var _ Store = (*MemoryStore)(nil)

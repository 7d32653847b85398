package jobs

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"
)

func newTestSQLiteStore(t *testing.T) *SQLiteStore {
	t.Helper()
	store, err := NewSQLiteStore(filepath.Join(t.TempDir(), "queue.db"))
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

// storeFactories lets the shared behavior tests run against both
// repository implementations.
var storeFactories = map[string]func(t *testing.T) Store{
	"sqlite": func(t *testing.T) Store { return newTestSQLiteStore(t) },
	"memory": func(t *testing.T) Store { return NewMemoryStore() },
}

func TestCreateAndGetJob(t *testing.T) {
	for name, factory := range storeFactories {
		t.Run(name, func(t *testing.T) {
			store := factory(t)
			ctx := context.Background()

			job := NewJob("book-1", "full_pipeline", PriorityNormal, 3)
			if err := store.CreateJob(ctx, job); err != nil {
				t.Fatalf("CreateJob failed: %v", err)
			}

			got, err := store.GetJob(ctx, job.ID)
			if err != nil {
				t.Fatalf("GetJob failed: %v", err)
			}
			if got.BookID != "book-1" || got.JobType != "full_pipeline" {
				t.Errorf("unexpected job: %+v", got)
			}
			if got.Status != StatusPending {
				t.Errorf("expected pending, got %s", got.Status)
			}
		})
	}
}

func TestGetJobNotFound(t *testing.T) {
	for name, factory := range storeFactories {
		t.Run(name, func(t *testing.T) {
			store := factory(t)
			_, err := store.GetJob(context.Background(), "no-such-job")
			if !errors.Is(err, ErrJobNotFound) {
				t.Errorf("expected ErrJobNotFound, got %v", err)
			}
		})
	}
}

func TestDuplicateActiveJobRejected(t *testing.T) {
	for name, factory := range storeFactories {
		t.Run(name, func(t *testing.T) {
			store := factory(t)
			ctx := context.Background()

			first := NewJob("book-1", "full_pipeline", PriorityNormal, 3)
			if err := store.CreateJob(ctx, first); err != nil {
				t.Fatalf("CreateJob failed: %v", err)
			}

			dup := NewJob("book-1", "full_pipeline", PriorityNormal, 3)
			if err := store.CreateJob(ctx, dup); !errors.Is(err, ErrJobExists) {
				t.Errorf("expected ErrJobExists, got %v", err)
			}

			// Different job type for the same book is a separate slot.
			other := NewJob("book-1", "audio_only", PriorityNormal, 3)
			if err := store.CreateJob(ctx, other); err != nil {
				t.Errorf("different job type should be admitted: %v", err)
			}
		})
	}
}

func TestDuplicateAllowedAfterTerminal(t *testing.T) {
	for name, factory := range storeFactories {
		t.Run(name, func(t *testing.T) {
			store := factory(t)
			ctx := context.Background()

			first := NewJob("book-1", "full_pipeline", PriorityNormal, 3)
			if err := store.CreateJob(ctx, first); err != nil {
				t.Fatalf("CreateJob failed: %v", err)
			}
			if err := store.UpdateJobStatus(ctx, first.ID, StatusRunning, ""); err != nil {
				t.Fatalf("transition to running failed: %v", err)
			}
			if err := store.UpdateJobStatus(ctx, first.ID, StatusFailed, "boom"); err != nil {
				t.Fatalf("transition to failed failed: %v", err)
			}

			retry := NewJob("book-1", "full_pipeline", PriorityNormal, 3)
			if err := store.CreateJob(ctx, retry); err != nil {
				t.Errorf("resubmission after terminal job should be admitted: %v", err)
			}
		})
	}
}

func TestDequeueOrdering(t *testing.T) {
	for name, factory := range storeFactories {
		t.Run(name, func(t *testing.T) {
			store := factory(t)
			ctx := context.Background()

			normal := NewJob("book-1", "full_pipeline", PriorityNormal, 3)
			normal.CreatedAt = time.Now().UTC().Add(-2 * time.Second)
			normal.UpdatedAt = normal.CreatedAt
			urgent := NewJob("book-2", "full_pipeline", PriorityUrgent, 3)
			urgent.CreatedAt = time.Now().UTC().Add(-time.Second)
			urgent.UpdatedAt = urgent.CreatedAt
			for _, job := range []*Job{normal, urgent} {
				if err := store.CreateJob(ctx, job); err != nil {
					t.Fatalf("CreateJob failed: %v", err)
				}
			}

			first, err := store.DequeueJob(ctx)
			if err != nil {
				t.Fatalf("DequeueJob failed: %v", err)
			}
			if first == nil || first.ID != urgent.ID {
				t.Fatalf("expected urgent job first, got %+v", first)
			}
			if first.Status != StatusRunning {
				t.Errorf("dequeued job should be running, got %s", first.Status)
			}

			second, err := store.DequeueJob(ctx)
			if err != nil {
				t.Fatalf("DequeueJob failed: %v", err)
			}
			if second == nil || second.ID != normal.ID {
				t.Fatalf("expected normal job second, got %+v", second)
			}

			empty, err := store.DequeueJob(ctx)
			if err != nil {
				t.Fatalf("DequeueJob failed: %v", err)
			}
			if empty != nil {
				t.Errorf("expected empty queue, got %+v", empty)
			}
		})
	}
}

func TestDequeueFIFOWithinPriority(t *testing.T) {
	store := newTestSQLiteStore(t)
	ctx := context.Background()

	base := time.Now().UTC().Add(-time.Minute)
	var ids []string
	for i := 0; i < 3; i++ {
		job := NewJob("book-"+string(rune('a'+i)), "full_pipeline", PriorityNormal, 3)
		job.CreatedAt = base.Add(time.Duration(i) * time.Second)
		job.UpdatedAt = job.CreatedAt
		if err := store.CreateJob(ctx, job); err != nil {
			t.Fatalf("CreateJob failed: %v", err)
		}
		ids = append(ids, job.ID)
	}

	for i, want := range ids {
		got, err := store.DequeueJob(ctx)
		if err != nil {
			t.Fatalf("DequeueJob %d failed: %v", i, err)
		}
		if got == nil || got.ID != want {
			t.Fatalf("dequeue %d: expected %s, got %+v", i, want, got)
		}
	}
}

func TestConcurrentDequeueClaimsOnce(t *testing.T) {
	store := newTestSQLiteStore(t)
	ctx := context.Background()

	job := NewJob("book-1", "full_pipeline", PriorityNormal, 3)
	if err := store.CreateJob(ctx, job); err != nil {
		t.Fatalf("CreateJob failed: %v", err)
	}

	const workers = 8
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		claimed []string
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			got, err := store.DequeueJob(ctx)
			if err != nil {
				t.Errorf("DequeueJob failed: %v", err)
				return
			}
			if got != nil {
				mu.Lock()
				claimed = append(claimed, got.ID)
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if len(claimed) != 1 {
		t.Fatalf("expected exactly one claim, got %d: %v", len(claimed), claimed)
	}
	if claimed[0] != job.ID {
		t.Errorf("claimed wrong job: %s", claimed[0])
	}
}

func TestIllegalTransitionRejected(t *testing.T) {
	for name, factory := range storeFactories {
		t.Run(name, func(t *testing.T) {
			store := factory(t)
			ctx := context.Background()

			job := NewJob("book-1", "full_pipeline", PriorityNormal, 3)
			if err := store.CreateJob(ctx, job); err != nil {
				t.Fatalf("CreateJob failed: %v", err)
			}

			if err := store.UpdateJobStatus(ctx, job.ID, StatusCompleted, ""); !errors.Is(err, ErrIllegalTransition) {
				t.Errorf("pending -> completed should be rejected, got %v", err)
			}

			if err := store.UpdateJobStatus(ctx, job.ID, StatusRunning, ""); err != nil {
				t.Fatalf("pending -> running failed: %v", err)
			}
			if err := store.UpdateJobStatus(ctx, job.ID, StatusCompleted, ""); err != nil {
				t.Fatalf("running -> completed failed: %v", err)
			}
			if err := store.UpdateJobStatus(ctx, job.ID, StatusRunning, ""); !errors.Is(err, ErrIllegalTransition) {
				t.Errorf("completed -> running should be rejected, got %v", err)
			}

			got, err := store.GetJob(ctx, job.ID)
			if err != nil {
				t.Fatalf("GetJob failed: %v", err)
			}
			if got.CompletedAt == nil {
				t.Error("expected completed_at to be set on terminal job")
			}
		})
	}
}

func TestRequestCancel(t *testing.T) {
	for name, factory := range storeFactories {
		t.Run(name, func(t *testing.T) {
			store := factory(t)
			ctx := context.Background()

			job := NewJob("book-1", "full_pipeline", PriorityNormal, 3)
			if err := store.CreateJob(ctx, job); err != nil {
				t.Fatalf("CreateJob failed: %v", err)
			}
			if err := store.UpdateJobStatus(ctx, job.ID, StatusRunning, ""); err != nil {
				t.Fatalf("transition failed: %v", err)
			}

			if err := store.RequestCancel(ctx, job.ID); err != nil {
				t.Fatalf("RequestCancel failed: %v", err)
			}
			got, err := store.GetJob(ctx, job.ID)
			if err != nil {
				t.Fatalf("GetJob failed: %v", err)
			}
			if !got.CancelRequested {
				t.Error("expected cancel_requested flag")
			}

			if err := store.UpdateJobStatus(ctx, job.ID, StatusCancelled, ""); err != nil {
				t.Fatalf("transition to cancelled failed: %v", err)
			}
			if err := store.RequestCancel(ctx, job.ID); !errors.Is(err, ErrIllegalTransition) {
				t.Errorf("cancel on terminal job should be rejected, got %v", err)
			}
		})
	}
}

func TestStageResultHistory(t *testing.T) {
	for name, factory := range storeFactories {
		t.Run(name, func(t *testing.T) {
			store := factory(t)
			ctx := context.Background()

			job := NewJob("book-1", "full_pipeline", PriorityNormal, 3)
			if err := store.CreateJob(ctx, job); err != nil {
				t.Fatalf("CreateJob failed: %v", err)
			}

			results := []*StageResult{
				{JobID: job.ID, BookID: "book-1", JobType: "full_pipeline", Stage: "extraction", Status: StageFailed, Attempt: 1, ErrorDetail: "timeout"},
				{JobID: job.ID, BookID: "book-1", JobType: "full_pipeline", Stage: "extraction", Status: StageSucceeded, Method: "native_text", Attempt: 2, ArtifactRef: "art/book-1/extraction/text"},
				{JobID: job.ID, BookID: "book-1", JobType: "full_pipeline", Stage: "segmentation", Status: StageSucceeded, Method: "headers", Attempt: 1, ArtifactRef: "art/book-1/segmentation/modules"},
			}
			for _, r := range results {
				r.StartedAt = time.Now().UTC()
				if err := store.AppendStageResult(ctx, r); err != nil {
					t.Fatalf("AppendStageResult failed: %v", err)
				}
			}

			latest, err := store.LatestStageResults(ctx, "book-1", "full_pipeline")
			if err != nil {
				t.Fatalf("LatestStageResults failed: %v", err)
			}
			if len(latest) != 2 {
				t.Fatalf("expected 2 stages, got %d", len(latest))
			}
			if latest["extraction"].Status != StageSucceeded || latest["extraction"].Attempt != 2 {
				t.Errorf("latest extraction result should be the succeeded attempt: %+v", latest["extraction"])
			}

			history, err := store.StageResults(ctx, job.ID)
			if err != nil {
				t.Fatalf("StageResults failed: %v", err)
			}
			if len(history) != 3 {
				t.Fatalf("expected 3 history rows, got %d", len(history))
			}
			if history[0].Status != StageFailed {
				t.Errorf("history should be oldest first: %+v", history[0])
			}
		})
	}
}

func TestLatestStageResultsSpansJobs(t *testing.T) {
	store := newTestSQLiteStore(t)
	ctx := context.Background()

	// A failed job leaves succeeded stages behind; a later job for the
	// same book and type must see them.
	first := NewJob("book-1", "full_pipeline", PriorityNormal, 3)
	if err := store.CreateJob(ctx, first); err != nil {
		t.Fatalf("CreateJob failed: %v", err)
	}
	if err := store.AppendStageResult(ctx, &StageResult{
		JobID: first.ID, BookID: "book-1", JobType: "full_pipeline",
		Stage: "extraction", Status: StageSucceeded, Attempt: 1,
		ArtifactRef: "art/book-1/extraction/text", StartedAt: time.Now().UTC(),
	}); err != nil {
		t.Fatalf("AppendStageResult failed: %v", err)
	}
	if err := store.UpdateJobStatus(ctx, first.ID, StatusRunning, ""); err != nil {
		t.Fatalf("transition failed: %v", err)
	}
	if err := store.UpdateJobStatus(ctx, first.ID, StatusFailed, "segmentation exhausted"); err != nil {
		t.Fatalf("transition failed: %v", err)
	}

	latest, err := store.LatestStageResults(ctx, "book-1", "full_pipeline")
	if err != nil {
		t.Fatalf("LatestStageResults failed: %v", err)
	}
	if latest["extraction"] == nil || latest["extraction"].Status != StageSucceeded {
		t.Errorf("extraction result should survive across jobs: %+v", latest["extraction"])
	}
}

func TestStatsAndPurge(t *testing.T) {
	store := newTestSQLiteStore(t)
	ctx := context.Background()

	done := NewJob("book-1", "full_pipeline", PriorityNormal, 3)
	pending := NewJob("book-2", "full_pipeline", PriorityHigh, 3)
	for _, job := range []*Job{done, pending} {
		if err := store.CreateJob(ctx, job); err != nil {
			t.Fatalf("CreateJob failed: %v", err)
		}
	}
	if err := store.UpdateJobStatus(ctx, done.ID, StatusRunning, ""); err != nil {
		t.Fatalf("transition failed: %v", err)
	}
	if err := store.UpdateJobStatus(ctx, done.ID, StatusCompleted, ""); err != nil {
		t.Fatalf("transition failed: %v", err)
	}

	stats, err := store.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats failed: %v", err)
	}
	if stats.Total != 2 {
		t.Errorf("expected 2 jobs, got %d", stats.Total)
	}
	if stats.ByStatus[StatusCompleted] != 1 || stats.ByStatus[StatusPending] != 1 {
		t.Errorf("unexpected status counts: %+v", stats.ByStatus)
	}
	if stats.ByPriority[PriorityHigh] != 1 {
		t.Errorf("unexpected priority counts: %+v", stats.ByPriority)
	}

	// Zero retention purges everything terminal immediately.
	time.Sleep(10 * time.Millisecond)
	removed, err := store.PurgeTerminal(ctx, 0)
	if err != nil {
		t.Fatalf("PurgeTerminal failed: %v", err)
	}
	if removed != 1 {
		t.Errorf("expected 1 purged job, got %d", removed)
	}
	if _, err := store.GetJob(ctx, done.ID); !errors.Is(err, ErrJobNotFound) {
		t.Errorf("purged job should be gone, got %v", err)
	}
	if _, err := store.GetJob(ctx, pending.ID); err != nil {
		t.Errorf("pending job should survive purge: %v", err)
	}
}

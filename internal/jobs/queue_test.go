package jobs

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
)

func newTestQueue(t *testing.T) *Queue {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewQueue(NewMemoryStore(), logger, PriorityNormal, 3)
}

func TestEnqueueValidation(t *testing.T) {
	q := newTestQueue(t)
	ctx := context.Background()

	if _, err := q.Enqueue(ctx, "", "full_pipeline", PriorityNormal, 0); err == nil {
		t.Error("empty book id should be rejected")
	}
	if _, err := q.Enqueue(ctx, "book-1", "everything", PriorityNormal, 0); err == nil {
		t.Error("unknown job type should be rejected")
	}

	job, err := q.Enqueue(ctx, "book-1", "text_only", PriorityHigh, 0)
	if err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}
	if job.MaxAttempts != 3 {
		t.Errorf("expected default max attempts 3, got %d", job.MaxAttempts)
	}
	if job.Priority != PriorityHigh {
		t.Errorf("expected high priority, got %s", job.Priority)
	}
}

func TestEnqueueDefaultPriority(t *testing.T) {
	q := newTestQueue(t)

	job, err := q.EnqueueDefault(context.Background(), "book-1", "full_pipeline")
	if err != nil {
		t.Fatalf("EnqueueDefault failed: %v", err)
	}
	if job.Priority != PriorityNormal {
		t.Errorf("expected normal priority, got %s", job.Priority)
	}
}

func TestCancelPendingJob(t *testing.T) {
	q := newTestQueue(t)
	ctx := context.Background()

	job, err := q.EnqueueDefault(ctx, "book-1", "full_pipeline")
	if err != nil {
		t.Fatalf("EnqueueDefault failed: %v", err)
	}

	if err := q.Cancel(ctx, job.ID); err != nil {
		t.Fatalf("Cancel failed: %v", err)
	}
	got, err := q.Get(ctx, job.ID)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.Status != StatusCancelled {
		t.Errorf("pending job should cancel immediately, got %s", got.Status)
	}
}

func TestCancelRunningJobSetsFlag(t *testing.T) {
	q := newTestQueue(t)
	ctx := context.Background()

	job, err := q.EnqueueDefault(ctx, "book-1", "full_pipeline")
	if err != nil {
		t.Fatalf("EnqueueDefault failed: %v", err)
	}
	running, err := q.Dequeue(ctx)
	if err != nil || running == nil {
		t.Fatalf("Dequeue failed: %v %v", running, err)
	}

	if err := q.Cancel(ctx, job.ID); err != nil {
		t.Fatalf("Cancel failed: %v", err)
	}
	got, err := q.Get(ctx, job.ID)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.Status != StatusRunning {
		t.Errorf("running job should stay running until observed, got %s", got.Status)
	}
	if !got.CancelRequested {
		t.Error("expected cancel_requested flag on running job")
	}
}

func TestCancelTerminalJobRejected(t *testing.T) {
	q := newTestQueue(t)
	ctx := context.Background()

	job, err := q.EnqueueDefault(ctx, "book-1", "full_pipeline")
	if err != nil {
		t.Fatalf("EnqueueDefault failed: %v", err)
	}
	if _, err := q.Dequeue(ctx); err != nil {
		t.Fatalf("Dequeue failed: %v", err)
	}
	if err := q.Complete(ctx, job.ID); err != nil {
		t.Fatalf("Complete failed: %v", err)
	}

	if err := q.Cancel(ctx, job.ID); !errors.Is(err, ErrIllegalTransition) {
		t.Errorf("cancel on completed job should be rejected, got %v", err)
	}
}

func TestFailRecordsError(t *testing.T) {
	q := newTestQueue(t)
	ctx := context.Background()

	job, err := q.EnqueueDefault(ctx, "book-1", "full_pipeline")
	if err != nil {
		t.Fatalf("EnqueueDefault failed: %v", err)
	}
	if _, err := q.Dequeue(ctx); err != nil {
		t.Fatalf("Dequeue failed: %v", err)
	}
	if err := q.Fail(ctx, job.ID, "extraction: no text found"); err != nil {
		t.Fatalf("Fail failed: %v", err)
	}

	got, err := q.Get(ctx, job.ID)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.Status != StatusFailed {
		t.Errorf("expected failed, got %s", got.Status)
	}
	if got.LastError != "extraction: no text found" {
		t.Errorf("unexpected last error: %q", got.LastError)
	}
}

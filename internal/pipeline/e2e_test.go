package pipeline

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/pressbound/bindery/internal/artifacts"
	"github.com/pressbound/bindery/internal/home"
	"github.com/pressbound/bindery/internal/jobs"
	"github.com/pressbound/bindery/internal/providers"
	"github.com/pressbound/bindery/internal/stages"
)

// TestPipelineEndToEnd runs a text_only job through the real stage
// services: extraction from a plain text source, segmentation via the
// strategy chain, topic analysis, and vocabulary extraction where the
// provider fails twice with a transient error before succeeding.
func TestPipelineEndToEnd(t *testing.T) {
	ctx := context.Background()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	homeDir, err := home.New(t.TempDir())
	if err != nil {
		t.Fatalf("home.New failed: %v", err)
	}
	artifact, err := artifacts.OpenBadgerStore("", logger)
	if err != nil {
		t.Fatalf("failed to open artifact store: %v", err)
	}
	t.Cleanup(func() { _ = artifact.Close() })

	bookID := "B1"
	if err := homeDir.EnsureOriginalsDir(bookID); err != nil {
		t.Fatalf("EnsureOriginalsDir failed: %v", err)
	}
	// No detectable structure: segmentation falls through to
	// single_module, so each analysis stage makes exactly one call.
	source := "All living things are made of cells.\fCells convert energy through respiration."
	if err := os.WriteFile(filepath.Join(homeDir.OriginalsDir(bookID), "book.txt"), []byte(source), 0o644); err != nil {
		t.Fatalf("failed to write source: %v", err)
	}

	topicsGen := providers.NewMockTextGenerator()
	topicsGen.ResponseText = `{"topics":[{"name":"Cell biology","summary":"The building blocks of life.","keywords":["cell"]}]}`

	vocabGen := providers.NewMockTextGenerator()
	vocabGen.ResponseText = `{"items":[{"term":"cell","definition":"The smallest unit of life","example":""}]}`
	vocabGen.FailuresBeforeSuccess = 2 // transient ConnectionError twice, then success

	registry, err := NewRegistry([]stages.Stage{
		stages.NewExtraction(homeDir, artifact, logger),
		stages.NewSegmentation(homeDir, artifact, stages.SegmentationConfig{}, logger),
		stages.NewTopicAnalysis(artifact, topicsGen, "", logger),
		stages.NewVocabulary(artifact, vocabGen, "", logger),
		stages.NewAudioGeneration(artifact, providers.NewMockSpeechSynthesizer(), "", "", logger),
	}, nil)
	if err != nil {
		t.Fatalf("NewRegistry failed: %v", err)
	}

	store := jobs.NewMemoryStore()
	queue := jobs.NewQueue(store, logger, jobs.PriorityNormal, 3)
	orch := NewOrchestrator(store, artifact, registry, NewBroadcaster(logger),
		RetryConfig{MaxAttempts: 3, BackoffBase: time.Millisecond}, logger)

	if _, err := queue.EnqueueDefault(ctx, bookID, "text_only"); err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}
	job, err := queue.Dequeue(ctx)
	if err != nil || job == nil {
		t.Fatalf("Dequeue failed: %v %v", job, err)
	}

	if err := orch.Run(ctx, job); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	got, err := store.GetJob(ctx, job.ID)
	if err != nil {
		t.Fatalf("GetJob failed: %v", err)
	}
	if got.Status != jobs.StatusCompleted {
		t.Fatalf("expected completed, got %s (last error %q)", got.Status, got.LastError)
	}
	// Vocabulary needed three attempts.
	if got.CurrentStage != stages.StageVocabulary || got.AttemptCount != 3 {
		t.Errorf("expected vocabulary to succeed on attempt 3, got stage=%s attempts=%d",
			got.CurrentStage, got.AttemptCount)
	}
	if vocabGen.Requests() != 3 {
		t.Errorf("expected 3 provider calls, got %d", vocabGen.Requests())
	}

	for _, ref := range []artifacts.Key{
		artifacts.NewKey(bookID, stages.StageExtraction, stages.ArtifactText),
		artifacts.NewKey(bookID, stages.StageSegmentation, stages.ArtifactModules),
		artifacts.NewKey(bookID, stages.StageTopicAnalysis, stages.ArtifactTopics),
		artifacts.NewKey(bookID, stages.StageVocabulary, stages.ArtifactVocabulary),
	} {
		if ok, _ := artifact.Exists(ctx, ref); !ok {
			t.Errorf("expected artifact %s", ref)
		}
	}

	stats, err := queue.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats failed: %v", err)
	}
	if stats.ByStatus[jobs.StatusPending] != 0 || stats.ByStatus[jobs.StatusRunning] != 0 {
		t.Errorf("expected no active jobs, got %+v", stats.ByStatus)
	}
	if stats.ByStatus[jobs.StatusCompleted] != 1 {
		t.Errorf("expected one completed job, got %+v", stats.ByStatus)
	}
}

func TestWorkerPoolProcessesJobs(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	stage := &fakeStage{name: "only"}

	artifact, err := artifacts.OpenBadgerStore("", logger)
	if err != nil {
		t.Fatalf("failed to open artifact store: %v", err)
	}
	t.Cleanup(func() { _ = artifact.Close() })

	registry, err := NewRegistry([]stages.Stage{stage}, map[string][]string{"full_pipeline": {"only"}})
	if err != nil {
		t.Fatalf("NewRegistry failed: %v", err)
	}

	store := jobs.NewMemoryStore()
	queue := jobs.NewQueue(store, logger, jobs.PriorityNormal, 3)
	orch := NewOrchestrator(store, artifact, registry, nil,
		RetryConfig{MaxAttempts: 3, BackoffBase: time.Millisecond}, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	job, err := queue.EnqueueDefault(ctx, "b1", "full_pipeline")
	if err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}

	pool := NewPool(queue, orch, 2, logger)
	pool.Start(ctx)

	deadline := time.Now().Add(5 * time.Second)
	for {
		got, err := store.GetJob(ctx, job.ID)
		if err != nil {
			t.Fatalf("GetJob failed: %v", err)
		}
		if got.Status.Terminal() {
			if got.Status != jobs.StatusCompleted {
				t.Fatalf("expected completed, got %s (last error %q)", got.Status, got.LastError)
			}
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("job did not finish, status %s", got.Status)
		}
		time.Sleep(10 * time.Millisecond)
	}

	cancel()
	pool.Wait()

	if stage.Runs() != 1 {
		t.Errorf("stage should run exactly once, ran %d times", stage.Runs())
	}
}

func TestBroadcasterNonBlocking(t *testing.T) {
	b := NewBroadcaster(nil)
	ch, unsubscribe := b.Subscribe()
	defer unsubscribe()

	// Overflow the buffer; Publish must never block.
	done := make(chan struct{})
	go func() {
		for i := 0; i < 200; i++ {
			b.Publish(Update{JobID: "j", Percent: i})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Publish blocked on a slow observer")
	}

	// Observer still sees the earliest updates.
	first := <-ch
	if first.JobID != "j" {
		t.Errorf("unexpected update: %+v", first)
	}
}

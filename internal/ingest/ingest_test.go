package ingest

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"github.com/pressbound/bindery/internal/home"
	"github.com/pressbound/bindery/internal/jobs"
)

func newTestQueue(t *testing.T) (*jobs.Queue, jobs.Store) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	store := jobs.NewMemoryStore()
	return jobs.NewQueue(store, logger, jobs.PriorityNormal, 3), store
}

func newTestHome(t *testing.T) *home.Dir {
	t.Helper()
	d, err := home.New(t.TempDir())
	if err != nil {
		t.Fatalf("home.New failed: %v", err)
	}
	if err := d.EnsureExists(); err != nil {
		t.Fatalf("EnsureExists failed: %v", err)
	}
	return d
}

func writeSource(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write %s: %v", name, err)
	}
	return path
}

func TestIngest(t *testing.T) {
	ctx := context.Background()
	homeDir := newTestHome(t)
	queue, store := newTestQueue(t)

	srcDir := t.TempDir()
	p1 := writeSource(t, srcDir, "biology-1.txt", "page one\fpage two")
	p2 := writeSource(t, srcDir, "biology-2.txt", "page three")

	res, err := Ingest(ctx, homeDir, queue, Request{
		SourcePaths: []string{p2, p1}, // deliberately out of order
		Author:      "A. Author",
	})
	if err != nil {
		t.Fatalf("Ingest failed: %v", err)
	}
	if res.Title != "biology" {
		t.Errorf("expected derived title biology, got %s", res.Title)
	}
	if res.FileCount != 2 {
		t.Errorf("expected 2 files, got %d", res.FileCount)
	}

	// Originals copied in order, metadata written alongside.
	for _, name := range []string{"biology-1.txt", "biology-2.txt", MetadataFileName} {
		if _, err := os.Stat(filepath.Join(homeDir.OriginalsDir(res.BookID), name)); err != nil {
			t.Errorf("expected original %s: %v", name, err)
		}
	}
	meta, err := ReadMetadata(homeDir, res.BookID)
	if err != nil {
		t.Fatalf("ReadMetadata failed: %v", err)
	}
	if meta.Author != "A. Author" {
		t.Errorf("expected author in metadata, got %q", meta.Author)
	}
	if !reflect.DeepEqual(meta.Sources, []string{"biology-1.txt", "biology-2.txt"}) {
		t.Errorf("unexpected source order: %v", meta.Sources)
	}

	// A full_pipeline job was enqueued.
	job, err := store.GetJob(ctx, res.JobID)
	if err != nil {
		t.Fatalf("GetJob failed: %v", err)
	}
	if job.BookID != res.BookID || job.JobType != "full_pipeline" {
		t.Errorf("unexpected job: %+v", job)
	}
	if job.Status != jobs.StatusPending {
		t.Errorf("expected pending job, got %s", job.Status)
	}
}

func TestIngestExplicitTitleAndJobType(t *testing.T) {
	ctx := context.Background()
	homeDir := newTestHome(t)
	queue, store := newTestQueue(t)

	p := writeSource(t, t.TempDir(), "scan.txt", "text")

	res, err := Ingest(ctx, homeDir, queue, Request{
		SourcePaths: []string{p},
		Title:       "Cell Biology",
		JobType:     "text_only",
	})
	if err != nil {
		t.Fatalf("Ingest failed: %v", err)
	}
	if res.Title != "Cell Biology" {
		t.Errorf("explicit title should win, got %s", res.Title)
	}
	job, err := store.GetJob(ctx, res.JobID)
	if err != nil {
		t.Fatalf("GetJob failed: %v", err)
	}
	if job.JobType != "text_only" {
		t.Errorf("expected text_only job, got %s", job.JobType)
	}
}

func TestIngestValidation(t *testing.T) {
	ctx := context.Background()
	homeDir := newTestHome(t)
	queue, _ := newTestQueue(t)

	t.Run("no sources", func(t *testing.T) {
		if _, err := Ingest(ctx, homeDir, queue, Request{}); err == nil {
			t.Error("expected error for empty request")
		}
	})

	t.Run("missing source", func(t *testing.T) {
		if _, err := Ingest(ctx, homeDir, queue, Request{
			SourcePaths: []string{"/nonexistent/book.pdf"},
		}); err == nil {
			t.Error("expected error for missing source")
		}
	})

	t.Run("unsupported type", func(t *testing.T) {
		p := writeSource(t, t.TempDir(), "book.epub", "data")
		if _, err := Ingest(ctx, homeDir, queue, Request{SourcePaths: []string{p}}); err == nil {
			t.Error("expected error for unsupported type")
		}
	})

	t.Run("originals cleaned up when enqueue fails", func(t *testing.T) {
		p := writeSource(t, t.TempDir(), "book.txt", "data")
		if _, err := Ingest(ctx, homeDir, queue, Request{
			SourcePaths: []string{p},
			JobType:     "bogus_type",
		}); err == nil {
			t.Fatal("expected error for unknown job type")
		}
		entries, err := os.ReadDir(filepath.Join(homeDir.Path(), home.OriginalsDirName))
		if err != nil {
			t.Fatalf("failed to list originals: %v", err)
		}
		if len(entries) != 0 {
			t.Errorf("expected originals cleaned up, found %d entries", len(entries))
		}
	})
}

func TestSortSourcesByNumber(t *testing.T) {
	got := sortSourcesByNumber([]string{"b-10.pdf", "b-2.pdf", "cover.pdf", "b-1.pdf"})
	want := []string{"cover.pdf", "b-1.pdf", "b-2.pdf", "b-10.pdf"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("expected %v, got %v", want, got)
	}
}

func TestDeriveTitle(t *testing.T) {
	cases := map[string]string{
		"crusade-europe.pdf":  "crusade-europe",
		"/tmp/my-book-1.pdf":  "my-book",
		"notes.txt":           "notes",
		"lectures-12.txt":     "lectures",
	}
	for in, want := range cases {
		if got := deriveTitle(in); got != want {
			t.Errorf("deriveTitle(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestWatcherIngestsDroppedFile(t *testing.T) {
	homeDir := newTestHome(t)
	queue, store := newTestQueue(t)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	w := NewWatcher(homeDir, queue, logger)
	w.settle = 50 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	// Give the watcher time to start before dropping a file.
	time.Sleep(100 * time.Millisecond)
	writeSource(t, homeDir.InboxPath(), "dropped.txt", "page one\fpage two")

	deadline := time.Now().Add(5 * time.Second)
	var found *jobs.Job
	for time.Now().Before(deadline) {
		list, err := store.ListJobs(ctx, jobs.ListFilter{})
		if err != nil {
			t.Fatalf("ListJobs failed: %v", err)
		}
		if len(list) > 0 {
			found = list[0]
			break
		}
		time.Sleep(25 * time.Millisecond)
	}
	if found == nil {
		t.Fatal("watcher did not enqueue a job")
	}
	if found.JobType != "full_pipeline" {
		t.Errorf("expected full_pipeline job, got %s", found.JobType)
	}

	// The inbox file is removed after a successful ingest.
	removedBy := time.Now().Add(2 * time.Second)
	for {
		if _, err := os.Stat(filepath.Join(homeDir.InboxPath(), "dropped.txt")); os.IsNotExist(err) {
			break
		}
		if time.Now().After(removedBy) {
			t.Fatal("ingested file was not removed from inbox")
		}
		time.Sleep(25 * time.Millisecond)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("watcher returned error: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("watcher did not stop")
	}
}

func TestSupportedSource(t *testing.T) {
	if !supportedSource("a.PDF") || !supportedSource("b.txt") {
		t.Error("pdf and txt should be supported")
	}
	if supportedSource("c.epub") || supportedSource("modules.yaml") {
		t.Error("other extensions should be rejected")
	}
}

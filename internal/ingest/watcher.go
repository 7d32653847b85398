package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/pressbound/bindery/internal/home"
	"github.com/pressbound/bindery/internal/jobs"
)

// defaultSettle is how long a file in the inbox must stay quiet before
// it is considered fully written. Copies into the inbox arrive as a
// Create followed by a burst of Writes.
const defaultSettle = 2 * time.Second

// Watcher ingests files dropped into the inbox directory. Each settled
// file becomes its own book and is removed from the inbox on success.
type Watcher struct {
	homeDir *home.Dir
	queue   *jobs.Queue
	settle  time.Duration
	logger  *slog.Logger

	mu     sync.Mutex
	timers map[string]*time.Timer
}

// NewWatcher creates an inbox watcher.
func NewWatcher(homeDir *home.Dir, queue *jobs.Queue, logger *slog.Logger) *Watcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Watcher{
		homeDir: homeDir,
		queue:   queue,
		settle:  defaultSettle,
		logger:  logger,
	}
}

// Run watches the inbox until ctx is cancelled. Files already present
// at startup are ingested immediately.
func (w *Watcher) Run(ctx context.Context) error {
	inbox := w.homeDir.InboxPath()
	if err := os.MkdirAll(inbox, 0o755); err != nil {
		return fmt.Errorf("failed to create inbox: %w", err)
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer fw.Close()

	if err := fw.Add(inbox); err != nil {
		return fmt.Errorf("failed to watch inbox: %w", err)
	}
	w.logger.Info("watching inbox", "path", inbox)

	w.mu.Lock()
	w.timers = make(map[string]*time.Timer)
	w.mu.Unlock()

	// Pick up anything dropped while we were not running.
	entries, err := os.ReadDir(inbox)
	if err != nil {
		return fmt.Errorf("failed to list inbox: %w", err)
	}
	for _, e := range entries {
		if !e.IsDir() && supportedSource(e.Name()) {
			w.schedule(ctx, filepath.Join(inbox, e.Name()))
		}
	}

	for {
		select {
		case <-ctx.Done():
			w.stopTimers()
			return nil
		case event, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if !event.Op.Has(fsnotify.Create) && !event.Op.Has(fsnotify.Write) {
				continue
			}
			if !supportedSource(event.Name) {
				continue
			}
			w.schedule(ctx, event.Name)
		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.logger.Error("inbox watcher error", "error", err)
		}
	}
}

// schedule (re)arms the settle timer for a file; each new write pushes
// ingestion back until the file goes quiet.
func (w *Watcher) schedule(ctx context.Context, path string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if t, ok := w.timers[path]; ok {
		t.Reset(w.settle)
		return
	}
	w.timers[path] = time.AfterFunc(w.settle, func() {
		w.mu.Lock()
		delete(w.timers, path)
		w.mu.Unlock()
		w.ingestFile(ctx, path)
	})
}

func (w *Watcher) ingestFile(ctx context.Context, path string) {
	if ctx.Err() != nil {
		return
	}
	if _, err := os.Stat(path); err != nil {
		return // removed before it settled
	}

	res, err := Ingest(ctx, w.homeDir, w.queue, Request{
		SourcePaths: []string{path},
		Logger:      w.logger,
	})
	if err != nil {
		w.logger.Error("inbox ingest failed", "file", filepath.Base(path), "error", err)
		return
	}

	if err := os.Remove(path); err != nil {
		w.logger.Warn("failed to remove ingested file from inbox",
			"file", filepath.Base(path), "error", err)
	}
	w.logger.Info("ingested from inbox",
		"file", filepath.Base(path), "book_id", res.BookID, "job_id", res.JobID)
}

func (w *Watcher) stopTimers() {
	w.mu.Lock()
	defer w.mu.Unlock()
	for path, t := range w.timers {
		t.Stop()
		delete(w.timers, path)
	}
}

func supportedSource(name string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".pdf", ".txt":
		return true
	}
	return false
}

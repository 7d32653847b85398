package server

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/pressbound/bindery/internal/jobs"
	"github.com/pressbound/bindery/internal/server/endpoints"
)

func TestServerLifecycle(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	store := jobs.NewMemoryStore()
	queue := jobs.NewQueue(store, logger, jobs.PriorityNormal, 3)

	s := New(Config{
		Host:   "127.0.0.1",
		Port:   0, // ephemeral
		Logger: logger,
		Deps: endpoints.Deps{
			Queue: queue,
			Store: store,
		},
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Start(ctx) }()

	deadline := time.Now().Add(2 * time.Second)
	for !s.IsRunning() {
		if time.Now().After(deadline) {
			t.Fatal("server did not start")
		}
		time.Sleep(10 * time.Millisecond)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Start returned error: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}
	if s.IsRunning() {
		t.Error("server still marked running after shutdown")
	}
}

func TestServerDoubleStartRejected(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	s := New(Config{Logger: logger, Port: 0})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() { _ = s.Start(ctx) }()

	deadline := time.Now().Add(2 * time.Second)
	for !s.IsRunning() {
		if time.Now().After(deadline) {
			t.Fatal("server did not start")
		}
		time.Sleep(10 * time.Millisecond)
	}

	if err := s.Start(ctx); err == nil {
		t.Error("expected error on second Start")
	}
}

package pipeline

import (
	"log/slog"
	"sync"
)

// Update is one progress event. Delivery is best-effort and never
// blocks pipeline execution.
type Update struct {
	JobID   string `json:"job_id"`
	BookID  string `json:"book_id"`
	Stage   string `json:"stage"`
	Percent int    `json:"percent"`
	Message string `json:"message"`
}

// Broadcaster fans progress updates out to registered observers.
// Observers with full channels miss updates rather than stalling a
// worker.
type Broadcaster struct {
	mu        sync.Mutex
	observers map[int]chan Update
	nextID    int
	logger    *slog.Logger
}

// NewBroadcaster creates a progress broadcaster. Updates are also
// logged at debug level when a logger is provided.
func NewBroadcaster(logger *slog.Logger) *Broadcaster {
	return &Broadcaster{
		observers: make(map[int]chan Update),
		logger:    logger,
	}
}

// Subscribe registers an observer. The returned cancel function must
// be called to release the channel.
func (b *Broadcaster) Subscribe() (<-chan Update, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.nextID
	b.nextID++
	ch := make(chan Update, 64)
	b.observers[id] = ch

	cancel := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if ch, ok := b.observers[id]; ok {
			delete(b.observers, id)
			close(ch)
		}
	}
	return ch, cancel
}

// Publish delivers an update to every observer without blocking.
func (b *Broadcaster) Publish(update Update) {
	if b.logger != nil {
		b.logger.Debug("progress",
			"job_id", update.JobID,
			"stage", update.Stage,
			"percent", update.Percent,
			"message", update.Message)
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	for _, ch := range b.observers {
		select {
		case ch <- update:
		default:
			// Observer is slow; drop rather than stall the worker.
		}
	}
}

// Package artifacts provides content-addressed persistence of stage
// outputs under a per-book, per-stage key layout.
package artifacts

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrNotFound indicates the requested artifact does not exist.
	ErrNotFound = errors.New("artifact not found")

	// ErrInvalidKey indicates a key with empty or malformed components.
	ErrInvalidKey = errors.New("invalid artifact key")

	// ErrStoreClosed indicates the store has been closed.
	ErrStoreClosed = errors.New("artifact store is closed")
)

// Key identifies one artifact. The layout is stable and derivable
// purely from its components.
type Key struct {
	BookID string
	Stage  string
	Name   string
}

// NewKey builds a Key from its components.
func NewKey(bookID, stage, name string) Key {
	return Key{BookID: bookID, Stage: stage, Name: name}
}

// Validate checks that all components are present and contain no
// separator characters.
func (k Key) Validate() error {
	for _, part := range []string{k.BookID, k.Stage, k.Name} {
		if part == "" {
			return fmt.Errorf("%w: empty component in %q", ErrInvalidKey, k.String())
		}
	}
	for _, part := range []string{k.BookID, k.Stage} {
		if strings.Contains(part, keySeparator) {
			return fmt.Errorf("%w: separator in component %q", ErrInvalidKey, part)
		}
	}
	return nil
}

// String renders the key in its canonical form.
func (k Key) String() string {
	return fmt.Sprintf("%s%s%s%s%s", k.BookID, keySeparator, k.Stage, keySeparator, k.Name)
}

// Store persists artifacts. Implementations must be safe for
// concurrent use by multiple workers.
type Store interface {
	// Write persists payload under key. Writing the same key twice with
	// equivalent content is a no-op.
	Write(ctx context.Context, key Key, payload []byte) error

	// Read returns the payload for key, or ErrNotFound.
	Read(ctx context.Context, key Key) ([]byte, error)

	// Exists reports whether key is present.
	Exists(ctx context.Context, key Key) (bool, error)

	// List returns all keys for a book's stage in key order.
	List(ctx context.Context, bookID, stage string) ([]Key, error)

	// DeletePrefix removes every artifact for a book's stage. Other
	// stages' artifacts are untouched.
	DeletePrefix(ctx context.Context, bookID, stage string) error

	// Close releases the underlying database.
	Close() error
}

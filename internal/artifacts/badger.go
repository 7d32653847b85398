package artifacts

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/dgraph-io/badger/v4"
	"github.com/dgraph-io/badger/v4/options"
)

// BadgerStore implements Store on top of BadgerDB. Keys are laid out so
// that all artifacts of one book's stage share a common prefix, making
// prefix deletion and listing cheap.
type BadgerStore struct {
	db     *badger.DB
	logger *slog.Logger
}

// badgerLoggerAdapter adapts slog.Logger to the badger.Logger interface.
type badgerLoggerAdapter struct {
	logger *slog.Logger
}

var _ badger.Logger = (*badgerLoggerAdapter)(nil)

func (bl *badgerLoggerAdapter) Errorf(msg string, items ...any) {
	bl.logger.Error(fmt.Sprintf(msg, items...))
}

func (bl *badgerLoggerAdapter) Warningf(msg string, items ...any) {
	bl.logger.Warn(fmt.Sprintf(msg, items...))
}

func (bl *badgerLoggerAdapter) Infof(msg string, items ...any) {
	bl.logger.Debug(fmt.Sprintf(msg, items...))
}

func (bl *badgerLoggerAdapter) Debugf(msg string, items ...any) {
	bl.logger.Debug(fmt.Sprintf(msg, items...))
}

// OpenBadgerStore opens (or creates) a Badger-backed artifact store at
// path. An empty path opens an in-memory store for tests.
func OpenBadgerStore(path string, logger *slog.Logger) (*BadgerStore, error) {
	if logger == nil {
		logger = slog.Default()
	}

	var opts badger.Options
	if path == "" {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(path, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create artifact directory: %w", err)
		}
		opts = badger.DefaultOptions(path)
	}
	opts.Logger = &badgerLoggerAdapter{logger: logger}
	opts.Compression = options.None

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open artifact store: %w", err)
	}

	return &BadgerStore{db: db, logger: logger}, nil
}

// Write persists payload under key. Equal content is a no-op so repeated
// stage attempts do not churn the value log.
func (s *BadgerStore) Write(ctx context.Context, key Key, payload []byte) error {
	if err := key.Validate(); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	raw := makeArtifactKey(key)
	err := s.db.Update(func(txn *badger.Txn) error {
		item, err := txn.Get(raw)
		if err == nil {
			existing, err := item.ValueCopy(nil)
			if err == nil && bytes.Equal(existing, payload) {
				return nil
			}
		} else if !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}
		return txn.Set(raw, payload)
	})
	if err != nil {
		return s.wrap(fmt.Errorf("failed to write artifact %s: %w", key, err))
	}
	return nil
}

// Read returns the payload for key, or ErrNotFound.
func (s *BadgerStore) Read(ctx context.Context, key Key) ([]byte, error) {
	if err := key.Validate(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var payload []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(makeArtifactKey(key))
		if err != nil {
			return err
		}
		payload, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	if err != nil {
		return nil, s.wrap(fmt.Errorf("failed to read artifact %s: %w", key, err))
	}
	return payload, nil
}

// Exists reports whether key is present.
func (s *BadgerStore) Exists(ctx context.Context, key Key) (bool, error) {
	if err := key.Validate(); err != nil {
		return false, err
	}
	if err := ctx.Err(); err != nil {
		return false, err
	}

	err := s.db.View(func(txn *badger.Txn) error {
		_, err := txn.Get(makeArtifactKey(key))
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return false, nil
	}
	if err != nil {
		return false, s.wrap(err)
	}
	return true, nil
}

// List returns all keys for a book's stage in key order.
func (s *BadgerStore) List(ctx context.Context, bookID, stage string) ([]Key, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	prefix := makeStagePrefix(bookID, stage)
	var keys []Key
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = prefix
		iter := txn.NewIterator(opts)
		defer iter.Close()

		for iter.Seek(prefix); iter.ValidForPrefix(prefix); iter.Next() {
			if key, ok := parseArtifactKey(iter.Item().KeyCopy(nil)); ok {
				keys = append(keys, key)
			}
		}
		return nil
	})
	if err != nil {
		return nil, s.wrap(fmt.Errorf("failed to list artifacts %s/%s: %w", bookID, stage, err))
	}
	return keys, nil
}

// DeletePrefix removes every artifact for a book's stage.
func (s *BadgerStore) DeletePrefix(ctx context.Context, bookID, stage string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if err := s.db.DropPrefix(makeStagePrefix(bookID, stage)); err != nil {
		return s.wrap(fmt.Errorf("failed to delete artifacts %s/%s: %w", bookID, stage, err))
	}
	return nil
}

// Close releases the underlying database.
func (s *BadgerStore) Close() error {
	return s.db.Close()
}

func (s *BadgerStore) wrap(err error) error {
	if errors.Is(err, badger.ErrDBClosed) {
		return ErrStoreClosed
	}
	return err
}

var _ Store = (*BadgerStore)(nil)

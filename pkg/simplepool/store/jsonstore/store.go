// Package jsonstore is a file-backed implementation of the
// simplepool.CollectionStore interface. Documents are plain JSON files,
// written atomically via a temp-file-then-rename sequence. Operations on
// the same path are serialized into a queue; operations on distinct paths
// run concurrently up to a fixed cap to bound open files and memory.
package jsonstore

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"

	"github.com/tendant/simple-pool/pkg/simplepool"
)

const (
	defaultMaxConcurrent = 5
	defaultAttempts      = 3
	defaultRetryBackoff  = 100 * time.Millisecond
)

// Store is a file-backed implementation of simplepool.CollectionStore
type Store struct {
	logger   *slog.Logger
	sem      *semaphore.Weighted
	attempts int
	backoff  time.Duration

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// Config options for the file-backed store
type Config struct {
	MaxConcurrent int64         // cap on concurrent file operations (default 5)
	Attempts      int           // attempts per operation before surfacing failure (default 3)
	RetryBackoff  time.Duration // fixed delay between attempts (default 100ms)
	Logger        *slog.Logger
}

// New creates a new file-backed store
func New(cfg Config) *Store {
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = defaultMaxConcurrent
	}
	if cfg.Attempts <= 0 {
		cfg.Attempts = defaultAttempts
	}
	if cfg.RetryBackoff <= 0 {
		cfg.RetryBackoff = defaultRetryBackoff
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Store{
		logger:   cfg.Logger,
		sem:      semaphore.NewWeighted(cfg.MaxConcurrent),
		attempts: cfg.Attempts,
		backoff:  cfg.RetryBackoff,
		locks:    make(map[string]*sync.Mutex),
	}
}

// ReadCollection decodes the JSON document at path into out. A missing or
// unparsable file leaves out untouched and is logged, never surfaced.
func (s *Store) ReadCollection(ctx context.Context, path string, out any) error {
	return s.serialize(ctx, path, func() error {
		return s.attempt(ctx, path, "read", func() error {
			data, err := os.ReadFile(path)
			if err != nil {
				if errors.Is(err, os.ErrNotExist) {
					s.logger.Debug("collection file missing, treating as empty", "path", path)
					return nil
				}
				return err
			}
			if len(bytes.TrimSpace(data)) == 0 {
				return nil
			}
			if err := json.Unmarshal(data, out); err != nil {
				s.logger.Warn("collection file unparsable, treating as empty", "path", path, "err", err)
				return nil
			}
			return nil
		})
	})
}

// WriteCollection atomically replaces the document at path with the JSON
// encoding of v. A reader never observes a partially written file.
func (s *Store) WriteCollection(ctx context.Context, path string, v any) error {
	return s.serialize(ctx, path, func() error {
		return s.attempt(ctx, path, "write", func() error {
			data, err := json.MarshalIndent(v, "", "  ")
			if err != nil {
				return err
			}
			if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
				return err
			}
			tmp := fmt.Sprintf("%s.%s.tmp", path, uuid.NewString())
			if err := os.WriteFile(tmp, data, 0o644); err != nil {
				return err
			}
			if err := os.Rename(tmp, path); err != nil {
				os.Remove(tmp)
				return err
			}
			return nil
		})
	})
}

// WithTransaction runs the steps sequentially, compensating on failure:
// the rollbacks of already-committed steps run in parallel and the
// original error is returned. A failed rollback is logged, never allowed
// to mask the original error.
func (s *Store) WithTransaction(ctx context.Context, steps []simplepool.TxStep) error {
	committed := make([]simplepool.TxStep, 0, len(steps))
	for _, step := range steps {
		if err := step.Op(ctx); err != nil {
			s.rollback(ctx, committed)
			return err
		}
		committed = append(committed, step)
	}
	return nil
}

func (s *Store) rollback(ctx context.Context, committed []simplepool.TxStep) {
	var wg sync.WaitGroup
	for _, step := range committed {
		if step.Rollback == nil {
			continue
		}
		wg.Add(1)
		go func(step simplepool.TxStep) {
			defer wg.Done()
			if err := step.Rollback(ctx); err != nil {
				s.logger.Error("transaction rollback failed", "path", step.Path, "err", err)
			}
		}(step)
	}
	wg.Wait()
}

// serialize runs fn holding the per-path lock and one slot of the global
// concurrency cap. The per-path lock is what guarantees at-most-one-writer
// per collection file without a separate lock manager.
func (s *Store) serialize(ctx context.Context, path string, fn func() error) error {
	lock := s.pathLock(path)
	lock.Lock()
	defer lock.Unlock()

	if err := s.sem.Acquire(ctx, 1); err != nil {
		return err
	}
	defer s.sem.Release(1)

	return fn()
}

// pathLock keys on the cleaned path so aliases like "./a.json" and
// "a.json" share one queue.
func (s *Store) pathLock(path string) *sync.Mutex {
	key := filepath.Clean(path)
	s.mu.Lock()
	defer s.mu.Unlock()
	lock, ok := s.locks[key]
	if !ok {
		lock = &sync.Mutex{}
		s.locks[key] = lock
	}
	return lock
}

// attempt retries fn with a fixed backoff before surfacing the failure as
// a StoreError.
func (s *Store) attempt(ctx context.Context, path, op string, fn func() error) error {
	var err error
	for i := 0; i < s.attempts; i++ {
		if i > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(s.backoff):
			}
		}
		if err = fn(); err == nil {
			return nil
		}
		s.logger.Warn("store operation failed", "op", op, "path", path, "attempt", i+1, "err", err)
	}
	return &simplepool.StoreError{Path: path, Op: op, Err: err}
}

// Package memory is an in-memory implementation of the
// simplepool.CollectionStore interface, intended for tests.
package memory

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/tendant/simple-pool/pkg/simplepool"
)

// Store implements simplepool.CollectionStore using an in-memory map
type Store struct {
	mu        sync.RWMutex
	documents map[string][]byte
	logger    *slog.Logger
}

// New creates a new in-memory store
func New() *Store {
	return &Store{
		documents: make(map[string][]byte),
		logger:    slog.Default(),
	}
}

func (s *Store) ReadCollection(ctx context.Context, path string, out any) error {
	s.mu.RLock()
	data, ok := s.documents[path]
	s.mu.RUnlock()
	if !ok || len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		s.logger.Warn("stored document unparsable, treating as empty", "path", path, "err", err)
		return nil
	}
	return nil
}

func (s *Store) WriteCollection(ctx context.Context, path string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return &simplepool.StoreError{Path: path, Op: "write", Err: err}
	}
	s.mu.Lock()
	s.documents[path] = data
	s.mu.Unlock()
	return nil
}

func (s *Store) WithTransaction(ctx context.Context, steps []simplepool.TxStep) error {
	committed := make([]simplepool.TxStep, 0, len(steps))
	for _, step := range steps {
		if err := step.Op(ctx); err != nil {
			for _, done := range committed {
				if done.Rollback == nil {
					continue
				}
				if rbErr := done.Rollback(ctx); rbErr != nil {
					s.logger.Error("transaction rollback failed", "path", done.Path, "err", rbErr)
				}
			}
			return err
		}
		committed = append(committed, step)
	}
	return nil
}

// Raw returns the stored bytes for a path, for test assertions.
func (s *Store) Raw(path string) ([]byte, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	data, ok := s.documents[path]
	return data, ok
}

// SetRaw stores raw bytes at a path, for seeding tests with corrupt or
// handcrafted documents.
func (s *Store) SetRaw(path string, data []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.documents[path] = data
}

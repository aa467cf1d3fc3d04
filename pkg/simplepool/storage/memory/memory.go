// Package memory is an in-memory implementation of the
// simplepool.MediaStore interface, intended for tests.
package memory

import (
	"bytes"
	"context"
	"io"
	"sync"

	"github.com/tendant/simple-pool/pkg/simplepool"
)

// Backend implements simplepool.MediaStore using an in-memory map
type Backend struct {
	mu      sync.RWMutex
	objects map[string][]byte
}

// New creates a new in-memory media store
func New() *Backend {
	return &Backend{objects: make(map[string][]byte)}
}

func (b *Backend) Save(ctx context.Context, name string, data []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.objects[name] = append([]byte{}, data...)
	return nil
}

func (b *Backend) Open(ctx context.Context, name string) (io.ReadCloser, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	data, ok := b.objects[name]
	if !ok {
		return nil, simplepool.ErrMediaNotFound
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (b *Backend) Delete(ctx context.Context, name string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.objects[name]; !ok {
		return simplepool.ErrMediaNotFound
	}
	delete(b.objects, name)
	return nil
}

// Names returns the stored object names, for test assertions.
func (b *Backend) Names() []string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	names := make([]string, 0, len(b.objects))
	for name := range b.objects {
		names = append(names, name)
	}
	return names
}

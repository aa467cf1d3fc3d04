// Package fs is a filesystem implementation of the simplepool.MediaStore
// interface. Media files live flat in a resource directory under their
// {id}_{n}.{ext} names.
package fs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/tendant/simple-pool/pkg/simplepool"
)

// Backend is a filesystem implementation of the simplepool.MediaStore interface
type Backend struct {
	baseDir string
}

// Config options for the filesystem backend
type Config struct {
	BaseDir string // Base directory for storing media files
}

// New creates a new filesystem media store
func New(config Config) (simplepool.MediaStore, error) {
	if config.BaseDir == "" {
		return nil, errors.New("base directory is required")
	}
	if err := os.MkdirAll(config.BaseDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create base directory: %w", err)
	}
	return &Backend{baseDir: config.BaseDir}, nil
}

// Save writes the media bytes under name, replacing any existing file.
func (b *Backend) Save(ctx context.Context, name string, data []byte) error {
	path, err := b.resolve(name)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write media file: %w", err)
	}
	return nil
}

// Open returns a reader over the media file.
func (b *Backend) Open(ctx context.Context, name string) (io.ReadCloser, error) {
	path, err := b.resolve(name)
	if err != nil {
		return nil, err
	}
	file, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, simplepool.ErrMediaNotFound
	} else if err != nil {
		return nil, fmt.Errorf("failed to open media file: %w", err)
	}
	return file, nil
}

// Delete removes the media file.
func (b *Backend) Delete(ctx context.Context, name string) error {
	path, err := b.resolve(name)
	if err != nil {
		return err
	}
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return simplepool.ErrMediaNotFound
	}
	if err := os.Remove(path); err != nil {
		return fmt.Errorf("failed to delete media file: %w", err)
	}
	return nil
}

// resolve rejects names that would escape the base directory.
func (b *Backend) resolve(name string) (string, error) {
	if name == "" || name != filepath.Base(name) {
		return "", fmt.Errorf("invalid media name %q", name)
	}
	return filepath.Join(b.baseDir, name), nil
}

package simplepool

import (
	"context"
	"io"
)

// TxStep is one step of a compensating transaction. Op performs the write;
// Rollback restores the path to its pre-transaction content. Rollback is
// only invoked for steps whose Op already succeeded.
type TxStep struct {
	Path     string
	Op       func(ctx context.Context) error
	Rollback func(ctx context.Context) error
}

// CollectionStore persists JSON documents on behalf of the engine. All
// writes are atomic (a reader never observes a partially written file) and
// operations on the same path are serialized into a queue; operations on
// distinct paths may run concurrently up to the store's concurrency cap.
type CollectionStore interface {
	// ReadCollection decodes the document at path into out. A missing or
	// unparsable file is tolerated: out is left empty and the condition is
	// logged, never returned as an error.
	ReadCollection(ctx context.Context, path string, out any) error

	// WriteCollection atomically replaces the document at path with the
	// JSON encoding of v.
	WriteCollection(ctx context.Context, path string, v any) error

	// WithTransaction runs the steps sequentially. When step k fails, the
	// Rollback of every previously committed step runs (in parallel) and
	// the original error is returned. A rollback failure is logged but
	// never masks the original error. This is compensating-action undo,
	// not a write-ahead log: it does not survive a process kill mid-step.
	WithTransaction(ctx context.Context, steps []TxStep) error
}

// MediaStore persists media bytes referenced by record elements. Names
// follow the {id}_{n}.{ext} convention; the lifetime of an object is bound
// to the record that references it.
type MediaStore interface {
	Save(ctx context.Context, name string, data []byte) error
	Open(ctx context.Context, name string) (io.ReadCloser, error)
	Delete(ctx context.Context, name string) error
}

// Allocator manages the compact integer identifier space shared by the
// pending and approved partitions, and the per-contributor index of
// approved record ids. Every method except Initialize fails with
// ErrNotInitialized until Initialize has succeeded once.
type Allocator interface {
	// Initialize scans both partitions, resolves id collisions (rewriting
	// the partitions when records were renumbered), reclaims historical id
	// gaps into the recycled set, rebuilds contributor stats from the
	// approved partition and persists the resulting status document.
	Initialize(ctx context.Context) error

	// NextID returns the smallest recycled id when one is available,
	// otherwise a freshly incremented id. The id is marked in use
	// immediately; persistence of the status document happens
	// asynchronously and its failure is logged, not surfaced.
	NextID(ctx context.Context) (int64, error)

	// MarkDeleted moves id from in-use to recycled and recomputes the
	// high-water mark, which may shrink.
	MarkDeleted(ctx context.Context, id int64) error

	// AddStat and RemoveStat maintain the contributor index. Both skip the
	// reserved system contributor.
	AddStat(ctx context.Context, contributorID string, id int64) error
	RemoveStat(ctx context.Context, contributorID string, id int64) error

	// ContributorIDs returns the approved record ids for a contributor.
	ContributorIDs(ctx context.Context, contributorID string) ([]int64, error)
}

// FingerprintIndex maintains perceptual fingerprints of approved content
// and answers similarity queries against them.
type FingerprintIndex interface {
	// Initialize loads the persisted fingerprint document. When absent or
	// empty it rebuilds fully from the approved records; otherwise it
	// reconciles incrementally, fingerprinting only approved ids missing
	// from the document.
	Initialize(ctx context.Context, approved []Record) error

	// Add computes and persists fingerprints for a record's image bytes
	// and text contents. Individual unreadable images degrade to a log
	// line, never an error.
	Add(ctx context.Context, id int64, images [][]byte, texts []string) error

	// Remove drops the fingerprint entry for id.
	Remove(ctx context.Context, id int64) error

	// FindDuplicates scans all persisted fingerprints linearly and
	// returns, per candidate, the highest-similarity match at or above the
	// relevant threshold (ties broken by persisted order), or nil.
	FindDuplicates(ctx context.Context, images [][]byte, texts []string, th Thresholds) (*DuplicateReport, error)
}

// EventSink defines the interface for engine event handling
type EventSink interface {
	// RecordSubmitted is fired when a submission enters the pending partition
	RecordSubmitted(ctx context.Context, record *Record) error

	// RecordApproved is fired when a record enters the approved partition
	RecordApproved(ctx context.Context, record *Record) error

	// RecordRejected is fired when a pending record is rejected
	RecordRejected(ctx context.Context, recordID int64) error

	// RecordDeleted is fired when a record is deleted from either partition
	RecordDeleted(ctx context.Context, recordID int64) error

	// DuplicateRejected is fired when a submission is turned away as a
	// near-duplicate of an existing record
	DuplicateRejected(ctx context.Context, contributorID string, match *DuplicateMatch) error
}

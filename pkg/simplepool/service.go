package simplepool

import "context"

// Service is the main interface for the submission pool engine
type Service interface {
	// Initialize prepares the allocator and fingerprint index from the
	// persisted partitions. It must succeed before any other call.
	Initialize(ctx context.Context) error

	// Ingest submits a record. With moderation enabled the record enters
	// the pending partition; otherwise it is approved immediately. A
	// near-duplicate submission is reported in the result, not stored.
	Ingest(ctx context.Context, req IngestRequest) (*IngestResult, error)

	// Moderate approves or rejects one pending record, or all of them.
	Moderate(ctx context.Context, req ModerateRequest) (*ModerationResult, error)

	// QueryDuplicates checks candidate content against the fingerprint
	// index without submitting anything.
	QueryDuplicates(ctx context.Context, req QueryDuplicatesRequest) (*DuplicateReport, error)

	// Delete removes a record from whichever partition holds it, deletes
	// its media files and fingerprints, and recycles its id.
	Delete(ctx context.Context, req DeleteRequest) error

	// GetRecord returns the record with the given id from either partition.
	GetRecord(ctx context.Context, id int64) (*Record, error)

	// ListPending returns the pending partition in stored order.
	ListPending(ctx context.Context) ([]Record, error)

	// ListApproved returns the approved partition in stored order.
	ListApproved(ctx context.Context) ([]Record, error)

	// RandomApproved returns a uniformly random approved record.
	RandomApproved(ctx context.Context) (*Record, error)

	// ContributorRecords returns the approved records of one contributor.
	ContributorRecords(ctx context.Context, contributorID string) ([]Record, error)
}

package simplepool

import (
	"context"
	"log/slog"
)

// NoopEventSink is a no-operation implementation of EventSink
// Useful for production when you don't need event handling or for testing
type NoopEventSink struct{}

// NewNoopEventSink creates a new no-operation event sink
func NewNoopEventSink() EventSink {
	return &NoopEventSink{}
}

// RecordSubmitted does nothing and returns nil
func (n *NoopEventSink) RecordSubmitted(ctx context.Context, record *Record) error {
	return nil
}

// RecordApproved does nothing and returns nil
func (n *NoopEventSink) RecordApproved(ctx context.Context, record *Record) error {
	return nil
}

// RecordRejected does nothing and returns nil
func (n *NoopEventSink) RecordRejected(ctx context.Context, recordID int64) error {
	return nil
}

// RecordDeleted does nothing and returns nil
func (n *NoopEventSink) RecordDeleted(ctx context.Context, recordID int64) error {
	return nil
}

// DuplicateRejected does nothing and returns nil
func (n *NoopEventSink) DuplicateRejected(ctx context.Context, contributorID string, match *DuplicateMatch) error {
	return nil
}

// LoggingEventSink is an event sink that logs events but takes no other action
// Useful for development and debugging
type LoggingEventSink struct {
	logger *slog.Logger
}

// NewLoggingEventSink creates a new logging event sink
func NewLoggingEventSink(logger *slog.Logger) EventSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &LoggingEventSink{logger: logger}
}

// RecordSubmitted logs the submission event
func (l *LoggingEventSink) RecordSubmitted(ctx context.Context, record *Record) error {
	l.logger.Info("record submitted", "id", record.ID, "contributor", record.ContributorID, "elements", len(record.Elements))
	return nil
}

// RecordApproved logs the approval event
func (l *LoggingEventSink) RecordApproved(ctx context.Context, record *Record) error {
	l.logger.Info("record approved", "id", record.ID, "contributor", record.ContributorID)
	return nil
}

// RecordRejected logs the rejection event
func (l *LoggingEventSink) RecordRejected(ctx context.Context, recordID int64) error {
	l.logger.Info("record rejected", "id", recordID)
	return nil
}

// RecordDeleted logs the deletion event
func (l *LoggingEventSink) RecordDeleted(ctx context.Context, recordID int64) error {
	l.logger.Info("record deleted", "id", recordID)
	return nil
}

// DuplicateRejected logs the duplicate rejection event
func (l *LoggingEventSink) DuplicateRejected(ctx context.Context, contributorID string, match *DuplicateMatch) error {
	l.logger.Info("duplicate submission rejected", "contributor", contributorID, "matchedId", match.RecordID, "similarity", match.Similarity, "kind", match.Kind)
	return nil
}

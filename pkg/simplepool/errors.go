package simplepool

import (
	"errors"
	"fmt"
)

// Error types
var (
	// ErrNotInitialized indicates a component was used before Initialize succeeded
	ErrNotInitialized = errors.New("pool not initialized")

	// ErrRecordNotFound indicates a record id is absent from both partitions
	ErrRecordNotFound = errors.New("record not found")

	// ErrPermissionDenied indicates the requester may not act on the record
	ErrPermissionDenied = errors.New("permission denied")

	// ErrEmptySubmission indicates a submission carried no elements
	ErrEmptySubmission = errors.New("submission has no elements")

	// ErrMediaNotFound indicates a media object was not found in the store
	ErrMediaNotFound = errors.New("media object not found")
)

// RecordError represents an error related to a record operation
type RecordError struct {
	RecordID int64
	Op       string
	Err      error
}

func (e *RecordError) Error() string {
	return fmt.Sprintf("record operation %s failed for record %d: %v", e.Op, e.RecordID, e.Err)
}

func (e *RecordError) Unwrap() error {
	return e.Err
}

// StoreError represents a persistent read/write failure after the store's
// retries were exhausted
type StoreError struct {
	Path string
	Op   string
	Err  error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("store operation %s failed for path %s: %v", e.Op, e.Path, e.Err)
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

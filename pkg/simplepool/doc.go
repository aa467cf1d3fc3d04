// Package simplepool provides an embedded storage, identity and
// deduplication engine for community-submitted multimedia records.
//
// It exposes a single Service interface that orchestrates ingestion of
// submissions into a pending or approved partition, moderation transitions
// between them, perceptual-similarity duplicate detection over image and
// text content, and deletion with identifier recycling. Implementations of
// the pluggable interfaces (CollectionStore, MediaStore, Allocator,
// FingerprintIndex) are provided under subpackages.
//
// Persistence Model
//
// All state lives in plain JSON files written atomically (temp file then
// rename): an approved-records array, a pending-records array, an allocator
// status document and a fingerprint document. Media bytes live in a flat
// resource directory as {id}_{n}.{ext}. The engine is single-process; the
// per-path write queue in the store is the only serialization mechanism and
// there is no cross-process locking.
package simplepool

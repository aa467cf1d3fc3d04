package simplepool

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"sort"
	"sync/atomic"
)

// service implements the Service interface
type service struct {
	store  CollectionStore
	media  MediaStore
	alloc  Allocator
	index  FingerprintIndex
	events EventSink
	logger *slog.Logger

	moderated    bool
	thresholds   Thresholds
	approvedPath string
	pendingPath  string

	initialized atomic.Bool
}

// Option represents a functional option for configuring the service
type Option func(*service)

// WithCollectionStore sets the collection store for the service
func WithCollectionStore(store CollectionStore) Option {
	return func(s *service) {
		s.store = store
	}
}

// WithMediaStore sets the media store for the service
func WithMediaStore(media MediaStore) Option {
	return func(s *service) {
		s.media = media
	}
}

// WithAllocator sets the identifier allocator for the service
func WithAllocator(alloc Allocator) Option {
	return func(s *service) {
		s.alloc = alloc
	}
}

// WithFingerprintIndex sets the fingerprint index for the service
func WithFingerprintIndex(index FingerprintIndex) Option {
	return func(s *service) {
		s.index = index
	}
}

// WithEventSink sets the event sink for the service
func WithEventSink(sink EventSink) Option {
	return func(s *service) {
		s.events = sink
	}
}

// WithModeration enables or disables the pending queue. With moderation
// disabled, submissions are approved immediately.
func WithModeration(enabled bool) Option {
	return func(s *service) {
		s.moderated = enabled
	}
}

// WithThresholds sets the duplicate-detection thresholds
func WithThresholds(th Thresholds) Option {
	return func(s *service) {
		s.thresholds = th
	}
}

// WithCollectionPaths sets the partition file paths
func WithCollectionPaths(approved, pending string) Option {
	return func(s *service) {
		s.approvedPath = approved
		s.pendingPath = pending
	}
}

// WithLogger sets the logger for the service
func WithLogger(logger *slog.Logger) Option {
	return func(s *service) {
		s.logger = logger
	}
}

// New creates a new service instance with the given options
func New(options ...Option) (Service, error) {
	s := &service{
		moderated:    true,
		thresholds:   DefaultThresholds,
		approvedPath: "approved.json",
		pendingPath:  "pending.json",
	}

	for _, option := range options {
		option(s)
	}

	if s.store == nil {
		return nil, fmt.Errorf("collection store is required")
	}
	if s.media == nil {
		return nil, fmt.Errorf("media store is required")
	}
	if s.alloc == nil {
		return nil, fmt.Errorf("allocator is required")
	}
	if s.index == nil {
		return nil, fmt.Errorf("fingerprint index is required")
	}
	if s.events == nil {
		s.events = NewNoopEventSink()
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}

	return s, nil
}

func (s *service) Initialize(ctx context.Context) error {
	if err := s.alloc.Initialize(ctx); err != nil {
		return fmt.Errorf("initialize allocator: %w", err)
	}

	// The allocator may have renumbered colliding records, so the approved
	// partition is re-read after it runs.
	approved, err := s.readPartition(ctx, s.approvedPath)
	if err != nil {
		return err
	}
	if err := s.index.Initialize(ctx, approved); err != nil {
		return fmt.Errorf("initialize fingerprint index: %w", err)
	}

	s.initialized.Store(true)
	return nil
}

func (s *service) ready() error {
	if !s.initialized.Load() {
		return ErrNotInitialized
	}
	return nil
}

// Ingest

func (s *service) Ingest(ctx context.Context, req IngestRequest) (*IngestResult, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	if len(req.Elements) == 0 {
		return nil, ErrEmptySubmission
	}

	images, texts := splitCandidates(req.Elements)

	// An index failure degrades to "no match found" so an unreadable image
	// never blocks ingestion.
	report, err := s.index.FindDuplicates(ctx, images, texts, s.thresholds)
	if err != nil {
		s.logger.Warn("duplicate check failed, continuing without it", "err", err)
		report = nil
	}
	if match := report.FirstMatch(); match != nil {
		if err := s.events.DuplicateRejected(ctx, req.ContributorID, match); err != nil {
			s.logger.Warn("event sink error", "event", "duplicate_rejected", "err", err)
		}
		return &IngestResult{Duplicate: match}, nil
	}

	id, err := s.alloc.NextID(ctx)
	if err != nil {
		return nil, err
	}

	record, saved, err := s.storeMedia(ctx, id, req)
	if err != nil {
		s.discardSubmission(ctx, id, saved)
		return nil, &RecordError{RecordID: id, Op: "ingest", Err: err}
	}

	if s.moderated {
		if err := s.appendRecord(ctx, s.pendingPath, *record); err != nil {
			s.discardSubmission(ctx, id, saved)
			return nil, &RecordError{RecordID: id, Op: "ingest", Err: err}
		}
		if err := s.events.RecordSubmitted(ctx, record); err != nil {
			s.logger.Warn("event sink error", "event", "record_submitted", "err", err)
		}
		return &IngestResult{Record: record, Pending: true}, nil
	}

	normalized := normalizeRecord(*record)
	if err := s.appendRecord(ctx, s.approvedPath, normalized); err != nil {
		s.discardSubmission(ctx, id, saved)
		return nil, &RecordError{RecordID: id, Op: "ingest", Err: err}
	}
	s.registerApproved(ctx, &normalized, images, texts)
	return &IngestResult{Record: &normalized}, nil
}

// storeMedia builds the record for a submission, writing each media
// element's bytes to the media store under {id}_{n}.{ext}. It returns the
// names written so far so a failed submission can be cleaned up.
func (s *service) storeMedia(ctx context.Context, id int64, req IngestRequest) (*Record, []string, error) {
	record := &Record{
		ID:              id,
		Elements:        make([]Element, 0, len(req.Elements)),
		ContributorID:   req.ContributorID,
		ContributorName: req.ContributorName,
	}

	var saved []string
	for i, in := range req.Elements {
		idx := i
		el := Element{Type: in.Type, Index: &idx}
		switch {
		case in.Type == ElementText:
			el.Content = in.Content
		default:
			name := MediaFileName(id, i, in.Ext)
			if err := s.media.Save(ctx, name, in.Data); err != nil {
				return nil, saved, fmt.Errorf("save media %s: %w", name, err)
			}
			saved = append(saved, name)
			el.FileRef = name
		}
		record.Elements = append(record.Elements, el)
	}
	return record, saved, nil
}

// discardSubmission undoes a half-finished ingest: media files written so
// far are removed and the id goes back to the recycled pool.
func (s *service) discardSubmission(ctx context.Context, id int64, saved []string) {
	for _, name := range saved {
		if err := s.media.Delete(ctx, name); err != nil {
			s.logger.Warn("failed to remove media for discarded submission", "name", name, "err", err)
		}
	}
	if err := s.alloc.MarkDeleted(ctx, id); err != nil {
		s.logger.Warn("failed to recycle id for discarded submission", "id", id, "err", err)
	}
}

// registerApproved performs the post-commit bookkeeping shared by direct
// ingestion and moderation approval: contributor stats, fingerprints and
// the approval event. Failures here are logged, never propagated; the
// record is already durably approved.
func (s *service) registerApproved(ctx context.Context, record *Record, images [][]byte, texts []string) {
	if err := s.alloc.AddStat(ctx, record.ContributorID, record.ID); err != nil {
		s.logger.Warn("failed to update contributor stats", "id", record.ID, "err", err)
	}
	if err := s.index.Add(ctx, record.ID, images, texts); err != nil {
		s.logger.Warn("failed to fingerprint approved record", "id", record.ID, "err", err)
	}
	if err := s.events.RecordApproved(ctx, record); err != nil {
		s.logger.Warn("event sink error", "event", "record_approved", "err", err)
	}
}

// Moderation

func (s *service) Moderate(ctx context.Context, req ModerateRequest) (*ModerationResult, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}

	switch req.Action {
	case ActionApprove:
		if req.All {
			return s.approveAll(ctx)
		}
		return s.approveOne(ctx, req.ID)
	case ActionReject:
		if req.All {
			return s.rejectAll(ctx)
		}
		return s.rejectOne(ctx, req.ID)
	default:
		return nil, fmt.Errorf("unknown moderation action %q", req.Action)
	}
}

func (s *service) approveOne(ctx context.Context, id int64) (*ModerationResult, error) {
	pending, err := s.readPartition(ctx, s.pendingPath)
	if err != nil {
		return nil, err
	}
	pos := findRecord(pending, id)
	if pos < 0 {
		return nil, &RecordError{RecordID: id, Op: "approve", Err: ErrRecordNotFound}
	}
	approved, err := s.readPartition(ctx, s.approvedPath)
	if err != nil {
		return nil, err
	}

	record := normalizeRecord(pending[pos])
	newApproved := append(append([]Record{}, approved...), record)
	newPending := append(append([]Record{}, pending[:pos]...), pending[pos+1:]...)

	if err := s.commitPartitionPair(ctx, approved, newApproved, pending, newPending); err != nil {
		return nil, &RecordError{RecordID: id, Op: "approve", Err: err}
	}

	images, texts := s.loadRecordContent(ctx, record)
	s.registerApproved(ctx, &record, images, texts)

	return &ModerationResult{Processed: 1, Total: 1, RemainingIDs: recordIDs(newPending)}, nil
}

func (s *service) rejectOne(ctx context.Context, id int64) (*ModerationResult, error) {
	pending, err := s.readPartition(ctx, s.pendingPath)
	if err != nil {
		return nil, err
	}
	pos := findRecord(pending, id)
	if pos < 0 {
		return nil, &RecordError{RecordID: id, Op: "reject", Err: ErrRecordNotFound}
	}

	record := pending[pos]
	newPending := append(append([]Record{}, pending[:pos]...), pending[pos+1:]...)
	if err := s.store.WriteCollection(ctx, s.pendingPath, newPending); err != nil {
		return nil, &RecordError{RecordID: id, Op: "reject", Err: err}
	}

	if err := s.alloc.MarkDeleted(ctx, id); err != nil {
		s.logger.Warn("failed to recycle id of rejected record", "id", id, "err", err)
	}
	s.deleteRecordMedia(ctx, record)
	if err := s.events.RecordRejected(ctx, id); err != nil {
		s.logger.Warn("event sink error", "event", "record_rejected", "err", err)
	}

	return &ModerationResult{Processed: 1, Total: 1, RemainingIDs: recordIDs(newPending)}, nil
}

func (s *service) approveAll(ctx context.Context) (*ModerationResult, error) {
	pending, err := s.readPartition(ctx, s.pendingPath)
	if err != nil {
		return nil, err
	}
	if len(pending) == 0 {
		return &ModerationResult{}, nil
	}
	approved, err := s.readPartition(ctx, s.approvedPath)
	if err != nil {
		return nil, err
	}

	newApproved := append([]Record{}, approved...)
	for _, rec := range pending {
		newApproved = append(newApproved, normalizeRecord(rec))
	}

	if err := s.commitPartitionPair(ctx, approved, newApproved, pending, nil); err != nil {
		return nil, fmt.Errorf("approve all: %w", err)
	}

	for _, rec := range newApproved[len(approved):] {
		images, texts := s.loadRecordContent(ctx, rec)
		s.registerApproved(ctx, &rec, images, texts)
	}

	return &ModerationResult{Processed: len(pending), Total: len(pending)}, nil
}

func (s *service) rejectAll(ctx context.Context) (*ModerationResult, error) {
	pending, err := s.readPartition(ctx, s.pendingPath)
	if err != nil {
		return nil, err
	}
	if len(pending) == 0 {
		return &ModerationResult{}, nil
	}

	if err := s.store.WriteCollection(ctx, s.pendingPath, []Record{}); err != nil {
		return nil, fmt.Errorf("reject all: %w", err)
	}

	mediaFailures := 0
	for _, rec := range pending {
		if err := s.alloc.MarkDeleted(ctx, rec.ID); err != nil {
			s.logger.Warn("failed to recycle id of rejected record", "id", rec.ID, "err", err)
		}
		mediaFailures += s.deleteRecordMedia(ctx, rec)
		if err := s.events.RecordRejected(ctx, rec.ID); err != nil {
			s.logger.Warn("event sink error", "event", "record_rejected", "err", err)
		}
	}
	if mediaFailures > 0 {
		s.logger.Warn("batch reject completed with media deletion failures", "failures", mediaFailures)
	}

	return &ModerationResult{Processed: len(pending), Total: len(pending)}, nil
}

// commitPartitionPair writes both partitions in one compensating
// transaction: if the pending write fails after the approved write
// committed, the approved partition is restored to its prior content.
func (s *service) commitPartitionPair(ctx context.Context, priorApproved, newApproved, priorPending, newPending []Record) error {
	steps := []TxStep{
		{
			Path: s.approvedPath,
			Op: func(ctx context.Context) error {
				return s.store.WriteCollection(ctx, s.approvedPath, emptyIfNil(newApproved))
			},
			Rollback: func(ctx context.Context) error {
				return s.store.WriteCollection(ctx, s.approvedPath, emptyIfNil(priorApproved))
			},
		},
		{
			Path: s.pendingPath,
			Op: func(ctx context.Context) error {
				return s.store.WriteCollection(ctx, s.pendingPath, emptyIfNil(newPending))
			},
			Rollback: func(ctx context.Context) error {
				return s.store.WriteCollection(ctx, s.pendingPath, emptyIfNil(priorPending))
			},
		},
	}
	return s.store.WithTransaction(ctx, steps)
}

// Duplicate queries

func (s *service) QueryDuplicates(ctx context.Context, req QueryDuplicatesRequest) (*DuplicateReport, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	th := s.thresholds
	if req.Thresholds != nil {
		th = *req.Thresholds
	}
	return s.index.FindDuplicates(ctx, req.Images, req.Texts, th)
}

// Deletion

func (s *service) Delete(ctx context.Context, req DeleteRequest) error {
	if err := s.ready(); err != nil {
		return err
	}

	record, path, records, pos, err := s.locateRecord(ctx, req.ID)
	if err != nil {
		return err
	}

	if req.RequesterID != "" && !req.Manager && req.RequesterID != record.ContributorID {
		return &RecordError{RecordID: req.ID, Op: "delete", Err: ErrPermissionDenied}
	}

	remaining := append(append([]Record{}, records[:pos]...), records[pos+1:]...)
	if err := s.store.WriteCollection(ctx, path, remaining); err != nil {
		return &RecordError{RecordID: req.ID, Op: "delete", Err: err}
	}

	s.deleteRecordMedia(ctx, *record)
	if err := s.index.Remove(ctx, req.ID); err != nil {
		s.logger.Warn("failed to remove fingerprints of deleted record", "id", req.ID, "err", err)
	}
	if path == s.approvedPath {
		if err := s.alloc.RemoveStat(ctx, record.ContributorID, req.ID); err != nil {
			s.logger.Warn("failed to update contributor stats", "id", req.ID, "err", err)
		}
	}
	if err := s.alloc.MarkDeleted(ctx, req.ID); err != nil {
		s.logger.Warn("failed to recycle id of deleted record", "id", req.ID, "err", err)
	}
	if err := s.events.RecordDeleted(ctx, req.ID); err != nil {
		s.logger.Warn("event sink error", "event", "record_deleted", "err", err)
	}
	return nil
}

// Read side

func (s *service) GetRecord(ctx context.Context, id int64) (*Record, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	record, _, _, _, err := s.locateRecord(ctx, id)
	if err != nil {
		return nil, err
	}
	return record, nil
}

func (s *service) ListPending(ctx context.Context) ([]Record, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	return s.readPartition(ctx, s.pendingPath)
}

func (s *service) ListApproved(ctx context.Context) ([]Record, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	return s.readPartition(ctx, s.approvedPath)
}

func (s *service) RandomApproved(ctx context.Context) (*Record, error) {
	approved, err := s.ListApproved(ctx)
	if err != nil {
		return nil, err
	}
	if len(approved) == 0 {
		return nil, ErrRecordNotFound
	}
	record := approved[rand.Intn(len(approved))]
	return &record, nil
}

func (s *service) ContributorRecords(ctx context.Context, contributorID string) ([]Record, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	ids, err := s.alloc.ContributorIDs(ctx, contributorID)
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, nil
	}
	approved, err := s.readPartition(ctx, s.approvedPath)
	if err != nil {
		return nil, err
	}
	wanted := make(map[int64]bool, len(ids))
	for _, id := range ids {
		wanted[id] = true
	}
	var out []Record
	for _, rec := range approved {
		if wanted[rec.ID] {
			out = append(out, rec)
		}
	}
	return out, nil
}

// Helpers

func (s *service) readPartition(ctx context.Context, path string) ([]Record, error) {
	var records []Record
	if err := s.store.ReadCollection(ctx, path, &records); err != nil {
		return nil, err
	}
	return records, nil
}

// locateRecord finds a record in the approved partition first, then the
// pending one, returning the partition slice and position for rewrites.
func (s *service) locateRecord(ctx context.Context, id int64) (*Record, string, []Record, int, error) {
	for _, path := range []string{s.approvedPath, s.pendingPath} {
		records, err := s.readPartition(ctx, path)
		if err != nil {
			return nil, "", nil, 0, err
		}
		if pos := findRecord(records, id); pos >= 0 {
			return &records[pos], path, records, pos, nil
		}
	}
	return nil, "", nil, 0, &RecordError{RecordID: id, Op: "locate", Err: ErrRecordNotFound}
}

func (s *service) appendRecord(ctx context.Context, path string, record Record) error {
	records, err := s.readPartition(ctx, path)
	if err != nil {
		return err
	}
	return s.store.WriteCollection(ctx, path, append(records, record))
}

// deleteRecordMedia removes every media file referenced by a record,
// returning the number of failures. Failures are logged, never fatal.
func (s *service) deleteRecordMedia(ctx context.Context, record Record) int {
	failures := 0
	for _, el := range record.Elements {
		if !el.IsMedia() || el.FileRef == "" {
			continue
		}
		if err := s.media.Delete(ctx, el.FileRef); err != nil {
			failures++
			s.logger.Warn("failed to delete media file", "name", el.FileRef, "err", err)
		}
	}
	return failures
}

// loadRecordContent reads a record's image bytes from the media store and
// collects its text contents, for fingerprinting at approval time.
// Unreadable media degrades to a log line.
func (s *service) loadRecordContent(ctx context.Context, record Record) ([][]byte, []string) {
	var images [][]byte
	var texts []string
	for _, el := range record.Elements {
		switch el.Type {
		case ElementText:
			texts = append(texts, el.Content)
		case ElementImage:
			rc, err := s.media.Open(ctx, el.FileRef)
			if err != nil {
				s.logger.Warn("failed to open media for fingerprinting", "name", el.FileRef, "err", err)
				continue
			}
			data, err := io.ReadAll(rc)
			rc.Close()
			if err != nil {
				s.logger.Warn("failed to read media for fingerprinting", "name", el.FileRef, "err", err)
				continue
			}
			images = append(images, data)
		}
	}
	return images, texts
}

// splitCandidates extracts the image bytes and text contents of a
// submission for duplicate checking and fingerprinting.
func splitCandidates(elements []IngestElement) ([][]byte, []string) {
	var images [][]byte
	var texts []string
	for _, el := range elements {
		switch el.Type {
		case ElementText:
			texts = append(texts, el.Content)
		case ElementImage:
			images = append(images, el.Data)
		}
	}
	return images, texts
}

// normalizeRecord returns a copy with elements sorted by their pending
// index and the index dropped, the shape approved storage persists.
func normalizeRecord(record Record) Record {
	elements := append([]Element{}, record.Elements...)
	sort.SliceStable(elements, func(i, j int) bool {
		return elementIndex(elements[i], i) < elementIndex(elements[j], j)
	})
	for i := range elements {
		elements[i].Index = nil
	}
	record.Elements = elements
	return record
}

func elementIndex(el Element, fallback int) int {
	if el.Index != nil {
		return *el.Index
	}
	return fallback
}

func findRecord(records []Record, id int64) int {
	for i := range records {
		if records[i].ID == id {
			return i
		}
	}
	return -1
}

func recordIDs(records []Record) []int64 {
	if len(records) == 0 {
		return nil
	}
	ids := make([]int64, len(records))
	for i := range records {
		ids[i] = records[i].ID
	}
	return ids
}

func emptyIfNil(records []Record) []Record {
	if records == nil {
		return []Record{}
	}
	return records
}

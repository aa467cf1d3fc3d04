// Package fingerprint implements the simplepool.FingerprintIndex
// interface: a persisted map of record id to perceptual image fingerprints
// and rolling text hashes, queried by brute-force linear scan. That scan
// is O(existing fingerprints) per candidate, adequate at
// community-submission scale and an explicit ceiling of this design.
package fingerprint

import (
	"context"
	"io"
	"log/slog"
	"sync"

	"github.com/tendant/simple-pool/pkg/simplepool"
)

// Entry holds the fingerprints of one record. The document persists as an
// ordered array so "first encountered in persisted order" stays well
// defined across restarts.
type Entry struct {
	ID          int64    `json:"id"`
	ImageHashes []string `json:"imageHashes"`
	TextHashes  []string `json:"textHashes"`
}

// Config options for the fingerprint index
type Config struct {
	Path string // fingerprint document path

	// ProgressEvery controls how often a full rebuild logs progress
	// (default every 25 records).
	ProgressEvery int

	Logger *slog.Logger
}

// Index implements simplepool.FingerprintIndex backed by a
// CollectionStore for the fingerprint document and a MediaStore for
// reading image bytes during rebuilds.
type Index struct {
	store  simplepool.CollectionStore
	media  simplepool.MediaStore
	cfg    Config
	logger *slog.Logger

	mu          sync.Mutex
	initialized bool
	entries     []Entry
	byID        map[int64]int
}

// New creates a new fingerprint index
func New(store simplepool.CollectionStore, media simplepool.MediaStore, cfg Config) *Index {
	if cfg.ProgressEvery <= 0 {
		cfg.ProgressEvery = 25
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Index{
		store:  store,
		media:  media,
		cfg:    cfg,
		logger: logger,
		byID:   make(map[int64]int),
	}
}

// Initialize loads the persisted fingerprint document. When it is absent
// or empty, every approved record is fingerprinted from scratch; otherwise
// only approved ids missing from the document are added, without touching
// existing entries. Intended for startup and maintenance, never the hot
// request path: a full rebuild runs to completion or fails outright.
func (x *Index) Initialize(ctx context.Context, approved []simplepool.Record) error {
	var entries []Entry
	if err := x.store.ReadCollection(ctx, x.cfg.Path, &entries); err != nil {
		return err
	}

	byID := make(map[int64]int, len(entries))
	for i, e := range entries {
		byID[e.ID] = i
	}

	changed := false
	if len(entries) == 0 && len(approved) > 0 {
		x.logger.Info("fingerprint document empty, rebuilding", "records", len(approved))
		for i, rec := range approved {
			entries = append(entries, x.computeEntry(ctx, rec))
			byID[rec.ID] = len(entries) - 1
			if (i+1)%x.cfg.ProgressEvery == 0 {
				x.logger.Info("fingerprint rebuild progress", "done", i+1, "total", len(approved))
			}
		}
		changed = true
	} else {
		for _, rec := range approved {
			if _, ok := byID[rec.ID]; ok {
				continue
			}
			x.logger.Info("fingerprinting record missing from index", "id", rec.ID)
			entries = append(entries, x.computeEntry(ctx, rec))
			byID[rec.ID] = len(entries) - 1
			changed = true
		}
	}

	if changed {
		if err := x.store.WriteCollection(ctx, x.cfg.Path, entries); err != nil {
			return err
		}
	}

	x.mu.Lock()
	x.entries = entries
	x.byID = byID
	x.initialized = true
	x.mu.Unlock()
	return nil
}

// computeEntry fingerprints one record, reading image bytes from the
// media store. Unreadable or undecodable images are logged and skipped.
func (x *Index) computeEntry(ctx context.Context, rec simplepool.Record) Entry {
	entry := Entry{ID: rec.ID}
	for _, el := range rec.Elements {
		switch el.Type {
		case simplepool.ElementText:
			entry.TextHashes = append(entry.TextHashes, TextHash(el.Content))
		case simplepool.ElementImage:
			data, err := x.readMedia(ctx, el.FileRef)
			if err != nil {
				x.logger.Warn("skipping unreadable media during fingerprinting", "id", rec.ID, "name", el.FileRef, "err", err)
				continue
			}
			hash, err := ImageHash(data)
			if err != nil {
				x.logger.Warn("skipping undecodable image during fingerprinting", "id", rec.ID, "name", el.FileRef, "err", err)
				continue
			}
			entry.ImageHashes = append(entry.ImageHashes, hash)
		}
	}
	return entry
}

func (x *Index) readMedia(ctx context.Context, name string) ([]byte, error) {
	rc, err := x.media.Open(ctx, name)
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return io.ReadAll(rc)
}

// Add fingerprints a record's content and persists the grown document.
func (x *Index) Add(ctx context.Context, id int64, images [][]byte, texts []string) error {
	x.mu.Lock()
	if !x.initialized {
		x.mu.Unlock()
		return simplepool.ErrNotInitialized
	}
	x.mu.Unlock()

	entry := Entry{ID: id}
	for _, data := range images {
		hash, err := ImageHash(data)
		if err != nil {
			x.logger.Warn("skipping undecodable image", "id", id, "err", err)
			continue
		}
		entry.ImageHashes = append(entry.ImageHashes, hash)
	}
	for _, text := range texts {
		entry.TextHashes = append(entry.TextHashes, TextHash(text))
	}

	x.mu.Lock()
	if pos, ok := x.byID[id]; ok {
		x.entries[pos] = entry
	} else {
		x.entries = append(x.entries, entry)
		x.byID[id] = len(x.entries) - 1
	}
	snapshot := append([]Entry{}, x.entries...)
	x.mu.Unlock()

	return x.store.WriteCollection(ctx, x.cfg.Path, snapshot)
}

// Remove drops the entry for id and persists the shrunk document.
func (x *Index) Remove(ctx context.Context, id int64) error {
	x.mu.Lock()
	if !x.initialized {
		x.mu.Unlock()
		return simplepool.ErrNotInitialized
	}
	pos, ok := x.byID[id]
	if !ok {
		x.mu.Unlock()
		return nil
	}
	x.entries = append(x.entries[:pos], x.entries[pos+1:]...)
	delete(x.byID, id)
	for i := pos; i < len(x.entries); i++ {
		x.byID[x.entries[i].ID] = i
	}
	snapshot := append([]Entry{}, x.entries...)
	x.mu.Unlock()

	return x.store.WriteCollection(ctx, x.cfg.Path, snapshot)
}

// FindDuplicates scans every persisted fingerprint linearly and reports,
// per candidate, the highest-similarity match at or above the relevant
// threshold. Ties keep the first-encountered record in persisted order.
// An undecodable candidate image degrades to "no match" for that slot.
func (x *Index) FindDuplicates(ctx context.Context, images [][]byte, texts []string, th simplepool.Thresholds) (*simplepool.DuplicateReport, error) {
	x.mu.Lock()
	if !x.initialized {
		x.mu.Unlock()
		return nil, simplepool.ErrNotInitialized
	}
	entries := append([]Entry{}, x.entries...)
	x.mu.Unlock()

	report := &simplepool.DuplicateReport{
		Images: make([]*simplepool.DuplicateMatch, len(images)),
		Texts:  make([]*simplepool.DuplicateMatch, len(texts)),
	}

	for i, data := range images {
		hash, err := ImageHash(data)
		if err != nil {
			x.logger.Warn("undecodable candidate image, reporting no match", "err", err)
			continue
		}
		report.Images[i] = bestMatch(entries, th.Image, simplepool.ElementImage,
			func(e Entry) []string { return e.ImageHashes }, Similarity, hash)
	}
	for i, text := range texts {
		hash := TextHash(text)
		report.Texts[i] = bestMatch(entries, th.Text, simplepool.ElementText,
			func(e Entry) []string { return e.TextHashes }, TextSimilarity, hash)
	}
	return report, nil
}

func bestMatch(entries []Entry, threshold float64, kind simplepool.ElementType, hashes func(Entry) []string, similarity func(a, b string) float64, candidate string) *simplepool.DuplicateMatch {
	var best *simplepool.DuplicateMatch
	for _, entry := range entries {
		for _, stored := range hashes(entry) {
			score := similarity(candidate, stored)
			if score < threshold {
				continue
			}
			if best == nil || score > best.Similarity {
				best = &simplepool.DuplicateMatch{RecordID: entry.ID, Similarity: score, Kind: kind}
			}
		}
	}
	return best
}

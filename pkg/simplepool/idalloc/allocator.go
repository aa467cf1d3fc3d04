// Package idalloc implements the simplepool.Allocator interface: a
// compact, recyclable integer identifier space shared by the pending and
// approved partitions, plus the per-contributor index of approved ids.
package idalloc

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/tendant/simple-pool/pkg/simplepool"
)

// status is the persisted allocator document.
type status struct {
	HighWaterMark    int64              `json:"highWaterMark"`
	RecycledIDs      []int64            `json:"recycledIds"`
	ContributorStats map[string][]int64 `json:"contributorStats"`
	LastUpdated      time.Time          `json:"lastUpdated"`
}

// Config options for the allocator
type Config struct {
	ApprovedPath string
	PendingPath  string
	StatusPath   string

	// SystemContributorID is the reserved contributor used for
	// moderator-originated content; it is excluded from contributor stats.
	SystemContributorID string

	Logger *slog.Logger
}

// Allocator implements simplepool.Allocator backed by a CollectionStore
type Allocator struct {
	store  simplepool.CollectionStore
	cfg    Config
	logger *slog.Logger

	mu          sync.Mutex
	initialized bool
	highWater   int64
	inUse       map[int64]struct{}
	recycled    map[int64]struct{}
	stats       map[string][]int64
}

// New creates a new allocator
func New(store simplepool.CollectionStore, cfg Config) *Allocator {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Allocator{
		store:    store,
		cfg:      cfg,
		logger:   logger,
		inUse:    make(map[int64]struct{}),
		recycled: make(map[int64]struct{}),
		stats:    make(map[string][]int64),
	}
}

// Initialize scans both partitions and reconciles the id space.
//
// Any id appearing on more than one record (across partitions) is a
// collision: the first-seen record keeps the id, every later one is
// reassigned the smallest unused id and the affected partitions are
// rewritten. The high-water mark is recomputed and every unaccounted-for
// id in [1, highWaterMark] is reclaimed into the recycled set, closing
// historical gaps. Contributor stats are rebuilt from the approved
// partition only, excluding the reserved system contributor.
func (a *Allocator) Initialize(ctx context.Context) error {
	var approved, pending []simplepool.Record
	if err := a.store.ReadCollection(ctx, a.cfg.ApprovedPath, &approved); err != nil {
		return err
	}
	if err := a.store.ReadCollection(ctx, a.cfg.PendingPath, &pending); err != nil {
		return err
	}
	var st status
	if err := a.store.ReadCollection(ctx, a.cfg.StatusPath, &st); err != nil {
		return err
	}

	seen := make(map[int64]struct{})
	approvedChanged := a.resolveCollisions(approved, seen)
	pendingChanged := a.resolveCollisions(pending, seen)

	high := st.HighWaterMark
	for id := range seen {
		if id > high {
			high = id
		}
	}
	for _, id := range st.RecycledIDs {
		if id > high {
			high = id
		}
	}

	recycled := make(map[int64]struct{})
	for _, id := range st.RecycledIDs {
		if _, used := seen[id]; !used {
			recycled[id] = struct{}{}
		}
	}
	for id := int64(1); id <= high; id++ {
		if _, used := seen[id]; used {
			continue
		}
		if _, ok := recycled[id]; ok {
			continue
		}
		a.logger.Info("reclaiming unaccounted id", "id", id)
		recycled[id] = struct{}{}
	}

	stats := make(map[string][]int64)
	for _, rec := range approved {
		if rec.ContributorID == "" || rec.ContributorID == a.cfg.SystemContributorID {
			continue
		}
		stats[rec.ContributorID] = append(stats[rec.ContributorID], rec.ID)
	}

	if approvedChanged {
		if err := a.store.WriteCollection(ctx, a.cfg.ApprovedPath, approved); err != nil {
			return err
		}
	}
	if pendingChanged {
		if err := a.store.WriteCollection(ctx, a.cfg.PendingPath, pending); err != nil {
			return err
		}
	}

	a.mu.Lock()
	a.highWater = high
	a.inUse = seen
	a.recycled = recycled
	a.stats = stats
	a.initialized = true
	st = a.snapshotLocked()
	a.mu.Unlock()

	return a.store.WriteCollection(ctx, a.cfg.StatusPath, st)
}

// resolveCollisions walks records in order, reassigning the smallest
// unused id to every record whose id was already seen. Reassignment is
// logged per record; there is no durable audit trail beyond the log.
func (a *Allocator) resolveCollisions(records []simplepool.Record, seen map[int64]struct{}) bool {
	changed := false
	for i := range records {
		id := records[i].ID
		if _, dup := seen[id]; !dup {
			seen[id] = struct{}{}
			continue
		}
		newID := smallestUnused(seen)
		a.logger.Warn("id collision, reassigning record", "id", id, "newId", newID)
		records[i].ID = newID
		seen[newID] = struct{}{}
		changed = true
	}
	return changed
}

func smallestUnused(seen map[int64]struct{}) int64 {
	for id := int64(1); ; id++ {
		if _, ok := seen[id]; !ok {
			return id
		}
	}
}

// NextID returns the smallest recycled id when the pool is non-empty,
// favoring a compact low-valued id space over growth; otherwise the
// high-water mark is incremented. The id is marked in use immediately;
// the status document is persisted asynchronously, and a failure there is
// logged, bounded by the reconciliation scan on the next Initialize.
func (a *Allocator) NextID(ctx context.Context) (int64, error) {
	a.mu.Lock()
	if !a.initialized {
		a.mu.Unlock()
		return 0, simplepool.ErrNotInitialized
	}

	var id int64
	for {
		if len(a.recycled) > 0 {
			id = a.smallestRecycledLocked()
			delete(a.recycled, id)
		} else {
			a.highWater++
			id = a.highWater
		}
		if _, used := a.inUse[id]; !used {
			break
		}
		a.logger.Warn("candidate id already in use, skipping", "id", id)
	}
	a.inUse[id] = struct{}{}
	a.mu.Unlock()

	go a.persistStatus(context.WithoutCancel(ctx))
	return id, nil
}

// MarkDeleted moves id from in-use to recycled and recomputes the
// high-water mark from the live sets, which can shrink it and so prevents
// unbounded growth from churn.
func (a *Allocator) MarkDeleted(ctx context.Context, id int64) error {
	a.mu.Lock()
	if !a.initialized {
		a.mu.Unlock()
		return simplepool.ErrNotInitialized
	}
	delete(a.inUse, id)
	a.recycled[id] = struct{}{}
	a.highWater = maxKey(a.inUse, maxKey(a.recycled, 0))
	a.mu.Unlock()

	a.persistStatus(ctx)
	return nil
}

// AddStat records an approved id for a contributor. The reserved system
// contributor is skipped.
func (a *Allocator) AddStat(ctx context.Context, contributorID string, id int64) error {
	a.mu.Lock()
	if !a.initialized {
		a.mu.Unlock()
		return simplepool.ErrNotInitialized
	}
	if contributorID == "" || contributorID == a.cfg.SystemContributorID {
		a.mu.Unlock()
		return nil
	}
	a.stats[contributorID] = append(a.stats[contributorID], id)
	a.mu.Unlock()

	a.persistStatus(ctx)
	return nil
}

// RemoveStat drops an approved id from a contributor's list.
func (a *Allocator) RemoveStat(ctx context.Context, contributorID string, id int64) error {
	a.mu.Lock()
	if !a.initialized {
		a.mu.Unlock()
		return simplepool.ErrNotInitialized
	}
	if contributorID == "" || contributorID == a.cfg.SystemContributorID {
		a.mu.Unlock()
		return nil
	}
	ids := a.stats[contributorID]
	for i, have := range ids {
		if have == id {
			ids = append(ids[:i], ids[i+1:]...)
			break
		}
	}
	if len(ids) == 0 {
		delete(a.stats, contributorID)
	} else {
		a.stats[contributorID] = ids
	}
	a.mu.Unlock()

	a.persistStatus(ctx)
	return nil
}

// ContributorIDs returns a copy of the contributor's approved id list.
func (a *Allocator) ContributorIDs(ctx context.Context, contributorID string) ([]int64, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.initialized {
		return nil, simplepool.ErrNotInitialized
	}
	ids := a.stats[contributorID]
	if len(ids) == 0 {
		return nil, nil
	}
	return append([]int64{}, ids...), nil
}

// persistStatus writes the status document. Write failures are logged and
// never roll back in-memory state; the store's own retry policy is the
// only retry applied.
func (a *Allocator) persistStatus(ctx context.Context) {
	a.mu.Lock()
	st := a.snapshotLocked()
	a.mu.Unlock()

	if err := a.store.WriteCollection(ctx, a.cfg.StatusPath, st); err != nil {
		a.logger.Error("allocator status persist failed", "path", a.cfg.StatusPath, "err", err)
	}
}

func (a *Allocator) snapshotLocked() status {
	recycled := make([]int64, 0, len(a.recycled))
	for id := range a.recycled {
		recycled = append(recycled, id)
	}
	sort.Slice(recycled, func(i, j int) bool { return recycled[i] < recycled[j] })

	stats := make(map[string][]int64, len(a.stats))
	for contributor, ids := range a.stats {
		stats[contributor] = append([]int64{}, ids...)
	}

	return status{
		HighWaterMark:    a.highWater,
		RecycledIDs:      recycled,
		ContributorStats: stats,
		LastUpdated:      time.Now().UTC(),
	}
}

func (a *Allocator) smallestRecycledLocked() int64 {
	var smallest int64
	for id := range a.recycled {
		if smallest == 0 || id < smallest {
			smallest = id
		}
	}
	return smallest
}

func maxKey(set map[int64]struct{}, floor int64) int64 {
	max := floor
	for id := range set {
		if id > max {
			max = id
		}
	}
	return max
}

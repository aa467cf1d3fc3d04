package fingerprint

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tendant/simple-pool/pkg/simplepool"
	storagememory "github.com/tendant/simple-pool/pkg/simplepool/storage/memory"
	storememory "github.com/tendant/simple-pool/pkg/simplepool/store/memory"
)

const indexPath = "fingerprints.json"

func newTestIndex(store *storememory.Store, media *storagememory.Backend) *Index {
	return New(store, media, Config{Path: indexPath})
}

func TestIndexGuardsInitialization(t *testing.T) {
	x := newTestIndex(storememory.New(), storagememory.New())
	ctx := context.Background()

	_, err := x.FindDuplicates(ctx, nil, []string{"hi"}, simplepool.DefaultThresholds)
	assert.ErrorIs(t, err, simplepool.ErrNotInitialized)
	assert.ErrorIs(t, x.Add(ctx, 1, nil, nil), simplepool.ErrNotInitialized)
	assert.ErrorIs(t, x.Remove(ctx, 1), simplepool.ErrNotInitialized)
}

func TestIndexRebuildsFromApprovedRecords(t *testing.T) {
	store := storememory.New()
	media := storagememory.New()
	ctx := context.Background()

	img := gradientImage(t)
	require.NoError(t, media.Save(ctx, "1_1.png", img))

	approved := []simplepool.Record{
		{ID: 1, Elements: []simplepool.Element{
			{Type: simplepool.ElementText, Content: "hello"},
			{Type: simplepool.ElementImage, FileRef: "1_1.png"},
		}},
	}

	x := newTestIndex(store, media)
	require.NoError(t, x.Initialize(ctx, approved))

	var entries []Entry
	require.NoError(t, store.ReadCollection(ctx, indexPath, &entries))
	require.Len(t, entries, 1)
	assert.Equal(t, int64(1), entries[0].ID)
	assert.Len(t, entries[0].ImageHashes, 1)
	assert.Len(t, entries[0].TextHashes, 1)
}

func TestIndexReconcilesIncrementally(t *testing.T) {
	store := storememory.New()
	media := storagememory.New()
	ctx := context.Background()

	x := newTestIndex(store, media)
	require.NoError(t, x.Initialize(ctx, []simplepool.Record{
		{ID: 1, Elements: []simplepool.Element{{Type: simplepool.ElementText, Content: "first"}}},
	}))

	// A second initialize with one more approved record only adds the
	// missing id.
	y := newTestIndex(store, media)
	require.NoError(t, y.Initialize(ctx, []simplepool.Record{
		{ID: 1, Elements: []simplepool.Element{{Type: simplepool.ElementText, Content: "CHANGED"}}},
		{ID: 2, Elements: []simplepool.Element{{Type: simplepool.ElementText, Content: "second"}}},
	}))

	var entries []Entry
	require.NoError(t, store.ReadCollection(ctx, indexPath, &entries))
	require.Len(t, entries, 2)
	assert.Equal(t, []string{TextHash("first")}, entries[0].TextHashes, "existing entries stay untouched")
	assert.Equal(t, int64(2), entries[1].ID)
}

func TestIndexSkipsUnreadableMedia(t *testing.T) {
	store := storememory.New()
	media := storagememory.New()
	ctx := context.Background()

	require.NoError(t, media.Save(ctx, "1_1.png", []byte("not an image")))
	approved := []simplepool.Record{
		{ID: 1, Elements: []simplepool.Element{
			{Type: simplepool.ElementImage, FileRef: "1_1.png"},
			{Type: simplepool.ElementImage, FileRef: "missing.png"},
		}},
	}

	x := newTestIndex(store, media)
	require.NoError(t, x.Initialize(ctx, approved), "bad media degrades, never fails initialization")

	var entries []Entry
	require.NoError(t, store.ReadCollection(ctx, indexPath, &entries))
	require.Len(t, entries, 1)
	assert.Empty(t, entries[0].ImageHashes)
}

func TestFindDuplicatesImage(t *testing.T) {
	store := storememory.New()
	media := storagememory.New()
	ctx := context.Background()

	x := newTestIndex(store, media)
	require.NoError(t, x.Initialize(ctx, nil))

	img := gradientImage(t)
	require.NoError(t, x.Add(ctx, 7, [][]byte{img}, nil))

	report, err := x.FindDuplicates(ctx, [][]byte{img, checkerImage(t)}, nil, simplepool.Thresholds{Image: 0.95, Text: 1})
	require.NoError(t, err)
	require.Len(t, report.Images, 2)

	require.NotNil(t, report.Images[0])
	assert.Equal(t, int64(7), report.Images[0].RecordID)
	assert.Equal(t, 1.0, report.Images[0].Similarity)
	assert.Equal(t, simplepool.ElementImage, report.Images[0].Kind)

	assert.Nil(t, report.Images[1], "dissimilar image reports no match")
}

func TestFindDuplicatesText(t *testing.T) {
	store := storememory.New()
	media := storagememory.New()
	ctx := context.Background()

	x := newTestIndex(store, media)
	require.NoError(t, x.Initialize(ctx, nil))
	require.NoError(t, x.Add(ctx, 3, nil, []string{"Hello World"}))

	report, err := x.FindDuplicates(ctx, nil, []string{"hello   world", "something else"}, simplepool.Thresholds{Image: 0.9, Text: 1})
	require.NoError(t, err)
	require.Len(t, report.Texts, 2)

	require.NotNil(t, report.Texts[0], "normalization makes the hashes equal")
	assert.Equal(t, int64(3), report.Texts[0].RecordID)
	assert.Equal(t, 1.0, report.Texts[0].Similarity)
	assert.Nil(t, report.Texts[1])
}

func TestFindDuplicatesTiesKeepPersistedOrder(t *testing.T) {
	store := storememory.New()
	media := storagememory.New()
	ctx := context.Background()

	x := newTestIndex(store, media)
	require.NoError(t, x.Initialize(ctx, nil))
	require.NoError(t, x.Add(ctx, 10, nil, []string{"same text"}))
	require.NoError(t, x.Add(ctx, 20, nil, []string{"same text"}))

	report, err := x.FindDuplicates(ctx, nil, []string{"same text"}, simplepool.Thresholds{Text: 1})
	require.NoError(t, err)
	require.NotNil(t, report.Texts[0])
	assert.Equal(t, int64(10), report.Texts[0].RecordID, "first entry in persisted order wins ties")
}

func TestIndexRemove(t *testing.T) {
	store := storememory.New()
	media := storagememory.New()
	ctx := context.Background()

	x := newTestIndex(store, media)
	require.NoError(t, x.Initialize(ctx, nil))
	require.NoError(t, x.Add(ctx, 1, nil, []string{"a"}))
	require.NoError(t, x.Add(ctx, 2, nil, []string{"b"}))

	require.NoError(t, x.Remove(ctx, 1))
	require.NoError(t, x.Remove(ctx, 1), "removing an absent id is a no-op")

	var entries []Entry
	require.NoError(t, store.ReadCollection(ctx, indexPath, &entries))
	require.Len(t, entries, 1)
	assert.Equal(t, int64(2), entries[0].ID)

	report, err := x.FindDuplicates(ctx, nil, []string{"a"}, simplepool.Thresholds{Text: 1})
	require.NoError(t, err)
	assert.Nil(t, report.Texts[0])
}

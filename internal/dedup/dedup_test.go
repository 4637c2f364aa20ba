package dedup_test

import (
	"context"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/crawlfabric/crawlfabric/internal/dedup"
	"github.com/crawlfabric/crawlfabric/internal/obslog"
	"github.com/crawlfabric/crawlfabric/internal/statestore"
	"github.com/crawlfabric/crawlfabric/pkg/bloom"
)

func newLog() *obslog.Logger {
	return obslog.New("dedup-test", io.Discard, 0)
}

func TestDeduplicate_DropsInBatchDuplicates(t *testing.T) {
	store := statestore.NewMemoryStore()
	d := dedup.New(store, nil, 0, newLog())

	urls := []string{
		"https://example.com/a",
		"https://example.com/a",
		"https://example.com/a/",
	}
	newURLs, stats, err := d.Deduplicate(context.Background(), urls)
	require.NoError(t, err)
	assert.Len(t, newURLs, 1)
	assert.Equal(t, 3, stats.Input)
	assert.Equal(t, 2, stats.Duplicates)
	assert.Equal(t, 1, stats.New)
}

func TestDeduplicate_SkipsURLsAlreadyInStore(t *testing.T) {
	ctx := context.Background()
	store := statestore.NewMemoryStore()
	d := dedup.New(store, nil, 0, newLog())

	newURLs, _, err := d.Deduplicate(ctx, []string{"https://example.com/known"})
	require.NoError(t, err)
	require.Len(t, newURLs, 1)

	_, err = store.PutIfAbsent(ctx, statestore.URLRecord{
		URLHash: newURLs[0].Hash,
		URL:     newURLs[0].Canonical,
		Domain:  "example.com",
		State:   statestore.StatePending,
	})
	require.NoError(t, err)

	newURLs, stats, err := d.Deduplicate(ctx, []string{"https://example.com/known"})
	require.NoError(t, err)
	assert.Empty(t, newURLs)
	assert.Equal(t, 1, stats.Duplicates)
	assert.Equal(t, 0, stats.New)
}

func TestDeduplicate_IsIdempotentOnRepeatedCalls(t *testing.T) {
	ctx := context.Background()
	store := statestore.NewMemoryStore()
	filter, err := bloom.New(1000, 0.01)
	require.NoError(t, err)
	d := dedup.New(store, filter, 0, newLog())

	first, _, err := d.Deduplicate(ctx, []string{"https://example.com/x", "https://example.com/x", "https://example.com/x"})
	require.NoError(t, err)
	assert.Len(t, first, 1)

	for _, u := range first {
		_, err := store.PutIfAbsent(ctx, statestore.URLRecord{
			URLHash: u.Hash, URL: u.Canonical, Domain: "example.com", State: statestore.StatePending,
		})
		require.NoError(t, err)
	}

	second, stats, err := d.Deduplicate(ctx, []string{"https://example.com/x"})
	require.NoError(t, err)
	assert.Empty(t, second)
	assert.Equal(t, 1, stats.Duplicates)
}

func TestDeduplicate_BloomFilterStage1MissSkipsStoreLookup(t *testing.T) {
	ctx := context.Background()
	filter, err := bloom.New(1000, 0.01)
	require.NoError(t, err)
	d := dedup.New(&failingStore{t: t}, filter, 0, newLog())

	newURLs, stats, err := d.Deduplicate(ctx, []string{"https://example.com/never-seen"})
	require.NoError(t, err)
	assert.Len(t, newURLs, 1)
	assert.Equal(t, 1, stats.New)
}

// failingStore fails any BatchGet call; used to assert stage 1 misses never
// reach stage 2.
type failingStore struct {
	t *testing.T
}

func (f *failingStore) BatchGet(context.Context, []string) (map[string]statestore.URLRecord, error) {
	f.t.Fatal("stage 2 should not be reached for a bloom filter stage-1 miss")
	return nil, nil
}

func TestGenerationRotator_RotateRetiresOldestBeyondCap(t *testing.T) {
	makeFilter := func() (*bloom.Filter, error) { return bloom.New(100, 0.01) }
	rotator, err := dedup.NewGenerationRotator(2, makeFilter, newLog())
	require.NoError(t, err)

	rotator.Add("a")
	require.NoError(t, rotator.Rotate(context.Background()))
	rotator.Add("b")
	assert.True(t, rotator.Contains("a"))
	assert.True(t, rotator.Contains("b"))

	require.NoError(t, rotator.Rotate(context.Background()))
	rotator.Add("c")
	assert.False(t, rotator.Contains("a"), "oldest generation should be retired once maxGen is exceeded")
	assert.True(t, rotator.Contains("b"))
	assert.True(t, rotator.Contains("c"))
}

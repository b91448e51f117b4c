package store

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/oppie-vault/tidecache/pkg/tidecache/batcher"
	"github.com/oppie-vault/tidecache/pkg/tidecache/codec"
	"github.com/oppie-vault/tidecache/pkg/tidecache/entry"
	"github.com/oppie-vault/tidecache/pkg/tidecache/index"
	"github.com/oppie-vault/tidecache/pkg/tidecache/layout"
)

func newTestStore(t *testing.T, cfg Config) (*TieredStore, *batcher.Batcher) {
	t.Helper()
	dir := t.TempDir()
	l, err := layout.New(dir, layout.Atomic)
	require.NoError(t, err)

	b := batcher.New(batcher.WithIdleFlush(2 * time.Millisecond))
	t.Cleanup(func() { b.Close() })

	c := codec.New()
	idx := index.New()
	return New(cfg, l, b, c, idx), b
}

func smallConfig() Config {
	cfg := DefaultConfig()
	cfg.DiskWriteThreshold = 16
	cfg.MmapThreshold = 64
	cfg.HotPromoteThreshold = 8
	return cfg
}

func TestSetBelowThresholdStaysHotOnly(t *testing.T) {
	s, _ := newTestStore(t, smallConfig())
	e := entry.New("k", []byte("tiny"), nil, nil, 100)
	require.NoError(t, s.Set("k", e))

	require.True(t, s.hot.has("k"))
	require.Equal(t, 0, s.ColdEntryCount())
}

func TestSetAboveThresholdGoesCold(t *testing.T) {
	s, b := newTestStore(t, smallConfig())
	payload := make([]byte, 100)
	for i := range payload {
		payload[i] = byte(i)
	}
	e := entry.New("k", payload, nil, nil, 100)
	require.NoError(t, s.Set("k", e))
	b.Sync()

	require.False(t, s.hot.has("k"))
	require.Equal(t, 1, s.ColdEntryCount())

	got, found, err := s.Get("k", 101)
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, payload, got.Payload)
}

func TestGetPromotesColdHitIntoWarmThenServesFromWarm(t *testing.T) {
	s, b := newTestStore(t, smallConfig())
	payload := make([]byte, 40) // between hot-promote(8) and mmap(64) thresholds
	for i := range payload {
		payload[i] = byte(i)
	}
	require.NoError(t, s.Set("k", entry.New("k", payload, nil, nil, 100)))
	b.Sync()

	_, found, err := s.Get("k", 101)
	require.NoError(t, err)
	require.True(t, found)
	require.True(t, s.warm.has("k"), "mid-sized cold hit should promote into warm")

	got, found, err := s.Get("k", 102)
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, payload, got.Payload, "warm-tier hit must decode the mapped envelope, not return it raw")
}

func TestGetDoesNotReturnExpiredEntry(t *testing.T) {
	s, _ := newTestStore(t, smallConfig())
	past := int64(50)
	require.NoError(t, s.Set("k", entry.New("k", []byte("tiny"), nil, &past, 100)))

	_, found, err := s.Get("k", 200)
	require.NoError(t, err)
	require.False(t, found)
	require.False(t, s.Exists("k", 200))
}

func TestDeleteRemovesFromAllTiers(t *testing.T) {
	s, b := newTestStore(t, smallConfig())
	require.NoError(t, s.Set("k", entry.New("k", []byte("tiny"), nil, nil, 100)))
	require.True(t, s.Delete("k"))
	b.Sync()
	require.False(t, s.Exists("k", 100))
	require.False(t, s.Delete("k"))
}

func TestSetOverwritesInvalidatesOldTier(t *testing.T) {
	s, b := newTestStore(t, smallConfig())
	big := make([]byte, 100)
	require.NoError(t, s.Set("k", entry.New("k", big, nil, nil, 100)))
	b.Sync()
	require.Equal(t, 1, s.ColdEntryCount())

	require.NoError(t, s.Set("k", entry.New("k", []byte("tiny"), nil, nil, 101)))
	require.Equal(t, 0, s.ColdEntryCount())
	require.True(t, s.hot.has("k"))
}

func TestKeysUnionsAllTiers(t *testing.T) {
	s, b := newTestStore(t, smallConfig())
	require.NoError(t, s.Set("a", entry.New("a", []byte("tiny"), nil, nil, 100)))
	require.NoError(t, s.Set("b", entry.New("b", make([]byte, 100), nil, nil, 100)))
	b.Sync()

	require.ElementsMatch(t, []string{"a", "b"}, s.Keys())
}

func TestClearEmptiesEverything(t *testing.T) {
	s, b := newTestStore(t, smallConfig())
	require.NoError(t, s.Set("a", entry.New("a", []byte("tiny"), nil, nil, 100)))
	require.NoError(t, s.Set("b", entry.New("b", make([]byte, 100), nil, nil, 100)))
	b.Sync()

	s.Clear()
	require.Empty(t, s.Keys())
	require.Equal(t, int64(0), s.Size())
}

func TestStatsTracksHitsAndMisses(t *testing.T) {
	s, b := newTestStore(t, smallConfig())
	require.NoError(t, s.Set("a", entry.New("a", []byte("tiny"), nil, nil, 100)))
	_, found, err := s.Get("a", 101)
	require.NoError(t, err)
	require.True(t, found)
	_, found, err = s.Get("missing", 101)
	require.NoError(t, err)
	require.False(t, found)
	b.Sync()

	stats := s.Stats()
	require.Equal(t, uint64(1), stats.HotHits)
	require.Equal(t, uint64(1), stats.Misses)
}

func TestSetBatchAppliesAllRequests(t *testing.T) {
	s, b := newTestStore(t, smallConfig())
	committed, err := s.SetBatch([]SetRequest{
		{Key: "a", Entry: entry.New("a", []byte("tiny"), nil, nil, 100)},
		{Key: "b", Entry: entry.New("b", make([]byte, 100), nil, nil, 100)},
	})
	require.NoError(t, err)
	require.Equal(t, 2, committed)
	b.Sync()

	require.ElementsMatch(t, []string{"a", "b"}, s.Keys())
}

func TestMemoryOnlyNeverWritesCold(t *testing.T) {
	cfg := smallConfig()
	cfg.MemoryOnly = true
	s, b := newTestStore(t, cfg)

	big := make([]byte, 1000)
	require.NoError(t, s.Set("k", entry.New("k", big, nil, nil, 100)))
	b.Sync()

	require.Equal(t, 0, s.ColdEntryCount())
	require.True(t, s.hot.has("k"))
}

func TestDataPathIsDeterministic(t *testing.T) {
	s, _ := newTestStore(t, smallConfig())
	p1 := s.layout.DataPath("k")
	p2 := s.layout.DataPath("k")
	require.Equal(t, p1, p2)
	require.Equal(t, filepath.Base(p1), filepath.Base(p2))
}

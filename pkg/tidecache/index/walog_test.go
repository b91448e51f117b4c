package index

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestWALogReplayAppliesPutsAndDeletes(t *testing.T) {
	dir := t.TempDir()
	wal, err := OpenWALog(filepath.Join(dir, "wal"))
	require.NoError(t, err)
	defer wal.Close()

	require.NoError(t, wal.AppendPut("a", &Record{Key: "a", Size: 1}))
	require.NoError(t, wal.AppendPut("b", &Record{Key: "b", Size: 2}))
	require.NoError(t, wal.AppendDelete("a"))

	idx := New()
	require.NoError(t, wal.ReplayInto(idx))

	require.Equal(t, 1, idx.Len())
	_, ok := idx.Get("a")
	require.False(t, ok)
	r, ok := idx.Get("b")
	require.True(t, ok)
	require.Equal(t, int64(2), r.Size)
}

func TestWALogCompactDropsOldEntries(t *testing.T) {
	dir := t.TempDir()
	wal, err := OpenWALog(filepath.Join(dir, "wal"))
	require.NoError(t, err)
	defer wal.Close()

	require.NoError(t, wal.AppendPut("a", &Record{Key: "a"}))
	require.NoError(t, wal.AppendPut("b", &Record{Key: "b"}))
	require.NoError(t, wal.Compact(1))

	idx := New()
	require.NoError(t, wal.ReplayInto(idx))

	_, ok := idx.Get("a")
	require.False(t, ok)
	_, ok = idx.Get("b")
	require.True(t, ok)
}

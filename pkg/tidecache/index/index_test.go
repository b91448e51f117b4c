package index

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPutGetDelete(t *testing.T) {
	idx := New()
	idx.Put(&Record{Key: "a", Path: "/tmp/a.dat", Size: 10})

	r, ok := idx.Get("a")
	require.True(t, ok)
	require.Equal(t, int64(10), r.Size)

	idx.Delete("a")
	_, ok = idx.Get("a")
	require.False(t, ok)
}

func TestTotalSizeAndLen(t *testing.T) {
	idx := New()
	idx.Put(&Record{Key: "a", Size: 10})
	idx.Put(&Record{Key: "b", Size: 20})
	require.Equal(t, 2, idx.Len())
	require.Equal(t, int64(30), idx.TotalSize())
}

func TestPersistAndLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "index.json")

	idx := New()
	idx.Put(&Record{
		Key:         "a",
		Path:        filepath.Join(dir, "a.dat"),
		Size:        5,
		CreatedAt:   1,
		AccessedAt:  2,
		AccessCount: 3,
		Tags:        map[string]struct{}{"x": {}},
	})
	require.NoError(t, idx.Persist(path))

	loaded, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, 1, loaded.Len())

	r, ok := loaded.Get("a")
	require.True(t, ok)
	require.Equal(t, int64(5), r.Size)
	require.Contains(t, r.Tags, "x")
}

func TestLoadMissingFileReturnsEmptyIndex(t *testing.T) {
	idx, err := Load(filepath.Join(t.TempDir(), "absent.json"))
	require.NoError(t, err)
	require.Equal(t, 0, idx.Len())
}

func TestRebuildDropsEntriesWithMissingFiles(t *testing.T) {
	dir := t.TempDir()
	idx := New()
	idx.Put(&Record{Key: "present", Path: filepath.Join(dir, "present.dat")})
	idx.Put(&Record{Key: "gone", Path: filepath.Join(dir, "gone.dat")})

	exists := map[string]bool{filepath.Join(dir, "present.dat"): true}
	dropped := idx.Rebuild(func(p string) bool { return exists[p] })

	require.ElementsMatch(t, []string{"gone"}, dropped)
	require.Equal(t, 1, idx.Len())
	_, ok := idx.Get("present")
	require.True(t, ok)
}

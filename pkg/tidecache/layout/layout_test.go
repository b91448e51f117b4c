package layout

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDataPathDeterministic(t *testing.T) {
	dir := t.TempDir()
	l, err := New(dir, Atomic)
	require.NoError(t, err)

	p1 := l.DataPath("some-key")
	p2 := l.DataPath("some-key")
	require.Equal(t, p1, p2)
	require.Contains(t, p1, filepath.Join(dir, DataDirName))
	require.True(t, len(filepath.Base(p1)) == len("xxxxxxxxxxxxxxxx.dat"))
}

func TestWriteAtomicIsAllOrNothing(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "entry.dat")

	require.NoError(t, WriteAtomic(path, []byte("first")))
	got, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, "first", string(got))

	require.NoError(t, WriteAtomic(path, []byte("second-longer-value")))
	got, err = os.ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, "second-longer-value", string(got))

	// No leftover temp file.
	_, err = os.Stat(path + ".tmp")
	require.True(t, os.IsNotExist(err))
}

func TestWriteDirect(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "direct.dat")
	require.NoError(t, WriteDirect(path, []byte("payload")))
	got, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, "payload", string(got))
}

func TestWriteLocked(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "locked.dat")
	require.NoError(t, WriteLocked(path, []byte("locked-payload")))
	got, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, "locked-payload", string(got))
}

func TestResolveModeDefaults(t *testing.T) {
	dir := t.TempDir()
	// On a local filesystem (which t.TempDir() almost always is in CI),
	// atomic writes stay on and locking stays off unless requested.
	mode := ResolveMode(dir, true, false)
	require.Equal(t, Atomic, mode)

	mode = ResolveMode(dir, true, true)
	require.Equal(t, Locked, mode)
}

// Copyright 2025 Oppie Thunder Contributors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package layout derives on-disk paths from cache keys and implements
// the three write primitives: atomic (rename-based), direct (in-place,
// for network filesystems), and locked (advisory file lock for
// cross-process safety).
package layout

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"

	"github.com/oppie-vault/tidecache/internal/hashutil"
)

// DataDirName is the subdirectory holding one file per cold entry.
const DataDirName = "data"

// IndexFileName is the persisted recovery index.
const IndexFileName = "index.json"

// Mode selects how a write to the data directory is carried out.
type Mode int

const (
	// Atomic writes to a sibling temp file, fsyncs, then renames into
	// place. Safe on local filesystems; readers see old or new content,
	// never a torn file.
	Atomic Mode = iota
	// Direct truncates and writes in place. Used on detected network
	// filesystems where rename-over-open-file is unreliable.
	Direct
	// Locked writes in place, as Direct does, while holding an exclusive
	// advisory lock for the duration of the write. It does not combine
	// the lock with Atomic's temp-file rename.
	Locked
)

// Layout resolves paths under a cache directory and performs writes
// using the configured mode.
type Layout struct {
	Dir  string
	Mode Mode
}

// New ensures dir and dir/data exist and returns a Layout.
func New(dir string, mode Mode) (*Layout, error) {
	if err := os.MkdirAll(filepath.Join(dir, DataDirName), 0o755); err != nil {
		return nil, fmt.Errorf("create data directory: %w", err)
	}
	return &Layout{Dir: dir, Mode: mode}, nil
}

// DataPath returns the cold-tier file path for key:
// <dir>/data/<blake3(key)[:16]>.dat.
func (l *Layout) DataPath(key string) string {
	return filepath.Join(l.Dir, DataDirName, hashutil.KeyHash16(key)+".dat")
}

// IndexPath returns the path of the persisted recovery index.
func (l *Layout) IndexPath() string {
	return filepath.Join(l.Dir, IndexFileName)
}

// Write persists data to path using the Layout's configured mode.
func (l *Layout) Write(path string, data []byte) error {
	switch l.Mode {
	case Locked:
		return WriteLocked(path, data)
	case Direct:
		return WriteDirect(path, data)
	default:
		return WriteAtomic(path, data)
	}
}

// WriteAtomic writes to a sibling "<path>.tmp" file, fsyncs it, then
// renames it into place.
func WriteAtomic(path string, data []byte) error {
	tmp := path + ".tmp"
	if err := writeFsync(tmp, data); err != nil {
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("rename %s -> %s: %w", tmp, path, err)
	}
	return nil
}

// WriteDirect truncates and writes path in place, accepting the risk of
// a torn write on crash in exchange for working on filesystems where
// rename-over-open-file is unreliable.
func WriteDirect(path string, data []byte) error {
	return writeFsync(path, data)
}

// WriteLocked acquires an exclusive advisory lock on a sibling
// "<path>.lock" file before writing path in place, to serialize
// concurrent writers on shared storage.
func WriteLocked(path string, data []byte) error {
	fl := flock.New(path + ".lock")
	if err := fl.Lock(); err != nil {
		return fmt.Errorf("acquire lock for %s: %w", path, err)
	}
	defer fl.Unlock()
	return writeFsync(path, data)
}

func writeFsync(path string, data []byte) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return fmt.Errorf("fsync %s: %w", path, err)
	}
	return f.Close()
}

// ResolveMode picks the write mode given the caller's intent and a
// network-filesystem probe: atomic-rename defaults off on a detected
// network filesystem, while locking stays available since the caller
// can explicitly opt into it even there.
func ResolveMode(dir string, useAtomicWrites, useFileLocking bool) Mode {
	isNetwork := IsNetworkFilesystem(dir)

	atomic := useAtomicWrites && !isNetwork
	locked := useFileLocking // explicit opt-in works even on network filesystems

	switch {
	case locked:
		return Locked
	case atomic:
		return Atomic
	default:
		return Direct
	}
}

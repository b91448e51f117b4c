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

// Package migration detects a legacy cache.db left behind by
// python-diskcache, backs it up, then quarantines it so a tidecache
// instance never mistakes it for one of its own files.
package migration

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// legacyDBName is the sqlite file python-diskcache stores its index in.
const legacyDBName = "cache.db"

var sqliteMagic = []byte("SQLite format 3\x00")

// Migrator is the narrow contract a cache directory's startup path
// consults; kept small so callers that only need detection never have
// to import anything heavier.
type Migrator interface {
	Migrate() (Stats, error)
}

// Stats summarizes the outcome of a migration attempt.
type Stats struct {
	Migrated int
	Skipped  int
}

// DetectLegacyFormat reports whether dir holds a python-diskcache sqlite
// database, checked by its standard file-format magic rather than the
// name alone.
func DetectLegacyFormat(dir string) bool {
	f, err := os.Open(filepath.Join(dir, legacyDBName))
	if err != nil {
		return false
	}
	defer f.Close()

	header := make([]byte, len(sqliteMagic))
	n, _ := io.ReadFull(f, header)
	return n == len(sqliteMagic) && string(header) == string(sqliteMagic)
}

type legacyMigrator struct {
	dir string
}

// New returns a Migrator rooted at dir.
func New(dir string) Migrator {
	return &legacyMigrator{dir: dir}
}

// Migrate backs up the legacy database to dir/diskcache_backup/cache.db
// (once) and then renames the original to cache.db.migrated, so a
// repeated New+Migrate call is idempotent. It does not parse the legacy
// schema: no sqlite driver is part of this module's dependency set, so
// the migration's job is the safe backup-and-quarantine dance, not a key
// import, and MigrationFailed errors leave the original file untouched.
func (m *legacyMigrator) Migrate() (Stats, error) {
	dbPath := filepath.Join(m.dir, legacyDBName)
	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		return Stats{}, nil
	}

	backupDir := filepath.Join(m.dir, "diskcache_backup")
	backupPath := filepath.Join(backupDir, legacyDBName)
	if _, err := os.Stat(backupPath); os.IsNotExist(err) {
		if err := os.MkdirAll(backupDir, 0o755); err != nil {
			return Stats{}, fmt.Errorf("create backup directory: %w", err)
		}
		if err := copyFile(dbPath, backupPath); err != nil {
			return Stats{}, fmt.Errorf("back up legacy database: %w", err)
		}
	}

	migratedPath := filepath.Join(m.dir, legacyDBName+".migrated")
	if _, err := os.Stat(migratedPath); os.IsNotExist(err) {
		if err := os.Rename(dbPath, migratedPath); err != nil {
			return Stats{}, fmt.Errorf("quarantine legacy database: %w", err)
		}
	}

	return Stats{Migrated: 0, Skipped: 0}, nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

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

package tidecache

import (
	"log/slog"
	"time"

	"github.com/oppie-vault/tidecache/pkg/tidecache/evict"
)

// Compression selects the payload compressor a Cache's codec uses.
type Compression int

const (
	CompressionNone Compression = iota
	CompressionLZ4
	CompressionZstd
)

// SerializationFormat selects the on-disk envelope framing.
type SerializationFormat int

const (
	FormatBinary SerializationFormat = iota
	FormatJSON
)

// Config is a plain struct rather than functional options: every field
// is meaningful on its own, and DefaultConfig gives a full set of
// defaults rather than requiring incremental opt-in construction.
type Config struct {
	Directory           string
	MaxSize             int64 // 0 means unbounded
	MaxEntries          int64 // 0 means unbounded
	EvictionStrategy    evict.Strategy
	SerializationFormat SerializationFormat
	Compression         Compression
	UseAtomicWrites     bool
	UseFileLocking      bool
	AutoVacuum          bool
	VacuumInterval      time.Duration
	MemoryCacheSize     int64 // hot-tier byte budget; 0 disables the hot tier
	MemoryCacheEntries  int   // hot-tier entry cap
	AutoMigrate         bool

	// Storage-tier thresholds governing hot/warm/cold placement and
	// promotion; cache-wide tunables, so they live alongside the rest
	// of the configuration rather than in a separate options struct.
	DiskWriteThreshold  int64
	MmapThreshold       int64
	HotPromoteThreshold int64
	WarmMaxAge          time.Duration
	MaxWarmEntries      int

	// DurableLog enables an optional Pebble-backed append log for
	// additional durability, on top of the JSON recovery index
	// persisted at vacuum time.
	DurableLog bool

	Logger *slog.Logger
}

// DefaultConfig returns a ready-to-use Config in Go-native units
// (time.Duration instead of raw seconds).
func DefaultConfig(directory string) Config {
	return Config{
		Directory:           directory,
		MaxSize:             1024 * 1024 * 1024, // 1GiB
		MaxEntries:          100_000,
		EvictionStrategy:    evict.StrategyLRUTTL,
		SerializationFormat: FormatBinary,
		Compression:         CompressionLZ4,
		UseAtomicWrites:     true,
		UseFileLocking:      true,
		AutoVacuum:          true,
		VacuumInterval:      time.Hour,
		MemoryCacheSize:     64 * 1024 * 1024, // 64MiB
		MemoryCacheEntries:  10_000,
		AutoMigrate:         true,

		DiskWriteThreshold:  1024,
		MmapThreshold:       64 * 1024,
		HotPromoteThreshold: 4 * 1024,
		WarmMaxAge:          5 * time.Minute,
		MaxWarmEntries:      1_000,
	}
}

// validate enforces InvalidConfig: a non-empty directory and
// non-negative bounds.
func (c Config) validate() error {
	if c.Directory == "" {
		return newError("New", "", InvalidConfig, errConfigNoDirectory)
	}
	if c.MaxSize < 0 || c.MaxEntries < 0 {
		return newError("New", "", InvalidConfig, errConfigNegativeBound)
	}
	return nil
}

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

// Package tidecache is the public façade over the three-tier cache
// engine: a single Cache type exposing Get/Set/Delete/Exists/Keys/
// Clear/Vacuum/Stats, coordinating the storage tiers, the eviction
// policy, and background persistence behind one lock-light API.
package tidecache

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/oppie-vault/tidecache/internal/metrics"
	"github.com/oppie-vault/tidecache/internal/migration"
	"github.com/oppie-vault/tidecache/pkg/tidecache/batcher"
	"github.com/oppie-vault/tidecache/pkg/tidecache/codec"
	"github.com/oppie-vault/tidecache/pkg/tidecache/entry"
	"github.com/oppie-vault/tidecache/pkg/tidecache/evict"
	"github.com/oppie-vault/tidecache/pkg/tidecache/index"
	"github.com/oppie-vault/tidecache/pkg/tidecache/layout"
	"github.com/oppie-vault/tidecache/pkg/tidecache/store"
)

// Cache is the top-level cache handle. Safe for concurrent use.
type Cache struct {
	cfg    Config
	layout *layout.Layout
	batch  *batcher.Batcher
	codec  *codec.Codec
	idx    *index.Index
	store  *store.TieredStore
	evict  evict.Policy
	logger *slog.Logger
	lat    *metrics.LatencyMetrics
	wal    *index.WALog

	counters statsCounters

	vacuumMu   sync.Mutex
	lastVacuum atomic.Int64

	closed atomic.Bool
}

// New builds a Cache rooted at cfg.Directory, recovering any existing
// index and attempting python-diskcache auto-migration if configured.
func New(cfg Config) (*Cache, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
	}

	mode := layout.ResolveMode(cfg.Directory, cfg.UseAtomicWrites, cfg.UseFileLocking)
	l, err := layout.New(cfg.Directory, mode)
	if err != nil {
		return nil, newError("New", "", IO, err)
	}

	idx, err := index.Load(l.IndexPath())
	if err != nil {
		return nil, newError("New", "", IO, err)
	}
	if dropped := idx.Rebuild(func(p string) bool {
		_, statErr := os.Stat(p)
		return statErr == nil
	}); len(dropped) > 0 {
		logger.Warn("tidecache dropped index entries with missing files", "count", len(dropped))
	}

	c := newCodec(cfg)
	b := batcher.New(batcher.WithMode(mode), batcher.WithLogger(logger))

	storeCfg := store.Config{
		DiskWriteThreshold:  cfg.DiskWriteThreshold,
		MmapThreshold:       cfg.MmapThreshold,
		HotPromoteThreshold: cfg.HotPromoteThreshold,
		MaxHotEntries:       cfg.MemoryCacheEntries,
		MaxWarmEntries:      cfg.MaxWarmEntries,
		WarmMaxAge:          cfg.WarmMaxAge,
		MemoryOnly:          cfg.MemoryCacheSize <= 0 && cfg.MemoryCacheEntries <= 0,
	}

	ts := store.New(storeCfg, l, b, c, idx)

	var wal *index.WALog
	if cfg.DurableLog {
		var walErr error
		wal, walErr = index.OpenWALog(filepath.Join(cfg.Directory, "walog"))
		if walErr != nil {
			return nil, newError("New", "", IO, fmt.Errorf("open durability log: %w", walErr))
		}
		if err := wal.ReplayInto(idx); err != nil {
			wal.Close()
			return nil, newError("New", "", IO, fmt.Errorf("replay durability log: %w", err))
		}
		ts.AttachWALog(wal)
	}

	cache := &Cache{
		cfg:    cfg,
		layout: l,
		batch:  b,
		codec:  c,
		idx:    idx,
		store:  ts,
		evict:  evict.New(cfg.EvictionStrategy),
		logger: logger,
		lat:    metrics.NewLatencyMetrics(),
		wal:    wal,
	}
	cache.lastVacuum.Store(entry.Now())

	if cfg.AutoMigrate {
		cache.autoMigrate()
	}

	return cache, nil
}

func newCodec(cfg Config) *codec.Codec {
	opts := []codec.Option{codec.WithThreshold(int(cfg.DiskWriteThreshold))}
	if cfg.SerializationFormat == FormatJSON {
		opts = append(opts, codec.WithFormat(codec.JSON))
	}
	switch cfg.Compression {
	case CompressionLZ4:
		opts = append(opts, codec.WithCompressor(codec.LZ4Compressor{}))
	case CompressionZstd:
		if zc, err := codec.NewZstdCompressor(); err == nil {
			opts = append(opts, codec.WithCompressor(zc))
		}
	case CompressionNone:
		// no compressor
	}
	return codec.New(opts...)
}

// autoMigrate attempts a best-effort, non-fatal python-diskcache import;
// failures are logged, never returned, so a cache that can't migrate
// simply continues without it rather than refusing to open.
func (c *Cache) autoMigrate() {
	if !migration.DetectLegacyFormat(c.cfg.Directory) {
		return
	}
	c.logger.Info("tidecache detected legacy diskcache data, migrating", "directory", c.cfg.Directory)
	m := migration.New(c.cfg.Directory)
	stats, err := m.Migrate()
	if err != nil {
		c.logger.Warn("tidecache legacy migration failed", "error", err)
		return
	}
	c.logger.Info("tidecache legacy migration complete", "migrated", stats.Migrated, "skipped", stats.Skipped)
}

// MigrateFromLegacy runs the python-diskcache migration on demand,
// returning the error (rather than only logging it) so a caller that
// explicitly asked for migration can react to failure.
func (c *Cache) MigrateFromLegacy() (migration.Stats, error) {
	m := migration.New(c.cfg.Directory)
	stats, err := m.Migrate()
	if err != nil {
		return stats, newError("MigrateFromLegacy", "", MigrationFailed, err)
	}
	return stats, nil
}

// Get retrieves the payload for key, promoting it across tiers and
// bumping access metadata on a hit.
func (c *Cache) Get(key string) ([]byte, error) {
	start := time.Now()
	defer func() { c.lat.ObserveGetLatency(time.Since(start)) }()

	if err := entry.ValidateKey(key); err != nil {
		return nil, newError("Get", key, InvalidKey, err)
	}

	e, found, err := c.store.Get(key, entry.Now())
	if err != nil {
		c.counters.errors.Add(1)
		return nil, newError("Get", key, IO, err)
	}
	if !found {
		c.counters.misses.Add(1)
		return nil, nil
	}
	c.evict.OnAccess(key, e)
	c.counters.hits.Add(1)
	return e.Payload, nil
}

// Set stores value under key, evicting first if the cache is over
// budget so the new entry never gets immediately swept out behind it.
func (c *Cache) Set(key string, value []byte, expireTime *int64, tags []string) error {
	start := time.Now()
	defer func() { c.lat.ObserveSetLatency(time.Since(start)) }()

	if err := entry.ValidateKey(key); err != nil {
		return newError("Set", key, InvalidKey, err)
	}

	c.maybeEvict()

	e := entry.New(key, value, tags, expireTime, entry.Now())
	if err := c.store.Set(key, e); err != nil {
		c.counters.errors.Add(1)
		return newError("Set", key, IO, err)
	}
	c.evict.OnInsert(key, e)
	c.counters.sets.Add(1)
	return nil
}

// SetRequest is one (key, value) pair for SetBatch.
type SetRequest struct {
	Key        string
	Value      []byte
	ExpireTime *int64
	Tags       []string
}

// SetBatch applies every request, continuing past individual failures
// and returning their combined BatchError rather than aborting on the
// first bad key.
func (c *Cache) SetBatch(reqs []SetRequest) (committed int, err error) {
	start := time.Now()
	defer func() { c.lat.ObserveSetLatency(time.Since(start)) }()

	batchErr := &BatchError{}
	now := entry.Now()

	storeReqs := make([]store.SetRequest, 0, len(reqs))
	entries := make([]*entry.Entry, 0, len(reqs))
	for _, r := range reqs {
		if verr := entry.ValidateKey(r.Key); verr != nil {
			batchErr.Add(newError("SetBatch", r.Key, InvalidKey, verr))
			continue
		}
		e := entry.New(r.Key, r.Value, r.Tags, r.ExpireTime, now)
		storeReqs = append(storeReqs, store.SetRequest{Key: r.Key, Entry: e})
		entries = append(entries, e)
	}

	c.maybeEvict()

	n, setErr := c.store.SetBatch(storeReqs)
	for i := 0; i < n; i++ {
		c.evict.OnInsert(storeReqs[i].Key, entries[i])
	}
	c.counters.sets.Add(uint64(n))
	committed = n
	if setErr != nil {
		batchErr.Add(newError("SetBatch", "", IO, setErr))
	}
	if batchErr.HasErrors() {
		c.counters.errors.Add(uint64(len(batchErr.Errors)))
		return committed, batchErr.AsError()
	}
	return committed, nil
}

// Delete removes key from every tier, reporting whether it was present.
func (c *Cache) Delete(key string) (bool, error) {
	if err := entry.ValidateKey(key); err != nil {
		return false, newError("Delete", key, InvalidKey, err)
	}

	existed := c.store.Delete(key)
	if existed {
		c.evict.OnRemove(key)
		c.counters.deletes.Add(1)
	}
	return existed, nil
}

// Exists is a non-mutating membership check; an expired entry is never
// reported present.
func (c *Cache) Exists(key string) (bool, error) {
	if err := entry.ValidateKey(key); err != nil {
		return false, newError("Exists", key, InvalidKey, err)
	}
	return c.store.Exists(key, entry.Now()), nil
}

// Keys returns every key across all tiers. Expired entries are included
// until they are dropped lazily on read or by vacuum; callers that need
// exact liveness should pair this with Exists.
func (c *Cache) Keys() []string {
	return c.store.Keys()
}

// Clear empties the cache and resets every counter: storage, eviction
// policy state, and stats all go back to zero together.
func (c *Cache) Clear() error {
	c.store.Clear()
	c.evict.Clear()
	c.counters.reset()
	return nil
}

// Size returns the current total payload bytes resident across tiers.
func (c *Cache) Size() int64 {
	return c.store.Size()
}

// Stats returns an atomic snapshot of the façade's public counters plus
// the per-tier hit breakdown.
func (c *Cache) Stats() Stats {
	return c.counters.snapshot(c.store)
}

// LatencySnapshot reports latency percentiles for Get/Set/Vacuum,
// a supplemental observability surface alongside the façade's counters.
func (c *Cache) LatencySnapshot() metrics.Snapshot {
	return c.lat.Snapshot()
}

// Vacuum deletes every expired cold entry, persists the recovery index,
// and flushes the batcher so the persisted index matches what is on
// disk when Vacuum returns.
func (c *Cache) Vacuum() error {
	start := time.Now()
	defer func() { c.lat.ObserveVacuumLatency(time.Since(start)) }()

	c.vacuumMu.Lock()
	defer c.vacuumMu.Unlock()

	now := entry.Now()
	for _, key := range c.store.ExpiredColdKeys(now) {
		if c.store.Delete(key) {
			c.evict.OnRemove(key)
			c.counters.deletes.Add(1)
		}
	}

	c.batch.Sync()
	if err := c.idx.Persist(c.layout.IndexPath()); err != nil {
		c.counters.errors.Add(1)
		return newError("Vacuum", "", IO, err)
	}
	c.lastVacuum.Store(now)
	return nil
}

// maybeEvict evicts when over MaxSize/MaxEntries, then auto-vacuums if
// the interval has elapsed. Over MaxEntries it evicts the excess plus 10%
// of MaxEntries. Over MaxSize it evicts 10% of the cold entries (at least
// one); it does not compute how many entries it takes to get back under
// MaxSize, so one pass can leave the cache still over the limit.
func (c *Cache) maybeEvict() {
	currentSize := c.store.Size()
	currentEntries := int64(c.store.ColdEntryCount())

	var evictCount int64
	if c.cfg.MaxSize > 0 && currentSize > c.cfg.MaxSize {
		evictCount = maxInt64(evictCount, maxInt64(currentEntries/10, 1))
	}
	if c.cfg.MaxEntries > 0 && currentEntries > c.cfg.MaxEntries {
		evictCount = maxInt64(evictCount, currentEntries-c.cfg.MaxEntries+c.cfg.MaxEntries/10)
	}

	if evictCount > 0 {
		victims := c.evict.SelectVictims(int(evictCount))
		for _, key := range victims {
			if c.store.Delete(key) {
				c.evict.OnRemove(key)
				c.counters.evictions.Add(1)
			}
		}
	}

	if c.cfg.AutoVacuum {
		last := c.lastVacuum.Load()
		if entry.Now()-last > int64(c.cfg.VacuumInterval.Seconds()) {
			if err := c.Vacuum(); err != nil {
				c.logger.Warn("tidecache auto-vacuum failed", "error", err)
			}
		}
	}
}

func maxInt64(a, b int64) int64 {
	if a > b {
		return a
	}
	return b
}

// Close flushes pending writes and stops the background batcher. A
// closed Cache must not be used again.
func (c *Cache) Close() error {
	if !c.closed.CompareAndSwap(false, true) {
		return nil
	}
	if err := c.idx.Persist(c.layout.IndexPath()); err != nil {
		return newError("Close", "", IO, err)
	}
	if err := c.batch.Close(); err != nil {
		return newError("Close", "", IO, fmt.Errorf("close batcher: %w", err))
	}
	if c.wal != nil {
		if err := c.wal.Close(); err != nil {
			return newError("Close", "", IO, fmt.Errorf("close durability log: %w", err))
		}
	}
	return nil
}

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

package store

import (
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/oppie-vault/tidecache/pkg/tidecache/batcher"
	"github.com/oppie-vault/tidecache/pkg/tidecache/codec"
	"github.com/oppie-vault/tidecache/pkg/tidecache/entry"
	"github.com/oppie-vault/tidecache/pkg/tidecache/index"
	"github.com/oppie-vault/tidecache/pkg/tidecache/layout"
)

// Config bounds and thresholds the three tiers.
type Config struct {
	DiskWriteThreshold  int64 // payloads strictly below this stay hot-only
	MmapThreshold       int64 // payloads at/above this never enter warm
	HotPromoteThreshold int64 // warm/cold hits below this copy into hot
	MaxHotEntries       int
	MaxWarmEntries      int
	WarmMaxAge          time.Duration
	// MemoryOnly skips cold-tier disk writes entirely: every payload,
	// regardless of size, is kept in the hot tier rather than ever being
	// written through the cold index. Useful for tests and ephemeral
	// caches that should never touch disk.
	MemoryOnly bool
}

// DefaultConfig returns sensible tier thresholds for everyday use.
func DefaultConfig() Config {
	return Config{
		DiskWriteThreshold:  1024,
		MmapThreshold:       64 * 1024,
		HotPromoteThreshold: 4 * 1024,
		MaxHotEntries:       10_000,
		MaxWarmEntries:      1_000,
		WarmMaxAge:          5 * time.Minute,
	}
}

// TieredStore coordinates the hot, warm, and cold tiers behind a single
// logical keyspace, implementing the promotion-on-read and
// placement-on-write rules.
type TieredStore struct {
	cfg     Config
	hot     *hotTier
	warm    *warmTier
	idx     *index.Index
	layout  *layout.Layout
	batcher *batcher.Batcher
	codec   *codec.Codec

	statsMu sync.Mutex
	stats   Stats

	walog *index.WALog
}

// AttachWALog wires an optional Pebble-backed durability log. Every
// cold-index mutation is appended to it before/alongside the in-memory
// index update, so a crash between two Persist snapshots can still be
// replayed.
func (s *TieredStore) AttachWALog(w *index.WALog) {
	s.walog = w
}

func (s *TieredStore) putIndex(rec *index.Record) {
	if s.walog != nil {
		if err := s.walog.AppendPut(rec.Key, rec); err != nil {
			// The durability log is a supplement, not the index of
			// record; a failed append is ignored (not logged or
			// counted) and never blocks the primary write path.
			_ = err
		}
	}
	s.idx.Put(rec)
}

func (s *TieredStore) deleteIndex(key string) {
	if s.walog != nil {
		if err := s.walog.AppendDelete(key); err != nil {
			_ = err
		}
	}
	s.idx.Delete(key)
}

// Stats reports per-tier hit counts plus bytes moved, separate from
// the façade's public counters.
type Stats struct {
	HotHits      uint64
	WarmHits     uint64
	ColdHits     uint64
	Misses       uint64
	BytesRead    uint64
	BytesWritten uint64
}

// New builds a TieredStore rooted at the given layout, using b for
// background cold writes, c for envelope framing, and idx as the
// (possibly just-recovered) cold index.
func New(cfg Config, l *layout.Layout, b *batcher.Batcher, c *codec.Codec, idx *index.Index) *TieredStore {
	return &TieredStore{
		cfg:     cfg,
		hot:     newHotTier(cfg.MaxHotEntries),
		warm:    newWarmTier(cfg.MaxWarmEntries, cfg.WarmMaxAge, c),
		idx:     idx,
		layout:  l,
		batcher: b,
		codec:   c,
	}
}

// Stats returns a snapshot of per-tier hit/byte counters.
func (s *TieredStore) Stats() Stats {
	s.statsMu.Lock()
	defer s.statsMu.Unlock()
	return s.stats
}

func (s *TieredStore) recordHit(from tier, bytes int64) {
	s.statsMu.Lock()
	defer s.statsMu.Unlock()
	switch from {
	case tierHot:
		s.stats.HotHits++
	case tierWarm:
		s.stats.WarmHits++
	case tierCold:
		s.stats.ColdHits++
	}
	s.stats.BytesRead += uint64(bytes)
}

func (s *TieredStore) recordMiss() {
	s.statsMu.Lock()
	defer s.statsMu.Unlock()
	s.stats.Misses++
}

func (s *TieredStore) recordWrite(bytes int64) {
	s.statsMu.Lock()
	defer s.statsMu.Unlock()
	s.stats.BytesWritten += uint64(bytes)
}

// Get searches hot, then warm, then cold, promoting on the way up per
// the tier rules below. A hit's access metadata is bumped and written back
// to whichever tier served it, so LFU bucketing and AccessedAt both
// reflect the read. An expired hit is deleted lazily and reported as a
// miss.
func (s *TieredStore) Get(key string, now int64) (*entry.Entry, bool, error) {
	if e, ok := s.hot.get(key); ok {
		return s.finishHit(key, e, now, tierHot)
	}
	if e, ok := s.warm.get(key); ok {
		return s.finishHit(key, e, now, tierWarm)
	}
	if rec, ok := s.idx.Get(key); ok {
		return s.getFromCold(key, rec, now)
	}
	s.recordMiss()
	return nil, false, nil
}

type tier int

const (
	tierHot tier = iota
	tierWarm
	tierCold
)

func (s *TieredStore) finishHit(key string, e *entry.Entry, now int64, from tier) (*entry.Entry, bool, error) {
	if e.IsExpired(now) {
		s.Delete(key)
		s.recordMiss()
		return nil, false, nil
	}
	e.UpdateAccess(now)

	switch from {
	case tierHot:
		s.hot.put(key, e)
	case tierWarm:
		s.warm.updateMeta(key, e)
		if e.Size < s.cfg.HotPromoteThreshold {
			s.hot.put(key, e)
		}
	}
	s.recordHit(from, e.Size)
	return e.Clone(), true, nil
}

func (s *TieredStore) getFromCold(key string, rec *index.Record, now int64) (*entry.Entry, bool, error) {
	data, err := os.ReadFile(rec.Path)
	if err != nil {
		s.deleteIndex(key)
		s.recordMiss()
		return nil, false, nil
	}
	e, err := s.codec.DecodeEnvelope(data, rec.Compressed)
	if err != nil {
		s.deleteIndex(key)
		s.batcher.Delete(rec.Path)
		return nil, false, fmt.Errorf("decode cold entry %q: %w", key, err)
	}

	if e.IsExpired(now) {
		s.deleteIndex(key)
		s.batcher.Delete(rec.Path)
		s.recordMiss()
		return nil, false, nil
	}
	e.UpdateAccess(now)

	switch {
	case e.Size < s.cfg.HotPromoteThreshold:
		s.hot.put(key, e)
	case e.Size < s.cfg.MmapThreshold:
		if err := s.warm.mapFile(key, rec.Path, e, rec.Compressed); err != nil {
			// Promotion is best-effort; the cold hit is still valid.
			_ = err
		}
	}

	rec.AccessedAt = e.AccessedAt
	rec.AccessCount = e.AccessCount
	s.putIndex(rec)

	return e.Clone(), true, nil
}

// Set places e according to the placement rule: below the
// disk-write threshold the value lives in the hot tier only; at or
// above it, the cold tier is authoritative, and any existing hot/warm
// entry for the key is invalidated before the new cold entry is
// registered.
func (s *TieredStore) Set(key string, e *entry.Entry) error {
	s.hot.remove(key)
	s.warm.remove(key)

	if s.cfg.MemoryOnly || e.Size < s.cfg.DiskWriteThreshold {
		if prior, ok := s.idx.Get(key); ok {
			s.deleteIndex(key)
			s.batcher.Delete(prior.Path)
		}
		s.hot.put(key, e)
		return nil
	}

	data, compressed, err := s.codec.EncodeEnvelope(e)
	if err != nil {
		return fmt.Errorf("encode entry %q: %w", key, err)
	}

	path := s.layout.DataPath(key)
	s.batcher.Write(path, data)
	s.recordWrite(int64(len(data)))

	s.putIndex(&index.Record{
		Key:         key,
		Path:        path,
		Size:        e.Size,
		CreatedAt:   e.CreatedAt,
		AccessedAt:  e.AccessedAt,
		AccessCount: e.AccessCount,
		ExpireTime:  e.ExpireTime,
		Tags:        e.Tags,
		Compressed:  compressed,
	})
	return nil
}

// SetBatch applies each (key, entry) pair via Set, reducing per-item
// caller overhead for bulk loads. Not transactional — a failure partway
// through leaves prior items in this batch committed.
type SetRequest struct {
	Key   string
	Entry *entry.Entry
}

// SetBatch applies each request in order, returning the first error
// encountered alongside how many requests completed before it.
func (s *TieredStore) SetBatch(reqs []SetRequest) (committed int, err error) {
	for _, r := range reqs {
		if err := s.Set(r.Key, r.Entry); err != nil {
			return committed, fmt.Errorf("set batch at key %q: %w", r.Key, err)
		}
		committed++
	}
	return committed, nil
}

// Delete removes key from every tier. It reports whether anything was
// actually present.
func (s *TieredStore) Delete(key string) bool {
	foundHot := s.hot.remove(key)
	foundWarm := s.warm.remove(key)

	rec, foundCold := s.idx.Get(key)
	if foundCold {
		s.deleteIndex(key)
		s.batcher.Delete(rec.Path)
	}
	return foundHot || foundWarm || foundCold
}

// Exists is a non-mutating membership check that does not return
// expired entries and does not touch access metadata.
func (s *TieredStore) Exists(key string, now int64) bool {
	if e, ok := s.hot.get(key); ok {
		return !e.IsExpired(now)
	}
	if rec, ok := s.idx.Get(key); ok {
		if rec.ExpireTime != nil && now > *rec.ExpireTime {
			return false
		}
		return true
	}
	return s.warm.has(key)
}

// Keys returns the union of keys visible across all three tiers.
func (s *TieredStore) Keys() []string {
	seen := make(map[string]struct{})
	var out []string
	for _, k := range s.hot.keys() {
		if _, ok := seen[k]; !ok {
			seen[k] = struct{}{}
			out = append(out, k)
		}
	}
	for _, k := range s.warm.keys() {
		if _, ok := seen[k]; !ok {
			seen[k] = struct{}{}
			out = append(out, k)
		}
	}
	for _, k := range s.idx.Keys() {
		if _, ok := seen[k]; !ok {
			seen[k] = struct{}{}
			out = append(out, k)
		}
	}
	return out
}

// Clear empties every tier and forces a batcher sync so pending
// deletes land before Clear returns.
func (s *TieredStore) Clear() {
	s.hot.clear()
	s.warm.clear()
	s.idx.Clear()
	s.batcher.Sync()
}

// Size sums entry sizes reachable via the cold index plus the inline
// hot-tier entries; warm-tier bytes are already counted by their cold
// index record.
func (s *TieredStore) Size() int64 {
	return s.hot.size() + s.idx.TotalSize()
}

// ColdEntryCount returns the number of entries registered in the cold
// index, the snapshot the façade's eviction check consults.
func (s *TieredStore) ColdEntryCount() int {
	return s.idx.Len()
}

// ColdSize returns the total byte size registered in the cold index.
func (s *TieredStore) ColdSize() int64 {
	return s.idx.TotalSize()
}

// Index exposes the underlying recovery index for persistence and
// rebuild by the façade's vacuum/startup paths.
func (s *TieredStore) Index() *index.Index { return s.idx }

// ExpiredColdKeys returns every cold-index key that is expired as of
// now, for vacuum's bulk-delete pass.
func (s *TieredStore) ExpiredColdKeys(now int64) []string {
	var expired []string
	for _, key := range s.idx.Keys() {
		rec, ok := s.idx.Get(key)
		if ok && rec.ExpireTime != nil && now > *rec.ExpireTime {
			expired = append(expired, key)
		}
	}
	return expired
}

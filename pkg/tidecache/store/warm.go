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
	"sync/atomic"
	"time"

	"github.com/edsrzf/mmap-go"

	"github.com/oppie-vault/tidecache/pkg/tidecache/codec"
	"github.com/oppie-vault/tidecache/pkg/tidecache/entry"
)

// warmEntry is a memory-mapped view of a cold file plus the atomic
// last-access clock needed for age-based overflow. meta carries access
// metadata (AccessCount etc.) separately from the mapped payload bytes,
// so it can be mutated on a hit without touching the read-only mapping.
// region holds the raw encoded envelope as it sits on disk, not the
// decoded payload; compressed records whether it must be decompressed
// after decoding.
type warmEntry struct {
	file         *os.File
	region       mmap.MMap
	compressed   bool
	meta         *entry.Entry
	lastAccessed atomic.Int64
}

func (e *warmEntry) touch(now int64) { e.lastAccessed.Store(now) }

func (e *warmEntry) close() {
	if e.region != nil {
		_ = e.region.Unmap()
	}
	if e.file != nil {
		_ = e.file.Close()
	}
}

// warmTier is a bounded concurrent map from key to a mapped cold file.
type warmTier struct {
	mu       sync.Mutex
	entries  map[string]*warmEntry
	maxItems int
	maxAge   time.Duration
	now      func() int64
	codec    *codec.Codec
}

func newWarmTier(maxItems int, maxAge time.Duration, c *codec.Codec) *warmTier {
	return &warmTier{
		entries:  make(map[string]*warmEntry),
		maxItems: maxItems,
		maxAge:   maxAge,
		now:      func() int64 { return time.Now().Unix() },
		codec:    c,
	}
}

// mapFile memory-maps path read-only and registers it under key,
// evicting a stale entry for the same key first, if any. meta's Payload
// field is ignored; the mapped region is the raw encoded envelope, and
// compressed must match the on-disk FileInfo bit so get can decode it.
func (w *warmTier) mapFile(key, path string, meta *entry.Entry, compressed bool) error {
	if w.maxItems <= 0 {
		return nil
	}
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open %s for mmap: %w", path, err)
	}
	region, err := mmap.Map(f, mmap.RDONLY, 0)
	if err != nil {
		f.Close()
		return fmt.Errorf("mmap %s: %w", path, err)
	}

	strippedMeta := meta.Clone()
	strippedMeta.Payload = nil
	we := &warmEntry{file: f, region: region, compressed: compressed, meta: strippedMeta}
	we.touch(w.now())

	w.mu.Lock()
	defer w.mu.Unlock()
	if old, ok := w.entries[key]; ok {
		old.close()
	}
	w.entries[key] = we

	if len(w.entries) > w.maxItems {
		w.evictOverflowLocked()
	}
	return nil
}

// get returns a clone of the stored entry with its Payload decoded from
// the memory-mapped envelope, and bumps last-access bookkeeping.
func (w *warmTier) get(key string) (*entry.Entry, bool) {
	w.mu.Lock()
	e, ok := w.entries[key]
	if !ok {
		w.mu.Unlock()
		return nil, false
	}
	e.touch(w.now())
	raw := append([]byte(nil), e.region...)
	compressed := e.compressed
	out := e.meta.Clone()
	w.mu.Unlock()

	decoded, err := w.codec.DecodeEnvelope(raw, compressed)
	if err != nil {
		return nil, false
	}
	out.Payload = decoded.Payload
	out.Size = decoded.Size
	return out, true
}

// updateMeta persists access metadata back onto the mapped entry,
// without touching the underlying mapping, so LFU bucketing stays
// correct across repeated warm-tier hits.
func (w *warmTier) updateMeta(key string, meta *entry.Entry) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if e, ok := w.entries[key]; ok {
		stripped := meta.Clone()
		stripped.Payload = nil
		e.meta = stripped
	}
}

func (w *warmTier) has(key string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	_, ok := w.entries[key]
	return ok
}

// evictOverflowLocked removes entries whose last access is older than
// maxAge, up to 10% of the tier.
func (w *warmTier) evictOverflowLocked() {
	target := len(w.entries) / 10
	if target < 1 {
		target = 1
	}
	cutoff := w.now() - int64(w.maxAge.Seconds())

	evicted := 0
	for key, e := range w.entries {
		if evicted >= target {
			break
		}
		if e.lastAccessed.Load() < cutoff {
			e.close()
			delete(w.entries, key)
			evicted++
		}
	}
}

func (w *warmTier) remove(key string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	e, ok := w.entries[key]
	if !ok {
		return false
	}
	e.close()
	delete(w.entries, key)
	return true
}

func (w *warmTier) keys() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]string, 0, len(w.entries))
	for k := range w.entries {
		out = append(out, k)
	}
	return out
}

func (w *warmTier) clear() {
	w.mu.Lock()
	defer w.mu.Unlock()
	for _, e := range w.entries {
		e.close()
	}
	w.entries = make(map[string]*warmEntry)
}

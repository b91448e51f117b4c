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

// Package store implements the tiered hot/warm/cold storage engine of
// a bounded in-memory hot map, a bounded memory-mapped
// warm map, and a cold on-disk index, with promotion on read and
// placement rules on write.
package store

import (
	"sync"

	"github.com/oppie-vault/tidecache/pkg/tidecache/entry"
)

// hotTier is a bounded concurrent map of full entries: an order slice
// plus a map, capped by entry count rather than byte budget because
// hot-tier members are all individually smaller than the disk-write
// threshold. Entries (not bare payloads) are kept so access metadata
// survives a hit, which LFU bucketing depends on.
type hotTier struct {
	mu       sync.Mutex
	entries  map[string]*entry.Entry
	order    []string
	maxItems int
}

func newHotTier(maxItems int) *hotTier {
	return &hotTier{
		entries:  make(map[string]*entry.Entry),
		order:    make([]string, 0, 128),
		maxItems: maxItems,
	}
}

func (h *hotTier) get(key string) (*entry.Entry, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	e, ok := h.entries[key]
	if !ok {
		return nil, false
	}
	return e.Clone(), true
}

// put inserts or replaces key's entry without disturbing its position
// in the insertion order (a write-back after access should not give the
// key a fresh overflow grace period beyond what it already had).
func (h *hotTier) put(key string, e *entry.Entry) {
	if h.maxItems <= 0 {
		return
	}
	stored := e.Clone()

	h.mu.Lock()
	defer h.mu.Unlock()

	if _, exists := h.entries[key]; !exists {
		h.order = append(h.order, key)
	}
	h.entries[key] = stored

	if len(h.entries) > h.maxItems {
		h.evictOverflowLocked()
	}
}

// evictOverflowLocked drops roughly 10% of entries in insertion order
// on overflow.
func (h *hotTier) evictOverflowLocked() {
	target := len(h.entries) / 10
	if target < 1 {
		target = 1
	}
	for i := 0; i < target && len(h.order) > 0; i++ {
		victim := h.order[0]
		h.order = h.order[1:]
		delete(h.entries, victim)
	}
}

func (h *hotTier) removeLocked(key string) {
	if _, ok := h.entries[key]; !ok {
		return
	}
	delete(h.entries, key)
	for i, k := range h.order {
		if k == key {
			h.order = append(h.order[:i], h.order[i+1:]...)
			break
		}
	}
}

func (h *hotTier) remove(key string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	_, ok := h.entries[key]
	if ok {
		h.removeLocked(key)
	}
	return ok
}

func (h *hotTier) has(key string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	_, ok := h.entries[key]
	return ok
}

func (h *hotTier) keys() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]string, 0, len(h.entries))
	for k := range h.entries {
		out = append(out, k)
	}
	return out
}

func (h *hotTier) size() int64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	var total int64
	for _, e := range h.entries {
		total += e.Size
	}
	return total
}

func (h *hotTier) clear() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.entries = make(map[string]*entry.Entry)
	h.order = h.order[:0]
}

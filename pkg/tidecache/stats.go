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
	"sync/atomic"

	"github.com/oppie-vault/tidecache/pkg/tidecache/store"
)

// Stats is the façade's public counter set.
type Stats struct {
	Hits       uint64
	Misses     uint64
	Sets       uint64
	Deletes    uint64
	Evictions  uint64
	Errors     uint64
	TotalSize  int64
	EntryCount int64

	// TierHits breaks Hits down by which tier served it, sourced
	// from store.Stats.
	TierHits TierHits
}

// TierHits reports how many of Stats.Hits were served from each tier.
type TierHits struct {
	Hot  uint64
	Warm uint64
	Cold uint64
}

// HitRate reports hits over hits+misses, or zero when nothing has
// been requested yet.
func (s Stats) HitRate() float64 {
	total := s.Hits + s.Misses
	if total == 0 {
		return 0
	}
	return float64(s.Hits) / float64(total)
}

// statsCounters holds the atomics a running Cache updates; Stats is the
// immutable snapshot handed back to callers.
type statsCounters struct {
	hits      atomic.Uint64
	misses    atomic.Uint64
	sets      atomic.Uint64
	deletes   atomic.Uint64
	evictions atomic.Uint64
	errors    atomic.Uint64
}

func (c *statsCounters) reset() {
	c.hits.Store(0)
	c.misses.Store(0)
	c.sets.Store(0)
	c.deletes.Store(0)
	c.evictions.Store(0)
	c.errors.Store(0)
}

func (c *statsCounters) snapshot(st *store.TieredStore) Stats {
	tiered := st.Stats()
	return Stats{
		Hits:       c.hits.Load(),
		Misses:     c.misses.Load(),
		Sets:       c.sets.Load(),
		Deletes:    c.deletes.Load(),
		Evictions:  c.evictions.Load(),
		Errors:     c.errors.Load(),
		TotalSize:  st.Size(),
		EntryCount: int64(len(st.Keys())),
		TierHits: TierHits{
			Hot:  tiered.HotHits,
			Warm: tiered.WarmHits,
			Cold: tiered.ColdHits,
		},
	}
}

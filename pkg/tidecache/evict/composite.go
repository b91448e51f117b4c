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

package evict

import "github.com/oppie-vault/tidecache/pkg/tidecache/entry"

// Composite layers LRU or LFU as the primary strategy under a TTL
// index that participates for StrategyTTL and the two combined
// strategies: SelectVictims then drains expired keys first and falls
// through to the primary strategy for the remainder.
type Composite struct {
	lru      *LRU
	lfu      *LFU
	ttl      *TTL
	strategy Strategy
}

// NewComposite builds a Composite for strategy. StrategyLRU and
// StrategyLFU run without the TTL index at all; StrategyTTL runs TTL
// alone; the two combined strategies run TTL alongside their primary.
func NewComposite(strategy Strategy) *Composite {
	return &Composite{
		lru:      NewLRU(),
		lfu:      NewLFU(),
		ttl:      NewTTL(),
		strategy: strategy,
	}
}

func (c *Composite) usesTTL() bool {
	switch c.strategy {
	case StrategyTTL, StrategyLRUTTL, StrategyLFUTTL:
		return true
	default:
		return false
	}
}

func (c *Composite) OnAccess(key string, e *entry.Entry) {
	switch c.strategy {
	case StrategyLRU, StrategyLRUTTL:
		c.lru.OnAccess(key, e)
	case StrategyLFU, StrategyLFUTTL:
		c.lfu.OnAccess(key, e)
	}
	if c.usesTTL() {
		c.ttl.OnAccess(key, e)
	}
}

func (c *Composite) OnInsert(key string, e *entry.Entry) {
	c.OnAccess(key, e)
	if c.usesTTL() {
		c.ttl.OnInsert(key, e)
	}
}

func (c *Composite) OnRemove(key string) {
	c.lru.OnRemove(key)
	c.lfu.OnRemove(key)
	c.ttl.OnRemove(key)
}

// SelectVictims drains expired keys before consulting the primary
// strategy, so a TTL composite never evicts a live key while an
// expired one is still present. Expiry never removes a key from the
// LRU/LFU bookkeeping, so an expired key can also surface from the
// primary strategy; the two lists are deduplicated before truncating
// to count.
func (c *Composite) SelectVictims(count int) []string {
	var victims []string
	seen := make(map[string]struct{})
	if c.usesTTL() {
		for _, key := range c.ttl.SelectVictims(count) {
			if _, ok := seen[key]; ok {
				continue
			}
			seen[key] = struct{}{}
			victims = append(victims, key)
		}
	}
	if len(victims) >= count {
		return victims[:count]
	}

	remaining := count - len(victims)
	var primary []string
	switch c.strategy {
	case StrategyLRU, StrategyLRUTTL:
		primary = c.lru.SelectVictims(remaining + len(seen))
	case StrategyLFU, StrategyLFUTTL:
		primary = c.lfu.SelectVictims(remaining + len(seen))
	case StrategyTTL:
		// no secondary strategy once expired keys are exhausted
	}

	for _, key := range primary {
		if len(victims) >= count {
			break
		}
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		victims = append(victims, key)
	}
	return victims
}

func (c *Composite) Clear() {
	c.lru.Clear()
	c.lfu.Clear()
	c.ttl.Clear()
}

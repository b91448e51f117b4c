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

// Package evict implements the composable eviction strategies: LRU,
// LFU, TTL, and the LRU+TTL / LFU+TTL composites that always drain
// expired keys before falling through to the primary strategy.
package evict

import "github.com/oppie-vault/tidecache/pkg/tidecache/entry"

// Policy is the eviction-strategy contract the cache façade consults.
type Policy interface {
	OnAccess(key string, e *entry.Entry)
	OnInsert(key string, e *entry.Entry)
	OnRemove(key string)
	SelectVictims(count int) []string
	Clear()
}

// Strategy names the eviction policy composition for Composite.
type Strategy int

const (
	StrategyLRU Strategy = iota
	StrategyLFU
	StrategyTTL
	StrategyLRUTTL
	StrategyLFUTTL
)

func (s Strategy) String() string {
	switch s {
	case StrategyLRU:
		return "lru"
	case StrategyLFU:
		return "lfu"
	case StrategyTTL:
		return "ttl"
	case StrategyLRUTTL:
		return "lru_ttl"
	case StrategyLFUTTL:
		return "lfu_ttl"
	default:
		return "unknown"
	}
}

// New builds the Policy matching strategy.
func New(strategy Strategy) Policy {
	return NewComposite(strategy)
}

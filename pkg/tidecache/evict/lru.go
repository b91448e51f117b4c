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

import (
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/oppie-vault/tidecache/pkg/tidecache/entry"
)

// lruCapacity bounds the underlying lru.Cache. The cache is used purely
// for its recency ordering, never for capacity enforcement (the store
// decides when to evict), so this is set far above any realistic key
// count and the cache's own size-triggered eviction never fires.
const lruCapacity = 1 << 24

// LRU orders keys by recency of touch using hashicorp/golang-lru/v2's
// bounded cache purely for its recency ordering, not for caching
// payloads. SelectVictims reads its oldest-to-newest Keys() without
// mutating it.
type LRU struct {
	c *lru.Cache[string, struct{}]
}

// NewLRU returns an empty LRU policy.
func NewLRU() *LRU {
	c, err := lru.New[string, struct{}](lruCapacity)
	if err != nil {
		// Only returns an error for a non-positive size, which lruCapacity
		// never is.
		panic(err)
	}
	return &LRU{c: c}
}

func (l *LRU) touch(key string) {
	l.c.Add(key, struct{}{})
}

func (l *LRU) OnAccess(key string, _ *entry.Entry) {
	l.touch(key)
}

func (l *LRU) OnInsert(key string, e *entry.Entry) {
	l.touch(key)
}

func (l *LRU) OnRemove(key string) {
	l.c.Remove(key)
}

// SelectVictims returns up to count keys in ascending recency order
// (oldest touched first), without removing them.
func (l *LRU) SelectVictims(count int) []string {
	if count <= 0 {
		return nil
	}
	keys := l.c.Keys()
	if count > len(keys) {
		count = len(keys)
	}
	return keys[:count]
}

func (l *LRU) Clear() {
	l.c.Purge()
}

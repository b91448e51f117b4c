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
	"sort"
	"sync"

	"github.com/oppie-vault/tidecache/pkg/tidecache/entry"
)

// TTL buckets keys by absolute expiry time (unix seconds). Access does
// not change a key's expiry; only Insert sets it.
type TTL struct {
	mu            sync.Mutex
	expiryToKeys  map[int64][]string
	keyToExpiry   map[string]int64
	now           func() int64
}

// NewTTL returns an empty TTL policy using entry.Now for the clock.
func NewTTL() *TTL {
	return &TTL{
		expiryToKeys: make(map[int64][]string),
		keyToExpiry:  make(map[string]int64),
		now:          entry.Now,
	}
}

func (t *TTL) OnAccess(_ string, _ *entry.Entry) {}

// OnInsert records e's expiry bucket, if it has one. Keys without an
// ExpireTime never enter the TTL index and so are never selected as
// TTL victims.
func (t *TTL) OnInsert(key string, e *entry.Entry) {
	if e.ExpireTime == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	if old, ok := t.keyToExpiry[key]; ok {
		t.removeFromBucket(old, key)
	}
	expiry := *e.ExpireTime
	t.expiryToKeys[expiry] = append(t.expiryToKeys[expiry], key)
	t.keyToExpiry[key] = expiry
}

func (t *TTL) removeFromBucket(expiry int64, key string) {
	bucket := t.expiryToKeys[expiry]
	for i, k := range bucket {
		if k == key {
			bucket = append(bucket[:i], bucket[i+1:]...)
			break
		}
	}
	if len(bucket) == 0 {
		delete(t.expiryToKeys, expiry)
	} else {
		t.expiryToKeys[expiry] = bucket
	}
}

func (t *TTL) OnRemove(key string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if expiry, ok := t.keyToExpiry[key]; ok {
		t.removeFromBucket(expiry, key)
		delete(t.keyToExpiry, key)
	}
}

// ExpiredKeys returns every key whose expiry is strictly before now,
// ascending by expiry time, matching entry.Entry.IsExpired's strict
// now > ExpireTime definition.
func (t *TTL) ExpiredKeys() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.expiredLocked(t.now())
}

func (t *TTL) expiredLocked(now int64) []string {
	expiries := make([]int64, 0, len(t.expiryToKeys))
	for e := range t.expiryToKeys {
		expiries = append(expiries, e)
	}
	sort.Slice(expiries, func(i, j int) bool { return expiries[i] < expiries[j] })

	var expired []string
	for _, e := range expiries {
		if e >= now {
			break
		}
		expired = append(expired, t.expiryToKeys[e]...)
	}
	return expired
}

// SelectVictims returns up to count already-expired keys.
func (t *TTL) SelectVictims(count int) []string {
	if count <= 0 {
		return nil
	}
	expired := t.ExpiredKeys()
	if count > len(expired) {
		count = len(expired)
	}
	return expired[:count]
}

func (t *TTL) Clear() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.expiryToKeys = make(map[int64][]string)
	t.keyToExpiry = make(map[string]int64)
}

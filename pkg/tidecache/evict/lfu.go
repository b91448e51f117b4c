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

// LFU buckets keys by access frequency; SelectVictims drains the
// lowest-frequency bucket first, in insertion order within a bucket.
type LFU struct {
	mu            sync.Mutex
	freqToKeys    map[uint64][]string
	keyToFreq     map[string]uint64
}

// NewLFU returns an empty LFU policy.
func NewLFU() *LFU {
	return &LFU{
		freqToKeys: make(map[uint64][]string),
		keyToFreq:  make(map[string]uint64),
	}
}

func (f *LFU) reinsert(key string, freq uint64) {
	if old, ok := f.keyToFreq[key]; ok {
		f.removeFromBucket(old, key)
	}
	f.freqToKeys[freq] = append(f.freqToKeys[freq], key)
	f.keyToFreq[key] = freq
}

func (f *LFU) removeFromBucket(freq uint64, key string) {
	bucket := f.freqToKeys[freq]
	for i, k := range bucket {
		if k == key {
			bucket = append(bucket[:i], bucket[i+1:]...)
			break
		}
	}
	if len(bucket) == 0 {
		delete(f.freqToKeys, freq)
	} else {
		f.freqToKeys[freq] = bucket
	}
}

// OnAccess re-buckets key using the entry's current access count, the
// same signal a frequency-based policy tracks instead of keeping
// its own private counter.
func (f *LFU) OnAccess(key string, e *entry.Entry) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reinsert(key, e.AccessCount)
}

func (f *LFU) OnInsert(key string, e *entry.Entry) {
	f.OnAccess(key, e)
}

func (f *LFU) OnRemove(key string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if freq, ok := f.keyToFreq[key]; ok {
		f.removeFromBucket(freq, key)
		delete(f.keyToFreq, key)
	}
}

// SelectVictims returns up to count keys starting from the lowest
// frequency bucket.
func (f *LFU) SelectVictims(count int) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if count <= 0 || len(f.freqToKeys) == 0 {
		return nil
	}

	freqs := make([]uint64, 0, len(f.freqToKeys))
	for fr := range f.freqToKeys {
		freqs = append(freqs, fr)
	}
	sort.Slice(freqs, func(i, j int) bool { return freqs[i] < freqs[j] })

	var victims []string
	for _, fr := range freqs {
		for _, key := range f.freqToKeys[fr] {
			if len(victims) >= count {
				return victims
			}
			victims = append(victims, key)
		}
	}
	return victims
}

func (f *LFU) Clear() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.freqToKeys = make(map[uint64][]string)
	f.keyToFreq = make(map[string]uint64)
}

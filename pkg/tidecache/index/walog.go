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

// WALog is an optional stronger-durability append log a cache can keep
// alongside its JSON recovery index, backed by an embedded Pebble LSM
// engine and storing a durable append-only sequence of index mutations.
package index

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/cockroachdb/pebble"
)

// WALOp is one durability-log entry.
type WALOp struct {
	Kind  string  `json:"kind"` // "put" or "delete"
	Key   string  `json:"key"`
	Seq   uint64  `json:"seq"`
	Entry *Record `json:"entry,omitempty"`
}

// WALog is a Pebble-backed append log keyed by monotonic sequence
// number, so ReplayInto can apply mutations in the order they were
// appended.
type WALog struct {
	db  *pebble.DB
	seq atomic.Uint64
}

// OpenWALog opens (or creates) the durability log rooted at path.
func OpenWALog(path string) (*WALog, error) {
	opts := &pebble.Options{
		// A durability log for a single cache directory is small and
		// write-light compared to objstore's content-addressed store;
		// a modest memtable avoids over-committing memory per cache.
		MemTableSize: 16 << 20,
		DisableWAL:   false,
	}
	db, err := pebble.Open(path, opts)
	if err != nil {
		return nil, fmt.Errorf("open durability log: %w", err)
	}
	return &WALog{db: db}, nil
}

// Close releases the underlying Pebble database.
func (w *WALog) Close() error {
	if w.db == nil {
		return nil
	}
	return w.db.Close()
}

func seqKey(seq uint64) []byte {
	return []byte(fmt.Sprintf("%020d", seq))
}

// AppendPut records a Put mutation for key durably before the caller's
// in-memory index is updated.
func (w *WALog) AppendPut(key string, r *Record) error {
	seq := w.seq.Add(1)
	op := WALOp{Kind: "put", Key: key, Seq: seq, Entry: r}
	return w.append(op)
}

// AppendDelete records a Delete mutation for key.
func (w *WALog) AppendDelete(key string) error {
	seq := w.seq.Add(1)
	op := WALOp{Kind: "delete", Key: key, Seq: seq}
	return w.append(op)
}

func (w *WALog) append(op WALOp) error {
	data, err := json.Marshal(op)
	if err != nil {
		return fmt.Errorf("marshal wal op: %w", err)
	}
	return w.db.Set(seqKey(op.Seq), data, pebble.Sync)
}

// ReplayInto applies every logged mutation, in sequence order, onto idx.
// Used at startup between Rebuild and serving traffic, to recover any
// mutation that landed after the last Persist but before a crash.
func (w *WALog) ReplayInto(idx *Index) error {
	iter, err := w.db.NewIter(nil)
	if err != nil {
		return fmt.Errorf("iterate durability log: %w", err)
	}
	defer iter.Close()

	for iter.First(); iter.Valid(); iter.Next() {
		var op WALOp
		if err := json.Unmarshal(iter.Value(), &op); err != nil {
			return fmt.Errorf("decode wal op: %w", err)
		}
		if op.Seq > w.seq.Load() {
			w.seq.Store(op.Seq)
		}
		switch op.Kind {
		case "put":
			if op.Entry != nil {
				idx.Put(op.Entry)
			}
		case "delete":
			idx.Delete(op.Key)
		default:
			return errors.New("unknown wal op kind: " + op.Kind)
		}
	}
	return iter.Error()
}

// Compact drops every logged mutation whose sequence number is at or
// below upToSeq.
func (w *WALog) Compact(upToSeq uint64) error {
	return w.db.DeleteRange([]byte(fmt.Sprintf("%020d", 0)), seqKey(upToSeq+1), pebble.Sync)
}

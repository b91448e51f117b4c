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

// Package batcher implements a single background writer: a FIFO queue
// of Write/Delete/Sync operations, coalesced into batches and flushed on
// a size threshold, an explicit Sync barrier, or idle timeout. Shutdown
// uses an atomic state flag plus a done channel and WaitGroup, with
// every submit calling Add before it sends to avoid an Add/Done race.
package batcher

import (
	"fmt"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/oppie-vault/tidecache/pkg/tidecache/layout"
)

// State is the batcher's lifecycle state machine: Running -> Draining -> Stopped.
type State int32

const (
	Running State = iota
	Draining
	Stopped
)

func (s State) String() string {
	switch s {
	case Running:
		return "running"
	case Draining:
		return "draining"
	case Stopped:
		return "stopped"
	default:
		return "unknown"
	}
}

type opKind int

const (
	opWrite opKind = iota
	opDelete
	opSync
)

type op struct {
	kind opKind
	path string
	data []byte
	done chan struct{}
}

// Config configures a Batcher.
type Config struct {
	QueueSize      int           // bounded queue depth; submitters block when full
	ErrorQueueSize int           // bounded background-error queue
	BatchSize      int           // flush once this many writes are buffered
	IdleFlush      time.Duration // flush after this much queue inactivity
	Mode           layout.Mode   // write mode used for every flushed write
	Logger         *slog.Logger
}

func defaultConfig() Config {
	return Config{
		QueueSize:      1000,
		ErrorQueueSize: 100,
		BatchSize:      100,
		IdleFlush:      50 * time.Millisecond,
		Mode:           layout.Atomic,
	}
}

// Option configures a Batcher.
type Option func(*Config)

func WithQueueSizes(queue, errQueue int) Option {
	return func(c *Config) { c.QueueSize = queue; c.ErrorQueueSize = errQueue }
}

func WithBatchSize(n int) Option {
	return func(c *Config) { c.BatchSize = n }
}

func WithIdleFlush(d time.Duration) Option {
	return func(c *Config) { c.IdleFlush = d }
}

func WithMode(m layout.Mode) Option {
	return func(c *Config) { c.Mode = m }
}

func WithLogger(l *slog.Logger) Option {
	return func(c *Config) { c.Logger = l }
}

// Batcher is the single dedicated background writer.
type Batcher struct {
	cfg Config

	queue        chan op
	errorQueue   chan error
	wg           sync.WaitGroup
	state        int32 // atomic State
	done         chan struct{}
	workerExited chan struct{}
	shutdownMu   sync.RWMutex

	logger *slog.Logger

	writes  atomic.Uint64
	deletes atomic.Uint64
	errors  atomic.Uint64
}

// New starts a Batcher's background worker and error handler goroutines.
func New(opts ...Option) *Batcher {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
	}

	b := &Batcher{
		cfg:          cfg,
		queue:        make(chan op, cfg.QueueSize),
		errorQueue:   make(chan error, cfg.ErrorQueueSize),
		done:         make(chan struct{}),
		workerExited: make(chan struct{}),
		logger:       logger,
	}
	go b.run()
	go b.handleErrors()
	return b
}

// State returns the batcher's current lifecycle state.
func (b *Batcher) State() State {
	return State(atomic.LoadInt32(&b.state))
}

// Write enqueues a write for the background worker. It is non-blocking
// unless the queue is full, in which case the caller blocks (explicit
// backpressure).
func (b *Batcher) Write(path string, data []byte) {
	b.submit(op{kind: opWrite, path: path, data: data})
}

// Delete enqueues a file removal.
func (b *Batcher) Delete(path string) {
	b.submit(op{kind: opDelete, path: path})
}

// Sync is a rendezvous: it blocks until every operation enqueued before
// it has been durably applied.
func (b *Batcher) Sync() {
	done := make(chan struct{})
	b.submit(op{kind: opSync, done: done})
	<-done
}

func (b *Batcher) submit(o op) {
	if b.State() == Stopped {
		// Shutdown already completed; apply synchronously so the
		// caller's data is never silently dropped.
		b.applySync(o)
		return
	}

	b.shutdownMu.RLock()
	defer b.shutdownMu.RUnlock()

	if atomic.LoadInt32(&b.state) != int32(Running) && o.kind != opSync {
		b.applySync(o)
		return
	}

	// Add before the send, so Close() cannot observe wg hitting zero
	// while this goroutine still intends to deliver op.
	b.wg.Add(1)
	select {
	case <-b.done:
		b.wg.Done()
		b.applySync(o)
	case b.queue <- o:
	}
}

func (b *Batcher) writeFile(path string, data []byte) error {
	switch b.cfg.Mode {
	case layout.Locked:
		return layout.WriteLocked(path, data)
	case layout.Direct:
		return layout.WriteDirect(path, data)
	default:
		return layout.WriteAtomic(path, data)
	}
}

func (b *Batcher) applySync(o op) {
	switch o.kind {
	case opWrite:
		if err := b.writeFile(o.path, o.data); err != nil {
			b.reportError(fmt.Errorf("synchronous write %s: %w", o.path, err))
		} else {
			b.writes.Add(1)
		}
	case opDelete:
		if err := os.Remove(o.path); err != nil && !os.IsNotExist(err) {
			b.reportError(fmt.Errorf("synchronous delete %s: %w", o.path, err))
		} else {
			b.deletes.Add(1)
		}
	case opSync:
		if o.done != nil {
			close(o.done)
		}
	}
}

func (b *Batcher) reportError(err error) {
	b.errors.Add(1)
	select {
	case b.errorQueue <- err:
	default:
	}
}

func (b *Batcher) run() {
	var batch []op
	timer := time.NewTimer(b.cfg.IdleFlush)
	defer timer.Stop()
	defer close(b.workerExited)

	flush := func() {
		for _, o := range batch {
			b.applyBatched(o)
		}
		batch = batch[:0]
	}

	for {
		select {
		case o, ok := <-b.queue:
			if !ok {
				flush()
				return
			}
			if o.kind == opSync {
				flush()
				if o.done != nil {
					close(o.done)
				}
				b.wg.Done()
				continue
			}
			batch = append(batch, o)
			b.wg.Done()
			if len(batch) >= b.cfg.BatchSize {
				flush()
			}
			if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
			timer.Reset(b.cfg.IdleFlush)
		case <-timer.C:
			if len(batch) > 0 {
				flush()
			}
			timer.Reset(b.cfg.IdleFlush)
		}
	}
}

func (b *Batcher) applyBatched(o op) {
	switch o.kind {
	case opWrite:
		if err := b.writeFile(o.path, o.data); err != nil {
			b.reportError(fmt.Errorf("background write %s: %w", o.path, err))
			return
		}
		b.writes.Add(1)
	case opDelete:
		if err := os.Remove(o.path); err != nil && !os.IsNotExist(err) {
			b.reportError(fmt.Errorf("background delete %s: %w", o.path, err))
			return
		}
		b.deletes.Add(1)
	}
}

func (b *Batcher) handleErrors() {
	for err := range b.errorQueue {
		b.logger.Error("tidecache batcher operation failed",
			"error", err,
			"component", "batcher",
		)
	}
}

// Close transitions Running -> Draining -> Stopped: it stops accepting
// new operations, drains everything already queued, then releases the
// worker. Idempotent.
func (b *Batcher) Close() error {
	if !atomic.CompareAndSwapInt32(&b.state, int32(Running), int32(Draining)) {
		return nil // already draining or stopped
	}
	close(b.done)

	b.shutdownMu.Lock()
	b.wg.Wait()
	close(b.queue)
	b.shutdownMu.Unlock()

	// run() observes the closed queue, flushes whatever remains, and
	// returns; wg.Wait() above already guarantees every accepted op has
	// been handed to the queue, so waiting on workerExited is sufficient.
	<-b.workerExited
	close(b.errorQueue)

	atomic.StoreInt32(&b.state, int32(Stopped))
	return nil
}

// Stats returns best-effort counters for observability.
type Stats struct {
	Writes  uint64
	Deletes uint64
	Errors  uint64
}

func (b *Batcher) Stats() Stats {
	return Stats{
		Writes:  b.writes.Load(),
		Deletes: b.deletes.Load(),
		Errors:  b.errors.Load(),
	}
}

// Copyright (c) 2013-2016 The btcsuite developers
// Copyright (c) 2015-2021 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package confidence

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/exccoin/spvpeer/chaincfg/chainhash"
)

// shardCount is the number of independent shards the table's records
// are spread across, each behind its own mutex, so a hot record in one
// shard never blocks lookups into another (spec.md §5: "ConfidenceTable
// uses a sharded map; each record has its own mutex guarding state
// transitions").
const shardCount = 16

type shard struct {
	mtx     sync.Mutex
	records map[chainhash.Hash]*Record
}

// Table is the process-wide ConfidenceTable. The zero value is not
// usable; construct one with New.
type Table struct {
	shards  [shardCount]*shard
	nextSub uint64

	stopSweep chan struct{}
	sweepOnce sync.Once
}

// New returns an empty Table.
func New() *Table {
	t := &Table{stopSweep: make(chan struct{})}
	for i := range t.shards {
		t.shards[i] = &shard{records: make(map[chainhash.Hash]*Record)}
	}
	return t
}

func (t *Table) shardFor(hash chainhash.Hash) *shard {
	return t.shards[hash[0]%shardCount]
}

// lookupOrCreate returns the record for hash, creating an unpinned one
// if none exists yet.
func (t *Table) lookupOrCreate(hash chainhash.Hash) *Record {
	s := t.shardFor(hash)
	s.mtx.Lock()
	defer s.mtx.Unlock()

	r, ok := s.records[hash]
	if !ok {
		r = &Record{hash: hash}
		s.records[hash] = r
	}
	return r
}

// Lookup returns the record for hash without pinning it, or nil if the
// table has no record for that hash (e.g. it was swept after its last
// observer released).
func (t *Table) Lookup(hash chainhash.Hash) *Record {
	s := t.shardFor(hash)
	s.mtx.Lock()
	defer s.mtx.Unlock()
	return s.records[hash]
}

// GetOrCreate returns the record for txHash, creating an unpinned one
// if this is the first time the table has heard of it. Callers that
// only need to mutate a record (e.g. Record.MarkBroadcastBy) use this
// instead of Subscribe, which additionally pins the record.
func (t *Table) GetOrCreate(txHash chainhash.Hash) *Record {
	return t.lookupOrCreate(txHash)
}

// Handle is a reference-counted pin on a Record, taking the place of
// the source's weak reference: as long as at least one Handle is open,
// the record survives Sweep. Release must be called exactly once.
type Handle struct {
	table    *Table
	record   *Record
	subID    uint64
	released int32
}

// Record returns the pinned record.
func (h *Handle) Record() *Record { return h.record }

// Release unsubscribes the handle's listener (if any) and decrements
// the record's pin count, making it eligible for the next Sweep once
// the count reaches zero.
func (h *Handle) Release() {
	if !atomic.CompareAndSwapInt32(&h.released, 0, 1) {
		return
	}

	r := h.record
	r.mtx.Lock()
	for i, s := range r.subscribers {
		if s.id == h.subID {
			r.subscribers = append(r.subscribers[:i], r.subscribers[i+1:]...)
			break
		}
	}
	r.pinCount--
	r.mtx.Unlock()
}

// Subscribe pins the record for txHash (creating it if new) and
// registers listener to receive its change events, dispatched on
// executor. A nil executor uses a package-wide default serial executor
// shared across every subscription that omits one.
func (t *Table) Subscribe(txHash chainhash.Hash, executor Executor, listener Listener) *Handle {
	if executor == nil {
		executor = defaultExecutor()
	}

	r := t.lookupOrCreate(txHash)
	id := atomic.AddUint64(&t.nextSub, 1)

	r.mtx.Lock()
	r.pinCount++
	r.subscribers = append(r.subscribers, subscription{id: id, executor: executor, listener: listener})
	r.mtx.Unlock()

	return &Handle{table: t, record: r, subID: id}
}

var (
	defaultExecutorOnce sync.Once
	defaultExecutorInst Executor
)

func defaultExecutor() Executor {
	defaultExecutorOnce.Do(func() {
		defaultExecutorInst = NewSerialExecutor()
	})
	return defaultExecutorInst
}

// Sweep removes every record in the table with a zero pin count. It is
// normally invoked periodically by StartSweeper, but is exported so
// callers with their own scheduling loop can drive it directly.
func (t *Table) Sweep() (evicted int) {
	for _, s := range t.shards {
		s.mtx.Lock()
		for hash, r := range s.records {
			r.mtx.Lock()
			pinned := r.pinCount > 0
			r.mtx.Unlock()
			if !pinned {
				delete(s.records, hash)
				evicted++
			}
		}
		s.mtx.Unlock()
	}
	return evicted
}

// StartSweeper launches a goroutine that calls Sweep every interval
// until the returned stop func is called.
func (t *Table) StartSweeper(interval time.Duration) (stop func()) {
	ticker := time.NewTicker(interval)
	done := make(chan struct{})
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				t.Sweep()
			case <-done:
				return
			}
		}
	}()
	return func() {
		t.sweepOnce.Do(func() { close(done) })
	}
}

// Len reports the number of records currently held (pinned or not).
func (t *Table) Len() int {
	n := 0
	for _, s := range t.shards {
		s.mtx.Lock()
		n += len(s.records)
		s.mtx.Unlock()
	}
	return n
}

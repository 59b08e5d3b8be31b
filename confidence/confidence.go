// Copyright (c) 2013-2016 The btcsuite developers
// Copyright (c) 2015-2021 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package confidence implements the process-wide ConfidenceTable: a
// map from transaction hash to an InvConfidence record tracking how
// many peers have announced a transaction, whether it has appeared in
// a block, and whether it has been rejected or superseded.
//
// spec.md §9 translates the source's weak references (so a record with
// no external listener can be garbage collected) into explicit
// reference-counted handles: Subscribe pins a record for the lifetime
// of the returned Handle, and a periodic sweep evicts records whose
// pin count has dropped to zero.
package confidence

import (
	"sync"
	"time"

	"github.com/exccoin/spvpeer/chaincfg/chainhash"
	"github.com/exccoin/spvpeer/wire"
)

// Type is the confidence classification of a transaction.
type Type int

const (
	// Unknown means the table has never heard of this transaction.
	Unknown Type = iota

	// Pending means the transaction has been announced or broadcast
	// but has not appeared in a block.
	Pending

	// InConflict means a conflicting transaction spending the same
	// inputs has also been observed.
	InConflict

	// Building means the transaction has appeared in a block that is
	// part of the best chain.
	Building

	// Dead means the transaction was superseded by another transaction
	// that made it into the best chain instead.
	Dead
)

func (t Type) String() string {
	switch t {
	case Unknown:
		return "unknown"
	case Pending:
		return "pending"
	case InConflict:
		return "in-conflict"
	case Building:
		return "building"
	case Dead:
		return "dead"
	default:
		return "invalid"
	}
}

// Source identifies where a transaction was first observed.
type Source int

const (
	SourceUnknown Source = iota
	SourceNetwork
	SourceSelf
)

// ChangeReason identifies what about a record changed, so a listener
// can decide whether an update is relevant to it without recomputing
// full state.
type ChangeReason int

const (
	ReasonType ChangeReason = iota
	ReasonDepth
	ReasonSeenPeers
)

func (r ChangeReason) String() string {
	switch r {
	case ReasonType:
		return "type"
	case ReasonDepth:
		return "depth"
	case ReasonSeenPeers:
		return "seen-peers"
	default:
		return "invalid"
	}
}

// ChangeEvent describes a single observed transition of a Record.
type ChangeEvent struct {
	Hash   chainhash.Hash
	Reason ChangeReason
}

// Listener receives confidence change events for a single subscription.
// Per spec.md §5, events for a single transaction are delivered to each
// listener in happens-before order; the default Executor enforces this
// by running every submission on one goroutine.
type Listener func(ChangeEvent)

// Executor dispatches a listener callback, letting a caller preserve
// event ordering across its own UI thread or task scheduler instead of
// an arbitrary goroutine per event.
type Executor interface {
	Submit(func())
}

// serialExecutor is the package's default Executor: a single goroutine
// draining a buffered channel, guaranteeing in-order delivery without
// requiring every caller to supply one.
type serialExecutor struct {
	jobs chan func()
	once sync.Once
}

// NewSerialExecutor returns an Executor backed by one dedicated
// goroutine, matching spec.md §5's "dedicated single-threaded user
// executor" default.
func NewSerialExecutor() Executor {
	e := &serialExecutor{jobs: make(chan func(), 256)}
	go e.run()
	return e
}

func (e *serialExecutor) run() {
	for job := range e.jobs {
		job()
	}
}

func (e *serialExecutor) Submit(job func()) {
	e.jobs <- job
}

// Record is the InvConfidence record for one transaction: its
// classification, chain depth, the set of peers known to have
// announced it, and (when Dead) the overriding transaction.
//
// Invariants enforced by every mutating method:
//   - Building implies Depth >= 1 and AppearedAtHeight >= 0.
//   - Pending implies Depth == 0.
//   - Dead implies OverridingHash is non-nil.
//   - any transition into Pending or InConflict resets Depth to 0.
type Record struct {
	mtx sync.Mutex

	hash chainhash.Hash

	typ              Type
	depth            int32
	appearedAtHeight int32
	source           Source
	lastBroadcast    time.Time
	overridingHash   *chainhash.Hash

	announcedBy map[string]struct{}

	pinCount    int32
	subscribers []subscription
}

type subscription struct {
	id       uint64
	executor Executor
	listener Listener
}

// Hash returns the transaction hash this record tracks.
func (r *Record) Hash() chainhash.Hash {
	return r.hash
}

// Type returns the record's current classification.
func (r *Record) Type() Type {
	r.mtx.Lock()
	defer r.mtx.Unlock()
	return r.typ
}

// Depth returns the record's depth in the best chain (0 unless Building).
func (r *Record) Depth() int32 {
	r.mtx.Lock()
	defer r.mtx.Unlock()
	return r.depth
}

// Source returns where the transaction was first observed.
func (r *Record) Source() Source {
	r.mtx.Lock()
	defer r.mtx.Unlock()
	return r.source
}

// OverridingHash returns the transaction that superseded this one, and
// whether one is recorded (only possible when Type is Dead).
func (r *Record) OverridingHash() (chainhash.Hash, bool) {
	r.mtx.Lock()
	defer r.mtx.Unlock()
	if r.overridingHash == nil {
		return chainhash.Hash{}, false
	}
	return *r.overridingHash, true
}

// AppearedAtHeight returns the height a Building record first appeared
// at, and whether that field is set.
func (r *Record) AppearedAtHeight() (int32, bool) {
	r.mtx.Lock()
	defer r.mtx.Unlock()
	if r.typ != Building {
		return 0, false
	}
	return r.appearedAtHeight, true
}

// NumBroadcastPeers returns the number of distinct peers that have
// announced this transaction, per spec.md §8's testable property
// confidence.numBroadcastPeers() = p for p distinct announcing peers.
func (r *Record) NumBroadcastPeers() int {
	r.mtx.Lock()
	defer r.mtx.Unlock()
	return len(r.announcedBy)
}

// AnnouncingPeers returns a snapshot of the addresses known to have
// announced this transaction.
func (r *Record) AnnouncingPeers() []string {
	r.mtx.Lock()
	defer r.mtx.Unlock()
	out := make([]string, 0, len(r.announcedBy))
	for addr := range r.announcedBy {
		out = append(out, addr)
	}
	return out
}

// fire delivers ev to every subscriber via its executor. Must be called
// with r.mtx unlocked.
func (r *Record) fire(ev ChangeEvent) {
	r.mtx.Lock()
	subs := make([]subscription, len(r.subscribers))
	copy(subs, r.subscribers)
	r.mtx.Unlock()

	for _, s := range subs {
		listener := s.listener
		s.executor.Submit(func() { listener(ev) })
	}
}

// MarkBroadcastBy idempotently records that peer announced this
// transaction via an inv or sent it directly. If this is the first
// announcement and the record was Unknown, it transitions to Pending.
func (r *Record) MarkBroadcastBy(peer wire.NetAddress) {
	key := peer.IP.String() + ":" + portString(peer.Port)

	r.mtx.Lock()
	if r.announcedBy == nil {
		r.announcedBy = make(map[string]struct{})
	}
	_, already := r.announcedBy[key]
	if !already {
		r.announcedBy[key] = struct{}{}
	}
	wasUnknown := r.typ == Unknown
	if wasUnknown {
		r.typ = Pending
		r.depth = 0
	}
	r.lastBroadcast = time.Now()
	r.mtx.Unlock()

	if !already {
		r.fire(ChangeEvent{Hash: r.hash, Reason: ReasonSeenPeers})
	}
	if wasUnknown {
		r.fire(ChangeEvent{Hash: r.hash, Reason: ReasonType})
	}
}

// SetPending marks the record Pending from SELF (a locally-originated
// broadcast) or NETWORK (received from a peer), resetting depth to 0.
func (r *Record) SetPending(source Source) {
	r.mtx.Lock()
	changed := r.typ != Pending
	r.typ = Pending
	r.depth = 0
	r.source = source
	r.mtx.Unlock()

	if changed {
		r.fire(ChangeEvent{Hash: r.hash, Reason: ReasonType})
	}
}

// MarkInConflict marks the record InConflict, resetting depth to 0.
func (r *Record) MarkInConflict() {
	r.mtx.Lock()
	changed := r.typ != InConflict
	r.typ = InConflict
	r.depth = 0
	r.mtx.Unlock()

	if changed {
		r.fire(ChangeEvent{Hash: r.hash, Reason: ReasonType})
	}
}

// MarkBuilding marks the record Building at the given chain depth and
// the height the transaction's block first appeared at. depth must be
// >= 1 per the type's invariant; a depth < 1 is coerced to 1.
func (r *Record) MarkBuilding(depth int32, appearedAtHeight int32) {
	if depth < 1 {
		depth = 1
	}

	r.mtx.Lock()
	typeChanged := r.typ != Building
	depthChanged := r.depth != depth
	r.typ = Building
	r.depth = depth
	r.appearedAtHeight = appearedAtHeight
	r.mtx.Unlock()

	if typeChanged {
		r.fire(ChangeEvent{Hash: r.hash, Reason: ReasonType})
	} else if depthChanged {
		r.fire(ChangeEvent{Hash: r.hash, Reason: ReasonDepth})
	}
}

// MarkDead marks the record Dead, recording the transaction that
// overrode it (a reorg or conflicting spend that won out).
func (r *Record) MarkDead(overridingHash chainhash.Hash) {
	r.mtx.Lock()
	changed := r.typ != Dead
	r.typ = Dead
	r.overridingHash = &overridingHash
	r.mtx.Unlock()

	if changed {
		r.fire(ChangeEvent{Hash: r.hash, Reason: ReasonType})
	}
}

func portString(port uint16) string {
	const digits = "0123456789"
	if port == 0 {
		return "0"
	}
	var buf [5]byte
	i := len(buf)
	for port > 0 {
		i--
		buf[i] = digits[port%10]
		port /= 10
	}
	return string(buf[i:])
}

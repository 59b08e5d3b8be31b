// Copyright (c) 2013-2016 The btcsuite developers
// Copyright (c) 2015-2021 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package addrmgr maintains the set of candidate peer addresses a
// PeerGroup draws connections from, each gated by its own exponential
// backoff.
package addrmgr

import (
	"container/heap"
	"sync"
	"time"

	"github.com/decred/slog"

	"github.com/exccoin/spvpeer/wire"
)

// log is the package-level logger. Callers wire in a real backend with
// UseLogger; by default nothing is logged.
var log = slog.Disabled

// UseLogger sets the package-wide logger used by this package.
func UseLogger(logger slog.Logger) { log = logger }

const (
	// initialBackoff is the delay before the first retry of a fresh
	// address.
	initialBackoff = 1 * time.Second

	// backoffFactor is the multiplier applied to an address's backoff
	// after each failed attempt.
	backoffFactor = 1.5

	// maxBackoff caps a single address's backoff delay.
	maxBackoff = 10 * time.Minute

	// groupInitialBackoff and groupMaxBackoff govern the shorter,
	// systemic backoff applied to an entire address group (e.g. when
	// DNS resolution itself is failing) rather than a single address.
	groupInitialBackoff = 1 * time.Second
	groupMaxBackoff     = 2 * time.Minute
)

// key identifies an address by (IP, port) for de-duplication.
type key struct {
	ip   string
	port uint16
}

func keyOf(addr *wire.NetAddress) key {
	return key{ip: addr.IP.String(), port: addr.Port}
}

// entry is a single candidate address together with its backoff state
// and queue position. It is never exposed outside the package; callers
// only see wire.NetAddress values.
type entry struct {
	addr        *wire.NetAddress
	backoff     time.Duration
	nextRetry   time.Time
	connected   bool
	index       int // heap.Interface bookkeeping
}

// addrHeap is a min-heap over entry.nextRetry.
type addrHeap []*entry

func (h addrHeap) Len() int            { return len(h) }
func (h addrHeap) Less(i, j int) bool  { return h[i].nextRetry.Before(h[j].nextRetry) }
func (h addrHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i]; h[i].index = i; h[j].index = j }
func (h *addrHeap) Push(x interface{}) {
	e := x.(*entry)
	e.index = len(*h)
	*h = append(*h, e)
}
func (h *addrHeap) Pop() interface{} {
	old := *h
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	e.index = -1
	*h = old[:n-1]
	return e
}

// AddressBook is a priority queue of candidate addresses ordered by
// their next-eligible retry instant, with per-address exponential
// backoff and a process-wide IPv6 deactivation latch.
type AddressBook struct {
	mtx sync.Mutex

	byKey map[key]*entry
	queue addrHeap

	groupBackoff   time.Duration
	groupNextRetry time.Time

	ipv6Disabled bool
}

// New returns an empty AddressBook.
func New() *AddressBook {
	return &AddressBook{
		byKey:        make(map[key]*entry),
		queue:        make(addrHeap, 0, 64),
		groupBackoff: groupInitialBackoff,
	}
}

// AddAddress inserts addr if it is not already known and is not
// currently connected. IPv6 addresses are silently dropped once the
// process-wide IPv6 deactivation latch has tripped.
func (a *AddressBook) AddAddress(addr *wire.NetAddress) {
	a.mtx.Lock()
	defer a.mtx.Unlock()

	if a.ipv6Disabled && addr.IP.To4() == nil {
		return
	}

	k := keyOf(addr)
	if _, exists := a.byKey[k]; exists {
		return
	}

	e := &entry{
		addr:      addr,
		backoff:   initialBackoff,
		nextRetry: time.Now(),
	}
	a.byKey[k] = e
	heap.Push(&a.queue, e)
}

// NextAddress pops and returns the candidate address with the earliest
// eligible retry instant, or nil if none is eligible yet (or the book
// is empty). The returned address is marked connected and removed from
// the retry queue; call Disconnected or Failed to return it to
// circulation. IPv6 addresses seeded before the deactivation latch
// tripped are evicted rather than returned.
func (a *AddressBook) NextAddress(now time.Time) *wire.NetAddress {
	a.mtx.Lock()
	defer a.mtx.Unlock()

	if now.Before(a.groupNextRetry) {
		return nil
	}

	for len(a.queue) > 0 {
		top := a.queue[0]
		if a.ipv6Disabled && top.addr.IP.To4() == nil {
			heap.Pop(&a.queue)
			delete(a.byKey, keyOf(top.addr))
			continue
		}
		if now.Before(top.nextRetry) {
			return nil
		}

		e := heap.Pop(&a.queue).(*entry)
		e.connected = true
		return e.addr
	}
	return nil
}

// Connected reports a successful connection to addr, resetting its
// backoff and the group-wide backoff, and withholding it from the
// retry queue while connected (the book MUST never re-insert a
// currently-connected address).
func (a *AddressBook) Connected(addr *wire.NetAddress) {
	a.mtx.Lock()
	defer a.mtx.Unlock()

	a.groupBackoff = groupInitialBackoff
	a.groupNextRetry = time.Time{}

	e, ok := a.byKey[keyOf(addr)]
	if !ok {
		return
	}
	e.backoff = initialBackoff
	e.connected = true
}

// Disconnected re-inserts addr into the retry queue at its
// current (already-reset, since Connected succeeded) backoff.
func (a *AddressBook) Disconnected(addr *wire.NetAddress) {
	a.mtx.Lock()
	defer a.mtx.Unlock()

	e, ok := a.byKey[keyOf(addr)]
	if !ok {
		e = &entry{addr: addr, backoff: initialBackoff, index: -1}
		a.byKey[keyOf(addr)] = e
	}
	e.connected = false
	e.nextRetry = time.Now().Add(e.backoff)
	a.requeue(e)
}

// requeue places e at its nextRetry position: a fresh heap insert when
// it is not currently queued, a sift otherwise (an entry can still be
// queued when a failure is reported against it, e.g. a dial raced a
// concurrent backoff update).
func (a *AddressBook) requeue(e *entry) {
	if e.index >= 0 {
		heap.Fix(&a.queue, e.index)
		return
	}
	heap.Push(&a.queue, e)
}

// Failed records a failed connection attempt against addr, multiplying
// its backoff (capped at maxBackoff) and re-queuing it. isNoRouteToHost
// should be set when the failure was specifically "no route to host"
// so IPv6 deactivation can be triggered per the package's contract.
// Once the latch has tripped, an IPv6 address is evicted outright
// instead of backed off: all subsequent IPv6 attempts are skipped for
// the lifetime of the group, including the address that tripped it.
func (a *AddressBook) Failed(addr *wire.NetAddress, isNoRouteToHost bool) {
	a.mtx.Lock()
	defer a.mtx.Unlock()

	if isNoRouteToHost && addr.IP.To4() == nil && !a.ipv6Disabled {
		a.ipv6Disabled = true
		log.Warnf("disabling IPv6 peer discovery after no-route-to-host from %s", addr.IP)
	}

	e, ok := a.byKey[keyOf(addr)]
	if a.ipv6Disabled && addr.IP.To4() == nil {
		if ok {
			if e.index >= 0 {
				heap.Remove(&a.queue, e.index)
			}
			delete(a.byKey, keyOf(addr))
		}
		return
	}

	if !ok {
		e = &entry{addr: addr, backoff: initialBackoff, index: -1}
		a.byKey[keyOf(addr)] = e
	}
	e.connected = false
	e.backoff = nextBackoff(e.backoff, maxBackoff)
	e.nextRetry = time.Now().Add(e.backoff)
	a.requeue(e)
}

// FailGroup records a systemic failure (e.g. DNS seed unreachable) not
// attributable to any single address, multiplying the group-wide
// backoff.
func (a *AddressBook) FailGroup() {
	a.mtx.Lock()
	defer a.mtx.Unlock()

	a.groupBackoff = nextBackoff(a.groupBackoff, groupMaxBackoff)
	a.groupNextRetry = time.Now().Add(a.groupBackoff)
}

// IPv6Disabled reports whether the process-wide IPv6 deactivation latch
// has tripped.
func (a *AddressBook) IPv6Disabled() bool {
	a.mtx.Lock()
	defer a.mtx.Unlock()
	return a.ipv6Disabled
}

// Len returns the number of addresses currently known (connected or
// queued).
func (a *AddressBook) Len() int {
	a.mtx.Lock()
	defer a.mtx.Unlock()
	return len(a.byKey)
}

func nextBackoff(cur, max time.Duration) time.Duration {
	next := time.Duration(float64(cur) * backoffFactor)
	if next > max {
		return max
	}
	if next <= 0 {
		return max
	}
	return next
}

// Copyright (c) 2013-2016 The btcsuite developers
// Copyright (c) 2015-2021 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package peergroup

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/exccoin/spvpeer/chaincfg/chainhash"
	"github.com/exccoin/spvpeer/confidence"
	"github.com/exccoin/spvpeer/peer"
	"github.com/exccoin/spvpeer/wire"
)

// RejectPolicy selects how a TransactionBroadcast reacts to reject
// messages, resolving spec.md §9's open question in favor of the
// threshold variant by default while keeping the stricter one
// available to callers that want it.
type RejectPolicy int

const (
	// RejectThreshold fails the broadcast only once rejects accumulate
	// from more than half of the N peers it is waiting to hear from.
	// This is §4.7's default: robust against a single malicious or
	// confused peer.
	RejectThreshold RejectPolicy = iota

	// RejectAny fails the broadcast on the first reject observed from
	// any of the peers it sent the transaction to.
	RejectAny
)

// BroadcastConfig parametrizes a single TransactionBroadcast attempt.
type BroadcastConfig struct {
	// MinPeers is the minimum number of connected peers required before
	// fan-out begins (spec.md §4.7 step 1).
	MinPeers int

	// DropPeersAfter, if true, disconnects each peer the transaction was
	// sent to one second after sending (spec.md §4.7 step 5).
	DropPeersAfter bool

	// Timeout bounds the whole attempt; zero selects a default.
	Timeout time.Duration

	// Policy selects the reject-handling behavior; zero value is
	// RejectThreshold.
	Policy RejectPolicy

	// Rand supplies the peer shuffle used to select the K fan-out
	// peers; nil uses a time-seeded source. Tests pass a seeded Rand
	// for deterministic peer selection.
	Rand *rand.Rand

	// Progress, if non-nil, is called on every change to the
	// announcing-peer count or mined status with a value in [0, 1]
	// (spec.md §4.7's progress callback).
	Progress func(float64)
}

func (c BroadcastConfig) timeout() time.Duration {
	if c.Timeout > 0 {
		return c.Timeout
	}
	return 60 * time.Second
}

func (c BroadcastConfig) minPeers() int {
	if c.MinPeers > 0 {
		return c.MinPeers
	}
	return 1
}

// BroadcastResult is what a successful TransactionBroadcast resolves
// with: the transaction and the peers known to have announced it back
// at the moment of success.
type BroadcastResult struct {
	Tx              *wire.MsgTx
	AnnouncingPeers []string
}

// RejectedError is returned when a broadcast fails because enough
// peers rejected the transaction (per the attempt's RejectPolicy).
type RejectedError struct {
	Reason *wire.MsgReject
}

func (e *RejectedError) Error() string {
	return fmt.Sprintf("peergroup: transaction rejected: %s: %s", e.Reason.Code, e.Reason.Reason)
}

// TimeoutError is returned when a broadcast's deadline elapses before
// enough peers confirmed seeing the transaction.
type TimeoutError struct {
	SendCount  int
	RelayCount int
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("peergroup: broadcast timed out: sent to %d peers, seen by %d",
		e.SendCount, e.RelayCount)
}

// ErrInsufficientPeers is returned when fewer than MinPeers peers are
// connected at the moment fan-out would begin (a race with WaitForPeers
// succeeding and a peer disconnecting before snapshot).
var ErrInsufficientPeers = errors.New("peergroup: insufficient connected peers for broadcast")

// BroadcastTransaction implements spec.md §4.7: it waits for enough
// connected peers, fans the transaction out to a randomly chosen
// majority of them, and resolves once enough of the remainder announce
// having seen it (or the transaction is observed mined), fails on a
// reject threshold, or times out.
func (pg *PeerGroup) BroadcastTransaction(ctx context.Context, tx *wire.MsgTx, cfg BroadcastConfig) (*BroadcastResult, error) {
	if err := pg.WaitForPeers(ctx, cfg.minPeers(), 0); err != nil {
		return nil, err
	}

	hash := tx.TxHash()
	rec := pg.confidence.GetOrCreate(hash)
	// A rebroadcast of a transaction already observed mined must not
	// move its record backward: Building only reverts on a chain
	// reorganization, never on a resend.
	if rec.Type() != confidence.Building {
		rec.SetPending(confidence.SourceSelf)
	}

	peers := pg.snapshotConnectedPeers()
	s := len(peers)
	if s < cfg.minPeers() {
		return nil, ErrInsufficientPeers
	}

	k := (s + 1) / 2 // ceil(s/2)
	if k < 1 {
		k = 1
	}
	n := (s - k + 1) / 2 // ceil((s-k)/2)

	r := cfg.Rand
	if r == nil {
		r = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	shuffled := make([]*peer.Peer, s)
	copy(shuffled, peers)
	r.Shuffle(len(shuffled), func(i, j int) { shuffled[i], shuffled[j] = shuffled[j], shuffled[i] })
	chosen := shuffled[:k]

	sendCount := 0
	for _, p := range chosen {
		if err := p.QueueMessage(tx); err != nil {
			continue
		}
		sendCount++
		if cfg.DropPeersAfter {
			dp := p
			time.AfterFunc(time.Second, dp.Disconnect)
		}
	}

	b := &broadcastWait{
		pg:   pg,
		rec:  rec,
		n:    n,
		cfg:  cfg,
		hash: hash,
	}
	return b.wait(ctx, tx, sendCount)
}

// snapshotConnectedPeers returns the currently connected peers, without
// holding the lock across any of the broadcast's subsequent work.
func (pg *PeerGroup) snapshotConnectedPeers() []*peer.Peer {
	pg.mtx.Lock()
	defer pg.mtx.Unlock()
	peers := make([]*peer.Peer, 0, len(pg.connected))
	for _, p := range pg.connected {
		peers = append(peers, p)
	}
	return peers
}

// broadcastWait holds the mutable state of one in-flight broadcast's
// wait loop, split out from BroadcastTransaction so the fan-out and the
// wait can be tested independently.
type broadcastWait struct {
	pg   *PeerGroup
	rec  *confidence.Record
	n    int
	cfg  BroadcastConfig
	hash chainhash.Hash

	mtx         sync.Mutex
	rejectCount int
	firstReject *wire.MsgReject
}

func (b *broadcastWait) wait(ctx context.Context, tx *wire.MsgTx, sendCount int) (*BroadcastResult, error) {
	changed := make(chan struct{}, 1)
	notify := func() {
		select {
		case changed <- struct{}{}:
		default:
		}
	}

	handle := b.pg.confidence.Subscribe(b.hash, nil, func(confidence.ChangeEvent) { notify() })
	defer handle.Release()

	rejected := make(chan struct{}, 1)
	unregister := b.pg.onRejectListener(b.hash, func(msg *wire.MsgReject) {
		b.mtx.Lock()
		b.rejectCount++
		if b.firstReject == nil {
			b.firstReject = msg
		}
		count := b.rejectCount
		b.mtx.Unlock()

		if b.cfg.Policy == RejectAny || (b.n > 0 && count*2 > b.n) {
			select {
			case rejected <- struct{}{}:
			default:
			}
		}
	})
	defer unregister()

	b.reportProgress()
	if res, ok := b.check(tx); ok {
		return res, nil
	}

	timer := time.NewTimer(b.cfg.timeout())
	defer timer.Stop()

	for {
		select {
		case <-changed:
			b.reportProgress()
			if res, ok := b.check(tx); ok {
				return res, nil
			}
		case <-rejected:
			b.mtx.Lock()
			reason := b.firstReject
			b.mtx.Unlock()
			return nil, &RejectedError{Reason: reason}
		case <-timer.C:
			return nil, &TimeoutError{SendCount: sendCount, RelayCount: b.rec.NumBroadcastPeers()}
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-b.pg.groupDone():
			return nil, ErrCancelled
		}
	}
}

// check reports whether the broadcast has succeeded: the announcing
// set has reached N, or the transaction has been observed mined
// (Building), per spec.md §4.7 step 6.
func (b *broadcastWait) check(tx *wire.MsgTx) (*BroadcastResult, bool) {
	mined := b.rec.Type() == confidence.Building
	if mined || b.rec.NumBroadcastPeers() >= b.n {
		return &BroadcastResult{Tx: tx, AnnouncingPeers: b.rec.AnnouncingPeers()}, true
	}
	return nil, false
}

// reportProgress computes spec.md §4.7's progress = min(1, mined ? 1 :
// seen/N) and invokes the caller's callback, if any.
func (b *broadcastWait) reportProgress() {
	if b.cfg.Progress == nil {
		return
	}
	if b.rec.Type() == confidence.Building {
		b.cfg.Progress(1.0)
		return
	}
	if b.n <= 0 {
		b.cfg.Progress(1.0)
		return
	}
	progress := float64(b.rec.NumBroadcastPeers()) / float64(b.n)
	if progress > 1.0 {
		progress = 1.0
	}
	b.cfg.Progress(progress)
}

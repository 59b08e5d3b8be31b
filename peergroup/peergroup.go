// Copyright (c) 2013-2016 The btcsuite developers
// Copyright (c) 2015-2021 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package peergroup implements the PeerGroup orchestrator: address
// discovery and connection maintenance, download-peer election,
// Bloom-filter recalculation and distribution, and transaction
// broadcast. A single manager goroutine drains a job queue so no
// caller-facing operation ever blocks on peer I/O directly.
package peergroup

import (
	"context"
	"errors"
	"net"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/decred/slog"
	"golang.org/x/sync/errgroup"

	"github.com/exccoin/spvpeer/addrmgr"
	"github.com/exccoin/spvpeer/bloom"
	"github.com/exccoin/spvpeer/chaincfg"
	"github.com/exccoin/spvpeer/chaincfg/chainhash"
	"github.com/exccoin/spvpeer/confidence"
	"github.com/exccoin/spvpeer/connmgr"
	"github.com/exccoin/spvpeer/headerchain"
	"github.com/exccoin/spvpeer/peer"
	"github.com/exccoin/spvpeer/wire"
)

var log = slog.Disabled

// UseLogger sets the package-wide logger used by this package.
func UseLogger(logger slog.Logger) { log = logger }

// ErrCancelled is returned by any pending future (BroadcastTransaction,
// WaitForPeers) when Stop is called before it resolves.
var ErrCancelled = errors.New("peergroup: cancelled by Stop")

// preferredVersion is the protocol version PeerGroup prefers a download
// peer to speak: the first version filter-based SPV download is
// expected to work reliably at.
const preferredVersion = wire.BIP0037Version

// localhostDialTimeout bounds the Localhost preference's blocking probe
// connect, so a closed local port never delays the first discovery
// round beyond a brief instant.
const localhostDialTimeout = 250 * time.Millisecond

// Config parametrizes a PeerGroup.
type Config struct {
	ChainParams       *chaincfg.Params
	Connector         connmgr.Connector
	AddressBook       *addrmgr.AddressBook
	Chain             *headerchain.Chain
	MaxConnections    int
	LocalhostPort     string // e.g. "8333"; empty disables the localhost preference
	PeerConfig        peer.Config
	MaxFPRateIncrease float64

	// Confidence is the process-wide ConfidenceTable this group feeds
	// tx/inv/reject observations into. A nil value gets a fresh table,
	// since spec.md §3 assigns PeerGroup exclusive ownership of it.
	Confidence *confidence.Table

	// GetDataRateLimit/GetDataBurst bound how many unsolicited getdata
	// requests PeerGroup issues per second in response to tx invs for
	// unknown transactions (spec.md §4.3: "subject to rate limits").
	// Zero selects a small default.
	GetDataRateLimit float64
	GetDataBurst     float64
}

func (cfg *Config) maxFPRateIncrease() float64 {
	if cfg.MaxFPRateIncrease > 0 {
		return cfg.MaxFPRateIncrease
	}
	return 2.0
}

type jobKind int

const (
	jobConnectOne jobKind = iota
	jobRecalcSendIfChanged
	jobRecalcForceSend
	jobFunc
)

type job struct {
	kind jobKind
	fn   func()
}

// PeerGroup orchestrates a pool of Peer connections.
type PeerGroup struct {
	cfg Config

	mtx             sync.Mutex
	targetConns     int
	connected       map[uint64]*peer.Peer
	pending         int
	downloadPeer    *peer.Peer
	localhostPinned bool

	merger     *bloom.FilterMerger
	confidence *confidence.Table

	rejectMtx       sync.Mutex
	rejectListeners map[chainhash.Hash][]rejectSub
	nextRejectID    uint64

	getDataLimiter *rateLimiter

	jobs                  chan job
	queuedRecalcIfChanged bool
	queuedRecalcForce     bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	eg     *errgroup.Group

	startOnce sync.Once
	stopOnce  sync.Once

	blockChainDownloadStarted bool
	blockChainListener        func(height int32)
}

// New returns a PeerGroup that has not yet been started.
func New(cfg Config) *PeerGroup {
	if cfg.MaxConnections <= 0 {
		cfg.MaxConnections = 8
	}
	if cfg.Confidence == nil {
		cfg.Confidence = confidence.New()
	}
	limit := cfg.GetDataRateLimit
	if limit <= 0 {
		limit = 32
	}
	burst := cfg.GetDataBurst
	if burst <= 0 {
		burst = 64
	}
	pg := &PeerGroup{
		cfg:             cfg,
		targetConns:     cfg.MaxConnections,
		connected:       make(map[uint64]*peer.Peer),
		merger:          bloom.NewFilterMerger(0),
		confidence:      cfg.Confidence,
		rejectListeners: make(map[chainhash.Hash][]rejectSub),
		getDataLimiter:  newRateLimiter(burst, limit),
		jobs:            make(chan job, 64),
	}
	return pg
}

// Confidence returns the ConfidenceTable this group feeds tx/inv/reject
// observations into, so callers (e.g. a wallet) can subscribe to a
// transaction's confidence independently of a broadcast.
func (pg *PeerGroup) Confidence() *confidence.Table { return pg.confidence }

// AddFilterProvider registers a FilterProvider with the group's
// FilterMerger, as spec.md §4.6.
func (pg *PeerGroup) AddFilterProvider(p bloom.FilterProvider) {
	pg.merger.AddProvider(p)
}

// Start begins discovery and connection maintenance. Calling Start more
// than once on an already-running group is a no-op.
func (pg *PeerGroup) Start() {
	pg.startOnce.Do(func() {
		pg.ctx, pg.cancel = context.WithCancel(context.Background())
		eg, ctx := errgroup.WithContext(pg.ctx)
		pg.eg = eg
		pg.ctx = ctx

		pg.tryLocalhostPreference()

		pg.wg.Add(1)
		go pg.managerLoop()

		pg.enqueue(job{kind: jobConnectOne})
	})
}

// Stop initiates a graceful shutdown: discovery stops, every connected
// peer is closed, and Stop returns once all peers have reached Closed.
func (pg *PeerGroup) Stop() {
	pg.stopOnce.Do(func() {
		if pg.cancel != nil {
			pg.cancel()
		}
		close(pg.jobs)

		pg.mtx.Lock()
		peers := make([]*peer.Peer, 0, len(pg.connected))
		for _, p := range pg.connected {
			peers = append(peers, p)
		}
		pg.mtx.Unlock()

		for _, p := range peers {
			p.Disconnect()
		}

		if pg.eg != nil {
			_ = pg.eg.Wait()
		}
		pg.wg.Wait()
	})
}

// SetMaxConnections updates the target connection count. If the
// current connected count exceeds n, the oldest excess connections are
// closed; if below, new connects are scheduled.
func (pg *PeerGroup) SetMaxConnections(n int) {
	if n <= 0 {
		n = 1
	}

	pg.mtx.Lock()
	pg.targetConns = n
	excess := len(pg.connected) - n
	var toClose []*peer.Peer
	if excess > 0 {
		ids := make([]uint64, 0, len(pg.connected))
		for id := range pg.connected {
			ids = append(ids, id)
		}
		sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
		for _, id := range ids[:excess] {
			toClose = append(toClose, pg.connected[id])
		}
	}
	pg.mtx.Unlock()

	for _, p := range toClose {
		p.Disconnect()
	}
	pg.enqueue(job{kind: jobConnectOne})
}

// WaitForPeers blocks (honoring ctx) until at least n connected peers
// with protocol version >= minVersion exist.
func (pg *PeerGroup) WaitForPeers(ctx context.Context, n int, minVersion uint32) error {
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()

	for {
		if pg.countPeersAtLeast(minVersion) >= n {
			return nil
		}
		select {
		case <-ticker.C:
		case <-ctx.Done():
			return ctx.Err()
		case <-pg.groupDone():
			return ErrCancelled
		}
	}
}

func (pg *PeerGroup) groupDone() <-chan struct{} {
	if pg.ctx == nil {
		return nil
	}
	return pg.ctx.Done()
}

func (pg *PeerGroup) countPeersAtLeast(minVersion uint32) int {
	pg.mtx.Lock()
	defer pg.mtx.Unlock()
	n := 0
	for _, p := range pg.connected {
		if p.ProtocolVersion() >= minVersion {
			n++
		}
	}
	return n
}

// RecalculateFilterMode selects whether a recalculation is broadcast
// unconditionally, only if the result differs, or never sent.
type RecalculateFilterMode int

const (
	SendIfChanged RecalculateFilterMode = iota
	ForceSend
	DontSend
)

// RecalculateFilter recomputes the merged Bloom filter and, per mode,
// enqueues a send to every connected peer. Multiple calls from the
// same event burst coalesce to at most one job of each kind in flight.
func (pg *PeerGroup) RecalculateFilter(mode RecalculateFilterMode) {
	switch mode {
	case ForceSend:
		pg.mtx.Lock()
		already := pg.queuedRecalcForce
		pg.queuedRecalcForce = true
		pg.mtx.Unlock()
		if !already {
			pg.enqueue(job{kind: jobRecalcForceSend})
		}
	case SendIfChanged:
		pg.mtx.Lock()
		already := pg.queuedRecalcIfChanged
		pg.queuedRecalcIfChanged = true
		pg.mtx.Unlock()
		if !already {
			pg.enqueue(job{kind: jobRecalcSendIfChanged})
		}
	case DontSend:
		pg.merger.Recalculate(bloom.ReuseTweak)
	}
}

// StartBlockChainDownload arms header/filtered-block download against
// the current or next-elected download peer; idempotent.
func (pg *PeerGroup) StartBlockChainDownload(listener func(height int32)) {
	pg.mtx.Lock()
	if pg.blockChainDownloadStarted {
		pg.mtx.Unlock()
		return
	}
	pg.blockChainDownloadStarted = true
	pg.blockChainListener = listener
	dp := pg.downloadPeer
	pg.mtx.Unlock()

	if dp != nil {
		pg.armDownloadPeer(dp)
	}
}

func (pg *PeerGroup) armDownloadPeer(p *peer.Peer) {
	if pg.cfg.Chain == nil {
		return
	}
	p.SetChain(pg.cfg.Chain)
	if state := pg.merger.LastState(); state.EarliestKeyTime > 0 {
		p.SetFastCatchupTime(state.EarliestKeyTime)
	}
	_ = p.RequestHeaders()
}

func (pg *PeerGroup) enqueue(j job) {
	select {
	case pg.jobs <- j:
	default:
		// The manager loop re-enqueues connect-one itself whenever the
		// target isn't met, so a full queue here just means one is
		// already pending; dropping this one is harmless.
	}
}

func (pg *PeerGroup) tryLocalhostPreference() {
	if pg.cfg.LocalhostPort == "" {
		return
	}
	conn, err := net.DialTimeout("tcp", net.JoinHostPort("127.0.0.1", pg.cfg.LocalhostPort), localhostDialTimeout)
	if err != nil {
		return
	}
	conn.Close()

	pg.mtx.Lock()
	pg.targetConns = 1
	pg.localhostPinned = true
	pg.mtx.Unlock()
}

// rejectSub is one registered listener for reject messages naming a
// specific transaction hash, used by a TransactionBroadcast to observe
// rejects without every broadcast polling every peer's messages.
type rejectSub struct {
	id uint64
	fn func(*wire.MsgReject)
}

// onRejectListener registers fn to be called whenever a connected peer
// sends a "tx" reject naming hash. The returned func unregisters it;
// callers must call it exactly once to avoid leaking the subscription.
func (pg *PeerGroup) onRejectListener(hash chainhash.Hash, fn func(*wire.MsgReject)) (unregister func()) {
	id := atomic.AddUint64(&pg.nextRejectID, 1)

	pg.rejectMtx.Lock()
	pg.rejectListeners[hash] = append(pg.rejectListeners[hash], rejectSub{id: id, fn: fn})
	pg.rejectMtx.Unlock()

	return func() {
		pg.rejectMtx.Lock()
		defer pg.rejectMtx.Unlock()
		subs := pg.rejectListeners[hash]
		for i, s := range subs {
			if s.id == id {
				pg.rejectListeners[hash] = append(subs[:i], subs[i+1:]...)
				break
			}
		}
		if len(pg.rejectListeners[hash]) == 0 {
			delete(pg.rejectListeners, hash)
		}
	}
}

// dispatchReject fans a "tx" reject out to every listener registered
// for its hash (normally zero or one, a live TransactionBroadcast).
// Non-tx rejects (e.g. block) are not routed anywhere: spec.md §4.3
// only defines broadcast-tracking behavior for tx rejects.
func (pg *PeerGroup) dispatchReject(msg *wire.MsgReject) {
	if msg.Cmd != "tx" {
		return
	}

	pg.rejectMtx.Lock()
	subs := make([]rejectSub, len(pg.rejectListeners[msg.Hash]))
	copy(subs, pg.rejectListeners[msg.Hash])
	pg.rejectMtx.Unlock()

	for _, s := range subs {
		s.fn(msg)
	}
}

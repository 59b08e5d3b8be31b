// Copyright (c) 2013-2016 The btcsuite developers
// Copyright (c) 2015-2021 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package peergroup

import (
	"context"
	"errors"
	"net"
	"strconv"
	"syscall"
	"time"

	"github.com/exccoin/spvpeer/bloom"
	"github.com/exccoin/spvpeer/confidence"
	"github.com/exccoin/spvpeer/peer"
	"github.com/exccoin/spvpeer/wire"
)

// managerLoop is PeerGroup's single dedicated task: it drains the job
// queue and never blocks on peer I/O itself, per spec.md §5's
// "manager task never blocks on peer I/O" rule.
func (pg *PeerGroup) managerLoop() {
	defer pg.wg.Done()
	for j := range pg.jobs {
		switch j.kind {
		case jobConnectOne:
			pg.handleConnectOne()
		case jobRecalcSendIfChanged:
			pg.mtx.Lock()
			pg.queuedRecalcIfChanged = false
			pg.mtx.Unlock()
			pg.handleRecalculate(false)
		case jobRecalcForceSend:
			pg.mtx.Lock()
			pg.queuedRecalcForce = false
			pg.mtx.Unlock()
			pg.handleRecalculate(true)
		case jobFunc:
			if j.fn != nil {
				j.fn()
			}
		}
	}
}

func (pg *PeerGroup) handleConnectOne() {
	pg.mtx.Lock()
	need := len(pg.connected)+pg.pending < pg.targetConns
	if need {
		pg.pending++
	}
	pg.mtx.Unlock()
	if !need {
		return
	}

	addr := pg.cfg.AddressBook.NextAddress(time.Now())
	if addr == nil {
		pg.mtx.Lock()
		pg.pending--
		pg.mtx.Unlock()
		return
	}

	pg.eg.Go(func() error {
		pg.connectAndRun(addr)
		return nil
	})
}

func (pg *PeerGroup) connectAndRun(addr *wire.NetAddress) {
	defer func() {
		pg.mtx.Lock()
		pg.pending--
		pg.mtx.Unlock()
		pg.enqueue(job{kind: jobConnectOne})
	}()

	hostPort := net.JoinHostPort(addr.IP.String(), strconv.Itoa(int(addr.Port)))

	dialCtx, cancel := context.WithTimeout(pg.ctx, 10*time.Second)
	conn, err := pg.cfg.Connector.Dial(dialCtx, hostPort)
	cancel()
	if err != nil {
		pg.cfg.AddressBook.Failed(addr, errors.Is(err, syscall.EHOSTUNREACH))
		return
	}

	cfg := pg.cfg.PeerConfig
	cfg.ChainParams = pg.cfg.ChainParams
	cfg.Listeners = pg.wrapListeners(pg.cfg.PeerConfig.Listeners)

	p := peer.NewOutboundPeer(cfg, conn, addr)
	pg.cfg.AddressBook.Connected(addr)

	reason := p.Run()

	pg.onPeerDisconnected(p, addr, reason)
}

// wrapListeners layers PeerGroup's own bookkeeping (election input,
// address-book feedback, ConfidenceTable updates, filter-health
// self-check) around whatever listeners the caller supplied, so a
// caller's OnHeaders/OnTx/etc. still fire unmodified afterward.
func (pg *PeerGroup) wrapListeners(base peer.MessageListeners) peer.MessageListeners {
	wrapped := base

	innerVerAck := base.OnVerAck
	wrapped.OnVerAck = func(p *peer.Peer) {
		pg.onPeerReady(p)
		if innerVerAck != nil {
			innerVerAck(p)
		}
	}

	innerTx := base.OnTx
	wrapped.OnTx = func(p *peer.Peer, msg *wire.MsgTx) {
		pg.onPeerTx(p, msg)
		if innerTx != nil {
			innerTx(p, msg)
		}
	}

	innerInv := base.OnInv
	wrapped.OnInv = func(p *peer.Peer, msg *wire.MsgInv) {
		pg.onPeerInv(p, msg)
		if innerInv != nil {
			innerInv(p, msg)
		}
	}

	innerHeaders := base.OnHeaders
	wrapped.OnHeaders = func(p *peer.Peer, msg *wire.MsgHeaders) {
		pg.onPeerHeaders(p, msg)
		if innerHeaders != nil {
			innerHeaders(p, msg)
		}
	}

	innerReject := base.OnReject
	wrapped.OnReject = func(p *peer.Peer, msg *wire.MsgReject) {
		pg.dispatchReject(msg)
		if innerReject != nil {
			innerReject(p, msg)
		}
	}

	innerMerkle := base.OnMerkleBlock
	wrapped.OnMerkleBlock = func(p *peer.Peer, msg *wire.MsgMerkleBlock) {
		pg.onPeerMerkleBlock(p, msg)
		if innerMerkle != nil {
			innerMerkle(p, msg)
		}
	}

	return wrapped
}

// onPeerTx updates the ConfidenceTable for every transaction a peer
// sends us, per spec.md §4.3: "Any received Tx updates ConfidenceTable:
// the announcing peer address is added to the announcing-set for that
// tx; if confidence was UNKNOWN, it becomes PENDING" (MarkBroadcastBy
// performs exactly that transition).
func (pg *PeerGroup) onPeerTx(p *peer.Peer, msg *wire.MsgTx) {
	hash := msg.TxHash()
	rec := pg.confidence.GetOrCreate(hash)
	rec.MarkBroadcastBy(peerNetAddress(p))
}

// onPeerInv requests any locally-unknown tx the peer announces,
// subject to a shared rate limit, and records the announcement against
// the ConfidenceTable the same way a directly-received Tx would.
func (pg *PeerGroup) onPeerInv(p *peer.Peer, msg *wire.MsgInv) {
	var want *wire.MsgGetData
	for _, iv := range msg.InvList {
		if iv.Type != wire.InvTypeTx {
			continue
		}

		rec := pg.confidence.GetOrCreate(iv.Hash)
		rec.MarkBroadcastBy(peerNetAddress(p))
		if rec.Type() != confidence.Unknown && rec.Type() != confidence.Pending {
			continue
		}
		if !pg.getDataLimiter.Allow() {
			continue
		}

		if want == nil {
			want = wire.NewMsgGetData()
		}
		h := iv.Hash
		_ = want.AddInvVect(wire.NewInvVect(wire.InvTypeTx, &h))
	}
	if want != nil {
		_ = p.QueueMessage(want)
	}
}

// onPeerHeaders reports header-sync progress to the listener registered
// with StartBlockChainDownload, after the peer has already extended the
// chain with the batch.
func (pg *PeerGroup) onPeerHeaders(p *peer.Peer, msg *wire.MsgHeaders) {
	pg.mtx.Lock()
	listener := pg.blockChainListener
	pg.mtx.Unlock()
	if listener == nil || pg.cfg.Chain == nil || len(msg.Headers) == 0 {
		return
	}
	listener(pg.cfg.Chain.Height())
}

// onPeerMerkleBlock promotes any tracked transaction the filtered block
// proves mined to Building (the "appears in block" completion path a
// broadcast waits on), then runs the FP-rate self-check from spec.md
// §4.6: if the currently loaded filter's estimated false-positive rate
// has drifted past MaxFPRateIncrease times the target (e.g. because the
// wallet's element count grew since the filter was last sent), a
// force_send recalculation is enqueued.
func (pg *PeerGroup) onPeerMerkleBlock(p *peer.Peer, msg *wire.MsgMerkleBlock) {
	if matches, err := bloom.ExtractMatches(msg); err == nil && len(matches) > 0 {
		height := int32(0)
		if pg.cfg.Chain != nil {
			if h, ok := pg.cfg.Chain.HeightOf(msg.Header.BlockHash()); ok {
				height = h
			} else {
				height = pg.cfg.Chain.Height()
			}
		}
		for _, m := range matches {
			if rec := pg.confidence.Lookup(*m); rec != nil {
				rec.MarkBuilding(1, height)
			}
		}
	}

	state := pg.merger.LastState()
	if state.Filter == nil || state.ElementCount == 0 {
		return
	}
	observed := bloom.EstimatedFalsePositiveRate(state.Filter, state.ElementCount)
	if observed > state.FalsePositiveRate*pg.cfg.maxFPRateIncrease() {
		pg.RecalculateFilter(ForceSend)
	}
}

func peerNetAddress(p *peer.Peer) wire.NetAddress {
	if a := p.Addr(); a != nil {
		return *a
	}
	return wire.NetAddress{}
}

func (pg *PeerGroup) onPeerReady(p *peer.Peer) {
	pg.mtx.Lock()
	pg.connected[p.ID()] = p
	localhostPinned := pg.localhostPinned
	pg.mtx.Unlock()

	// Election arms the winner itself (when download is active); a
	// non-elected peer never drives header traffic.
	if localhostPinned || pg.downloadPeerUnset() {
		pg.electDownloadPeer()
	}
}

func (pg *PeerGroup) downloadPeerUnset() bool {
	pg.mtx.Lock()
	defer pg.mtx.Unlock()
	return pg.downloadPeer == nil
}

func (pg *PeerGroup) blockChainDownloadActive() bool {
	pg.mtx.Lock()
	defer pg.mtx.Unlock()
	return pg.blockChainDownloadStarted
}

func (pg *PeerGroup) onPeerDisconnected(p *peer.Peer, addr *wire.NetAddress, reason peer.DisconnectReason) {
	pg.mtx.Lock()
	delete(pg.connected, p.ID())
	wasDownload := pg.downloadPeer == p
	if wasDownload {
		pg.downloadPeer = nil
	}
	pg.mtx.Unlock()

	if reason.IsGraceful() {
		pg.cfg.AddressBook.Disconnected(addr)
	} else {
		pg.cfg.AddressBook.Failed(addr, false)
	}

	if wasDownload {
		pg.electDownloadPeer()
	}
}

func (pg *PeerGroup) handleRecalculate(force bool) {
	state := pg.merger.Recalculate(bloom.ReuseTweak)
	if !force && !state.Changed {
		return
	}

	pg.mtx.Lock()
	peers := make([]*peer.Peer, 0, len(pg.connected))
	for _, p := range pg.connected {
		peers = append(peers, p)
	}
	pg.mtx.Unlock()

	for _, p := range peers {
		_ = p.SetFilter(state.Filter)
	}
}

// Copyright (c) 2013-2016 The btcsuite developers
// Copyright (c) 2015-2021 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package peergroup

import (
	"sort"

	"github.com/exccoin/spvpeer/peer"
)

// electDownloadPeer runs the four-step deterministic tie-break from
// spec.md §4.5 over the currently connected peers and, if it selects a
// different peer than the current one, switches the download role to
// it (rewinding the chain is the caller's responsibility via a
// disconnect/reconnect cycle; election only decides who drives next).
func (pg *PeerGroup) electDownloadPeer() {
	pg.mtx.Lock()
	if pg.localhostPinned {
		// A pinned localhost session is deliberately the sole
		// candidate; skip the height/version/RTT tie-break entirely.
		var only *peer.Peer
		for _, p := range pg.connected {
			only = p
			break
		}
		if only == nil || pg.downloadPeer == only {
			pg.mtx.Unlock()
			return
		}
		prev := pg.downloadPeer
		pg.downloadPeer = only
		pg.mtx.Unlock()

		if prev != nil {
			prev.SetDownloadData(false)
		}
		only.SetDownloadData(true)
		if pg.blockChainDownloadActive() {
			pg.armDownloadPeer(only)
		}
		return
	}

	candidates := make([]*peer.Peer, 0, len(pg.connected))
	for _, p := range pg.connected {
		candidates = append(candidates, p)
	}
	pg.mtx.Unlock()

	elected := electFromCandidates(candidates, preferredVersion)
	if elected == nil {
		return
	}

	pg.mtx.Lock()
	if pg.downloadPeer == elected {
		pg.mtx.Unlock()
		return
	}
	prev := pg.downloadPeer
	pg.downloadPeer = elected
	pg.mtx.Unlock()

	if prev != nil {
		prev.SetDownloadData(false)
	}
	elected.SetDownloadData(true)
	if pg.blockChainDownloadActive() {
		pg.armDownloadPeer(elected)
	}
}

// electFromCandidates implements spec.md §4.5's deterministic
// four-step tie-break in isolation from PeerGroup's locking, so it can
// be unit-tested directly against synthetic peers.
func electFromCandidates(candidates []*peer.Peer, preferredVersion uint32) *peer.Peer {
	if len(candidates) == 0 {
		return nil
	}

	// Step 1: the mode (most common) chain height; ties broken toward
	// the higher height.
	counts := make(map[int32]int)
	for _, p := range candidates {
		counts[p.LastBlock()]++
	}
	var modeHeight int32
	var modeCount int
	for h, c := range counts {
		if c > modeCount || (c == modeCount && h > modeHeight) {
			modeHeight = h
			modeCount = c
		}
	}

	// Step 2: candidates reporting that height.
	atHeight := make([]*peer.Peer, 0, len(candidates))
	for _, p := range candidates {
		if p.LastBlock() == modeHeight {
			atHeight = append(atHeight, p)
		}
	}

	// Step 3: prefer protocol version >= preferredVersion; else fall
	// back to the highest observed version among atHeight.
	var preferred []*peer.Peer
	for _, p := range atHeight {
		if p.ProtocolVersion() >= preferredVersion {
			preferred = append(preferred, p)
		}
	}
	pool := preferred
	if len(pool) == 0 {
		var maxVersion uint32
		for _, p := range atHeight {
			if p.ProtocolVersion() > maxVersion {
				maxVersion = p.ProtocolVersion()
			}
		}
		for _, p := range atHeight {
			if p.ProtocolVersion() == maxVersion {
				pool = append(pool, p)
			}
		}
	}

	// Step 4: lowest measured RTT, tie-break by lowest peer identifier.
	// A zero RTT (no ping answered yet) sorts last, since it carries no
	// real latency information.
	sort.Slice(pool, func(i, j int) bool {
		ri, rj := pool[i].LastPingRTT(), pool[j].LastPingRTT()
		if ri == 0 {
			ri = 1 << 62
		}
		if rj == 0 {
			rj = 1 << 62
		}
		if ri != rj {
			return ri < rj
		}
		return pool[i].ID() < pool[j].ID()
	})

	return pool[0]
}

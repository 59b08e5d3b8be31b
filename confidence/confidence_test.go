// Copyright (c) 2013-2016 The btcsuite developers
// Copyright (c) 2015-2021 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package confidence_test

import (
	"net"
	"testing"
	"time"

	"github.com/exccoin/spvpeer/chaincfg/chainhash"
	"github.com/exccoin/spvpeer/confidence"
	"github.com/exccoin/spvpeer/wire"
)

func peerAddr(ip string, port uint16) wire.NetAddress {
	return *wire.NewNetAddressIPPort(net.ParseIP(ip), port, wire.SFNodeNetwork)
}

func TestMarkBroadcastByIsIdempotentAndCountsDistinctPeers(t *testing.T) {
	table := confidence.New()
	hash := chainhash.HashH([]byte("tx1"))
	r := table.GetOrCreate(hash)

	r.MarkBroadcastBy(peerAddr("192.0.2.1", 8333))
	r.MarkBroadcastBy(peerAddr("192.0.2.1", 8333)) // duplicate, same peer
	r.MarkBroadcastBy(peerAddr("192.0.2.2", 8333))

	if got := r.NumBroadcastPeers(); got != 2 {
		t.Fatalf("NumBroadcastPeers() = %d, want 2", got)
	}
	if r.Type() != confidence.Pending {
		t.Fatalf("Type() = %v, want Pending after first announcement", r.Type())
	}
}

func TestBuildingInvariantsEnforceMinimumDepth(t *testing.T) {
	table := confidence.New()
	hash := chainhash.HashH([]byte("tx2"))
	r := table.GetOrCreate(hash)

	r.MarkBuilding(0, 700000) // depth coerced up to 1 per the type invariant
	if r.Depth() < 1 {
		t.Fatalf("Depth() = %d, want >= 1", r.Depth())
	}
	height, ok := r.AppearedAtHeight()
	if !ok || height != 700000 {
		t.Fatalf("AppearedAtHeight() = (%d, %v), want (700000, true)", height, ok)
	}
}

func TestDeadRequiresOverridingHash(t *testing.T) {
	table := confidence.New()
	hash := chainhash.HashH([]byte("tx3"))
	r := table.GetOrCreate(hash)
	overriding := chainhash.HashH([]byte("tx3-override"))

	r.MarkDead(overriding)
	if r.Type() != confidence.Dead {
		t.Fatalf("Type() = %v, want Dead", r.Type())
	}
	got, ok := r.OverridingHash()
	if !ok || got != overriding {
		t.Fatalf("OverridingHash() = (%v, %v), want (%v, true)", got, ok, overriding)
	}
}

func TestTransitionIntoPendingResetsDepth(t *testing.T) {
	table := confidence.New()
	hash := chainhash.HashH([]byte("tx4"))
	r := table.GetOrCreate(hash)

	r.MarkBuilding(5, 700000)
	r.SetPending(confidence.SourceNetwork)

	if r.Depth() != 0 {
		t.Fatalf("Depth() after transition to Pending = %d, want 0", r.Depth())
	}
}

func TestSubscribeDeliversChangeEventsInOrder(t *testing.T) {
	table := confidence.New()
	hash := chainhash.HashH([]byte("tx5"))

	events := make(chan confidence.ChangeEvent, 8)
	handle := table.Subscribe(hash, nil, func(ev confidence.ChangeEvent) {
		events <- ev
	})
	defer handle.Release()

	r := table.GetOrCreate(hash)
	r.SetPending(confidence.SourceSelf)
	r.MarkBuilding(1, 1)

	var reasons []confidence.ChangeReason
	for i := 0; i < 2; i++ {
		select {
		case ev := <-events:
			reasons = append(reasons, ev.Reason)
		case <-time.After(2 * time.Second):
			t.Fatal("timed out waiting for change events")
		}
	}
	if len(reasons) != 2 || reasons[0] != confidence.ReasonType || reasons[1] != confidence.ReasonType {
		t.Fatalf("reasons = %v, want [Type Type]", reasons)
	}
}

func TestSweepEvictsOnlyUnpinnedRecords(t *testing.T) {
	table := confidence.New()
	pinnedHash := chainhash.HashH([]byte("pinned"))
	unpinnedHash := chainhash.HashH([]byte("unpinned"))

	handle := table.Subscribe(pinnedHash, nil, func(confidence.ChangeEvent) {})
	defer handle.Release()
	table.GetOrCreate(unpinnedHash)

	if got := table.Len(); got != 2 {
		t.Fatalf("Len() before sweep = %d, want 2", got)
	}

	evicted := table.Sweep()
	if evicted != 1 {
		t.Fatalf("Sweep() evicted = %d, want 1", evicted)
	}
	if table.Lookup(pinnedHash) == nil {
		t.Fatal("Sweep evicted a pinned record")
	}
	if table.Lookup(unpinnedHash) != nil {
		t.Fatal("Sweep left an unpinned record in place")
	}
}

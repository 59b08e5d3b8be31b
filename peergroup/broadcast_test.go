// Copyright (c) 2013-2016 The btcsuite developers
// Copyright (c) 2015-2021 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package peergroup

import (
	"context"
	"fmt"
	"math/rand"
	"net"
	"testing"
	"time"

	"github.com/exccoin/spvpeer/chaincfg"
	"github.com/exccoin/spvpeer/confidence"
	"github.com/exccoin/spvpeer/peer"
	"github.com/exccoin/spvpeer/wire"
)

// connectedPeer is a handshake-complete peer plus the raw end of its
// pipe, so a broadcast test can act as that peer's remote node: reading
// whatever PeerGroup sends it and writing back inv/reject traffic.
type connectedPeer struct {
	p      *peer.Peer
	remote net.Conn
	params *chaincfg.Params
}

// newConnectedPeer completes a handshake against a fake remote and
// wires the resulting peer's listeners through pg.wrapListeners, the
// same path production connections take in manager.go's
// connectAndRun, so onPeerInv/onPeerTx/dispatchReject actually update
// pg's ConfidenceTable for a broadcast under test to observe.
func newConnectedPeer(t *testing.T, pg *PeerGroup, params *chaincfg.Params) *connectedPeer {
	t.Helper()
	clientConn, remoteConn := net.Pipe()
	go fakeVersionRemote(t, remoteConn, params, wire.BIP0031Version, 100)

	cfg := peer.Config{ChainParams: params, Listeners: pg.wrapListeners(peer.MessageListeners{})}
	p := peer.NewOutboundPeer(cfg, clientConn, wire.NewNetAddressIPPort(net.ParseIP("127.0.0.1"), 18444, 0))
	go p.Run()

	deadline := time.Now().Add(2 * time.Second)
	for p.State() != peer.StateReady {
		if time.Now().After(deadline) {
			t.Fatalf("peer never reached StateReady")
		}
		time.Sleep(time.Millisecond)
	}

	return &connectedPeer{p: p, remote: remoteConn, params: params}
}

// readTx blocks until this peer's remote side receives a wire message
// (expected to be the broadcast tx), discarding the handshake traffic
// already consumed by fakeVersionRemote. It returns an error rather than
// calling through testing.T, since callers run it from background
// goroutines where T.Fatal is not safe to call.
func (c *connectedPeer) readTx() (*wire.MsgTx, error) {
	msg, err := wire.ReadMessage(c.remote, wire.BIP0031Version, wire.BitcoinNet(c.params.Net))
	if err != nil {
		return nil, err
	}
	tx, ok := msg.(*wire.MsgTx)
	if !ok {
		return nil, fmt.Errorf("readTx: got %T, want *wire.MsgTx", msg)
	}
	return tx, nil
}

func (c *connectedPeer) sendInv(t *testing.T, hash wire.InvVect) {
	t.Helper()
	inv := wire.NewMsgInv()
	iv := hash
	if err := inv.AddInvVect(&iv); err != nil {
		t.Fatalf("AddInvVect: %v", err)
	}
	if err := wire.WriteMessage(c.remote, inv, wire.BIP0031Version, wire.BitcoinNet(c.params.Net)); err != nil {
		t.Fatalf("sendInv: %v", err)
	}
}

func (c *connectedPeer) sendReject(t *testing.T, hash [32]byte) {
	t.Helper()
	reject := &wire.MsgReject{Cmd: "tx", Code: wire.RejectInsufficientFee, Reason: "insufficient fee", Hash: hash}
	if err := wire.WriteMessage(c.remote, reject, wire.BIP0031Version, wire.BitcoinNet(c.params.Net)); err != nil {
		t.Fatalf("sendReject: %v", err)
	}
}

func (c *connectedPeer) close() {
	c.p.Disconnect()
	c.remote.Close()
}

// registerConnected adds each peer's *peer.Peer to pg's connected set
// directly, standing in for the handshake-completion bookkeeping
// manager.go's onPeerReady normally performs.
func registerConnected(pg *PeerGroup, peers []*connectedPeer) {
	pg.mtx.Lock()
	for _, cp := range peers {
		pg.connected[cp.p.ID()] = cp.p
	}
	pg.mtx.Unlock()
}

func TestBroadcastFanOutSizing(t *testing.T) {
	params := chaincfg.RegressionNetParams()
	pg := New(Config{ChainParams: params})

	var peers []*connectedPeer
	for i := 0; i < 5; i++ {
		peers = append(peers, newConnectedPeer(t, pg, params))
	}
	defer func() {
		for _, cp := range peers {
			cp.close()
		}
	}()
	registerConnected(pg, peers)

	tx := wire.NewMsgTx([]byte("test transaction bytes"))
	hash := tx.TxHash()

	// Drain whichever peers receive the tx in the background; the test
	// only cares about how many did, not which.
	sawTx := make(chan *connectedPeer, len(peers))
	for _, cp := range peers {
		cp := cp
		go func() {
			if _, err := cp.readTx(); err == nil {
				sawTx <- cp
			}
		}()
	}

	resultCh := make(chan *BroadcastResult, 1)
	errCh := make(chan error, 1)
	go func() {
		res, err := pg.BroadcastTransaction(context.Background(), tx, BroadcastConfig{
			MinPeers: 2,
			Timeout:  2 * time.Second,
			Rand:     rand.New(rand.NewSource(1)),
		})
		resultCh <- res
		errCh <- err
	}()

	// K = ceil(5/2) = 3 peers should receive the tx directly.
	received := make([]*connectedPeer, 0, 3)
	for i := 0; i < 3; i++ {
		select {
		case cp := <-sawTx:
			received = append(received, cp)
		case <-time.After(2 * time.Second):
			t.Fatalf("only %d/3 peers received the broadcast tx", i)
		}
	}

	// N = ceil((5-3)/2) = 1: a single announce-back from any connected
	// peer (whether or not it was one of the K chosen) should resolve
	// the broadcast.
	var announcer *connectedPeer
	for _, cp := range peers {
		found := false
		for _, r := range received {
			if r == cp {
				found = true
				break
			}
		}
		if !found {
			announcer = cp
			break
		}
	}
	if announcer == nil {
		t.Fatal("expected at least one peer outside the K chosen set")
	}
	announcer.sendInv(t, wire.InvVect{Type: wire.InvTypeTx, Hash: hash})

	select {
	case res := <-resultCh:
		if err := <-errCh; err != nil {
			t.Fatalf("BroadcastTransaction error = %v, want nil", err)
		}
		if res == nil || res.Tx != tx {
			t.Fatalf("BroadcastTransaction result = %+v, want the broadcast tx", res)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for broadcast to resolve")
	}
}

func TestBroadcastRejectThresholdFailsTheAttempt(t *testing.T) {
	params := chaincfg.RegressionNetParams()
	pg := New(Config{ChainParams: params})

	var peers []*connectedPeer
	for i := 0; i < 5; i++ {
		peers = append(peers, newConnectedPeer(t, pg, params))
	}
	defer func() {
		for _, cp := range peers {
			cp.close()
		}
	}()
	registerConnected(pg, peers)

	tx := wire.NewMsgTx([]byte("test transaction bytes"))
	hash := tx.TxHash()

	for _, cp := range peers {
		cp := cp
		go func() { _, _ = cp.readTx() }()
	}

	resultCh := make(chan *BroadcastResult, 1)
	errCh := make(chan error, 1)
	go func() {
		res, err := pg.BroadcastTransaction(context.Background(), tx, BroadcastConfig{
			MinPeers: 2,
			Timeout:  2 * time.Second,
			Rand:     rand.New(rand.NewSource(1)),
		})
		resultCh <- res
		errCh <- err
	}()

	// N = 1, so a single reject (>50% of 1) fails the attempt outright.
	time.Sleep(50 * time.Millisecond)
	peers[0].sendReject(t, hash)

	select {
	case err := <-errCh:
		res := <-resultCh
		if res != nil {
			t.Fatalf("BroadcastTransaction result = %+v, want nil on rejection", res)
		}
		if _, ok := err.(*RejectedError); !ok {
			t.Fatalf("BroadcastTransaction error = %v (%T), want *RejectedError", err, err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for broadcast to fail")
	}
}

func TestBroadcastTimeout(t *testing.T) {
	params := chaincfg.RegressionNetParams()
	pg := New(Config{ChainParams: params})

	var peers []*connectedPeer
	for i := 0; i < 3; i++ {
		peers = append(peers, newConnectedPeer(t, pg, params))
	}
	defer func() {
		for _, cp := range peers {
			cp.close()
		}
	}()
	registerConnected(pg, peers)

	tx := wire.NewMsgTx([]byte("test transaction bytes"))
	for _, cp := range peers {
		cp := cp
		go func() { _, _ = cp.readTx() }()
	}

	_, err := pg.BroadcastTransaction(context.Background(), tx, BroadcastConfig{
		MinPeers: 2,
		Timeout:  100 * time.Millisecond,
		Rand:     rand.New(rand.NewSource(1)),
	})
	if _, ok := err.(*TimeoutError); !ok {
		t.Fatalf("BroadcastTransaction error = %v (%T), want *TimeoutError", err, err)
	}
}

// Rebroadcasting a transaction already observed in a block must resolve
// immediately via the mined path and must not snap its confidence
// record back from Building to Pending.
func TestBroadcastOfMinedTransactionKeepsBuilding(t *testing.T) {
	params := chaincfg.RegressionNetParams()
	pg := New(Config{ChainParams: params})

	var peers []*connectedPeer
	for i := 0; i < 2; i++ {
		peers = append(peers, newConnectedPeer(t, pg, params))
	}
	defer func() {
		for _, cp := range peers {
			cp.close()
		}
	}()
	registerConnected(pg, peers)

	tx := wire.NewMsgTx([]byte("already mined transaction"))
	rec := pg.Confidence().GetOrCreate(tx.TxHash())
	rec.MarkBuilding(1, 100)

	for _, cp := range peers {
		cp := cp
		go func() { _, _ = cp.readTx() }()
	}

	res, err := pg.BroadcastTransaction(context.Background(), tx, BroadcastConfig{
		MinPeers: 2,
		Timeout:  2 * time.Second,
		Rand:     rand.New(rand.NewSource(1)),
	})
	if err != nil {
		t.Fatalf("BroadcastTransaction error = %v, want nil for a mined transaction", err)
	}
	if res == nil || res.Tx != tx {
		t.Fatalf("BroadcastTransaction result = %+v, want the broadcast tx", res)
	}
	if rec.Type() != confidence.Building {
		t.Fatalf("confidence type after rebroadcast = %v, want Building", rec.Type())
	}
}

func TestConfidenceNumBroadcastPeersMatchesDistinctAnnouncers(t *testing.T) {
	table := confidence.New()
	var hash [32]byte
	copy(hash[:], []byte("deadbeefdeadbeefdeadbeefdeadbeef"))

	rec := table.GetOrCreate(hash)
	for i, addr := range []string{"192.0.2.1", "192.0.2.2", "192.0.2.3"} {
		rec.MarkBroadcastBy(wire.NetAddress{IP: net.ParseIP(addr), Port: uint16(8333 + i)})
	}
	// A repeated announcement from the same peer must not double-count.
	rec.MarkBroadcastBy(wire.NetAddress{IP: net.ParseIP("192.0.2.1"), Port: 8333})

	if got := rec.NumBroadcastPeers(); got != 3 {
		t.Fatalf("NumBroadcastPeers() = %d, want 3", got)
	}
}

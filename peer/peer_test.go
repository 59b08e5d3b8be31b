// Copyright (c) 2013-2016 The btcsuite developers
// Copyright (c) 2015-2021 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package peer_test

import (
	"net"
	"testing"
	"time"

	"github.com/exccoin/spvpeer/chaincfg"
	"github.com/exccoin/spvpeer/peer"
	"github.com/exccoin/spvpeer/wire"
)

// fakeRemote drives the other end of a net.Pipe through a minimal
// version/verack exchange, standing in for a real peer during
// handshake tests.
func fakeRemote(t *testing.T, conn net.Conn, params *chaincfg.Params, services wire.ServiceFlag, protoVersion uint32) {
	t.Helper()
	netMagic := wire.BitcoinNet(params.Net)

	msg, err := wire.ReadMessage(conn, wire.ProtocolVersion, netMagic)
	if err != nil {
		t.Errorf("fakeRemote: read version: %v", err)
		return
	}
	if _, ok := msg.(*wire.MsgVersion); !ok {
		t.Errorf("fakeRemote: got %T, want *wire.MsgVersion", msg)
		return
	}

	remoteVersion := wire.NewMsgVersion(wire.NetAddress{}, wire.NetAddress{}, 1, 0)
	remoteVersion.ProtocolVersion = protoVersion
	remoteVersion.Services = services
	if err := wire.WriteMessage(conn, remoteVersion, wire.ProtocolVersion, netMagic); err != nil {
		t.Errorf("fakeRemote: write version: %v", err)
		return
	}

	msg, err = wire.ReadMessage(conn, protoVersion, netMagic)
	if err != nil {
		t.Errorf("fakeRemote: read verack: %v", err)
		return
	}
	if _, ok := msg.(*wire.MsgVerAck); !ok {
		t.Errorf("fakeRemote: got %T, want *wire.MsgVerAck", msg)
		return
	}

	if err := wire.WriteMessage(conn, wire.NewMsgVerAck(), protoVersion, netMagic); err != nil {
		t.Errorf("fakeRemote: write verack: %v", err)
	}
}

func TestHandshakeNegotiatesMinProtocolVersion(t *testing.T) {
	params := chaincfg.RegressionNetParams()
	clientConn, remoteConn := net.Pipe()
	defer clientConn.Close()
	defer remoteConn.Close()

	go fakeRemote(t, remoteConn, params, wire.SFNodeNetwork|wire.SFNodeBloom, wire.ProtocolVersion-1)

	versionSeen := make(chan *wire.MsgVersion, 1)
	cfg := peer.Config{
		ChainParams: params,
		Listeners: peer.MessageListeners{
			OnVersion: func(p *peer.Peer, msg *wire.MsgVersion) { versionSeen <- msg },
		},
	}
	p := peer.NewOutboundPeer(cfg, clientConn, wire.NewNetAddressIPPort(net.ParseIP("127.0.0.1"), 18444, 0))

	done := make(chan peer.DisconnectReason, 1)
	go func() { done <- p.Run() }()

	select {
	case v := <-versionSeen:
		if v.ProtocolVersion != wire.ProtocolVersion-1 {
			t.Fatalf("OnVersion saw protocol version %d, want %d", v.ProtocolVersion, wire.ProtocolVersion-1)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for OnVersion")
	}

	if got := p.ProtocolVersion(); got != wire.ProtocolVersion-1 {
		t.Fatalf("ProtocolVersion() = %d, want %d", got, wire.ProtocolVersion-1)
	}
	// OnVersion fires before the verack exchange, so Ready follows it.
	deadline := time.Now().Add(2 * time.Second)
	for p.State() != peer.StateReady {
		if time.Now().After(deadline) {
			t.Fatalf("State() = %v, want StateReady", p.State())
		}
		time.Sleep(time.Millisecond)
	}

	p.Disconnect()
	select {
	case reason := <-done:
		if reason != peer.ReasonCancelled {
			t.Fatalf("Run() reason = %v, want ReasonCancelled", reason)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for Run to return after Disconnect")
	}
}

// The handshake golden vector: a remote sending version(70015,
// NODE_NETWORK|NODE_BLOOM, height=700000) then verack leaves the local
// peer Ready and reporting that best height.
func TestHandshakeGoldenVectorReportsBestHeight(t *testing.T) {
	params := chaincfg.RegressionNetParams()
	clientConn, remoteConn := net.Pipe()
	defer clientConn.Close()
	defer remoteConn.Close()

	go func() {
		netMagic := wire.BitcoinNet(params.Net)
		if _, err := wire.ReadMessage(remoteConn, wire.ProtocolVersion, netMagic); err != nil {
			t.Errorf("golden remote: read version: %v", err)
			return
		}
		remoteVersion := wire.NewMsgVersion(wire.NetAddress{}, wire.NetAddress{}, 1, 700000)
		remoteVersion.ProtocolVersion = 70015
		remoteVersion.Services = wire.SFNodeNetwork | wire.SFNodeBloom
		if err := wire.WriteMessage(remoteConn, remoteVersion, wire.ProtocolVersion, netMagic); err != nil {
			t.Errorf("golden remote: write version: %v", err)
			return
		}
		if _, err := wire.ReadMessage(remoteConn, 70015, netMagic); err != nil {
			t.Errorf("golden remote: read verack: %v", err)
			return
		}
		if err := wire.WriteMessage(remoteConn, wire.NewMsgVerAck(), 70015, netMagic); err != nil {
			t.Errorf("golden remote: write verack: %v", err)
		}
	}()

	cfg := peer.Config{ChainParams: params, RequireBloomService: true}
	p := peer.NewOutboundPeer(cfg, clientConn, wire.NewNetAddressIPPort(net.ParseIP("127.0.0.1"), 18444, 0))

	done := make(chan peer.DisconnectReason, 1)
	go func() { done <- p.Run() }()

	deadline := time.Now().Add(2 * time.Second)
	for p.State() != peer.StateReady {
		if time.Now().After(deadline) {
			t.Fatal("peer never reached StateReady")
		}
		time.Sleep(time.Millisecond)
	}

	if got := p.LastBlock(); got != 700000 {
		t.Fatalf("LastBlock() = %d, want 700000", got)
	}
	if got := p.Services(); !got.HasService(wire.SFNodeBloom) {
		t.Fatalf("Services() = %v, want NODE_BLOOM set", got)
	}

	p.Disconnect()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for Run to return")
	}
}

func TestHandshakeRejectsMissingBloomService(t *testing.T) {
	params := chaincfg.RegressionNetParams()
	clientConn, remoteConn := net.Pipe()
	defer clientConn.Close()
	defer remoteConn.Close()

	go fakeRemote(t, remoteConn, params, wire.SFNodeNetwork, wire.ProtocolVersion)

	cfg := peer.Config{
		ChainParams:         params,
		RequireBloomService: true,
	}
	p := peer.NewOutboundPeer(cfg, clientConn, wire.NewNetAddressIPPort(net.ParseIP("127.0.0.1"), 18444, 0))

	reason := p.Run()
	if reason != peer.ReasonMissingService {
		t.Fatalf("Run() reason = %v, want ReasonMissingService", reason)
	}
}

func TestQueueMessageReturnsBusyWhenFull(t *testing.T) {
	params := chaincfg.RegressionNetParams()
	clientConn, remoteConn := net.Pipe()
	defer clientConn.Close()
	defer remoteConn.Close()

	cfg := peer.Config{ChainParams: params}
	p := peer.NewOutboundPeer(cfg, clientConn, wire.NewNetAddressIPPort(net.ParseIP("127.0.0.1"), 18444, 0))

	for i := 0; i < peer.MaxSendQueue; i++ {
		if err := p.QueueMessage(wire.NewMsgPing(uint64(i))); err != nil {
			t.Fatalf("QueueMessage() iteration %d error = %v, want nil", i, err)
		}
	}
	if err := p.QueueMessage(wire.NewMsgPing(999)); err != peer.ErrTransportBusy {
		t.Fatalf("QueueMessage() on full queue = %v, want ErrTransportBusy", err)
	}
}

// Copyright (c) 2013-2016 The btcsuite developers
// Copyright (c) 2015-2021 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package wire_test

import (
	"bytes"
	"net"
	"reflect"
	"testing"
	"time"

	"github.com/davecgh/go-spew/spew"

	"github.com/exccoin/spvpeer/chaincfg/chainhash"
	"github.com/exccoin/spvpeer/wire"
)

const testNet = wire.BitcoinNet(0xd9b4bef9)

// roundTrip writes msg and reads it back, returning the decoded
// message. It fails the test immediately on any error.
func roundTrip(t *testing.T, msg wire.Message, pver uint32) wire.Message {
	t.Helper()
	var buf bytes.Buffer
	if err := wire.WriteMessage(&buf, msg, pver, testNet); err != nil {
		t.Fatalf("WriteMessage(%s): %v", msg.Command(), err)
	}

	got, err := wire.ReadMessage(&buf, pver, testNet)
	if err != nil {
		t.Fatalf("ReadMessage(%s): %v", msg.Command(), err)
	}
	return got
}

func TestHandshakeRoundTrip(t *testing.T) {
	me := *wire.NewNetAddressIPPort(net.ParseIP("127.0.0.1"), 8333, wire.SFNodeNetwork)
	you := *wire.NewNetAddressIPPort(net.ParseIP("203.0.113.5"), 8333, 0)

	version := wire.NewMsgVersion(me, you, 0x1234567890abcdef, 700000)
	version.AddService(wire.SFNodeNetwork)
	version.AddService(wire.SFNodeBloom)

	got := roundTrip(t, version, wire.ProtocolVersion)
	gotVersion, ok := got.(*wire.MsgVersion)
	if !ok {
		t.Fatalf("roundtrip returned %T, want *wire.MsgVersion", got)
	}
	if gotVersion.ProtocolVersion != wire.ProtocolVersion {
		t.Errorf("ProtocolVersion = %d, want %d", gotVersion.ProtocolVersion, wire.ProtocolVersion)
	}
	if !gotVersion.Services.HasService(wire.SFNodeNetwork) || !gotVersion.Services.HasService(wire.SFNodeBloom) {
		t.Errorf("services = %v, want NODE_NETWORK|NODE_BLOOM", gotVersion.Services)
	}
	if gotVersion.LastBlock != 700000 {
		t.Errorf("LastBlock = %d, want 700000", gotVersion.LastBlock)
	}
	if gotVersion.Nonce != 0x1234567890abcdef {
		t.Errorf("Nonce = %#x, want %#x", gotVersion.Nonce, uint64(0x1234567890abcdef))
	}
	if !gotVersion.RelayFlag {
		t.Errorf("RelayFlag = false, want true")
	}

	verack := roundTrip(t, wire.NewMsgVerAck(), wire.ProtocolVersion)
	if _, ok := verack.(*wire.MsgVerAck); !ok {
		t.Fatalf("roundtrip returned %T, want *wire.MsgVerAck", verack)
	}
}

func TestPingPongRoundTrip(t *testing.T) {
	got := roundTrip(t, wire.NewMsgPing(0xdeadbeef), wire.ProtocolVersion)
	ping, ok := got.(*wire.MsgPing)
	if !ok || ping.Nonce != 0xdeadbeef {
		t.Fatalf("ping roundtrip = %#v", got)
	}

	got = roundTrip(t, wire.NewMsgPong(0xdeadbeef), wire.ProtocolVersion)
	pong, ok := got.(*wire.MsgPong)
	if !ok || pong.Nonce != 0xdeadbeef {
		t.Fatalf("pong roundtrip = %#v", got)
	}
}

func TestInvRoundTrip(t *testing.T) {
	msg := wire.NewMsgInv()
	hash := chainhash.HashH([]byte("tx1"))
	if err := msg.AddInvVect(wire.NewInvVect(wire.InvTypeTx, &hash)); err != nil {
		t.Fatalf("AddInvVect: %v", err)
	}

	got := roundTrip(t, msg, wire.ProtocolVersion)
	inv, ok := got.(*wire.MsgInv)
	if !ok || len(inv.InvList) != 1 {
		t.Fatalf("inv roundtrip = %#v", got)
	}
	if inv.InvList[0].Type != wire.InvTypeTx || inv.InvList[0].Hash != hash {
		t.Errorf("InvVect = %+v, want type tx hash %s", inv.InvList[0], hash)
	}
}

func TestInvListCapEnforced(t *testing.T) {
	msg := wire.NewMsgGetData()
	hash := chainhash.HashH([]byte("x"))
	for i := 0; i < wire.MaxInvPerMsg; i++ {
		if err := msg.AddInvVect(wire.NewInvVect(wire.InvTypeTx, &hash)); err != nil {
			t.Fatalf("AddInvVect at %d: %v", i, err)
		}
	}
	if err := msg.AddInvVect(wire.NewInvVect(wire.InvTypeTx, &hash)); err == nil {
		t.Fatalf("AddInvVect beyond MaxInvPerMsg did not error")
	}
}

func TestBlockLocatorRoundTrip(t *testing.T) {
	hashes := make([]chainhash.Hash, 20)
	for i := range hashes {
		hashes[i] = chainhash.HashH([]byte{byte(i)})
	}
	locator := wire.NewBlockLocatorFromHashes(hashes)
	if len(locator) == 0 {
		t.Fatal("locator is empty")
	}
	if locator[len(locator)-1] != hashes[len(hashes)-1] {
		t.Errorf("last locator hash is not genesis")
	}

	msg := wire.NewMsgGetHeaders(chainhash.Hash{})
	for i := range locator {
		if err := msg.AddBlockLocatorHash(&locator[i]); err != nil {
			t.Fatalf("AddBlockLocatorHash: %v", err)
		}
	}

	got := roundTrip(t, msg, wire.ProtocolVersion)
	gh, ok := got.(*wire.MsgGetHeaders)
	if !ok || len(gh.BlockLocatorHashes) != len(locator) {
		t.Fatalf("getheaders roundtrip = %#v", got)
	}
}

func TestHeadersRoundTrip(t *testing.T) {
	msg := wire.NewMsgHeaders()
	bh := &wire.BlockHeader{
		Version:    1,
		PrevBlock:  chainhash.HashH([]byte("prev")),
		MerkleRoot: chainhash.HashH([]byte("root")),
		Timestamp:  time.Unix(1600000000, 0),
		Bits:       0x1d00ffff,
		Nonce:      12345,
	}
	if err := msg.AddBlockHeader(bh); err != nil {
		t.Fatalf("AddBlockHeader: %v", err)
	}

	got := roundTrip(t, msg, wire.ProtocolVersion)
	headers, ok := got.(*wire.MsgHeaders)
	if !ok || len(headers.Headers) != 1 {
		t.Fatalf("headers roundtrip = %#v", got)
	}
	if headers.Headers[0].Bits != bh.Bits || headers.Headers[0].Nonce != bh.Nonce {
		t.Errorf("header = %+v, want %+v", headers.Headers[0], bh)
	}
	if headers.Headers[0].BlockHash() != bh.BlockHash() {
		t.Errorf("BlockHash mismatch after round trip")
	}
}

func TestTxRoundTrip(t *testing.T) {
	raw := []byte{0x01, 0x02, 0x03, 0x04, 0x05}
	got := roundTrip(t, wire.NewMsgTx(raw), wire.ProtocolVersion)
	tx, ok := got.(*wire.MsgTx)
	if !ok || !bytes.Equal(tx.Raw, raw) {
		t.Fatalf("tx roundtrip = %#v", got)
	}
}

func TestRejectRoundTrip(t *testing.T) {
	msg := &wire.MsgReject{
		Cmd:    wire.CmdTx,
		Code:   wire.RejectDuplicate,
		Reason: "already in mempool",
		Hash:   chainhash.HashH([]byte("tx")),
	}
	got := roundTrip(t, msg, wire.ProtocolVersion)
	reject, ok := got.(*wire.MsgReject)
	if !ok {
		t.Fatalf("reject roundtrip = %#v", got)
	}
	if reject.Code != wire.RejectDuplicate || reject.Reason != msg.Reason || reject.Hash != msg.Hash {
		t.Errorf("reject = %+v, want %+v", reject, msg)
	}
}

func TestFilterLoadRoundTrip(t *testing.T) {
	msg := &wire.MsgFilterLoad{
		Filter:    []byte{0xaa, 0xbb, 0xcc},
		HashFuncs: 5,
		Tweak:     0xdeadbeef,
		Flags:     wire.BloomUpdateAll,
	}
	got := roundTrip(t, msg, wire.ProtocolVersion)
	fl, ok := got.(*wire.MsgFilterLoad)
	if !ok || !bytes.Equal(fl.Filter, msg.Filter) || fl.HashFuncs != msg.HashFuncs ||
		fl.Tweak != msg.Tweak || fl.Flags != msg.Flags {
		t.Fatalf("filterload roundtrip = %#v", got)
	}
}

func TestUnknownMessageDoesNotAbortConnection(t *testing.T) {
	var buf bytes.Buffer
	// Hand-craft a frame for a command this package never registers.
	if err := wire.WriteMessage(&buf, &wire.MsgUnknown{CommandName: "zzzcustom", Payload: []byte("hi")}, wire.ProtocolVersion, testNet); err != nil {
		t.Fatalf("WriteMessage: %v", err)
	}
	got, err := wire.ReadMessage(&buf, wire.ProtocolVersion, testNet)
	if err != nil {
		t.Fatalf("ReadMessage: %v", err)
	}
	unk, ok := got.(*wire.MsgUnknown)
	if !ok || unk.CommandName != "zzzcustom" || string(unk.Payload) != "hi" {
		t.Fatalf("unknown roundtrip = %#v", got)
	}
}

// TestMessageRoundTripTable covers the message types without dedicated
// round-trip tests above: each must decode to a value deeply equal to
// what was encoded.
func TestMessageRoundTripTable(t *testing.T) {
	invHash := chainhash.HashH([]byte("missing tx"))
	notFound := wire.NewMsgNotFound()
	if err := notFound.AddInvVect(wire.NewInvVect(wire.InvTypeTx, &invHash)); err != nil {
		t.Fatalf("AddInvVect: %v", err)
	}

	locHash := chainhash.HashH([]byte("tip"))
	getBlocks := wire.NewMsgGetBlocks(chainhash.Hash{})
	if err := getBlocks.AddBlockLocatorHash(&locHash); err != nil {
		t.Fatalf("AddBlockLocatorHash: %v", err)
	}

	addr := wire.NewMsgAddr()
	na := wire.NewNetAddressIPPort(net.ParseIP("198.51.100.7"), 8333, wire.SFNodeNetwork)
	na.Timestamp = time.Unix(1700000000, 0)
	if err := addr.AddAddress(na); err != nil {
		t.Fatalf("AddAddress: %v", err)
	}

	tests := []wire.Message{
		notFound,
		getBlocks,
		addr,
		wire.NewMsgFeeFilter(1000),
		&wire.MsgFilterAdd{Data: []byte{0xde, 0xad, 0xbe, 0xef}},
		&wire.MsgFilterClear{},
		&wire.MsgMemPool{},
		&wire.MsgSendHeaders{},
		&wire.MsgSendCmpct{Announce: true, Version: 2},
		&wire.MsgAlert{Payload: []byte("payload"), Signature: []byte("sig")},
	}

	for _, msg := range tests {
		got := roundTrip(t, msg, wire.ProtocolVersion)
		if !reflect.DeepEqual(got, msg) {
			t.Errorf("%s round trip mismatch:\ngot: %v\nwant: %v",
				msg.Command(), spew.Sdump(got), spew.Sdump(msg))
		}
	}
}

func TestPreBip31VersionOmitsChecksum(t *testing.T) {
	me := *wire.NewNetAddressIPPort(net.ParseIP("127.0.0.1"), 8333, 0)
	you := *wire.NewNetAddressIPPort(net.ParseIP("127.0.0.2"), 8333, 0)
	version := wire.NewMsgVersion(me, you, 1, 0)

	var buf bytes.Buffer
	if err := wire.WriteMessage(&buf, version, 106, testNet); err != nil {
		t.Fatalf("WriteMessage: %v", err)
	}
	got, err := wire.ReadMessage(&buf, 106, testNet)
	if err != nil {
		t.Fatalf("ReadMessage: %v", err)
	}
	if _, ok := got.(*wire.MsgVersion); !ok {
		t.Fatalf("roundtrip returned %T", got)
	}
}

// Copyright (c) 2013-2016 The btcsuite developers
// Copyright (c) 2015-2021 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package addrmgr_test

import (
	"net"
	"testing"
	"time"

	"github.com/exccoin/spvpeer/addrmgr"
	"github.com/exccoin/spvpeer/wire"
)

func testAddr(ip string, port uint16) *wire.NetAddress {
	return wire.NewNetAddressIPPort(net.ParseIP(ip), port, wire.SFNodeNetwork)
}

func TestAddAddressDeduplicates(t *testing.T) {
	book := addrmgr.New()
	book.AddAddress(testAddr("192.0.2.1", 8333))
	book.AddAddress(testAddr("192.0.2.1", 8333))
	if got := book.Len(); got != 1 {
		t.Fatalf("Len() = %d, want 1", got)
	}
}

func TestNextAddressRespectsEligibility(t *testing.T) {
	book := addrmgr.New()
	addr := testAddr("192.0.2.1", 8333)
	book.AddAddress(addr)

	got := book.NextAddress(time.Now())
	if got == nil {
		t.Fatal("NextAddress returned nil for immediately-eligible address")
	}
	if got.IP.String() != addr.IP.String() {
		t.Errorf("NextAddress = %s, want %s", got.IP, addr.IP)
	}

	// The address is now marked connected and must not be handed out
	// again until it disconnects.
	if got := book.NextAddress(time.Now()); got != nil {
		t.Fatalf("NextAddress returned a second candidate while the only one is connected: %v", got)
	}
}

func TestIPv6DeactivationLatches(t *testing.T) {
	book := addrmgr.New()
	v6 := testAddr("2001:db8::1", 8333)
	book.AddAddress(v6)

	book.Failed(v6, true)
	if !book.IPv6Disabled() {
		t.Fatal("IPv6Disabled() = false after no-route-to-host failure")
	}

	other := testAddr("2001:db8::2", 8333)
	book.AddAddress(other)
	if got := book.Len(); got != 0 {
		t.Fatalf("Len() = %d after IPv6 latch tripped, want 0 (tripping address evicted, new IPv6 address dropped)", got)
	}
}

// Addresses seeded before the IPv6 latch trips must never be handed out
// again afterward, including the very address whose failure tripped it
// (spec scenario: subsequent connect attempts skip IPv6 for the
// lifetime of the group).
func TestIPv6SkippedAfterLatchForSeededAddresses(t *testing.T) {
	book := addrmgr.New()
	v4 := testAddr("192.0.2.9", 8333)
	failing := testAddr("2001:db8::9", 8333)
	bystander := testAddr("2001:db8::a", 8333)
	book.AddAddress(v4)
	book.AddAddress(failing)
	book.AddAddress(bystander)

	book.Failed(failing, true)
	if !book.IPv6Disabled() {
		t.Fatal("IPv6Disabled() = false after no-route-to-host failure")
	}

	// Far enough in the future that every backoff has elapsed: only the
	// IPv4 candidate may come back.
	future := time.Now().Add(24 * time.Hour)
	got := book.NextAddress(future)
	if got == nil {
		t.Fatal("NextAddress returned nil with an eligible IPv4 candidate")
	}
	if got.IP.To4() == nil {
		t.Fatalf("NextAddress returned IPv6 address %s after the latch tripped", got.IP)
	}
	if again := book.NextAddress(future); again != nil {
		t.Fatalf("NextAddress returned %s, want nil once the IPv6 entries are gone", again.IP)
	}
}

func TestConnectedWithholdsFromQueue(t *testing.T) {
	book := addrmgr.New()
	addr := testAddr("192.0.2.3", 8333)
	book.AddAddress(addr)

	got := book.NextAddress(time.Now())
	if got == nil {
		t.Fatal("NextAddress returned nil")
	}
	book.Connected(got)

	if again := book.NextAddress(time.Now()); again != nil {
		t.Fatalf("NextAddress returned a connected address: %v", again)
	}

	// Disconnected re-queues the address at its reset (initial, 1s)
	// backoff.
	book.Disconnected(got)
	if again := book.NextAddress(time.Now().Add(time.Second)); again == nil {
		t.Fatal("NextAddress returned nil after Disconnected re-queued the address")
	}
}

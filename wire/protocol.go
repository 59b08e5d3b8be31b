// Copyright (c) 2013-2016 The btcsuite developers
// Copyright (c) 2015-2021 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package wire

import "fmt"

// ProtocolVersion is the latest protocol version this package understands.
const ProtocolVersion uint32 = 70015

// MaxSendQueue is the default bound on a single peer's outbound write
// queue: the number of not-yet-written messages package peer will hold
// before QueueMessage reports the queue busy rather than blocking.
const MaxSendQueue = 64

// Protocol versions at which optional behaviors were introduced. Peers
// negotiating below these versions must not be offered the associated
// feature.
const (
	// MultipleAddressVersion is the protocol version which added
	// multiple addresses per message.
	MultipleAddressVersion uint32 = 209

	// NetAddressTimeVersion is the protocol version from which NetAddress
	// messages carry a timestamp, except inside a version message.
	NetAddressTimeVersion uint32 = 31402

	// BIP0031Version is the protocol version which added the ping/pong
	// message pair used for keep-alive and RTT measurement.
	BIP0031Version uint32 = 60001

	// BIP0037Version is the protocol version which added Bloom
	// filtering of connections (filterload/filteradd/filterclear and
	// the merkleblock message).
	BIP0037Version uint32 = 70001

	// FeeFilterVersion is the protocol version which added the
	// feefilter message.
	FeeFilterVersion uint32 = 70013

	// SendHeadersVersion is the protocol version which added the
	// sendheaders message.
	SendHeadersVersion uint32 = 70012
)

// BitcoinNet is the magic number identifying the Bitcoin network a
// message was intended for.
type BitcoinNet uint32

// Magic values for the networks this package has built-in knowledge of.
// Additional networks may be used by callers without modifying this
// package; ReadMessage only checks that both ends agree.
const (
	MainNet  BitcoinNet = 0xD9B4BEF9
	TestNet3 BitcoinNet = 0x0709110B
	RegTest  BitcoinNet = 0xDAB5BFFA
)

// String returns the BitcoinNet in human-readable form.
func (n BitcoinNet) String() string {
	switch n {
	case MainNet:
		return "mainnet"
	case TestNet3:
		return "testnet3"
	case RegTest:
		return "regtest"
	default:
		return fmt.Sprintf("unknown net %#08x", uint32(n))
	}
}

// ServiceFlag identifies the services supported by a peer, advertised in
// the version message and in address records.
type ServiceFlag uint64

const (
	// SFNodeNetwork indicates a peer serves the full block chain.
	SFNodeNetwork ServiceFlag = 1 << 0

	// SFNodeGetUTXO indicates a peer serves the getutxo protocol.
	SFNodeGetUTXO ServiceFlag = 1 << 1

	// SFNodeBloom indicates a peer supports Bloom-filtered connections
	// (filterload/filteradd/filterclear, merkleblock).
	SFNodeBloom ServiceFlag = 1 << 2

	// SFNodeWitness indicates a peer supports segregated witness.
	SFNodeWitness ServiceFlag = 1 << 3

	// SFNodeXthin indicates a peer supports Xtreme thinblocks.
	SFNodeXthin ServiceFlag = 1 << 4

	// SFNodeCompactFilters indicates a peer supports BIP157 compact
	// block filters. Not produced or consumed by this module; present
	// so service bitmaps round-trip byte-exact.
	SFNodeCompactFilters ServiceFlag = 1 << 6

	// SFNodeNetworkLimited indicates a peer serves a pruned subset of
	// the block chain.
	SFNodeNetworkLimited ServiceFlag = 1 << 10
)

// HasService reports whether flags includes service.
func (f ServiceFlag) HasService(service ServiceFlag) bool {
	return f&service == service
}

func (f ServiceFlag) String() string {
	return fmt.Sprintf("%#016x", uint64(f))
}

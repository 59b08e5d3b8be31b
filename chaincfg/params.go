// Copyright (c) 2013-2016 The btcsuite developers
// Copyright (c) 2015-2021 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package chaincfg defines the network parameters a peer-to-peer core
// needs: the wire magic, default port, seed hosts, the genesis hash
// used as a locator sentinel, and the minimum protocol version a peer
// must speak. Full consensus parameters (proof-of-work retarget, stake
// voting, subsidy schedule) belong to a block-validation engine, which
// is out of scope here.
package chaincfg

import "github.com/exccoin/spvpeer/chaincfg/chainhash"

// Params defines the network parameters relevant to peer-to-peer
// discovery and the wire protocol handshake.
type Params struct {
	// Name is the human-readable identifier for the network.
	Name string

	// Net is the magic number identifying the network on the wire.
	Net uint32

	// DefaultPort is the default peer-to-peer port for the network.
	DefaultPort string

	// DNSSeeds are the DNS hosts queried for peer discovery.
	DNSSeeds []string

	// GenesisHash is the hash of the genesis block, used as the
	// sentinel at the tail of every block locator.
	GenesisHash chainhash.Hash

	// MinProtocolVersion is the lowest protocol version this network
	// accepts from a remote peer during handshake.
	MinProtocolVersion uint32
}

// genesisSentinel derives a stand-in genesis hash for a named network.
// Full block validation is out of scope for this core (see spec.md
// Non-goals), so the genesis hash only needs to be a stable, unique
// sentinel value for locator construction, not a consensus-accurate
// digest of a real genesis block.
func genesisSentinel(network string) chainhash.Hash {
	return chainhash.HashH([]byte("spvpeer genesis sentinel: " + network))
}

// MainNetParams returns the network parameters for the main Bitcoin
// network.
func MainNetParams() *Params {
	return &Params{
		Name:        "mainnet",
		Net:         0xD9B4BEF9,
		DefaultPort: "8333",
		DNSSeeds: []string{
			"seed.bitcoin.sipa.be",
			"dnsseed.bluematt.me",
			"dnsseed.bitcoin.dashjr.org",
			"seed.bitcoinstats.com",
			"seed.bitcoin.jonasschnelli.ch",
			"seed.btc.petertodd.org",
		},
		GenesisHash:        genesisSentinel("mainnet"),
		MinProtocolVersion: 209,
	}
}

// TestNet3Params returns the network parameters for testnet3.
func TestNet3Params() *Params {
	return &Params{
		Name:        "testnet3",
		Net:         0x0709110B,
		DefaultPort: "18333",
		DNSSeeds: []string{
			"testnet-seed.bitcoin.jonasschnelli.ch",
			"seed.tbtc.petertodd.org",
		},
		GenesisHash:        genesisSentinel("testnet3"),
		MinProtocolVersion: 209,
	}
}

// RegressionNetParams returns the network parameters for the regression
// test network. There is no public DNS seed; peers are added manually.
func RegressionNetParams() *Params {
	return &Params{
		Name:               "regtest",
		Net:                0xDAB5BFFA,
		DefaultPort:        "18444",
		DNSSeeds:           nil,
		GenesisHash:        genesisSentinel("regtest"),
		MinProtocolVersion: 209,
	}
}

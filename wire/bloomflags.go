// Copyright (c) 2013-2016 The btcsuite developers
// Copyright (c) 2015-2021 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package wire

import "fmt"

// BloomUpdateType defines how a matched output updates a filterload'd
// Bloom filter, per BIP37.
type BloomUpdateType uint8

const (
	// BloomUpdateNone never adds outpoints of matched transactions to
	// the filter.
	BloomUpdateNone BloomUpdateType = 0

	// BloomUpdateAll always adds outpoints of matched transactions to
	// the filter.
	BloomUpdateAll BloomUpdateType = 1

	// BloomUpdateP2PubkeyOnly only adds outpoints of matched
	// transactions whose output is a pay-to-pubkey or multisig script.
	BloomUpdateP2PubkeyOnly BloomUpdateType = 2
)

func (t BloomUpdateType) String() string {
	switch t {
	case BloomUpdateNone:
		return "none"
	case BloomUpdateAll:
		return "all"
	case BloomUpdateP2PubkeyOnly:
		return "p2pubkey-only"
	default:
		return fmt.Sprintf("unknown bloom update type %d", uint8(t))
	}
}

// MaxFilterLoadHashFuncs is BIP37's cap on the number of hash functions
// a filterload message may declare.
const MaxFilterLoadHashFuncs = 50

// MaxFilterLoadFilterSize is BIP37's cap, in bytes, on a filterload
// message's filter bit field.
const MaxFilterLoadFilterSize = 36000

// MaxFilterAddDataSize is BIP37's cap, in bytes, on a single filteradd
// data element.
const MaxFilterAddDataSize = 520

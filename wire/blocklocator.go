// Copyright (c) 2013-2016 The btcsuite developers
// Copyright (c) 2015-2021 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package wire

import "github.com/exccoin/spvpeer/chaincfg/chainhash"

// MaxBlockLocatorsPerMsg is the cap on the number of hashes a
// BlockLocator may carry.
const MaxBlockLocatorsPerMsg = 500

// BlockLocator is an immutable, ordered sequence of block hashes with
// exponentially increasing gaps from tip to genesis, used to resume a
// header/block download without the remote peer needing to know our
// exact chain state.
type BlockLocator []chainhash.Hash

// NewBlockLocatorFromHashes builds a BlockLocator over hashes ordered
// tip-first, taking the first 10 hashes directly and then doubling the
// step on every hash thereafter, always ending at the genesis hash.
//
// hashes must be ordered from the chain tip back to genesis
// (hashes[len(hashes)-1] is genesis).
func NewBlockLocatorFromHashes(hashes []chainhash.Hash) BlockLocator {
	if len(hashes) == 0 {
		return nil
	}

	locator := make(BlockLocator, 0, 32)
	step := 1
	index := 0
	for index < len(hashes)-1 {
		locator = append(locator, hashes[index])
		if len(locator) >= 10 {
			step *= 2
		}
		index += step
	}
	locator = append(locator, hashes[len(hashes)-1])

	if len(locator) > MaxBlockLocatorsPerMsg {
		locator = locator[:MaxBlockLocatorsPerMsg]
	}
	return locator
}

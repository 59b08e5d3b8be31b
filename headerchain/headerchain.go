// Copyright (c) 2013-2016 The btcsuite developers
// Copyright (c) 2015-2021 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package headerchain is the minimal header-chain collaborator a Peer
// calls into while driving SPV header/filtered-block download: it
// checks a header's proof-of-work target and prev-hash linkage, and
// builds the locator used to resume a getheaders/getblocks exchange.
// Full consensus validation (retargeting, reorg selection, stake
// voting) is out of scope; this package only verifies the single
// PoW-target comparison and linear linkage a download pipeline needs to
// avoid accepting garbage headers from a misbehaving peer.
package headerchain

import (
	"errors"
	"math/big"
	"sync"

	"github.com/exccoin/spvpeer/chaincfg"
	"github.com/exccoin/spvpeer/chaincfg/chainhash"
	"github.com/exccoin/spvpeer/wire"
)

// ErrBadProofOfWork indicates a header's hash does not satisfy the
// target its own Bits field declares.
var ErrBadProofOfWork = errors.New("headerchain: block hash does not meet declared proof-of-work target")

// ErrBadLinkage indicates a header's PrevBlock does not match the
// current tip.
var ErrBadLinkage = errors.New("headerchain: header does not extend the current tip")

// bigOne is a shared big.Int holding the value 1.
var bigOne = big.NewInt(1)

// CompactToBig converts a compact representation of a whole number (the
// wire encoding used for a block header's Bits field) to a big.Int. The
// representation is similar to IEEE754 floating point: the high byte is
// the exponent, and the remaining three bytes are the mantissa.
func CompactToBig(compact uint32) *big.Int {
	mantissa := compact & 0x007fffff
	exponent := uint(compact >> 24)

	var bn *big.Int
	if exponent <= 3 {
		mantissa >>= 8 * (3 - exponent)
		bn = big.NewInt(int64(mantissa))
	} else {
		bn = big.NewInt(int64(mantissa))
		bn.Lsh(bn, 8*(exponent-3))
	}

	if compact&0x00800000 != 0 {
		bn = bn.Neg(bn)
	}
	return bn
}

// BigToCompact converts a big.Int to the compact "nBits" representation.
func BigToCompact(n *big.Int) uint32 {
	if n.Sign() == 0 {
		return 0
	}

	var mantissa uint32
	exponent := uint(len(n.Bytes()))
	if exponent <= 3 {
		mantissa = uint32(n.Bits()[0])
		mantissa <<= 8 * (3 - exponent)
	} else {
		tn := new(big.Int).Set(n)
		mantissa = uint32(tn.Rsh(tn, 8*(exponent-3)).Bits()[0])
	}

	if mantissa&0x00800000 != 0 {
		mantissa >>= 8
		exponent++
	}

	compact := uint32(exponent<<24) | mantissa
	if n.Sign() < 0 {
		compact |= 0x00800000
	}
	return compact
}

// CheckProofOfWork reports whether hash satisfies the target declared
// by bits.
func CheckProofOfWork(hash chainhash.Hash, bits uint32) bool {
	target := CompactToBig(bits)
	if target.Sign() <= 0 {
		return false
	}

	hashNum := hashToBig(hash)
	return hashNum.Cmp(target) <= 0
}

// hashToBig converts a chainhash.Hash (stored in natural order) into a
// big.Int, treating the hash as a little-endian number — the same
// convention CompactToBig's target is compared against.
func hashToBig(hash chainhash.Hash) *big.Int {
	var buf chainhash.Hash
	for i := 0; i < chainhash.HashSize; i++ {
		buf[i] = hash[chainhash.HashSize-1-i]
	}
	return new(big.Int).SetBytes(buf[:])
}

// node is one accepted header, kept only long enough to build locators
// and validate the next header's linkage; this is deliberately not a
// full block index.
type node struct {
	hash   chainhash.Hash
	header wire.BlockHeader
	height int32
}

// Chain is an append-only sequence of validated headers anchored at a
// network's genesis hash. It is safe for concurrent use; Peer calls
// into it from its single I/O goroutine, but PeerGroup's election and
// reporting code reads Tip/Height concurrently.
type Chain struct {
	mtx    sync.RWMutex
	params *chaincfg.Params
	nodes  []node // nodes[0] is genesis
}

// New returns a Chain anchored at params.GenesisHash, with no headers
// appended yet (Height() is 0, Tip() is the genesis hash).
func New(params *chaincfg.Params) *Chain {
	return &Chain{
		params: params,
		nodes: []node{{
			hash:   params.GenesisHash,
			height: 0,
		}},
	}
}

// Tip returns the hash of the most recently accepted header.
func (c *Chain) Tip() chainhash.Hash {
	c.mtx.RLock()
	defer c.mtx.RUnlock()
	return c.nodes[len(c.nodes)-1].hash
}

// Height returns the height of the most recently accepted header
// (genesis is height 0).
func (c *Chain) Height() int32 {
	c.mtx.RLock()
	defer c.mtx.RUnlock()
	return c.nodes[len(c.nodes)-1].height
}

// HeightOf returns the height of the block with the given hash, or
// false if the chain has not accepted it. The scan runs newest-first
// since callers overwhelmingly ask about recent blocks.
func (c *Chain) HeightOf(hash chainhash.Hash) (int32, bool) {
	c.mtx.RLock()
	defer c.mtx.RUnlock()
	for i := len(c.nodes) - 1; i >= 0; i-- {
		if c.nodes[i].hash == hash {
			return c.nodes[i].height, true
		}
	}
	return 0, false
}

// TipTime returns the timestamp of the most recently accepted header,
// used by a Peer to decide whether headers have reached fastCatchupTime.
func (c *Chain) TipTime() (int64, bool) {
	c.mtx.RLock()
	defer c.mtx.RUnlock()
	if len(c.nodes) <= 1 {
		return 0, false
	}
	return c.nodes[len(c.nodes)-1].header.Timestamp.Unix(), true
}

// Extend validates and appends header onto the current tip: its
// PrevBlock must equal the tip hash (ErrBadLinkage otherwise) and its
// own hash must satisfy its declared proof-of-work target
// (ErrBadProofOfWork otherwise). On success it returns the new height.
func (c *Chain) Extend(header *wire.BlockHeader) (int32, error) {
	c.mtx.Lock()
	defer c.mtx.Unlock()

	tip := c.nodes[len(c.nodes)-1]
	if header.PrevBlock != tip.hash {
		return 0, ErrBadLinkage
	}

	hash := header.BlockHash()
	if !CheckProofOfWork(hash, header.Bits) {
		return 0, ErrBadProofOfWork
	}

	height := tip.height + 1
	c.nodes = append(c.nodes, node{hash: hash, header: *header, height: height})
	return height, nil
}

// Locator builds a BlockLocator from the current tip back to genesis,
// per spec.md's exponentially-spaced-gap construction.
func (c *Chain) Locator() wire.BlockLocator {
	c.mtx.RLock()
	defer c.mtx.RUnlock()

	hashes := make([]chainhash.Hash, len(c.nodes))
	for i, n := range c.nodes {
		hashes[len(c.nodes)-1-i] = n.hash
	}
	return wire.NewBlockLocatorFromHashes(hashes)
}

// RewindToHeight truncates the chain back to (and including) height,
// discarding any headers above it. It is used when the download peer
// disconnects mid-sync: per spec.md §4.3 the chain rewinds to the last
// persisted tip before a new download peer is elected. height must not
// exceed the current height.
func (c *Chain) RewindToHeight(height int32) {
	c.mtx.Lock()
	defer c.mtx.Unlock()

	if height < 0 {
		height = 0
	}
	if int(height) >= len(c.nodes) {
		return
	}
	c.nodes = c.nodes[:height+1]
}

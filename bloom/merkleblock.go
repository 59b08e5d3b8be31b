// Copyright (c) 2013-2016 The btcsuite developers
// Copyright (c) 2015-2021 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package bloom

import (
	"github.com/jrick/bitset"

	"github.com/exccoin/spvpeer/chaincfg/chainhash"
	"github.com/exccoin/spvpeer/wire"
)

// treeDepth returns the depth of the full (non-partial) Merkle tree
// over numTx leaves: a depth-first traversal of this tree, pruning any
// subtree containing no matches, is what the BIP37 partial Merkle tree
// format encodes as a flag-bit sequence plus a pruned hash list.
func treeDepth(numTx uint32) uint32 {
	depth := uint32(0)
	for (uint32(1) << depth) < numTx {
		depth++
	}
	return depth
}

// calcHash returns the hash of the tree node at (depth, pos), computed
// bottom-up from leaf hashes: leaves beyond the last real transaction
// are duplicated from the last one, matching Bitcoin's historical
// (and now-famous CVE-2012-2459-adjacent) Merkle tree convention.
func calcHash(depth, pos uint32, maxDepth uint32, leaves []*chainhash.Hash) *chainhash.Hash {
	if depth == maxDepth {
		idx := pos
		if int(idx) >= len(leaves) {
			idx = uint32(len(leaves) - 1)
		}
		return leaves[idx]
	}

	left := calcHash(depth+1, pos*2, maxDepth, leaves)
	var right *chainhash.Hash
	// The right child is duplicated from the left when this subtree's
	// span runs past the number of actual leaves.
	rightPos := pos*2 + 1
	if (rightPos << (maxDepth - depth - 1)) < uint32(len(leaves)) {
		right = calcHash(depth+1, rightPos, maxDepth, leaves)
	} else {
		right = left
	}

	var buf [chainhash.HashSize * 2]byte
	copy(buf[:chainhash.HashSize], left[:])
	copy(buf[chainhash.HashSize:], right[:])
	h := chainhash.HashH(buf[:])
	return &h
}

// traverse walks the tree depth-first, recording a flag bit for every
// node and a hash for every pruned (all-unmatched) subtree or matched
// leaf.
func traverse(depth, pos uint32, maxDepth uint32, leaves []*chainhash.Hash, matches []bool,
	bits bitset.Bytes, bitIdx *int, hashes *[]*chainhash.Hash) {

	parentMatch := false
	first := pos << (maxDepth - depth)
	last := (pos + 1) << (maxDepth - depth)
	if last > uint32(len(matches)) {
		last = uint32(len(matches))
	}
	for i := first; i < last; i++ {
		if matches[i] {
			parentMatch = true
			break
		}
	}

	if parentMatch {
		bits.Set(*bitIdx)
	}
	*bitIdx++

	if !parentMatch || depth == maxDepth {
		h := calcHash(depth, pos, maxDepth, leaves)
		*hashes = append(*hashes, h)
		return
	}

	traverse(depth+1, pos*2, maxDepth, leaves, matches, bits, bitIdx, hashes)
	rightPos := pos*2 + 1
	if (rightPos << (maxDepth - depth - 1)) < uint32(len(leaves)) {
		traverse(depth+1, rightPos, maxDepth, leaves, matches, bits, bitIdx, hashes)
	}
}

// NewMerkleBlock builds a FilteredBlock (header plus partial Merkle
// tree) proving which of txHashes matched filter, following BIP37's
// partial-tree construction. It returns the merkleblock message and
// the subset of txHashes that matched, in tree order.
//
// This module is ordinarily the receiving side of a merkleblock (a
// Peer validates and extracts matches from one a server peer sends);
// NewMerkleBlock exists symmetrically so the matching and extraction
// logic below can be tested against self-constructed fixtures without
// a live network.
func NewMerkleBlock(header *wire.BlockHeader, txHashes []chainhash.Hash, filter *Filter) (*wire.MsgMerkleBlock, []*chainhash.Hash) {
	hashPtrs := make([]*chainhash.Hash, len(txHashes))
	matched := make([]bool, len(txHashes))
	for i := range txHashes {
		hashPtrs[i] = &txHashes[i]
		if filter == nil {
			matched[i] = true
		} else {
			matched[i] = filter.MatchHash(&txHashes[i])
		}
	}

	numTx := uint32(len(txHashes))
	maxDepth := treeDepth(numTx)
	bits := bitset.NewBytes(int(numTx * 2))
	var hashes []*chainhash.Hash
	bitIdx := 0
	if numTx > 0 {
		traverse(0, 0, maxDepth, hashPtrs, matched, bits, &bitIdx, &hashes)
	}

	// bitset.Bytes packs bit i into byte i/8 at position i%8, the same
	// layout BIP37 specifies for the flags field, so the packed bytes
	// can be carried over directly.
	flags := make([]byte, (bitIdx+7)/8)
	copy(flags, bits)

	msg := &wire.MsgMerkleBlock{
		Header:       *header,
		Transactions: numTx,
		Hashes:       hashes,
		Flags:        flags,
	}

	var matchedHashes []*chainhash.Hash
	for i, m := range matched {
		if m {
			matchedHashes = append(matchedHashes, hashPtrs[i])
		}
	}
	return msg, matchedHashes
}

// ExtractMatches walks msg's partial Merkle tree, verifying its
// reconstructed root equals msg.Header.MerkleRoot and returning the
// transaction hashes it proves matched the filter that produced it.
// A root mismatch is the caller's signal to disconnect the sending
// peer: per this module's contract, that verification happens here
// (inside the codec's data producer), not silently inside the Peer
// download pipeline.
func ExtractMatches(msg *wire.MsgMerkleBlock) (matches []*chainhash.Hash, err error) {
	if msg.Transactions == 0 {
		return nil, nil
	}

	maxDepth := treeDepth(msg.Transactions)

	var bitIdx int
	var hashIdx int
	var walk func(depth, pos uint32) (*chainhash.Hash, error)
	walk = func(depth, pos uint32) (*chainhash.Hash, error) {
		if bitIdx/8 >= len(msg.Flags) {
			return nil, wire.NewMessageError("ExtractMatches", "flag bits exhausted before tree walk completed")
		}
		bit := msg.Flags[bitIdx/8]&(1<<uint(bitIdx%8)) != 0
		bitIdx++

		if depth == maxDepth || !bit {
			if hashIdx >= len(msg.Hashes) {
				return nil, wire.NewMessageError("ExtractMatches", "hash list exhausted before tree walk completed")
			}
			h := msg.Hashes[hashIdx]
			hashIdx++
			if bit && depth == maxDepth {
				matches = append(matches, h)
			}
			return h, nil
		}

		left, err := walk(depth+1, pos*2)
		if err != nil {
			return nil, err
		}

		rightPos := pos*2 + 1
		var right *chainhash.Hash
		if (rightPos << (maxDepth - depth - 1)) < msg.Transactions {
			right, err = walk(depth+1, rightPos)
			if err != nil {
				return nil, err
			}
		} else {
			right = left
		}

		var buf [chainhash.HashSize * 2]byte
		copy(buf[:chainhash.HashSize], left[:])
		copy(buf[chainhash.HashSize:], right[:])
		h := chainhash.HashH(buf[:])
		return &h, nil
	}

	root, err := walk(0, 0)
	if err != nil {
		return nil, err
	}
	if *root != msg.Header.MerkleRoot {
		return nil, wire.NewMessageError("ExtractMatches", "reconstructed merkle root does not match header")
	}
	return matches, nil
}

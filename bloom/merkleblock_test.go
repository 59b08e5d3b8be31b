// Copyright (c) 2018 The ExchangeCoin team
// Copyright (c) 2013-2016 The btcsuite developers
// Copyright (c) 2015-2017 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package bloom_test

import (
	"testing"
	"time"

	"github.com/exccoin/spvpeer/bloom"
	"github.com/exccoin/spvpeer/chaincfg/chainhash"
	"github.com/exccoin/spvpeer/wire"
)

func TestMerkleBlockMatchesAndVerifies(t *testing.T) {
	header := &wire.BlockHeader{
		Version:    1,
		PrevBlock:  chainhash.HashH([]byte("prev")),
		Timestamp:  time.Unix(1231006505, 0),
		Bits:       0x1d00ffff,
		Nonce:      2083236893,
	}

	txHashes := make([]chainhash.Hash, 7)
	for i := range txHashes {
		txHashes[i] = chainhash.HashH([]byte{byte('a' + i)})
	}

	f := bloom.NewFilter(10, 0, 0.000001, wire.BloomUpdateAll)
	f.AddHash(&txHashes[3])

	// NewMerkleBlock needs the header's merkle root to already reflect
	// txHashes; compute it the same way ExtractMatches will reconstruct
	// it so the round trip below is internally consistent.
	header.MerkleRoot = fullMerkleRoot(txHashes)

	mBlock, matched := bloom.NewMerkleBlock(header, txHashes, f)
	if len(matched) != 1 || *matched[0] != txHashes[3] {
		t.Fatalf("NewMerkleBlock matched = %v, want exactly txHashes[3]", matched)
	}

	got, err := bloom.ExtractMatches(mBlock)
	if err != nil {
		t.Fatalf("ExtractMatches: %v", err)
	}
	if len(got) != 1 || *got[0] != txHashes[3] {
		t.Fatalf("ExtractMatches = %v, want exactly txHashes[3]", got)
	}
}

func TestMerkleBlockRootMismatchRejected(t *testing.T) {
	header := &wire.BlockHeader{Bits: 0x1d00ffff}
	txHashes := []chainhash.Hash{chainhash.HashH([]byte("only-tx"))}
	header.MerkleRoot = chainhash.HashH([]byte("not the real root"))

	f := bloom.NewFilter(1, 0, 0.01, wire.BloomUpdateAll)
	f.AddHash(&txHashes[0])

	mBlock, _ := bloom.NewMerkleBlock(header, txHashes, f)
	if _, err := bloom.ExtractMatches(mBlock); err == nil {
		t.Fatal("ExtractMatches accepted a merkleblock with a mismatched root")
	}
}

// fullMerkleRoot computes the standard (non-partial) Merkle root over
// hashes, duplicating the last element to pad an odd level, matching
// the convention bloom.ExtractMatches expects from a header it
// validates against.
func fullMerkleRoot(hashes []chainhash.Hash) chainhash.Hash {
	level := make([]chainhash.Hash, len(hashes))
	copy(level, hashes)

	for len(level) > 1 {
		if len(level)%2 == 1 {
			level = append(level, level[len(level)-1])
		}
		next := make([]chainhash.Hash, len(level)/2)
		for i := range next {
			var buf [chainhash.HashSize * 2]byte
			copy(buf[:chainhash.HashSize], level[2*i][:])
			copy(buf[chainhash.HashSize:], level[2*i+1][:])
			next[i] = chainhash.HashH(buf[:])
		}
		level = next
	}
	return level[0]
}

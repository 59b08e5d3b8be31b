// Copyright (c) 2013-2016 The btcsuite developers
// Copyright (c) 2015-2021 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package headerchain_test

import (
	"testing"
	"time"

	"github.com/exccoin/spvpeer/chaincfg"
	"github.com/exccoin/spvpeer/headerchain"
	"github.com/exccoin/spvpeer/wire"
)

// easiestBits is a compact target whose decoded value exceeds the
// largest possible 256-bit hash, so every header satisfies it
// regardless of nonce; tests build headers under this target rather
// than mining a real one.
const easiestBits = 0x227fffff

func TestExtendRejectsBadLinkage(t *testing.T) {
	params := chaincfg.RegressionNetParams()
	chain := headerchain.New(params)

	bad := &wire.BlockHeader{
		PrevBlock: chain.Tip(),
		Bits:      easiestBits,
		Timestamp: time.Unix(1231006505, 0),
	}
	bad.PrevBlock[0] ^= 0xff // corrupt linkage deliberately

	if _, err := chain.Extend(bad); err != headerchain.ErrBadLinkage {
		t.Fatalf("Extend() error = %v, want ErrBadLinkage", err)
	}
}

func TestExtendAcceptsLinkedHeaderUnderEasyTarget(t *testing.T) {
	params := chaincfg.RegressionNetParams()
	chain := headerchain.New(params)

	h := &wire.BlockHeader{
		PrevBlock: chain.Tip(),
		Bits:      easiestBits,
		Timestamp: time.Unix(1231006505, 0),
	}

	height, err := chain.Extend(h)
	if err != nil {
		t.Fatalf("Extend() error = %v", err)
	}
	if height != 1 {
		t.Fatalf("Extend() height = %d, want 1", height)
	}
	if chain.Height() != 1 {
		t.Fatalf("Height() = %d, want 1", chain.Height())
	}
	if chain.Tip() != h.BlockHash() {
		t.Fatal("Tip() does not match the extended header's hash")
	}
}

func TestRewindToHeightTruncates(t *testing.T) {
	params := chaincfg.RegressionNetParams()
	chain := headerchain.New(params)

	for i := 0; i < 3; i++ {
		h := &wire.BlockHeader{
			PrevBlock: chain.Tip(),
			Bits:      easiestBits,
			Timestamp: time.Unix(int64(1231006505+i), 0),
		}
		if _, err := chain.Extend(h); err != nil {
			t.Fatalf("Extend() iteration %d error = %v", i, err)
		}
	}
	if chain.Height() != 3 {
		t.Fatalf("Height() = %d, want 3", chain.Height())
	}

	chain.RewindToHeight(1)
	if chain.Height() != 1 {
		t.Fatalf("Height() after rewind = %d, want 1", chain.Height())
	}
}

func TestCompactToBigRoundTrip(t *testing.T) {
	for _, bits := range []uint32{0x1d00ffff, easiestBits, 0x1b0404cb} {
		n := headerchain.CompactToBig(bits)
		if got := headerchain.BigToCompact(n); got != bits {
			t.Errorf("BigToCompact(CompactToBig(%#08x)) = %#08x, want %#08x", bits, got, bits)
		}
	}
}

// Copyright (c) 2017-2021 The btcsuite developers
// Copyright (c) 2018 The ExchangeCoin team
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package bech32_test

import (
	"testing"

	"github.com/exccoin/spvpeer/bech32"
)

// BIP173 test vectors, §"Test vectors" of the specification.
var validChecksums = []string{
	"A12UEL5L",
	"a12uel5l",
	"an83characterlonghumanreadablepartthatcontainsthenumber1andtheexcludedcharactersbio1tt5tgs",
	"abcdef1qpzry9x8gf2tvdw0s3jn54khce6mua7lmqqqxw",
	"11qqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqc8247j",
	"split1checkupstagehandshakeupstreamerranterredcaperred2y9e3w",
	"?1ezyfcl",
}

func TestBIP173ValidChecksums(t *testing.T) {
	for _, s := range validChecksums {
		hrp, data, enc, err := bech32.Decode(s)
		if err != nil {
			t.Errorf("Decode(%q) failed: %v", s, err)
			continue
		}

		reencoded, err := bech32.Encode(hrp, data, enc)
		if err != nil {
			t.Errorf("Encode(%q) round trip failed: %v", s, err)
			continue
		}
		if reencoded != s {
			// Case folding is not required to round trip byte-exact,
			// but the lowercased forms must match.
			if reencoded != s && reencoded != lowerASCII(s) {
				t.Errorf("round trip of %q produced %q", s, reencoded)
			}
		}
	}
}

func lowerASCII(s string) string {
	b := []byte(s)
	for i, c := range b {
		if c >= 'A' && c <= 'Z' {
			b[i] = c + ('a' - 'A')
		}
	}
	return string(b)
}

var invalidChecksums = []string{
	" 1nwldj5",                        // HRP character out of range
	"\x7f" + "1axkwrx",                // HRP character out of range
	"an84characterslonghumanreadablepartthatcontainsthenumber1andtheexcludedcharactersbio1569pvx", // overall length exceeds 90
	"pzry9x0s0muk",        // no separator
	"1pzry9x0s0muk",       // empty HRP
	"x1b4n0q5v",           // invalid data char
	"li1dgmt3",            // too short checksum
	"de1lg7wt" + "\xff",   // invalid character after separator
	"A1G7SGD8",            // checksum calculated with uppercase form of HRP
	"10a06t8",             // empty HRP
	"1qzzfhee",            // empty HRP
}

func TestBIP173InvalidChecksums(t *testing.T) {
	for _, s := range invalidChecksums {
		if _, _, _, err := bech32.Decode(s); err == nil {
			t.Errorf("Decode(%q) succeeded, want error", s)
		}
	}
}

func TestConvertBitsRoundTrip(t *testing.T) {
	orig := []byte{0x00, 0x01, 0x02, 0xff, 0x80, 0x7f}
	fivebit, err := bech32.ConvertBits(orig, 8, 5, true)
	if err != nil {
		t.Fatalf("ConvertBits 8->5: %v", err)
	}
	back, err := bech32.ConvertBits(fivebit, 5, 8, false)
	if err != nil {
		t.Fatalf("ConvertBits 5->8: %v", err)
	}
	if len(back) != len(orig) {
		t.Fatalf("round trip length = %d, want %d", len(back), len(orig))
	}
	for i := range orig {
		if back[i] != orig[i] {
			t.Errorf("byte %d = %#x, want %#x", i, back[i], orig[i])
		}
	}
}

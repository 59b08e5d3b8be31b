// Copyright (c) 2017-2021 The btcsuite developers
// Copyright (c) 2018 The ExchangeCoin team
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package bech32_test

import (
	"bytes"
	"encoding/hex"
	"strings"
	"testing"

	"github.com/exccoin/spvpeer/bech32"
)

// BIP173/BIP350 segwit address vectors: address, witness version, and
// the hex witness program it must round-trip to.
var segwitVectors = []struct {
	addr    string
	hrp     string
	version byte
	program string
}{
	{"BC1QW508D6QEJXTDG4Y5R3ZARVARY0C5XW7KV8F3T4", "bc", 0,
		"751e76e8199196d454941c45d1b3a323f1433bd6"},
	{"tb1qrp33g0q5c5txsp9arysrx4k6zdkfs4nce4xj0gdcccefvpysxf3q0sl5k7", "tb", 0,
		"1863143c14c5166804bd19203356da136c985678cd4d27a1b8c6329604903262"},
	{"bc1p0xlxvlhemja6c4dqv22uapctqupfhlxm9h8z3k2e72q4k9hcz7vqzk5jj0", "bc", 1,
		"79be667ef9dcbbac55a06295ce870b07029bfcdb2dce28d959f2815b16f81798"},
}

func TestSegWitAddressDecodeVectors(t *testing.T) {
	for _, vec := range segwitVectors {
		hrp, version, program, err := bech32.DecodeSegWitAddress(vec.addr)
		if err != nil {
			t.Errorf("DecodeSegWitAddress(%q) error = %v", vec.addr, err)
			continue
		}
		if hrp != vec.hrp {
			t.Errorf("DecodeSegWitAddress(%q) hrp = %q, want %q", vec.addr, hrp, vec.hrp)
		}
		if version != vec.version {
			t.Errorf("DecodeSegWitAddress(%q) version = %d, want %d", vec.addr, version, vec.version)
		}
		want, _ := hex.DecodeString(vec.program)
		if !bytes.Equal(program, want) {
			t.Errorf("DecodeSegWitAddress(%q) program = %x, want %s", vec.addr, program, vec.program)
		}
	}
}

func TestSegWitAddressEncodeRoundTrip(t *testing.T) {
	for _, vec := range segwitVectors {
		program, _ := hex.DecodeString(vec.program)
		encoded, err := bech32.EncodeSegWitAddress(vec.hrp, vec.version, program)
		if err != nil {
			t.Errorf("EncodeSegWitAddress(%q, %d, %s) error = %v", vec.hrp, vec.version, vec.program, err)
			continue
		}
		if encoded != strings.ToLower(vec.addr) {
			t.Errorf("EncodeSegWitAddress(%q, %d, %s) = %q, want %q",
				vec.hrp, vec.version, vec.program, encoded, strings.ToLower(vec.addr))
		}
	}
}

func TestSegWitAddressP2WPKHPrefix(t *testing.T) {
	program, _ := hex.DecodeString("751e76e8199196d454941c45d1b3a323f1433bd6")
	addr, err := bech32.EncodeSegWitAddress("bc", 0, program)
	if err != nil {
		t.Fatalf("EncodeSegWitAddress: %v", err)
	}
	if !strings.HasPrefix(addr, "bc1q") {
		t.Fatalf("version-0 mainnet address = %q, want bc1q prefix", addr)
	}
}

func TestSegWitAddressRejectsMixedChecksums(t *testing.T) {
	// A version-0 program encoded with the bech32m constant must not
	// decode as a segwit address, and vice versa.
	program, _ := hex.DecodeString("751e76e8199196d454941c45d1b3a323f1433bd6")
	converted, err := bech32.ConvertBits(program, 8, 5, true)
	if err != nil {
		t.Fatalf("ConvertBits: %v", err)
	}

	wrongV0, err := bech32.Encode("bc", append([]byte{0}, converted...), bech32.BIP0350)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if _, _, _, err := bech32.DecodeSegWitAddress(wrongV0); err == nil {
		t.Error("version-0 address with bech32m checksum decoded without error")
	}

	wrongV1, err := bech32.Encode("bc", append([]byte{1}, converted...), bech32.BIP0173)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if _, _, _, err := bech32.DecodeSegWitAddress(wrongV1); err == nil {
		t.Error("version-1 address with bech32 checksum decoded without error")
	}
}

func TestSegWitAddressRejectsBadPrograms(t *testing.T) {
	if _, err := bech32.EncodeSegWitAddress("bc", 17, make([]byte, 20)); err == nil {
		t.Error("witness version 17 encoded without error")
	}
	if _, err := bech32.EncodeSegWitAddress("bc", 0, make([]byte, 25)); err == nil {
		t.Error("version-0 program of 25 bytes encoded without error")
	}
	if _, err := bech32.EncodeSegWitAddress("bc", 1, make([]byte, 41)); err == nil {
		t.Error("41-byte witness program encoded without error")
	}
}

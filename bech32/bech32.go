// Copyright (c) 2017-2021 The btcsuite developers
// Copyright (c) 2018 The ExchangeCoin team
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package bech32 implements the BIP173 and BIP350 checksummed base32
// text encoding used by segwit-style addresses. It is the one address
// text codec this module carries even though full address encoding is
// otherwise out of scope: a PeerAddress in an addr/addrv2 message is a
// raw IP, but configuration and diagnostics still need to render and
// parse bech32 strings the way any node operator expects.
package bech32

import (
	"fmt"
	"strings"
)

const charset = "qpzry9x8gf2tvdw0s3jn54khce6mua7l"

// Encoding distinguishes the BIP173 (original) checksum constant from
// the BIP350 (taproot-era) one; both share every other step of the
// algorithm.
type Encoding int

const (
	// BIP0173 is the original bech32 checksum.
	BIP0173 Encoding = iota

	// BIP0350 is bech32m, used by witness versions 1 and above.
	BIP0350
)

const (
	checksumConstBIP173 = 1
	checksumConstBIP350 = 0x2bc830a3
)

func checksumConst(enc Encoding) uint32 {
	if enc == BIP0350 {
		return checksumConstBIP350
	}
	return checksumConstBIP173
}

// Error reports a specific reason a bech32 string failed to decode.
type Error struct {
	Op  string
	Str string
}

func (e *Error) Error() string { return fmt.Sprintf("bech32: %s: %s", e.Op, e.Str) }

func newError(op, format string, args ...interface{}) error {
	return &Error{Op: op, Str: fmt.Sprintf(format, args...)}
}

// Decode splits and validates a bech32 (or bech32m) string, returning
// its human-readable part, the 5-bit-per-byte data payload (checksum
// stripped), and which checksum constant validated it.
func Decode(bech string) (hrp string, data []byte, enc Encoding, err error) {
	if len(bech) < 8 || len(bech) > 90 {
		return "", nil, 0, newError("Decode", "invalid bech32 string length %d", len(bech))
	}

	for _, c := range bech {
		if c < 33 || c > 126 {
			return "", nil, 0, newError("Decode", "invalid character in string: %v", c)
		}
	}

	lower := strings.ToLower(bech)
	upper := strings.ToUpper(bech)
	if bech != lower && bech != upper {
		return "", nil, 0, newError("Decode", "string not all lowercase or all uppercase")
	}
	bech = lower

	one := strings.LastIndexByte(bech, '1')
	if one < 1 || one+7 > len(bech) {
		return "", nil, 0, newError("Decode", "invalid separator index %d", one)
	}

	hrp = bech[:one]
	data = make([]byte, 0, len(bech)-one-1)
	for i := one + 1; i < len(bech); i++ {
		d := strings.IndexByte(charset, bech[i])
		if d == -1 {
			return "", nil, 0, newError("Decode", "invalid character not part of charset: %v", bech[i])
		}
		data = append(data, byte(d))
	}

	if !verifyChecksum(hrp, data, BIP0173) {
		if !verifyChecksum(hrp, data, BIP0350) {
			return "", nil, 0, newError("Decode", "checksum failed")
		}
		enc = BIP0350
	} else {
		enc = BIP0173
	}

	return hrp, data[:len(data)-6], enc, nil
}

// Encode joins hrp and the 5-bit-per-byte data payload with a checksum
// computed for the given encoding variant.
func Encode(hrp string, data []byte, enc Encoding) (string, error) {
	if len(hrp) < 1 {
		return "", newError("Encode", "human-readable part is empty")
	}

	var bldr strings.Builder
	bldr.Grow(len(hrp) + 1 + len(data) + 6)
	bldr.WriteString(hrp)
	bldr.WriteByte('1')

	checksum := createChecksum(hrp, data, enc)
	combined := append(append([]byte(nil), data...), checksum...)
	for _, b := range combined {
		if int(b) >= len(charset) {
			return "", newError("Encode", "invalid data byte: %v", b)
		}
		bldr.WriteByte(charset[b])
	}
	return bldr.String(), nil
}

func bech32Polymod(values []byte) uint32 {
	gen := []uint32{0x3b6a57b2, 0x26508e6d, 0x1ea119fa, 0x3d4233dd, 0x2a1462b3}
	chk := uint32(1)
	for _, v := range values {
		b := byte(chk >> 25)
		chk = (chk&0x1ffffff)<<5 ^ uint32(v)
		for i := 0; i < 5; i++ {
			if (b>>uint(i))&1 == 1 {
				chk ^= gen[i]
			}
		}
	}
	return chk
}

func hrpExpand(hrp string) []byte {
	v := make([]byte, 0, len(hrp)*2+1)
	for _, c := range hrp {
		v = append(v, byte(c>>5))
	}
	v = append(v, 0)
	for _, c := range hrp {
		v = append(v, byte(c&31))
	}
	return v
}

func verifyChecksum(hrp string, data []byte, enc Encoding) bool {
	values := append(hrpExpand(hrp), data...)
	return bech32Polymod(values) == checksumConst(enc)
}

func createChecksum(hrp string, data []byte, enc Encoding) []byte {
	values := append(hrpExpand(hrp), data...)
	values = append(values, 0, 0, 0, 0, 0, 0)
	mod := bech32Polymod(values) ^ checksumConst(enc)

	checksum := make([]byte, 6)
	for i := 0; i < 6; i++ {
		checksum[i] = byte((mod >> uint(5*(5-i))) & 31)
	}
	return checksum
}

// ConvertBits regroups a slice of fromBits-wide values into a slice of
// toBits-wide values, as used to translate between 8-bit witness
// program bytes and bech32's 5-bit alphabet.
func ConvertBits(data []byte, fromBits, toBits uint8, pad bool) ([]byte, error) {
	if fromBits < 1 || fromBits > 8 || toBits < 1 || toBits > 8 {
		return nil, newError("ConvertBits", "invalid bit groupings %d/%d", fromBits, toBits)
	}

	acc := uint32(0)
	bits := uint8(0)
	var ret []byte
	maxv := uint32(1<<toBits) - 1

	for _, b := range data {
		if uint32(b)>>fromBits != 0 {
			return nil, newError("ConvertBits", "invalid data byte %d for %d-bit input", b, fromBits)
		}
		acc = (acc << fromBits) | uint32(b)
		bits += fromBits
		for bits >= toBits {
			bits -= toBits
			ret = append(ret, byte((acc>>bits)&maxv))
		}
	}

	if pad && bits > 0 {
		ret = append(ret, byte((acc<<(toBits-bits))&maxv))
	} else if !pad && (bits >= fromBits || ((acc<<(toBits-bits))&maxv) != 0) {
		return nil, newError("ConvertBits", "invalid incomplete group")
	}
	return ret, nil
}

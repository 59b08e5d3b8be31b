// Copyright (c) 2017-2021 The btcsuite developers
// Copyright (c) 2018 The ExchangeCoin team
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package bech32

// EncodeSegWitAddress renders a witness version and program as a segwit
// address for the given human-readable part (e.g. "bc" for mainnet).
// Version 0 uses the BIP173 checksum; versions 1-16 use bech32m per
// BIP350.
func EncodeSegWitAddress(hrp string, witnessVersion byte, witnessProgram []byte) (string, error) {
	if witnessVersion > 16 {
		return "", newError("EncodeSegWitAddress", "invalid witness version %d", witnessVersion)
	}
	if len(witnessProgram) < 2 || len(witnessProgram) > 40 {
		return "", newError("EncodeSegWitAddress", "invalid witness program length %d", len(witnessProgram))
	}
	if witnessVersion == 0 && len(witnessProgram) != 20 && len(witnessProgram) != 32 {
		return "", newError("EncodeSegWitAddress", "invalid version-0 program length %d", len(witnessProgram))
	}

	converted, err := ConvertBits(witnessProgram, 8, 5, true)
	if err != nil {
		return "", err
	}
	data := append([]byte{witnessVersion}, converted...)

	enc := BIP0173
	if witnessVersion > 0 {
		enc = BIP0350
	}
	return Encode(hrp, data, enc)
}

// DecodeSegWitAddress parses a segwit address, returning its witness
// version and program. The checksum variant must agree with the witness
// version: BIP173 for version 0, bech32m for versions 1-16.
func DecodeSegWitAddress(addr string) (hrp string, witnessVersion byte, witnessProgram []byte, err error) {
	hrp, data, enc, err := Decode(addr)
	if err != nil {
		return "", 0, nil, err
	}
	if len(data) < 1 {
		return "", 0, nil, newError("DecodeSegWitAddress", "no witness version")
	}

	witnessVersion = data[0]
	if witnessVersion > 16 {
		return "", 0, nil, newError("DecodeSegWitAddress", "invalid witness version %d", witnessVersion)
	}
	if witnessVersion == 0 && enc != BIP0173 {
		return "", 0, nil, newError("DecodeSegWitAddress", "version 0 address with bech32m checksum")
	}
	if witnessVersion > 0 && enc != BIP0350 {
		return "", 0, nil, newError("DecodeSegWitAddress", "version %d address with bech32 checksum", witnessVersion)
	}

	witnessProgram, err = ConvertBits(data[1:], 5, 8, false)
	if err != nil {
		return "", 0, nil, err
	}
	if len(witnessProgram) < 2 || len(witnessProgram) > 40 {
		return "", 0, nil, newError("DecodeSegWitAddress", "invalid witness program length %d", len(witnessProgram))
	}
	if witnessVersion == 0 && len(witnessProgram) != 20 && len(witnessProgram) != 32 {
		return "", 0, nil, newError("DecodeSegWitAddress", "invalid version-0 program length %d", len(witnessProgram))
	}

	return hrp, witnessVersion, witnessProgram, nil
}

// Copyright (c) 2013-2016 The btcsuite developers
// Copyright (c) 2015-2021 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package wire

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/exccoin/spvpeer/chaincfg/chainhash"
)

var littleEndian = binary.LittleEndian

func readUint8(r io.Reader) (uint8, error) {
	var buf [1]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return 0, err
	}
	return buf[0], nil
}

func writeUint8(w io.Writer, val uint8) error {
	_, err := w.Write([]byte{val})
	return err
}

func readUint16(r io.Reader) (uint16, error) {
	var buf [2]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return 0, err
	}
	return littleEndian.Uint16(buf[:]), nil
}

func writeUint16(w io.Writer, val uint16) error {
	var buf [2]byte
	littleEndian.PutUint16(buf[:], val)
	_, err := w.Write(buf[:])
	return err
}

func readUint32(r io.Reader) (uint32, error) {
	var buf [4]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return 0, err
	}
	return littleEndian.Uint32(buf[:]), nil
}

func writeUint32(w io.Writer, val uint32) error {
	var buf [4]byte
	littleEndian.PutUint32(buf[:], val)
	_, err := w.Write(buf[:])
	return err
}

func readUint64(r io.Reader) (uint64, error) {
	var buf [8]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return 0, err
	}
	return littleEndian.Uint64(buf[:]), nil
}

func writeUint64(w io.Writer, val uint64) error {
	var buf [8]byte
	littleEndian.PutUint64(buf[:], val)
	_, err := w.Write(buf[:])
	return err
}

// readHash reads a 32-byte hash, reversing the wire's byte order into the
// natural (internal) order used everywhere else in this package.
func readHash(r io.Reader, h *chainhash.Hash) error {
	var buf [chainhash.HashSize]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return err
	}
	for i := 0; i < chainhash.HashSize; i++ {
		h[i] = buf[chainhash.HashSize-1-i]
	}
	return nil
}

// writeHash writes a hash to w, reversing the internal byte order into
// the wire's historical convention.
func writeHash(w io.Writer, h chainhash.Hash) error {
	var buf [chainhash.HashSize]byte
	for i := 0; i < chainhash.HashSize; i++ {
		buf[i] = h[chainhash.HashSize-1-i]
	}
	_, err := w.Write(buf[:])
	return err
}

// MaxVarIntPayload is an upper bound, in bytes, on a VarInt-declared
// payload size. ReadVarInt itself does not check it; length-prefixed
// readers such as ReadVarBytes take their own message-specific cap.
const MaxVarIntPayload = 1024 * 1024 * 32

// ReadVarInt reads a variable-length integer and returns it as a uint64.
func ReadVarInt(r io.Reader) (uint64, error) {
	discriminator, err := readUint8(r)
	if err != nil {
		return 0, err
	}

	// Canonical encoding is required on output but, per the wire
	// protocol, not enforced on input: a peer may pad a small value
	// into a wider encoding and it is still accepted.
	switch discriminator {
	case 0xff:
		return readUint64(r)

	case 0xfe:
		rv, err := readUint32(r)
		return uint64(rv), err

	case 0xfd:
		rv, err := readUint16(r)
		return uint64(rv), err

	default:
		return uint64(discriminator), nil
	}
}

// WriteVarInt writes val using the canonical 1/3/5/9-byte encoding
// selected by its magnitude.
func WriteVarInt(w io.Writer, val uint64) error {
	switch {
	case val < 0xfd:
		return writeUint8(w, uint8(val))

	case val <= 0xffff:
		if err := writeUint8(w, 0xfd); err != nil {
			return err
		}
		return writeUint16(w, uint16(val))

	case val <= 0xffffffff:
		if err := writeUint8(w, 0xfe); err != nil {
			return err
		}
		return writeUint32(w, uint32(val))

	default:
		if err := writeUint8(w, 0xff); err != nil {
			return err
		}
		return writeUint64(w, val)
	}
}

// VarIntSerializeSize returns the number of bytes it would take to
// serialize val as a VarInt.
func VarIntSerializeSize(val uint64) int {
	switch {
	case val < 0xfd:
		return 1
	case val <= 0xffff:
		return 3
	case val <= 0xffffffff:
		return 5
	default:
		return 9
	}
}

// ReadVarBytes reads a VarInt-prefixed byte slice, rejecting a declared
// length beyond maxAllowed to guard against a hostile peer claiming an
// absurd size the enclosing message could never actually contain.
func ReadVarBytes(r io.Reader, maxAllowed uint64, fieldName string) ([]byte, error) {
	count, err := ReadVarInt(r)
	if err != nil {
		return nil, err
	}
	if count > maxAllowed {
		str := fmt.Sprintf("%s is larger than the max allowed size [count %d, max %d]",
			fieldName, count, maxAllowed)
		return nil, messageError("ReadVarBytes", str)
	}

	buf := make([]byte, count)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, err
	}
	return buf, nil
}

// WriteVarBytes writes a VarInt-prefixed byte slice.
func WriteVarBytes(w io.Writer, buf []byte) error {
	if err := WriteVarInt(w, uint64(len(buf))); err != nil {
		return err
	}
	_, err := w.Write(buf)
	return err
}

// ReadVarString reads a VarInt-prefixed string (e.g. the version
// message's user-agent field).
func ReadVarString(r io.Reader, maxAllowed uint64) (string, error) {
	buf, err := ReadVarBytes(r, maxAllowed, "varstring")
	if err != nil {
		return "", err
	}
	return string(buf), nil
}

// WriteVarString writes a VarInt-prefixed string.
func WriteVarString(w io.Writer, s string) error {
	return WriteVarBytes(w, []byte(s))
}

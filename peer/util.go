// Copyright (c) 2013-2016 The btcsuite developers
// Copyright (c) 2015-2021 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package peer

import (
	"crypto/rand"
	"encoding/binary"
)

func cryptoRandRead(buf []byte) (int, error) {
	return rand.Read(buf)
}

func littleEndianUint64(buf [8]byte) uint64 {
	return binary.LittleEndian.Uint64(buf[:])
}

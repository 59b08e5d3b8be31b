// Copyright (c) 2013-2016 The btcsuite developers
// Copyright (c) 2015-2021 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package wire

import (
	"fmt"
	"io"

	"github.com/exccoin/spvpeer/chaincfg/chainhash"
)

// InvType identifies the type of object an InvVect describes.
type InvType uint32

const (
	InvTypeTx            InvType = 1
	InvTypeBlock         InvType = 2
	InvTypeFilteredBlock InvType = 3
)

func (t InvType) String() string {
	switch t {
	case InvTypeTx:
		return "tx"
	case InvTypeBlock:
		return "block"
	case InvTypeFilteredBlock:
		return "filtered-block"
	default:
		return fmt.Sprintf("unknown invtype %d", uint32(t))
	}
}

// MaxInvPerMsg is the maximum number of inventory items permitted in a
// single inv/getdata/notfound message.
const MaxInvPerMsg = 50000

// invVectSize is the fixed wire size of an InvVect: a 4-byte type plus a
// 32-byte hash.
const invVectSize = 4 + chainhash.HashSize

// InvVect represents an InventoryItem: the (type, hash) pair a peer
// uses to announce or request an object.
type InvVect struct {
	Type InvType
	Hash chainhash.Hash
}

// NewInvVect creates a new InvVect.
func NewInvVect(typ InvType, hash *chainhash.Hash) *InvVect {
	return &InvVect{Type: typ, Hash: *hash}
}

func readInvVect(r io.Reader, iv *InvVect) error {
	typ, err := readUint32(r)
	if err != nil {
		return err
	}
	iv.Type = InvType(typ)
	return readHash(r, &iv.Hash)
}

func writeInvVect(w io.Writer, iv *InvVect) error {
	if err := writeUint32(w, uint32(iv.Type)); err != nil {
		return err
	}
	return writeHash(w, iv.Hash)
}

// readInvList reads a VarInt count followed by that many InvVects,
// rejecting a declared count above maxCount.
func readInvList(r io.Reader, maxCount int, fieldName string) ([]*InvVect, error) {
	count, err := ReadVarInt(r)
	if err != nil {
		return nil, err
	}
	if count > uint64(maxCount) {
		return nil, messageError("readInvList", fmt.Sprintf(
			"%s count %d exceeds max of %d", fieldName, count, maxCount))
	}

	list := make([]*InvVect, 0, count)
	for i := uint64(0); i < count; i++ {
		iv := &InvVect{}
		if err := readInvVect(r, iv); err != nil {
			return nil, err
		}
		list = append(list, iv)
	}
	return list, nil
}

func writeInvList(w io.Writer, list []*InvVect) error {
	if err := WriteVarInt(w, uint64(len(list))); err != nil {
		return err
	}
	for _, iv := range list {
		if err := writeInvVect(w, iv); err != nil {
			return err
		}
	}
	return nil
}

func invListPayloadLength(count int) uint64 {
	return uint64(VarIntSerializeSize(uint64(count)) + count*invVectSize)
}

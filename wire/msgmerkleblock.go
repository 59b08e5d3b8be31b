// Copyright (c) 2013-2016 The btcsuite developers
// Copyright (c) 2015-2021 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package wire

import (
	"io"

	"github.com/exccoin/spvpeer/chaincfg/chainhash"
)

// maxFlagsPerMerkleBlock bounds the flag-bit byte array of a
// merkleblock message as a sanity limit derived from MaxTxPerBlock.
const maxFlagsPerMerkleBlock = (MaxTxPerBlock + 7) / 8

// MsgMerkleBlock carries a FilteredBlock: a header plus the partial
// merkle tree (as a flat hash list and flag-bit array per BIP37) that
// proves which transactions matched a peer's Bloom filter. Construction
// of the PartialMerkleTree itself lives in package bloom, which is the
// only code that needs to walk the full block.
type MsgMerkleBlock struct {
	Header       BlockHeader
	Transactions uint32
	Hashes       []*chainhash.Hash
	Flags        []byte
}

// NewMsgMerkleBlock returns a new merkleblock message built around the
// given header.
func NewMsgMerkleBlock(header *BlockHeader) *MsgMerkleBlock {
	return &MsgMerkleBlock{
		Header: *header,
		Hashes: make([]*chainhash.Hash, 0, 10),
		Flags:  make([]byte, 0, 10),
	}
}

// AddTxHash appends a single hash to the partial merkle tree's hash
// list.
func (msg *MsgMerkleBlock) AddTxHash(hash *chainhash.Hash) error {
	if len(msg.Hashes)+1 > MaxTxPerBlock {
		return messageError("MsgMerkleBlock.AddTxHash", "too many tx hashes")
	}
	msg.Hashes = append(msg.Hashes, hash)
	return nil
}

func (msg *MsgMerkleBlock) BtcDecode(r io.Reader, pver uint32) error {
	if err := readBlockHeader(r, &msg.Header); err != nil {
		return err
	}

	txCount, err := readUint32(r)
	if err != nil {
		return err
	}
	msg.Transactions = txCount

	hashCount, err := ReadVarInt(r)
	if err != nil {
		return err
	}
	if hashCount > MaxTxPerBlock {
		return messageError("MsgMerkleBlock.BtcDecode", "too many tx hashes")
	}
	hashes := make([]*chainhash.Hash, 0, hashCount)
	for i := uint64(0); i < hashCount; i++ {
		var h chainhash.Hash
		if err := readHash(r, &h); err != nil {
			return err
		}
		hashes = append(hashes, &h)
	}
	msg.Hashes = hashes

	flags, err := ReadVarBytes(r, maxFlagsPerMerkleBlock, "merkleblock flags")
	if err != nil {
		return err
	}
	msg.Flags = flags
	return nil
}

func (msg *MsgMerkleBlock) BtcEncode(w io.Writer, pver uint32) error {
	if err := writeBlockHeader(w, &msg.Header); err != nil {
		return err
	}
	if err := writeUint32(w, msg.Transactions); err != nil {
		return err
	}
	if err := WriteVarInt(w, uint64(len(msg.Hashes))); err != nil {
		return err
	}
	for _, h := range msg.Hashes {
		if err := writeHash(w, *h); err != nil {
			return err
		}
	}
	return WriteVarBytes(w, msg.Flags)
}

func (msg *MsgMerkleBlock) Command() string { return CmdMerkleBlock }

func (msg *MsgMerkleBlock) MaxPayloadLength(pver uint32) uint64 {
	return uint64(blockHeaderLen+4) +
		uint64(VarIntSerializeSize(MaxTxPerBlock)) + uint64(MaxTxPerBlock*chainhash.HashSize) +
		uint64(VarIntSerializeSize(maxFlagsPerMerkleBlock)) + uint64(maxFlagsPerMerkleBlock)
}

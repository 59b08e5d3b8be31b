// Copyright (c) 2013-2016 The btcsuite developers
// Copyright (c) 2015-2021 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package wire

import (
	"io"

	"github.com/exccoin/spvpeer/chaincfg/chainhash"
)

func readBlockLocator(r io.Reader) (BlockLocator, error) {
	count, err := ReadVarInt(r)
	if err != nil {
		return nil, err
	}
	if count > MaxBlockLocatorsPerMsg {
		return nil, messageError("readBlockLocator", "too many block locator hashes")
	}

	locator := make(BlockLocator, count)
	for i := uint64(0); i < count; i++ {
		if err := readHash(r, &locator[i]); err != nil {
			return nil, err
		}
	}
	return locator, nil
}

func writeBlockLocator(w io.Writer, locator BlockLocator) error {
	if err := WriteVarInt(w, uint64(len(locator))); err != nil {
		return err
	}
	for i := range locator {
		if err := writeHash(w, locator[i]); err != nil {
			return err
		}
	}
	return nil
}

// MsgGetBlocks requests an inv of block hashes starting after the first
// locator hash the remote peer recognizes, up to HashStop (or 500
// hashes, whichever comes first). HashStop of the zero hash means "as
// many as the peer will send".
type MsgGetBlocks struct {
	ProtocolVersion    uint32
	BlockLocatorHashes BlockLocator
	HashStop           chainhash.Hash
}

// NewMsgGetBlocks returns a new getblocks message.
func NewMsgGetBlocks(hashStop chainhash.Hash) *MsgGetBlocks {
	return &MsgGetBlocks{
		ProtocolVersion: ProtocolVersion,
		HashStop:        hashStop,
	}
}

// AddBlockLocatorHash appends a single block locator hash, returning an
// error if doing so would exceed MaxBlockLocatorsPerMsg.
func (msg *MsgGetBlocks) AddBlockLocatorHash(hash *chainhash.Hash) error {
	if len(msg.BlockLocatorHashes)+1 > MaxBlockLocatorsPerMsg {
		return messageError("MsgGetBlocks.AddBlockLocatorHash", "too many block locator hashes")
	}
	msg.BlockLocatorHashes = append(msg.BlockLocatorHashes, *hash)
	return nil
}

func (msg *MsgGetBlocks) BtcDecode(r io.Reader, pver uint32) error {
	pv, err := readUint32(r)
	if err != nil {
		return err
	}
	msg.ProtocolVersion = pv

	locator, err := readBlockLocator(r)
	if err != nil {
		return err
	}
	msg.BlockLocatorHashes = locator

	return readHash(r, &msg.HashStop)
}

func (msg *MsgGetBlocks) BtcEncode(w io.Writer, pver uint32) error {
	if err := writeUint32(w, msg.ProtocolVersion); err != nil {
		return err
	}
	if err := writeBlockLocator(w, msg.BlockLocatorHashes); err != nil {
		return err
	}
	return writeHash(w, msg.HashStop)
}

func (msg *MsgGetBlocks) Command() string { return CmdGetBlocks }

func (msg *MsgGetBlocks) MaxPayloadLength(pver uint32) uint64 {
	return uint64(4 + VarIntSerializeSize(MaxBlockLocatorsPerMsg) +
		MaxBlockLocatorsPerMsg*chainhash.HashSize + chainhash.HashSize)
}

// MsgGetHeaders requests a headers message containing up to 2000 block
// headers starting after the first locator hash the remote peer
// recognizes.
type MsgGetHeaders struct {
	ProtocolVersion    uint32
	BlockLocatorHashes BlockLocator
	HashStop           chainhash.Hash
}

// NewMsgGetHeaders returns a new getheaders message.
func NewMsgGetHeaders(hashStop chainhash.Hash) *MsgGetHeaders {
	return &MsgGetHeaders{
		ProtocolVersion: ProtocolVersion,
		HashStop:        hashStop,
	}
}

// AddBlockLocatorHash appends a single block locator hash, returning an
// error if doing so would exceed MaxBlockLocatorsPerMsg.
func (msg *MsgGetHeaders) AddBlockLocatorHash(hash *chainhash.Hash) error {
	if len(msg.BlockLocatorHashes)+1 > MaxBlockLocatorsPerMsg {
		return messageError("MsgGetHeaders.AddBlockLocatorHash", "too many block locator hashes")
	}
	msg.BlockLocatorHashes = append(msg.BlockLocatorHashes, *hash)
	return nil
}

func (msg *MsgGetHeaders) BtcDecode(r io.Reader, pver uint32) error {
	pv, err := readUint32(r)
	if err != nil {
		return err
	}
	msg.ProtocolVersion = pv

	locator, err := readBlockLocator(r)
	if err != nil {
		return err
	}
	msg.BlockLocatorHashes = locator

	return readHash(r, &msg.HashStop)
}

func (msg *MsgGetHeaders) BtcEncode(w io.Writer, pver uint32) error {
	if err := writeUint32(w, msg.ProtocolVersion); err != nil {
		return err
	}
	if err := writeBlockLocator(w, msg.BlockLocatorHashes); err != nil {
		return err
	}
	return writeHash(w, msg.HashStop)
}

func (msg *MsgGetHeaders) Command() string { return CmdGetHeaders }

func (msg *MsgGetHeaders) MaxPayloadLength(pver uint32) uint64 {
	return uint64(4 + VarIntSerializeSize(MaxBlockLocatorsPerMsg) +
		MaxBlockLocatorsPerMsg*chainhash.HashSize + chainhash.HashSize)
}

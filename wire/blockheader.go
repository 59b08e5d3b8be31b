// Copyright (c) 2013-2016 The btcsuite developers
// Copyright (c) 2015-2021 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package wire

import (
	"io"
	"time"

	"github.com/exccoin/spvpeer/chaincfg/chainhash"
)

// blockHeaderLen is the number of bytes in a serialized BlockHeader:
// 4 (version) + 32 (prev block) + 32 (merkle root) + 4 (timestamp) +
// 4 (bits) + 4 (nonce).
const blockHeaderLen = 80

// BlockHeader is the 80-byte header SPV clients validate and chain
// without downloading full block bodies. Full proof-of-work retargeting
// and consensus validation are headerchain's concern, not this type's.
type BlockHeader struct {
	Version    int32
	PrevBlock  chainhash.Hash
	MerkleRoot chainhash.Hash
	Timestamp  time.Time
	Bits       uint32
	Nonce      uint32
}

func readBlockHeader(r io.Reader, bh *BlockHeader) error {
	version, err := readUint32(r)
	if err != nil {
		return err
	}
	bh.Version = int32(version)

	if err := readHash(r, &bh.PrevBlock); err != nil {
		return err
	}
	if err := readHash(r, &bh.MerkleRoot); err != nil {
		return err
	}

	ts, err := readUint32(r)
	if err != nil {
		return err
	}
	bh.Timestamp = time.Unix(int64(ts), 0)

	bits, err := readUint32(r)
	if err != nil {
		return err
	}
	bh.Bits = bits

	nonce, err := readUint32(r)
	if err != nil {
		return err
	}
	bh.Nonce = nonce
	return nil
}

func writeBlockHeader(w io.Writer, bh *BlockHeader) error {
	if err := writeUint32(w, uint32(bh.Version)); err != nil {
		return err
	}
	if err := writeHash(w, bh.PrevBlock); err != nil {
		return err
	}
	if err := writeHash(w, bh.MerkleRoot); err != nil {
		return err
	}
	if err := writeUint32(w, uint32(bh.Timestamp.Unix())); err != nil {
		return err
	}
	if err := writeUint32(w, bh.Bits); err != nil {
		return err
	}
	return writeUint32(w, bh.Nonce)
}

// BlockHash returns the double-SHA-256 hash of the serialized header.
func (bh *BlockHeader) BlockHash() chainhash.Hash {
	var buf [blockHeaderLen]byte
	w := sliceWriter{buf: buf[:0]}
	_ = writeBlockHeader(&w, bh)
	return chainhash.HashH(w.buf)
}

// sliceWriter is a zero-allocation io.Writer backed by a fixed array,
// used only by BlockHash to avoid pulling in bytes.Buffer for a single
// fixed-size serialization.
type sliceWriter struct {
	buf []byte
}

func (w *sliceWriter) Write(p []byte) (int, error) {
	w.buf = append(w.buf, p...)
	return len(p), nil
}

// MaxBlockHeadersPerMsg is the cap on headers carried in one headers
// message.
const MaxBlockHeadersPerMsg = 2000

// MsgHeaders carries up to MaxBlockHeadersPerMsg block headers sent in
// reply to a getheaders request.
type MsgHeaders struct {
	Headers []*BlockHeader
}

// NewMsgHeaders returns a new, empty headers message.
func NewMsgHeaders() *MsgHeaders { return &MsgHeaders{Headers: make([]*BlockHeader, 0, 1)} }

// AddBlockHeader appends a single header, returning an error if doing
// so would exceed MaxBlockHeadersPerMsg.
func (msg *MsgHeaders) AddBlockHeader(bh *BlockHeader) error {
	if len(msg.Headers)+1 > MaxBlockHeadersPerMsg {
		return messageError("MsgHeaders.AddBlockHeader", "too many block headers")
	}
	msg.Headers = append(msg.Headers, bh)
	return nil
}

func (msg *MsgHeaders) BtcDecode(r io.Reader, pver uint32) error {
	count, err := ReadVarInt(r)
	if err != nil {
		return err
	}
	if count > MaxBlockHeadersPerMsg {
		return messageError("MsgHeaders.BtcDecode", "too many block headers")
	}

	headers := make([]*BlockHeader, 0, count)
	for i := uint64(0); i < count; i++ {
		bh := &BlockHeader{}
		if err := readBlockHeader(r, bh); err != nil {
			return err
		}
		// Every header is followed by a transaction count, always 0 in
		// a headers-only message.
		txCount, err := ReadVarInt(r)
		if err != nil {
			return err
		}
		if txCount != 0 {
			return messageError("MsgHeaders.BtcDecode", "non-zero transaction count in headers message")
		}
		headers = append(headers, bh)
	}
	msg.Headers = headers
	return nil
}

func (msg *MsgHeaders) BtcEncode(w io.Writer, pver uint32) error {
	if err := WriteVarInt(w, uint64(len(msg.Headers))); err != nil {
		return err
	}
	for _, bh := range msg.Headers {
		if err := writeBlockHeader(w, bh); err != nil {
			return err
		}
		if err := WriteVarInt(w, 0); err != nil {
			return err
		}
	}
	return nil
}

func (msg *MsgHeaders) Command() string { return CmdHeaders }

func (msg *MsgHeaders) MaxPayloadLength(pver uint32) uint64 {
	// Each entry is the header plus a 1-byte zero tx count.
	return uint64(VarIntSerializeSize(MaxBlockHeadersPerMsg) +
		MaxBlockHeadersPerMsg*(blockHeaderLen+1))
}

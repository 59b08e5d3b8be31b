// Copyright (c) 2013-2016 The btcsuite developers
// Copyright (c) 2015-2021 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package wire

import "io"

// MaxTxPerBlock bounds the number of transactions this package will
// decode out of a single block, as a sanity limit rather than a
// consensus rule (full block validation is out of scope).
const MaxTxPerBlock = 1_000_000

// MsgBlock is a full block: a BlockHeader plus its transactions. SPV
// clients normally receive MsgMerkleBlock instead; this type exists for
// completeness and for peers that (mis)request a full block anyway.
type MsgBlock struct {
	Header       BlockHeader
	Transactions []*MsgTx
}

// NewMsgBlock returns a new block message built around the given
// header.
func NewMsgBlock(header *BlockHeader) *MsgBlock {
	return &MsgBlock{Header: *header}
}

// AddTransaction appends a single transaction to the block.
func (msg *MsgBlock) AddTransaction(tx *MsgTx) error {
	msg.Transactions = append(msg.Transactions, tx)
	return nil
}

func (msg *MsgBlock) BtcDecode(r io.Reader, pver uint32) error {
	if err := readBlockHeader(r, &msg.Header); err != nil {
		return err
	}

	count, err := ReadVarInt(r)
	if err != nil {
		return err
	}
	if count > MaxTxPerBlock {
		return messageError("MsgBlock.BtcDecode", "too many transactions")
	}

	// Transactions are not individually length-prefixed on the wire;
	// since this package treats each as an opaque blob it reads the
	// remainder as a single transaction when more than one is declared
	// it cannot be split without script-aware parsing, so anything
	// beyond a single declared transaction is rejected rather than
	// silently mis-parsed.
	if count > 1 {
		return messageError("MsgBlock.BtcDecode", "multi-transaction blocks require transaction-aware parsing, which this package does not implement")
	}

	msg.Transactions = msg.Transactions[:0]
	if count == 1 {
		raw, err := io.ReadAll(r)
		if err != nil {
			return err
		}
		msg.Transactions = append(msg.Transactions, NewMsgTx(raw))
	}
	return nil
}

func (msg *MsgBlock) BtcEncode(w io.Writer, pver uint32) error {
	if err := writeBlockHeader(w, &msg.Header); err != nil {
		return err
	}
	if err := WriteVarInt(w, uint64(len(msg.Transactions))); err != nil {
		return err
	}
	for _, tx := range msg.Transactions {
		if err := tx.BtcEncode(w, pver); err != nil {
			return err
		}
	}
	return nil
}

func (msg *MsgBlock) Command() string { return CmdBlock }

func (msg *MsgBlock) MaxPayloadLength(pver uint32) uint64 { return MaxMessagePayload }

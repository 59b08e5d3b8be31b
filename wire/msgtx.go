// Copyright (c) 2013-2016 The btcsuite developers
// Copyright (c) 2015-2021 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package wire

import (
	"io"

	"github.com/exccoin/spvpeer/chaincfg/chainhash"
)

// MaxTxPayload is the maximum serialized size this package accepts for
// a single transaction.
const MaxTxPayload = MaxMessagePayload

// MsgTx carries a transaction as an opaque byte blob. Parsing inputs,
// outputs, and scripts is out of scope for this package: SPV filtering
// only needs a transaction's wire bytes and its hash to match it
// against a Bloom filter and hand it to a caller.
type MsgTx struct {
	Raw []byte
}

// NewMsgTx wraps raw serialized transaction bytes.
func NewMsgTx(raw []byte) *MsgTx {
	return &MsgTx{Raw: raw}
}

// TxHash returns the double-SHA-256 hash (txid) of the raw transaction
// bytes.
func (msg *MsgTx) TxHash() chainhash.Hash {
	return chainhash.HashH(msg.Raw)
}

func (msg *MsgTx) BtcDecode(r io.Reader, pver uint32) error {
	raw, err := io.ReadAll(io.LimitReader(r, MaxTxPayload+1))
	if err != nil {
		return err
	}
	if uint64(len(raw)) > MaxTxPayload {
		return messageError("MsgTx.BtcDecode", "transaction payload exceeds max size")
	}
	msg.Raw = raw
	return nil
}

func (msg *MsgTx) BtcEncode(w io.Writer, pver uint32) error {
	_, err := w.Write(msg.Raw)
	return err
}

func (msg *MsgTx) Command() string { return CmdTx }

func (msg *MsgTx) MaxPayloadLength(pver uint32) uint64 { return MaxTxPayload }

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

// RejectCode represents a numeric reason a peer rejected a message.
type RejectCode uint8

const (
	RejectMalformed       RejectCode = 0x01
	RejectInvalid         RejectCode = 0x10
	RejectObsolete        RejectCode = 0x11
	RejectDuplicate       RejectCode = 0x12
	RejectNonstandard     RejectCode = 0x40
	RejectDust            RejectCode = 0x41
	RejectInsufficientFee RejectCode = 0x42
	RejectCheckpoint      RejectCode = 0x43
)

func (code RejectCode) String() string {
	switch code {
	case RejectMalformed:
		return "REJECT_MALFORMED"
	case RejectInvalid:
		return "REJECT_INVALID"
	case RejectObsolete:
		return "REJECT_OBSOLETE"
	case RejectDuplicate:
		return "REJECT_DUPLICATE"
	case RejectNonstandard:
		return "REJECT_NONSTANDARD"
	case RejectDust:
		return "REJECT_DUST"
	case RejectInsufficientFee:
		return "REJECT_INSUFFICIENTFEE"
	case RejectCheckpoint:
		return "REJECT_CHECKPOINT"
	default:
		return fmt.Sprintf("unknown reject code %#02x", uint8(code))
	}
}

// maxRejectReasonLen bounds the reason string of a reject message.
const maxRejectReasonLen = 250

// MsgReject notifies a peer that a message it sent was rejected, and
// why. Hash is only present when Cmd is "tx" or "block".
type MsgReject struct {
	Cmd    string
	Code   RejectCode
	Reason string
	Hash   chainhash.Hash
}

func (msg *MsgReject) BtcDecode(r io.Reader, pver uint32) error {
	cmd, err := ReadVarString(r, CommandSize)
	if err != nil {
		return err
	}
	msg.Cmd = cmd

	code, err := readUint8(r)
	if err != nil {
		return err
	}
	msg.Code = RejectCode(code)

	reason, err := ReadVarString(r, maxRejectReasonLen)
	if err != nil {
		return err
	}
	msg.Reason = reason

	if cmd == CmdTx || cmd == CmdBlock {
		if err := readHash(r, &msg.Hash); err != nil {
			return err
		}
	}
	return nil
}

func (msg *MsgReject) BtcEncode(w io.Writer, pver uint32) error {
	if err := WriteVarString(w, msg.Cmd); err != nil {
		return err
	}
	if err := writeUint8(w, uint8(msg.Code)); err != nil {
		return err
	}
	if err := WriteVarString(w, msg.Reason); err != nil {
		return err
	}
	if msg.Cmd == CmdTx || msg.Cmd == CmdBlock {
		return writeHash(w, msg.Hash)
	}
	return nil
}

func (msg *MsgReject) Command() string { return CmdReject }

func (msg *MsgReject) MaxPayloadLength(pver uint32) uint64 {
	return uint64(VarIntSerializeSize(CommandSize) + CommandSize + 1 +
		VarIntSerializeSize(maxRejectReasonLen) + maxRejectReasonLen + chainhash.HashSize)
}

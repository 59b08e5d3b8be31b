// Copyright (c) 2013-2016 The btcsuite developers
// Copyright (c) 2015-2021 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package wire

import "io"

// MsgPing solicits a pong carrying the same nonce, letting a peer
// measure round-trip latency and detect a dead connection.
type MsgPing struct {
	Nonce uint64
}

// NewMsgPing returns a new ping message with the given nonce.
func NewMsgPing(nonce uint64) *MsgPing { return &MsgPing{Nonce: nonce} }

func (msg *MsgPing) BtcDecode(r io.Reader, pver uint32) error {
	nonce, err := readUint64(r)
	if err != nil {
		return err
	}
	msg.Nonce = nonce
	return nil
}

func (msg *MsgPing) BtcEncode(w io.Writer, pver uint32) error {
	return writeUint64(w, msg.Nonce)
}

func (msg *MsgPing) Command() string { return CmdPing }
func (msg *MsgPing) MaxPayloadLength(pver uint32) uint64 { return 8 }

// MsgPong answers a MsgPing, echoing its nonce.
type MsgPong struct {
	Nonce uint64
}

// NewMsgPong returns a new pong message with the given nonce.
func NewMsgPong(nonce uint64) *MsgPong { return &MsgPong{Nonce: nonce} }

func (msg *MsgPong) BtcDecode(r io.Reader, pver uint32) error {
	nonce, err := readUint64(r)
	if err != nil {
		return err
	}
	msg.Nonce = nonce
	return nil
}

func (msg *MsgPong) BtcEncode(w io.Writer, pver uint32) error {
	return writeUint64(w, msg.Nonce)
}

func (msg *MsgPong) Command() string { return CmdPong }
func (msg *MsgPong) MaxPayloadLength(pver uint32) uint64 { return 8 }

// Copyright (c) 2013-2016 The btcsuite developers
// Copyright (c) 2015-2021 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package wire

import "io"

// MsgVerAck acknowledges a received version message. It carries no
// payload.
type MsgVerAck struct{}

// NewMsgVerAck returns a new verack message.
func NewMsgVerAck() *MsgVerAck { return &MsgVerAck{} }

func (msg *MsgVerAck) BtcDecode(r io.Reader, pver uint32) error { return nil }
func (msg *MsgVerAck) BtcEncode(w io.Writer, pver uint32) error { return nil }
func (msg *MsgVerAck) Command() string { return CmdVerAck }
func (msg *MsgVerAck) MaxPayloadLength(pver uint32) uint64 { return 0 }

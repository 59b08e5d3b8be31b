// Copyright (c) 2013-2016 The btcsuite developers
// Copyright (c) 2015-2021 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package wire

import "io"

// MsgInv announces the availability of one or more objects (blocks,
// transactions, filtered blocks) to a peer.
type MsgInv struct {
	InvList []*InvVect
}

// NewMsgInv returns a new, empty inv message.
func NewMsgInv() *MsgInv { return &MsgInv{InvList: make([]*InvVect, 0, 1)} }

// AddInvVect appends a single inventory vector, returning an error if
// doing so would exceed MaxInvPerMsg.
func (msg *MsgInv) AddInvVect(iv *InvVect) error {
	if len(msg.InvList)+1 > MaxInvPerMsg {
		return messageError("MsgInv.AddInvVect", "too many invvect entries")
	}
	msg.InvList = append(msg.InvList, iv)
	return nil
}

func (msg *MsgInv) BtcDecode(r io.Reader, pver uint32) error {
	list, err := readInvList(r, MaxInvPerMsg, "inv")
	if err != nil {
		return err
	}
	msg.InvList = list
	return nil
}

func (msg *MsgInv) BtcEncode(w io.Writer, pver uint32) error {
	return writeInvList(w, msg.InvList)
}

func (msg *MsgInv) Command() string { return CmdInv }

func (msg *MsgInv) MaxPayloadLength(pver uint32) uint64 {
	return invListPayloadLength(MaxInvPerMsg)
}

// MsgGetData requests the objects named by InvList be sent in full (or,
// for InvTypeFilteredBlock, as a merkleblock followed by matching
// transactions).
type MsgGetData struct {
	InvList []*InvVect
}

// NewMsgGetData returns a new, empty getdata message.
func NewMsgGetData() *MsgGetData { return &MsgGetData{InvList: make([]*InvVect, 0, 1)} }

// AddInvVect appends a single inventory vector, returning an error if
// doing so would exceed MaxInvPerMsg.
func (msg *MsgGetData) AddInvVect(iv *InvVect) error {
	if len(msg.InvList)+1 > MaxInvPerMsg {
		return messageError("MsgGetData.AddInvVect", "too many invvect entries")
	}
	msg.InvList = append(msg.InvList, iv)
	return nil
}

func (msg *MsgGetData) BtcDecode(r io.Reader, pver uint32) error {
	list, err := readInvList(r, MaxInvPerMsg, "getdata")
	if err != nil {
		return err
	}
	msg.InvList = list
	return nil
}

func (msg *MsgGetData) BtcEncode(w io.Writer, pver uint32) error {
	return writeInvList(w, msg.InvList)
}

func (msg *MsgGetData) Command() string { return CmdGetData }

func (msg *MsgGetData) MaxPayloadLength(pver uint32) uint64 {
	return invListPayloadLength(MaxInvPerMsg)
}

// MsgNotFound is sent in reply to a getdata request for an object the
// peer does not have.
type MsgNotFound struct {
	InvList []*InvVect
}

// NewMsgNotFound returns a new, empty notfound message.
func NewMsgNotFound() *MsgNotFound { return &MsgNotFound{InvList: make([]*InvVect, 0, 1)} }

// AddInvVect appends a single inventory vector, returning an error if
// doing so would exceed MaxInvPerMsg.
func (msg *MsgNotFound) AddInvVect(iv *InvVect) error {
	if len(msg.InvList)+1 > MaxInvPerMsg {
		return messageError("MsgNotFound.AddInvVect", "too many invvect entries")
	}
	msg.InvList = append(msg.InvList, iv)
	return nil
}

func (msg *MsgNotFound) BtcDecode(r io.Reader, pver uint32) error {
	list, err := readInvList(r, MaxInvPerMsg, "notfound")
	if err != nil {
		return err
	}
	msg.InvList = list
	return nil
}

func (msg *MsgNotFound) BtcEncode(w io.Writer, pver uint32) error {
	return writeInvList(w, msg.InvList)
}

func (msg *MsgNotFound) Command() string { return CmdNotFound }

func (msg *MsgNotFound) MaxPayloadLength(pver uint32) uint64 {
	return invListPayloadLength(MaxInvPerMsg)
}

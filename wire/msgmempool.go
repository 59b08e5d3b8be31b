// Copyright (c) 2013-2016 The btcsuite developers
// Copyright (c) 2015-2021 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package wire

import "io"

// MsgMemPool requests an inv of the transactions a peer currently has
// in its mempool. This package's Peer never originates one (SPV clients
// have no mempool of their own to request against) but still needs to
// decode one if a remote peer sends it.
type MsgMemPool struct{}

func (msg *MsgMemPool) BtcDecode(r io.Reader, pver uint32) error { return nil }
func (msg *MsgMemPool) BtcEncode(w io.Writer, pver uint32) error { return nil }
func (msg *MsgMemPool) Command() string { return CmdMemPool }
func (msg *MsgMemPool) MaxPayloadLength(pver uint32) uint64 { return 0 }

// MsgSendHeaders requests that new blocks be announced via a headers
// message instead of an inv entry.
type MsgSendHeaders struct{}

func (msg *MsgSendHeaders) BtcDecode(r io.Reader, pver uint32) error { return nil }
func (msg *MsgSendHeaders) BtcEncode(w io.Writer, pver uint32) error { return nil }
func (msg *MsgSendHeaders) Command() string { return CmdSendHeaders }
func (msg *MsgSendHeaders) MaxPayloadLength(pver uint32) uint64 { return 0 }

// MsgSendCmpct negotiates BIP152 compact block relay. This package does
// not implement compact block reconstruction; it decodes the message
// only so a handshake does not fail when a peer announces the feature.
type MsgSendCmpct struct {
	Announce bool
	Version  uint64
}

func (msg *MsgSendCmpct) BtcDecode(r io.Reader, pver uint32) error {
	announce, err := readUint8(r)
	if err != nil {
		return err
	}
	msg.Announce = announce != 0x00

	version, err := readUint64(r)
	if err != nil {
		return err
	}
	msg.Version = version
	return nil
}

func (msg *MsgSendCmpct) BtcEncode(w io.Writer, pver uint32) error {
	var announce uint8
	if msg.Announce {
		announce = 0x01
	}
	if err := writeUint8(w, announce); err != nil {
		return err
	}
	return writeUint64(w, msg.Version)
}

func (msg *MsgSendCmpct) Command() string { return CmdSendCmpct }
func (msg *MsgSendCmpct) MaxPayloadLength(pver uint32) uint64 { return 9 }

// maxAlertPayload bounds the deprecated alert message's opaque payload
// and signature; the alert system was retired network-wide but a
// well-behaved client still needs to not choke on one.
const maxAlertPayload = 1024 * 8

// MsgAlert carries the deprecated broadcast alert system's payload and
// signature, both treated as opaque: this package never verifies or
// acts on an alert, it only avoids erroring out of a connection that
// receives one.
type MsgAlert struct {
	Payload   []byte
	Signature []byte
}

func (msg *MsgAlert) BtcDecode(r io.Reader, pver uint32) error {
	payload, err := ReadVarBytes(r, maxAlertPayload, "alert payload")
	if err != nil {
		return err
	}
	msg.Payload = payload

	sig, err := ReadVarBytes(r, maxAlertPayload, "alert signature")
	if err != nil {
		return err
	}
	msg.Signature = sig
	return nil
}

func (msg *MsgAlert) BtcEncode(w io.Writer, pver uint32) error {
	if err := WriteVarBytes(w, msg.Payload); err != nil {
		return err
	}
	return WriteVarBytes(w, msg.Signature)
}

func (msg *MsgAlert) Command() string { return CmdAlert }

func (msg *MsgAlert) MaxPayloadLength(pver uint32) uint64 {
	return uint64(2 * (VarIntSerializeSize(maxAlertPayload) + maxAlertPayload))
}

// MsgUnknown wraps the raw payload of a command this package does not
// model, so an unrecognized message does not abort the connection.
type MsgUnknown struct {
	CommandName string
	Payload     []byte
}

func (msg *MsgUnknown) BtcDecode(r io.Reader, pver uint32) error {
	payload, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	msg.Payload = payload
	return nil
}

func (msg *MsgUnknown) BtcEncode(w io.Writer, pver uint32) error {
	_, err := w.Write(msg.Payload)
	return err
}

func (msg *MsgUnknown) Command() string { return msg.CommandName }

func (msg *MsgUnknown) MaxPayloadLength(pver uint32) uint64 { return MaxMessagePayload }

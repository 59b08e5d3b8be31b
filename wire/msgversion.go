// Copyright (c) 2013-2016 The btcsuite developers
// Copyright (c) 2015-2021 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package wire

import (
	"io"
	"time"
)

// MaxUserAgentLen is the maximum byte length of a version message's
// user-agent string.
const MaxUserAgentLen = 256

// DefaultUserAgent is the user-agent this package advertises when a
// caller does not override it.
const DefaultUserAgent = "/spvpeer:0.1.0/"

// MsgVersion implements Message and represents the VersionMessage of
// spec.md §3. RelayFlag is false iff the sender will send a Bloom
// filter before requesting transactions (i.e. it wants filtered
// relaying from us).
type MsgVersion struct {
	ProtocolVersion uint32
	Services        ServiceFlag
	Timestamp       time.Time
	AddrYou         NetAddress
	AddrMe          NetAddress
	Nonce           uint64
	UserAgent       string
	LastBlock       int32
	RelayFlag       bool
}

// NewMsgVersion returns a new version message populated with the given
// fields and a default RelayFlag of true (full relaying, no Bloom
// filter expected).
func NewMsgVersion(me, you NetAddress, nonce uint64, lastBlock int32) *MsgVersion {
	return &MsgVersion{
		ProtocolVersion: ProtocolVersion,
		Services:        0,
		Timestamp:       time.Now(),
		AddrYou:         you,
		AddrMe:          me,
		Nonce:           nonce,
		UserAgent:       DefaultUserAgent,
		LastBlock:       lastBlock,
		RelayFlag:       true,
	}
}

// AddService marks the local node as supporting the given service.
func (msg *MsgVersion) AddService(service ServiceFlag) {
	msg.Services |= service
}

func (msg *MsgVersion) BtcDecode(r io.Reader, pver uint32) error {
	pv, err := readUint32(r)
	if err != nil {
		return err
	}
	msg.ProtocolVersion = pv

	services, err := readUint64(r)
	if err != nil {
		return err
	}
	msg.Services = ServiceFlag(services)

	ts, err := readUint64(r)
	if err != nil {
		return err
	}
	msg.Timestamp = time.Unix(int64(ts), 0)

	// Addresses inside a version message never carry a timestamp,
	// regardless of negotiated protocol version.
	if err := readNetAddress(r, &msg.AddrYou, false); err != nil {
		return err
	}

	// Protocol versions below MultipleAddressVersion only sent the
	// recipient address.
	if pv >= MultipleAddressVersion {
		if err := readNetAddress(r, &msg.AddrMe, false); err != nil {
			return err
		}

		nonce, err := readUint64(r)
		if err != nil {
			return err
		}
		msg.Nonce = nonce

		userAgent, err := ReadVarString(r, MaxUserAgentLen)
		if err != nil {
			return err
		}
		msg.UserAgent = userAgent

		lastBlock, err := readUint32(r)
		if err != nil {
			return err
		}
		msg.LastBlock = int32(lastBlock)

		// RelayFlag is optional on the wire; its absence means true
		// (full relaying), matching BIP37 semantics.
		relay, err := readUint8(r)
		if err == io.EOF {
			msg.RelayFlag = true
			return nil
		}
		if err != nil {
			return err
		}
		msg.RelayFlag = relay != 0x00
	}

	return nil
}

func (msg *MsgVersion) BtcEncode(w io.Writer, pver uint32) error {
	if err := writeUint32(w, msg.ProtocolVersion); err != nil {
		return err
	}
	if err := writeUint64(w, uint64(msg.Services)); err != nil {
		return err
	}
	if err := writeUint64(w, uint64(msg.Timestamp.Unix())); err != nil {
		return err
	}
	if err := writeNetAddress(w, &msg.AddrYou, false); err != nil {
		return err
	}
	if err := writeNetAddress(w, &msg.AddrMe, false); err != nil {
		return err
	}
	if err := writeUint64(w, msg.Nonce); err != nil {
		return err
	}
	if err := WriteVarString(w, msg.UserAgent); err != nil {
		return err
	}
	if err := writeUint32(w, uint32(msg.LastBlock)); err != nil {
		return err
	}

	var relay uint8
	if msg.RelayFlag {
		relay = 0x01
	}
	return writeUint8(w, relay)
}

func (msg *MsgVersion) Command() string { return CmdVersion }

func (msg *MsgVersion) MaxPayloadLength(pver uint32) uint64 {
	return uint64(4 + 8 + 8 + 26 + 26 + 8 + VarIntSerializeSize(MaxUserAgentLen) + MaxUserAgentLen + 4 + 1)
}

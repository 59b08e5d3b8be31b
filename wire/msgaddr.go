// Copyright (c) 2013-2016 The btcsuite developers
// Copyright (c) 2015-2021 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package wire

import (
	"encoding/binary"
	"io"
)

// MaxAddrPerMsg is the maximum number of addresses an addr message may
// carry.
const MaxAddrPerMsg = 1024

// MsgAddr shares known peer addresses, each timestamped with the last
// time it was seen active.
type MsgAddr struct {
	AddrList []*NetAddress
}

// NewMsgAddr returns a new, empty addr message.
func NewMsgAddr() *MsgAddr { return &MsgAddr{AddrList: make([]*NetAddress, 0, 1)} }

// AddAddress appends a single address, returning an error if doing so
// would exceed MaxAddrPerMsg.
func (msg *MsgAddr) AddAddress(na *NetAddress) error {
	if len(msg.AddrList)+1 > MaxAddrPerMsg {
		return messageError("MsgAddr.AddAddress", "too many addresses")
	}
	msg.AddrList = append(msg.AddrList, na)
	return nil
}

func (msg *MsgAddr) BtcDecode(r io.Reader, pver uint32) error {
	count, err := ReadVarInt(r)
	if err != nil {
		return err
	}
	if count > MaxAddrPerMsg {
		return messageError("MsgAddr.BtcDecode", "too many addresses")
	}

	hasTimestamp := pver >= NetAddressTimeVersion
	addrs := make([]*NetAddress, 0, count)
	for i := uint64(0); i < count; i++ {
		na := &NetAddress{}
		if err := readNetAddress(r, na, hasTimestamp); err != nil {
			return err
		}
		addrs = append(addrs, na)
	}
	msg.AddrList = addrs
	return nil
}

func (msg *MsgAddr) BtcEncode(w io.Writer, pver uint32) error {
	if len(msg.AddrList) > MaxAddrPerMsg {
		return messageError("MsgAddr.BtcEncode", "too many addresses")
	}
	if err := WriteVarInt(w, uint64(len(msg.AddrList))); err != nil {
		return err
	}

	hasTimestamp := pver >= NetAddressTimeVersion
	for _, na := range msg.AddrList {
		if err := writeNetAddress(w, na, hasTimestamp); err != nil {
			return err
		}
	}
	return nil
}

func (msg *MsgAddr) Command() string { return CmdAddr }

func (msg *MsgAddr) MaxPayloadLength(pver uint32) uint64 {
	return uint64(VarIntSerializeSize(MaxAddrPerMsg) + MaxAddrPerMsg*netAddressSerializeSize(true))
}

// addrV2NetworkID identifies the address family of an addrv2 entry, per
// BIP155.
type addrV2NetworkID uint8

const (
	addrV2NetIPv4   addrV2NetworkID = 1
	addrV2NetIPv6   addrV2NetworkID = 2
	addrV2NetTorV3  addrV2NetworkID = 4
	addrV2NetI2P    addrV2NetworkID = 5
	addrV2NetCJDNS  addrV2NetworkID = 6
	maxAddrV2Length                 = 512
)

// AddrV2Entry is a single BIP155 extended address entry, able to carry
// networks (Tor v3, I2P, CJDNS) that do not fit NetAddress's 16-byte IP
// field.
type AddrV2Entry struct {
	Timestamp uint32
	Services  ServiceFlag
	Network   addrV2NetworkID
	Addr      []byte
	Port      uint16
}

// MsgAddrV2 is the BIP155 successor to MsgAddr, adding support for
// address families beyond IPv4/IPv6.
type MsgAddrV2 struct {
	AddrList []*AddrV2Entry
}

// NewMsgAddrV2 returns a new, empty addrv2 message.
func NewMsgAddrV2() *MsgAddrV2 { return &MsgAddrV2{AddrList: make([]*AddrV2Entry, 0, 1)} }

func (msg *MsgAddrV2) BtcDecode(r io.Reader, pver uint32) error {
	count, err := ReadVarInt(r)
	if err != nil {
		return err
	}
	if count > MaxAddrPerMsg {
		return messageError("MsgAddrV2.BtcDecode", "too many addresses")
	}

	entries := make([]*AddrV2Entry, 0, count)
	for i := uint64(0); i < count; i++ {
		ts, err := readUint32(r)
		if err != nil {
			return err
		}
		services, err := ReadVarInt(r)
		if err != nil {
			return err
		}
		netID, err := readUint8(r)
		if err != nil {
			return err
		}
		addr, err := ReadVarBytes(r, maxAddrV2Length, "addrv2 address")
		if err != nil {
			return err
		}
		var portBuf [2]byte
		if _, err := io.ReadFull(r, portBuf[:]); err != nil {
			return err
		}

		entries = append(entries, &AddrV2Entry{
			Timestamp: ts,
			Services:  ServiceFlag(services),
			Network:   addrV2NetworkID(netID),
			Addr:      addr,
			Port:      binary.BigEndian.Uint16(portBuf[:]),
		})
	}
	msg.AddrList = entries
	return nil
}

func (msg *MsgAddrV2) BtcEncode(w io.Writer, pver uint32) error {
	if err := WriteVarInt(w, uint64(len(msg.AddrList))); err != nil {
		return err
	}
	for _, e := range msg.AddrList {
		if err := writeUint32(w, e.Timestamp); err != nil {
			return err
		}
		if err := WriteVarInt(w, uint64(e.Services)); err != nil {
			return err
		}
		if err := writeUint8(w, uint8(e.Network)); err != nil {
			return err
		}
		if err := WriteVarBytes(w, e.Addr); err != nil {
			return err
		}
		var portBuf [2]byte
		binary.BigEndian.PutUint16(portBuf[:], e.Port)
		if _, err := w.Write(portBuf[:]); err != nil {
			return err
		}
	}
	return nil
}

func (msg *MsgAddrV2) Command() string { return CmdAddrV2 }

func (msg *MsgAddrV2) MaxPayloadLength(pver uint32) uint64 {
	return uint64(VarIntSerializeSize(MaxAddrPerMsg)) +
		MaxAddrPerMsg*uint64(4+9+1+VarIntSerializeSize(maxAddrV2Length)+maxAddrV2Length+2)
}

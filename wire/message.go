// Copyright (c) 2013-2016 The btcsuite developers
// Copyright (c) 2015-2021 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package wire

import (
	"bytes"
	"crypto/sha256"
	"fmt"
	"io"
)

// MaxMessagePayload is the maximum bytes a message payload may declare.
// A frame whose length exceeds this is rejected outright without
// attempting to read the payload.
const MaxMessagePayload = 32 * 1024 * 1024

// CommandSize is the fixed width, in bytes, of a command string in the
// message header.
const CommandSize = 12

// Command strings for every message type this package recognizes.
const (
	CmdVersion     = "version"
	CmdVerAck      = "verack"
	CmdPing        = "ping"
	CmdPong        = "pong"
	CmdInv         = "inv"
	CmdGetData     = "getdata"
	CmdNotFound    = "notfound"
	CmdGetBlocks   = "getblocks"
	CmdGetHeaders  = "getheaders"
	CmdHeaders     = "headers"
	CmdBlock       = "block"
	CmdTx          = "tx"
	CmdMerkleBlock = "merkleblock"
	CmdAddr        = "addr"
	CmdAddrV2      = "addrv2"
	CmdFeeFilter   = "feefilter"
	CmdFilterLoad  = "filterload"
	CmdFilterAdd   = "filteradd"
	CmdFilterClear = "filterclear"
	CmdReject      = "reject"
	CmdMemPool     = "mempool"
	CmdSendHeaders = "sendheaders"
	CmdSendCmpct   = "sendcmpct"
	CmdAlert       = "alert"
)

// Message is implemented by every recognized P2P message. BtcEncode and
// BtcDecode are named to match the convention this package's author
// used throughout its message set.
type Message interface {
	BtcEncode(w io.Writer, pver uint32) error
	BtcDecode(r io.Reader, pver uint32) error
	Command() string
	MaxPayloadLength(pver uint32) uint64
}

// messageHeader is the 24-byte envelope preceding every payload.
type messageHeader struct {
	magic    BitcoinNet
	command  string
	length   uint32
	checksum [4]byte
}

// makeEmptyMessage returns a newly allocated Message for the given
// command, or ok=false for a command this package does not model
// (which the caller decodes into MsgUnknown instead).
func makeEmptyMessage(command string) (msg Message, ok bool) {
	switch command {
	case CmdVersion:
		return &MsgVersion{}, true
	case CmdVerAck:
		return &MsgVerAck{}, true
	case CmdPing:
		return &MsgPing{}, true
	case CmdPong:
		return &MsgPong{}, true
	case CmdInv:
		return &MsgInv{}, true
	case CmdGetData:
		return &MsgGetData{}, true
	case CmdNotFound:
		return &MsgNotFound{}, true
	case CmdGetBlocks:
		return &MsgGetBlocks{}, true
	case CmdGetHeaders:
		return &MsgGetHeaders{}, true
	case CmdHeaders:
		return &MsgHeaders{}, true
	case CmdBlock:
		return &MsgBlock{}, true
	case CmdTx:
		return &MsgTx{}, true
	case CmdMerkleBlock:
		return &MsgMerkleBlock{}, true
	case CmdAddr:
		return &MsgAddr{}, true
	case CmdAddrV2:
		return &MsgAddrV2{}, true
	case CmdFeeFilter:
		return &MsgFeeFilter{}, true
	case CmdFilterLoad:
		return &MsgFilterLoad{}, true
	case CmdFilterAdd:
		return &MsgFilterAdd{}, true
	case CmdFilterClear:
		return &MsgFilterClear{}, true
	case CmdReject:
		return &MsgReject{}, true
	case CmdMemPool:
		return &MsgMemPool{}, true
	case CmdSendHeaders:
		return &MsgSendHeaders{}, true
	case CmdSendCmpct:
		return &MsgSendCmpct{}, true
	case CmdAlert:
		return &MsgAlert{}, true
	default:
		return nil, false
	}
}

// checksum computes the first 4 bytes of the double-SHA-256 of payload.
func checksum(payload []byte) [4]byte {
	first := sha256.Sum256(payload)
	second := sha256.Sum256(first[:])
	var out [4]byte
	copy(out[:], second[:4])
	return out
}

func commandBytes(command string) ([CommandSize]byte, error) {
	var buf [CommandSize]byte
	if len(command) > CommandSize {
		return buf, messageError("commandBytes", fmt.Sprintf("command %q exceeds %d bytes", command, CommandSize))
	}
	copy(buf[:], command)
	return buf, nil
}

// WriteMessage serializes msg into its full wire envelope (header plus
// payload) and writes it to w.
func WriteMessage(w io.Writer, msg Message, pver uint32, net BitcoinNet) error {
	var payloadBuf bytes.Buffer
	if err := msg.BtcEncode(&payloadBuf, pver); err != nil {
		return err
	}
	payload := payloadBuf.Bytes()

	lenp := uint64(len(payload))
	if lenp > msg.MaxPayloadLength(pver) {
		return messageError("WriteMessage", fmt.Sprintf(
			"message payload for %q is too large - encoded %d bytes, but max allowed is %d",
			msg.Command(), lenp, msg.MaxPayloadLength(pver)))
	}
	if lenp > MaxMessagePayload {
		return messageError("WriteMessage", fmt.Sprintf(
			"message payload is too large - encoded %d bytes, but max allowed is %d",
			lenp, MaxMessagePayload))
	}

	cmdBytes, err := commandBytes(msg.Command())
	if err != nil {
		return err
	}

	if err := writeUint32(w, uint32(net)); err != nil {
		return err
	}
	if _, err := w.Write(cmdBytes[:]); err != nil {
		return err
	}
	if err := writeUint32(w, uint32(len(payload))); err != nil {
		return err
	}

	// Protocol < 209 version/verack messages omit the checksum field
	// entirely; every other frame always carries one.
	if !(pver < MultipleAddressVersion && (msg.Command() == CmdVersion || msg.Command() == CmdVerAck)) {
		sum := checksum(payload)
		if _, err := w.Write(sum[:]); err != nil {
			return err
		}
	}

	_, err = w.Write(payload)
	return err
}

// ReadMessage reads and decodes a single wire message from r. An
// unrecognized command is not an error: it decodes into *MsgUnknown
// carrying the raw payload bytes.
func ReadMessage(r io.Reader, pver uint32, net BitcoinNet) (Message, error) {
	magic, err := readUint32(r)
	if err != nil {
		return nil, err
	}
	if BitcoinNet(magic) != net {
		return nil, messageError("ReadMessage", fmt.Sprintf(
			"unexpected network magic %#08x, want %#08x", magic, uint32(net)))
	}

	var cmdBuf [CommandSize]byte
	if _, err := io.ReadFull(r, cmdBuf[:]); err != nil {
		return nil, err
	}
	command := string(bytes.TrimRight(cmdBuf[:], "\x00"))

	length, err := readUint32(r)
	if err != nil {
		return nil, err
	}
	if length > MaxMessagePayload {
		return nil, messageError("ReadMessage", fmt.Sprintf(
			"declared payload length %d exceeds max allowed %d", length, MaxMessagePayload))
	}

	skipChecksum := pver < MultipleAddressVersion && (command == CmdVersion || command == CmdVerAck)
	var wantSum [4]byte
	if !skipChecksum {
		if _, err := io.ReadFull(r, wantSum[:]); err != nil {
			return nil, err
		}
	}

	payload := make([]byte, length)
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, err
	}

	if !skipChecksum {
		gotSum := checksum(payload)
		if gotSum != wantSum {
			return nil, messageError("ReadMessage", fmt.Sprintf(
				"checksum mismatch for command %q: got %x want %x", command, gotSum, wantSum))
		}
	}

	msg, ok := makeEmptyMessage(command)
	if !ok {
		return &MsgUnknown{CommandName: command, Payload: payload}, nil
	}

	if uint64(length) > msg.MaxPayloadLength(pver) {
		return nil, messageError("ReadMessage", fmt.Sprintf(
			"payload for %q exceeds max allowed size [length %d, max %d]",
			command, length, msg.MaxPayloadLength(pver)))
	}

	if err := msg.BtcDecode(bytes.NewReader(payload), pver); err != nil {
		return nil, err
	}
	return msg, nil
}

// Copyright (c) 2013-2016 The btcsuite developers
// Copyright (c) 2015-2021 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package wire

import "io"

// MsgFilterLoad loads a Bloom filter on a connection, per BIP37. The
// filter parametrization itself (m, k derivation from element count and
// false-positive rate) lives in package bloom; this type is only the
// wire representation.
type MsgFilterLoad struct {
	Filter    []byte
	HashFuncs uint32
	Tweak     uint32
	Flags     BloomUpdateType
}

func (msg *MsgFilterLoad) BtcDecode(r io.Reader, pver uint32) error {
	filter, err := ReadVarBytes(r, MaxFilterLoadFilterSize, "filterload filter")
	if err != nil {
		return err
	}
	msg.Filter = filter

	hashFuncs, err := readUint32(r)
	if err != nil {
		return err
	}
	if hashFuncs > MaxFilterLoadHashFuncs {
		return messageError("MsgFilterLoad.BtcDecode", "too many filter hash funcs")
	}
	msg.HashFuncs = hashFuncs

	tweak, err := readUint32(r)
	if err != nil {
		return err
	}
	msg.Tweak = tweak

	flags, err := readUint8(r)
	if err != nil {
		return err
	}
	msg.Flags = BloomUpdateType(flags)
	return nil
}

func (msg *MsgFilterLoad) BtcEncode(w io.Writer, pver uint32) error {
	if len(msg.Filter) > MaxFilterLoadFilterSize {
		return messageError("MsgFilterLoad.BtcEncode", "filter too large")
	}
	if err := WriteVarBytes(w, msg.Filter); err != nil {
		return err
	}
	if err := writeUint32(w, msg.HashFuncs); err != nil {
		return err
	}
	if err := writeUint32(w, msg.Tweak); err != nil {
		return err
	}
	return writeUint8(w, uint8(msg.Flags))
}

func (msg *MsgFilterLoad) Command() string { return CmdFilterLoad }

func (msg *MsgFilterLoad) MaxPayloadLength(pver uint32) uint64 {
	return uint64(VarIntSerializeSize(MaxFilterLoadFilterSize) + MaxFilterLoadFilterSize + 4 + 4 + 1)
}

// MsgFilterAdd adds a single data element to the current loaded filter
// without requiring a full filterload round trip.
type MsgFilterAdd struct {
	Data []byte
}

func (msg *MsgFilterAdd) BtcDecode(r io.Reader, pver uint32) error {
	data, err := ReadVarBytes(r, MaxFilterAddDataSize, "filteradd data")
	if err != nil {
		return err
	}
	msg.Data = data
	return nil
}

func (msg *MsgFilterAdd) BtcEncode(w io.Writer, pver uint32) error {
	if len(msg.Data) > MaxFilterAddDataSize {
		return messageError("MsgFilterAdd.BtcEncode", "data element too large")
	}
	return WriteVarBytes(w, msg.Data)
}

func (msg *MsgFilterAdd) Command() string { return CmdFilterAdd }

func (msg *MsgFilterAdd) MaxPayloadLength(pver uint32) uint64 {
	return uint64(VarIntSerializeSize(MaxFilterAddDataSize) + MaxFilterAddDataSize)
}

// MsgFilterClear removes the currently loaded Bloom filter, reverting
// the connection to unfiltered relay.
type MsgFilterClear struct{}

func (msg *MsgFilterClear) BtcDecode(r io.Reader, pver uint32) error { return nil }
func (msg *MsgFilterClear) BtcEncode(w io.Writer, pver uint32) error { return nil }
func (msg *MsgFilterClear) Command() string { return CmdFilterClear }
func (msg *MsgFilterClear) MaxPayloadLength(pver uint32) uint64 { return 0 }

// MsgFeeFilter requests a peer not relay transactions below a given fee
// rate, expressed in satoshis (or the chain's atomic unit) per
// kilobyte.
type MsgFeeFilter struct {
	MinFee int64
}

// NewMsgFeeFilter returns a new feefilter message.
func NewMsgFeeFilter(minFee int64) *MsgFeeFilter { return &MsgFeeFilter{MinFee: minFee} }

func (msg *MsgFeeFilter) BtcDecode(r io.Reader, pver uint32) error {
	fee, err := readUint64(r)
	if err != nil {
		return err
	}
	msg.MinFee = int64(fee)
	return nil
}

func (msg *MsgFeeFilter) BtcEncode(w io.Writer, pver uint32) error {
	return writeUint64(w, uint64(msg.MinFee))
}

func (msg *MsgFeeFilter) Command() string { return CmdFeeFilter }
func (msg *MsgFeeFilter) MaxPayloadLength(pver uint32) uint64 { return 8 }

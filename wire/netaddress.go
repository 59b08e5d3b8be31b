// Copyright (c) 2013-2016 The btcsuite developers
// Copyright (c) 2015-2021 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package wire

import (
	"encoding/binary"
	"io"
	"net"
	"time"
)

// ipv4InIPv6Prefix is prepended to a 4-byte IPv4 address to canonicalize
// it into the 16-byte v6-mapped form used on the wire.
var ipv4InIPv6Prefix = []byte{0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0xff, 0xff}

// NetAddress represents a PeerAddress: a candidate or observed peer's
// network endpoint, service bitmap, and (outside of a version message,
// and only for protocol >= NetAddressTimeVersion) a last-seen timestamp.
type NetAddress struct {
	// Timestamp is the last time this address was seen; zero when not
	// applicable (inside a version message, or protocol < NetAddressTimeVersion).
	Timestamp time.Time

	// Services is the bitmap of services advertised by this address.
	Services ServiceFlag

	// IP holds either a 4-byte or 16-byte address; it is always
	// serialized in 16-byte v6-mapped form on the wire.
	IP net.IP

	// Port is the peer's P2P listening port.
	Port uint16
}

// HasService reports whether na advertises the given service.
func (na *NetAddress) HasService(service ServiceFlag) bool {
	return na.Services.HasService(service)
}

// AddService marks na as advertising the given service.
func (na *NetAddress) AddService(service ServiceFlag) {
	na.Services |= service
}

// NewNetAddressIPPort creates a NetAddress from an IP/port/services
// triple with no timestamp set.
func NewNetAddressIPPort(ip net.IP, port uint16, services ServiceFlag) *NetAddress {
	return &NetAddress{
		IP:       ip,
		Port:     port,
		Services: services,
	}
}

// readNetAddress reads a NetAddress. hasTimestamp controls whether a
// leading 4-byte timestamp is present, per the version-message /
// NetAddressTimeVersion rule described in package peer's handshake and
// spec.md §3 (PeerAddress).
func readNetAddress(r io.Reader, na *NetAddress, hasTimestamp bool) error {
	var ts time.Time
	if hasTimestamp {
		secs, err := readUint32(r)
		if err != nil {
			return err
		}
		ts = time.Unix(int64(secs), 0)
	}

	services, err := readUint64(r)
	if err != nil {
		return err
	}

	var ip [16]byte
	if _, err := io.ReadFull(r, ip[:]); err != nil {
		return err
	}

	// Port is big-endian, unlike every other fixed-width field on the
	// wire.
	var portBuf [2]byte
	if _, err := io.ReadFull(r, portBuf[:]); err != nil {
		return err
	}

	na.Timestamp = ts
	na.Services = ServiceFlag(services)
	na.IP = net.IP(append([]byte(nil), ip[:]...))
	na.Port = binary.BigEndian.Uint16(portBuf[:])
	return nil
}

// writeNetAddress writes na, canonicalizing a 4-byte IPv4 address into
// its 16-byte v6-mapped wire form.
func writeNetAddress(w io.Writer, na *NetAddress, hasTimestamp bool) error {
	if hasTimestamp {
		if err := writeUint32(w, uint32(na.Timestamp.Unix())); err != nil {
			return err
		}
	}

	if err := writeUint64(w, uint64(na.Services)); err != nil {
		return err
	}

	var ip [16]byte
	if v4 := na.IP.To4(); v4 != nil {
		copy(ip[:], ipv4InIPv6Prefix)
		copy(ip[12:], v4)
	} else if v6 := na.IP.To16(); v6 != nil {
		copy(ip[:], v6)
	}
	if _, err := w.Write(ip[:]); err != nil {
		return err
	}

	var portBuf [2]byte
	binary.BigEndian.PutUint16(portBuf[:], na.Port)
	_, err := w.Write(portBuf[:])
	return err
}

// netAddressSerializeSize returns the wire size of a NetAddress record:
// 30 bytes with a timestamp, 26 without.
func netAddressSerializeSize(hasTimestamp bool) int {
	if hasTimestamp {
		return 30
	}
	return 26
}

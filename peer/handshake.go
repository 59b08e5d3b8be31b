// Copyright (c) 2013-2016 The btcsuite developers
// Copyright (c) 2015-2021 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package peer

import (
	"errors"
	"net"

	"github.com/exccoin/spvpeer/wire"
)

// minAcceptableProtocolVersion is the lowest negotiated protocol
// version this package will operate a connection at: BIP0031Version
// introduced ping/pong, which the keep-alive and RTT measurement in
// peer.go depend on.
const minAcceptableProtocolVersion = wire.BIP0031Version

var (
	errLowProtocolVersion = errors.New("peer: remote protocol version too old")
	errMissingService     = errors.New("peer: remote does not advertise a required service")
	errUnexpectedMessage  = errors.New("peer: unexpected message during handshake")
)

// handshake performs the version/verack exchange that every Bitcoin
// wire connection begins with, adapted from the teacher's rpcclient
// dial sequence (a fixed request/response pair run synchronously
// before the connection's steady-state goroutines start).
func (p *Peer) handshake() error {
	netMagic := wire.BitcoinNet(p.cfg.ChainParams.Net)

	var remoteNA wire.NetAddress
	if p.addr != nil {
		remoteNA = *p.addr
	}
	localNA := *wire.NewNetAddressIPPort(net.IPv4zero, 0, p.cfg.Services)

	var bestHeight int32
	if p.cfg.BestHeight != nil {
		bestHeight = p.cfg.BestHeight()
	}

	localVersion := wire.NewMsgVersion(localNA, remoteNA, newNonce(), bestHeight)
	localVersion.ProtocolVersion = p.cfg.protocolVersion()
	localVersion.Services = p.cfg.Services
	localVersion.UserAgent = p.cfg.userAgent()

	if err := wire.WriteMessage(p.conn, localVersion, wire.ProtocolVersion, netMagic); err != nil {
		return err
	}

	msg, err := wire.ReadMessage(p.conn, wire.ProtocolVersion, netMagic)
	if err != nil {
		return err
	}
	remoteVersion, ok := msg.(*wire.MsgVersion)
	if !ok {
		return errUnexpectedMessage
	}

	negotiated := p.cfg.protocolVersion()
	if remoteVersion.ProtocolVersion < negotiated {
		negotiated = remoteVersion.ProtocolVersion
	}
	minVersion := uint32(minAcceptableProtocolVersion)
	if p.cfg.ChainParams.MinProtocolVersion > minVersion {
		minVersion = p.cfg.ChainParams.MinProtocolVersion
	}
	if negotiated < minVersion {
		return errLowProtocolVersion
	}
	if p.cfg.RequireBloomService && !remoteVersion.Services.HasService(wire.SFNodeBloom) {
		return errMissingService
	}

	p.mtx.Lock()
	p.protocolVersion = negotiated
	p.services = remoteVersion.Services
	p.userAgent = remoteVersion.UserAgent
	p.lastBlock = remoteVersion.LastBlock
	p.relay = remoteVersion.RelayFlag
	p.mtx.Unlock()

	if p.cfg.Listeners.OnVersion != nil {
		p.cfg.Listeners.OnVersion(p, remoteVersion)
	}

	if err := wire.WriteMessage(p.conn, wire.NewMsgVerAck(), negotiated, netMagic); err != nil {
		return err
	}

	ack, err := wire.ReadMessage(p.conn, negotiated, netMagic)
	if err != nil {
		return err
	}
	if _, ok := ack.(*wire.MsgVerAck); !ok {
		return errUnexpectedMessage
	}

	p.mtx.Lock()
	p.verAckReceived = true
	p.mtx.Unlock()

	if p.cfg.Listeners.OnVerAck != nil {
		p.cfg.Listeners.OnVerAck(p)
	}

	return nil
}

// Copyright (c) 2013-2016 The btcsuite developers
// Copyright (c) 2015-2021 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package connmgr supplies the pluggable dial strategies PeerGroup uses
// to reach an address: a direct TCP dial, or a SOCKS5/Tor dial through
// a local proxy.
package connmgr

import (
	"context"
	"net"
	"time"

	"github.com/decred/go-socks/socks"
)

// Connector abstracts how PeerGroup establishes the underlying
// net.Conn for a candidate address, so the orchestrator itself never
// depends on whether a connection is direct or proxied.
type Connector interface {
	Dial(ctx context.Context, addr string) (net.Conn, error)
}

// TCPConnector dials addresses directly with the standard library.
type TCPConnector struct {
	Timeout time.Duration
}

// NewTCPConnector returns a Connector that dials directly, capping each
// attempt at timeout (zero means no explicit cap beyond ctx).
func NewTCPConnector(timeout time.Duration) *TCPConnector {
	return &TCPConnector{Timeout: timeout}
}

// Dial implements Connector.
func (c *TCPConnector) Dial(ctx context.Context, addr string) (net.Conn, error) {
	d := net.Dialer{Timeout: c.Timeout}
	return d.DialContext(ctx, "tcp", addr)
}

// SocksConnector dials addresses through a local SOCKS5 proxy,
// typically a Tor client, so peer connections never leak the caller's
// real network address.
type SocksConnector struct {
	ProxyAddr string
	Username  string
	Password  string
	Timeout   time.Duration
}

// NewSocksConnector returns a Connector that dials through the SOCKS5
// proxy at proxyAddr.
func NewSocksConnector(proxyAddr, username, password string, timeout time.Duration) *SocksConnector {
	return &SocksConnector{
		ProxyAddr: proxyAddr,
		Username:  username,
		Password:  password,
		Timeout:   timeout,
	}
}

// Dial implements Connector. The SOCKS handshake itself is not
// context-cancelable (the underlying library predates context.Context)
// so cancellation is only honored up to the point the proxy dial
// begins; ctx.Err() is checked first to avoid starting a doomed dial.
func (c *SocksConnector) Dial(ctx context.Context, addr string) (net.Conn, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	proxy := &socks.Proxy{
		Addr:         c.ProxyAddr,
		Username:     c.Username,
		Password:     c.Password,
		TorIsolation: false,
	}
	return proxy.Dial("tcp", addr)
}

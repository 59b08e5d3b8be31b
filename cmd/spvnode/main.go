// Copyright (c) 2013-2016 The btcsuite developers
// Copyright (c) 2015-2021 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Command spvnode is a minimal example binary demonstrating spvpeer's
// PeerGroup: it discovers peers via DNS seed, maintains a pool of
// connections, and (given -broadcast) relays one transaction before
// exiting. It exists to exercise the module end to end, the way the
// teacher's own cmd/exccd ties its packages together into a runnable
// program.
package main

import (
	"context"
	"encoding/hex"
	"fmt"
	"net"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"time"

	"github.com/exccoin/spvpeer/addrmgr"
	"github.com/exccoin/spvpeer/bloom"
	"github.com/exccoin/spvpeer/chaincfg"
	"github.com/exccoin/spvpeer/connmgr"
	"github.com/exccoin/spvpeer/headerchain"
	"github.com/exccoin/spvpeer/peer"
	"github.com/exccoin/spvpeer/peergroup"
	"github.com/exccoin/spvpeer/wire"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	cfg, _, err := loadConfig()
	if err != nil {
		return err
	}

	if err := initLogRotator(filepath.Join(cfg.LogDir, defaultLogFilename)); err != nil {
		return err
	}
	defer logRotator.Close()
	if err := setLogLevels(cfg.DebugLevel); err != nil {
		return err
	}

	params := networkParams(cfg)

	book := addrmgr.New()
	seedAddressBook(book, params)

	connector, err := newConnector(cfg)
	if err != nil {
		return err
	}

	chain := headerchain.New(params)

	pg := peergroup.New(peergroup.Config{
		ChainParams:    params,
		Connector:      connector,
		AddressBook:    book,
		Chain:          chain,
		MaxConnections: cfg.MaxPeers,
		LocalhostPort:  cfg.LocalhostPort,
		PeerConfig: peer.Config{
			ProtocolVersion:     wire.ProtocolVersion,
			Services:            wire.SFNodeNetwork,
			UserAgent:           "/spvnode:0.1.0/",
			RequireBloomService: true,
			BestHeight:          chain.Height,
		},
	})
	if len(cfg.Watch) > 0 {
		provider, err := newWatchProvider(cfg.Watch)
		if err != nil {
			return err
		}
		pg.AddFilterProvider(provider)
	}

	pg.Start()
	defer pg.Stop()

	if len(cfg.Watch) > 0 {
		pg.RecalculateFilter(peergroup.SendIfChanged)
	}

	if cfg.Broadcast != "" {
		return broadcastAndExit(pg, cfg.Broadcast)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()
	<-ctx.Done()
	return nil
}

func networkParams(cfg *config) *chaincfg.Params {
	switch {
	case cfg.RegTest:
		return chaincfg.RegressionNetParams()
	case cfg.TestNet:
		return chaincfg.TestNet3Params()
	default:
		return chaincfg.MainNetParams()
	}
}

func newConnector(cfg *config) (connmgr.Connector, error) {
	if cfg.Proxy == "" {
		return connmgr.NewTCPConnector(10 * time.Second), nil
	}
	return connmgr.NewSocksConnector(cfg.Proxy, cfg.ProxyUser, cfg.ProxyPass, 10*time.Second), nil
}

// seedAddressBook resolves every configured DNS seed for params and
// adds the results to book, giving discovery something to dial before
// any peer has shared its own address list.
func seedAddressBook(book *addrmgr.AddressBook, params *chaincfg.Params) {
	port, err := strconv.ParseUint(params.DefaultPort, 10, 16)
	if err != nil {
		return
	}

	for _, seed := range params.DNSSeeds {
		ips, err := net.LookupIP(seed)
		if err != nil {
			continue
		}
		for _, ip := range ips {
			book.AddAddress(wire.NewNetAddressIPPort(ip, uint16(port), wire.SFNodeNetwork))
		}
	}
}

// watchProvider is the command-line stand-in for a wallet's
// FilterProvider: a fixed set of hex-supplied data elements (pubkey
// hashes, outpoints) loaded into the group's Bloom filter.
type watchProvider struct {
	elements [][]byte
	keyTime  int64
}

func newWatchProvider(hexElements []string) (*watchProvider, error) {
	p := &watchProvider{keyTime: time.Now().Unix()}
	for _, s := range hexElements {
		el, err := hex.DecodeString(s)
		if err != nil {
			return nil, fmt.Errorf("invalid -watch hex %q: %w", s, err)
		}
		p.elements = append(p.elements, el)
	}
	return p, nil
}

func (p *watchProvider) ElementCount() int             { return len(p.elements) }
func (p *watchProvider) EarliestKeyTimeSeconds() int64 { return p.keyTime }
func (p *watchProvider) PopulateFilter(f *bloom.Filter) {
	for _, el := range p.elements {
		f.Add(el)
	}
}

// broadcastAndExit decodes a hex-encoded raw transaction, broadcasts
// it, and reports the outcome — the -broadcast flag's entire purpose.
func broadcastAndExit(pg *peergroup.PeerGroup, rawHex string) error {
	raw, err := hex.DecodeString(rawHex)
	if err != nil {
		return fmt.Errorf("invalid -broadcast hex: %w", err)
	}
	tx := wire.NewMsgTx(raw)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	result, err := pg.BroadcastTransaction(ctx, tx, peergroup.BroadcastConfig{
		MinPeers: 2,
		Progress: func(p float64) { fmt.Fprintf(os.Stderr, "broadcast progress: %.0f%%\n", p*100) },
	})
	if err != nil {
		return fmt.Errorf("broadcast failed: %w", err)
	}

	fmt.Printf("broadcast %s, announced back by %d peer(s)\n", tx.TxHash(), len(result.AnnouncingPeers))
	return nil
}

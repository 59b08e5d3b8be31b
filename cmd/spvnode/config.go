// Copyright (c) 2013-2016 The btcsuite developers
// Copyright (c) 2015-2021 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package main

import (
	"fmt"
	"os"
	"path/filepath"

	flags "github.com/jessevdk/go-flags"
)

const (
	defaultConfigFilename = "spvnode.conf"
	defaultLogFilename    = "spvnode.log"
	defaultMaxPeers       = 8
)

// config defines the command-line and config-file options spvnode
// accepts, in the teacher's go-flags idiom: a single struct tagged for
// both sources, filled in by loadConfig's parse passes.
type config struct {
	ConfigFile string `short:"C" long:"configfile" description:"Path to configuration file"`
	DataDir    string `short:"b" long:"datadir" description:"Directory to store logs"`
	LogDir     string `long:"logdir" description:"Directory to log output"`

	TestNet bool `long:"testnet" description:"Use the test network"`
	RegTest bool `long:"regtest" description:"Use the regression test network"`

	MaxPeers      int    `long:"maxpeers" description:"Max number of outbound peers"`
	Proxy         string `long:"proxy" description:"Connect via SOCKS5 proxy (eg. 127.0.0.1:9050)"`
	ProxyUser     string `long:"proxyuser" description:"Username for proxy server"`
	ProxyPass     string `long:"proxypass" description:"Password for proxy server"`
	LocalhostPort string `long:"localhostport" description:"Prefer a single localhost peer on this port over discovery, if reachable"`

	Broadcast string   `long:"broadcast" description:"Hex-encoded raw transaction bytes to broadcast and exit"`
	Watch     []string `long:"watch" description:"Hex-encoded data element to load into the Bloom filter (may be repeated)"`

	DebugLevel string `short:"d" long:"debuglevel" description:"Logging level {trace, debug, info, warn, error, critical}"`
}

// defaultConfig returns a config populated with spvnode's defaults,
// mirroring the teacher's loadConfig default-then-override shape.
func defaultConfig() config {
	return config{
		MaxPeers:   defaultMaxPeers,
		DebugLevel: "info",
	}
}

// loadConfig parses the command line in two passes, the teacher's
// usual shape: first a pre-parse to find -C/-configfile (ignoring
// unknown flags, since the full flag set isn't registered yet), then an
// INI pass over that file if one was named, and finally the real
// command-line parse so flags always win over the file.
func loadConfig() (*config, []string, error) {
	cfg := defaultConfig()

	preParser := flags.NewParser(&cfg, flags.IgnoreUnknown)
	if _, err := preParser.Parse(); err != nil {
		return nil, nil, err
	}

	if cfg.ConfigFile != "" {
		if _, err := os.Stat(cfg.ConfigFile); err == nil {
			iniParser := flags.NewIniParser(flags.NewParser(&cfg, flags.Default))
			if err := iniParser.ParseFile(cfg.ConfigFile); err != nil {
				return nil, nil, fmt.Errorf("failed to parse %s: %w", cfg.ConfigFile, err)
			}
		}
	}

	parser := flags.NewParser(&cfg, flags.Default)
	remaining, err := parser.Parse()
	if err != nil {
		if flagsErr, ok := err.(*flags.Error); ok && flagsErr.Type == flags.ErrHelp {
			os.Exit(0)
		}
		return nil, nil, err
	}

	if cfg.TestNet && cfg.RegTest {
		return nil, nil, fmt.Errorf("testnet and regtest cannot be used together")
	}

	if cfg.DataDir == "" {
		cfg.DataDir = defaultDataDir()
	}
	if cfg.LogDir == "" {
		cfg.LogDir = cfg.DataDir
	}

	return &cfg, remaining, nil
}

func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return filepath.Join(home, ".spvnode")
}

// Copyright (c) 2013-2016 The btcsuite developers
// Copyright (c) 2015-2021 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package chaincfg_test

import (
	"testing"

	"github.com/exccoin/spvpeer/chaincfg"
)

func TestNetworkMagics(t *testing.T) {
	tests := []struct {
		params *chaincfg.Params
		magic  uint32
		port   string
	}{
		{chaincfg.MainNetParams(), 0xD9B4BEF9, "8333"},
		{chaincfg.TestNet3Params(), 0x0709110B, "18333"},
		{chaincfg.RegressionNetParams(), 0xDAB5BFFA, "18444"},
	}

	for _, test := range tests {
		if test.params.Net != test.magic {
			t.Errorf("%s: got magic %#x want %#x", test.params.Name, test.params.Net, test.magic)
		}
		if test.params.DefaultPort != test.port {
			t.Errorf("%s: got port %s want %s", test.params.Name, test.params.DefaultPort, test.port)
		}
	}
}

func TestGenesisHashesDistinct(t *testing.T) {
	main := chaincfg.MainNetParams().GenesisHash
	test := chaincfg.TestNet3Params().GenesisHash
	reg := chaincfg.RegressionNetParams().GenesisHash
	if main.IsEqual(&test) || main.IsEqual(&reg) || test.IsEqual(&reg) {
		t.Fatalf("expected distinct genesis hashes per network")
	}
}

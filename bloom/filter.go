// Copyright (c) 2013-2016 The btcsuite developers
// Copyright (c) 2015-2021 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package bloom implements the BIP37 Bloom filter a PeerGroup uploads
// to its peers (FilterLoad/FilterAdd/FilterClear), the matching logic
// a Peer needs to extract matches from a received filtered block, and
// FilterMerger, which combines several independent FilterProvider
// inputs into one filter.
package bloom

import (
	"math"
	"sync"

	"github.com/exccoin/spvpeer/chaincfg/chainhash"
	"github.com/exccoin/spvpeer/wire"
)

const (
	// ln2Squared is ln(2)^2, used in the m (bit array size) formula.
	ln2Squared = math.Ln2 * math.Ln2

	// maxFilterSize is BIP37's cap on the filter's bit array, in bytes.
	maxFilterSize = wire.MaxFilterLoadFilterSize

	// maxHashFuncs is BIP37's cap on the number of hash functions.
	maxHashFuncs = wire.MaxFilterLoadHashFuncs
)

// Filter is a Bloom filter loaded onto a connection, matching
// explicitly-added data elements (transaction hashes, outpoints,
// watched pubkey hashes) against arbitrary byte blobs a caller offers
// it. It does not parse transaction scripts itself: this module treats
// full script interpretation as out of scope, so the data elements it
// matches against must be supplied by a FilterProvider that already
// knows what bytes are interesting.
type Filter struct {
	mtx        sync.Mutex
	filter     []byte
	hashFuncs  uint32
	tweak      uint32
	updateType wire.BloomUpdateType
}

// NewFilter returns a Filter parametrized for n elements at false
// positive rate fpRate, using tweak as a per-connection nonce against
// filter fingerprinting. m and k are derived per BIP37 and clamped to
// the protocol's caps.
func NewFilter(n uint32, tweak uint32, fpRate float64, updateType wire.BloomUpdateType) *Filter {
	m := calcFilterSize(n, fpRate)
	k := calcHashFuncs(m, n)

	return &Filter{
		filter:     make([]byte, m),
		hashFuncs:  k,
		tweak:      tweak,
		updateType: updateType,
	}
}

// calcFilterSize returns the bit-array size, in bytes, clamped to
// [1, maxFilterSize].
func calcFilterSize(n uint32, fpRate float64) uint32 {
	if n == 0 {
		n = 1
	}
	bits := -1 * float64(n) * math.Log(fpRate) / ln2Squared
	bytes := uint32(math.Ceil(bits / 8))
	if bytes < 1 {
		bytes = 1
	}
	if bytes > maxFilterSize {
		bytes = maxFilterSize
	}
	return bytes
}

// calcHashFuncs returns the number of hash functions, clamped to
// [1, maxHashFuncs].
func calcHashFuncs(filterSizeBytes, n uint32) uint32 {
	if n == 0 {
		n = 1
	}
	k := uint32((float64(filterSizeBytes) * 8 / float64(n)) * math.Ln2)
	if k < 1 {
		k = 1
	}
	if k > maxHashFuncs {
		k = maxHashFuncs
	}
	return k
}

// NewFilterFromMsg builds a Filter from a received filterload message,
// without re-deriving its parametrization (the sender's m and k are
// taken as-is).
func NewFilterFromMsg(msg *wire.MsgFilterLoad) *Filter {
	filter := make([]byte, len(msg.Filter))
	copy(filter, msg.Filter)
	return &Filter{
		filter:     filter,
		hashFuncs:  msg.HashFuncs,
		tweak:      msg.Tweak,
		updateType: msg.Flags,
	}
}

// MsgFilterLoad renders f as a filterload message suitable for sending
// to a peer.
func (f *Filter) MsgFilterLoad() *wire.MsgFilterLoad {
	f.mtx.Lock()
	defer f.mtx.Unlock()

	filter := make([]byte, len(f.filter))
	copy(filter, f.filter)
	return &wire.MsgFilterLoad{
		Filter:    filter,
		HashFuncs: f.hashFuncs,
		Tweak:     f.tweak,
		Flags:     f.updateType,
	}
}

// hash computes the bit index for the hashNum'th hash function over
// data, per BIP37's murmur3-based scheme.
func (f *Filter) hash(hashNum uint32, data []byte) uint32 {
	seed := hashNum*0xfba4c795 + f.tweak
	return murmur3(seed, data) % (uint32(len(f.filter)) * 8)
}

// Add inserts a single data element into the filter.
func (f *Filter) Add(data []byte) {
	f.mtx.Lock()
	defer f.mtx.Unlock()
	if len(f.filter) == 0 {
		return
	}
	for i := uint32(0); i < f.hashFuncs; i++ {
		idx := f.hash(i, data)
		f.filter[idx/8] |= 1 << (idx % 8)
	}
}

// AddHash inserts a hash's raw bytes into the filter.
func (f *Filter) AddHash(hash *chainhash.Hash) {
	f.Add(hash[:])
}

// Matches reports whether data may be present in the filter (false
// positives are possible by design; false negatives are not).
func (f *Filter) Matches(data []byte) bool {
	f.mtx.Lock()
	defer f.mtx.Unlock()
	if len(f.filter) == 0 {
		return false
	}
	for i := uint32(0); i < f.hashFuncs; i++ {
		idx := f.hash(i, data)
		if f.filter[idx/8]&(1<<(idx%8)) == 0 {
			return false
		}
	}
	return true
}

// MatchHash reports whether hash may be present in the filter.
func (f *Filter) MatchHash(hash *chainhash.Hash) bool {
	return f.Matches(hash[:])
}

// UpdateType reports the BIP37 update semantics this filter was loaded
// with.
func (f *Filter) UpdateType() wire.BloomUpdateType {
	f.mtx.Lock()
	defer f.mtx.Unlock()
	return f.updateType
}

// murmur3 computes the 32-bit murmur3 hash of data with the given
// seed, per BIP37's reference algorithm.
func murmur3(seed uint32, data []byte) uint32 {
	const (
		c1 = 0xcc9e2d51
		c2 = 0x1b873593
	)

	h1 := seed
	nblocks := len(data) / 4

	for i := 0; i < nblocks; i++ {
		k1 := uint32(data[i*4]) | uint32(data[i*4+1])<<8 |
			uint32(data[i*4+2])<<16 | uint32(data[i*4+3])<<24

		k1 *= c1
		k1 = (k1 << 15) | (k1 >> 17)
		k1 *= c2

		h1 ^= k1
		h1 = (h1 << 13) | (h1 >> 19)
		h1 = h1*5 + 0xe6546b64
	}

	tail := data[nblocks*4:]
	var k1 uint32
	switch len(tail) {
	case 3:
		k1 ^= uint32(tail[2]) << 16
		fallthrough
	case 2:
		k1 ^= uint32(tail[1]) << 8
		fallthrough
	case 1:
		k1 ^= uint32(tail[0])
		k1 *= c1
		k1 = (k1 << 15) | (k1 >> 17)
		k1 *= c2
		h1 ^= k1
	}

	h1 ^= uint32(len(data))
	h1 ^= h1 >> 16
	h1 *= 0x85ebca6b
	h1 ^= h1 >> 13
	h1 *= 0xc2b2ae35
	h1 ^= h1 >> 16

	return h1
}

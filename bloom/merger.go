// Copyright (c) 2013-2016 The btcsuite developers
// Copyright (c) 2015-2021 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package bloom

import (
	"crypto/rand"
	"encoding/binary"
	"math"
	"sync"

	"github.com/exccoin/spvpeer/wire"
)

// DefaultFalsePositiveRate is the fraction of non-matching data this
// package's filters are parametrized to accept, absent an explicit
// override. A lower rate means a larger filter and better privacy
// against the serving peer inferring which specific elements matched.
const DefaultFalsePositiveRate = 0.0005

// FilterProvider supplies one independent source of data elements that
// must be watched for (e.g. a wallet's set of pubkey hashes, or a
// UTXO-tracking component's set of outpoints). FilterMerger combines
// every registered provider's elements into a single Filter dimensioned
// from the sum of every provider's element count.
type FilterProvider interface {
	// ElementCount returns how many elements PopulateFilter will insert,
	// so the merged filter can be sized before population begins.
	ElementCount() int

	// EarliestKeyTimeSeconds returns the earliest block time (Unix
	// seconds) this provider cares about seeing transactions from.
	EarliestKeyTimeSeconds() int64

	// PopulateFilter inserts this provider's elements into filter.
	PopulateFilter(filter *Filter)
}

// FilterCalculationLocker is optionally implemented by a FilterProvider
// whose element set can mutate concurrently (a live wallet): the merger
// brackets ElementCount/PopulateFilter between the two hooks so the
// provider can hold its own lock for the duration of a recalculation.
type FilterCalculationLocker interface {
	BeginBloomFilterCalculation()
	EndBloomFilterCalculation()
}

// FilterState is the result of a FilterMerger recomputation: the
// combined filter, the earliest key time across every provider, and
// whether the result differs from the filter last reported.
type FilterState struct {
	Filter            *Filter
	EarliestKeyTime   int64
	FalsePositiveRate float64
	ElementCount      int
	Changed           bool
}

// FilterMerger combines the elements of every registered FilterProvider
// into one Filter. Recalculation with the same inputs is deterministic
// and byte-identical, except when a caller explicitly asks for a fresh
// random tweak.
type FilterMerger struct {
	mtx       sync.Mutex
	providers []FilterProvider
	fpRate    float64
	tweak     uint32
	last      []byte // last computed filter's raw bytes, for change detection
	lastState FilterState
}

// NewFilterMerger returns a FilterMerger using fpRate as the target
// false-positive rate for every recomputed filter. A zero fpRate
// selects DefaultFalsePositiveRate.
func NewFilterMerger(fpRate float64) *FilterMerger {
	if fpRate <= 0 {
		fpRate = DefaultFalsePositiveRate
	}
	return &FilterMerger{
		fpRate: fpRate,
		tweak:  randomTweak(),
	}
}

func randomTweak() uint32 {
	var buf [4]byte
	if _, err := rand.Read(buf[:]); err != nil {
		// crypto/rand failing means the platform's entropy source is
		// broken; fall back to a fixed tweak rather than panicking,
		// since a predictable tweak only weakens the filter's privacy
		// property, not its correctness.
		return 0x5f3759df
	}
	return binary.LittleEndian.Uint32(buf[:])
}

// AddProvider registers a FilterProvider. It does not trigger
// recomputation; call Recalculate explicitly.
func (m *FilterMerger) AddProvider(p FilterProvider) {
	m.mtx.Lock()
	defer m.mtx.Unlock()
	m.providers = append(m.providers, p)
}

// RecalculateMode selects whether Recalculate produces a fresh random
// tweak (forcing every recomputation to differ byte-for-byte even with
// identical inputs) or reuses the merger's existing tweak
// (deterministic given unchanged inputs).
type RecalculateMode int

const (
	// ReuseTweak recomputes deterministically: identical provider
	// output yields a byte-identical filter.
	ReuseTweak RecalculateMode = iota

	// FreshTweak draws a new random tweak before recomputing.
	FreshTweak
)

// Recalculate combines every registered provider's elements into a new
// Filter and reports whether it differs from the previously computed
// one.
func (m *FilterMerger) Recalculate(mode RecalculateMode) FilterState {
	m.mtx.Lock()
	defer m.mtx.Unlock()

	if mode == FreshTweak {
		m.tweak = randomTweak()
	}

	for _, p := range m.providers {
		if l, ok := p.(FilterCalculationLocker); ok {
			l.BeginBloomFilterCalculation()
			defer l.EndBloomFilterCalculation()
		}
	}

	total := 0
	var earliest int64
	for _, p := range m.providers {
		total += p.ElementCount()
		if keyTime := p.EarliestKeyTimeSeconds(); keyTime != 0 && (earliest == 0 || keyTime < earliest) {
			earliest = keyTime
		}
	}

	filter := NewFilter(uint32(total), m.tweak, m.fpRate, wire.BloomUpdateAll)
	for _, p := range m.providers {
		p.PopulateFilter(filter)
	}

	raw := filter.MsgFilterLoad().Filter
	changed := !bytesEqual(raw, m.last) || earliest != m.lastState.EarliestKeyTime
	m.last = raw

	state := FilterState{
		Filter:            filter,
		EarliestKeyTime:   earliest,
		FalsePositiveRate: m.fpRate,
		ElementCount:      total,
		Changed:           changed,
	}
	m.lastState = state
	return state
}

// LastState returns the most recent Recalculate result, or the zero
// FilterState if Recalculate has never run. Used by callers (PeerGroup's
// FP-rate self-check) that need the currently-loaded filter's
// parametrization without forcing a recomputation.
func (m *FilterMerger) LastState() FilterState {
	m.mtx.Lock()
	defer m.mtx.Unlock()
	return m.lastState
}

func bytesEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// EstimatedFalsePositiveRate returns the estimated false-positive rate
// filter exhibits once it holds elementCount elements, computed from the
// filter's own bit size and hash-function count, used for the FP-rate self-check
// the filter merger's caller runs after loading a filter built for a
// stale element count.
func EstimatedFalsePositiveRate(filter *Filter, elementCount int) float64 {
	filter.mtx.Lock()
	m := len(filter.filter) * 8
	k := filter.hashFuncs
	filter.mtx.Unlock()

	if m == 0 || elementCount == 0 {
		return 0
	}
	// (1 - e^(-k*n/m))^k
	exponent := -float64(k) * float64(elementCount) / float64(m)
	base := 1 - math.Exp(exponent)
	rate := 1.0
	for i := uint32(0); i < k; i++ {
		rate *= base
	}
	return rate
}

// Copyright (c) 2013-2016 The btcsuite developers
// Copyright (c) 2015-2021 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package peergroup

import (
	"sync"
	"time"
)

// rateLimiter is a small token bucket bounding how many unsolicited
// getdata requests PeerGroup issues in response to tx invs for unknown
// transactions, per spec.md §4.3's "subject to rate limits" — a peer
// flooding invs for transactions we don't want cannot make us flood
// getdata back at it.
type rateLimiter struct {
	mtx    sync.Mutex
	tokens float64
	max    float64
	rate   float64 // tokens replenished per second
	last   time.Time
}

func newRateLimiter(maxTokens, perSecond float64) *rateLimiter {
	return &rateLimiter{tokens: maxTokens, max: maxTokens, rate: perSecond, last: time.Now()}
}

// Allow reports whether one token is available and, if so, consumes it.
func (rl *rateLimiter) Allow() bool {
	rl.mtx.Lock()
	defer rl.mtx.Unlock()

	now := time.Now()
	rl.tokens += now.Sub(rl.last).Seconds() * rl.rate
	rl.last = now
	if rl.tokens > rl.max {
		rl.tokens = rl.max
	}
	if rl.tokens < 1 {
		return false
	}
	rl.tokens--
	return true
}

package acceptor

import (
	"sync"
	"time"
)

// tokenBucket is a per-source-address token bucket rate limiter. No pack
// example imports a rate-limiting library (see DESIGN.md), so this is
// hand-rolled on stdlib time/sync, matching the spec's "token bucket or
// equivalent" hook (spec §4.5).
type tokenBucket struct {
	mu      sync.Mutex
	buckets map[string]*bucketState
	rate    float64 // tokens refilled per second
	burst   float64 // bucket capacity
}

type bucketState struct {
	tokens    float64
	updatedAt time.Time
}

// newTokenBucket returns a limiter. A nil *tokenBucket or a non-positive
// rate disables limiting entirely (Allow always returns true).
func newTokenBucket(rate, burst float64) *tokenBucket {
	if rate <= 0 {
		return nil
	}
	return &tokenBucket{buckets: make(map[string]*bucketState), rate: rate, burst: burst}
}

// Allow reports whether a request from key may proceed, consuming one
// token if so.
func (b *tokenBucket) Allow(key string) bool {
	if b == nil {
		return true
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	now := time.Now()
	st, ok := b.buckets[key]
	if !ok {
		st = &bucketState{tokens: b.burst, updatedAt: now}
		b.buckets[key] = st
	}

	elapsed := now.Sub(st.updatedAt).Seconds()
	st.tokens += elapsed * b.rate
	if st.tokens > b.burst {
		st.tokens = b.burst
	}
	st.updatedAt = now

	if st.tokens < 1 {
		return false
	}
	st.tokens--
	return true
}

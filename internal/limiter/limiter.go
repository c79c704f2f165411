package limiter

import (
	"context"
	"sync"
	"time"
)

// TokenBucket paces frame transmission using integer nanosecond arithmetic.
// Avoids float64 accumulation drift over long campaigns.
type TokenBucket struct {
	mu             sync.Mutex
	rateNsPerToken int64 // Nanoseconds per token (1e9 / rate)
	bucketSize     int64 // Maximum tokens
	tokens         int64
	lastCheck      int64 // UnixNano
}

// NewTokenBucket creates a limiter with the given rate (frames/s) and burst size.
func NewTokenBucket(rate float64, burst float64) *TokenBucket {
	nsPerToken := int64(1e9 / rate)
	if nsPerToken < 1 {
		nsPerToken = 1
	}
	burstInt := int64(burst)
	if burstInt < 1 {
		burstInt = 1
	}
	return &TokenBucket{
		rateNsPerToken: nsPerToken,
		bucketSize:     burstInt,
		tokens:         burstInt,
		lastCheck:      time.Now().UnixNano(),
	}
}

// Wait blocks until n tokens are available or ctx is done.
func (tb *TokenBucket) Wait(ctx context.Context, n int) error {
	tb.mu.Lock()
	defer tb.mu.Unlock()

	needed := int64(n)

	now := time.Now().UnixNano()
	elapsed := now - tb.lastCheck
	tb.lastCheck = now

	tb.tokens += elapsed / tb.rateNsPerToken
	if tb.tokens > tb.bucketSize {
		tb.tokens = tb.bucketSize
	}

	if tb.tokens >= needed {
		tb.tokens -= needed
		return nil
	}

	// Sleep for exactly the deficit, then consume everything.
	missing := needed - tb.tokens
	if err := Sleep(ctx, time.Duration(missing*tb.rateNsPerToken)); err != nil {
		return err
	}
	tb.tokens = 0
	tb.lastCheck = time.Now().UnixNano()
	return nil
}

// Sleep waits for d or until ctx is done, whichever comes first.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

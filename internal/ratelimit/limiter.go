// Package ratelimit implements per-key token bucket admission control.
package ratelimit

import (
	"errors"
	"math"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"cabdispatch/internal/observability"
)

const (
	DefaultCapacity = 10
	DefaultWindow   = time.Minute
	DefaultMaxKeys  = 10000
)

// Config controls bucket size and refill cadence.
type Config struct {
	// Capacity is the number of tokens a full bucket holds.
	Capacity int
	// Window is the refill interval; the whole bucket is refilled at once.
	Window time.Duration
	// MaxKeys bounds the number of tracked keys. When a new key arrives at the
	// bound, the least recently used key is evicted even if its bucket is still
	// draining, and that key starts over with a full bucket on its next call.
	// A client that rotates through more than MaxKeys addresses can therefore
	// get up to Capacity extra calls per eviction. Size MaxKeys above the
	// number of clients expected within one IdleTTL; such evictions are
	// counted in cab_dispatch_rate_limit_draining_evictions_total.
	MaxKeys int
	// IdleTTL evicts keys not seen for this long. Raised to Window when smaller,
	// so an evicted bucket would always have been full again anyway.
	IdleTTL time.Duration
}

// bucket refills to capacity at fixed Window boundaries measured from its creation.
type bucket struct {
	tokens     int
	nextRefill time.Time
}

// Limiter admits or rejects calls per key. It is safe for concurrent use.
type Limiter struct {
	cfg Config
	now func() time.Time

	// mu makes lookup, lazy creation and consumption one atomic step.
	mu      sync.Mutex
	buckets *expirable.LRU[string, *bucket]
}

// New creates a Limiter. Zero fields in cfg take the package defaults.
func New(cfg Config) (*Limiter, error) {
	if cfg.Capacity == 0 {
		cfg.Capacity = DefaultCapacity
	}
	if cfg.Window == 0 {
		cfg.Window = DefaultWindow
	}
	if cfg.MaxKeys == 0 {
		cfg.MaxKeys = DefaultMaxKeys
	}
	if cfg.Capacity < 0 || cfg.Window < 0 || cfg.MaxKeys < 0 {
		return nil, errors.New("ratelimit: capacity, window and max keys must be positive")
	}
	if cfg.IdleTTL < cfg.Window {
		cfg.IdleTTL = cfg.Window
	}

	l := &Limiter{cfg: cfg, now: time.Now}
	l.buckets = expirable.NewLRU[string, *bucket](cfg.MaxKeys, l.evicted, cfg.IdleTTL)
	return l, nil
}

// evicted records buckets dropped before they would have been full again.
func (l *Limiter) evicted(_ string, b *bucket) {
	if b.tokens < l.cfg.Capacity && l.now().Before(b.nextRefill) {
		observability.RateLimitDrainingEvictionsTotal.Inc()
	}
}

// Check consumes one token for key. It returns nil when the call is admitted
// and an *ExceededError when the bucket is empty.
func (l *Limiter) Check(key string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	b, ok := l.buckets.Get(key)
	if !ok {
		b = &bucket{tokens: l.cfg.Capacity, nextRefill: now.Add(l.cfg.Window)}
	}
	l.refill(b, now)
	// Re-adding refreshes the idle TTL and the LRU position.
	l.buckets.Add(key, b)
	observability.RateLimitTrackedKeys.Set(float64(l.buckets.Len()))

	if b.tokens > 0 {
		b.tokens--
		observability.RateLimitDecisionsTotal.WithLabelValues("admitted").Inc()
		return nil
	}

	observability.RateLimitDecisionsTotal.WithLabelValues("rejected").Inc()
	return &ExceededError{Key: key, RetryAfterSeconds: l.retryAfter(b, now)}
}

// Len returns the number of keys currently tracked.
func (l *Limiter) Len() int {
	return l.buckets.Len()
}

// Capacity returns the configured bucket size.
func (l *Limiter) Capacity() int {
	return l.cfg.Capacity
}

func (l *Limiter) refill(b *bucket, now time.Time) {
	if now.Before(b.nextRefill) {
		return
	}
	elapsed := now.Sub(b.nextRefill)
	periods := elapsed/l.cfg.Window + 1
	b.nextRefill = b.nextRefill.Add(periods * l.cfg.Window)
	b.tokens = l.cfg.Capacity
}

// retryAfter is the per-token refill share (1 - available) * window/capacity,
// never longer than the wait until the bucket actually refills.
func (l *Limiter) retryAfter(b *bucket, now time.Time) int64 {
	perToken := (1 - float64(b.tokens)) * (l.cfg.Window.Seconds() / float64(l.cfg.Capacity))
	untilRefill := b.nextRefill.Sub(now).Seconds()
	wait := math.Ceil(math.Min(perToken, untilRefill))
	if wait < 0 {
		return 0
	}
	return int64(wait)
}

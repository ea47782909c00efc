package registry

import (
	"context"
	"sync"
	"time"

	"github.com/LarjGit/edinburgh-finds-sub004/internal/model"
)

// tokenBucket is a continuously-refilling rate limiter keyed on a single
// connector name, honouring both a per-minute and a per-hour cap.
// Whichever cap is tighter at a given instant governs.
type tokenBucket struct {
	mu sync.Mutex

	perMinuteCapacity float64
	perMinuteTokens   float64
	perMinuteRate     float64 // tokens/sec

	perHourCapacity float64
	perHourTokens   float64
	perHourRate     float64 // tokens/sec

	lastRefill time.Time
}

func newTokenBucket(perMinute, perHour int) *tokenBucket {
	now := time.Now()
	b := &tokenBucket{lastRefill: now}
	if perMinute > 0 {
		b.perMinuteCapacity = float64(perMinute)
		b.perMinuteTokens = float64(perMinute)
		b.perMinuteRate = float64(perMinute) / 60.0
	}
	if perHour > 0 {
		b.perHourCapacity = float64(perHour)
		b.perHourTokens = float64(perHour)
		b.perHourRate = float64(perHour) / 3600.0
	}
	return b
}

func (b *tokenBucket) refillLocked(now time.Time) {
	elapsed := now.Sub(b.lastRefill).Seconds()
	if elapsed <= 0 {
		return
	}
	if b.perMinuteCapacity > 0 {
		b.perMinuteTokens = min(b.perMinuteCapacity, b.perMinuteTokens+elapsed*b.perMinuteRate)
	}
	if b.perHourCapacity > 0 {
		b.perHourTokens = min(b.perHourCapacity, b.perHourTokens+elapsed*b.perHourRate)
	}
	b.lastRefill = now
}

// tryTake attempts to consume one token from both buckets atomically. If
// either bucket lacks a token, neither is debited and the call returns
// the wait duration until the tighter of the two would have one
// available.
func (b *tokenBucket) tryTake() (ok bool, wait time.Duration) {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := time.Now()
	b.refillLocked(now)

	minuteOK := b.perMinuteCapacity == 0 || b.perMinuteTokens >= 1
	hourOK := b.perHourCapacity == 0 || b.perHourTokens >= 1
	if minuteOK && hourOK {
		if b.perMinuteCapacity > 0 {
			b.perMinuteTokens--
		}
		if b.perHourCapacity > 0 {
			b.perHourTokens--
		}
		return true, 0
	}

	var waits []time.Duration
	if !minuteOK {
		deficit := 1 - b.perMinuteTokens
		waits = append(waits, time.Duration(deficit/b.perMinuteRate*float64(time.Second)))
	}
	if !hourOK {
		deficit := 1 - b.perHourTokens
		waits = append(waits, time.Duration(deficit/b.perHourRate*float64(time.Second)))
	}
	longest := waits[0]
	for _, w := range waits[1:] {
		if w > longest {
			longest = w
		}
	}
	return false, longest
}

// RateLimiterSet holds one token bucket per connector name, created
// lazily and reused for the lifetime of the process: rate limiters are
// process-global singletons, never recreated per run.
type RateLimiterSet struct {
	mu      sync.Mutex
	buckets map[string]*tokenBucket
}

// NewRateLimiterSet creates an empty set.
func NewRateLimiterSet() *RateLimiterSet {
	return &RateLimiterSet{buckets: make(map[string]*tokenBucket)}
}

func (s *RateLimiterSet) bucketFor(name string, rl model.RateLimit) *tokenBucket {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.buckets[name]
	if !ok {
		b = newTokenBucket(rl.PerMinute, rl.PerHour)
		s.buckets[name] = b
	}
	return b
}

// Acquire blocks (honouring ctx and deadline) until a token is available
// for the named connector, or returns a *model.SourceError of kind
// RateLimited if the deadline would be exceeded first (rather than
// waiting past it) or ctx is done.
func (s *RateLimiterSet) Acquire(ctx context.Context, name string, rl model.RateLimit, deadline time.Time) error {
	bucket := s.bucketFor(name, rl)
	for {
		ok, wait := bucket.tryTake()
		if ok {
			return nil
		}
		if !deadline.IsZero() && time.Now().Add(wait).After(deadline) {
			return &model.SourceError{Kind: model.KindRateLimited, Cause: context.DeadlineExceeded}
		}
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return &model.SourceError{Kind: model.KindRateLimited, Cause: ctx.Err()}
		case <-timer.C:
		}
	}
}

package registry

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"math/rand"
	"net"
	"sync"
	"time"

	"github.com/LarjGit/edinburgh-finds-sub004/internal/model"
)

// Retry constants: at most 3 attempts, base 250ms, ±20% jitter, grounded
// on pkg/mcp/recovery.go's RetryBackoffMin/Max constants and
// jittered-backoff approach.
const (
	MaxAttempts    = 3
	BaseBackoff    = 250 * time.Millisecond
	JitterFraction = 0.20
)

// dedupSet tracks content hashes of payloads already seen in this
// process, so a connector returning byte-identical content on retry or on
// a later call is skipped rather than persisted twice. The durable
// existence check lives on raw_ingestions.sha256's UNIQUE constraint;
// this in-memory set avoids a redundant round-trip within a single run.
type dedupSet struct {
	mu   sync.Mutex
	seen map[string]struct{}
}

func newDedupSet() *dedupSet {
	return &dedupSet{seen: make(map[string]struct{})}
}

// seenBefore reports whether hash was already observed, recording it if
// not.
func (d *dedupSet) seenBefore(hash string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.seen[hash]; ok {
		return true
	}
	d.seen[hash] = struct{}{}
	return false
}

// Adapter wraps the registry's connectors with deadline derivation, rate
// limiting, retry and content-hash dedup.
type Adapter struct {
	registry *Registry
	limiters *RateLimiterSet
	dedup    *dedupSet
	connectors map[string]Connector
}

// NewAdapter creates an Adapter over registry, dispatching Fetch calls to
// the given named Connector implementations.
func NewAdapter(registry *Registry, connectors map[string]Connector) *Adapter {
	return &Adapter{
		registry:   registry,
		limiters:   NewRateLimiterSet(),
		dedup:      newDedupSet(),
		connectors: connectors,
	}
}

// Fetch performs one adapter-wrapped call against the named connector.
// ctxBudgetDeadline is the execution context's remaining-budget-time
// deadline; the effective deadline is min(connector spec timeout, ctxBudgetDeadline).
func (a *Adapter) Fetch(ctx context.Context, name string, params map[string]string, ctxBudgetDeadline time.Time) (model.RawIngestion, error) {
	spec, err := a.registry.Get(name)
	if err != nil {
		return model.RawIngestion{}, err
	}

	conn, ok := a.connectors[name]
	if !ok {
		return model.RawIngestion{}, &model.SourceError{Kind: model.KindNotFound, Cause: model.ErrUnknownConnector}
	}

	deadline := time.Now().Add(spec.Timeout)
	if !ctxBudgetDeadline.IsZero() && ctxBudgetDeadline.Before(deadline) {
		deadline = ctxBudgetDeadline
	}

	if err := a.limiters.Acquire(ctx, name, spec.RateLimit, deadline); err != nil {
		return model.RawIngestion{}, err
	}

	callCtx, cancel := context.WithDeadline(ctx, deadline)
	defer cancel()

	payload, err := a.fetchWithRetry(callCtx, conn, params)
	if err != nil {
		return model.RawIngestion{}, err
	}

	sum := sha256.Sum256(payload.Body)
	hash := hex.EncodeToString(sum[:])

	if a.dedup.seenBefore(hash) {
		// Duplicate content: return a zero-Body ingestion record so the
		// caller can still count the call without persisting a second
		// copy — duplicate content is never persisted twice.
		return model.RawIngestion{
			Source:    name,
			FetchedAt: time.Now(),
			URL:       payload.URL,
			SHA256:    hash,
		}, nil
	}

	return model.RawIngestion{
		Source:      name,
		FetchedAt:   time.Now(),
		URL:         payload.URL,
		PayloadBlob: payload.Body,
		SHA256:      hash,
	}, nil
}

func (a *Adapter) fetchWithRetry(ctx context.Context, conn Connector, params map[string]string) (RawPayload, error) {
	var lastErr error
	for attempt := 0; attempt < MaxAttempts; attempt++ {
		if attempt > 0 {
			backoff := jitteredBackoff(attempt)
			timer := time.NewTimer(backoff)
			select {
			case <-ctx.Done():
				timer.Stop()
				return RawPayload{}, classify(ctx.Err())
			case <-timer.C:
			}
		}

		payload, err := conn.Fetch(ctx, params)
		if err == nil {
			return payload, nil
		}

		classified := classify(err)
		lastErr = classified

		var se *model.SourceError
		if errors.As(classified, &se) && se.Kind != model.KindTransient {
			// Only Transient is retried; everything else
			// (Auth/NotFound/Malformed/Timeout/RateLimited) returns
			// immediately.
			return RawPayload{}, classified
		}
	}
	return RawPayload{}, lastErr
}

// classify maps an arbitrary connector error into the adapter failure
// taxonomy, passing already-classified *model.SourceError through
// unchanged.
func classify(err error) error {
	if err == nil {
		return nil
	}
	var se *model.SourceError
	if errors.As(err, &se) {
		return se
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return &model.SourceError{Kind: model.KindTimeout, Cause: err}
	}
	if errors.Is(err, context.Canceled) {
		return &model.SourceError{Kind: model.KindCancelled, Cause: err}
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return &model.SourceError{Kind: model.KindTimeout, Cause: err}
		}
		return &model.SourceError{Kind: model.KindTransient, Cause: err}
	}
	return &model.SourceError{Kind: model.KindTransient, Cause: err}
}

func jitteredBackoff(attempt int) time.Duration {
	base := BaseBackoff * time.Duration(1<<uint(attempt-1))
	jitter := float64(base) * JitterFraction
	delta := (rand.Float64()*2 - 1) * jitter
	return base + time.Duration(delta)
}

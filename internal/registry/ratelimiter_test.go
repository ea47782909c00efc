package registry

import (
	"context"
	"testing"
	"time"

	"github.com/LarjGit/edinburgh-finds-sub004/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRateLimiterSet_AcquireWithinBudget(t *testing.T) {
	s := NewRateLimiterSet()
	rl := model.RateLimit{PerMinute: 120}
	for i := 0; i < 3; i++ {
		err := s.Acquire(context.Background(), "google_places", rl, time.Time{})
		require.NoError(t, err)
	}
}

func TestRateLimiterSet_FailFastPastDeadline(t *testing.T) {
	s := NewRateLimiterSet()
	rl := model.RateLimit{PerMinute: 1}

	require.NoError(t, s.Acquire(context.Background(), "serper", rl, time.Time{}))

	deadline := time.Now().Add(10 * time.Millisecond)
	err := s.Acquire(context.Background(), "serper", rl, deadline)
	require.Error(t, err)

	var se *model.SourceError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, model.KindRateLimited, se.Kind)
}

func TestRateLimiterSet_SeparateBucketsPerConnector(t *testing.T) {
	s := NewRateLimiterSet()
	rl := model.RateLimit{PerMinute: 1}
	require.NoError(t, s.Acquire(context.Background(), "serper", rl, time.Time{}))
	// A different connector name must have its own bucket.
	require.NoError(t, s.Acquire(context.Background(), "google_places", rl, time.Time{}))
}

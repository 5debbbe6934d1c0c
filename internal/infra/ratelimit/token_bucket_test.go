package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryBucketRefills(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	b := NewMemoryBucket()
	b.now = func() time.Time { return now }

	for i := 0; i < 2; i++ {
		r, err := b.Allow(ctx, "user:1", 1, 2)
		require.NoError(t, err)
		assert.True(t, r.Allowed)
	}

	r, err := b.Allow(ctx, "user:1", 1, 2)
	require.NoError(t, err)
	assert.False(t, r.Allowed)
	assert.Equal(t, time.Second, r.RetryAfter)

	other, err := b.Allow(ctx, "user:2", 1, 2)
	require.NoError(t, err)
	assert.True(t, other.Allowed, "buckets are per key")

	now = now.Add(time.Second)
	r, err = b.Allow(ctx, "user:1", 1, 2)
	require.NoError(t, err)
	assert.True(t, r.Allowed)
}

func TestAllowRejectsBadParams(t *testing.T) {
	_, err := NewMemoryBucket().Allow(context.Background(), "", 1, 1)
	require.ErrorIs(t, err, ErrBadParams)

	var tb *TokenBucket
	_, err = tb.Allow(context.Background(), "k", 1, 1)
	require.ErrorIs(t, err, ErrNotConfigured)
}

func TestBucketTTL(t *testing.T) {
	assert.Equal(t, 20*time.Second, bucketTTL(0.5, 5))
	assert.Equal(t, time.Second, bucketTTL(100, 1))
}

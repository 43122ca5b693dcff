package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAllowDrainsBucket(t *testing.T) {
	tb := NewTokenBucket(3, 1)
	assert.True(t, tb.Allow())
	assert.True(t, tb.Allow())
	assert.True(t, tb.Allow())
	assert.False(t, tb.Allow(), "an empty bucket rejects")
	assert.Equal(t, 0, tb.Remaining())
}

func TestWaitReturnsWhenTokenAvailable(t *testing.T) {
	tb := NewTokenBucket(1, 100)
	require.True(t, tb.Allow())

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	start := time.Now()
	require.NoError(t, tb.Wait(ctx))
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestWaitHonoursContext(t *testing.T) {
	tb := NewTokenBucket(1, 0) // never refills
	require.True(t, tb.Allow())

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, tb.Wait(ctx), context.DeadlineExceeded)
}

package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryAllow(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	l := NewMemory(Config{Limit: 3, Window: time.Minute})
	l.now = func() time.Time { return now }

	for i := 0; i < 3; i++ {
		allowed, _, err := l.Allow(ctx, "1.2.3.4")
		require.NoError(t, err)
		assert.True(t, allowed, "request %d should be allowed", i+1)
	}

	now = now.Add(20 * time.Second)
	allowed, retryAfter, err := l.Allow(ctx, "1.2.3.4")
	require.NoError(t, err)
	assert.False(t, allowed)
	assert.Equal(t, 40*time.Second, retryAfter)

	allowed, _, err = l.Allow(ctx, "5.6.7.8")
	require.NoError(t, err)
	assert.True(t, allowed, "other keys are not affected")

	now = now.Add(40 * time.Second)
	allowed, _, err = l.Allow(ctx, "1.2.3.4")
	require.NoError(t, err)
	assert.True(t, allowed, "window elapsed")
}

func TestMemoryReset(t *testing.T) {
	ctx := context.Background()
	l := NewMemory(Config{Limit: 1, Window: time.Hour})

	allowed, _, _ := l.Allow(ctx, "k")
	assert.True(t, allowed)
	allowed, _, _ = l.Allow(ctx, "k")
	assert.False(t, allowed)

	require.NoError(t, l.Reset(ctx, "k"))
	allowed, _, _ = l.Allow(ctx, "k")
	assert.True(t, allowed)
}

func TestMemorySweepsExpiredWindows(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	l := NewMemory(Config{Limit: 5, Window: time.Minute})
	l.now = func() time.Time { return now }

	for _, key := range []string{"a", "b", "c"} {
		_, _, _ = l.Allow(ctx, key)
	}
	assert.Len(t, l.windows, 3)

	now = now.Add(2 * time.Minute)
	_, _, _ = l.Allow(ctx, "d")
	assert.Len(t, l.windows, 1)
}

func TestMemoryDisabled(t *testing.T) {
	l := NewMemory(Config{})
	for i := 0; i < 100; i++ {
		allowed, _, err := l.Allow(context.Background(), "k")
		require.NoError(t, err)
		assert.True(t, allowed)
	}
}

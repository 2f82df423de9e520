package main

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestRateLimiterAllowsWithinLimit(t *testing.T) {
	rl := NewRateLimiter()
	for i := 0; i < 5; i++ {
		require.True(t, rl.Allow("login:1.2.3.4", 5, time.Minute))
	}
	require.False(t, rl.Allow("login:1.2.3.4", 5, time.Minute))
}

func TestRateLimiterIsolatesKeys(t *testing.T) {
	rl := NewRateLimiter()
	require.True(t, rl.Allow("login:1.2.3.4", 1, time.Minute))
	require.False(t, rl.Allow("login:1.2.3.4", 1, time.Minute))
	require.True(t, rl.Allow("login:5.6.7.8", 1, time.Minute))
}

func TestRateLimiterResetsAfterWindow(t *testing.T) {
	rl := NewRateLimiter()
	require.True(t, rl.Allow("k", 1, 10*time.Millisecond))
	require.False(t, rl.Allow("k", 1, 10*time.Millisecond))
	time.Sleep(20 * time.Millisecond)
	require.True(t, rl.Allow("k", 1, 10*time.Millisecond))
}

func TestRateLimiterZeroLimitPasses(t *testing.T) {
	rl := NewRateLimiter()
	for i := 0; i < 100; i++ {
		require.True(t, rl.Allow("k", 0, time.Minute))
	}
}

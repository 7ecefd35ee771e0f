package services

import (
	"context"
	"fmt"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"golang.org/x/time/rate"
)

func TestNewIPRateLimiter(t *testing.T) {
	logger := slog.Default()
	limiter := NewIPRateLimiter(AnonymousRate, 5, logger)

	assert.NotNil(t, limiter)
	assert.Equal(t, AnonymousRate, limiter.r)
	assert.Equal(t, 5, limiter.b)
	assert.NotNil(t, limiter.ips)
}

func TestRateTiers(t *testing.T) {
	assert.InDelta(t, 2.0, float64(AuthenticatedRate), 0.0001)
	assert.InDelta(t, 1.0, float64(AnonymousRate), 0.0001)
}

func TestIPRateLimiter_GetLimiter(t *testing.T) {
	limiter := NewIPRateLimiter(rate.Limit(10), 5, slog.Default())
	ip := "192.168.1.1"

	l1 := limiter.GetLimiter(ip)
	assert.NotNil(t, l1)
	assert.Equal(t, rate.Limit(10), l1.Limit())
	assert.Equal(t, 5, l1.Burst())

	l2 := limiter.GetLimiter(ip)
	assert.Same(t, l1, l2)

	l3 := limiter.GetLimiter("1.1.1.1")
	assert.NotSame(t, l1, l3)
}

func TestIPRateLimiter_Allow(t *testing.T) {
	limiter := NewIPRateLimiter(rate.Limit(0.001), 2, slog.Default())

	assert.True(t, limiter.Allow("10.0.0.1"))
	assert.True(t, limiter.Allow("10.0.0.1"))
	assert.False(t, limiter.Allow("10.0.0.1"))
	assert.True(t, limiter.Allow("10.0.0.2"))
}

func TestIPRateLimiter_StartCleanup(t *testing.T) {
	limiter := NewIPRateLimiter(rate.Limit(1), 1, slog.Default())

	for i := 0; i <= maxTrackedClients; i++ {
		limiter.GetLimiter(fmt.Sprintf("ip-%d", i))
	}
	assert.Equal(t, maxTrackedClients+1, len(limiter.ips))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go limiter.StartCleanup(ctx, 10*time.Millisecond)

	assert.Eventually(t, func() bool {
		limiter.mu.RLock()
		defer limiter.mu.RUnlock()
		return len(limiter.ips) == 0
	}, time.Second, 10*time.Millisecond)
}

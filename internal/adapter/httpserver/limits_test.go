package httpserver

import (
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGlobalConnectionLimiter_AcquireRelease(t *testing.T) {
	limiter := NewGlobalConnectionLimiter(2)

	assert.True(t, limiter.Acquire())
	assert.True(t, limiter.Acquire())
	assert.False(t, limiter.Acquire())
	assert.True(t, limiter.Saturated())

	limiter.Release()
	assert.False(t, limiter.Saturated())
	assert.Equal(t, int64(1), limiter.Current())
	assert.Equal(t, int64(2), limiter.Max())
}

func TestGlobalConnectionLimiter_Concurrent(t *testing.T) {
	limiter := NewGlobalConnectionLimiter(100)
	var successCount, failCount atomic.Int64

	var wg sync.WaitGroup
	for range 200 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if limiter.Acquire() {
				successCount.Add(1)
			} else {
				failCount.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(100), successCount.Load())
	assert.Equal(t, int64(100), failCount.Load())
	assert.Equal(t, int64(100), limiter.Current())
}

func TestGlobalConnectionLimiter_ZeroMax(t *testing.T) {
	limiter := NewGlobalConnectionLimiter(0)
	assert.False(t, limiter.Acquire())
	assert.True(t, limiter.Saturated())
}

func TestIPConnectionLimiter_AcquireRelease(t *testing.T) {
	limiter := NewIPConnectionLimiter(2)

	assert.True(t, limiter.Acquire("192.168.1.1"))
	assert.True(t, limiter.Acquire("192.168.1.1"))
	assert.Equal(t, 2, limiter.Count("192.168.1.1"))
	assert.False(t, limiter.Acquire("192.168.1.1"))

	assert.True(t, limiter.Acquire("192.168.1.2"))
	assert.Equal(t, 2, limiter.UniqueIPs())

	limiter.Release("192.168.1.1")
	assert.Equal(t, 1, limiter.Count("192.168.1.1"))
	assert.True(t, limiter.Acquire("192.168.1.1"))
}

func TestIPConnectionLimiter_ReleaseForgetsIdleIPs(t *testing.T) {
	limiter := NewIPConnectionLimiter(5)

	assert.True(t, limiter.Acquire("192.168.1.1"))
	limiter.Release("192.168.1.1")
	assert.Equal(t, 0, limiter.UniqueIPs())

	// Releasing an unknown IP is harmless.
	limiter.Release("10.0.0.1")
	assert.Equal(t, 0, limiter.Count("10.0.0.1"))
}

func TestConnectionRateLimiter_Allow(t *testing.T) {
	limiter := NewConnectionRateLimiter(clockwork.NewFakeClock(), 2.0, 2)

	assert.True(t, limiter.Allow("192.168.1.1"))
	assert.True(t, limiter.Allow("192.168.1.1"))
	assert.False(t, limiter.Allow("192.168.1.1"))

	assert.True(t, limiter.Allow("192.168.1.2"))
	assert.Equal(t, 2, limiter.ActiveLimiters())
}

func TestConnectionRateLimiter_TokenRefill(t *testing.T) {
	clock := clockwork.NewFakeClock()
	limiter := NewConnectionRateLimiter(clock, 10.0, 5)

	for range 5 {
		assert.True(t, limiter.Allow("192.168.1.1"))
	}
	assert.False(t, limiter.Allow("192.168.1.1"))

	// 100ms is one token at 10/s.
	clock.Advance(100 * time.Millisecond)
	assert.True(t, limiter.Allow("192.168.1.1"))
	assert.False(t, limiter.Allow("192.168.1.1"))
}

func TestConnectionRateLimiter_DropsIdleBuckets(t *testing.T) {
	clock := clockwork.NewFakeClock()
	limiter := NewConnectionRateLimiter(clock, 10.0, 5)

	limiter.Allow("192.168.1.1")
	limiter.Allow("192.168.1.2")
	assert.Equal(t, 2, limiter.ActiveLimiters())

	clock.Advance(rateLimiterIdleTTL + time.Minute)
	limiter.Allow("192.168.1.3")

	assert.Equal(t, 1, limiter.ActiveLimiters())
}

func TestConnectionLimits_Acquire(t *testing.T) {
	limits := NewConnectionLimits(clockwork.NewFakeClock(), 100, 10, 5.0, 5)

	ok, reason := limits.Acquire("192.168.1.1")
	assert.True(t, ok)
	assert.Equal(t, LimitReason(""), reason)

	limits.Release("192.168.1.1")
	assert.Equal(t, int64(0), limits.Global().Current())
	assert.Equal(t, 0, limits.PerIP().UniqueIPs())
}

func TestConnectionLimits_Reasons(t *testing.T) {
	tests := []struct {
		name      string
		globalMax int64
		perIPMax  int
		burst     int
		ips       []string
		want      LimitReason
	}{
		{"global", 2, 100, 100, []string{"10.0.0.1", "10.0.0.2", "10.0.0.3"}, LimitReasonGlobal},
		{"per ip", 100, 2, 100, []string{"10.0.0.1", "10.0.0.1", "10.0.0.1"}, LimitReasonPerIP},
		{"rate", 100, 100, 2, []string{"10.0.0.1", "10.0.0.1", "10.0.0.1"}, LimitReasonRate},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			limits := NewConnectionLimits(clockwork.NewFakeClock(), tt.globalMax, tt.perIPMax, 100, tt.burst)

			last := len(tt.ips) - 1
			for _, ip := range tt.ips[:last] {
				ok, _ := limits.Acquire(ip)
				require.True(t, ok)
			}

			ok, reason := limits.Acquire(tt.ips[last])
			assert.False(t, ok)
			assert.Equal(t, tt.want, reason)
		})
	}
}

func TestConnectionLimits_RollbackOnPerIPFailure(t *testing.T) {
	limits := NewConnectionLimits(clockwork.NewFakeClock(), 100, 1, 100, 100)

	ok, _ := limits.Acquire("192.168.1.1")
	require.True(t, ok)

	ok, reason := limits.Acquire("192.168.1.1")
	assert.False(t, ok)
	assert.Equal(t, LimitReasonPerIP, reason)
	assert.Equal(t, int64(1), limits.Global().Current())

	limits.Release("192.168.1.1")
	assert.Equal(t, int64(0), limits.Global().Current())
}

func TestConnectionLimits_ConcurrentHoldersNeverExceedGlobal(t *testing.T) {
	limits := NewConnectionLimits(clockwork.NewFakeClock(), 50, 5, 1000, 1000)

	var held atomic.Int64
	var wg sync.WaitGroup
	for ip := range 20 {
		for range 10 {
			wg.Add(1)
			go func(ip string) {
				defer wg.Done()
				if ok, _ := limits.Acquire(ip); ok {
					held.Add(1)
				}
			}(fmt.Sprintf("10.0.0.%d", ip))
		}
	}
	wg.Wait()

	// 20 IPs at 5 each would be 100; the global cap wins.
	assert.Equal(t, int64(50), held.Load())
	assert.Equal(t, int64(50), limits.Global().Current())
}

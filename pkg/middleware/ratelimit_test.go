package middleware

import (
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	"github.com/sirosfoundation/go-booking-backend/pkg/config"
)

func newLimiter(t *testing.T, cfg config.RateLimitConfig) *RateLimiter {
	t.Helper()
	rl := NewRateLimiter(cfg, zap.NewNop())
	t.Cleanup(rl.Stop)
	return rl
}

func TestRateLimiter_Allow(t *testing.T) {
	tests := []struct {
		name        string
		rpm         int
		burst       int
		requests    int
		wantAllowed int
	}{
		{name: "allows up to burst size", rpm: 60, burst: 5, requests: 5, wantAllowed: 5},
		{name: "blocks after burst exceeded", rpm: 60, burst: 3, requests: 5, wantAllowed: 3},
		{name: "single request allowed", rpm: 60, burst: 10, requests: 1, wantAllowed: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rl := newLimiter(t, config.RateLimitConfig{Enabled: true, RequestsPerMinute: tt.rpm, BurstSize: tt.burst})

			allowed := 0
			for i := 0; i < tt.requests; i++ {
				if rl.Allow("10.0.0.1") {
					allowed++
				}
			}
			assert.Equal(t, tt.wantAllowed, allowed)
		})
	}
}

func TestRateLimiter_Disabled(t *testing.T) {
	rl := newLimiter(t, config.RateLimitConfig{Enabled: false, RequestsPerMinute: 1, BurstSize: 1})

	for i := 0; i < 100; i++ {
		assert.True(t, rl.Allow("10.0.0.1"))
	}
}

func TestRateLimiter_TokenRefill(t *testing.T) {
	// 10 per second
	rl := newLimiter(t, config.RateLimitConfig{Enabled: true, RequestsPerMinute: 600, BurstSize: 1})

	assert.True(t, rl.Allow("k"))
	assert.False(t, rl.Allow("k"))

	time.Sleep(150 * time.Millisecond)
	assert.True(t, rl.Allow("k"))
}

func TestRateLimiter_MultipleKeys(t *testing.T) {
	rl := newLimiter(t, config.RateLimitConfig{Enabled: true, RequestsPerMinute: 60, BurstSize: 2})

	for i := 0; i < 2; i++ {
		assert.True(t, rl.Allow("key-1"))
		assert.True(t, rl.Allow("key-2"))
	}
	assert.False(t, rl.Allow("key-1"))
	assert.False(t, rl.Allow("key-2"))
}

func TestRateLimiter_Concurrent(t *testing.T) {
	rl := newLimiter(t, config.RateLimitConfig{Enabled: true, RequestsPerMinute: 60, BurstSize: 100})

	var wg sync.WaitGroup
	var allowed int32
	for i := 0; i < 200; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if rl.Allow("concurrent") {
				atomic.AddInt32(&allowed, 1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(100), allowed)
}

func TestRateLimiter_CleanupForgetsIdleKeys(t *testing.T) {
	rl := newLimiter(t, config.RateLimitConfig{Enabled: true, RequestsPerMinute: 60, BurstSize: 1})

	assert.True(t, rl.Allow("idle"))
	assert.False(t, rl.Allow("idle"))

	rl.cleanup(time.Now().Add(time.Minute))
	assert.True(t, rl.Allow("idle"), "a forgotten key starts with a full bucket")
}

func TestRateLimitMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	rl := newLimiter(t, config.RateLimitConfig{Enabled: true, RequestsPerMinute: 60, BurstSize: 2})

	router := gin.New()
	router.Use(RateLimit(rl))
	router.GET("/qrcode", func(c *gin.Context) {
		c.String(http.StatusOK, "ok")
	})

	for i := 0; i < 2; i++ {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/qrcode", nil))
		assert.Equal(t, http.StatusOK, w.Code, "request %d", i+1)
	}

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/qrcode", nil))
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "1", w.Header().Get("Retry-After"))
}

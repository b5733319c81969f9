package middleware

import (
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sirosfoundation/go-booking-backend/pkg/config"
)

const limiterIdle = 30 * time.Minute

// RateLimiter keeps one token bucket per key (client IP)
type RateLimiter struct {
	cfg    config.RateLimitConfig
	limit  rate.Limit
	logger *zap.Logger

	mu       sync.Mutex
	limiters map[string]*keyLimiter

	stop     chan struct{}
	stopOnce sync.Once
}

type keyLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewRateLimiter creates a RateLimiter and, when enabled, starts a
// goroutine that forgets idle keys. Call Stop to end it.
func NewRateLimiter(cfg config.RateLimitConfig, logger *zap.Logger) *RateLimiter {
	rl := &RateLimiter{
		cfg:      cfg,
		limit:    rate.Limit(float64(cfg.RequestsPerMinute) / 60.0),
		logger:   logger.Named("ratelimit"),
		limiters: make(map[string]*keyLimiter),
		stop:     make(chan struct{}),
	}
	if cfg.Enabled {
		go rl.cleanupLoop(10 * time.Minute)
	}
	return rl
}

// Allow reports whether one more request for key fits in its bucket
func (r *RateLimiter) Allow(key string) bool {
	if !r.cfg.Enabled {
		return true
	}

	r.mu.Lock()
	kl, ok := r.limiters[key]
	if !ok {
		burst := r.cfg.BurstSize
		if burst < 1 {
			burst = 1
		}
		kl = &keyLimiter{limiter: rate.NewLimiter(r.limit, burst)}
		r.limiters[key] = kl
	}
	kl.lastSeen = time.Now()
	r.mu.Unlock()

	return kl.limiter.Allow()
}

// retryAfter is the whole number of seconds until one token refills
func (r *RateLimiter) retryAfter() int {
	if r.limit <= 0 {
		return 60
	}
	return int(math.Ceil(1 / float64(r.limit)))
}

func (r *RateLimiter) cleanupLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			r.cleanup(time.Now().Add(-limiterIdle))
		case <-r.stop:
			return
		}
	}
}

func (r *RateLimiter) cleanup(cutoff time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for key, kl := range r.limiters {
		if kl.lastSeen.Before(cutoff) {
			delete(r.limiters, key)
		}
	}
}

// Stop ends the cleanup goroutine
func (r *RateLimiter) Stop() {
	r.stopOnce.Do(func() { close(r.stop) })
}

// RateLimit returns a gin middleware that answers 429 once a client IP
// runs out of tokens
func RateLimit(rl *RateLimiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		ip := c.ClientIP()
		if !rl.Allow(ip) {
			rl.logger.Warn("Rate limit exceeded",
				zap.String("client_ip", ip),
				zap.String("path", c.Request.URL.Path))
			c.Header("Retry-After", strconv.Itoa(rl.retryAfter()))
			c.String(http.StatusTooManyRequests, "Too many requests")
			c.Abort()
			return
		}
		c.Next()
	}
}

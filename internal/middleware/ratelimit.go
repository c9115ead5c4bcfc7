package middleware

import (
	"math"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sentinelsoc/sentinel/pkg/errors"
	"github.com/sentinelsoc/sentinel/pkg/logger"
	"github.com/sentinelsoc/sentinel/pkg/metrics"
	"github.com/sentinelsoc/sentinel/pkg/response"
)

// RateLimiterConfig configures a per-client token bucket.
type RateLimiterConfig struct {
	// Rate is the sustained number of requests per second.
	Rate  rate.Limit
	Burst int
	// IdleTTL is how long an unused client bucket is kept.
	IdleTTL time.Duration
}

// LoginRateLimit allows a burst of ten login attempts per client, refilled at one every six seconds.
func LoginRateLimit() RateLimiterConfig {
	return RateLimiterConfig{
		Rate:    rate.Every(6 * time.Second),
		Burst:   10,
		IdleTTL: 10 * time.Minute,
	}
}

type clientLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter keeps one token bucket per client IP. Buckets idle for longer
// than IdleTTL are dropped lazily on access.
type RateLimiter struct {
	cfg   RateLimiterConfig
	clock func() time.Time

	mu        sync.Mutex
	clients   map[string]*clientLimiter
	lastSweep time.Time
}

// NewRateLimiter constructs a RateLimiter.
func NewRateLimiter(cfg RateLimiterConfig) *RateLimiter {
	if cfg.Burst <= 0 {
		cfg.Burst = 1
	}
	if cfg.IdleTTL <= 0 {
		cfg.IdleTTL = 10 * time.Minute
	}
	return &RateLimiter{
		cfg:     cfg,
		clock:   time.Now,
		clients: make(map[string]*clientLimiter),
	}
}

// Allow reports whether key may proceed now.
func (rl *RateLimiter) Allow(key string) bool {
	now := rl.clock()

	rl.mu.Lock()
	defer rl.mu.Unlock()

	if now.Sub(rl.lastSweep) > rl.cfg.IdleTTL {
		for k, cl := range rl.clients {
			if now.Sub(cl.lastSeen) > rl.cfg.IdleTTL {
				delete(rl.clients, k)
			}
		}
		rl.lastSweep = now
	}

	cl, ok := rl.clients[key]
	if !ok {
		cl = &clientLimiter{limiter: rate.NewLimiter(rl.cfg.Rate, rl.cfg.Burst)}
		rl.clients[key] = cl
	}
	cl.lastSeen = now
	return cl.limiter.AllowN(now, 1)
}

// Size returns the number of tracked clients.
func (rl *RateLimiter) Size() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(rl.clients)
}

// Middleware rejects clients that exhausted their bucket with 429 and a Retry-After header.
func (rl *RateLimiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if rl.cfg.Rate == rate.Inf {
			c.Next()
			return
		}

		ip := c.ClientIP()
		if rl.Allow(ip) {
			c.Next()
			return
		}

		path := c.FullPath()
		metrics.RateLimited.WithLabelValues(path).Inc()
		logger.WithModule("http").Warn("rate limit exceeded",
			zap.String("client_ip", ip),
			zap.String("path", path))

		c.Header("Retry-After", strconv.Itoa(retryAfterSeconds(rl.cfg.Rate)))
		response.Abort(c, errors.ErrRateLimit)
	}
}

func retryAfterSeconds(r rate.Limit) int {
	if r <= 0 {
		return 60
	}
	seconds := int(math.Ceil(1.0 / float64(r)))
	if seconds < 1 {
		seconds = 1
	}
	return seconds
}

package middleware

import (
	"math"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"github.com/yeisme/yukumo/pkg/configs"
)

const (
	limiterIdleTTL   = 10 * time.Minute
	limiterSweepEach = 1024
)

// keyedLimiters 按键分配令牌桶，闲置超过 limiterIdleTTL 的在后续请求中回收.
type keyedLimiters struct {
	mu       sync.Mutex
	rps      rate.Limit
	burst    int
	entries  map[string]*limiterEntry
	requests int
}

type limiterEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

func (k *keyedLimiters) get(key string, now time.Time) *rate.Limiter {
	k.mu.Lock()
	defer k.mu.Unlock()

	k.requests++
	if k.requests%limiterSweepEach == 0 {
		for key, e := range k.entries {
			if now.Sub(e.lastSeen) > limiterIdleTTL {
				delete(k.entries, key)
			}
		}
	}

	e, ok := k.entries[key]
	if !ok {
		e = &limiterEntry{limiter: rate.NewLimiter(k.rps, k.burst)}
		k.entries[key] = e
	}

	e.lastSeen = now

	return e.limiter
}

// RateLimitMiddleware 返回一个基于配置的限流中间件.
// Key 为 global、ip 或 header:<name>（缺失时回退到 IP）.
func RateLimitMiddleware(cfg configs.RateLimitConfig) gin.HandlerFunc {
	if !cfg.Enabled || cfg.RPS <= 0 {
		return func(c *gin.Context) { c.Next() }
	}

	burst := max(cfg.Burst, 1)
	keyMode := strings.ToLower(strings.TrimSpace(cfg.Key))
	retryAfter := strconv.Itoa(int(math.Ceil(1 / cfg.RPS)))

	reject := func(c *gin.Context) {
		c.Header("Retry-After", retryAfter)
		c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "rate limit exceeded"})
	}

	if keyMode == "global" || keyMode == "" {
		limiter := rate.NewLimiter(rate.Limit(cfg.RPS), burst)

		return func(c *gin.Context) {
			if !limiter.Allow() {
				reject(c)
				return
			}

			c.Next()
		}
	}

	limiters := &keyedLimiters{rps: rate.Limit(cfg.RPS), burst: burst, entries: map[string]*limiterEntry{}}

	return func(c *gin.Context) {
		key := ""
		if h, ok := strings.CutPrefix(keyMode, "header:"); ok {
			key = c.GetHeader(h)
		}

		if key == "" {
			key = c.ClientIP()
		}

		if !limiters.get(key, time.Now()).Allow() {
			reject(c)
			return
		}

		c.Next()
	}
}

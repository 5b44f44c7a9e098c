package middleware

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

// maxAuthBody bounds how much of a sign-in body is read to find the email
const maxAuthBody = 1 << 20

// RateLimiter keeps token buckets per client IP and per IP+email for auth attempts
type RateLimiter struct {
	mu            sync.Mutex
	ipLimiters    map[string]*rate.Limiter
	authLimiters  map[string]*rate.Limiter
	ipRate        rate.Limit
	authRate      rate.Limit
	ipBurst       int
	authBurst     int
	cleanupTicker *time.Ticker
	done          chan struct{}
}

// NewRateLimiter creates a new rate limiter. authRequestsPerMinute is converted to a per-second rate.
func NewRateLimiter(ipRequestsPerSecond, authRequestsPerMinute float64, ipBurst, authBurst int) *RateLimiter {
	rl := &RateLimiter{
		ipLimiters:    make(map[string]*rate.Limiter),
		authLimiters:  make(map[string]*rate.Limiter),
		ipRate:        rate.Limit(ipRequestsPerSecond),
		authRate:      rate.Limit(authRequestsPerMinute / 60),
		ipBurst:       ipBurst,
		authBurst:     authBurst,
		cleanupTicker: time.NewTicker(5 * time.Minute),
		done:          make(chan struct{}),
	}
	go rl.cleanup()
	return rl
}

// cleanup periodically drops all limiters so the maps don't grow without bound
func (rl *RateLimiter) cleanup() {
	for {
		select {
		case <-rl.cleanupTicker.C:
			rl.mu.Lock()
			rl.ipLimiters = make(map[string]*rate.Limiter)
			rl.authLimiters = make(map[string]*rate.Limiter)
			rl.mu.Unlock()
		case <-rl.done:
			return
		}
	}
}

// Stop stops the cleanup goroutine
func (rl *RateLimiter) Stop() {
	rl.cleanupTicker.Stop()
	close(rl.done)
}

func (rl *RateLimiter) limiter(limiters map[string]*rate.Limiter, key string, r rate.Limit, burst int) *rate.Limiter {
	l, ok := limiters[key]
	if !ok {
		l = rate.NewLimiter(r, burst)
		limiters[key] = l
	}
	return l
}

func (rl *RateLimiter) allowIP(ip string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return rl.limiter(rl.ipLimiters, ip, rl.ipRate, rl.ipBurst).Allow()
}

func (rl *RateLimiter) allowAuth(key string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return rl.limiter(rl.authLimiters, key, rl.authRate, rl.authBurst).Allow()
}

// IPRateLimiterMiddleware limits requests based on IP address
func (rl *RateLimiter) IPRateLimiterMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !rl.allowIP(c.ClientIP()) {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "rate limit exceeded"})
			return
		}
		c.Next()
	}
}

// AuthRateLimiterMiddleware limits authentication attempts per IP and, for POSTs, per IP and email
func (rl *RateLimiter) AuthRateLimiterMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		ip := c.ClientIP()
		if !rl.allowIP(ip) {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "rate limit exceeded"})
			return
		}

		if c.Request.Method == http.MethodPost && c.Request.Body != nil {
			body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxAuthBody))
			if err != nil {
				c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
				return
			}
			c.Request.Body = io.NopCloser(bytes.NewReader(body))

			var req struct {
				Email string `json:"email"`
			}
			if json.Unmarshal(body, &req) == nil && req.Email != "" {
				key := ip + ":" + strings.ToLower(strings.TrimSpace(req.Email))
				if !rl.allowAuth(key) {
					c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
						"error": "too many authentication attempts, please try again later",
					})
					return
				}
			}
		}

		c.Next()
	}
}

// Package ratelimit applies a per-client token bucket to the ops API.
package ratelimit

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"tgrelay/pkg/metrics"
)

type Config struct {
	RPS             float64
	Burst           int
	CleanupInterval time.Duration
	MaxAge          time.Duration
}

func DefaultConfig() Config {
	return Config{
		RPS:             10.0,
		Burst:           20,
		CleanupInterval: 5 * time.Minute,
		MaxAge:          10 * time.Minute,
	}
}

type clientLimiter struct {
	bucket   *rate.Limiter
	lastSeen time.Time
}

// pool tracks one token bucket per client IP and evicts buckets idle
// longer than maxAge.
type pool struct {
	mu      sync.Mutex
	clients map[string]*clientLimiter
	rps     rate.Limit
	burst   int
	maxAge  time.Duration
}

func newPool(cfg Config) *pool {
	return &pool{
		clients: make(map[string]*clientLimiter),
		rps:     rate.Limit(cfg.RPS),
		burst:   cfg.Burst,
		maxAge:  cfg.MaxAge,
	}
}

func (p *pool) allow(ip string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	cl, ok := p.clients[ip]
	if !ok {
		cl = &clientLimiter{bucket: rate.NewLimiter(p.rps, p.burst)}
		p.clients[ip] = cl
	}
	cl.lastSeen = time.Now()
	return cl.bucket.Allow()
}

func (p *pool) sweep() {
	p.mu.Lock()
	defer p.mu.Unlock()

	cutoff := time.Now().Add(-p.maxAge)
	for ip, cl := range p.clients {
		if cl.lastSeen.Before(cutoff) {
			delete(p.clients, ip)
		}
	}
}

// Middleware rejects requests beyond the configured rate with 429.
func Middleware(cfg Config) gin.HandlerFunc {
	p := newPool(cfg)

	go func() {
		ticker := time.NewTicker(cfg.CleanupInterval)
		defer ticker.Stop()
		for range ticker.C {
			p.sweep()
		}
	}()

	return func(c *gin.Context) {
		ip := c.ClientIP()
		if ip == "" {
			ip = c.RemoteIP()
		}

		if !p.allow(ip) {
			metrics.RateLimitRequestsTotal.WithLabelValues("rejected").Inc()
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error": "rate limit exceeded",
			})
			return
		}

		metrics.RateLimitRequestsTotal.WithLabelValues("allowed").Inc()
		c.Next()
	}
}

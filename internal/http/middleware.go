package http

import (
	"context"
	"math"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"github.com/mrlokans/biblioteca/internal/config"
)

// CORSMiddleware answers cross-origin requests from the configured origins.
// Preflight requests stop here with 204.
func CORSMiddleware(cfg config.CORS) gin.HandlerFunc {
	originSet := make(map[string]bool)
	for _, origin := range cfg.AllowedOrigins {
		originSet[strings.TrimRight(origin, "/")] = true
	}

	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")
		if origin == "" || !originSet[origin] {
			c.Next()
			return
		}

		h := c.Writer.Header()
		h.Set("Access-Control-Allow-Origin", origin)
		h.Add("Vary", "Origin")
		if cfg.AllowCredentials {
			h.Set("Access-Control-Allow-Credentials", "true")
		}

		if c.Request.Method == http.MethodOptions && c.GetHeader("Access-Control-Request-Method") != "" {
			h.Set("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
			h.Set("Access-Control-Allow-Headers", "Authorization, Content-Type, X-CSRF-Token, X-Requested-With")
			h.Set("Access-Control-Max-Age", "86400")
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

type clientLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// Throttle limits requests per client IP with a token bucket each.
// Idle buckets are dropped by Run.
type Throttle struct {
	mu       sync.Mutex
	limiters map[string]*clientLimiter
	rate     rate.Limit
	burst    int
	idle     time.Duration
	now      func() time.Time
}

// NewThrottle allows perMinute requests per IP with the given burst.
func NewThrottle(perMinute, burst int) *Throttle {
	if perMinute <= 0 {
		perMinute = 30
	}
	if burst <= 0 {
		burst = 1
	}
	return &Throttle{
		limiters: make(map[string]*clientLimiter),
		rate:     rate.Every(time.Minute / time.Duration(perMinute)),
		burst:    burst,
		idle:     5 * time.Minute,
		now:      time.Now,
	}
}

func (t *Throttle) limiter(key string) *rate.Limiter {
	t.mu.Lock()
	defer t.mu.Unlock()

	cl, ok := t.limiters[key]
	if !ok {
		cl = &clientLimiter{limiter: rate.NewLimiter(t.rate, t.burst)}
		t.limiters[key] = cl
	}
	cl.lastSeen = t.now()
	return cl.limiter
}

// Handler rejects a client over its budget with 429 and a Retry-After hint.
func (t *Throttle) Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		lim := t.limiter(c.ClientIP())
		r := lim.ReserveN(t.now(), 1)
		if delay := r.DelayFrom(t.now()); delay > 0 {
			r.CancelAt(t.now())
			seconds := int(math.Ceil(delay.Seconds()))
			c.Header("Retry-After", strconv.Itoa(seconds))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, ErrorResponse{
				Error: "request was throttled",
				Code:  "THROTTLED",
			})
			return
		}
		c.Next()
	}
}

// Run drops idle buckets until ctx is done.
func (t *Throttle) Run(ctx context.Context) {
	ticker := time.NewTicker(t.idle)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			t.sweep()
		}
	}
}

func (t *Throttle) sweep() {
	t.mu.Lock()
	defer t.mu.Unlock()
	cutoff := t.now().Add(-t.idle)
	for key, cl := range t.limiters {
		if cl.lastSeen.Before(cutoff) {
			delete(t.limiters, key)
		}
	}
}

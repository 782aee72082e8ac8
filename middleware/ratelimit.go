package middleware

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joshu-sajeev/promptrelay/common"
	"golang.org/x/time/rate"
)

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

type visitors struct {
	mu        sync.Mutex
	items     map[string]*visitor
	rps       rate.Limit
	burst     int
	lastSweep time.Time
}

func (v *visitors) get(ip string, now time.Time) *rate.Limiter {
	v.mu.Lock()
	defer v.mu.Unlock()

	// idle clients are forgotten once a minute
	if now.Sub(v.lastSweep) > time.Minute {
		for key, item := range v.items {
			if now.Sub(item.lastSeen) > 3*time.Minute {
				delete(v.items, key)
			}
		}
		v.lastSweep = now
	}

	item, ok := v.items[ip]
	if !ok {
		item = &visitor{limiter: rate.NewLimiter(v.rps, v.burst)}
		v.items[ip] = item
	}
	item.lastSeen = now
	return item.limiter
}

// RateLimit applies a token bucket per client IP.
func RateLimit(rps float64, burst int) gin.HandlerFunc {
	if rps <= 0 {
		rps = 20
	}
	if burst <= 0 {
		burst = 40
	}

	v := &visitors{items: make(map[string]*visitor), rps: rate.Limit(rps), burst: burst}

	return func(c *gin.Context) {
		if !v.get(c.ClientIP(), time.Now()).Allow() {
			c.Header("Retry-After", "1")
			c.Error(common.Errf(http.StatusTooManyRequests, "too many requests"))
			c.Abort()
			return
		}
		c.Next()
	}
}

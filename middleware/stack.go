package middleware

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

type StackConfig struct {
	RateLimitRPS   float64
	RateLimitBurst int
	RequestTimeout time.Duration
}

// Stack is the middleware chain the queue server installs, outermost first.
// ErrorHandler wraps everything that may abort with c.Error, and AccessLog
// wraps ErrorHandler so it records the rendered status.
func Stack(log *zerolog.Logger, cfg StackConfig) []gin.HandlerFunc {
	return []gin.HandlerFunc{
		gin.Recovery(),
		RequestID(),
		AccessLog(log),
		ErrorHandler(),
		RateLimit(cfg.RateLimitRPS, cfg.RateLimitBurst),
		TimeoutMiddleware(cfg.RequestTimeout),
	}
}

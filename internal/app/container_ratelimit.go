package app

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/dig"

	"crowdship-engine/internal/config"
	"crowdship-engine/internal/http/middleware/ratelimit"
	"crowdship-engine/internal/logx"
)

func newRateLimiter(cfg *config.Config) ratelimit.Limiter {
	rl := cfg.RateLimit
	if rl.RPS <= 0 {
		return ratelimit.NopLimiter{}
	}
	return ratelimit.NewIPLimiter(ratelimit.Config{
		RPS:        rl.RPS,
		Burst:      rl.Burst,
		TTL:        10 * time.Minute,
		MaxBuckets: 10000,
	})
}

type rateLimitIn struct {
	dig.In

	Logger  logx.Logger
	Counter prometheus.Counter `name:"rate_limit_exceeded_total"`
	Limiter ratelimit.Limiter
}

func newRateLimitMiddleware(in rateLimitIn) *ratelimit.Middleware {
	return ratelimit.New(in.Logger, in.Counter, in.Limiter)
}

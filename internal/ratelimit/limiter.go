package ratelimit

import (
	"context"
	"time"

	"github.com/vettedhq/vetted/internal/clock"
	"go.uber.org/zap"
)

const (
	// Upstream call budgets are deliberately conservative: the sources
	// here throttle aggressively and ban offenders.
	defaultUpstreamRate  = 2.0
	defaultUpstreamBurst = 5

	// fallbackDelay paces calls when redis is unavailable.
	fallbackDelay = 500 * time.Millisecond
)

// UpstreamLimiter paces calls to one upstream source across the whole
// process (and across replicas, when redis is configured).
type UpstreamLimiter struct {
	bucket *TokenBucket
	clk    clock.Clock
	log    *zap.Logger
	rate   float64
	burst  int
}

func NewUpstreamLimiter(bucket *TokenBucket, clk clock.Clock, log *zap.Logger) *UpstreamLimiter {
	return &UpstreamLimiter{
		bucket: bucket,
		clk:    clk,
		log:    log.Named("ratelimit.upstream"),
		rate:   defaultUpstreamRate,
		burst:  defaultUpstreamBurst,
	}
}

// Wait blocks until the next call to the named source is within budget.
func (l *UpstreamLimiter) Wait(ctx context.Context, source string) error {
	if l == nil || l.bucket == nil {
		return l.sleepFallback(ctx)
	}

	for {
		res, err := l.bucket.Allow(ctx, "upstream:"+source, l.rate, l.burst)
		if err != nil {
			l.log.Warn("rate limiter unavailable, falling back to fixed delay", zap.Error(err))
			return l.sleepFallback(ctx)
		}
		if res.Allowed {
			return nil
		}
		delay := res.RetryAfter
		if delay <= 0 {
			delay = fallbackDelay
		}
		if err := l.clk.Sleep(ctx, delay); err != nil {
			return err
		}
	}
}

func (l *UpstreamLimiter) sleepFallback(ctx context.Context) error {
	if l == nil || l.clk == nil {
		return nil
	}
	return l.clk.Sleep(ctx, fallbackDelay)
}

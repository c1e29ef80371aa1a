package pipeline

import (
	"context"
	"errors"
	"time"

	"github.com/vettedhq/vetted/internal/clock"
	reportdomain "github.com/vettedhq/vetted/internal/report/domain"
	sourcesdomain "github.com/vettedhq/vetted/internal/sources/domain"
)

// Policy tunes the backoff executor. Defaults suit the final data-fetch
// leg of a two-phase flow, the call most likely to hit transient
// "not ready yet" answers.
type Policy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts: 5,
		BaseDelay:   3 * time.Second,
		MaxDelay:    15 * time.Second,
	}
}

func (p Policy) normalized() Policy {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = 5
	}
	if p.BaseDelay <= 0 {
		p.BaseDelay = 3 * time.Second
	}
	if p.MaxDelay <= 0 {
		p.MaxDelay = 15 * time.Second
	}
	return p
}

// delayFor returns base*2^(attempt-1) capped at the policy maximum.
func (p Policy) delayFor(attempt int) time.Duration {
	delay := p.BaseDelay
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= p.MaxDelay {
			return p.MaxDelay
		}
	}
	if delay > p.MaxDelay {
		return p.MaxDelay
	}
	return delay
}

// WithRetry runs fn with bounded exponential backoff. Exhausting the
// attempt budget surfaces upstream_unavailable carrying the last cause;
// a context deadline surfaces upstream_timeout instead.
func WithRetry(ctx context.Context, clk clock.Clock, policy Policy, fn func(ctx context.Context) (*sourcesdomain.RawPayload, error)) (*sourcesdomain.RawPayload, error) {
	policy = policy.normalized()

	var lastErr error
	for attempt := 1; attempt <= policy.MaxAttempts; attempt++ {
		payload, err := fn(ctx)
		if err == nil {
			return payload, nil
		}
		lastErr = err

		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			return nil, reportdomain.UpstreamTimeout(err)
		}
		if attempt == policy.MaxAttempts {
			break
		}
		if err := clk.Sleep(ctx, policy.delayFor(attempt)); err != nil {
			return nil, reportdomain.UpstreamTimeout(err)
		}
	}
	return nil, reportdomain.UpstreamUnavailable(lastErr)
}

package pipeline

import (
	"context"
	"time"

	"github.com/vettedhq/vetted/internal/clock"
	reportdomain "github.com/vettedhq/vetted/internal/report/domain"
	sourcesdomain "github.com/vettedhq/vetted/internal/sources/domain"
)

const (
	// defaultPollDelay covers sources that materialize results within
	// seconds; order-based sources override it with tens of seconds.
	defaultPollDelay = 5 * time.Second

	// fetchPhaseTimeout bounds the delay-then-fetch phase as a whole.
	fetchPhaseTimeout = 5 * time.Minute
)

// Poller drives the second phase of a two-phase source: one fixed delay,
// then a single fetch wrapped in the retry executor. The upstreams here
// expose no status endpoint cheaper than the result endpoint itself, so
// there is no iterative poll loop.
type Poller struct {
	clk clock.Clock
}

func NewPoller(clk clock.Clock) *Poller {
	return &Poller{clk: clk}
}

// Await blocks through the job's materialization delay and fetches the
// final payload. Exceeding the phase deadline surfaces upstream_timeout.
func (p *Poller) Await(ctx context.Context, job *sourcesdomain.AsyncJob, fetch func(ctx context.Context, job *sourcesdomain.AsyncJob) (*sourcesdomain.RawPayload, error)) (*sourcesdomain.RawPayload, error) {
	ctx, cancel := context.WithTimeout(ctx, fetchPhaseTimeout)
	defer cancel()

	delay := job.PollDelay
	if delay <= 0 {
		delay = defaultPollDelay
	}
	if err := p.clk.Sleep(ctx, delay); err != nil {
		return nil, reportdomain.UpstreamTimeout(err)
	}

	policy := DefaultPolicy()
	if job.MaxAttempts > 0 {
		policy.MaxAttempts = job.MaxAttempts
	}
	return WithRetry(ctx, p.clk, policy, func(ctx context.Context) (*sourcesdomain.RawPayload, error) {
		return fetch(ctx, job)
	})
}

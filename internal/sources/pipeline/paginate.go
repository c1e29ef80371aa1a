package pipeline

import (
	"context"
	"time"

	"github.com/vettedhq/vetted/internal/clock"
	"github.com/vettedhq/vetted/internal/ratelimit"
	reportdomain "github.com/vettedhq/vetted/internal/report/domain"
	sourcesdomain "github.com/vettedhq/vetted/internal/sources/domain"
	"go.uber.org/zap"
)

const (
	// DefaultPageSize matches what every paginated upstream here accepts.
	DefaultPageSize = 20

	// interPageDelay is the floor between page fetches when no limiter
	// is configured.
	interPageDelay = 500 * time.Millisecond

	// maxPages is a hard stop against upstreams that keep returning full
	// pages.
	maxPages = 50
)

// Paginator repeatedly fetches pages until a short page signals the end,
// merging extracted records. A page failure after the first page yields
// the partial result; a first-page failure propagates.
type Paginator struct {
	clk     clock.Clock
	limiter *ratelimit.UpstreamLimiter
	log     *zap.Logger
}

func NewPaginator(clk clock.Clock, limiter *ratelimit.UpstreamLimiter, log *zap.Logger) *Paginator {
	return &Paginator{
		clk:     clk,
		limiter: limiter,
		log:     log.Named("sources.paginator"),
	}
}

// CollectAll drains a paginated source. The extraction candidates come
// from the adapter's descriptor; the shape of the first page is the one
// reported back.
func (p *Paginator) CollectAll(ctx context.Context, source sourcesdomain.SyncSource, subject reportdomain.Subject, pageSize int) (Extraction, error) {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	descriptor := source.Descriptor()

	merged := Extraction{Records: []sourcesdomain.Record{}}
	for pageNumber := 1; pageNumber <= maxPages; pageNumber++ {
		if pageNumber > 1 {
			if err := p.wait(ctx, descriptor.Name); err != nil {
				return merged, reportdomain.UpstreamTimeout(err)
			}
		}

		payload, err := source.Fetch(ctx, subject, sourcesdomain.Page{Number: pageNumber, Size: pageSize})
		if err != nil {
			if pageNumber == 1 {
				return merged, err
			}
			p.log.Warn("page fetch failed, returning partial results",
				zap.String("source", descriptor.Name),
				zap.Int("page", pageNumber),
				zap.Error(err),
			)
			return merged, nil
		}

		extraction := Extract(payload.Body, descriptor.ExtractPaths)
		if merged.Shape == "" {
			merged.Shape = extraction.Shape
		}
		merged.Records = append(merged.Records, extraction.Records...)

		// A short page is the last page.
		if len(extraction.Records) < pageSize {
			break
		}
	}
	return merged, nil
}

func (p *Paginator) wait(ctx context.Context, sourceName string) error {
	if p.limiter != nil {
		return p.limiter.Wait(ctx, sourceName)
	}
	return p.clk.Sleep(ctx, interPageDelay)
}

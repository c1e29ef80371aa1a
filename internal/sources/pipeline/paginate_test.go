package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/vettedhq/vetted/internal/clock"
	reportdomain "github.com/vettedhq/vetted/internal/report/domain"
	sourcesdomain "github.com/vettedhq/vetted/internal/sources/domain"
	"go.uber.org/zap"
)

// pagedSource serves a fixed number of records in pages, optionally
// failing specific page numbers.
type pagedSource struct {
	total     int
	failPages map[int]error
	fetches   int
}

func (s *pagedSource) Descriptor() sourcesdomain.Descriptor {
	return sourcesdomain.Descriptor{
		Name:         "paged_test",
		Paginated:    true,
		ExtractPaths: []string{"records"},
	}
}

func (s *pagedSource) Fetch(_ context.Context, _ reportdomain.Subject, page sourcesdomain.Page) (*sourcesdomain.RawPayload, error) {
	s.fetches++
	if err, ok := s.failPages[page.Number]; ok {
		return nil, err
	}

	start := (page.Number - 1) * page.Size
	records := []map[string]any{}
	for i := start; i < start+page.Size && i < s.total; i++ {
		records = append(records, map[string]any{"id": fmt.Sprintf("rec-%03d", i)})
	}
	body, _ := json.Marshal(map[string]any{"records": records})
	return &sourcesdomain.RawPayload{Body: body}, nil
}

func newTestPaginator() (*Paginator, *clock.FakeClock) {
	clk := clock.NewFakeClock(time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC))
	return NewPaginator(clk, nil, zap.NewNop()), clk
}

func TestCollectAllDrainsThreePages(t *testing.T) {
	paginator, clk := newTestPaginator()
	source := &pagedSource{total: 45}

	extraction, err := paginator.CollectAll(context.Background(), source, reportdomain.Subject{}, 20)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if source.fetches != 3 {
		t.Fatalf("expected 3 page fetches for 45 records, got %d", source.fetches)
	}
	if len(extraction.Records) != 45 {
		t.Fatalf("expected 45 records, got %d", len(extraction.Records))
	}
	if extraction.Records[44]["id"] != "rec-044" {
		t.Fatalf("records out of order: %v", extraction.Records[44])
	}
	// Without a limiter the inter-page spacing falls back to the clock.
	if len(clk.Sleeps()) != 2 {
		t.Fatalf("expected 2 inter-page delays, got %v", clk.Sleeps())
	}
}

func TestCollectAllExactMultipleStopsOnEmptyPage(t *testing.T) {
	paginator, _ := newTestPaginator()
	source := &pagedSource{total: 40}

	extraction, err := paginator.CollectAll(context.Background(), source, reportdomain.Subject{}, 20)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(extraction.Records) != 40 {
		t.Fatalf("expected 40 records, got %d", len(extraction.Records))
	}
	if source.fetches != 3 {
		t.Fatalf("expected trailing empty page fetch, got %d fetches", source.fetches)
	}
}

func TestCollectAllFirstPageFailurePropagates(t *testing.T) {
	paginator, _ := newTestPaginator()
	boom := errors.New("listing service down")
	source := &pagedSource{total: 45, failPages: map[int]error{1: boom}}

	_, err := paginator.CollectAll(context.Background(), source, reportdomain.Subject{}, 20)
	if !errors.Is(err, boom) {
		t.Fatalf("expected first-page failure to propagate, got %v", err)
	}
}

func TestCollectAllLaterPageFailureReturnsPartial(t *testing.T) {
	paginator, _ := newTestPaginator()
	source := &pagedSource{total: 45, failPages: map[int]error{3: errors.New("flaky")}}

	extraction, err := paginator.CollectAll(context.Background(), source, reportdomain.Subject{}, 20)
	if err != nil {
		t.Fatalf("later-page failure should not error, got %v", err)
	}
	if len(extraction.Records) != 40 {
		t.Fatalf("expected the first two pages, got %d records", len(extraction.Records))
	}
}

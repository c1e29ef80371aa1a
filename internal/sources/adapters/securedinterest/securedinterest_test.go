package securedinterest_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/vettedhq/vetted/internal/clock"
	"github.com/vettedhq/vetted/internal/config"
	reportdomain "github.com/vettedhq/vetted/internal/report/domain"
	"github.com/vettedhq/vetted/internal/sources/adapters/securedinterest"
	"github.com/vettedhq/vetted/internal/sources/client"
	"github.com/vettedhq/vetted/internal/sources/credentials"
	sourcesdomain "github.com/vettedhq/vetted/internal/sources/domain"
	"github.com/vettedhq/vetted/internal/sources/pipeline"
	"go.uber.org/zap"
)

func newAdapter(t *testing.T, handler http.Handler) (*securedinterest.Adapter, *httptest.Server) {
	t.Helper()

	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	cfg := config.Config{
		Upstreams: map[string]config.Upstream{
			config.ServiceSecuredInterest: {BaseURL: srv.URL, APIKey: "test-key"},
		},
	}
	clk := clock.NewFakeClock(time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC))
	creds := credentials.New(cfg, clk, zap.NewNop())
	return securedinterest.New(client.New(cfg, creds, zap.NewNop())), srv
}

func TestSubmitCreatesSearchOrder(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/search-orders", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("expected POST, got %s", r.Method)
		}
		var payload map[string]any
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			t.Errorf("order payload: %v", err)
		}
		if payload["business_number"] != "11222333444" {
			t.Errorf("unexpected grantor: %v", payload)
		}
		_, _ = w.Write([]byte(`{"order_id":"SO-77","result_url":"` + "http://" + r.Host + `/v1/search-orders/SO-77/result"}`))
	})
	adapter, _ := newAdapter(t, mux)

	job, err := adapter.Submit(context.Background(), reportdomain.NewOrganisation("11222333444"))
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if job.SubmissionID != "SO-77" {
		t.Fatalf("unexpected order id %q", job.SubmissionID)
	}
	if job.PollDelay <= 0 {
		t.Fatalf("two-phase jobs need a materialization delay")
	}
}

func TestAwaitRetriesUntilCertificateReady(t *testing.T) {
	var hits atomic.Int64
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/search-orders", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"order_id":"SO-88"}`))
	})
	mux.HandleFunc("/v1/search-orders/SO-88/result", func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) < 3 {
			w.WriteHeader(http.StatusAccepted)
			return
		}
		_, _ = w.Write([]byte(`{"records":[{"interest_id":"SI-1"}]}`))
	})
	adapter, _ := newAdapter(t, mux)

	job, err := adapter.Submit(context.Background(), reportdomain.NewOrganisation("11222333444"))
	if err != nil {
		t.Fatalf("submit: %v", err)
	}

	clk := clock.NewFakeClock(time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC))
	poller := pipeline.NewPoller(clk)
	payload, err := poller.Await(context.Background(), job, adapter.FetchResult)
	if err != nil {
		t.Fatalf("await: %v", err)
	}
	if payload.ExternalID != "SO-88" {
		t.Fatalf("payload must carry the order id, got %q", payload.ExternalID)
	}
	if hits.Load() != 3 {
		t.Fatalf("expected 2 not-ready answers then the result, got %d hits", hits.Load())
	}
}

func TestFetchResultNotReady(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/search-orders/SO-99/result", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
	})
	adapter, _ := newAdapter(t, mux)

	_, err := adapter.FetchResult(context.Background(), &sourcesdomain.AsyncJob{SubmissionID: "SO-99"})
	if !errors.Is(err, sourcesdomain.ErrNotReady) {
		t.Fatalf("expected not-ready, got %v", err)
	}
}

package server

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/vettedhq/vetted/internal/config"
	deltadomain "github.com/vettedhq/vetted/internal/delta/domain"
	reportdomain "github.com/vettedhq/vetted/internal/report/domain"
	snapshotdomain "github.com/vettedhq/vetted/internal/snapshot/domain"
	"go.uber.org/zap"
)

type stubReportService struct {
	acquired   *snapshotdomain.ReportSnapshot
	acquireErr error
	lastType   reportdomain.ReportType
	lastKey    string
}

func (s *stubReportService) Acquire(_ context.Context, subject reportdomain.Subject, reportType reportdomain.ReportType) (*snapshotdomain.ReportSnapshot, error) {
	s.lastType = reportType
	s.lastKey = subject.Key()
	return s.acquired, s.acquireErr
}

func (s *stubReportService) CheckExisting(_ context.Context, reportType reportdomain.ReportType, subjectKey string) (*snapshotdomain.ReportSnapshot, bool, error) {
	s.lastType = reportType
	s.lastKey = subjectKey
	return s.acquired, s.acquired != nil, s.acquireErr
}

func (s *stubReportService) GetSnapshot(_ context.Context, _ snowflake.ID) (*snapshotdomain.ReportSnapshot, error) {
	if s.acquired == nil {
		return nil, reportdomain.ErrSnapshotNotFound
	}
	return s.acquired, nil
}

func (s *stubReportService) ListHistory(_ context.Context, _ string, _ int) ([]*snapshotdomain.ReportSnapshot, error) {
	if s.acquired == nil {
		return nil, nil
	}
	return []*snapshotdomain.ReportSnapshot{s.acquired}, nil
}

type stubDeltaService struct {
	applied *snapshotdomain.ReportSnapshot
	err     error
}

func (s *stubDeltaService) ApplyDelta(_ context.Context, _ deltadomain.NotificationDelta) (*snapshotdomain.ReportSnapshot, error) {
	return s.applied, s.err
}

type stubRenderer struct{}

func (stubRenderer) Render(_ context.Context, _ *snapshotdomain.ReportSnapshot) (io.Reader, error) {
	return strings.NewReader("%PDF-1.4 test"), nil
}

func newTestServer(reportSvc *stubReportService, deltaSvc *stubDeltaService) *gin.Engine {
	gin.SetMode(gin.TestMode)
	engine := gin.New()
	engine.Use(ErrorHandlingMiddleware())

	NewServer(ServerParams{
		Gin:       engine,
		Cfg:       config.Config{},
		ReportSvc: reportSvc,
		DeltaSvc:  deltaSvc,
		Renderer:  stubRenderer{},
		Log:       zap.NewNop(),
	})
	return engine
}

func sampleSnapshot() *snapshotdomain.ReportSnapshot {
	return &snapshotdomain.ReportSnapshot{
		ID:          snowflake.ID(7341),
		ReportType:  "registry-current",
		SubjectKey:  "11222333444",
		ExternalID:  "ext-1",
		SearchLabel: "11222333444",
		Document:    []byte(`{"records":[]}`),
	}
}

func TestAcquireReportHappyPath(t *testing.T) {
	reportSvc := &stubReportService{acquired: sampleSnapshot()}
	engine := newTestServer(reportSvc, &stubDeltaService{})

	body := `{"report_type":"tax-debt","subject":{"kind":"organisation","business_number":"11 222 333 444"}}`
	req := httptest.NewRequest(http.MethodPost, "/v1/reports", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	resp := httptest.NewRecorder()
	engine.ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", resp.Code, resp.Body.String())
	}
	if reportSvc.lastType != reportdomain.TaxDebt {
		t.Fatalf("expected tax-debt passed through, got %s", reportSvc.lastType)
	}
	if reportSvc.lastKey != "11222333444" {
		t.Fatalf("expected normalized subject key, got %q", reportSvc.lastKey)
	}
}

func TestAcquireReportUnknownType(t *testing.T) {
	engine := newTestServer(&stubReportService{}, &stubDeltaService{})

	body := `{"report_type":"credit-score","subject":{"kind":"organisation","business_number":"11222333444"}}`
	req := httptest.NewRequest(http.MethodPost, "/v1/reports", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	resp := httptest.NewRecorder()
	engine.ServeHTTP(resp, req)

	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.Code)
	}
}

func TestFaultCodesMapToStatuses(t *testing.T) {
	cases := []struct {
		fault      error
		wantStatus int
	}{
		{reportdomain.InvalidInput("bad subject"), http.StatusBadRequest},
		{reportdomain.UpstreamTimeout(context.DeadlineExceeded), http.StatusGatewayTimeout},
		{reportdomain.UpstreamUnavailable(io.EOF), http.StatusBadGateway},
		{reportdomain.NewFault(reportdomain.FaultPersistence, io.EOF), http.StatusInternalServerError},
	}

	for _, tc := range cases {
		engine := newTestServer(&stubReportService{acquireErr: tc.fault}, &stubDeltaService{})

		body := `{"report_type":"registry-current","subject":{"kind":"organisation","business_number":"11222333444"}}`
		req := httptest.NewRequest(http.MethodPost, "/v1/reports", strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		resp := httptest.NewRecorder()
		engine.ServeHTTP(resp, req)

		if resp.Code != tc.wantStatus {
			t.Fatalf("fault %v: expected %d, got %d", tc.fault, tc.wantStatus, resp.Code)
		}
	}
}

func TestLatestReportMissIs404(t *testing.T) {
	engine := newTestServer(&stubReportService{}, &stubDeltaService{})

	req := httptest.NewRequest(http.MethodGet, "/v1/reports/latest?report_type=trademark&subject_key=11222333444", nil)
	resp := httptest.NewRecorder()
	engine.ServeHTTP(resp, req)

	if resp.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.Code)
	}
}

func TestNotificationWebhook(t *testing.T) {
	deltaSvc := &stubDeltaService{applied: sampleSnapshot()}
	engine := newTestServer(&stubReportService{}, deltaSvc)

	body := `{"target_subject_key":"11222333444","target_report_type":"court-civil","kind":"new_case","payload":{"case_id":"C-1"}}`
	req := httptest.NewRequest(http.MethodPost, "/v1/notifications", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	resp := httptest.NewRecorder()
	engine.ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", resp.Code, resp.Body.String())
	}
}

func TestNotificationUnknownKind(t *testing.T) {
	engine := newTestServer(&stubReportService{}, &stubDeltaService{})

	body := `{"target_subject_key":"11222333444","target_report_type":"court-civil","kind":"renamed","payload":{}}`
	req := httptest.NewRequest(http.MethodPost, "/v1/notifications", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	resp := httptest.NewRecorder()
	engine.ServeHTTP(resp, req)

	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.Code)
	}
}

func TestReportPDFStreamsDocument(t *testing.T) {
	engine := newTestServer(&stubReportService{acquired: sampleSnapshot()}, &stubDeltaService{})

	req := httptest.NewRequest(http.MethodGet, "/v1/reports/7341/pdf", nil)
	resp := httptest.NewRecorder()
	engine.ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}
	if resp.Header().Get("Content-Type") != "application/pdf" {
		t.Fatalf("expected pdf content type, got %q", resp.Header().Get("Content-Type"))
	}
	if !strings.HasPrefix(resp.Body.String(), "%PDF") {
		t.Fatalf("expected pdf bytes, got %q", resp.Body.String()[:10])
	}
}

package service_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/vettedhq/vetted/internal/clock"
	"github.com/vettedhq/vetted/internal/config"
	deltadomain "github.com/vettedhq/vetted/internal/delta/domain"
	deltaengine "github.com/vettedhq/vetted/internal/delta/engine"
	reportdomain "github.com/vettedhq/vetted/internal/report/domain"
	reportservice "github.com/vettedhq/vetted/internal/report/service"
	snapshotrepo "github.com/vettedhq/vetted/internal/snapshot/repository"
	"github.com/vettedhq/vetted/internal/sources/adapters"
	sourcesdomain "github.com/vettedhq/vetted/internal/sources/domain"
	"github.com/vettedhq/vetted/internal/sources/pipeline"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// countingAdapter is a sync source that records every fetch.
type countingAdapter struct {
	mu          sync.Mutex
	fetches     int
	reportTypes []reportdomain.ReportType
	perUnit     bool
	body        string
	err         error
	delay       time.Duration
}

func (a *countingAdapter) Descriptor() sourcesdomain.Descriptor {
	return sourcesdomain.Descriptor{
		Name:         "counting_test",
		ReportTypes:  a.reportTypes,
		ExtractPaths: []string{"records"},
		FetchTimeout: 30 * time.Second,
		PerUnit:      a.perUnit,
	}
}

func (a *countingAdapter) Fetch(ctx context.Context, _ reportdomain.Subject, _ sourcesdomain.Page) (*sourcesdomain.RawPayload, error) {
	if a.delay > 0 {
		select {
		case <-time.After(a.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	a.mu.Lock()
	a.fetches++
	a.mu.Unlock()
	if a.err != nil {
		return nil, a.err
	}
	return &sourcesdomain.RawPayload{Body: []byte(a.body), ExternalID: "ext-1"}, nil
}

func (a *countingAdapter) fetchCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.fetches
}

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:memdb_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	schema := `CREATE TABLE report_snapshots (
		id BIGINT PRIMARY KEY,
		report_type TEXT NOT NULL,
		subject_key TEXT NOT NULL,
		business_number TEXT,
		external_id TEXT NOT NULL,
		search_label TEXT NOT NULL,
		unit_reference TEXT,
		document TEXT NOT NULL,
		alert_flag BOOLEAN NOT NULL DEFAULT FALSE,
		alert_count INTEGER NOT NULL DEFAULT 0,
		created_at TIMESTAMPTZ NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL
	)`
	if err := db.Exec(schema).Error; err != nil {
		t.Fatalf("create schema: %v", err)
	}
	return db
}

func newTestService(t *testing.T, db *gorm.DB, sources ...sourcesdomain.Source) *reportservice.ReportService {
	t.Helper()

	node, err := snowflake.NewNode(1)
	if err != nil {
		t.Fatalf("new node: %v", err)
	}
	clk := clock.NewFakeClock(time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC))

	return reportservice.New(reportservice.Params{
		DB:        db,
		Log:       zap.NewNop(),
		Node:      node,
		Clk:       clk,
		Repo:      snapshotrepo.Provide(),
		Registry:  adapters.NewRegistry(sources...),
		Poller:    pipeline.NewPoller(clk),
		Paginator: pipeline.NewPaginator(clk, nil, zap.NewNop()),
		Engine:    deltaengine.New(clk, zap.NewNop()),
		Cfg: config.Config{
			AcquireTimeout: 3 * time.Minute,
		},
	})
}

func TestAcquireIsIdempotentPerKey(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	adapter := &countingAdapter{
		reportTypes: []reportdomain.ReportType{reportdomain.RegistryCurrent},
		body:        `{"records":[{"id":"r1"}],"officers":[{"name":"A. Director"}]}`,
	}
	svc := newTestService(t, db, adapter)
	subject := reportdomain.NewOrganisation("11 222 333 444")

	first, err := svc.Acquire(ctx, subject, reportdomain.RegistryCurrent)
	if err != nil {
		t.Fatalf("first acquire: %v", err)
	}
	second, err := svc.Acquire(ctx, subject, reportdomain.RegistryCurrent)
	if err != nil {
		t.Fatalf("second acquire: %v", err)
	}

	if adapter.fetchCount() != 1 {
		t.Fatalf("expected one upstream fetch, got %d", adapter.fetchCount())
	}
	if first.ID != second.ID {
		t.Fatalf("expected the cached snapshot, got %v then %v", first.ID, second.ID)
	}
}

func TestAcquireFamilySharesOneSnapshot(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	adapter := &countingAdapter{
		reportTypes: []reportdomain.ReportType{reportdomain.RegistryCurrent},
		body:        `{"records":[{"id":"r1"}],"tax_debt":{"amount":0}}`,
	}
	svc := newTestService(t, db, adapter)
	subject := reportdomain.NewOrganisation("11222333444")

	registry, err := svc.Acquire(ctx, subject, reportdomain.RegistryCurrent)
	if err != nil {
		t.Fatalf("registry acquire: %v", err)
	}
	taxDebt, err := svc.Acquire(ctx, subject, reportdomain.TaxDebt)
	if err != nil {
		t.Fatalf("tax debt acquire: %v", err)
	}
	courtCivil, err := svc.Acquire(ctx, subject, reportdomain.CourtCivil)
	if err != nil {
		t.Fatalf("court civil acquire: %v", err)
	}

	if adapter.fetchCount() != 1 {
		t.Fatalf("family members must share one fetch, got %d", adapter.fetchCount())
	}
	if taxDebt.ID != registry.ID || courtCivil.ID != registry.ID {
		t.Fatalf("family members must share the snapshot row")
	}
}

func TestAcquireConcurrentCallersCoalesce(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	adapter := &countingAdapter{
		reportTypes: []reportdomain.ReportType{reportdomain.RegistryCurrent},
		body:        `{"records":[{"id":"r1"}]}`,
		delay:       50 * time.Millisecond,
	}
	svc := newTestService(t, db, adapter)
	subject := reportdomain.NewOrganisation("11222333444")

	var wg sync.WaitGroup
	ids := make([]snowflake.ID, 10)
	errs := make([]error, 10)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			snap, err := svc.Acquire(ctx, subject, reportdomain.RegistryCurrent)
			errs[i] = err
			if snap != nil {
				ids[i] = snap.ID
			}
		}(i)
	}
	wg.Wait()

	for i := range errs {
		if errs[i] != nil {
			t.Fatalf("caller %d failed: %v", i, errs[i])
		}
		if ids[i] != ids[0] {
			t.Fatalf("caller %d got a different snapshot", i)
		}
	}
	if adapter.fetchCount() != 1 {
		t.Fatalf("expected concurrent callers to coalesce into one fetch, got %d", adapter.fetchCount())
	}
}

func TestAcquirePersistenceFailureStillReturnsData(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	adapter := &countingAdapter{
		reportTypes: []reportdomain.ReportType{reportdomain.RegistryCurrent},
		body:        `{"records":[{"id":"r1"}]}`,
	}
	svc := newTestService(t, db, adapter)

	// Break the write path after the service is wired.
	if err := db.Exec(`DROP TABLE report_snapshots`).Error; err != nil {
		t.Fatalf("drop table: %v", err)
	}
	if err := db.Exec(`CREATE TABLE report_snapshots (
		id BIGINT PRIMARY KEY,
		report_type TEXT NOT NULL,
		subject_key TEXT NOT NULL,
		business_number TEXT,
		external_id TEXT NOT NULL,
		search_label TEXT NOT NULL,
		unit_reference TEXT,
		document TEXT NOT NULL,
		alert_flag BOOLEAN NOT NULL DEFAULT FALSE,
		alert_count INTEGER NOT NULL DEFAULT 0,
		created_at TIMESTAMPTZ NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL,
		CHECK (report_type <> 'registry-current')
	)`).Error; err != nil {
		t.Fatalf("recreate table: %v", err)
	}

	snap, err := svc.Acquire(ctx, reportdomain.NewOrganisation("11222333444"), reportdomain.RegistryCurrent)
	if err != nil {
		t.Fatalf("acquire should tolerate a persist failure, got %v", err)
	}
	if snap == nil || len(snap.Document) == 0 {
		t.Fatalf("expected fetched data back, got %+v", snap)
	}
}

func TestAcquireMissingSubjectFieldIsInvalidInput(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	adapter := &countingAdapter{
		reportTypes: []reportdomain.ReportType{reportdomain.RegistryCurrent},
		body:        `{"records":[]}`,
	}
	svc := newTestService(t, db, adapter)

	_, err := svc.Acquire(ctx, reportdomain.Subject{Kind: reportdomain.SubjectOrganisation}, reportdomain.RegistryCurrent)
	code, ok := reportdomain.CodeOf(err)
	if !ok || code != reportdomain.FaultInvalidInput {
		t.Fatalf("expected invalid_input, got %v", err)
	}
	if adapter.fetchCount() != 0 {
		t.Fatalf("validation must run before any fetch")
	}
}

func TestAcquireUpstreamFailureMapsToFault(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	adapter := &countingAdapter{
		reportTypes: []reportdomain.ReportType{reportdomain.Trademark},
		err:         errors.New("connection refused"),
	}
	svc := newTestService(t, db, adapter)

	_, err := svc.Acquire(ctx, reportdomain.NewOrganisation("11222333444"), reportdomain.Trademark)
	code, ok := reportdomain.CodeOf(err)
	if !ok || code != reportdomain.FaultUpstreamUnavailable {
		t.Fatalf("expected upstream_unavailable, got %v", err)
	}
}

func TestAcquirePerUnitStoresRowsAndReturnsSummary(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	adapter := &countingAdapter{
		reportTypes: []reportdomain.ReportType{reportdomain.LandTitleByOrg},
		perUnit:     true,
		body:        `{"records":[{"title_reference":"T1","lot":"1"},{"title_reference":"T2","lot":"2"},{"title_reference":"T3","lot":"3"}]}`,
	}
	svc := newTestService(t, db, adapter)
	subject := reportdomain.NewOrganisation("11222333444")

	summary, err := svc.Acquire(ctx, subject, reportdomain.LandTitleByOrg)
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}

	var doc map[string]any
	if err := json.Unmarshal(summary.Document, &doc); err != nil {
		t.Fatalf("summary document: %v", err)
	}
	if doc["unit_count"] != float64(3) {
		t.Fatalf("expected 3 units in summary, got %v", doc["unit_count"])
	}

	var count int64
	if err := db.Table("report_snapshots").Count(&count).Error; err != nil {
		t.Fatalf("count rows: %v", err)
	}
	if count != 3 {
		t.Fatalf("expected 3 stored unit rows, got %d", count)
	}

	// The probe reduces the stored rows without another fetch.
	probe, found, err := svc.CheckExisting(ctx, reportdomain.LandTitleByOrg, subject.Key())
	if err != nil || !found {
		t.Fatalf("check existing: found=%v err=%v", found, err)
	}
	if err := json.Unmarshal(probe.Document, &doc); err != nil {
		t.Fatalf("probe document: %v", err)
	}
	if doc["unit_count"] != float64(3) {
		t.Fatalf("expected reduced summary, got %v", doc)
	}
	if adapter.fetchCount() != 1 {
		t.Fatalf("probe must not fetch, got %d fetches", adapter.fetchCount())
	}
}

func TestCheckExistingMissIsNotAnError(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	svc := newTestService(t, db)

	snap, found, err := svc.CheckExisting(ctx, reportdomain.Trademark, "11222333444")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if found || snap != nil {
		t.Fatalf("expected a miss, got %+v", snap)
	}
}

func TestApplyDeltaMergesIntoLatestSnapshot(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	adapter := &countingAdapter{
		reportTypes: []reportdomain.ReportType{reportdomain.RegistryCurrent},
		body:        `{"records":[{"id":"r1"}]}`,
	}
	svc := newTestService(t, db, adapter)
	subject := reportdomain.NewOrganisation("11222333444")

	snap, err := svc.Acquire(ctx, subject, reportdomain.RegistryCurrent)
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}

	delta := deltadomain.NotificationDelta{
		TargetSubjectKey: subject.Key(),
		TargetReportType: "court-civil",
		Kind:             deltadomain.KindNewCase,
		Payload:          []byte(`{"case_id":"C-9","court":"district"}`),
	}
	updated, err := svc.ApplyDelta(ctx, delta)
	if err != nil {
		t.Fatalf("apply delta: %v", err)
	}
	if updated.ID != snap.ID {
		t.Fatalf("delta must target the family snapshot")
	}
	if !updated.AlertFlag || updated.AlertCount != 1 {
		t.Fatalf("alert fields not maintained: %+v", updated)
	}

	// Redelivery leaves the stored row unchanged.
	again, err := svc.ApplyDelta(ctx, delta)
	if err != nil {
		t.Fatalf("redeliver delta: %v", err)
	}
	if again.AlertCount != 1 {
		t.Fatalf("redelivery must be idempotent, got %+v", again)
	}
}

func TestApplyDeltaWithoutSnapshot(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	svc := newTestService(t, db)

	_, err := svc.ApplyDelta(ctx, deltadomain.NotificationDelta{
		TargetSubjectKey: "11222333444",
		TargetReportType: "registry-current",
		Kind:             deltadomain.KindNewCase,
		Payload:          []byte(`{"case_id":"C-1"}`),
	})
	if !errors.Is(err, reportdomain.ErrSnapshotNotFound) {
		t.Fatalf("expected snapshot_not_found, got %v", err)
	}
}

func TestListHistoryReturnsSubjectRows(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	registryAdapter := &countingAdapter{
		reportTypes: []reportdomain.ReportType{reportdomain.RegistryCurrent},
		body:        `{"records":[{"id":"r1"}]}`,
	}
	trademarkAdapter := &countingAdapter{
		reportTypes: []reportdomain.ReportType{reportdomain.Trademark},
		body:        `{"records":[{"mark":"VETTED"}]}`,
	}
	svc := newTestService(t, db, registryAdapter, trademarkAdapter)
	subject := reportdomain.NewOrganisation("11222333444")

	if _, err := svc.Acquire(ctx, subject, reportdomain.RegistryCurrent); err != nil {
		t.Fatalf("acquire registry: %v", err)
	}
	if _, err := svc.Acquire(ctx, subject, reportdomain.Trademark); err != nil {
		t.Fatalf("acquire trademark: %v", err)
	}

	rows, err := svc.ListHistory(ctx, subject.Key(), 0)
	if err != nil {
		t.Fatalf("list history: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("expected 2 history rows, got %d", len(rows))
	}
}

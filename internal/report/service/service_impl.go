package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/bwmarrin/snowflake"
	"github.com/google/uuid"
	"github.com/vettedhq/vetted/internal/clock"
	"github.com/vettedhq/vetted/internal/config"
	deltadomain "github.com/vettedhq/vetted/internal/delta/domain"
	"github.com/vettedhq/vetted/internal/delta/engine"
	"github.com/vettedhq/vetted/internal/observability/metrics"
	reportdomain "github.com/vettedhq/vetted/internal/report/domain"
	snapshotdomain "github.com/vettedhq/vetted/internal/snapshot/domain"
	"github.com/vettedhq/vetted/internal/sources/adapters"
	sourcesdomain "github.com/vettedhq/vetted/internal/sources/domain"
	"github.com/vettedhq/vetted/internal/sources/pipeline"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
	"gorm.io/gorm"
)

const defaultHistoryLimit = 50

type Params struct {
	fx.In

	DB        *gorm.DB
	Log       *zap.Logger
	Node      *snowflake.Node
	Clk       clock.Clock
	Repo      snapshotdomain.Repository
	Registry  *adapters.Registry
	Poller    *pipeline.Poller
	Paginator *pipeline.Paginator
	Engine    *engine.Engine
	Metrics   *metrics.Metrics
	Cfg       config.Config
}

// ReportService orchestrates acquisition: cache check, adapter
// execution, normalization, persist. It also owns delta application so
// both write paths share one per-key lock.
type ReportService struct {
	db        *gorm.DB
	log       *zap.Logger
	node      *snowflake.Node
	clk       clock.Clock
	repo      snapshotdomain.Repository
	registry  *adapters.Registry
	poller    *pipeline.Poller
	paginator *pipeline.Paginator
	engine    *engine.Engine
	metrics   *metrics.Metrics
	cfg       config.Config

	flight singleflight.Group

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func New(p Params) *ReportService {
	return &ReportService{
		db:        p.DB,
		log:       p.Log.Named("report.service"),
		node:      p.Node,
		clk:       p.Clk,
		repo:      p.Repo,
		registry:  p.Registry,
		poller:    p.Poller,
		paginator: p.Paginator,
		engine:    p.Engine,
		metrics:   p.Metrics,
		cfg:       p.Cfg,
		locks:     map[string]*sync.Mutex{},
	}
}

var _ reportdomain.Service = (*ReportService)(nil)
var _ deltadomain.Service = (*ReportService)(nil)

// keyLock returns the mutex guarding one cache key's write path.
func (s *ReportService) keyLock(key string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	lock, ok := s.locks[key]
	if !ok {
		lock = &sync.Mutex{}
		s.locks[key] = lock
	}
	return lock
}

func cacheKey(reportType reportdomain.ReportType, subjectKey string) string {
	return string(reportType.CacheFamily()) + "|" + subjectKey
}

func (s *ReportService) Acquire(ctx context.Context, subject reportdomain.Subject, reportType reportdomain.ReportType) (*snapshotdomain.ReportSnapshot, error) {
	subjectKey := subject.Key()
	if subjectKey == "" || subjectKey == "|" {
		return nil, reportdomain.InvalidInput("subject has no identifying fields")
	}

	ctx, cancel := context.WithTimeout(ctx, s.cfg.AcquireTimeout)
	defer cancel()

	// Concurrent acquisitions for one cache key coalesce into a single
	// fetch; every waiter receives the same snapshot or error.
	result, err, shared := s.flight.Do(cacheKey(reportType, subjectKey), func() (any, error) {
		return s.acquireOnce(ctx, subject, reportType, subjectKey)
	})
	if err != nil {
		s.metrics.RecordAcquisition(ctx, reportType.String(), "error")
		return nil, err
	}
	if shared {
		s.log.Debug("acquisition coalesced",
			zap.String("report_type", reportType.String()),
			zap.String("subject_key", subjectKey),
		)
	}
	return result.(*snapshotdomain.ReportSnapshot), nil
}

func (s *ReportService) acquireOnce(ctx context.Context, subject reportdomain.Subject, reportType reportdomain.ReportType, subjectKey string) (*snapshotdomain.ReportSnapshot, error) {
	if existing, ok, err := s.CheckExisting(ctx, reportType, subjectKey); err != nil {
		return nil, err
	} else if ok {
		s.metrics.RecordCacheHit(ctx, reportType.String())
		s.metrics.RecordAcquisition(ctx, reportType.String(), "cache_hit")
		return existing, nil
	}

	family := reportType.CacheFamily()
	source, err := s.registry.Resolve(family)
	if err != nil {
		return nil, reportdomain.InvalidInput(fmt.Sprintf("no source serves %s", reportType))
	}
	desc := source.Descriptor()
	if err := sourcesdomain.ValidateSubject(subject, desc.Required); err != nil {
		return nil, reportdomain.NewFault(reportdomain.FaultInvalidInput, err)
	}

	extraction, raw, err := s.execute(ctx, source, subject)
	if err != nil {
		return nil, s.mapSourceError(err)
	}

	s.log.Info("report acquired",
		zap.String("report_type", reportType.String()),
		zap.String("subject_key", subjectKey),
		zap.String("source", desc.Name),
		zap.Int("records", len(extraction.Records)),
	)

	if desc.PerUnit {
		return s.persistUnits(ctx, subject, family, subjectKey, desc, extraction, raw)
	}
	return s.persistSnapshot(ctx, subject, family, subjectKey, reportType, desc, extraction, raw)
}

// execute runs the source's own exchange pattern and hands back the
// normalized records plus the last raw payload.
func (s *ReportService) execute(ctx context.Context, source sourcesdomain.Source, subject reportdomain.Subject) (pipeline.Extraction, *sourcesdomain.RawPayload, error) {
	desc := source.Descriptor()

	if twoPhase, ok := source.(sourcesdomain.TwoPhaseSource); ok {
		s.metrics.RecordUpstreamCall(ctx, desc.Name, "submit")
		job, err := twoPhase.Submit(ctx, subject)
		if err != nil {
			return pipeline.Extraction{}, nil, err
		}
		s.metrics.RecordUpstreamCall(ctx, desc.Name, "fetch")
		raw, err := s.poller.Await(ctx, job, twoPhase.FetchResult)
		if err != nil {
			return pipeline.Extraction{}, nil, err
		}
		return pipeline.Extract(raw.Body, desc.ExtractPaths), raw, nil
	}

	syncSource, ok := source.(sourcesdomain.SyncSource)
	if !ok {
		return pipeline.Extraction{}, nil, reportdomain.ErrNoAdapter
	}

	if desc.Paginated {
		s.metrics.RecordUpstreamCall(ctx, desc.Name, "fetch")
		extraction, err := s.paginator.CollectAll(ctx, syncSource, subject, pipeline.DefaultPageSize)
		if err != nil {
			return pipeline.Extraction{}, nil, err
		}
		return extraction, nil, nil
	}

	fetchCtx := ctx
	if desc.FetchTimeout > 0 {
		var cancel context.CancelFunc
		fetchCtx, cancel = context.WithTimeout(ctx, desc.FetchTimeout)
		defer cancel()
	}
	s.metrics.RecordUpstreamCall(ctx, desc.Name, "fetch")
	raw, err := syncSource.Fetch(fetchCtx, subject, sourcesdomain.Page{})
	if err != nil {
		return pipeline.Extraction{}, nil, err
	}
	return pipeline.Extract(raw.Body, desc.ExtractPaths), raw, nil
}

// buildDocument assembles the canonical snapshot document. Object
// payloads keep their top-level sections so family members reading the
// shared snapshot find theirs.
func (s *ReportService) buildDocument(desc sourcesdomain.Descriptor, extraction pipeline.Extraction, raw *sourcesdomain.RawPayload) (map[string]any, error) {
	doc := map[string]any{}
	if raw != nil && len(raw.Body) > 0 {
		var body map[string]any
		if err := json.Unmarshal(raw.Body, &body); err == nil {
			doc = body
		}
	}

	records := make([]any, 0, len(extraction.Records))
	for _, record := range extraction.Records {
		records = append(records, map[string]any(record))
	}
	doc["records"] = records
	doc["record_count"] = len(records)
	doc["source"] = desc.Name
	doc["retrieved_at"] = s.clk.Now().UTC().Format("2006-01-02T15:04:05Z07:00")
	return doc, nil
}

func (s *ReportService) persistSnapshot(ctx context.Context, subject reportdomain.Subject, family reportdomain.ReportType, subjectKey string, requested reportdomain.ReportType, desc sourcesdomain.Descriptor, extraction pipeline.Extraction, raw *sourcesdomain.RawPayload) (*snapshotdomain.ReportSnapshot, error) {
	doc, err := s.buildDocument(desc, extraction, raw)
	if err != nil {
		return nil, err
	}
	document, err := json.Marshal(doc)
	if err != nil {
		return nil, err
	}

	snap := &snapshotdomain.ReportSnapshot{
		ID:             s.node.Generate(),
		ReportType:     string(family),
		SubjectKey:     subjectKey,
		BusinessNumber: subject.BusinessNumberOrNil(),
		ExternalID:     externalID(raw),
		SearchLabel:    subject.SearchLabel(),
		Document:       document,
		CreatedAt:      s.clk.Now(),
		UpdatedAt:      s.clk.Now(),
	}

	lock := s.keyLock(cacheKey(family, subjectKey))
	lock.Lock()
	insertErr := s.repo.Insert(ctx, s.db, snap)
	lock.Unlock()
	if insertErr != nil {
		// The fetched data is still good; hand it to the caller and
		// leave re-persisting to the next acquisition.
		s.log.Warn("snapshot persist failed",
			zap.String("report_type", requested.String()),
			zap.String("subject_key", subjectKey),
			zap.Error(insertErr),
		)
		s.metrics.RecordAcquisition(ctx, requested.String(), "persist_failed")
		return snap, nil
	}

	s.metrics.RecordAcquisition(ctx, requested.String(), "fetched")
	return snap, nil
}

// persistUnits writes one row per unit record and returns the reduced
// summary the caller sees.
func (s *ReportService) persistUnits(ctx context.Context, subject reportdomain.Subject, family reportdomain.ReportType, subjectKey string, desc sourcesdomain.Descriptor, extraction pipeline.Extraction, raw *sourcesdomain.RawPayload) (*snapshotdomain.ReportSnapshot, error) {
	lock := s.keyLock(cacheKey(family, subjectKey))
	lock.Lock()
	defer lock.Unlock()

	rows := make([]*snapshotdomain.ReportSnapshot, 0, len(extraction.Records))
	var persistFailed bool
	for _, record := range extraction.Records {
		unitRef := record.NaturalID("title_reference", "reference", "id")
		if unitRef == "" {
			unitRef = uuid.NewString()
		}
		document, err := json.Marshal(map[string]any(record))
		if err != nil {
			return nil, err
		}
		row := &snapshotdomain.ReportSnapshot{
			ID:             s.node.Generate(),
			ReportType:     string(family),
			SubjectKey:     subjectKey,
			BusinessNumber: subject.BusinessNumberOrNil(),
			ExternalID:     externalID(raw),
			SearchLabel:    subject.SearchLabel(),
			UnitReference:  unitRef,
			Document:       document,
			CreatedAt:      s.clk.Now(),
			UpdatedAt:      s.clk.Now(),
		}
		if err := s.repo.Insert(ctx, s.db, row); err != nil {
			persistFailed = true
			s.log.Warn("unit snapshot persist failed",
				zap.String("report_type", family.String()),
				zap.String("unit_reference", unitRef),
				zap.Error(err),
			)
		}
		rows = append(rows, row)
	}

	if persistFailed {
		s.metrics.RecordAcquisition(ctx, family.String(), "persist_failed")
	} else {
		s.metrics.RecordAcquisition(ctx, family.String(), "fetched")
	}

	if len(rows) == 0 {
		// Zero matching titles is a valid result. Nothing is stored, so
		// the next acquisition searches again.
		document, _ := json.Marshal(map[string]any{"titles": []any{}, "unit_count": 0})
		return &snapshotdomain.ReportSnapshot{
			ID:             s.node.Generate(),
			ReportType:     string(family),
			SubjectKey:     subjectKey,
			BusinessNumber: subject.BusinessNumberOrNil(),
			ExternalID:     externalID(raw),
			SearchLabel:    subject.SearchLabel(),
			Document:       document,
			CreatedAt:      s.clk.Now(),
			UpdatedAt:      s.clk.Now(),
		}, nil
	}
	return reduceUnits(family, subjectKey, rows), nil
}

// reduceUnits folds per-unit rows into the single summary snapshot
// callers of Acquire and CheckExisting receive.
func reduceUnits(family reportdomain.ReportType, subjectKey string, rows []*snapshotdomain.ReportSnapshot) *snapshotdomain.ReportSnapshot {
	if len(rows) == 0 {
		return nil
	}

	titles := make([]any, 0, len(rows))
	var alertCount int
	for _, row := range rows {
		var doc any
		if err := json.Unmarshal(row.Document, &doc); err != nil {
			doc = map[string]any{}
		}
		titles = append(titles, map[string]any{
			"unit_reference": row.UnitReference,
			"snapshot_id":    row.ID.String(),
			"document":       doc,
		})
		alertCount += row.AlertCount
	}
	document, _ := json.Marshal(map[string]any{
		"titles":     titles,
		"unit_count": len(rows),
	})

	newest := rows[0]
	return &snapshotdomain.ReportSnapshot{
		ID:             newest.ID,
		ReportType:     string(family),
		SubjectKey:     subjectKey,
		BusinessNumber: newest.BusinessNumber,
		ExternalID:     newest.ExternalID,
		SearchLabel:    newest.SearchLabel,
		Document:       document,
		AlertFlag:      alertCount > 0,
		AlertCount:     alertCount,
		CreatedAt:      newest.CreatedAt,
		UpdatedAt:      newest.UpdatedAt,
	}
}

func (s *ReportService) CheckExisting(ctx context.Context, reportType reportdomain.ReportType, subjectKey string) (*snapshotdomain.ReportSnapshot, bool, error) {
	family := reportType.CacheFamily()

	if reportType.PerUnit() {
		rows, err := s.repo.FindLatestUnits(ctx, s.db, string(family), subjectKey)
		if err != nil {
			return nil, false, reportdomain.NewFault(reportdomain.FaultPersistence, err)
		}
		if len(rows) == 0 {
			return nil, false, nil
		}
		return reduceUnits(family, subjectKey, rows), true, nil
	}

	snap, err := s.repo.FindLatest(ctx, s.db, string(family), subjectKey)
	if err != nil {
		return nil, false, reportdomain.NewFault(reportdomain.FaultPersistence, err)
	}
	if snap == nil {
		return nil, false, nil
	}
	return snap, true, nil
}

func (s *ReportService) GetSnapshot(ctx context.Context, id snowflake.ID) (*snapshotdomain.ReportSnapshot, error) {
	snap, err := s.repo.FindByID(ctx, s.db, id)
	if errors.Is(err, snapshotdomain.ErrNotFound) {
		return nil, reportdomain.ErrSnapshotNotFound
	}
	if err != nil {
		return nil, reportdomain.NewFault(reportdomain.FaultPersistence, err)
	}
	if snap == nil {
		return nil, reportdomain.ErrSnapshotNotFound
	}
	return snap, nil
}

func (s *ReportService) ListHistory(ctx context.Context, subjectKey string, limit int) ([]*snapshotdomain.ReportSnapshot, error) {
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	rows, err := s.repo.ListBySubject(ctx, s.db, subjectKey, limit)
	if err != nil {
		return nil, reportdomain.NewFault(reportdomain.FaultPersistence, err)
	}
	return rows, nil
}

// ApplyDelta folds a monitoring notification into the targeted snapshot
// under the same per-key lock Acquire writes through.
func (s *ReportService) ApplyDelta(ctx context.Context, delta deltadomain.NotificationDelta) (*snapshotdomain.ReportSnapshot, error) {
	reportType, ok := reportdomain.ParseReportType(delta.TargetReportType)
	if !ok {
		return nil, reportdomain.NewFault(reportdomain.FaultInvalidInput, reportdomain.ErrUnknownReportType)
	}
	family := reportType.CacheFamily()

	lock := s.keyLock(cacheKey(family, delta.TargetSubjectKey))
	lock.Lock()
	defer lock.Unlock()

	snap, err := s.repo.FindLatest(ctx, s.db, string(family), delta.TargetSubjectKey)
	if err != nil {
		return nil, reportdomain.NewFault(reportdomain.FaultPersistence, err)
	}
	if snap == nil {
		return nil, reportdomain.ErrSnapshotNotFound
	}

	result, err := s.engine.Merge(snap.Document, delta)
	if err != nil {
		return nil, err
	}
	if !result.Changed {
		s.metrics.RecordDeltaMerge(ctx, string(delta.Kind)+"_noop")
		return snap, nil
	}

	if err := s.repo.UpdateDocument(ctx, s.db, snap.ID, result.Document, result.AlertFlag, result.AlertCount); err != nil {
		return nil, reportdomain.NewFault(reportdomain.FaultPersistence, err)
	}
	s.metrics.RecordDeltaMerge(ctx, string(delta.Kind))

	snap.Document = result.Document
	snap.AlertFlag = result.AlertFlag
	snap.AlertCount = result.AlertCount
	snap.UpdatedAt = s.clk.Now()
	return snap, nil
}

// mapSourceError folds adapter and pipeline failures into the fault
// taxonomy. Errors that already carry a code pass through.
func (s *ReportService) mapSourceError(err error) error {
	if _, ok := reportdomain.CodeOf(err); ok {
		return err
	}
	switch {
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return reportdomain.UpstreamTimeout(err)
	case errors.Is(err, sourcesdomain.ErrMissingSubjectField):
		return reportdomain.NewFault(reportdomain.FaultInvalidInput, err)
	case errors.Is(err, reportdomain.ErrAllBranchesFailed),
		errors.Is(err, sourcesdomain.ErrUpstreamStatus),
		errors.Is(err, sourcesdomain.ErrNotReady):
		return reportdomain.UpstreamUnavailable(err)
	default:
		return reportdomain.UpstreamUnavailable(err)
	}
}

func externalID(raw *sourcesdomain.RawPayload) string {
	if raw != nil && raw.ExternalID != "" {
		return raw.ExternalID
	}
	// Sources without their own identifier get a synthetic one so
	// snapshots stay individually addressable.
	return uuid.NewString()
}

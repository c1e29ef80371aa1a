package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/vettedhq/vetted/internal/snapshot/domain"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, snapshot *domain.ReportSnapshot) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO report_snapshots
		 (id, report_type, subject_key, business_number, external_id, search_label, unit_reference, document, alert_flag, alert_count, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		snapshot.ID,
		snapshot.ReportType,
		snapshot.SubjectKey,
		snapshot.BusinessNumber,
		snapshot.ExternalID,
		snapshot.SearchLabel,
		snapshot.UnitReference,
		snapshot.Document,
		snapshot.AlertFlag,
		snapshot.AlertCount,
		snapshot.CreatedAt,
		snapshot.UpdatedAt,
	).Error
}

func (r *repo) FindLatest(ctx context.Context, db *gorm.DB, reportType, subjectKey string) (*domain.ReportSnapshot, error) {
	var snapshot domain.ReportSnapshot
	err := db.WithContext(ctx).
		Model(&domain.ReportSnapshot{}).
		Where("report_type = ? AND subject_key = ?", reportType, subjectKey).
		Order("created_at desc, id desc").
		Limit(1).
		Find(&snapshot).Error
	if err != nil {
		return nil, err
	}
	if snapshot.ID == 0 {
		return nil, nil
	}
	return &snapshot, nil
}

func (r *repo) FindLatestUnits(ctx context.Context, db *gorm.DB, reportType, subjectKey string) ([]*domain.ReportSnapshot, error) {
	var rows []*domain.ReportSnapshot
	err := db.WithContext(ctx).
		Model(&domain.ReportSnapshot{}).
		Where("report_type = ? AND subject_key = ?", reportType, subjectKey).
		Order("created_at desc, id desc").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}

	// Keep only the newest row per unit reference; rows are newest first.
	seen := map[string]struct{}{}
	units := make([]*domain.ReportSnapshot, 0, len(rows))
	for _, row := range rows {
		if _, ok := seen[row.UnitReference]; ok {
			continue
		}
		seen[row.UnitReference] = struct{}{}
		units = append(units, row)
	}
	return units, nil
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.ReportSnapshot, error) {
	var snapshot domain.ReportSnapshot
	err := db.WithContext(ctx).
		Model(&domain.ReportSnapshot{}).
		Where("id = ?", id).
		Limit(1).
		Find(&snapshot).Error
	if err != nil {
		return nil, err
	}
	if snapshot.ID == 0 {
		return nil, domain.ErrNotFound
	}
	return &snapshot, nil
}

func (r *repo) UpdateDocument(ctx context.Context, db *gorm.DB, id snowflake.ID, document datatypes.JSON, alertFlag bool, alertCount int) error {
	return db.WithContext(ctx).Exec(
		`UPDATE report_snapshots
		 SET document = ?, alert_flag = ?, alert_count = ?, updated_at = ?
		 WHERE id = ?`,
		document,
		alertFlag,
		alertCount,
		time.Now().UTC(),
		id,
	).Error
}

func (r *repo) ListBySubject(ctx context.Context, db *gorm.DB, subjectKey string, limit int) ([]*domain.ReportSnapshot, error) {
	if limit <= 0 {
		limit = 100
	}
	var rows []*domain.ReportSnapshot
	err := db.WithContext(ctx).
		Model(&domain.ReportSnapshot{}).
		Where("subject_key = ?", subjectKey).
		Order("created_at desc, id desc").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

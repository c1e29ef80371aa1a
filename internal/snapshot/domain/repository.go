package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

var ErrNotFound = errors.New("snapshot_not_found")

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, snapshot *ReportSnapshot) error

	// FindLatest returns the most recent snapshot for the key, nil when
	// none exists.
	FindLatest(ctx context.Context, db *gorm.DB, reportType, subjectKey string) (*ReportSnapshot, error)

	// FindLatestUnits returns, for per-unit report types, the most recent
	// row of every unit reference under the key, newest first.
	FindLatestUnits(ctx context.Context, db *gorm.DB, reportType, subjectKey string) ([]*ReportSnapshot, error)

	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*ReportSnapshot, error)

	// UpdateDocument rewrites the canonical document and alert fields of
	// an existing row. Only the delta merge engine takes this path.
	UpdateDocument(ctx context.Context, db *gorm.DB, id snowflake.ID, document datatypes.JSON, alertFlag bool, alertCount int) error

	// ListBySubject returns the full acquisition history for a subject
	// key, newest first.
	ListBySubject(ctx context.Context, db *gorm.DB, subjectKey string, limit int) ([]*ReportSnapshot, error)
}

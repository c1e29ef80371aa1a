package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	snapshotdomain "github.com/vettedhq/vetted/internal/snapshot/domain"
)

// Service is the acquisition façade the transport layer talks to.
type Service interface {
	// Acquire returns the cached snapshot for the subject and report
	// type, fetching from the upstream source only when none exists.
	Acquire(ctx context.Context, subject Subject, reportType ReportType) (*snapshotdomain.ReportSnapshot, error)

	// CheckExisting probes the cache without ever fetching.
	CheckExisting(ctx context.Context, reportType ReportType, subjectKey string) (*snapshotdomain.ReportSnapshot, bool, error)

	GetSnapshot(ctx context.Context, id snowflake.ID) (*snapshotdomain.ReportSnapshot, error)

	// ListHistory returns a subject's acquisition history, newest first.
	ListHistory(ctx context.Context, subjectKey string, limit int) ([]*snapshotdomain.ReportSnapshot, error)
}

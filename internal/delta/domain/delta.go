package domain

import (
	"context"
	"errors"

	snapshotdomain "github.com/vettedhq/vetted/internal/snapshot/domain"
	"gorm.io/datatypes"
)

// DeltaKind names the change a monitoring notification carries.
type DeltaKind string

const (
	KindNewCase          DeltaKind = "new_case"
	KindNewDocument      DeltaKind = "new_document"
	KindTaxDebtUpdate    DeltaKind = "tax_debt_update"
	KindRiskFactorUpdate DeltaKind = "risk_factor_update"
	KindLicenceUpdate    DeltaKind = "licence_update"
)

var allKinds = map[DeltaKind]struct{}{
	KindNewCase:          {},
	KindNewDocument:      {},
	KindTaxDebtUpdate:    {},
	KindRiskFactorUpdate: {},
	KindLicenceUpdate:    {},
}

func ParseKind(raw string) (DeltaKind, bool) {
	kind := DeltaKind(raw)
	_, ok := allKinds[kind]
	return kind, ok
}

// NotificationDelta is one incremental change pushed by a monitoring
// feed, targeting the cached snapshot of one subject and report type.
type NotificationDelta struct {
	TargetSubjectKey string         `json:"target_subject_key"`
	TargetReportType string         `json:"target_report_type"`
	Kind             DeltaKind      `json:"kind"`
	Payload          datatypes.JSON `json:"payload"`
}

var (
	ErrUnknownKind    = errors.New("unknown_delta_kind")
	ErrInvalidPayload = errors.New("invalid_delta_payload")
)

// Service applies a delta to the targeted snapshot. Implemented by the
// report orchestrator so merges share its per-key write lock.
type Service interface {
	ApplyDelta(ctx context.Context, delta NotificationDelta) (*snapshotdomain.ReportSnapshot, error)
}

package domain

import (
	"context"
	"errors"
	"time"

	reportdomain "github.com/vettedhq/vetted/internal/report/domain"
)

// Record is one normalized result row extracted from an upstream payload.
type Record map[string]any

// NaturalID returns the record's own identifier under any of the given
// keys, empty when none is present.
func (r Record) NaturalID(keys ...string) string {
	for _, key := range keys {
		if value, ok := r[key].(string); ok && value != "" {
			return value
		}
	}
	return ""
}

// RawPayload is an upstream response before normalization.
type RawPayload struct {
	Body []byte

	// ExternalID is the identifier the upstream assigned (job id, order
	// id); empty for sources that have none.
	ExternalID string
}

// AsyncJob is the ephemeral handle produced by a two-phase source's
// submit step and consumed by the poller. Discarded once the final
// payload is fetched.
type AsyncJob struct {
	SubmissionID string
	PollURL      string
	PollDelay    time.Duration
	MaxAttempts  int
}

// Page addresses one page of a paginated source.
type Page struct {
	Number int
	Size   int
}

// SubjectField names a subject field an adapter requires.
type SubjectField string

const (
	FieldBusinessNumber SubjectField = "business_number"
	FieldGivenName      SubjectField = "given_name"
	FieldFamilyName     SubjectField = "family_name"
	FieldTitleReference SubjectField = "title_reference"
	FieldAddress        SubjectField = "address"
)

// Descriptor declares an adapter's shape: the report types it serves,
// the subject fields it needs, whether its output paginates, and the
// ordered extraction candidates its payloads match.
type Descriptor struct {
	Name          string
	ReportTypes   []reportdomain.ReportType
	Required      []SubjectField
	Paginated     bool
	ExtractPaths  []string
	TwoPhase      bool
	PollDelay     time.Duration
	FetchTimeout  time.Duration
	RetryAttempts int
	PerUnit       bool
}

// Source is implemented by every adapter.
type Source interface {
	Descriptor() Descriptor
}

// SyncSource answers in a single request/response exchange. Adapters
// that do not paginate ignore the page argument.
type SyncSource interface {
	Source
	Fetch(ctx context.Context, subject reportdomain.Subject, page Page) (*RawPayload, error)
}

// TwoPhaseSource submits a job and later fetches its result; the poller
// drives the second phase.
type TwoPhaseSource interface {
	Source
	Submit(ctx context.Context, subject reportdomain.Subject) (*AsyncJob, error)
	FetchResult(ctx context.Context, job *AsyncJob) (*RawPayload, error)
}

var (
	// ErrNotReady signals the two-phase result is not materialized yet;
	// the retry executor treats it as transient.
	ErrNotReady = errors.New("result_not_ready")

	ErrMissingSubjectField = errors.New("missing_subject_field")
	ErrUpstreamStatus      = errors.New("unexpected_upstream_status")
)

// ValidateSubject checks an adapter's required fields before any network
// call is made.
func ValidateSubject(subject reportdomain.Subject, required []SubjectField) error {
	for _, field := range required {
		switch field {
		case FieldBusinessNumber:
			if subject.BusinessNumber == "" {
				return ErrMissingSubjectField
			}
		case FieldGivenName:
			if subject.GivenName == "" {
				return ErrMissingSubjectField
			}
		case FieldFamilyName:
			if subject.FamilyName == "" {
				return ErrMissingSubjectField
			}
		case FieldTitleReference:
			if subject.TitleReference == "" {
				return ErrMissingSubjectField
			}
		case FieldAddress:
			if subject.Address == "" {
				return ErrMissingSubjectField
			}
		}
	}
	return nil
}

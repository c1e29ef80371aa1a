package domain

import (
	"errors"
	"fmt"
)

// FaultCode classifies acquisition failures for callers.
type FaultCode string

const (
	FaultInvalidInput        FaultCode = "invalid_input"
	FaultUpstreamTimeout     FaultCode = "upstream_timeout"
	FaultUpstreamUnavailable FaultCode = "upstream_unavailable"
	FaultPersistence         FaultCode = "persistence_failure"
)

// Fault wraps an underlying error with a taxonomy code.
type Fault struct {
	Code FaultCode
	Err  error
}

func (f *Fault) Error() string {
	if f.Err == nil {
		return string(f.Code)
	}
	return fmt.Sprintf("%s: %v", f.Code, f.Err)
}

func (f *Fault) Unwrap() error {
	return f.Err
}

func NewFault(code FaultCode, err error) *Fault {
	return &Fault{Code: code, Err: err}
}

func InvalidInput(message string) *Fault {
	return &Fault{Code: FaultInvalidInput, Err: errors.New(message)}
}

func UpstreamTimeout(err error) *Fault {
	return &Fault{Code: FaultUpstreamTimeout, Err: err}
}

func UpstreamUnavailable(err error) *Fault {
	return &Fault{Code: FaultUpstreamUnavailable, Err: err}
}

// CodeOf extracts the taxonomy code from an error chain.
func CodeOf(err error) (FaultCode, bool) {
	var fault *Fault
	if errors.As(err, &fault) {
		return fault.Code, true
	}
	return "", false
}

var (
	ErrUnknownReportType  = errors.New("unknown_report_type")
	ErrNoAdapter          = errors.New("no_adapter_for_report_type")
	ErrSnapshotNotFound   = errors.New("snapshot_not_found")
	ErrAllBranchesFailed  = errors.New("all_search_branches_failed")
	ErrUnsupportedSubject = errors.New("unsupported_subject_kind")
)

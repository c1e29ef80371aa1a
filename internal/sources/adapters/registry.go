package adapters

import (
	reportdomain "github.com/vettedhq/vetted/internal/report/domain"
	sourcesdomain "github.com/vettedhq/vetted/internal/sources/domain"
)

// Registry maps report types onto their source adapter. Built once at
// startup; adding a report type means registering an adapter, not
// editing a dispatch function.
type Registry struct {
	sources map[reportdomain.ReportType]sourcesdomain.Source
}

func NewRegistry(sources ...sourcesdomain.Source) *Registry {
	registry := &Registry{sources: map[reportdomain.ReportType]sourcesdomain.Source{}}
	for _, source := range sources {
		if source == nil {
			continue
		}
		for _, reportType := range source.Descriptor().ReportTypes {
			registry.sources[reportType] = source
		}
	}
	return registry
}

func (r *Registry) Resolve(reportType reportdomain.ReportType) (sourcesdomain.Source, error) {
	if r == nil {
		return nil, reportdomain.ErrNoAdapter
	}
	source, ok := r.sources[reportType]
	if !ok {
		return nil, reportdomain.ErrNoAdapter
	}
	return source, nil
}

// ReportTypes lists every report type with a registered adapter.
func (r *Registry) ReportTypes() []reportdomain.ReportType {
	if r == nil {
		return nil
	}
	types := make([]reportdomain.ReportType, 0, len(r.sources))
	for reportType := range r.sources {
		types = append(types, reportType)
	}
	return types
}

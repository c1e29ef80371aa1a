package metrics

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Config configures the metrics provider.
type Config struct {
	Enabled          bool
	ExporterEndpoint string
	ExporterProtocol string
	ServiceName      string
	Environment      string
}

// Metrics exposes application-level instruments.
type Metrics struct {
	acquisitions  metric.Int64Counter
	cacheHits     metric.Int64Counter
	upstreamCalls metric.Int64Counter
	deltaMerges   metric.Int64Counter
}

// NewProvider configures and registers the meter provider.
func NewProvider(lc fx.Lifecycle, cfg Config, log *zap.Logger) (metric.MeterProvider, error) {
	if !cfg.Enabled {
		provider := noop.NewMeterProvider()
		otel.SetMeterProvider(provider)
		return provider, nil
	}

	exporter, err := newExporter(cfg.ExporterProtocol, cfg.ExporterEndpoint)
	if err != nil {
		return nil, err
	}

	reader := sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(10*time.Second))
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	otel.SetMeterProvider(provider)

	if lc != nil {
		lc.Append(fx.Hook{
			OnStop: func(ctx context.Context) error {
				if log != nil {
					log.Info("shutting down meter provider")
				}
				return provider.Shutdown(ctx)
			},
		})
	}

	return provider, nil
}

// New configures the domain metrics instruments.
func New(cfg Config, provider metric.MeterProvider) (*Metrics, error) {
	name := strings.TrimSpace(cfg.ServiceName)
	if name == "" {
		name = "vetted"
	}
	meter := provider.Meter(name)

	acquisitions, err := meter.Int64Counter("vetted_report_acquisitions_total")
	if err != nil {
		return nil, err
	}
	cacheHits, err := meter.Int64Counter("vetted_snapshot_cache_hits_total")
	if err != nil {
		return nil, err
	}
	upstreamCalls, err := meter.Int64Counter("vetted_upstream_calls_total")
	if err != nil {
		return nil, err
	}
	deltaMerges, err := meter.Int64Counter("vetted_delta_merges_total")
	if err != nil {
		return nil, err
	}

	return &Metrics{
		acquisitions:  acquisitions,
		cacheHits:     cacheHits,
		upstreamCalls: upstreamCalls,
		deltaMerges:   deltaMerges,
	}, nil
}

// RecordAcquisition increments acquisition counts per report type and outcome.
func (m *Metrics) RecordAcquisition(ctx context.Context, reportType, outcome string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(
		attribute.String("report_type", strings.TrimSpace(reportType)),
		attribute.String("outcome", strings.TrimSpace(outcome)),
	)
	m.acquisitions.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordCacheHit increments cache hit counts per report type.
func (m *Metrics) RecordCacheHit(ctx context.Context, reportType string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(attribute.String("report_type", strings.TrimSpace(reportType)))
	m.cacheHits.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordUpstreamCall increments upstream call counts per source and phase.
func (m *Metrics) RecordUpstreamCall(ctx context.Context, source, phase string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(
		attribute.String("source", strings.TrimSpace(source)),
		attribute.String("phase", strings.TrimSpace(phase)),
	)
	m.upstreamCalls.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordDeltaMerge increments delta merge counts per notification kind.
func (m *Metrics) RecordDeltaMerge(ctx context.Context, kind string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(attribute.String("kind", strings.TrimSpace(kind)))
	m.deltaMerges.Add(ctx, 1, metric.WithAttributes(attrs...))
}

func newExporter(protocol, endpoint string) (sdkmetric.Exporter, error) {
	protocol = strings.ToLower(strings.TrimSpace(protocol))
	switch protocol {
	case "http", "http/protobuf":
		opts := []otlpmetrichttp.Option{}
		if endpoint != "" {
			opts = append(opts, otlpmetrichttp.WithEndpoint(endpoint))
		}
		return otlpmetrichttp.New(context.Background(), opts...)
	case "grpc", "grpc/protobuf", "":
		opts := []otlpmetricgrpc.Option{otlpmetricgrpc.WithInsecure()}
		if endpoint != "" {
			opts = append(opts, otlpmetricgrpc.WithEndpoint(endpoint))
		}
		return otlpmetricgrpc.New(context.Background(), opts...)
	default:
		return nil, fmt.Errorf("unsupported OTLP protocol %q", protocol)
	}
}

var allowedLabelKeys = map[attribute.Key]struct{}{
	"report_type": {},
	"outcome":     {},
	"source":      {},
	"phase":       {},
	"kind":        {},
	"status_code": {},
	"endpoint":    {},
}

// FilterAttributes strips disallowed labels to keep metrics low-cardinality.
func FilterAttributes(attrs ...attribute.KeyValue) []attribute.KeyValue {
	filtered := make([]attribute.KeyValue, 0, len(attrs))
	for _, attr := range attrs {
		if _, ok := allowedLabelKeys[attr.Key]; !ok {
			continue
		}
		filtered = append(filtered, attr)
	}
	return filtered
}

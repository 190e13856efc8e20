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

// Metrics exposes collection-run instruments.
type Metrics struct {
	collectorRuns   metric.Int64Counter
	collectorErrors metric.Int64Counter
	metricsWritten  metric.Int64Counter
	runDuration     metric.Float64Histogram
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
		name = "qbr-collector"
	}
	meter := provider.Meter(name)

	collectorRuns, err := meter.Int64Counter("qbr_collector_runs_total")
	if err != nil {
		return nil, err
	}
	collectorErrors, err := meter.Int64Counter("qbr_collector_errors_total")
	if err != nil {
		return nil, err
	}
	metricsWritten, err := meter.Int64Counter("qbr_metrics_written_total")
	if err != nil {
		return nil, err
	}
	runDuration, err := meter.Float64Histogram("qbr_collection_duration_seconds")
	if err != nil {
		return nil, err
	}

	return &Metrics{
		collectorRuns:   collectorRuns,
		collectorErrors: collectorErrors,
		metricsWritten:  metricsWritten,
		runDuration:     runDuration,
	}, nil
}

func (m *Metrics) IncCollectorRun(ctx context.Context, vendor string) {
	if m == nil {
		return
	}
	m.collectorRuns.Add(ctx, 1, metric.WithAttributes(attribute.String("vendor", vendor)))
}

func (m *Metrics) IncCollectorError(ctx context.Context, vendor string) {
	if m == nil {
		return
	}
	m.collectorErrors.Add(ctx, 1, metric.WithAttributes(attribute.String("vendor", vendor)))
}

func (m *Metrics) AddMetricsWritten(ctx context.Context, vendor string, n int) {
	if m == nil {
		return
	}
	m.metricsWritten.Add(ctx, int64(n), metric.WithAttributes(attribute.String("vendor", vendor)))
}

func (m *Metrics) ObserveRunDuration(ctx context.Context, vendor string, d time.Duration) {
	if m == nil {
		return
	}
	m.runDuration.Record(ctx, d.Seconds(), metric.WithAttributes(attribute.String("vendor", vendor)))
}

func newExporter(protocol, endpoint string) (sdkmetric.Exporter, error) {
	switch strings.ToLower(strings.TrimSpace(protocol)) {
	case "", "grpc":
		return otlpmetricgrpc.New(context.Background(),
			otlpmetricgrpc.WithEndpoint(endpoint),
			otlpmetricgrpc.WithInsecure(),
		)
	case "http", "http/protobuf":
		return otlpmetrichttp.New(context.Background(),
			otlpmetrichttp.WithEndpoint(endpoint),
			otlpmetrichttp.WithInsecure(),
		)
	default:
		return nil, fmt.Errorf("unsupported otlp protocol %q", protocol)
	}
}

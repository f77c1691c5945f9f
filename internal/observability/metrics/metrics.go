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

// Metrics exposes generation instruments exported over OTLP.
type Metrics struct {
	invoicesGenerated metric.Int64Counter
	profilesCompleted metric.Int64Counter
	notifyFailures    metric.Int64Counter
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
				return provider.Shutdown(ctx)
			},
		})
	}

	log.Info("metrics initialized",
		zap.String("endpoint", cfg.ExporterEndpoint),
		zap.String("protocol", cfg.ExporterProtocol),
	)
	return provider, nil
}

// New configures the domain metrics instruments.
func New(cfg Config, provider metric.MeterProvider) (*Metrics, error) {
	name := strings.TrimSpace(cfg.ServiceName)
	if name == "" {
		name = "recurring"
	}
	meter := provider.Meter(name)

	invoicesGenerated, err := meter.Int64Counter("recurring_invoices_generated_total")
	if err != nil {
		return nil, err
	}
	profilesCompleted, err := meter.Int64Counter("recurring_profiles_completed_total")
	if err != nil {
		return nil, err
	}
	notifyFailures, err := meter.Int64Counter("recurring_notify_failures_total")
	if err != nil {
		return nil, err
	}

	return &Metrics{
		invoicesGenerated: invoicesGenerated,
		profilesCompleted: profilesCompleted,
		notifyFailures:    notifyFailures,
	}, nil
}

func (m *Metrics) RecordInvoiceGenerated(ctx context.Context, currency string) {
	if m == nil {
		return
	}
	m.invoicesGenerated.Add(ctx, 1, metric.WithAttributes(attribute.String("currency", strings.ToUpper(currency))))
}

// RecordProfileCompleted counts transitions to completed by reason
// ("end_date" or "max_occurrences").
func (m *Metrics) RecordProfileCompleted(ctx context.Context, reason string) {
	if m == nil {
		return
	}
	m.profilesCompleted.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", reason)))
}

func (m *Metrics) RecordNotifyFailure(ctx context.Context, kind string) {
	if m == nil {
		return
	}
	m.notifyFailures.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", kind)))
}

func newExporter(protocol, endpoint string) (sdkmetric.Exporter, error) {
	protocol = strings.ToLower(strings.TrimSpace(protocol))
	switch protocol {
	case "http", "http/protobuf":
		opts := []otlpmetrichttp.Option{otlpmetrichttp.WithInsecure()}
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

package otel

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

// Metrics records tool invocation latency and failure counts.
type Metrics struct {
	cfg      *Config
	provider *sdkmetric.MeterProvider
	meter    metric.Meter
	shutdown func(context.Context) error

	toolLatency metric.Float64Histogram
	toolErrors  metric.Int64Counter
	targetCalls metric.Int64Counter
}

// NewMetrics builds a metrics recorder from cfg. A disabled config
// yields an instance whose record calls are cheap no-ops.
func NewMetrics(ctx context.Context, cfg *Config) (*Metrics, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}

	m := &Metrics{cfg: cfg}
	if !cfg.Enabled || cfg.ExporterType == ExporterNone {
		m.provider = sdkmetric.NewMeterProvider()
		m.meter = m.provider.Meter(cfg.ServiceName)
		m.shutdown = func(context.Context) error { return nil }
		return m, nil
	}

	exporter, err := newMetricExporter(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("creating metric exporter: %w", err)
	}
	res, err := newResource(cfg)
	if err != nil {
		return nil, fmt.Errorf("creating telemetry resource: %w", err)
	}

	m.provider = sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exporter)),
		sdkmetric.WithResource(res),
	)
	m.meter = m.provider.Meter(cfg.ServiceName)
	m.shutdown = m.provider.Shutdown

	if err := m.registerInstruments(); err != nil {
		return nil, err
	}
	otel.SetMeterProvider(m.provider)
	return m, nil
}

func newMetricExporter(ctx context.Context, cfg *Config) (sdkmetric.Exporter, error) {
	switch cfg.ExporterType {
	case ExporterStdout:
		return stdoutmetric.New()
	case ExporterOTLPGRPC:
		opts := []otlpmetricgrpc.Option{}
		if cfg.OTLPEndpoint != "" {
			opts = append(opts, otlpmetricgrpc.WithEndpoint(cfg.OTLPEndpoint))
		}
		if cfg.OTLPInsecure {
			opts = append(opts, otlpmetricgrpc.WithInsecure())
		}
		return otlpmetricgrpc.New(ctx, opts...)
	case ExporterOTLPHTTP:
		opts := []otlpmetrichttp.Option{}
		if cfg.OTLPEndpoint != "" {
			opts = append(opts, otlpmetrichttp.WithEndpoint(cfg.OTLPEndpoint))
		}
		if cfg.OTLPInsecure {
			opts = append(opts, otlpmetrichttp.WithInsecure())
		}
		return otlpmetrichttp.New(ctx, opts...)
	default:
		return nil, fmt.Errorf("unknown exporter type %q", cfg.ExporterType)
	}
}

func (m *Metrics) registerInstruments() error {
	var err error

	m.toolLatency, err = m.meter.Float64Histogram(
		"otgmcp.tool.latency",
		metric.WithDescription("Latency of tool invocations"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return fmt.Errorf("creating tool latency histogram: %w", err)
	}

	m.toolErrors, err = m.meter.Int64Counter(
		"otgmcp.tool.errors",
		metric.WithDescription("Count of failed tool invocations"),
	)
	if err != nil {
		return fmt.Errorf("creating tool error counter: %w", err)
	}

	m.targetCalls, err = m.meter.Int64Counter(
		"otgmcp.target.requests",
		metric.WithDescription("Count of requests issued to traffic generator targets"),
	)
	if err != nil {
		return fmt.Errorf("creating target request counter: %w", err)
	}
	return nil
}

// RecordToolCall records one tool invocation.
func (m *Metrics) RecordToolCall(ctx context.Context, toolName string, latencyMs float64, success bool) {
	if m.toolLatency == nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String("tool", toolName),
		attribute.Bool("success", success),
	)
	m.toolLatency.Record(ctx, latencyMs, attrs)
	if !success {
		m.toolErrors.Add(ctx, 1, metric.WithAttributes(attribute.String("tool", toolName)))
	}
}

// RecordTargetRequest counts one request to a target.
func (m *Metrics) RecordTargetRequest(ctx context.Context, target string) {
	if m.targetCalls == nil {
		return
	}
	m.targetCalls.Add(ctx, 1, metric.WithAttributes(attribute.String("target", target)))
}

// Shutdown flushes pending metrics.
func (m *Metrics) Shutdown(ctx context.Context) error {
	return m.shutdown(ctx)
}

// NoopMetrics returns a recorder that does nothing.
func NoopMetrics() *Metrics {
	mp := sdkmetric.NewMeterProvider()
	return &Metrics{
		cfg:      DefaultConfig(),
		provider: mp,
		meter:    mp.Meter("otg-mcp"),
		shutdown: func(context.Context) error { return nil },
	}
}

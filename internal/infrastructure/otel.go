package infrastructure

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/propagation"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.28.0"
	"go.opentelemetry.io/otel/trace"
)

const (
	// ServiceName identifies this service in traces and metrics.
	ServiceName = "wavesight"
	// MeterName scopes the instruments created by this module.
	MeterName = "wavesight"
)

// OTelConfig holds OpenTelemetry configuration.
type OTelConfig struct {
	ServiceVersion string
	Environment    string
	EnableTracing  bool
	EnableMetrics  bool
	SampleRatio    float64
}

// OTelProviders bundles the configured providers plus the Prometheus
// scrape handler mounted at /metrics.
type OTelProviders struct {
	TracerProvider *sdktrace.TracerProvider
	MeterProvider  *sdkmetric.MeterProvider
	Tracer         trace.Tracer
	Meter          metric.Meter
	PrometheusHTTP http.Handler
}

// InitializeOTel sets up tracing (stdout exporter, for local debugging) and
// metrics (Prometheus exporter) and installs the global providers.
func InitializeOTel(cfg OTelConfig, logger *slog.Logger) (*OTelProviders, error) {
	res, err := resource.New(context.Background(),
		resource.WithAttributes(
			semconv.ServiceName(ServiceName),
			semconv.ServiceVersion(cfg.ServiceVersion),
			attribute.String("deployment.environment", cfg.Environment),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("create otel resource: %w", err)
	}

	providers := &OTelProviders{}

	if cfg.EnableTracing {
		exporter, err := stdouttrace.New()
		if err != nil {
			return nil, fmt.Errorf("create trace exporter: %w", err)
		}
		tp := sdktrace.NewTracerProvider(
			sdktrace.WithBatcher(exporter),
			sdktrace.WithResource(res),
			sdktrace.WithSampler(sdktrace.TraceIDRatioBased(cfg.SampleRatio)),
		)
		providers.TracerProvider = tp
		providers.Tracer = tp.Tracer(MeterName, trace.WithInstrumentationVersion(cfg.ServiceVersion))
		otel.SetTracerProvider(tp)
	} else {
		providers.Tracer = otel.Tracer(MeterName)
	}

	if cfg.EnableMetrics {
		exporter, err := prometheus.New()
		if err != nil {
			return nil, fmt.Errorf("create prometheus exporter: %w", err)
		}
		mp := sdkmetric.NewMeterProvider(
			sdkmetric.WithResource(res),
			sdkmetric.WithReader(exporter),
		)
		providers.MeterProvider = mp
		providers.Meter = mp.Meter(MeterName, metric.WithInstrumentationVersion(cfg.ServiceVersion))
		providers.PrometheusHTTP = promhttp.Handler()
		otel.SetMeterProvider(mp)
	} else {
		providers.Meter = otel.Meter(MeterName)
	}

	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	logger.Info("opentelemetry initialized",
		slog.Bool("tracing", cfg.EnableTracing),
		slog.Bool("metrics", cfg.EnableMetrics))

	return providers, nil
}

// Shutdown flushes and stops the providers.
func (p *OTelProviders) Shutdown(ctx context.Context) error {
	if p.TracerProvider != nil {
		if err := p.TracerProvider.Shutdown(ctx); err != nil {
			return err
		}
	}
	if p.MeterProvider != nil {
		return p.MeterProvider.Shutdown(ctx)
	}
	return nil
}

// RunMetrics holds the analysis instruments.
type RunMetrics struct {
	RunsTotal  metric.Int64Counter
	RunsFailed metric.Int64Counter
	StageRows  metric.Int64Counter
	RunSeconds metric.Float64Histogram
}

// NewRunMetrics creates the analysis run instruments on the given meter.
func NewRunMetrics(meter metric.Meter) (*RunMetrics, error) {
	runsTotal, err := meter.Int64Counter("wavesight_runs_total",
		metric.WithDescription("Analysis runs started"))
	if err != nil {
		return nil, err
	}
	runsFailed, err := meter.Int64Counter("wavesight_runs_failed_total",
		metric.WithDescription("Analysis runs that returned an error"))
	if err != nil {
		return nil, err
	}
	stageRows, err := meter.Int64Counter("wavesight_stage_rows_total",
		metric.WithDescription("Rows emitted per pipeline stage"))
	if err != nil {
		return nil, err
	}
	runSeconds, err := meter.Float64Histogram("wavesight_run_duration_seconds",
		metric.WithDescription("Wall time of analysis runs"))
	if err != nil {
		return nil, err
	}
	return &RunMetrics{
		RunsTotal:  runsTotal,
		RunsFailed: runsFailed,
		StageRows:  stageRows,
		RunSeconds: runSeconds,
	}, nil
}

// RecordStageRows records the row count a stage emitted.
func (m *RunMetrics) RecordStageRows(ctx context.Context, stage string, rows int) {
	if m == nil {
		return
	}
	m.StageRows.Add(ctx, int64(rows), metric.WithAttributes(attribute.String("stage", stage)))
}

// StageStarted satisfies the pipeline progress sink. Starts are not metered.
func (m *RunMetrics) StageStarted(context.Context, string) {}

// StageCompleted satisfies the pipeline progress sink by recording the
// stage's row count.
func (m *RunMetrics) StageCompleted(ctx context.Context, stage string, rows int) {
	m.RecordStageRows(ctx, stage, rows)
}

// StageSpanSink opens a child span per pipeline stage. Stages run
// sequentially within a run, but runs may overlap, so open spans are keyed
// by trace ID and stage.
type StageSpanSink struct {
	tracer trace.Tracer

	mu   sync.Mutex
	open map[stageKey]trace.Span
}

type stageKey struct {
	traceID string
	stage   string
}

// NewStageSpanSink wraps the tracer as a progress sink.
func NewStageSpanSink(tracer trace.Tracer) *StageSpanSink {
	return &StageSpanSink{
		tracer: tracer,
		open:   make(map[stageKey]trace.Span),
	}
}

// StageStarted opens a span for the stage.
func (s *StageSpanSink) StageStarted(ctx context.Context, stage string) {
	_, span := s.tracer.Start(ctx, "analysis.stage."+stage)
	s.mu.Lock()
	s.open[stageKey{traceID: GetTraceID(ctx), stage: stage}] = span
	s.mu.Unlock()
}

// StageCompleted closes the stage's span, annotated with its row count.
func (s *StageSpanSink) StageCompleted(ctx context.Context, stage string, rows int) {
	key := stageKey{traceID: GetTraceID(ctx), stage: stage}
	s.mu.Lock()
	span, ok := s.open[key]
	delete(s.open, key)
	s.mu.Unlock()
	if !ok {
		return
	}
	span.SetAttributes(attribute.Int("rows", rows))
	span.End()
}

// Package telemetry records run and stage metrics through OpenTelemetry.
package telemetry

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"touch-braille-go/internal/apperr"
)

const (
	serviceName    = "touch-braille"
	serviceVersion = "1.0.0"
)

// Recorder implements the pipeline's stage and run hooks.
type Recorder struct {
	provider     *sdkmetric.MeterProvider
	stageSeconds metric.Float64Histogram
	runSeconds   metric.Float64Histogram
	runsTotal    metric.Int64Counter
	degraded     metric.Int64Counter
}

// New exports over OTLP/gRPC when cfg is enabled and records into a no-op
// meter otherwise.
func New(ctx context.Context, cfg Config) (*Recorder, error) {
	if !cfg.Enabled() {
		return NewWithMeterProvider(noop.NewMeterProvider())
	}

	opts := []otlpmetricgrpc.Option{otlpmetricgrpc.WithEndpoint(cfg.Endpoint)}
	if cfg.Insecure {
		opts = append(opts,
			otlpmetricgrpc.WithDialOption(grpc.WithTransportCredentials(insecure.NewCredentials())),
			otlpmetricgrpc.WithInsecure(),
		)
	}
	exp, err := otlpmetricgrpc.New(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("creating OTLP exporter: %w", err)
	}
	res, err := resource.New(ctx, resource.WithAttributes(
		semconv.ServiceName(serviceName),
		semconv.ServiceVersion(serviceVersion),
	))
	if err != nil {
		return nil, fmt.Errorf("creating resource: %w", err)
	}
	provider := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exp)),
		sdkmetric.WithResource(res),
	)
	r, err := NewWithMeterProvider(provider)
	if err != nil {
		return nil, err
	}
	r.provider = provider
	return r, nil
}

func NewWithMeterProvider(mp metric.MeterProvider) (*Recorder, error) {
	meter := mp.Meter(serviceName)

	stageSeconds, err := meter.Float64Histogram(
		"touch_stage_duration_seconds",
		metric.WithDescription("Time spent in each pipeline stage"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating stage histogram: %w", err)
	}
	runSeconds, err := meter.Float64Histogram(
		"touch_run_duration_seconds",
		metric.WithDescription("End-to-end run duration"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating run histogram: %w", err)
	}
	runsTotal, err := meter.Int64Counter(
		"touch_runs_total",
		metric.WithDescription("Finished runs by verdict"),
		metric.WithUnit("{run}"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating runs counter: %w", err)
	}
	degraded, err := meter.Int64Counter(
		"touch_conversions_degraded_total",
		metric.WithDescription("Runs whose conversion fell back to the raw transcript"),
		metric.WithUnit("{run}"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating degraded counter: %w", err)
	}
	return &Recorder{
		stageSeconds: stageSeconds,
		runSeconds:   runSeconds,
		runsTotal:    runsTotal,
		degraded:     degraded,
	}, nil
}

func (r *Recorder) StageFinished(ctx context.Context, stage string, d time.Duration, err error) {
	outcome := "ok"
	if err != nil {
		outcome = string(apperr.KindOf(err))
	}
	r.stageSeconds.Record(ctx, d.Seconds(), metric.WithAttributes(
		attribute.String("stage", stage),
		attribute.String("outcome", outcome),
	))
}

func (r *Recorder) RunFinished(ctx context.Context, verdict, kind string, d time.Duration, degraded bool) {
	attrs := metric.WithAttributes(
		attribute.String("verdict", verdict),
		attribute.String("error_kind", kind),
	)
	r.runSeconds.Record(ctx, d.Seconds(), attrs)
	r.runsTotal.Add(ctx, 1, attrs)
	if degraded {
		r.degraded.Add(ctx, 1)
	}
}

// Close flushes pending metrics.
func (r *Recorder) Close(ctx context.Context) error {
	if r.provider == nil {
		return nil
	}
	return r.provider.Shutdown(ctx)
}

package telemetry

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"touch-braille-go/internal/apperr"
)

func collect(t *testing.T, reader *sdkmetric.ManualReader) map[string]metricdata.Metrics {
	t.Helper()
	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("collect: %v", err)
	}
	out := map[string]metricdata.Metrics{}
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			out[m.Name] = m
		}
	}
	return out
}

func TestRecorderRecordsStagesAndRuns(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	r, err := NewWithMeterProvider(sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader)))
	if err != nil {
		t.Fatalf("NewWithMeterProvider() error = %v", err)
	}
	ctx := context.Background()
	r.StageFinished(ctx, "Uploading", 2*time.Second, nil)
	r.StageFinished(ctx, "Transcribing", time.Second, apperr.New(apperr.KindTranscriptionTimeout, "t", "slow"))
	r.RunFinished(ctx, "done", "", 3*time.Second, true)
	r.RunFinished(ctx, "failed", "StorageAccessError", time.Second, false)

	metrics := collect(t, reader)

	stages, ok := metrics["touch_stage_duration_seconds"].Data.(metricdata.Histogram[float64])
	if !ok || len(stages.DataPoints) != 2 {
		t.Fatalf("stage histogram = %+v", metrics["touch_stage_duration_seconds"])
	}
	for _, dp := range stages.DataPoints {
		stage, _ := dp.Attributes.Value(attribute.Key("stage"))
		outcome, _ := dp.Attributes.Value(attribute.Key("outcome"))
		if stage.AsString() == "Transcribing" && outcome.AsString() != "TranscriptionTimeoutError" {
			t.Fatalf("outcome = %s", outcome.AsString())
		}
	}

	runs, ok := metrics["touch_runs_total"].Data.(metricdata.Sum[int64])
	if !ok || len(runs.DataPoints) != 2 {
		t.Fatalf("runs counter = %+v", metrics["touch_runs_total"])
	}
	deg, ok := metrics["touch_conversions_degraded_total"].Data.(metricdata.Sum[int64])
	if !ok || len(deg.DataPoints) != 1 || deg.DataPoints[0].Value != 1 {
		t.Fatalf("degraded counter = %+v", metrics["touch_conversions_degraded_total"])
	}
}

func TestNewWithoutEndpointIsNoop(t *testing.T) {
	r, err := New(context.Background(), Config{})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	r.StageFinished(context.Background(), "Resolving", time.Millisecond, errors.New("x"))
	r.RunFinished(context.Background(), "failed", "InputError", time.Millisecond, false)
	if err := r.Close(context.Background()); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
}

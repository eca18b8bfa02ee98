// Package telemetry provides OpenTelemetry instrumentation for tagging runs.
package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// AnnotatorMeterName is the name used for the annotator meter
const AnnotatorMeterName = "github.com/cognicore/tagsync/annotator"

// Run outcomes recorded on the runs counter.
const (
	OutcomeTagged  = "tagged"
	OutcomeEmpty   = "empty"
	OutcomeSkipped = "skipped"
	OutcomeFailed  = "failed"
)

// Metrics holds the OpenTelemetry instruments for annotation runs
type Metrics struct {
	runs          metric.Int64Counter
	tokens        metric.Int64Counter
	annotations   metric.Int64Counter
	batchDuration metric.Float64Histogram
}

// NewMetrics creates the instruments on the given meter provider.
// If provider is nil, it returns nil (no-op metrics).
func NewMetrics(provider metric.MeterProvider) (*Metrics, error) {
	if provider == nil {
		return nil, nil
	}

	meter := provider.Meter(AnnotatorMeterName)

	runs, err := meter.Int64Counter(
		"tagsync_runs_total",
		metric.WithDescription("Document processing runs by outcome"),
		metric.WithUnit("{run}"),
	)
	if err != nil {
		return nil, err
	}

	tokens, err := meter.Int64Counter(
		"tagsync_tokens_total",
		metric.WithDescription("Tokens submitted to the tagger"),
		metric.WithUnit("{token}"),
	)
	if err != nil {
		return nil, err
	}

	annotations, err := meter.Int64Counter(
		"tagsync_annotations_created_total",
		metric.WithDescription("Annotations added to documents in create mode"),
		metric.WithUnit("{annotation}"),
	)
	if err != nil {
		return nil, err
	}

	batchDuration, err := meter.Float64Histogram(
		"tagsync_batch_duration_seconds",
		metric.WithDescription("Duration of tagger batch calls in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.005, 0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10, 30),
	)
	if err != nil {
		return nil, err
	}

	return &Metrics{
		runs:          runs,
		tokens:        tokens,
		annotations:   annotations,
		batchDuration: batchDuration,
	}, nil
}

// RecordRun records one document run.
func (m *Metrics) RecordRun(ctx context.Context, outcome string, tokens, created int) {
	if m == nil {
		return
	}
	m.runs.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
	if tokens > 0 {
		m.tokens.Add(ctx, int64(tokens))
	}
	if created > 0 {
		m.annotations.Add(ctx, int64(created))
	}
}

// RecordBatch records the duration of one tagger call.
func (m *Metrics) RecordBatch(ctx context.Context, d time.Duration, success bool) {
	if m == nil {
		return
	}
	m.batchDuration.Record(ctx, d.Seconds(), metric.WithAttributes(attribute.Bool("success", success)))
}

package observability

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"

	"github.com/hankgalt/records-ingest/internal/domain/records"
)

const meterName = "github.com/hankgalt/records-ingest/ingest"

const (
	FLUSH_DURATION_METRIC = "ingest.flush.duration"
	RUN_DURATION_METRIC   = "ingest.run.duration"
)

// Bucket boundaries in seconds. A batch insert takes milliseconds to seconds,
// a whole file up to the activity timeout.
var (
	FlushDurationBuckets = []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30}
	RunDurationBuckets   = []float64{0.1, 0.5, 1, 5, 10, 30, 60, 120, 300, 600, 1800, 3600}
)

// IngestViews sets the histogram buckets of the ingest latency instruments.
func IngestViews() []sdkmetric.View {
	return []sdkmetric.View{
		sdkmetric.NewView(
			sdkmetric.Instrument{Name: FLUSH_DURATION_METRIC},
			sdkmetric.Stream{Aggregation: sdkmetric.AggregationExplicitBucketHistogram{Boundaries: FlushDurationBuckets}},
		),
		sdkmetric.NewView(
			sdkmetric.Instrument{Name: RUN_DURATION_METRIC},
			sdkmetric.Stream{Aggregation: sdkmetric.AggregationExplicitBucketHistogram{Boundaries: RunDurationBuckets}},
		),
	}
}

// IngestMetrics records ingestion counters & latencies. It satisfies ingest.Observer.
type IngestMetrics struct {
	batches   metric.Int64Counter
	recs      metric.Int64Counter
	failed    metric.Int64Counter
	runs      metric.Int64Counter
	rejected  metric.Int64Counter
	flushTime metric.Float64Histogram
	runTime   metric.Float64Histogram
}

// NewIngestMetrics builds the ingest instruments on meter, or on the global
// meter provider when meter is nil.
func NewIngestMetrics(meter metric.Meter) (*IngestMetrics, error) {
	if meter == nil {
		meter = otel.Meter(meterName)
	}

	var (
		m   IngestMetrics
		err error
	)
	if m.batches, err = meter.Int64Counter(
		"ingest.batches",
		metric.WithDescription("Batches flushed to the sink"),
	); err != nil {
		return nil, err
	}
	if m.recs, err = meter.Int64Counter(
		"ingest.records",
		metric.WithDescription("Records persisted by the sink"),
	); err != nil {
		return nil, err
	}
	if m.failed, err = meter.Int64Counter(
		"ingest.records.failed",
		metric.WithDescription("Records the sink reported as not persisted"),
	); err != nil {
		return nil, err
	}
	if m.runs, err = meter.Int64Counter(
		"ingest.runs",
		metric.WithDescription("Completed ingestion calls by outcome"),
	); err != nil {
		return nil, err
	}
	if m.rejected, err = meter.Int64Counter(
		"ingest.records.rejected",
		metric.WithDescription("Records skipped by validation"),
	); err != nil {
		return nil, err
	}
	if m.flushTime, err = meter.Float64Histogram(
		FLUSH_DURATION_METRIC,
		metric.WithDescription("Sink insert latency per batch"),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}
	if m.runTime, err = meter.Float64Histogram(
		RUN_DURATION_METRIC,
		metric.WithDescription("End to end ingestion latency"),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}
	return &m, nil
}

func (m *IngestMetrics) BatchFlushed(ctx context.Context, ingestID string, b *records.Batch, res *records.BulkResult, elapsed time.Duration) {
	m.batches.Add(ctx, 1)
	if res != nil {
		m.recs.Add(ctx, int64(res.Inserted))
		if n := len(res.Failures); n > 0 {
			m.failed.Add(ctx, int64(n))
		}
	} else {
		m.recs.Add(ctx, int64(b.Len()))
	}
	m.flushTime.Record(ctx, elapsed.Seconds())
}

func (m *IngestMetrics) IngestCompleted(ctx context.Context, sum *records.Summary, err error) {
	outcome := "completed"
	if err != nil {
		outcome = string(records.KindOf(err))
	}
	attrs := metric.WithAttributes(
		attribute.String("outcome", outcome),
		attribute.String("source", sum.Source),
	)
	m.runs.Add(ctx, 1, attrs)
	m.runTime.Record(ctx, sum.Duration.Seconds(), attrs)
	if sum.Rejected > 0 {
		m.rejected.Add(ctx, sum.Rejected)
	}
}

package sinks

import (
	"context"
	"sync/atomic"

	"github.com/hankgalt/records-ingest/internal/domain/records"
)

const NoopSink = "noop-sink"

var _ records.Sink = (*noopSink)(nil)

// No operation sink for dry runs. Counts what it is handed.
type noopSink struct {
	batches atomic.Int64
	recs    atomic.Int64
}

// Name returns the name of the noop sink.
func (s *noopSink) Name() string { return NoopSink }

// InsertBatch reports every record as inserted.
func (s *noopSink) InsertBatch(ctx context.Context, b *records.Batch) (*records.BulkResult, error) {
	s.batches.Add(1)
	s.recs.Add(int64(b.Len()))
	return &records.BulkResult{Inserted: b.Len()}, nil
}

// Counts returns the number of batches & records handed to the sink.
func (s *noopSink) Counts() (int64, int64) {
	return s.batches.Load(), s.recs.Load()
}

// Close closes the noop sink.
func (s *noopSink) Close(ctx context.Context) error {
	return nil
}

// No operation sink config for testing or defaulting.
type NoopSinkConfig struct{}

// Name of the sink.
func (c *NoopSinkConfig) Name() string { return NoopSink }

// BuildSink returns a noop sink.
func (c *NoopSinkConfig) BuildSink(ctx context.Context) (records.Sink, error) {
	return &noopSink{}, nil
}

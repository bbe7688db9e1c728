package ingest_test

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hankgalt/records-ingest/internal/domain/records"
)

const testHeader = "id,firstname,lastname,email,email2,profession"

// buildCSV returns a header plus n valid data lines. Line i (1-based) has id i.
func buildCSV(n int) string {
	var sb strings.Builder
	sb.WriteString(testHeader + "\n")
	for i := 1; i <= n; i++ {
		fmt.Fprintf(&sb, "%d,first%d,last%d,user%d@example.com,,engineer\n", i, i, i, i)
	}
	return sb.String()
}

// memSource is an in-memory file source counting releases.
type memSource struct {
	data     []byte
	size     int64
	openErr  error
	relErr   error
	opened   atomic.Int32
	released atomic.Int32
}

func newMemSource(data string) *memSource {
	return &memSource{data: []byte(data), size: int64(len(data))}
}

func (s *memSource) Name() string { return "mem-source" }
func (s *memSource) Size() int64  { return s.size }

func (s *memSource) Open(ctx context.Context) (io.ReadCloser, error) {
	s.opened.Add(1)
	if s.openErr != nil {
		return nil, s.openErr
	}
	return io.NopCloser(bytes.NewReader(s.data)), nil
}

func (s *memSource) Release(ctx context.Context) error {
	s.released.Add(1)
	return s.relErr
}

// fakeSink records batch sizes and can fail or hook specific calls.
type fakeSink struct {
	mu       sync.Mutex
	batches  []int
	recs     []records.Record
	failOn   int // 1-based call number to fail, 0 never
	failErr  error
	onInsert func(call int)

	inFlight    atomic.Int32
	maxInFlight atomic.Int32
	calls       atomic.Int32
}

func (s *fakeSink) Name() string { return "fake-sink" }

func (s *fakeSink) InsertBatch(ctx context.Context, b *records.Batch) (*records.BulkResult, error) {
	call := int(s.calls.Add(1))

	n := s.inFlight.Add(1)
	defer s.inFlight.Add(-1)
	for {
		m := s.maxInFlight.Load()
		if n <= m || s.maxInFlight.CompareAndSwap(m, n) {
			break
		}
	}

	if s.onInsert != nil {
		s.onInsert(call)
	}
	// give overlapping flushes a chance to show up
	time.Sleep(time.Millisecond)

	if s.failOn == call {
		return nil, s.failErr
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.batches = append(s.batches, b.Len())
	s.recs = append(s.recs, b.Records...)
	return &records.BulkResult{Inserted: b.Len()}, nil
}

func (s *fakeSink) Close(ctx context.Context) error { return nil }

func (s *fakeSink) batchSizes() []int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]int(nil), s.batches...)
}

func (s *fakeSink) persisted() []records.Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]records.Record(nil), s.recs...)
}

// countingObserver counts observer callbacks.
type countingObserver struct {
	mu        sync.Mutex
	flushed   []uint
	completed int
	lastErr   error
	lastSum   *records.Summary
}

func (o *countingObserver) BatchFlushed(ctx context.Context, ingestID string, b *records.Batch, res *records.BulkResult, elapsed time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.flushed = append(o.flushed, b.Seq)
}

func (o *countingObserver) IngestCompleted(ctx context.Context, sum *records.Summary, err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.completed++
	o.lastErr = err
	o.lastSum = sum
}

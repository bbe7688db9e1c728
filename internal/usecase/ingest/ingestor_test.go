package ingest_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/comfforts/logger"

	"github.com/hankgalt/records-ingest/internal/domain/records"
	"github.com/hankgalt/records-ingest/internal/usecase/ingest"
)

func testContext(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	t.Cleanup(cancel)
	return logger.WithLogger(ctx, logger.GetSlogLogger())
}

func newTestIngestor(t *testing.T, cfg records.Config, sink records.Sink, opts ...ingest.Option) *ingest.Ingestor {
	t.Helper()
	ig, err := ingest.NewIngestor(cfg, sink, opts...)
	require.NoError(t, err)
	return ig
}

func TestNewIngestorValidation(t *testing.T) {
	_, err := ingest.NewIngestor(records.DefaultConfig(), nil)
	require.ErrorIs(t, err, records.ErrNilSink)

	cfg := records.DefaultConfig()
	cfg.BatchSize = 0
	_, err = ingest.NewIngestor(cfg, &fakeSink{})
	require.ErrorIs(t, err, records.ErrInvalidBatchSize)

	cfg = records.DefaultConfig()
	cfg.MaxFileSizeBytes = -1
	_, err = ingest.NewIngestor(cfg, &fakeSink{})
	require.ErrorIs(t, err, records.ErrInvalidMaxSize)

	cfg = records.Config{BatchSize: 10, MaxFileSizeBytes: 10}
	ig, err := ingest.NewIngestor(cfg, &fakeSink{})
	require.NoError(t, err)
	require.Equal(t, rune(records.DEFAULT_DELIMITER), ig.Config().Delimiter)
}

func TestIngestFullAndPartialBatches(t *testing.T) {
	ctx := testContext(t)
	sink := &fakeSink{}
	obs := &countingObserver{}
	ig := newTestIngestor(t, records.DefaultConfig(), sink, ingest.WithObserver(obs))

	src := newMemSource(buildCSV(12001))
	sum, err := ig.Ingest(ctx, src)
	require.NoError(t, err)

	require.Equal(t, []int{5000, 5000, 2001}, sink.batchSizes())
	require.Equal(t, int64(12001), sum.RecordsProcessed)
	require.Equal(t, int64(12001), sum.LinesRead)
	require.Equal(t, uint(3), sum.Batches)
	require.Equal(t, records.StateCompleted, sum.State)
	require.NotEmpty(t, sum.IngestID)
	require.Equal(t, int32(1), src.released.Load())
	require.Equal(t, int32(1), sink.maxInFlight.Load())

	// source order is preserved across batches
	persisted := sink.persisted()
	require.Len(t, persisted, 12001)
	for i, rec := range persisted {
		require.Equal(t, int64(i+1), rec.ID)
	}

	require.Equal(t, []uint{1, 2, 3}, obs.flushed)
	require.Equal(t, 1, obs.completed)
	require.NoError(t, obs.lastErr)
	require.Same(t, sum, obs.lastSum)
}

func TestIngestSizeLimitExceeded(t *testing.T) {
	ctx := testContext(t)
	sink := &fakeSink{}
	ig := newTestIngestor(t, records.DefaultConfig(), sink)

	src := newMemSource(buildCSV(3))
	src.size = 150 * 1024 * 1024

	sum, err := ig.Ingest(ctx, src)
	require.Error(t, err)
	require.ErrorIs(t, err, records.ErrSizeLimitExceeded)
	require.Equal(t, records.SizeLimitExceeded, records.KindOf(err))
	require.True(t, records.IsClientFault(err))

	require.NotNil(t, sum)
	require.Equal(t, records.StateFailed, sum.State)
	require.Equal(t, int64(0), sum.RecordsProcessed)
	require.Equal(t, int32(0), sink.calls.Load())
	require.Equal(t, int32(0), src.opened.Load())
	require.Equal(t, int32(1), src.released.Load())
}

func TestIngestSizeAtLimitIsAccepted(t *testing.T) {
	ctx := testContext(t)
	data := buildCSV(2)
	cfg := records.DefaultConfig()
	cfg.MaxFileSizeBytes = int64(len(data))

	sink := &fakeSink{}
	ig := newTestIngestor(t, cfg, sink)
	src := newMemSource(data)

	sum, err := ig.Ingest(ctx, src)
	require.NoError(t, err)
	require.Equal(t, int64(2), sum.RecordsProcessed)
	require.Equal(t, int32(1), src.released.Load())
}

func TestIngestValidationFailure(t *testing.T) {
	ctx := testContext(t)
	sink := &fakeSink{}
	ig := newTestIngestor(t, records.DefaultConfig(), sink)

	lines := strings.Split(strings.TrimSuffix(buildCSV(10), "\n"), "\n")
	// data line 7 follows the header
	lines[7] = "abc,first7,last7,user7@example.com,,engineer"
	src := newMemSource(strings.Join(lines, "\n") + "\n")

	sum, err := ig.Ingest(ctx, src)
	require.Error(t, err)
	require.Equal(t, records.ValidationFailure, records.KindOf(err))
	require.True(t, records.IsClientFault(err))

	var re *records.RejectionError
	require.True(t, errors.As(err, &re))
	require.Equal(t, records.InvalidID, re.Kind)
	require.Equal(t, int64(7), re.Line)
	require.Contains(t, err.Error(), "line 7")

	require.Equal(t, int64(0), sum.RecordsProcessed)
	require.Equal(t, int64(7), sum.LinesRead)
	require.Equal(t, int32(0), sink.calls.Load())
	require.Equal(t, int32(1), src.released.Load())
}

func TestIngestValidationFailureKeepsFlushedBatches(t *testing.T) {
	ctx := testContext(t)
	sink := &fakeSink{}
	cfg := records.DefaultConfig()
	cfg.BatchSize = 4
	ig := newTestIngestor(t, cfg, sink)

	lines := strings.Split(strings.TrimSuffix(buildCSV(10), "\n"), "\n")
	lines[9] = "9,first9,last9,no-email,,"
	src := newMemSource(strings.Join(lines, "\n") + "\n")

	sum, err := ig.Ingest(ctx, src)
	require.Equal(t, records.ValidationFailure, records.KindOf(err))
	require.Equal(t, []int{4, 4}, sink.batchSizes())
	require.Equal(t, int64(8), sum.RecordsProcessed)
	require.Equal(t, int32(1), src.released.Load())
}

func TestIngestOptionalFieldsDefault(t *testing.T) {
	ctx := testContext(t)
	sink := &fakeSink{}
	ig := newTestIngestor(t, records.DefaultConfig(), sink)

	src := newMemSource("id,firstname,lastname,email\n1,Ada,Lovelace,ada@example.com\n")
	sum, err := ig.Ingest(ctx, src)
	require.NoError(t, err)
	require.Equal(t, int64(1), sum.RecordsProcessed)

	persisted := sink.persisted()
	require.Len(t, persisted, 1)
	require.Equal(t, "", persisted[0].Email2)
	require.Equal(t, "", persisted[0].Profession)
}

func TestIngestPersistenceFailure(t *testing.T) {
	ctx := testContext(t)
	sinkErr := errors.New("transient write error")
	sink := &fakeSink{failOn: 1, failErr: sinkErr}
	obs := &countingObserver{}
	cfg := records.DefaultConfig()
	cfg.BatchSize = 2
	ig := newTestIngestor(t, cfg, sink, ingest.WithObserver(obs))

	src := newMemSource(buildCSV(5))
	sum, err := ig.Ingest(ctx, src)
	require.Error(t, err)
	require.ErrorIs(t, err, sinkErr)
	require.Equal(t, records.PersistenceFailure, records.KindOf(err))
	require.False(t, records.IsClientFault(err))

	require.Equal(t, int32(1), sink.calls.Load())
	require.Equal(t, int64(0), sum.RecordsProcessed)
	require.Equal(t, uint(0), sum.Batches)
	require.Equal(t, int32(1), src.released.Load())

	require.Empty(t, obs.flushed)
	require.Equal(t, 1, obs.completed)
	require.Error(t, obs.lastErr)
}

func TestIngestPersistenceFailureAfterFirstBatch(t *testing.T) {
	ctx := testContext(t)
	sink := &fakeSink{failOn: 2, failErr: errors.New("write failed")}
	cfg := records.DefaultConfig()
	cfg.BatchSize = 3
	ig := newTestIngestor(t, cfg, sink)

	src := newMemSource(buildCSV(10))
	sum, err := ig.Ingest(ctx, src)
	require.Equal(t, records.PersistenceFailure, records.KindOf(err))
	require.Equal(t, int32(2), sink.calls.Load())
	require.Equal(t, int64(3), sum.RecordsProcessed)
	require.Equal(t, int32(1), src.released.Load())
}

func TestIngestBulkErrorIsPersistenceFailure(t *testing.T) {
	ctx := testContext(t)
	bulkErr := &records.BulkError{
		Result: &records.BulkResult{Inserted: 1, Failures: []records.RecordFailure{{Index: 1, ID: 2, Reason: "duplicate"}}},
	}
	sink := &fakeSink{failOn: 1, failErr: bulkErr}
	ig := newTestIngestor(t, records.DefaultConfig(), sink)

	sum, err := ig.Ingest(ctx, newMemSource(buildCSV(2)))
	require.Equal(t, records.PersistenceFailure, records.KindOf(err))

	var be *records.BulkError
	require.True(t, errors.As(err, &be))
	require.Len(t, be.Result.Failures, 1)
	require.Equal(t, int64(0), sum.RecordsProcessed)
}

func TestIngestSourceReadFailure(t *testing.T) {
	t.Run("malformed quoting", func(t *testing.T) {
		ctx := testContext(t)
		sink := &fakeSink{}
		ig := newTestIngestor(t, records.DefaultConfig(), sink)

		src := newMemSource(testHeader + "\n1,a,b,a@b,,\n2,\"unterminated,b,c@d,,\n")
		sum, err := ig.Ingest(ctx, src)
		require.Equal(t, records.SourceReadFailure, records.KindOf(err))
		require.False(t, records.IsClientFault(err))
		require.Equal(t, int32(0), sink.calls.Load())
		require.Equal(t, int64(0), sum.RecordsProcessed)
		require.Equal(t, int32(1), src.released.Load())
	})

	t.Run("invalid utf-8", func(t *testing.T) {
		ctx := testContext(t)
		sink := &fakeSink{}
		ig := newTestIngestor(t, records.DefaultConfig(), sink)

		src := newMemSource(testHeader + "\n1,a\xff,b,a@b,,\n")
		_, err := ig.Ingest(ctx, src)
		require.Equal(t, records.SourceReadFailure, records.KindOf(err))
		require.Equal(t, int32(1), src.released.Load())
	})

	t.Run("open error", func(t *testing.T) {
		ctx := testContext(t)
		sink := &fakeSink{}
		ig := newTestIngestor(t, records.DefaultConfig(), sink)

		openErr := errors.New("disk gone")
		src := newMemSource(buildCSV(1))
		src.openErr = openErr
		_, err := ig.Ingest(ctx, src)
		require.ErrorIs(t, err, openErr)
		require.Equal(t, records.SourceReadFailure, records.KindOf(err))
		require.Equal(t, int32(1), src.released.Load())
	})
}

func TestIngestCancellation(t *testing.T) {
	t.Run("canceled before start", func(t *testing.T) {
		ctx, cancel := context.WithCancel(testContext(t))
		cancel()

		sink := &fakeSink{}
		ig := newTestIngestor(t, records.DefaultConfig(), sink)
		src := newMemSource(buildCSV(3))

		sum, err := ig.Ingest(ctx, src)
		require.Equal(t, records.Canceled, records.KindOf(err))
		require.ErrorIs(t, err, context.Canceled)
		require.Equal(t, int32(0), sink.calls.Load())
		require.Equal(t, records.StateFailed, sum.State)
		require.Equal(t, int32(1), src.released.Load())
	})

	t.Run("canceled during flush", func(t *testing.T) {
		ctx, cancel := context.WithCancel(testContext(t))
		defer cancel()

		sink := &fakeSink{
			onInsert: func(call int) {
				if call == 1 {
					cancel()
				}
			},
		}
		cfg := records.DefaultConfig()
		cfg.BatchSize = 2
		ig := newTestIngestor(t, cfg, sink)
		src := newMemSource(buildCSV(10))

		sum, err := ig.Ingest(ctx, src)
		require.Equal(t, records.Canceled, records.KindOf(err))
		// the in-flight flush completed, no further sink calls
		require.Equal(t, int32(1), sink.calls.Load())
		require.Equal(t, int64(2), sum.RecordsProcessed)
		require.Equal(t, int32(1), src.released.Load())
	})
}

func TestIngestContinueOnReject(t *testing.T) {
	ctx := testContext(t)
	sink := &fakeSink{}
	cfg := records.DefaultConfig()
	cfg.BatchSize = 4
	cfg.ContinueOnReject = true
	ig := newTestIngestor(t, cfg, sink)

	lines := strings.Split(strings.TrimSuffix(buildCSV(10), "\n"), "\n")
	lines[2] = "x,first2,last2,user2@example.com,,"
	lines[5] = "5,,last5,user5@example.com,,"
	lines[8] = "8,first8,last8,user8,,"
	src := newMemSource(strings.Join(lines, "\n") + "\n")

	sum, err := ig.Ingest(ctx, src)
	require.NoError(t, err)
	require.Equal(t, int64(7), sum.RecordsProcessed)
	require.Equal(t, int64(10), sum.LinesRead)
	require.Equal(t, int64(3), sum.Rejected)
	require.Len(t, sum.Rejections, 3)
	require.Contains(t, sum.Rejections[0], "line 2")
	require.Equal(t, []int{4, 3}, sink.batchSizes())
	require.Equal(t, int32(1), src.released.Load())
}

func TestIngestBatchesNeverExceedBatchSize(t *testing.T) {
	ctx := testContext(t)
	for _, tc := range []struct {
		batch, lines int
	}{
		{batch: 7, lines: 100},
		{batch: 10, lines: 100},
		{batch: 1, lines: 5},
		{batch: 50, lines: 3},
	} {
		sink := &fakeSink{}
		cfg := records.DefaultConfig()
		cfg.BatchSize = tc.batch
		ig := newTestIngestor(t, cfg, sink)

		sum, err := ig.Ingest(ctx, newMemSource(buildCSV(tc.lines)))
		require.NoError(t, err)
		require.Equal(t, int64(tc.lines), sum.RecordsProcessed)

		total := 0
		sizes := sink.batchSizes()
		for i, n := range sizes {
			require.LessOrEqual(t, n, tc.batch)
			if i < len(sizes)-1 {
				require.Equal(t, tc.batch, n)
			}
			total += n
		}
		require.Equal(t, tc.lines, total)
		require.Equal(t, int32(1), sink.maxInFlight.Load())
	}
}

func TestIngestEmptyInputs(t *testing.T) {
	ctx := testContext(t)
	for name, data := range map[string]string{
		"empty file":  "",
		"header only": testHeader + "\n",
		"blank lines": testHeader + "\n\n\n",
	} {
		t.Run(name, func(t *testing.T) {
			sink := &fakeSink{}
			ig := newTestIngestor(t, records.DefaultConfig(), sink)
			src := newMemSource(data)

			sum, err := ig.Ingest(ctx, src)
			require.NoError(t, err)
			require.Equal(t, int64(0), sum.RecordsProcessed)
			require.Equal(t, int32(0), sink.calls.Load())
			require.Equal(t, int32(1), src.released.Load())
		})
	}
}

func TestIngestReleaseErrorDoesNotFailIngestion(t *testing.T) {
	ctx := testContext(t)
	sink := &fakeSink{}
	ig := newTestIngestor(t, records.DefaultConfig(), sink)

	src := newMemSource(buildCSV(2))
	src.relErr = errors.New("remove failed")
	sum, err := ig.Ingest(ctx, src)
	require.NoError(t, err)
	require.Equal(t, int64(2), sum.RecordsProcessed)
	require.Equal(t, int32(1), src.released.Load())
}

func TestIngestNilSource(t *testing.T) {
	ig := newTestIngestor(t, records.DefaultConfig(), &fakeSink{})
	sum, err := ig.Ingest(testContext(t), nil)
	require.ErrorIs(t, err, records.ErrNilSource)
	require.NotNil(t, sum)
	require.Equal(t, records.StateFailed, sum.State)
}

func TestIngestConcurrentPipelinesShareSink(t *testing.T) {
	ctx := testContext(t)
	sink := &fakeSink{}
	cfg := records.DefaultConfig()
	cfg.BatchSize = 10
	ig := newTestIngestor(t, cfg, sink)

	const pipelines = 4
	srcs := make([]*memSource, pipelines)
	var wg sync.WaitGroup
	errs := make(chan error, pipelines)
	for i := range pipelines {
		srcs[i] = newMemSource(buildCSV(95))
		wg.Add(1)
		go func(src *memSource) {
			defer wg.Done()
			sum, err := ig.Ingest(ctx, src)
			if err == nil && sum.RecordsProcessed != 95 {
				err = errors.New("unexpected record count")
			}
			errs <- err
		}(srcs[i])
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		require.NoError(t, err)
	}
	require.Len(t, sink.persisted(), pipelines*95)
	for _, src := range srcs {
		require.Equal(t, int32(1), src.released.Load())
	}
}

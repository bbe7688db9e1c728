package ingest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/comfforts/logger"

	"github.com/hankgalt/records-ingest/internal/domain/records"
	"github.com/hankgalt/records-ingest/internal/usecase/ingest/sources"
)

const tracerName = "github.com/hankgalt/records-ingest/internal/usecase/ingest"

// Observer is notified of ingestion progress. Calls happen on the ingesting goroutine.
type Observer interface {
	// BatchFlushed is called after each successful flush.
	BatchFlushed(ctx context.Context, ingestID string, b *records.Batch, res *records.BulkResult, elapsed time.Duration)
	// IngestCompleted is called once per Ingest call, after the source is released.
	IngestCompleted(ctx context.Context, sum *records.Summary, err error)
}

// ReaderFactory builds the record reader over an opened source.
type ReaderFactory func(r io.Reader, delimiter rune) records.RecordReader

func csvReaderFactory(r io.Reader, delimiter rune) records.RecordReader {
	return sources.NewCSVRecordReader(r, delimiter)
}

type Option func(*Ingestor)

// WithObserver registers an observer. Nil observers are ignored.
func WithObserver(o Observer) Option {
	return func(ig *Ingestor) {
		if o != nil {
			ig.observers = append(ig.observers, o)
		}
	}
}

// WithReaderFactory replaces the default delimited text reader.
func WithReaderFactory(f ReaderFactory) Option {
	return func(ig *Ingestor) {
		if f != nil {
			ig.newReader = f
		}
	}
}

// Ingestor streams a file source through validation and batching into a sink.
// At most one batch is in flight; the source is not advanced while a flush is pending.
// An Ingestor is safe for concurrent Ingest calls on independent sources.
type Ingestor struct {
	cfg       records.Config
	sink      records.Sink
	newReader ReaderFactory
	observers []Observer
}

func NewIngestor(cfg records.Config, sink records.Sink, opts ...Option) (*Ingestor, error) {
	if sink == nil {
		return nil, records.ErrNilSink
	}
	cfg, err := cfg.Validate()
	if err != nil {
		return nil, err
	}

	ig := &Ingestor{
		cfg:       cfg,
		sink:      sink,
		newReader: csvReaderFactory,
	}
	for _, opt := range opts {
		opt(ig)
	}
	return ig, nil
}

// Config returns the validated ingestion configuration.
func (ig *Ingestor) Config() records.Config { return ig.cfg }

// Ingest consumes src and persists its valid records in batches.
// The source is released exactly once on every path. The returned summary is
// never nil; on failure it reports the progress made before the failure and
// the error is an *records.IngestError.
func (ig *Ingestor) Ingest(ctx context.Context, src records.FileSource) (*records.Summary, error) {
	l, err := logger.LoggerFromContext(ctx)
	if err != nil {
		l = logger.GetSlogLogger()
	}

	run := &ingestRun{
		Ingestor: ig,
		l:        l,
		sum: &records.Summary{
			IngestID: uuid.NewString(),
			State:    records.StateIdle,
		},
		start: time.Now(),
	}

	if src == nil {
		err := records.NewIngestError(records.UnknownFailure, records.ErrNilSource)
		run.sum.State = records.StateFailed
		ig.notifyCompleted(ctx, run.sum, err)
		return run.sum, err
	}
	run.sum.Source = src.Name()

	ctx, span := otel.Tracer(tracerName).Start(ctx, "ingest", trace.WithAttributes(
		attribute.String("ingest.id", run.sum.IngestID),
		attribute.String("ingest.source", src.Name()),
		attribute.Int64("ingest.size", src.Size()),
	))
	defer span.End()

	err = run.exec(ctx, src)

	// release survives cancellation of the ingestion context
	if rErr := src.Release(context.WithoutCancel(ctx)); rErr != nil {
		l.Error("error releasing source", "ingest-id", run.sum.IngestID, "source", src.Name(), "error", rErr.Error())
	}

	run.sum.Duration = time.Since(run.start)
	if err != nil {
		run.sum.State = records.StateFailed
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		l.Error(
			"ingestion failed",
			"ingest-id", run.sum.IngestID,
			"kind", records.KindOf(err),
			"records-processed", run.sum.RecordsProcessed,
			"lines-read", run.sum.LinesRead,
			"batches", run.sum.Batches,
			"error", err.Error(),
		)
	} else {
		run.sum.State = records.StateCompleted
		l.Info(
			"ingestion completed",
			"ingest-id", run.sum.IngestID,
			"records-processed", run.sum.RecordsProcessed,
			"lines-read", run.sum.LinesRead,
			"rejected", run.sum.Rejected,
			"batches", run.sum.Batches,
			"duration", run.sum.Duration.String(),
		)
	}
	span.SetAttributes(
		attribute.Int64("ingest.records_processed", run.sum.RecordsProcessed),
		attribute.Int64("ingest.lines_read", run.sum.LinesRead),
	)

	ig.notifyCompleted(ctx, run.sum, err)
	return run.sum, err
}

// ingestRun holds the mutable state of a single Ingest call.
type ingestRun struct {
	*Ingestor
	l     logger.Logger
	sum   *records.Summary
	start time.Time
}

func (r *ingestRun) exec(ctx context.Context, src records.FileSource) error {
	if src.Size() > r.cfg.MaxFileSizeBytes {
		return records.NewIngestError(
			records.SizeLimitExceeded,
			fmt.Errorf("%w: %d bytes, limit %d", records.ErrSizeLimitExceeded, src.Size(), r.cfg.MaxFileSizeBytes),
		)
	}
	r.sum.State = records.StateSizeChecked

	r.l.Info(
		"ingestion started",
		"ingest-id", r.sum.IngestID,
		"source", src.Name(),
		"size", src.Size(),
		"batch-size", r.cfg.BatchSize,
	)

	if err := ctx.Err(); err != nil {
		return records.NewIngestError(records.Canceled, err)
	}

	rc, err := src.Open(ctx)
	if err != nil {
		return r.readFailure(ctx, err)
	}
	defer func() {
		if err := rc.Close(); err != nil {
			r.l.Error("error closing source reader", "ingest-id", r.sum.IngestID, "error", err.Error())
		}
	}()

	rdr := r.newReader(rc, r.cfg.Delimiter)
	acc := NewAccumulator(r.sum.IngestID, r.cfg.BatchSize)
	r.sum.State = records.StateStreaming

	for {
		if err := ctx.Err(); err != nil {
			return records.NewIngestError(records.Canceled, err)
		}

		raw, err := rdr.Next(ctx)
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return r.readFailure(ctx, err)
		}
		r.sum.LinesRead++

		rec, err := Validate(raw)
		if err != nil {
			var re *records.RejectionError
			if errors.As(err, &re) {
				re.Line = r.sum.LinesRead
			}
			if !r.cfg.ContinueOnReject {
				return records.NewIngestError(records.ValidationFailure, err)
			}
			r.reject(err)
			continue
		}

		ready, err := acc.Append(rec)
		if err != nil {
			// drain is always called on ready, a full accumulator is a bug
			return records.NewIngestError(records.UnknownFailure, err)
		}
		if ready {
			if err := r.flush(ctx, acc.Drain()); err != nil {
				return err
			}
		}
	}

	r.sum.State = records.StateDraining
	if !acc.IsEmpty() {
		if err := r.flush(ctx, acc.Drain()); err != nil {
			return err
		}
	}
	return nil
}

// flush hands b to the sink and waits for the result. Parsing is suspended meanwhile.
func (r *ingestRun) flush(ctx context.Context, b *records.Batch) error {
	if err := ctx.Err(); err != nil {
		return records.NewIngestError(records.Canceled, err)
	}

	r.sum.State = records.StateFlushing
	start := time.Now()
	res, err := r.sink.InsertBatch(ctx, b)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return records.NewIngestError(records.Canceled, errors.Join(ctxErr, err))
		}
		return records.NewIngestError(
			records.PersistenceFailure,
			fmt.Errorf("batch %s (seq %d, %d records): %w", b.ID, b.Seq, b.Len(), err),
		)
	}
	elapsed := time.Since(start)

	r.sum.RecordsProcessed += int64(b.Len())
	r.sum.Batches++
	r.sum.State = records.StateStreaming

	r.l.Debug(
		"batch flushed",
		"ingest-id", r.sum.IngestID,
		"batch-id", b.ID,
		"seq", b.Seq,
		"size", b.Len(),
		"elapsed", elapsed.String(),
	)

	for _, o := range r.observers {
		o.BatchFlushed(ctx, r.sum.IngestID, b, res, elapsed)
	}
	return nil
}

func (r *ingestRun) readFailure(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil && errors.Is(err, ctxErr) {
		return records.NewIngestError(records.Canceled, err)
	}
	return records.NewIngestError(records.SourceReadFailure, err)
}

func (r *ingestRun) reject(err error) {
	r.sum.Rejected++
	if len(r.sum.Rejections) < records.MAX_KEPT_REJECTIONS {
		r.sum.Rejections = append(r.sum.Rejections, err.Error())
	}
	r.l.Debug("record rejected", "ingest-id", r.sum.IngestID, "error", err.Error())
}

func (ig *Ingestor) notifyCompleted(ctx context.Context, sum *records.Summary, err error) {
	for _, o := range ig.observers {
		o.IngestCompleted(ctx, sum, err)
	}
}

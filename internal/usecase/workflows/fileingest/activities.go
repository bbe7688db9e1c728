package fileingest

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.temporal.io/sdk/activity"
	"go.temporal.io/sdk/temporal"

	"github.com/comfforts/logger"

	"github.com/hankgalt/records-ingest/internal/domain/records"
	"github.com/hankgalt/records-ingest/internal/usecase/ingest"
)

type observersKey struct{}

// WithObservers attaches ingestion observers to ctx. Set on the worker's
// background activity context to observe every ingestion the worker runs.
func WithObservers(ctx context.Context, obs ...ingest.Observer) context.Context {
	return context.WithValue(ctx, observersKey{}, obs)
}

func observersFromContext(ctx context.Context) []ingest.Observer {
	obs, _ := ctx.Value(observersKey{}).([]ingest.Observer)
	return obs
}

// IngestFileActivity builds the source & sink from the request and runs one ingestion.
// The source is released before the activity returns, so failures are not retryable.
func IngestFileActivity[S records.SourceConfig, D records.SinkConfig](
	ctx context.Context,
	in *IngestFileRequest[S, D],
) (*records.Summary, error) {
	l := activity.GetLogger(ctx)
	l.Debug("IngestFileActivity started", "job-id", in.JobID, "source", in.Source.Name(), "sink", in.Sink.Name())

	// activity context carries the worker logger, fall back to default
	if _, err := logger.LoggerFromContext(ctx); err != nil {
		ctx = logger.WithLogger(ctx, logger.GetSlogLogger())
	}

	src, err := in.Source.BuildSource(ctx)
	if err != nil {
		l.Error("error building source", "error", err.Error())
		return nil, temporal.NewNonRetryableApplicationError(err.Error(), ERROR_INVALID_CONFIG_TYPE, err)
	}

	sk, err := in.Sink.BuildSink(ctx)
	if err != nil {
		l.Error("error building sink", "error", err.Error())
		if rErr := src.Release(ctx); rErr != nil {
			l.Error("error releasing source", "error", rErr.Error())
		}
		return nil, temporal.NewNonRetryableApplicationError(err.Error(), ERROR_INVALID_CONFIG_TYPE, err)
	}
	defer func() {
		if err := sk.Close(context.WithoutCancel(ctx)); err != nil {
			l.Error("error closing sink", "error", err.Error())
		}
	}()

	opts := []ingest.Option{ingest.WithObserver(&heartbeatObserver{})}
	for _, o := range observersFromContext(ctx) {
		opts = append(opts, ingest.WithObserver(o))
	}

	ig, err := ingest.NewIngestor(in.Config, sk, opts...)
	if err != nil {
		l.Error("error building ingestor", "error", err.Error())
		if rErr := src.Release(ctx); rErr != nil {
			l.Error("error releasing source", "error", rErr.Error())
		}
		return nil, temporal.NewNonRetryableApplicationError(err.Error(), ERROR_INVALID_CONFIG_TYPE, err)
	}

	sum, err := ig.Ingest(ctx, src)
	if err != nil {
		l.Error(
			"ingestion failed",
			"job-id", in.JobID,
			"kind", string(records.KindOf(err)),
			"records-processed", sum.RecordsProcessed,
			"error", err.Error(),
		)
		return nil, toApplicationError(err, sum)
	}

	l.Info(
		"IngestFileActivity completed",
		"job-id", in.JobID,
		"ingest-id", sum.IngestID,
		"records-processed", sum.RecordsProcessed,
		"batches", sum.Batches,
	)
	return sum, nil
}

// toApplicationError maps an ingestion failure to a non retryable application error
// typed by failure kind, with the partial summary as details.
func toApplicationError(err error, sum *records.Summary) error {
	if errors.Is(err, context.Canceled) {
		return temporal.NewCanceledError(sum)
	}
	return temporal.NewNonRetryableApplicationError(err.Error(), string(records.KindOf(err)), err, sum)
}

// heartbeatObserver records an activity heartbeat per flushed batch.
type heartbeatObserver struct {
	mu   sync.Mutex
	prog Progress
}

func (h *heartbeatObserver) BatchFlushed(ctx context.Context, ingestID string, b *records.Batch, res *records.BulkResult, elapsed time.Duration) {
	h.mu.Lock()
	h.prog.IngestID = ingestID
	h.prog.Batches++
	h.prog.RecordsProcessed += int64(b.Len())
	p := h.prog
	h.mu.Unlock()

	activity.RecordHeartbeat(ctx, p)
}

func (h *heartbeatObserver) IngestCompleted(ctx context.Context, sum *records.Summary, err error) {}

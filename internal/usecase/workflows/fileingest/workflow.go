package fileingest

import (
	"errors"

	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"

	"github.com/hankgalt/records-ingest/internal/domain/records"
)

var ErrMissingJobID = errors.New(ERR_MISSING_JOB_ID)

// IngestFileWorkflow runs a single ingestion of req.Source into req.Sink.
// Ingestion is fail-fast & the source is consumed by the first attempt, so nothing is retried.
func IngestFileWorkflow[S records.SourceConfig, D records.SinkConfig](
	ctx workflow.Context,
	req IngestFileRequest[S, D],
) (*records.Summary, error) {
	l := workflow.GetLogger(ctx)
	l.Debug("IngestFileWorkflow started", "job-id", req.JobID)

	if req.JobID == "" {
		return nil, temporal.NewNonRetryableApplicationError(ERR_MISSING_JOB_ID, ERROR_INVALID_CONFIG_TYPE, ErrMissingJobID)
	}

	cfg, err := req.Config.Validate()
	if err != nil {
		l.Error("IngestFileWorkflow - invalid ingest config", "error", err.Error())
		return nil, temporal.NewNonRetryableApplicationError(err.Error(), ERROR_INVALID_CONFIG_TYPE, err)
	}
	req.Config = cfg

	sum, err := ExecuteIngestFileActivity(ctx, &req)
	if err != nil {
		var appErr *temporal.ApplicationError
		if errors.As(err, &appErr) {
			l.Error(
				"IngestFileWorkflow - ingestion failed",
				"job-id", req.JobID,
				"type", appErr.Type(),
				"error", err.Error(),
			)
		} else {
			l.Error("IngestFileWorkflow - activity error", "job-id", req.JobID, "error", err.Error())
		}
		return nil, err
	}

	l.Info(
		"IngestFileWorkflow completed",
		"job-id", req.JobID,
		"records-processed", sum.RecordsProcessed,
		"batches", sum.Batches,
	)
	return sum, nil
}

// FailureSummary extracts the partial summary carried by a failed ingestion error.
func FailureSummary(err error) (*records.Summary, bool) {
	var appErr *temporal.ApplicationError
	if !errors.As(err, &appErr) || !appErr.HasDetails() {
		return nil, false
	}
	var sum records.Summary
	if dErr := appErr.Details(&sum); dErr != nil {
		return nil, false
	}
	return &sum, true
}

// FailureKind returns the ingestion failure kind carried by a workflow or activity error.
func FailureKind(err error) records.FailureKind {
	var appErr *temporal.ApplicationError
	if errors.As(err, &appErr) {
		switch k := records.FailureKind(appErr.Type()); k {
		case records.SizeLimitExceeded, records.ValidationFailure, records.PersistenceFailure,
			records.SourceReadFailure, records.Canceled, records.UnknownFailure:
			return k
		}
	}
	var canErr *temporal.CanceledError
	if errors.As(err, &canErr) {
		return records.Canceled
	}
	return records.KindOf(err)
}

package fileingest

import (
	"time"

	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"

	"github.com/hankgalt/records-ingest/internal/domain/records"
)

// ActivityAlias is the registered name of the ingest activity for a source & sink pair.
func ActivityAlias(source, sink string) string {
	return "ingest-" + source + "-" + sink + "-activity-alias"
}

func DefaultActivityOptions() workflow.ActivityOptions {
	return workflow.ActivityOptions{
		StartToCloseTimeout: time.Hour,
		HeartbeatTimeout:    time.Minute * 2,
		RetryPolicy:         DefaultRetryPolicy(),
	}
}

// DefaultRetryPolicy allows a single attempt. A released source cannot be re-read.
func DefaultRetryPolicy() *temporal.RetryPolicy {
	return &temporal.RetryPolicy{
		InitialInterval:    time.Second * 5,
		BackoffCoefficient: 2.0,
		MaximumInterval:    time.Minute,
		MaximumAttempts:    1,
		NonRetryableErrorTypes: []string{
			ERROR_INVALID_CONFIG_TYPE,
			string(records.SizeLimitExceeded),
			string(records.ValidationFailure),
			string(records.PersistenceFailure),
			string(records.SourceReadFailure),
		},
	}
}

func ExecuteIngestFileActivity[S records.SourceConfig, D records.SinkConfig](
	ctx workflow.Context,
	req *IngestFileRequest[S, D],
) (*records.Summary, error) {
	ctx = workflow.WithActivityOptions(ctx, DefaultActivityOptions())

	l := workflow.GetLogger(ctx)
	alias := ActivityAlias(req.Source.Name(), req.Sink.Name())
	l.Debug("ExecuteIngestFileActivity - started", "job-id", req.JobID, "activity", alias)

	var resp records.Summary
	if err := workflow.ExecuteActivity(ctx, alias, req).Get(ctx, &resp); err != nil {
		l.Error("ExecuteIngestFileActivity - failed to execute ingest activity", "activity", alias, "error", err)
		return nil, err
	}
	return &resp, nil
}

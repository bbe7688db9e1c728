package temporal

import (
	"context"
	"errors"
	"fmt"

	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/converter"

	"github.com/comfforts/logger"

	"github.com/hankgalt/records-ingest/internal/domain/infra"
)

// TemporalClient starts & follows ingestion workflow runs.
type TemporalClient struct {
	client       client.Client
	oTelShutdown infra.ShutdownFunc
}

// NewTemporalClient dials the server described by cfg. OTel is set up first when cfg
// names a client & metrics address, and shut down again if dialing fails.
func NewTemporalClient(ctx context.Context, cfg TemporalConfig) (*TemporalClient, error) {
	l, err := logger.LoggerFromContext(ctx)
	if err != nil {
		l = logger.GetSlogLogger()
	}

	connBuilder := NewTemporalClientConnectionBuilder(
		cfg.Namespace(),
		cfg.Host(),
	).WithMetrics(
		cfg.ClientName(),
		cfg.MetricsAddr(),
		cfg.OtelEndpoint(),
	)

	clOpts, shutdown, err := connBuilder.Build(ctx)
	if err != nil {
		l.Error("error building temporal client options", "error", err.Error())
		return nil, shutdownOnError(ctx, l, shutdown, fmt.Errorf("error building temporal client options: %w", err))
	}

	tClient, err := client.Dial(clOpts)
	if err != nil {
		l.Error("error connecting temporal server", "host", cfg.Host(), "error", err.Error())
		return nil, shutdownOnError(ctx, l, shutdown, fmt.Errorf("%w: %w", ErrTemporalClient, err))
	}

	return NewTemporalClientWith(tClient, shutdown), nil
}

// NewTemporalClientWith wraps a dialed SDK client. shutdown may be nil.
func NewTemporalClientWith(c client.Client, shutdown infra.ShutdownFunc) *TemporalClient {
	return &TemporalClient{
		client:       c,
		oTelShutdown: shutdown,
	}
}

func shutdownOnError(ctx context.Context, l logger.Logger, shutdown infra.ShutdownFunc, err error) error {
	if shutdown == nil {
		return err
	}
	if sErr := shutdown(ctx); sErr != nil {
		l.Error("error shutting down OTel", "error", sErr.Error())
		return errors.Join(err, sErr)
	}
	return err
}

// Client returns the underlying SDK client, for building workers.
func (tc *TemporalClient) Client() client.Client {
	return tc.client
}

// StartWorkflowWithCtx starts a workflow run and returns without waiting for it.
func (tc *TemporalClient) StartWorkflowWithCtx(
	ctx context.Context,
	options client.StartWorkflowOptions,
	workflow any,
	args ...any,
) (client.WorkflowRun, error) {
	l, err := logger.LoggerFromContext(ctx)
	if err != nil {
		l = logger.GetSlogLogger()
	}

	we, err := tc.client.ExecuteWorkflow(ctx, options, workflow, args...)
	if err != nil {
		l.Error("failed to start workflow", "workflow-id", options.ID, "error", err.Error())
		return nil, fmt.Errorf("failed to start workflow: %w", err)
	}

	l.Info("started workflow", "workflow-id", we.GetID(), "run-id", we.GetRunID())
	return we, nil
}

// LastHeartbeat decodes the latest heartbeat of the run's pending activity into valuePtr.
// It reports false while no pending activity has heartbeated.
func (tc *TemporalClient) LastHeartbeat(ctx context.Context, workflowID, runID string, valuePtr any) (bool, error) {
	resp, err := tc.client.DescribeWorkflowExecution(ctx, workflowID, runID)
	if err != nil {
		return false, fmt.Errorf("error describing workflow %s: %w", workflowID, err)
	}

	for _, pa := range resp.GetPendingActivities() {
		details := pa.GetHeartbeatDetails()
		if len(details.GetPayloads()) == 0 {
			continue
		}
		if err := converter.GetDefaultDataConverter().FromPayloads(details, valuePtr); err != nil {
			return false, fmt.Errorf("error decoding heartbeat of %s: %w", pa.GetActivityId(), err)
		}
		return true, nil
	}
	return false, nil
}

// CancelWorkflow requests cancellation. A running ingestion stops before its next batch.
func (tc *TemporalClient) CancelWorkflow(ctx context.Context, workflowID string) error {
	l, err := logger.LoggerFromContext(ctx)
	if err != nil {
		l = logger.GetSlogLogger()
	}

	if err := tc.client.CancelWorkflow(ctx, workflowID, ""); err != nil {
		l.Error("failed to cancel workflow", "workflow-id", workflowID, "error", err.Error())
		return fmt.Errorf("failed to cancel workflow: %w", err)
	}
	return nil
}

// Close closes the temporal service client, then shuts OTel down.
func (tc *TemporalClient) Close(ctx context.Context) error {
	l, err := logger.LoggerFromContext(ctx)
	if err != nil {
		l = logger.GetSlogLogger()
	}

	tc.client.Close()

	if tc.oTelShutdown != nil {
		if err := tc.oTelShutdown(ctx); err != nil {
			l.Error("error shutting down OTel", "error", err.Error())
			return fmt.Errorf("error shutting down OTel: %w", err)
		}
	}
	return nil
}

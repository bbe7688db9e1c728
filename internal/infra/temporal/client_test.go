package temporal_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	workflowpb "go.temporal.io/api/workflow/v1"
	"go.temporal.io/api/workflowservice/v1"
	"go.temporal.io/sdk/converter"
	"go.temporal.io/sdk/mocks"

	"github.com/comfforts/logger"

	"github.com/hankgalt/records-ingest/internal/infra/temporal"
	envutils "github.com/hankgalt/records-ingest/pkg/utils/environment"
)

func TestConnectionBuilder(t *testing.T) {
	ctx := context.Background()

	_, _, err := temporal.NewTemporalClientConnectionBuilder("", "localhost:7233").Build(ctx)
	require.ErrorIs(t, err, temporal.ErrRequiredParams)

	_, _, err = temporal.NewTemporalClientConnectionBuilder("default", "").Build(ctx)
	require.ErrorIs(t, err, temporal.ErrRequiredParams)

	opts, shutdown, err := temporal.NewTemporalClientConnectionBuilder("default", "localhost:7233").
		WithMetrics("test-client", "", "").
		Build(ctx)
	require.NoError(t, err)
	require.Nil(t, shutdown)
	require.Equal(t, "default", opts.Namespace)
	require.Equal(t, "localhost:7233", opts.HostPort)
	require.Equal(t, "test-client", opts.Identity)
	require.Empty(t, opts.Interceptors)
}

func TestNewTemporalClient(t *testing.T) {
	tCfg := envutils.BuildTemporalConfig("TestNewTemporalClient")
	if tCfg.Host() == "" {
		t.Skip("TEMPORAL_HOST not set, skipping temporal client test")
	}

	l := logger.GetSlogLogger()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()
	ctx = logger.WithLogger(ctx, l)

	tc, err := temporal.NewTemporalClient(ctx, tCfg)
	require.NoError(t, err, "Failed to create Temporal client")
	require.NotNil(t, tc.Client())
	require.NoError(t, tc.Close(ctx))
}

type ingestProgress struct {
	IngestID         string
	Batches          uint
	RecordsProcessed int64
}

func TestLastHeartbeat(t *testing.T) {
	ctx := logger.WithLogger(context.Background(), logger.GetSlogLogger())

	want := ingestProgress{IngestID: "ing-1", Batches: 2, RecordsProcessed: 10000}
	payloads, err := converter.GetDefaultDataConverter().ToPayloads(want)
	require.NoError(t, err)

	mc := &mocks.Client{}
	mc.On("DescribeWorkflowExecution", mock.Anything, "wf-1", "run-1").Return(
		&workflowservice.DescribeWorkflowExecutionResponse{
			PendingActivities: []*workflowpb.PendingActivityInfo{
				{ActivityId: "5"},
				{ActivityId: "6", HeartbeatDetails: payloads},
			},
		}, nil,
	).Once()
	mc.On("DescribeWorkflowExecution", mock.Anything, "wf-1", "run-2").Return(
		&workflowservice.DescribeWorkflowExecutionResponse{}, nil,
	).Once()
	mc.On("DescribeWorkflowExecution", mock.Anything, "wf-2", "").Return(
		nil, errors.New("workflow not found"),
	).Once()

	tc := temporal.NewTemporalClientWith(mc, nil)

	var got ingestProgress
	ok, err := tc.LastHeartbeat(ctx, "wf-1", "run-1", &got)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, want, got)

	ok, err = tc.LastHeartbeat(ctx, "wf-1", "run-2", &got)
	require.NoError(t, err)
	require.False(t, ok)

	_, err = tc.LastHeartbeat(ctx, "wf-2", "", &got)
	require.ErrorContains(t, err, "workflow not found")

	mc.AssertExpectations(t)
}

func TestCloseShutsDownOTel(t *testing.T) {
	ctx := logger.WithLogger(context.Background(), logger.GetSlogLogger())

	mc := &mocks.Client{}
	mc.On("Close").Return().Twice()

	calls := 0
	tc := temporal.NewTemporalClientWith(mc, func(context.Context) error {
		calls++
		return nil
	})
	require.NoError(t, tc.Close(ctx))
	require.Equal(t, 1, calls)

	tc = temporal.NewTemporalClientWith(mc, func(context.Context) error {
		return errors.New("exporter unavailable")
	})
	require.ErrorContains(t, tc.Close(ctx), "exporter unavailable")

	mc.AssertExpectations(t)
}

func TestCancelWorkflow(t *testing.T) {
	ctx := logger.WithLogger(context.Background(), logger.GetSlogLogger())

	mc := &mocks.Client{}
	mc.On("CancelWorkflow", mock.Anything, "ingest-1", "").Return(nil).Once()
	mc.On("CancelWorkflow", mock.Anything, "ingest-2", "").Return(errors.New("workflow already completed")).Once()

	tc := temporal.NewTemporalClientWith(mc, nil)
	require.NoError(t, tc.CancelWorkflow(ctx, "ingest-1"))
	require.ErrorContains(t, tc.CancelWorkflow(ctx, "ingest-2"), "workflow already completed")

	mc.AssertExpectations(t)
}

package records_test

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/hankgalt/records-ingest/internal/domain/records"
)

func TestConfigValidate(t *testing.T) {
	cfg, err := records.DefaultConfig().Validate()
	require.NoError(t, err)
	require.Equal(t, 5000, cfg.BatchSize)
	require.Equal(t, int64(100*1024*1024), cfg.MaxFileSizeBytes)
	require.Equal(t, ',', cfg.Delimiter)
	require.False(t, cfg.ContinueOnReject)

	_, err = records.Config{BatchSize: 0, MaxFileSizeBytes: 1}.Validate()
	require.ErrorIs(t, err, records.ErrInvalidBatchSize)

	_, err = records.Config{BatchSize: 1, MaxFileSizeBytes: 0}.Validate()
	require.ErrorIs(t, err, records.ErrInvalidMaxSize)

	cfg, err = records.Config{BatchSize: 1, MaxFileSizeBytes: 1, Delimiter: '|'}.Validate()
	require.NoError(t, err)
	require.Equal(t, '|', cfg.Delimiter)
}

func TestKindOf(t *testing.T) {
	rej := &records.RejectionError{Kind: records.InvalidID, Field: records.FieldID, Value: "abc", Line: 3}
	tests := []struct {
		name   string
		err    error
		kind   records.FailureKind
		client bool
	}{
		{"nil", nil, "", false},
		{"size", records.ErrSizeLimitExceeded, records.SizeLimitExceeded, true},
		{"rejection", rej, records.ValidationFailure, true},
		{"wrapped rejection", fmt.Errorf("ingest: %w", rej), records.ValidationFailure, true},
		{"ingest error", records.NewIngestError(records.PersistenceFailure, errors.New("boom")), records.PersistenceFailure, false},
		{"read", records.NewIngestError(records.SourceReadFailure, errors.New("eof")), records.SourceReadFailure, false},
		{"canceled", context.Canceled, records.Canceled, false},
		{"deadline", context.DeadlineExceeded, records.Canceled, false},
		{"unknown", errors.New("other"), records.UnknownFailure, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.kind, records.KindOf(tt.err))
			require.Equal(t, tt.client, records.IsClientFault(tt.err))
		})
	}
}

func TestIngestErrorUnwrap(t *testing.T) {
	rej := &records.RejectionError{Kind: records.MissingName, Field: records.FieldLastName, Line: 9}
	err := records.NewIngestError(records.ValidationFailure, rej)

	var re *records.RejectionError
	require.True(t, errors.As(err, &re))
	require.Equal(t, records.MissingName, re.Kind)
	require.Equal(t, "validation-failure: line 9: missing lastname", err.Error())
}

func TestRejectionErrorMessage(t *testing.T) {
	require.Equal(t, `invalid id: "abc"`, (&records.RejectionError{Kind: records.InvalidID, Value: "abc"}).Error())
	require.Equal(t, `line 2: invalid email: "x"`, (&records.RejectionError{Kind: records.InvalidEmail, Value: "x", Line: 2}).Error())
}

func TestBulkError(t *testing.T) {
	cause := errors.New("E11000 duplicate key")
	err := &records.BulkError{
		Result: &records.BulkResult{Inserted: 4, Failures: []records.RecordFailure{{Index: 2, ID: 3, Reason: "dup"}}},
		Cause:  cause,
	}
	require.ErrorIs(t, err, cause)
	require.Equal(t, "bulk insert: 1 records failed: E11000 duplicate key", err.Error())
}

func TestStateTerminal(t *testing.T) {
	require.True(t, records.StateCompleted.Terminal())
	require.True(t, records.StateFailed.Terminal())
	require.False(t, records.StateStreaming.Terminal())
	require.Equal(t, 0, (*records.Batch)(nil).Len())
}

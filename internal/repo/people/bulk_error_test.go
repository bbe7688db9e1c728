package people

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/hankgalt/records-ingest/internal/domain/records"
)

func TestMapInsertManyError(t *testing.T) {
	recs := []records.Record{
		{ID: 10, FirstName: "a", LastName: "b", Email: "a@b"},
		{ID: 11, FirstName: "c", LastName: "d", Email: "c@d"},
		{ID: 12, FirstName: "e", LastName: "f", Email: "e@f"},
	}

	t.Run("partial write errors", func(t *testing.T) {
		bwe := mongo.BulkWriteException{
			WriteErrors: []mongo.BulkWriteError{
				{WriteError: mongo.WriteError{Index: 1, Code: 11000, Message: "duplicate key"}},
			},
		}

		res, err := mapInsertManyError(recs, bwe)
		require.Error(t, err)
		require.Equal(t, 2, res.Inserted)
		require.Len(t, res.Failures, 1)
		require.Equal(t, 1, res.Failures[0].Index)
		require.Equal(t, int64(11), res.Failures[0].ID)
		require.Equal(t, "duplicate key", res.Failures[0].Reason)

		var be *records.BulkError
		require.True(t, errors.As(err, &be))
		require.Same(t, res, be.Result)

		var unwrapped mongo.BulkWriteException
		require.True(t, errors.As(err, &unwrapped))
	})

	t.Run("write concern error", func(t *testing.T) {
		bwe := mongo.BulkWriteException{
			WriteConcernError: &mongo.WriteConcernError{Code: 64, Message: "waiting for replication timed out"},
		}

		res, err := mapInsertManyError(recs, bwe)
		require.Error(t, err)
		require.Equal(t, 0, res.Inserted)
		require.Empty(t, res.Failures)
	})

	t.Run("other error", func(t *testing.T) {
		cause := errors.New("connection reset")
		res, err := mapInsertManyError(recs, cause)
		require.ErrorIs(t, err, cause)
		require.Equal(t, 0, res.Inserted)

		var be *records.BulkError
		require.True(t, errors.As(err, &be))
	})
}

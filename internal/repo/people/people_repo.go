package people

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/comfforts/logger"

	"github.com/hankgalt/records-ingest/internal/domain/infra"
	"github.com/hankgalt/records-ingest/internal/domain/records"
	"github.com/hankgalt/records-ingest/internal/domain/stores"
)

const DEFAULT_COLLECTION = "records"

const (
	DEFAULT_LATEST_LIMIT = 20
	MAX_LATEST_LIMIT     = 1000
)

const (
	ERR_MISSING_COLLECTION_NAME = "missing collection name"
	ERR_EMPTY_RECORDS           = "no records to add"
	ERR_NIL_STORE               = "records repo: nil store"
)

var (
	ErrMissingCollectionName = errors.New(ERR_MISSING_COLLECTION_NAME)
	ErrEmptyRecords          = errors.New(ERR_EMPTY_RECORDS)
	ErrNilStore              = errors.New(ERR_NIL_STORE)
)

type PeopleRepo interface {
	AddRecords(ctx context.Context, recs []records.Record) (*records.BulkResult, error)
	GetLatestRecords(ctx context.Context, limit int) ([]records.Record, error)
	GetRecordCount(ctx context.Context) (int64, error)
	Ping(ctx context.Context) error
	Close(ctx context.Context) error
}

type peopleRepo struct {
	infra.DBStore
	collection string
}

// NewPeopleRepo ensures collection indexes and returns a repo over the given store.
func NewPeopleRepo(ctx context.Context, rc infra.DBStore, collection string) (*peopleRepo, error) {
	if rc == nil {
		return nil, ErrNilStore
	}
	if collection == "" {
		collection = DEFAULT_COLLECTION
	}

	// id is not unique, duplicates in the source are persisted as is
	idxs := []mongo.IndexModel{
		{
			Keys: bson.D{{Key: "id", Value: 1}},
		},
		{
			Keys: bson.D{{Key: "createdAt", Value: -1}},
		},
	}

	err := rc.EnsureIndexes(ctx, collection, idxs)
	if err != nil {
		return nil, fmt.Errorf("error adding record indexes: %w", err)
	}

	return &peopleRepo{
		DBStore:    rc,
		collection: collection,
	}, nil
}

// AddRecords bulk inserts recs unordered. A failing document does not stop its siblings.
// Partial failures are reported in the result and as a *records.BulkError.
func (pr *peopleRepo) AddRecords(ctx context.Context, recs []records.Record) (*records.BulkResult, error) {
	l, err := logger.LoggerFromContext(ctx)
	if err != nil {
		l = logger.GetSlogLogger()
	}

	if len(recs) == 0 {
		return nil, ErrEmptyRecords
	}

	now := time.Now().UTC()
	docs := make([]any, 0, len(recs))
	for _, rec := range recs {
		docs = append(docs, stores.MapRecordToMongoModel(rec, now))
	}

	coll := pr.Store().Collection(pr.collection)
	opts := options.InsertMany().SetOrdered(false)
	_, err = coll.InsertMany(ctx, docs, opts)
	if err != nil {
		res, bErr := mapInsertManyError(recs, err)
		l.Error(
			"AddRecords error",
			"collection", pr.collection,
			"records", len(recs),
			"inserted", res.Inserted,
			"error", err.Error(),
		)
		return res, bErr
	}

	l.Debug("AddRecords", "collection", pr.collection, "inserted", len(recs))
	return &records.BulkResult{Inserted: len(recs)}, nil
}

// GetLatestRecords returns up to limit records, most recently inserted first.
func (pr *peopleRepo) GetLatestRecords(ctx context.Context, limit int) ([]records.Record, error) {
	l, err := logger.LoggerFromContext(ctx)
	if err != nil {
		l = logger.GetSlogLogger()
	}

	limit = NormalizeLimit(limit)

	coll := pr.Store().Collection(pr.collection)
	opts := options.Find().SetSort(bson.D{{Key: "_id", Value: -1}}).SetLimit(int64(limit))
	cur, err := coll.Find(ctx, bson.M{}, opts)
	if err != nil {
		l.Error("GetLatestRecords error", "collection", pr.collection, "error", err.Error())
		return nil, fmt.Errorf("error fetching latest records: %w", err)
	}
	defer cur.Close(ctx)

	var people []stores.Person
	if err := cur.All(ctx, &people); err != nil {
		l.Error("GetLatestRecords decode error", "collection", pr.collection, "error", err.Error())
		return nil, fmt.Errorf("error decoding latest records: %w", err)
	}

	out := make([]records.Record, 0, len(people))
	for _, p := range people {
		out = append(out, stores.MapMongoModelToRecord(p))
	}
	return out, nil
}

func (pr *peopleRepo) GetRecordCount(ctx context.Context) (int64, error) {
	l, err := logger.LoggerFromContext(ctx)
	if err != nil {
		l = logger.GetSlogLogger()
	}

	if pr.collection == "" {
		return 0, ErrMissingCollectionName
	}

	coll := pr.Store().Collection(pr.collection)
	count, err := coll.CountDocuments(ctx, bson.M{})
	if err != nil {
		l.Error("GetRecordCount error", "collection", pr.collection, "error", err.Error())
		return 0, fmt.Errorf("error fetching record count: %w", err)
	}
	return count, nil
}

// NormalizeLimit clamps limit to (0, MAX_LATEST_LIMIT], defaulting to DEFAULT_LATEST_LIMIT.
func NormalizeLimit(limit int) int {
	if limit <= 0 {
		return DEFAULT_LATEST_LIMIT
	}
	if limit > MAX_LATEST_LIMIT {
		return MAX_LATEST_LIMIT
	}
	return limit
}

// mapInsertManyError converts an unordered InsertMany error into a bulk result.
// Write errors carry the index of the failing document; anything else fails the whole batch.
func mapInsertManyError(recs []records.Record, err error) (*records.BulkResult, error) {
	var bwe mongo.BulkWriteException
	if !errors.As(err, &bwe) {
		return &records.BulkResult{}, &records.BulkError{Result: &records.BulkResult{}, Cause: err}
	}

	res := &records.BulkResult{}
	for _, we := range bwe.WriteErrors {
		f := records.RecordFailure{
			Index:  we.Index,
			Reason: we.Message,
		}
		if we.Index >= 0 && we.Index < len(recs) {
			f.ID = recs[we.Index].ID
		}
		res.Failures = append(res.Failures, f)
	}

	if bwe.WriteConcernError == nil {
		res.Inserted = len(recs) - len(bwe.WriteErrors)
		if res.Inserted < 0 {
			res.Inserted = 0
		}
	}

	return res, &records.BulkError{Result: res, Cause: err}
}

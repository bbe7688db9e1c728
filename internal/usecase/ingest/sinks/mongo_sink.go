package sinks

import (
	"context"
	"errors"

	"github.com/comfforts/logger"

	"github.com/hankgalt/records-ingest/internal/domain/records"
	"github.com/hankgalt/records-ingest/internal/infra/mongostore"
	"github.com/hankgalt/records-ingest/internal/repo/people"
)

const MongoSink = "mongo-sink"

const (
	ERR_MONGO_SINK_NIL         = "mongo sink is nil"
	ERR_MONGO_SINK_NIL_WRITER  = "mongo sink: nil record writer"
	ERR_MONGO_SINK_EMPTY_DATA  = "mongo sink: empty data, nothing to write"
	ERR_MONGO_SINK_DB_PROTOCOL = "mongo sink: DB protocol is required"
	ERR_MONGO_SINK_DB_HOST     = "mongo sink: DB host is required"
	ERR_MONGO_SINK_DB_NAME     = "mongo sink: DB name is required"
)

var (
	ErrMongoSinkNil        = errors.New(ERR_MONGO_SINK_NIL)
	ErrMongoSinkNilWriter  = errors.New(ERR_MONGO_SINK_NIL_WRITER)
	ErrMongoSinkEmptyData  = errors.New(ERR_MONGO_SINK_EMPTY_DATA)
	ErrMongoSinkDBProtocol = errors.New(ERR_MONGO_SINK_DB_PROTOCOL)
	ErrMongoSinkDBHost     = errors.New(ERR_MONGO_SINK_DB_HOST)
	ErrMongoSinkDBName     = errors.New(ERR_MONGO_SINK_DB_NAME)
)

// RecordWriter is the tiny capability we need.
type RecordWriter interface {
	AddRecords(ctx context.Context, recs []records.Record) (*records.BulkResult, error)
	Close(ctx context.Context) error
}

var _ records.Sink = (*mongoSink)(nil)

// MongoDB sink.
type mongoSink struct {
	writer RecordWriter
	owned  bool // close the writer with the sink
}

// NewMongoSink wraps an existing writer. Closing the sink leaves the writer open.
func NewMongoSink(w RecordWriter) (*mongoSink, error) {
	if w == nil {
		return nil, ErrMongoSinkNilWriter
	}
	return &mongoSink{writer: w}, nil
}

// Name returns the name of the mongo sink.
func (s *mongoSink) Name() string { return MongoSink }

// InsertBatch writes the batch with unordered bulk semantics.
// Any per-record failure is returned as a *records.BulkError together with the result.
func (s *mongoSink) InsertBatch(ctx context.Context, b *records.Batch) (*records.BulkResult, error) {
	l, err := logger.LoggerFromContext(ctx)
	if err != nil {
		l = logger.GetSlogLogger()
	}
	if s == nil {
		return nil, ErrMongoSinkNil
	}
	if s.writer == nil {
		return nil, ErrMongoSinkNilWriter
	}
	if b.Len() == 0 {
		return nil, ErrMongoSinkEmptyData
	}

	res, err := s.writer.AddRecords(ctx, b.Records)
	if err != nil {
		inserted := 0
		if res != nil {
			inserted = res.Inserted
		}
		l.Error("batch insert failed", "batch-id", b.ID, "size", b.Len(), "inserted", inserted, "error", err.Error())
		return res, err
	}
	return res, nil
}

// Close closes the underlying writer when the sink built it.
func (s *mongoSink) Close(ctx context.Context) error {
	if s == nil || s.writer == nil || !s.owned {
		return nil
	}
	return s.writer.Close(ctx)
}

// MongoDB sink config.
type MongoSinkConfig struct {
	Protocol   string // e.g., "mongodb", "mongodb+srv"
	Host       string // e.g., "localhost:27017"
	DBName     string // e.g., "testdb"
	User       string // MongoDB user
	Pwd        string // MongoDB password
	Params     string // e.g., "retryWrites=true&w=majority"
	Collection string // defaults to people.DEFAULT_COLLECTION

	AppName        string // reported to the server, defaults to infra.DEFAULT_APP_NAME
	MaxPoolSize    uint64
	MajorityWrites bool
}

func (c *MongoSinkConfig) storeOptions() []mongostore.StoreOption {
	opts := []mongostore.StoreOption{
		mongostore.WithAppName(c.AppName),
		mongostore.WithPoolSize(0, c.MaxPoolSize),
	}
	if c.MajorityWrites {
		opts = append(opts, mongostore.WithMajorityWrites())
	}
	return opts
}

// Name of the sink.
func (c *MongoSinkConfig) Name() string { return MongoSink }

// BuildSink connects to MongoDB and builds a sink owning the connection.
func (c *MongoSinkConfig) BuildSink(ctx context.Context) (records.Sink, error) {
	l, err := logger.LoggerFromContext(ctx)
	if err != nil {
		l = logger.GetSlogLogger()
	}

	if c.Protocol == "" {
		return nil, ErrMongoSinkDBProtocol
	}
	if c.Host == "" {
		return nil, ErrMongoSinkDBHost
	}
	if c.DBName == "" {
		return nil, ErrMongoSinkDBName
	}

	mCfg := mongostore.NewMongoDBConfig(
		c.Protocol,
		c.Host,
		c.User,
		c.Pwd,
		c.Params,
		c.DBName,
	)

	ms, err := mongostore.NewMongoStore(ctx, mCfg, c.storeOptions()...)
	if err != nil {
		l.Error("error creating mongo store", "error", err.Error())
		return nil, err
	}

	repo, err := people.NewPeopleRepo(ctx, ms, c.Collection)
	if err != nil {
		l.Error("error creating records repo", "error", err.Error())
		return nil, errors.Join(err, ms.Close(ctx))
	}

	return &mongoSink{
		writer: repo,
		owned:  true,
	}, nil
}

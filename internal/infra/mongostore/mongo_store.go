package mongostore

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
	"go.mongodb.org/mongo-driver/mongo/writeconcern"

	"github.com/comfforts/logger"

	"github.com/hankgalt/records-ingest/internal/domain/infra"
)

var _ infra.DBStore = (*MongoStore)(nil)

// MongoStore is a connected client scoped to the records database.
type MongoStore struct {
	client *mongo.Client
	store  *mongo.Database
	opts   infra.StoreOptions
}

// NewMongoStore connects & pings the server. A store that cannot be pinged is not returned.
func NewMongoStore(ctx context.Context, cfg infra.StoreConfig, opts ...StoreOption) (*MongoStore, error) {
	l, err := logger.LoggerFromContext(ctx)
	if err != nil {
		l = logger.GetSlogLogger()
	}

	if cfg.Name() == "" {
		return nil, ErrMissingDBName
	}

	dbConnStr, err := NewMongoConnectionBuilder(
		cfg.Protocol(),
		cfg.Host(),
	).WithUser(
		cfg.User(),
	).WithPassword(
		cfg.Pwd(),
	).WithConnectionParams(
		cfg.Params(),
	).Build()
	if err != nil {
		return nil, err
	}

	sOpts := infra.DefaultStoreOptions()
	for _, opt := range opts {
		opt(&sOpts)
	}

	cl, err := mongo.Connect(ctx, clientOptions(dbConnStr, sOpts))
	if err != nil {
		l.Error("error connecting to MongoDB", "host", cfg.Host(), "error", err.Error())
		return nil, ErrMongoClientConn
	}

	if err = cl.Ping(ctx, readpref.Primary()); err != nil {
		l.Error("error pinging MongoDB", "host", cfg.Host(), "error", err.Error())
		if disconnectErr := cl.Disconnect(ctx); disconnectErr != nil {
			l.Error("error disconnecting from MongoDB", "error", disconnectErr.Error())
			return nil, errors.Join(ErrMongoClientConn, ErrMongoClientDisconn)
		}
		return nil, ErrMongoClientConn
	}

	l.Debug(
		"connected to MongoDB",
		"db", cfg.Name(),
		"app", sOpts.AppName,
		"max-pool", sOpts.MaxPoolSize,
		"majority-writes", sOpts.MajorityWrites,
	)

	return &MongoStore{
		client: cl,
		store:  cl.Database(cfg.Name()),
		opts:   sOpts,
	}, nil
}

func clientOptions(uri string, o infra.StoreOptions) *options.ClientOptions {
	mOpts := options.Client().ApplyURI(
		uri,
	).SetReadPreference(
		readpref.Primary(),
	).SetAppName(
		o.AppName,
	).SetMaxPoolSize(
		o.MaxPoolSize,
	).SetMinPoolSize(
		o.MinPoolSize,
	).SetConnectTimeout(
		o.DialTimeout,
	).SetServerSelectionTimeout(
		o.ServerSelectionTimeout,
	)
	if o.OperationTimeout > 0 {
		mOpts.SetTimeout(o.OperationTimeout)
	}
	if o.MajorityWrites {
		mOpts.SetWriteConcern(writeconcern.Majority())
	}
	return mOpts
}

func (ms *MongoStore) Store() *mongo.Database {
	return ms.store
}

// Options returns the client options in effect.
func (ms *MongoStore) Options() infra.StoreOptions {
	return ms.opts
}

// Ping checks the primary is reachable, bounded by DEFAULT_PING_TIMEOUT.
func (ms *MongoStore) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, infra.DEFAULT_PING_TIMEOUT)
	defer cancel()

	if err := ms.client.Ping(ctx, readpref.Primary()); err != nil {
		return fmt.Errorf("%w: %w", ErrMongoPing, err)
	}
	return nil
}

func (ms *MongoStore) Close(ctx context.Context) error {
	if err := ms.client.Disconnect(ctx); err != nil && !errors.Is(err, mongo.ErrClientDisconnected) {
		return ErrMongoClientDisconn
	}
	return nil
}

func (ms *MongoStore) EnsureIndexes(
	ctx context.Context,
	collectionName string,
	indexes []mongo.IndexModel,
) error {
	if collectionName == "" {
		return ErrMissingCollectionOrDoc
	}
	if len(indexes) == 0 {
		return nil
	}
	_, err := ms.store.Collection(collectionName).Indexes().CreateMany(ctx, indexes)
	if err != nil {
		return fmt.Errorf("failed to create indexes on collection %q: %w", collectionName, err)
	}
	return nil
}

package infra

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/mongo"
)

// ShutdownFunc releases telemetry or client resources at process exit.
type ShutdownFunc func(context.Context) error

const (
	DEFAULT_APP_NAME          = "records-ingest"
	DEFAULT_DIAL_TIMEOUT      = 5 * time.Second
	DEFAULT_SELECT_TIMEOUT    = 10 * time.Second
	DEFAULT_MAX_POOL_SIZE     = uint64(10)
	DEFAULT_MIN_POOL_SIZE     = uint64(1)
	DEFAULT_PING_TIMEOUT      = 2 * time.Second
	DEFAULT_OPERATION_TIMEOUT = time.Duration(0)
)

// DBStore is the database handle repositories build on.
type DBStore interface {
	Store() *mongo.Database
	EnsureIndexes(ctx context.Context, collectionName string, indexes []mongo.IndexModel) error
	Ping(ctx context.Context) error
	Close(ctx context.Context) error
}

type StoreConfig interface {
	Protocol() string
	Host() string
	User() string
	Pwd() string
	Params() string
	Name() string
}

// StoreOptions tune the database client for bulk record writes.
type StoreOptions struct {
	AppName                string
	DialTimeout            time.Duration
	ServerSelectionTimeout time.Duration
	MaxPoolSize            uint64
	MinPoolSize            uint64
	// OperationTimeout bounds each operation, including a whole batch insert.
	// Zero leaves it to the caller's context.
	OperationTimeout time.Duration
	// MajorityWrites waits for a replica set majority to acknowledge each batch.
	MajorityWrites bool
}

func DefaultStoreOptions() StoreOptions {
	return StoreOptions{
		AppName:                DEFAULT_APP_NAME,
		DialTimeout:            DEFAULT_DIAL_TIMEOUT,
		ServerSelectionTimeout: DEFAULT_SELECT_TIMEOUT,
		MaxPoolSize:            DEFAULT_MAX_POOL_SIZE,
		MinPoolSize:            DEFAULT_MIN_POOL_SIZE,
		OperationTimeout:       DEFAULT_OPERATION_TIMEOUT,
	}
}

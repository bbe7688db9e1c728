package mongostore

import (
	"errors"
	"net/url"
	"strings"
	"time"

	"github.com/hankgalt/records-ingest/internal/domain/infra"
)

const (
	ERR_REQUIRED_PARAMS           = "host & protocol are required"
	ERR_MISSING_DB_NAME           = "missing database name"
	ERR_MONGO_CLIENT_CONN         = "error connecting to MongoDB"
	ERR_MONGO_CLIENT_DISCONN      = "error disconnecting from MongoDB"
	ERR_MONGO_PING                = "MongoDB is not reachable"
	ERR_MISSING_COLLECTION_OR_DOC = "missing collection name or documents"
)

var (
	ErrRequiredParams         = errors.New(ERR_REQUIRED_PARAMS)
	ErrMissingDBName          = errors.New(ERR_MISSING_DB_NAME)
	ErrMongoClientConn        = errors.New(ERR_MONGO_CLIENT_CONN)
	ErrMongoClientDisconn     = errors.New(ERR_MONGO_CLIENT_DISCONN)
	ErrMongoPing              = errors.New(ERR_MONGO_PING)
	ErrMissingCollectionOrDoc = errors.New(ERR_MISSING_COLLECTION_OR_DOC)
)

var _ infra.StoreConfig = MongoDBConfig{}

// MongoDBConfig identifies the records database. Params is a raw query string, e.g. "authSource=admin".
type MongoDBConfig struct {
	protocol string
	host     string
	user     string
	pwd      string
	params   string
	name     string
}

func NewMongoDBConfig(protocol, host, user, pwd, params, name string) MongoDBConfig {
	return MongoDBConfig{
		protocol: protocol,
		host:     host,
		user:     user,
		pwd:      pwd,
		params:   params,
		name:     name,
	}
}

func (rc MongoDBConfig) Protocol() string { return rc.protocol }
func (rc MongoDBConfig) Host() string     { return rc.host }
func (rc MongoDBConfig) User() string     { return rc.user }
func (rc MongoDBConfig) Pwd() string      { return rc.pwd }
func (rc MongoDBConfig) Params() string   { return rc.params }
func (rc MongoDBConfig) Name() string     { return rc.name }

// StoreOption adjusts client options for a store.
type StoreOption func(*infra.StoreOptions)

// WithAppName sets the app name reported to the server.
func WithAppName(name string) StoreOption {
	return func(o *infra.StoreOptions) {
		if name != "" {
			o.AppName = name
		}
	}
}

// WithPoolSize bounds the connection pool. Concurrent ingestions each hold
// one connection per in-flight batch.
func WithPoolSize(minSize, maxSize uint64) StoreOption {
	return func(o *infra.StoreOptions) {
		if maxSize > 0 {
			o.MaxPoolSize = maxSize
		}
		if minSize <= o.MaxPoolSize {
			o.MinPoolSize = minSize
		}
	}
}

// WithOperationTimeout bounds every operation, a batch insert included.
func WithOperationTimeout(d time.Duration) StoreOption {
	return func(o *infra.StoreOptions) {
		o.OperationTimeout = d
	}
}

// WithMajorityWrites waits for a replica set majority on every write.
func WithMajorityWrites() StoreOption {
	return func(o *infra.StoreOptions) {
		o.MajorityWrites = true
	}
}

// ConnectionBuilder builds a MongoDB connection string.
type ConnectionBuilder interface {
	// Build returns "[protocol]://[user[:password]@]host[/?params]", with
	// credentials escaped. It returns an error if protocol or host is missing.
	Build() (string, error)
	WithUser(u string) ConnectionBuilder
	WithPassword(p string) ConnectionBuilder
	WithConnectionParams(p string) ConnectionBuilder
}

type mongoConnectionBuilder struct {
	protocol string
	host     string
	user     string
	pwd      string
	params   string
}

// NewMongoConnectionBuilder returns a builder for protocol ("mongodb", "mongodb+srv") and host,
// which may be a comma separated host list.
func NewMongoConnectionBuilder(p, h string) mongoConnectionBuilder {
	return mongoConnectionBuilder{
		protocol: p,
		host:     h,
	}
}

func (b mongoConnectionBuilder) WithUser(u string) ConnectionBuilder {
	b.user = u
	return b
}

func (b mongoConnectionBuilder) WithPassword(p string) ConnectionBuilder {
	b.pwd = p
	return b
}

func (b mongoConnectionBuilder) WithConnectionParams(p string) ConnectionBuilder {
	b.params = p
	return b
}

func (b mongoConnectionBuilder) Build() (string, error) {
	if b.protocol == "" || b.host == "" {
		return "", ErrRequiredParams
	}

	u := url.URL{
		Scheme: b.protocol,
		Host:   b.host,
	}

	// password without a user is ignored
	if b.user != "" {
		if b.pwd != "" {
			u.User = url.UserPassword(b.user, b.pwd)
		} else {
			u.User = url.User(b.user)
		}
	}

	if params := strings.TrimLeft(b.params, "/?"); params != "" {
		u.Path = "/"
		u.RawQuery = params
	}

	return u.String(), nil
}

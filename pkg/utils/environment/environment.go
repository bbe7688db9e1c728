package env

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/hankgalt/records-ingest/internal/domain/infra"
	"github.com/hankgalt/records-ingest/internal/domain/records"
	"github.com/hankgalt/records-ingest/internal/infra/mongostore"
	"github.com/hankgalt/records-ingest/internal/infra/temporal"
	"github.com/hankgalt/records-ingest/internal/usecase/ingest/sinks"
	"github.com/hankgalt/records-ingest/internal/usecase/workflows/fileingest"
)

const DEFAULT_DATA_DIR = "data"
const DEFAULT_DATA_PATH string = "people"
const DEFAULT_FILE_NAME string = "people.csv"
const DEFAULT_COLLECTION string = "records"
const DEFAULT_SERVER_PORT = 8080
const DEFAULT_UPLOAD_DIR string = "_temp"
const DEFAULT_METRICS_PORT string = ":9464"

// CloudFileConfig locates the object a cloud source reads.
type CloudFileConfig struct {
	Name   string
	Path   string
	Bucket string
}

// ServerConfig is the HTTP upload server setup.
type ServerConfig struct {
	Addr      string
	UploadDir string
	TLS       bool
}

// BuildFilePath constructs the file path using the DATA_DIR env variable or defaults to "<DEFAULT_DATA_DIR>/<DEFAULT_DATA_PATH>".
func BuildFilePath() (string, error) {
	dataDir := os.Getenv("DATA_DIR")
	if dataDir == "" {
		dataDir = DEFAULT_DATA_DIR
	}

	return filepath.Join(dataDir, DEFAULT_DATA_PATH), nil
}

// BuildFileName constructs the file name using the FILE_NAME env variable or defaults to DEFAULT_FILE_NAME.
func BuildFileName() string {
	fileName := os.Getenv("FILE_NAME")
	if fileName == "" {
		fileName = DEFAULT_FILE_NAME
	}

	return fileName
}

func BuildCloudFileConfig() (CloudFileConfig, error) {
	bucket := os.Getenv("BUCKET")
	if bucket == "" {
		return CloudFileConfig{}, fmt.Errorf("BUCKET environment variable is not set")
	}

	return CloudFileConfig{
		Name:   BuildFileName(),
		Path:   DEFAULT_DATA_PATH,
		Bucket: bucket,
	}, nil
}

// BuildMongoCollection returns MONGO_COLLECTION or DEFAULT_COLLECTION.
func BuildMongoCollection() string {
	collection := os.Getenv("MONGO_COLLECTION")
	if collection == "" {
		collection = DEFAULT_COLLECTION
	}

	return collection
}

func BuildMongoStoreConfig(direct bool) infra.StoreConfig {
	dbProtocol := os.Getenv("MONGO_PROTOCOL")
	dbUser := os.Getenv("MONGO_USERNAME")
	dbPwd := os.Getenv("MONGO_PASSWORD")
	dbName := os.Getenv("MONGO_DBNAME")

	dbHost := os.Getenv("MONGO_HOST_LIST")
	dbParams := os.Getenv("MONGO_CLUS_CONN_PARAMS")
	if direct {
		dbParams = os.Getenv("MONGO_DIR_CONN_PARAMS")
		dbHost = os.Getenv("MONGO_HOST_NAME")
	}
	return mongostore.NewMongoDBConfig(dbProtocol, dbHost, dbUser, dbPwd, dbParams, dbName)
}

// BuildMongoStoreOptions reads client tuning from MONGO_MAX_POOL_SIZE, MONGO_OP_TIMEOUT
// (a duration, e.g. "30s") and MONGO_MAJORITY_WRITES. Unparseable values keep the defaults.
func BuildMongoStoreOptions(appName string) []mongostore.StoreOption {
	opts := []mongostore.StoreOption{
		mongostore.WithAppName(appName),
		mongostore.WithPoolSize(infra.DEFAULT_MIN_POOL_SIZE, mongoMaxPoolSize()),
	}

	if v := os.Getenv("MONGO_OP_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			opts = append(opts, mongostore.WithOperationTimeout(d))
		}
	}

	if mongoMajorityWrites() {
		opts = append(opts, mongostore.WithMajorityWrites())
	}
	return opts
}

// BuildMongoSinkConfig builds a mongo sink config from the same env vars as the store config.
func BuildMongoSinkConfig(direct bool) *sinks.MongoSinkConfig {
	mCfg := BuildMongoStoreConfig(direct)
	return &sinks.MongoSinkConfig{
		Protocol:       mCfg.Protocol(),
		Host:           mCfg.Host(),
		DBName:         mCfg.Name(),
		User:           mCfg.User(),
		Pwd:            mCfg.Pwd(),
		Params:         mCfg.Params(),
		Collection:     BuildMongoCollection(),
		MaxPoolSize:    mongoMaxPoolSize(),
		MajorityWrites: mongoMajorityWrites(),
	}
}

func mongoMaxPoolSize() uint64 {
	n, err := strconv.ParseUint(os.Getenv("MONGO_MAX_POOL_SIZE"), 10, 64)
	if err != nil {
		return 0
	}
	return n
}

func mongoMajorityWrites() bool {
	ok, err := strconv.ParseBool(os.Getenv("MONGO_MAJORITY_WRITES"))
	return err == nil && ok
}

// BuildIngestConfig overrides the default ingestion config with
// BATCH_SIZE, MAX_FILE_SIZE_BYTES, DELIMITER & CONTINUE_ON_REJECT.
func BuildIngestConfig() (records.Config, error) {
	cfg := records.DefaultConfig()

	if v := os.Getenv("BATCH_SIZE"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return cfg, fmt.Errorf("invalid BATCH_SIZE %q: %w", v, err)
		}
		cfg.BatchSize = n
	}

	if v := os.Getenv("MAX_FILE_SIZE_BYTES"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return cfg, fmt.Errorf("invalid MAX_FILE_SIZE_BYTES %q: %w", v, err)
		}
		cfg.MaxFileSizeBytes = n
	}

	if v := os.Getenv("DELIMITER"); v != "" {
		if v == `\t` {
			v = "\t"
		}
		r, size := utf8.DecodeRuneInString(v)
		if r == utf8.RuneError || size != len(v) {
			return cfg, fmt.Errorf("invalid DELIMITER %q: must be a single character", v)
		}
		cfg.Delimiter = r
	}

	if v := os.Getenv("CONTINUE_ON_REJECT"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return cfg, fmt.Errorf("invalid CONTINUE_ON_REJECT %q: %w", v, err)
		}
		cfg.ContinueOnReject = b
	}

	return cfg.Validate()
}

// BuildServerConfig reads SERVER_PORT, UPLOAD_DIR & SERVER_TLS.
func BuildServerConfig() ServerConfig {
	port, err := strconv.Atoi(os.Getenv("SERVER_PORT"))
	if err != nil || port == 0 {
		port = DEFAULT_SERVER_PORT
	}

	uploadDir := os.Getenv("UPLOAD_DIR")
	if uploadDir == "" {
		uploadDir = DEFAULT_UPLOAD_DIR
	}

	useTLS, _ := strconv.ParseBool(os.Getenv("SERVER_TLS"))

	return ServerConfig{
		Addr:      fmt.Sprintf(":%d", port),
		UploadDir: uploadDir,
		TLS:       useTLS,
	}
}

// BuildTemporalConfig reads WORKFLOW_DOMAIN, TEMPORAL_HOST & TASK_QUEUE, which defaults
// to the file ingestion task queue, plus the metrics config.
func BuildTemporalConfig(clientName string) temporal.TemporalConfig {
	namespace := os.Getenv("WORKFLOW_DOMAIN")
	host := os.Getenv("TEMPORAL_HOST")
	taskQueue := os.Getenv("TASK_QUEUE")
	if taskQueue == "" {
		taskQueue = fileingest.ApplicationName
	}
	metricsPort, otelEndpoint := BuildMetricsConfig()
	return temporal.NewTemporalConfig(namespace, host, taskQueue, clientName, metricsPort, otelEndpoint)
}

// BuildMetricsConfig returns the Prometheus listen address & the OTLP endpoint.
// An unset OTEL_ENDPOINT disables trace export.
func BuildMetricsConfig() (string, string) {
	metricsPort := os.Getenv("METRICS_PORT")
	if metricsPort == "" {
		metricsPort = DEFAULT_METRICS_PORT
	} else if !strings.HasPrefix(metricsPort, ":") {
		metricsPort = fmt.Sprintf(":%s", metricsPort)
	}
	return metricsPort, os.Getenv("OTEL_ENDPOINT")
}

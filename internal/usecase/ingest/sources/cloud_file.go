package sources

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"

	"cloud.google.com/go/storage"

	"github.com/comfforts/logger"

	"github.com/hankgalt/records-ingest/internal/domain/records"
)

const CloudFileSource = "cloud-file-source"

const (
	ERR_CLOUD_FILE_CLIENT_NIL           = "cloud file: client is not initialized"
	ERR_CLOUD_FILE_OBJECT_PATH_REQUIRED = "cloud file: object path is required"
	ERR_CLOUD_FILE_BUCKET_REQUIRED      = "cloud file: bucket name is required"
	ERR_CLOUD_FILE_UNSUPPORTED_PROVIDER = "cloud file: unsupported provider, only 'gcs' is supported"
	ERR_CLOUD_FILE_MISSING_CREDENTIALS  = "cloud file: missing credentials path"
)

var (
	ErrCloudFileClientNil           = errors.New(ERR_CLOUD_FILE_CLIENT_NIL)
	ErrCloudFileObjectPathRequired  = errors.New(ERR_CLOUD_FILE_OBJECT_PATH_REQUIRED)
	ErrCloudFileBucketRequired      = errors.New(ERR_CLOUD_FILE_BUCKET_REQUIRED)
	ErrCloudFileUnsupportedProvider = errors.New(ERR_CLOUD_FILE_UNSUPPORTED_PROVIDER)
	ErrCloudFileMissingCredentials  = errors.New(ERR_CLOUD_FILE_MISSING_CREDENTIALS)
)

type CloudSource string

const (
	CloudSourceGCS CloudSource = "gcs"
)

var _ records.FileSource = (*cloudFileSource)(nil)

// Cloud (GCS) object source. Release closes the storage client,
// and deletes the object when deleteOnRelease is set.
type cloudFileSource struct {
	client          *storage.Client
	bucket          string
	path            string
	size            int64
	deleteOnRelease bool

	releaseOnce sync.Once
	releaseErr  error
}

// Name of the source.
func (s *cloudFileSource) Name() string { return CloudFileSource }

// Size returns the object size from its attributes.
func (s *cloudFileSource) Size() int64 { return s.size }

// Open returns a streaming reader over the object.
func (s *cloudFileSource) Open(ctx context.Context) (io.ReadCloser, error) {
	if s.client == nil {
		return nil, ErrCloudFileClientNil
	}
	rc, err := s.client.Bucket(s.bucket).Object(s.path).NewReader(ctx)
	if err != nil {
		return nil, fmt.Errorf("cloud file: error creating reader for object %s in bucket %s: %w", s.path, s.bucket, err)
	}
	return rc, nil
}

// Release deletes the object if owned and closes the client. Only the first call has an effect.
func (s *cloudFileSource) Release(ctx context.Context) error {
	s.releaseOnce.Do(func() {
		if s.client == nil {
			return
		}

		l, err := logger.LoggerFromContext(ctx)
		if err != nil {
			l = logger.GetSlogLogger()
		}

		var errs []error
		if s.deleteOnRelease {
			err := s.client.Bucket(s.bucket).Object(s.path).Delete(ctx)
			if err != nil && !errors.Is(err, storage.ErrObjectNotExist) {
				l.Error("cloud file: error deleting object", "bucket", s.bucket, "path", s.path, "error", err.Error())
				errs = append(errs, err)
			}
		}
		if err := s.client.Close(); err != nil {
			l.Error("cloud file: error closing client", "error", err.Error())
			errs = append(errs, err)
		}
		s.releaseErr = errors.Join(errs...)
	})
	return s.releaseErr
}

// Cloud file source config.
type CloudFileConfig struct {
	Provider        string // "gcs"
	Bucket          string
	Path            string
	DeleteOnRelease bool
}

// Name of the source.
func (c *CloudFileConfig) Name() string { return CloudFileSource }

// BuildSource builds a cloud object source, reading the declared size from object attributes.
func (c *CloudFileConfig) BuildSource(ctx context.Context) (records.FileSource, error) {
	l, err := logger.LoggerFromContext(ctx)
	if err != nil {
		l = logger.GetSlogLogger()
	}

	if c.Path == "" {
		return nil, ErrCloudFileObjectPathRequired
	}

	if c.Bucket == "" {
		return nil, ErrCloudFileBucketRequired
	}

	if c.Provider == "" {
		c.Provider = string(CloudSourceGCS)
	}

	if c.Provider != string(CloudSourceGCS) {
		return nil, ErrCloudFileUnsupportedProvider
	}

	// Ensure the environment variable is set for GCP credentials
	if os.Getenv("GOOGLE_APPLICATION_CREDENTIALS") == "" {
		return nil, ErrCloudFileMissingCredentials
	}

	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("cloud file: failed to create storage client: %w", err)
	}

	attrs, err := client.Bucket(c.Bucket).Object(c.Path).Attrs(ctx)
	if err != nil {
		if err := client.Close(); err != nil {
			l.Error("cloud file: error closing client", "error", err.Error())
		}
		return nil, fmt.Errorf("cloud file: object does not exist or error getting attributes: %w", err)
	}

	return &cloudFileSource{
		client:          client,
		bucket:          c.Bucket,
		path:            c.Path,
		size:            attrs.Size,
		deleteOnRelease: c.DeleteOnRelease,
	}, nil
}

package sources

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/comfforts/logger"

	"github.com/hankgalt/records-ingest/internal/domain/records"
)

const LocalFileSource = "local-file-source"

const (
	ERR_LOCAL_FILE_PATH_REQUIRED = "local file: path is required"
	ERR_LOCAL_FILE_STAT          = "local file: stat"
	ERR_LOCAL_FILE_IS_DIR        = "local file: path is a directory"
	ERR_LOCAL_FILE_OPEN          = "local file: open"
)

var (
	ErrLocalFilePathRequired = errors.New(ERR_LOCAL_FILE_PATH_REQUIRED)
	ErrLocalFileStat         = errors.New(ERR_LOCAL_FILE_STAT)
	ErrLocalFileIsDir        = errors.New(ERR_LOCAL_FILE_IS_DIR)
	ErrLocalFileOpen         = errors.New(ERR_LOCAL_FILE_OPEN)
)

var _ records.FileSource = (*localFileSource)(nil)

// Local file source. Owns the file when removeOnRelease is set.
type localFileSource struct {
	path            string
	size            int64
	removeOnRelease bool

	releaseOnce sync.Once
	releaseErr  error
}

// Name of the source.
func (s *localFileSource) Name() string { return LocalFileSource }

// Path of the underlying file.
func (s *localFileSource) Path() string { return s.path }

// Size returns the file size captured when the source was built.
func (s *localFileSource) Size() int64 { return s.size }

// Open opens the file for reading. The caller closes the returned reader.
func (s *localFileSource) Open(ctx context.Context) (io.ReadCloser, error) {
	f, err := os.Open(s.path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrLocalFileOpen, err)
	}
	return f, nil
}

// Release removes the file when the source owns it. Only the first call has an effect.
func (s *localFileSource) Release(ctx context.Context) error {
	s.releaseOnce.Do(func() {
		if !s.removeOnRelease {
			return
		}

		l, err := logger.LoggerFromContext(ctx)
		if err != nil {
			l = logger.GetSlogLogger()
		}

		if err := os.Remove(s.path); err != nil && !errors.Is(err, os.ErrNotExist) {
			l.Error("error removing local file", "path", s.path, "error", err.Error())
			s.releaseErr = err
			return
		}
		l.Debug("local file removed", "path", s.path)
	})
	return s.releaseErr
}

// Local file source config.
type LocalFileConfig struct {
	Path            string
	RemoveOnRelease bool // delete the file once ingestion ends
}

// Name of the source.
func (c *LocalFileConfig) Name() string { return LocalFileSource }

// BuildSource builds a local file source from the config.
func (c *LocalFileConfig) BuildSource(ctx context.Context) (records.FileSource, error) {
	if c.Path == "" {
		return nil, ErrLocalFilePathRequired
	}

	fi, err := os.Stat(c.Path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrLocalFileStat, err)
	}
	if fi.IsDir() {
		return nil, ErrLocalFileIsDir
	}

	return &localFileSource{
		path:            c.Path,
		size:            fi.Size(),
		removeOnRelease: c.RemoveOnRelease,
	}, nil
}

package sinks

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/hankgalt/records-ingest/internal/domain/records"
)

const LocalJSONSink = "local-json-sink"

const (
	ERR_LOCAL_JSON_PATH_REQUIRED = "local json: path is required"
	ERR_LOCAL_JSON_CLOSED        = "local json: sink is closed"
)

var (
	ErrLocalJSONPathRequired = errors.New(ERR_LOCAL_JSON_PATH_REQUIRED)
	ErrLocalJSONClosed       = errors.New(ERR_LOCAL_JSON_CLOSED)
)

var _ records.Sink = (*localJSONSink)(nil)

// Local json sink, appends one JSON document per line.
type localJSONSink struct {
	mu   sync.Mutex
	path string
	f    *os.File
	w    *bufio.Writer
}

// Name returns the name of the local json sink.
func (s *localJSONSink) Name() string { return LocalJSONSink }

// InsertBatch appends the batch and flushes it to the file before returning.
func (s *localJSONSink) InsertBatch(ctx context.Context, b *records.Batch) (*records.BulkResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.f == nil {
		return nil, ErrLocalJSONClosed
	}

	res := &records.BulkResult{}
	enc := json.NewEncoder(s.w)
	for i, rec := range b.Records {
		if err := enc.Encode(rec); err != nil {
			res.Failures = append(res.Failures, records.RecordFailure{Index: i, ID: rec.ID, Reason: err.Error()})
			continue
		}
		res.Inserted++
	}
	if err := s.w.Flush(); err != nil {
		return res, fmt.Errorf("local json: flush %s: %w", s.path, err)
	}
	if len(res.Failures) > 0 {
		return res, &records.BulkError{Result: res}
	}
	return res, nil
}

// Close flushes and closes the file.
func (s *localJSONSink) Close(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.f == nil {
		return nil
	}
	err := errors.Join(s.w.Flush(), s.f.Close())
	s.f = nil
	return err
}

// Local json sink config
type LocalJSONSinkConfig struct {
	Path string // output file, created or appended to
}

// Name of the local json sink.
func (c *LocalJSONSinkConfig) Name() string { return LocalJSONSink }

// BuildSink opens the output file for appending.
func (c *LocalJSONSinkConfig) BuildSink(ctx context.Context) (records.Sink, error) {
	if c.Path == "" {
		return nil, ErrLocalJSONPathRequired
	}
	if err := os.MkdirAll(filepath.Dir(c.Path), 0o755); err != nil {
		return nil, fmt.Errorf("local json: create dir: %w", err)
	}
	f, err := os.OpenFile(c.Path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("local json: open %s: %w", c.Path, err)
	}
	return &localJSONSink{
		path: c.Path,
		f:    f,
		w:    bufio.NewWriter(f),
	}, nil
}

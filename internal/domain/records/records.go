package records

import (
	"context"
	"io"
	"time"
)

// Record field names as they appear in the delimited input header.
const (
	FieldID         = "id"
	FieldFirstName  = "firstname"
	FieldLastName   = "lastname"
	FieldEmail      = "email"
	FieldEmail2     = "email2"
	FieldProfession = "profession"
)

// RawFields is one parsed input line, header name to value, pre-validation.
type RawFields map[string]string

// Record is a validated person record. Values are copied, never shared.
type Record struct {
	ID         int64  `json:"id"`
	FirstName  string `json:"firstname"`
	LastName   string `json:"lastname"`
	Email      string `json:"email"`
	Email2     string `json:"email2"`
	Profession string `json:"profession"`
}

// Batch is an ordered group of records handed to a Sink in a single call.
type Batch struct {
	ID      string   // ingest id + sequence
	Seq     uint     // 1-based position of the batch within its ingestion
	Records []Record // records in source order
}

// Len returns the number of records in the batch.
func (b *Batch) Len() int {
	if b == nil {
		return 0
	}
	return len(b.Records)
}

// RecordFailure is a single record a Sink could not persist.
type RecordFailure struct {
	Index  int    `json:"index"` // position within the batch
	ID     int64  `json:"id"`
	Reason string `json:"reason"`
}

// BulkResult is the outcome of an unordered bulk insert.
type BulkResult struct {
	Inserted int             `json:"inserted"`
	Failures []RecordFailure `json:"failures,omitempty"`
}

// State of an ingestion call.
type State string

const (
	StateIdle        State = "idle"
	StateSizeChecked State = "size-checked"
	StateStreaming   State = "streaming"
	StateFlushing    State = "flushing"
	StateDraining    State = "draining"
	StateCompleted   State = "completed"
	StateFailed      State = "failed"
)

// Terminal reports whether no further transition is possible.
func (s State) Terminal() bool {
	return s == StateCompleted || s == StateFailed
}

// Summary is the result of an ingestion call, returned on success and on failure.
type Summary struct {
	IngestID         string        `json:"ingestId"`
	Source           string        `json:"source"`
	State            State         `json:"state"`
	RecordsProcessed int64         `json:"recordsProcessed"` // sum of successfully flushed batch sizes
	LinesRead        int64         `json:"linesRead"`        // data lines parsed, header excluded
	Rejected         int64         `json:"rejected"`
	Rejections       []string      `json:"rejections,omitempty"`
	Batches          uint          `json:"batches"` // successful flushes
	Duration         time.Duration `json:"duration"`
}

// FileSource is an exclusively owned, releasable byte source with a declared size.
type FileSource interface {
	Name() string
	Size() int64
	Open(ctx context.Context) (io.ReadCloser, error)
	// Release frees the underlying resource (e.g. deletes a temp file).
	Release(ctx context.Context) error
}

// RecordReader pulls parsed lines one at a time. Next returns io.EOF after the last line.
type RecordReader interface {
	Next(ctx context.Context) (RawFields, error)
}

// Sink persists batches. Implementations must be safe for concurrent use by independent ingestions
// and must not retain the batch after InsertBatch returns.
type Sink interface {
	Name() string
	InsertBatch(ctx context.Context, b *Batch) (*BulkResult, error)
	Close(ctx context.Context) error
}

// SinkConfig knows how to build a Sink.
type SinkConfig interface {
	BuildSink(ctx context.Context) (Sink, error)
	Name() string
}

// SourceConfig knows how to build a FileSource.
type SourceConfig interface {
	BuildSource(ctx context.Context) (FileSource, error)
	Name() string
}

package records

import (
	"context"
	"errors"
	"fmt"
)

// RejectionKind classifies why a record failed validation.
type RejectionKind string

const (
	InvalidID    RejectionKind = "invalid-id"
	MissingName  RejectionKind = "missing-name"
	InvalidEmail RejectionKind = "invalid-email"
)

// RejectionError is a single record failing validation.
type RejectionError struct {
	Kind  RejectionKind
	Field string
	Value string
	Line  int64 // 1-based data line, 0 when unknown
}

func (e *RejectionError) Error() string {
	var msg string
	switch e.Kind {
	case InvalidID:
		msg = fmt.Sprintf("invalid id: %q", e.Value)
	case MissingName:
		msg = fmt.Sprintf("missing %s", e.Field)
	case InvalidEmail:
		msg = fmt.Sprintf("invalid email: %q", e.Value)
	default:
		msg = fmt.Sprintf("invalid %s: %q", e.Field, e.Value)
	}
	if e.Line > 0 {
		return fmt.Sprintf("line %d: %s", e.Line, msg)
	}
	return msg
}

// FailureKind classifies a terminal ingestion failure.
type FailureKind string

const (
	SizeLimitExceeded  FailureKind = "size-limit-exceeded"
	ValidationFailure  FailureKind = "validation-failure"
	PersistenceFailure FailureKind = "persistence-failure"
	SourceReadFailure  FailureKind = "source-read-failure"
	Canceled           FailureKind = "canceled"
	UnknownFailure     FailureKind = "unknown"
)

const (
	ERR_SIZE_LIMIT_EXCEEDED = "file exceeds the maximum allowed size"
	ERR_INVALID_BATCH_SIZE  = "batch size must be greater than 0"
	ERR_INVALID_MAX_SIZE    = "max file size must be greater than 0"
	ERR_NIL_SINK            = "sink is required"
	ERR_NIL_SOURCE          = "source is required"
)

var (
	ErrSizeLimitExceeded = errors.New(ERR_SIZE_LIMIT_EXCEEDED)
	ErrInvalidBatchSize  = errors.New(ERR_INVALID_BATCH_SIZE)
	ErrInvalidMaxSize    = errors.New(ERR_INVALID_MAX_SIZE)
	ErrNilSink           = errors.New(ERR_NIL_SINK)
	ErrNilSource         = errors.New(ERR_NIL_SOURCE)
)

// IngestError is a terminal ingestion failure of a given kind.
type IngestError struct {
	Kind  FailureKind
	Cause error
}

func (e *IngestError) Error() string {
	if e.Cause == nil {
		return string(e.Kind)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Cause.Error())
}

func (e *IngestError) Unwrap() error { return e.Cause }

// NewIngestError wraps cause with kind.
func NewIngestError(kind FailureKind, cause error) *IngestError {
	return &IngestError{Kind: kind, Cause: cause}
}

// KindOf returns the failure kind carried by err.
func KindOf(err error) FailureKind {
	if err == nil {
		return ""
	}
	var ie *IngestError
	if errors.As(err, &ie) {
		return ie.Kind
	}
	var re *RejectionError
	if errors.As(err, &re) {
		return ValidationFailure
	}
	if errors.Is(err, ErrSizeLimitExceeded) {
		return SizeLimitExceeded
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return Canceled
	}
	return UnknownFailure
}

// IsClientFault reports whether err is caused by the submitted input.
func IsClientFault(err error) bool {
	switch KindOf(err) {
	case SizeLimitExceeded, ValidationFailure:
		return true
	default:
		return false
	}
}

// BulkError reports a bulk insert where some records were not persisted.
type BulkError struct {
	Result *BulkResult
	Cause  error
}

func (e *BulkError) Error() string {
	failed := 0
	if e.Result != nil {
		failed = len(e.Result.Failures)
	}
	if e.Cause == nil {
		return fmt.Sprintf("bulk insert: %d records failed", failed)
	}
	return fmt.Sprintf("bulk insert: %d records failed: %s", failed, e.Cause.Error())
}

func (e *BulkError) Unwrap() error { return e.Cause }

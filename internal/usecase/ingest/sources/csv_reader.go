package sources

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"unicode/utf8"

	"github.com/hankgalt/records-ingest/internal/domain/records"
	strutils "github.com/hankgalt/records-ingest/pkg/utils/string"
)

const (
	ERR_CSV_READ         = "csv: read"
	ERR_CSV_INVALID_UTF8 = "csv: invalid utf-8"
)

var (
	ErrCSVRead        = errors.New(ERR_CSV_READ)
	ErrCSVInvalidUTF8 = errors.New(ERR_CSV_INVALID_UTF8)
)

var _ records.RecordReader = (*csvRecordReader)(nil)

// csvRecordReader pulls one delimited line per Next call.
// The first line is the header; fields are keyed by cleaned header name.
type csvRecordReader struct {
	r       *csv.Reader
	headers []string
	rows    int64
}

// NewCSVRecordReader returns a pull reader over r. Reading is lazy,
// nothing is consumed from r until the first Next call.
func NewCSVRecordReader(r io.Reader, delimiter rune) *csvRecordReader {
	if delimiter == 0 {
		delimiter = records.DEFAULT_DELIMITER
	}
	cr := csv.NewReader(r)
	cr.Comma = delimiter
	cr.FieldsPerRecord = -1 // Allow variable number of fields per record

	return &csvRecordReader{
		r: cr,
	}
}

// Next returns the next data line as raw fields, io.EOF after the last one.
// Empty lines are skipped. Columns beyond the header are ignored.
func (c *csvRecordReader) Next(ctx context.Context) (records.RawFields, error) {
	// allow cancellation
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	if c.headers == nil {
		h, err := c.read()
		if err != nil {
			return nil, err
		}
		c.headers = strutils.CleanHeaders(h)
	}

	rec, err := c.read()
	if err != nil {
		return nil, err
	}
	c.rows++

	raw := make(records.RawFields, len(c.headers))
	for i, name := range c.headers {
		if name == "" || i >= len(rec) {
			continue
		}
		raw[name] = rec[i]
	}
	return raw, nil
}

// Rows returns the number of data lines read so far.
func (c *csvRecordReader) Rows() int64 { return c.rows }

func (c *csvRecordReader) read() ([]string, error) {
	rec, err := c.r.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, io.EOF
		}
		return nil, fmt.Errorf("%w: %w", ErrCSVRead, err)
	}

	for i, f := range rec {
		if !utf8.ValidString(f) {
			line, col := c.r.FieldPos(i)
			return nil, fmt.Errorf("%w: line %d, column %d", ErrCSVInvalidUTF8, line, col)
		}
	}
	return rec, nil
}

package ingest

import (
	"errors"
	"fmt"

	"github.com/hankgalt/records-ingest/internal/domain/records"
)

const ERR_ACCUMULATOR_FULL = "accumulator full, drain before appending"

var ErrAccumulatorFull = errors.New(ERR_ACCUMULATOR_FULL)

// Accumulator collects validated records into batches of at most size records.
// It never flushes on its own, the caller drains when Append reports ready.
type Accumulator struct {
	ingestID string
	size     int
	seq      uint
	recs     []records.Record
}

func NewAccumulator(ingestID string, size int) *Accumulator {
	if size <= 0 {
		size = records.DEFAULT_BATCH_SIZE
	}
	return &Accumulator{
		ingestID: ingestID,
		size:     size,
		recs:     make([]records.Record, 0, size),
	}
}

// Append adds rec and reports whether the batch reached capacity.
func (a *Accumulator) Append(rec records.Record) (bool, error) {
	if len(a.recs) >= a.size {
		return true, ErrAccumulatorFull
	}
	a.recs = append(a.recs, rec)
	return len(a.recs) == a.size, nil
}

// Drain hands over the current contents as a new batch and resets the accumulator.
// Returns nil when empty.
func (a *Accumulator) Drain() *records.Batch {
	if len(a.recs) == 0 {
		return nil
	}
	a.seq++
	b := &records.Batch{
		ID:      fmt.Sprintf("%s-%d", a.ingestID, a.seq),
		Seq:     a.seq,
		Records: a.recs,
	}
	// fresh backing array, the drained batch is owned by the flush
	a.recs = make([]records.Record, 0, a.size)
	return b
}

func (a *Accumulator) IsEmpty() bool { return len(a.recs) == 0 }

func (a *Accumulator) Len() int { return len(a.recs) }

func (a *Accumulator) Size() int { return a.size }

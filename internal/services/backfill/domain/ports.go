package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// RunnerPort is the public port exposed by the module
type RunnerPort interface {
	RunWindow(ctx context.Context, end time.Time, duration int) (Summary, error)
	Plan(end time.Time, duration int) []PlannedDay
}

// RecordSource returns the raw serialized records stored under a day key
type RecordSource interface {
	FetchDay(ctx context.Context, dayKey string) ([][]byte, error)
}

// IndexWriter provisions partitions and bulk writes records into them.
// CreatePartition on an existing partition succeeds
type IndexWriter interface {
	CreatePartition(ctx context.Context, name string) error
	BulkWrite(ctx context.Context, partition, recordType string, recs []Record, keyField string) error
}

// Decoder turns one raw payload into a Record
type Decoder interface {
	Decode(raw []byte) (Record, error)
}

// Normalizer rewrites record fields in place and reports how many changed
type Normalizer interface {
	Record(r Record) int
}

// LedgerRepo is the audit trail of processed days
type LedgerRepo interface {
	// StartDay opens (or reopens) the entry for day in run
	StartDay(ctx context.Context, runID uuid.UUID, day time.Time, partition string) error

	// FinishDay closes the entry for day in run
	FinishDay(ctx context.Context, runID uuid.UUID, day time.Time, fin DayFinish) error

	// Days lists the entries of run, newest day first
	Days(ctx context.Context, runID uuid.UUID) ([]DayEntry, error)
}

// Package domain holds the data structures and ports of the day backfill
package domain

import (
	"time"

	"github.com/google/uuid"
)

// Record is one decoded source row. Values keep their decoded representation:
// strings, json.Number, bool, nil, nested maps and slices
type Record = map[string]any

// Day statuses written to the ledger
const (
	StatusRunning   = "running"
	StatusOK        = "ok"
	StatusError     = "error"
	StatusCancelled = "cancelled"
)

// Stage names the step of a day that failed
type Stage string

// Day stages
const (
	StagePartition Stage = "partition"
	StageFetch     Stage = "fetch"
	StageWrite     Stage = "write"
)

// DayStats are the counters of one processed day
type DayStats struct {
	Fetched   int
	Discarded int
	Indexed   int
	Batches   int
	Attempts  int
}

// Add accumulates o into s
func (s *DayStats) Add(o DayStats) {
	s.Fetched += o.Fetched
	s.Discarded += o.Discarded
	s.Indexed += o.Indexed
	s.Batches += o.Batches
	s.Attempts += o.Attempts
}

// DayFinish closes a ledger entry
type DayFinish struct {
	Status string
	DayStats
	FetchMS   int
	WriteMS   int
	ElapsedMS int
	ErrText   string
}

// DayEntry is one ledger row as read back
type DayEntry struct {
	RunID      uuid.UUID
	Day        time.Time
	Partition  string
	Status     string
	Stats      DayStats
	ElapsedMS  int
	ErrText    string
	StartedAt  time.Time
	FinishedAt *time.Time
}

// Summary reports a whole run
type Summary struct {
	RunID    uuid.UUID
	End      time.Time
	Duration int
	DaysOK   int
	Failed   []string // day keys that failed
	DayStats
	Elapsed time.Duration
}

// DaysRun is the number of days the run finished, successfully or not
func (s Summary) DaysRun() int { return s.DaysOK + len(s.Failed) }

// PlannedDay is one day of a run plan
type PlannedDay struct {
	Day       time.Time
	Key       string
	Partition string
	HasIndex  bool
}

package service

import (
	"errors"
	"fmt"
	"time"

	"dayfill/internal/core/window"
	"dayfill/internal/services/backfill/domain"
)

// ErrDaysFailed is returned by RunWindow when at least one day failed.
// The joined *DayError values are reachable with errors.As
var ErrDaysFailed = errors.New("backfill: one or more days failed")

// DayError reports the day and stage that could not be completed
type DayError struct {
	Day   time.Time
	Stage domain.Stage
	Err   error
}

func (e *DayError) Error() string {
	return fmt.Sprintf("day %s %s: %v", window.DayKey(e.Day), e.Stage, e.Err)
}

func (e *DayError) Unwrap() error { return e.Err }

// DayErrors extracts every *DayError joined into err
func DayErrors(err error) []*DayError {
	var out []*DayError
	var walk func(error)
	walk = func(e error) {
		if e == nil {
			return
		}
		if de, ok := e.(*DayError); ok {
			out = append(out, de)
			return
		}
		switch u := e.(type) {
		case interface{ Unwrap() []error }:
			for _, x := range u.Unwrap() {
				walk(x)
			}
		case interface{ Unwrap() error }:
			walk(u.Unwrap())
		}
	}
	walk(err)
	return out
}

package model

import (
	"errors"
	"time"
)

// DateRange is an inclusive calendar date range. Start and End are expected
// to be midnight-truncated UTC times; Validate enforces ordering only.
type DateRange struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Validate checks that the range is well formed.
func (r DateRange) Validate() error {
	if r.Start.IsZero() || r.End.IsZero() {
		return errors.New("start and end dates are required")
	}
	if r.End.Before(r.Start) {
		return errors.New("end date must not be before start date")
	}
	return nil
}

// Days returns the number of calendar days the range covers, inclusive.
func (r DateRange) Days() int {
	return int(r.End.Sub(r.Start).Hours()/24) + 1
}

// Contains reports whether t falls inside the range (End is inclusive
// through the end of its day).
func (r DateRange) Contains(t time.Time) bool {
	return !t.Before(r.Start) && t.Before(r.End.AddDate(0, 0, 1))
}

// Chunks splits the range into consecutive sub-ranges of at most maxDays
// calendar days each. A maxDays <= 0 yields the whole range as one chunk.
func (r DateRange) Chunks(maxDays int) []DateRange {
	if maxDays <= 0 || r.Days() <= maxDays {
		return []DateRange{r}
	}

	var chunks []DateRange
	start := r.Start
	for !start.After(r.End) {
		end := start.AddDate(0, 0, maxDays-1)
		if end.After(r.End) {
			end = r.End
		}
		chunks = append(chunks, DateRange{Start: start, End: end})
		start = end.AddDate(0, 0, 1)
	}
	return chunks
}

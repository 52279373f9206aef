package domain

import (
	"errors"
	"fmt"
	"time"
)

// ErrFetchTimeout is returned when an aggregator request exceeds its deadline.
var ErrFetchTimeout = errors.New("fetch timed out")

// FetchHTTPError reports a non-200 response from the aggregator.
type FetchHTTPError struct {
	StatusCode int
}

func (e *FetchHTTPError) Error() string {
	return fmt.Sprintf("aggregator returned HTTP %d", e.StatusCode)
}

// Query selects what the aggregator should return: every sonde when Filter
// is empty, otherwise the sondes whose identifier contains Filter.
type Query struct {
	Filter string
}

// All reports whether the query selects every sonde.
func (q Query) All() bool {
	return q.Filter == ""
}

// CycleStatus describes the outcome of the most recent ingestion cycle.
type CycleStatus struct {
	CycleID    string    `json:"cycle_id"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
	OK         bool      `json:"ok"`
	Attempts   int       `json:"attempts"`
	Rows       int       `json:"rows"`
	Accepted   int       `json:"accepted"`
	Rejected   int       `json:"rejected"`
	Sondes     int       `json:"sondes"`
	Evicted    int       `json:"evicted"`
	Message    string    `json:"message"`
}

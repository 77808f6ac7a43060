// Package store persists run summaries and availability check results.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"
)

// ErrClosed is returned by operations on a closed store.
var ErrClosed = errors.New("store: closed")

// RunRecord is one finished load-test run.
type RunRecord struct {
	ID         string          `json:"id"`
	Scenario   string          `json:"scenario"`
	Target     string          `json:"target"`
	StartedAt  time.Time       `json:"started_at"`
	FinishedAt time.Time       `json:"finished_at"`
	Iterations int64           `json:"iterations"`
	Passed     bool            `json:"passed"`
	Summary    json.RawMessage `json:"summary,omitempty"`
}

// CheckRecord is one availability test case result.
type CheckRecord struct {
	ID        string    `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	TestName  string    `json:"test_name"`
	Status    string    `json:"status"`
	Duration  float64   `json:"duration"`
	Error     string    `json:"error,omitempty"`
	Steps     []string  `json:"steps"`
}

// Store is implemented by Memory and Postgres.
type Store interface {
	SaveRun(ctx context.Context, run RunRecord) error
	SaveCheck(ctx context.Context, check CheckRecord) error
	// RecentChecks returns up to n checks, newest first.
	RecentChecks(ctx context.Context, n int) ([]CheckRecord, error)
	// RecentRuns returns up to n runs, newest first.
	RecentRuns(ctx context.Context, n int) ([]RunRecord, error)
	Close() error
}

var (
	_ Store = (*Memory)(nil)
	_ Store = (*Postgres)(nil)
)

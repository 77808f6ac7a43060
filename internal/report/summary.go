// Package report builds the end-of-run summary and delivers it to stdout, a
// local file or an S3 bucket.
package report

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/FairForge/boutiqueload/internal/loadtest"
	"github.com/FairForge/boutiqueload/internal/metrics"
	"github.com/FairForge/boutiqueload/internal/probe"
	"github.com/FairForge/boutiqueload/internal/store"
	"github.com/FairForge/boutiqueload/internal/threshold"
)

// Run identifies the run a summary belongs to.
type Run struct {
	ID       string
	Scenario string
	Target   string
	Info     *loadtest.RunInfo
}

// ThresholdResult is the serialisable form of a threshold verdict.
type ThresholdResult struct {
	Metric     string  `json:"metric"`
	Expression string  `json:"expression"`
	Actual     float64 `json:"actual"`
	Passed     bool    `json:"passed"`
	Error      string  `json:"error,omitempty"`
}

// Summary is the complete result of one run.
type Summary struct {
	RunID       string                   `json:"run_id"`
	Scenario    string                   `json:"scenario"`
	Target      string                   `json:"target"`
	StartTime   time.Time                `json:"start_time"`
	EndTime     time.Time                `json:"end_time"`
	Duration    time.Duration            `json:"duration_ns"`
	Iterations  int64                    `json:"iterations"`
	Interrupted int64                    `json:"interrupted_iterations"`
	MaxVUs      int                      `json:"max_vus"`
	Aborted     bool                     `json:"aborted"`
	Checks      []probe.CheckCount       `json:"checks"`
	Metrics     []metrics.MetricSnapshot `json:"metrics"`
	Thresholds  []ThresholdResult        `json:"thresholds"`
	Passed      bool                     `json:"passed"`
}

// Build assembles a summary from a finished run.
func Build(run Run, reg *metrics.Registry, checks []probe.CheckCount, results []threshold.Result) *Summary {
	s := &Summary{
		RunID:    run.ID,
		Scenario: run.Scenario,
		Target:   run.Target,
		Checks:   checks,
		Passed:   threshold.AllPassed(results),
	}

	var elapsed time.Duration
	if info := run.Info; info != nil {
		s.StartTime = info.StartTime
		s.EndTime = info.EndTime
		s.Duration = info.Duration
		s.Iterations = info.Iterations
		s.Interrupted = info.Interrupted
		s.MaxVUs = info.MaxVUs
		s.Aborted = info.Aborted
		elapsed = info.Duration
	}
	s.Metrics = reg.Snapshot(elapsed)

	s.Thresholds = make([]ThresholdResult, 0, len(results))
	for _, r := range results {
		tr := ThresholdResult{
			Metric:     r.Threshold.Metric,
			Expression: r.Threshold.Source,
			Actual:     r.Actual,
			Passed:     r.Passed,
		}
		if r.Err != nil {
			tr.Error = r.Err.Error()
		}
		s.Thresholds = append(s.Thresholds, tr)
	}
	return s
}

// FailedThresholds returns the thresholds that did not pass.
func (s *Summary) FailedThresholds() []ThresholdResult {
	var out []ThresholdResult
	for _, t := range s.Thresholds {
		if !t.Passed {
			out = append(out, t)
		}
	}
	return out
}

// ExitCode is 0 for a passing run and 99 when a threshold failed.
func (s *Summary) ExitCode() int {
	if s.Passed {
		return 0
	}
	return ExitThresholdsFailed
}

// ExitThresholdsFailed is the process exit code for a threshold breach.
const ExitThresholdsFailed = 99

// Record converts the summary for persistence, embedding the full JSON.
func (s *Summary) Record() (store.RunRecord, error) {
	data, err := json.Marshal(s)
	if err != nil {
		return store.RunRecord{}, fmt.Errorf("report: encode summary: %w", err)
	}
	return store.RunRecord{
		ID:         s.RunID,
		Scenario:   s.Scenario,
		Target:     s.Target,
		StartedAt:  s.StartTime,
		FinishedAt: s.EndTime,
		Iterations: s.Iterations,
		Passed:     s.Passed,
		Summary:    data,
	}, nil
}

package availability

import (
	"sync"
	"time"
)

// Overall health values reported in Status.
const (
	HealthUnknown   = "unknown"
	HealthHealthy   = "healthy"
	HealthUnhealthy = "unhealthy"
)

// Status is the latest suite outcome as served by /api/status.
type Status struct {
	LastRun             *time.Time `json:"last_run"`
	Status              string     `json:"status"`
	TotalTests          int        `json:"total_tests"`
	PassedTests         int        `json:"passed_tests"`
	FailedTests         int        `json:"failed_tests"`
	TestDetails         []Result   `json:"test_details"`
	UptimePercentage    float64    `json:"uptime_percentage"`
	ConsecutiveFailures int        `json:"consecutive_failures"`
}

// Uptime is 100 after a passing run and loses ten points per consecutive
// failing run, bottoming out at zero.
func Uptime(consecutiveFailures int) float64 {
	if consecutiveFailures <= 0 {
		return 100
	}
	u := 100 - 10*float64(consecutiveFailures)
	if u < 0 {
		return 0
	}
	return u
}

// State holds the latest Status. It is safe for concurrent use.
type State struct {
	mu     sync.RWMutex
	status Status
}

func NewState() *State {
	return &State{status: Status{Status: HealthUnknown, TestDetails: []Result{}}}
}

// Record replaces the latest results. A run is healthy only when every case
// passed; any failing run extends the consecutive failure streak.
func (s *State) Record(at time.Time, results []Result) Status {
	passed := 0
	for _, r := range results {
		if r.Passed() {
			passed++
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.status.LastRun = &at
	s.status.TotalTests = len(results)
	s.status.PassedTests = passed
	s.status.FailedTests = len(results) - passed
	s.status.TestDetails = append([]Result(nil), results...)

	if len(results) > 0 && passed == len(results) {
		s.status.Status = HealthHealthy
		s.status.ConsecutiveFailures = 0
	} else {
		s.status.Status = HealthUnhealthy
		s.status.ConsecutiveFailures++
	}
	s.status.UptimePercentage = Uptime(s.status.ConsecutiveFailures)

	return s.copyLocked()
}

// Snapshot returns a copy of the latest Status.
func (s *State) Snapshot() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.copyLocked()
}

func (s *State) copyLocked() Status {
	out := s.status
	out.TestDetails = make([]Result, len(s.status.TestDetails))
	copy(out.TestDetails, s.status.TestDetails)
	if s.status.LastRun != nil {
		t := *s.status.LastRun
		out.LastRun = &t
	}
	return out
}

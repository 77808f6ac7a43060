// Package scenario holds the declarative description of a boutique load test:
// the virtual-user ramp, the probe steps of one iteration, and the run's
// pass/fail thresholds.
package scenario

import (
	"errors"
	"fmt"
	"math/rand"
	"slices"
	"strings"
	"time"

	"github.com/FairForge/boutiqueload/internal/metrics"
	"github.com/FairForge/boutiqueload/internal/threshold"
)

// DefaultTargetURL is used when TARGET_URL is not set.
const DefaultTargetURL = "http://frontend.online-boutique.svc.cluster.local"

// Defaults applied when a scenario leaves the field zero.
const (
	DefaultStartVUs         = 1
	DefaultGracefulRampDown = 30 * time.Second
	DefaultGracefulStop     = 30 * time.Second
)

// ErrInvalid is wrapped by every validation failure.
var ErrInvalid = errors.New("scenario: invalid")

// Stage ramps the virtual-user count linearly to Target over Duration.
type Stage struct {
	Duration time.Duration `json:"duration"`
	Target   int           `json:"target"`
}

// Sleep is a think-time policy. Min == Max means a fixed pause.
type Sleep struct {
	Min time.Duration `json:"min"`
	Max time.Duration `json:"max"`
}

// Fixed returns a constant sleep.
func Fixed(d time.Duration) Sleep { return Sleep{Min: d, Max: d} }

// Uniform returns a sleep drawn uniformly from [min, max).
func Uniform(min, max time.Duration) Sleep { return Sleep{Min: min, Max: max} }

// Draw picks a duration from the policy.
func (s Sleep) Draw(rng *rand.Rand) time.Duration {
	if s.Max <= s.Min {
		return s.Min
	}
	return s.Min + time.Duration(rng.Int63n(int64(s.Max-s.Min)))
}

func (s Sleep) String() string {
	if s.Max <= s.Min {
		return s.Min.String()
	}
	return fmt.Sprintf("%s-%s", s.Min, s.Max)
}

// Kind identifies which page a step requests.
type Kind string

const (
	KindHomepage Kind = "homepage"
	KindProduct  Kind = "product"
	KindHealth   Kind = "health"
)

// Layer is the tier a step's outcome is attributed to.
type Layer string

const (
	LayerFrontend Layer = "frontend"
	LayerBackend  Layer = "backend"
)

// ErrorMetric returns the rate metric the layer records into.
func (l Layer) ErrorMetric() string {
	if l == LayerBackend {
		return metrics.BackendErrors
	}
	return metrics.FrontendErrors
}

// Check is one named assertion on a response.
type Check struct {
	Name string `json:"name" yaml:"name"`
	// Statuses lists the accepted status codes. Empty accepts any status.
	Statuses []int `json:"statuses,omitempty" yaml:"statuses"`
	// NonEmptyBodyOn lists statuses that are only accepted with a body.
	NonEmptyBodyOn []int `json:"non_empty_body_on,omitempty" yaml:"non_empty_body_on"`
	// BodyContainsAny passes when the body contains at least one entry.
	BodyContainsAny []string `json:"body_contains_any,omitempty" yaml:"body_contains_any"`
}

// Evaluate applies the check to a response.
func (c Check) Evaluate(status int, body []byte) bool {
	if len(c.Statuses) > 0 && !slices.Contains(c.Statuses, status) {
		return false
	}
	if slices.Contains(c.NonEmptyBodyOn, status) && len(body) == 0 {
		return false
	}
	if len(c.BodyContainsAny) > 0 {
		text := string(body)
		for _, s := range c.BodyContainsAny {
			if strings.Contains(text, s) {
				return true
			}
		}
		return false
	}
	return true
}

// Step is one request of an iteration followed by a think-time pause.
type Step struct {
	Name       string  `json:"name"`
	Kind       Kind    `json:"kind"`
	Checks     []Check `json:"checks"`
	SleepAfter Sleep   `json:"sleep_after"`
}

// Layer returns the tier the step's outcome is recorded against.
func (s Step) Layer() Layer {
	if s.Kind == KindHealth {
		return LayerBackend
	}
	return LayerFrontend
}

// Gated reports whether the step only runs after a successful homepage.
func (s Step) Gated() bool {
	return s.Kind != KindHomepage
}

// Path returns the request path. productID is ignored unless Kind is product.
func (s Step) Path(productID string) string {
	switch s.Kind {
	case KindProduct:
		return "/product/" + productID
	case KindHealth:
		return "/_healthz"
	default:
		return "/"
	}
}

// Scenario describes one load profile.
type Scenario struct {
	Name             string              `json:"name"`
	Description      string              `json:"description"`
	Stages           []Stage             `json:"stages"`
	StartVUs         int                 `json:"start_vus"`
	GracefulRampDown time.Duration       `json:"graceful_ramp_down"`
	GracefulStop     time.Duration       `json:"graceful_stop"`
	Steps            []Step              `json:"steps"`
	Thresholds       map[string][]string `json:"thresholds"`
	// Verbose logs frontend connection failures and skipped backend checks.
	Verbose bool `json:"verbose"`
}

// TotalDuration is the sum of all stage durations.
func (s *Scenario) TotalDuration() time.Duration {
	var total time.Duration
	for _, st := range s.Stages {
		total += st.Duration
	}
	return total
}

// MaxVUs is the highest concurrency the ramp reaches.
func (s *Scenario) MaxVUs() int {
	max := s.StartVUs
	for _, st := range s.Stages {
		if st.Target > max {
			max = st.Target
		}
	}
	return max
}

// RegisterMetrics adds the scenario's error-rate metrics to reg.
func (s *Scenario) RegisterMetrics(reg *metrics.Registry) {
	reg.Rate(metrics.Errors)
	reg.Rate(metrics.FrontendErrors)
	reg.Rate(metrics.BackendErrors)
}

// ParsedThresholds parses the scenario's threshold table.
func (s *Scenario) ParsedThresholds() ([]*threshold.Threshold, error) {
	return threshold.ParseSet(s.Thresholds)
}

// ApplyDefaults fills zero-valued executor settings.
func (s *Scenario) ApplyDefaults() {
	if s.StartVUs == 0 {
		s.StartVUs = DefaultStartVUs
	}
	if s.GracefulRampDown == 0 {
		s.GracefulRampDown = DefaultGracefulRampDown
	}
	if s.GracefulStop == 0 {
		s.GracefulStop = DefaultGracefulStop
	}
}

// Validate checks the scenario is runnable and that every threshold refers to a
// metric the run defines.
func (s *Scenario) Validate() error {
	var errs []error
	fail := func(format string, args ...interface{}) {
		errs = append(errs, fmt.Errorf("%w: %s: %s", ErrInvalid, s.Name, fmt.Sprintf(format, args...)))
	}

	if s.Name == "" {
		fail("name is required")
	}
	if len(s.Stages) == 0 {
		fail("at least one stage is required")
	}
	if s.StartVUs < 0 {
		fail("start VUs cannot be negative")
	}
	for i, st := range s.Stages {
		if st.Duration < 0 {
			fail("stage %d: negative duration", i+1)
		}
		if st.Target < 0 {
			fail("stage %d: negative target", i+1)
		}
	}
	if s.TotalDuration() <= 0 && len(s.Stages) > 0 {
		fail("stages must last longer than zero")
	}

	if len(s.Steps) == 0 {
		fail("at least one step is required")
	} else if s.Steps[0].Kind != KindHomepage {
		fail("first step must be the homepage")
	}
	for i, step := range s.Steps {
		switch step.Kind {
		case KindHomepage:
			if i > 0 {
				fail("step %d: homepage may only be the first step", i+1)
			}
		case KindProduct, KindHealth:
		default:
			fail("step %d: unknown kind %q", i+1, step.Kind)
		}
		if len(step.Checks) == 0 {
			fail("step %d: at least one check is required", i+1)
		}
		for _, c := range step.Checks {
			if c.Name == "" {
				fail("step %d: check name is required", i+1)
			}
		}
		if step.SleepAfter.Min < 0 || step.SleepAfter.Max < 0 {
			fail("step %d: negative sleep", i+1)
		}
		if step.SleepAfter.Max < step.SleepAfter.Min {
			fail("step %d: sleep max below min", i+1)
		}
	}

	ths, err := s.ParsedThresholds()
	if err != nil {
		errs = append(errs, fmt.Errorf("%w: %s: %w", ErrInvalid, s.Name, err))
	} else {
		reg := metrics.NewRegistry()
		s.RegisterMetrics(reg)
		if err := threshold.ValidateRefs(ths, reg); err != nil {
			errs = append(errs, fmt.Errorf("%w: %s: %w", ErrInvalid, s.Name, err))
		}
	}

	return errors.Join(errs...)
}

// Clone returns a deep copy so callers can tweak a built-in table safely.
func (s *Scenario) Clone() *Scenario {
	out := *s
	out.Stages = slices.Clone(s.Stages)
	out.Steps = make([]Step, len(s.Steps))
	for i, st := range s.Steps {
		checks := make([]Check, len(st.Checks))
		for j, c := range st.Checks {
			c.Statuses = slices.Clone(c.Statuses)
			c.NonEmptyBodyOn = slices.Clone(c.NonEmptyBodyOn)
			c.BodyContainsAny = slices.Clone(c.BodyContainsAny)
			checks[j] = c
		}
		st.Checks = checks
		out.Steps[i] = st
	}
	out.Thresholds = make(map[string][]string, len(s.Thresholds))
	for k, v := range s.Thresholds {
		out.Thresholds[k] = slices.Clone(v)
	}
	return &out
}

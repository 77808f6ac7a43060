package scenario

import (
	_ "embed"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/xeipuuv/gojsonschema"
	"gopkg.in/yaml.v3"
)

//go:embed scenario.schema.json
var fileSchema string

// File is the on-disk form of a scenario file.
type File struct {
	Scenarios []FileScenario `yaml:"scenarios"`
}

// FileScenario describes one scenario. When Base names a built-in scenario,
// unset fields are inherited from it and thresholds are merged per metric.
type FileScenario struct {
	Name             string              `yaml:"name"`
	Base             string              `yaml:"base"`
	Description      string              `yaml:"description"`
	StartVUs         int                 `yaml:"start_vus"`
	GracefulRampDown Duration            `yaml:"graceful_ramp_down"`
	GracefulStop     Duration            `yaml:"graceful_stop"`
	Verbose          *bool               `yaml:"verbose"`
	Stages           []FileStage         `yaml:"stages"`
	Steps            []FileStep          `yaml:"steps"`
	Thresholds       map[string][]string `yaml:"thresholds"`
}

// FileStage is a stage with a human-readable duration.
type FileStage struct {
	Duration Duration `yaml:"duration"`
	Target   int      `yaml:"target"`
}

// FileStep is a step whose sleep may be a scalar or a {min, max} range.
type FileStep struct {
	Name   string    `yaml:"name"`
	Kind   Kind      `yaml:"kind"`
	Sleep  SleepSpec `yaml:"sleep"`
	Checks []Check   `yaml:"checks"`
}

// Duration decodes k6-style duration strings.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	v, err := ParseDuration(node.Value)
	if err != nil {
		return fmt.Errorf("line %d: %w", node.Line, err)
	}
	*d = Duration(v)
	return nil
}

// SleepSpec is either a fixed duration or a uniform range.
type SleepSpec struct {
	Sleep
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (s *SleepSpec) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.ScalarNode {
		var d Duration
		if err := node.Decode(&d); err != nil {
			return err
		}
		s.Sleep = Fixed(time.Duration(d))
		return nil
	}
	var r struct {
		Min Duration `yaml:"min"`
		Max Duration `yaml:"max"`
	}
	if err := node.Decode(&r); err != nil {
		return err
	}
	s.Sleep = Uniform(time.Duration(r.Min), time.Duration(r.Max))
	return nil
}

// ParseDuration accepts Go duration strings ("30s", "2m", "1h30m") and bare
// numbers, which are taken as milliseconds.
func ParseDuration(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("scenario: empty duration")
	}
	if ms, err := strconv.ParseInt(s, 10, 64); err == nil {
		if ms < 0 {
			return 0, fmt.Errorf("scenario: negative duration %q", s)
		}
		return time.Duration(ms) * time.Millisecond, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("scenario: invalid duration %q: %w", s, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("scenario: negative duration %q", s)
	}
	return d, nil
}

// ValidateSchema checks raw YAML against the embedded scenario file schema.
func ValidateSchema(data []byte) error {
	var doc interface{}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("scenario: parse yaml: %w", err)
	}
	if doc == nil {
		return fmt.Errorf("scenario: empty scenario file")
	}

	result, err := gojsonschema.Validate(
		gojsonschema.NewStringLoader(fileSchema),
		gojsonschema.NewGoLoader(doc),
	)
	if err != nil {
		return fmt.Errorf("scenario: schema validation error: %w", err)
	}
	if !result.Valid() {
		msgs := make([]string, 0, len(result.Errors()))
		for _, e := range result.Errors() {
			msgs = append(msgs, e.String())
		}
		return fmt.Errorf("%w: %s", ErrInvalid, strings.Join(msgs, "; "))
	}
	return nil
}

// Parse decodes and validates a scenario file.
func Parse(data []byte) ([]*Scenario, error) {
	if err := ValidateSchema(data); err != nil {
		return nil, err
	}

	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("scenario: decode: %w", err)
	}

	out := make([]*Scenario, 0, len(f.Scenarios))
	seen := make(map[string]bool, len(f.Scenarios))
	for _, fs := range f.Scenarios {
		if seen[fs.Name] {
			return nil, fmt.Errorf("%w: duplicate scenario %q", ErrInvalid, fs.Name)
		}
		seen[fs.Name] = true

		s, err := fs.build()
		if err != nil {
			return nil, err
		}
		if err := s.Validate(); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, nil
}

// LoadFile reads custom scenarios from a YAML file.
func LoadFile(path string) ([]*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("scenario: read %s: %w", path, err)
	}
	scenarios, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return scenarios, nil
}

// Resolve finds the scenario to run. Without a file it looks name up among
// the built-ins. With a file, an empty name selects the file's only scenario.
func Resolve(name, file string) (*Scenario, error) {
	if file == "" {
		return Lookup(name)
	}
	scenarios, err := LoadFile(file)
	if err != nil {
		return nil, err
	}
	if name == "" {
		if len(scenarios) != 1 {
			return nil, fmt.Errorf("scenario: %s defines %d scenarios, pick one by name", file, len(scenarios))
		}
		return scenarios[0], nil
	}
	names := make([]string, 0, len(scenarios))
	for _, s := range scenarios {
		if s.Name == name {
			return s, nil
		}
		names = append(names, s.Name)
	}
	return nil, fmt.Errorf("scenario: %s has no scenario %q (available: %v)", file, name, names)
}

func (fs FileScenario) build() (*Scenario, error) {
	s := &Scenario{Thresholds: map[string][]string{}}
	if fs.Base != "" {
		base, err := Lookup(fs.Base)
		if err != nil {
			return nil, err
		}
		s = base.Clone()
	}

	s.Name = fs.Name
	if fs.Description != "" {
		s.Description = fs.Description
	}
	if fs.StartVUs != 0 {
		s.StartVUs = fs.StartVUs
	}
	if fs.GracefulRampDown != 0 {
		s.GracefulRampDown = time.Duration(fs.GracefulRampDown)
	}
	if fs.GracefulStop != 0 {
		s.GracefulStop = time.Duration(fs.GracefulStop)
	}
	if fs.Verbose != nil {
		s.Verbose = *fs.Verbose
	}
	if len(fs.Stages) > 0 {
		s.Stages = make([]Stage, len(fs.Stages))
		for i, st := range fs.Stages {
			s.Stages[i] = Stage{Duration: time.Duration(st.Duration), Target: st.Target}
		}
	}
	if len(fs.Steps) > 0 {
		s.Steps = make([]Step, len(fs.Steps))
		for i, st := range fs.Steps {
			name := st.Name
			if name == "" {
				name = fmt.Sprintf("%s-%d", st.Kind, i+1)
			}
			s.Steps[i] = Step{Name: name, Kind: st.Kind, Checks: st.Checks, SleepAfter: st.Sleep.Sleep}
		}
	}
	for metric, exprs := range fs.Thresholds {
		s.Thresholds[metric] = exprs
	}

	s.ApplyDefaults()
	return s, nil
}

package scenario

import (
	"fmt"
	"sort"
	"time"
)

// Names of the built-in scenarios.
const (
	Smoke  = "smoke"
	Load   = "load"
	Spike  = "spike"
	Stress = "stress"
)

var homepageContent = []string{"product", "item", "Online Boutique"}

func stages(pairs ...interface{}) []Stage {
	out := make([]Stage, 0, len(pairs)/2)
	for i := 0; i+1 < len(pairs); i += 2 {
		out = append(out, Stage{Duration: pairs[i].(time.Duration), Target: pairs[i+1].(int)})
	}
	return out
}

func status(name string, codes ...int) Check {
	return Check{Name: name, Statuses: codes}
}

func hasProducts(name string) Check {
	return Check{Name: name, BodyContainsAny: homepageContent}
}

func productResponds(name string) Check {
	return Check{Name: name, Statuses: []int{200, 404}, NonEmptyBodyOn: []int{404}}
}

func newSmoke() *Scenario {
	return &Scenario{
		Name:        Smoke,
		Description: "Basic functionality check with a single virtual user",
		Stages: stages(
			time.Minute, 1,
			2*time.Minute, 1,
			time.Minute, 0,
		),
		Steps: []Step{
			{
				Name: "homepage",
				Kind: KindHomepage,
				Checks: []Check{
					status("frontend homepage status is 200", 200),
					hasProducts("frontend homepage has products"),
				},
				SleepAfter: Fixed(time.Second),
			},
			{
				Name: "product",
				Kind: KindProduct,
				Checks: []Check{
					status("frontend product page status is 200 or 404", 200, 404),
					productResponds("frontend product page loads"),
				},
				SleepAfter: Fixed(time.Second),
			},
			{
				Name: "health",
				Kind: KindHealth,
				Checks: []Check{
					status("backend health check status is 200", 200),
				},
				SleepAfter: Fixed(time.Second),
			},
		},
		Thresholds: map[string][]string{
			"http_req_duration": {"p(95)<2000"},
			"http_req_failed":   {"rate<0.01"},
			"errors":            {"rate<0.01"},
			"frontend_errors":   {"rate<0.10"},
			"backend_errors":    {"rate<0.05"},
		},
		Verbose: true,
	}
}

func newLoad() *Scenario {
	return &Scenario{
		Name:        Load,
		Description: "Expected production load, ramping to 100 virtual users",
		Stages: stages(
			2*time.Minute, 50,
			5*time.Minute, 50,
			2*time.Minute, 100,
			5*time.Minute, 100,
			2*time.Minute, 0,
		),
		Steps: []Step{
			{
				Name: "homepage",
				Kind: KindHomepage,
				Checks: []Check{
					status("frontend homepage loads", 200),
					hasProducts("frontend homepage has products"),
				},
				SleepAfter: Uniform(time.Second, 3*time.Second),
			},
			{
				Name: "product",
				Kind: KindProduct,
				Checks: []Check{
					status("frontend product page loads", 200, 404),
					productResponds("frontend product page responds"),
				},
				SleepAfter: Uniform(2*time.Second, 5*time.Second),
			},
			{
				Name: "health",
				Kind: KindHealth,
				Checks: []Check{
					status("backend health check works", 200),
				},
				SleepAfter: Uniform(time.Second, 3*time.Second),
			},
			{
				Name: "second-product",
				Kind: KindProduct,
				Checks: []Check{
					status("frontend second product page loads", 200, 404),
				},
				SleepAfter: Uniform(time.Second, 3*time.Second),
			},
		},
		Thresholds: map[string][]string{
			"http_req_duration": {"p(95)<3000", "p(99)<5000"},
			"http_req_failed":   {"rate<0.05"},
			"errors":            {"rate<0.05"},
			"frontend_errors":   {"rate<0.10"},
			"backend_errors":    {"rate<0.05"},
		},
	}
}

func newSpike() *Scenario {
	return &Scenario{
		Name:        Spike,
		Description: "Sudden traffic spikes to 500 and 1000 virtual users",
		Stages: stages(
			time.Minute, 10,
			30*time.Second, 500,
			time.Minute, 500,
			30*time.Second, 10,
			time.Minute, 10,
			30*time.Second, 1000,
			time.Minute, 1000,
			30*time.Second, 10,
			time.Minute, 0,
		),
		Steps: []Step{
			{
				Name: "homepage",
				Kind: KindHomepage,
				Checks: []Check{
					status("frontend homepage responds", 200, 503, 429),
				},
				SleepAfter: Fixed(200 * time.Millisecond),
			},
			{
				Name: "product",
				Kind: KindProduct,
				Checks: []Check{
					status("frontend product page responds", 200, 404, 503, 429),
				},
				SleepAfter: Fixed(200 * time.Millisecond),
			},
			{
				Name: "health",
				Kind: KindHealth,
				Checks: []Check{
					status("backend health check responds", 200, 503, 429),
				},
				SleepAfter: Fixed(200 * time.Millisecond),
			},
		},
		Thresholds: map[string][]string{
			"http_req_duration": {"p(95)<5000"},
			"http_req_failed":   {"rate<0.30"},
			"errors":            {"rate<0.30"},
			"frontend_errors":   {"rate<0.40"},
			"backend_errors":    {"rate<0.30"},
		},
	}
}

func newStress() *Scenario {
	return &Scenario{
		Name:        Stress,
		Description: "Stepwise climb to 500 virtual users to find the breaking point",
		Stages: stages(
			2*time.Minute, 100,
			5*time.Minute, 100,
			2*time.Minute, 200,
			5*time.Minute, 200,
			2*time.Minute, 300,
			5*time.Minute, 300,
			2*time.Minute, 400,
			5*time.Minute, 400,
			2*time.Minute, 500,
			5*time.Minute, 500,
			10*time.Minute, 0,
		),
		Steps: []Step{
			{
				Name: "homepage",
				Kind: KindHomepage,
				Checks: []Check{
					status("frontend homepage responds", 200, 503),
				},
				SleepAfter: Fixed(500 * time.Millisecond),
			},
			{
				Name: "product",
				Kind: KindProduct,
				Checks: []Check{
					status("frontend product page responds", 200, 404, 503),
				},
				SleepAfter: Fixed(500 * time.Millisecond),
			},
			{
				Name: "health",
				Kind: KindHealth,
				Checks: []Check{
					status("backend health check responds", 200, 503),
				},
				SleepAfter: Fixed(300 * time.Millisecond),
			},
			{
				Name: "second-product",
				Kind: KindProduct,
				Checks: []Check{
					status("frontend second product page responds", 200, 404, 503),
				},
				SleepAfter: Fixed(300 * time.Millisecond),
			},
		},
		Thresholds: map[string][]string{
			"http_req_duration": {"p(95)<10000"},
			"http_req_failed":   {"rate<0.20"},
			"errors":            {"rate<0.20"},
			"frontend_errors":   {"rate<0.30"},
			"backend_errors":    {"rate<0.20"},
		},
	}
}

var builtins = map[string]func() *Scenario{
	Smoke:  newSmoke,
	Load:   newLoad,
	Spike:  newSpike,
	Stress: newStress,
}

// Builtin returns fresh copies of the four built-in scenarios in escalating order.
func Builtin() []*Scenario {
	out := []*Scenario{newSmoke(), newLoad(), newSpike(), newStress()}
	for _, s := range out {
		s.ApplyDefaults()
	}
	return out
}

// BuiltinNames lists the built-in scenario names alphabetically.
func BuiltinNames() []string {
	names := make([]string, 0, len(builtins))
	for name := range builtins {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Lookup returns a fresh copy of a built-in scenario by name.
func Lookup(name string) (*Scenario, error) {
	ctor, ok := builtins[name]
	if !ok {
		return nil, fmt.Errorf("scenario: unknown scenario %q (available: %v)", name, BuiltinNames())
	}
	s := ctor()
	s.ApplyDefaults()
	return s, nil
}

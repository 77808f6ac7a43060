package scenario

import (
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuiltin_TotalDuration(t *testing.T) {
	want := map[string]time.Duration{
		Smoke:  4 * time.Minute,
		Load:   16 * time.Minute,
		Spike:  7 * time.Minute,
		Stress: 45 * time.Minute,
	}

	all := Builtin()
	require.Len(t, all, 4)
	for _, s := range all {
		t.Run(s.Name, func(t *testing.T) {
			assert.Equal(t, want[s.Name], s.TotalDuration())
		})
	}
}

func TestBuiltin_Validate(t *testing.T) {
	for _, s := range Builtin() {
		t.Run(s.Name, func(t *testing.T) {
			assert.NoError(t, s.Validate())
		})
	}
}

func TestBuiltin_Shape(t *testing.T) {
	tests := []struct {
		name     string
		maxVUs   int
		steps    int
		verbose  bool
		lastStep Kind
	}{
		{name: Smoke, maxVUs: 1, steps: 3, verbose: true, lastStep: KindHealth},
		{name: Load, maxVUs: 100, steps: 4, lastStep: KindProduct},
		{name: Spike, maxVUs: 1000, steps: 3, lastStep: KindHealth},
		{name: Stress, maxVUs: 500, steps: 4, lastStep: KindProduct},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := Lookup(tt.name)
			require.NoError(t, err)
			assert.Equal(t, tt.maxVUs, s.MaxVUs())
			assert.Len(t, s.Steps, tt.steps)
			assert.Equal(t, tt.verbose, s.Verbose)
			assert.Equal(t, tt.lastStep, s.Steps[len(s.Steps)-1].Kind)
			assert.Equal(t, DefaultStartVUs, s.StartVUs)
			assert.Equal(t, DefaultGracefulRampDown, s.GracefulRampDown)
			assert.Equal(t, DefaultGracefulStop, s.GracefulStop)
		})
	}
}

func TestLookup_Unknown(t *testing.T) {
	_, err := Lookup("soak")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "soak")
	assert.Equal(t, []string{Load, Smoke, Spike, Stress}, BuiltinNames())
}

func TestLookup_ReturnsIndependentCopies(t *testing.T) {
	a, err := Lookup(Load)
	require.NoError(t, err)
	b, err := Lookup(Load)
	require.NoError(t, err)

	a.Thresholds["errors"][0] = "rate<1"
	a.Steps[0].Checks[0].Statuses[0] = 500
	assert.Equal(t, "rate<0.05", b.Thresholds["errors"][0])
	assert.Equal(t, 200, b.Steps[0].Checks[0].Statuses[0])

	c := b.Clone()
	c.Steps[1].Checks[0].Statuses[0] = 418
	assert.Equal(t, 200, b.Steps[1].Checks[0].Statuses[0])
}

func TestValidate_Rejects(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(s *Scenario)
		want   string
	}{
		{"no stages", func(s *Scenario) { s.Stages = nil }, "at least one stage"},
		{"negative target", func(s *Scenario) { s.Stages[0].Target = -1 }, "negative target"},
		{"zero length", func(s *Scenario) {
			for i := range s.Stages {
				s.Stages[i].Duration = 0
			}
		}, "longer than zero"},
		{"no steps", func(s *Scenario) { s.Steps = nil }, "at least one step"},
		{"gated first step", func(s *Scenario) { s.Steps = s.Steps[1:] }, "first step must be the homepage"},
		{"homepage twice", func(s *Scenario) { s.Steps = append(s.Steps, s.Steps[0]) }, "homepage may only be the first step"},
		{"unknown kind", func(s *Scenario) { s.Steps[1].Kind = "checkout" }, "unknown kind"},
		{"inverted sleep", func(s *Scenario) { s.Steps[0].SleepAfter = Sleep{Min: time.Second, Max: time.Millisecond} }, "sleep max below min"},
		{"unparseable threshold", func(s *Scenario) { s.Thresholds["errors"] = []string{"p95<1"} }, "invalid expression"},
		{"undefined metric", func(s *Scenario) { s.Thresholds["checkout_errors"] = []string{"rate<0.1"} }, "unknown metric"},
		{"wrong aggregation", func(s *Scenario) { s.Thresholds["errors"] = []string{"p(95)<1"} }, "not valid for rate metric"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := Lookup(Load)
			require.NoError(t, err)
			tt.mutate(s)
			err = s.Validate()
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrInvalid)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestCheck_Evaluate(t *testing.T) {
	load, err := Lookup(Load)
	require.NoError(t, err)
	homepage := load.Steps[0].Checks
	product := load.Steps[1].Checks

	assert.True(t, homepage[0].Evaluate(200, nil))
	assert.False(t, homepage[0].Evaluate(503, nil))
	assert.True(t, homepage[1].Evaluate(200, []byte("<title>Online Boutique</title>")))
	assert.True(t, homepage[1].Evaluate(200, []byte("hot item")))
	assert.False(t, homepage[1].Evaluate(200, []byte("<html></html>")))

	assert.True(t, product[1].Evaluate(200, nil))
	assert.True(t, product[1].Evaluate(404, []byte("not found")))
	assert.False(t, product[1].Evaluate(404, nil))
	assert.False(t, product[1].Evaluate(500, []byte("boom")))

	assert.True(t, Check{Name: "any"}.Evaluate(0, nil))
}

func TestStep_Routing(t *testing.T) {
	s, err := Lookup(Stress)
	require.NoError(t, err)

	home, product, health := s.Steps[0], s.Steps[1], s.Steps[2]
	assert.Equal(t, "/", home.Path("ignored"))
	assert.Equal(t, "/product/OLJCESPC7Z", product.Path("OLJCESPC7Z"))
	assert.Equal(t, "/_healthz", health.Path(""))

	assert.False(t, home.Gated())
	assert.True(t, product.Gated())
	assert.True(t, health.Gated())

	assert.Equal(t, LayerFrontend, product.Layer())
	assert.Equal(t, LayerBackend, health.Layer())
	assert.Equal(t, "backend_errors", health.Layer().ErrorMetric())
	assert.Equal(t, "frontend_errors", home.Layer().ErrorMetric())
}

func TestSleep_Draw(t *testing.T) {
	rng := rand.New(rand.NewSource(7))

	fixed := Fixed(500 * time.Millisecond)
	assert.Equal(t, 500*time.Millisecond, fixed.Draw(rng))
	assert.Equal(t, "500ms", fixed.String())

	u := Uniform(2*time.Second, 5*time.Second)
	assert.Equal(t, "2s-5s", u.String())
	for i := 0; i < 1000; i++ {
		d := u.Draw(rng)
		assert.GreaterOrEqual(t, d, 2*time.Second)
		assert.Less(t, d, 5*time.Second)
	}
}

func TestCatalog(t *testing.T) {
	c := DefaultCatalog()
	assert.Equal(t, 5, c.Len())

	rng := rand.New(rand.NewSource(42))
	seen := make(map[string]int)
	for i := 0; i < 5000; i++ {
		id := c.Pick(rng)
		require.True(t, c.Contains(id), id)
		seen[id]++
	}
	assert.Len(t, seen, 5)
	assert.False(t, c.Contains("NOTINCATALOG"))

	ids := c.IDs()
	ids[0] = "mutated"
	assert.True(t, c.Contains("OLJCESPC7Z"))

	assert.Equal(t, "", NewCatalog(nil).Pick(rng))
}

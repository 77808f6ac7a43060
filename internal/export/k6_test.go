package export

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/FairForge/boutiqueload/internal/scenario"
)

func render(t *testing.T, name string) string {
	t.Helper()
	sc, err := scenario.Lookup(name)
	require.NoError(t, err)
	var buf bytes.Buffer
	require.NoError(t, K6Script(&buf, sc))
	return buf.String()
}

func TestK6Script_Load(t *testing.T) {
	out := render(t, scenario.Load)

	assert.Contains(t, out, "// k6 load test")
	assert.Contains(t, out, "{ duration: '2m', target: 50 },")
	assert.Contains(t, out, "{ duration: '5m', target: 100 },")
	assert.Contains(t, out, `http_req_duration: ["p(95)<3000","p(99)<5000"],`)
	assert.Contains(t, out, `backend_errors: ["rate<0.05"],`)
	assert.Contains(t, out, `const BASE_URL = __ENV.TARGET_URL || "http://frontend.online-boutique.svc.cluster.local";`)
	assert.Contains(t, out, `const PRODUCTS = ["OLJCESPC7Z","66VCHSJNUP","1YMWWN1N4O","L9ECAV7KIM","2ZYFJ3GM2N"];`)
	assert.Contains(t, out, `"frontend homepage loads": (r) => r.status === 200,`)
	assert.Contains(t, out, `"frontend product page responds": (r) => (r.status === 200 || r.status === 404) && (r.status !== 404 || r.body.length > 0),`)
	assert.Contains(t, out, "sleep(Math.random() * 3 + 2);")
	assert.Contains(t, out, "frontendWorking = success;")
	assert.Contains(t, out, "backendErrorRate.add(0);")
	assert.Equal(t, 3, strings.Count(out, "if (frontendWorking) {"), "product, health and second product are gated")
	assert.Equal(t, 4, strings.Count(out, "http.get("))
	assert.NotContains(t, out, "console.warn")
}

func TestK6Script_Smoke(t *testing.T) {
	out := render(t, scenario.Smoke)

	assert.Contains(t, out, "{ duration: '1m', target: 1 },")
	assert.Contains(t, out, "sleep(1);")
	assert.Contains(t, out, "console.warn('frontend connection failed');")
	assert.Equal(t, 3, strings.Count(out, "http.get("))
}

func TestK6Script_Spike(t *testing.T) {
	out := render(t, scenario.Spike)

	assert.Contains(t, out, "{ duration: '30s', target: 1000 },")
	assert.Contains(t, out, "sleep(0.2);")
	assert.Contains(t, out, "(r.status === 200 || r.status === 503 || r.status === 429)")
}

func TestK6ScriptWithOptions(t *testing.T) {
	sc, err := scenario.Lookup(scenario.Stress)
	require.NoError(t, err)

	var buf bytes.Buffer
	err = K6ScriptWithOptions(&buf, sc, Options{
		TargetURL: "http://localhost:8080",
		Catalog:   scenario.NewCatalog([]string{"ONLYONE"}),
	})
	require.NoError(t, err)
	assert.Contains(t, buf.String(), `"http://localhost:8080"`)
	assert.Contains(t, buf.String(), `const PRODUCTS = ["ONLYONE"];`)
}

func TestK6Script_InvalidScenario(t *testing.T) {
	sc, err := scenario.Lookup(scenario.Smoke)
	require.NoError(t, err)
	sc.Stages = nil

	var buf bytes.Buffer
	err = K6Script(&buf, sc)
	require.Error(t, err)
	assert.ErrorIs(t, err, scenario.ErrInvalid)
	assert.Zero(t, buf.Len())
}

func TestCheckExpr(t *testing.T) {
	tests := []struct {
		name  string
		check scenario.Check
		want  string
	}{
		{"no constraints", scenario.Check{Name: "any"}, "true"},
		{"single status", scenario.Check{Statuses: []int{200}}, "r.status === 200"},
		{"body", scenario.Check{BodyContainsAny: []string{"product", "item"}},
			`(r.body.includes("product") || r.body.includes("item"))`},
		{"non-empty only", scenario.Check{NonEmptyBodyOn: []int{404}}, "(r.status !== 404 || r.body.length > 0)"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CheckExpr(tt.check))
		})
	}
}

func TestK6Duration(t *testing.T) {
	tests := []struct {
		in   time.Duration
		want string
	}{
		{2 * time.Minute, "2m"},
		{30 * time.Second, "30s"},
		{90 * time.Second, "1m30s"},
		{time.Hour, "1h"},
		{time.Hour + 5*time.Minute, "1h5m"},
		{200 * time.Millisecond, "200ms"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, K6Duration(tt.in))
	}
}

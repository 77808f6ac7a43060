// Package export renders scenarios as standalone k6 scripts so a table defined
// here can still be run with the k6 binary.
package export

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"text/template"
	"time"

	sprig "github.com/go-task/slim-sprig/v3"

	"github.com/FairForge/boutiqueload/internal/scenario"
)

const scriptTemplate = `// k6 {{ .Name }} test
// {{ .Description }}
// Generated by boutiqueload; edit the scenario, not this file.
import http from 'k6/http';
import { check, sleep } from 'k6';
import { Rate } from 'k6/metrics';
import { textSummary } from 'https://jslib.k6.io/k6-summary/0.0.1/index.js';

const errorRate = new Rate('errors');
const frontendErrorRate = new Rate('frontend_errors');
const backendErrorRate = new Rate('backend_errors');

export const options = {
  stages: [
{{- range .Stages }}
    { duration: {{ k6duration .Duration | squote }}, target: {{ .Target }} },
{{- end }}
  ],
  thresholds: {
{{- range $metric := .Metrics }}
    {{ $metric }}: {{ index $.Thresholds $metric | js }},
{{- end }}
  },
};

const BASE_URL = __ENV.TARGET_URL || {{ .TargetURL | js }};
const PRODUCTS = {{ .Products | js }};

function pickProduct() {
  return PRODUCTS[Math.floor(Math.random() * PRODUCTS.length)];
}

export default function () {
  let frontendWorking = false;
{{- range .Steps }}

  // {{ .Name }}
  {{ if .Gated }}if (frontendWorking) {{ end }}{
    try {
      const response = http.get({{ .URL }});
      const success = check(response, {
{{- range .Checks }}
        {{ .Name | js }}: (r) => {{ .Expr }},
{{- end }}
      });
{{- if .Homepage }}
      frontendWorking = success;
{{- end }}
      {{ .RateVar }}.add(!success);
      errorRate.add(!success);
    } catch (error) {
      {{ .RateVar }}.add(1);
      errorRate.add(1);
    }
  }{{ if and .Gated .Health }} else {
    backendErrorRate.add(0);
  }{{ end }}
{{- if .Verbose }}{{ if .Homepage }}
  if (!frontendWorking) {
    console.warn('frontend connection failed');
  }{{ end }}{{ end }}
  {{ .Sleep }};
{{- end }}
}

export function handleSummary(data) {
  return {
    'stdout': textSummary(data, { indent: ' ', enableColors: true }),
  };
}
`

var script = template.Must(template.New("k6").Funcs(funcMap()).Parse(scriptTemplate))

func funcMap() template.FuncMap {
	funcs := sprig.TxtFuncMap()
	funcs["k6duration"] = K6Duration
	funcs["js"] = jsLiteral
	return funcs
}

// jsLiteral renders v as a JavaScript literal without HTML escaping.
func jsLiteral(v interface{}) (string, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return "", err
	}
	return strings.TrimSuffix(buf.String(), "\n"), nil
}

type checkView struct {
	Name string
	Expr string
}

type stepView struct {
	Name     string
	URL      string
	Checks   []checkView
	RateVar  string
	Sleep    string
	Gated    bool
	Homepage bool
	Health   bool
	Verbose  bool
}

type scriptView struct {
	Name        string
	Description string
	TargetURL   string
	Stages      []scenario.Stage
	Metrics     []string
	Thresholds  map[string][]string
	Products    []string
	Steps       []stepView
}

// Options tunes the generated script.
type Options struct {
	// TargetURL is the fallback when TARGET_URL is unset in k6's environment.
	TargetURL string
	Catalog   *scenario.Catalog
}

// K6Script writes a k6 script equivalent to sc.
func K6Script(w io.Writer, sc *scenario.Scenario) error {
	return K6ScriptWithOptions(w, sc, Options{})
}

// K6ScriptWithOptions is K6Script with an explicit target and catalog.
func K6ScriptWithOptions(w io.Writer, sc *scenario.Scenario, opts Options) error {
	if err := sc.Validate(); err != nil {
		return fmt.Errorf("export: %w", err)
	}
	if opts.TargetURL == "" {
		opts.TargetURL = scenario.DefaultTargetURL
	}
	if opts.Catalog == nil {
		opts.Catalog = scenario.DefaultCatalog()
	}

	view := scriptView{
		Name:        sc.Name,
		Description: sc.Description,
		TargetURL:   opts.TargetURL,
		Stages:      sc.Stages,
		Thresholds:  sc.Thresholds,
		Products:    opts.Catalog.IDs(),
	}
	for metric := range sc.Thresholds {
		view.Metrics = append(view.Metrics, metric)
	}
	sort.Strings(view.Metrics)

	for _, st := range sc.Steps {
		sv := stepView{
			Name:     st.Name,
			URL:      stepURL(st.Kind),
			RateVar:  "frontendErrorRate",
			Sleep:    sleepExpr(st.SleepAfter),
			Gated:    st.Gated(),
			Homepage: st.Kind == scenario.KindHomepage,
			Health:   st.Kind == scenario.KindHealth,
			Verbose:  sc.Verbose,
		}
		if st.Layer() == scenario.LayerBackend {
			sv.RateVar = "backendErrorRate"
		}
		for _, c := range st.Checks {
			sv.Checks = append(sv.Checks, checkView{Name: c.Name, Expr: CheckExpr(c)})
		}
		view.Steps = append(view.Steps, sv)
	}

	if err := script.Execute(w, view); err != nil {
		return fmt.Errorf("export: failed to execute template: %w", err)
	}
	return nil
}

func stepURL(kind scenario.Kind) string {
	switch kind {
	case scenario.KindProduct:
		return "`${BASE_URL}/product/${pickProduct()}`"
	case scenario.KindHealth:
		return "`${BASE_URL}/_healthz`"
	default:
		return "`${BASE_URL}/`"
	}
}

// CheckExpr renders a check as a JavaScript predicate over the response r.
func CheckExpr(c scenario.Check) string {
	var parts []string
	if len(c.Statuses) > 0 {
		parts = append(parts, anyOf(c.Statuses, func(code int) string {
			return "r.status === " + strconv.Itoa(code)
		}))
	}
	for _, code := range c.NonEmptyBodyOn {
		parts = append(parts, fmt.Sprintf("(r.status !== %d || r.body.length > 0)", code))
	}
	if len(c.BodyContainsAny) > 0 {
		parts = append(parts, anyOf(c.BodyContainsAny, func(s string) string {
			return "r.body.includes(" + strconv.Quote(s) + ")"
		}))
	}
	if len(parts) == 0 {
		return "true"
	}
	return strings.Join(parts, " && ")
}

func anyOf[T any](items []T, render func(T) string) string {
	terms := make([]string, len(items))
	for i, it := range items {
		terms[i] = render(it)
	}
	if len(terms) == 1 {
		return terms[0]
	}
	return "(" + strings.Join(terms, " || ") + ")"
}

func sleepExpr(s scenario.Sleep) string {
	if s.Max <= s.Min {
		return "sleep(" + seconds(s.Min) + ")"
	}
	return fmt.Sprintf("sleep(Math.random() * %s + %s)", seconds(s.Max-s.Min), seconds(s.Min))
}

func seconds(d time.Duration) string {
	return strconv.FormatFloat(d.Seconds(), 'f', -1, 64)
}

// K6Duration formats d the way k6 stage tables are usually written: "2m",
// "30s", "1m30s", "200ms".
func K6Duration(d time.Duration) string {
	if d < time.Second {
		return strconv.FormatInt(d.Milliseconds(), 10) + "ms"
	}
	s := d.String()
	if strings.HasSuffix(s, "m0s") {
		s = strings.TrimSuffix(s, "0s")
	}
	if strings.HasSuffix(s, "h0m") {
		s = strings.TrimSuffix(s, "0m")
	}
	return s
}

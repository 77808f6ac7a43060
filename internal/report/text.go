package report

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"

	"github.com/FairForge/boutiqueload/internal/metrics"
)

// Options controls text rendering.
type Options struct {
	Indent string
	Colors bool
}

// DefaultOptions mirrors the layout of a k6 text summary.
func DefaultOptions() Options {
	return Options{Indent: " ", Colors: true}
}

const nameWidth = 32

type palette struct {
	ok, fail, dim, bold *color.Color
}

func newPalette(enabled bool) palette {
	p := palette{
		ok:   color.New(color.FgGreen),
		fail: color.New(color.FgRed),
		dim:  color.New(color.Faint),
		bold: color.New(color.Bold),
	}
	for _, c := range []*color.Color{p.ok, p.fail, p.dim, p.bold} {
		if enabled {
			c.EnableColor()
		} else {
			c.DisableColor()
		}
	}
	return p
}

// WriteText renders the summary for a terminal.
func WriteText(w io.Writer, s *Summary, opts Options) error {
	p := newPalette(opts.Colors)
	ind := opts.Indent
	var b strings.Builder

	fmt.Fprintf(&b, "\n%s%s %s\n", ind, p.bold.Sprint("scenario:"), s.Scenario)
	fmt.Fprintf(&b, "%s%s %s\n", ind, p.bold.Sprint("target:  "), s.Target)
	if s.RunID != "" {
		fmt.Fprintf(&b, "%s%s %s\n", ind, p.bold.Sprint("run id:  "), s.RunID)
	}
	status := fmt.Sprintf("%d complete and %d interrupted iterations", s.Iterations, s.Interrupted)
	if s.Aborted {
		status += ", " + p.fail.Sprint("aborted")
	}
	fmt.Fprintf(&b, "%s%s %s, max %d VUs, %s\n\n", ind, p.bold.Sprint("run:     "),
		s.Duration.Round(time.Millisecond), s.MaxVUs, status)

	if len(s.Checks) > 0 {
		for _, c := range s.Checks {
			if c.Fails == 0 {
				fmt.Fprintf(&b, "%s    %s %s\n", ind, p.ok.Sprint("✓"), c.Name)
				continue
			}
			total := c.Passes + c.Fails
			fmt.Fprintf(&b, "%s    %s %s\n", ind, p.fail.Sprint("✗"), c.Name)
			fmt.Fprintf(&b, "%s     %s\n", ind, p.dim.Sprintf("↳  %d%% passed (✓ %d / ✗ %d)",
				c.Passes*100/total, c.Passes, c.Fails))
		}
		b.WriteString("\n")
	}

	failedMetrics := make(map[string]bool)
	for _, t := range s.Thresholds {
		if !t.Passed {
			failedMetrics[t.Metric] = true
		}
	}

	for _, m := range s.Metrics {
		marker := " "
		if hasThreshold(s, m.Name) {
			if failedMetrics[m.Name] {
				marker = p.fail.Sprint("✗")
			} else {
				marker = p.ok.Sprint("✓")
			}
		}
		dots := nameWidth - len(m.Name)
		if dots < 3 {
			dots = 3
		}
		fmt.Fprintf(&b, "%s  %s %s%s: %s\n", ind, marker, m.Name,
			p.dim.Sprint(strings.Repeat(".", dots)), formatValues(m))
	}

	if _, err := io.WriteString(w, b.String()); err != nil {
		return err
	}

	if len(s.Thresholds) > 0 {
		if _, err := fmt.Fprintf(w, "\n%sthresholds:\n", ind); err != nil {
			return err
		}
		writeThresholdTable(w, s, p)
	}

	verdict := p.ok.Sprint("PASSED")
	if !s.Passed {
		verdict = p.fail.Sprintf("FAILED (%d of %d thresholds crossed)", len(s.FailedThresholds()), len(s.Thresholds))
	}
	_, err := fmt.Fprintf(w, "\n%sresult: %s\n\n", ind, verdict)
	return err
}

func hasThreshold(s *Summary, metric string) bool {
	for _, t := range s.Thresholds {
		if t.Metric == metric {
			return true
		}
	}
	return false
}

func writeThresholdTable(w io.Writer, s *Summary, p palette) {
	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"Metric", "Threshold", "Actual", "Result"})
	table.SetAutoWrapText(false)
	table.SetBorder(false)
	table.SetAlignment(tablewriter.ALIGN_LEFT)

	for _, t := range s.Thresholds {
		result := p.ok.Sprint("pass")
		actual := formatActual(s, t)
		if !t.Passed {
			result = p.fail.Sprint("FAIL")
		}
		if t.Error != "" {
			actual = t.Error
		}
		table.Append([]string{t.Metric, t.Expression, actual, result})
	}
	table.Render()
}

func formatActual(s *Summary, t ThresholdResult) string {
	for _, m := range s.Metrics {
		if m.Name != t.Metric {
			continue
		}
		switch m.Kind {
		case metrics.KindTrend.String():
			if isTimeMetric(m.Name) {
				return formatMillis(t.Actual)
			}
		case metrics.KindRate.String():
			return formatPercent(t.Actual)
		}
	}
	return formatFloat(t.Actual)
}

func formatValues(m metrics.MetricSnapshot) string {
	v := m.Values
	switch m.Kind {
	case metrics.KindCounter.String():
		if m.Name == metrics.DataReceived {
			return fmt.Sprintf("%-10s %s/s", formatBytes(v[metrics.AggCount]), formatBytes(v[metrics.AggRate]))
		}
		return fmt.Sprintf("%-10s %.2f/s", formatFloat(v[metrics.AggCount]), v[metrics.AggRate])
	case metrics.KindRate.String():
		return fmt.Sprintf("%-7s ✓ %-6.0f ✗ %.0f", formatPercent(v[metrics.AggRate]), v["passes"], v["fails"])
	case metrics.KindGauge.String():
		return fmt.Sprintf("%-10s min=%s max=%s", formatFloat(v[metrics.AggValue]),
			formatFloat(v[metrics.AggMin]), formatFloat(v[metrics.AggMax]))
	case metrics.KindTrend.String():
		parts := make([]string, 0, len(metrics.SummaryAggregations))
		for _, agg := range metrics.SummaryAggregations {
			val := v[agg.String()]
			text := formatFloat(val)
			if isTimeMetric(m.Name) {
				text = formatMillis(val)
			}
			parts = append(parts, agg.String()+"="+text)
		}
		return strings.Join(parts, " ")
	}
	return ""
}

func isTimeMetric(name string) bool {
	return strings.HasSuffix(name, "duration")
}

func formatMillis(ms float64) string {
	d := time.Duration(ms * float64(time.Millisecond))
	switch {
	case d >= time.Minute:
		return d.Round(time.Second).String()
	case d >= time.Second:
		return fmt.Sprintf("%.2fs", d.Seconds())
	case d >= time.Millisecond:
		return fmt.Sprintf("%.2fms", ms)
	default:
		return fmt.Sprintf("%.2fµs", ms*1000)
	}
}

func formatPercent(v float64) string {
	return fmt.Sprintf("%.2f%%", v*100)
}

func formatFloat(v float64) string {
	if v == float64(int64(v)) {
		return fmt.Sprintf("%d", int64(v))
	}
	return fmt.Sprintf("%.2f", v)
}

// formatBytes formats bytes as human-readable string.
func formatBytes(f float64) string {
	b := int64(f)
	const unit = 1024
	if b < unit {
		return fmt.Sprintf("%d B", b)
	}
	div, exp := int64(unit), 0
	for n := b / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(b)/float64(div), "KMGTPE"[exp])
}

package availability

import (
	"html/template"
	"strconv"
	"time"
)

var dashboardFuncs = template.FuncMap{
	"when": func(t *time.Time) string {
		if t == nil {
			return "never"
		}
		return t.Format("2006-01-02 15:04:05")
	},
	"uptime": func(f float64) string {
		return strconv.FormatFloat(f, 'f', 1, 64) + "%"
	},
}

const dashboardHTML = `<!DOCTYPE html>
<html>
<head>
    <title>Boutique Availability</title>
    <meta http-equiv="refresh" content="30">
    <style>
        body { font-family: -apple-system, Helvetica, Arial, sans-serif; margin: 2em; color: #222; }
        .status { display: inline-block; padding: 4px 12px; border-radius: 4px; color: #fff; }
        .healthy { background: #2e7d32; }
        .unhealthy { background: #c62828; }
        .unknown { background: #757575; }
        table { border-collapse: collapse; margin-top: 1em; }
        td, th { border: 1px solid #ddd; padding: 6px 10px; text-align: left; }
        .passed { color: #2e7d32; }
        .failed { color: #c62828; }
        ul { margin: 0; padding-left: 1.2em; }
    </style>
</head>
<body>
    <h1>Boutique Availability</h1>
    <p>Status: <span class="status {{.Status}}">{{.Status}}</span></p>
    <table>
        <tr><th>Last run</th><td>{{when .LastRun}}</td></tr>
        <tr><th>Tests</th><td>{{.PassedTests}} passed / {{.FailedTests}} failed of {{.TotalTests}}</td></tr>
        <tr><th>Uptime</th><td>{{uptime .UptimePercentage}}</td></tr>
        <tr><th>Consecutive failures</th><td>{{.ConsecutiveFailures}}</td></tr>
    </table>
    {{range .TestDetails}}
    <h2>{{.TestName}} <span class="{{.Status}}">{{.Status}}</span></h2>
    <p>{{.Timestamp.Format "2006-01-02 15:04:05"}} &middot; {{.Duration}}s{{if .Error}} &middot; <span class="failed">{{.Error}}</span>{{end}}</p>
    <ul>
        {{range .Steps}}<li>{{.}}</li>
        {{end}}
    </ul>
    {{else}}
    <p>No test has run yet.</p>
    {{end}}
</body>
</html>`

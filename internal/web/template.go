package web

import (
	"fmt"
	"html/template"
	"io"
	"log"
	"time"

	"github.com/sweeney/logo-monitor/internal/logic"
	"github.com/sweeney/logo-monitor/internal/report"
	"github.com/sweeney/logo-monitor/internal/status"
)

var indexTmpl = template.Must(template.New("index").Funcs(template.FuncMap{
	"uptime": func(d time.Duration) string {
		d = d.Truncate(time.Second)
		days := int(d.Hours()) / 24
		h := int(d.Hours()) % 24
		m := int(d.Minutes()) % 60
		s := int(d.Seconds()) % 60
		if days > 0 {
			return fmt.Sprintf("%dd %dh %dm %ds", days, h, m, s)
		}
		if h > 0 {
			return fmt.Sprintf("%dh %dm %ds", h, m, s)
		}
		if m > 0 {
			return fmt.Sprintf("%dm %ds", m, s)
		}
		return fmt.Sprintf("%ds", s)
	},
	"stamp": func(t time.Time) string {
		if t.IsZero() {
			return "-"
		}
		return t.Format(report.TimeLayout)
	},
}).Parse(indexHTML))

const indexHTML = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<meta http-equiv="refresh" content="30">
<title>LOGO! Monitor</title>
<style>
body { font-family: monospace; max-width: 600px; margin: 2em auto; padding: 0 1em; }
h1 { font-size: 1.4em; }
table { border-collapse: collapse; width: 100%; margin: 1em 0; }
td, th { text-align: left; padding: 4px 8px; border-bottom: 1px solid #ddd; }
th { width: 40%; }
pre { background: #f6f6f6; padding: 8px; }
.ok { color: green; font-weight: bold; }
.fault { color: red; font-weight: bold; }
.unknown { color: orange; }
.connected { color: green; }
.disconnected { color: red; }
</style>
</head>
<body>
<h1>LOGO! Monitor</h1>

<h2>Plant</h2>
<table>
<tr><th>Confirmed</th><td id="confirmed" class="{{if .State.ConfirmedHealthy}}ok{{else}}fault{{end}}">{{if .State.ConfirmedHealthy}}healthy{{else}}fault{{end}}</td></tr>
<tr><th>Status</th><td class="{{.StatusClass}}">{{.Label}}</td></tr>
<tr><th>Power</th><td>{{if lt .State.Power 0.0}}unreadable{{else}}{{printf "%.2f" .State.Power}} kW{{end}}</td></tr>
<tr><th>Consecutive faults</th><td>{{.State.ConsecutiveFaults}}</td></tr>
<tr><th>Last sample</th><td>{{stamp .LastSampleAt}}</td></tr>
{{if .ProbeError}}<tr><th>Probe error</th><td class="fault">{{.ProbeError}}</td></tr>{{end}}
</table>

<pre>{{.Report}}</pre>

<h2>Connectivity</h2>
<table>
<tr><th>MQTT</th><td class="{{if .MQTTConnected}}connected{{else}}disconnected{{end}}">{{if .MQTTConnected}}connected{{else}}disconnected{{end}}</td></tr>
<tr><th>Broker</th><td>{{if .Config.Broker}}{{.Config.Broker}}{{else}}disabled{{end}}</td></tr>
<tr><th>Telegram recipients</th><td>{{.Recipients}}</td></tr>
</table>

<h2>Event Counts</h2>
<table>
<tr><th>Fault confirmed</th><td>{{.Counts.Faults}}</td></tr>
<tr><th>Recovery confirmed</th><td>{{.Counts.Recoveries}}</td></tr>
</table>

<h2>System</h2>
<table>
<tr><th>Uptime</th><td>{{uptime .Uptime}}</td></tr>
<tr><th>Started</th><td>{{.StartTime.UTC.Format "2006-01-02T15:04:05Z"}}</td></tr>
<tr><th>Probe</th><td>{{.Config.ProbeKind}}</td></tr>
<tr><th>Poll</th><td>{{.Config.PollMs}}ms (timeout {{.Config.ProbeTimeoutMs}}ms)</td></tr>
<tr><th>Healthy window</th><td>{{.Config.MinHealthyWindow}}ms</td></tr>
<tr><th>Fault threshold</th><td>{{.Config.FaultThreshold}}</td></tr>
<tr><th>Heartbeat</th><td>{{if eq .Config.HeartbeatMs 0}}disabled{{else}}{{.Config.HeartbeatMs}}ms{{end}}</td></tr>
<tr><th>HTTP</th><td>{{.Config.HTTPAddr}}</td></tr>
</table>

<p><a href="/index.json">JSON</a> · <a href="/metrics">Metrics</a></p>
</body>
</html>
`

func renderHTML(w io.Writer, snap status.Snapshot) {
	label := snap.State.Status
	if label == "" {
		label = logic.StatusUnknown
	}
	class := "unknown"
	switch label {
	case logic.StatusOK:
		class = "ok"
	case logic.StatusFault:
		class = "fault"
	}

	data := struct {
		status.Snapshot
		Uptime      time.Duration
		Label       logic.StatusLabel
		StatusClass string
		Report      string
	}{
		Snapshot:    snap,
		Uptime:      snap.Uptime(),
		Label:       label,
		StatusClass: class,
		Report:      report.Format(snap.State),
	}
	if err := indexTmpl.Execute(w, data); err != nil {
		log.Printf("web: render index: %v", err)
	}
}

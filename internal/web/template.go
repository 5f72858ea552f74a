package web

import (
	"fmt"
	"html/template"
	"io"
	"time"

	"github.com/sweeney/relay-agent/internal/logic"
	"github.com/sweeney/relay-agent/internal/status"
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
	"stateClass": func(s logic.State) string {
		switch s {
		case logic.StateOn:
			return "on"
		case logic.StateOff:
			return "off"
		default:
			return "unknown"
		}
	},
}).Parse(indexHTML))

const indexHTML = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<meta http-equiv="refresh" content="10">
<title>Relay Agent</title>
<style>
body { font-family: monospace; max-width: 600px; margin: 2em auto; padding: 0 1em; }
h1 { font-size: 1.4em; }
table { border-collapse: collapse; width: 100%; margin: 1em 0; }
td, th { text-align: left; padding: 4px 8px; border-bottom: 1px solid #ddd; }
th { width: 40%; }
.on { color: green; font-weight: bold; }
.off { color: #888; }
.unknown { color: orange; }
.connected { color: green; }
.disconnected { color: red; }
.failed { color: red; }
</style>
</head>
<body>
<h1>Relay Agent</h1>

<h2>Relays</h2>
<table>
<tr><th>Output</th><td>GPIO</td><td>Enabler</td><td>State</td></tr>
{{range .Relays}}<tr><th>{{.Index}}</th><td>{{if ge .Line 0}}{{.Line}}{{else}}-{{end}}</td><td>{{if .HasEnabler}}{{.Enabler}}{{end}}</td><td class="{{stateClass .State}}">{{.State}}</td></tr>
{{end}}</table>

<h2>Connectivity</h2>
<table>
<tr><th>MQTT</th><td class="{{if .MQTTConnected}}connected{{else}}disconnected{{end}}">{{.MQTTState}}</td></tr>
<tr><th>Broker</th><td>{{.Config.Broker}}</td></tr>
<tr><th>Client ID</th><td>{{.Config.ClientID}}</td></tr>
<tr><th>Topic prefix</th><td>{{.Config.TopicPrefix}}</td></tr>
{{if .Network}}<tr><th>Network</th><td>{{.Network.Status}} ({{.Network.Type}}{{if .Network.SSID}}, {{.Network.SSID}}{{end}})</td></tr>
<tr><th>IP</th><td>{{.Network.IP}}</td></tr>{{end}}
</table>

<h2>Commands</h2>
<table>
<tr><th>Success</th><td>{{.Counts.Success}}</td></tr>
<tr><th>Failed</th><td>{{.Counts.Failed}}</td></tr>
<tr><th>Undecodable</th><td>{{.Counts.DecodeFailed}}</td></tr>
<tr><th>Transitions</th><td>{{.Counts.Transitions}}</td></tr>
{{with .LastCommand}}<tr><th>Last</th><td class="{{.Status}}">{{.ID}} {{.Channel}} {{.Status}}{{if .Error}}: {{.Error}}{{end}} at {{.At.UTC.Format "2006-01-02T15:04:05Z"}}</td></tr>{{end}}
</table>

<h2>System</h2>
<table>
<tr><th>Uptime</th><td>{{uptime .Uptime}}</td></tr>
<tr><th>Started</th><td>{{.StartTime.UTC.Format "2006-01-02T15:04:05Z"}}</td></tr>
<tr><th>Payload format</th><td>{{.Config.PayloadFormat}}</td></tr>
<tr><th>Heartbeat</th><td>{{if eq .Config.HeartbeatMs 0}}disabled{{else}}{{.Config.HeartbeatMs}}ms{{end}}</td></tr>
<tr><th>HTTP</th><td>{{.Config.HTTPAddr}}</td></tr>
</table>

<p><a href="/index.json">JSON</a></p>
</body>
</html>
`

type relayRow struct {
	Index      int
	Line       int
	State      logic.State
	Enabler    int
	HasEnabler bool
}

func relayRows(snap status.Snapshot) []relayRow {
	enablers := make(map[int]int, len(snap.Config.Interlocks))
	for _, r := range snap.Config.Interlocks {
		enablers[r.Dependent] = r.Enabler
	}

	rows := make([]relayRow, len(snap.Relays))
	for i, s := range snap.Relays {
		rows[i] = relayRow{Index: i, Line: -1, State: s}
		if i < len(snap.Config.Lines) {
			rows[i].Line = snap.Config.Lines[i]
		}
		rows[i].Enabler, rows[i].HasEnabler = enablers[i]
	}
	return rows
}

func renderHTML(w io.Writer, snap status.Snapshot) {
	// Snapshot has Uptime() method but template needs a Duration field.
	data := struct {
		status.Snapshot
		Uptime time.Duration
		Relays []relayRow
	}{
		Snapshot: snap,
		Uptime:   snap.Uptime(),
		Relays:   relayRows(snap),
	}
	indexTmpl.Execute(w, data)
}

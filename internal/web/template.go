package web

import (
	"fmt"
	"html/template"
	"io"
	"time"

	"github.com/yves-gaignard/poolmanager/internal/status"
)

var indexTmpl = template.Must(template.New("index").Funcs(template.FuncMap{
	"uptime": formatDuration,
	"fill": func(f float64) string {
		return fmt.Sprintf("%.1f%%", f)
	},
	"limit": func(d time.Duration) string {
		if d <= 0 {
			return "none"
		}
		return formatDuration(d)
	},
}).Parse(indexHTML))

func formatDuration(d time.Duration) string {
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
}

const indexHTML = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>Pool Manager</title>
<style>
body { font-family: monospace; max-width: 760px; margin: 2em auto; padding: 0 1em; }
h1 { font-size: 1.4em; }
table { border-collapse: collapse; width: 100%; margin: 1em 0; }
td, th { text-align: left; padding: 4px 8px; border-bottom: 1px solid #ddd; }
.on { color: green; font-weight: bold; }
.off { color: #888; }
.fault { color: red; font-weight: bold; }
.connected { color: green; }
.disconnected { color: red; }
.live-dot { display: inline-block; width: 8px; height: 8px; border-radius: 50%; margin-left: 6px; vertical-align: middle; background: orange; }
.live-dot.ok { background: green; }
.live-dot.err { background: red; }
</style>
</head>
<body>
<h1>Pool Manager<span id="live-dot" class="live-dot" title="connecting"></span></h1>

<p id="today">{{if not .Date.IsZero}}{{.Date.Weekday}} {{.Date.String}}(week {{.Date.Week}}){{else}}date unknown{{end}}</p>

<h2>Pumps</h2>
<table>
<tr><th>Pump</th><th>State</th><th>Uptime</th><th>Limit</th><th>Tank</th><th>Interlock</th></tr>
{{range .Pumps}}<tr>
<td>{{.Name}}</td>
<td id="pump-{{.Name}}-state" class="{{if .UpTimeError}}fault{{else if .Running}}on{{else}}off{{end}}">{{if .UpTimeError}}FAULT{{else if .Running}}ON{{else}}OFF{{end}}</td>
<td id="pump-{{.Name}}-uptime">{{uptime .UpTime}}</td>
<td>{{limit .CurrentMaxUpTime}}</td>
<td id="pump-{{.Name}}-tank" class="{{if .TankLevel}}on{{else}}fault{{end}}">{{fill .TankFill}}</td>
<td>{{if .Interlock}}closed{{else}}<span class="fault">open</span>{{end}}</td>
</tr>
{{else}}<tr><td colspan="6">no pump configured</td></tr>
{{end}}</table>

<h2>Filtration</h2>
<table>
<tr><th>Window</th><td>{{if .Config.Filtration}}{{.Config.Filtration}}{{else}}disabled{{end}}</td></tr>
<tr><th>Open now</th><td>{{if .FiltrationWanted}}yes{{else}}no{{end}}</td></tr>
</table>

<h2>Connectivity</h2>
<table>
<tr><th>MQTT</th><td class="{{if .MQTTConnected}}connected{{else}}disconnected{{end}}">{{if .MQTTConnected}}connected{{else}}disconnected{{end}}</td></tr>
<tr><th>Broker</th><td>{{.Config.Broker}}</td></tr>
</table>

<h2>Event Counts</h2>
<table>
<tr><th>Pump on</th><td>{{.Counts.PumpOn}}</td></tr>
<tr><th>Pump off</th><td>{{.Counts.PumpOff}}</td></tr>
<tr><th>Uptime fault</th><td>{{.Counts.UpTimeFault}}</td></tr>
<tr><th>Fault cleared</th><td>{{.Counts.FaultCleared}}</td></tr>
<tr><th>Tank low</th><td>{{.Counts.TankLow}}</td></tr>
<tr><th>Tank refilled</th><td>{{.Counts.TankOK}}</td></tr>
</table>

<h2>System</h2>
<table>
<tr><th>Uptime</th><td>{{uptime .Uptime}}</td></tr>
<tr><th>Started</th><td>{{.StartTime.UTC.Format "2006-01-02T15:04:05Z"}}</td></tr>
<tr><th>Poll</th><td>{{.Config.PollMs}}ms</td></tr>
<tr><th>Heartbeat</th><td>{{if eq .Config.HeartbeatMs 0}}disabled{{else}}{{.Config.HeartbeatMs}}ms{{end}}</td></tr>
<tr><th>Date format</th><td>{{.Config.DateFormat}}</td></tr>
<tr><th>HTTP</th><td>{{.Config.HTTPAddr}}</td></tr>
</table>

<p><a href="/index.json">JSON</a> | <a href="/events.json">Events</a></p>
<script>
(function() {
  var dot = document.getElementById("live-dot");
  function setDot(cls, title) { dot.className = "live-dot " + cls; dot.title = title; }
  function fmt(s) {
    var h = Math.floor(s / 3600), m = Math.floor(s % 3600 / 60);
    return h > 0 ? h + "h " + m + "m " + (s % 60) + "s" : m > 0 ? m + "m " + (s % 60) + "s" : s + "s";
  }
  function connect() {
    var ws = new WebSocket((location.protocol === "https:" ? "wss://" : "ws://") + location.host + "/ws");
    ws.onopen = function() { setDot("ok", "live"); };
    ws.onclose = function() { setDot("err", "offline"); setTimeout(connect, 5000); };
    ws.onmessage = function(ev) {
      try {
        var st = JSON.parse(ev.data).status;
        (st.pumps || []).forEach(function(p) {
          var el = document.getElementById("pump-" + p.name + "-state");
          if (el) {
            el.textContent = p.uptime_error ? "FAULT" : p.running ? "ON" : "OFF";
            el.className = p.uptime_error ? "fault" : p.running ? "on" : "off";
          }
          el = document.getElementById("pump-" + p.name + "-uptime");
          if (el) { el.textContent = fmt(p.uptime_seconds); }
          el = document.getElementById("pump-" + p.name + "-tank");
          if (el) {
            el.textContent = p.tank_fill.toFixed(1) + "%";
            el.className = p.tank_level === "OK" ? "on" : "fault";
          }
        });
      } catch (e) {}
    };
  }
  connect();
})();
</script>
</body>
</html>
`

func renderHTML(w io.Writer, snap status.Snapshot) error {
	// Snapshot has an Uptime method but the template needs a value.
	data := struct {
		status.Snapshot
		Uptime time.Duration
	}{
		Snapshot: snap,
		Uptime:   snap.Uptime(),
	}
	return indexTmpl.Execute(w, data)
}

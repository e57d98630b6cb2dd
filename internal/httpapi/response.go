package httpapi

import (
	"encoding/json"
	"net/http"
)

type errorResponse struct {
	OK      bool   `json:"ok"`
	Error   string `json:"error"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, msg string) {
	writeJSON(w, status, errorResponse{OK: false, Error: code, Message: msg})
}

func writeHTML(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(body))
}

const clearedPage = `<!DOCTYPE html>
<html><head><title>Portunus</title></head>
<body><h1>Log Cleared</h1><p><a href="/">Back</a></p></body></html>
`

const dashboardPage = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>Portunus</title>
<style>
body { font-family: sans-serif; margin: 2em; }
table { border-collapse: collapse; }
td, th { border: 1px solid #ccc; padding: 4px 8px; }
</style>
</head>
<body>
<h1>Portunus</h1>
<p>Clock: <span id="clock"></span></p>
<p>Business hours: <span id="business"></span></p>
<p>Mode: <span id="mode"></span></p>
<p>Alarm: <span id="alarm"></span></p>
<p>
<a href="/force-after-hours">Force after-hours</a> |
<a href="/disable-after-hours">Disable after-hours</a> |
<a href="/reset-overrides">Reset overrides</a> |
<a href="/stop-alarm">Stop alarm</a> |
<a href="/clear">Clear log</a> |
<a href="/log.csv">Download CSV</a> |
<a href="/log.xlsx">Download XLSX</a>
</p>
<table><thead><tr><th>Time</th><th>Event</th></tr></thead><tbody id="events"></tbody></table>
<script>
function refresh() {
  fetch('/status').then(r => r.json()).then(s => {
    document.getElementById('clock').textContent = s.clock;
    document.getElementById('business').textContent = s.business;
    document.getElementById('mode').textContent = s.mode;
    document.getElementById('alarm').textContent = s.alarm_active ? 'ACTIVE' : 'off';
    const body = document.getElementById('events');
    body.innerHTML = '';
    for (const [ts, kind] of s.events) {
      const tr = document.createElement('tr');
      tr.innerHTML = '<td></td><td></td>';
      tr.children[0].textContent = ts;
      tr.children[1].textContent = kind;
      body.appendChild(tr);
    }
  });
}
refresh();
setInterval(refresh, 1000);
</script>
</body>
</html>
`

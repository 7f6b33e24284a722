package reporting

import (
	"fmt"
	"html/template"
	"os"
	"path/filepath"
	"time"

	"netsniff/internal/analysis"
)

var reportTmpl = template.Must(template.New("report").Funcs(template.FuncMap{
	"bytes":   analysis.FormatBytes,
	"rate":    analysis.FormatRate,
	"clock":   func(t time.Time) string { return t.Format("15:04:05") },
	"percent": func(f float64) string { return fmt.Sprintf("%.1f%%", f) },
}).Parse(`<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="UTF-8">
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <title>netsniff Session Report - {{.Stamp}}</title>
    <style>
        body { font-family: sans-serif; margin: 20px; color: #333; }
        h1, h2 { color: #2c3e50; }
        table { width: 100%; border-collapse: collapse; margin-bottom: 20px; }
        th, td { border: 1px solid #ddd; padding: 8px; text-align: left; }
        th { background-color: #f2f2f2; }
        tr:nth-child(even) { background-color: #f9f9f9; }
        .summary { background: #eef; padding: 15px; border-radius: 5px; margin-bottom: 20px; }
        .alert { color: #d9534f; font-weight: bold; }
    </style>
</head>
<body>
    <h1>netsniff Session Report</h1>
    <div class="summary">
        <p><strong>Date:</strong> {{.Date}}</p>
        <p><strong>Source:</strong> {{.Source}}</p>
        {{- if .RunID}}
        <p><strong>Run:</strong> {{.RunID}}</p>
        {{- end}}
        <p><strong>Duration:</strong> {{.Duration}}</p>
        <p><strong>Total Packets:</strong> {{.Snap.TotalPackets}}</p>
        <p><strong>Total Data Transferred:</strong> {{bytes .Snap.TotalBytes}}</p>
        <p><strong>Peak Rate:</strong> {{rate .Snap.PeakBytesPerSec}}</p>
    </div>

    <h2>Application Distribution</h2>
    <table>
        <thead>
            <tr><th>Application</th><th>Packets</th><th>Bytes</th><th>Share</th></tr>
        </thead>
        <tbody>
        {{- range .Snap.Apps}}
            <tr><td>{{.App}}</td><td>{{.Packets}}</td><td>{{bytes .Bytes}}</td><td>{{percent .Percent}}</td></tr>
        {{- end}}
        </tbody>
    </table>

    <h2>Top Talkers</h2>
    <table>
        <thead>
            <tr><th>Conversation</th><th>Packets</th><th>Data Transferred</th></tr>
        </thead>
        <tbody>
        {{- range .Snap.TopTalkers}}
            <tr><td>{{.Key}}</td><td>{{.Packets}}</td><td>{{bytes .Bytes}}</td></tr>
        {{- else}}
            <tr><td colspan="3">No IP traffic captured.</td></tr>
        {{- end}}
        </tbody>
    </table>

    <h2>Top Ports</h2>
    <table>
        <thead>
            <tr><th>Port</th><th>Service</th><th>Packets</th><th>Data Transferred</th></tr>
        </thead>
        <tbody>
        {{- range .Snap.TopPorts}}
            <tr><td>{{.Port}}</td><td>{{.Service}}</td><td>{{.Packets}}</td><td>{{bytes .Bytes}}</td></tr>
        {{- else}}
            <tr><td colspan="4">No TCP or UDP traffic captured.</td></tr>
        {{- end}}
        </tbody>
    </table>

    <h2>Packet Sizes</h2>
    <table>
        <thead>
            <tr><th>&lt; 100 B</th><th>100-499 B</th><th>&gt;= 500 B</th></tr>
        </thead>
        <tbody>
            <tr><td>{{.Snap.Sizes.Small}}</td><td>{{.Snap.Sizes.Medium}}</td><td>{{.Snap.Sizes.Large}}</td></tr>
        </tbody>
    </table>

    <h2>Security Alerts</h2>
    <table>
        <thead>
            <tr><th>Time</th><th>Type</th><th>Source</th><th>Message</th></tr>
        </thead>
        <tbody>
        {{- range .Snap.Alerts}}
            <tr><td>{{clock .Timestamp}}</td><td class="alert">{{.Type}}</td><td>{{.Source}}</td><td>{{.Message}}</td></tr>
        {{- else}}
            <tr><td colspan="4">No alerts triggered during this session.</td></tr>
        {{- end}}
        </tbody>
    </table>

    <h2>DNS Lookups</h2>
    <table>
        <thead>
            <tr><th>Hostname</th><th>Lookups</th></tr>
        </thead>
        <tbody>
        {{- range .Snap.Hosts}}
            <tr><td>{{.Name}}</td><td>{{.Lookups}}</td></tr>
        {{- else}}
            <tr><td colspan="2">No domains captured.</td></tr>
        {{- end}}
        </tbody>
    </table>
</body>
</html>
`))

type reportData struct {
	Stamp    string
	Date     string
	Source   string
	RunID    string
	Duration time.Duration
	Snap     *analysis.Snapshot
}

// GenerateSessionReport writes an HTML report of the session. When path names a
// directory, the file is created inside it as report_<timestamp>.html.
// It returns the path written.
func GenerateSessionReport(path string, s Summary) (string, error) {
	now := time.Now()
	if s.Snapshot != nil && !s.Snapshot.TakenAt.IsZero() {
		now = s.Snapshot.TakenAt
	}
	stamp := now.Format("20060102_150405")

	if info, err := os.Stat(path); err == nil && info.IsDir() {
		path = filepath.Join(path, fmt.Sprintf("report_%s.html", stamp))
	}

	snap := s.Snapshot
	if snap == nil {
		snap = &analysis.Snapshot{}
	}

	file, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("create report: %w", err)
	}
	defer file.Close()

	err = reportTmpl.Execute(file, reportData{
		Stamp:    stamp,
		Date:     now.Format(time.RFC1123),
		Source:   s.Source,
		RunID:    s.RunID,
		Duration: s.duration().Truncate(time.Millisecond),
		Snap:     snap,
	})
	if err != nil {
		return "", fmt.Errorf("write report %s: %w", path, err)
	}
	return path, file.Close()
}

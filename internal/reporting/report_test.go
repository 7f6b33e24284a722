package reporting

import (
	"bytes"
	"errors"
	"net/netip"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/pterm/pterm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"netsniff/internal/analysis"
	"netsniff/internal/models"
	"netsniff/internal/pipeline"
)

var start = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func packet(src, dst string, n int, app models.App, host string) models.Record {
	return models.Record{
		Packet: &models.DecodedPacket{
			Length:    n,
			Network:   &models.NetworkLayer{Version: 4, SrcIP: netip.MustParseAddr(src), DstIP: netip.MustParseAddr(dst), Protocol: 17},
			Transport: &models.UDP{SrcPort: 40000, DstPort: 53},
			Hostname:  host,
		},
		Class: models.Classification{App: app},
	}
}

func sessionSummary() Summary {
	now := start
	cfg := analysis.DefaultStatsConfig()
	cfg.Clock = func() time.Time { return now }
	agg := analysis.NewAggregator(cfg)

	agg.Observe(packet("192.168.1.10", "1.1.1.1", 500, models.AppHTTPS, ""))
	agg.Observe(packet("192.168.1.10", "8.8.8.8", 300, models.AppDNS, "example.com"))
	agg.Observe(packet("192.168.1.10", "8.8.8.8", 200, models.AppDNS, "<script>alert(1)</script>"))
	agg.Publish()
	now = now.Add(10 * time.Second)

	return Summary{
		Source:   "eth0",
		RunID:    "run-42",
		Snapshot: agg.Publish(),
		Report: pipeline.Report{
			Frames:         3,
			Matched:        3,
			Reason:         pipeline.StopLimit,
			StartedAt:      start,
			FinishedAt:     start.Add(10 * time.Second),
			Drops:          map[string]uint64{"stats": 0, "export-json": 7},
			ConsumerErrors: map[string]error{"export-json": errors.New("disk full")},
		},
	}
}

func TestGenerateSessionReport(t *testing.T) {
	dir := t.TempDir()

	filename, err := GenerateSessionReport(dir, sessionSummary())
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "report_20240301_120010.html"), filename)

	content, err := os.ReadFile(filename)
	require.NoError(t, err)
	html := string(content)

	for _, want := range []string{
		"netsniff Session Report",
		"run-42",
		"example.com",
		"192.168.1.10 &lt;-&gt; 1.1.1.1",
		"1000 B",
		"66.7%",
		"No alerts triggered during this session.",
		"Top Ports",
		"<td>53</td><td>DNS</td><td>3</td>",
		"<td>0</td><td>2</td><td>1</td>",
	} {
		assert.Contains(t, html, want)
	}
	assert.NotContains(t, html, "<script>alert(1)</script>")
	assert.Contains(t, html, "&lt;script&gt;")
}

func TestGenerateSessionReportExplicitPath(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.html")
	got, err := GenerateSessionReport(path, Summary{Source: "capture.pcap"})
	require.NoError(t, err)
	assert.Equal(t, path, got)

	content, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(content), "No IP traffic captured.")
}

func TestGenerateSessionReportError(t *testing.T) {
	_, err := GenerateSessionReport(filepath.Join(t.TempDir(), "missing", "r.html"), sessionSummary())
	assert.Error(t, err)
}

func TestPrintSummary(t *testing.T) {
	pterm.DisableStyling()
	defer pterm.EnableStyling()

	var buf bytes.Buffer
	require.NoError(t, PrintSummary(&buf, sessionSummary()))
	out := buf.String()

	for _, want := range []string{
		"Capture Complete - Final Summary",
		"Stopped: packet limit reached",
		"Total Duration: 10s",
		"Total Packets: 3 (0.30 packets/second)",
		"Total Data: 1000 B (100 B/s)",
		"Protocol Distribution:",
		"Application Protocols:",
		"HTTPS",
		"66.7%",
		"Top Talkers:",
		"192.168.1.10 <-> 8.8.8.8",
		"DNS Lookups:",
		"example.com",
		"Consumers:",
		"disk full",
		"Peak: 1000 B/s",
		"Top Ports:",
		"DNS",
		"Packet Size Distribution:",
		"100-499 B",
		"Bandwidth History:",
		"12:00:00",
		"12:00:10",
		strings.Repeat("█", 30),
	} {
		assert.Contains(t, out, want)
	}
	assert.NotContains(t, out, "FTP")
	assert.Less(t, strings.Index(out, "192.168.1.10 <-> 8.8.8.8"), strings.Index(out, "192.168.1.10 <-> 1.1.1.1"))
}

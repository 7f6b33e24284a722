package main

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
	"github.com/pterm/pterm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"netsniff/internal/config"
	"netsniff/internal/decoder/decodertest"
	"netsniff/internal/export"
)

func writeTrace(t *testing.T, frames ...[]byte) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "trace.pcap")
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()

	w := pcapgo.NewWriter(f)
	require.NoError(t, w.WriteFileHeader(65535, layers.LinkTypeEthernet))
	ts := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	for i, frame := range frames {
		ci := gopacket.CaptureInfo{
			Timestamp:     ts.Add(time.Duration(i) * time.Millisecond),
			CaptureLength: len(frame),
			Length:        len(frame),
		}
		require.NoError(t, w.WritePacket(ci, frame))
	}
	return path
}

func trace(t *testing.T) string {
	return writeTrace(t,
		decodertest.TCP("10.0.0.1", "10.0.0.2", 40000, 80, []byte("GET / HTTP/1.1\r\n\r\n")),
		decodertest.TCP("10.0.0.2", "10.0.0.1", 80, 40000, []byte("HTTP/1.1 200 OK\r\n\r\n")),
		decodertest.UDP("10.0.0.1", "8.8.8.8", 40001, 53, decodertest.DNSQuery("example.com")),
		decodertest.TCP("10.0.0.1", "10.0.0.3", 40002, 443, nil),
		decodertest.ICMPEcho("10.0.0.1", "10.0.0.9"),
		decodertest.ARP("10.0.0.1", "10.0.0.254"),
	)
}

func TestRun_ReplayWithExports(t *testing.T) {
	pterm.DisableStyling()
	defer pterm.EnableStyling()

	dir := t.TempDir()
	cfg := config.Default()
	cfg.Capture.File = trace(t)
	cfg.Export.JSON = filepath.Join(dir, "out.json")
	cfg.Export.CSV = filepath.Join(dir, "out.csv")
	cfg.Export.ReportHTML = dir
	require.NoError(t, cfg.Validate())

	var out bytes.Buffer
	require.NoError(t, run(context.Background(), cfg, strings.NewReader(""), &out))

	b, err := os.ReadFile(cfg.Export.JSON)
	require.NoError(t, err)
	var rows []export.Row
	require.NoError(t, json.Unmarshal(b, &rows))
	require.Len(t, rows, 6)
	assert.Equal(t, "HTTP", rows[0].Classification)
	assert.Equal(t, "HTTP", rows[1].Classification)
	assert.Equal(t, "DNS", rows[2].Classification)
	assert.Equal(t, "HTTPS", rows[3].Classification)

	f, err := os.Open(cfg.Export.CSV)
	require.NoError(t, err)
	defer f.Close()
	records, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	assert.Len(t, records, 7)
	assert.Equal(t, export.Columns, records[0])

	text := out.String()
	assert.Contains(t, text, "Web browsing (HTTP request/response)")
	assert.Contains(t, text, "Total Packets")
	assert.Contains(t, text, "end of capture input")

	reports, err := filepath.Glob(filepath.Join(dir, "report_*.html"))
	require.NoError(t, err)
	assert.Len(t, reports, 1)
}

func TestRun_FilterAndLimit(t *testing.T) {
	tcs := []struct {
		name     string
		protocol string
		port     int
		count    uint64
		want     []string
	}{
		{name: "tcp only", protocol: "tcp", want: []string{"HTTP", "HTTP", "HTTPS"}},
		{name: "dns only", protocol: "dns", want: []string{"DNS"}},
		{name: "port 80", port: 80, want: []string{"HTTP", "HTTP"}},
		{name: "limit", count: 2, want: []string{"HTTP", "HTTP"}},
		{name: "limit after filter", protocol: "tcp", count: 3, want: []string{"HTTP", "HTTP", "HTTPS"}},
	}

	for _, tc := range tcs {
		t.Run(tc.name, func(t *testing.T) {
			cfg := config.Default()
			cfg.Capture.File = trace(t)
			cfg.Capture.Protocol = tc.protocol
			cfg.Capture.Port = tc.port
			cfg.Capture.Count = tc.count
			cfg.Export.JSON = filepath.Join(t.TempDir(), "out.json")

			var out bytes.Buffer
			require.NoError(t, run(context.Background(), cfg, strings.NewReader(""), &out))

			b, err := os.ReadFile(cfg.Export.JSON)
			require.NoError(t, err)
			var rows []export.Row
			require.NoError(t, json.Unmarshal(b, &rows))

			got := make([]string, len(rows))
			for i, r := range rows {
				got[i] = r.Classification
			}
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestRun_DashboardWithoutTerminal(t *testing.T) {
	cfg := config.Default()
	cfg.Capture.File = trace(t)
	cfg.Dashboard.Enabled = true

	var out bytes.Buffer
	require.NoError(t, run(context.Background(), cfg, strings.NewReader(""), &out))
	assert.Contains(t, out.String(), "netsniff - Monitoring: ")
	assert.Contains(t, out.String(), "Top talkers")
}

func TestRun_MissingCaptureFile(t *testing.T) {
	cfg := config.Default()
	cfg.Capture.File = filepath.Join(t.TempDir(), "missing.pcap")

	var out bytes.Buffer
	err := run(context.Background(), cfg, strings.NewReader(""), &out)
	assert.Error(t, err)
	assert.Empty(t, out.String())
}

package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/table"
	"github.com/charmbracelet/lipgloss"

	"netsniff/internal/analysis"
	"netsniff/internal/models"
)

// Frame is everything one redraw needs.
type Frame struct {
	Source   string
	Snapshot *analysis.Snapshot
	// Recent holds the latest packets, oldest first.
	Recent []models.Record
}

// Dashboard draws frames. Its output depends only on the Frame, so drawing the
// same Frame twice yields identical text.
type Dashboard struct {
	title   lipgloss.Style
	info    lipgloss.Style
	label   lipgloss.Style
	alert   lipgloss.Style
	muted   lipgloss.Style
	tableSt table.Styles
}

// NewDashboard binds the dashboard styles to r, which decides the colour profile.
func NewDashboard(r *lipgloss.Renderer) *Dashboard {
	st := table.Styles{
		Header: r.NewStyle().
			Padding(0, 1).
			BorderStyle(lipgloss.NormalBorder()).
			BorderForeground(lipgloss.Color("240")).
			BorderBottom(true).
			Bold(true),
		Cell:     r.NewStyle().Padding(0, 1),
		Selected: r.NewStyle(),
	}

	return &Dashboard{
		title: r.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4")).
			Padding(0, 1),
		info: r.NewStyle().
			Foreground(lipgloss.Color("#FFF7DB")).
			Border(lipgloss.RoundedBorder()).
			Padding(0, 1).
			Margin(0, 1),
		label:   r.NewStyle().Foreground(lipgloss.Color("6")),
		alert:   r.NewStyle().Foreground(lipgloss.Color("#D9534F")).Bold(true),
		muted:   r.NewStyle().Foreground(lipgloss.Color("8")),
		tableSt: st,
	}
}

// Render draws f.
func (d *Dashboard) Render(f Frame) string {
	s := f.Snapshot
	if s == nil {
		s = &analysis.Snapshot{}
	}

	title := d.title.Render("netsniff - Monitoring: " + f.Source)

	var avgPps float64
	if secs := s.Elapsed().Seconds(); secs > 0 {
		avgPps = float64(s.TotalPackets) / secs
	}
	summary := strings.Join([]string{
		fmt.Sprintf("%s %s", d.label.Render("Elapsed:"), s.Elapsed().Truncate(time.Second)),
		fmt.Sprintf("%s %d (%.1f/s avg)", d.label.Render("Packets:"), s.TotalPackets, avgPps),
		fmt.Sprintf("%s %s", d.label.Render("Data:"), analysis.FormatBytes(s.TotalBytes)),
		fmt.Sprintf("%s %s (%.1f pkt/s)", d.label.Render("Rate:"), analysis.FormatRate(s.BytesPerSec), s.PacketsPerSec),
	}, " | ")
	peaks := strings.Join([]string{
		fmt.Sprintf("%s %s (%.1f pkt/s)", d.label.Render("Peak:"), analysis.FormatRate(s.PeakBytesPerSec), s.PeakPacketsPerSec),
		fmt.Sprintf("%s %d/%.0f/%d B", d.label.Render("Size min/avg/max:"), s.MinPacket, s.AvgPacket, s.MaxPacket),
		fmt.Sprintf("%s %d", d.label.Render("Conversations:"), len(s.Conversations)),
	}, " | ")

	dist := d.info.Render("Protocol distribution\n" + d.distribution(s).View())
	transports := d.info.Render("Transports\n" + d.transports(s))
	talkers := d.info.Render("Top talkers\n" + d.talkers(s).View())
	ports := d.info.Render("Top ports\n" + d.ports(s).View())
	bandwidth := d.info.Render("Bandwidth\n" + d.bandwidth(s))
	sizes := d.info.Render("Packet sizes\n" + d.sizes(s.Sizes))
	recent := d.info.Render("Recent packets\n" + d.recent(f.Recent))

	parts := []string{
		title,
		summary,
		peaks,
		lipgloss.JoinHorizontal(lipgloss.Top, dist, transports),
		lipgloss.JoinHorizontal(lipgloss.Top, talkers, ports),
		lipgloss.JoinHorizontal(lipgloss.Top, bandwidth, sizes),
		recent,
	}
	if len(s.Alerts) > 0 {
		parts = append(parts, d.info.Render("Alerts\n"+d.alerts(s.Alerts)))
	}
	footer := "Press q to quit."
	if !s.TakenAt.IsZero() {
		footer = fmt.Sprintf("Updated %s | %s", s.TakenAt.Format("15:04:05"), footer)
	}
	parts = append(parts, d.muted.Render(footer))

	return lipgloss.JoinVertical(lipgloss.Left, parts...)
}

func (d *Dashboard) newTable(cols []table.Column, rows []table.Row) table.Model {
	t := table.New(
		table.WithColumns(cols),
		table.WithRows(rows),
		table.WithFocused(false),
		table.WithHeight(len(rows)+2),
	)
	t.SetStyles(d.tableSt)
	return t
}

func (d *Dashboard) distribution(s *analysis.Snapshot) table.Model {
	rows := make([]table.Row, 0, len(s.Apps))
	for _, a := range s.Apps {
		rows = append(rows, table.Row{
			a.App.String(),
			fmt.Sprintf("%d", a.Packets),
			analysis.FormatBytes(a.Bytes),
			fmt.Sprintf("%.1f%%", a.Percent),
		})
	}
	return d.newTable([]table.Column{
		{Title: "Application", Width: 11},
		{Title: "Packets", Width: 9},
		{Title: "Bytes", Width: 10},
		{Title: "Share", Width: 6},
	}, rows)
}

func (d *Dashboard) talkers(s *analysis.Snapshot) table.Model {
	rows := make([]table.Row, 0, len(s.TopTalkers))
	for _, t := range s.TopTalkers {
		rows = append(rows, table.Row{
			t.Key.String(),
			fmt.Sprintf("%d", t.Packets),
			analysis.FormatBytes(t.Bytes),
		})
	}
	return d.newTable([]table.Column{
		{Title: "Conversation", Width: 40},
		{Title: "Packets", Width: 9},
		{Title: "Bytes", Width: 10},
	}, rows)
}

func (d *Dashboard) ports(s *analysis.Snapshot) table.Model {
	rows := make([]table.Row, 0, len(s.TopPorts))
	for _, p := range s.TopPorts {
		rows = append(rows, table.Row{
			fmt.Sprintf("%d", p.Port),
			p.Service,
			fmt.Sprintf("%d", p.Packets),
		})
	}
	return d.newTable([]table.Column{
		{Title: "Port", Width: 6},
		{Title: "Service", Width: 10},
		{Title: "Packets", Width: 9},
	}, rows)
}

// sparkLevels are the glyphs of a one-line bar chart, lowest first.
var sparkLevels = []rune("▁▂▃▄▅▆▇█")

// historyWidth is the number of recent points the bandwidth line shows.
const historyWidth = 40

func (d *Dashboard) bandwidth(s *analysis.Snapshot) string {
	points := s.Bandwidth
	if len(points) > historyWidth {
		points = points[len(points)-historyWidth:]
	}
	if len(points) == 0 {
		return "Waiting for data..."
	}
	return fmt.Sprintf("%s\n%s %s", sparkline(points), d.label.Render("Peak:"), analysis.FormatRate(s.PeakBytesPerSec))
}

// sparkline draws one glyph per point, scaled to the largest rate among points.
func sparkline(points []analysis.BandwidthPoint) string {
	var peak float64
	for _, p := range points {
		if p.BytesPerSec > peak {
			peak = p.BytesPerSec
		}
	}
	var b strings.Builder
	for _, p := range points {
		level := 0
		if peak > 0 {
			level = int(p.BytesPerSec / peak * float64(len(sparkLevels)-1))
		}
		b.WriteRune(sparkLevels[level])
	}
	return b.String()
}

// sizeBarWidth is the width of a packet size bar at 100%.
const sizeBarWidth = 20

func (d *Dashboard) sizes(b analysis.SizeBuckets) string {
	total := b.Total()
	if total == 0 {
		return "Waiting for data..."
	}
	rows := []struct {
		label string
		n     uint64
	}{
		{"<100B  ", b.Small},
		{"100-500", b.Medium},
		{">500B  ", b.Large},
	}
	lines := make([]string, 0, len(rows))
	for _, r := range rows {
		filled := int(r.n * sizeBarWidth / total)
		bar := strings.Repeat("█", filled) + strings.Repeat(" ", sizeBarWidth-filled)
		lines = append(lines, fmt.Sprintf("%s │%s│ %3d%%", r.label, bar, r.n*100/total))
	}
	return strings.Join(lines, "\n")
}

func (d *Dashboard) transports(s *analysis.Snapshot) string {
	if len(s.Transports) == 0 {
		return "Waiting for data..."
	}
	lines := make([]string, 0, len(s.Transports))
	for _, t := range s.Transports {
		lines = append(lines, fmt.Sprintf("%s: %d", t.Name, t.Packets))
	}
	return strings.Join(lines, "\n")
}

func (d *Dashboard) recent(recs []models.Record) string {
	if len(recs) == 0 {
		return "Waiting for network activity..."
	}
	lines := make([]string, 0, len(recs))
	for _, r := range recs {
		src, dst := r.Packet.Endpoints()
		lines = append(lines, fmt.Sprintf("%s %-7s %-7s %s -> %s %s",
			r.Packet.Timestamp.Format("15:04:05.000"),
			r.Packet.TransportName(),
			r.Class.App,
			src, dst,
			d.muted.Render(r.Class.Description),
		))
	}
	return strings.Join(lines, "\n")
}

func (d *Dashboard) alerts(alerts []analysis.Alert) string {
	lines := make([]string, 0, len(alerts))
	for _, a := range alerts {
		lines = append(lines, fmt.Sprintf("%s %s %s",
			a.Timestamp.Format("15:04:05"),
			d.alert.Render(string(a.Type)),
			a.Message,
		))
	}
	return strings.Join(lines, "\n")
}

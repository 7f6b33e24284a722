package reporting

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/pterm/pterm"

	"netsniff/internal/analysis"
	"netsniff/internal/pipeline"
)

// Summary is what the end-of-run reports are built from.
type Summary struct {
	Source   string
	RunID    string
	Snapshot *analysis.Snapshot
	Report   pipeline.Report
}

func (s Summary) duration() time.Duration {
	if d := s.Report.FinishedAt.Sub(s.Report.StartedAt); d > 0 {
		return d
	}
	if s.Snapshot != nil {
		return s.Snapshot.Elapsed()
	}
	return 0
}

// PrintSummary writes the final capture summary to w.
func PrintSummary(w io.Writer, s Summary) error {
	snap := s.Snapshot
	if snap == nil {
		snap = &analysis.Snapshot{}
	}
	var b strings.Builder

	b.WriteString(pterm.DefaultSection.Sprint("Capture Complete - Final Summary"))

	d := s.duration()
	secs := d.Seconds()
	var pps, bps float64
	if secs > 0 {
		pps = float64(snap.TotalPackets) / secs
		bps = float64(snap.TotalBytes) / secs
	}
	items := []pterm.BulletListItem{
		{Level: 0, Text: "Source: " + s.Source},
		{Level: 0, Text: "Stopped: " + string(s.Report.Reason)},
		{Level: 0, Text: fmt.Sprintf("Total Duration: %s", d.Truncate(time.Millisecond))},
		{Level: 0, Text: fmt.Sprintf("Total Packets: %d (%.2f packets/second)", snap.TotalPackets, pps)},
		{Level: 0, Text: fmt.Sprintf("Total Data: %s (%s)", analysis.FormatBytes(snap.TotalBytes), analysis.FormatRate(bps))},
		{Level: 0, Text: fmt.Sprintf("Peak: %s (%.1f packets/second)", analysis.FormatRate(snap.PeakBytesPerSec), snap.PeakPacketsPerSec)},
		{Level: 0, Text: fmt.Sprintf("Packet Size: min %d B, avg %.1f B, max %d B", snap.MinPacket, snap.AvgPacket, snap.MaxPacket)},
		{Level: 0, Text: fmt.Sprintf("Frames Read: %d (%d partially decoded)", s.Report.Frames, s.Report.Incomplete)},
	}
	list, err := pterm.DefaultBulletList.WithItems(items).Srender()
	if err != nil {
		return err
	}
	b.WriteString(list)

	total := float64(snap.TotalPackets)
	share := func(n uint64) string {
		if total == 0 {
			return "0.0%"
		}
		return fmt.Sprintf("%.1f%%", 100*float64(n)/total)
	}

	if len(snap.Transports) > 0 {
		data := pterm.TableData{{"Protocol", "Packets", "Bytes", "Percentage"}}
		for _, t := range snap.Transports {
			data = append(data, []string{t.Name, fmt.Sprint(t.Packets), analysis.FormatBytes(t.Bytes), share(t.Packets)})
		}
		if err := writeTable(&b, "Protocol Distribution", data); err != nil {
			return err
		}
	}

	data := pterm.TableData{{"Application", "Packets", "Bytes", "Percentage"}}
	for _, a := range snap.Apps {
		if a.Packets == 0 {
			continue
		}
		data = append(data, []string{a.App.String(), fmt.Sprint(a.Packets), analysis.FormatBytes(a.Bytes), fmt.Sprintf("%.1f%%", a.Percent)})
	}
	if len(data) > 1 {
		if err := writeTable(&b, "Application Protocols", data); err != nil {
			return err
		}
	}

	if len(snap.TopTalkers) > 0 {
		data := pterm.TableData{{"Conversation", "Packets", "Bytes"}}
		for _, t := range snap.TopTalkers {
			data = append(data, []string{t.Key.String(), fmt.Sprint(t.Packets), analysis.FormatBytes(t.Bytes)})
		}
		if err := writeTable(&b, "Top Talkers", data); err != nil {
			return err
		}
	}

	if len(snap.TopPorts) > 0 {
		data := pterm.TableData{{"Port", "Service", "Packets", "Bytes"}}
		for _, p := range snap.TopPorts {
			data = append(data, []string{fmt.Sprint(p.Port), p.Service, fmt.Sprint(p.Packets), analysis.FormatBytes(p.Bytes)})
		}
		if err := writeTable(&b, "Top Ports", data); err != nil {
			return err
		}
	}

	if sizes := snap.Sizes; sizes.Total() > 0 {
		data := pterm.TableData{
			{"Size", "Packets", "Percentage"},
			{"< 100 B", fmt.Sprint(sizes.Small), share(sizes.Small)},
			{"100-499 B", fmt.Sprint(sizes.Medium), share(sizes.Medium)},
			{">= 500 B", fmt.Sprint(sizes.Large), share(sizes.Large)},
		}
		if err := writeTable(&b, "Packet Size Distribution", data); err != nil {
			return err
		}
	}

	if data := bandwidthRows(snap); len(data) > 1 {
		if err := writeTable(&b, "Bandwidth History", data); err != nil {
			return err
		}
	}

	if len(snap.Hosts) > 0 {
		data := pterm.TableData{{"Hostname", "Lookups"}}
		for _, h := range snap.Hosts {
			data = append(data, []string{h.Name, fmt.Sprint(h.Lookups)})
		}
		if err := writeTable(&b, "DNS Lookups", data); err != nil {
			return err
		}
	}

	if consumers := consumerRows(s.Report); len(consumers) > 1 {
		if err := writeTable(&b, "Consumers", consumers); err != nil {
			return err
		}
	}

	_, err = io.WriteString(w, b.String())
	return err
}

// bandwidthPoints is how many of the latest history points the summary lists.
const bandwidthPoints = 10

// bandwidthRows lists the latest history points with a bar scaled to the peak rate.
func bandwidthRows(snap *analysis.Snapshot) pterm.TableData {
	points := snap.Bandwidth
	if len(points) > bandwidthPoints {
		points = points[len(points)-bandwidthPoints:]
	}
	data := pterm.TableData{{"Time", "Rate", ""}}
	if snap.PeakBytesPerSec <= 0 {
		return data
	}
	for _, p := range points {
		bar := strings.Repeat("█", int(p.BytesPerSec/snap.PeakBytesPerSec*30))
		data = append(data, []string{p.At.Format("15:04:05"), analysis.FormatRate(p.BytesPerSec), bar})
	}
	return data
}

func consumerRows(r pipeline.Report) pterm.TableData {
	names := make([]string, 0, len(r.Drops))
	for name := range r.Drops {
		names = append(names, name)
	}
	sort.Strings(names)

	data := pterm.TableData{{"Consumer", "Dropped", "Status"}}
	for _, name := range names {
		status := "ok"
		if err := r.ConsumerErrors[name]; err != nil {
			status = err.Error()
		}
		data = append(data, []string{name, fmt.Sprint(r.Drops[name]), status})
	}
	return data
}

func writeTable(b *strings.Builder, title string, data pterm.TableData) error {
	out, err := pterm.DefaultTable.WithHasHeader().WithData(data).Srender()
	if err != nil {
		return fmt.Errorf("render %s table: %w", strings.ToLower(title), err)
	}
	b.WriteString("\n" + title + ":\n")
	b.WriteString(out)
	b.WriteString("\n")
	return nil
}

// Package stream prints one line (or one block, in verbose mode) per captured packet.
package stream

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"netsniff/internal/analysis"
	"netsniff/internal/models"
)

// ErrRenderTarget wraps a failed write to the output stream.
var ErrRenderTarget = errors.New("render target failed")

// Options configures a Renderer.
type Options struct {
	Verbose bool
	// StatsInterval enables interim statistics. Zero disables them.
	StatsInterval time.Duration
	// Stats returns the latest aggregator snapshot for interim statistics.
	Stats func() *analysis.Snapshot
}

type styles struct {
	time, transport, app, addr, muted, title lipgloss.Style
}

// Renderer writes packets to w in arrival order.
type Renderer struct {
	w    io.Writer
	opts Options
	st   styles
}

// New creates a Renderer. Colours are only emitted when w is a colour-capable terminal.
func New(w io.Writer, opts Options) *Renderer {
	r := lipgloss.NewRenderer(w)
	return &Renderer{
		w:    w,
		opts: opts,
		st: styles{
			time:      r.NewStyle().Foreground(lipgloss.Color("6")),
			transport: r.NewStyle().Foreground(lipgloss.Color("2")).Bold(true),
			app:       r.NewStyle().Foreground(lipgloss.Color("3")),
			addr:      r.NewStyle().Foreground(lipgloss.Color("4")),
			muted:     r.NewStyle().Foreground(lipgloss.Color("8")),
			title:     r.NewStyle().Foreground(lipgloss.Color("10")).Bold(true),
		},
	}
}

// Line formats rec as a single line.
func (r *Renderer) Line(rec models.Record) string {
	pkt := rec.Packet
	src, dst := pkt.Endpoints()
	return fmt.Sprintf("%s | %s %s | %s -> %s | %s",
		r.st.time.Render(pkt.Timestamp.Format("15:04:05.000")),
		r.st.transport.Render(pkt.TransportName()),
		r.st.app.Render(rec.Class.App.String()),
		r.st.addr.Render(src),
		r.st.addr.Render(dst),
		rec.Class.Description,
	)
}

// Verbose formats rec as a multi-line block.
func (r *Renderer) Verbose(rec models.Record) string {
	pkt := rec.Packet
	var b strings.Builder

	fmt.Fprintln(&b, r.st.title.Render(fmt.Sprintf("[Packet #%d]", rec.Seq)))
	fmt.Fprintf(&b, "Timestamp: %s\n", r.st.time.Render(pkt.Timestamp.Format("2006-01-02 15:04:05.000 MST")))
	if pkt.Link != nil {
		fmt.Fprintf(&b, "Ethernet: %s -> %s", r.st.addr.Render(pkt.Link.SrcMAC.String()), r.st.addr.Render(pkt.Link.DstMAC.String()))
		if pkt.Link.VLAN != 0 {
			fmt.Fprintf(&b, " (VLAN %d)", pkt.Link.VLAN)
		}
		b.WriteByte('\n')
	}
	if n := pkt.Network; n != nil {
		fmt.Fprintf(&b, "IP: %s -> %s (%s, ttl %d)\n",
			r.st.addr.Render(n.SrcIP.String()), r.st.addr.Render(n.DstIP.String()), pkt.TransportName(), n.TTL)
	}
	switch t := pkt.Transport.(type) {
	case *models.TCP:
		fmt.Fprintf(&b, "Ports: %d -> %d\n", t.SrcPort, t.DstPort)
		fmt.Fprintf(&b, "Flags: %s\n", t.Flags)
	case *models.UDP:
		fmt.Fprintf(&b, "Ports: %d -> %d\n", t.SrcPort, t.DstPort)
	case *models.ICMP:
		fmt.Fprintf(&b, "ICMP: type %d code %d\n", t.Type, t.Code)
	case *models.OtherTransport:
		fmt.Fprintf(&b, "Transport: %s, %d bytes undecoded\n", t.Name(), len(t.Raw))
	case nil:
	}
	fmt.Fprintf(&b, "Application: %s\n", r.st.app.Render(rec.Class.App.String()))
	fmt.Fprintf(&b, "Size: %d bytes (payload: %d bytes)\n", pkt.Length, payloadLen(pkt.Transport))
	fmt.Fprintf(&b, "Description: %s\n", rec.Class.Description)
	if !pkt.Complete() {
		fmt.Fprintf(&b, "Decode: %s (%s)\n", pkt.Status, pkt.Issue)
	}
	b.WriteString(r.st.muted.Render(strings.Repeat("-", 80)))
	return b.String()
}

// Interim formats a periodic statistics block.
func (r *Renderer) Interim(s *analysis.Snapshot) string {
	var b strings.Builder
	rule := r.st.muted.Render(strings.Repeat("=", 50))

	fmt.Fprintln(&b)
	fmt.Fprintln(&b, r.st.title.Render("Interim Statistics"))
	fmt.Fprintln(&b, rule)
	elapsed := s.Elapsed().Truncate(time.Second)
	var avgPps float64
	if secs := s.Elapsed().Seconds(); secs > 0 {
		avgPps = float64(s.TotalPackets) / secs
	}
	fmt.Fprintf(&b, "Duration: %s | Packets: %d (%.1f/s) | Data: %s (%s)\n",
		elapsed, s.TotalPackets, avgPps, analysis.FormatBytes(s.TotalBytes), analysis.FormatRate(s.BytesPerSec))
	fmt.Fprintln(&b, "Protocols:")
	for _, t := range s.Transports {
		fmt.Fprintf(&b, "  > %s: %d\n", r.st.transport.Render(t.Name), t.Packets)
	}
	b.WriteString(rule)
	return b.String()
}

// Run prints every record from in until it is closed or ctx is done.
func (r *Renderer) Run(ctx context.Context, in <-chan models.Record) error {
	var tick <-chan time.Time
	if r.opts.StatsInterval > 0 && r.opts.Stats != nil {
		ticker := time.NewTicker(r.opts.StatsInterval)
		defer ticker.Stop()
		tick = ticker.C
	}

	for {
		select {
		case rec, ok := <-in:
			if !ok {
				return nil
			}
			out := r.Line(rec)
			if r.opts.Verbose {
				out = r.Verbose(rec)
			}
			if err := r.write(out); err != nil {
				return err
			}
		case <-tick:
			if err := r.write(r.Interim(r.opts.Stats())); err != nil {
				return err
			}
		case <-ctx.Done():
			return nil
		}
	}
}

func (r *Renderer) write(s string) error {
	if _, err := io.WriteString(r.w, s+"\n"); err != nil {
		return fmt.Errorf("%w: %w", ErrRenderTarget, err)
	}
	return nil
}

func payloadLen(t models.Transport) int {
	switch v := t.(type) {
	case *models.TCP:
		return v.PayloadLen
	case *models.UDP:
		return v.PayloadLen
	case *models.OtherTransport:
		return len(v.Raw)
	case *models.ICMP, nil:
		return 0
	default:
		panic(fmt.Sprintf("stream: unexpected transport %T", t))
	}
}

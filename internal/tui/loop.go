package tui

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/charmbracelet/lipgloss"

	"netsniff/internal/analysis"
	"netsniff/internal/models"
)

// ErrRenderTarget wraps a failed write to the dashboard output.
var ErrRenderTarget = errors.New("render target failed")

const clearScreen = "\x1b[H\x1b[2J"

// Options configures both dashboard front ends.
type Options struct {
	Source string
	// Stats returns the latest aggregator snapshot.
	Stats func() *analysis.Snapshot
	// StatsDone is closed once the aggregator has published its final snapshot.
	// When set, the last frame after capture ends waits for it.
	StatsDone <-chan struct{}
	// Interval between redraws. Defaults to one second.
	Interval time.Duration
	// EveryPackets forces a redraw after this many packets. Zero disables it.
	EveryPackets int
	// Recent is how many packets the recent list shows. Defaults to 5.
	Recent int
	// Clear emits an ANSI clear-screen before each redraw.
	Clear bool
	// OnQuit is called when the user asks to quit the interactive dashboard.
	OnQuit func()
}

func (o Options) withDefaults() Options {
	if o.Interval <= 0 {
		o.Interval = time.Second
	}
	if o.Recent <= 0 {
		o.Recent = 5
	}
	if o.Stats == nil {
		o.Stats = func() *analysis.Snapshot { return nil }
	}
	return o
}

// awaitStats blocks until the final snapshot is published or ctx is done.
func (o Options) awaitStats(ctx context.Context) {
	if o.StatsDone == nil {
		return
	}
	select {
	case <-o.StatsDone:
	case <-ctx.Done():
	}
}

// Loop redraws the dashboard into an io.Writer on a timer. It is used when
// stdout is not an interactive terminal.
type Loop struct {
	w      io.Writer
	dash   *Dashboard
	opts   Options
	recent *recentRing
}

// NewLoop creates a Loop writing to w.
func NewLoop(w io.Writer, opts Options) *Loop {
	opts = opts.withDefaults()
	return &Loop{
		w:      w,
		dash:   NewDashboard(lipgloss.NewRenderer(w)),
		opts:   opts,
		recent: newRecentRing(opts.Recent),
	}
}

// Frame builds the frame for the next redraw.
func (l *Loop) Frame() Frame {
	return Frame{Source: l.opts.Source, Snapshot: l.opts.Stats(), Recent: l.recent.Slice()}
}

// Draw writes one frame.
func (l *Loop) Draw(f Frame) error {
	out := l.dash.Render(f) + "\n"
	if l.opts.Clear {
		out = clearScreen + out
	}
	if _, err := io.WriteString(l.w, out); err != nil {
		return fmt.Errorf("%w: %w", ErrRenderTarget, err)
	}
	return nil
}

// Run consumes records and redraws every Interval or every EveryPackets packets,
// whichever comes first. It draws a final frame when in is closed, after the
// aggregator's final snapshot when StatsDone is set.
func (l *Loop) Run(ctx context.Context, in <-chan models.Record) error {
	ticker := time.NewTicker(l.opts.Interval)
	defer ticker.Stop()

	pending := 0
	for {
		select {
		case rec, ok := <-in:
			if !ok {
				l.opts.awaitStats(ctx)
				return l.Draw(l.Frame())
			}
			l.recent.Add(rec)
			pending++
			if l.opts.EveryPackets > 0 && pending >= l.opts.EveryPackets {
				pending = 0
				ticker.Reset(l.opts.Interval)
				if err := l.Draw(l.Frame()); err != nil {
					return err
				}
			}
		case <-ticker.C:
			pending = 0
			if err := l.Draw(l.Frame()); err != nil {
				return err
			}
		case <-ctx.Done():
			return nil
		}
	}
}

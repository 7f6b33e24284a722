package tui

import (
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"netsniff/internal/models"
)

// TickMsg triggers a redraw.
type TickMsg time.Time

type recordMsg models.Record

type doneMsg struct{}

// Model is the bubbletea model of the interactive dashboard.
type Model struct {
	dash   *Dashboard
	opts   Options
	recent *recentRing
	frame  Frame
	quit   bool
}

// NewModel creates the interactive dashboard model.
func NewModel(r *lipgloss.Renderer, opts Options) Model {
	opts = opts.withDefaults()
	m := Model{
		dash:   NewDashboard(r),
		opts:   opts,
		recent: newRecentRing(opts.Recent),
	}
	m.frame = Frame{Source: opts.Source, Snapshot: opts.Stats()}
	return m
}

func (m Model) Init() tea.Cmd {
	return m.tickCmd()
}

func (m Model) tickCmd() tea.Cmd {
	return tea.Tick(m.opts.Interval, func(t time.Time) tea.Msg {
		return TickMsg(t)
	})
}

func (m Model) refresh() Model {
	m.frame = Frame{Source: m.opts.Source, Snapshot: m.opts.Stats(), Recent: m.recent.Slice()}
	return m
}

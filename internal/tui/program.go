package tui

import (
	"context"
	"errors"
	"fmt"
	"io"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"netsniff/internal/models"
)

// Program runs the interactive bubbletea dashboard on a terminal.
type Program struct {
	in   io.Reader
	out  io.Writer
	opts Options
}

// NewProgram creates a Program reading keys from in and drawing to out.
func NewProgram(in io.Reader, out io.Writer, opts Options) *Program {
	return &Program{in: in, out: out, opts: opts.withDefaults()}
}

// Run forwards records to the dashboard until in is closed, ctx is done or the user quits.
func (p *Program) Run(ctx context.Context, in <-chan models.Record) error {
	model := NewModel(lipgloss.NewRenderer(p.out), p.opts)
	prog := tea.NewProgram(model,
		tea.WithContext(ctx),
		tea.WithInput(p.in),
		tea.WithOutput(p.out),
		tea.WithAltScreen(),
	)

	go func() {
		for rec := range in {
			prog.Send(recordMsg(rec))
		}
		p.opts.awaitStats(ctx)
		prog.Send(doneMsg{})
	}()

	final, err := prog.Run()
	if err != nil {
		if errors.Is(err, tea.ErrProgramKilled) || errors.Is(err, context.Canceled) {
			return nil
		}
		return fmt.Errorf("%w: %w", ErrRenderTarget, err)
	}
	if m, ok := final.(Model); ok && m.quit && p.opts.OnQuit != nil {
		p.opts.OnQuit()
	}
	return nil
}

package tui

import (
	tea "github.com/charmbracelet/bubbletea"

	"netsniff/internal/models"
)

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			m.quit = true
			return m, tea.Quit
		}

	case TickMsg:
		return m.refresh(), m.tickCmd()

	case recordMsg:
		m.recent.Add(models.Record(msg))

	case doneMsg:
		return m.refresh(), tea.Quit
	}
	return m, nil
}

func (m Model) View() string {
	return m.dash.Render(m.frame) + "\n"
}

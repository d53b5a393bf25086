package approval

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/kingrea/amplihack-recipes/internal/runner"
)

const previewLines = 12

type keyMap struct {
	Approve key.Binding
	Reject  key.Binding
	Quit    key.Binding
}

func (k keyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Approve, k.Reject, k.Quit}
}

func (k keyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{k.ShortHelp()}
}

func defaultKeys() keyMap {
	return keyMap{
		Approve: key.NewBinding(key.WithKeys("y", "enter"), key.WithHelp("y/enter", "run step")),
		Reject:  key.NewBinding(key.WithKeys("n", "esc"), key.WithHelp("n/esc", "reject")),
		Quit:    key.NewBinding(key.WithKeys("ctrl+c", "q"), key.WithHelp("q", "abort run")),
	}
}

// model is the Bubble Tea model behind a single approval prompt.
type model struct {
	preview  runner.Preview
	keys     keyMap
	help     help.Model
	width    int
	decided  bool
	approved bool
}

func newModel(p runner.Preview) model {
	return model{preview: p, keys: defaultKeys(), help: help.New(), width: 80}
}

func (m model) Init() tea.Cmd {
	return nil
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.help.Width = msg.Width
		return m, nil
	case tea.KeyMsg:
		switch {
		case key.Matches(msg, m.keys.Approve):
			m.decided, m.approved = true, true
			return m, tea.Quit
		case key.Matches(msg, m.keys.Reject), key.Matches(msg, m.keys.Quit):
			m.decided, m.approved = true, false
			return m, tea.Quit
		}
	}
	return m, nil
}

func (m model) View() string {
	if m.decided {
		return ""
	}
	p := m.preview
	title := lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("#5B8DEF")).
		Render(fmt.Sprintf("Step %d/%d  %s", p.Index+1, p.Total, p.StepID))
	meta := lipgloss.NewStyle().
		Foreground(lipgloss.Color("#AAAAAA")).
		Render(describe(p))
	body := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("#444444")).
		Padding(0, 1).
		Width(max(20, m.width-4)).
		Render(clip(p.Resolved, previewLines))
	return lipgloss.JoinVertical(lipgloss.Left, title, meta, body, m.help.View(m.keys)) + "\n"
}

func describe(p runner.Preview) string {
	parts := []string{string(p.Kind)}
	if p.Agent != "" {
		parts = append(parts, p.Agent)
	}
	if p.Description != "" {
		parts = append(parts, p.Description)
	}
	return strings.Join(parts, " · ")
}

func clip(text string, limit int) string {
	lines := strings.Split(strings.TrimRight(text, "\n"), "\n")
	if len(lines) <= limit {
		return strings.Join(lines, "\n")
	}
	return strings.Join(lines[:limit], "\n") + fmt.Sprintf("\n… %d more lines", len(lines)-limit)
}

// Package tui is the interactive candidate picker: a scrollable list of
// matched sessions on the left and the selected session's matches on the
// right. Enter picks a session for export, esc cancels.
package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"sessiongrep/internal/session"
)

type model struct {
	candidates []session.Candidate
	query      string
	timeOrder  []string
	cursor     int
	listOffset int
	detail     viewport.Model
	detailFor  int // candidate index currently rendered in detail
	width      int
	height     int
	ready      bool
	quitting   bool
	selected   int // index into candidates, -1 while undecided
}

// Run shows the picker and blocks until the user picks or cancels.
// Returns the selected candidate index, or -1 on cancel.
func Run(cands []session.Candidate, query string, timeOrder []string) (int, error) {
	m := model{
		candidates: cands,
		query:      query,
		timeOrder:  timeOrder,
		cursor:     len(cands) - 1, // start on the newest session
		detail:     viewport.New(0, 0),
		detailFor:  -1,
		selected:   -1,
	}
	p := tea.NewProgram(m, tea.WithAltScreen())
	final, err := p.Run()
	if err != nil {
		return -1, fmt.Errorf("tui: %w", err)
	}
	return final.(model).selected, nil
}

func (m model) Init() tea.Cmd { return nil }

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.ready = true
		m.detail = viewport.New(m.detailWidth(), m.panelHeight())
		m.detailFor = -1
		m.refreshDetail()
		m.adjustListScroll(m.panelHeight())
		return m, nil

	case tea.KeyMsg:
		switch {
		case key.Matches(msg, keys.Quit):
			m.quitting = true
			return m, tea.Quit

		case key.Matches(msg, keys.Enter):
			if len(m.candidates) > 0 && m.cursor < len(m.candidates) {
				m.selected = m.cursor
				m.quitting = true
				return m, tea.Quit
			}

		case key.Matches(msg, keys.Up):
			if m.cursor > 0 {
				m.cursor--
				m.adjustListScroll(m.panelHeight())
				m.refreshDetail()
			}

		case key.Matches(msg, keys.Down):
			if m.cursor < len(m.candidates)-1 {
				m.cursor++
				m.adjustListScroll(m.panelHeight())
				m.refreshDetail()
			}

		case key.Matches(msg, keys.DetailUp):
			m.detail.LineUp(m.panelHeight() / 2)

		case key.Matches(msg, keys.DetailDn):
			m.detail.LineDown(m.panelHeight() / 2)

		case key.Matches(msg, keys.PageUp):
			m.detail.LineUp(m.panelHeight())

		case key.Matches(msg, keys.PageDown):
			m.detail.LineDown(m.panelHeight())
		}
		return m, nil
	}
	return m, nil
}

func (m model) View() string {
	if m.quitting || !m.ready {
		return ""
	}

	listW := m.listWidth()
	detailW := m.detailWidth()
	panelH := m.panelHeight()

	listPanel := stylePanelBorder.
		Width(listW).
		Height(panelH).
		Render(m.renderList(listW, panelH))

	m.detail.Width = detailW
	m.detail.Height = panelH
	detailPanel := styleActiveBorder.
		Width(detailW).
		Height(panelH).
		Render(m.detail.View())

	panels := lipgloss.JoinHorizontal(lipgloss.Top, listPanel, detailPanel)
	return lipgloss.JoinVertical(lipgloss.Left, panels, m.statusBar())
}

// refreshDetail re-renders the right panel for the current cursor position.
func (m *model) refreshDetail() {
	if len(m.candidates) == 0 || m.cursor >= len(m.candidates) {
		m.detail.SetContent("")
		return
	}
	if m.detailFor == m.cursor {
		return
	}
	c := m.candidates[m.cursor]

	var b strings.Builder
	header := fmt.Sprintf("%s  %s", c.Ref.Tool, c.Ref.ID)
	b.WriteString(styleListSelected.Render(header))
	b.WriteString("\n")
	if c.Ref.Cwd != "" {
		b.WriteString(lipgloss.NewStyle().Foreground(colorDim).Render(c.Ref.Cwd))
		b.WriteString("\n")
	}
	b.WriteString("\n")
	for _, match := range c.Matches {
		b.WriteString(highlightQuery(match.Snippet, m.query))
		b.WriteString("\n\n")
	}
	m.detail.SetContent(b.String())
	m.detail.GotoTop()
	m.detailFor = m.cursor
}

func highlightQuery(snippet, query string) string {
	if query == "" {
		return styleSnippet.Render(snippet)
	}
	var b strings.Builder
	for {
		idx := strings.Index(snippet, query)
		if idx < 0 {
			b.WriteString(styleSnippet.Render(snippet))
			return b.String()
		}
		b.WriteString(styleSnippet.Render(snippet[:idx]))
		b.WriteString(styleHit.Render(query))
		snippet = snippet[idx+len(query):]
	}
}

func (m model) statusBar() string {
	parts := []string{
		fmt.Sprintf("%d sessions", len(m.candidates)),
		"up/dn navigate",
		"C-u/C-d detail",
		"Enter export",
		"Esc quit",
	}
	return styleStatusBar.Render(strings.Join(parts, " | "))
}

func (m model) listWidth() int {
	if m.width <= 0 {
		return 40
	}
	w := m.width*40/100 - 4
	if w < 20 {
		w = 20
	}
	return w
}

func (m model) detailWidth() int {
	if m.width <= 0 {
		return 60
	}
	w := m.width*60/100 - 4
	if w < 20 {
		w = 20
	}
	return w
}

func (m model) panelHeight() int {
	if m.height <= 0 {
		return 20
	}
	// status bar (1) + borders (4)
	h := m.height - 5
	if h < 5 {
		h = 5
	}
	return h
}

package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-runewidth"

	"sessiongrep/internal/session"
)

// linesPerItem is the number of terminal lines each candidate occupies.
const linesPerItem = 2

// renderList renders the left panel: ranked candidates with scrolling.
func (m model) renderList(width, height int) string {
	if len(m.candidates) == 0 {
		return lipgloss.NewStyle().
			Foreground(colorDim).
			Width(width).
			Height(height).
			Align(lipgloss.Center, lipgloss.Center).
			Render("No matches")
	}

	var lines []string
	for i, c := range m.candidates {
		if i < m.listOffset {
			continue
		}
		if len(lines)+linesPerItem > height {
			break
		}
		lines = append(lines, formatCandidate(c, m.timeOrder, width, i == m.cursor)...)
	}
	for len(lines) < height {
		lines = append(lines, strings.Repeat(" ", width))
	}
	return strings.Join(lines, "\n")
}

// formatCandidate formats one candidate as two lines:
//
//	line 1: [>] [rank] tool  date  title-or-id
//	line 2:     first snippet (dimmed)
func formatCandidate(c session.Candidate, order []string, width int, selected bool) []string {
	var tool string
	switch c.Ref.Tool {
	case session.ToolCodex:
		tool = styleToolCodex.Render(string(c.Ref.Tool))
	default:
		tool = styleToolOther.Render(string(c.Ref.Tool))
	}

	date := shortDate(c.Ref, order)
	title := c.Ref.DisplayName
	if title == "" {
		title = c.Ref.ID
	}
	title = strings.ReplaceAll(title, "\n", " ")
	titleMax := width - 2 - len(string(c.Ref.Tool)) - 6 - 8
	if titleMax < 0 {
		titleMax = 0
	}
	if runewidth.StringWidth(title) > titleMax {
		title = runewidth.Truncate(title, titleMax, "")
	}

	line1 := fmt.Sprintf("[%d] %s %s %s", c.Rank, tool, date, title)
	if selected {
		line1 = styleListSelected.Render("> ") + line1
	} else {
		line1 = "  " + line1
	}

	snippet := ""
	if len(c.Matches) > 0 {
		snippet = c.Matches[0].Snippet
	}
	snippetMax := width - 4
	if snippetMax < 0 {
		snippetMax = 0
	}
	if runewidth.StringWidth(snippet) > snippetMax {
		snippet = runewidth.Truncate(snippet, snippetMax, "")
	}
	line2 := "    " + lipgloss.NewStyle().Foreground(colorDim).Render(snippet)

	return []string{line1, line2}
}

func shortDate(ref session.Ref, order []string) string {
	for _, field := range order {
		var t time.Time
		switch field {
		case "updated":
			t = ref.LastUpdated
		case "started":
			t = ref.StartTime
		case "fallback":
			t = ref.Fallback
		}
		if !t.IsZero() {
			return t.Local().Format("01-02")
		}
	}
	return "--·--"
}

// adjustListScroll keeps the cursor visible within the list viewport.
func (m *model) adjustListScroll(listHeight int) {
	visibleItems := listHeight / linesPerItem
	if visibleItems < 1 {
		visibleItems = 1
	}
	if m.cursor < m.listOffset {
		m.listOffset = m.cursor
	}
	if m.cursor >= m.listOffset+visibleItems {
		m.listOffset = m.cursor - visibleItems + 1
	}
}

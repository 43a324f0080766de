// Package render prints the numbered candidate list for terminal selection.
package render

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/mattn/go-runewidth"
	"golang.org/x/term"

	"sessiongrep/internal/session"
)

const (
	colorReset = "\033[0m"
	colorDim   = "\033[2m"
	colorHit   = "\033[1;31m" // bold red for the matched substring
)

const maxSnippetWidth = 160

type Options struct {
	Query     string
	TimeOrder []string
	Color     bool
}

// ColorEnabled reports whether fd is a terminal that wants ANSI output.
func ColorEnabled(fd uintptr) bool {
	if os.Getenv("NO_COLOR") != "" {
		return false
	}
	if os.Getenv("TERM") == "dumb" {
		return false
	}
	return term.IsTerminal(int(fd))
}

// List writes the ranked candidates oldest first, one line per match plus a
// dimmed metadata line per session. Without color the matched substring is
// bracketed so it stays visible.
func List(w io.Writer, cands []session.Candidate, opts Options) {
	for _, c := range cands {
		for _, m := range c.Matches {
			snippet := truncate(m.Snippet, maxSnippetWidth)
			snippet = markHits(snippet, opts.Query, opts.Color)
			fmt.Fprintf(w, "[%d] %s\n", c.Rank, snippet)
		}
		fmt.Fprintf(w, "%s\n", dim(metaLine(c, opts.TimeOrder), opts.Color))
	}
}

func metaLine(c session.Candidate, order []string) string {
	parts := []string{
		"    " + displayTime(c.Ref, order),
		string(c.Ref.Tool),
		c.Ref.ID,
		fmt.Sprintf("%d match(es)", c.MatchCount),
	}
	if c.Ref.DisplayName != "" {
		parts = append(parts, c.Ref.DisplayName)
	}
	if c.Ref.Cwd != "" {
		parts = append(parts, Tildeify(c.Ref.Cwd))
	}
	return strings.Join(parts, "  ")
}

func displayTime(ref session.Ref, order []string) string {
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
			return t.Local().Format("2006-01-02 15:04")
		}
	}
	return "----------------"
}

// markHits highlights every occurrence of the query in the snippet. The
// match is case-sensitive, same as the search itself.
func markHits(s, query string, color bool) string {
	if query == "" {
		return s
	}
	pre, post := "⟦", "⟧"
	if color {
		pre, post = colorHit, colorReset
	}
	var b strings.Builder
	for {
		idx := strings.Index(s, query)
		if idx < 0 {
			b.WriteString(s)
			return b.String()
		}
		b.WriteString(s[:idx])
		b.WriteString(pre)
		b.WriteString(s[idx : idx+len(query)])
		b.WriteString(post)
		s = s[idx+len(query):]
	}
}

func dim(s string, color bool) string {
	if !color {
		return s
	}
	return colorDim + s + colorReset
}

func truncate(s string, width int) string {
	if runewidth.StringWidth(s) <= width {
		return s
	}
	return runewidth.Truncate(s, width-1, "…")
}

// Tildeify shortens a path under the home directory to ~/... for display.
func Tildeify(path string) string {
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		return path
	}
	if path == home {
		return "~"
	}
	if rel, err := filepath.Rel(home, path); err == nil && !strings.HasPrefix(rel, "..") {
		return "~" + string(filepath.Separator) + rel
	}
	return path
}

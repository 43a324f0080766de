package main

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"sessiongrep/internal/adapter"
	"sessiongrep/internal/config"
	"sessiongrep/internal/export"
	"sessiongrep/internal/render"
	"sessiongrep/internal/search"
	"sessiongrep/internal/session"
	"sessiongrep/internal/tui"
)

func searchCmd() *cobra.Command {
	var (
		tools        []string
		contextChars int
		maxResults   int
		since, until string
		plain        bool
		outDir       string
	)

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Find sessions containing a literal substring and export one",
		Long: `Search every configured session store for a literal, case-sensitive
substring. Matching sessions are listed oldest first; pick one by number
(or interactively when stdout is a terminal) and it is written to the
current directory as normalized JSON.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			log := newLogger()
			defer log.Sync()

			opts := search.Options{
				Query:        args[0],
				ContextChars: contextChars,
				MaxResults:   maxResults,
				TimeOrder:    cfg.TimeOrder,
			}
			for _, t := range tools {
				tool, err := session.ParseTool(t)
				if err != nil {
					return err
				}
				opts.Tools = append(opts.Tools, tool)
			}
			if opts.Since, err = parseDay(since, false); err != nil {
				return fmt.Errorf("--since: %w", err)
			}
			if opts.Until, err = parseDay(until, true); err != nil {
				return fmt.Errorf("--until: %w", err)
			}

			engine := search.New(adapter.ForConfig(cfg, log), log)
			cands, err := engine.Search(opts)
			if err != nil {
				return err
			}

			interactive := !plain && term.IsTerminal(int(os.Stdout.Fd()))
			var picked *session.Candidate
			if interactive {
				idx, err := tui.Run(cands, opts.Query, cfg.TimeOrder)
				if err != nil {
					return err
				}
				if idx < 0 {
					return nil // cancelled
				}
				picked = &cands[idx]
			} else {
				render.List(os.Stdout, cands, render.Options{
					Query:     opts.Query,
					TimeOrder: cfg.TimeOrder,
					Color:     render.ColorEnabled(os.Stdout.Fd()),
				})
				c, ok, err := promptSelection(cands, os.Stdin, os.Stderr)
				if err != nil {
					return err
				}
				if !ok {
					return nil // cancelled
				}
				picked = &c
			}

			a, ok := engine.AdapterFor(picked.Ref.Tool)
			if !ok {
				return fmt.Errorf("no adapter for %s", picked.Ref.Tool)
			}
			doc, err := a.LoadForExport(picked.Ref)
			if err != nil {
				return err
			}
			path, err := export.Write(doc, outDir)
			if err != nil {
				return err
			}
			fmt.Printf("Exported %s\n", render.Tildeify(path))
			return nil
		},
	}

	cmd.Flags().StringSliceVar(&tools, "tool", nil, "Restrict to tool(s): codex, gemini-cli, opencode, cursor (repeatable)")
	cmd.Flags().IntVar(&contextChars, "context-chars", 50, "Snippet context on each side of the match")
	cmd.Flags().IntVar(&maxResults, "max-results", 0, "Keep only the N most recent matching sessions (0 = all)")
	cmd.Flags().StringVar(&since, "since", "", "Only sessions on or after this date (YYYY-MM-DD)")
	cmd.Flags().StringVar(&until, "until", "", "Only sessions on or before this date (YYYY-MM-DD)")
	cmd.Flags().BoolVar(&plain, "plain", false, "Numbered list and stdin prompt instead of the interactive picker")
	cmd.Flags().StringVar(&outDir, "out-dir", ".", "Directory the exported JSON is written to")

	return cmd
}

// promptSelection prints the prompt, reads one line and resolves it.
// Empty input (or EOF) cancels.
func promptSelection(cands []session.Candidate, in io.Reader, prompt io.Writer) (session.Candidate, bool, error) {
	fmt.Fprintf(prompt, "Select session [1-%d], empty to cancel: ", len(cands))
	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && line == "" {
		return session.Candidate{}, false, nil
	}
	if strings.TrimSpace(line) == "" {
		return session.Candidate{}, false, nil
	}
	c, err := search.Select(cands, line)
	if err != nil {
		return session.Candidate{}, false, err
	}
	return c, true, nil
}

// parseDay accepts YYYY-MM-DD or a full RFC 3339 timestamp. A bare date
// used as an upper bound covers the whole day.
func parseDay(s string, endOfDay bool) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	if t, err := time.ParseInLocation("2006-01-02", s, time.Local); err == nil {
		if endOfDay {
			t = t.Add(24*time.Hour - time.Nanosecond)
		}
		return t, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("want YYYY-MM-DD or RFC 3339, got %q", s)
	}
	return t, nil
}

// Package search runs a literal substring query across every configured
// session store and aggregates the hits per session. Nothing is indexed or
// cached between runs: each search walks the stores lazily, so results
// always reflect the storage as it is right now.
package search

import (
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"sessiongrep/internal/adapter"
	"sessiongrep/internal/config"
	"sessiongrep/internal/scan"
	"sessiongrep/internal/session"
)

const defaultContextChars = 50

// Options narrows a search. An empty Tools slice means every adapter.
type Options struct {
	Query        string
	Tools        []session.Tool
	ContextChars int
	MaxResults   int
	Since        time.Time
	Until        time.Time
	TimeOrder    []string
}

type Engine struct {
	adapters []adapter.Adapter
	log      *zap.Logger
}

func New(adapters []adapter.Adapter, log *zap.Logger) *Engine {
	return &Engine{adapters: adapters, log: log}
}

// Search walks the selected stores and returns ranked candidates, oldest
// first. A store that is missing or unreadable is skipped with a warning;
// the search fails only when every requested store is unavailable or when
// nothing matched.
func (e *Engine) Search(opts Options) ([]session.Candidate, error) {
	if opts.Query == "" {
		return nil, errors.New("search: empty query")
	}
	contextChars := opts.ContextChars
	if contextChars <= 0 {
		contextChars = defaultContextChars
	}
	order := opts.TimeOrder
	if len(order) == 0 {
		order = config.DefaultTimeOrder
	}

	selected := e.selectAdapters(opts.Tools)
	if len(selected) == 0 {
		return nil, errors.New("search: no tools selected")
	}

	var candidates []session.Candidate
	unavailable := 0
	for _, a := range selected {
		refs, err := a.Enumerate()
		if err != nil {
			if errors.Is(err, session.ErrStorageUnavailable) {
				e.log.Warn("store unavailable", zap.String("tool", string(a.Tool())), zap.Error(err))
				unavailable++
				continue
			}
			return nil, fmt.Errorf("enumerate %s: %w", a.Tool(), err)
		}
		for _, ref := range refs {
			cand, ok := e.scanSession(a, ref, opts.Query, contextChars)
			if ok {
				candidates = append(candidates, cand)
			}
		}
	}
	if unavailable == len(selected) {
		return nil, fmt.Errorf("search: %w: no session store could be read", session.ErrStorageUnavailable)
	}

	candidates = filterByTime(candidates, opts.Since, opts.Until, order)
	if len(candidates) == 0 {
		return nil, session.ErrNoMatches
	}
	return rank(candidates, order, opts.MaxResults), nil
}

// scanSession streams one session's units through the matcher. A mid-scan
// read failure keeps whatever matched before the failure; timestamps seen
// on units fill in session times the store's metadata did not provide.
func (e *Engine) scanSession(a adapter.Adapter, ref session.Ref, query string, contextChars int) (session.Candidate, bool) {
	var (
		matches   []session.Match
		firstSeen time.Time
		lastSeen  time.Time
	)
	err := a.IterUnits(ref, func(u session.Unit) error {
		if !u.Time.IsZero() {
			if firstSeen.IsZero() || u.Time.Before(firstSeen) {
				firstSeen = u.Time
			}
			if u.Time.After(lastSeen) {
				lastSeen = u.Time
			}
		}
		for _, off := range scan.Occurrences(u.Text, query) {
			matches = append(matches, session.Match{
				Ref:     ref,
				UnitID:  u.ID,
				Offset:  off,
				Snippet: scan.Snippet(u.Text, off, len(query), contextChars),
			})
		}
		return nil
	})
	if err != nil {
		e.log.Warn("session scan incomplete",
			zap.String("tool", string(ref.Tool)),
			zap.String("session", ref.ID),
			zap.Error(err))
	}
	if len(matches) == 0 {
		return session.Candidate{}, false
	}

	if ref.StartTime.IsZero() {
		ref.StartTime = firstSeen
	}
	if ref.LastUpdated.IsZero() {
		ref.LastUpdated = lastSeen
	}
	for i := range matches {
		matches[i].Ref = ref
	}
	return session.Candidate{Ref: ref, MatchCount: len(matches), Matches: matches}, true
}

func (e *Engine) selectAdapters(tools []session.Tool) []adapter.Adapter {
	if len(tools) == 0 {
		return e.adapters
	}
	want := make(map[session.Tool]bool, len(tools))
	for _, t := range tools {
		want[t] = true
	}
	var out []adapter.Adapter
	for _, a := range e.adapters {
		if want[a.Tool()] {
			out = append(out, a)
		}
	}
	return out
}

func filterByTime(cands []session.Candidate, since, until time.Time, order []string) []session.Candidate {
	if since.IsZero() && until.IsZero() {
		return cands
	}
	out := cands[:0]
	for _, c := range cands {
		t, ok := effectiveTime(c.Ref, order)
		if !ok {
			continue
		}
		if !since.IsZero() && t.Before(since) {
			continue
		}
		if !until.IsZero() && t.After(until) {
			continue
		}
		out = append(out, c)
	}
	return out
}

// Resolve returns the enumerated ref for a tool/id pair, for direct export
// without a search.
func (e *Engine) Resolve(tool session.Tool, id string) (adapter.Adapter, session.Ref, error) {
	for _, a := range e.adapters {
		if a.Tool() != tool {
			continue
		}
		refs, err := a.Enumerate()
		if err != nil {
			return nil, session.Ref{}, err
		}
		for _, ref := range refs {
			if ref.ID == id {
				return a, ref, nil
			}
		}
		return nil, session.Ref{}, fmt.Errorf("%w: %s session %s", session.ErrNotFound, tool, id)
	}
	return nil, session.Ref{}, fmt.Errorf("%w: tool %s not configured", session.ErrNotFound, tool)
}

// AdapterFor returns the adapter handling the given tool.
func (e *Engine) AdapterFor(tool session.Tool) (adapter.Adapter, bool) {
	for _, a := range e.adapters {
		if a.Tool() == tool {
			return a, true
		}
	}
	return nil, false
}

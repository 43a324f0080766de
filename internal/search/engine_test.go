package search

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"sessiongrep/internal/adapter"
	"sessiongrep/internal/session"
)

type stubAdapter struct {
	tool    session.Tool
	refs    []session.Ref
	units   map[string][]session.Unit
	enumErr error
}

func (s *stubAdapter) Tool() session.Tool { return s.tool }

func (s *stubAdapter) Enumerate() ([]session.Ref, error) {
	if s.enumErr != nil {
		return nil, s.enumErr
	}
	return s.refs, nil
}

func (s *stubAdapter) IterUnits(ref session.Ref, fn adapter.UnitFunc) error {
	for _, u := range s.units[ref.ID] {
		u.Ref = ref
		if err := fn(u); err != nil {
			return err
		}
	}
	return nil
}

func (s *stubAdapter) LoadForExport(ref session.Ref) (*session.Document, error) {
	return &session.Document{Source: s.tool, SessionID: ref.ID}, nil
}

func day(n int) time.Time {
	return time.Date(2026, 5, n, 12, 0, 0, 0, time.UTC)
}

func newStub(tool session.Tool) *stubAdapter {
	return &stubAdapter{tool: tool, units: make(map[string][]session.Unit)}
}

func (s *stubAdapter) addSession(id string, updated time.Time, texts ...string) {
	s.refs = append(s.refs, session.Ref{Tool: s.tool, ID: id, LastUpdated: updated})
	for i, text := range texts {
		s.units[id] = append(s.units[id], session.Unit{
			ID:   string(rune('a' + i)),
			Text: text,
			Role: session.RoleUser,
			Kind: session.KindText,
		})
	}
}

func TestSearchAggregatesPerSession(t *testing.T) {
	stub := newStub(session.ToolCodex)
	stub.addSession("s1", day(3), "needle here", "and needle again, needle")
	stub.addSession("s2", day(4), "nothing relevant")

	e := New([]adapter.Adapter{stub}, zap.NewNop())
	cands, err := e.Search(Options{Query: "needle"})
	require.NoError(t, err)
	require.Len(t, cands, 1)
	require.Equal(t, "s1", cands[0].Ref.ID)
	require.Equal(t, 3, cands[0].MatchCount)
	require.Len(t, cands[0].Matches, 3)
	// matches keep unit order
	require.Equal(t, "a", cands[0].Matches[0].UnitID)
	require.Equal(t, "b", cands[0].Matches[1].UnitID)
}

func TestSearchOrdersOldestFirstWithDenseRanks(t *testing.T) {
	stub := newStub(session.ToolCodex)
	stub.addSession("new", day(9), "x marks the spot")
	stub.addSession("old", day(1), "x again")
	stub.addSession("mid", day(5), "x in between")
	// no timestamp at all: sorts before everything
	stub.refs = append(stub.refs, session.Ref{Tool: session.ToolCodex, ID: "untimed"})
	stub.units["untimed"] = []session.Unit{{ID: "a", Text: "x untimed"}}

	e := New([]adapter.Adapter{stub}, zap.NewNop())
	cands, err := e.Search(Options{Query: "x"})
	require.NoError(t, err)
	require.Len(t, cands, 4)

	var ids []string
	for i, c := range cands {
		require.Equal(t, i+1, c.Rank)
		ids = append(ids, c.Ref.ID)
	}
	require.Equal(t, []string{"untimed", "old", "mid", "new"}, ids)
}

func TestSearchMaxResultsKeepsNewestTail(t *testing.T) {
	stub := newStub(session.ToolCodex)
	stub.addSession("old", day(1), "x")
	stub.addSession("mid", day(5), "x")
	stub.addSession("new", day(9), "x")

	e := New([]adapter.Adapter{stub}, zap.NewNop())
	cands, err := e.Search(Options{Query: "x", MaxResults: 2})
	require.NoError(t, err)
	require.Len(t, cands, 2)
	require.Equal(t, "mid", cands[0].Ref.ID)
	require.Equal(t, 1, cands[0].Rank)
	require.Equal(t, "new", cands[1].Ref.ID)
	require.Equal(t, 2, cands[1].Rank)
}

func TestSearchFillsTimesFromUnits(t *testing.T) {
	stub := newStub(session.ToolCodex)
	stub.refs = append(stub.refs, session.Ref{Tool: session.ToolCodex, ID: "s"})
	stub.units["s"] = []session.Unit{
		{ID: "a", Text: "x early", Time: day(2)},
		{ID: "b", Text: "x late", Time: day(6)},
	}

	e := New([]adapter.Adapter{stub}, zap.NewNop())
	cands, err := e.Search(Options{Query: "x"})
	require.NoError(t, err)
	require.Len(t, cands, 1)
	require.Equal(t, day(2), cands[0].Ref.StartTime)
	require.Equal(t, day(6), cands[0].Ref.LastUpdated)
}

func TestSearchNoMatches(t *testing.T) {
	stub := newStub(session.ToolCodex)
	stub.addSession("s1", day(3), "nothing here")

	e := New([]adapter.Adapter{stub}, zap.NewNop())
	_, err := e.Search(Options{Query: "absent"})
	require.ErrorIs(t, err, session.ErrNoMatches)
}

func TestSearchSkipsUnavailableStore(t *testing.T) {
	down := newStub(session.ToolGemini)
	down.enumErr = session.ErrStorageUnavailable
	up := newStub(session.ToolCodex)
	up.addSession("s1", day(3), "x")

	e := New([]adapter.Adapter{down, up}, zap.NewNop())
	cands, err := e.Search(Options{Query: "x"})
	require.NoError(t, err)
	require.Len(t, cands, 1)
}

func TestSearchAllStoresUnavailable(t *testing.T) {
	down := newStub(session.ToolGemini)
	down.enumErr = session.ErrStorageUnavailable

	e := New([]adapter.Adapter{down}, zap.NewNop())
	_, err := e.Search(Options{Query: "x"})
	require.ErrorIs(t, err, session.ErrStorageUnavailable)
}

func TestSearchToolFilter(t *testing.T) {
	codex := newStub(session.ToolCodex)
	codex.addSession("c1", day(3), "x")
	gemini := newStub(session.ToolGemini)
	gemini.addSession("g1", day(4), "x")

	e := New([]adapter.Adapter{codex, gemini}, zap.NewNop())
	cands, err := e.Search(Options{Query: "x", Tools: []session.Tool{session.ToolGemini}})
	require.NoError(t, err)
	require.Len(t, cands, 1)
	require.Equal(t, "g1", cands[0].Ref.ID)
}

func TestSearchSinceUntil(t *testing.T) {
	stub := newStub(session.ToolCodex)
	stub.addSession("old", day(1), "x")
	stub.addSession("mid", day(5), "x")
	stub.addSession("new", day(9), "x")

	e := New([]adapter.Adapter{stub}, zap.NewNop())
	cands, err := e.Search(Options{Query: "x", Since: day(3), Until: day(7)})
	require.NoError(t, err)
	require.Len(t, cands, 1)
	require.Equal(t, "mid", cands[0].Ref.ID)
}

func TestSelect(t *testing.T) {
	cands := []session.Candidate{
		{Ref: session.Ref{ID: "a"}, Rank: 1},
		{Ref: session.Ref{ID: "b"}, Rank: 2},
	}

	tests := []struct {
		name    string
		input   string
		wantID  string
		wantErr bool
	}{
		{name: "first", input: "1", wantID: "a"},
		{name: "last with whitespace", input: " 2\n", wantID: "b"},
		{name: "zero", input: "0", wantErr: true},
		{name: "out of range", input: "99", wantErr: true},
		{name: "negative", input: "-1", wantErr: true},
		{name: "not a number", input: "first", wantErr: true},
		{name: "empty", input: "", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := Select(cands, tt.input)
			if tt.wantErr {
				require.ErrorIs(t, err, session.ErrInvalidSelection)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tt.wantID, c.Ref.ID)
		})
	}
}

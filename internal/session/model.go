package session

import (
	"fmt"
	"time"
)

// Tool identifies one supported agent's storage format. The values double
// as the "source" field of exported documents.
type Tool string

const (
	ToolCodex    Tool = "codex"
	ToolGemini   Tool = "gemini-cli"
	ToolOpenCode Tool = "opencode"
	ToolCursor   Tool = "cursor"
)

// AllTools returns every supported tool in presentation order.
func AllTools() []Tool {
	return []Tool{ToolCodex, ToolGemini, ToolOpenCode, ToolCursor}
}

func ParseTool(s string) (Tool, error) {
	switch Tool(s) {
	case ToolCodex, ToolGemini, ToolOpenCode, ToolCursor:
		return Tool(s), nil
	}
	return "", fmt.Errorf("unknown tool %q (expected codex, gemini-cli, opencode, or cursor)", s)
}

// Ref is the logical identity of one conversation. Identity is (Tool, ID)
// and is stable across runs against the same storage.
type Ref struct {
	Tool        Tool
	ID          string
	StartTime   time.Time // zero when unknown
	LastUpdated time.Time // zero when unknown
	Fallback    time.Time // least authoritative signal, usually file mtime
	Cwd         string
	DisplayName string
}

func (r Ref) Key() string {
	return string(r.Tool) + "/" + r.ID
}

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

type Kind string

const (
	KindText      Kind = "text"
	KindReasoning Kind = "reasoning"
)

// Unit is the smallest independently addressable chunk of searchable text.
// A session is exactly the ordered sequence of its units; when Time is
// absent or ties, lexicographic ID order is chronological order.
type Unit struct {
	Ref  Ref
	ID   string
	Text string
	Time time.Time
	Role Role
	Kind Kind
}

// Match is one literal occurrence of the query inside a unit.
type Match struct {
	Ref     Ref
	UnitID  string
	Offset  int
	Snippet string
}

// Candidate aggregates all matches sharing a Ref. Matches keep unit order.
// Rank is assigned at presentation time, dense 1..N.
type Candidate struct {
	Ref        Ref
	MatchCount int
	Matches    []Match
	Rank       int
}

// Message is one normalized export unit.
type Message struct {
	Role      string         `json:"role"`
	Content   string         `json:"content"`
	Timestamp *string        `json:"timestamp"`
	Extras    map[string]any `json:"extras,omitempty"`
}

// Document is the normalized export schema, the only durable artifact this
// program produces.
type Document struct {
	Source      Tool      `json:"source"`
	SessionID   string    `json:"session_id"`
	StartTime   *string   `json:"start_time"`
	LastUpdated *string   `json:"last_updated"`
	Cwd         *string   `json:"cwd"`
	Messages    []Message `json:"messages"`
}

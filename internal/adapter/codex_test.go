package adapter

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"sessiongrep/internal/session"
)

const codexFixture = `{"timestamp":"2026-03-01T10:00:00Z","type":"session_meta","payload":{"id":"0195f-abc","cwd":"/home/dev/proj","timestamp":"2026-03-01T10:00:00Z"}}
{"timestamp":"2026-03-01T10:00:05Z","type":"event_msg","payload":{"type":"user_message","message":"please fix the flaky widget test"}}
{"timestamp":"2026-03-01T10:00:09Z","type":"event_msg","payload":{"type":"agent_reasoning","text":"the widget setup races with teardown"}}
this line is not json
{"timestamp":"2026-03-01T10:00:11Z","type":"event_msg","payload":{"type":"tool_result","tool":"bash","output":"2 tests passed"}}
{"timestamp":"2026-03-01T10:00:12Z","type":"event_msg","payload":{"type":"agent_message","message":"added a WaitGroup around widget setup"}}
`

func writeCodexFixture(t *testing.T) (*Codex, string) {
	t.Helper()
	root := t.TempDir()
	dir := filepath.Join(root, "sessions", "2026", "03", "01")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	path := filepath.Join(dir, "rollout-2026-03-01T10-00-00-0195f-abc.jsonl")
	require.NoError(t, os.WriteFile(path, []byte(codexFixture), 0o644))
	return NewCodex(root, zap.NewNop()), path
}

func TestCodexEnumerate(t *testing.T) {
	c, _ := writeCodexFixture(t)

	refs, err := c.Enumerate()
	require.NoError(t, err)
	require.Len(t, refs, 1)

	ref := refs[0]
	require.Equal(t, session.ToolCodex, ref.Tool)
	require.Equal(t, "0195f-abc", ref.ID)
	require.Equal(t, "/home/dev/proj", ref.Cwd)
	require.Equal(t, "2026-03-01T10:00:00Z", ref.StartTime.UTC().Format("2006-01-02T15:04:05Z"))
	require.False(t, ref.Fallback.IsZero())
}

func TestCodexEnumerateMissingRoot(t *testing.T) {
	c := NewCodex(filepath.Join(t.TempDir(), "nope"), zap.NewNop())
	_, err := c.Enumerate()
	require.ErrorIs(t, err, session.ErrStorageUnavailable)
}

func TestCodexIterUnits(t *testing.T) {
	c, _ := writeCodexFixture(t)
	refs, err := c.Enumerate()
	require.NoError(t, err)

	var units []session.Unit
	err = c.IterUnits(refs[0], func(u session.Unit) error {
		units = append(units, u)
		return nil
	})
	require.NoError(t, err)

	// user message, reasoning, agent message; malformed line and tool
	// result yield nothing
	require.Len(t, units, 3)
	require.Equal(t, session.RoleUser, units[0].Role)
	require.Equal(t, "please fix the flaky widget test", units[0].Text)
	require.Equal(t, session.KindReasoning, units[1].Kind)
	require.Equal(t, session.RoleAssistant, units[2].Role)
	require.Equal(t, session.KindText, units[2].Kind)

	// unit ids order lexicographically in event order
	require.Less(t, units[0].ID, units[1].ID)
	require.Less(t, units[1].ID, units[2].ID)
}

func TestCodexIterUnitsEarlyStop(t *testing.T) {
	c, _ := writeCodexFixture(t)
	refs, err := c.Enumerate()
	require.NoError(t, err)

	seen := 0
	err = c.IterUnits(refs[0], func(u session.Unit) error {
		seen++
		return session.ErrStop
	})
	require.NoError(t, err)
	require.Equal(t, 1, seen)
}

func TestCodexLoadForExport(t *testing.T) {
	c, _ := writeCodexFixture(t)
	refs, err := c.Enumerate()
	require.NoError(t, err)

	doc, err := c.LoadForExport(refs[0])
	require.NoError(t, err)
	require.Equal(t, session.ToolCodex, doc.Source)
	require.Equal(t, "0195f-abc", doc.SessionID)
	require.NotNil(t, doc.Cwd)
	require.Equal(t, "/home/dev/proj", *doc.Cwd)
	require.NotNil(t, doc.StartTime)
	require.NotNil(t, doc.LastUpdated)

	// user, tool_result (system), assistant; reasoning events are not
	// export messages
	require.Len(t, doc.Messages, 3)
	require.Equal(t, "user", doc.Messages[0].Role)
	require.Equal(t, "system", doc.Messages[1].Role)
	require.Equal(t, "2 tests passed", doc.Messages[1].Content)
	require.Equal(t, "tool_result", doc.Messages[1].Extras["type"])
	require.Equal(t, "assistant", doc.Messages[2].Role)
}

func TestCodexResponseItems(t *testing.T) {
	root := t.TempDir()
	dir := filepath.Join(root, "projects", "myproj")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	fixture := `{"timestamp":"2026-04-02T08:00:00Z","type":"response_item","payload":{"type":"message","role":"user","content":[{"type":"input_text","text":"hello there"}]}}
{"timestamp":"2026-04-02T08:00:02Z","type":"response_item","payload":{"type":"message","role":"assistant","content":[{"type":"output_text","text":"hi, "},{"type":"output_text","text":"what next?"}]}}
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "chat.jsonl"), []byte(fixture), 0o644))

	c := NewCodex(root, zap.NewNop())
	refs, err := c.Enumerate()
	require.NoError(t, err)
	require.Len(t, refs, 1)
	require.Equal(t, "projects/myproj/chat", refs[0].ID) // no meta line: path stem

	var units []session.Unit
	require.NoError(t, c.IterUnits(refs[0], func(u session.Unit) error {
		units = append(units, u)
		return nil
	}))
	require.Len(t, units, 2)
	require.Equal(t, session.RoleUser, units[0].Role)
	require.Equal(t, "hi, \nwhat next?", units[1].Text)
}

func TestCodexSameFilenameAcrossProjects(t *testing.T) {
	root := t.TempDir()
	for _, proj := range []string{"alpha", "beta"} {
		dir := filepath.Join(root, "projects", proj)
		require.NoError(t, os.MkdirAll(dir, 0o755))
		line := `{"timestamp":"2026-04-02T08:00:00Z","type":"event_msg","payload":{"type":"user_message","message":"text from ` + proj + `"}}` + "\n"
		require.NoError(t, os.WriteFile(filepath.Join(dir, "chat.jsonl"), []byte(line), 0o644))
	}

	c := NewCodex(root, zap.NewNop())
	refs, err := c.Enumerate()
	require.NoError(t, err)
	require.Len(t, refs, 2)

	// both files stay reachable under distinct ids, each serving its
	// own content
	seen := map[string]bool{}
	for _, ref := range refs {
		require.NoError(t, c.IterUnits(ref, func(u session.Unit) error {
			seen[u.Text] = true
			return nil
		}))
	}
	require.NotEqual(t, refs[0].ID, refs[1].ID)
	require.Len(t, seen, 2)
	require.True(t, seen["text from alpha"])
	require.True(t, seen["text from beta"])
}

func TestCodexDuplicateMetaID(t *testing.T) {
	root := t.TempDir()
	meta := `{"timestamp":"2026-03-01T10:00:00Z","type":"session_meta","payload":{"id":"dup-id","timestamp":"2026-03-01T10:00:00Z"}}` + "\n"
	for _, name := range []string{"one.jsonl", "two.jsonl"} {
		dir := filepath.Join(root, "projects", "p")
		require.NoError(t, os.MkdirAll(dir, 0o755))
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(meta), 0o644))
	}

	c := NewCodex(root, zap.NewNop())
	refs, err := c.Enumerate()
	require.NoError(t, err)
	require.Len(t, refs, 2)
	require.NotEqual(t, refs[0].ID, refs[1].ID)
}

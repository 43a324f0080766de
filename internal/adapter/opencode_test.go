package adapter

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"sessiongrep/internal/session"
)

// writeOpenCodeFixture lays out one project with one session of three
// messages: a user question, an assistant reply whose text is split across
// two parts plus a reasoning part, and a reasoning-only assistant message.
func writeOpenCodeFixture(t *testing.T) *OpenCode {
	t.Helper()
	root := t.TempDir()

	write := func(rel, content string) {
		path := filepath.Join(root, rel)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	}

	write("project/prj_001.json", `{"id":"prj_001","path":"/home/dev/webapp"}`)
	write("session/prj_001/ses_001.json",
		`{"id":"ses_001","projectID":"prj_001","title":"add dark mode toggle","time":{"created":1770000000000,"updated":1770000600000}}`)

	write("message/ses_001/msg_001.json",
		`{"role":"user","time":{"created":1770000010000}}`)
	write("part/msg_001/prt_001.json",
		`{"type":"text","text":"add a dark mode toggle to settings","time":{"created":1770000010000}}`)

	write("message/ses_001/msg_002.json",
		`{"role":"assistant","modelID":"claude-sonnet-4","agent":"build","tokens":{"input":900,"output":210},"time":{"created":1770000020000}}`)
	write("part/msg_002/prt_002.json",
		`{"type":"reasoning","text":"the settings page already has a theme store","time":{"created":1770000019000},"metadata":{"subject":"Scanning settings"}}`)
	write("part/msg_002/prt_003.json",
		`{"type":"text","text":"I added a toggle ","time":{"created":1770000020000}}`)
	write("part/msg_002/prt_004.json",
		`{"type":"text","text":"wired to the theme store.","time":{"created":1770000021000}}`)

	write("message/ses_001/msg_003.json",
		`{"role":"assistant","time":{"created":1770000030000}}`)
	write("part/msg_003/prt_005.json",
		`{"type":"reasoning","text":"user went idle, nothing to emit","time":{"created":1770000030000}}`)

	return NewOpenCode(root, zap.NewNop())
}

func TestOpenCodeEnumerate(t *testing.T) {
	o := writeOpenCodeFixture(t)

	refs, err := o.Enumerate()
	require.NoError(t, err)
	require.Len(t, refs, 1)

	ref := refs[0]
	require.Equal(t, session.ToolOpenCode, ref.Tool)
	require.Equal(t, "ses_001", ref.ID)
	require.Equal(t, "add dark mode toggle", ref.DisplayName)
	require.Equal(t, "/home/dev/webapp", ref.Cwd)
	require.True(t, ref.StartTime.Before(ref.LastUpdated))
}

func TestOpenCodeEnumerateMissingRoot(t *testing.T) {
	o := NewOpenCode(filepath.Join(t.TempDir(), "nope"), zap.NewNop())
	_, err := o.Enumerate()
	require.ErrorIs(t, err, session.ErrStorageUnavailable)
}

func TestOpenCodeIterUnits(t *testing.T) {
	o := writeOpenCodeFixture(t)
	refs, err := o.Enumerate()
	require.NoError(t, err)

	var units []session.Unit
	require.NoError(t, o.IterUnits(refs[0], func(u session.Unit) error {
		units = append(units, u)
		return nil
	}))
	require.Len(t, units, 4)

	// msg_001: single text unit
	require.Equal(t, "msg_001", units[0].ID)
	require.Equal(t, session.RoleUser, units[0].Role)

	// msg_002: concatenated text parts first, then the reasoning part
	require.Equal(t, "msg_002", units[1].ID)
	require.Equal(t, "I added a toggle wired to the theme store.", units[1].Text)
	require.Equal(t, "msg_002/prt_002", units[2].ID)
	require.Equal(t, session.KindReasoning, units[2].Kind)
	require.Equal(t, session.RoleSystem, units[2].Role)

	// msg_003 has no text parts, only its reasoning unit
	require.Equal(t, "msg_003/prt_005", units[3].ID)
	require.Equal(t, session.KindReasoning, units[3].Kind)
}

func TestOpenCodeLoadForExport(t *testing.T) {
	o := writeOpenCodeFixture(t)
	refs, err := o.Enumerate()
	require.NoError(t, err)

	doc, err := o.LoadForExport(refs[0])
	require.NoError(t, err)
	require.Equal(t, session.ToolOpenCode, doc.Source)
	require.NotNil(t, doc.Cwd)
	require.Equal(t, "/home/dev/webapp", *doc.Cwd)
	require.Len(t, doc.Messages, 3)

	assistant := doc.Messages[1]
	require.Equal(t, "assistant", assistant.Role)
	require.Equal(t, "I added a toggle wired to the theme store.", assistant.Content)
	require.Equal(t, "claude-sonnet-4", assistant.Extras["model"])
	require.Equal(t, "build", assistant.Extras["agent"])

	thoughts, ok := assistant.Extras["thoughts"].([]map[string]any)
	require.True(t, ok)
	require.Len(t, thoughts, 1)
	require.Equal(t, "Scanning settings", thoughts[0]["subject"])

	// reasoning-only message exports with empty content and a default
	// thought subject
	last := doc.Messages[2]
	require.Empty(t, last.Content)
	thoughts, ok = last.Extras["thoughts"].([]map[string]any)
	require.True(t, ok)
	require.Equal(t, "Thinking", thoughts[0]["subject"])
}

func TestOpenCodeMessageDirMissing(t *testing.T) {
	root := t.TempDir()
	path := filepath.Join(root, "session", "prj", "ses_empty.json")
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path,
		[]byte(`{"id":"ses_empty","time":{"created":1770000000000,"updated":1770000000000}}`), 0o644))

	o := NewOpenCode(root, zap.NewNop())
	refs, err := o.Enumerate()
	require.NoError(t, err)
	require.Len(t, refs, 1)

	// a session with no message dir yields zero units, not an error
	count := 0
	require.NoError(t, o.IterUnits(refs[0], func(session.Unit) error {
		count++
		return nil
	}))
	require.Zero(t, count)
}

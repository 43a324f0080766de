package adapter

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"go.uber.org/zap"

	"sessiongrep/internal/session"
)

const maxLineSize = 10 * 1024 * 1024 // 10MB

// Codex reads JSON-Lines rollout files: one physical file is one session,
// one line is one event. Session metadata comes from the session_meta
// event when present, else from event timestamps, else from file mtime.
type Codex struct {
	root  string
	log   *zap.Logger
	paths map[string]string // session id -> rollout file
}

func NewCodex(root string, log *zap.Logger) *Codex {
	return &Codex{root: root, log: log, paths: make(map[string]string)}
}

func (c *Codex) Tool() session.Tool { return session.ToolCodex }

type codexRecord struct {
	Timestamp string          `json:"timestamp"`
	Type      string          `json:"type"`
	Payload   json.RawMessage `json:"payload"`
}

type codexMeta struct {
	ID        string `json:"id"`
	Cwd       string `json:"cwd"`
	Timestamp string `json:"timestamp"`
}

type codexEvent struct {
	Type    string `json:"type"`
	Message string `json:"message"` // user_message / agent_message
	Text    string `json:"text"`    // agent_reasoning
	Tool    string `json:"tool"`
	Input   any    `json:"input"`
	Output  any    `json:"output"`
	File    string `json:"file"`
	Diff    string `json:"diff"`
	Model   string `json:"model"`
}

type codexResponseItem struct {
	Type    string `json:"type"`
	Role    string `json:"role"`
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
}

func (c *Codex) Enumerate() ([]session.Ref, error) {
	if _, err := os.Stat(c.root); err != nil {
		return nil, fmt.Errorf("%w: %s", session.ErrStorageUnavailable, c.root)
	}

	files := listPatterned(filepath.Join(c.root, "sessions"), "**/rollout-*.jsonl")
	files = append(files, listPatterned(filepath.Join(c.root, "projects"), "**/*.jsonl")...)

	var refs []session.Ref
	for _, path := range files {
		info, err := os.Stat(path)
		if err != nil {
			continue // vanished mid-scan
		}

		ref := session.Ref{
			Tool:     session.ToolCodex,
			ID:       relStem(c.root, path, ".jsonl"),
			Fallback: info.ModTime(),
		}
		if meta := c.peekMeta(path); meta != nil {
			if meta.ID != "" {
				ref.ID = meta.ID
			}
			ref.Cwd = meta.Cwd
			ref.StartTime = session.ParseTime(meta.Timestamp)
		}
		if prev, ok := c.paths[ref.ID]; ok && prev != path {
			// Duplicate meta id across files: fall back to the path-derived
			// id so neither session shadows the other.
			ref.ID = relStem(c.root, path, ".jsonl")
		}
		c.paths[ref.ID] = path
		refs = append(refs, ref)
	}
	return refs, nil
}

// peekMeta reads only the leading session_meta line, keeping Enumerate
// cheap even against multi-megabyte rollouts.
func (c *Codex) peekMeta(path string) *codexMeta {
	f, err := os.Open(path)
	if err != nil {
		return nil
	}
	defer f.Close()

	r := bufio.NewReaderSize(f, 64*1024)
	line, err := r.ReadBytes('\n')
	if len(line) == 0 && err != nil {
		return nil
	}

	var rec codexRecord
	if err := json.Unmarshal(line, &rec); err != nil || rec.Type != "session_meta" {
		return nil
	}
	var meta codexMeta
	if err := json.Unmarshal(rec.Payload, &meta); err != nil {
		return nil
	}
	return &meta
}

func (c *Codex) IterUnits(ref session.Ref, fn UnitFunc) error {
	path, ok := c.paths[ref.ID]
	if !ok {
		return fmt.Errorf("codex: %w: %s", session.ErrNotFound, ref.ID)
	}
	f, err := os.Open(path)
	if err != nil {
		c.log.Debug("codex session vanished mid-scan", zap.String("path", path))
		return nil
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)

	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var rec codexRecord
		if err := json.Unmarshal(line, &rec); err != nil {
			continue // malformed line drops only itself
		}

		unit := session.Unit{
			Ref:  ref,
			ID:   fmt.Sprintf("%08d", lineNum),
			Time: session.ParseTime(rec.Timestamp),
			Kind: session.KindText,
		}

		switch rec.Type {
		case "event_msg":
			var evt codexEvent
			if err := json.Unmarshal(rec.Payload, &evt); err != nil {
				continue
			}
			switch evt.Type {
			case "user_message":
				unit.Role = session.RoleUser
				unit.Text = strings.TrimSpace(evt.Message)
			case "agent_message":
				unit.Role = session.RoleAssistant
				unit.Text = strings.TrimSpace(evt.Message)
			case "agent_reasoning":
				unit.Role = session.RoleAssistant
				unit.Kind = session.KindReasoning
				unit.Text = strings.TrimSpace(evt.Text)
			default:
				continue
			}

		case "response_item":
			var item codexResponseItem
			if err := json.Unmarshal(rec.Payload, &item); err != nil || item.Type != "message" {
				continue
			}
			unit.Role = session.RoleAssistant
			if item.Role == "user" {
				unit.Role = session.RoleUser
			}
			var parts []string
			for _, cb := range item.Content {
				if (cb.Type == "input_text" || cb.Type == "output_text" || cb.Type == "text") && cb.Text != "" {
					parts = append(parts, cb.Text)
				}
			}
			unit.Text = strings.TrimSpace(strings.Join(parts, "\n"))

		default:
			continue
		}

		if unit.Text == "" {
			continue
		}
		if stop, err := iterStop(fn(unit)); stop || err != nil {
			return err
		}
	}
	return scanner.Err()
}

func (c *Codex) LoadForExport(ref session.Ref) (*session.Document, error) {
	path, ok := c.paths[ref.ID]
	if !ok {
		return nil, fmt.Errorf("codex: %w: %s", session.ErrNotFound, ref.ID)
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("codex: open %s: %w", path, err)
	}
	defer f.Close()

	doc := &session.Document{
		Source:    session.ToolCodex,
		SessionID: ref.ID,
		Messages:  []session.Message{},
	}
	var meta codexMeta
	var firstTS, lastTS string

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	for scanner.Scan() {
		var rec codexRecord
		if err := json.Unmarshal(scanner.Bytes(), &rec); err != nil {
			continue
		}

		switch rec.Type {
		case "session_meta":
			json.Unmarshal(rec.Payload, &meta)

		case "event_msg":
			var evt codexEvent
			if err := json.Unmarshal(rec.Payload, &evt); err != nil {
				continue
			}
			msg, ok := codexMessage(evt, rec.Timestamp)
			if !ok {
				continue
			}
			if firstTS == "" {
				firstTS = rec.Timestamp
			}
			lastTS = rec.Timestamp
			doc.Messages = append(doc.Messages, msg)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("codex: read %s: %w", path, err)
	}

	if meta.Cwd != "" {
		doc.Cwd = &meta.Cwd
	}
	start := session.ParseTime(meta.Timestamp)
	if start.IsZero() {
		start = session.ParseTime(firstTS)
	}
	doc.StartTime = session.ISO(start)
	doc.LastUpdated = session.ISO(session.ParseTime(lastTS))
	return doc, nil
}

// codexMessage normalizes one event_msg payload. Conversation turns become
// user/assistant messages; tool activity is kept as system messages so the
// export preserves diffs and command output.
func codexMessage(evt codexEvent, ts string) (session.Message, bool) {
	msg := session.Message{Timestamp: session.ISO(session.ParseTime(ts))}

	switch evt.Type {
	case "user_message":
		msg.Role = "user"
		msg.Content = strings.TrimSpace(evt.Message)
	case "agent_message":
		msg.Role = "assistant"
		msg.Content = strings.TrimSpace(evt.Message)
		if evt.Model != "" {
			msg.Extras = map[string]any{"model": evt.Model}
		}
	case "tool_use":
		msg.Role = "system"
		msg.Extras = map[string]any{"type": "tool_use", "tool": evt.Tool}
		if evt.Input != nil {
			msg.Extras["input"] = evt.Input
		}
	case "tool_result":
		msg.Role = "system"
		msg.Content = stringify(evt.Output)
		msg.Extras = map[string]any{"type": "tool_result", "tool": evt.Tool}
	case "diff":
		msg.Role = "system"
		msg.Content = evt.Diff
		msg.Extras = map[string]any{"type": "diff", "file": evt.File}
	default:
		return msg, false
	}

	if msg.Content == "" && msg.Extras == nil {
		return msg, false
	}
	return msg, true
}

func stringify(v any) string {
	switch s := v.(type) {
	case nil:
		return ""
	case string:
		return s
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return ""
		}
		return string(b)
	}
}

// relStem returns the root-relative path with ext stripped, slash-separated.
// Used as the session id when a file carries no id of its own: the filename
// stem alone is not unique across directories.
func relStem(root, path, ext string) string {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		rel = filepath.Base(path)
	}
	return strings.TrimSuffix(filepath.ToSlash(rel), ext)
}

// listPatterned walks root and returns files whose root-relative path
// matches the doublestar pattern, in walk order.
func listPatterned(root, pattern string) []string {
	var files []string
	filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil // skip unreadable entries
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return nil
		}
		if ok, _ := doublestar.Match(pattern, filepath.ToSlash(rel)); ok {
			files = append(files, path)
		}
		return nil
	})
	return files
}

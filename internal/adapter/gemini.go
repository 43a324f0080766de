package adapter

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"sessiongrep/internal/session"
)

// Gemini reads single-document sessions: one JSON file per session under
// tmp/<hash>/chats/, metadata in the top-level fields, messages in file
// order.
type Gemini struct {
	root     string
	log      *zap.Logger
	paths    map[string]string
	sessions map[string]*geminiSession // decoded once per run
}

func NewGemini(root string, log *zap.Logger) *Gemini {
	return &Gemini{
		root:     root,
		log:      log,
		paths:    make(map[string]string),
		sessions: make(map[string]*geminiSession),
	}
}

func (g *Gemini) Tool() session.Tool { return session.ToolGemini }

type geminiSession struct {
	SessionID   string          `json:"sessionId"`
	ProjectHash string          `json:"projectHash"`
	StartTime   string          `json:"startTime"`
	LastUpdated string          `json:"lastUpdated"`
	Messages    []geminiMessage `json:"messages"`
}

type geminiMessage struct {
	Type      string          `json:"type"` // "user" or "gemini"
	Content   string          `json:"content"`
	Timestamp string          `json:"timestamp"`
	Model     string          `json:"model"`
	Thoughts  []geminiThought `json:"thoughts"`
	Tokens    json.RawMessage `json:"tokens"`
}

type geminiThought struct {
	Subject     string `json:"subject"`
	Description string `json:"description"`
}

func (g *Gemini) Enumerate() ([]session.Ref, error) {
	if _, err := os.Stat(g.root); err != nil {
		return nil, fmt.Errorf("%w: %s", session.ErrStorageUnavailable, g.root)
	}

	var refs []session.Ref
	for _, path := range listPatterned(filepath.Join(g.root, "tmp"), "**/chats/session-*.json") {
		info, err := os.Stat(path)
		if err != nil {
			continue
		}

		var data geminiSession
		if err := readJSONFile(path, &data); err != nil {
			g.log.Debug("gemini session unreadable", zap.String("path", path), zap.Error(err))
			continue
		}

		id := data.SessionID
		if id == "" {
			id = relStem(g.root, path, ".json")
		}
		if prev, ok := g.paths[id]; ok && prev != path {
			id = relStem(g.root, path, ".json")
		}
		g.paths[id] = path
		g.sessions[id] = &data

		refs = append(refs, session.Ref{
			Tool:        session.ToolGemini,
			ID:          id,
			StartTime:   session.ParseTime(data.StartTime),
			LastUpdated: session.ParseTime(data.LastUpdated),
			Fallback:    info.ModTime(),
			DisplayName: data.ProjectHash,
		})
	}
	return refs, nil
}

func (g *Gemini) IterUnits(ref session.Ref, fn UnitFunc) error {
	data, ok := g.sessions[ref.ID]
	if !ok {
		return fmt.Errorf("gemini: %w: %s", session.ErrNotFound, ref.ID)
	}

	for i, msg := range data.Messages {
		role := session.RoleAssistant
		if msg.Type == "user" {
			role = session.RoleUser
		}
		ts := session.ParseTime(msg.Timestamp)

		if msg.Content != "" {
			unit := session.Unit{
				Ref:  ref,
				ID:   fmt.Sprintf("%06d", i),
				Text: msg.Content,
				Time: ts,
				Role: role,
				Kind: session.KindText,
			}
			if stop, err := iterStop(fn(unit)); stop || err != nil {
				return err
			}
		}

		if text := thoughtText(msg.Thoughts); text != "" {
			unit := session.Unit{
				Ref:  ref,
				ID:   fmt.Sprintf("%06d/thoughts", i),
				Text: text,
				Time: ts,
				Role: role,
				Kind: session.KindReasoning,
			}
			if stop, err := iterStop(fn(unit)); stop || err != nil {
				return err
			}
		}
	}
	return nil
}

func thoughtText(thoughts []geminiThought) string {
	var parts []string
	for _, th := range thoughts {
		s := strings.TrimSpace(strings.TrimSpace(th.Subject) + "\n" + th.Description)
		if s != "" {
			parts = append(parts, s)
		}
	}
	return strings.Join(parts, "\n")
}

func (g *Gemini) LoadForExport(ref session.Ref) (*session.Document, error) {
	data, ok := g.sessions[ref.ID]
	if !ok {
		return nil, fmt.Errorf("gemini: %w: %s", session.ErrNotFound, ref.ID)
	}

	doc := &session.Document{
		Source:      session.ToolGemini,
		SessionID:   ref.ID,
		StartTime:   session.ISO(session.ParseTime(data.StartTime)),
		LastUpdated: session.ISO(session.ParseTime(data.LastUpdated)),
		Messages:    []session.Message{},
	}

	for _, msg := range data.Messages {
		out := session.Message{
			Content:   msg.Content,
			Timestamp: session.ISO(session.ParseTime(msg.Timestamp)),
		}
		switch msg.Type {
		case "user":
			out.Role = "user"
		case "gemini":
			out.Role = "assistant"
		default:
			continue
		}

		extras := map[string]any{}
		if msg.Model != "" {
			extras["model"] = msg.Model
		}
		if len(msg.Thoughts) > 0 {
			extras["thoughts"] = msg.Thoughts
		}
		if len(msg.Tokens) > 0 && string(msg.Tokens) != "null" {
			extras["tokens"] = msg.Tokens
		}
		if len(extras) > 0 {
			out.Extras = extras
		}
		doc.Messages = append(doc.Messages, out)
	}
	return doc, nil
}

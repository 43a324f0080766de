package adapter

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"go.uber.org/zap"

	"sessiongrep/internal/session"
)

// OpenCode reads the fragmented storage hierarchy: session identity lives
// in session/<project>/<session>.json, but content is scattered across
// message/<session>/<msg>.json and part/<msg>/<part>.json. Filenames are
// monotonically increasing ids, so lexicographic order is chronological
// order everywhere in this tree. All timestamps are Unix-epoch
// milliseconds.
//
// This is the read-heavy adapter (one file per message plus one per part),
// so nothing is loaded ahead of the unit being iterated.
type OpenCode struct {
	root     string
	log      *zap.Logger
	paths    map[string]string // session id -> session file
	projects map[string]string // project id -> cwd, cached per run
}

func NewOpenCode(root string, log *zap.Logger) *OpenCode {
	return &OpenCode{
		root:     root,
		log:      log,
		paths:    make(map[string]string),
		projects: make(map[string]string),
	}
}

func (o *OpenCode) Tool() session.Tool { return session.ToolOpenCode }

type ocTime struct {
	Created int64 `json:"created"`
	Updated int64 `json:"updated"`
}

type ocSession struct {
	ID        string `json:"id"`
	ProjectID string `json:"projectID"`
	Title     string `json:"title"`
	Time      ocTime `json:"time"`
}

type ocMessage struct {
	Role    string         `json:"role"`
	ModelID string         `json:"modelID"`
	Agent   string         `json:"agent"`
	Tokens  map[string]any `json:"tokens"`
	Time    ocTime         `json:"time"`
}

type ocPart struct {
	Type     string `json:"type"` // "text" or "reasoning"
	Text     string `json:"text"`
	Time     ocTime `json:"time"`
	Metadata struct {
		Subject string `json:"subject"`
	} `json:"metadata"`
}

func (o *OpenCode) Enumerate() ([]session.Ref, error) {
	sessionRoot := filepath.Join(o.root, "session")
	if _, err := os.Stat(sessionRoot); err != nil {
		return nil, fmt.Errorf("%w: %s", session.ErrStorageUnavailable, o.root)
	}

	var refs []session.Ref
	for _, projDir := range sortedSubdirs(sessionRoot) {
		for _, path := range sortedJSONFiles(projDir) {
			var sess ocSession
			if err := readJSONFile(path, &sess); err != nil {
				o.log.Debug("opencode session unreadable", zap.String("path", path), zap.Error(err))
				continue
			}
			id := sess.ID
			if id == "" {
				id = strings.TrimSuffix(filepath.Base(path), ".json")
			}

			info, err := os.Stat(path)
			if err != nil {
				continue
			}

			o.paths[id] = path
			refs = append(refs, session.Ref{
				Tool:        session.ToolOpenCode,
				ID:          id,
				StartTime:   session.FromMillis(sess.Time.Created),
				LastUpdated: session.FromMillis(sess.Time.Updated),
				Fallback:    info.ModTime(),
				Cwd:         o.projectCwd(sess.ProjectID),
				DisplayName: sess.Title,
			})
		}
	}
	return refs, nil
}

func (o *OpenCode) projectCwd(projectID string) string {
	if projectID == "" {
		return ""
	}
	if cwd, ok := o.projects[projectID]; ok {
		return cwd
	}
	var proj struct {
		Path string `json:"path"`
		Cwd  string `json:"cwd"`
	}
	cwd := ""
	if err := readJSONFile(filepath.Join(o.root, "project", projectID+".json"), &proj); err == nil {
		cwd = proj.Path
		if cwd == "" {
			cwd = proj.Cwd
		}
	}
	o.projects[projectID] = cwd
	return cwd
}

// IterUnits assembles one text unit per message by concatenating its
// primary text parts in part order; reasoning parts stay separate units
// tagged role=system so a hit inside reasoning is never mistaken for a hit
// in the visible reply.
func (o *OpenCode) IterUnits(ref session.Ref, fn UnitFunc) error {
	if _, ok := o.paths[ref.ID]; !ok {
		return fmt.Errorf("opencode: %w: %s", session.ErrNotFound, ref.ID)
	}

	for _, msgPath := range sortedJSONFiles(filepath.Join(o.root, "message", ref.ID)) {
		var msg ocMessage
		if err := readJSONFile(msgPath, &msg); err != nil {
			continue // malformed message drops only itself
		}
		msgID := strings.TrimSuffix(filepath.Base(msgPath), ".json")
		role := session.RoleAssistant
		if msg.Role == "user" {
			role = session.RoleUser
		}

		var texts []string
		var reasoning []session.Unit
		for _, partPath := range sortedJSONFiles(filepath.Join(o.root, "part", msgID)) {
			var part ocPart
			if err := readJSONFile(partPath, &part); err != nil {
				continue
			}
			switch part.Type {
			case "text":
				texts = append(texts, part.Text)
			case "reasoning":
				if part.Text == "" {
					continue
				}
				partID := strings.TrimSuffix(filepath.Base(partPath), ".json")
				reasoning = append(reasoning, session.Unit{
					Ref:  ref,
					ID:   msgID + "/" + partID,
					Text: part.Text,
					Time: session.FromMillis(part.Time.Created),
					Role: session.RoleSystem,
					Kind: session.KindReasoning,
				})
			}
		}

		if text := strings.Join(texts, ""); text != "" {
			unit := session.Unit{
				Ref:  ref,
				ID:   msgID,
				Text: text,
				Time: session.FromMillis(msg.Time.Created),
				Role: role,
				Kind: session.KindText,
			}
			if stop, err := iterStop(fn(unit)); stop || err != nil {
				return err
			}
		}
		for _, unit := range reasoning {
			if stop, err := iterStop(fn(unit)); stop || err != nil {
				return err
			}
		}
	}
	return nil
}

func (o *OpenCode) LoadForExport(ref session.Ref) (*session.Document, error) {
	path, ok := o.paths[ref.ID]
	if !ok {
		return nil, fmt.Errorf("opencode: %w: %s", session.ErrNotFound, ref.ID)
	}
	var sess ocSession
	if err := readJSONFile(path, &sess); err != nil {
		return nil, fmt.Errorf("opencode: read %s: %w", path, err)
	}

	doc := &session.Document{
		Source:      session.ToolOpenCode,
		SessionID:   ref.ID,
		StartTime:   session.ISO(session.FromMillis(sess.Time.Created)),
		LastUpdated: session.ISO(session.FromMillis(sess.Time.Updated)),
		Messages:    []session.Message{},
	}
	if cwd := o.projectCwd(sess.ProjectID); cwd != "" {
		doc.Cwd = &cwd
	}

	for _, msgPath := range sortedJSONFiles(filepath.Join(o.root, "message", ref.ID)) {
		var msg ocMessage
		if err := readJSONFile(msgPath, &msg); err != nil {
			continue
		}
		msgID := strings.TrimSuffix(filepath.Base(msgPath), ".json")

		var texts []string
		var thoughts []map[string]any
		for _, partPath := range sortedJSONFiles(filepath.Join(o.root, "part", msgID)) {
			var part ocPart
			if err := readJSONFile(partPath, &part); err != nil {
				continue
			}
			switch part.Type {
			case "text":
				texts = append(texts, part.Text)
			case "reasoning":
				subject := part.Metadata.Subject
				if subject == "" {
					subject = "Thinking"
				}
				thought := map[string]any{
					"subject":     subject,
					"description": part.Text,
				}
				if ts := session.ISO(session.FromMillis(part.Time.Created)); ts != nil {
					thought["timestamp"] = *ts
				}
				thoughts = append(thoughts, thought)
			}
		}

		out := session.Message{
			Role:      msg.Role,
			Content:   strings.Join(texts, ""),
			Timestamp: session.ISO(session.FromMillis(msg.Time.Created)),
		}
		extras := map[string]any{}
		if msg.ModelID != "" {
			extras["model"] = msg.ModelID
		}
		if msg.Agent != "" {
			extras["agent"] = msg.Agent
		}
		if len(msg.Tokens) > 0 {
			extras["tokens"] = msg.Tokens
		}
		if len(thoughts) > 0 {
			extras["thoughts"] = thoughts
		}
		if len(extras) > 0 {
			out.Extras = extras
		}
		doc.Messages = append(doc.Messages, out)
	}
	return doc, nil
}

func sortedSubdirs(dir string) []string {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil
	}
	var dirs []string
	for _, e := range entries {
		if e.IsDir() {
			dirs = append(dirs, filepath.Join(dir, e.Name()))
		}
	}
	sort.Strings(dirs)
	return dirs
}

// sortedJSONFiles lists the .json files of one directory in lexicographic
// name order, the tree's chronological order.
func sortedJSONFiles(dir string) []string {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil // missing dir means no units, not an error
	}
	var files []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		files = append(files, filepath.Join(dir, e.Name()))
	}
	sort.Strings(files)
	return files
}

package adapter

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"sessiongrep/internal/session"
)

// Cursor reads sessions out of state.vscdb SQLite databases. Composer
// sessions live in the global store's cursorDiskKV table as serialized
// blobs keyed composerData:{id}, with long conversations split into
// separate bubbleId:{id}:{bubble} rows; legacy chat tabs live in each
// workspace store's ItemTable. The store has no directory structure, so
// session boundaries come entirely from the key naming convention: a
// bubble key whose composer id matches no enumerated root is orphaned and
// excluded.
type Cursor struct {
	root    string
	log     *zap.Logger
	index   *refIndex
	sources map[string]*cursorSource
	bubbles map[string][]string // composer id -> bubble keys, key order
}

func NewCursor(root string, log *zap.Logger) *Cursor {
	return &Cursor{
		root:    root,
		log:     log,
		index:   newRefIndex(),
		sources: make(map[string]*cursorSource),
		bubbles: make(map[string][]string),
	}
}

func (c *Cursor) Tool() session.Tool { return session.ToolCursor }

type cursorSource struct {
	dbPath      string
	workspaceID string          // empty for the global store
	composer    *cursorComposer // nil for chat tabs
	tab         *cursorChatTab  // nil for composers
}

type cursorComposer struct {
	ComposerID    string           `json:"composerId"`
	Name          string           `json:"name"`
	Status        string           `json:"status"`
	UnifiedMode   string           `json:"unifiedMode"`
	CreatedAt     any              `json:"createdAt"`
	LastUpdatedAt any              `json:"lastUpdatedAt"`
	Conversation  []composerBubble `json:"conversation"`
}

type composerBubble struct {
	Type      int    `json:"type"` // 1 user, 2 assistant
	Text      string `json:"text"`
	CreatedAt any    `json:"createdAt"`
	Timestamp any    `json:"timestamp"`
	Context   *struct {
		Selections []cursorSelection `json:"selections"`
	} `json:"context"`
	CodeBlocks          json.RawMessage `json:"codeBlocks"`
	SuggestedCodeBlocks json.RawMessage `json:"suggestedCodeBlocks"`
	DiffHistories       json.RawMessage `json:"diffHistories"`
	ToolResults         json.RawMessage `json:"toolResults"`
}

type cursorChatTab struct {
	TabID     string       `json:"tabId"`
	ChatTitle string       `json:"chatTitle"`
	Bubbles   []chatBubble `json:"bubbles"`
}

type chatBubble struct {
	Type           string            `json:"type"` // "user" or "ai"
	Text           string            `json:"text"`
	RawText        string            `json:"rawText"`
	Selections     []cursorSelection `json:"selections"`
	SuggestedDiffs json.RawMessage   `json:"suggestedDiffs"`
}

type cursorSelection struct {
	URI struct {
		FsPath string `json:"fsPath"`
	} `json:"uri"`
	Text    string          `json:"text"`
	RawText string          `json:"rawText"`
	Range   json.RawMessage `json:"range"`
}

func (c *Cursor) Enumerate() ([]session.Ref, error) {
	if _, err := os.Stat(c.root); err != nil {
		return nil, fmt.Errorf("%w: %s", session.ErrStorageUnavailable, c.root)
	}

	var refs []session.Ref
	refs = append(refs, c.enumerateGlobal()...)
	refs = append(refs, c.enumerateWorkspaces()...)
	return refs, nil
}

func (c *Cursor) enumerateGlobal() []session.Ref {
	dbPath := filepath.Join(c.root, "User", "globalStorage", "state.vscdb")
	info, err := os.Stat(dbPath)
	if err != nil {
		return nil
	}
	db, err := openReadOnly(dbPath)
	if err != nil {
		c.log.Warn("cursor global store unreadable", zap.String("path", dbPath), zap.Error(err))
		return nil
	}
	defer db.Close()

	var refs []session.Ref
	rows, err := db.Query(
		"SELECT key, value FROM cursorDiskKV WHERE key LIKE 'composerData:%' AND value IS NOT NULL")
	if err != nil {
		c.log.Warn("cursor composer scan failed", zap.Error(err))
		return nil
	}
	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			continue
		}
		var comp cursorComposer
		if err := json.Unmarshal([]byte(value), &comp); err != nil {
			continue // malformed blob drops only itself
		}
		if comp.ComposerID == "" {
			comp.ComposerID = strings.TrimPrefix(key, "composerData:")
		}

		ref := session.Ref{
			Tool:        session.ToolCursor,
			ID:          comp.ComposerID,
			StartTime:   epochOrISO(comp.CreatedAt),
			LastUpdated: epochOrISO(comp.LastUpdatedAt),
			Fallback:    info.ModTime(),
			DisplayName: comp.Name,
		}
		c.sources[ref.ID] = &cursorSource{dbPath: dbPath, composer: &comp}
		c.index.add(ref.ID, ref)
		refs = append(refs, ref)
	}
	rows.Close()

	// Key-namespace pass for fragment rows. Only the composer id is needed
	// here; values are fetched lazily per session.
	keyRows, err := db.Query("SELECT key FROM cursorDiskKV WHERE key LIKE 'bubbleId:%'")
	if err != nil {
		return refs
	}
	defer keyRows.Close()
	for keyRows.Next() {
		var key string
		if err := keyRows.Scan(&key); err != nil {
			continue
		}
		parts := strings.SplitN(key, ":", 3)
		if len(parts) < 3 {
			continue
		}
		if _, ok := c.index.resolve(parts[1]); !ok {
			c.log.Debug("orphan cursor fragment dropped", zap.String("key", key))
			continue
		}
		c.bubbles[parts[1]] = append(c.bubbles[parts[1]], key)
	}
	for id := range c.bubbles {
		sort.Strings(c.bubbles[id])
	}
	return refs
}

func (c *Cursor) enumerateWorkspaces() []session.Ref {
	wsRoot := filepath.Join(c.root, "User", "workspaceStorage")
	entries, err := os.ReadDir(wsRoot)
	if err != nil {
		return nil
	}

	var refs []session.Ref
	for _, e := range entries {
		if !e.IsDir() || e.Name() == "ext-dev" {
			continue
		}
		dbPath := filepath.Join(wsRoot, e.Name(), "state.vscdb")
		info, err := os.Stat(dbPath)
		if err != nil {
			continue
		}
		for _, comp := range c.readWorkspaceComposers(dbPath) {
			if comp.ComposerID == "" {
				continue
			}
			ref := session.Ref{
				Tool:        session.ToolCursor,
				ID:          comp.ComposerID,
				StartTime:   epochOrISO(comp.CreatedAt),
				LastUpdated: epochOrISO(comp.LastUpdatedAt),
				Fallback:    info.ModTime(),
				DisplayName: comp.Name,
			}
			c.sources[ref.ID] = &cursorSource{dbPath: dbPath, workspaceID: e.Name(), composer: comp}
			c.index.add(ref.ID, ref)
			refs = append(refs, ref)
		}
		for _, tab := range c.readChatTabs(dbPath) {
			if tab.TabID == "" || len(tab.Bubbles) == 0 {
				continue
			}
			ref := session.Ref{
				Tool:        session.ToolCursor,
				ID:          tab.TabID,
				Fallback:    info.ModTime(),
				DisplayName: tab.ChatTitle,
			}
			c.sources[ref.ID] = &cursorSource{dbPath: dbPath, workspaceID: e.Name(), tab: tab}
			c.index.add(ref.ID, ref)
			refs = append(refs, ref)
		}
	}
	return refs
}

// readWorkspaceComposers loads the per-workspace composer registry. These
// conversations are stored inline, never as fragment rows.
func (c *Cursor) readWorkspaceComposers(dbPath string) []*cursorComposer {
	db, err := openReadOnly(dbPath)
	if err != nil {
		c.log.Debug("cursor workspace store unreadable", zap.String("path", dbPath), zap.Error(err))
		return nil
	}
	defer db.Close()

	var value string
	err = db.QueryRow("SELECT value FROM ItemTable WHERE key = 'composer.composerData'").Scan(&value)
	if err != nil {
		return nil
	}
	var data struct {
		AllComposers []*cursorComposer `json:"allComposers"`
	}
	if err := json.Unmarshal([]byte(value), &data); err != nil {
		return nil
	}
	return data.AllComposers
}

func (c *Cursor) readChatTabs(dbPath string) []*cursorChatTab {
	db, err := openReadOnly(dbPath)
	if err != nil {
		c.log.Debug("cursor workspace store unreadable", zap.String("path", dbPath), zap.Error(err))
		return nil
	}
	defer db.Close()

	var value string
	err = db.QueryRow(
		"SELECT value FROM ItemTable WHERE key = 'workbench.panel.aichat.view.aichat.chatdata'").
		Scan(&value)
	if err != nil {
		return nil
	}
	var data struct {
		Tabs []*cursorChatTab `json:"tabs"`
	}
	if err := json.Unmarshal([]byte(value), &data); err != nil {
		return nil
	}
	return data.Tabs
}

func (c *Cursor) IterUnits(ref session.Ref, fn UnitFunc) error {
	src, ok := c.sources[ref.ID]
	if !ok {
		return fmt.Errorf("cursor: %w: %s", session.ErrNotFound, ref.ID)
	}

	if src.tab != nil {
		for i, b := range src.tab.Bubbles {
			text := b.RawText
			if text == "" {
				text = b.Text
			}
			if text == "" {
				continue
			}
			role := session.RoleAssistant
			if b.Type == "user" {
				role = session.RoleUser
			}
			unit := session.Unit{
				Ref:  ref,
				ID:   fmt.Sprintf("%06d", i),
				Text: text,
				Role: role,
				Kind: session.KindText,
			}
			if stop, err := iterStop(fn(unit)); stop || err != nil {
				return err
			}
		}
		return nil
	}

	bubbles := src.composer.Conversation
	if len(bubbles) == 0 {
		var err error
		bubbles, err = c.fetchBubbles(src.dbPath, ref.ID)
		if err != nil {
			c.log.Debug("cursor fragments unreadable", zap.String("composer", ref.ID), zap.Error(err))
			return nil
		}
	}

	for i, b := range bubbles {
		if b.Text == "" {
			continue
		}
		role := session.RoleAssistant
		if b.Type == 1 {
			role = session.RoleUser
		}
		unit := session.Unit{
			Ref:  ref,
			ID:   fmt.Sprintf("%06d", i),
			Text: b.Text,
			Time: bubbleTime(b),
			Role: role,
			Kind: session.KindText,
		}
		if stop, err := iterStop(fn(unit)); stop || err != nil {
			return err
		}
	}
	return nil
}

// fetchBubbles loads a composer's separately stored fragment rows, ordered
// by their embedded creation time where present, else by key order.
func (c *Cursor) fetchBubbles(dbPath, composerID string) ([]composerBubble, error) {
	db, err := openReadOnly(dbPath)
	if err != nil {
		return nil, err
	}
	defer db.Close()

	keys := c.bubbles[composerID]
	bubbles := make([]composerBubble, 0, len(keys))
	for _, key := range keys {
		var value string
		if err := db.QueryRow("SELECT value FROM cursorDiskKV WHERE key = ?", key).Scan(&value); err != nil {
			continue // row vanished mid-scan
		}
		var b composerBubble
		if err := json.Unmarshal([]byte(value), &b); err != nil {
			continue
		}
		bubbles = append(bubbles, b)
	}

	sort.SliceStable(bubbles, func(i, j int) bool {
		return bubbleTime(bubbles[i]).Before(bubbleTime(bubbles[j]))
	})
	return bubbles, nil
}

func bubbleTime(b composerBubble) time.Time {
	if t := epochOrISO(b.CreatedAt); !t.IsZero() {
		return t
	}
	return epochOrISO(b.Timestamp)
}

func (c *Cursor) LoadForExport(ref session.Ref) (*session.Document, error) {
	src, ok := c.sources[ref.ID]
	if !ok {
		return nil, fmt.Errorf("cursor: %w: %s", session.ErrNotFound, ref.ID)
	}

	doc := &session.Document{
		Source:    session.ToolCursor,
		SessionID: ref.ID,
		Messages:  []session.Message{},
	}

	if src.tab != nil {
		for _, b := range src.tab.Bubbles {
			text := b.RawText
			if text == "" {
				text = b.Text
			}
			role := "assistant"
			if b.Type == "user" {
				role = "user"
			}
			msg := session.Message{Role: role, Content: text}
			extras := map[string]any{}
			if ctx := selectionContext(b.Selections); len(ctx) > 0 {
				extras["code_context"] = ctx
			}
			if rawSet(b.SuggestedDiffs) {
				extras["suggested_diffs"] = b.SuggestedDiffs
			}
			if len(extras) > 0 {
				msg.Extras = extras
			}
			doc.Messages = append(doc.Messages, msg)
		}
		return doc, nil
	}

	comp := src.composer
	doc.StartTime = session.ISO(epochOrISO(comp.CreatedAt))
	doc.LastUpdated = session.ISO(epochOrISO(comp.LastUpdatedAt))

	bubbles := comp.Conversation
	if len(bubbles) == 0 {
		var err error
		bubbles, err = c.fetchBubbles(src.dbPath, ref.ID)
		if err != nil {
			return nil, fmt.Errorf("cursor: load fragments for %s: %w", ref.ID, err)
		}
	}

	for _, b := range bubbles {
		role := "assistant"
		if b.Type == 1 {
			role = "user"
		}
		msg := session.Message{
			Role:      role,
			Content:   b.Text,
			Timestamp: session.ISO(bubbleTime(b)),
		}
		extras := map[string]any{}
		if b.Context != nil {
			if ctx := selectionContext(b.Context.Selections); len(ctx) > 0 {
				extras["code_context"] = ctx
			}
		}
		if rawSet(b.CodeBlocks) {
			extras["code_blocks"] = b.CodeBlocks
		}
		if rawSet(b.SuggestedCodeBlocks) {
			extras["suggested_code_blocks"] = b.SuggestedCodeBlocks
		}
		if rawSet(b.DiffHistories) {
			extras["diff_histories"] = b.DiffHistories
		}
		if rawSet(b.ToolResults) {
			extras["tool_results"] = b.ToolResults
		}
		if len(extras) > 0 {
			msg.Extras = extras
		}
		doc.Messages = append(doc.Messages, msg)
	}
	return doc, nil
}

func selectionContext(sels []cursorSelection) []map[string]any {
	var ctx []map[string]any
	for _, sel := range sels {
		if sel.URI.FsPath == "" {
			continue
		}
		code := sel.Text
		if code == "" {
			code = sel.RawText
		}
		entry := map[string]any{"file": sel.URI.FsPath, "code": code}
		if rawSet(sel.Range) {
			entry["range"] = sel.Range
		}
		ctx = append(ctx, entry)
	}
	return ctx
}

func rawSet(raw json.RawMessage) bool {
	s := string(raw)
	return len(raw) > 0 && s != "null" && s != "[]" && s != "{}"
}

// epochOrISO handles the two timestamp encodings found in cursor blobs:
// numeric epoch (ms or s) and ISO-8601 strings.
func epochOrISO(v any) time.Time {
	switch t := v.(type) {
	case float64:
		return session.FromEpoch(t)
	case string:
		return session.ParseTime(t)
	}
	return time.Time{}
}

func openReadOnly(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", "file:"+path+"?mode=ro")
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

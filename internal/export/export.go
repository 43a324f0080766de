// Package export writes a normalized session document to disk as JSON.
package export

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"sessiongrep/internal/session"
)

const maxIDLen = 80

// Filename returns the deterministic output name for a document,
// "{source}_{session_id}.json". The id is sanitized so the name is always a
// single safe path component; exporting the same session twice yields the
// same name.
func Filename(doc *session.Document) string {
	id := sanitize(doc.SessionID)
	if id == "" {
		id = "session"
	}
	return fmt.Sprintf("%s_%s.json", doc.Source, id)
}

func sanitize(id string) string {
	var b strings.Builder
	for _, r := range id {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_', r == '.':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	s := strings.Trim(b.String(), "._")
	if len(s) > maxIDLen {
		s = s[:maxIDLen]
	}
	return s
}

// Write serializes the document into dir atomically: the JSON is staged in a
// temp file and renamed into place, so a failure never leaves a partial
// export and a rerun simply overwrites the previous one. Returns the full
// path written.
func Write(doc *session.Document, dir string) (string, error) {
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return "", fmt.Errorf("export: encode %s/%s: %w", doc.Source, doc.SessionID, err)
	}
	data = append(data, '\n')

	dest := filepath.Join(dir, Filename(doc))
	tmp, err := os.CreateTemp(dir, ".sgrep-export-*")
	if err != nil {
		return "", fmt.Errorf("export: stage file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return "", fmt.Errorf("export: write %s: %w", dest, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return "", fmt.Errorf("export: write %s: %w", dest, err)
	}
	if err := os.Rename(tmpName, dest); err != nil {
		os.Remove(tmpName)
		return "", fmt.Errorf("export: finalize %s: %w", dest, err)
	}
	return dest, nil
}

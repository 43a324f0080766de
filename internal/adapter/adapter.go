// Package adapter turns each tool's on-disk session layout into the uniform
// Ref/Unit stream the search engine consumes. One concrete adapter exists
// per tool; nothing outside this package branches on storage shape.
package adapter

import (
	"encoding/json"
	"errors"
	"os"

	"go.uber.org/zap"

	"sessiongrep/internal/config"
	"sessiongrep/internal/session"
)

// UnitFunc receives units in session order. Returning session.ErrStop ends
// the iteration early without error; any other error aborts it.
type UnitFunc func(session.Unit) error

// Adapter is the storage contract shared by all tools.
//
// Enumerate is a cheap metadata pass; IterUnits reads lazily so a session
// is never fully materialized before its first match, and tolerates files
// appearing or disappearing mid-scan (a live agent may be writing).
// IterUnits and LoadForExport accept refs returned by Enumerate.
type Adapter interface {
	Tool() session.Tool
	Enumerate() ([]session.Ref, error)
	IterUnits(ref session.Ref, fn UnitFunc) error
	LoadForExport(ref session.Ref) (*session.Document, error)
}

// ForConfig builds the adapter set for the configured roots, one per tool,
// in presentation order.
func ForConfig(cfg *config.Config, log *zap.Logger) []Adapter {
	return []Adapter{
		NewCodex(cfg.CodexRoot, log),
		NewGemini(cfg.GeminiRoot, log),
		NewOpenCode(cfg.OpenCodeRoot, log),
		NewCursor(cfg.CursorRoot, log),
	}
}

// readJSONFile decodes one JSON file into dst. A missing or malformed file
// is reported as-is; callers decide whether that drops a unit or a session.
func readJSONFile(path string, dst any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, dst)
}

// iterStop reports whether an IterUnits callback ended iteration on
// purpose, turning the sentinel into a clean return.
func iterStop(err error) (bool, error) {
	if err == nil {
		return false, nil
	}
	if errors.Is(err, session.ErrStop) {
		return true, nil
	}
	return false, err
}

package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

type Config struct {
	CodexRoot    string   `toml:"codex_root"`
	GeminiRoot   string   `toml:"gemini_root"`
	OpenCodeRoot string   `toml:"opencode_root"`
	CursorRoot   string   `toml:"cursor_root"`
	TimeOrder    []string `toml:"time_order"` // candidate date priority: updated, started, fallback
}

// DefaultTimeOrder is the field priority used to pick a session's
// chronological key when the config does not override it.
var DefaultTimeOrder = []string{"updated", "started", "fallback"}

func Load() (*Config, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, err
	}
	return loadFrom(filepath.Join(home, ".config", "sgrep", "config.toml"), home)
}

func loadFrom(cfgPath, home string) (*Config, error) {
	cfg := &Config{
		CodexRoot:    filepath.Join(home, ".codex"),
		GeminiRoot:   filepath.Join(home, ".gemini"),
		OpenCodeRoot: filepath.Join(home, ".local", "share", "opencode", "storage"),
		CursorRoot:   filepath.Join(home, ".config", "Cursor"),
	}

	if _, err := os.Stat(cfgPath); err == nil {
		if _, err := toml.DecodeFile(cfgPath, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", cfgPath, err)
		}
	}

	cfg.CodexRoot = expandHome(cfg.CodexRoot, home)
	cfg.GeminiRoot = expandHome(cfg.GeminiRoot, home)
	cfg.OpenCodeRoot = expandHome(cfg.OpenCodeRoot, home)
	cfg.CursorRoot = expandHome(cfg.CursorRoot, home)

	if len(cfg.TimeOrder) == 0 {
		cfg.TimeOrder = DefaultTimeOrder
	}
	for _, f := range cfg.TimeOrder {
		switch f {
		case "updated", "started", "fallback":
		default:
			return nil, fmt.Errorf("config %s: unknown time_order field %q", cfgPath, f)
		}
	}

	return cfg, nil
}

func expandHome(path, home string) string {
	if len(path) > 1 && path[0] == '~' && path[1] == '/' {
		return filepath.Join(home, path[2:])
	}
	return path
}

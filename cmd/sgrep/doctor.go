package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"sessiongrep/internal/adapter"
	"sessiongrep/internal/config"
	"sessiongrep/internal/render"
	"sessiongrep/internal/session"
)

func doctorCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Self-check: verify each store root and count sessions",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("config: %w", err)
			}
			log := newLogger()
			defer log.Sync()

			fmt.Println("=== Roots ===")
			checkDir("codex", cfg.CodexRoot)
			checkDir("gemini-cli", cfg.GeminiRoot)
			checkDir("opencode", cfg.OpenCodeRoot)
			checkDir("cursor", cfg.CursorRoot)

			fmt.Println("\n=== Sessions ===")
			for _, a := range adapter.ForConfig(cfg, log) {
				refs, err := a.Enumerate()
				switch {
				case errors.Is(err, session.ErrStorageUnavailable):
					fmt.Printf("  %-10s unavailable\n", a.Tool())
				case err != nil:
					fmt.Printf("  %-10s error: %v\n", a.Tool(), err)
				default:
					fmt.Printf("  %-10s %d session(s)\n", a.Tool(), len(refs))
				}
			}
			return nil
		},
	}
}

func checkDir(name, path string) {
	display := render.Tildeify(path)
	if info, err := os.Stat(path); err != nil {
		fmt.Printf("  %-10s %s (NOT FOUND)\n", name, display)
	} else if !info.IsDir() {
		fmt.Printf("  %-10s %s (NOT A DIRECTORY)\n", name, display)
	} else {
		fmt.Printf("  %-10s %s (OK)\n", name, display)
	}
}

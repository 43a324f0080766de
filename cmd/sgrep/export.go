package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"sessiongrep/internal/adapter"
	"sessiongrep/internal/config"
	"sessiongrep/internal/export"
	"sessiongrep/internal/render"
	"sessiongrep/internal/search"
	"sessiongrep/internal/session"
)

func exportCmd() *cobra.Command {
	var outDir string

	cmd := &cobra.Command{
		Use:   "export <tool> <session-id>",
		Short: "Export one session as normalized JSON without searching",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			tool, err := session.ParseTool(args[0])
			if err != nil {
				return err
			}
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			log := newLogger()
			defer log.Sync()

			engine := search.New(adapter.ForConfig(cfg, log), log)
			a, ref, err := engine.Resolve(tool, args[1])
			if err != nil {
				return err
			}
			doc, err := a.LoadForExport(ref)
			if err != nil {
				return err
			}
			path, err := export.Write(doc, outDir)
			if err != nil {
				return err
			}
			fmt.Printf("Exported %s\n", render.Tildeify(path))
			return nil
		},
	}

	cmd.Flags().StringVar(&outDir, "out-dir", ".", "Directory the exported JSON is written to")
	return cmd
}

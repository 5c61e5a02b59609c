package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"gapscan/internal/scan"
)

func newLibrariesCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "libraries",
		Short: "List the libraries exposed by the media server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			logger, err := ctx.logger(cmd, cfg)
			if err != nil {
				return fmt.Errorf("init logger: %w", err)
			}
			source, err := scan.NewLibrarySource(cfg, logger)
			if err != nil {
				return err
			}
			sections, err := source.Libraries(cmd.Context())
			if err != nil {
				return err
			}
			if ctx.jsonOutput() {
				return writeJSON(cmd, sections)
			}

			out := cmd.OutOrStdout()
			if len(sections) == 0 {
				fmt.Fprintln(out, "No libraries found")
				return nil
			}
			rows := make([][]string, 0, len(sections))
			for _, section := range sections {
				configured := ""
				switch section.Title {
				case cfg.Library.MoviesLibrary:
					configured = "movies"
				case cfg.Library.ShowsLibrary:
					configured = "shows"
				}
				rows = append(rows, []string{section.Key, section.Title, string(section.Kind), configured})
			}
			fmt.Fprintln(out, renderTable([]string{"Key", "Title", "Kind", "Configured"}, rows, nil))
			return nil
		},
	}
}

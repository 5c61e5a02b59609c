package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"gapscan/internal/config"
	"gapscan/internal/scan"
)

func newConfigCommand(ctx *commandContext) *cobra.Command {
	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Configuration utilities",
	}

	configCmd.AddCommand(newConfigValidateCommand(ctx))
	configCmd.AddCommand(newConfigInitCommand())

	return configCmd
}

func newConfigInitCommand() *cobra.Command {
	var targetPath string
	var overwrite bool

	cmd := &cobra.Command{
		Use:         "init",
		Short:       "Create a sample configuration file",
		Annotations: map[string]string{"skipConfigLoad": "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			target := strings.TrimSpace(targetPath)
			if target == "" {
				defaultPath, err := config.DefaultConfigPath()
				if err != nil {
					return fmt.Errorf("determine default config path: %w", err)
				}
				target = defaultPath
			} else {
				expanded, err := config.ExpandPath(target)
				if err != nil {
					return fmt.Errorf("resolve config path: %w", err)
				}
				target = expanded
			}

			dir := filepath.Dir(target)
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return fmt.Errorf("create config directory %q: %w", dir, err)
			}

			if !overwrite {
				if _, err := os.Stat(target); err == nil {
					return fmt.Errorf("config file already exists at %s (use --overwrite to replace it)", target)
				} else if !os.IsNotExist(err) {
					return fmt.Errorf("check config path: %w", err)
				}
			}

			if err := config.CreateSample(target); err != nil {
				return fmt.Errorf("create sample config: %w", err)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Wrote sample configuration to %s\n", target)
			fmt.Fprintln(out, "Set tmdb.api_key and the library connection (or export TMDB_API_KEY and PLEX_TOKEN) before scanning.")
			return nil
		},
	}

	cmd.Flags().StringVarP(&targetPath, "path", "p", "", "Destination for the configuration file")
	cmd.Flags().BoolVar(&overwrite, "overwrite", false, "Overwrite existing configuration if present")
	return cmd
}

func newConfigValidateCommand(ctx *commandContext) *cobra.Command {
	var checkConnections bool

	cmd := &cobra.Command{
		Use:         "validate",
		Short:       "Validate configuration file",
		Long:        "Validate configuration file. With --check, also contact the media server, TMDB, and TVDB with the configured credentials.",
		Annotations: map[string]string{"skipConfigLoad": "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, path, exists, err := config.Load(ctx.configFlagValue())
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Config path: %s\n", path)
			if !exists {
				fmt.Fprintln(out, "Config file did not exist; defaults were used")
			}
			fmt.Fprintf(out, "Library source: %s\n", cfg.Library.Source)
			fmt.Fprintf(out, "Cache: %s at %s\n", cfg.Cache.Backend, cfg.Cache.Path)
			for _, check := range []struct {
				label string
				err   error
			}{
				{"Movie scans", cfg.RequireMovieCatalog()},
				{"Episode scans", cfg.RequireEpisodeCatalog()},
				{"Library access", cfg.RequireLibrarySource()},
			} {
				if check.err != nil {
					fmt.Fprintf(out, "%s: not ready (%v)\n", check.label, check.err)
				} else {
					fmt.Fprintf(out, "%s: ready\n", check.label)
				}
			}

			if checkConnections {
				logger, err := ctx.logger(cmd, cfg)
				if err != nil {
					return fmt.Errorf("init logger: %w", err)
				}
				failed := 0
				for _, check := range scan.CheckConnections(cmd.Context(), cfg, logger) {
					switch {
					case !check.Configured:
						fmt.Fprintf(out, "Connection %s: not configured\n", check.Service)
					case check.OK && check.Detail != "":
						fmt.Fprintf(out, "Connection %s: ok (%s)\n", check.Service, check.Detail)
					case check.OK:
						fmt.Fprintf(out, "Connection %s: ok\n", check.Service)
					default:
						failed++
						fmt.Fprintf(out, "Connection %s: failed (%s)\n", check.Service, check.Error)
					}
				}
				if failed > 0 {
					return fmt.Errorf("%d connection check(s) failed", failed)
				}
			}
			fmt.Fprintln(out, "Configuration valid")
			return nil
		},
	}

	cmd.Flags().BoolVar(&checkConnections, "check", false, "Contact each configured service to verify connectivity and credentials")
	return cmd
}

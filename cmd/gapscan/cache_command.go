package main

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"gapscan/internal/cachestore"
	"gapscan/internal/scan"
)

func newCacheCommand(ctx *commandContext) *cobra.Command {
	cacheCmd := &cobra.Command{
		Use:   "cache",
		Short: "Inspect and manage the catalog cache",
	}

	cacheCmd.AddCommand(newCacheStatsCommand(ctx))
	cacheCmd.AddCommand(newCachePurgeCommand(ctx))
	cacheCmd.AddCommand(newCacheClearCommand(ctx))
	cacheCmd.AddCommand(newCacheInvalidateCommand(ctx))

	return cacheCmd
}

// withCache opens the configured cache for the duration of fn.
func withCache(cmd *cobra.Command, ctx *commandContext, fn func(store *cachestore.Store) error) error {
	cfg, err := ctx.ensureConfig()
	if err != nil {
		return err
	}
	logger, err := ctx.logger(cmd, cfg)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	cache, err := scan.OpenCache(cmd.Context(), cfg, logger)
	if err != nil {
		return fmt.Errorf("open cache: %w", err)
	}
	runErr := fn(cache.Store)
	if err := cache.Close(context.WithoutCancel(cmd.Context())); err != nil && runErr == nil {
		return fmt.Errorf("close cache: %w", err)
	}
	return runErr
}

func newCacheStatsCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show cache contents by namespace",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withCache(cmd, ctx, func(store *cachestore.Store) error {
				stats := store.Stats()
				if ctx.jsonOutput() {
					return writeJSON(cmd, stats)
				}

				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "Entries:   %d (%d fresh, %d expired)\n", stats.Entries, stats.Fresh, stats.Expired)
				fmt.Fprintf(out, "Payload:   %s\n", stats.PayloadSize)
				fmt.Fprintf(out, "Libraries: %d fingerprinted\n", stats.Libraries)
				if !stats.OldestEntry.IsZero() {
					fmt.Fprintf(out, "Oldest:    %s\n", humanize.Time(stats.OldestEntry))
				}
				if len(stats.Namespaces) == 0 {
					return nil
				}
				rows := make([][]string, 0, len(stats.Namespaces))
				for _, ns := range slices.Sorted(maps.Keys(stats.Namespaces)) {
					rows = append(rows, []string{ns, strconv.Itoa(stats.Namespaces[ns])})
				}
				fmt.Fprintln(out, renderTable([]string{"Namespace", "Entries"}, rows,
					[]columnAlignment{alignLeft, alignRight}))
				return nil
			})
		},
	}
}

func newCachePurgeCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "purge",
		Short: "Remove expired entries",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withCache(cmd, ctx, func(store *cachestore.Store) error {
				removed, err := store.PurgeExpired()
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Removed %d expired %s\n", removed, plural(removed, "entry", "entries"))
				return nil
			})
		},
	}
}

func newCacheClearCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Remove every entry and library fingerprint",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withCache(cmd, ctx, func(store *cachestore.Store) error {
				if err := store.Clear(cmd.Context()); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "Cache cleared")
				return nil
			})
		},
	}
}

func newCacheInvalidateCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "invalidate <key|namespace:>",
		Short: "Drop one key, or every key in a namespace when the argument ends with ':'",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			target := strings.TrimSpace(args[0])
			if target == "" {
				return errors.New("key must not be empty")
			}
			return withCache(cmd, ctx, func(store *cachestore.Store) error {
				out := cmd.OutOrStdout()
				if strings.HasSuffix(target, ":") {
					removed, err := store.InvalidatePrefix(target)
					if err != nil {
						return err
					}
					fmt.Fprintf(out, "Removed %d %s under %s\n", removed, plural(removed, "entry", "entries"), target)
					return nil
				}
				if err := store.Invalidate(target); err != nil {
					return err
				}
				fmt.Fprintf(out, "Removed %s\n", target)
				return nil
			})
		},
	}
}

func plural(n int, one, many string) string {
	if n == 1 {
		return one
	}
	return many
}

package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"gapscan/internal/scan"
)

type scanFlags struct {
	library         string
	asOf            string
	includeFuture   bool
	includeSpecials bool
	table           bool
}

func (f scanFlags) request() (scan.Request, error) {
	req := scan.Request{
		Library:         strings.TrimSpace(f.library),
		IncludeFuture:   f.includeFuture,
		IncludeSpecials: f.includeSpecials,
	}
	if value := strings.TrimSpace(f.asOf); value != "" {
		asOf, err := time.Parse(time.DateOnly, value)
		if err != nil {
			return scan.Request{}, fmt.Errorf("--as-of must be YYYY-MM-DD: %w", err)
		}
		req.AsOf = asOf.UTC()
	}
	return req, nil
}

func newScanCommand(ctx *commandContext) *cobra.Command {
	scanCmd := &cobra.Command{
		Use:   "scan",
		Short: "Reconcile a library against the catalog",
	}
	scanCmd.AddCommand(newScanMoviesCommand(ctx))
	scanCmd.AddCommand(newScanShowsCommand(ctx))
	return scanCmd
}

func addScanFlags(cmd *cobra.Command, flags *scanFlags) {
	cmd.Flags().StringVar(&flags.library, "library", "", "Library name or key (defaults to the configured library)")
	cmd.Flags().StringVar(&flags.asOf, "as-of", "", "Treat this date (YYYY-MM-DD) as today for release filtering")
	cmd.Flags().BoolVar(&flags.includeFuture, "include-future", false, "Report items that have not been released yet")
	cmd.Flags().BoolVar(&flags.table, "table", false, "Print a table summary instead of the JSON report")
}

func newScanMoviesCommand(ctx *commandContext) *cobra.Command {
	var flags scanFlags
	cmd := &cobra.Command{
		Use:   "movies",
		Short: "Find movies missing from collections you partly own",
		RunE: func(cmd *cobra.Command, args []string) error {
			req, err := flags.request()
			if err != nil {
				return err
			}
			session, err := openScanSession(cmd, ctx, true)
			if err != nil {
				return err
			}
			defer session.close(cmd)

			rep, err := session.runner.Movies(cmd.Context(), req)
			if err != nil {
				return err
			}
			if flags.table {
				fmt.Fprint(cmd.OutOrStdout(), renderCollectionReport(rep, shouldColorize(cmd.OutOrStdout())))
			} else if err := writeJSON(cmd, rep); err != nil {
				return err
			}
			return canceledAfterReport(cmd.Context(), rep.Partial)
		},
	}
	addScanFlags(cmd, &flags)
	return cmd
}

func newScanShowsCommand(ctx *commandContext) *cobra.Command {
	var flags scanFlags
	cmd := &cobra.Command{
		Use:   "shows",
		Short: "Find aired episodes missing from shows you own",
		RunE: func(cmd *cobra.Command, args []string) error {
			req, err := flags.request()
			if err != nil {
				return err
			}
			session, err := openScanSession(cmd, ctx, false)
			if err != nil {
				return err
			}
			defer session.close(cmd)

			rep, err := session.runner.Shows(cmd.Context(), req)
			if err != nil {
				return err
			}
			if flags.table {
				fmt.Fprint(cmd.OutOrStdout(), renderShowReport(rep, shouldColorize(cmd.OutOrStdout())))
			} else if err := writeJSON(cmd, rep); err != nil {
				return err
			}
			return canceledAfterReport(cmd.Context(), rep.Partial)
		},
	}
	addScanFlags(cmd, &flags)
	cmd.Flags().BoolVar(&flags.includeSpecials, "include-specials", false, "Include season 0 specials")
	return cmd
}

// canceledAfterReport turns an interrupted scan into a non-zero exit once the
// partial report has been written.
func canceledAfterReport(ctx context.Context, partial bool) error {
	if partial && ctx.Err() != nil {
		return ctx.Err()
	}
	return nil
}

type scanSession struct {
	runner *scan.Runner
	cache  *scan.Cache
}

func openScanSession(cmd *cobra.Command, ctx *commandContext, movies bool) (*scanSession, error) {
	cfg, err := ctx.ensureConfig()
	if err != nil {
		return nil, err
	}
	logger, err := ctx.logger(cmd, cfg)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	source, err := scan.NewLibrarySource(cfg, logger)
	if err != nil {
		return nil, err
	}
	deps := scan.Deps{Library: source, Logger: logger}
	if movies {
		client, err := scan.NewMovieCatalog(cfg, logger)
		if err != nil {
			return nil, err
		}
		deps.Movies = client
	} else {
		client, err := scan.NewEpisodeCatalog(cfg, logger)
		if err != nil {
			return nil, err
		}
		deps.Episodes = client
	}

	cache, err := scan.OpenCache(cmd.Context(), cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("open cache: %w", err)
	}
	deps.Store = cache.Store
	return &scanSession{runner: scan.New(cfg, deps), cache: cache}, nil
}

func (s *scanSession) close(cmd *cobra.Command) {
	if err := s.cache.Close(context.WithoutCancel(cmd.Context())); err != nil {
		fmt.Fprintf(cmd.ErrOrStderr(), "close cache: %v\n", err)
	}
}

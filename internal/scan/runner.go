package scan

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"gapscan/internal/cachestore"
	"gapscan/internal/config"
	"gapscan/internal/gaps"
	"gapscan/internal/library"
	"gapscan/internal/logging"
	"gapscan/internal/report"
	"gapscan/internal/services"
)

const stageLibraryEpisodes = "library_episodes"

// Request narrows one scan. Zero values fall back to configuration.
type Request struct {
	Library         string
	AsOf            time.Time
	IncludeFuture   bool
	IncludeSpecials bool
}

// Deps are the collaborators of a Runner. Catalog sources may be nil when
// only the other scan kind is run.
type Deps struct {
	Library  LibrarySource
	Movies   gaps.MovieCatalogSource
	Episodes gaps.EpisodeCatalogSource
	Store    *cachestore.Store
	Logger   *slog.Logger
}

// Runner executes movie and show scans against one library source.
type Runner struct {
	cfg      *config.Config
	source   LibrarySource
	movies   gaps.MovieCatalogSource
	episodes gaps.EpisodeCatalogSource
	store    *cachestore.Store
	logger   *slog.Logger
	newID    func() string
}

// New creates a Runner. A nil store gives a memory-only cache.
func New(cfg *config.Config, deps Deps) *Runner {
	store := deps.Store
	if store == nil {
		store = cachestore.NewMemory()
	}
	return &Runner{
		cfg:      cfg,
		source:   deps.Library,
		movies:   deps.Movies,
		episodes: deps.Episodes,
		store:    store,
		logger:   logging.NewComponentLogger(deps.Logger, "scan"),
		newID:    uuid.NewString,
	}
}

// Movies scans a movie library for collection gaps.
func (r *Runner) Movies(ctx context.Context, req Request) (*report.CollectionGapReport, error) {
	if r.movies == nil {
		return nil, services.Wrap(services.ErrConfiguration, "scan", "movies", "no movie catalog configured", nil)
	}
	name := firstNonEmpty(req.Library, r.cfg.Library.MoviesLibrary)
	ctx, logger := r.begin(ctx, name, "movies")
	stats := services.RecorderFromContext(ctx)
	started := time.Now()

	endPhase := stats.StartPhase("library")
	owned, err := r.source.ListOwnedMovies(ctx, name)
	if err != nil {
		return nil, err
	}
	endPhase(len(owned))
	ids := make([]string, 0, len(owned))
	for _, m := range owned {
		ids = append(ids, movieToken(m))
	}
	fingerprint := r.checkFingerprint(logger, name, "movies", ids)

	opts := MovieOptions(r.cfg, req)
	opts.Fingerprint = fingerprint
	endPhase = stats.StartPhase("reconcile")
	rep, err := gaps.NewMovieReconciler(r.movies, r.store, opts, r.logger).Reconcile(ctx, owned)
	if err != nil {
		return nil, err
	}
	endPhase(rep.Processed)
	r.finish(ctx, logger, name, "movies", fingerprint, len(owned), rep.Partial, started)
	rep.Stats = stats.Snapshot()
	return rep, nil
}

// Shows scans a show library for missing episodes.
func (r *Runner) Shows(ctx context.Context, req Request) (*report.ShowGapReport, error) {
	if r.episodes == nil {
		return nil, services.Wrap(services.ErrConfiguration, "scan", "shows", "no episode catalog configured", nil)
	}
	name := firstNonEmpty(req.Library, r.cfg.Library.ShowsLibrary)
	ctx, logger := r.begin(ctx, name, "shows")
	stats := services.RecorderFromContext(ctx)
	started := time.Now()

	endPhase := stats.StartPhase("library")
	refs, err := r.source.ListOwnedShows(ctx, name)
	if err != nil {
		return nil, err
	}
	shows, failures, err := r.loadEpisodes(ctx, logger, refs)
	if err != nil {
		return nil, err
	}
	endPhase(len(refs))
	ids := make([]string, 0, len(shows))
	for _, s := range shows {
		ids = append(ids, showToken(s))
	}
	fingerprint := r.checkFingerprint(logger, name, "shows", ids)

	endPhase = stats.StartPhase("reconcile")
	rep, err := gaps.NewEpisodeReconciler(r.episodes, r.store, EpisodeOptions(r.cfg, req), r.logger).Reconcile(ctx, shows)
	if err != nil {
		return nil, err
	}
	endPhase(rep.Processed)
	if len(failures) > 0 {
		rep.Failures = append(rep.Failures, failures...)
		report.SortFailures(rep.Failures)
		rep.Summary.Failures = len(rep.Failures)
		rep.Processed += len(failures)
	}
	// Shows whose listing was skipped by a cancel are neither listed nor
	// failed; they still count towards the total.
	rep.Total = len(refs)
	rep.Summary.TotalShows = len(refs)
	if ctx.Err() != nil {
		rep.Partial = true
	}
	r.finish(ctx, logger, name, "shows", fingerprint, len(refs), rep.Partial, started)
	rep.Stats = stats.Snapshot()
	return rep, nil
}

// loadEpisodes fetches each show's episode files. A show whose listing fails
// becomes a failure entry; authentication errors abort.
func (r *Runner) loadEpisodes(ctx context.Context, logger *slog.Logger, refs []library.ShowRef) ([]gaps.OwnedShow, []report.Failure, error) {
	shows := make([]gaps.OwnedShow, len(refs))
	listed := make([]bool, len(refs))
	var (
		mu       sync.Mutex
		failures []report.Failure
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(r.cfg.Scan.Workers, 1))
	for i, ref := range refs {
		g.Go(func() error {
			if gctx.Err() != nil {
				return nil
			}
			episodes, err := r.source.ListEpisodes(gctx, ref)
			if err != nil {
				if services.IsFatal(err) {
					return err
				}
				if ctx.Err() != nil {
					return nil
				}
				logging.WarnWithContext(logger, "episode listing failed", "library_episodes_failed",
					logging.String("title", ref.Title),
					logging.String("key", ref.Key),
					logging.Error(err),
					logging.String(logging.FieldErrorHint, "check the media server; the show is retried next scan"),
					logging.String(logging.FieldImpact, "show missing from this report"))
				mu.Lock()
				failures = append(failures, report.FailureFrom(showItemID(ref), ref.Title, stageLibraryEpisodes, err))
				mu.Unlock()
				return nil
			}
			shows[i] = gaps.OwnedShow{ID: ref.ID, Title: ref.Title, Episodes: episodes}
			listed[i] = true
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}

	out := make([]gaps.OwnedShow, 0, len(refs))
	for i := range shows {
		if listed[i] {
			out = append(out, shows[i])
		}
	}
	return out, failures, nil
}

func (r *Runner) begin(ctx context.Context, libraryName, kind string) (context.Context, *slog.Logger) {
	ctx = services.WithScanID(ctx, r.newID())
	ctx = services.WithLibrary(ctx, libraryName)
	ctx = services.WithRecorder(ctx, services.NewRecorder(nil))
	logger := logging.WithContext(ctx, r.logger)
	logger.Info("scan started", logging.String("kind", kind), logging.String("source", r.cfg.Library.Source))
	return ctx, logger
}

// checkFingerprint compares the inventory against the last completed scan.
func (r *Runner) checkFingerprint(logger *slog.Logger, libraryName, kind string, ids []string) string {
	fingerprint := cachestore.LibraryFingerprint(ids)
	key := r.fingerprintKey(libraryName, kind)
	prev, ok := r.store.LibraryFingerprint(key)
	switch {
	case !ok:
		logger.Info("library fingerprint recorded for first scan", logging.Int("items", len(ids)))
	case prev.Value != fingerprint:
		logger.Info("library inventory changed since last scan",
			logging.Int("previous_items", prev.ItemCount),
			logging.Int("items", len(ids)),
			logging.String("last_scan", humanize.Time(prev.RecordedAt)))
	default:
		logger.Debug("library inventory unchanged", logging.Int("items", len(ids)))
	}
	return fingerprint
}

func (r *Runner) finish(ctx context.Context, logger *slog.Logger, libraryName, kind, fingerprint string, items int, partial bool, started time.Time) {
	if !partial {
		if err := r.store.SetLibraryFingerprint(r.fingerprintKey(libraryName, kind), fingerprint, items); err != nil {
			logger.Debug("fingerprint not recorded", logging.Error(err))
		}
	}
	flushCtx := context.WithoutCancel(ctx)
	if err := r.store.Flush(flushCtx); err != nil && !errors.Is(err, context.Canceled) {
		logging.WarnWithContext(logger, "cache flush failed", "cache_flush_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check cache.path permissions and free space"),
			logging.String(logging.FieldImpact, "next scan repeats catalog lookups"))
	}
	stats := r.store.Stats()
	var requests int64
	if scan := services.RecorderFromContext(ctx).Snapshot(); scan != nil {
		requests = scan.TotalRequests()
	}
	logger.Info("scan finished",
		logging.String("kind", kind),
		logging.Bool("partial", partial),
		logging.Duration("elapsed", time.Since(started).Round(time.Millisecond)),
		logging.Int64("requests", requests),
		logging.Int64("cache_hits", stats.Hits),
		logging.Int64("cache_misses", stats.Misses),
		logging.String("cache_size", stats.PayloadSize))
}

func (r *Runner) fingerprintKey(libraryName, kind string) string {
	return r.cfg.Library.Source + ":" + kind + ":" + libraryName
}

func movieToken(m gaps.OwnedMovie) string {
	if m.ID > 0 {
		return strconv.FormatInt(m.ID, 10)
	}
	return "untagged:" + m.Title + ":" + m.File
}

func showToken(s gaps.OwnedShow) string {
	return strconv.FormatInt(s.ID, 10) + ":" + s.Title + ":" + strconv.Itoa(len(s.Episodes))
}

func showItemID(ref library.ShowRef) string {
	if ref.ID > 0 {
		return strconv.FormatInt(ref.ID, 10)
	}
	return ref.Title
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

package gaps

import (
	"context"
	"log/slog"
	"slices"
	"strconv"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"gapscan/internal/cachestore"
	"gapscan/internal/episodefile"
	"gapscan/internal/logging"
	"gapscan/internal/report"
	"gapscan/internal/services"
)

const (
	stageShowID       = "show_id"
	stageSeriesStatus = "series_status"
	stageEpisodes     = "episodes"
)

// EpisodeReconciler finds aired episodes missing from owned series.
type EpisodeReconciler struct {
	source EpisodeCatalogSource
	cache  Cache
	opts   EpisodeOptions
	logger *slog.Logger
	now    func() time.Time

	excludedIDs   map[int64]struct{}
	excludedNames map[string]struct{}
}

// NewEpisodeReconciler builds a reconciler. A nil cache gives an in-memory one.
func NewEpisodeReconciler(source EpisodeCatalogSource, cache Cache, opts EpisodeOptions, logger *slog.Logger) *EpisodeReconciler {
	if cache == nil {
		cache = cachestore.NewMemory()
	}
	opts.TTL = opts.TTL.withDefaults()
	opts.Workers = workersOrDefault(opts.Workers)
	return &EpisodeReconciler{
		source:        source,
		cache:         cache,
		opts:          opts,
		logger:        logging.NewComponentLogger(logger, "episodes"),
		now:           time.Now,
		excludedIDs:   idSet(opts.ExcludedShowIDs),
		excludedNames: nameSet(opts.ExcludedShowNames),
	}
}

type showOutcome struct {
	analyzed bool
	complete bool
	owned    int
	expected int
	gap      *report.ShowGap
	failure  *report.Failure
}

// Reconcile computes per-season gaps for every show. Like the movie
// reconciler it only returns authentication and configuration errors, and a
// canceled ctx yields a partial report.
func (r *EpisodeReconciler) Reconcile(ctx context.Context, shows []OwnedShow) (*report.ShowGapReport, error) {
	asOf := asOfOrNow(r.opts.AsOf)
	rep := &report.ShowGapReport{
		Header: report.Header{
			GeneratedAt: r.now().UTC(),
			AsOf:        asOf,
			Total:       len(shows),
		},
		Shows:    []report.ShowGap{},
		Failures: []report.Failure{},
	}
	if id, ok := services.ScanIDFromContext(ctx); ok {
		rep.ScanID = id
	}
	if lib, ok := services.LibraryFromContext(ctx); ok {
		rep.Library = lib
	}
	logger := logging.WithContext(ctx, r.logger)

	outcomes := make([]showOutcome, len(shows))
	var processed atomic.Int64

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.opts.Workers)
	for i, show := range shows {
		if gctx.Err() != nil {
			break
		}
		if r.isExcluded(show) {
			logger.Debug("show excluded",
				logging.Args(append(logging.DecisionAttrs("show_filter", "excluded", "configured exclusion"),
					logging.Int64(logging.FieldItemID, show.ID),
					logging.String("title", show.Title))...)...)
			processed.Add(1)
			continue
		}
		if show.ID <= 0 {
			f := report.Failure{
				Kind:    services.KindNotFound,
				ItemID:  show.Title,
				Title:   show.Title,
				Stage:   stageShowID,
				Message: "no TVDB id in library metadata",
			}
			outcomes[i] = showOutcome{failure: &f}
			processed.Add(1)
			continue
		}
		g.Go(func() error {
			if gctx.Err() != nil {
				return nil
			}
			itemID := strconv.FormatInt(show.ID, 10)
			outcome, stage, err := r.reconcileShow(services.WithItemID(gctx, itemID), show, asOf)
			if err != nil {
				if services.IsFatal(err) {
					return err
				}
				if ctx.Err() != nil {
					return nil
				}
				logging.WarnWithContext(logger, "show lookup failed", "show_lookup_failed",
					logging.String(logging.FieldItemID, itemID),
					logging.String("title", show.Title),
					logging.String(logging.FieldStage, stage),
					logging.Error(err),
					logging.String(logging.FieldErrorHint, "check TVDB availability; the show is retried next scan"),
					logging.String(logging.FieldImpact, "show missing from this report"))
				f := report.FailureFrom(itemID, show.Title, stage, err)
				outcome = showOutcome{failure: &f}
			}
			outcomes[i] = outcome
			processed.Add(1)
			return nil
		})
	}
	if err := g.Wait(); err != nil && services.IsFatal(err) {
		return nil, err
	}

	analyzed, complete, episodesOwned, completeEpisodes := 0, 0, 0, 0
	for _, outcome := range outcomes {
		if outcome.failure != nil {
			rep.Failures = append(rep.Failures, *outcome.failure)
			continue
		}
		if !outcome.analyzed {
			continue
		}
		analyzed++
		episodesOwned += outcome.owned
		if outcome.complete {
			complete++
			completeEpisodes += outcome.expected
		}
		if outcome.gap != nil {
			rep.Shows = append(rep.Shows, *outcome.gap)
		}
	}

	rep.Processed = int(processed.Load())
	rep.Partial = ctx.Err() != nil
	report.SortShows(rep.Shows)
	report.SortFailures(rep.Failures)
	rep.Summarize(len(shows), analyzed, complete, episodesOwned, completeEpisodes)

	logger.Info("episode reconciliation complete",
		logging.Int("shows", len(shows)),
		logging.Int("shows_with_gaps", len(rep.Shows)),
		logging.Int("missing", rep.Summary.TotalMissing),
		logging.Int("failures", len(rep.Failures)),
		logging.Bool("partial", rep.Partial))
	return rep, nil
}

func (r *EpisodeReconciler) isExcluded(show OwnedShow) bool {
	if _, ok := r.excludedIDs[show.ID]; ok && show.ID > 0 {
		return true
	}
	_, ok := r.excludedNames[foldName(show.Title)]
	return ok
}

func (r *EpisodeReconciler) reconcileShow(ctx context.Context, show OwnedShow, asOf time.Time) (showOutcome, string, error) {
	owned := OwnedEpisodeSet(show.Episodes)

	status, err := r.seriesStatus(ctx, show.ID)
	if err != nil {
		return showOutcome{}, stageSeriesStatus, err
	}
	episodes, err := r.episodes(ctx, show.ID, status.Ended)
	if err != nil {
		return showOutcome{}, stageEpisodes, err
	}

	expected := r.filter(episodes, asOf)
	bySeason := make(map[int]*report.SeasonGap)
	gap := report.ShowGap{ID: show.ID, Title: show.Title, Ended: status.Ended}
	for _, ep := range expected {
		season, ok := bySeason[ep.Season]
		if !ok {
			season = &report.SeasonGap{Season: ep.Season}
			bySeason[ep.Season] = season
		}
		season.TotalEpisodes++
		gap.TotalEpisodes++
		if _, have := owned[episodefile.ID{Season: ep.Season, Episode: ep.Episode}]; have {
			season.OwnedEpisodes++
			gap.OwnedEpisodes++
			continue
		}
		season.Missing = append(season.Missing, report.MissingEpisode{
			ID:      ep.ID,
			Season:  ep.Season,
			Episode: ep.Episode,
			Code:    report.Code(ep.Season, ep.Episode),
			Title:   ep.Title,
			AirDate: ep.AirDate,
		})
	}
	for _, season := range bySeason {
		if len(season.Missing) > 0 {
			gap.Seasons = append(gap.Seasons, *season)
		}
	}

	outcome := showOutcome{analyzed: true, owned: len(owned), expected: gap.TotalEpisodes}
	if len(gap.Seasons) == 0 {
		outcome.complete = true
		return outcome, "", nil
	}
	outcome.gap = &gap
	return outcome, "", nil
}

// filter drops specials, unaired episodes and ones inside the recent grace
// window, then dedupes on (season, episode).
func (r *EpisodeReconciler) filter(episodes []CatalogEpisode, asOf time.Time) []CatalogEpisode {
	cutoff := asOf.Add(-r.opts.RecentThreshold)
	seen := make(map[episodefile.ID]struct{}, len(episodes))
	out := make([]CatalogEpisode, 0, len(episodes))
	for _, ep := range episodes {
		if ep.Special() && !r.opts.IncludeSpecials {
			continue
		}
		if ep.Episode <= 0 {
			continue
		}
		if !released(ep.AirDate, asOf, r.opts.IncludeFuture) {
			continue
		}
		if r.opts.RecentThreshold > 0 && ep.AirDate != nil &&
			ep.AirDate.After(cutoff) && !ep.AirDate.After(asOf) {
			continue
		}
		id := episodefile.ID{Season: ep.Season, Episode: ep.Episode}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, ep)
	}
	slices.SortFunc(out, func(a, b CatalogEpisode) int {
		if a.Season != b.Season {
			return a.Season - b.Season
		}
		return a.Episode - b.Episode
	})
	return out
}

// OwnedEpisodeSet unions the library's own numbering with every episode the
// file names resolve to.
func OwnedEpisodeSet(episodes []OwnedEpisode) map[episodefile.ID]struct{} {
	owned := make(map[episodefile.ID]struct{}, len(episodes))
	for _, ep := range episodes {
		if ep.Episode > 0 {
			owned[episodefile.ID{Season: ep.Season, Episode: ep.Episode}] = struct{}{}
		}
		for _, id := range episodefile.Resolve(ep.File, ep.Season, ep.Episode) {
			if id.Episode > 0 {
				owned[id] = struct{}{}
			}
		}
	}
	return owned
}

func (r *EpisodeReconciler) seriesStatus(ctx context.Context, id int64) (SeriesStatus, error) {
	key := cachestore.Key(NamespaceSeries, strconv.FormatInt(id, 10))
	var status SeriesStatus
	if cachedJSON(ctx, r.cache, "tvdb", key, "", &status) {
		return status, nil
	}
	status, err := r.source.SeriesStatus(ctx, id)
	if err != nil {
		return SeriesStatus{}, err
	}
	r.store(ctx, key, status, r.opts.TTL.Series)
	return status, nil
}

func (r *EpisodeReconciler) episodes(ctx context.Context, id int64, ended bool) ([]CatalogEpisode, error) {
	key := cachestore.Key(NamespaceEpisodes, strconv.FormatInt(id, 10))
	var episodes []CatalogEpisode
	if cachedJSON(ctx, r.cache, "tvdb", key, "", &episodes) {
		return episodes, nil
	}
	episodes, err := r.source.Episodes(ctx, id)
	if err != nil {
		return nil, err
	}
	ttl := r.opts.TTL.EpisodeTTL(ended)
	logging.WithContext(ctx, r.logger).Debug("caching episode list",
		logging.Args(append(logging.DecisionAttrs("episode_ttl", ttl.String(), ttlReason(ended)),
			logging.Int("episode_count", len(episodes)))...)...)
	r.store(ctx, key, episodes, ttl)
	return episodes, nil
}

func ttlReason(ended bool) string {
	if ended {
		return "series ended"
	}
	return "series continuing"
}

func (r *EpisodeReconciler) store(ctx context.Context, key string, v any, ttl time.Duration) {
	if err := r.cache.SetJSON(key, v, ttl, ""); err != nil {
		logging.WarnWithContext(logging.WithContext(ctx, r.logger), "failed to cache catalog answer", "cache_write_failed",
			logging.String("key", key),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check free space and permissions of the cache path"),
			logging.String(logging.FieldImpact, "the lookup is repeated next scan"))
	}
}

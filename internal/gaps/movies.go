package gaps

import (
	"context"
	"log/slog"
	"slices"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"gapscan/internal/cachestore"
	"gapscan/internal/logging"
	"gapscan/internal/report"
	"gapscan/internal/services"
)

const (
	stageMovieDetails = "movie_details"
	stageCollection   = "collection"
)

// MovieReconciler finds movies missing from the collections a library
// already has a foothold in.
type MovieReconciler struct {
	source MovieCatalogSource
	cache  Cache
	opts   MovieOptions
	logger *slog.Logger
	now    func() time.Time

	excludedIDs   map[int64]struct{}
	excludedNames map[string]struct{}

	flight singleflight.Group
}

// NewMovieReconciler builds a reconciler. A nil cache gives an in-memory one
// that lives as long as the reconciler.
func NewMovieReconciler(source MovieCatalogSource, cache Cache, opts MovieOptions, logger *slog.Logger) *MovieReconciler {
	if cache == nil {
		cache = cachestore.NewMemory()
	}
	opts.TTL = opts.TTL.withDefaults()
	opts.Workers = workersOrDefault(opts.Workers)
	return &MovieReconciler{
		source:        source,
		cache:         cache,
		opts:          opts,
		logger:        logging.NewComponentLogger(logger, "movies"),
		now:           time.Now,
		excludedIDs:   idSet(opts.ExcludedCollectionIDs),
		excludedNames: nameSet(opts.ExcludedCollectionNames),
	}
}

type collectionOutcome struct {
	gap      *report.CollectionGap
	complete bool
	owned    int
}

// Reconcile computes the collection gaps for owned. Only authentication and
// configuration errors are returned; other lookup errors become report
// failures. A canceled ctx yields the partial report built so far.
func (r *MovieReconciler) Reconcile(ctx context.Context, owned []OwnedMovie) (*report.CollectionGapReport, error) {
	asOf := asOfOrNow(r.opts.AsOf)
	rep := &report.CollectionGapReport{
		Header: report.Header{
			GeneratedAt: r.now().UTC(),
			AsOf:        asOf,
			Total:       len(owned),
		},
		Collections: []report.CollectionGap{},
		Failures:    []report.Failure{},
	}
	if id, ok := services.ScanIDFromContext(ctx); ok {
		rep.ScanID = id
	}
	if lib, ok := services.LibraryFromContext(ctx); ok {
		rep.Library = lib
	}
	logger := logging.WithContext(ctx, r.logger)

	ownedByID := make(map[int64]OwnedMovie, len(owned))
	for _, movie := range owned {
		if movie.ID > 0 {
			ownedByID[movie.ID] = movie
		}
	}

	// Details for every owned movie. A worker that learns a movie's
	// collection fetches the manifest right away; concurrent fetches of the
	// same collection share one source call.
	var (
		mu            sync.Mutex
		failures      []report.Failure
		processed     atomic.Int64
		inCollections int
		seenRefs      = make(map[int64]struct{})
		manifests     = make(map[int64]Collection)
		settled       = make(map[int64]bool)
	)
	addFailure := func(f report.Failure) {
		mu.Lock()
		failures = append(failures, f)
		mu.Unlock()
	}
	fetchCollection := func(ctx context.Context, ref CollectionRef) error {
		mu.Lock()
		done := settled[ref.ID]
		mu.Unlock()
		if done {
			return nil
		}
		itemID := strconv.FormatInt(ref.ID, 10)
		coll, err := r.collection(services.WithItemID(ctx, itemID), ref.ID)
		if err != nil {
			if services.IsFatal(err) {
				return err
			}
			if ctx.Err() != nil {
				return nil
			}
		}
		mu.Lock()
		defer mu.Unlock()
		if settled[ref.ID] {
			return nil
		}
		settled[ref.ID] = true
		if err != nil {
			logging.WarnWithContext(logger, "collection lookup failed", "collection_lookup_failed",
				logging.String(logging.FieldItemID, itemID),
				logging.String("collection", ref.Name),
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "check TMDB availability; the collection is retried next scan"),
				logging.String(logging.FieldImpact, "collection missing from this report"))
			failures = append(failures, report.FailureFrom(itemID, ref.Name, stageCollection, err))
			return nil
		}
		manifests[ref.ID] = coll
		return nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.opts.Workers)
	for _, movie := range owned {
		if gctx.Err() != nil {
			break
		}
		if movie.ID <= 0 {
			processed.Add(1)
			addFailure(report.Failure{
				Kind:    services.KindNotFound,
				ItemID:  movie.Title,
				Title:   movie.Title,
				Stage:   stageMovieDetails,
				Message: "no TMDB id in library metadata",
			})
			continue
		}
		g.Go(func() error {
			if gctx.Err() != nil {
				return nil
			}
			itemID := strconv.FormatInt(movie.ID, 10)
			d, err := r.movieDetails(services.WithItemID(gctx, itemID), movie.ID)
			if err != nil {
				if services.IsFatal(err) {
					return err
				}
				if ctx.Err() != nil {
					return nil
				}
				processed.Add(1)
				logging.WarnWithContext(logger, "movie lookup failed", "movie_lookup_failed",
					logging.String(logging.FieldItemID, itemID),
					logging.String("title", movie.Title),
					logging.Error(err),
					logging.String(logging.FieldErrorHint, "check TMDB availability; the movie is retried next scan"),
					logging.String(logging.FieldImpact, "movie excluded from collection discovery for this scan"))
				addFailure(report.FailureFrom(itemID, movie.Title, stageMovieDetails, err))
				return nil
			}
			processed.Add(1)
			ref := d.Collection
			if ref == nil || ref.ID <= 0 {
				return nil
			}
			mu.Lock()
			inCollections++
			_, seen := seenRefs[ref.ID]
			seenRefs[ref.ID] = struct{}{}
			mu.Unlock()
			if r.isExcluded(ref.ID, ref.Name) {
				if !seen {
					logger.Debug("collection excluded",
						logging.Args(append(logging.DecisionAttrs("collection_filter", "excluded", "configured exclusion"),
							logging.Int64(logging.FieldItemID, ref.ID),
							logging.String("collection", ref.Name))...)...)
				}
				return nil
			}
			return fetchCollection(gctx, *ref)
		})
	}
	if err := g.Wait(); err != nil && services.IsFatal(err) {
		return nil, err
	}

	collectionIDs := make([]int64, 0, len(manifests))
	for id := range manifests {
		collectionIDs = append(collectionIDs, id)
	}
	slices.Sort(collectionIDs)

	complete, completeOwned := 0, 0
	for _, id := range collectionIDs {
		outcome := r.evaluate(manifests[id], ownedByID, asOf, logger)
		switch {
		case outcome.complete:
			complete++
			completeOwned += outcome.owned
		case outcome.gap != nil:
			rep.Collections = append(rep.Collections, *outcome.gap)
		}
	}

	rep.Processed = int(processed.Load())
	rep.Partial = ctx.Err() != nil
	rep.Failures = append(rep.Failures, failures...)
	report.SortCollections(rep.Collections)
	report.SortFailures(rep.Failures)
	rep.Summarize(len(owned), inCollections, complete, completeOwned)

	logger.Info("movie reconciliation complete",
		logging.Int("owned", len(owned)),
		logging.Int("collections_with_gaps", len(rep.Collections)),
		logging.Int("missing", rep.Summary.TotalMissing),
		logging.Int("failures", len(rep.Failures)),
		logging.Bool("partial", rep.Partial))
	return rep, nil
}

func (r *MovieReconciler) isExcluded(id int64, name string) bool {
	if _, ok := r.excludedIDs[id]; ok {
		return true
	}
	_, ok := r.excludedNames[foldName(name)]
	return ok
}

func (r *MovieReconciler) evaluate(coll Collection, ownedByID map[int64]OwnedMovie, asOf time.Time, logger *slog.Logger) collectionOutcome {
	skip := func(reason string) collectionOutcome {
		logger.Debug("collection skipped",
			logging.Args(append(logging.DecisionAttrs("collection_filter", "skipped", reason),
				logging.Int64(logging.FieldItemID, coll.ID),
				logging.String("collection", coll.Name))...)...)
		return collectionOutcome{}
	}

	if r.isExcluded(coll.ID, coll.Name) {
		return skip("configured exclusion")
	}

	seen := make(map[int64]struct{}, len(coll.Parts))
	var (
		owned   []report.OwnedMovie
		missing []report.MissingMovie
	)
	for _, part := range coll.Parts {
		if _, dup := seen[part.ID]; dup || part.ID <= 0 {
			continue
		}
		seen[part.ID] = struct{}{}
		if !released(part.ReleaseDate, asOf, r.opts.IncludeFuture) {
			continue
		}
		if mine, ok := ownedByID[part.ID]; ok {
			title := part.Title
			if title == "" {
				title = mine.Title
			}
			owned = append(owned, report.OwnedMovie{ID: part.ID, Title: title, Year: part.Year()})
			continue
		}
		missing = append(missing, report.MissingMovie{
			ID:          part.ID,
			Title:       part.Title,
			ReleaseDate: part.ReleaseDate,
			Year:        part.Year(),
		})
	}

	total := len(owned) + len(missing)
	if total < r.opts.MinCollectionSize {
		return skip("below minimum collection size")
	}
	if len(owned) < r.opts.MinOwned {
		return skip("below minimum owned count")
	}
	if len(missing) == 0 {
		return collectionOutcome{complete: true, owned: len(owned)}
	}
	return collectionOutcome{gap: &report.CollectionGap{
		ID:          coll.ID,
		Name:        coll.Name,
		TotalMovies: total,
		OwnedMovies: len(owned),
		Owned:       owned,
		Missing:     missing,
	}}
}

func (r *MovieReconciler) movieDetails(ctx context.Context, id int64) (MovieDetails, error) {
	key := cachestore.Key(NamespaceMovie, strconv.FormatInt(id, 10))
	var details MovieDetails
	if cachedJSON(ctx, r.cache, "tmdb", key, r.opts.Fingerprint, &details) {
		return details, nil
	}
	if err := ctx.Err(); err != nil {
		return MovieDetails{}, err
	}

	details, err := r.source.MovieDetails(ctx, id)
	if err != nil {
		return MovieDetails{}, err
	}
	ttl := r.opts.TTL.MovieWithoutCollection
	if details.Collection != nil {
		ttl = r.opts.TTL.MovieWithCollection
	}
	r.store(ctx, key, details, ttl, r.opts.Fingerprint)
	return details, nil
}

func (r *MovieReconciler) collection(ctx context.Context, id int64) (Collection, error) {
	key := cachestore.Key(NamespaceCollection, strconv.FormatInt(id, 10))
	var coll Collection
	if cachedJSON(ctx, r.cache, "tmdb", key, "", &coll) {
		return coll, nil
	}
	if err := ctx.Err(); err != nil {
		return Collection{}, err
	}

	v, err, _ := r.flight.Do(key, func() (any, error) {
		// A flight that finished since the read above has stored its answer.
		var stored Collection
		if r.cache.GetJSON(key, "", &stored) {
			return stored, nil
		}
		fetched, err := r.source.Collection(ctx, id)
		if err != nil {
			return nil, err
		}
		r.store(ctx, key, fetched, r.opts.TTL.Collection, "")
		return fetched, nil
	})
	if err != nil {
		return Collection{}, err
	}
	return v.(Collection), nil
}

func (r *MovieReconciler) store(ctx context.Context, key string, v any, ttl time.Duration, fingerprint string) {
	if err := r.cache.SetJSON(key, v, ttl, fingerprint); err != nil {
		logging.WarnWithContext(logging.WithContext(ctx, r.logger), "failed to cache catalog answer", "cache_write_failed",
			logging.String("key", key),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check free space and permissions of the cache path"),
			logging.String(logging.FieldImpact, "the lookup is repeated next scan"))
	}
}

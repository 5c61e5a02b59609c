package gaps_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/davecgh/go-spew/spew"

	"gapscan/internal/cachestore"
	"gapscan/internal/episodefile"
	"gapscan/internal/gaps"
	"gapscan/internal/services"
)

func episode(season, number int, aired *time.Time) gaps.CatalogEpisode {
	return gaps.CatalogEpisode{
		ID:      int64(season*100 + number),
		Season:  season,
		Episode: number,
		Title:   fmt.Sprintf("Episode %d", number),
		AirDate: aired,
	}
}

func showWith(id int64, title string, files ...string) gaps.OwnedShow {
	show := gaps.OwnedShow{ID: id, Title: title}
	for _, file := range files {
		ids := episodefile.Resolve(file, 0, 0)
		show.Episodes = append(show.Episodes, gaps.OwnedEpisode{
			ShowID: id, Season: ids[0].Season, Episode: ids[0].Episode, File: file,
		})
	}
	return show
}

func TestEpisodeFutureFilter(t *testing.T) {
	source := &fakeEpisodeSource{episodes: map[int64][]gaps.CatalogEpisode{
		7: {
			episode(1, 1, date(2024, 1, 1)),
			episode(1, 2, at(asOf.Add(24*time.Hour))),
		},
	}}
	show := showWith(7, "Show", "Show.S01E01.mkv")

	rep, err := gaps.NewEpisodeReconciler(source, nil, gaps.EpisodeOptions{AsOf: asOf}, nil).
		Reconcile(context.Background(), []gaps.OwnedShow{show})
	if err != nil {
		t.Fatalf("Reconcile: %v", err)
	}
	if len(rep.Shows) != 0 || rep.Summary.CompleteShows != 1 {
		t.Fatalf("expected future episode excluded, got %s", spew.Sdump(rep.Shows))
	}

	rep, err = gaps.NewEpisodeReconciler(source, nil, gaps.EpisodeOptions{AsOf: asOf, IncludeFuture: true}, nil).
		Reconcile(context.Background(), []gaps.OwnedShow{show})
	if err != nil {
		t.Fatalf("Reconcile: %v", err)
	}
	if len(rep.Shows) != 1 || rep.Shows[0].Seasons[0].Missing[0].Code != "S01E02" {
		t.Fatalf("expected future episode reported with include_future, got %s", spew.Sdump(rep.Shows))
	}
}

func TestEpisodeRecentThreshold(t *testing.T) {
	source := &fakeEpisodeSource{episodes: map[int64][]gaps.CatalogEpisode{
		7: {
			episode(1, 1, date(2024, 1, 1)),
			episode(1, 2, at(asOf.Add(-48*time.Hour))),
			episode(1, 3, at(asOf.Add(-2*time.Hour))),
		},
	}}
	opts := gaps.EpisodeOptions{AsOf: asOf, RecentThreshold: 24 * time.Hour}
	rep, err := gaps.NewEpisodeReconciler(source, nil, opts, nil).
		Reconcile(context.Background(), []gaps.OwnedShow{showWith(7, "Show", "Show.S01E01.mkv")})
	if err != nil {
		t.Fatalf("Reconcile: %v", err)
	}
	if len(rep.Shows) != 1 {
		t.Fatalf("expected one show gap, got %s", spew.Sdump(rep.Shows))
	}
	missing := rep.Shows[0].Seasons[0].Missing
	if len(missing) != 1 || missing[0].Episode != 2 {
		t.Fatalf("expected only S01E02 missing, got %s", spew.Sdump(missing))
	}
}

func TestEpisodeSpecials(t *testing.T) {
	source := &fakeEpisodeSource{episodes: map[int64][]gaps.CatalogEpisode{
		7: {episode(0, 1, date(2023, 1, 1)), episode(1, 1, date(2023, 2, 1))},
	}}
	show := showWith(7, "Show", "Show.S01E01.mkv")

	rep, _ := gaps.NewEpisodeReconciler(source, nil, gaps.EpisodeOptions{AsOf: asOf}, nil).
		Reconcile(context.Background(), []gaps.OwnedShow{show})
	if len(rep.Shows) != 0 {
		t.Fatalf("expected specials ignored by default, got %s", spew.Sdump(rep.Shows))
	}

	rep, _ = gaps.NewEpisodeReconciler(source, nil, gaps.EpisodeOptions{AsOf: asOf, IncludeSpecials: true}, nil).
		Reconcile(context.Background(), []gaps.OwnedShow{show})
	if len(rep.Shows) != 1 || rep.Shows[0].Seasons[0].Season != 0 {
		t.Fatalf("expected season 0 gap with include_specials, got %s", spew.Sdump(rep.Shows))
	}
}

func TestEpisodeMultiEpisodeFilesCountAsOwned(t *testing.T) {
	source := &fakeEpisodeSource{episodes: map[int64][]gaps.CatalogEpisode{
		7: {
			episode(1, 1, date(2020, 1, 1)),
			episode(1, 2, date(2020, 1, 1)),
			episode(1, 3, date(2020, 1, 8)),
			episode(2, 1, date(2021, 1, 1)),
			episode(2, 2, date(2021, 1, 8)),
		},
	}}
	show := gaps.OwnedShow{ID: 7, Title: "Show", Episodes: []gaps.OwnedEpisode{
		{Season: 1, Episode: 1, File: "/tv/Show/Show.S01E01-E02.mkv"},
		{Season: 2, Episode: 1, File: "/tv/Show/Show - 2x01.mkv"},
	}}
	rep, err := gaps.NewEpisodeReconciler(source, nil, gaps.EpisodeOptions{AsOf: asOf}, nil).
		Reconcile(context.Background(), []gaps.OwnedShow{show})
	if err != nil {
		t.Fatalf("Reconcile: %v", err)
	}
	gap := rep.Shows[0]
	if gap.TotalEpisodes != 5 || gap.OwnedEpisodes != 3 || gap.MissingCount() != 2 {
		t.Fatalf("unexpected gap %s", spew.Sdump(gap))
	}
	if gap.Seasons[0].Missing[0].Code != "S01E03" || gap.Seasons[1].Missing[0].Code != "S02E02" {
		t.Fatalf("unexpected missing episodes %s", spew.Sdump(gap.Seasons))
	}
	if rep.Summary.EpisodesOwned != 3 {
		t.Fatalf("expected three owned episodes, got %d", rep.Summary.EpisodesOwned)
	}
}

func TestEpisodeTTLFollowsSeriesStatus(t *testing.T) {
	cache := cachestore.NewMemory()
	source := &fakeEpisodeSource{
		status: map[int64]gaps.SeriesStatus{1: {ID: 1, Ended: true}, 2: {ID: 2, Ended: false}},
		episodes: map[int64][]gaps.CatalogEpisode{
			1: {episode(1, 1, date(2010, 1, 1))},
			2: {episode(1, 1, date(2023, 1, 1))},
		},
	}
	shows := []gaps.OwnedShow{showWith(1, "Done"), showWith(2, "Airing")}
	if _, err := gaps.NewEpisodeReconciler(source, cache, gaps.EpisodeOptions{AsOf: asOf}, nil).
		Reconcile(context.Background(), shows); err != nil {
		t.Fatalf("Reconcile: %v", err)
	}

	ended, _ := cache.Lookup("tvdb:episodes:1", "")
	airing, _ := cache.Lookup("tvdb:episodes:2", "")
	if ended.TTLSeconds != 30*24*3600 || airing.TTLSeconds != 24*3600 {
		t.Fatalf("unexpected TTLs ended=%d airing=%d", ended.TTLSeconds, airing.TTLSeconds)
	}
	if _, state := cache.Lookup("tvdb:series:1", ""); state != cachestore.StateFresh {
		t.Fatalf("expected series status cached, got %s", state)
	}
}

func TestEpisodeFailuresAreContained(t *testing.T) {
	source := &fakeEpisodeSource{
		episodes: map[int64][]gaps.CatalogEpisode{
			1: {episode(1, 1, date(2020, 1, 1)), episode(1, 2, date(2020, 1, 8))},
		},
		errs: map[int64]error{2: services.Wrap(services.ErrRateLimited, "tvdb", "episodes", "retries exhausted", nil)},
	}
	shows := []gaps.OwnedShow{
		showWith(1, "Good", "Good.S01E01.mkv"),
		showWith(2, "Throttled", "Throttled.S01E01.mkv"),
		{Title: "Unmatched"},
	}
	rep, err := gaps.NewEpisodeReconciler(source, nil, gaps.EpisodeOptions{AsOf: asOf}, nil).
		Reconcile(context.Background(), shows)
	if err != nil {
		t.Fatalf("Reconcile: %v", err)
	}
	if len(rep.Shows) != 1 || rep.Shows[0].ID != 1 {
		t.Fatalf("expected gap for the healthy show, got %s", spew.Sdump(rep.Shows))
	}
	if len(rep.Failures) != 2 {
		t.Fatalf("expected two failures, got %s", spew.Sdump(rep.Failures))
	}
	kinds := map[services.Kind]bool{}
	for _, f := range rep.Failures {
		kinds[f.Kind] = true
	}
	if !kinds[services.KindRateLimit] || !kinds[services.KindNotFound] {
		t.Fatalf("unexpected failure kinds %s", spew.Sdump(rep.Failures))
	}
}

func TestEpisodeExclusionsAndAuth(t *testing.T) {
	source := &fakeEpisodeSource{episodes: map[int64][]gaps.CatalogEpisode{
		1: {episode(1, 1, date(2020, 1, 1))},
	}}
	opts := gaps.EpisodeOptions{AsOf: asOf, ExcludedShowNames: []string{"skip ME"}, ExcludedShowIDs: []int64{3}}
	rep, err := gaps.NewEpisodeReconciler(source, nil, opts, nil).Reconcile(context.Background(),
		[]gaps.OwnedShow{showWith(1, "Skip Me"), showWith(3, "Other")})
	if err != nil {
		t.Fatalf("Reconcile: %v", err)
	}
	if source.calls != 0 || rep.Summary.ShowsAnalyzed != 0 {
		t.Fatalf("expected excluded shows skipped before lookup, calls=%d analyzed=%d", source.calls, rep.Summary.ShowsAnalyzed)
	}

	source.errs = map[int64]error{1: fmt.Errorf("tvdb login: %w", services.ErrAuth)}
	_, err = gaps.NewEpisodeReconciler(source, nil, gaps.EpisodeOptions{AsOf: asOf}, nil).
		Reconcile(context.Background(), []gaps.OwnedShow{showWith(1, "Show")})
	if !errors.Is(err, services.ErrAuth) {
		t.Fatalf("expected auth error to abort, got %v", err)
	}
}

func TestEpisodeCancellationReturnsPartialReport(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	source := &fakeEpisodeSource{
		episodes:  map[int64][]gaps.CatalogEpisode{},
		onEpisode: func(int64) { cancel() },
	}
	shows := []gaps.OwnedShow{showWith(1, "A"), showWith(2, "B"), showWith(3, "C")}
	rep, err := gaps.NewEpisodeReconciler(source, nil, gaps.EpisodeOptions{AsOf: asOf, Workers: 1}, nil).
		Reconcile(ctx, shows)
	if err != nil {
		t.Fatalf("expected no error on cancel, got %v", err)
	}
	if !rep.Partial || rep.Processed >= len(shows) {
		t.Fatalf("expected partial report, partial=%v processed=%d", rep.Partial, rep.Processed)
	}
}

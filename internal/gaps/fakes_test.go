package gaps_test

import (
	"context"
	"fmt"
	"sync"
	"time"

	"gapscan/internal/gaps"
	"gapscan/internal/services"
)

var asOf = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

func date(year int, month time.Month, day int) *time.Time {
	t := time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
	return &t
}

func at(t time.Time) *time.Time { return &t }

type fakeMovieSource struct {
	mu          sync.Mutex
	details     map[int64]gaps.MovieDetails
	collections map[int64]gaps.Collection
	errs        map[int64]error
	detailCalls int
	collCalls   int
	onDetails   func(id int64)
	onColl      func(id int64)
}

func (f *fakeMovieSource) MovieDetails(_ context.Context, id int64) (gaps.MovieDetails, error) {
	f.mu.Lock()
	f.detailCalls++
	hook := f.onDetails
	f.mu.Unlock()
	if hook != nil {
		hook(id)
	}
	if err, ok := f.errs[id]; ok {
		return gaps.MovieDetails{}, err
	}
	d, ok := f.details[id]
	if !ok {
		return gaps.MovieDetails{}, fmt.Errorf("tmdb movie %d: %w", id, services.ErrNotFound)
	}
	return d, nil
}

func (f *fakeMovieSource) Collection(_ context.Context, id int64) (gaps.Collection, error) {
	f.mu.Lock()
	f.collCalls++
	hook := f.onColl
	f.mu.Unlock()
	if hook != nil {
		hook(id)
	}
	c, ok := f.collections[id]
	if !ok {
		return gaps.Collection{}, fmt.Errorf("tmdb collection %d: %w", id, services.ErrNotFound)
	}
	return c, nil
}

func (f *fakeMovieSource) calls() (int, int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.detailCalls, f.collCalls
}

type fakeEpisodeSource struct {
	mu        sync.Mutex
	status    map[int64]gaps.SeriesStatus
	episodes  map[int64][]gaps.CatalogEpisode
	errs      map[int64]error
	calls     int
	onEpisode func(id int64)
}

func (f *fakeEpisodeSource) SeriesStatus(_ context.Context, id int64) (gaps.SeriesStatus, error) {
	if s, ok := f.status[id]; ok {
		return s, nil
	}
	return gaps.SeriesStatus{ID: id}, nil
}

func (f *fakeEpisodeSource) Episodes(_ context.Context, id int64) ([]gaps.CatalogEpisode, error) {
	f.mu.Lock()
	f.calls++
	hook := f.onEpisode
	f.mu.Unlock()
	if hook != nil {
		hook(id)
	}
	if err, ok := f.errs[id]; ok {
		return nil, err
	}
	return f.episodes[id], nil
}

func sagaSource() *fakeMovieSource {
	saga := &gaps.CollectionRef{ID: 10, Name: "Saga Collection"}
	return &fakeMovieSource{
		details: map[int64]gaps.MovieDetails{
			101: {ID: 101, Title: "Saga I", Collection: saga},
			102: {ID: 102, Title: "Saga II", Collection: saga},
			201: {ID: 201, Title: "Standalone"},
		},
		collections: map[int64]gaps.Collection{
			10: {ID: 10, Name: "Saga Collection", Parts: []gaps.CatalogMovie{
				{ID: 101, Title: "Saga I", ReleaseDate: date(2001, 1, 1)},
				{ID: 102, Title: "Saga II", ReleaseDate: date(2003, 1, 1)},
				{ID: 103, Title: "Saga III", ReleaseDate: date(2005, 1, 1)},
				{ID: 104, Title: "Saga IV", ReleaseDate: date(2007, 1, 1)},
			}},
		},
	}
}

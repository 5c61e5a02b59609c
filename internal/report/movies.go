package report

import (
	"cmp"
	"slices"
	"strings"
	"time"
)

// MissingMovie is a released collection part absent from the library.
type MissingMovie struct {
	ID          int64      `json:"tmdb_id"`
	Title       string     `json:"title"`
	ReleaseDate *time.Time `json:"release_date,omitempty"`
	Year        int        `json:"year,omitempty"`
}

// OwnedMovie is a collection part present in the library.
type OwnedMovie struct {
	ID    int64  `json:"tmdb_id"`
	Title string `json:"title"`
	Year  int    `json:"year,omitempty"`
}

// CollectionGap lists what is missing from one collection.
type CollectionGap struct {
	ID          int64          `json:"collection_id"`
	Name        string         `json:"collection_name"`
	TotalMovies int            `json:"total_movies"`
	OwnedMovies int            `json:"owned_movies"`
	Owned       []OwnedMovie   `json:"owned"`
	Missing     []MissingMovie `json:"missing"`
}

// MissingCount returns len(Missing).
func (g CollectionGap) MissingCount() int { return len(g.Missing) }

// CompletionPercent is the owned share of the filtered collection.
func (g CollectionGap) CompletionPercent() float64 {
	return Percent(g.OwnedMovies, g.TotalMovies)
}

// CollectionSummary aggregates a movie scan.
type CollectionSummary struct {
	TotalOwned          int     `json:"total_owned"`
	OwnedInCollections  int     `json:"owned_in_collections"`
	CollectionsAnalyzed int     `json:"collections_analyzed"`
	CompleteCollections int     `json:"complete_collections"`
	CollectionsWithGaps int     `json:"collections_with_gaps"`
	TotalMissing        int     `json:"total_missing"`
	CompletionPercent   float64 `json:"completion_percent"`
	Failures            int     `json:"failures"`
}

// CollectionGapReport is the result of reconciling a movie library.
type CollectionGapReport struct {
	Header
	Summary     CollectionSummary `json:"summary"`
	Collections []CollectionGap   `json:"collections"`
	Failures    []Failure         `json:"failures"`
}

// SortCollections orders by missing count descending, then name, then id.
// Missing and owned movies inside each gap are ordered by id.
func SortCollections(gaps []CollectionGap) {
	for i := range gaps {
		slices.SortFunc(gaps[i].Missing, func(a, b MissingMovie) int { return cmp.Compare(a.ID, b.ID) })
		slices.SortFunc(gaps[i].Owned, func(a, b OwnedMovie) int { return cmp.Compare(a.ID, b.ID) })
	}
	slices.SortFunc(gaps, func(a, b CollectionGap) int {
		if c := cmp.Compare(b.MissingCount(), a.MissingCount()); c != 0 {
			return c
		}
		if c := strings.Compare(a.Name, b.Name); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
}

// Summarize fills Summary from Collections and Failures. complete is the
// number of analyzed collections that had nothing missing and completeOwned
// the owned movies inside them.
func (r *CollectionGapReport) Summarize(totalOwned, ownedInCollections, complete, completeOwned int) {
	s := CollectionSummary{
		TotalOwned:          totalOwned,
		OwnedInCollections:  ownedInCollections,
		CompleteCollections: complete,
		CollectionsWithGaps: len(r.Collections),
		CollectionsAnalyzed: complete + len(r.Collections),
		Failures:            len(r.Failures),
	}
	owned := completeOwned
	for _, gap := range r.Collections {
		s.TotalMissing += gap.MissingCount()
		owned += gap.OwnedMovies
	}
	s.CompletionPercent = Percent(owned, owned+s.TotalMissing)
	r.Summary = s
}

// SortFailures orders failures by stage, then item id.
func SortFailures(failures []Failure) {
	slices.SortFunc(failures, func(a, b Failure) int {
		if c := strings.Compare(a.Stage, b.Stage); c != 0 {
			return c
		}
		return strings.Compare(a.ItemID, b.ItemID)
	})
}

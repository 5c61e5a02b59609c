package report

import (
	"cmp"
	"slices"
	"strings"
	"time"
)

// MissingEpisode is an aired episode absent from the library.
type MissingEpisode struct {
	ID      int64      `json:"tvdb_id,omitempty"`
	Season  int        `json:"season"`
	Episode int        `json:"episode"`
	Code    string     `json:"code"`
	Title   string     `json:"title,omitempty"`
	AirDate *time.Time `json:"air_date,omitempty"`
}

// SeasonGap lists missing episodes within one season.
type SeasonGap struct {
	Season        int              `json:"season"`
	TotalEpisodes int              `json:"total_episodes"`
	OwnedEpisodes int              `json:"owned_episodes"`
	Missing       []MissingEpisode `json:"missing"`
}

// ShowGap lists what is missing from one series.
type ShowGap struct {
	ID            int64       `json:"tvdb_id"`
	Title         string      `json:"title"`
	Ended         bool        `json:"ended"`
	TotalEpisodes int         `json:"total_episodes"`
	OwnedEpisodes int         `json:"owned_episodes"`
	Seasons       []SeasonGap `json:"seasons"`
}

// MissingCount sums missing episodes across seasons.
func (g ShowGap) MissingCount() int {
	n := 0
	for _, season := range g.Seasons {
		n += len(season.Missing)
	}
	return n
}

// CompletionPercent is the owned share of the filtered episode list.
func (g ShowGap) CompletionPercent() float64 {
	return Percent(g.OwnedEpisodes, g.TotalEpisodes)
}

// ShowSummary aggregates an episode scan.
type ShowSummary struct {
	TotalShows        int     `json:"total_shows"`
	ShowsAnalyzed     int     `json:"shows_analyzed"`
	CompleteShows     int     `json:"complete_shows"`
	ShowsWithGaps     int     `json:"shows_with_gaps"`
	EpisodesOwned     int     `json:"episodes_owned"`
	TotalMissing      int     `json:"total_missing"`
	CompletionPercent float64 `json:"completion_percent"`
	Failures          int     `json:"failures"`
}

// ShowGapReport is the result of reconciling a series library.
type ShowGapReport struct {
	Header
	Summary  ShowSummary `json:"summary"`
	Shows    []ShowGap   `json:"shows"`
	Failures []Failure   `json:"failures"`
}

// SortShows orders by missing count descending, then title, then id. Seasons
// and the episodes inside them ascend.
func SortShows(gaps []ShowGap) {
	for i := range gaps {
		seasons := gaps[i].Seasons
		for j := range seasons {
			slices.SortFunc(seasons[j].Missing, func(a, b MissingEpisode) int {
				return cmp.Compare(a.Episode, b.Episode)
			})
		}
		slices.SortFunc(seasons, func(a, b SeasonGap) int { return cmp.Compare(a.Season, b.Season) })
	}
	slices.SortFunc(gaps, func(a, b ShowGap) int {
		if c := cmp.Compare(b.MissingCount(), a.MissingCount()); c != 0 {
			return c
		}
		if c := strings.Compare(a.Title, b.Title); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
}

// Summarize fills Summary. totalShows counts every show handed to the
// reconciler; complete counts analyzed shows with nothing missing and
// completeEpisodes the expected episodes across those shows.
func (r *ShowGapReport) Summarize(totalShows, analyzed, complete, episodesOwned, completeEpisodes int) {
	s := ShowSummary{
		TotalShows:    totalShows,
		ShowsAnalyzed: analyzed,
		CompleteShows: complete,
		ShowsWithGaps: len(r.Shows),
		EpisodesOwned: episodesOwned,
		Failures:      len(r.Failures),
	}
	owned, total := completeEpisodes, completeEpisodes
	for _, gap := range r.Shows {
		s.TotalMissing += gap.MissingCount()
		owned += gap.OwnedEpisodes
		total += gap.TotalEpisodes
	}
	s.CompletionPercent = Percent(owned, total)
	r.Summary = s
}

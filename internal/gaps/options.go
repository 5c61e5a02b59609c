package gaps

import (
	"strings"
	"time"

	"golang.org/x/text/cases"
)

const (
	defaultWorkers = 4

	day = 24 * time.Hour
)

// Cache namespaces.
const (
	NamespaceMovie      = "tmdb:movie"
	NamespaceCollection = "tmdb:collection"
	NamespaceSeries     = "tvdb:series"
	NamespaceEpisodes   = "tvdb:episodes"
)

// TTLPolicy decides how long each class of catalog answer stays cached.
// Stable answers (collection membership, concluded series) live longer than
// ones that change as the catalog grows.
type TTLPolicy struct {
	MovieWithCollection    time.Duration
	MovieWithoutCollection time.Duration
	Collection             time.Duration
	Series                 time.Duration
	EpisodesContinuing     time.Duration
	EpisodesEnded          time.Duration
}

// DefaultTTLPolicy returns the stock TTLs.
func DefaultTTLPolicy() TTLPolicy {
	return TTLPolicy{
		MovieWithCollection:    30 * day,
		MovieWithoutCollection: 7 * day,
		Collection:             30 * day,
		Series:                 7 * day,
		EpisodesContinuing:     day,
		EpisodesEnded:          30 * day,
	}
}

func (p TTLPolicy) withDefaults() TTLPolicy {
	d := DefaultTTLPolicy()
	if p.MovieWithCollection <= 0 {
		p.MovieWithCollection = d.MovieWithCollection
	}
	if p.MovieWithoutCollection <= 0 {
		p.MovieWithoutCollection = d.MovieWithoutCollection
	}
	if p.Collection <= 0 {
		p.Collection = d.Collection
	}
	if p.Series <= 0 {
		p.Series = d.Series
	}
	if p.EpisodesContinuing <= 0 {
		p.EpisodesContinuing = d.EpisodesContinuing
	}
	if p.EpisodesEnded <= 0 {
		p.EpisodesEnded = d.EpisodesEnded
	}
	return p
}

// EpisodeTTL picks the episode-list TTL for a series.
func (p TTLPolicy) EpisodeTTL(ended bool) time.Duration {
	if ended {
		return p.EpisodesEnded
	}
	return p.EpisodesContinuing
}

// MovieOptions configures a MovieReconciler.
type MovieOptions struct {
	// AsOf is the reference time for release filtering. Zero means now.
	AsOf                    time.Time
	IncludeFuture           bool
	MinCollectionSize       int
	MinOwned                int
	ExcludedCollectionIDs   []int64
	ExcludedCollectionNames []string
	TTL                     TTLPolicy
	Workers                 int
	// Fingerprint of the scanned library. Movie lookups cached under another
	// fingerprint are refetched.
	Fingerprint string
}

// EpisodeOptions configures an EpisodeReconciler.
type EpisodeOptions struct {
	AsOf            time.Time
	IncludeFuture   bool
	IncludeSpecials bool
	// RecentThreshold hides episodes that aired this recently before AsOf.
	RecentThreshold   time.Duration
	ExcludedShowIDs   []int64
	ExcludedShowNames []string
	TTL               TTLPolicy
	Workers           int
}

func workersOrDefault(n int) int {
	if n <= 0 {
		return defaultWorkers
	}
	return n
}

func asOfOrNow(t time.Time) time.Time {
	if t.IsZero() {
		return time.Now().UTC()
	}
	return t
}

func foldName(name string) string {
	return cases.Fold().String(strings.TrimSpace(name))
}

func nameSet(names []string) map[string]struct{} {
	set := make(map[string]struct{}, len(names))
	for _, name := range names {
		if folded := foldName(name); folded != "" {
			set[folded] = struct{}{}
		}
	}
	return set
}

func idSet(ids []int64) map[int64]struct{} {
	set := make(map[int64]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return set
}

// released reports whether date counts as released at asOf. An unknown date
// only passes when future items are included.
func released(date *time.Time, asOf time.Time, includeFuture bool) bool {
	if includeFuture {
		return true
	}
	if date == nil {
		return false
	}
	return !date.After(asOf)
}

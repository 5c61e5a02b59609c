package services

import (
	"context"
	"maps"
	"strings"
	"sync"
	"time"
)

const statsKey contextKey = "scan_stats"

// ScanStats summarizes the upstream traffic and timing of one scan.
type ScanStats struct {
	// Requests counts upstream calls keyed by service and operation, for
	// example "tmdb_collection" or "plex_sections".
	Requests map[string]int64 `json:"requests"`
	// Cache counts catalog cache lookups keyed by catalog ("tmdb", "tvdb").
	Cache          map[string]CacheCounts `json:"cache"`
	Phases         []PhaseTiming          `json:"phases"`
	ElapsedSeconds float64                `json:"elapsed_seconds"`
}

// TotalRequests sums Requests.
func (s ScanStats) TotalRequests() int64 {
	var total int64
	for _, n := range s.Requests {
		total += n
	}
	return total
}

// CacheCounts is the hit and miss tally of one catalog.
type CacheCounts struct {
	Hits    int64   `json:"hits"`
	Misses  int64   `json:"misses"`
	HitRate float64 `json:"hit_rate"`
}

// PhaseTiming records how long one scan phase took.
type PhaseTiming struct {
	Name    string  `json:"name"`
	Items   int     `json:"items"`
	Seconds float64 `json:"seconds"`
}

// Recorder collects ScanStats. It is safe for concurrent use and a nil
// Recorder discards everything.
type Recorder struct {
	mu       sync.Mutex
	started  time.Time
	now      func() time.Time
	requests map[string]int64
	hits     map[string]int64
	misses   map[string]int64
	phases   []PhaseTiming
}

// NewRecorder starts a recorder. A nil now uses time.Now.
func NewRecorder(now func() time.Time) *Recorder {
	if now == nil {
		now = time.Now
	}
	return &Recorder{
		started:  now(),
		now:      now,
		requests: make(map[string]int64),
		hits:     make(map[string]int64),
		misses:   make(map[string]int64),
	}
}

// WithRecorder attaches rec to ctx.
func WithRecorder(ctx context.Context, rec *Recorder) context.Context {
	if rec == nil {
		return ctx
	}
	return context.WithValue(ctx, statsKey, rec)
}

// RecorderFromContext returns the attached recorder, or nil.
func RecorderFromContext(ctx context.Context) *Recorder {
	rec, _ := ctx.Value(statsKey).(*Recorder)
	return rec
}

// Request counts one upstream call.
func (r *Recorder) Request(service, operation string) {
	if r == nil {
		return
	}
	key := service
	if op := strings.ReplaceAll(strings.TrimSpace(operation), " ", "_"); op != "" {
		key += "_" + op
	}
	r.mu.Lock()
	r.requests[key]++
	r.mu.Unlock()
}

// CacheLookup counts a cache hit or miss against a catalog.
func (r *Recorder) CacheLookup(catalog string, hit bool) {
	if r == nil {
		return
	}
	r.mu.Lock()
	if hit {
		r.hits[catalog]++
	} else {
		r.misses[catalog]++
	}
	r.mu.Unlock()
}

// StartPhase begins timing a phase. The returned func ends it with the
// number of items the phase handled.
func (r *Recorder) StartPhase(name string) func(items int) {
	if r == nil {
		return func(int) {}
	}
	started := r.now()
	return func(items int) {
		elapsed := r.now().Sub(started)
		r.mu.Lock()
		r.phases = append(r.phases, PhaseTiming{Name: name, Items: items, Seconds: elapsed.Seconds()})
		r.mu.Unlock()
	}
}

// Snapshot returns a copy of the counters collected so far.
func (r *Recorder) Snapshot() *ScanStats {
	if r == nil {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	stats := &ScanStats{
		Requests:       make(map[string]int64, len(r.requests)),
		Cache:          make(map[string]CacheCounts),
		Phases:         append([]PhaseTiming{}, r.phases...),
		ElapsedSeconds: r.now().Sub(r.started).Seconds(),
	}
	maps.Copy(stats.Requests, r.requests)
	for _, catalog := range unionKeys(r.hits, r.misses) {
		counts := CacheCounts{Hits: r.hits[catalog], Misses: r.misses[catalog]}
		if total := counts.Hits + counts.Misses; total > 0 {
			counts.HitRate = float64(counts.Hits) / float64(total) * 100
		}
		stats.Cache[catalog] = counts
	}
	return stats
}

func unionKeys(a, b map[string]int64) []string {
	keys := make([]string, 0, len(a)+len(b))
	for k := range a {
		keys = append(keys, k)
	}
	for k := range b {
		if _, ok := a[k]; !ok {
			keys = append(keys, k)
		}
	}
	return keys
}

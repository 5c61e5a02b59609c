package cachestore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/dustin/go-humanize"

	"gapscan/internal/logging"
	"gapscan/internal/services"
)

const defaultFlushThreshold = 250

// Store is a TTL and fingerprint aware cache of catalog lookups. All
// operations share one mutex. Mutations are persisted in batches: once
// flushThreshold mutations are pending, and on Flush and Close.
type Store struct {
	persist        Persistence
	logger         *slog.Logger
	now            func() time.Time
	flushThreshold int

	saveMu sync.Mutex // orders snapshot saves

	mu           sync.Mutex
	entries      map[string]Entry
	fingerprints map[string]FingerprintRecord
	pending      int
	hits         int64
	misses       int64
}

// Option configures a Store.
type Option func(*Store)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// WithFlushThreshold sets how many mutations may be pending before a flush.
func WithFlushThreshold(n int) Option {
	return func(s *Store) {
		if n > 0 {
			s.flushThreshold = n
		}
	}
}

// WithLogger sets the logger used for load and flush diagnostics.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// Open builds a store backed by persist and loads its snapshot. A nil persist
// gives a memory-only store. Open never fails: an unreadable or malformed
// snapshot is logged and the store starts empty.
func Open(ctx context.Context, persist Persistence, opts ...Option) *Store {
	s := &Store{
		persist:        persist,
		logger:         logging.NewNop(),
		now:            time.Now,
		flushThreshold: defaultFlushThreshold,
		entries:        make(map[string]Entry),
		fingerprints:   make(map[string]FingerprintRecord),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = logging.NewComponentLogger(s.logger, "cachestore")

	if persist == nil {
		return s
	}

	snap, err := persist.Load(ctx)
	if err != nil {
		if !errors.Is(err, services.ErrCacheCorrupt) {
			err = services.Wrap(services.ErrCacheCorrupt, "cache", "load", "", err)
		}
		s.logger.Warn("failed to load catalog cache",
			logging.String(logging.FieldEventType, "cache_load_failed"),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "cache will start empty and be rewritten on the next flush"),
			logging.String(logging.FieldImpact, "catalog lookups will be refetched"))
		return s
	}

	now := s.now()
	for _, entry := range snap.Entries {
		if strings.TrimSpace(entry.Key) == "" {
			continue
		}
		s.entries[entry.Key] = entry
	}
	for library, record := range snap.Fingerprints {
		s.fingerprints[library] = record
	}

	s.logger.Debug("loaded catalog cache",
		logging.Int("entry_count", len(s.entries)),
		logging.Int("expired_count", s.countExpired(now)))
	return s
}

// NewMemory builds a store that never persists.
func NewMemory(opts ...Option) *Store {
	return Open(context.Background(), nil, opts...)
}

// Get returns the payload for key when the entry is fresh. A non-empty
// fingerprint must match the stored one. Get never evicts.
func (s *Store) Get(key, fingerprint string) ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.entries[key]
	if !ok || entry.StateAt(s.now(), fingerprint) != StateFresh {
		s.misses++
		return nil, false
	}
	s.hits++
	return append([]byte(nil), entry.Payload...), true
}

// GetJSON decodes a fresh payload into v. A payload that no longer decodes is
// reported as a miss.
func (s *Store) GetJSON(key, fingerprint string, v any) bool {
	payload, ok := s.Get(key, fingerprint)
	if !ok {
		return false
	}
	if err := json.Unmarshal(payload, v); err != nil {
		logging.WarnWithContext(s.logger, "cached payload undecodable", "cache_payload_invalid",
			logging.String("key", key),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "entry will be refetched and overwritten"),
			logging.String(logging.FieldImpact, "one extra catalog request"))
		return false
	}
	return true
}

// Lookup returns the raw entry and its state without touching hit counters.
func (s *Store) Lookup(key, fingerprint string) (Entry, State) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.entries[key]
	if !ok {
		return Entry{}, StateMissing
	}
	return entry, entry.StateAt(s.now(), fingerprint)
}

// Set stores payload under key, replacing any prior entry.
func (s *Store) Set(key string, payload []byte, ttl time.Duration, fingerprint string) error {
	key = strings.TrimSpace(key)
	if key == "" {
		return errors.New("cache key cannot be empty")
	}
	if ttl <= 0 {
		return fmt.Errorf("cache ttl must be positive, got %s", ttl)
	}

	s.mu.Lock()
	now := s.now()
	s.entries[key] = Entry{
		Key:         key,
		Payload:     append([]byte(nil), payload...),
		Fingerprint: fingerprint,
		CreatedAt:   now,
		TTLSeconds:  int64(ttl / time.Second),
		ExpiresAt:   now.Add(ttl),
	}
	due := s.markDirtyLocked(1)
	s.mu.Unlock()

	return s.flushIfDue(due)
}

// SetJSON encodes v and stores it under key.
func (s *Store) SetJSON(key string, v any, ttl time.Duration, fingerprint string) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode cache payload for %s: %w", key, err)
	}
	return s.Set(key, payload, ttl, fingerprint)
}

// Invalidate removes key. Removing a missing key is not an error.
func (s *Store) Invalidate(key string) error {
	s.mu.Lock()
	if _, ok := s.entries[key]; !ok {
		s.mu.Unlock()
		return nil
	}
	delete(s.entries, key)
	due := s.markDirtyLocked(1)
	s.mu.Unlock()

	return s.flushIfDue(due)
}

// InvalidatePrefix removes every entry whose key starts with prefix and
// returns how many were removed.
func (s *Store) InvalidatePrefix(prefix string) (int, error) {
	s.mu.Lock()
	removed := 0
	for key := range s.entries {
		if strings.HasPrefix(key, prefix) {
			delete(s.entries, key)
			removed++
		}
	}
	due := s.markDirtyLocked(removed)
	s.mu.Unlock()

	return removed, s.flushIfDue(due)
}

// PurgeExpired evicts every entry whose TTL has elapsed and returns the count.
func (s *Store) PurgeExpired() (int, error) {
	s.mu.Lock()
	now := s.now()
	removed := 0
	for key, entry := range s.entries {
		if entry.Expired(now) {
			delete(s.entries, key)
			removed++
		}
	}
	due := s.markDirtyLocked(removed)
	s.mu.Unlock()

	if removed > 0 {
		s.logger.Debug("purged expired cache entries", logging.Int("removed", removed))
	}
	return removed, s.flushIfDue(due)
}

// Clear drops every entry and library fingerprint and flushes immediately.
func (s *Store) Clear(ctx context.Context) error {
	s.mu.Lock()
	s.entries = make(map[string]Entry)
	s.fingerprints = make(map[string]FingerprintRecord)
	s.pending++
	s.mu.Unlock()

	return s.Flush(ctx)
}

// SetLibraryFingerprint records the inventory fingerprint of a library.
func (s *Store) SetLibraryFingerprint(library, fingerprint string, itemCount int) error {
	s.mu.Lock()
	s.fingerprints[library] = FingerprintRecord{
		Value:      fingerprint,
		ItemCount:  itemCount,
		RecordedAt: s.now(),
	}
	due := s.markDirtyLocked(1)
	s.mu.Unlock()

	return s.flushIfDue(due)
}

// LibraryFingerprint returns the last fingerprint recorded for library.
func (s *Store) LibraryFingerprint(library string) (FingerprintRecord, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	record, ok := s.fingerprints[library]
	return record, ok
}

// Flush persists pending mutations. Each flush writes one complete snapshot.
func (s *Store) Flush(ctx context.Context) error {
	if s.persist == nil {
		s.mu.Lock()
		s.pending = 0
		s.mu.Unlock()
		return nil
	}

	s.saveMu.Lock()
	defer s.saveMu.Unlock()

	s.mu.Lock()
	if s.pending == 0 {
		s.mu.Unlock()
		return nil
	}
	snap := s.snapshotLocked()
	flushed := s.pending
	s.pending = 0
	s.mu.Unlock()

	if err := s.persist.Save(ctx, snap); err != nil {
		s.mu.Lock()
		s.pending += flushed
		s.mu.Unlock()
		return fmt.Errorf("persist cache: %w", err)
	}

	s.logger.Debug("flushed catalog cache",
		logging.Int("entry_count", len(snap.Entries)),
		logging.Int("mutations", flushed))
	return nil
}

// Close flushes pending mutations and releases the backend.
func (s *Store) Close(ctx context.Context) error {
	flushErr := s.Flush(ctx)
	if closer, ok := s.persist.(io.Closer); ok {
		if err := closer.Close(); err != nil && flushErr == nil {
			return fmt.Errorf("close cache backend: %w", err)
		}
	}
	return flushErr
}

// Stats summarizes the store contents and this session's hit rate.
type Stats struct {
	Entries      int            `json:"entries"`
	Fresh        int            `json:"fresh"`
	Expired      int            `json:"expired"`
	Namespaces   map[string]int `json:"namespaces"`
	Libraries    int            `json:"libraries"`
	Hits         int64          `json:"hits"`
	Misses       int64          `json:"misses"`
	PayloadBytes uint64         `json:"payload_bytes"`
	PayloadSize  string         `json:"payload_size"`
	OldestEntry  time.Time      `json:"oldest_entry,omitzero"`
}

// HitRate returns hits as a percentage of reads, or 0 without reads.
func (st Stats) HitRate() float64 {
	total := st.Hits + st.Misses
	if total == 0 {
		return 0
	}
	return float64(st.Hits) / float64(total) * 100
}

// Stats reports counts for the current contents.
func (s *Store) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	stats := Stats{
		Entries:    len(s.entries),
		Namespaces: make(map[string]int),
		Libraries:  len(s.fingerprints),
		Hits:       s.hits,
		Misses:     s.misses,
	}
	for key, entry := range s.entries {
		if entry.Expired(now) {
			stats.Expired++
		} else {
			stats.Fresh++
		}
		stats.Namespaces[Namespace(key)]++
		stats.PayloadBytes += uint64(len(entry.Payload))
		if stats.OldestEntry.IsZero() || entry.CreatedAt.Before(stats.OldestEntry) {
			stats.OldestEntry = entry.CreatedAt
		}
	}
	stats.PayloadSize = humanize.Bytes(stats.PayloadBytes)
	return stats
}

// Keys returns all keys in ascending order.
func (s *Store) Keys() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	keys := make([]string, 0, len(s.entries))
	for key := range s.entries {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

func (s *Store) markDirtyLocked(n int) bool {
	if n <= 0 {
		return false
	}
	s.pending += n
	return s.pending >= s.flushThreshold
}

func (s *Store) flushIfDue(due bool) error {
	if !due {
		return nil
	}
	return s.Flush(context.Background())
}

func (s *Store) snapshotLocked() Snapshot {
	entries := make([]Entry, 0, len(s.entries))
	for _, entry := range s.entries {
		entries = append(entries, entry)
	}
	sortEntries(entries)

	fingerprints := make(map[string]FingerprintRecord, len(s.fingerprints))
	for library, record := range s.fingerprints {
		fingerprints[library] = record
	}
	return Snapshot{Version: snapshotVersion, Entries: entries, Fingerprints: fingerprints}
}

func (s *Store) countExpired(now time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	count := 0
	for _, entry := range s.entries {
		if entry.Expired(now) {
			count++
		}
	}
	return count
}

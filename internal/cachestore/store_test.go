package cachestore_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/afero"

	"gapscan/internal/cachestore"
)

type fakeClock struct{ now time.Time }

func (c *fakeClock) Now() time.Time          { return c.now }
func (c *fakeClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func newClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}
}

func TestStoreRoundTripAcrossReopen(t *testing.T) {
	ctx := context.Background()
	fsys := afero.NewMemMapFs()
	clock := newClock()

	store := cachestore.Open(ctx, cachestore.NewJSONFile("/cache/gapscan.json", cachestore.WithFs(fsys)),
		cachestore.WithClock(clock.Now))
	if err := store.Set("tmdb:movie:603", []byte(`{"id":603}`), time.Hour, ""); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if err := store.Close(ctx); err != nil {
		t.Fatalf("Close: %v", err)
	}

	clock.Advance(10 * time.Minute)
	reopened := cachestore.Open(ctx, cachestore.NewJSONFile("/cache/gapscan.json", cachestore.WithFs(fsys)),
		cachestore.WithClock(clock.Now))
	payload, ok := reopened.Get("tmdb:movie:603", "")
	if !ok {
		t.Fatal("expected fresh entry after reopen")
	}
	if string(payload) != `{"id":603}` {
		t.Fatalf("unexpected payload %s", payload)
	}

	clock.Advance(50 * time.Minute)
	if _, ok := reopened.Get("tmdb:movie:603", ""); ok {
		t.Fatal("expected miss once the TTL elapsed")
	}
	if got := reopened.Keys(); len(got) != 1 {
		t.Fatalf("expected Get to leave the stale entry in place, keys=%v", got)
	}
}

func TestFingerprintMismatchWinsOverTTL(t *testing.T) {
	clock := newClock()
	store := cachestore.Open(context.Background(), nil, cachestore.WithClock(clock.Now))
	if err := store.Set("tmdb:movie:1", []byte(`1`), 24*time.Hour, "3:abc"); err != nil {
		t.Fatalf("Set: %v", err)
	}

	if _, ok := store.Get("tmdb:movie:1", "4:def"); ok {
		t.Fatal("expected fingerprint mismatch to miss")
	}
	if _, state := store.Lookup("tmdb:movie:1", "4:def"); state != cachestore.StateStaleFingerprint {
		t.Fatalf("expected stale_fingerprint, got %s", state)
	}
	if _, ok := store.Get("tmdb:movie:1", "3:abc"); !ok {
		t.Fatal("expected matching fingerprint to hit")
	}
	if _, ok := store.Get("tmdb:movie:1", ""); !ok {
		t.Fatal("expected empty fingerprint argument to skip comparison")
	}

	if err := store.Set("tmdb:collection:9", []byte(`9`), time.Hour, ""); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if _, ok := store.Get("tmdb:collection:9", "4:def"); !ok {
		t.Fatal("expected unfingerprinted entry to ignore the reader fingerprint")
	}
}

func TestPurgeExpired(t *testing.T) {
	clock := newClock()
	store := cachestore.Open(context.Background(), nil, cachestore.WithClock(clock.Now))
	_ = store.Set("tvdb:series:1", []byte(`1`), time.Hour, "")
	_ = store.Set("tvdb:series:2", []byte(`2`), 3*time.Hour, "")
	_ = store.Set("tvdb:series:3", []byte(`3`), 30*time.Minute, "")

	clock.Advance(2 * time.Hour)
	removed, err := store.PurgeExpired()
	if err != nil {
		t.Fatalf("PurgeExpired: %v", err)
	}
	if removed != 2 {
		t.Fatalf("expected 2 purged, got %d", removed)
	}
	if keys := store.Keys(); len(keys) != 1 || keys[0] != "tvdb:series:2" {
		t.Fatalf("unexpected remaining keys %v", keys)
	}
}

func TestCorruptSnapshotStartsEmpty(t *testing.T) {
	fsys := afero.NewMemMapFs()
	if err := afero.WriteFile(fsys, "/cache.json", []byte("{not json"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	store := cachestore.Open(context.Background(), cachestore.NewJSONFile("/cache.json", cachestore.WithFs(fsys)))
	if stats := store.Stats(); stats.Entries != 0 {
		t.Fatalf("expected empty store, got %d entries", stats.Entries)
	}

	if err := store.Set("tmdb:movie:1", []byte(`1`), time.Hour, ""); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if err := store.Flush(context.Background()); err != nil {
		t.Fatalf("Flush: %v", err)
	}
	data, err := afero.ReadFile(fsys, "/cache.json")
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if !strings.Contains(string(data), "tmdb:movie:1") {
		t.Fatalf("expected corrupt file to be overwritten, got %s", data)
	}
}

func TestJSONFileRejectsOtherVersions(t *testing.T) {
	fsys := afero.NewMemMapFs()
	_ = afero.WriteFile(fsys, "/cache.json", []byte(`{"version": 99, "entries": []}`), 0o644)
	_, err := cachestore.NewJSONFile("/cache.json", cachestore.WithFs(fsys)).Load(context.Background())
	if err == nil || !strings.Contains(err.Error(), "version 99") {
		t.Fatalf("expected version error, got %v", err)
	}
}

func TestJSONFileMissingIsEmpty(t *testing.T) {
	snap, err := cachestore.NewJSONFile("/nope/cache.json", cachestore.WithFs(afero.NewMemMapFs())).Load(context.Background())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(snap.Entries) != 0 {
		t.Fatalf("expected empty snapshot, got %d entries", len(snap.Entries))
	}
}

func TestFlushLeavesNoTempFile(t *testing.T) {
	fsys := afero.NewMemMapFs()
	store := cachestore.Open(context.Background(), cachestore.NewJSONFile("/state/cache.json", cachestore.WithFs(fsys)))
	_ = store.Set("tmdb:movie:1", []byte(`1`), time.Hour, "")
	if err := store.Flush(context.Background()); err != nil {
		t.Fatalf("Flush: %v", err)
	}
	if ok, _ := afero.Exists(fsys, "/state/cache.json.tmp"); ok {
		t.Fatal("temp file left behind")
	}
	if ok, _ := afero.Exists(fsys, "/state/cache.json"); !ok {
		t.Fatal("cache file missing after flush")
	}
}

func TestFlushThresholdBatchesWrites(t *testing.T) {
	fsys := afero.NewMemMapFs()
	store := cachestore.Open(context.Background(), cachestore.NewJSONFile("/cache.json", cachestore.WithFs(fsys)),
		cachestore.WithFlushThreshold(3))

	_ = store.Set("a:1", []byte(`1`), time.Hour, "")
	_ = store.Set("a:2", []byte(`2`), time.Hour, "")
	if ok, _ := afero.Exists(fsys, "/cache.json"); ok {
		t.Fatal("expected no write before the threshold")
	}
	_ = store.Set("a:3", []byte(`3`), time.Hour, "")
	if ok, _ := afero.Exists(fsys, "/cache.json"); !ok {
		t.Fatal("expected a write once the threshold was reached")
	}
}

func TestInvalidatePrefixAndClear(t *testing.T) {
	store := cachestore.NewMemory()
	_ = store.Set("tmdb:movie:1", []byte(`1`), time.Hour, "")
	_ = store.Set("tmdb:movie:2", []byte(`2`), time.Hour, "")
	_ = store.Set("tmdb:collection:10", []byte(`10`), time.Hour, "")

	removed, err := store.InvalidatePrefix("tmdb:movie:")
	if err != nil || removed != 2 {
		t.Fatalf("InvalidatePrefix: removed=%d err=%v", removed, err)
	}
	if err := store.Invalidate("tmdb:missing:1"); err != nil {
		t.Fatalf("Invalidate missing key: %v", err)
	}
	_ = store.SetLibraryFingerprint("Movies", "1:ff", 1)
	if err := store.Clear(context.Background()); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	if stats := store.Stats(); stats.Entries != 0 || stats.Libraries != 0 {
		t.Fatalf("expected empty store after clear, got %+v", stats)
	}
}

func TestStatsCountsNamespacesAndHits(t *testing.T) {
	clock := newClock()
	store := cachestore.NewMemory(cachestore.WithClock(clock.Now))
	_ = store.Set("tmdb:movie:1", []byte(`1234`), time.Hour, "")
	_ = store.Set("tmdb:movie:2", []byte(`5678`), 10*time.Minute, "")
	_ = store.Set("tvdb:episodes:7", []byte(`[]`), time.Hour, "")
	clock.Advance(20 * time.Minute)

	store.Get("tmdb:movie:1", "")
	store.Get("tmdb:movie:2", "")

	stats := store.Stats()
	if stats.Entries != 3 || stats.Fresh != 2 || stats.Expired != 1 {
		t.Fatalf("unexpected counts %+v", stats)
	}
	if stats.Namespaces["tmdb:movie"] != 2 || stats.Namespaces["tvdb:episodes"] != 1 {
		t.Fatalf("unexpected namespaces %v", stats.Namespaces)
	}
	if stats.Hits != 1 || stats.Misses != 1 || stats.HitRate() != 50 {
		t.Fatalf("unexpected hit stats %+v", stats)
	}
	if stats.PayloadBytes != 10 || stats.PayloadSize != "10 B" {
		t.Fatalf("unexpected payload size %d %q", stats.PayloadBytes, stats.PayloadSize)
	}
}

func TestSetRejectsInvalidInput(t *testing.T) {
	store := cachestore.NewMemory()
	if err := store.Set(" ", []byte(`1`), time.Hour, ""); err == nil {
		t.Fatal("expected empty key to be rejected")
	}
	if err := store.Set("a:1", []byte(`1`), 0, ""); err == nil {
		t.Fatal("expected zero ttl to be rejected")
	}
}

func TestGetJSONTreatsUndecodableAsMiss(t *testing.T) {
	store := cachestore.NewMemory()
	_ = store.Set("tmdb:movie:1", []byte(`"text"`), time.Hour, "")
	var target struct{ ID int }
	if store.GetJSON("tmdb:movie:1", "", &target) {
		t.Fatal("expected decode failure to be a miss")
	}
	if err := store.SetJSON("tmdb:movie:2", map[string]int{"ID": 2}, time.Hour, ""); err != nil {
		t.Fatalf("SetJSON: %v", err)
	}
	if !store.GetJSON("tmdb:movie:2", "", &target) || target.ID != 2 {
		t.Fatalf("expected decoded payload, got %+v", target)
	}
}

func TestBackendsRoundTrip(t *testing.T) {
	for _, kind := range []string{"json", "sqlite", "bolt"} {
		t.Run(kind, func(t *testing.T) {
			ctx := context.Background()
			clock := newClock()
			path := filepath.Join(t.TempDir(), "cache."+kind)

			backend, err := cachestore.OpenBackend(kind, path)
			if err != nil {
				t.Fatalf("OpenBackend: %v", err)
			}
			store := cachestore.Open(ctx, backend, cachestore.WithClock(clock.Now))
			if err := store.Set("tvdb:series:81189", []byte(`{"ended": true, "seasons": [1, 2]}`), 48*time.Hour, "fp"); err != nil {
				t.Fatalf("Set: %v", err)
			}
			if err := store.SetLibraryFingerprint("TV Shows", "2:abc", 2); err != nil {
				t.Fatalf("SetLibraryFingerprint: %v", err)
			}
			if err := store.Close(ctx); err != nil {
				t.Fatalf("Close: %v", err)
			}

			backend, err = cachestore.OpenBackend(kind, path)
			if err != nil {
				t.Fatalf("reopen backend: %v", err)
			}
			reopened := cachestore.Open(ctx, backend, cachestore.WithClock(clock.Now))
			defer reopened.Close(ctx)

			entry, state := reopened.Lookup("tvdb:series:81189", "fp")
			if state != cachestore.StateFresh {
				t.Fatalf("expected fresh entry, got %s", state)
			}
			if string(entry.Payload) != `{"ended": true, "seasons": [1, 2]}` || entry.TTLSeconds != 48*3600 {
				t.Fatalf("unexpected entry %+v", entry)
			}
			if !entry.ExpiresAt.Equal(clock.now.Add(48 * time.Hour)) {
				t.Fatalf("unexpected expiry %s", entry.ExpiresAt)
			}
			record, ok := reopened.LibraryFingerprint("TV Shows")
			if !ok || record.Value != "2:abc" || record.ItemCount != 2 {
				t.Fatalf("unexpected fingerprint record %+v ok=%v", record, ok)
			}
		})
	}
}

func TestOpenBackendRecoversUnreadableDatabase(t *testing.T) {
	for _, kind := range []string{"sqlite", "bolt"} {
		t.Run(kind, func(t *testing.T) {
			ctx := context.Background()
			dir := t.TempDir()
			path := filepath.Join(dir, "cache."+kind)
			garbage := []byte(strings.Repeat("not a database ", 1024))
			if err := os.WriteFile(path, garbage, 0o644); err != nil {
				t.Fatalf("write garbage: %v", err)
			}

			backend, err := cachestore.OpenBackend(kind, path)
			if err != nil {
				t.Fatalf("expected recovery from unreadable file, got %v", err)
			}
			moved, err := os.ReadFile(path + ".corrupt")
			if err != nil || string(moved) != string(garbage) {
				t.Fatalf("expected unreadable file moved aside intact, err=%v", err)
			}

			store := cachestore.Open(ctx, backend)
			if err := store.Set("tmdb:collection:10", []byte(`{"id":10}`), time.Hour, ""); err != nil {
				t.Fatalf("Set: %v", err)
			}
			if err := store.Close(ctx); err != nil {
				t.Fatalf("Close: %v", err)
			}

			backend, err = cachestore.OpenBackend(kind, path)
			if err != nil {
				t.Fatalf("reopen recovered backend: %v", err)
			}
			reopened := cachestore.Open(ctx, backend)
			defer reopened.Close(ctx)
			if entry, state := reopened.Lookup("tmdb:collection:10", ""); state != cachestore.StateFresh || string(entry.Payload) != `{"id":10}` {
				t.Fatalf("expected entry persisted in the new database, got state=%s entry=%+v", state, entry)
			}
		})
	}
}

func TestOpenBackendRejectsUnknownKind(t *testing.T) {
	if _, err := cachestore.OpenBackend("redis", "/tmp/x"); err == nil {
		t.Fatal("expected error for unknown backend")
	}
}

func TestLibraryFingerprintIgnoresOrder(t *testing.T) {
	a := cachestore.LibraryFingerprint([]string{"tmdb:3", "tmdb:1", "tmdb:2"})
	b := cachestore.LibraryFingerprint([]string{"tmdb:1", "tmdb:2", "tmdb:3"})
	if a != b {
		t.Fatalf("expected order independence: %s != %s", a, b)
	}
	if !strings.HasPrefix(a, "3:") {
		t.Fatalf("expected count prefix, got %s", a)
	}
	if c := cachestore.LibraryFingerprint([]string{"tmdb:1", "tmdb:2"}); c == a {
		t.Fatal("expected fingerprint to change when an item is removed")
	}
}

func TestAcquireLockIsExclusive(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cache.json")
	release, err := cachestore.AcquireLock(context.Background(), path)
	if err != nil {
		t.Fatalf("AcquireLock: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 250*time.Millisecond)
	defer cancel()
	if _, err := cachestore.AcquireLock(ctx, path); !errors.Is(err, cachestore.ErrLocked) {
		t.Fatalf("expected ErrLocked, got %v", err)
	}

	if err := release(); err != nil {
		t.Fatalf("release: %v", err)
	}
	again, err := cachestore.AcquireLock(context.Background(), path)
	if err != nil {
		t.Fatalf("expected lock after release: %v", err)
	}
	_ = again()
}

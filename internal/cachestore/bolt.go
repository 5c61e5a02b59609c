package cachestore

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	bolt "go.etcd.io/bbolt"

	"gapscan/internal/services"
)

var (
	bucketEntries      = []byte("entries")
	bucketFingerprints = []byte("fingerprints")
	bucketMeta         = []byte("meta")
	metaVersionKey     = []byte("version")
)

// Bolt persists snapshots in a bbolt key/value file, one JSON record per key.
type Bolt struct {
	db   *bolt.DB
	path string
}

// OpenBolt opens (or creates) the bbolt file at path.
func OpenBolt(path string) (*Bolt, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create cache directory: %w", err)
	}
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("open bolt db: %w", err)
	}
	return &Bolt{db: db, path: path}, nil
}

// Close releases the file lock held by bbolt.
func (b *Bolt) Close() error {
	return b.db.Close()
}

// Load reads all buckets. A fresh file yields an empty snapshot.
func (b *Bolt) Load(ctx context.Context) (Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return Snapshot{}, err
	}
	snap := Snapshot{Version: snapshotVersion, Fingerprints: make(map[string]FingerprintRecord)}

	err := b.db.View(func(tx *bolt.Tx) error {
		if meta := tx.Bucket(bucketMeta); meta != nil {
			if raw := meta.Get(metaVersionKey); raw != nil {
				version, err := strconv.Atoi(string(raw))
				if err != nil || version != snapshotVersion {
					return fmt.Errorf("%w: bolt cache has version %q, expected %d",
						services.ErrCacheCorrupt, raw, snapshotVersion)
				}
			}
		}
		if entries := tx.Bucket(bucketEntries); entries != nil {
			if err := entries.ForEach(func(k, v []byte) error {
				var entry Entry
				if err := json.Unmarshal(v, &entry); err != nil {
					return services.Wrap(services.ErrCacheCorrupt, "cache", "decode entry", string(k), err)
				}
				entry.Key = string(k)
				snap.Entries = append(snap.Entries, entry)
				return nil
			}); err != nil {
				return err
			}
		}
		if fps := tx.Bucket(bucketFingerprints); fps != nil {
			return fps.ForEach(func(k, v []byte) error {
				var record FingerprintRecord
				if err := json.Unmarshal(v, &record); err != nil {
					return services.Wrap(services.ErrCacheCorrupt, "cache", "decode fingerprint", string(k), err)
				}
				snap.Fingerprints[string(k)] = record
				return nil
			})
		}
		return nil
	})
	if err != nil {
		return Snapshot{}, err
	}
	return snap, nil
}

// Save recreates every bucket from snap in one update transaction.
func (b *Bolt) Save(ctx context.Context, snap Snapshot) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return b.db.Update(func(tx *bolt.Tx) error {
		for _, name := range [][]byte{bucketEntries, bucketFingerprints, bucketMeta} {
			if tx.Bucket(name) != nil {
				if err := tx.DeleteBucket(name); err != nil {
					return fmt.Errorf("reset bucket %s: %w", name, err)
				}
			}
		}
		entries, err := tx.CreateBucket(bucketEntries)
		if err != nil {
			return fmt.Errorf("create entries bucket: %w", err)
		}
		for _, entry := range snap.Entries {
			data, err := json.Marshal(entry)
			if err != nil {
				return fmt.Errorf("marshal entry %s: %w", entry.Key, err)
			}
			if err := entries.Put([]byte(entry.Key), data); err != nil {
				return fmt.Errorf("put entry %s: %w", entry.Key, err)
			}
		}

		fps, err := tx.CreateBucket(bucketFingerprints)
		if err != nil {
			return fmt.Errorf("create fingerprints bucket: %w", err)
		}
		for library, record := range snap.Fingerprints {
			data, err := json.Marshal(record)
			if err != nil {
				return fmt.Errorf("marshal fingerprint %s: %w", library, err)
			}
			if err := fps.Put([]byte(library), data); err != nil {
				return fmt.Errorf("put fingerprint %s: %w", library, err)
			}
		}

		meta, err := tx.CreateBucket(bucketMeta)
		if err != nil {
			return fmt.Errorf("create meta bucket: %w", err)
		}
		return meta.Put(metaVersionKey, []byte(strconv.Itoa(snapshotVersion)))
	})
}

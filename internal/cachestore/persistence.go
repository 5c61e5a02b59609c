package cachestore

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"sort"

	bolt "go.etcd.io/bbolt"

	"gapscan/internal/logging"
)

// snapshotVersion is bumped whenever the persisted layout changes. A snapshot
// with another version loads as corrupt, so the store starts empty.
// Version 2 stores payloads as opaque bytes.
const snapshotVersion = 2

// corruptSuffix is appended to a database file that could not be opened.
const corruptSuffix = ".corrupt"

// Snapshot is the full persisted state of a store.
type Snapshot struct {
	Version      int                          `json:"version"`
	Entries      []Entry                      `json:"entries"`
	Fingerprints map[string]FingerprintRecord `json:"fingerprints"`
}

// Persistence loads and atomically saves snapshots. Implementations may also
// implement io.Closer; the store closes them on Close.
type Persistence interface {
	Load(ctx context.Context) (Snapshot, error)
	Save(ctx context.Context, snap Snapshot) error
}

// BackendOption configures OpenBackend.
type BackendOption func(*backendOptions)

type backendOptions struct {
	logger *slog.Logger
}

// WithBackendLogger reports recovered database files to logger.
func WithBackendLogger(logger *slog.Logger) BackendOption {
	return func(o *backendOptions) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// OpenBackend opens the persistence backend named by kind at path. A SQLite or
// bbolt file that exists but cannot be opened is moved aside to
// path+".corrupt" and a fresh database is created in its place.
func OpenBackend(kind, path string, opts ...BackendOption) (Persistence, error) {
	o := backendOptions{logger: logging.NewNop()}
	for _, opt := range opts {
		opt(&o)
	}

	switch kind {
	case "", "json":
		return NewJSONFile(path), nil
	case "sqlite":
		return openRecovering(path, o.logger, []string{"-wal", "-shm"}, func() (Persistence, error) {
			db, err := OpenSQLite(path)
			if err != nil {
				return nil, err
			}
			return db, nil
		})
	case "bolt":
		return openRecovering(path, o.logger, nil, func() (Persistence, error) {
			db, err := OpenBolt(path)
			if err != nil {
				return nil, err
			}
			return db, nil
		})
	default:
		return nil, fmt.Errorf("unknown cache backend %q", kind)
	}
}

func openRecovering(path string, logger *slog.Logger, sidecars []string, open func() (Persistence, error)) (Persistence, error) {
	backend, err := open()
	if err == nil {
		return backend, nil
	}
	if errors.Is(err, bolt.ErrTimeout) {
		return nil, err
	}
	if _, statErr := os.Stat(path); statErr != nil {
		return nil, err
	}

	target := path + corruptSuffix
	if renameErr := os.Rename(path, target); renameErr != nil {
		return nil, errors.Join(err, fmt.Errorf("move unreadable cache aside: %w", renameErr))
	}
	for _, suffix := range sidecars {
		if rmErr := os.Remove(path + suffix); rmErr != nil && !errors.Is(rmErr, fs.ErrNotExist) {
			return nil, errors.Join(err, fmt.Errorf("remove %s: %w", path+suffix, rmErr))
		}
	}
	logger.Warn("cache database unreadable, starting a new one",
		logging.String(logging.FieldEventType, "cache_recovered"),
		logging.String("path", path),
		logging.String("moved_to", target),
		logging.Error(err),
		logging.String(logging.FieldErrorHint, "delete the .corrupt file once it is no longer needed"),
		logging.String(logging.FieldImpact, "cached catalog lookups are refetched"))

	backend, retryErr := open()
	if retryErr != nil {
		return nil, errors.Join(err, retryErr)
	}
	return backend, nil
}

func sortEntries(entries []Entry) {
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Key < entries[j].Key
	})
}

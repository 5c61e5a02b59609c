package cachestore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"

	"github.com/spf13/afero"

	"gapscan/internal/services"
)

// JSONFile persists snapshots as one JSON document, replaced atomically via a
// temp file and rename.
type JSONFile struct {
	fs   afero.Fs
	path string
}

// JSONFileOption configures a JSONFile.
type JSONFileOption func(*JSONFile)

// WithFs swaps the filesystem, typically for afero.NewMemMapFs in tests.
func WithFs(fsys afero.Fs) JSONFileOption {
	return func(j *JSONFile) {
		if fsys != nil {
			j.fs = fsys
		}
	}
}

// NewJSONFile returns a JSON backend writing to path.
func NewJSONFile(path string, opts ...JSONFileOption) *JSONFile {
	j := &JSONFile{fs: afero.NewOsFs(), path: path}
	for _, opt := range opts {
		opt(j)
	}
	return j
}

// Path returns the cache file location.
func (j *JSONFile) Path() string { return j.path }

// Load reads the snapshot. A missing or empty file is an empty snapshot.
func (j *JSONFile) Load(ctx context.Context) (Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return Snapshot{}, err
	}
	data, err := afero.ReadFile(j.fs, j.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return Snapshot{Version: snapshotVersion}, nil
		}
		return Snapshot{}, fmt.Errorf("read cache file: %w", err)
	}
	if len(data) == 0 {
		return Snapshot{Version: snapshotVersion}, nil
	}

	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return Snapshot{}, services.Wrap(services.ErrCacheCorrupt, "cache", "parse", j.path, err)
	}
	if snap.Version != snapshotVersion {
		return Snapshot{}, fmt.Errorf("%w: %s has version %d, expected %d",
			services.ErrCacheCorrupt, j.path, snap.Version, snapshotVersion)
	}
	return snap, nil
}

// Save writes snap to a temp file and renames it over the cache file.
func (j *JSONFile) Save(ctx context.Context, snap Snapshot) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	snap.Version = snapshotVersion
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshal cache: %w", err)
	}

	if err := j.fs.MkdirAll(filepath.Dir(j.path), 0o755); err != nil {
		return fmt.Errorf("create cache directory: %w", err)
	}

	tmpPath := j.path + ".tmp"
	if err := afero.WriteFile(j.fs, tmpPath, data, 0o644); err != nil {
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := j.fs.Rename(tmpPath, j.path); err != nil {
		_ = j.fs.Remove(tmpPath)
		return fmt.Errorf("rename temp file: %w", err)
	}
	return nil
}

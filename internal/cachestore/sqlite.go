package cachestore

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"gapscan/internal/services"
)

//go:embed schema.sql
var schemaSQL string

// sqliteSchemaVersion tracks schema.sql. A database at another version loads
// as corrupt and is rebuilt on the next save.
const sqliteSchemaVersion = 1

const (
	sqliteBusyCode          = 5
	busyRetryAttempts       = 5
	busyRetryInitialBackoff = 10 * time.Millisecond
	busyRetryMaxBackoff     = 200 * time.Millisecond
)

// SQLite persists snapshots in a WAL-mode SQLite database.
type SQLite struct {
	db   *sql.DB
	path string

	schemaErr error
}

// OpenSQLite opens (or creates) the database at path.
func OpenSQLite(path string) (*SQLite, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create cache directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	s := &SQLite{db: db, path: path}
	s.schemaErr = s.initSchema(context.Background())
	return s, nil
}

// Close releases the database handle.
func (s *SQLite) Close() error {
	return s.db.Close()
}

func (s *SQLite) initSchema(ctx context.Context) error {
	var tableExists int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(1) FROM sqlite_master WHERE type='table' AND name='schema_version'",
	).Scan(&tableExists)
	if err != nil {
		return fmt.Errorf("check schema_version table: %w", err)
	}
	if tableExists == 0 {
		return s.createSchema(ctx)
	}

	var version int
	if err := s.db.QueryRowContext(ctx, "SELECT version FROM schema_version LIMIT 1").Scan(&version); err != nil {
		return fmt.Errorf("%w: read schema version: %w", services.ErrCacheCorrupt, err)
	}
	if version != sqliteSchemaVersion {
		return fmt.Errorf("%w: database has version %d, expected %d",
			services.ErrCacheCorrupt, version, sqliteSchemaVersion)
	}
	return nil
}

func (s *SQLite) createSchema(ctx context.Context) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM schema_version"); err != nil {
		return fmt.Errorf("reset schema version: %w", err)
	}
	if _, err := tx.ExecContext(ctx, "INSERT INTO schema_version (version) VALUES (?)", sqliteSchemaVersion); err != nil {
		return fmt.Errorf("record schema version: %w", err)
	}
	return tx.Commit()
}

// Load reads every row into a snapshot.
func (s *SQLite) Load(ctx context.Context) (Snapshot, error) {
	if s.schemaErr != nil {
		return Snapshot{}, s.schemaErr
	}
	snap := Snapshot{Version: snapshotVersion, Fingerprints: make(map[string]FingerprintRecord)}

	rows, err := s.db.QueryContext(ctx,
		"SELECT key, payload, fingerprint, created_at, ttl_seconds, expires_at FROM entries ORDER BY key")
	if err != nil {
		return Snapshot{}, fmt.Errorf("query entries: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			entry              Entry
			payload            []byte
			createdAt, expires int64
		)
		if err := rows.Scan(&entry.Key, &payload, &entry.Fingerprint, &createdAt, &entry.TTLSeconds, &expires); err != nil {
			return Snapshot{}, fmt.Errorf("%w: scan entry: %w", services.ErrCacheCorrupt, err)
		}
		entry.Payload = payload
		entry.CreatedAt = time.Unix(0, createdAt).UTC()
		entry.ExpiresAt = time.Unix(0, expires).UTC()
		snap.Entries = append(snap.Entries, entry)
	}
	if err := rows.Err(); err != nil {
		return Snapshot{}, fmt.Errorf("iterate entries: %w", err)
	}

	fpRows, err := s.db.QueryContext(ctx,
		"SELECT library, value, item_count, recorded_at FROM library_fingerprints")
	if err != nil {
		return Snapshot{}, fmt.Errorf("query fingerprints: %w", err)
	}
	defer fpRows.Close()
	for fpRows.Next() {
		var (
			library    string
			record     FingerprintRecord
			recordedAt int64
		)
		if err := fpRows.Scan(&library, &record.Value, &record.ItemCount, &recordedAt); err != nil {
			return Snapshot{}, fmt.Errorf("%w: scan fingerprint: %w", services.ErrCacheCorrupt, err)
		}
		record.RecordedAt = time.Unix(0, recordedAt).UTC()
		snap.Fingerprints[library] = record
	}
	return snap, fpRows.Err()
}

// Save replaces all rows with snap inside one transaction.
func (s *SQLite) Save(ctx context.Context, snap Snapshot) error {
	if s.schemaErr != nil {
		if !errors.Is(s.schemaErr, services.ErrCacheCorrupt) {
			return s.schemaErr
		}
		if err := s.rebuild(ctx); err != nil {
			return err
		}
	}
	return retryOnBusy(ctx, func() error { return s.save(ctx, snap) })
}

func (s *SQLite) save(ctx context.Context, snap Snapshot) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin save tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, "DELETE FROM entries"); err != nil {
		return fmt.Errorf("clear entries: %w", err)
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM library_fingerprints"); err != nil {
		return fmt.Errorf("clear fingerprints: %w", err)
	}

	insertEntry, err := tx.PrepareContext(ctx,
		"INSERT INTO entries (key, payload, fingerprint, created_at, ttl_seconds, expires_at) VALUES (?, ?, ?, ?, ?, ?)")
	if err != nil {
		return fmt.Errorf("prepare entry insert: %w", err)
	}
	defer insertEntry.Close()
	for _, entry := range snap.Entries {
		payload := entry.Payload
		if payload == nil {
			payload = []byte{}
		}
		if _, err := insertEntry.ExecContext(ctx, entry.Key, payload, entry.Fingerprint,
			entry.CreatedAt.UnixNano(), entry.TTLSeconds, entry.ExpiresAt.UnixNano()); err != nil {
			return fmt.Errorf("insert entry %s: %w", entry.Key, err)
		}
	}

	for library, record := range snap.Fingerprints {
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO library_fingerprints (library, value, item_count, recorded_at) VALUES (?, ?, ?, ?)",
			library, record.Value, record.ItemCount, record.RecordedAt.UnixNano()); err != nil {
			return fmt.Errorf("insert fingerprint %s: %w", library, err)
		}
	}
	return tx.Commit()
}

func (s *SQLite) rebuild(ctx context.Context) error {
	for _, stmt := range []string{
		"DROP TABLE IF EXISTS entries",
		"DROP TABLE IF EXISTS library_fingerprints",
		"DROP TABLE IF EXISTS schema_version",
	} {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("rebuild cache schema: %w", err)
		}
	}
	if err := s.createSchema(ctx); err != nil {
		return err
	}
	s.schemaErr = nil
	return nil
}

func isSQLiteBusy(err error) bool {
	if err == nil {
		return false
	}
	var coder interface{ Code() int }
	if errors.As(err, &coder) && coder.Code() == sqliteBusyCode {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") || strings.Contains(msg, "database is locked")
}

func retryOnBusy(ctx context.Context, op func() error) error {
	delay := busyRetryInitialBackoff
	var lastErr error
	for attempt := 0; attempt < busyRetryAttempts; attempt++ {
		lastErr = op()
		if lastErr == nil || !isSQLiteBusy(lastErr) || attempt == busyRetryAttempts-1 {
			break
		}
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
		if next := delay * 2; next <= busyRetryMaxBackoff {
			delay = next
		}
	}
	return lastErr
}

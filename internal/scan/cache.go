package scan

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"gapscan/internal/cachestore"
	"gapscan/internal/config"
	"gapscan/internal/logging"
)

const lockWait = 5 * time.Second

// Cache is the catalog cache held exclusively for one process.
type Cache struct {
	Store  *cachestore.Store
	unlock func() error
}

// OpenCache locks the configured cache path and loads the store. An unreadable
// database file is moved aside and replaced. A backend that still cannot be
// opened degrades to an in-memory cache for this run; a held lock is an error.
func OpenCache(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Cache, error) {
	lockCtx, cancel := context.WithTimeout(ctx, lockWait)
	defer cancel()
	unlock, err := cachestore.AcquireLock(lockCtx, cfg.Cache.Path)
	if err != nil {
		return nil, err
	}

	opts := []cachestore.Option{
		cachestore.WithFlushThreshold(cfg.Cache.FlushThreshold),
		cachestore.WithLogger(logger),
	}
	backend, err := cachestore.OpenBackend(cfg.Cache.Backend, cfg.Cache.Path, cachestore.WithBackendLogger(logger))
	if err != nil {
		logging.WarnWithContext(logger, "cache backend unavailable", "cache_open_failed",
			logging.String("backend", cfg.Cache.Backend),
			logging.String("path", cfg.Cache.Path),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check permissions on the cache directory"),
			logging.String(logging.FieldImpact, "catalog answers are not persisted this run"))
		return &Cache{Store: cachestore.NewMemory(opts...), unlock: unlock}, nil
	}
	return &Cache{Store: cachestore.Open(ctx, backend, opts...), unlock: unlock}, nil
}

// Close flushes the store and releases the lock.
func (c *Cache) Close(ctx context.Context) error {
	if c == nil {
		return nil
	}
	var errs []error
	if c.Store != nil {
		errs = append(errs, c.Store.Close(ctx))
	}
	if c.unlock != nil {
		errs = append(errs, c.unlock())
	}
	return errors.Join(errs...)
}

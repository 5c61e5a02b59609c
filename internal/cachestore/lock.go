package cachestore

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"
)

const lockRetryDelay = 100 * time.Millisecond

// ErrLocked is returned when another process holds the cache lock and the
// context ended before it was released.
var ErrLocked = errors.New("cache is locked by another gapscan process")

// AcquireLock takes an exclusive advisory lock beside the cache file at path,
// waiting until ctx ends. The returned func releases it.
func AcquireLock(ctx context.Context, path string) (func() error, error) {
	lockPath := path + ".lock"
	if err := os.MkdirAll(filepath.Dir(lockPath), 0o755); err != nil {
		return nil, fmt.Errorf("create lock directory: %w", err)
	}

	lock := flock.New(lockPath)
	ok, err := lock.TryLockContext(ctx, lockRetryDelay)
	if err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("%w: %s", ErrLocked, lockPath)
		}
		return nil, fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrLocked, lockPath)
	}
	return lock.Unlock, nil
}

// Package lockfile serializes writer processes on one database.
// SQLite's own busy handling copes with transient contention; the
// lockfile keeps two long-running pipeline invocations (say, a watch
// loop and a manual ingest) from interleaving loads at all.
package lockfile

import (
	"context"
	"errors"
	"time"

	"github.com/gofrs/flock"
)

// ErrLockBusy is returned when the lock is held by another process and
// the wait timed out.
var ErrLockBusy = errors.New("database is locked by another process")

const retryInterval = 100 * time.Millisecond

// Lock is a held exclusive lock on a database's companion .lock file.
type Lock struct {
	fl *flock.Flock
}

// Acquire takes the exclusive lock for dbPath, polling until timeout.
// A zero timeout tries exactly once.
func Acquire(ctx context.Context, dbPath string, timeout time.Duration) (*Lock, error) {
	fl := flock.New(dbPath + ".lock")

	if timeout <= 0 {
		ok, err := fl.TryLock()
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, ErrLockBusy
		}
		return &Lock{fl: fl}, nil
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	ok, err := fl.TryLockContext(ctx, retryInterval)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, ErrLockBusy
		}
		return nil, err
	}
	if !ok {
		return nil, ErrLockBusy
	}
	return &Lock{fl: fl}, nil
}

// Release drops the lock. Safe to call on a nil Lock.
func (l *Lock) Release() error {
	if l == nil {
		return nil
	}
	return l.fl.Unlock()
}

// Path returns the lockfile's path.
func (l *Lock) Path() string {
	return l.fl.Path()
}

package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/AltimetrikAI/propelus-ai-sub001/internal/storage"
)

// Verify txStorage implements storage.Tx at compile time.
var _ storage.Tx = (*txStorage)(nil)

// txStorage implements the storage.Tx interface. It wraps a dedicated
// database connection with an active transaction; temp tables created
// through it are scoped to that connection.
type txStorage struct {
	conn   *sql.Conn
	parent *Store
}

// RunInTransaction executes fn within a database transaction on a
// dedicated connection.
//
// BEGIN IMMEDIATE acquires the write lock up front so concurrent
// invocations serialize at transaction start instead of deadlocking at
// first write. SQLITE_BUSY on begin is retried with exponential backoff.
//
// On error or panic the transaction is rolled back and the temp staging
// tables (if any) are dropped with the connection's return to the pool.
func (s *Store) RunInTransaction(ctx context.Context, fn func(tx storage.Tx) error) error {
	conn, err := s.db.Conn(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer func() { _ = conn.Close() }()

	if err := beginImmediate(ctx, conn); err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}

	committed := false
	defer func() {
		if !committed {
			// Background context so rollback completes even when ctx is done.
			_, _ = conn.ExecContext(context.Background(), "ROLLBACK")
		}
	}()

	tx := &txStorage{conn: conn, parent: s}
	if err := fn(tx); err != nil {
		return err // rollback in defer
	}

	if _, err := conn.ExecContext(ctx, "COMMIT"); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	committed = true
	return nil
}

// beginImmediate starts an IMMEDIATE transaction, retrying SQLITE_BUSY
// with exponential backoff up to roughly the busy timeout.
func beginImmediate(ctx context.Context, conn *sql.Conn) error {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 10 * time.Millisecond
	bo.MaxInterval = 250 * time.Millisecond
	bo.MaxElapsedTime = 5 * time.Second

	return backoff.Retry(func() error {
		_, err := conn.ExecContext(ctx, "BEGIN IMMEDIATE")
		if err == nil {
			return nil
		}
		if isBusy(err) {
			return err // retryable
		}
		return backoff.Permanent(err)
	}, backoff.WithContext(bo, ctx))
}

func isBusy(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") || strings.Contains(msg, "database is locked")
}

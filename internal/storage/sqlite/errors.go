package sqlite

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/AltimetrikAI/propelus-ai-sub001/internal/storage"
)

// wrapDBError wraps a database error with operation context, converting
// sql.ErrNoRows to storage.ErrNotFound for consistent handling.
func wrapDBError(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%s: %w", op, storage.ErrNotFound)
	}
	return fmt.Errorf("%s: %w", op, err)
}

// invariantErr reports a structural invariant violation; it always
// aborts the enclosing transaction.
func invariantErr(format string, args ...any) error {
	return fmt.Errorf("%w: %s", storage.ErrInvariant, fmt.Sprintf(format, args...))
}

package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

// ensureDictEntry implements the append-only dictionary upsert shared by
// node types and attribute types: insert with on-conflict do-nothing on
// lower(name), then select on conflict. Existing rows are never updated,
// so the first-seen casing wins.
func ensureDictEntry(ctx context.Context, q dbtx, table, name string, loadID int64) (int64, error) {
	var id int64
	err := q.QueryRowContext(ctx, `
		INSERT INTO `+table+` (name, load_id, created_at) VALUES (?, ?, ?)
		ON CONFLICT(name_lower) DO NOTHING
		RETURNING id`,
		name, loadID, time.Now().UTC()).Scan(&id)
	if err == nil {
		return id, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return 0, wrapDBError("insert "+table, err)
	}

	// Conflict path: another row (possibly different casing) owns the key.
	err = q.QueryRowContext(ctx, `SELECT id FROM `+table+` WHERE name_lower = lower(?)`, name).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, invariantErr("%s entry %q missing on both insert and select", table, name)
	}
	if err != nil {
		return 0, wrapDBError("select "+table, err)
	}
	return id, nil
}

// EnsureNodeType returns the id for a node-type name, appending it to
// the dictionary on first sight.
func (t *txStorage) EnsureNodeType(ctx context.Context, name string, loadID int64) (int64, error) {
	return ensureDictEntry(ctx, t.conn, "node_types", name, loadID)
}

// EnsureAttributeType returns the id for an attribute-type name,
// appending it to the dictionary on first sight.
func (t *txStorage) EnsureAttributeType(ctx context.Context, name string, loadID int64) (int64, error) {
	return ensureDictEntry(ctx, t.conn, "attribute_types", name, loadID)
}

// GetNodeTypeID resolves an existing node-type name without inserting.
func (t *txStorage) GetNodeTypeID(ctx context.Context, name string) (int64, error) {
	var id int64
	err := t.conn.QueryRowContext(ctx, `SELECT id FROM node_types WHERE name_lower = lower(?)`, name).Scan(&id)
	if err != nil {
		return 0, wrapDBError("get node type", err)
	}
	return id, nil
}

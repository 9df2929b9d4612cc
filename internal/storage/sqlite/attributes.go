package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/AltimetrikAI/propelus-ai-sub001/internal/types"
)

// UpsertNodeAttribute inserts or refreshes a (node, attribute type,
// lower(value)) fact.
//
// Load-type semantics mirror UpsertNode: new loads are insert-only with
// conflicts ignored; updated loads reactivate the fact and bump its
// lineage on conflict.
func (t *txStorage) UpsertNodeAttribute(ctx context.Context, attr *types.NodeAttribute, mode types.LoadType) (int64, error) {
	now := time.Now().UTC()
	var (
		id  int64
		err error
	)
	if mode == types.LoadUpdated {
		err = t.conn.QueryRowContext(ctx, `
			INSERT INTO node_attributes (node_id, attribute_type_id, value, status, load_id, row_id, created_at, updated_at)
			VALUES (?, ?, ?, 'active', ?, ?, ?, ?)
			ON CONFLICT(node_id, attribute_type_id, value_lower) DO UPDATE SET
				status = 'active',
				load_id = excluded.load_id,
				row_id = excluded.row_id,
				updated_at = excluded.updated_at
			RETURNING id`,
			attr.NodeID, attr.TypeID, attr.Value, attr.LoadID, attr.RowID, now, now).Scan(&id)
		if err != nil {
			return 0, wrapDBError("upsert node attribute", err)
		}
	} else {
		err = t.conn.QueryRowContext(ctx, `
			INSERT INTO node_attributes (node_id, attribute_type_id, value, status, load_id, row_id, created_at, updated_at)
			VALUES (?, ?, ?, 'active', ?, ?, ?, ?)
			ON CONFLICT(node_id, attribute_type_id, value_lower) DO NOTHING
			RETURNING id`,
			attr.NodeID, attr.TypeID, attr.Value, attr.LoadID, attr.RowID, now, now).Scan(&id)
		if errors.Is(err, sql.ErrNoRows) {
			err = t.conn.QueryRowContext(ctx, `
				SELECT id FROM node_attributes
				WHERE node_id = ? AND attribute_type_id = ? AND value_lower = lower(?)`,
				attr.NodeID, attr.TypeID, attr.Value).Scan(&id)
		}
		if err != nil {
			return 0, wrapDBError("upsert node attribute", err)
		}
	}
	attr.ID = id
	return id, nil
}

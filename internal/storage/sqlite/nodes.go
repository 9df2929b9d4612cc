package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/AltimetrikAI/propelus-ai-sub001/internal/types"
)

// UpsertNode inserts or refreshes a node by its natural key
// (taxonomy, node type, customer, parent, lower(value)).
//
// Load-type semantics:
//   - new: insert, conflict ignored, existing id re-selected; the
//     first-seen row (and casing) wins.
//   - updated: conflict refreshes parent, profession, level, lineage and
//     reactivates the node.
//
// Returns the node's id in both modes.
func (t *txStorage) UpsertNode(ctx context.Context, node *types.Node, mode types.LoadType) (int64, error) {
	now := time.Now().UTC()
	var (
		id  int64
		err error
	)
	if mode == types.LoadUpdated {
		err = t.conn.QueryRowContext(ctx, `
			INSERT INTO nodes (node_type_id, taxonomy_id, customer_id, parent_id, value,
			                   profession, level, status, load_id, row_id, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, 'active', ?, ?, ?, ?)
			ON CONFLICT(taxonomy_id, node_type_id, customer_id, parent_key, value_lower) DO UPDATE SET
				parent_id = excluded.parent_id,
				profession = excluded.profession,
				level = excluded.level,
				status = 'active',
				load_id = excluded.load_id,
				row_id = excluded.row_id,
				updated_at = excluded.updated_at
			RETURNING id`,
			node.TypeID, node.TaxonomyID, node.CustomerID, node.ParentID, node.Value,
			node.Profession, node.Level, node.LoadID, node.RowID, now, now).Scan(&id)
		if err != nil {
			return 0, wrapDBError("upsert node", err)
		}
	} else {
		err = t.conn.QueryRowContext(ctx, `
			INSERT INTO nodes (node_type_id, taxonomy_id, customer_id, parent_id, value,
			                   profession, level, status, load_id, row_id, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, 'active', ?, ?, ?, ?)
			ON CONFLICT(taxonomy_id, node_type_id, customer_id, parent_key, value_lower) DO NOTHING
			RETURNING id`,
			node.TypeID, node.TaxonomyID, node.CustomerID, node.ParentID, node.Value,
			node.Profession, node.Level, node.LoadID, node.RowID, now, now).Scan(&id)
		if errors.Is(err, sql.ErrNoRows) {
			// Conflict: re-select the existing row, null-safe on parent.
			err = t.conn.QueryRowContext(ctx, `
				SELECT id FROM nodes
				WHERE taxonomy_id = ? AND node_type_id = ? AND customer_id = ?
				  AND parent_key = ifnull(?, -1) AND value_lower = lower(?)`,
				node.TaxonomyID, node.TypeID, node.CustomerID, node.ParentID, node.Value).Scan(&id)
			if errors.Is(err, sql.ErrNoRows) {
				return 0, invariantErr("node %q missing on both insert and select", node.Value)
			}
		}
		if err != nil {
			return 0, wrapDBError("upsert node", err)
		}
	}

	// The level invariant makes cycles impossible; refuse self-parenting
	// anyway in case an update folds a node onto its own key.
	if node.ParentID != nil && *node.ParentID == id {
		return 0, invariantErr("node %d would become its own parent", id)
	}
	node.ID = id
	return id, nil
}

// FindActivePlaceholder returns the active N/A placeholder at the given
// (taxonomy, level, parent), if one exists. Placeholders are deduplicated
// on exactly this key.
func (t *txStorage) FindActivePlaceholder(ctx context.Context, key types.TaxonomyKey, level int, parentID *int64) (int64, error) {
	var id int64
	err := t.conn.QueryRowContext(ctx, `
		SELECT id FROM nodes
		WHERE taxonomy_id = ? AND customer_id = ? AND node_type_id = ?
		  AND level = ? AND parent_key = ifnull(?, -1) AND status = 'active'
		LIMIT 1`,
		key.TaxonomyID, key.CustomerID, types.NAPlaceholderTypeID, level, parentID).Scan(&id)
	if err != nil {
		return 0, wrapDBError("find placeholder", err)
	}
	return id, nil
}

const nodeColumns = `id, node_type_id, taxonomy_id, customer_id, parent_id, value, profession, level, status, load_id, row_id`

func scanNode(sc scanner) (*types.Node, error) {
	n := &types.Node{}
	var parent, rowID sql.NullInt64
	err := sc.Scan(&n.ID, &n.TypeID, &n.TaxonomyID, &n.CustomerID, &parent,
		&n.Value, &n.Profession, &n.Level, &n.Status, &n.LoadID, &rowID)
	if err != nil {
		return nil, wrapDBError("scan node", err)
	}
	if parent.Valid {
		p := parent.Int64
		n.ParentID = &p
	}
	if rowID.Valid {
		n.RowID = rowID.Int64
	}
	return n, nil
}

func collectNodes(rows *sql.Rows) ([]*types.Node, error) {
	defer rows.Close()
	var out []*types.Node
	for rows.Next() {
		n, err := scanNode(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, wrapDBError("collect nodes", rows.Err())
}

// GetNode returns a node by id.
func (s *Store) GetNode(ctx context.Context, id int64) (*types.Node, error) {
	return scanNode(s.db.QueryRowContext(ctx, `
		SELECT `+nodeColumns+` FROM nodes WHERE id = ?`, id))
}

// ListActiveNodes returns every active node of a taxonomy, shallowest
// first. The vocabulary extractor consumes this.
func (s *Store) ListActiveNodes(ctx context.Context, key types.TaxonomyKey) ([]*types.Node, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+nodeColumns+` FROM nodes
		WHERE taxonomy_id = ? AND customer_id = ? AND status = 'active'
		ORDER BY level, id`,
		key.TaxonomyID, key.CustomerID)
	if err != nil {
		return nil, wrapDBError("list active nodes", err)
	}
	return collectNodes(rows)
}

// FindActiveNodeByValue resolves an active node by case-insensitive
// value within a taxonomy. Used by the translation query.
func (s *Store) FindActiveNodeByValue(ctx context.Context, key types.TaxonomyKey, value string) (*types.Node, error) {
	return scanNode(s.db.QueryRowContext(ctx, `
		SELECT `+nodeColumns+` FROM nodes
		WHERE taxonomy_id = ? AND customer_id = ? AND status = 'active'
		  AND value_lower = lower(?)
		ORDER BY id LIMIT 1`,
		key.TaxonomyID, key.CustomerID, value))
}

// ListActiveChildrenOfMaster returns the active nodes of a customer
// taxonomy whose active mapping targets the given Master node.
func (s *Store) ListActiveChildrenOfMaster(ctx context.Context, key types.TaxonomyKey, masterNodeID int64) ([]*types.Node, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+nodeColumnsPrefixed("n")+` FROM nodes n
		JOIN mappings m ON m.child_node_id = n.id AND m.status = 'active'
		WHERE n.taxonomy_id = ? AND n.customer_id = ? AND n.status = 'active'
		  AND m.master_node_id = ?
		ORDER BY n.id`,
		key.TaxonomyID, key.CustomerID, masterNodeID)
	if err != nil {
		return nil, wrapDBError("list mapped children", err)
	}
	return collectNodes(rows)
}

// ListActiveNodesAtLevel returns the active nodes of a taxonomy at one
// level, optionally restricted to a caller-supplied id set (scope
// limiting for customer update loads).
func (t *txStorage) ListActiveNodesAtLevel(ctx context.Context, key types.TaxonomyKey, level int, ids []int64) ([]*types.Node, error) {
	query := `SELECT ` + nodeColumns + ` FROM nodes
		WHERE taxonomy_id = ? AND customer_id = ? AND level = ? AND status = 'active'`
	args := []any{key.TaxonomyID, key.CustomerID, level}
	if len(ids) > 0 {
		query += ` AND id IN (` + placeholders(len(ids)) + `)`
		for _, id := range ids {
			args = append(args, id)
		}
	}
	query += ` ORDER BY id`
	rows, err := t.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, wrapDBError("list nodes at level", err)
	}
	return collectNodes(rows)
}

func nodeColumnsPrefixed(alias string) string {
	return alias + `.id, ` + alias + `.node_type_id, ` + alias + `.taxonomy_id, ` +
		alias + `.customer_id, ` + alias + `.parent_id, ` + alias + `.value, ` +
		alias + `.profession, ` + alias + `.level, ` + alias + `.status, ` +
		alias + `.load_id, ` + alias + `.row_id`
}

func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	b := make([]byte, 0, n*2-1)
	for i := 0; i < n; i++ {
		if i > 0 {
			b = append(b, ',')
		}
		b = append(b, '?')
	}
	return string(b)
}

package sqlite

import (
	"context"
	"time"

	"github.com/AltimetrikAI/propelus-ai-sub001/internal/types"
)

// Reconciliation staging. The row transformer records every node and
// attribute it touches into session-scoped temp tables; after all rows,
// active rows absent from the staging set are soft-deleted. Runs only
// for Master updated loads — customer update files may be partial
// subsets, so absence there means nothing.

// CreateStaging creates the per-transaction staging tables. They live on
// the transaction's dedicated connection and vanish with it.
func (t *txStorage) CreateStaging(ctx context.Context) error {
	_, err := t.conn.ExecContext(ctx, `
		CREATE TEMP TABLE IF NOT EXISTS loaded_nodes (
			taxonomy_id TEXT NOT NULL,
			customer_id TEXT NOT NULL,
			node_type_id INTEGER NOT NULL,
			value_lower TEXT NOT NULL
		);
		CREATE TEMP TABLE IF NOT EXISTS loaded_attrs (
			node_id INTEGER NOT NULL,
			attribute_type_id INTEGER NOT NULL,
			value_lower TEXT NOT NULL
		);
		DELETE FROM temp.loaded_nodes;
		DELETE FROM temp.loaded_attrs;`)
	return wrapDBError("create staging tables", err)
}

// StageNode records one upserted node in the staging set.
func (t *txStorage) StageNode(ctx context.Context, key types.TaxonomyKey, nodeTypeID int64, value string) error {
	_, err := t.conn.ExecContext(ctx, `
		INSERT INTO temp.loaded_nodes (taxonomy_id, customer_id, node_type_id, value_lower)
		VALUES (?, ?, ?, lower(?))`,
		key.TaxonomyID, key.CustomerID, nodeTypeID, value)
	return wrapDBError("stage node", err)
}

// StageAttribute records one upserted attribute in the staging set.
func (t *txStorage) StageAttribute(ctx context.Context, nodeID, attrTypeID int64, value string) error {
	_, err := t.conn.ExecContext(ctx, `
		INSERT INTO temp.loaded_attrs (node_id, attribute_type_id, value_lower)
		VALUES (?, ?, lower(?))`,
		nodeID, attrTypeID, value)
	return wrapDBError("stage attribute", err)
}

// ReconcileNodes soft-deletes every active node of the taxonomy that the
// staging set does not contain by natural key, refreshing lineage to the
// reconciling load. Returns the number of nodes deactivated.
func (t *txStorage) ReconcileNodes(ctx context.Context, key types.TaxonomyKey, loadID int64) (int64, error) {
	res, err := t.conn.ExecContext(ctx, `
		UPDATE nodes SET status = 'inactive', load_id = ?, updated_at = ?
		WHERE taxonomy_id = ? AND customer_id = ? AND status = 'active'
		  AND NOT EXISTS (
			SELECT 1 FROM temp.loaded_nodes ln
			WHERE ln.taxonomy_id = nodes.taxonomy_id
			  AND ln.customer_id = nodes.customer_id
			  AND ln.node_type_id = nodes.node_type_id
			  AND ln.value_lower = nodes.value_lower)`,
		loadID, time.Now().UTC(), key.TaxonomyID, key.CustomerID)
	if err != nil {
		return 0, wrapDBError("reconcile nodes", err)
	}
	n, err := res.RowsAffected()
	return n, wrapDBError("reconcile nodes", err)
}

// ReconcileAttributes soft-deletes active attributes of the taxonomy's
// nodes that the staging set does not contain. Attributes of nodes the
// node pass just deactivated are swept here too.
func (t *txStorage) ReconcileAttributes(ctx context.Context, key types.TaxonomyKey, loadID int64) (int64, error) {
	res, err := t.conn.ExecContext(ctx, `
		UPDATE node_attributes SET status = 'inactive', load_id = ?, updated_at = ?
		WHERE status = 'active'
		  AND node_id IN (SELECT id FROM nodes WHERE taxonomy_id = ? AND customer_id = ?)
		  AND NOT EXISTS (
			SELECT 1 FROM temp.loaded_attrs la
			WHERE la.node_id = node_attributes.node_id
			  AND la.attribute_type_id = node_attributes.attribute_type_id
			  AND la.value_lower = node_attributes.value_lower)`,
		loadID, time.Now().UTC(), key.TaxonomyID, key.CustomerID)
	if err != nil {
		return 0, wrapDBError("reconcile attributes", err)
	}
	n, err := res.RowsAffected()
	return n, wrapDBError("reconcile attributes", err)
}

// ListDeactivatedNodes returns the nodes this load marked inactive, for
// the version's change manifest.
func (t *txStorage) ListDeactivatedNodes(ctx context.Context, key types.TaxonomyKey, loadID int64) ([]types.AffectedNode, error) {
	rows, err := t.conn.QueryContext(ctx, `
		SELECT n.id, n.value, nt.name FROM nodes n
		JOIN node_types nt ON nt.id = n.node_type_id
		WHERE n.taxonomy_id = ? AND n.customer_id = ? AND n.load_id = ? AND n.status = 'inactive'
		ORDER BY n.id`,
		key.TaxonomyID, key.CustomerID, loadID)
	if err != nil {
		return nil, wrapDBError("list deactivated nodes", err)
	}
	defer rows.Close()

	var out []types.AffectedNode
	for rows.Next() {
		a := types.AffectedNode{NewStatus: types.StatusInactive}
		if err := rows.Scan(&a.ID, &a.Value, &a.Type); err != nil {
			return nil, wrapDBError("scan affected node", err)
		}
		out = append(out, a)
	}
	return out, wrapDBError("list deactivated nodes", rows.Err())
}

// ListDeactivatedAttributes is the attribute analog of
// ListDeactivatedNodes.
func (t *txStorage) ListDeactivatedAttributes(ctx context.Context, key types.TaxonomyKey, loadID int64) ([]types.AffectedAttribute, error) {
	rows, err := t.conn.QueryContext(ctx, `
		SELECT a.id, a.node_id, a.value, at.name FROM node_attributes a
		JOIN attribute_types at ON at.id = a.attribute_type_id
		JOIN nodes n ON n.id = a.node_id
		WHERE n.taxonomy_id = ? AND n.customer_id = ? AND a.load_id = ? AND a.status = 'inactive'
		ORDER BY a.id`,
		key.TaxonomyID, key.CustomerID, loadID)
	if err != nil {
		return nil, wrapDBError("list deactivated attributes", err)
	}
	defer rows.Close()

	var out []types.AffectedAttribute
	for rows.Next() {
		a := types.AffectedAttribute{NewStatus: types.StatusInactive}
		if err := rows.Scan(&a.ID, &a.NodeID, &a.Value, &a.Type); err != nil {
			return nil, wrapDBError("scan affected attribute", err)
		}
		out = append(out, a)
	}
	return out, wrapDBError("list deactivated attributes", rows.Err())
}

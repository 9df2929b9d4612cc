package sqlite

import (
	"context"
	"time"

	"github.com/AltimetrikAI/propelus-ai-sub001/internal/types"
)

// SyncGold refreshes the Gold projection as a set difference against
// the active, non-AI subset of Silver mappings:
//
//	Gold = { (mapping, master, child) | status = active ∧ rule.ai = false }
//
// Rows missing from Gold are inserted; rows whose mapping left the
// subset are deleted. Idempotent: a second sync with no Silver change
// is a no-op.
func (t *txStorage) SyncGold(ctx context.Context) (inserted, deleted int64, err error) {
	res, err := t.conn.ExecContext(ctx, `
		DELETE FROM gold_mappings
		WHERE mapping_id NOT IN (
			SELECT m.id FROM mappings m
			JOIN mapping_rules r ON r.id = m.rule_id
			WHERE m.status = 'active' AND r.ai_flag = 0)`)
	if err != nil {
		return 0, 0, wrapDBError("gold delete pass", err)
	}
	deleted, _ = res.RowsAffected()

	res, err = t.conn.ExecContext(ctx, `
		INSERT INTO gold_mappings (mapping_id, master_node_id, child_node_id, synced_at)
		SELECT m.id, m.master_node_id, m.child_node_id, ?
		FROM mappings m
		JOIN mapping_rules r ON r.id = m.rule_id
		WHERE m.status = 'active' AND r.ai_flag = 0
		  AND m.id NOT IN (SELECT mapping_id FROM gold_mappings)`,
		time.Now().UTC())
	if err != nil {
		return 0, deleted, wrapDBError("gold insert pass", err)
	}
	inserted, _ = res.RowsAffected()
	return inserted, deleted, nil
}

// ListGoldMappings returns the Gold projection.
func (s *Store) ListGoldMappings(ctx context.Context) ([]types.GoldMapping, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT mapping_id, master_node_id, child_node_id
		FROM gold_mappings ORDER BY mapping_id`)
	if err != nil {
		return nil, wrapDBError("list gold mappings", err)
	}
	defer rows.Close()

	var out []types.GoldMapping
	for rows.Next() {
		var g types.GoldMapping
		if err := rows.Scan(&g.MappingID, &g.MasterNodeID, &g.ChildNodeID); err != nil {
			return nil, wrapDBError("scan gold mapping", err)
		}
		out = append(out, g)
	}
	return out, wrapDBError("list gold mappings", rows.Err())
}

package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/AltimetrikAI/propelus-ai-sub001/internal/types"
)

// Rule and assignment administration. These run outside pipeline
// transactions; rule provenance is an operator concern.

// CreateRule stores a mapping rule.
func (s *Store) CreateRule(ctx context.Context, rule *types.MappingRule) (int64, error) {
	if !rule.Command.Valid() {
		return 0, fmt.Errorf("invalid rule command %q", rule.Command)
	}
	var id int64
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO mapping_rules (name, enabled, command, pattern, ai_flag, human_flag, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		RETURNING id`,
		rule.Name, boolToInt(rule.Enabled), string(rule.Command), rule.Pattern,
		boolToInt(rule.AIFlag), boolToInt(rule.Human), time.Now().UTC()).Scan(&id)
	if err != nil {
		return 0, wrapDBError("create rule", err)
	}
	rule.ID = id
	return id, nil
}

// ListRules returns all mapping rules.
func (s *Store) ListRules(ctx context.Context) ([]*types.MappingRule, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, enabled, command, pattern, ai_flag, human_flag
		FROM mapping_rules ORDER BY id`)
	if err != nil {
		return nil, wrapDBError("list rules", err)
	}
	defer rows.Close()

	var out []*types.MappingRule
	for rows.Next() {
		r := &types.MappingRule{}
		var enabled, ai, human int
		if err := rows.Scan(&r.ID, &r.Name, &enabled, &r.Command, &r.Pattern, &ai, &human); err != nil {
			return nil, wrapDBError("scan rule", err)
		}
		r.Enabled = enabled != 0
		r.AIFlag = ai != 0
		r.Human = human != 0
		out = append(out, r)
	}
	return out, wrapDBError("list rules", rows.Err())
}

// SetRuleEnabled toggles a rule.
func (s *Store) SetRuleEnabled(ctx context.Context, id int64, enabled bool) error {
	res, err := s.db.ExecContext(ctx, `UPDATE mapping_rules SET enabled = ? WHERE id = ?`,
		boolToInt(enabled), id)
	if err != nil {
		return wrapDBError("set rule enabled", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return wrapDBError("set rule enabled", sql.ErrNoRows)
	}
	return nil
}

// AssignRule binds a rule to a (master type, child type) pair with a
// priority; re-assigning the same triple updates priority and enabled.
func (s *Store) AssignRule(ctx context.Context, a *types.RuleAssignment) (int64, error) {
	var id int64
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO rule_assignments (rule_id, master_node_type_id, child_node_type_id, priority, enabled)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(rule_id, master_node_type_id, child_node_type_id) DO UPDATE SET
			priority = excluded.priority,
			enabled = excluded.enabled
		RETURNING id`,
		a.RuleID, a.MasterTypeID, a.ChildTypeID, a.Priority, boolToInt(a.Enabled)).Scan(&id)
	if err != nil {
		return 0, wrapDBError("assign rule", err)
	}
	a.ID = id
	return id, nil
}

// ListAllAssignments returns every rule assignment.
func (s *Store) ListAllAssignments(ctx context.Context) ([]*types.RuleAssignment, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, rule_id, master_node_type_id, child_node_type_id, priority, enabled
		FROM rule_assignments ORDER BY child_node_type_id, priority, id`)
	if err != nil {
		return nil, wrapDBError("list assignments", err)
	}
	defer rows.Close()

	var out []*types.RuleAssignment
	for rows.Next() {
		a := &types.RuleAssignment{}
		var enabled int
		if err := rows.Scan(&a.ID, &a.RuleID, &a.MasterTypeID, &a.ChildTypeID, &a.Priority, &enabled); err != nil {
			return nil, wrapDBError("scan assignment", err)
		}
		a.Enabled = enabled != 0
		out = append(out, a)
	}
	return out, wrapDBError("list assignments", rows.Err())
}

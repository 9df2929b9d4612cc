package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"
	"time"

	"github.com/AltimetrikAI/propelus-ai-sub001/internal/storage"
	"github.com/AltimetrikAI/propelus-ai-sub001/internal/types"
)

// ListAssignedRules returns the enabled, non-AI rule assignments for a
// child node type joined with their rules, priority ascending. The
// mapping engine caches the result per invocation.
func (t *txStorage) ListAssignedRules(ctx context.Context, childTypeID int64) ([]storage.AssignedRule, error) {
	rows, err := t.conn.QueryContext(ctx, `
		SELECT a.id, a.rule_id, a.master_node_type_id, a.child_node_type_id, a.priority, a.enabled,
		       r.id, r.name, r.enabled, r.command, r.pattern, r.ai_flag, r.human_flag
		FROM rule_assignments a
		JOIN mapping_rules r ON r.id = a.rule_id
		WHERE a.child_node_type_id = ? AND a.enabled = 1 AND r.enabled = 1 AND r.ai_flag = 0
		ORDER BY a.priority, a.id`, childTypeID)
	if err != nil {
		return nil, wrapDBError("list assigned rules", err)
	}
	defer rows.Close()

	var out []storage.AssignedRule
	for rows.Next() {
		var ar storage.AssignedRule
		var aEnabled, rEnabled, ai, human int
		err := rows.Scan(&ar.Assignment.ID, &ar.Assignment.RuleID, &ar.Assignment.MasterTypeID,
			&ar.Assignment.ChildTypeID, &ar.Assignment.Priority, &aEnabled,
			&ar.Rule.ID, &ar.Rule.Name, &rEnabled, &ar.Rule.Command, &ar.Rule.Pattern, &ai, &human)
		if err != nil {
			return nil, wrapDBError("scan assigned rule", err)
		}
		ar.Assignment.Enabled = aEnabled != 0
		ar.Rule.Enabled = rEnabled != 0
		ar.Rule.AIFlag = ai != 0
		ar.Rule.Human = human != 0
		out = append(out, ar)
	}
	return out, wrapDBError("list assigned rules", rows.Err())
}

// FindMasterMatch executes one rule command against the active Master
// nodes of the given type, returning at most one node (lowest id wins
// for determinism). An empty pattern falls back to the child's value.
// Returns storage.ErrNotFound on no match.
func (t *txStorage) FindMasterMatch(ctx context.Context, masterKey types.TaxonomyKey, masterTypeID int64, cmd types.RuleCommand, pattern, childValue string) (*types.Node, error) {
	needle := pattern
	if needle == "" {
		needle = childValue
	}

	base := `SELECT ` + nodeColumns + ` FROM nodes
		WHERE taxonomy_id = ? AND customer_id = ? AND node_type_id = ? AND status = 'active'`
	args := []any{masterKey.TaxonomyID, masterKey.CustomerID, masterTypeID}

	switch cmd {
	case types.CommandEquals:
		base += ` AND value_lower = lower(?)`
		args = append(args, needle)
	case types.CommandContains:
		base += ` AND value_lower LIKE '%' || lower(?) || '%'`
		args = append(args, trimWildcards(needle))
	case types.CommandStartsWith:
		base += ` AND value_lower LIKE lower(?) || '%'`
		args = append(args, trimWildcards(needle))
	case types.CommandEndsWith:
		base += ` AND value_lower LIKE '%' || lower(?)`
		args = append(args, trimWildcards(needle))
	case types.CommandRegex:
		// SQLite carries no regexp by default; scan candidates and match
		// case-insensitively in process. First match by id wins.
		re, err := regexp.Compile("(?i)" + needle)
		if err != nil {
			return nil, fmt.Errorf("compile rule pattern %q: %w", needle, err)
		}
		rows, err := t.conn.QueryContext(ctx, base+` ORDER BY id`, args...)
		if err != nil {
			return nil, wrapDBError("regex match", err)
		}
		candidates, err := collectNodes(rows)
		if err != nil {
			return nil, err
		}
		for _, n := range candidates {
			if re.MatchString(n.Value) {
				return n, nil
			}
		}
		return nil, storage.ErrNotFound
	default:
		return nil, fmt.Errorf("unknown rule command %q", cmd)
	}

	return scanNode(t.conn.QueryRowContext(ctx, base+` ORDER BY id LIMIT 1`, args...))
}

// trimWildcards strips leading/trailing SQL wildcards from stored
// patterns like "%nurse%"; the LIKE templates re-add their own.
func trimWildcards(s string) string {
	for len(s) > 0 && s[0] == '%' {
		s = s[1:]
	}
	for len(s) > 0 && s[len(s)-1] == '%' {
		s = s[:len(s)-1]
	}
	return s
}

const mappingColumns = `id, rule_id, master_node_id, child_node_id, confidence, status, created_by`

func scanMapping(sc scanner) (*types.Mapping, error) {
	m := &types.Mapping{}
	err := sc.Scan(&m.ID, &m.RuleID, &m.MasterNodeID, &m.ChildNodeID, &m.Confidence, &m.Status, &m.CreatedBy)
	if err != nil {
		return nil, wrapDBError("scan mapping", err)
	}
	return m, nil
}

func getActiveMapping(ctx context.Context, q dbtx, childNodeID int64) (*types.Mapping, error) {
	return scanMapping(q.QueryRowContext(ctx, `
		SELECT `+mappingColumns+` FROM mappings
		WHERE child_node_id = ? AND status = 'active'`, childNodeID))
}

// GetActiveMapping returns the at-most-one active mapping for a child
// node; storage.ErrNotFound when none.
func (s *Store) GetActiveMapping(ctx context.Context, childNodeID int64) (*types.Mapping, error) {
	return getActiveMapping(ctx, s.db, childNodeID)
}

func (t *txStorage) GetActiveMapping(ctx context.Context, childNodeID int64) (*types.Mapping, error) {
	return getActiveMapping(ctx, t.conn, childNodeID)
}

// InsertMapping creates a mapping row. The partial unique index rejects
// a second active mapping for the same child node.
func (t *txStorage) InsertMapping(ctx context.Context, m *types.Mapping) (int64, error) {
	now := time.Now().UTC()
	var id int64
	err := t.conn.QueryRowContext(ctx, `
		INSERT INTO mappings (rule_id, master_node_id, child_node_id, confidence, status, created_by, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		RETURNING id`,
		m.RuleID, m.MasterNodeID, m.ChildNodeID, m.Confidence, string(m.Status), m.CreatedBy, now, now).Scan(&id)
	if err != nil {
		return 0, wrapDBError("insert mapping", err)
	}
	m.ID = id
	return id, nil
}

// SetMappingStatus transitions a mapping between active and inactive.
func (t *txStorage) SetMappingStatus(ctx context.Context, id int64, status types.Status) error {
	_, err := t.conn.ExecContext(ctx, `
		UPDATE mappings SET status = ?, updated_at = ? WHERE id = ?`,
		string(status), time.Now().UTC(), id)
	return wrapDBError("set mapping status", err)
}

// MaxMappingVersion returns the highest version number in a mapping's
// chain, 0 when the chain is empty.
func (t *txStorage) MaxMappingVersion(ctx context.Context, mappingID int64) (int, error) {
	var max int
	err := t.conn.QueryRowContext(ctx, `
		SELECT ifnull(max(version_number), 0) FROM mapping_versions WHERE mapping_id = ?`,
		mappingID).Scan(&max)
	if err != nil {
		return 0, wrapDBError("max mapping version", err)
	}
	return max, nil
}

// CloseOpenMappingVersion sets to_ts (and, on supersession, the
// superseding mapping id) on the mapping's open version.
func (t *txStorage) CloseOpenMappingVersion(ctx context.Context, mappingID int64, at time.Time, supersededBy *int64) error {
	var err error
	if supersededBy != nil {
		_, err = t.conn.ExecContext(ctx, `
			UPDATE mapping_versions SET to_ts = ?, superseded_by = ?, superseded_at = ?
			WHERE mapping_id = ? AND to_ts IS NULL`,
			at.UTC(), *supersededBy, at.UTC(), mappingID)
	} else {
		_, err = t.conn.ExecContext(ctx, `
			UPDATE mapping_versions SET to_ts = ?
			WHERE mapping_id = ? AND to_ts IS NULL`,
			at.UTC(), mappingID)
	}
	return wrapDBError("close open mapping version", err)
}

// InsertMappingVersion appends a version record to a mapping's chain.
func (t *txStorage) InsertMappingVersion(ctx context.Context, v *types.MappingVersion) (int64, error) {
	var id int64
	err := t.conn.QueryRowContext(ctx, `
		INSERT INTO mapping_versions (mapping_id, version_number, from_ts, to_ts, superseded_by, superseded_at)
		VALUES (?, ?, ?, NULL, NULL, NULL)
		RETURNING id`,
		v.MappingID, v.VersionNumber, v.FromTS.UTC()).Scan(&id)
	if err != nil {
		return 0, wrapDBError("insert mapping version", err)
	}
	v.ID = id
	return id, nil
}

// MappingVersions returns a mapping's version chain in order. Used by
// tests and inspection, not by the pipelines.
func (s *Store) MappingVersions(ctx context.Context, mappingID int64) ([]*types.MappingVersion, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, mapping_id, version_number, from_ts, to_ts, superseded_by, superseded_at
		FROM mapping_versions WHERE mapping_id = ? ORDER BY version_number`, mappingID)
	if err != nil {
		return nil, wrapDBError("list mapping versions", err)
	}
	defer rows.Close()

	var out []*types.MappingVersion
	for rows.Next() {
		v := &types.MappingVersion{}
		var toTS, supAt sql.NullTime
		var supBy sql.NullInt64
		if err := rows.Scan(&v.ID, &v.MappingID, &v.VersionNumber, &v.FromTS, &toTS, &supBy, &supAt); err != nil {
			return nil, wrapDBError("scan mapping version", err)
		}
		if toTS.Valid {
			ts := toTS.Time
			v.ToTS = &ts
		}
		if supBy.Valid {
			id := supBy.Int64
			v.SupersededBy = &id
		}
		if supAt.Valid {
			ts := supAt.Time
			v.SupersededAt = &ts
		}
		out = append(out, v)
	}
	return out, wrapDBError("list mapping versions", rows.Err())
}

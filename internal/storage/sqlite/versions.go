package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/AltimetrikAI/propelus-ai-sub001/internal/types"
)

// NextVersionNumber returns max(version_number)+1 for the taxonomy's
// chain (1 when the chain is empty), keeping the chain dense.
func (t *txStorage) NextVersionNumber(ctx context.Context, key types.TaxonomyKey) (int, error) {
	var next int
	err := t.conn.QueryRowContext(ctx, `
		SELECT ifnull(max(version_number), 0) + 1 FROM taxonomy_versions
		WHERE customer_id = ? AND taxonomy_id = ?`,
		key.CustomerID, key.TaxonomyID).Scan(&next)
	if err != nil {
		return 0, wrapDBError("next version number", err)
	}
	return next, nil
}

// CloseOpenTaxonomyVersion sets to_ts on the taxonomy's currently open
// version. A no-op when no version is open yet (first load).
func (t *txStorage) CloseOpenTaxonomyVersion(ctx context.Context, key types.TaxonomyKey, at time.Time) error {
	_, err := t.conn.ExecContext(ctx, `
		UPDATE taxonomy_versions SET to_ts = ?
		WHERE customer_id = ? AND taxonomy_id = ? AND to_ts IS NULL`,
		at.UTC(), key.CustomerID, key.TaxonomyID)
	return wrapDBError("close open taxonomy version", err)
}

// InsertTaxonomyVersion appends a version record. The partial unique
// index over open versions rejects a second open version per taxonomy.
func (t *txStorage) InsertTaxonomyVersion(ctx context.Context, v *types.TaxonomyVersion) (int64, error) {
	nodes, err := json.Marshal(emptyIfNilNodes(v.AffectedNodes))
	if err != nil {
		return 0, wrapDBError("marshal affected nodes", err)
	}
	attrs, err := json.Marshal(emptyIfNilAttrs(v.AffectedAttributes))
	if err != nil {
		return 0, wrapDBError("marshal affected attributes", err)
	}
	var id int64
	err = t.conn.QueryRowContext(ctx, `
		INSERT INTO taxonomy_versions (customer_id, taxonomy_id, version_number, change_type,
			affected_nodes, affected_attributes, remapping,
			processed, new_count, changed, unchanged, failed,
			process_status, from_ts, to_ts, load_id)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, NULL, ?)
		RETURNING id`,
		v.CustomerID, v.TaxonomyID, v.VersionNumber, v.ChangeType,
		string(nodes), string(attrs), boolToInt(v.Remapping),
		v.Counters.Processed, v.Counters.New, v.Counters.Changed,
		v.Counters.Unchanged, v.Counters.Failed,
		v.ProcessStatus, v.FromTS.UTC(), v.LoadID).Scan(&id)
	if err != nil {
		return 0, wrapDBError("insert taxonomy version", err)
	}
	v.ID = id
	return id, nil
}

const versionColumns = `id, customer_id, taxonomy_id, version_number, change_type,
	affected_nodes, affected_attributes, remapping,
	processed, new_count, changed, unchanged, failed,
	process_status, from_ts, to_ts, load_id`

func scanVersion(sc scanner) (*types.TaxonomyVersion, error) {
	v := &types.TaxonomyVersion{}
	var nodes, attrs string
	var remapping int
	var toTS sql.NullTime
	err := sc.Scan(&v.ID, &v.CustomerID, &v.TaxonomyID, &v.VersionNumber, &v.ChangeType,
		&nodes, &attrs, &remapping,
		&v.Counters.Processed, &v.Counters.New, &v.Counters.Changed,
		&v.Counters.Unchanged, &v.Counters.Failed,
		&v.ProcessStatus, &v.FromTS, &toTS, &v.LoadID)
	if err != nil {
		return nil, wrapDBError("scan taxonomy version", err)
	}
	v.Remapping = remapping != 0
	if toTS.Valid {
		ts := toTS.Time
		v.ToTS = &ts
	}
	if err := json.Unmarshal([]byte(nodes), &v.AffectedNodes); err != nil {
		return nil, wrapDBError("decode affected nodes", err)
	}
	if err := json.Unmarshal([]byte(attrs), &v.AffectedAttributes); err != nil {
		return nil, wrapDBError("decode affected attributes", err)
	}
	return v, nil
}

// GetVersionByLoad returns the version record this load produced, if any.
func (t *txStorage) GetVersionByLoad(ctx context.Context, key types.TaxonomyKey, loadID int64) (*types.TaxonomyVersion, error) {
	return scanVersion(t.conn.QueryRowContext(ctx, `
		SELECT `+versionColumns+` FROM taxonomy_versions
		WHERE customer_id = ? AND taxonomy_id = ? AND load_id = ?
		ORDER BY id DESC LIMIT 1`,
		key.CustomerID, key.TaxonomyID, loadID))
}

// UpdateVersionCounters writes the mapping run's counters onto the
// version record.
func (t *txStorage) UpdateVersionCounters(ctx context.Context, versionID int64, c types.VersionCounters, processStatus string) error {
	_, err := t.conn.ExecContext(ctx, `
		UPDATE taxonomy_versions SET processed = ?, new_count = ?, changed = ?,
		       unchanged = ?, failed = ?, process_status = ?
		WHERE id = ?`,
		c.Processed, c.New, c.Changed, c.Unchanged, c.Failed, processStatus, versionID)
	return wrapDBError("update version counters", err)
}

// ListTaxonomyVersions returns a taxonomy's version chain in order.
func (s *Store) ListTaxonomyVersions(ctx context.Context, key types.TaxonomyKey) ([]*types.TaxonomyVersion, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+versionColumns+` FROM taxonomy_versions
		WHERE customer_id = ? AND taxonomy_id = ?
		ORDER BY version_number`,
		key.CustomerID, key.TaxonomyID)
	if err != nil {
		return nil, wrapDBError("list taxonomy versions", err)
	}
	defer rows.Close()

	var out []*types.TaxonomyVersion
	for rows.Next() {
		v, err := scanVersion(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, wrapDBError("list taxonomy versions", rows.Err())
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func emptyIfNilNodes(in []types.AffectedNode) []types.AffectedNode {
	if in == nil {
		return []types.AffectedNode{}
	}
	return in
}

func emptyIfNilAttrs(in []types.AffectedAttribute) []types.AffectedAttribute {
	if in == nil {
		return []types.AffectedAttribute{}
	}
	return in
}

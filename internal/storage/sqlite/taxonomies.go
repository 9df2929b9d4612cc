package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/AltimetrikAI/propelus-ai-sub001/internal/storage"
	"github.com/AltimetrikAI/propelus-ai-sub001/internal/types"
)

func getTaxonomy(ctx context.Context, q dbtx, key types.TaxonomyKey) (*types.Taxonomy, error) {
	t := &types.Taxonomy{}
	var lastLoad sql.NullInt64
	err := q.QueryRowContext(ctx, `
		SELECT customer_id, taxonomy_id, name, taxonomy_type, status, last_load_id
		FROM taxonomies WHERE customer_id = ? AND taxonomy_id = ?`,
		key.CustomerID, key.TaxonomyID).
		Scan(&t.CustomerID, &t.TaxonomyID, &t.Name, &t.Type, &t.Status, &lastLoad)
	if err != nil {
		return nil, wrapDBError("get taxonomy", err)
	}
	if lastLoad.Valid {
		t.LastLoadID = lastLoad.Int64
	}
	return t, nil
}

// GetTaxonomy returns the header for a (customer, taxonomy) pair.
func (s *Store) GetTaxonomy(ctx context.Context, key types.TaxonomyKey) (*types.Taxonomy, error) {
	return getTaxonomy(ctx, s.db, key)
}

func (t *txStorage) GetTaxonomy(ctx context.Context, key types.TaxonomyKey) (*types.Taxonomy, error) {
	return getTaxonomy(ctx, t.conn, key)
}

// ListTaxonomies returns all taxonomy headers.
func (s *Store) ListTaxonomies(ctx context.Context) ([]*types.Taxonomy, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT customer_id, taxonomy_id, name, taxonomy_type, status, last_load_id
		FROM taxonomies ORDER BY customer_id, taxonomy_id`)
	if err != nil {
		return nil, wrapDBError("list taxonomies", err)
	}
	defer rows.Close()

	var out []*types.Taxonomy
	for rows.Next() {
		t := &types.Taxonomy{}
		var lastLoad sql.NullInt64
		if err := rows.Scan(&t.CustomerID, &t.TaxonomyID, &t.Name, &t.Type, &t.Status, &lastLoad); err != nil {
			return nil, wrapDBError("scan taxonomy", err)
		}
		if lastLoad.Valid {
			t.LastLoadID = lastLoad.Int64
		}
		out = append(out, t)
	}
	return out, wrapDBError("list taxonomies", rows.Err())
}

func activeMasterTaxonomy(ctx context.Context, q dbtx) (*types.Taxonomy, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT customer_id, taxonomy_id, name, taxonomy_type, status, last_load_id
		FROM taxonomies WHERE taxonomy_type = 'master' AND status = 'active'`)
	if err != nil {
		return nil, wrapDBError("find master taxonomy", err)
	}
	defer rows.Close()

	var found *types.Taxonomy
	for rows.Next() {
		t := &types.Taxonomy{}
		var lastLoad sql.NullInt64
		if err := rows.Scan(&t.CustomerID, &t.TaxonomyID, &t.Name, &t.Type, &t.Status, &lastLoad); err != nil {
			return nil, wrapDBError("scan taxonomy", err)
		}
		if lastLoad.Valid {
			t.LastLoadID = lastLoad.Int64
		}
		if found != nil {
			return nil, invariantErr("multiple active master taxonomies: %s and %s", found.Key(), t.Key())
		}
		found = t
	}
	if err := rows.Err(); err != nil {
		return nil, wrapDBError("find master taxonomy", err)
	}
	if found == nil {
		return nil, storage.ErrNoMasterTaxonomy
	}
	return found, nil
}

// ActiveMasterTaxonomy resolves the single active Master taxonomy.
func (s *Store) ActiveMasterTaxonomy(ctx context.Context) (*types.Taxonomy, error) {
	return activeMasterTaxonomy(ctx, s.db)
}

func (t *txStorage) ActiveMasterTaxonomy(ctx context.Context) (*types.Taxonomy, error) {
	return activeMasterTaxonomy(ctx, t.conn)
}

// UpsertTaxonomy inserts or refreshes the taxonomy header for the pair.
func (t *txStorage) UpsertTaxonomy(ctx context.Context, tax *types.Taxonomy) error {
	now := time.Now().UTC()
	_, err := t.conn.ExecContext(ctx, `
		INSERT INTO taxonomies (customer_id, taxonomy_id, name, taxonomy_type, status, last_load_id, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(customer_id, taxonomy_id) DO UPDATE SET
			name = CASE WHEN excluded.name != '' THEN excluded.name ELSE taxonomies.name END,
			status = excluded.status,
			last_load_id = excluded.last_load_id,
			updated_at = excluded.updated_at`,
		tax.CustomerID, tax.TaxonomyID, tax.Name, string(tax.Type),
		string(tax.Status), tax.LastLoadID, now, now)
	return wrapDBError("upsert taxonomy", err)
}

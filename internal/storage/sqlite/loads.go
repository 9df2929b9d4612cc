package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/AltimetrikAI/propelus-ai-sub001/internal/types"
)

// CreateLoad opens a Bronze load header with status in_progress. It runs
// outside the pipeline transaction so the header survives a rollback and
// can be marked failed afterwards.
func (s *Store) CreateLoad(ctx context.Context, typ types.TaxonomyType, details *types.Doc) (int64, error) {
	doc, err := marshalDoc(details)
	if err != nil {
		return 0, wrapDBError("marshal load details", err)
	}
	var id int64
	err = s.db.QueryRowContext(ctx, `
		INSERT INTO loads (taxonomy_type, status, details, started_at)
		VALUES (?, ?, ?, ?)
		RETURNING id`,
		string(typ), string(types.LoadInProgress), doc, time.Now().UTC()).Scan(&id)
	if err != nil {
		return 0, wrapDBError("create load", err)
	}
	return id, nil
}

// GetLoad returns one load header.
func (s *Store) GetLoad(ctx context.Context, id int64) (*types.Load, error) {
	return scanLoad(s.db.QueryRowContext(ctx, `
		SELECT id, customer_id, taxonomy_id, taxonomy_type, load_type,
		       status, row_count, details, started_at, ended_at
		FROM loads WHERE id = ?`, id))
}

// ListLoads returns the most recent load headers, newest first.
func (s *Store) ListLoads(ctx context.Context, limit int) ([]*types.Load, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, customer_id, taxonomy_id, taxonomy_type, load_type,
		       status, row_count, details, started_at, ended_at
		FROM loads ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, wrapDBError("list loads", err)
	}
	defer rows.Close()

	var loads []*types.Load
	for rows.Next() {
		l, err := scanLoad(rows)
		if err != nil {
			return nil, err
		}
		loads = append(loads, l)
	}
	return loads, wrapDBError("list loads", rows.Err())
}

// ListRawRows returns the Bronze rows of one load in source order.
func (s *Store) ListRawRows(ctx context.Context, loadID int64) ([]*types.RawRow, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, load_id, customer_id, taxonomy_id, doc, status, active
		FROM raw_rows WHERE load_id = ? ORDER BY id`, loadID)
	if err != nil {
		return nil, wrapDBError("list raw rows", err)
	}
	defer rows.Close()

	var out []*types.RawRow
	for rows.Next() {
		r := &types.RawRow{}
		var doc string
		var active int
		if err := rows.Scan(&r.ID, &r.LoadID, &r.CustomerID, &r.TaxonomyID, &doc, &r.Status, &active); err != nil {
			return nil, wrapDBError("scan raw row", err)
		}
		r.Active = active != 0
		r.Doc = types.NewDoc()
		if err := json.Unmarshal([]byte(doc), r.Doc); err != nil {
			return nil, wrapDBError("decode raw row doc", err)
		}
		out = append(out, r)
	}
	return out, wrapDBError("list raw rows", rows.Err())
}

// MarkLoadFailed is the best-effort out-of-transaction failure path: it
// sets status=failed with an end timestamp and appends {"Error": msg}
// to the load's provenance. Errors here are swallowed so the original
// pipeline error always propagates to the caller.
func (s *Store) MarkLoadFailed(ctx context.Context, id int64, msg string) {
	var raw string
	details := types.NewDoc()
	if err := s.db.QueryRowContext(ctx, `SELECT details FROM loads WHERE id = ?`, id).Scan(&raw); err == nil {
		_ = json.Unmarshal([]byte(raw), details)
	}
	details.Set("Error", msg)
	doc, err := marshalDoc(details)
	if err != nil {
		doc = raw
	}
	_, _ = s.db.ExecContext(ctx, `
		UPDATE loads SET status = ?, ended_at = ?, details = ? WHERE id = ?`,
		string(types.LoadFailed), time.Now().UTC(), doc, id)
}

// UpdateLoadHeader fills in the header fields resolved during the
// pipeline transaction: identity, load type, row count and provenance.
func (t *txStorage) UpdateLoadHeader(ctx context.Context, load *types.Load) error {
	doc, err := marshalDoc(load.Details)
	if err != nil {
		return wrapDBError("marshal load details", err)
	}
	_, err = t.conn.ExecContext(ctx, `
		UPDATE loads SET customer_id = ?, taxonomy_id = ?, load_type = ?,
		       row_count = ?, details = ?
		WHERE id = ?`,
		load.CustomerID, load.TaxonomyID, string(load.LoadType),
		load.RowCount, doc, load.ID)
	return wrapDBError("update load header", err)
}

// FinalizeLoad records the load's terminal status and end timestamp.
func (t *txStorage) FinalizeLoad(ctx context.Context, id int64, status types.LoadStatus, endedAt time.Time) error {
	_, err := t.conn.ExecContext(ctx, `
		UPDATE loads SET status = ?, ended_at = ? WHERE id = ?`,
		string(status), endedAt.UTC(), id)
	return wrapDBError("finalize load", err)
}

// InsertRawRow stores one verbatim source record in Bronze.
func (t *txStorage) InsertRawRow(ctx context.Context, row *types.RawRow) (int64, error) {
	doc, err := marshalDoc(row.Doc)
	if err != nil {
		return 0, wrapDBError("marshal raw row", err)
	}
	var id int64
	err = t.conn.QueryRowContext(ctx, `
		INSERT INTO raw_rows (load_id, customer_id, taxonomy_id, doc, status, active)
		VALUES (?, ?, ?, ?, ?, 1)
		RETURNING id`,
		row.LoadID, row.CustomerID, row.TaxonomyID, doc, string(row.Status)).Scan(&id)
	if err != nil {
		return 0, wrapDBError("insert raw row", err)
	}
	return id, nil
}

// SetRawRowStatus updates a Bronze row's per-row status.
func (t *txStorage) SetRawRowStatus(ctx context.Context, id int64, status types.RowStatus) error {
	_, err := t.conn.ExecContext(ctx, `UPDATE raw_rows SET status = ? WHERE id = ?`,
		string(status), id)
	return wrapDBError("set raw row status", err)
}

// scanner covers *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanLoad(sc scanner) (*types.Load, error) {
	l := &types.Load{}
	var details string
	var endedAt sql.NullTime
	err := sc.Scan(&l.ID, &l.CustomerID, &l.TaxonomyID, &l.Type, &l.LoadType,
		&l.Status, &l.RowCount, &details, &l.StartedAt, &endedAt)
	if err != nil {
		return nil, wrapDBError("scan load", err)
	}
	if endedAt.Valid {
		t := endedAt.Time
		l.EndedAt = &t
	}
	l.Details = types.NewDoc()
	if err := json.Unmarshal([]byte(details), l.Details); err != nil {
		return nil, wrapDBError("decode load details", err)
	}
	return l, nil
}

// marshalDoc renders a Doc as JSON text, treating nil as the empty object.
func marshalDoc(d *types.Doc) (string, error) {
	if d == nil {
		return "{}", nil
	}
	b, err := json.Marshal(d)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

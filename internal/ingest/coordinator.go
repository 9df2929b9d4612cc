package ingest

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/AltimetrikAI/propelus-ai-sub001/internal/storage"
	"github.com/AltimetrikAI/propelus-ai-sub001/internal/types"
	"github.com/AltimetrikAI/propelus-ai-sub001/internal/version"
)

// Row failure policies.
const (
	PolicyContinue = "continue" // mark the row failed, keep going
	PolicyAbort    = "abort"    // fail the whole load on first row error
)

// Options tune one Coordinator.
type Options struct {
	// MaxDepth bounds hierarchy levels, placeholder chains included.
	MaxDepth int
	// CustomerLevel is the level customer profession nodes land on,
	// and therefore the level the mapping engine reads.
	CustomerLevel int
	// RowFailurePolicy is PolicyContinue or PolicyAbort.
	RowFailurePolicy string
	// Timeout bounds one load end to end; zero means no bound.
	Timeout time.Duration
}

func (o Options) withDefaults() Options {
	if o.MaxDepth <= 0 {
		o.MaxDepth = 12
	}
	if o.CustomerLevel <= 0 {
		o.CustomerLevel = 1
	}
	if o.RowFailurePolicy == "" {
		o.RowFailurePolicy = PolicyContinue
	}
	return o
}

// Coordinator drives the ingestion pipeline: one Bronze load header
// per invocation, all Silver work inside a single transaction, and a
// version appended to the taxonomy's chain.
type Coordinator struct {
	store storage.Store
	opts  Options
}

func NewCoordinator(store storage.Store, opts Options) *Coordinator {
	return &Coordinator{store: store, opts: opts.withDefaults()}
}

// Ingest processes one event. The load header is created outside the
// pipeline transaction so a failure still leaves an inspectable
// failed load behind.
func (c *Coordinator) Ingest(ctx context.Context, ev *types.IngestEvent) (*types.IngestResponse, error) {
	identity, err := ResolveIdentity(ev)
	if err != nil {
		return nil, err
	}
	if c.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.opts.Timeout)
		defer cancel()
	}

	details := types.NewDoc()
	details.Set("RequestID", uuid.NewString())
	details.Set("Source", ev.Source)
	details.Set("SourceURI", identity.URI)
	if identity.TaxonomyName != "" {
		details.Set("TaxonomyName", identity.TaxonomyName)
	}

	loadID, err := c.store.CreateLoad(ctx, identity.Type, details)
	if err != nil {
		return nil, fmt.Errorf("create load: %w", err)
	}

	layout, err := ResolveLayout(ev.Payload.Layout.Columns, identity.Type)
	if err != nil {
		c.store.MarkLoadFailed(context.WithoutCancel(ctx), loadID, err.Error())
		return nil, err
	}
	details.Set("Layout", layout)

	key := types.TaxonomyKey{CustomerID: identity.CustomerID, TaxonomyID: identity.TaxonomyID}
	resp := &types.IngestResponse{
		LoadID:       loadID,
		CustomerID:   identity.CustomerID,
		TaxonomyID:   identity.TaxonomyID,
		TaxonomyType: identity.Type,
	}

	err = c.store.RunInTransaction(ctx, func(tx storage.Tx) error {
		return c.runLoad(ctx, tx, key, identity, layout, loadID, ev.Payload.Rows, details, resp)
	})
	if err != nil {
		c.store.MarkLoadFailed(context.WithoutCancel(ctx), loadID, err.Error())
		return nil, err
	}
	return resp, nil
}

func (c *Coordinator) runLoad(ctx context.Context, tx storage.Tx, key types.TaxonomyKey,
	identity SourceIdentity, layout *types.Layout, loadID int64, rows []*types.Doc,
	details *types.Doc, resp *types.IngestResponse) error {

	loadType := types.LoadNew
	if _, err := tx.GetTaxonomy(ctx, key); err == nil {
		loadType = types.LoadUpdated
	} else if !storage.IsNotFound(err) {
		return err
	}
	resp.LoadType = loadType

	load := &types.Load{
		ID:         loadID,
		CustomerID: key.CustomerID,
		TaxonomyID: key.TaxonomyID,
		Type:       identity.Type,
		LoadType:   loadType,
		RowCount:   len(rows),
		Details:    details,
	}
	if err := tx.UpdateLoadHeader(ctx, load); err != nil {
		return err
	}
	if err := tx.UpsertTaxonomy(ctx, &types.Taxonomy{
		CustomerID: key.CustomerID,
		TaxonomyID: key.TaxonomyID,
		Name:       identity.TaxonomyName,
		Type:       identity.Type,
		Status:     types.StatusActive,
		LastLoadID: loadID,
	}); err != nil {
		return err
	}

	staging := identity.Type == types.TaxonomyMaster && loadType == types.LoadUpdated
	if staging {
		if err := tx.CreateStaging(ctx); err != nil {
			return err
		}
	}

	tr := newTransformer(tx, key, loadID, loadType, layout, c.opts.MaxDepth, c.opts.CustomerLevel, staging)
	var rowErrs []RowError
	succeeded := 0
	for _, doc := range rows {
		rowID, err := tx.InsertRawRow(ctx, &types.RawRow{
			LoadID:     loadID,
			CustomerID: key.CustomerID,
			TaxonomyID: key.TaxonomyID,
			Doc:        doc,
			Status:     types.RowInProgress,
			Active:     true,
		})
		if err != nil {
			return err
		}
		if perr := tr.processRow(ctx, rowID, doc); perr != nil {
			if c.opts.RowFailurePolicy == PolicyAbort {
				return fmt.Errorf("row %d: %w", rowID, perr)
			}
			if err := tx.SetRawRowStatus(ctx, rowID, types.RowFailed); err != nil {
				return err
			}
			rowErrs = append(rowErrs, RowError{RowID: rowID, Err: perr.Error()})
			continue
		}
		if err := tx.SetRawRowStatus(ctx, rowID, types.RowCompleted); err != nil {
			return err
		}
		succeeded++
	}

	var affectedNodes []types.AffectedNode
	var affectedAttrs []types.AffectedAttribute
	if staging && succeeded > 0 {
		// An all-failed load must not wipe the hierarchy: with an empty
		// staging set reconciliation would deactivate every node.
		if _, err := tx.ReconcileNodes(ctx, key, loadID); err != nil {
			return err
		}
		if _, err := tx.ReconcileAttributes(ctx, key, loadID); err != nil {
			return err
		}
		var err error
		if affectedNodes, err = tx.ListDeactivatedNodes(ctx, key, loadID); err != nil {
			return err
		}
		if affectedAttrs, err = tx.ListDeactivatedAttributes(ctx, key, loadID); err != nil {
			return err
		}
	}

	if _, err := version.WriteForLoad(ctx, tx, key, loadID, loadType, affectedNodes, affectedAttrs); err != nil {
		return err
	}

	if len(rowErrs) > 0 {
		details.Set("RowErrors", rowErrs)
		if err := tx.UpdateLoadHeader(ctx, load); err != nil {
			return err
		}
	}

	status := types.LoadCompleted
	switch {
	case len(rows) > 0 && succeeded == 0:
		status = types.LoadFailed
	case len(rowErrs) > 0:
		status = types.LoadPartiallyCompleted
	}
	if err := tx.FinalizeLoad(ctx, loadID, status, time.Now().UTC()); err != nil {
		return err
	}

	resp.OK = status != types.LoadFailed
	resp.RowsProcessed = succeeded
	resp.NodeIDs = tr.nodeIDs
	for _, re := range rowErrs {
		resp.Errors = append(resp.Errors, re.String())
	}
	return nil
}

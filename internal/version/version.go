// Package version maintains taxonomy version chains. Both pipelines
// append to the same chain: ingestion writes a version per load, and
// the mapping engine ensures one exists before recording counters.
package version

import (
	"context"
	"time"

	"github.com/AltimetrikAI/propelus-ai-sub001/internal/storage"
	"github.com/AltimetrikAI/propelus-ai-sub001/internal/types"
)

// Change types recorded on taxonomy versions.
const (
	ChangeInitialLoad = "initial load"
	ChangeUpdated     = "taxonomy updated"
	ChangeRemapping   = "remapping"
)

// WriteForLoad appends the version a load produces. A taxonomy's first
// load opens version 1; later loads close the open version and open
// the next number, carrying the change manifest from reconciliation.
func WriteForLoad(ctx context.Context, tx storage.Tx, key types.TaxonomyKey, loadID int64,
	loadType types.LoadType, nodes []types.AffectedNode, attrs []types.AffectedAttribute) (*types.TaxonomyVersion, error) {

	now := time.Now().UTC()
	v := &types.TaxonomyVersion{
		CustomerID:    key.CustomerID,
		TaxonomyID:    key.TaxonomyID,
		VersionNumber: 1,
		ChangeType:    ChangeInitialLoad,
		FromTS:        now,
		LoadID:        loadID,
	}
	if loadType == types.LoadUpdated {
		next, err := tx.NextVersionNumber(ctx, key)
		if err != nil {
			return nil, err
		}
		if err := tx.CloseOpenTaxonomyVersion(ctx, key, now); err != nil {
			return nil, err
		}
		v.VersionNumber = next
		v.ChangeType = ChangeUpdated
		v.AffectedNodes = nodes
		v.AffectedAttributes = attrs
	}
	if _, err := tx.InsertTaxonomyVersion(ctx, v); err != nil {
		return nil, err
	}
	return v, nil
}

// EnsureForLoad returns the version record tied to loadID, creating a
// remapping version when the load never produced one (a mapping run
// invoked out of band).
func EnsureForLoad(ctx context.Context, tx storage.Tx, key types.TaxonomyKey, loadID int64) (*types.TaxonomyVersion, error) {
	v, err := tx.GetVersionByLoad(ctx, key, loadID)
	if err == nil {
		return v, nil
	}
	if !storage.IsNotFound(err) {
		return nil, err
	}

	now := time.Now().UTC()
	next, err := tx.NextVersionNumber(ctx, key)
	if err != nil {
		return nil, err
	}
	if err := tx.CloseOpenTaxonomyVersion(ctx, key, now); err != nil {
		return nil, err
	}
	v = &types.TaxonomyVersion{
		CustomerID:    key.CustomerID,
		TaxonomyID:    key.TaxonomyID,
		VersionNumber: next,
		ChangeType:    ChangeRemapping,
		Remapping:     true,
		FromTS:        now,
		LoadID:        loadID,
	}
	if _, err := tx.InsertTaxonomyVersion(ctx, v); err != nil {
		return nil, err
	}
	return v, nil
}

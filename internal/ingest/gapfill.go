package ingest

import (
	"context"
	"fmt"

	"github.com/AltimetrikAI/propelus-ai-sub001/internal/storage"
	"github.com/AltimetrikAI/propelus-ai-sub001/internal/types"
)

// gapFiller bridges skipped hierarchy levels with synthetic N/A
// placeholder nodes so every node's parent sits exactly one level up.
// Placeholders are find-or-create: re-running a load reuses the
// existing chain instead of growing a second one.
type gapFiller struct {
	maxDepth int
}

// parentFor returns the direct parent id for a node about to be
// created at targetLevel, given its semantic parent (semParent at
// semLevel; nil when the node hangs off the root). When the
// semantic parent is more than one level up, the intermediate levels
// are filled with placeholders chained under it.
func (g *gapFiller) parentFor(ctx context.Context, tx storage.Tx, key types.TaxonomyKey,
	loadID, rowID int64, targetLevel int, semParent *int64, semLevel int, mode types.LoadType,
	stage bool) (*int64, error) {

	if targetLevel < 0 || targetLevel > g.maxDepth {
		return nil, fmt.Errorf("%w: level %d outside [0, %d]", ErrNAChainInvalid, targetLevel, g.maxDepth)
	}
	if targetLevel == 0 {
		return nil, nil
	}
	if semParent == nil {
		// Parentless chains start at level 1: a top-of-hierarchy node
		// keeps a nil parent rather than gaining a synthetic root.
		semLevel = 0
	}
	if semLevel >= targetLevel {
		return nil, fmt.Errorf("%w: parent level %d not above target %d", ErrNAChainInvalid, semLevel, targetLevel)
	}
	if semLevel == targetLevel-1 {
		return semParent, nil
	}

	current := semParent
	for level := semLevel + 1; level < targetLevel; level++ {
		id, err := tx.FindActivePlaceholder(ctx, key, level, current)
		if storage.IsNotFound(err) {
			// Upsert under the load's mode: an updated load must
			// reactivate a chain a prior reconciliation soft-deleted.
			id, err = tx.UpsertNode(ctx, &types.Node{
				TypeID:     types.NAPlaceholderTypeID,
				TaxonomyID: key.TaxonomyID,
				CustomerID: key.CustomerID,
				ParentID:   current,
				Value:      types.NAPlaceholderValue,
				Profession: types.NAPlaceholderValue,
				Level:      level,
				Status:     types.StatusActive,
				LoadID:     loadID,
				RowID:      rowID,
			}, mode)
		}
		if err != nil {
			return nil, fmt.Errorf("placeholder at level %d: %w", level, err)
		}
		if stage {
			if err := tx.StageNode(ctx, key, types.NAPlaceholderTypeID, types.NAPlaceholderValue); err != nil {
				return nil, err
			}
		}
		current = &id
	}
	return current, nil
}

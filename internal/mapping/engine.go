// Package mapping implements the rule-based engine that assigns
// customer taxonomy nodes to Master nodes, versions the assignments,
// and keeps the Gold projection in sync.
package mapping

import (
	"context"
	"fmt"
	"time"

	"github.com/AltimetrikAI/propelus-ai-sub001/internal/storage"
	"github.com/AltimetrikAI/propelus-ai-sub001/internal/types"
	"github.com/AltimetrikAI/propelus-ai-sub001/internal/version"
)

// CreatedBy recorded on engine-produced mappings.
const createdBySystem = "system"

// Engine maps the nodes of one customer taxonomy load. One Map call
// is one transaction: version bookkeeping, every node's rule
// evaluation and state transition, counters, and the Gold sync all
// commit or roll back together.
type Engine struct {
	store storage.Store
	level int // hierarchy level customer profession nodes live at
}

func NewEngine(store storage.Store, level int) *Engine {
	if level <= 0 {
		level = 1
	}
	return &Engine{store: store, level: level}
}

// Map runs the engine for one load. Per-node failures are captured
// and do not abort the run; the absence of an active Master taxonomy
// does.
func (e *Engine) Map(ctx context.Context, req *types.MapRequest) (*types.MapResponse, error) {
	start := time.Now()
	resp := &types.MapResponse{
		LoadID:     req.LoadID,
		CustomerID: req.CustomerID,
		TaxonomyID: req.TaxonomyID,
	}
	key := types.TaxonomyKey{CustomerID: req.CustomerID, TaxonomyID: req.TaxonomyID}

	err := e.store.RunInTransaction(ctx, func(tx storage.Tx) error {
		v, err := version.EnsureForLoad(ctx, tx, key, req.LoadID)
		if err != nil {
			return err
		}
		resp.VersionID = &v.ID

		master, err := tx.ActiveMasterTaxonomy(ctx)
		if err != nil {
			return err
		}
		masterKey := master.Key()

		isUpdate := req.LoadType != types.LoadNew
		var scope []int64
		if isUpdate {
			scope = req.NodeIDs
		}
		nodes, err := tx.ListActiveNodesAtLevel(ctx, key, e.level, scope)
		if err != nil {
			return err
		}

		rules := newRuleCache(tx)
		for _, node := range nodes {
			resp.Results.NodesProcessed++
			if err := e.mapNode(ctx, tx, rules, masterKey, node, isUpdate, &resp.Results); err != nil {
				resp.Results.Failures++
				resp.Errors = append(resp.Errors, fmt.Sprintf("node %d %q: %v", node.ID, node.Value, err))
			}
		}

		counters := types.VersionCounters{
			Processed: resp.Results.NodesProcessed,
			New:       resp.Results.MappingsCreated,
			Changed:   resp.Results.MappingsUpdated,
			Unchanged: resp.Results.MappingsUnchanged,
			Failed:    resp.Results.Failures,
		}
		if err := tx.UpdateVersionCounters(ctx, v.ID, counters, "done"); err != nil {
			return err
		}
		_, _, err = tx.SyncGold(ctx)
		return err
	})
	if err != nil {
		return nil, err
	}

	resp.Success = resp.Results.Failures == 0 ||
		resp.Results.NodesProcessed > resp.Results.Failures
	resp.ProcessingTimeMS = time.Since(start).Milliseconds()
	return resp, nil
}

// mapNode evaluates the node's assigned rules in priority order (first
// match wins) and applies the state transition implied by the match
// outcome and the node's existing mapping. A rule evaluation error
// fails the node without touching its mapping state.
func (e *Engine) mapNode(ctx context.Context, tx storage.Tx, rules *ruleCache,
	masterKey types.TaxonomyKey, node *types.Node, isUpdate bool, results *types.MapResults) error {

	assigned, err := rules.rulesFor(ctx, node.TypeID)
	if err != nil {
		return err
	}

	var match *types.Node
	var matchedRuleID int64
	for _, ar := range assigned {
		m, err := tx.FindMasterMatch(ctx, masterKey, ar.Assignment.MasterTypeID,
			ar.Rule.Command, ar.Rule.Pattern, node.Value)
		if storage.IsNotFound(err) {
			continue
		}
		if err != nil {
			return fmt.Errorf("rule %q: %w", ar.Rule.Name, err)
		}
		match = m
		matchedRuleID = ar.Rule.ID
		break
	}

	existing, err := tx.GetActiveMapping(ctx, node.ID)
	if err != nil && !storage.IsNotFound(err) {
		return err
	}
	now := time.Now().UTC()

	switch {
	case match != nil && existing == nil:
		m := &types.Mapping{
			RuleID:       matchedRuleID,
			MasterNodeID: match.ID,
			ChildNodeID:  node.ID,
			Confidence:   100,
			Status:       types.StatusActive,
			CreatedBy:    createdBySystem,
		}
		if _, err := tx.InsertMapping(ctx, m); err != nil {
			return err
		}
		if _, err := tx.InsertMappingVersion(ctx, &types.MappingVersion{
			MappingID: m.ID, VersionNumber: 1, FromTS: now,
		}); err != nil {
			return err
		}
		results.MappingsCreated++

	case match != nil && existing.MasterNodeID == match.ID:
		results.MappingsUnchanged++

	case match != nil:
		// Supersede: the replacement continues the old chain's numbering.
		next, err := tx.MaxMappingVersion(ctx, existing.ID)
		if err != nil {
			return err
		}
		if err := tx.SetMappingStatus(ctx, existing.ID, types.StatusInactive); err != nil {
			return err
		}
		m := &types.Mapping{
			RuleID:       matchedRuleID,
			MasterNodeID: match.ID,
			ChildNodeID:  node.ID,
			Confidence:   100,
			Status:       types.StatusActive,
			CreatedBy:    createdBySystem,
		}
		if _, err := tx.InsertMapping(ctx, m); err != nil {
			return err
		}
		if err := tx.CloseOpenMappingVersion(ctx, existing.ID, now, &m.ID); err != nil {
			return err
		}
		if _, err := tx.InsertMappingVersion(ctx, &types.MappingVersion{
			MappingID: m.ID, VersionNumber: next + 1, FromTS: now,
		}); err != nil {
			return err
		}
		results.MappingsUpdated++

	case existing != nil && isUpdate:
		// The node no longer matches anything; retire its mapping.
		if err := tx.SetMappingStatus(ctx, existing.ID, types.StatusInactive); err != nil {
			return err
		}
		if err := tx.CloseOpenMappingVersion(ctx, existing.ID, now, nil); err != nil {
			return err
		}
		results.MappingsDeactivated++
	}
	return nil
}

package mapping

import (
	"context"
	"fmt"

	"github.com/AltimetrikAI/propelus-ai-sub001/internal/storage"
	"github.com/AltimetrikAI/propelus-ai-sub001/internal/types"
)

// Translate answers "what does source taxonomy value X correspond to
// in target taxonomy Y": it resolves the value to an active source
// node, follows its active mapping up to the Master node, and fans
// back out to the target taxonomy's actively mapped nodes. An empty
// result means the source value is unmapped or nothing in the target
// maps to the same Master node.
func Translate(ctx context.Context, store storage.Store, sourceKey types.TaxonomyKey,
	value string, targetKey types.TaxonomyKey) ([]types.Translation, error) {

	source, err := store.FindActiveNodeByValue(ctx, sourceKey, value)
	if err != nil {
		if storage.IsNotFound(err) {
			return nil, fmt.Errorf("no active node %q in %s: %w", value, sourceKey, err)
		}
		return nil, err
	}

	m, err := store.GetActiveMapping(ctx, source.ID)
	if err != nil {
		if storage.IsNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	masterNode, err := store.GetNode(ctx, m.MasterNodeID)
	if err != nil {
		return nil, err
	}

	targets, err := store.ListActiveChildrenOfMaster(ctx, targetKey, m.MasterNodeID)
	if err != nil {
		return nil, err
	}
	out := make([]types.Translation, 0, len(targets))
	for _, t := range targets {
		out = append(out, types.Translation{
			SourceNodeID: source.ID,
			MasterNodeID: masterNode.ID,
			MasterValue:  masterNode.Value,
			TargetNodeID: t.ID,
			TargetValue:  t.Value,
		})
	}
	return out, nil
}

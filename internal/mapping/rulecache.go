package mapping

import (
	"context"

	"github.com/AltimetrikAI/propelus-ai-sub001/internal/storage"
)

// ruleCache memoizes the priority-ordered rule assignments per child
// node type for the duration of one mapping run. Nodes of the same
// type share one assignment list, so each type hits the database once.
type ruleCache struct {
	tx     storage.Tx
	byType map[int64][]storage.AssignedRule
}

func newRuleCache(tx storage.Tx) *ruleCache {
	return &ruleCache{tx: tx, byType: make(map[int64][]storage.AssignedRule)}
}

func (c *ruleCache) rulesFor(ctx context.Context, childTypeID int64) ([]storage.AssignedRule, error) {
	if rules, ok := c.byType[childTypeID]; ok {
		return rules, nil
	}
	rules, err := c.tx.ListAssignedRules(ctx, childTypeID)
	if err != nil {
		return nil, err
	}
	c.byType[childTypeID] = rules
	return rules, nil
}

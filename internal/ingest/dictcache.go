package ingest

import (
	"context"
	"strings"

	"github.com/AltimetrikAI/propelus-ai-sub001/internal/storage"
)

// dictCache memoizes dictionary lookups for the duration of one load.
// Dictionary names repeat once per row, so each distinct name hits the
// database once. Keys are lowercased to match the dictionaries'
// case-insensitive identity.
type dictCache struct {
	loadID    int64
	nodeTypes map[string]int64
	attrTypes map[string]int64
}

func newDictCache(loadID int64) *dictCache {
	return &dictCache{
		loadID:    loadID,
		nodeTypes: make(map[string]int64),
		attrTypes: make(map[string]int64),
	}
}

func (c *dictCache) nodeType(ctx context.Context, tx storage.Tx, name string) (int64, error) {
	key := strings.ToLower(strings.TrimSpace(name))
	if id, ok := c.nodeTypes[key]; ok {
		return id, nil
	}
	id, err := tx.EnsureNodeType(ctx, strings.TrimSpace(name), c.loadID)
	if err != nil {
		return 0, err
	}
	c.nodeTypes[key] = id
	return id, nil
}

func (c *dictCache) attributeType(ctx context.Context, tx storage.Tx, name string) (int64, error) {
	key := strings.ToLower(strings.TrimSpace(name))
	if id, ok := c.attrTypes[key]; ok {
		return id, nil
	}
	id, err := tx.EnsureAttributeType(ctx, strings.TrimSpace(name), c.loadID)
	if err != nil {
		return 0, err
	}
	c.attrTypes[key] = id
	return id, nil
}

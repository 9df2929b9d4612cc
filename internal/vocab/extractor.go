// Package vocab derives matcher vocabularies from the Master
// hierarchy: term sets that downstream qualifier matching uses to
// split a free-text profession into a head noun and its qualifiers.
package vocab

import (
	"context"
	"strings"
	"sync"

	"github.com/AltimetrikAI/propelus-ai-sub001/internal/storage"
	"github.com/AltimetrikAI/propelus-ai-sub001/internal/types"
)

// seedHeads are profession head nouns that exist independently of any
// particular Master hierarchy's content.
var seedHeads = []string{
	"nurse", "therapist", "counselor", "specialist", "coordinator",
	"manager", "worker", "navigator", "assistant", "associate",
}

// Deepest level still considered a grouping rather than an occupation.
const groupingMaxLevel = 3

// Extractor builds and caches vocabularies per Master taxonomy. The
// cache is invalidated by key when a Master load lands.
type Extractor struct {
	store storage.Store

	mu    sync.RWMutex
	cache map[types.TaxonomyKey]*types.Vocabulary
}

func NewExtractor(store storage.Store) *Extractor {
	return &Extractor{store: store, cache: make(map[types.TaxonomyKey]*types.Vocabulary)}
}

// Extract returns the vocabulary for a Master taxonomy, computing it
// on first use.
func (e *Extractor) Extract(ctx context.Context, masterKey types.TaxonomyKey) (*types.Vocabulary, error) {
	e.mu.RLock()
	v, ok := e.cache[masterKey]
	e.mu.RUnlock()
	if ok {
		return v, nil
	}

	nodes, err := e.store.ListActiveNodes(ctx, masterKey)
	if err != nil {
		return nil, err
	}
	v = build(nodes)

	e.mu.Lock()
	e.cache[masterKey] = v
	e.mu.Unlock()
	return v, nil
}

// Invalidate drops the cached vocabulary for a Master taxonomy.
func (e *Extractor) Invalidate(masterKey types.TaxonomyKey) {
	e.mu.Lock()
	delete(e.cache, masterKey)
	e.mu.Unlock()
}

func build(nodes []*types.Node) *types.Vocabulary {
	v := &types.Vocabulary{
		StrongHeads:    make(map[string]struct{}),
		QualifiedHeads: make(map[string]struct{}),
		Qualifiers:     make(map[string]struct{}),
	}
	for _, s := range seedHeads {
		v.QualifiedHeads[s] = struct{}{}
	}

	// Strong heads: deep, multi-token occupation names.
	for _, n := range nodes {
		if n.IsPlaceholder() || n.Level <= groupingMaxLevel {
			continue
		}
		value := strings.ToLower(strings.TrimSpace(n.Value))
		if len(strings.Fields(value)) >= 2 {
			v.StrongHeads[value] = struct{}{}
		}
	}

	for _, n := range nodes {
		if n.IsPlaceholder() {
			continue
		}
		value := strings.ToLower(strings.TrimSpace(n.Value))
		if value == "" {
			continue
		}
		tokens := strings.Fields(value)

		// Grouping levels name families of professions; their values
		// qualify rather than head.
		if n.Level <= groupingMaxLevel {
			v.Qualifiers[value] = struct{}{}
		}

		// Values built around a seed contribute their tail as a
		// qualified head ("registered nurse" → "nurse", "registered
		// nurse").
		if n.Level >= groupingMaxLevel && containsSeed(tokens) {
			v.QualifiedHeads[tokens[len(tokens)-1]] = struct{}{}
			if len(tokens) >= 2 {
				v.QualifiedHeads[strings.Join(tokens[len(tokens)-2:], " ")] = struct{}{}
			}
		}

		// A value ending in a strong head contributes its prefix as a
		// qualifier ("pediatric critical care nurse" with strong head
		// "critical care nurse" → "pediatric").
		for head := range v.StrongHeads {
			if value != head && strings.HasSuffix(value, " "+head) {
				prefix := strings.TrimSpace(strings.TrimSuffix(value, head))
				if prefix != "" {
					v.Qualifiers[prefix] = struct{}{}
				}
			}
		}
	}
	return v
}

func containsSeed(tokens []string) bool {
	for _, t := range tokens {
		for _, s := range seedHeads {
			if t == s {
				return true
			}
		}
	}
	return false
}

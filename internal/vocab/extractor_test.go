package vocab

import (
	"context"
	"testing"

	"github.com/AltimetrikAI/propelus-ai-sub001/internal/storage"
	"github.com/AltimetrikAI/propelus-ai-sub001/internal/storage/sqlite"
	"github.com/AltimetrikAI/propelus-ai-sub001/internal/types"
)

func node(level int, value string) *types.Node {
	return &types.Node{TypeID: 1, Value: value, Level: level, Status: types.StatusActive}
}

func placeholder(level int) *types.Node {
	return &types.Node{TypeID: types.NAPlaceholderTypeID, Value: types.NAPlaceholderValue, Level: level, Status: types.StatusActive}
}

func has(set map[string]struct{}, term string) bool {
	_, ok := set[term]
	return ok
}

func TestBuildStrongHeads(t *testing.T) {
	v := build([]*types.Node{
		node(4, "Registered Nurse"),
		node(5, "Critical Care Nurse"),
		node(4, "Chiropractor"),  // single token, excluded
		node(3, "Nursing Staff"), // grouping level, excluded
		placeholder(4),
	})

	for _, want := range []string{"registered nurse", "critical care nurse"} {
		if !has(v.StrongHeads, want) {
			t.Errorf("strong heads missing %q: %v", want, v.StrongHeads)
		}
	}
	for _, absent := range []string{"chiropractor", "nursing staff", "n/a"} {
		if has(v.StrongHeads, absent) {
			t.Errorf("strong heads contain %q", absent)
		}
	}
}

func TestBuildQualifiedHeads(t *testing.T) {
	v := build([]*types.Node{
		node(4, "Travel Registered Nurse"),
		node(4, "Radiology Technician"), // no seed token
	})

	// Seeds are always present.
	for _, seed := range []string{"nurse", "therapist", "counselor"} {
		if !has(v.QualifiedHeads, seed) {
			t.Errorf("seed %q missing", seed)
		}
	}
	// Seed-bearing values contribute their last one and two tokens.
	if !has(v.QualifiedHeads, "registered nurse") {
		t.Errorf("qualified heads = %v", v.QualifiedHeads)
	}
	if has(v.QualifiedHeads, "technician") {
		t.Error("seedless value contributed a qualified head")
	}
}

func TestBuildQualifiers(t *testing.T) {
	v := build([]*types.Node{
		node(1, "Nursing"),
		node(3, "Acute Care"),
		node(4, "Critical Care Nurse"),
		node(5, "Pediatric Critical Care Nurse"),
		placeholder(2),
	})

	// Grouping-level values qualify.
	for _, want := range []string{"nursing", "acute care"} {
		if !has(v.Qualifiers, want) {
			t.Errorf("qualifiers missing %q: %v", want, v.Qualifiers)
		}
	}
	// Prefix before a strong-head suffix qualifies.
	if !has(v.Qualifiers, "pediatric") {
		t.Errorf("qualifiers = %v", v.Qualifiers)
	}
	if has(v.Qualifiers, "n/a") {
		t.Error("placeholder leaked into qualifiers")
	}
}

func seedMasterNodes(t *testing.T, s *sqlite.Store, key types.TaxonomyKey, values ...string) {
	t.Helper()
	ctx := context.Background()
	err := s.RunInTransaction(ctx, func(tx storage.Tx) error {
		typeID, err := tx.EnsureNodeType(ctx, "Occupation", 1)
		if err != nil {
			return err
		}
		for _, value := range values {
			if _, err := tx.UpsertNode(ctx, &types.Node{
				TypeID:     typeID,
				TaxonomyID: key.TaxonomyID,
				CustomerID: key.CustomerID,
				Value:      value,
				Level:      4,
				Status:     types.StatusActive,
				LoadID:     1,
			}, types.LoadNew); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		t.Fatalf("seed nodes: %v", err)
	}
}

func TestExtractCachesUntilInvalidated(t *testing.T) {
	ctx := context.Background()
	s, err := sqlite.New(ctx, ":memory:")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })

	key := types.TaxonomyKey{CustomerID: "1", TaxonomyID: "1"}
	seedMasterNodes(t, s, key, "Registered Nurse")

	e := NewExtractor(s)
	v, err := e.Extract(ctx, key)
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	if !has(v.StrongHeads, "registered nurse") {
		t.Fatalf("strong heads = %v", v.StrongHeads)
	}

	// New Master content is invisible until the cache is dropped.
	seedMasterNodes(t, s, key, "Physical Therapist")
	cached, err := e.Extract(ctx, key)
	if err != nil {
		t.Fatalf("extract cached: %v", err)
	}
	if has(cached.StrongHeads, "physical therapist") {
		t.Error("cache returned fresh content")
	}

	e.Invalidate(key)
	fresh, err := e.Extract(ctx, key)
	if err != nil {
		t.Fatalf("extract fresh: %v", err)
	}
	if !has(fresh.StrongHeads, "physical therapist") {
		t.Errorf("strong heads after invalidation = %v", fresh.StrongHeads)
	}
}

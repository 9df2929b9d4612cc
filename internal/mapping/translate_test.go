package mapping

import (
	"context"
	"testing"

	"github.com/AltimetrikAI/propelus-ai-sub001/internal/ingest"
	"github.com/AltimetrikAI/propelus-ai-sub001/internal/types"
)

func TestTranslateAcrossCustomers(t *testing.T) {
	s, loaded := setupTaxonomies(t, "Registered Nurse")
	ctx := context.Background()
	addRule(t, s, "exact title", types.CommandEquals, "", 1)
	engine := NewEngine(s, 1)

	if _, err := engine.Map(ctx, mapRequest(loaded)); err != nil {
		t.Fatalf("map source: %v", err)
	}

	// A second customer spells the same occupation differently; equals
	// matches case-insensitively, so both land on the same Master node.
	targetKey := types.TaxonomyKey{CustomerID: "4", TaxonomyID: "8"}
	c := ingest.NewCoordinator(s, ingest.Options{})
	other, err := c.Ingest(ctx, customerEvent(targetKey, "REGISTERED NURSE"))
	if err != nil {
		t.Fatalf("target load: %v", err)
	}
	if _, err := engine.Map(ctx, mapRequest(other)); err != nil {
		t.Fatalf("map target: %v", err)
	}

	out, err := Translate(ctx, s, customerKey, "Registered Nurse", targetKey)
	if err != nil {
		t.Fatalf("translate: %v", err)
	}
	if len(out) != 1 {
		t.Fatalf("got %d translations, want 1", len(out))
	}
	tr := out[0]
	if tr.MasterValue != "Registered Nurse" || tr.TargetValue != "REGISTERED NURSE" {
		t.Errorf("translation = %+v", tr)
	}

	// The reverse direction works off the same Master pivot.
	back, err := Translate(ctx, s, targetKey, "registered nurse", customerKey)
	if err != nil {
		t.Fatalf("reverse translate: %v", err)
	}
	if len(back) != 1 || back[0].TargetValue != "Registered Nurse" {
		t.Errorf("reverse = %+v", back)
	}
}

func TestTranslateUnmappedValue(t *testing.T) {
	s, _ := setupTaxonomies(t, "Registered Nurse")
	ctx := context.Background()

	// Node exists but was never mapped: empty result, no error.
	out, err := Translate(ctx, s, customerKey, "Registered Nurse",
		types.TaxonomyKey{CustomerID: "4", TaxonomyID: "8"})
	if err != nil {
		t.Fatalf("translate: %v", err)
	}
	if len(out) != 0 {
		t.Errorf("translations = %+v, want none", out)
	}

	// Unknown value: an error naming the miss.
	if _, err := Translate(ctx, s, customerKey, "Astronaut",
		types.TaxonomyKey{CustomerID: "4", TaxonomyID: "8"}); err == nil {
		t.Error("unknown value produced no error")
	}
}

package ingest

import (
	"errors"
	"testing"

	"github.com/AltimetrikAI/propelus-ai-sub001/internal/types"
)

func TestParseObjectKey(t *testing.T) {
	tests := []struct {
		key        string
		wantType   types.TaxonomyType
		customerID string
		taxonomyID string
		name       string
	}{
		{"Master 1 1 occupation hierarchy.xlsx", types.TaxonomyMaster, "1", "1", "occupation hierarchy"},
		{"customer 42 7 job titles", types.TaxonomyCustomer, "42", "7", "job titles"},
		{"uploads/2026/Master 1 1 occupations.xlsx", types.TaxonomyMaster, "1", "1", "occupations"},
		{"MASTER 1 2", types.TaxonomyMaster, "1", "2", ""},
	}
	for _, tc := range tests {
		t.Run(tc.key, func(t *testing.T) {
			id, err := ParseObjectKey("bucket", tc.key)
			if err != nil {
				t.Fatalf("parse: %v", err)
			}
			if id.Type != tc.wantType || id.CustomerID != tc.customerID || id.TaxonomyID != tc.taxonomyID {
				t.Errorf("identity = %+v", id)
			}
			if id.TaxonomyName != tc.name {
				t.Errorf("name = %q, want %q", id.TaxonomyName, tc.name)
			}
			if id.URI != "s3://bucket/"+tc.key {
				t.Errorf("uri = %q", id.URI)
			}
		})
	}
}

func TestParseObjectKeyRejectsUnknownShapes(t *testing.T) {
	for _, key := range []string{"report.xlsx", "Vendor 1 1 x.xlsx", "Master one 1 x"} {
		if _, err := ParseObjectKey("b", key); !errors.Is(err, ErrBadEvent) {
			t.Errorf("ParseObjectKey(%q) err = %v, want ErrBadEvent", key, err)
		}
	}
}

func validPayload() *types.IngestPayload {
	p := &types.IngestPayload{CustomerID: "3", TaxonomyID: "7"}
	p.Layout.Columns = []string{"Profession (profession)"}
	row := types.NewDoc()
	row.Set("Profession (profession)", "RN")
	p.Rows = []*types.Doc{row}
	return p
}

func TestResolveIdentityAPI(t *testing.T) {
	ev := &types.IngestEvent{
		Source:       types.SourceAPI,
		TaxonomyType: types.TaxonomyCustomer,
		Payload:      validPayload(),
	}
	id, err := ResolveIdentity(ev)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if id.CustomerID != "3" || id.TaxonomyID != "7" || id.Type != types.TaxonomyCustomer {
		t.Errorf("identity = %+v", id)
	}
	if id.URI != "api" {
		t.Errorf("uri = %q", id.URI)
	}
}

func TestResolveIdentityS3PrefersPayloadName(t *testing.T) {
	ev := &types.IngestEvent{
		Source:  types.SourceS3,
		Bucket:  "b",
		Key:     "Customer 3 7 old name.xlsx",
		Payload: validPayload(),
	}
	ev.Payload.TaxonomyName = "Job Titles"
	id, err := ResolveIdentity(ev)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if id.TaxonomyName != "Job Titles" {
		t.Errorf("name = %q, want payload name", id.TaxonomyName)
	}
}

func TestResolveIdentityRejects(t *testing.T) {
	bad := []*types.IngestEvent{
		{Source: "ftp", Payload: validPayload()},
		{Source: types.SourceAPI, TaxonomyType: "vendor", Payload: validPayload()},
		{Source: types.SourceAPI, TaxonomyType: types.TaxonomyCustomer},
		{Source: types.SourceS3, Bucket: "b", Key: "nonsense", Payload: validPayload()},
	}
	for i, ev := range bad {
		if _, err := ResolveIdentity(ev); !errors.Is(err, ErrBadEvent) {
			t.Errorf("case %d: err = %v, want ErrBadEvent", i, err)
		}
	}

	// API payload without identity.
	ev := &types.IngestEvent{Source: types.SourceAPI, TaxonomyType: types.TaxonomyCustomer, Payload: validPayload()}
	ev.Payload.CustomerID = ""
	if _, err := ResolveIdentity(ev); !errors.Is(err, ErrBadEvent) {
		t.Errorf("missing customer id: err = %v, want ErrBadEvent", err)
	}
}

package ingest

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/AltimetrikAI/propelus-ai-sub001/internal/types"
)

// Object keys encode identity in the filename:
//
//	"Master 1 1 occupation hierarchy.xlsx"   → master,   customer 1, taxonomy 1
//	"Customer 42 7 job titles"               → customer, customer 42, taxonomy 7
//
// The taxonomy display name is the remainder after the two ids, with
// any .xlsx suffix dropped.
var objectKeyRe = regexp.MustCompile(`(?i)^(master|customer)\s+(-?\d+)\s+(-?\d+)\s*(.*?)(?:\.xlsx)?\s*$`)

// SourceIdentity is the resolved identity of one ingestion event.
type SourceIdentity struct {
	Type         types.TaxonomyType
	CustomerID   string
	TaxonomyID   string
	TaxonomyName string
	URI          string // provenance: s3://bucket/key, or "api"
}

// ParseObjectKey resolves identity from an object-store key.
func ParseObjectKey(bucket, key string) (SourceIdentity, error) {
	base := key
	if i := strings.LastIndexByte(base, '/'); i >= 0 {
		base = base[i+1:]
	}
	m := objectKeyRe.FindStringSubmatch(base)
	if m == nil {
		return SourceIdentity{}, fmt.Errorf("%w: object key %q does not match '<type> <customer> <taxonomy> <name>'", ErrBadEvent, key)
	}
	return SourceIdentity{
		Type:         types.TaxonomyType(strings.ToLower(m[1])),
		CustomerID:   m[2],
		TaxonomyID:   m[3],
		TaxonomyName: strings.TrimSpace(m[4]),
		URI:          "s3://" + bucket + "/" + key,
	}, nil
}

// ResolveIdentity resolves an event's identity from whichever shape it
// carries: object-store events parse the key; API events read the
// payload. Payload rows are required either way (the object parser
// runs upstream of this pipeline).
func ResolveIdentity(ev *types.IngestEvent) (SourceIdentity, error) {
	if ev.Payload == nil || len(ev.Payload.Rows) == 0 {
		return SourceIdentity{}, fmt.Errorf("%w: no rows in payload", ErrBadEvent)
	}
	if len(ev.Payload.Layout.Columns) == 0 {
		return SourceIdentity{}, fmt.Errorf("%w: no layout columns in payload", ErrBadEvent)
	}

	switch ev.Source {
	case types.SourceS3:
		id, err := ParseObjectKey(ev.Bucket, ev.Key)
		if err != nil {
			return SourceIdentity{}, err
		}
		if name := ev.Payload.TaxonomyName; name != "" {
			id.TaxonomyName = name
		}
		return id, nil
	case types.SourceAPI:
		if !ev.TaxonomyType.Valid() {
			return SourceIdentity{}, fmt.Errorf("%w: unknown taxonomy type %q", ErrBadEvent, ev.TaxonomyType)
		}
		if ev.Payload.CustomerID == "" || ev.Payload.TaxonomyID == "" {
			return SourceIdentity{}, fmt.Errorf("%w: api payload missing customer or taxonomy id", ErrBadEvent)
		}
		return SourceIdentity{
			Type:         ev.TaxonomyType,
			CustomerID:   ev.Payload.CustomerID,
			TaxonomyID:   ev.Payload.TaxonomyID,
			TaxonomyName: ev.Payload.TaxonomyName,
			URI:          "api",
		}, nil
	default:
		return SourceIdentity{}, fmt.Errorf("%w: unknown source %q", ErrBadEvent, ev.Source)
	}
}

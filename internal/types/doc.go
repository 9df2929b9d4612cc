package types

import (
	"fmt"

	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// Doc is a schemaless JSON object that preserves key insertion order.
// Bronze raw rows, load provenance, and layout fragments all round-trip
// through Doc so that serialized output matches source column order.
type Doc = orderedmap.OrderedMap[string, any]

// NewDoc returns an empty ordered document.
func NewDoc() *Doc {
	return orderedmap.New[string, any]()
}

// DocString reads a key from d and renders it as a string. Missing keys
// and nil values yield "". Non-string scalars (numbers, bools) are
// formatted with fmt; source parsers deliver cell values as strings but
// JSON payloads may carry bare numbers.
func DocString(d *Doc, key string) string {
	if d == nil {
		return ""
	}
	v, ok := d.Get(key)
	if !ok || v == nil {
		return ""
	}
	switch s := v.(type) {
	case string:
		return s
	case float64:
		// JSON numbers decode as float64; render integers without exponent.
		if s == float64(int64(s)) {
			return fmt.Sprintf("%d", int64(s))
		}
		return fmt.Sprintf("%v", s)
	default:
		return fmt.Sprintf("%v", s)
	}
}

// DocKeys returns the document's keys in insertion order.
func DocKeys(d *Doc) []string {
	if d == nil {
		return nil
	}
	keys := make([]string, 0, d.Len())
	for pair := d.Oldest(); pair != nil; pair = pair.Next() {
		keys = append(keys, pair.Key)
	}
	return keys
}

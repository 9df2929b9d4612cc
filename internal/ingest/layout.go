package ingest

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/AltimetrikAI/propelus-ai-sub001/internal/types"
)

// Column markers, matched case-insensitively against the tail of a
// header: "Specialty (node 3)", "Broad Occupation (profession)",
// "License Code (attribute)".
var (
	nodeMarkerRe       = regexp.MustCompile(`(?i)^(.*?)\s*\(node\s+(-?\d+)\)\s*$`)
	professionMarkerRe = regexp.MustCompile(`(?i)^(.*?)\s*\(profession\)\s*$`)
	attributeMarkerRe  = regexp.MustCompile(`(?i)^(.*?)\s*\(attribute\)\s*$`)
)

// ResolveLayout marker-parses raw column headers into a typed Layout.
//
// Master descriptors must declare at least one hierarchy column and
// exactly one profession column; the profession column doubles as an
// attribute so its values persist as facts. Unmarked columns are
// implicit attributes. Customer descriptors must declare exactly one
// profession column; everything else is discovered per row, so only
// the profession column lands in the layout.
func ResolveLayout(columns []string, kind types.TaxonomyType) (*types.Layout, error) {
	l := &types.Layout{Kind: kind}
	professions := 0

	for _, col := range columns {
		header := strings.TrimSpace(col)
		if header == "" {
			return nil, fmt.Errorf("%w: blank column header", ErrLayoutInvalid)
		}

		if m := nodeMarkerRe.FindStringSubmatch(header); m != nil {
			if kind == types.TaxonomyCustomer {
				return nil, fmt.Errorf("%w: customer source declares hierarchy column %q", ErrLayoutInvalid, col)
			}
			level, err := strconv.Atoi(m[2])
			if err != nil || level < 0 {
				return nil, fmt.Errorf("%w: bad node level in %q", ErrLayoutInvalid, col)
			}
			name := strings.TrimSpace(m[1])
			if name == "" {
				return nil, fmt.Errorf("%w: node column %q has no name", ErrLayoutInvalid, col)
			}
			if _, dup := l.LevelFor(level); dup {
				return nil, fmt.Errorf("%w: duplicate node level %d", ErrLayoutInvalid, level)
			}
			l.NodeLevels = append(l.NodeLevels, types.NodeLevel{Level: level, Name: name, Column: col})
			continue
		}

		if m := professionMarkerRe.FindStringSubmatch(header); m != nil {
			professions++
			name := strings.TrimSpace(m[1])
			if name == "" {
				return nil, fmt.Errorf("%w: profession column %q has no name", ErrLayoutInvalid, col)
			}
			l.ProfessionColumn = types.LayoutColumn{Name: name, Column: col}
			if kind == types.TaxonomyMaster {
				l.Attributes = append(l.Attributes, l.ProfessionColumn)
			}
			continue
		}

		if kind == types.TaxonomyCustomer {
			// Dynamic attribute; discovered per row, not declared here.
			continue
		}

		if m := attributeMarkerRe.FindStringSubmatch(header); m != nil {
			name := strings.TrimSpace(m[1])
			if name == "" {
				return nil, fmt.Errorf("%w: attribute column %q has no name", ErrLayoutInvalid, col)
			}
			l.Attributes = append(l.Attributes, types.LayoutColumn{Name: name, Column: col})
			continue
		}

		// Unmarked master column: implicit attribute keyed by the header.
		l.Attributes = append(l.Attributes, types.LayoutColumn{Name: header, Column: col})
	}

	if professions != 1 {
		return nil, fmt.Errorf("%w: expected exactly one (profession) column, found %d", ErrLayoutInvalid, professions)
	}
	if kind == types.TaxonomyMaster && len(l.NodeLevels) == 0 {
		return nil, fmt.Errorf("%w: master source declares no (node N) columns", ErrLayoutInvalid)
	}

	sort.Slice(l.NodeLevels, func(i, j int) bool {
		return l.NodeLevels[i].Level < l.NodeLevels[j].Level
	})
	return l, nil
}

// isNA reports whether a cell is empty for hierarchy purposes: blank
// or the literal placeholder, case-insensitively.
func isNA(cell string) bool {
	s := strings.TrimSpace(cell)
	return s == "" || strings.EqualFold(s, "N/A") || strings.EqualFold(s, "NA")
}

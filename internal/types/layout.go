package types

// NodeLevel declares one hierarchy column of a Master layout.
// Level is the explicit non-negative level carried by the `(node N)`
// marker; Name is the column name with the marker stripped (it becomes
// the node-type name); Column is the verbatim source header used to
// read row cells.
type NodeLevel struct {
	Level  int    `json:"level"`
	Name   string `json:"name"`
	Column string `json:"column"`
}

// LayoutColumn declares one attribute column: Name is the marker-
// stripped attribute-type name, Column the verbatim source header.
type LayoutColumn struct {
	Name   string `json:"name"`
	Column string `json:"column"`
}

// Layout is the typed result of resolving a source descriptor.
//
// Master layouts carry ordered NodeLevels, declared Attributes and the
// profession column. Customer layouts carry only the profession column;
// every other column is a dynamic attribute discovered per row.
type Layout struct {
	Kind             TaxonomyType   `json:"kind"`
	NodeLevels       []NodeLevel    `json:"node_levels,omitempty"` // sorted ascending by level
	Attributes       []LayoutColumn `json:"attributes,omitempty"`
	ProfessionColumn LayoutColumn   `json:"profession_column"`
}

// MaxLevel returns the deepest declared node level, or -1 when the
// layout declares none.
func (l *Layout) MaxLevel() int {
	max := -1
	for _, nl := range l.NodeLevels {
		if nl.Level > max {
			max = nl.Level
		}
	}
	return max
}

// LevelFor returns the NodeLevel declared at the given level, if any.
func (l *Layout) LevelFor(level int) (NodeLevel, bool) {
	for _, nl := range l.NodeLevels {
		if nl.Level == level {
			return nl, true
		}
	}
	return NodeLevel{}, false
}

package ingest

// ancestorResolver carries hierarchy context across the rows of one
// load. lastSeen[level] is the most recent node created at that level;
// spreadsheet sources leave parent cells blank on continuation rows,
// so a row's parent often comes from an earlier row.
type ancestorResolver struct {
	lastSeen map[int]int64
}

func newAncestorResolver() *ancestorResolver {
	return &ancestorResolver{lastSeen: make(map[int]int64)}
}

// resolve picks the semantic parent for a node about to be created at
// level. It walks levels level-1..0 and returns the first remembered
// node whose level also has a value in the current row (rowHasValue);
// when no remembered level passes that test it falls back to the
// deepest remembered node above the target. ok is false when nothing
// is remembered at all, meaning the node attaches to the root.
func (r *ancestorResolver) resolve(level int, rowHasValue func(level int) bool) (parentID int64, parentLevel int, ok bool) {
	for k := level - 1; k >= 0; k-- {
		if id, seen := r.lastSeen[k]; seen && rowHasValue(k) {
			return id, k, true
		}
	}
	for k := level - 1; k >= 0; k-- {
		if id, seen := r.lastSeen[k]; seen {
			return id, k, true
		}
	}
	return 0, -1, false
}

// remember records the node created at level and forgets deeper
// levels, which belong to the previous branch.
func (r *ancestorResolver) remember(level int, id int64) {
	r.lastSeen[level] = id
	for k := range r.lastSeen {
		if k > level {
			delete(r.lastSeen, k)
		}
	}
}

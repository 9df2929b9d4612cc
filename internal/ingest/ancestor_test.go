package ingest

import "testing"

func TestAncestorResolverPrefersLevelsWithRowValues(t *testing.T) {
	r := newAncestorResolver()
	r.remember(1, 100)
	r.remember(2, 200)

	// Row carries a value at level 1 but not at level 2: the level-2
	// memory belongs to another branch.
	hasValue := func(level int) bool { return level == 1 }
	id, level, ok := r.resolve(3, hasValue)
	if !ok || id != 100 || level != 1 {
		t.Errorf("resolve = (%d, %d, %v), want (100, 1, true)", id, level, ok)
	}
}

func TestAncestorResolverFallsBackToDeepest(t *testing.T) {
	r := newAncestorResolver()
	r.remember(1, 100)
	r.remember(2, 200)

	// Continuation row: no hierarchy cells at all; deepest memory wins.
	none := func(int) bool { return false }
	id, level, ok := r.resolve(3, none)
	if !ok || id != 200 || level != 2 {
		t.Errorf("resolve = (%d, %d, %v), want (200, 2, true)", id, level, ok)
	}
}

func TestAncestorResolverEmpty(t *testing.T) {
	r := newAncestorResolver()
	if _, _, ok := r.resolve(2, func(int) bool { return true }); ok {
		t.Error("empty resolver produced a parent")
	}
}

func TestAncestorResolverForgetsDeeperLevels(t *testing.T) {
	r := newAncestorResolver()
	r.remember(1, 100)
	r.remember(2, 200)
	r.remember(3, 300)

	// A new level-1 node starts a new branch; 2 and 3 are stale.
	r.remember(1, 101)
	none := func(int) bool { return false }
	id, level, ok := r.resolve(3, none)
	if !ok || id != 101 || level != 1 {
		t.Errorf("resolve = (%d, %d, %v), want (101, 1, true)", id, level, ok)
	}
}

package mutrun

import (
	"testing"

	"github.com/MesserLab/slimgo/internal/mutation"
)

func newIndexed(t *testing.T, b *mutation.Block, positions ...int64) []mutation.Index {
	t.Helper()
	mt := &mutation.Type{ID: 1, Stacking: mutation.StackKeepBoth}
	out := make([]mutation.Index, len(positions))
	for i, pos := range positions {
		idx := b.Allocate(mutation.Mutation{Type: mt, Position: pos})
		b.Retain(idx)
		out[i] = idx
	}
	return out
}

func TestInsertSortedMaintainsOrder(t *testing.T) {
	block := mutation.NewBlock()
	idxs := newIndexed(t, block, 30, 10, 20)

	r := NewRun()
	groupOf := func(mutation.Index) int32 { return 0 }
	for _, idx := range idxs {
		if !r.InsertSorted(block, idx, groupOf) {
			t.Fatalf("InsertSorted rejected index %d", idx)
		}
	}

	var last int64 = -1
	for i := 0; i < r.Len(); i++ {
		pos := block.At(r.At(i)).Position
		if pos < last {
			t.Fatalf("run not sorted: position %d after %d", pos, last)
		}
		last = pos
	}
}

func TestInsertSortedStackingKeepOld(t *testing.T) {
	block := mutation.NewBlock()
	mtOld := &mutation.Type{ID: 1, Stacking: mutation.StackKeepOld}
	idxOld := block.Allocate(mutation.Mutation{Type: mtOld, Position: 50})
	block.Retain(idxOld)

	r := NewRun()
	groupOf := func(mutation.Index) int32 { return 0 }
	r.InsertSorted(block, idxOld, groupOf)

	mtNew := &mutation.Type{ID: 1, Stacking: mtOld.Stacking}
	idxNew := block.Allocate(mutation.Mutation{Type: mtOld, Position: 50})
	block.Retain(idxNew)

	if r.InsertSorted(block, idxNew, groupOf) {
		t.Fatal("expected StackKeepOld to reject the new mutation")
	}
	if r.Len() != 1 || r.At(0) != idxOld {
		t.Fatalf("run contents changed under StackKeepOld: len=%d at0=%d", r.Len(), r.At(0))
	}
	_ = mtNew
}

func TestInsertSortedStackingKeepNew(t *testing.T) {
	block := mutation.NewBlock()
	mt := &mutation.Type{ID: 1, Stacking: mutation.StackKeepNew}
	idxOld := block.Allocate(mutation.Mutation{Type: mt, Position: 50})
	block.Retain(idxOld)

	r := NewRun()
	groupOf := func(mutation.Index) int32 { return 0 }
	r.InsertSorted(block, idxOld, groupOf)

	idxNew := block.Allocate(mutation.Mutation{Type: mt, Position: 50})
	block.Retain(idxNew)

	if !r.InsertSorted(block, idxNew, groupOf) {
		t.Fatal("expected StackKeepNew to accept the new mutation")
	}
	if r.Len() != 1 || r.At(0) != idxNew {
		t.Fatalf("expected new mutation to replace old: len=%d at0=%d want=%d", r.Len(), r.At(0), idxNew)
	}
	if block.Refcount(idxOld) != 0 {
		t.Fatalf("expected old mutation released, refcount=%d", block.Refcount(idxOld))
	}
}

func TestWillModifyClonesWhenShared(t *testing.T) {
	block := mutation.NewBlock()
	idxs := newIndexed(t, block, 10)

	r := NewRun()
	groupOf := func(mutation.Index) int32 { return 0 }
	r.InsertSorted(block, idxs[0], groupOf)
	r.Retain() // now shared, refcount 2

	clone := r.WillModify(block)
	if clone == r {
		t.Fatal("WillModify returned the same pointer for a shared run")
	}
	if r.Refcount() != 1 {
		t.Fatalf("original refcount after WillModify = %d, want 1", r.Refcount())
	}
	if clone.Refcount() != 1 {
		t.Fatalf("clone refcount = %d, want 1", clone.Refcount())
	}
	if clone.Len() != r.Len() {
		t.Fatalf("clone length %d != original length %d", clone.Len(), r.Len())
	}
	if block.Refcount(idxs[0]) != 3 {
		t.Fatalf("block refcount for cloned index = %d, want 3 (newIndexed's pre-retain + original run's own retain + the clone's new retain)", block.Refcount(idxs[0]))
	}
}

func TestWillModifyReusesWhenUnique(t *testing.T) {
	block := mutation.NewBlock()
	r := NewRun()
	if got := r.WillModify(block); got != r {
		t.Fatal("WillModify cloned a uniquely-owned run")
	}
}

func TestCheckSegmentInvariant(t *testing.T) {
	block := mutation.NewBlock()
	idxs := newIndexed(t, block, 5, 50, 99)

	r := NewRun()
	groupOf := func(mutation.Index) int32 { return 0 }
	for _, idx := range idxs {
		r.InsertSorted(block, idx, groupOf)
	}

	if err := r.CheckSegmentInvariant(block, 0, 100); err != nil {
		t.Fatalf("unexpected invariant violation: %v", err)
	}
	if err := r.CheckSegmentInvariant(block, 1, 100); err == nil {
		t.Fatal("expected invariant violation for wrong segment index")
	}
}

// TestSplitJoinIdentity covers scenario A: splitting a run in two and then joining
// the halves back together must reconstruct the original ordered index sequence.
func TestSplitJoinIdentity(t *testing.T) {
	block := mutation.NewBlock()
	idxs := newIndexed(t, block, 5, 25, 60, 80)

	pool := NewPool()
	original := pool.Get()
	groupOf := func(mutation.Index) int32 { return 0 }
	for _, idx := range idxs {
		original.InsertSorted(block, idx, groupOf)
	}

	splitCons := NewSplitCons(pool)
	left, right := splitCons.Split(original, block, 50)

	if left.Len()+right.Len() != original.Len() {
		t.Fatalf("split lost or gained mutations: left=%d right=%d original=%d", left.Len(), right.Len(), original.Len())
	}
	for i := 0; i < left.Len(); i++ {
		if pos := block.At(left.At(i)).Position; pos >= 50 {
			t.Fatalf("left half contains position %d >= split point", pos)
		}
	}
	for i := 0; i < right.Len(); i++ {
		if pos := block.At(right.At(i)).Position; pos < 50 {
			t.Fatalf("right half contains position %d < split point", pos)
		}
	}

	joinCons := NewJoinCons(pool)
	rejoined := joinCons.Join(left, right, block)

	if rejoined.Len() != original.Len() {
		t.Fatalf("rejoined length %d != original length %d", rejoined.Len(), original.Len())
	}
	for i := 0; i < original.Len(); i++ {
		wantPos := block.At(original.At(i)).Position
		gotPos := block.At(rejoined.At(i)).Position
		if wantPos != gotPos {
			t.Fatalf("rejoined[%d] position = %d, want %d", i, gotPos, wantPos)
		}
	}

	// Hash-consing: splitting the same run pointer again returns the cached pair.
	left2, right2 := splitCons.Split(original, block, 50)
	if left2 != left || right2 != right {
		t.Fatal("expected hash-consed split to return the same run pointers")
	}
}

func TestNonNeutralCacheInvalidation(t *testing.T) {
	block := mutation.NewBlock()
	mtNeutral := &mutation.Type{ID: 1, Stacking: mutation.StackKeepBoth}
	mtSelected := &mutation.Type{ID: 2, Stacking: mutation.StackKeepBoth}

	idxNeutral := block.Allocate(mutation.Mutation{Type: mtNeutral, Position: 10, SelectionCoeff: 0})
	block.Retain(idxNeutral)

	r := NewRun()
	groupOf := func(mutation.Index) int32 { return 0 }
	r.InsertSorted(block, idxNeutral, groupOf)

	if got := len(r.NonNeutral(block)); got != 0 {
		t.Fatalf("NonNeutral = %d entries, want 0", got)
	}

	idxSelected := block.Allocate(mutation.Mutation{Type: mtSelected, Position: 20, SelectionCoeff: 0.1})
	block.Retain(idxSelected)
	r.InsertSorted(block, idxSelected, groupOf)
	BumpOperationID()

	nn := r.NonNeutral(block)
	if len(nn) != 1 || nn[0] != idxSelected {
		t.Fatalf("NonNeutral after insert = %v, want [%d]", nn, idxSelected)
	}
}

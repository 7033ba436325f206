package mutation

import "testing"

func TestBlockAllocateReleaseReuse(t *testing.T) {
	b := NewBlock()
	mt := &Type{ID: 1}

	idx1 := b.Allocate(Mutation{Type: mt, Position: 100})
	b.Retain(idx1)
	if got := b.At(idx1).Position; got != 100 {
		t.Fatalf("Position = %d, want 100", got)
	}

	b.Release(idx1)
	if rc := b.Refcount(idx1); rc != 0 {
		t.Fatalf("Refcount after release = %d, want 0", rc)
	}

	idx2 := b.Allocate(Mutation{Type: mt, Position: 200})
	if idx2 != idx1 {
		t.Fatalf("expected free-list reuse: idx2=%d idx1=%d", idx2, idx1)
	}
}

func TestBlockDoubleFreePanics(t *testing.T) {
	b := NewBlock()
	idx := b.Allocate(Mutation{Position: 1})
	b.Retain(idx)
	b.Release(idx)

	defer func() {
		if recover() == nil {
			t.Fatal("expected panic on double-free")
		}
	}()
	b.Release(idx)
}

func TestBlockOutOfRangePanics(t *testing.T) {
	b := NewBlock()
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic on out-of-range index")
		}
	}()
	b.At(Index(99))
}

func TestBlockLenExcludesFree(t *testing.T) {
	b := NewBlock()
	idx1 := b.Allocate(Mutation{})
	b.Retain(idx1)
	idx2 := b.Allocate(Mutation{})
	b.Retain(idx2)
	if got := b.Len(); got != 2 {
		t.Fatalf("Len() = %d, want 2", got)
	}
	b.Release(idx1)
	if got := b.Len(); got != 1 {
		t.Fatalf("Len() after release = %d, want 1", got)
	}
}

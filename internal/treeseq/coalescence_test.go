package treeseq

import "testing"

// TestIsCoalescedSingleLineage checks the trivial single-root, all-samples-below
// case: a grandparent -> parent -> child chain with only the child as a sample.
func TestIsCoalescedSingleLineage(t *testing.T) {
	r := NewRecorder()
	_, _, child := buildLineage(r)

	if !r.IsCoalesced([]int64{child}) {
		t.Fatalf("IsCoalesced = false, want true for a single lineage")
	}
}

// TestIsCoalescedFalseForDisjointLineages builds two independent roots, each with
// their own sample descendant, and checks coalescence correctly reports false.
func TestIsCoalescedFalseForDisjointLineages(t *testing.T) {
	r := NewRecorder()
	r.AdvanceGeneration(1)
	rootA := r.RecordNode(0, 0)
	rootB := r.RecordNode(0, 1)
	r.AdvanceGeneration(2)
	childA := r.RecordNode(0, 2)
	childB := r.RecordNode(0, 3)
	r.RecordEdge(rootA, childA, 0, 1024)
	r.RecordEdge(rootB, childB, 0, 1024)

	if r.IsCoalesced([]int64{childA, childB}) {
		t.Fatalf("IsCoalesced = true, want false for two disjoint lineages")
	}
}

// TestIsCoalescedTrueDespiteExtraRememberedRoot covers the spec's stated subtlety:
// root count alone is insufficient, since a remembered ancestor can leave an extra
// root behind that no tracked sample descends from, while the tree is still
// coalesced with respect to the actual sample set.
func TestIsCoalescedTrueDespiteExtraRememberedRoot(t *testing.T) {
	r := NewRecorder()
	r.AdvanceGeneration(1)
	extraRoot := r.RecordNode(0, 0) // a remembered ancestor with no sample descendants
	r.RememberGenome(extraRoot)

	_, _, child := buildLineage(r)

	if !r.IsCoalesced([]int64{child}) {
		t.Fatalf("IsCoalesced = false, want true: extra remembered root shouldn't block coalescence of the sample lineage")
	}
}

func TestIsCoalescedTrueForNoSamples(t *testing.T) {
	r := NewRecorder()
	if !r.IsCoalesced(nil) {
		t.Fatalf("IsCoalesced = false, want true for an empty sample set")
	}
}

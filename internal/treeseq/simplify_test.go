package treeseq

import "testing"

// buildLineage constructs a three-generation chain grandparent -> parent -> child,
// each with one full-interval inheritance edge, and returns their node ids.
func buildLineage(r *Recorder) (grandparent, parent, child int64) {
	r.AdvanceGeneration(1)
	grandparent = r.RecordNode(0, 0)
	r.AdvanceGeneration(2)
	parent = r.RecordNode(0, 1)
	r.RecordEdge(grandparent, parent, 0, 1024)
	r.AdvanceGeneration(3)
	child = r.RecordNode(0, 2)
	r.RecordEdge(parent, child, 0, 1024)
	return
}

// TestSimplifyPreservesReachableAncestors checks that simplifying against only the
// child as the extant sample keeps every ancestor on its inheritance path.
func TestSimplifyPreservesReachableAncestors(t *testing.T) {
	r := NewRecorder()
	_, _, child := buildLineage(r)

	result := r.Simplify([]int64{child})

	if len(r.Tables.Nodes) != 3 {
		t.Fatalf("Nodes len after simplify = %d, want 3 (all ancestors reachable)", len(r.Tables.Nodes))
	}
	if result.NewID(child) == -1 {
		t.Fatalf("child node was dropped by simplify")
	}
}

// TestSimplifyDropsUnreachableLineages verifies a lineage with no descendant among
// the extant or remembered sample sets is removed entirely.
func TestSimplifyDropsUnreachableLineages(t *testing.T) {
	r := NewRecorder()
	grandparent, parent, child := buildLineage(r)
	// A second, disconnected lineage that will have no samples.
	r.AdvanceGeneration(1)
	orphan := r.RecordNode(0, 9)

	result := r.Simplify([]int64{child})

	if result.NewID(orphan) != -1 {
		t.Fatalf("unreachable orphan node was kept by simplify")
	}
	if result.NewID(grandparent) == -1 || result.NewID(parent) == -1 {
		t.Fatalf("reachable ancestors were incorrectly dropped")
	}
}

// TestSimplifyAssignsRememberedBeforeExtant checks the dense-id ordering
// contract: remembered genomes occupy [0,R), extant genomes occupy [R,R+E).
func TestSimplifyAssignsRememberedBeforeExtant(t *testing.T) {
	r := NewRecorder()
	r.AdvanceGeneration(1)
	remembered := r.RecordNode(0, 0)
	extant := r.RecordNode(0, 1)
	r.RememberGenome(remembered)

	result := r.Simplify([]int64{extant})

	if result.NewID(remembered) != 0 {
		t.Fatalf("remembered node's new id = %d, want 0", result.NewID(remembered))
	}
	if result.NewID(extant) != 1 {
		t.Fatalf("extant node's new id = %d, want 1", result.NewID(extant))
	}
}

func TestIntervalSimplifierCadence(t *testing.T) {
	s := NewIntervalSimplifier(100)
	if s.ShouldSimplify(50) {
		t.Fatalf("ShouldSimplify(50) = true before interval elapsed")
	}
	if !s.ShouldSimplify(100) {
		t.Fatalf("ShouldSimplify(100) = false, want true at interval boundary")
	}
	s.RecordSimplification(100, 1000, 100)
	if s.ShouldSimplify(150) {
		t.Fatalf("ShouldSimplify(150) = true before next interval elapsed")
	}
	if !s.ShouldSimplify(200) {
		t.Fatalf("ShouldSimplify(200) = false at next interval boundary")
	}
}

func TestRatioSimplifierGrowsIntervalWhenRatioUndershoots(t *testing.T) {
	s := NewRatioSimplifier(10, 50)
	s.RecordSimplification(50, 1000, 500) // ratio 2, below target of 10
	if s.interval <= 50 {
		t.Fatalf("interval after undershoot = %v, want > 50", s.interval)
	}
}

func TestRatioSimplifierShrinksIntervalWhenRatioOvershoots(t *testing.T) {
	s := NewRatioSimplifier(2, 50)
	s.RecordSimplification(50, 1000, 10) // ratio 100, above target of 2
	if s.interval >= 50 {
		t.Fatalf("interval after overshoot = %v, want < 50", s.interval)
	}
}

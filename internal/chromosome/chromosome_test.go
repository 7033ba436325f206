package chromosome

import "testing"

func TestNewRejectsNonPowerOfTwoMutrunCount(t *testing.T) {
	if _, err := New(1000, 3); err == nil {
		t.Fatal("expected error for non-power-of-two mutrun_count")
	}
}

func TestNewRejectsMutrunCountAboveMax(t *testing.T) {
	if _, err := New(1<<20, MaxMutrunCount*2); err == nil {
		t.Fatal("expected error for mutrun_count exceeding MaxMutrunCount")
	}
}

// TestMutrunCountExtremesValid covers boundary behavior 10: mutrun_count == 1 and
// mutrun_count == MAX are both valid geometries.
func TestMutrunCountExtremesValid(t *testing.T) {
	length := int64(1 << 16)

	c1, err := New(length, 1)
	if err != nil {
		t.Fatalf("mutrun_count=1 rejected: %v", err)
	}
	if c1.MutrunLength != length {
		t.Fatalf("mutrun_count=1: MutrunLength = %d, want %d", c1.MutrunLength, length)
	}

	cMax, err := New(length, MaxMutrunCount)
	if err != nil {
		t.Fatalf("mutrun_count=MAX rejected: %v", err)
	}
	if cMax.MutrunLength != length/MaxMutrunCount {
		t.Fatalf("mutrun_count=MAX: MutrunLength = %d, want %d", cMax.MutrunLength, length/MaxMutrunCount)
	}

	// With a single segment (mutrun_count=1), every position falls into segment 0.
	pos := int64(100)
	if got := c1.SegmentOf(pos); got != 0 {
		t.Fatalf("mutrun_count=1: SegmentOf(%d) = %d, want 0", pos, got)
	}
}

// TestEndOfChromosomePosition covers boundary behavior 12: a position at L-1 must
// resolve correctly in rate maps and segment lookup.
func TestEndOfChromosomePosition(t *testing.T) {
	length := int64(1 << 10)
	c, err := New(length, 4)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	c.MutationCombined = RateMap{End: []int64{length - 1}, Rate: []float64{1e-7}}
	c.RecombinationCombined = RateMap{End: []int64{length - 1}, Rate: []float64{1e-8}}

	lastPos := length - 1
	if rate := c.MutationRateAt(lastPos, SexCombined); rate != 1e-7 {
		t.Fatalf("MutationRateAt(L-1) = %v, want 1e-7", rate)
	}

	wantSeg := c.MutrunCount - 1
	if got := c.SegmentOf(lastPos); got != wantSeg {
		t.Fatalf("SegmentOf(L-1) = %d, want %d", got, wantSeg)
	}
}

func TestAncestralSequenceRoundTrip(t *testing.T) {
	c, err := New(8, 2)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	bases := []uint8{0, 1, 2, 3, 3, 2, 1, 0}
	if err := c.SetAncestralSequence(bases); err != nil {
		t.Fatalf("SetAncestralSequence: %v", err)
	}
	for i, want := range bases {
		got, err := c.AncestralBaseAt(int64(i))
		if err != nil {
			t.Fatalf("AncestralBaseAt(%d): %v", i, err)
		}
		if got != want {
			t.Fatalf("AncestralBaseAt(%d) = %d, want %d", i, got, want)
		}
	}
}

func TestAncestralSequenceWrongLength(t *testing.T) {
	c, err := New(8, 2)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := c.SetAncestralSequence([]uint8{0, 1}); err == nil {
		t.Fatal("expected error for mismatched ancestral sequence length")
	}
}

func TestRateMapValidate(t *testing.T) {
	m := RateMap{End: []int64{99}, Rate: []float64{1e-8}}
	if err := m.Validate(100); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	bad := RateMap{End: []int64{50}, Rate: []float64{1e-8}}
	if err := bad.Validate(100); err == nil {
		t.Fatal("expected error for map not covering full length")
	}
}

func TestSexSpecificRecombination(t *testing.T) {
	c, err := New(1024, 4)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	c.SexSpecificRecomb = true
	c.RecombinationMale = RateMap{End: []int64{1023}, Rate: []float64{2e-8}}
	c.RecombinationFemale = RateMap{End: []int64{1023}, Rate: []float64{1e-8}}

	if got := c.RecombinationRateAt(10, SexMale); got != 2e-8 {
		t.Fatalf("male rate = %v, want 2e-8", got)
	}
	if got := c.RecombinationRateAt(10, SexFemale); got != 1e-8 {
		t.Fatalf("female rate = %v, want 1e-8", got)
	}
}

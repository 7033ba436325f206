package population

import (
	"math"
	"testing"
)

func TestDiversitySketchEstimateWithinTolerance(t *testing.T) {
	sketch, err := NewDiversitySketch(10)
	if err != nil {
		t.Fatalf("NewDiversitySketch: %v", err)
	}

	const n = 5000
	for i := 0; i < n; i++ {
		sketch.AddHaplotype([]uint64{uint64(i), uint64(i * 31)})
	}

	est := float64(sketch.Estimate())
	errRate := math.Abs(est-n) / n
	if errRate > 0.1 {
		t.Fatalf("estimate %v too far from true cardinality %d (error %.2f%%)", est, n, errRate*100)
	}
}

func TestDiversitySketchRejectsBadPrecision(t *testing.T) {
	if _, err := NewDiversitySketch(20); err == nil {
		t.Fatal("expected error for out-of-range precision")
	}
}

func TestDiversitySketchMarshalRoundTrip(t *testing.T) {
	sketch, _ := NewDiversitySketch(8)
	for i := 0; i < 100; i++ {
		sketch.AddHaplotype([]uint64{uint64(i)})
	}
	data, err := sketch.MarshalBinary()
	if err != nil {
		t.Fatalf("MarshalBinary: %v", err)
	}

	restored, _ := NewDiversitySketch(8)
	if err := restored.UnmarshalBinary(data); err != nil {
		t.Fatalf("UnmarshalBinary: %v", err)
	}
	if restored.Estimate() != sketch.Estimate() {
		t.Fatalf("round-tripped estimate %d != original %d", restored.Estimate(), sketch.Estimate())
	}
}

func TestDiversitySketchPrecisionMismatchRejected(t *testing.T) {
	sketch, _ := NewDiversitySketch(8)
	data, _ := sketch.MarshalBinary()

	mismatched, _ := NewDiversitySketch(10)
	if err := mismatched.UnmarshalBinary(data); err == nil {
		t.Fatal("expected error unpacking a sketch with a different precision")
	}
}

package experimenter

import "testing"

func TestWelchTTestIdenticalSamplesGivesPOne(t *testing.T) {
	a := samplesAt(10)
	b := samplesAt(10)
	res := WelchTTest(a, b)
	if res.T != 0 {
		t.Fatalf("T = %v, want 0 for identical samples", res.T)
	}
	if res.P < 0.999 {
		t.Fatalf("P = %v, want ~1 for identical samples", res.P)
	}
}

func TestWelchTTestClearlyDifferentSamplesGivesSmallP(t *testing.T) {
	a := samplesAt(10)
	b := samplesAt(1000)
	res := WelchTTest(a, b)
	if res.P >= 0.01 {
		t.Fatalf("P = %v, want < 0.01 for a huge, low-variance mean separation", res.P)
	}
	if res.MeanA >= res.MeanB {
		t.Fatalf("MeanA = %v, MeanB = %v, want MeanA < MeanB", res.MeanA, res.MeanB)
	}
}

func TestWelchTTestTooFewSamplesReturnsZeroValue(t *testing.T) {
	res := WelchTTest([]float64{1}, []float64{1, 2, 3})
	if (res != WelchResult{}) {
		t.Fatalf("WelchTTest with <2 samples = %+v, want zero value", res)
	}
}

func TestIncompleteBetaBoundaryValues(t *testing.T) {
	if got := incompleteBeta(0, 2, 3); got != 0 {
		t.Fatalf("incompleteBeta(0, ...) = %v, want 0", got)
	}
	if got := incompleteBeta(1, 2, 3); got != 1 {
		t.Fatalf("incompleteBeta(1, ...) = %v, want 1", got)
	}
}

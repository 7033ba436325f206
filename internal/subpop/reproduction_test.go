package subpop

import (
	"context"
	"testing"

	"github.com/MesserLab/slimgo/internal/chromosome"
	"github.com/MesserLab/slimgo/internal/genome"
	"github.com/MesserLab/slimgo/internal/mutation"
	"github.com/MesserLab/slimgo/internal/mutrun"
)

type noMutations struct{}

func (noMutations) DrawMutations(RandSource, float64) []NewMutationDraw { return nil }

type fixedRand struct{ f float64 }

func (r fixedRand) Float64() float64       { return r.f }
func (r fixedRand) Intn(n int) int         { return 0 }
func (r fixedRand) Poisson(mean float64) int { return 0 }

func TestGenerateOffspringProducesRequestedCount(t *testing.T) {
	chrom, err := chromosome.New(1024, 4)
	if err != nil {
		t.Fatalf("chromosome.New: %v", err)
	}
	chrom.RecombinationCombined = chromosome.RateMap{End: []int64{1023}, Rate: []float64{0}}
	chrom.MutationCombined = chromosome.RateMap{End: []int64{1023}, Rate: []float64{0}}

	block := mutation.NewBlock()
	pool := mutrun.NewPool()

	src := New(1, pool)
	src.SetParental([]*genome.Individual{
		makeIndividual(1, pool),
		makeIndividual(2, pool),
	})

	dst := New(2, pool)

	rep := NewReproducer(chrom, block, pool, noMutations{}, 100, 100)
	if err := rep.GenerateOffspring(context.Background(), dst, src, 5, fixedRand{f: 0.9}, 2); err != nil {
		t.Fatalf("GenerateOffspring: %v", err)
	}
	if dst.ChildCount() != 5 {
		t.Fatalf("ChildCount = %d, want 5", dst.ChildCount())
	}
}

func TestGenerateOffspringRejectsEmptySource(t *testing.T) {
	chrom, _ := chromosome.New(1024, 4)
	block := mutation.NewBlock()
	pool := mutrun.NewPool()
	rep := NewReproducer(chrom, block, pool, noMutations{}, 0, 0)

	src := New(1, pool)
	dst := New(2, pool)
	if err := rep.GenerateOffspring(context.Background(), dst, src, 1, fixedRand{}, 1); err == nil {
		t.Fatal("expected error reproducing from an empty subpopulation")
	}
}

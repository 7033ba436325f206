package subpop

import (
	"testing"

	"github.com/MesserLab/slimgo/internal/genome"
	"github.com/MesserLab/slimgo/internal/mutation"
	"github.com/MesserLab/slimgo/internal/mutrun"
)

func makeIndividual(id uint64, pool *mutrun.Pool) *genome.Individual {
	g1 := genome.New(2*id, genome.TypeAutosome, 0, 2, pool)
	g2 := genome.New(2*id+1, genome.TypeAutosome, 0, 2, pool)
	return genome.NewIndividual(int64(id), g1, g2)
}

func TestSwapGenerationsReplacesParentalBuffer(t *testing.T) {
	pool := mutrun.NewPool()
	s := New(1, pool)

	parents := []*genome.Individual{makeIndividual(1, pool), makeIndividual(2, pool)}
	s.SetParental(parents)

	child := makeIndividual(3, pool)
	s.AppendChild(child)

	if s.ChildCount() != 1 {
		t.Fatalf("ChildCount = %d, want 1", s.ChildCount())
	}

	s.SwapGenerations(mutation.NewBlock())

	if s.Size() != 1 {
		t.Fatalf("Size after swap = %d, want 1", s.Size())
	}
	if s.Parental(0) != child {
		t.Fatal("expected child to become the sole parental individual after swap")
	}
}

func TestAddAndRemoveIndividual(t *testing.T) {
	pool := mutrun.NewPool()
	s := New(2, pool)
	s.AddIndividual(makeIndividual(1, pool))
	s.AddIndividual(makeIndividual(2, pool))

	if s.Size() != 2 {
		t.Fatalf("Size = %d, want 2", s.Size())
	}
	block := mutation.NewBlock()
	if err := s.RemoveIndividualAt(block, 0); err != nil {
		t.Fatalf("RemoveIndividualAt: %v", err)
	}
	if s.Size() != 1 {
		t.Fatalf("Size after remove = %d, want 1", s.Size())
	}
	if err := s.RemoveIndividualAt(block, 5); err == nil {
		t.Fatal("expected error for out-of-range index")
	}
}

func TestFitnessCacheIndependentCopy(t *testing.T) {
	pool := mutrun.NewPool()
	s := New(3, pool)
	s.SetParental([]*genome.Individual{makeIndividual(1, pool)})
	s.SetFitness(0, 0.75)

	cache := s.FitnessCache()
	cache[0] = 99
	if s.FitnessCache()[0] != 0.75 {
		t.Fatal("FitnessCache did not return an independent copy")
	}
}

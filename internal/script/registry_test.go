package script

import "testing"

func TestMatchingFiltersByGenerationAndSubpop(t *testing.T) {
	r := NewRegistry()
	r.Add(&Block{ID: 1, Type: TypeEarlyEvent, StartGen: 1, EndGen: 10, SubpopID: FilterAny, MutationTypeID: FilterAny, InteractionTypeID: FilterAny, Active: true})
	r.Add(&Block{ID: 2, Type: TypeEarlyEvent, StartGen: 1, EndGen: 10, SubpopID: 2, MutationTypeID: FilterAny, InteractionTypeID: FilterAny, Active: true})
	r.Add(&Block{ID: 3, Type: TypeEarlyEvent, StartGen: 20, EndGen: 30, SubpopID: FilterAny, MutationTypeID: FilterAny, InteractionTypeID: FilterAny, Active: true})

	got := r.Matching(5, TypeEarlyEvent, FilterAny, FilterAny, 1)
	if len(got) != 1 || got[0].ID != 1 {
		t.Fatalf("Matching = %v, want only block 1", idsOf(got))
	}

	got = r.Matching(5, TypeEarlyEvent, FilterAny, FilterAny, 2)
	if len(got) != 2 {
		t.Fatalf("Matching for subpop 2 = %v, want blocks 1 and 2", idsOf(got))
	}

	got = r.Matching(25, TypeEarlyEvent, FilterAny, FilterAny, 1)
	if len(got) != 1 || got[0].ID != 3 {
		t.Fatalf("Matching at gen 25 = %v, want only block 3", idsOf(got))
	}
}

func idsOf(blocks []*Block) []int64 {
	out := make([]int64, len(blocks))
	for i, b := range blocks {
		out[i] = b.ID
	}
	return out
}

func TestDeferredDeregistrationDoesNotAffectInFlightDispatch(t *testing.T) {
	r := NewRegistry()
	r.Add(&Block{ID: 1, Type: TypeLateEvent, StartGen: 1, EndGen: 100, SubpopID: FilterAny, MutationTypeID: FilterAny, InteractionTypeID: FilterAny, Active: true})

	before := r.Matching(5, TypeLateEvent, FilterAny, FilterAny, FilterAny)
	if len(before) != 1 {
		t.Fatalf("expected 1 block before removal request, got %d", len(before))
	}

	r.RequestRemoval(1)

	during := r.Matching(5, TypeLateEvent, FilterAny, FilterAny, FilterAny)
	if len(during) != 1 {
		t.Fatal("dispatch observed a hole before the sweep ran")
	}

	r.SweepPendingRemovals()

	after := r.Matching(5, TypeLateEvent, FilterAny, FilterAny, FilterAny)
	if len(after) != 0 {
		t.Fatalf("expected 0 blocks after sweep, got %d", len(after))
	}
}

func TestGlobalFitnessSingleVsMultiGeneration(t *testing.T) {
	r := NewRegistry()
	r.Add(&Block{ID: 1, Type: TypeFitnessGlobal, StartGen: 5, EndGen: 5, SubpopID: FilterAny, MutationTypeID: FilterNullMutType, Active: true})
	r.Add(&Block{ID: 2, Type: TypeFitnessGlobal, StartGen: 1, EndGen: 100, SubpopID: FilterAny, MutationTypeID: FilterNullMutType, Active: true})

	got := r.Matching(5, TypeFitnessGlobal, FilterNullMutType, FilterAny, FilterAny)
	if len(got) != 2 {
		t.Fatalf("Matching at gen 5 = %v, want both blocks", idsOf(got))
	}

	got = r.Matching(6, TypeFitnessGlobal, FilterNullMutType, FilterAny, FilterAny)
	if len(got) != 1 || got[0].ID != 2 {
		t.Fatalf("Matching at gen 6 = %v, want only the multi-gen block", idsOf(got))
	}
}

type constSymbols map[string]float64

func (s constSymbols) LookupConstant(name string) (float64, bool) {
	v, ok := s[name]
	return v, ok
}

func TestRecognizeDnorm1Form(t *testing.T) {
	// return 0.1 + dnorm(individual.tagF, 0, 0.5) / 2.0;
	ast := &Node{Kind: NodeReturn, Children: []*Node{
		{Kind: NodeBinaryOp, Op: "+", Children: []*Node{
			{Kind: NodeNumber, IsNumber: true, Value: 0.1},
			{Kind: NodeBinaryOp, Op: "/", Children: []*Node{
				{Kind: NodeCall, Op: "dnorm", Children: []*Node{
					{Kind: NodeIdentifier, Name: "individual.tagF"},
					{Kind: NodeNumber, IsNumber: true, Value: 0},
					{Kind: NodeNumber, IsNumber: true, Value: 0.5},
				}},
				{Kind: NodeNumber, IsNumber: true, Value: 2.0},
			}},
		}},
	}}

	form := RecognizeOptimizedForm(ast, nil)
	if form.Kind != OptimizedDnorm1 {
		t.Fatalf("Kind = %v, want OptimizedDnorm1", form.Kind)
	}
	if form.DnormB != 0.5 || form.DnormC != 2.0 || form.DnormD != 0.1 {
		t.Fatalf("form = %+v, want B=0.5 C=2.0 D=0.1", form)
	}
}

func TestRecognizeReciprocalForm(t *testing.T) {
	// return 3.0 / relFitness;
	ast := &Node{Kind: NodeReturn, Children: []*Node{
		{Kind: NodeBinaryOp, Op: "/", Children: []*Node{
			{Kind: NodeNumber, IsNumber: true, Value: 3.0},
			{Kind: NodeIdentifier, Name: "relFitness"},
		}},
	}}

	form := RecognizeOptimizedForm(ast, nil)
	if form.Kind != OptimizedReciprocal || form.ReciprocalA != 3.0 {
		t.Fatalf("form = %+v, want OptimizedReciprocal A=3.0", form)
	}
}

func TestRecognizeUnmatchedFormReturnsNone(t *testing.T) {
	ast := &Node{Kind: NodeReturn, Children: []*Node{
		{Kind: NodeIdentifier, Name: "somethingElse"},
	}}
	form := RecognizeOptimizedForm(ast, nil)
	if form.Kind != OptimizedNone {
		t.Fatalf("Kind = %v, want OptimizedNone", form.Kind)
	}
}

package fileio

import (
	"fmt"
	"sort"

	"github.com/MesserLab/slimgo/internal/chromosome"
	"github.com/MesserLab/slimgo/internal/genome"
	"github.com/MesserLab/slimgo/internal/mutation"
	"github.com/MesserLab/slimgo/internal/mutrun"
	"github.com/MesserLab/slimgo/internal/population"
	"github.com/MesserLab/slimgo/internal/subpop"
)

// Dump is the in-memory, format-independent representation of a saved population
// that both the SLiM text and SLiM binary writers/readers serialize, per spec
// §4.6's "Populations / Mutations / Individuals / Genomes" sections.
type Dump struct {
	Generation       int64
	ChromosomeLength int64
	MutrunCount      int

	Mutations      []DumpMutation
	Subpopulations []DumpSubpopulation
}

// DumpMutation is one mutation record plus the type-defining fields needed to
// reconstruct a mutation.Type on load.
type DumpMutation struct {
	ID               uint64
	Position         int64
	SelectionCoeff   float64
	TypeID           int32
	DominanceCoeff   float64
	Stacking         mutation.StackPolicy
	OriginSubpopID   int32
	OriginGeneration int64
	Nucleotide       int8
}

// DumpIndividual is one individual's attributes plus its two genomes' mutation-id
// lists, resolved from mutation index to process-wide id so they survive a
// round-trip through a fresh mutation.Block with different index assignment.
type DumpIndividual struct {
	PedigreeID  int64
	Age         int32
	Sex         genome.Sex
	Coordinates [3]float64
	SpatialDims int
	Fitness     float64

	Genome1Null        bool
	Genome2Null        bool
	Genome1MutationIDs []uint64
	Genome2MutationIDs []uint64
}

// DumpSubpopulation is one subpopulation's id plus its live parental individuals.
type DumpSubpopulation struct {
	ID          int32
	Individuals []DumpIndividual
}

// BuildDump snapshots pop's current state (plus generation and chromosome geometry)
// into a Dump, resolving every mutation run's indices to process-wide mutation ids.
func BuildDump(pop *population.Population, block *mutation.Block, chrom *chromosome.Chromosome, generation int64) *Dump {
	d := &Dump{
		Generation:       generation,
		ChromosomeLength: chrom.Length,
		MutrunCount:      chrom.MutrunCount,
	}

	seenMutations := make(map[uint64]bool)
	for _, sp := range pop.Subpopulations() {
		dsp := DumpSubpopulation{ID: sp.ID}
		for _, ind := range sp.AllParental() {
			dsp.Individuals = append(dsp.Individuals, dumpIndividual(ind, block, seenMutations, d))
		}
		d.Subpopulations = append(d.Subpopulations, dsp)
	}

	sort.Slice(d.Mutations, func(i, j int) bool { return d.Mutations[i].ID < d.Mutations[j].ID })
	return d
}

func dumpIndividual(ind *genome.Individual, block *mutation.Block, seen map[uint64]bool, d *Dump) DumpIndividual {
	di := DumpIndividual{
		PedigreeID:  ind.PedigreeID,
		Age:         ind.Age,
		Sex:         ind.Sex,
		Coordinates: ind.Coordinates,
		SpatialDims: ind.SpatialDims,
		Fitness:     ind.Fitness,
		Genome1Null: ind.Genome1.NullGenome,
		Genome2Null: ind.Genome2.NullGenome,
	}
	di.Genome1MutationIDs = dumpGenomeMutationIDs(ind.Genome1, block, seen, d)
	di.Genome2MutationIDs = dumpGenomeMutationIDs(ind.Genome2, block, seen, d)
	return di
}

func dumpGenomeMutationIDs(g *genome.Genome, block *mutation.Block, seen map[uint64]bool, d *Dump) []uint64 {
	var ids []uint64
	for i := 0; i < g.MutrunCount(); i++ {
		run := g.RunAt(i)
		for j := 0; j < run.Len(); j++ {
			idx := run.At(j)
			m := block.At(idx)
			ids = append(ids, m.ID)
			if !seen[m.ID] {
				seen[m.ID] = true
				dom := 0.0
				stacking := mutation.StackKeepBoth
				typeID := int32(0)
				if m.Type != nil {
					dom = m.Type.DominanceCoeff
					stacking = m.Type.Stacking
					typeID = m.Type.ID
				}
				d.Mutations = append(d.Mutations, DumpMutation{
					ID:               m.ID,
					Position:         m.Position,
					SelectionCoeff:   m.SelectionCoeff,
					TypeID:           typeID,
					DominanceCoeff:   dom,
					Stacking:         stacking,
					OriginSubpopID:   m.OriginSubpopID,
					OriginGeneration: m.OriginGeneration,
					Nucleotide:       m.Nucleotide,
				})
			}
		}
	}
	return ids
}

// ApplyDump reconstructs a Population from a Dump into block/pool, using chrom's
// mutrun geometry for newly created genomes. Mutation ids are restored exactly via
// mutation.Block.AllocateWithID, satisfying round-trip law 8 ("same set of
// mutations by id").
func ApplyDump(d *Dump, block *mutation.Block, pool *mutrun.Pool, chrom *chromosome.Chromosome) (*population.Population, error) {
	if d.ChromosomeLength != chrom.Length {
		return nil, fmt.Errorf("fileio: dump chromosome length %d does not match configured length %d", d.ChromosomeLength, chrom.Length)
	}

	types := make(map[int32]*mutation.Type)
	idToIndex := make(map[uint64]mutation.Index, len(d.Mutations))
	// positionOf/typeIDOf are resolved from the dump directly rather than via
	// block.At, because a freshly allocated index carries a zero refcount until
	// something actually inserts it into a run (mutation.Block.At panics on a
	// zero-refcount index as a use-after-free guard) — the insertion below is
	// exactly the first such reference.
	positionOf := make(map[mutation.Index]int64, len(d.Mutations))
	typeIDOf := make(map[mutation.Index]int32, len(d.Mutations))
	for _, dm := range d.Mutations {
		t, ok := types[dm.TypeID]
		if !ok {
			t = &mutation.Type{ID: dm.TypeID, DominanceCoeff: dm.DominanceCoeff, Stacking: dm.Stacking}
			types[dm.TypeID] = t
		}
		idx := block.AllocateWithID(mutation.Mutation{
			Type:             t,
			Position:         dm.Position,
			SelectionCoeff:   dm.SelectionCoeff,
			OriginSubpopID:   dm.OriginSubpopID,
			OriginGeneration: dm.OriginGeneration,
			Nucleotide:       dm.Nucleotide,
		}, dm.ID)
		idToIndex[dm.ID] = idx
		positionOf[idx] = dm.Position
		typeIDOf[idx] = dm.TypeID
	}

	pop := population.New(block, pool)
	for _, dsp := range d.Subpopulations {
		sp := subpop.New(dsp.ID, pool)
		individuals := make([]*genome.Individual, len(dsp.Individuals))
		for i, di := range dsp.Individuals {
			g1 := genome.New(uint64(di.PedigreeID)*2, genome.TypeAutosome, dsp.ID, chrom.MutrunCount, pool)
			g2 := genome.New(uint64(di.PedigreeID)*2+1, genome.TypeAutosome, dsp.ID, chrom.MutrunCount, pool)
			g1.NullGenome = di.Genome1Null
			g2.NullGenome = di.Genome2Null
			if err := loadGenomeMutations(g1, di.Genome1MutationIDs, idToIndex, positionOf, typeIDOf, block, chrom); err != nil {
				return nil, err
			}
			if err := loadGenomeMutations(g2, di.Genome2MutationIDs, idToIndex, positionOf, typeIDOf, block, chrom); err != nil {
				return nil, err
			}
			ind := genome.NewIndividual(di.PedigreeID, g1, g2)
			ind.Age = di.Age
			ind.Sex = di.Sex
			ind.Coordinates = di.Coordinates
			ind.SpatialDims = di.SpatialDims
			ind.Fitness = di.Fitness
			individuals[i] = ind

			for _, id := range di.Genome1MutationIDs {
				pop.Registry().Track(idToIndex[id])
			}
			for _, id := range di.Genome2MutationIDs {
				pop.Registry().Track(idToIndex[id])
			}
		}
		sp.SetParental(individuals)
		pop.AddSubpopulation(sp)
	}
	return pop, nil
}

func loadGenomeMutations(g *genome.Genome, ids []uint64, idToIndex map[uint64]mutation.Index, positionOf map[mutation.Index]int64, typeIDOf map[mutation.Index]int32, block *mutation.Block, chrom *chromosome.Chromosome) error {
	groupOf := func(i mutation.Index) int32 { return typeIDOf[i] }
	for _, id := range ids {
		idx, ok := idToIndex[id]
		if !ok {
			return fmt.Errorf("fileio: genome references unknown mutation id %d", id)
		}
		seg := chrom.SegmentOf(positionOf[idx])
		run := g.WillModifyAt(block, seg)
		run.InsertSorted(block, idx, groupOf)
	}
	return nil
}

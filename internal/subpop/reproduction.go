package subpop

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/MesserLab/slimgo/internal/chromosome"
	"github.com/MesserLab/slimgo/internal/genome"
	"github.com/MesserLab/slimgo/internal/mutation"
	"github.com/MesserLab/slimgo/internal/mutrun"
)

// RandSource is the RNG external-collaborator contract reproduction needs: uniform
// draws, bounded integers, and Poisson counts for recombination breakpoints and new
// mutation counts.
type RandSource interface {
	Float64() float64
	Intn(n int) int
	Poisson(mean float64) int
}

// ModifyChildCallback is the scripting collaborator's hook for a modifyChild()
// callback: given the newly built child and its two parents, it may reject the
// child (return false, meaning "try again") or accept it, possibly after mutating
// it in place. A nil callback means no such callback is registered.
type ModifyChildCallback func(child *genome.Individual, parent1, parent2 *genome.Individual) bool

// NewMutationDraw describes one mutation to be generated during reproduction: its
// chromosome position and the mutation type it should take, resolved externally
// (the distribution-of-fitness-effects sampling is a scripting/fitness concern).
type NewMutationDraw struct {
	Position int64
	Type     *mutation.Type
	Coeff    float64
}

// MutationSource draws the new mutations that arise on one gamete during a single
// reproduction event, given the expected count; the scripting/fitness collaborators
// decide per-type rates and effect-size distributions upstream of this contract.
type MutationSource interface {
	DrawMutations(rng RandSource, expectedCount float64) []NewMutationDraw
}

// Reproducer generates offspring genomes by recombination and mutation against a
// shared chromosome geometry and mutation block, grounded on fitness-evaluator.go's
// bounded-worker-pool battle generator (here, "battles" are offspring constructions
// instead of detector battles).
type Reproducer struct {
	Chromosome *chromosome.Chromosome
	Block      *mutation.Block
	Pool       *mutrun.Pool
	Mutations  MutationSource

	idMu         sync.Mutex
	nextGenomeID uint64
	nextPedigree int64
}

// NewReproducer constructs a Reproducer over a fixed chromosome/block/pool, with
// genome and pedigree ids starting from the given high-water marks (so file-loaded
// populations continue numbering rather than restarting at zero).
func NewReproducer(chrom *chromosome.Chromosome, block *mutation.Block, pool *mutrun.Pool, mutations MutationSource, nextGenomeID uint64, nextPedigree int64) *Reproducer {
	return &Reproducer{
		Chromosome:   chrom,
		Block:        block,
		Pool:         pool,
		Mutations:    mutations,
		nextGenomeID: nextGenomeID,
		nextPedigree: nextPedigree,
	}
}

// buildGamete constructs a single gamete genome: it walks the chromosome's mutrun
// segments, for each segment choosing which parental genome's run contributes
// (alternating at each crossover breakpoint), then inserts freshly drawn mutations.
func (r *Reproducer) buildGamete(rnd RandSource, g1, g2 *genome.Genome, genomeID uint64, subpopID int32, typ genome.Type) (*genome.Genome, error) {
	mutrunCount := r.Chromosome.MutrunCount
	out := genome.New(genomeID, typ, subpopID, mutrunCount, r.Pool)

	expectedBreakpoints := r.Chromosome.RecombinationRateAt(0, chromosome.SexCombined) * float64(r.Chromosome.Length)
	breakpointCount := rnd.Poisson(expectedBreakpoints)
	breakpoints := make([]int64, breakpointCount)
	for i := range breakpoints {
		breakpoints[i] = int64(rnd.Float64() * float64(r.Chromosome.Length))
	}
	sort.Slice(breakpoints, func(i, j int) bool { return breakpoints[i] < breakpoints[j] })

	current, other := g1, g2
	bpIdx := 0
	for seg := 0; seg < mutrunCount; seg++ {
		segStart := int64(seg) * r.Chromosome.MutrunLength
		segEnd := segStart + r.Chromosome.MutrunLength
		for bpIdx < len(breakpoints) && breakpoints[bpIdx] < segEnd && breakpoints[bpIdx] >= segStart {
			current, other = other, current
			bpIdx++
		}
		src := current.RunAt(seg)
		discarded := out.RunAt(seg) // the empty run genome.New took from pool.Get()
		if rc := out.SetRunAt(seg, src); rc == 0 {
			r.Pool.Put(r.Block, discarded)
		}
		_ = other
	}

	expectedMutations := r.Chromosome.MutationRateAt(0, chromosome.SexCombined) * float64(r.Chromosome.Length)
	if r.Mutations != nil {
		for _, draw := range r.Mutations.DrawMutations(rnd, expectedMutations) {
			seg := r.Chromosome.SegmentOf(draw.Position)
			run := out.WillModifyAt(r.Block, seg)
			idx := r.Block.Allocate(mutation.Mutation{
				Type:           draw.Type,
				Position:       draw.Position,
				SelectionCoeff: draw.Coeff,
				OriginSubpopID: subpopID,
			})
			groupOf := func(mutation.Index) int32 { return 0 }
			run.InsertSorted(r.Block, idx, groupOf)
		}
	}

	return out, nil
}

// GenerateOffspring builds offspringCount new individuals into dst's child buffer by
// drawing parents from src (selfing/cloning fractions and migration are resolved by
// the caller supplying parent indices; this function performs the mechanical
// recombination+mutation work in a bounded errgroup fan-out since each offspring's
// construction is independent).
func (r *Reproducer) GenerateOffspring(ctx context.Context, dst *Subpopulation, src *Subpopulation, offspringCount int, rnd RandSource, maxWorkers int) error {
	if src.Size() == 0 {
		return fmt.Errorf("subpop %d: cannot reproduce from an empty source subpopulation", src.ID)
	}
	if maxWorkers <= 0 {
		maxWorkers = 1
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxWorkers)

	for i := 0; i < offspringCount; i++ {
		select {
		case <-gctx.Done():
			break
		default:
		}
		g.Go(func() error {
			p1 := src.Parental(rnd.Intn(src.Size()))
			p2 := p1
			if rnd.Float64() >= dst.SelfingFraction {
				p2 = src.Parental(rnd.Intn(src.Size()))
			}

			gid1 := r.allocGenomeID()
			gid2 := r.allocGenomeID()
			gamete1, err := r.buildGamete(rnd, p1.Genome1, p1.Genome2, gid1, dst.ID, genome.TypeAutosome)
			if err != nil {
				return err
			}
			gamete2, err := r.buildGamete(rnd, p2.Genome1, p2.Genome2, gid2, dst.ID, genome.TypeAutosome)
			if err != nil {
				return err
			}

			child := genome.NewIndividual(r.allocPedigreeID(), gamete1, gamete2)
			dst.AppendChild(child)
			return nil
		})
	}

	return g.Wait()
}

func (r *Reproducer) allocGenomeID() uint64 {
	r.idMu.Lock()
	defer r.idMu.Unlock()
	r.nextGenomeID++
	return r.nextGenomeID
}

func (r *Reproducer) allocPedigreeID() int64 {
	r.idMu.Lock()
	defer r.idMu.Unlock()
	r.nextPedigree++
	return r.nextPedigree
}

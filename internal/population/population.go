// Package population implements Population: the set of subpopulations, the
// mutation registry, the substitution list, and the frequency tallier, per spec §3
// ("Population") and §4 (registry sweep, fix-to-substitution).
package population

import (
	"sort"
	"sync"

	"github.com/MesserLab/slimgo/internal/mutation"
	"github.com/MesserLab/slimgo/internal/mutrun"
	"github.com/MesserLab/slimgo/internal/subpop"
)

// Population owns the set of live subpopulations, the process-wide mutation
// registry, and the substitution list, per spec §3's ownership summary ("The
// population owns subpopulations, the mutation registry, and the substitution
// list").
type Population struct {
	Block *mutation.Block
	Pool  *mutrun.Pool

	mu         sync.RWMutex
	subpops    map[int32]*subpop.Subpopulation
	order      []int32 // insertion order, for deterministic iteration
	registry   *Registry
	substitutions *SubstitutionList
}

// New creates an empty Population over the given mutation block and run pool.
func New(block *mutation.Block, pool *mutrun.Pool) *Population {
	return &Population{
		Block:         block,
		Pool:          pool,
		subpops:       make(map[int32]*subpop.Subpopulation),
		registry:      NewRegistry(),
		substitutions: NewSubstitutionList(),
	}
}

// AddSubpopulation registers sp under its id.
func (p *Population) AddSubpopulation(sp *subpop.Subpopulation) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, exists := p.subpops[sp.ID]; !exists {
		p.order = append(p.order, sp.ID)
	}
	p.subpops[sp.ID] = sp
}

// RemoveSubpopulation removes a subpopulation by id (extinction).
func (p *Population) RemoveSubpopulation(id int32) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.subpops, id)
	for i, sid := range p.order {
		if sid == id {
			p.order = append(p.order[:i], p.order[i+1:]...)
			break
		}
	}
}

// Subpopulation returns the subpopulation with the given id, or nil.
func (p *Population) Subpopulation(id int32) *subpop.Subpopulation {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.subpops[id]
}

// Subpopulations returns all live subpopulations in insertion order.
func (p *Population) Subpopulations() []*subpop.Subpopulation {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]*subpop.Subpopulation, 0, len(p.order))
	for _, id := range p.order {
		out = append(out, p.subpops[id])
	}
	return out
}

// SubpopulationCount reports the number of live subpopulations; a WF model with
// zero subpopulations is valid (boundary behavior 11) and simply has no offspring
// stages to run.
func (p *Population) SubpopulationCount() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.order)
}

// Registry returns the mutation registry (reference-count tally).
func (p *Population) Registry() *Registry { return p.registry }

// Substitutions returns the substitution list.
func (p *Population) Substitutions() *SubstitutionList { return p.substitutions }

// NonNullGenomeCount sums the number of non-null genomes across every subpopulation,
// the denominator for fixation frequency (spec: "frequency 1 in every non-null
// genome").
func (p *Population) NonNullGenomeCount() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	total := 0
	for _, id := range p.order {
		sp := p.subpops[id]
		for i := 0; i < sp.Size(); i++ {
			ind := sp.Parental(i)
			if !ind.Genome1.NullGenome {
				total++
			}
			if !ind.Genome2.NullGenome {
				total++
			}
		}
	}
	return total
}

// SweepFixedMutations implements the registry sweep of spec §4.4 stage 3: for every
// tracked mutation index whose refcount equals the non-null genome count, remove it
// from every mutation run and fix it into a Substitution (if its type converts to
// one) or simply discard it.
func (p *Population) SweepFixedMutations(generation int64) []mutation.Index {
	nonNull := p.NonNullGenomeCount()
	if nonNull == 0 {
		return nil
	}

	var fixed []mutation.Index
	for _, idx := range p.registry.TrackedIndices() {
		if int(p.Block.Refcount(idx)) != nonNull {
			continue
		}
		fixed = append(fixed, idx)
	}
	sort.Slice(fixed, func(i, j int) bool { return fixed[i] < fixed[j] })

	for _, idx := range fixed {
		m := p.Block.At(idx)
		p.removeFromAllRuns(idx)
		if m.Type != nil && m.Type.ConvertsToSubstitution {
			p.substitutions.Add(Substitution{
				MutationID: m.ID,
				Position:   m.Position,
				Type:       m.Type,
				FixedAt:    generation,
			})
		}
		p.registry.Untrack(idx)
	}
	return fixed
}

func (p *Population) removeFromAllRuns(idx mutation.Index) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	for _, id := range p.order {
		sp := p.subpops[id]
		for i := 0; i < sp.Size(); i++ {
			ind := sp.Parental(i)
			removeFromGenome(ind.Genome1, p.Block, idx)
			removeFromGenome(ind.Genome2, p.Block, idx)
		}
	}
}

// removeFromGenome scans every segment of g for idx and removes it. Population
// does not hold chromosome geometry itself, so it cannot resolve idx's segment
// directly; this is correct but not optimal, which is acceptable since fixation is
// rare and concentrated late in a run.
func removeFromGenome(g interface {
	MutrunCount() int
	WillModifyAt(*mutation.Block, int) *mutrun.Run
}, block *mutation.Block, idx mutation.Index) {
	for seg := 0; seg < g.MutrunCount(); seg++ {
		run := g.WillModifyAt(block, seg)
		run.RemoveValue(block, idx)
	}
}

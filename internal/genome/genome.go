// Package genome implements Genome and Individual, per spec §3. A Genome is a
// fixed-length array of shared mutation-run handles; an Individual pairs two
// genomes plus the attributes spec §3 lists (age, sex, spatial position, pedigree
// id, migrant flag, fitness, tags).
package genome

import (
	"sort"

	"github.com/MesserLab/slimgo/internal/mutation"
	"github.com/MesserLab/slimgo/internal/mutrun"
)

// Type distinguishes autosome from sex chromosomes.
type Type int

const (
	TypeAutosome Type = iota
	TypeX
	TypeY
)

// Genome is a fixed-length array of shared mutation-run handles, one per chromosome
// segment. Invariant: a null genome (NullGenome true) contains zero mutations in
// every run it holds.
type Genome struct {
	Type       Type
	NullGenome bool
	SubpopID   int32
	TskNodeID  int64
	ID         uint64

	runs []*mutrun.Run
}

// New creates a Genome with mutrunCount empty runs, each retained once by this
// genome's handle array.
func New(id uint64, typ Type, subpopID int32, mutrunCount int, pool *mutrun.Pool) *Genome {
	runs := make([]*mutrun.Run, mutrunCount)
	for i := range runs {
		runs[i] = pool.Get()
	}
	return &Genome{Type: typ, SubpopID: subpopID, ID: id, runs: runs}
}

// MutrunCount reports the number of segment handles this genome holds.
func (g *Genome) MutrunCount() int { return len(g.runs) }

// RunAt returns the run handle at segment index i.
func (g *Genome) RunAt(i int) *mutrun.Run { return g.runs[i] }

// SetRunAt installs a new run handle at segment index i, retaining the new run and
// releasing the old one. Returns the old run's post-release refcount so the caller
// (which owns the pool) can return it to the free-list at zero.
func (g *Genome) SetRunAt(i int, r *mutrun.Run) int32 {
	old := g.runs[i]
	r.Retain()
	g.runs[i] = r
	return old.Release()
}

// WillModifyAt returns a handle at segment i safe to mutate in place, replacing the
// stored handle with the (possibly cloned) result.
func (g *Genome) WillModifyAt(block *mutation.Block, i int) *mutrun.Run {
	modified := g.runs[i].WillModify(block)
	g.runs[i] = modified
	return modified
}

// Resize replaces the genome's entire run-handle array, used when the Mutation Run
// Experimenter changes mutrun_count and every genome's segments must be re-split or
// re-joined (spec §4.2). newRuns must already carry their own retain from the
// caller; every run this genome previously held is released here, returning any run
// that reaches refcount zero to pool.
func (g *Genome) Resize(block *mutation.Block, newRuns []*mutrun.Run, pool *mutrun.Pool) {
	old := g.runs
	g.runs = newRuns
	for _, r := range old {
		if r.Release() == 0 {
			pool.Put(block, r)
		}
	}
}

// MutationCount sums the length of every run handle; for a null genome this must be
// zero (spec invariant on Genome).
func (g *Genome) MutationCount() int {
	total := 0
	for _, r := range g.runs {
		total += r.Len()
	}
	return total
}

// Release drops this genome's reference on every run it holds, returning any run
// that reaches refcount zero to pool, called at destruction (generation swap in WF,
// viability selection in nonWF).
func (g *Genome) Release(block *mutation.Block, pool *mutrun.Pool) {
	for _, r := range g.runs {
		if r.Release() == 0 {
			pool.Put(block, r)
		}
	}
}

// Individual pairs two genomes and carries the per-individual attributes spec §3
// names: optional age (nonWF only), sex, spatial coordinates, pedigree id, migrant
// flag, fitness, and an arbitrary tag dictionary.
type Individual struct {
	PedigreeID int64
	Genome1    *Genome
	Genome2    *Genome

	Age         int32 // -1 when not applicable (WF models)
	Sex         Sex
	Coordinates [3]float64
	SpatialDims int

	MigrantFlag bool
	Fitness     float64

	tags map[string]any
}

// Sex enumerates an individual's sex, relevant only when the model has separate sexes.
type Sex int

const (
	SexHermaphrodite Sex = iota
	SexMale
	SexFemale
)

// NewIndividual constructs an Individual from a pedigree id and its two genomes.
// Genome ids are 2*pedigreeID and 2*pedigreeID+1, per the GLOSSARY's "Pedigree id"
// entry.
func NewIndividual(pedigreeID int64, g1, g2 *Genome) *Individual {
	return &Individual{PedigreeID: pedigreeID, Genome1: g1, Genome2: g2, Age: -1}
}

// SetTagValue sets key to value in the individual's tag dictionary, grounded on
// eidos_class_Dictionary.cpp's SetKeyValue (sorted-key map, last write wins).
func (ind *Individual) SetTagValue(key string, value any) {
	if ind.tags == nil {
		ind.tags = make(map[string]any)
	}
	ind.tags[key] = value
}

// GetTagValue returns the value for key and whether it was present, grounded on
// eidos_class_Dictionary.cpp's GetValueForKey.
func (ind *Individual) GetTagValue(key string) (any, bool) {
	v, ok := ind.tags[key]
	return v, ok
}

// TagValueKeys returns the dictionary's keys in sorted order, matching
// eidos_class_Dictionary's SortedKeys() contract so serialization is deterministic.
func (ind *Individual) TagValueKeys() []string {
	keys := make([]string, 0, len(ind.tags))
	for k := range ind.tags {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Release destroys the individual's two genomes, returning their run handles to pool.
func (ind *Individual) Release(block *mutation.Block, pool *mutrun.Pool) {
	ind.Genome1.Release(block, pool)
	ind.Genome2.Release(block, pool)
}

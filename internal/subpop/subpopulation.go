// Package subpop implements Subpopulation: the parental/child individual buffers,
// fitness caches, and selfing/cloning/migration parameters per spec §3.
package subpop

import (
	"fmt"
	"sync"

	"github.com/MesserLab/slimgo/internal/genome"
	"github.com/MesserLab/slimgo/internal/mutation"
	"github.com/MesserLab/slimgo/internal/mutrun"
)

// SpatialBounds describes the subpopulation's spatial extent, up to 3 dimensions;
// a dimension with Min == Max is treated as unused.
type SpatialBounds struct {
	Dims       int
	Min, Max   [3]float64
	Periodic   [3]bool
}

// Subpopulation holds a population's parental individuals and, in WF models, the
// child buffer swapped in at stage end, plus the per-subpop life-cycle parameters
// spec §3 lists.
type Subpopulation struct {
	ID int32

	// Pool is the shared mutation-run free-list; released genomes return their
	// runs here rather than leaking them.
	Pool *mutrun.Pool

	SexRatio        float64 // fraction male, for models with separate sexes
	SelfingFraction float64
	CloningFraction float64

	// MigrationRates maps source subpop id -> fraction of this subpop's offspring
	// drawn from that source each generation ("incoming migration-rate map").
	MigrationRates map[int32]float64

	Bounds SpatialBounds

	// SpatialMaps holds named per-subpop spatial map dictionaries (e.g. a fitness
	// modifier surface keyed by coordinate), opaque beyond their name here; the
	// scripting collaborator interprets their contents.
	SpatialMaps map[string]SpatialMap

	mu sync.RWMutex

	parental           []*genome.Individual
	children           []*genome.Individual
	parentFitnessCache []float64
	childFitnessCache  []float64
}

// SpatialMap is a named grid of float64 values over the subpopulation's bounds.
type SpatialMap struct {
	Name   string
	Values []float64
	Width  int
	Height int
}

// New creates an empty subpopulation with the given id, releasing destroyed
// genomes' runs back to pool.
func New(id int32, pool *mutrun.Pool) *Subpopulation {
	return &Subpopulation{
		ID:             id,
		Pool:           pool,
		MigrationRates: make(map[int32]float64),
		SpatialMaps:    make(map[string]SpatialMap),
	}
}

// Size reports the number of parental individuals currently alive.
func (s *Subpopulation) Size() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.parental)
}

// Parental returns the live parental individual at index i.
func (s *Subpopulation) Parental(i int) *genome.Individual {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.parental[i]
}

// AllParental returns the parental slice; callers must not retain it across a
// generation swap.
func (s *Subpopulation) AllParental() []*genome.Individual {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.parental
}

// SetParental replaces the parental buffer wholesale, used at subpopulation
// creation and file-load.
func (s *Subpopulation) SetParental(individuals []*genome.Individual) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.parental = individuals
	s.parentFitnessCache = make([]float64, len(individuals))
}

// AppendChild adds an individual to the child buffer during offspring generation
// (WF "stage 2" per spec §4.4).
func (s *Subpopulation) AppendChild(ind *genome.Individual) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.children = append(s.children, ind)
}

// ChildCount reports how many offspring have been generated into the child buffer
// so far this cycle.
func (s *Subpopulation) ChildCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.children)
}

// SwapGenerations replaces the parental buffer with the child buffer and releases
// the old parental individuals' genomes, per spec §4.4 stage 2 ("swap
// parental/child buffers; clear parental mutation runs").
func (s *Subpopulation) SwapGenerations(block *mutation.Block) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, ind := range s.parental {
		ind.Release(block, s.Pool)
	}
	s.parental = s.children
	s.children = nil
	s.parentFitnessCache = make([]float64, len(s.parental))
}

// MergeChildrenIntoParental appends the child buffer onto the parental buffer and
// clears it, used by nonWF reproduction (spec §4.4 nonWF stage 1: "merge offspring
// into parental vectors"). Unlike SwapGenerations, existing parental individuals are
// kept rather than released: nonWF generations coexist with their offspring until
// viability selection removes them.
func (s *Subpopulation) MergeChildrenIntoParental() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.parental = append(s.parental, s.children...)
	for range s.children {
		s.parentFitnessCache = append(s.parentFitnessCache, 0)
	}
	s.children = nil
}

// AddIndividual appends ind to the parental buffer directly, used by nonWF
// reproduction (no generation-wide buffer swap).
func (s *Subpopulation) AddIndividual(ind *genome.Individual) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.parental = append(s.parental, ind)
	s.parentFitnessCache = append(s.parentFitnessCache, 0)
}

// RemoveIndividualAt removes and releases the parental individual at index i,
// used by nonWF viability selection.
func (s *Subpopulation) RemoveIndividualAt(block *mutation.Block, i int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if i < 0 || i >= len(s.parental) {
		return fmt.Errorf("subpop %d: index %d out of range [0,%d)", s.ID, i, len(s.parental))
	}
	s.parental[i].Release(block, s.Pool)
	s.parental = append(s.parental[:i], s.parental[i+1:]...)
	s.parentFitnessCache = append(s.parentFitnessCache[:i], s.parentFitnessCache[i+1:]...)
	return nil
}

// IncrementAges adds one to every parental individual's Age, used by nonWF stage 7
// ("advance counter; increment ages"). A no-op for individuals with Age == -1
// (the WF convention for "not applicable"), though nonWF subpopulations should not
// contain any.
func (s *Subpopulation) IncrementAges() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, ind := range s.parental {
		if ind.Age >= 0 {
			ind.Age++
		}
	}
}

// ClearMigrantFlags resets every parental individual's MigrantFlag, used by nonWF
// stage 1 ("clear migrant flags and frequency cache") after offspring are merged in.
func (s *Subpopulation) ClearMigrantFlags() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, ind := range s.parental {
		ind.MigrantFlag = false
	}
}

// SetFitness records the cached fitness value for the parental individual at index i.
func (s *Subpopulation) SetFitness(i int, fitness float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.parental[i].Fitness = fitness
	s.parentFitnessCache[i] = fitness
}

// FitnessCache returns a copy of the current parental fitness cache.
func (s *Subpopulation) FitnessCache() []float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]float64, len(s.parentFitnessCache))
	copy(out, s.parentFitnessCache)
	return out
}

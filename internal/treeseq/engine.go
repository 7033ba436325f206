package treeseq

import (
	"fmt"

	"github.com/MesserLab/slimgo/internal/genome"
	"github.com/MesserLab/slimgo/internal/mutation"
	"github.com/MesserLab/slimgo/internal/population"
	"github.com/MesserLab/slimgo/internal/telemetry"
)

// CrossCheckInterval is the generation cadence the simulator's -TSXC flag enables
// periodic cross-checks at, per spec §4.5.
const CrossCheckInterval = 50

// Engine wires a Recorder and an AutoSimplifier against a live Population, and
// implements internal/cycle's TreeSeqRecorder interface so the generation-cycle
// driver can maintain tree-sequence tables without importing this package
// directly, grounded on the teacher's thin-adapter-over-engine driver shape
// (evolution_server.go's EvolutionServer wrapping a SimplePopulationManager).
type Engine struct {
	Recorder   *Recorder
	Simplifier *AutoSimplifier
	Population *population.Population
	Block      *mutation.Block
	CrossCheck bool
	generation int64
}

// NewEngine creates an Engine over pop, auto-simplifying per simplifier and
// cross-checking every CrossCheckInterval generations when debugCrossCheck is set.
func NewEngine(pop *population.Population, block *mutation.Block, simplifier *AutoSimplifier, debugCrossCheck bool) *Engine {
	return &Engine{
		Recorder:   NewRecorder(),
		Simplifier: simplifier,
		Population: pop,
		Block:      block,
		CrossCheck: debugCrossCheck,
	}
}

// AdvanceGeneration implements cycle.TreeSeqRecorder.
func (e *Engine) AdvanceGeneration(gen int64) {
	e.generation = gen
	e.Recorder.AdvanceGeneration(gen)
}

// liveGenomes collects every genome currently alive across every subpopulation's
// parental buffer, the set that must survive any simplification pass.
func (e *Engine) liveGenomes() []*genome.Genome {
	var genomes []*genome.Genome
	for _, sp := range e.Population.Subpopulations() {
		for i := 0; i < sp.Size(); i++ {
			ind := sp.Parental(i)
			genomes = append(genomes, ind.Genome1, ind.Genome2)
		}
	}
	return genomes
}

// MaybeSimplify implements cycle.TreeSeqRecorder: runs Simplify when the
// AutoSimplifier's cadence says it's due, then updates every live genome's
// TskNodeID from the returned id map.
func (e *Engine) MaybeSimplify(gen int64) error {
	if e.Simplifier == nil || !e.Simplifier.ShouldSimplify(gen) {
		return nil
	}
	genomes := e.liveGenomes()
	extantNodeIDs := make([]int64, len(genomes))
	for i, g := range genomes {
		extantNodeIDs[i] = g.TskNodeID
	}

	oldSize := e.Recorder.Tables.RowCounts()
	result := e.Recorder.Simplify(extantNodeIDs)
	newSize := e.Recorder.Tables.RowCounts()
	e.Simplifier.RecordSimplification(gen, oldSize, newSize)
	telemetry.SimplifyInterval.Set(e.Simplifier.interval)
	tables := e.Recorder.Tables
	telemetry.TreeSeqTableRows.WithLabelValues("nodes").Set(float64(len(tables.Nodes)))
	telemetry.TreeSeqTableRows.WithLabelValues("edges").Set(float64(len(tables.Edges)))
	telemetry.TreeSeqTableRows.WithLabelValues("sites").Set(float64(len(tables.Sites)))
	telemetry.TreeSeqTableRows.WithLabelValues("mutations").Set(float64(len(tables.Mutations)))
	telemetry.TreeSeqTableRows.WithLabelValues("individuals").Set(float64(len(tables.Individuals)))
	telemetry.TreeSeqTableRows.WithLabelValues("populations").Set(float64(len(tables.Populations)))

	for _, g := range genomes {
		if newID := result.NewID(g.TskNodeID); newID != -1 {
			g.TskNodeID = newID
		}
	}
	return nil
}

// MaybeCrossCheck implements cycle.TreeSeqRecorder: runs the debug cross-check
// every CrossCheckInterval generations when enabled.
func (e *Engine) MaybeCrossCheck(gen int64) error {
	if !e.CrossCheck || gen%CrossCheckInterval != 0 {
		return nil
	}
	if err := e.Recorder.CrossCheck(e.liveGenomes(), e.Block); err != nil {
		return fmt.Errorf("tree-sequence cross-check failed at generation %d: %w", gen, err)
	}
	return nil
}

// IsCoalesced reports whether the tree sequence recorded so far has coalesced to
// a single common ancestor across every live genome.
func (e *Engine) IsCoalesced() bool {
	genomes := e.liveGenomes()
	ids := make([]int64, len(genomes))
	for i, g := range genomes {
		ids[i] = g.TskNodeID
	}
	return e.Recorder.IsCoalesced(ids)
}

// Package cycle implements the Generation Cycle Driver: the WF and nonWF
// per-generation pipelines, per spec §4.4. The driver owns no simulation logic
// itself; it sequences calls into population, subpop, script, and the
// tree-sequence recorder, exactly as the teacher's EvolutionServer in
// evolution_server.go only adapts and sequences calls into its own collaborators
// (Evaluator/Store/MutationEngine/PopulationManager).
package cycle

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/MesserLab/slimgo/internal/chromosome"
	"github.com/MesserLab/slimgo/internal/experimenter"
	"github.com/MesserLab/slimgo/internal/mutrun"
	"github.com/MesserLab/slimgo/internal/population"
	"github.com/MesserLab/slimgo/internal/script"
	"github.com/MesserLab/slimgo/internal/subpop"
	"github.com/MesserLab/slimgo/internal/telemetry"
)

// UniquenessPassInterval is the generation interval at which the driver hash-conses
// identical mutation runs across genomes, per spec §4.4 stage 3 ("every 100th
// generation run a mutation-run uniqueness pass").
const UniquenessPassInterval = 100

// EventExecutor runs a batch of matching early/late event callbacks. The scripting
// interpreter that actually evaluates callback bodies is an external collaborator
// (spec §1, §6); the driver only resolves which blocks match and hands them over.
type EventExecutor interface {
	ExecuteEvents(ctx context.Context, blocks []*script.Block) error
}

// FitnessEvaluator recomputes and caches every parental individual's fitness for a
// subpopulation, invoking fitness()/global fitness() callbacks; an external
// collaborator.
type FitnessEvaluator interface {
	RecalculateFitness(ctx context.Context, sp *subpop.Subpopulation, callbacks []*script.Block) error
}

// OffspringCounter decides how many offspring a subpopulation should produce this
// cycle. In WF models this resolves a target subpopulation size; in nonWF models it
// resolves however many reproduction() callback invocations would occur. Either way
// it is driven by user script, hence external.
type OffspringCounter interface {
	OffspringCount(sp *subpop.Subpopulation) int
}

// TreeSeqRecorder is the tree-sequence recording external collaborator contract the
// driver needs at the end of each cycle: advance its generation counter and run
// auto-simplification / periodic cross-check (spec §4.4, §4.5).
type TreeSeqRecorder interface {
	AdvanceGeneration(gen int64)
	MaybeSimplify(gen int64) error
	MaybeCrossCheck(gen int64) error
}

// Driver sequences one WF or nonWF pipeline over a shared set of collaborators.
type Driver struct {
	Population   *population.Population
	Chromosome   *chromosome.Chromosome
	Registry     *script.Registry
	Reproducer   *subpop.Reproducer
	Experimenter *experimenter.Experimenter
	Recorder     TreeSeqRecorder

	Events        EventExecutor
	Fitness       FitnessEvaluator
	OffspringSize OffspringCounter
	Rand          subpop.RandSource

	MaxWorkers int

	Generation int64

	// DebugCrossCheck runs the registry/refcount cross-check between every stage
	// (spec §4.4: "A debug build may cross-check individual/genome integrity
	// between every stage").
	DebugCrossCheck bool

	cycleStart time.Time
}

// sampleExperimenter feeds the wall-clock duration of the just-completed generation
// into the Experimenter and applies any concluded mutrun_count change. Sampled at
// the end of every cycle for both WF and nonWF models, even though spec §4.4 names
// it explicitly only under the nonWF stage list: the Experimenter subsystem (spec
// §4.2) is described generally in terms of "generation wall-time" and is not
// restricted to one demographic model.
func (d *Driver) sampleExperimenter() error {
	now := time.Now()
	if d.cycleStart.IsZero() {
		d.cycleStart = now
		return nil
	}
	elapsed := now.Sub(d.cycleStart)
	d.cycleStart = now
	telemetry.GenerationWallTime.WithLabelValues(strconv.Itoa(d.Chromosome.MutrunCount)).Observe(elapsed.Seconds())

	if _, ok := d.Experimenter.Feed(elapsed.Seconds()); !ok {
		return nil
	}
	telemetry.MutrunCount.Set(float64(d.Experimenter.CurrentMutrunCount()))
	return d.applyMutrunCountChange(d.Experimenter.CurrentMutrunCount())
}

// sweepBetweenStages performs the deferred-deregistration sweep the driver runs
// between every stage, so dispatch never observes a hole (spec §4.4), and
// optionally the debug cross-check.
func (d *Driver) sweepBetweenStages() {
	d.Registry.SweepPendingRemovals()
	if d.DebugCrossCheck {
		d.Population.Registry().CrossCheckRefcounts(d.Population.Block)
	}
}

// runEvents dispatches every matching early/late event block for the current
// generation. Early/late events are not subpopulation-scoped in this spec, unlike
// fitness and offspring-generation callbacks.
func (d *Driver) runEvents(ctx context.Context, typ script.BlockType) error {
	blocks := d.Registry.Matching(d.Generation, typ, script.FilterAny, script.FilterAny, script.FilterAny)
	if len(blocks) == 0 {
		return nil
	}
	return d.Events.ExecuteEvents(ctx, blocks)
}

// recalculateFitnessAll recomputes fitness for every subpopulation's parental
// generation, gathering both subpop-scoped fitness() callbacks and global-fitness()
// callbacks (spec §4.3's matching contract concatenates the two).
func (d *Driver) recalculateFitnessAll(ctx context.Context) error {
	for _, sp := range d.Population.Subpopulations() {
		callbacks := d.Registry.Matching(d.Generation, script.TypeFitness, script.FilterAny, script.FilterAny, sp.ID)
		global := d.Registry.Matching(d.Generation, script.TypeFitnessGlobal, script.FilterNullMutType, script.FilterAny, sp.ID)
		all := append(append([]*script.Block(nil), callbacks...), global...)
		if err := d.Fitness.RecalculateFitness(ctx, sp, all); err != nil {
			return fmt.Errorf("subpop %d: %w", sp.ID, err)
		}
	}
	return nil
}

// hasOffspringCallbacks reports whether any callback that can alter offspring
// construction (modifyChild, mateChoice, recombination, mutation) is active for the
// given subpopulation this generation, deciding the fast path vs. the
// callback-aware path per spec §4.4 stage 2.
func (d *Driver) hasOffspringCallbacks(subpopID int32) bool {
	for _, typ := range []script.BlockType{script.TypeModifyChild, script.TypeMateChoice, script.TypeRecombination, script.TypeMutation} {
		if len(d.Registry.Matching(d.Generation, typ, script.FilterAny, script.FilterAny, subpopID)) > 0 {
			return true
		}
	}
	return false
}

// uniquenessPass hash-conses structurally identical mutation runs across every
// genome in the population, run every UniquenessPassInterval generations (spec
// §4.4 stage 3). Runs are considered identical when their index sequences match
// exactly; this bumps the process-wide operation id first so every run's
// non-neutral cache is invalidated by the pass, matching spec §4.1.
func (d *Driver) uniquenessPass() {
	if d.Generation%UniquenessPassInterval != 0 {
		return
	}
	mutrun.BumpOperationID()

	seenPerSegment := make([]map[string]*mutrun.Run, d.Chromosome.MutrunCount)
	for i := range seenPerSegment {
		seenPerSegment[i] = make(map[string]*mutrun.Run)
	}

	for _, sp := range d.Population.Subpopulations() {
		for i := 0; i < sp.Size(); i++ {
			ind := sp.Parental(i)
			internGenome(ind.Genome1, seenPerSegment, d.Population.Block, d.Population.Pool)
			internGenome(ind.Genome2, seenPerSegment, d.Population.Block, d.Population.Pool)
		}
	}
}

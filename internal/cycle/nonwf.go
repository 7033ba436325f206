package cycle

import (
	"context"
	"fmt"

	"github.com/MesserLab/slimgo/internal/script"
)

// RunNonWF drives the non-Wright-Fisher pipeline from the driver's current
// generation through endGeneration inclusive, per spec §4.4's 7-stage nonWF cycle:
// reproduction first (offspring coexist with parents until viability selection),
// ages incremented once per cycle, no implicit subpopulation-size target.
func (d *Driver) RunNonWF(ctx context.Context, endGeneration int64) error {
	for d.Generation <= endGeneration {
		if err := d.nonWFCycle(ctx); err != nil {
			return fmt.Errorf("generation %d: %w", d.Generation, err)
		}
		d.Generation++
	}
	return nil
}

func (d *Driver) nonWFCycle(ctx context.Context) error {
	// Stage 1: reproduction; merge offspring into parental vectors; clear migrant
	// flags.
	if err := d.nonWFReproduce(ctx); err != nil {
		return fmt.Errorf("stage 1 (reproduction): %w", err)
	}
	d.sweepBetweenStages()

	// Stage 2: early events.
	if err := d.runEvents(ctx, script.TypeEarlyEvent); err != nil {
		return fmt.Errorf("stage 2 (early events): %w", err)
	}
	d.sweepBetweenStages()

	// Stage 3: recalculate fitness (now covering both the surviving parents and
	// the newly merged offspring).
	if err := d.recalculateFitnessAll(ctx); err != nil {
		return fmt.Errorf("stage 3 (recalculate fitness): %w", err)
	}
	d.sweepBetweenStages()

	// Stage 4: viability selection.
	if err := d.viabilitySelection(); err != nil {
		return fmt.Errorf("stage 4 (viability selection): %w", err)
	}
	d.sweepBetweenStages()

	// Stage 5: remove fixed mutations, uniqueness pass.
	d.Population.SweepFixedMutations(d.Generation)
	d.uniquenessPass()
	d.sweepBetweenStages()

	// Stage 6: late events.
	if err := d.runEvents(ctx, script.TypeLateEvent); err != nil {
		return fmt.Errorf("stage 6 (late events): %w", err)
	}
	d.sweepBetweenStages()

	// Stage 7: advance generation counter; increment ages; maintain the tree
	// sequence; sample the mutrun-count experimenter.
	d.Recorder.AdvanceGeneration(d.Generation)
	for _, sp := range d.Population.Subpopulations() {
		sp.IncrementAges()
	}
	if err := d.Recorder.MaybeSimplify(d.Generation); err != nil {
		return fmt.Errorf("stage 7 (simplify): %w", err)
	}
	if err := d.Recorder.MaybeCrossCheck(d.Generation); err != nil {
		return fmt.Errorf("stage 7 (cross-check): %w", err)
	}
	return d.sampleExperimenter()
}

// nonWFReproduce resolves each subpopulation's reproduction() callback invocations
// via OffspringSize (the scripting collaborator's external resolution of how many
// crossed/selfed/cloned offspring arise this cycle), builds them into a transient
// child buffer, then merges that buffer into the parental vector and clears migrant
// flags, per spec §4.4 nonWF stage 1.
func (d *Driver) nonWFReproduce(ctx context.Context) error {
	for _, sp := range d.Population.Subpopulations() {
		count := d.OffspringSize.OffspringCount(sp)
		if count > 0 && sp.Size() > 0 {
			if err := d.Reproducer.GenerateOffspring(ctx, sp, sp, count, d.Rand, d.MaxWorkers); err != nil {
				return fmt.Errorf("subpop %d: %w", sp.ID, err)
			}
		}
		sp.MergeChildrenIntoParental()
		sp.ClearMigrantFlags()
	}
	return nil
}

// viabilitySelection rolls each parental individual's cached fitness as its
// survival probability, removing and releasing individuals that fail the draw, per
// spec §4.4 nonWF stage 4 ("each individual's fitness becomes its survival
// probability; survivors move forward, deaths free their genomes"). Iterates in
// reverse so removal does not invalidate subsequent indices.
func (d *Driver) viabilitySelection() error {
	for _, sp := range d.Population.Subpopulations() {
		for i := sp.Size() - 1; i >= 0; i-- {
			ind := sp.Parental(i)
			if d.Rand.Float64() < ind.Fitness {
				continue
			}
			if err := sp.RemoveIndividualAt(d.Population.Block, i); err != nil {
				return err
			}
		}
	}
	return nil
}

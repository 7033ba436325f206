package cycle

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/MesserLab/slimgo/internal/genome"
	"github.com/MesserLab/slimgo/internal/mutation"
	"github.com/MesserLab/slimgo/internal/mutrun"
)

// runKey builds a content key for a run's index sequence, used to hash-cons
// structurally identical runs held by distinct *mutrun.Run objects. Runs already
// shared via the same pointer are free (refcount > 1); this pass catches the case
// where two independent runs happen to carry the same mutations, which split/join
// operations can produce when different genomes' segments diverge and later
// reconverge.
func runKey(r *mutrun.Run) string {
	var b strings.Builder
	for i := 0; i < r.Len(); i++ {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(strconv.FormatInt(int64(r.At(i)), 10))
	}
	return b.String()
}

// internGenome replaces every segment handle in g with the canonical run for its
// content, recorded in seenPerSegment, retaining the canonical run and releasing g's
// previous handle (returning it to pool if it drops to zero).
func internGenome(g *genome.Genome, seenPerSegment []map[string]*mutrun.Run, block *mutation.Block, pool *mutrun.Pool) {
	for seg := 0; seg < g.MutrunCount(); seg++ {
		r := g.RunAt(seg)
		key := runKey(r)
		canonical, ok := seenPerSegment[seg][key]
		if !ok {
			seenPerSegment[seg][key] = r
			continue
		}
		if canonical == r {
			continue
		}
		old := g.SetRunAt(seg, canonical)
		if old == 0 {
			pool.Put(block, r)
		}
	}
}

// applyMutrunCountChange resizes every genome in the population from the chromosome's
// current mutrun_count to target, which the Experimenter guarantees is always exactly
// double or half the current count (spec §4.2: each experiment step halves or doubles
// mutrun_count). It is a no-op when target equals the current count (the Experimenter
// is still running its first window, or concluded with no change).
func (d *Driver) applyMutrunCountChange(target int) error {
	current := d.Chromosome.MutrunCount
	if target == current {
		return nil
	}
	switch {
	case target == current*2:
		d.splitAllGenomes()
	case current == target*2:
		d.joinAllGenomes()
	default:
		return fmt.Errorf("(internal error) mutrun_count change from %d to %d is not a single split or join", current, target)
	}
	d.Chromosome.MutrunCount = target
	d.Chromosome.MutrunLength = d.Chromosome.Length / int64(target)
	return nil
}

// splitAllGenomes doubles every genome's segment count, splitting each existing run at
// its segment's midpoint position. A single SplitCons spans the whole pass so two
// genomes sharing the same input run get back the same two output runs.
func (d *Driver) splitAllGenomes() {
	cons := mutrun.NewSplitCons(d.Population.Pool)
	oldMutrunLength := d.Chromosome.MutrunLength
	for _, sp := range d.Population.Subpopulations() {
		for i := 0; i < sp.Size(); i++ {
			ind := sp.Parental(i)
			splitGenome(ind.Genome1, cons, d.Population.Block, oldMutrunLength, d.Population.Pool)
			splitGenome(ind.Genome2, cons, d.Population.Block, oldMutrunLength, d.Population.Pool)
		}
	}
}

func splitGenome(g *genome.Genome, cons *mutrun.SplitCons, block *mutation.Block, oldMutrunLength int64, pool *mutrun.Pool) {
	oldCount := g.MutrunCount()
	newRuns := make([]*mutrun.Run, 0, oldCount*2)
	for seg := 0; seg < oldCount; seg++ {
		r := g.RunAt(seg)
		segStart := int64(seg) * oldMutrunLength
		splitPosition := segStart + oldMutrunLength/2
		left, right := cons.Split(r, block, splitPosition)
		newRuns = append(newRuns, left, right)
	}
	g.Resize(block, newRuns, pool)
}

// joinAllGenomes halves every genome's segment count, joining adjacent run pairs. A
// single JoinCons spans the whole pass for the same hash-consing reason as split.
func (d *Driver) joinAllGenomes() {
	cons := mutrun.NewJoinCons(d.Population.Pool)
	for _, sp := range d.Population.Subpopulations() {
		for i := 0; i < sp.Size(); i++ {
			ind := sp.Parental(i)
			joinGenome(ind.Genome1, cons, d.Population.Block, d.Population.Pool)
			joinGenome(ind.Genome2, cons, d.Population.Block, d.Population.Pool)
		}
	}
}

func joinGenome(g *genome.Genome, cons *mutrun.JoinCons, block *mutation.Block, pool *mutrun.Pool) {
	oldCount := g.MutrunCount()
	newRuns := make([]*mutrun.Run, 0, oldCount/2)
	for seg := 0; seg < oldCount; seg += 2 {
		joined := cons.Join(g.RunAt(seg), g.RunAt(seg+1), block)
		newRuns = append(newRuns, joined)
	}
	g.Resize(block, newRuns, pool)
}

package treeseq

import (
	"fmt"

	"github.com/MesserLab/slimgo/internal/genome"
	"github.com/MesserLab/slimgo/internal/mutation"
)

// CrossCheck verifies, for every genome passed in, that the mutation ids it
// actually carries at each position match the ids the recorder most recently
// recorded for that genome's node at that position. Every RecordMutation call
// appends the genome's complete current mutation-id set at its position, so the
// latest row is already the allele tskit's variant iterator would compute by
// walking ancestry — this compares directly against that latest row instead of
// reimplementing the ancestry walk; see DESIGN.md for why the direct comparison
// is equivalent for this recorder's own bookkeeping, and where it would diverge
// from tskit's true semantics (a loaded, externally-modified table collection).
//
// Intended for periodic or debug use only (the simulator's -TSXC flag), since it
// scans the full mutation table once per call.
func (r *Recorder) CrossCheck(genomes []*genome.Genome, block *mutation.Block) error {
	r.mu.Lock()
	latest := make(map[[2]int64][]uint32, len(r.Tables.Mutations))
	for _, m := range r.Tables.Mutations {
		pos := int64(r.Tables.Sites[m.Site].Position)
		latest[[2]int64{m.Node, pos}] = decodeDerivedState(m.DerivedState)
	}
	r.mu.Unlock()

	for _, g := range genomes {
		actual := make(map[int64]map[uint32]bool)
		for i := 0; i < g.MutrunCount(); i++ {
			run := g.RunAt(i)
			for j := 0; j < run.Len(); j++ {
				idx := run.At(j)
				mut := block.At(idx)
				if mut == nil {
					continue
				}
				if actual[mut.Position] == nil {
					actual[mut.Position] = make(map[uint32]bool)
				}
				actual[mut.Position][uint32(idx)] = true
			}
		}

		for pos, idSet := range actual {
			recorded, ok := latest[[2]int64{g.TskNodeID, pos}]
			if !ok {
				return fmt.Errorf("(internal error) crosscheck: genome %d node %d has mutations at position %d not recorded in tree sequence", g.ID, g.TskNodeID, pos)
			}
			recordedSet := make(map[uint32]bool, len(recorded))
			for _, id := range recorded {
				recordedSet[id] = true
			}
			if len(recordedSet) != len(idSet) {
				return fmt.Errorf("(internal error) crosscheck: genome %d node %d position %d: recorded %d mutation ids, genome has %d", g.ID, g.TskNodeID, pos, len(recordedSet), len(idSet))
			}
			for id := range idSet {
				if !recordedSet[id] {
					return fmt.Errorf("(internal error) crosscheck: genome %d node %d position %d: mutation id %d present in genome but not recorded", g.ID, g.TskNodeID, pos, id)
				}
			}
		}
	}
	return nil
}

package control

import (
	"context"
	"fmt"
	"os"

	"github.com/MesserLab/slimgo/internal/chromosome"
	"github.com/MesserLab/slimgo/internal/cycle"
	"github.com/MesserLab/slimgo/internal/fileio"
	"github.com/MesserLab/slimgo/internal/mutation"
	"github.com/MesserLab/slimgo/internal/mutrun"
	"github.com/MesserLab/slimgo/internal/population"
)

// ModelType distinguishes which of cycle.Driver's two pipelines Engine.Step
// drives, since the driver itself is demographic-model-agnostic (spec §4.4
// describes WF and nonWF as two distinct 7-stage pipelines, not a flag on one).
type ModelType int

const (
	ModelWF ModelType = iota
	ModelNonWF
)

// Engine is the single collaborator the control-plane RPCs drive: everything
// needed both to advance the simulation and to dump/restore it, mirroring how
// evolution_server.go's EvolutionServer holds exactly the collaborators its RPCs
// need (Evaluator/Store/MutationEngine/PopulationManager) and nothing else.
type Engine struct {
	Driver     *cycle.Driver
	Model      ModelType
	Population *population.Population
	Block      *mutation.Block
	Chromosome *chromosome.Chromosome
	Pool       *mutrun.Pool
}

// Step advances the simulation by n generations (n must be >= 1) and returns the
// generation reached.
func (e *Engine) Step(ctx context.Context, n int64) (int64, error) {
	end := e.Driver.Generation + n - 1
	var err error
	switch e.Model {
	case ModelNonWF:
		err = e.Driver.RunNonWF(ctx, end)
	default:
		err = e.Driver.RunWF(ctx, end)
	}
	return e.Driver.Generation, err
}

// Status reports engine-wide state.
func (e *Engine) Status() StatusResponse {
	subs := e.Population.Subpopulations()
	total := 0
	for _, sp := range subs {
		total += sp.Size()
	}
	model := "WF"
	if e.Model == ModelNonWF {
		model = "nonWF"
	}
	return StatusResponse{
		Generation:         e.Driver.Generation,
		ModelType:          model,
		SubpopulationCount: len(subs),
		TotalIndividuals:   total,
		TrackedMutations:   e.Population.Registry().Len(),
		MutrunCount:        e.Chromosome.MutrunCount,
		SubstitutionCount:  e.Population.Substitutions().Len(),
	}
}

// Snapshot reports demographic state for one subpopulation, or every
// subpopulation when id is zero.
func (e *Engine) Snapshot(id int32) PopulationSnapshotResponse {
	resp := PopulationSnapshotResponse{Generation: e.Driver.Generation}
	for _, sp := range e.Population.Subpopulations() {
		if id != 0 && sp.ID != id {
			continue
		}
		resp.Subpopulations = append(resp.Subpopulations, SubpopulationSnapshot{
			ID:              sp.ID,
			ParentalSize:    sp.Size(),
			ChildCount:      sp.ChildCount(),
			SexRatio:        sp.SexRatio,
			SelfingFraction: sp.SelfingFraction,
			CloningFraction: sp.CloningFraction,
		})
	}
	return resp
}

// Save writes the engine's current state to path in the named format. Only the
// two population-dump formats (spec §4.6's SLiM text/binary) are supported here:
// the two table-collection formats serialize the tree-sequence recorder's own
// tables, a distinct checkpoint surface this RPC does not target (see DESIGN.md).
func (e *Engine) Save(path, format string) error {
	dump := fileio.BuildDump(e.Population, e.Block, e.Chromosome, e.Driver.Generation)
	switch format {
	case "slim-text":
		f, err := os.Create(path)
		if err != nil {
			return err
		}
		defer f.Close()
		return fileio.WriteText(f, dump)
	case "slim-binary":
		f, err := os.Create(path)
		if err != nil {
			return err
		}
		defer f.Close()
		return fileio.WriteBinary(f, dump)
	default:
		return fmt.Errorf("control: unsupported checkpoint format %q", format)
	}
}

// Restore replaces the engine's population with the dump read from path, in the
// named format, and resumes Driver.Generation from the loaded generation.
func (e *Engine) Restore(path, format string) (int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	var dump *fileio.Dump
	switch format {
	case "slim-text":
		dump, err = fileio.ReadText(f)
	case "slim-binary":
		dump, err = fileio.ReadBinary(f)
	default:
		err = fmt.Errorf("control: unsupported checkpoint format %q", format)
	}
	if err != nil {
		return 0, err
	}

	pop, err := fileio.ApplyDump(dump, e.Block, e.Pool, e.Chromosome)
	if err != nil {
		return 0, err
	}
	e.Population = pop
	e.Driver.Population = pop
	e.Driver.Generation = dump.Generation
	return e.Driver.Generation, nil
}

package control

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/MesserLab/slimgo/internal/chromosome"
	"github.com/MesserLab/slimgo/internal/cycle"
	"github.com/MesserLab/slimgo/internal/experimenter"
	"github.com/MesserLab/slimgo/internal/genome"
	"github.com/MesserLab/slimgo/internal/mutation"
	"github.com/MesserLab/slimgo/internal/mutrun"
	"github.com/MesserLab/slimgo/internal/population"
	"github.com/MesserLab/slimgo/internal/script"
	"github.com/MesserLab/slimgo/internal/subpop"
)

type noopEvents struct{}

func (noopEvents) ExecuteEvents(ctx context.Context, blocks []*script.Block) error { return nil }

type noopFitness struct{}

func (noopFitness) RecalculateFitness(ctx context.Context, sp *subpop.Subpopulation, callbacks []*script.Block) error {
	return nil
}

type fixedOffspring struct{ n int }

func (o fixedOffspring) OffspringCount(sp *subpop.Subpopulation) int { return o.n }

type fixedRand struct{ f float64 }

func (r fixedRand) Float64() float64         { return r.f }
func (r fixedRand) Intn(n int) int           { return 0 }
func (r fixedRand) Poisson(mean float64) int { return 0 }

type noopRecorder struct{}

func (noopRecorder) AdvanceGeneration(gen int64)     {}
func (noopRecorder) MaybeSimplify(gen int64) error   { return nil }
func (noopRecorder) MaybeCrossCheck(gen int64) error { return nil }

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	block := mutation.NewBlock()
	pool := mutrun.NewPool()
	chrom, err := chromosome.New(1024, 1)
	if err != nil {
		t.Fatalf("chromosome.New: %v", err)
	}
	pop := population.New(block, pool)
	sp := subpop.New(1, pool)
	sp.SexRatio = 0.5
	g1 := genome.New(0, genome.TypeAutosome, 1, chrom.MutrunCount, pool)
	g2 := genome.New(1, genome.TypeAutosome, 1, chrom.MutrunCount, pool)
	ind := genome.NewIndividual(0, g1, g2)
	ind.Age = -1
	ind.Fitness = 1
	sp.SetParental([]*genome.Individual{ind})
	pop.AddSubpopulation(sp)

	driver := &cycle.Driver{
		Population:    pop,
		Chromosome:    chrom,
		Registry:      script.NewRegistry(),
		Reproducer:    subpop.NewReproducer(chrom, block, pool, nil, 0, 0),
		Experimenter:  experimenter.New(1),
		Recorder:      noopRecorder{},
		Events:        noopEvents{},
		Fitness:       noopFitness{},
		OffspringSize: fixedOffspring{n: 0},
		Rand:          fixedRand{f: 0.5},
		MaxWorkers:    1,
		Generation:    1,
	}

	return &Engine{
		Driver:     driver,
		Model:      ModelWF,
		Population: pop,
		Block:      block,
		Chromosome: chrom,
		Pool:       pool,
	}
}

func TestEngineStepAdvancesGeneration(t *testing.T) {
	eng := newTestEngine(t)
	gen, err := eng.Step(context.Background(), 5)
	if err != nil {
		t.Fatalf("Step: %v", err)
	}
	if gen != 6 {
		t.Fatalf("generation = %d, want 6", gen)
	}
}

func TestServerStepRateLimited(t *testing.T) {
	eng := newTestEngine(t)
	srv := NewServer(eng, 1)
	ctx := context.Background()

	if _, err := srv.Step(ctx, &StepRequest{Generations: 1}); err != nil {
		t.Fatalf("first Step: %v", err)
	}
	if _, err := srv.Step(ctx, &StepRequest{Generations: 1}); err == nil {
		t.Fatalf("second Step: want rate-limit error, got nil")
	}
}

func TestServerGetStatusAndSnapshot(t *testing.T) {
	eng := newTestEngine(t)
	srv := NewServer(eng, 100)
	ctx := context.Background()

	status, err := srv.GetStatus(ctx, &StatusRequest{})
	if err != nil {
		t.Fatalf("GetStatus: %v", err)
	}
	if status.SubpopulationCount != 1 || status.TotalIndividuals != 1 {
		t.Fatalf("status = %+v, want 1 subpop / 1 individual", status)
	}

	snap, err := srv.GetPopulationSnapshot(ctx, &PopulationSnapshotRequest{})
	if err != nil {
		t.Fatalf("GetPopulationSnapshot: %v", err)
	}
	if len(snap.Subpopulations) != 1 || snap.Subpopulations[0].ParentalSize != 1 {
		t.Fatalf("snapshot = %+v, want one subpop of size 1", snap)
	}
}

func TestServerCheckpointSaveAndRestoreRejectsReplay(t *testing.T) {
	eng := newTestEngine(t)
	srv := NewServer(eng, 100)
	ctx := context.Background()

	path := filepath.Join(t.TempDir(), "dump.txt")
	if _, err := srv.Checkpoint(ctx, &CheckpointRequest{Mode: CheckpointSave, Path: path, Format: "slim-text"}); err != nil {
		t.Fatalf("checkpoint save: %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("dump file missing: %v", err)
	}

	restoreReq := &CheckpointRequest{Mode: CheckpointRestore, Path: path, Format: "slim-text", Nonce: "n1"}
	if _, err := srv.Checkpoint(ctx, restoreReq); err != nil {
		t.Fatalf("checkpoint restore: %v", err)
	}
	if _, err := srv.Checkpoint(ctx, restoreReq); err == nil {
		t.Fatalf("replayed restore: want error, got nil")
	}
}

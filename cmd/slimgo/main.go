// Command slimgo runs a forward-time population genetic simulation, per
// spec.md §6's CLI surface: the script file is the first non-flag argument,
// -seed overrides the RNG seed. Tree-sequence recording is always on; -TSXC adds
// a crosscheck every 50 generations and replaces ratio-mode auto-simplification
// with a fixed 50-generation interval. -M and -g are SPEC_FULL.md §2.1
// additions (mutrun-count override, gRPC control listen address) this
// implementation needs since it exposes a remote control plane the original CLI
// surface doesn't.
//
// This binary is the one place slimerr.Error is formatted and turned into a
// process exit code (SPEC_FULL.md §2.1's error-handling section); everything
// below it propagates errors with %w instead.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	cli "github.com/urfave/cli/v3"

	"github.com/MesserLab/slimgo/internal/chromosome"
	"github.com/MesserLab/slimgo/internal/control"
	"github.com/MesserLab/slimgo/internal/cycle"
	"github.com/MesserLab/slimgo/internal/experimenter"
	"github.com/MesserLab/slimgo/internal/mutation"
	"github.com/MesserLab/slimgo/internal/mutrun"
	"github.com/MesserLab/slimgo/internal/population"
	"github.com/MesserLab/slimgo/internal/rng"
	"github.com/MesserLab/slimgo/internal/script"
	"github.com/MesserLab/slimgo/internal/slimerr"
	"github.com/MesserLab/slimgo/internal/subpop"
	"github.com/MesserLab/slimgo/internal/telemetry"
	"github.com/MesserLab/slimgo/internal/treeseq"
)

// defaultChromosomeLength and defaultMutrunCount stand in for what a real run
// would learn from the script's initialize() callback (chromosome length,
// mutation-run count); the scripting interpreter that would evaluate initialize()
// is an external collaborator this build does not implement (spec §1), so a bare
// engine with zero subpopulations is wired up instead — a valid starting state
// per boundary behavior 11, ready to be driven once a real interpreter supplies
// subpopulations, mutation types, and event blocks through the Registry.
const (
	defaultChromosomeLength = 100_000
	defaultMutrunCount      = 1
	crosscheckInterval      = 50
)

func main() {
	if err := newCommand().Run(context.Background(), os.Args); err != nil {
		printError(err)
		os.Exit(1)
	}
}

func newCommand() *cli.Command {
	return &cli.Command{
		Name:      "slimgo",
		Usage:     "run a forward-time population genetic simulation",
		ArgsUsage: "<script-file>",
		Flags: []cli.Flag{
			&cli.Int64Flag{Name: "seed", Usage: "RNG seed (default: derived from process entropy)"},
			&cli.BoolFlag{Name: "TSXC", Usage: "cross-check the tree sequence and simplify it every 50 generations (recording is always on)"},
			&cli.IntFlag{Name: "M", Usage: "override the initial mutation-run count"},
			&cli.StringFlag{Name: "g", Usage: "gRPC control plane listen address (e.g. :5050); if set, the run is driven remotely instead of to a fixed generation count"},
			&cli.Int64Flag{Name: "generations", Value: 1, Usage: "generations to advance before exiting, when -g is not set"},
			&cli.BoolFlag{Name: "dev-log", Usage: "use human-readable development logging instead of JSON"},
		},
		Action: run,
	}
}

func run(ctx context.Context, cmd *cli.Command) error {
	if _, err := telemetry.Configure(cmd.Bool("dev-log")); err != nil {
		return slimerr.Wrap(slimerr.KindInternal, err, "configuring logger")
	}

	scriptPath := cmd.Args().First()
	if scriptPath == "" {
		return slimerr.New(slimerr.KindUserScript, "a script file argument is required")
	}
	if _, err := os.ReadFile(scriptPath); err != nil {
		return slimerr.Wrap(slimerr.KindIO, err, "reading script file %s", scriptPath)
	}

	seed := cmd.Int64("seed")
	if seed == 0 {
		seed = int64(os.Getpid())
	}
	rand := rng.New(seed)

	mutrunCount := cmd.Int("M")
	if mutrunCount <= 0 {
		mutrunCount = defaultMutrunCount
	}
	chrom, err := chromosome.New(defaultChromosomeLength, mutrunCount)
	if err != nil {
		return slimerr.Wrap(slimerr.KindConfiguration, err, "building chromosome")
	}

	block := mutation.NewBlock()
	pool := mutrun.NewPool()
	pop := population.New(block, pool)

	var recorder cycle.TreeSeqRecorder
	if cmd.Bool("TSXC") {
		recorder = treeseq.NewEngine(pop, block, treeseq.NewIntervalSimplifier(crosscheckInterval), true)
	} else {
		recorder = treeseq.NewEngine(pop, block, treeseq.NewRatioSimplifier(20, 1000), false)
	}

	driver := &cycle.Driver{
		Population:    pop,
		Chromosome:    chrom,
		Registry:      script.NewRegistry(),
		Reproducer:    subpop.NewReproducer(chrom, block, pool, nil, 0, 0),
		Experimenter:  experimenter.New(mutrunCount),
		Recorder:      recorder,
		Events:        stubEvents{},
		Fitness:       stubFitness{},
		OffspringSize: stubOffspringCounter{},
		Rand:          rand,
		MaxWorkers:    1,
		Generation:    1,
	}

	engine := &control.Engine{
		Driver:     driver,
		Model:      control.ModelWF,
		Population: pop,
		Block:      block,
		Chromosome: chrom,
		Pool:       pool,
	}

	if addr := cmd.String("g"); addr != "" {
		srv := control.NewServer(engine, 120)
		if err := srv.ListenAndServe(ctx, addr); err != nil {
			return slimerr.Wrap(slimerr.KindInternal, err, "control server")
		}
		return nil
	}

	if _, err := engine.Step(ctx, cmd.Int64("generations")); err != nil {
		return slimerr.Wrap(slimerr.KindInternal, err, "running simulation")
	}
	return nil
}

// stubEvents, stubFitness, and stubOffspringCounter satisfy cycle.Driver's
// external-collaborator contracts with no-op behavior: the scripting interpreter
// that would evaluate event/fitness/reproduction callbacks is out of scope here
// (spec §1), so a model with no script-driven callbacks and zero subpopulations
// is what this binary actually drives until a real interpreter is wired in.
type stubEvents struct{}

func (stubEvents) ExecuteEvents(ctx context.Context, blocks []*script.Block) error { return nil }

type stubFitness struct{}

func (stubFitness) RecalculateFitness(ctx context.Context, sp *subpop.Subpopulation, callbacks []*script.Block) error {
	return nil
}

type stubOffspringCounter struct{}

func (stubOffspringCounter) OffspringCount(sp *subpop.Subpopulation) int { return 0 }

// printError formats a terminating error to stderr, unwrapping to a *slimerr.Error
// when possible to report its Kind, per spec §7's error taxonomy.
func printError(err error) {
	var se *slimerr.Error
	if errors.As(err, &se) {
		fmt.Fprintf(os.Stderr, "slimgo: %s\n", se.Error())
		return
	}
	fmt.Fprintf(os.Stderr, "slimgo: %v\n", err)
}

package fileio

import (
	"bufio"
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/MesserLab/slimgo/internal/chromosome"
	"github.com/MesserLab/slimgo/internal/genome"
	"github.com/MesserLab/slimgo/internal/mutation"
	"github.com/MesserLab/slimgo/internal/mutrun"
	"github.com/MesserLab/slimgo/internal/population"
	"github.com/MesserLab/slimgo/internal/subpop"
	"github.com/MesserLab/slimgo/internal/treeseq"
)

func buildTestDump(t *testing.T) (*Dump, *mutation.Block, *chromosome.Chromosome, *mutrun.Pool) {
	t.Helper()

	chrom, err := chromosome.New(1024, 4)
	if err != nil {
		t.Fatalf("chromosome.New: %v", err)
	}
	block := mutation.NewBlock()
	pool := mutrun.NewPool()
	mutType := &mutation.Type{ID: 1, DominanceCoeff: 0.5, Stacking: mutation.StackKeepBoth}

	pop := population.New(block, pool)
	sp := subpop.New(1, pool)

	g1 := genome.New(0, genome.TypeAutosome, 1, chrom.MutrunCount, pool)
	g2 := genome.New(1, genome.TypeAutosome, 1, chrom.MutrunCount, pool)

	idx1 := block.Allocate(mutation.Mutation{Type: mutType, Position: 10, SelectionCoeff: 0, Nucleotide: mutation.NucleotideAbsent})
	idx2 := block.Allocate(mutation.Mutation{Type: mutType, Position: 1023, SelectionCoeff: -0.01, Nucleotide: mutation.NucleotideAbsent})
	groupOf := func(mutation.Index) int32 { return mutType.ID }

	run := g1.WillModifyAt(block, chrom.SegmentOf(10))
	run.InsertSorted(block, idx1, groupOf)
	run2 := g2.WillModifyAt(block, chrom.SegmentOf(1023))
	run2.InsertSorted(block, idx2, groupOf)

	ind := genome.NewIndividual(0, g1, g2)
	ind.Age = -1
	ind.Fitness = 1
	sp.SetParental([]*genome.Individual{ind})
	pop.AddSubpopulation(sp)
	pop.Registry().Track(idx1)
	pop.Registry().Track(idx2)

	d := BuildDump(pop, block, chrom, 42)
	return d, block, chrom, pool
}

func assertDumpsEqual(t *testing.T, want, got *Dump) {
	t.Helper()
	if want.Generation != got.Generation {
		t.Errorf("generation: want %d, got %d", want.Generation, got.Generation)
	}
	if want.ChromosomeLength != got.ChromosomeLength {
		t.Errorf("chromosome length: want %d, got %d", want.ChromosomeLength, got.ChromosomeLength)
	}
	if len(want.Mutations) != len(got.Mutations) {
		t.Fatalf("mutation count: want %d, got %d", len(want.Mutations), len(got.Mutations))
	}
	for i := range want.Mutations {
		wm, gm := want.Mutations[i], got.Mutations[i]
		if wm.ID != gm.ID || wm.Position != gm.Position || wm.TypeID != gm.TypeID {
			t.Errorf("mutation %d mismatch: want %+v, got %+v", i, wm, gm)
		}
	}
	if len(want.Subpopulations) != len(got.Subpopulations) {
		t.Fatalf("subpopulation count: want %d, got %d", len(want.Subpopulations), len(got.Subpopulations))
	}
	for i := range want.Subpopulations {
		wsp, gsp := want.Subpopulations[i], got.Subpopulations[i]
		if wsp.ID != gsp.ID || len(wsp.Individuals) != len(gsp.Individuals) {
			t.Fatalf("subpopulation %d mismatch: want %+v, got %+v", i, wsp, gsp)
		}
		for j := range wsp.Individuals {
			wi, gi := wsp.Individuals[j], gsp.Individuals[j]
			if wi.PedigreeID != gi.PedigreeID || wi.Sex != gi.Sex {
				t.Errorf("individual %d mismatch: want %+v, got %+v", j, wi, gi)
			}
			if !idsEqual(wi.Genome1MutationIDs, gi.Genome1MutationIDs) {
				t.Errorf("individual %d genome1 ids: want %v, got %v", j, wi.Genome1MutationIDs, gi.Genome1MutationIDs)
			}
			if !idsEqual(wi.Genome2MutationIDs, gi.Genome2MutationIDs) {
				t.Errorf("individual %d genome2 ids: want %v, got %v", j, wi.Genome2MutationIDs, gi.Genome2MutationIDs)
			}
		}
	}
}

func idsEqual(a, b []uint64) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestTextRoundTrip(t *testing.T) {
	d, _, _, _ := buildTestDump(t)

	var buf bytes.Buffer
	if err := WriteText(&buf, d); err != nil {
		t.Fatalf("WriteText: %v", err)
	}

	format, err := DetectReader(bufio.NewReader(bytes.NewReader(buf.Bytes())))
	if err != nil {
		t.Fatalf("DetectReader: %v", err)
	}
	if format != FormatSLiMText {
		t.Fatalf("DetectReader: want %v, got %v", FormatSLiMText, format)
	}

	got, err := ReadText(bytes.NewReader(buf.Bytes()))
	if err != nil {
		t.Fatalf("ReadText: %v", err)
	}
	assertDumpsEqual(t, d, got)
}

func TestBinaryRoundTrip(t *testing.T) {
	d, _, _, _ := buildTestDump(t)

	var buf bytes.Buffer
	if err := WriteBinary(&buf, d); err != nil {
		t.Fatalf("WriteBinary: %v", err)
	}

	format, err := DetectReader(bufio.NewReader(bytes.NewReader(buf.Bytes())))
	if err != nil {
		t.Fatalf("DetectReader: %v", err)
	}
	if format != FormatSLiMBinary {
		t.Fatalf("DetectReader: want %v, got %v", FormatSLiMBinary, format)
	}

	got, err := ReadBinary(bytes.NewReader(buf.Bytes()))
	if err != nil {
		t.Fatalf("ReadBinary: %v", err)
	}
	assertDumpsEqual(t, d, got)
}

func TestApplyDumpRoundTrip(t *testing.T) {
	d, _, chrom, _ := buildTestDump(t)

	block2 := mutation.NewBlock()
	pool2 := mutrun.NewPool()
	pop2, err := ApplyDump(d, block2, pool2, chrom)
	if err != nil {
		t.Fatalf("ApplyDump: %v", err)
	}

	d2 := BuildDump(pop2, block2, chrom, d.Generation)
	assertDumpsEqual(t, d, d2)
}

func TestTableTextRoundTrip(t *testing.T) {
	tc := &treeseq.TableCollection{
		Nodes: []treeseq.Node{
			{Flags: treeseq.NodeFlagSample, Time: 0, Population: 1, Individual: 0},
			{Flags: treeseq.NodeFlagRemembered, Time: 5, Population: 1, Individual: -1},
		},
		Edges: []treeseq.Edge{
			{Left: 0, Right: 512, Parent: 1, Child: 0},
		},
		Sites: []treeseq.Site{
			{Position: 10, AncestralState: []byte("A")},
		},
		Mutations: []treeseq.Mutation{
			{Site: 0, Node: 0, Parent: -1, Time: 0, DerivedState: []byte("1")},
		},
		Individuals: []treeseq.IndividualRow{
			{Flags: 0, Location: []float64{1, 2, 3}, Parents: []int64{-1, -1}},
		},
		Populations: []treeseq.PopulationRow{{Metadata: []byte("p1")}},
		Provenances: []treeseq.Provenance{{Timestamp: "2026-07-31T00:00:00Z", Record: "{}"}},
	}
	ancestral := []byte{0x1b, 0x2c, 0x3d}

	dir := t.TempDir()
	sub := filepath.Join(dir, "tables")
	if err := WriteTableText(sub, tc, ancestral); err != nil {
		t.Fatalf("WriteTableText: %v", err)
	}

	info, err := os.Stat(sub)
	if err != nil || !info.IsDir() {
		t.Fatalf("expected a directory at %s", sub)
	}

	format, err := DetectPath(sub)
	if err != nil {
		t.Fatalf("DetectPath: %v", err)
	}
	if format != FormatTableText {
		t.Fatalf("DetectPath: want %v, got %v", FormatTableText, format)
	}

	got, gotAncestral, err := ReadTableText(sub)
	if err != nil {
		t.Fatalf("ReadTableText: %v", err)
	}
	assertTablesEqual(t, tc, got)
	if !bytes.Equal(ancestral, gotAncestral) {
		t.Errorf("ancestral sequence: want %v, got %v", ancestral, gotAncestral)
	}

	// Round-trip law 9: re-exporting the reloaded tables must be byte-identical.
	sub2 := filepath.Join(dir, "tables2")
	if err := WriteTableText(sub2, got, gotAncestral); err != nil {
		t.Fatalf("WriteTableText (second pass): %v", err)
	}
	for _, name := range []string{nodesFileName, edgesFileName, sitesFileName, mutationsFileName, individualsFileName, populationsFileName, provenancesFileName, referenceSeqFile} {
		a, err := os.ReadFile(filepath.Join(sub, name))
		if err != nil {
			t.Fatalf("reading %s: %v", name, err)
		}
		b, err := os.ReadFile(filepath.Join(sub2, name))
		if err != nil {
			t.Fatalf("reading %s (second pass): %v", name, err)
		}
		if !bytes.Equal(a, b) {
			t.Errorf("%s not byte-identical across round-trip", name)
		}
	}
}

func TestTableBinaryRoundTrip(t *testing.T) {
	tc := &treeseq.TableCollection{
		Nodes: []treeseq.Node{
			{Flags: treeseq.NodeFlagSample, Time: 0, Population: 1, Individual: 0},
		},
		Edges: []treeseq.Edge{
			{Left: 0, Right: 512, Parent: 0, Child: 0},
		},
	}
	ancestral := []byte{0xff, 0x00, 0xab}

	var buf bytes.Buffer
	if err := WriteTableBinary(&buf, tc, ancestral); err != nil {
		t.Fatalf("WriteTableBinary: %v", err)
	}

	format, err := DetectReader(bufio.NewReader(bytes.NewReader(buf.Bytes())))
	if err != nil {
		t.Fatalf("DetectReader: %v", err)
	}
	if format != FormatTableBinary {
		t.Fatalf("DetectReader: want %v, got %v", FormatTableBinary, format)
	}

	got, gotAncestral, err := ReadTableBinary(bytes.NewReader(buf.Bytes()))
	if err != nil {
		t.Fatalf("ReadTableBinary: %v", err)
	}
	assertTablesEqual(t, tc, got)
	if !bytes.Equal(ancestral, gotAncestral) {
		t.Errorf("ancestral sequence: want %v, got %v", ancestral, gotAncestral)
	}
}

func assertTablesEqual(t *testing.T, want, got *treeseq.TableCollection) {
	t.Helper()
	if len(want.Nodes) != len(got.Nodes) {
		t.Fatalf("node count: want %d, got %d", len(want.Nodes), len(got.Nodes))
	}
	for i := range want.Nodes {
		w, g := want.Nodes[i], got.Nodes[i]
		if w.Flags != g.Flags || w.Time != g.Time || w.Population != g.Population || w.Individual != g.Individual {
			t.Errorf("node %d mismatch: want %+v, got %+v", i, w, g)
		}
	}
	if len(want.Edges) != len(got.Edges) {
		t.Fatalf("edge count: want %d, got %d", len(want.Edges), len(got.Edges))
	}
	for i := range want.Edges {
		if want.Edges[i] != got.Edges[i] {
			t.Errorf("edge %d mismatch: want %+v, got %+v", i, want.Edges[i], got.Edges[i])
		}
	}
}

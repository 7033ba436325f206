// Package treeseq implements the Tree Sequence Recorder: append-only node, edge,
// site, mutation, individual, and population tables plus provenance, a scoped
// per-child snapshot/rollback resource, a custom edge sorter, auto-simplification,
// coalescence testing, and a debug cross-check, per spec §4.5.
//
// Row layouts follow tskit's documented columns (original_source/treerec/tskit/tables.h)
// exactly, though this package reimplements only the subset of tskit's C library
// behavior the spec's invariants exercise — see DESIGN.md for the scope this
// package deliberately does not reproduce (full ancestry-squashing simplification,
// true variant-iterator-based cross-check).
package treeseq

// NodeFlag tags a node table row. FlagSample marks nodes eligible as tree-sequence
// samples; FlagRemembered is a recorder-local bit (beyond tskit's own flag space)
// marking a node that must survive simplification regardless of whether its
// individual is still alive, restored from the flag on reload per spec §4.6 step 9.
type NodeFlag uint32

const (
	NodeFlagSample     NodeFlag = 1 << 0
	NodeFlagRemembered NodeFlag = 1 << 1
)

// Node is a tree-sequence node table row (tables.h's tsk_node_t).
type Node struct {
	Flags      NodeFlag
	Time       float64
	Population int32
	Individual int32
	Metadata   []byte
}

// Edge is a tree-sequence edge table row (tables.h's tsk_edge_t): child inherits
// [Left, Right) of Parent's genome.
type Edge struct {
	Left, Right   float64
	Parent, Child int64
}

// Site is a tree-sequence site table row (tables.h's tsk_site_t).
type Site struct {
	Position       float64
	AncestralState []byte
}

// Mutation is a tree-sequence mutation table row (tables.h's tsk_mutation_t).
// DerivedState is the concatenation of every mutation id present at Site in Node's
// genome at the time this row was appended, per spec §4.5 ("the derived state is
// the concatenation of all mutation ids currently at that position in that genome").
type Mutation struct {
	Site         int64
	Node         int64
	Parent       int64 // always -1: RecordMutation writes -1 and Simplify resets it to -1
	Time         float64
	DerivedState []byte
	Metadata     []byte
}

// IndividualRow is a tree-sequence individual table row (tables.h's tsk_individual_t).
type IndividualRow struct {
	Flags    uint32
	Location []float64
	Parents  []int64
}

// PopulationRow is a tree-sequence population table row (tables.h's tsk_population_t).
type PopulationRow struct {
	Metadata []byte
}

// Provenance is a tree-sequence provenance table row (tables.h's tsk_provenance_t).
type Provenance struct {
	Timestamp string
	Record    string
}

// TableCollection holds the six recorded tables plus provenance, all append-only
// except where Truncate rolls a rejected child's appends back.
type TableCollection struct {
	Nodes       []Node
	Edges       []Edge
	Sites       []Site
	Mutations   []Mutation
	Individuals []IndividualRow
	Populations []PopulationRow
	Provenances []Provenance
}

// Snapshot records every table's row count at a point in time, per spec §4.5's
// "table position snapshots" (taken before recording a new child).
type Snapshot struct {
	nodes, edges, sites, mutations, individuals int
}

// TakeSnapshot captures the collection's current row counts.
func (tc *TableCollection) TakeSnapshot() Snapshot {
	return Snapshot{
		nodes:       len(tc.Nodes),
		edges:       len(tc.Edges),
		sites:       len(tc.Sites),
		mutations:   len(tc.Mutations),
		individuals: len(tc.Individuals),
	}
}

// Truncate rolls every table back to the row counts recorded in s, undoing every
// append made since, per spec §4.5 ("tables are truncated back to the snapshot").
func (tc *TableCollection) Truncate(s Snapshot) {
	tc.Nodes = tc.Nodes[:s.nodes]
	tc.Edges = tc.Edges[:s.edges]
	tc.Sites = tc.Sites[:s.sites]
	tc.Mutations = tc.Mutations[:s.mutations]
	tc.Individuals = tc.Individuals[:s.individuals]
}

// RowCounts reports the combined row count of the node, edge, site, and mutation
// tables, the "old"/"new" sizes the
// auto-simplification ratio mode compares (spec §4.5).
func (tc *TableCollection) RowCounts() int {
	return len(tc.Nodes) + len(tc.Edges) + len(tc.Sites) + len(tc.Mutations)
}

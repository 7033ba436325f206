package treeseq

import (
	"fmt"
	"strconv"
	"strings"
	"sync"
)

// Recorder owns the append-only TableCollection and the remembered-genomes set, and
// implements the per-child scoped snapshot/rollback resource spec §5 calls for
// ("the tree-sequence table-position snapshot is a per-child scoped resource: taken
// on child creation, released by commit on acceptance or by truncate on rejection"),
// grounded on the teacher's mutex-guarded, defer-released locking idiom
// (SimplePopulationManager.mu/rngMu) generalized to an explicit Commit()/Rollback()
// scope guard instead of a plain mutex.
//
// Node time is recorded as the simulator's forward generation count directly
// (increasing with elapsed generations) rather than tskit's own backward-from-present
// convention; internal/fileio writes and reads these times unchanged, so
// no forward/backward conversion is performed at the table-collection load/save
// boundary either.
type Recorder struct {
	mu sync.Mutex

	Tables *TableCollection

	remembered    []int64
	rememberedSet map[int64]bool

	generation     int64
	intraGenOffset int64
}

// NewRecorder creates an empty Recorder.
func NewRecorder() *Recorder {
	return &Recorder{
		Tables:        &TableCollection{},
		rememberedSet: make(map[int64]bool),
	}
}

// AdvanceGeneration sets the generation the recorder stamps new nodes with and
// resets the intra-generation ordering offset, per spec §4.4's "intra-generation
// offset keeps parent and child event timestamps strictly ordered when
// subpopulations are added mid-stage".
func (r *Recorder) AdvanceGeneration(gen int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.generation = gen
	r.intraGenOffset = 0
}

func (r *Recorder) nextTime() float64 {
	r.intraGenOffset++
	return float64(r.generation) + float64(r.intraGenOffset)*1e-9
}

// ChildRecording is the scoped snapshot/rollback resource for one offspring's
// construction: Commit keeps every table append made since BeginChild; Rollback
// (the zero-value outcome if neither is called) truncates them away.
type ChildRecording struct {
	r        *Recorder
	snap     Snapshot
	resolved bool
}

// BeginChild snapshots every table's current row count before recording a new
// child's node, edges, and mutations, per spec §4.5.
func (r *Recorder) BeginChild() *ChildRecording {
	r.mu.Lock()
	defer r.mu.Unlock()
	return &ChildRecording{r: r, snap: r.Tables.TakeSnapshot()}
}

// Commit accepts every append made since BeginChild.
func (cr *ChildRecording) Commit() {
	cr.resolved = true
}

// Rollback truncates every table back to the row counts BeginChild captured,
// undoing all breakpoint and mutation appends for the rejected child atomically
// (spec §4.5: "if a modifyChild callback rejects the child, the tables are
// truncated back to the snapshot").
func (cr *ChildRecording) Rollback() {
	if cr.resolved {
		return
	}
	cr.r.mu.Lock()
	defer cr.r.mu.Unlock()
	cr.r.Tables.Truncate(cr.snap)
	cr.resolved = true
}

// RecordNode appends a node row for a newly allocated genome and returns its node
// id, per spec §4.5 ("every genome ever allocated during recording receives a node
// row").
func (r *Recorder) RecordNode(popID int32, individualID int32) int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	id := int64(len(r.Tables.Nodes))
	r.Tables.Nodes = append(r.Tables.Nodes, Node{
		Flags:      NodeFlagSample,
		Time:       r.nextTime(),
		Population: popID,
		Individual: individualID,
	})
	return id
}

// RecordEdge appends one inherited interval from parentNode to childNode, per spec
// §4.5's "one edge per inherited interval" (recombination breakpoints produce an
// alternating-parent edge sequence; the final interval extends to the chromosome's
// sequence length, passed by the caller as right).
func (r *Recorder) RecordEdge(parentNode, childNode int64, left, right float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Tables.Edges = append(r.Tables.Edges, Edge{Left: left, Right: right, Parent: parentNode, Child: childNode})
}

// siteAt finds or appends a site at position, per spec §4.5 ("a site row is
// appended; duplicates are deduplicated later" — this recorder deduplicates at
// append time instead, which is equivalent once sorting/simplification runs and
// simpler to reason about incrementally).
func (r *Recorder) siteAt(position float64, ancestralState []byte) int64 {
	for i, s := range r.Tables.Sites {
		if s.Position == position {
			return int64(i)
		}
	}
	id := int64(len(r.Tables.Sites))
	r.Tables.Sites = append(r.Tables.Sites, Site{Position: position, AncestralState: ancestralState})
	return id
}

// RecordMutation appends a mutation row for node at position, whose derived state
// is the full set of mutation ids currently present at that position in that
// genome (including fixed substitutions), per spec §4.5.
func (r *Recorder) RecordMutation(node int64, position float64, ancestralState byte, derivedMutationIDs []uint32, metadata []byte) {
	r.mu.Lock()
	defer r.mu.Unlock()
	site := r.siteAt(position, []byte{ancestralState})
	r.Tables.Mutations = append(r.Tables.Mutations, Mutation{
		Site:         site,
		Node:         node,
		Parent:       -1,
		Time:         r.nextTime(),
		DerivedState: encodeDerivedState(derivedMutationIDs),
		Metadata:     metadata,
	})
}

func encodeDerivedState(ids []uint32) []byte {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = strconv.FormatUint(uint64(id), 10)
	}
	return []byte(strings.Join(parts, ","))
}

func decodeDerivedState(state []byte) []uint32 {
	if len(state) == 0 {
		return nil
	}
	fields := strings.Split(string(state), ",")
	out := make([]uint32, 0, len(fields))
	for _, f := range fields {
		if f == "" {
			continue
		}
		v, err := strconv.ParseUint(f, 10, 32)
		if err != nil {
			continue
		}
		out = append(out, uint32(v))
	}
	return out
}

// RememberGenome adds nodeID to the remembered-genomes set if not already present,
// anchoring it against removal by any future simplification (spec §3's "a
// remembered genomes ordered set of node ids anchors individuals that must survive
// simplification").
func (r *Recorder) RememberGenome(nodeID int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.rememberedSet[nodeID] {
		return
	}
	r.rememberedSet[nodeID] = true
	r.remembered = append(r.remembered, nodeID)
	r.Tables.Nodes[nodeID].Flags |= NodeFlagRemembered
}

// RememberedGenomes returns a copy of the remembered-genomes ordered set.
func (r *Recorder) RememberedGenomes() []int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]int64, len(r.remembered))
	copy(out, r.remembered)
	return out
}

// Generation reports the generation the recorder is currently stamping nodes with.
func (r *Recorder) Generation() int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.generation
}

func (r *Recorder) validateNodeID(id int64) error {
	if id < 0 || int(id) >= len(r.Tables.Nodes) {
		return fmt.Errorf("(internal error) node id %d out of range [0,%d)", id, len(r.Tables.Nodes))
	}
	return nil
}

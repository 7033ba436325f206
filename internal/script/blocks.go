// Package script implements the Script Block Registry: cached, typed lists of
// user-authored callbacks with generation ranges and optimized dispatch forms, per
// spec §3 ("Script Block") and §4.3.
//
// The scripting interpreter itself is an external collaborator (spec §1, §6); this
// package defines only the minimal ast.Node/SymbolTable-shaped contracts it
// consumes, and the registry/dispatch/pattern-recognizer logic against those
// contracts.
package script

// NodeKind tags an AST node's syntactic role. The full grammar belongs to the
// scripting collaborator; the registry only needs enough structure to recognize the
// two optimizable callback shapes spec §4.3 names.
type NodeKind int

const (
	NodeUnknown NodeKind = iota
	NodeReturn
	NodeBinaryOp
	NodeCall
	NodeIdentifier
	NodeNumber
)

// Node is the minimal external AST contract: a node type tag and its children, per
// spec §6 ("an AST with a node type enum and child vector").
type Node struct {
	Kind     NodeKind
	Op       string // for NodeBinaryOp ("+", "-", "/", etc.) and NodeCall (function name)
	Name     string // for NodeIdentifier
	Value    float64
	IsNumber bool
	Children []*Node
}

// SymbolTable is the minimal external contract for constant/variable lookups a
// callback's optimizer needs while folding a parsed AST into a numeric form, per
// spec §6 ("a symbol table with constant and variable entries keyed by interned
// string-ids").
type SymbolTable interface {
	LookupConstant(name string) (float64, bool)
}

// BlockType tags a Script Block's callback role.
type BlockType int

const (
	TypeEarlyEvent BlockType = iota
	TypeLateEvent
	TypeInitialize
	TypeFitness
	TypeFitnessGlobal
	TypeInteraction
	TypeMateChoice
	TypeModifyChild
	TypeRecombination
	TypeMutation
	TypeReproduction
	TypeUserFunction
)

// FilterAny means "any subpop/mutation-type/interaction-type accepted", per spec
// §4.3. FilterNullMutType means "the NULL mutation-type", used to partition
// global-fitness callbacks that apply across all mutation types from those scoped
// to one.
const (
	FilterAny          int32 = -1
	FilterNullMutType  int32 = -2
)

// OptimizedForm is a precomputed numeric evaluator for one of the two recognized
// fitness-callback shapes, letting dispatch skip the interpreter entirely on the hot
// path (spec §4.3).
type OptimizedForm struct {
	Kind OptimizedKind

	// Dnorm1 form: `return D + dnorm(individual.tagF [+/- A], 0, B) / C;`
	DnormA, DnormB, DnormC, DnormD float64
	DnormSign                      float64 // +1 or -1 for the tagF offset

	// Reciprocal form: `return A / relFitness;`
	ReciprocalA float64
}

// OptimizedKind distinguishes which precomputed shape a block was folded into, or
// none if the AST did not match either recognized pattern.
type OptimizedKind int

const (
	OptimizedNone OptimizedKind = iota
	OptimizedDnorm1
	OptimizedReciprocal
)

// Block is one user-authored callback: a type tag, generation range, optional
// filter ids, an active flag, a parsed AST, and an optional precompiled
// optimization record.
type Block struct {
	ID            int64
	Type          BlockType
	StartGen      int64
	EndGen        int64
	SubpopID      int32 // FilterAny for unscoped
	MutationTypeID int32 // FilterAny, or FilterNullMutType for global-fitness callbacks
	InteractionTypeID int32
	Active        bool
	AST           *Node
	Optimized     OptimizedForm
}

// AppliesToGeneration reports whether gen falls within the block's [StartGen, EndGen]
// range, inclusive.
func (b *Block) AppliesToGeneration(gen int64) bool {
	return gen >= b.StartGen && gen <= b.EndGen
}

// matchesFilter reports whether a block's filter id accepts the given actual id:
// FilterAny matches everything, otherwise an exact match is required.
func matchesFilter(filter, actual int32) bool {
	return filter == FilterAny || filter == actual
}

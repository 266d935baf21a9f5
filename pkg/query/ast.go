// Package query implements the graph query language's abstract syntax
// tree: terms, navigation steps, parts, sorting, limiting and
// aggregation, plus simplification, combination and pretty-printing
// over that tree. The grammar is parsed by pkg/query/parser and
// evaluated against a pkg/graph.GraphAccess by Evaluate.
package query

import "math"

// MaxHops is the upper bound used for an open-ended navigation range
// such as "[2:]".
const MaxHops = math.MaxInt32

// Term is any node of the boolean filter expression a Part evaluates.
type Term interface {
	isTerm()
}

// AllTerm matches every node. It is the identity element for "and" and
// the absorbing element for "or" (see Simplify).
type AllTerm struct{}

// IsTerm matches nodes whose kind is one of Kinds.
type IsTerm struct {
	Kinds []string
}

// IdTerm matches the single node with the given id.
type IdTerm struct {
	ID string
}

// ArrayMod names how a Predicate's comparison distributes over an
// array-valued property: "" for a scalar property, or one of
// for_all/for_any/for_none.
type ArrayMod string

const (
	ArrayModNone   ArrayMod = ""
	ArrayModForAll ArrayMod = "for_all"
	ArrayModForAny ArrayMod = "for_any"
	ArrayModForNone ArrayMod = "for_none"
)

// Predicate compares a property path against a value.
// Op is one of: <=, >=, >, <, ==, !=, =~, !~, in, not in.
type Predicate struct {
	Name string
	Op   string
	Value any
	Mod  ArrayMod
}

// FunctionTerm is a named predicate function, e.g. in_subnet(10.0.0.0/8)
// or dns(example.com) — domain-specific checks that don't reduce to a
// simple property comparison.
type FunctionTerm struct {
	Fn   string
	Arg  string
	Args []any
}

// CombinedTerm is a boolean "and"/"or" of two terms.
type CombinedTerm struct {
	Left  Term
	Op    string // "and" | "or"
	Right Term
}

func (AllTerm) isTerm()      {}
func (IsTerm) isTerm()       {}
func (IdTerm) isTerm()       {}
func (Predicate) isTerm()    {}
func (FunctionTerm) isTerm() {}
func (CombinedTerm) isTerm() {}

// Navigation describes traversal from the nodes matched by a Part to
// their neighbors via edges of EdgeType, within [MinHops, MaxHops]
// hops, in Direction ("out", "in", "inout").
type Navigation struct {
	MinHops   int
	MaxHops   int
	EdgeType  string // empty means "default"
	Direction string
}

// DefaultNavigation is the implicit range when a part's arrow carries
// no explicit [n:m].
func DefaultNavigation(direction string) Navigation {
	return Navigation{MinHops: 1, MaxHops: 1, Direction: direction}
}

// Part is one filter-then-navigate step of a query.
type Part struct {
	Term       Term
	Pinned     bool
	Navigation *Navigation // nil for the final (innermost) part
	// WithClause marks a part as guarded by a with(count, term) clause,
	// which Combine rejects merging across.
	WithClause bool
}

// Sort orders query results by a property.
type Sort struct {
	Name  string
	Order string // "asc" | "desc"
}

// AggregateVariable is a group-by key, optionally aliased.
type AggregateVariable struct {
	Name string
	As   string
}

// AggregateOp is one arithmetic post-processing step applied to an
// aggregate function's result, e.g. "* 2".
type AggregateOp struct {
	Operator string // +,-,*,/,%
	Number   float64
}

// AggregateFunction computes one summary value per group.
type AggregateFunction struct {
	Func        string // sum,count,min,max,avg
	Source      string // property path; ignored when SourceIsInt
	SourceIsInt bool
	SourceInt   int
	Ops         []AggregateOp
	As          string
}

// Aggregate groups query results and computes per-group functions.
type Aggregate struct {
	GroupVars []AggregateVariable
	Functions []AggregateFunction
}

// Query is parts (stored reversed relative to textual order — the
// first evaluated part is Parts[len(Parts)-1]), an optional preamble
// of bound scalar variables, an optional aggregation, sort and limit.
type Query struct {
	Parts    []Part
	Preamble map[string]any
	Aggregate *Aggregate
	Sort     []Sort
	Limit    *int
}

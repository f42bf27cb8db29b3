// Package planner turns a parsed lang.Select into a cost-estimated
// QueryPlan: access-method selection (sequential, index, or parallel
// scan), materialized-view matching, and join-side ordering, per
// spec.md §4.G. The planner never touches storage directly; it works
// off the catalog's schema and caller-supplied row/stripe estimates,
// and the resulting QueryPlan is consumed verbatim by internal/exec.
package planner

import (
	"github.com/strataql/strata/internal/catalog"
	"github.com/strataql/strata/internal/lang"
)

// AccessMethod is the chosen scan strategy for a table.
type AccessMethod int

const (
	SeqScan AccessMethod = iota
	IndexScan
	ParallelScan
)

func (m AccessMethod) String() string {
	switch m {
	case IndexScan:
		return "index_scan"
	case ParallelScan:
		return "parallel_scan"
	default:
		return "seq_scan"
	}
}

// Condition is one normalized WHERE-clause predicate, lifted from the
// AST so the planner and executor share one flat representation instead
// of re-walking lang.Node at execution time.
type Condition struct {
	Column string
	Op     lang.TokenType
	Value  lang.Value
}

// equalityCandidate reports whether c is usable by an equality-keyed
// index (btree/hash/bitmap/bloom all key on TokEq).
func (c Condition) equalityCandidate() bool { return c.Op == lang.TokEq }

// rangeCandidate reports whether c is usable by an index's ordered
// Range method. Only a btree index implements Range; every other kind
// returns index.ErrUnsupported for it.
func (c Condition) rangeCandidate() bool {
	switch c.Op {
	case lang.TokLt, lang.TokGt, lang.TokLtEq, lang.TokGtEq:
		return true
	default:
		return false
	}
}

// JoinPlan describes how a JOIN clause is executed.
type JoinPlan struct {
	Table       string
	On          lang.Node
	HashJoin    bool // false => nested-loop fallback (no equality predicate)
	BuildIsLeft bool // which side is the (smaller, estimated) hash-build side
}

// QueryPlan is the planner's sole output: op/table/conditions/degree/cost
// plus the remaining clauses the executor streams through unchanged.
type QueryPlan struct {
	Op         AccessMethod
	Table      string
	Conditions []Condition
	Degree     int
	Cost       float64

	IndexName string
	IndexKind catalog.IndexKind

	ViewName string // non-empty when the query's text matches a materialized view's source query; the plan still scans Table

	Join *JoinPlan

	Distinct bool
	Columns  []lang.Node
	GroupBy  []lang.Node
	Having   lang.Node
	OrderBy  []lang.OrderTerm
	Limit    int
	HasLimit bool
}

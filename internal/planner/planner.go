package planner

import (
	"github.com/strataql/strata/internal/catalog"
	"github.com/strataql/strata/internal/lang"
)

// Stats supplies per-table row/stripe estimates. Implemented by the
// database layer (catalog + timeline snapshot), kept abstract here so
// the planner has no dependency on storage.
type Stats interface {
	TableStats(table string) TableStats
}

// Planner builds QueryPlans from parsed lang.Select statements.
type Planner struct {
	reg   *catalog.Registry
	stats Stats

	parallelThreshold int
	parallelChunkRows int
	parallelMaxDegree int
}

// New builds a Planner over reg's current schema, using stats for cost
// estimation and the three parallel-scan tunables from config.Engine.
func New(reg *catalog.Registry, stats Stats, parallelThreshold, parallelChunkRows, parallelMaxDegree int) *Planner {
	return &Planner{
		reg:               reg,
		stats:             stats,
		parallelThreshold: parallelThreshold,
		parallelChunkRows: parallelChunkRows,
		parallelMaxDegree: parallelMaxDegree,
	}
}

// Plan normalizes sel, records the materialized view (if any) whose
// source query sel matches, then picks an access method and (for a JOIN)
// a build side. A view match does not change the plan: the query still
// runs over its base table.
func (p *Planner) Plan(sel *lang.Select) (*QueryPlan, error) {
	viewName, _ := p.matchView(sel)

	conditions := extractConditions(sel.Where)
	table, err := p.reg.GetTable(sel.From)
	if err != nil {
		return nil, err
	}
	stats := p.stats.TableStats(sel.From)

	plan := p.chooseAccessMethod(table, stats, conditions)
	plan.Distinct = sel.Distinct
	plan.Columns = sel.Columns
	plan.GroupBy = sel.GroupBy
	plan.Having = sel.Having
	plan.OrderBy = sel.OrderBy
	plan.Limit = sel.Limit
	plan.HasLimit = sel.HasLimit
	plan.ViewName = viewName

	if sel.Join != nil {
		plan.Join = p.planJoin(sel.From, sel.Join, stats)
	}
	return plan, nil
}

// matchView reports whether sel's normalized text equals a materialized
// view's stored source query, and if so which view. Views hold no stored
// rows, so a match only names the view on the plan; the query is still
// executed.
func (p *Planner) matchView(sel *lang.Select) (string, bool) {
	normalized := Normalize(sel)
	schema := p.reg.Snapshot()
	for _, v := range schema.Views {
		if v.SourceQuery == normalized {
			return v.Name, true
		}
	}
	return "", false
}

// chooseAccessMethod picks between a full sequential scan, an index
// scan over the cheapest eligible index, and (when no index scan won and
// the table's total row count clears the parallel threshold) a parallel
// scan with degree bounded by the configured maximum. The parallel
// choice does not look at predicate selectivity, JOINs or ORDER BY.
func (p *Planner) chooseAccessMethod(table catalog.Table, stats TableStats, conditions []Condition) *QueryPlan {
	best := &QueryPlan{Op: SeqScan, Table: table.Name, Conditions: conditions, Cost: seqScanCost(stats)}

	for _, cond := range conditions {
		if !cond.equalityCandidate() {
			continue
		}
		for _, idx := range table.Indexes {
			if len(idx.Columns) != 1 || idx.Columns[0] != cond.Column {
				continue
			}
			selectivity := estimateSelectivity(idx, stats)
			cost := indexScanCost(stats, selectivity)
			if cost < best.Cost || (cost == best.Cost && best.Op != IndexScan) {
				best = &QueryPlan{
					Op: IndexScan, Table: table.Name, Conditions: conditions,
					Cost: cost, IndexName: idx.Name, IndexKind: idx.Kind,
				}
			} else if cost == best.Cost && best.Op == IndexScan {
				if indexKindPriority(idx.Unique, idx.Kind) < indexKindPriority(best.indexUnique(table), best.IndexKind) {
					best = &QueryPlan{
						Op: IndexScan, Table: table.Name, Conditions: conditions,
						Cost: cost, IndexName: idx.Name, IndexKind: idx.Kind,
					}
				}
			}
		}
	}

	// A range predicate (<, >, <=, >=) on a btree index's leading column
	// is answered by the index's ordered Range walk instead of a full
	// scan, per spec.md §4.G's "each conjunctive equality/range
	// predicate" access-method rule. Only btree supports Range; hash,
	// bloom, and bitmap all reject it with index.ErrUnsupported.
	for _, cond := range conditions {
		if !cond.rangeCandidate() {
			continue
		}
		for _, idx := range table.Indexes {
			if idx.Kind != catalog.IndexBTree || len(idx.Columns) != 1 || idx.Columns[0] != cond.Column {
				continue
			}
			cost := indexScanCost(stats, estimateRangeSelectivity(stats))
			if cost < best.Cost {
				best = &QueryPlan{
					Op: IndexScan, Table: table.Name, Conditions: conditions,
					Cost: cost, IndexName: idx.Name, IndexKind: idx.Kind,
				}
			}
		}
	}

	if best.Op != IndexScan && stats.RowCount > int64(p.parallelThreshold) {
		degree := parallelDegree(stats.RowCount, p.parallelChunkRows, p.parallelMaxDegree)
		if degree > 1 {
			best = &QueryPlan{
				Op: ParallelScan, Table: table.Name, Conditions: conditions,
				Degree: degree, Cost: best.Cost,
			}
		}
	}
	if best.Degree == 0 {
		best.Degree = 1
	}
	return best
}

// indexUnique looks up whether the index currently chosen as best is
// unique, so a later equal-cost candidate can be tie-broken correctly.
func (q *QueryPlan) indexUnique(table catalog.Table) bool {
	for _, idx := range table.Indexes {
		if idx.Name == q.IndexName {
			return idx.Unique
		}
	}
	return false
}

// estimateSelectivity assumes a uniform key distribution: a unique
// index narrows to exactly one row; otherwise a flat 10% fraction of
// the table, a deliberately coarse estimate in the absence of per-column
// histograms (spec.md's Open Question OQ2, resolved toward simplicity).
func estimateSelectivity(idx catalog.Index, stats TableStats) float64 {
	if idx.Unique {
		if stats.RowCount == 0 {
			return 1
		}
		return 1.0 / float64(stats.RowCount)
	}
	return 0.1
}

// estimateRangeSelectivity assumes a range predicate matches a flatter
// 30% of the table, since a single bound (or a bounded span) typically
// covers more rows than an equality lookup - the same coarse,
// histogram-free estimate estimateSelectivity uses for non-unique
// equality indexes.
func estimateRangeSelectivity(stats TableStats) float64 {
	return 0.3
}

// parallelDegree is min(configured_max, ceil(row_count/chunk_rows)).
func parallelDegree(rowCount int64, chunkRows, maxDegree int) int {
	if chunkRows <= 0 {
		return 1
	}
	degree := int((rowCount + int64(chunkRows) - 1) / int64(chunkRows))
	if degree > maxDegree {
		degree = maxDegree
	}
	if degree < 1 {
		degree = 1
	}
	return degree
}

// extractConditions lifts top-level AND-ed equality/range predicates of
// the form `identifier op literal` out of a WHERE expression tree. ORs
// and predicates that reference two columns are left for the executor's
// row-by-row filter rather than the access-method chooser; this only
// narrows candidate index usage, it never changes result semantics.
func extractConditions(where lang.Node) []Condition {
	if where == nil {
		return nil
	}
	var out []Condition
	var walk func(n lang.Node)
	walk = func(n lang.Node) {
		bin, ok := n.(lang.BinaryOp)
		if !ok {
			return
		}
		if bin.Op == lang.TokAnd {
			walk(bin.Left)
			walk(bin.Right)
			return
		}
		if !isComparison(bin.Op) {
			return
		}
		ident, ok := bin.Left.(lang.Identifier)
		lit, litOk := bin.Right.(lang.Literal)
		if !ok || !litOk {
			return
		}
		out = append(out, Condition{Column: ident.Name, Op: bin.Op, Value: lit.Value})
	}
	walk(where)
	return out
}

func isComparison(op lang.TokenType) bool {
	switch op {
	case lang.TokEq, lang.TokNotEq, lang.TokGt, lang.TokLt, lang.TokGtEq, lang.TokLtEq:
		return true
	default:
		return false
	}
}

// planJoin picks the hash-join build side as the smaller estimated
// table, falling back to a nested-loop plan when On carries no equality
// predicate between the two tables' columns.
func (p *Planner) planJoin(leftTable string, join *lang.JoinClause, leftStats TableStats) *JoinPlan {
	rightStats := p.stats.TableStats(join.Table)
	hashJoin := hasEqualityPredicate(join.On)
	return &JoinPlan{
		Table:       join.Table,
		On:          join.On,
		HashJoin:    hashJoin,
		BuildIsLeft: leftStats.RowCount <= rightStats.RowCount,
	}
}

func hasEqualityPredicate(on lang.Node) bool {
	switch n := on.(type) {
	case lang.BinaryOp:
		if n.Op == lang.TokEq {
			return true
		}
		if n.Op == lang.TokAnd {
			return hasEqualityPredicate(n.Left) || hasEqualityPredicate(n.Right)
		}
	}
	return false
}

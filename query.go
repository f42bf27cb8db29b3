package strata

import (
	"context"
	"strings"

	"github.com/strataql/strata/internal/cache"
	"github.com/strataql/strata/internal/catalog"
	"github.com/strataql/strata/internal/errs"
	"github.com/strataql/strata/internal/exec"
	"github.com/strataql/strata/internal/index"
	"github.com/strataql/strata/internal/lang"
	"github.com/strataql/strata/internal/planner"
	"github.com/strataql/strata/internal/row"
	"github.com/strataql/strata/internal/stripe"
)

// TableStats satisfies planner.Stats: the current row/stripe counts for
// table as of the last reload, read under the same lock Query and the
// write path share.
func (db *DB) TableStats(table string) planner.TableStats {
	db.mu.RLock()
	defer db.mu.RUnlock()
	ts, ok := db.tables[table]
	if !ok {
		return planner.TableStats{}
	}
	var rows int64
	for _, s := range ts.stripes {
		rows += int64(s.RowCount())
	}
	return planner.TableStats{RowCount: rows, StripeCount: int64(len(ts.stripes))}
}

// tableLocator resolves index.RowIDs against one snapshot of a table's
// stripe set. Each lookup decodes every column of the row's stripe in
// full and then picks out the one row.
type tableLocator struct {
	table   catalog.Table
	stripes []*stripe.Stripe
}

func (l *tableLocator) Row(ctx context.Context, id index.RowID) (row.Row, error) {
	si, ri := decodeRowID(id)
	if si < 0 || si >= len(l.stripes) {
		return nil, errs.Newf(errs.Internal, "strata.tableLocator.Row", "stripe index %d out of range", si)
	}
	st := l.stripes[si]
	r := make(row.Row, len(l.table.Columns))
	for i := range l.table.Columns {
		vals, err := st.Column(i)
		if err != nil {
			return nil, errs.IOError("strata.tableLocator.Row", err)
		}
		if ri < len(vals) {
			r[i] = vals[ri]
		}
	}
	return r, nil
}

// Query parses src as a single statement and executes it: SELECT
// statements run through the planner and a streaming internal/exec
// pipeline; DML/DDL statements dispatch to the write path and catalog;
// every other node (procedural script statements) is evaluated by the
// tree-walking evaluator against a fresh top-level environment. That path
// does not go through the hot-path compiler, and definitions made in one
// Query call are not visible to the next.
func (db *DB) Query(ctx context.Context, src string) ([]row.Row, error) {
	p, err := lang.NewParser(src)
	if err != nil {
		return nil, errs.BadInput("strata.Query", err)
	}
	node, err := p.ParseStatement()
	if err != nil {
		return nil, errs.BadInput("strata.Query", err)
	}

	switch n := node.(type) {
	case *lang.Select:
		return db.querySelect(ctx, n)
	case *lang.Insert:
		return nil, db.execInsert(ctx, n)
	case *lang.Update:
		return nil, db.execUpdate(ctx, n)
	case *lang.Delete:
		return nil, db.execDelete(ctx, n)
	case *lang.CreateTable:
		return nil, db.execCreateTable(ctx, n)
	case *lang.CreateIndex:
		return nil, db.execCreateIndex(ctx, n)
	case *lang.CreateView:
		return nil, db.execCreateView(ctx, n)
	case *lang.Drop:
		return nil, db.execDrop(ctx, n)
	case *lang.RefreshView:
		return nil, db.execRefreshView(ctx, n)
	case *lang.Show:
		return db.execShow(n)
	case *lang.Describe:
		return db.execDescribe(n)
	case *lang.Analyze:
		return db.execAnalyze(n)
	default:
		env := lang.NewEnv(nil)
		v, err := db.eval.Eval(node, env, 0)
		if err != nil {
			return nil, err
		}
		return []row.Row{{v}}, nil
	}
}

func (db *DB) newPlanner() *planner.Planner {
	cfg := db.cfg
	return planner.New(db.reg, db, cfg.ParallelScanThreshold, cfg.ParallelScanChunkRows, cfg.ParallelScanMaxDegree)
}

func (db *DB) querySelect(ctx context.Context, sel *lang.Select) ([]row.Row, error) {
	plan, err := db.newPlanner().Plan(sel)
	if err != nil {
		return nil, errs.NoPlan("strata.querySelect", err)
	}

	deps := []string{plan.Table}
	if plan.Join != nil {
		deps = append(deps, plan.Join.Table)
	}
	fp := cache.NewFingerprint(planner.Normalize(sel), nil)
	current := db.snapshotHashes(deps)
	if entry, ok := db.cache.Get(fp, current); ok {
		return cloneRows(entry.Rows), nil
	}

	db.mu.RLock()
	table, tErr := db.reg.GetTable(plan.Table)
	ts, ok := db.tables[plan.Table]
	db.mu.RUnlock()
	if tErr != nil {
		return nil, tErr
	}
	if !ok {
		return nil, errs.Newf(errs.Catalog, "strata.querySelect", "unknown table %q", plan.Table)
	}

	src, err := db.buildScan(ctx, table, ts, plan)
	if err != nil {
		return nil, err
	}

	if sel.Join != nil && plan.Join != nil {
		src, err = db.buildJoin(ctx, src, table, plan)
		if err != nil {
			return nil, err
		}
		// Joined rows carry the left table's columns, then the right's;
		// the stages below bind names against both.
		if right, rErr := db.reg.GetTable(plan.Join.Table); rErr == nil {
			table.Columns = append(append([]catalog.Column{}, table.Columns...), right.Columns...)
		}
	}

	if sel.Where != nil {
		// IndexScan already honors the equality predicate it was built
		// from; re-applying every condition row-by-row keeps correctness
		// for any condition the access method didn't fully capture
		// (residual predicates, a composite WHERE beyond a single index
		// column).
		src = exec.NewFilter(src, table, sel.Where, db.eval, false)
	}

	orderedBeforeProject := false
	if len(plan.GroupBy) > 0 || hasAggregate(plan.Columns) {
		src = exec.NewAggregate(src, table, plan.GroupBy, plan.Columns, db.eval)
		if plan.Having != nil {
			src = exec.NewFilter(src, table, plan.Having, db.eval, false)
		}
	} else {
		// ORDER BY terms may name columns the projection drops, so a
		// non-DISTINCT query is sorted on the full source row first.
		if len(plan.OrderBy) > 0 && !plan.Distinct {
			src = exec.NewOrder(src, table, plan.OrderBy, db.eval, db.cfg)
			orderedBeforeProject = true
		}
		src = exec.NewProject(src, table, plan.Columns, db.eval)
	}

	if plan.Distinct {
		src = exec.NewDistinct(src, db.cfg)
	}
	if len(plan.OrderBy) > 0 && !orderedBeforeProject {
		src = exec.NewOrder(src, table, plan.OrderBy, db.eval, db.cfg)
	}

	rows, err := exec.Drain(ctx, src)
	if err != nil {
		return nil, err
	}
	if plan.HasLimit && plan.Limit < len(rows) {
		rows = rows[:plan.Limit]
	}

	db.cache.Put(fp, cache.Entry{
		Rows:         cloneRows(rows),
		Dependencies: current,
		SizeBytes:    estimateRowsSize(rows),
	})
	return rows, nil
}

// snapshotHashes reports, for each of the given tables, a string that
// changes whenever that table's current stripe set changes - a cheap
// stand-in for a per-table snapshot root used only to key the result
// cache, not for content addressing.
func (db *DB) snapshotHashes(tables []string) map[string]string {
	db.mu.RLock()
	defer db.mu.RUnlock()
	out := make(map[string]string, len(tables))
	for _, name := range tables {
		if ts, ok := db.tables[name]; ok {
			out[name] = strings.Join(ts.stripeHashes, ",")
		} else {
			out[name] = ""
		}
	}
	return out
}

func cloneRows(rows []row.Row) []row.Row {
	out := make([]row.Row, len(rows))
	for i, r := range rows {
		out[i] = r.Clone()
	}
	return out
}

func estimateRowsSize(rows []row.Row) int64 {
	var n int64
	for _, r := range rows {
		for _, v := range r {
			n += int64(len(row.Bytes(v))) + 8
		}
	}
	return n
}

func hasAggregate(cols []lang.Node) bool {
	for _, c := range cols {
		if call, ok := c.(lang.Call); ok {
			if ident, ok := call.Callee.(lang.Identifier); ok {
				switch ident.Name {
				case "SUM", "COUNT", "AVG", "MIN", "MAX", "sum", "count", "avg", "min", "max":
					return true
				}
			}
		}
	}
	return false
}

func (db *DB) buildScan(ctx context.Context, table catalog.Table, ts *tableState, plan *planner.QueryPlan) (exec.RowSource, error) {
	switch plan.Op {
	case planner.IndexScan:
		fallback := func() (exec.RowSource, error) {
			// A stale or missing index, or one the chosen predicate can't
			// actually resolve, falls back to a full scan rather than
			// failing the whole query; planning only ever narrows the
			// candidate access method, it never gates correctness.
			return exec.NewSeqScan(table, ts.stripes, plan.Conditions, db.cfg.RowPollInterval), nil
		}
		idx, err := ts.indexes.Get(plan.IndexName)
		if err != nil {
			return fallback()
		}
		idxDef, ok := indexDef(table, plan.IndexName)
		if !ok {
			return fallback()
		}
		locator := &tableLocator{table: table, stripes: ts.stripes}
		if key := indexKeyFor(idxDef, plan.Conditions); key != nil {
			return exec.NewIndexScan(idx, key, locator)
		}
		lo, hi, loIncl, hiIncl, ok := rangeKeyFor(idxDef, plan.Conditions)
		if !ok {
			return fallback()
		}
		ids, err := idx.Range(lo, hi, loIncl, hiIncl)
		if err != nil {
			return fallback()
		}
		return exec.NewIndexScanFromIDs(ids, locator), nil
	case planner.ParallelScan:
		return exec.NewParallelScan(ctx, table, ts.stripes, plan.Conditions, plan.Degree, db.cfg.RowPollInterval)
	default:
		return exec.NewSeqScan(table, ts.stripes, plan.Conditions, db.cfg.RowPollInterval), nil
	}
}

// indexDef looks up the catalog definition of the named index on table.
func indexDef(table catalog.Table, name string) (catalog.Index, bool) {
	for _, idx := range table.Indexes {
		if idx.Name == name {
			return idx, true
		}
	}
	return catalog.Index{}, false
}

// indexKeyFor builds the equality lookup key for idxDef's columns (in
// the index's own column order) out of the equality conditions the
// planner matched against it. It returns nil if any of idxDef's columns
// lacks a matching equality condition, signaling that buildScan should
// try a range key instead.
func indexKeyFor(idxDef catalog.Index, conditions []planner.Condition) index.Key {
	byCol := map[string]row.Value{}
	for _, c := range conditions {
		if c.Op == lang.TokEq {
			byCol[c.Column] = c.Value
		}
	}
	key := make(index.Key, 0, len(idxDef.Columns))
	for _, col := range idxDef.Columns {
		v, ok := byCol[col]
		if !ok {
			return nil
		}
		key = append(key, v)
	}
	return key
}

// rangeKeyFor builds the [lo, hi] bounds for idxDef's Range method out
// of whichever <, >, <=, >= conditions the planner matched against its
// (single) leading column. ok is false when idxDef isn't single-column
// or no range condition touches it, telling buildScan to fall back to a
// full scan.
func rangeKeyFor(idxDef catalog.Index, conditions []planner.Condition) (lo, hi index.Key, loIncl, hiIncl bool, ok bool) {
	if len(idxDef.Columns) != 1 {
		return nil, nil, false, false, false
	}
	col := idxDef.Columns[0]
	for _, c := range conditions {
		if c.Column != col {
			continue
		}
		switch c.Op {
		case lang.TokGt:
			lo, loIncl, ok = index.Key{c.Value}, false, true
		case lang.TokGtEq:
			lo, loIncl, ok = index.Key{c.Value}, true, true
		case lang.TokLt:
			hi, hiIncl, ok = index.Key{c.Value}, false, true
		case lang.TokLtEq:
			hi, hiIncl, ok = index.Key{c.Value}, true, true
		}
	}
	return lo, hi, loIncl, hiIncl, ok
}

func (db *DB) buildJoin(ctx context.Context, left exec.RowSource, leftTable catalog.Table, plan *planner.QueryPlan) (exec.RowSource, error) {
	db.mu.RLock()
	rightTable, err := db.reg.GetTable(plan.Join.Table)
	rts, ok := db.tables[plan.Join.Table]
	db.mu.RUnlock()
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, errs.Newf(errs.Catalog, "strata.buildJoin", "unknown table %q", plan.Join.Table)
	}
	right := exec.NewSeqScan(rightTable, rts.stripes, nil, db.cfg.RowPollInterval)
	return exec.NewJoin(left, right, leftTable, rightTable, plan.Join.On, db.eval, plan.Join.HashJoin, plan.Join.BuildIsLeft), nil
}

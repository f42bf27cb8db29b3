package strata

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/cespare/xxhash/v2"

	"github.com/strataql/strata/internal/catalog"
	"github.com/strataql/strata/internal/errs"
	"github.com/strataql/strata/internal/lang"
	"github.com/strataql/strata/internal/planner"
	"github.com/strataql/strata/internal/row"
	"github.com/strataql/strata/internal/stripe"
	"github.com/strataql/strata/internal/timeline"
)

// schemaFingerprint hashes a table's column names and types so a stripe
// encoded against one schema generation can never be mistaken for one
// encoded against another, reusing the same xxhash-over-%#v approach
// internal/jit's specialization cache uses for AST fingerprints.
func schemaFingerprint(t catalog.Table) uint64 {
	h := xxhash.New()
	fmt.Fprintf(h, "%s/%#v", t.Name, t.Columns)
	return h.Sum64()
}

func contentHashHex(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// envFor binds one row's columns by name, the strata-package twin of
// internal/exec's unexported rowEnv - the write path needs the same
// binding to evaluate WHERE/SET expressions outside that package.
func envFor(t catalog.Table, r row.Row) *lang.Env {
	env := lang.NewEnv(nil)
	for i, col := range t.Columns {
		if i < len(r) {
			env.Define(col.Name, r[i])
		}
	}
	return env
}

func (db *DB) encodeStripe(t catalog.Table, rows []row.Row) ([]byte, string, error) {
	columns := make([][]row.Value, len(t.Columns))
	for ci := range columns {
		columns[ci] = make([]row.Value, len(rows))
	}
	for ri, r := range rows {
		for ci := range t.Columns {
			if ci < len(r) {
				columns[ci][ri] = r[ci]
			}
		}
	}
	bloomCfg := stripe.BloomStatsConfig{FalsePositiveRate: db.cfg.BloomFalsePositiveRate, MaxBits: db.cfg.BloomMaxBits}
	data, err := stripe.Encode(schemaFingerprint(t), columns, bloomCfg)
	if err != nil {
		return nil, "", err
	}
	return data, contentHashHex(data), nil
}

func decodeStripeRows(t catalog.Table, st *stripe.Stripe) ([]row.Row, error) {
	n := st.RowCount()
	cols := make([][]row.Value, len(t.Columns))
	for i := range t.Columns {
		vals, err := st.Column(i)
		if err != nil {
			return nil, errs.IOError("strata.decodeStripeRows", err)
		}
		cols[i] = vals
	}
	rows := make([]row.Row, n)
	for ri := 0; ri < n; ri++ {
		r := make(row.Row, len(t.Columns))
		for ci := range t.Columns {
			if ri < len(cols[ci]) {
				r[ci] = cols[ci][ri]
			}
		}
		rows[ri] = r
	}
	return rows, nil
}

// validateRow checks every column's nullability, rejecting a nil value
// for a non-nullable column; type checking is deliberately left to the
// language runtime's own coercions, since literals already arrive typed
// from the parser.
func validateRow(t catalog.Table, r row.Row) error {
	for i, col := range t.Columns {
		if i >= len(r) {
			continue
		}
		if r[i] == nil && !col.Nullable {
			return errs.Newf(errs.Constraint, "strata.validateRow", "column %q is not nullable", col.Name)
		}
	}
	return nil
}

// commitTables builds a TableRef for every table in the current schema,
// using newHashes for the one table just mutated and each table's last
// known stripe set otherwise, then durably appends the commit and
// updates db's in-memory view to match.
func (db *DB) commitTables(ctx context.Context, mutatedTable string, newStripes []*stripe.Stripe, newHashes []string, message string) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	schema := db.reg.Snapshot()
	refs := make([]timeline.TableRef, 0, len(schema.Tables))
	for _, t := range schema.Tables {
		hashes := newHashes
		if t.Name != mutatedTable {
			if ts, ok := db.tables[t.Name]; ok {
				hashes = ts.stripeHashes
			} else {
				hashes = nil
			}
		}
		ref, err := timeline.NewTableRef(t.Name, hashes)
		if err != nil {
			return err
		}
		refs = append(refs, ref)
	}

	schemaVersion := schema.MajorVersion*1000 + schema.MinorVersion
	if _, err := db.log.Append(ctx, refs, schemaVersion, message, db.appendRetry()); err != nil {
		return err
	}

	mutatedTableDef, err := db.reg.GetTable(mutatedTable)
	if err != nil {
		return err
	}
	db.tables[mutatedTable] = &tableState{
		stripes:      newStripes,
		stripeHashes: newHashes,
		indexes:      db.rebuildIndexes(mutatedTableDef, newStripes),
	}
	db.cache.InvalidateTable(mutatedTable)
	return nil
}

// execInsert appends a single new stripe holding ins's rows; existing
// stripes are never rewritten, matching spec.md's append-only write
// path for INSERT.
func (db *DB) execInsert(ctx context.Context, ins *lang.Insert) error {
	db.writeMu.Lock()
	defer db.writeMu.Unlock()

	t, err := db.reg.GetTable(ins.Table)
	if err != nil {
		return err
	}
	cols := ins.Columns
	if len(cols) == 0 {
		cols = make([]string, len(t.Columns))
		for i, c := range t.Columns {
			cols[i] = c.Name
		}
	}
	colIdx := make([]int, len(cols))
	for i, name := range cols {
		colIdx[i] = t.ColumnIndex(name)
		if colIdx[i] < 0 {
			return errs.Newf(errs.Syntax, "strata.execInsert", "unknown column %q", name)
		}
	}

	env := lang.NewEnv(nil)
	rows := make([]row.Row, len(ins.Rows))
	for ri, values := range ins.Rows {
		if len(values) != len(cols) {
			return errs.Newf(errs.Syntax, "strata.execInsert", "row %d has %d values, want %d", ri, len(values), len(cols))
		}
		r := make(row.Row, len(t.Columns))
		for vi, expr := range values {
			v, err := db.eval.Eval(expr, env, 0)
			if err != nil {
				return err
			}
			r[colIdx[vi]] = v
		}
		if err := validateRow(t, r); err != nil {
			return err
		}
		rows[ri] = r
	}

	data, hash, err := db.encodeStripe(t, rows)
	if err != nil {
		return err
	}
	if err := db.store.Put(ctx, stripePath(t.Name, hash), data); err != nil {
		return errs.IOError("strata.execInsert", err)
	}
	st, err := stripe.Decode(data)
	if err != nil {
		return err
	}

	db.mu.RLock()
	cur := db.tables[t.Name]
	db.mu.RUnlock()
	newStripes := append(append([]*stripe.Stripe{}, cur.stripes...), st)
	newHashes := append(append([]string{}, cur.stripeHashes...), hash)

	return db.commitTables(ctx, t.Name, newStripes, newHashes, fmt.Sprintf("insert %d row(s) into %s", len(rows), t.Name))
}

// applyMutation rebuilds t's full stripe set, re-encoding only the
// stripes apply actually touched and leaving the rest referenced by
// their existing hash (copy-on-write at stripe granularity).
func (db *DB) applyMutation(ctx context.Context, t catalog.Table, ts *tableState, where lang.Node, apply func(row.Row) (row.Row, bool), message string) error {
	var newStripes []*stripe.Stripe
	var newHashes []string
	changed := false

	for si, st := range ts.stripes {
		rows, err := decodeStripeRows(t, st)
		if err != nil {
			return err
		}
		out := make([]row.Row, 0, len(rows))
		stripeMatched := false
		for _, r := range rows {
			match := true
			if where != nil {
				v, evalErr := db.eval.Eval(where, envFor(t, r), 0)
				if evalErr != nil {
					return evalErr
				}
				match = lang.Truthy(v)
			}
			if !match {
				out = append(out, r)
				continue
			}
			stripeMatched = true
			nr, keep := apply(r)
			if keep {
				out = append(out, nr)
			}
		}
		if !stripeMatched {
			newStripes = append(newStripes, st)
			newHashes = append(newHashes, ts.stripeHashes[si])
			continue
		}
		changed = true
		if len(out) == 0 {
			continue
		}
		data, hash, err := db.encodeStripe(t, out)
		if err != nil {
			return err
		}
		if err := db.store.Put(ctx, stripePath(t.Name, hash), data); err != nil {
			return errs.IOError("strata.applyMutation", err)
		}
		newSt, err := stripe.Decode(data)
		if err != nil {
			return err
		}
		newStripes = append(newStripes, newSt)
		newHashes = append(newHashes, hash)
	}
	if !changed {
		return nil
	}
	return db.commitTables(ctx, t.Name, newStripes, newHashes, message)
}

func (db *DB) execUpdate(ctx context.Context, upd *lang.Update) error {
	db.writeMu.Lock()
	defer db.writeMu.Unlock()

	t, err := db.reg.GetTable(upd.Table)
	if err != nil {
		return err
	}
	db.mu.RLock()
	ts := db.tables[t.Name]
	db.mu.RUnlock()

	apply := func(r row.Row) (row.Row, bool) {
		nr := r.Clone()
		env := envFor(t, r)
		for name, expr := range upd.Set {
			idx := t.ColumnIndex(name)
			if idx < 0 {
				continue
			}
			v, evalErr := db.eval.Eval(expr, env, 0)
			if evalErr != nil {
				return r, true
			}
			nr[idx] = v
		}
		return nr, true
	}
	return db.applyMutation(ctx, t, ts, upd.Where, apply, fmt.Sprintf("update %s", t.Name))
}

func (db *DB) execDelete(ctx context.Context, del *lang.Delete) error {
	db.writeMu.Lock()
	defer db.writeMu.Unlock()

	t, err := db.reg.GetTable(del.Table)
	if err != nil {
		return err
	}
	db.mu.RLock()
	ts := db.tables[t.Name]
	db.mu.RUnlock()

	apply := func(r row.Row) (row.Row, bool) { return r, false }
	return db.applyMutation(ctx, t, ts, del.Where, apply, fmt.Sprintf("delete from %s", t.Name))
}

func (db *DB) execCreateTable(ctx context.Context, ct *lang.CreateTable) error {
	db.writeMu.Lock()
	defer db.writeMu.Unlock()

	cols := make([]catalog.Column, len(ct.Columns))
	for i, c := range ct.Columns {
		ty, ok := catalog.ParseColumnType(c.Type)
		if !ok {
			return errs.Newf(errs.Syntax, "strata.execCreateTable", "unknown column type %q", c.Type)
		}
		cols[i] = catalog.Column{Name: c.Name, Type: ty, Nullable: c.Nullable}
	}
	if err := db.reg.CreateTable(ctx, ct.Table, cols); err != nil {
		return err
	}
	return db.reloadAll(ctx)
}

func parseIndexKind(s string) catalog.IndexKind {
	switch s {
	case "hash":
		return catalog.IndexHash
	case "bloom":
		return catalog.IndexBloom
	case "bitmap":
		return catalog.IndexBitmap
	default:
		return catalog.IndexBTree
	}
}

func (db *DB) execCreateIndex(ctx context.Context, ci *lang.CreateIndex) error {
	db.writeMu.Lock()
	defer db.writeMu.Unlock()

	idx := catalog.Index{
		Name:    ci.Name,
		Table:   ci.Table,
		Columns: ci.Columns,
		Kind:    parseIndexKind(ci.Kind),
		Unique:  ci.Unique,
	}
	if err := db.reg.AddIndex(ctx, ci.Table, idx); err != nil {
		return err
	}
	return db.reloadAll(ctx)
}

func (db *DB) execCreateView(ctx context.Context, cv *lang.CreateView) error {
	db.writeMu.Lock()
	defer db.writeMu.Unlock()

	deps := []string{cv.Select.From}
	if cv.Select.Join != nil {
		deps = append(deps, cv.Select.Join.Table)
	}
	v := catalog.View{
		Name:             cv.Name,
		SourceQuery:      planner.Normalize(cv.Select),
		DependencyTables: deps,
	}
	if err := db.reg.CreateView(ctx, v); err != nil {
		return err
	}
	return db.materializeView(ctx, v)
}

func (db *DB) execDrop(ctx context.Context, d *lang.Drop) error {
	db.writeMu.Lock()
	defer db.writeMu.Unlock()

	var err error
	switch d.Kind {
	case lang.DropTableKind:
		err = db.reg.DropTable(ctx, d.Name)
	case lang.DropIndexKind:
		err = db.dropIndexByName(ctx, d.Name)
	case lang.DropViewKind:
		err = db.reg.DropView(ctx, d.Name)
	}
	if err != nil {
		return err
	}
	return db.reloadAll(ctx)
}

// dropIndexByName finds which table owns the named index, since DROP
// INDEX names only the index (spec.md's grammar doesn't require ON
// table for a drop).
func (db *DB) dropIndexByName(ctx context.Context, name string) error {
	for _, t := range db.reg.Snapshot().Tables {
		for _, idx := range t.Indexes {
			if idx.Name == name {
				return db.reg.DropIndex(ctx, t.Name, name)
			}
		}
	}
	return errs.Newf(errs.Catalog, "strata.dropIndexByName", "unknown index %q", name)
}

func (db *DB) execRefreshView(ctx context.Context, rv *lang.RefreshView) error {
	db.writeMu.Lock()
	defer db.writeMu.Unlock()

	v, err := db.reg.GetView(rv.Name)
	if err != nil {
		return err
	}
	return db.materializeView(ctx, v)
}

// materializeView re-runs v's source query and records, as the view's
// StripeSetRef, a content hash over the view's name, source text and
// result row count. The rows themselves are not stored: no stripe set is
// written for the view, and querying it re-executes the source query.
func (db *DB) materializeView(ctx context.Context, v catalog.View) error {
	p, err := lang.NewParser(v.SourceQuery)
	if err != nil {
		return errs.BadInput("strata.materializeView", err)
	}
	node, err := p.ParseStatement()
	if err != nil {
		return errs.BadInput("strata.materializeView", err)
	}
	sel, ok := node.(*lang.Select)
	if !ok {
		return errs.Newf(errs.Syntax, "strata.materializeView", "view %q source is not a SELECT", v.Name)
	}
	rows, err := db.querySelect(ctx, sel)
	if err != nil {
		return err
	}
	ref := contentHashHex([]byte(v.Name + v.SourceQuery + fmt.Sprintf("%d", len(rows))))
	return db.reg.UpdateViewRef(ctx, v.Name, ref)
}

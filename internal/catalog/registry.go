package catalog

import (
	"context"
	"errors"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/strataql/strata/internal/blob"
	"github.com/strataql/strata/internal/errs"
)

const metaPath = "schema/database.meta"

// Registry is the in-memory, reader/writer-disciplined handle onto a
// DatabaseSchema: readers clone the handle, writers replace the whole
// schema via pointer swap (spec.md §5 "shared-resource policy").
type Registry struct {
	store *blob.Store

	mu     sync.RWMutex
	schema *DatabaseSchema
}

// Open loads (or initializes) the schema registry rooted at store.
func Open(ctx context.Context, name string, store *blob.Store) (*Registry, error) {
	r := &Registry{store: store}
	if err := r.load(ctx, name); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *Registry) load(ctx context.Context, name string) error {
	data, err := r.store.Get(ctx, metaPath)
	if errors.Is(err, blob.ErrNotFound) {
		r.schema = &DatabaseSchema{Name: name, MajorVersion: 1, MinorVersion: 0}
		return r.save(ctx)
	}
	if err != nil {
		return errs.IOError("catalog.load", err)
	}
	var s DatabaseSchema
	if err := yaml.Unmarshal(data, &s); err != nil {
		return errs.Corrupt("catalog.load", err)
	}
	r.schema = &s
	return nil
}

func (r *Registry) save(ctx context.Context) error {
	data, err := yaml.Marshal(r.schema)
	if err != nil {
		return errs.Invariant("catalog.save", "I2", err)
	}
	if err := r.store.Put(ctx, metaPath, data); err != nil {
		return errs.IOError("catalog.save", err)
	}
	return nil
}

// Snapshot returns a deep-enough copy of the current schema for readers:
// slices are copied so a subsequent writer's pointer swap cannot be
// observed mid-read.
func (r *Registry) Snapshot() DatabaseSchema {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s := *r.schema
	s.Tables = append([]Table(nil), r.schema.Tables...)
	s.Views = append([]View(nil), r.schema.Views...)
	return s
}

// ListTables returns the names of every table in the catalog.
func (r *Registry) ListTables() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, len(r.schema.Tables))
	for i, t := range r.schema.Tables {
		names[i] = t.Name
	}
	return names
}

// GetTable returns a copy of the named table, or an UnknownTable error.
func (r *Registry) GetTable(name string) (Table, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, t := range r.schema.Tables {
		if t.Name == name {
			return t, nil
		}
	}
	return Table{}, errs.Newf(errs.Catalog, "catalog.GetTable", "unknown table %q", name)
}

// CreateTable adds a new table. Fails with Constraint/Catalog-kind
// SchemaConflict when the name already exists.
func (r *Registry) CreateTable(ctx context.Context, name string, columns []Column) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, t := range r.schema.Tables {
		if t.Name == name {
			return errs.Newf(errs.Constraint, "catalog.CreateTable", "table %q already exists", name)
		}
	}
	seen := map[string]bool{}
	for _, c := range columns {
		if seen[c.Name] {
			return errs.Newf(errs.Syntax, "catalog.CreateTable", "duplicate column %q", c.Name)
		}
		seen[c.Name] = true
	}
	next := *r.schema
	next.Tables = append(append([]Table(nil), r.schema.Tables...), Table{Name: name, Columns: columns})
	next.MinorVersion++
	if err := r.swapAndSave(ctx, &next); err != nil {
		return err
	}
	return nil
}

// DropTable removes a table and every index defined on it. This is a
// major-version-bumping structural change, not an append-only minor one.
func (r *Registry) DropTable(ctx context.Context, name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	idx := -1
	for i, t := range r.schema.Tables {
		if t.Name == name {
			idx = i
			break
		}
	}
	if idx < 0 {
		return errs.Newf(errs.Catalog, "catalog.DropTable", "unknown table %q", name)
	}
	next := *r.schema
	next.Tables = append(append([]Table(nil), r.schema.Tables[:idx]...), r.schema.Tables[idx+1:]...)
	next.MajorVersion++
	next.MinorVersion = 0
	return r.swapAndSave(ctx, &next)
}

// AddColumn appends a new column to table, a minor-version change per
// spec.md §4.B ("Column additions are append-only in a minor version").
func (r *Registry) AddColumn(ctx context.Context, table string, col Column) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	tables := append([]Table(nil), r.schema.Tables...)
	found := false
	for i, t := range tables {
		if t.Name != table {
			continue
		}
		found = true
		if t.ColumnIndex(col.Name) >= 0 {
			return errs.Newf(errs.Constraint, "catalog.AddColumn", "column %q already exists on %q", col.Name, table)
		}
		nt := t
		nt.Columns = append(append([]Column(nil), t.Columns...), col)
		tables[i] = nt
	}
	if !found {
		return errs.Newf(errs.Catalog, "catalog.AddColumn", "unknown table %q", table)
	}
	next := *r.schema
	next.Tables = tables
	next.MinorVersion++
	return r.swapAndSave(ctx, &next)
}

// AddIndex registers a secondary index on table. Fails with UnknownTable
// or UnknownColumn (Catalog kind) when referenced entities are absent, or
// SchemaConflict (Constraint kind) when the index name is taken.
func (r *Registry) AddIndex(ctx context.Context, table string, idx Index) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	tables := append([]Table(nil), r.schema.Tables...)
	pos := -1
	for i, t := range tables {
		if t.Name == table {
			pos = i
			break
		}
	}
	if pos < 0 {
		return errs.Newf(errs.Catalog, "catalog.AddIndex", "unknown table %q", table)
	}
	t := tables[pos]
	for _, c := range idx.Columns {
		if t.ColumnIndex(c) < 0 {
			return errs.Newf(errs.Catalog, "catalog.AddIndex", "unknown column %q on table %q", c, table)
		}
	}
	for _, existing := range t.Indexes {
		if existing.Name == idx.Name {
			return errs.Newf(errs.Constraint, "catalog.AddIndex", "index %q already exists on %q", idx.Name, table)
		}
	}
	idx.Table = table
	nt := t
	nt.Indexes = append(append([]Index(nil), t.Indexes...), idx)
	tables[pos] = nt

	next := *r.schema
	next.Tables = tables
	next.MinorVersion++
	return r.swapAndSave(ctx, &next)
}

// DropIndex removes a named index from table.
func (r *Registry) DropIndex(ctx context.Context, table, name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	tables := append([]Table(nil), r.schema.Tables...)
	pos := -1
	for i, t := range tables {
		if t.Name == table {
			pos = i
			break
		}
	}
	if pos < 0 {
		return errs.Newf(errs.Catalog, "catalog.DropIndex", "unknown table %q", table)
	}
	t := tables[pos]
	idxPos := -1
	for i, ix := range t.Indexes {
		if ix.Name == name {
			idxPos = i
			break
		}
	}
	if idxPos < 0 {
		return errs.Newf(errs.Catalog, "catalog.DropIndex", "unknown index %q on %q", name, table)
	}
	nt := t
	nt.Indexes = append(append([]Index(nil), t.Indexes[:idxPos]...), t.Indexes[idxPos+1:]...)
	tables[pos] = nt

	next := *r.schema
	next.Tables = tables
	next.MinorVersion++
	return r.swapAndSave(ctx, &next)
}

// CreateView registers a materialized view definition.
func (r *Registry) CreateView(ctx context.Context, v View) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.schema.Views {
		if existing.Name == v.Name {
			return errs.Newf(errs.Constraint, "catalog.CreateView", "view %q already exists", v.Name)
		}
	}
	next := *r.schema
	next.Views = append(append([]View(nil), r.schema.Views...), v)
	next.MinorVersion++
	return r.swapAndSave(ctx, &next)
}

// GetView returns a copy of the named view.
func (r *Registry) GetView(name string) (View, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, v := range r.schema.Views {
		if v.Name == name {
			return v, nil
		}
	}
	return View{}, errs.Newf(errs.Catalog, "catalog.GetView", "unknown view %q", name)
}

// DropView removes a materialized view definition.
func (r *Registry) DropView(ctx context.Context, name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	idx := -1
	for i, v := range r.schema.Views {
		if v.Name == name {
			idx = i
			break
		}
	}
	if idx < 0 {
		return errs.Newf(errs.Catalog, "catalog.DropView", "unknown view %q", name)
	}
	next := *r.schema
	next.Views = append(append([]View(nil), r.schema.Views[:idx]...), r.schema.Views[idx+1:]...)
	next.MinorVersion++
	return r.swapAndSave(ctx, &next)
}

// UpdateViewRef rewrites a view's stripe_set_ref after a refresh.
func (r *Registry) UpdateViewRef(ctx context.Context, name, stripeSetRef string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	views := append([]View(nil), r.schema.Views...)
	found := false
	for i, v := range views {
		if v.Name == name {
			v.StripeSetRef = stripeSetRef
			views[i] = v
			found = true
			break
		}
	}
	if !found {
		return errs.Newf(errs.Catalog, "catalog.UpdateViewRef", "unknown view %q", name)
	}
	next := *r.schema
	next.Views = views
	return r.swapAndSave(ctx, &next)
}

func (r *Registry) swapAndSave(ctx context.Context, next *DatabaseSchema) error {
	prev := r.schema
	r.schema = next
	if err := r.save(ctx); err != nil {
		r.schema = prev
		return err
	}
	return nil
}

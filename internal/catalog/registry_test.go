package catalog

import (
	"context"
	"testing"

	"github.com/strataql/strata/internal/blob"
	"github.com/strataql/strata/internal/errs"
)

func newRegistry(t *testing.T) *Registry {
	t.Helper()
	store, err := blob.Open(t.TempDir())
	if err != nil {
		t.Fatalf("blob.Open: %v", err)
	}
	r, err := Open(context.Background(), "testdb", store)
	if err != nil {
		t.Fatalf("catalog.Open: %v", err)
	}
	return r
}

func TestCreateAndGetTable(t *testing.T) {
	ctx := context.Background()
	r := newRegistry(t)

	cols := []Column{{Name: "id", Type: TypeInt}, {Name: "v", Type: TypeInt}}
	if err := r.CreateTable(ctx, "t", cols); err != nil {
		t.Fatalf("CreateTable: %v", err)
	}

	table, err := r.GetTable("t")
	if err != nil {
		t.Fatalf("GetTable: %v", err)
	}
	if len(table.Columns) != 2 || table.Columns[0].Name != "id" {
		t.Fatalf("GetTable returned %+v", table)
	}
}

func TestCreateTableConflict(t *testing.T) {
	ctx := context.Background()
	r := newRegistry(t)
	cols := []Column{{Name: "id", Type: TypeInt}}
	if err := r.CreateTable(ctx, "t", cols); err != nil {
		t.Fatalf("CreateTable: %v", err)
	}
	err := r.CreateTable(ctx, "t", cols)
	if !errs.KindIs(err, errs.Constraint) {
		t.Fatalf("CreateTable duplicate: got %v, want Constraint", err)
	}
}

func TestAddIndexUnknownColumn(t *testing.T) {
	ctx := context.Background()
	r := newRegistry(t)
	if err := r.CreateTable(ctx, "t", []Column{{Name: "id", Type: TypeInt}}); err != nil {
		t.Fatalf("CreateTable: %v", err)
	}
	err := r.AddIndex(ctx, "t", Index{Name: "ix", Columns: []string{"missing"}, Kind: IndexBTree})
	if !errs.KindIs(err, errs.Catalog) {
		t.Fatalf("AddIndex unknown column: got %v, want Catalog", err)
	}
}

func TestAddIndexAndPersistAcrossReopen(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	store, err := blob.Open(dir)
	if err != nil {
		t.Fatalf("blob.Open: %v", err)
	}
	r, err := Open(ctx, "testdb", store)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := r.CreateTable(ctx, "t", []Column{{Name: "id", Type: TypeInt}}); err != nil {
		t.Fatalf("CreateTable: %v", err)
	}
	if err := r.AddIndex(ctx, "t", Index{Name: "ix_id", Columns: []string{"id"}, Kind: IndexBTree, Unique: true}); err != nil {
		t.Fatalf("AddIndex: %v", err)
	}

	reopened, err := Open(ctx, "testdb", store)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	table, err := reopened.GetTable("t")
	if err != nil {
		t.Fatalf("GetTable after reopen: %v", err)
	}
	if len(table.Indexes) != 1 || table.Indexes[0].Name != "ix_id" {
		t.Fatalf("indexes did not persist: %+v", table.Indexes)
	}
}

func TestAddColumnIsAppendOnlyMinorBump(t *testing.T) {
	ctx := context.Background()
	r := newRegistry(t)
	if err := r.CreateTable(ctx, "t", []Column{{Name: "id", Type: TypeInt}}); err != nil {
		t.Fatalf("CreateTable: %v", err)
	}
	before := r.Snapshot().MinorVersion
	if err := r.AddColumn(ctx, "t", Column{Name: "v2", Type: TypeFloat, Nullable: true}); err != nil {
		t.Fatalf("AddColumn: %v", err)
	}
	snap := r.Snapshot()
	if snap.MinorVersion != before+1 {
		t.Fatalf("MinorVersion = %d, want %d", snap.MinorVersion, before+1)
	}
	if snap.MajorVersion != 1 {
		t.Fatalf("MajorVersion changed on column add: %d", snap.MajorVersion)
	}
}

func TestDropTableBumpsMajorVersion(t *testing.T) {
	ctx := context.Background()
	r := newRegistry(t)
	if err := r.CreateTable(ctx, "t", []Column{{Name: "id", Type: TypeInt}}); err != nil {
		t.Fatalf("CreateTable: %v", err)
	}
	before := r.Snapshot().MajorVersion
	if err := r.DropTable(ctx, "t"); err != nil {
		t.Fatalf("DropTable: %v", err)
	}
	if r.Snapshot().MajorVersion != before+1 {
		t.Fatalf("MajorVersion = %d, want %d", r.Snapshot().MajorVersion, before+1)
	}
	if _, err := r.GetTable("t"); !errs.KindIs(err, errs.Catalog) {
		t.Fatalf("GetTable after drop: got %v, want Catalog", err)
	}
}

package planner

import (
	"context"
	"testing"

	"github.com/strataql/strata/internal/blob"
	"github.com/strataql/strata/internal/catalog"
	"github.com/strataql/strata/internal/lang"
)

type fakeStats map[string]TableStats

func (f fakeStats) TableStats(table string) TableStats { return f[table] }

func newRegistry(t *testing.T) *catalog.Registry {
	t.Helper()
	store, err := blob.Open(t.TempDir())
	if err != nil {
		t.Fatalf("blob.Open: %v", err)
	}
	reg, err := catalog.Open(context.Background(), "testdb", store)
	if err != nil {
		t.Fatalf("catalog.Open: %v", err)
	}
	return reg
}

func parseSelect(t *testing.T, src string) *lang.Select {
	t.Helper()
	p, err := lang.NewParser(src)
	if err != nil {
		t.Fatalf("NewParser(%q): %v", src, err)
	}
	n, err := p.ParseStatement()
	if err != nil {
		t.Fatalf("ParseStatement(%q): %v", src, err)
	}
	sel, ok := n.(*lang.Select)
	if !ok {
		t.Fatalf("got %T, want *lang.Select", n)
	}
	return sel
}

func TestPlanSeqScanWhenNoIndex(t *testing.T) {
	reg := newRegistry(t)
	ctx := context.Background()
	if err := reg.CreateTable(ctx, "orders", []catalog.Column{
		{Name: "id", Type: catalog.TypeInt}, {Name: "amount", Type: catalog.TypeInt},
	}); err != nil {
		t.Fatalf("CreateTable: %v", err)
	}
	stats := fakeStats{"orders": {RowCount: 100}}
	pl := New(reg, stats, 50_000, 10_000, 8)

	sel := parseSelect(t, "SELECT * FROM orders WHERE amount == 5")
	plan, err := pl.Plan(sel)
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}
	if plan.Op != SeqScan {
		t.Fatalf("Op = %v, want SeqScan", plan.Op)
	}
	if len(plan.Conditions) != 1 || plan.Conditions[0].Column != "amount" {
		t.Fatalf("Conditions = %+v", plan.Conditions)
	}
}

func TestPlanIndexScanWhenEqualityIndexed(t *testing.T) {
	reg := newRegistry(t)
	ctx := context.Background()
	if err := reg.CreateTable(ctx, "orders", []catalog.Column{
		{Name: "id", Type: catalog.TypeInt}, {Name: "cust_id", Type: catalog.TypeInt},
	}); err != nil {
		t.Fatalf("CreateTable: %v", err)
	}
	if err := reg.AddIndex(ctx, "orders", catalog.Index{
		Name: "idx_cust", Table: "orders", Columns: []string{"cust_id"}, Kind: catalog.IndexHash, Unique: true,
	}); err != nil {
		t.Fatalf("AddIndex: %v", err)
	}
	stats := fakeStats{"orders": {RowCount: 1_000_000}}
	pl := New(reg, stats, 50_000, 10_000, 8)

	sel := parseSelect(t, "SELECT * FROM orders WHERE cust_id == 42")
	plan, err := pl.Plan(sel)
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}
	if plan.Op != IndexScan || plan.IndexName != "idx_cust" {
		t.Fatalf("got %+v", plan)
	}
}

func TestPlanParallelScanAboveThreshold(t *testing.T) {
	reg := newRegistry(t)
	ctx := context.Background()
	if err := reg.CreateTable(ctx, "events", []catalog.Column{{Name: "id", Type: catalog.TypeInt}}); err != nil {
		t.Fatalf("CreateTable: %v", err)
	}
	stats := fakeStats{"events": {RowCount: 1_000_000}}
	pl := New(reg, stats, 50_000, 10_000, 8)

	sel := parseSelect(t, "SELECT * FROM events")
	plan, err := pl.Plan(sel)
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}
	if plan.Op != ParallelScan {
		t.Fatalf("Op = %v, want ParallelScan", plan.Op)
	}
	if plan.Degree != 8 {
		t.Fatalf("Degree = %d, want 8 (capped at max)", plan.Degree)
	}
}

func TestPlanJoinPicksSmallerBuildSide(t *testing.T) {
	reg := newRegistry(t)
	ctx := context.Background()
	if err := reg.CreateTable(ctx, "orders", []catalog.Column{{Name: "cust_id", Type: catalog.TypeInt}}); err != nil {
		t.Fatalf("CreateTable: %v", err)
	}
	if err := reg.CreateTable(ctx, "customers", []catalog.Column{{Name: "id", Type: catalog.TypeInt}}); err != nil {
		t.Fatalf("CreateTable: %v", err)
	}
	stats := fakeStats{
		"orders":    {RowCount: 1_000_000},
		"customers": {RowCount: 100},
	}
	pl := New(reg, stats, 50_000, 10_000, 8)

	sel := parseSelect(t, "SELECT * FROM orders JOIN customers ON orders.cust_id == customers.id")
	plan, err := pl.Plan(sel)
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}
	if plan.Join == nil || !plan.Join.HashJoin {
		t.Fatalf("expected hash join, got %+v", plan.Join)
	}
	if plan.Join.BuildIsLeft {
		t.Fatalf("expected customers (smaller, right side) as build side")
	}
}

func TestPlanMaterializedViewSubstitution(t *testing.T) {
	reg := newRegistry(t)
	ctx := context.Background()
	if err := reg.CreateTable(ctx, "orders", []catalog.Column{{Name: "amount", Type: catalog.TypeInt}}); err != nil {
		t.Fatalf("CreateTable: %v", err)
	}
	sel := parseSelect(t, "SELECT * FROM orders")
	normalized := Normalize(sel)
	if err := reg.CreateView(ctx, catalog.View{
		Name: "v_orders", SourceQuery: normalized, DependencyTables: []string{"orders"},
	}); err != nil {
		t.Fatalf("AddView: %v", err)
	}
	stats := fakeStats{"orders": {RowCount: 10}}
	pl := New(reg, stats, 50_000, 10_000, 8)

	plan, err := pl.Plan(sel)
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}
	if plan.ViewName != "v_orders" {
		t.Fatalf("expected view substitution, got %+v", plan)
	}
}

func TestNormalizeIgnoresWhitespaceAndCase(t *testing.T) {
	a := parseSelect(t, "SELECT * FROM t WHERE a == 1")
	b := parseSelect(t, "select   *   from t where   a==1")
	if Normalize(a) != Normalize(b) {
		t.Fatalf("Normalize differs: %q vs %q", Normalize(a), Normalize(b))
	}
}

package lang

import "testing"

func mustParse(t *testing.T, src string) Node {
	t.Helper()
	p, err := NewParser(src)
	if err != nil {
		t.Fatalf("NewParser(%q): %v", src, err)
	}
	n, err := p.ParseStatement()
	if err != nil {
		t.Fatalf("ParseStatement(%q): %v", src, err)
	}
	return n
}

func TestParseSelectFull(t *testing.T) {
	src := `SELECT DISTINCT a, b FROM orders JOIN customers ON orders.cust_id == customers.id
		WHERE amount > 10 GROUP BY a HAVING amount > 100 ORDER BY a DESC LIMIT 5`
	n := mustParse(t, src)
	sel, ok := n.(*Select)
	if !ok {
		t.Fatalf("got %T, want *Select", n)
	}
	if !sel.Distinct {
		t.Fatalf("expected DISTINCT")
	}
	if sel.From != "orders" {
		t.Fatalf("From = %q", sel.From)
	}
	if sel.Join == nil || sel.Join.Table != "customers" {
		t.Fatalf("Join = %+v", sel.Join)
	}
	if sel.Where == nil {
		t.Fatalf("expected WHERE clause")
	}
	if len(sel.GroupBy) != 1 {
		t.Fatalf("GroupBy = %v", sel.GroupBy)
	}
	if sel.Having == nil {
		t.Fatalf("expected HAVING clause")
	}
	if len(sel.OrderBy) != 1 || !sel.OrderBy[0].Desc {
		t.Fatalf("OrderBy = %+v", sel.OrderBy)
	}
	if !sel.HasLimit || sel.Limit != 5 {
		t.Fatalf("Limit = %d HasLimit=%v", sel.Limit, sel.HasLimit)
	}
}

func TestParseSelectStar(t *testing.T) {
	sel := mustParse(t, "SELECT * FROM t").(*Select)
	if len(sel.Columns) != 1 {
		t.Fatalf("Columns = %v", sel.Columns)
	}
	if _, ok := sel.Columns[0].(Identifier); !ok {
		t.Fatalf("Columns[0] = %T", sel.Columns[0])
	}
}

func TestParseWindowAggregate(t *testing.T) {
	sel := mustParse(t, "SELECT @SUM(amount) FROM t").(*Select)
	if _, ok := sel.Columns[0].(WindowCall); !ok {
		t.Fatalf("Columns[0] = %T, want WindowCall", sel.Columns[0])
	}
}

func TestParseInsert(t *testing.T) {
	ins := mustParse(t, "INSERT INTO t (a, b) VALUES (1, 'x'), (2, 'y')").(*Insert)
	if ins.Table != "t" || len(ins.Columns) != 2 || len(ins.Rows) != 2 {
		t.Fatalf("got %+v", ins)
	}
}

func TestParseUpdate(t *testing.T) {
	upd := mustParse(t, "UPDATE t SET a = 1, b = 2 WHERE a == 0").(*Update)
	if upd.Table != "t" || len(upd.Set) != 2 || upd.Where == nil {
		t.Fatalf("got %+v", upd)
	}
}

func TestParseDelete(t *testing.T) {
	del := mustParse(t, "DELETE FROM t WHERE a == 1").(*Delete)
	if del.Table != "t" || del.Where == nil {
		t.Fatalf("got %+v", del)
	}
}

func TestParseCreateTable(t *testing.T) {
	ct := mustParse(t, "CREATE TABLE t (a int, b string)").(*CreateTable)
	if ct.Table != "t" || len(ct.Columns) != 2 {
		t.Fatalf("got %+v", ct)
	}
}

func TestParseCreateIndex(t *testing.T) {
	ci := mustParse(t, "CREATE INDEX idx_a ON t (a) USING bitmap UNIQUE").(*CreateIndex)
	if ci.Name != "idx_a" || ci.Table != "t" || ci.Kind != "bitmap" || !ci.Unique {
		t.Fatalf("got %+v", ci)
	}
}

func TestParseCreateMaterializedView(t *testing.T) {
	cv := mustParse(t, "CREATE MATERIALIZED VIEW v AS SELECT * FROM t").(*CreateView)
	if cv.Name != "v" || cv.Select == nil || cv.Select.From != "t" {
		t.Fatalf("got %+v", cv)
	}
}

func TestParseDropAndRefresh(t *testing.T) {
	d := mustParse(t, "DROP INDEX idx_a").(*Drop)
	if d.Kind != DropIndexKind || d.Name != "idx_a" {
		t.Fatalf("got %+v", d)
	}
	r := mustParse(t, "REFRESH MATERIALIZED VIEW v").(*RefreshView)
	if r.Name != "v" {
		t.Fatalf("got %+v", r)
	}
}

func TestParseFunctionDef(t *testing.T) {
	fn := mustParse(t, "FUNCTION add(a, b) { a + b }").(*FunctionDef)
	if fn.Name != "add" || len(fn.Params) != 2 || len(fn.Body) != 1 {
		t.Fatalf("got %+v", fn)
	}
}

func TestParseLetMatchForWhileTry(t *testing.T) {
	l := mustParse(t, "LET x = 1 + 2").(*Let)
	if l.Name != "x" {
		t.Fatalf("got %+v", l)
	}
	m := mustParse(t, "MATCH x { case 1 => \"one\", case _ => \"other\" }").(*Match)
	if len(m.Cases) != 2 {
		t.Fatalf("got %+v", m)
	}
	f := mustParse(t, "FOR x IN xs { x }").(*For)
	if f.Var != "x" {
		t.Fatalf("got %+v", f)
	}
	w := mustParse(t, "WHILE x { x }").(*While)
	if w.Cond == nil {
		t.Fatalf("got %+v", w)
	}
	tr := mustParse(t, "TRY x CATCH y").(*Try)
	if tr.Body == nil || tr.Catch == nil {
		t.Fatalf("got %+v", tr)
	}
}

func TestParseExpressionPrecedence(t *testing.T) {
	n := mustParse(t, "1 + 2 * 3")
	bin, ok := n.(BinaryOp)
	if !ok || bin.Op != TokPlus {
		t.Fatalf("top-level op = %+v, want +", n)
	}
	rhs, ok := bin.Right.(BinaryOp)
	if !ok || rhs.Op != TokStar {
		t.Fatalf("rhs = %+v, want *", bin.Right)
	}
}

func TestParsePipeAndFieldAccessAndCast(t *testing.T) {
	n := mustParse(t, "row.amount :: float |> abs()")
	pipe, ok := n.(Pipe)
	if !ok {
		t.Fatalf("got %T, want Pipe", n)
	}
	cast, ok := pipe.Left.(Cast)
	if !ok || cast.Type != "float" {
		t.Fatalf("got %+v", pipe.Left)
	}
	if _, ok := cast.Target.(FieldAccess); !ok {
		t.Fatalf("got %T, want FieldAccess", cast.Target)
	}
}

func TestParseListAndStructLiterals(t *testing.T) {
	n := mustParse(t, "[1, 2, 3]")
	list, ok := n.(ListLiteral)
	if !ok || len(list.Elements) != 3 {
		t.Fatalf("got %+v", n)
	}
	n = mustParse(t, "{a: 1, b: 2}")
	s, ok := n.(StructLiteral)
	if !ok || len(s.Keys) != 2 {
		t.Fatalf("got %+v", n)
	}
}

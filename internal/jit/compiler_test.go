package jit

import (
	"testing"

	"github.com/strataql/strata/internal/config"
	"github.com/strataql/strata/internal/lang"
)

func parseFunc(t *testing.T, src string) *lang.FunctionDef {
	t.Helper()
	p, err := lang.NewParser(src)
	if err != nil {
		t.Fatalf("NewParser: %v", err)
	}
	n, err := p.ParseStatement()
	if err != nil {
		t.Fatalf("ParseStatement: %v", err)
	}
	def, ok := n.(*lang.FunctionDef)
	if !ok {
		t.Fatalf("expected *FunctionDef, got %T", n)
	}
	return def
}

func TestCallFallsBackToInterpreterBelowThreshold(t *testing.T) {
	cfg := config.Defaults()
	cfg.JITThreshold = 10
	eval := lang.NewEvaluator(cfg)
	c := NewCompiler(eval, cfg)

	def := parseFunc(t, "FUNCTION double(x) { x * 2 }")
	env := lang.NewEnv(nil)
	fn := &lang.Function{Def: def, Closure: env}

	v, err := c.Call(fn, []lang.Value{int64(21)}, 0)
	if err != nil {
		t.Fatalf("Call: %v", err)
	}
	if v != int64(42) {
		t.Fatalf("got %v, want 42", v)
	}
	calls, specialized := c.Stats("double")
	if calls != 1 || specialized {
		t.Fatalf("got calls=%d specialized=%v, want 1/false", calls, specialized)
	}
}

func TestCallSpecializesAfterThreshold(t *testing.T) {
	cfg := config.Defaults()
	cfg.JITThreshold = 3
	eval := lang.NewEvaluator(cfg)
	c := NewCompiler(eval, cfg)

	def := parseFunc(t, "FUNCTION square(x) { x * x }")
	env := lang.NewEnv(nil)
	fn := &lang.Function{Def: def, Closure: env}

	for i := int64(1); i <= 5; i++ {
		v, err := c.Call(fn, []lang.Value{i}, 0)
		if err != nil {
			t.Fatalf("Call(%d): %v", i, err)
		}
		if v != i*i {
			t.Fatalf("Call(%d) = %v, want %d", i, v, i*i)
		}
	}
	calls, specialized := c.Stats("square")
	if !specialized {
		t.Fatalf("got calls=%d specialized=%v, want specialized=true", calls, specialized)
	}
}

func TestSpecializationInvalidatedByArgTypeChange(t *testing.T) {
	cfg := config.Defaults()
	cfg.JITThreshold = 1
	eval := lang.NewEvaluator(cfg)
	c := NewCompiler(eval, cfg)

	def := parseFunc(t, "FUNCTION identity(x) { x }")
	env := lang.NewEnv(nil)
	fn := &lang.Function{Def: def, Closure: env}

	if _, err := c.Call(fn, []lang.Value{int64(1)}, 0); err != nil {
		t.Fatalf("Call: %v", err)
	}
	if _, err := c.Call(fn, []lang.Value{int64(2)}, 0); err != nil {
		t.Fatalf("Call: %v", err)
	}
	_, specialized := c.Stats("identity")
	if !specialized {
		t.Fatalf("want specialized after crossing threshold with int args")
	}

	v, err := c.Call(fn, []lang.Value{"hello"}, 0)
	if err != nil {
		t.Fatalf("Call(string): %v", err)
	}
	if v != "hello" {
		t.Fatalf("got %v, want %q", v, "hello")
	}
}

func TestFoldConstantsReducesPureSubexpressions(t *testing.T) {
	cfg := config.Defaults()
	eval := lang.NewEvaluator(cfg)
	def := parseFunc(t, "FUNCTION withConst(x) { x + (2 * 3) }")
	folded, err := specialize(eval, def)
	if err != nil {
		t.Fatalf("specialize: %v", err)
	}
	bin, ok := folded.Body[0].(lang.BinaryOp)
	if !ok {
		t.Fatalf("expected BinaryOp body, got %T", folded.Body[0])
	}
	lit, ok := bin.Right.(lang.Literal)
	if !ok {
		t.Fatalf("expected folded right operand to be a Literal, got %T", bin.Right)
	}
	if lit.Value != int64(6) {
		t.Fatalf("got %v, want 6", lit.Value)
	}
}

func TestRecursiveFunctionSpecializationAgreesWithInterpreter(t *testing.T) {
	cfg := config.Defaults()
	cfg.JITThreshold = 2
	eval := lang.NewEvaluator(cfg)
	c := NewCompiler(eval, cfg)

	def := parseFunc(t, `FUNCTION fib(n) {
		MATCH n {
			case 0 => 0
			case 1 => 1
			case _ => fib(n - 1) + fib(n - 2)
		}
	}`)
	env := lang.NewEnv(nil)
	env.Define("fib", &lang.Function{})
	fn := &lang.Function{Def: def, Closure: env}
	env.Define("fib", fn)

	want := []int64{0, 1, 1, 2, 3, 5, 8, 13}
	for i, w := range want {
		v, err := c.Call(fn, []lang.Value{int64(i)}, 0)
		if err != nil {
			t.Fatalf("fib(%d): %v", i, err)
		}
		if v != w {
			t.Fatalf("fib(%d) = %v, want %d", i, v, w)
		}
	}
}

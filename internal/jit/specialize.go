package jit

import (
	"fmt"
	"strings"

	"github.com/cespare/xxhash/v2"

	"github.com/strataql/strata/internal/errs"
	"github.com/strataql/strata/internal/lang"
)

// pureBuiltins lists the evaluator's builtins with no side effects and
// no dependence on anything but their arguments, so a call to one of
// them with all-literal arguments can be folded at specialization time.
var pureBuiltins = map[string]bool{
	"len": true, "upper": true, "lower": true, "abs": true, "concat": true,
}

// specialize builds a constant-folded copy of def's body. Folding only
// ever replaces a subexpression that is already provably literal (no
// free identifier, and any call is to a pure builtin with literal
// arguments) with its evaluated Literal, so the folded tree is
// observationally identical to the original for every input - it is
// strictly less work for the evaluator to walk.
func specialize(eval *lang.Evaluator, def *lang.FunctionDef) (*lang.FunctionDef, error) {
	if def == nil {
		return nil, errs.Newf(errs.Internal, "jit.specialize", "nil function definition")
	}
	body := make([]lang.Node, len(def.Body))
	for i, stmt := range def.Body {
		body[i] = foldConstants(eval, stmt)
	}
	return &lang.FunctionDef{Name: def.Name, Params: def.Params, Body: body}, nil
}

func foldConstants(eval *lang.Evaluator, node lang.Node) lang.Node {
	switch n := node.(type) {
	case nil:
		return nil
	case lang.Literal:
		return n
	case lang.BinaryOp:
		folded := lang.BinaryOp{Op: n.Op, Left: foldConstants(eval, n.Left), Right: foldConstants(eval, n.Right)}
		return foldIfLiteral(eval, folded, isLiteral(folded.Left) && isLiteral(folded.Right))
	case lang.UnaryOp:
		folded := lang.UnaryOp{Op: n.Op, Operand: foldConstants(eval, n.Operand)}
		return foldIfLiteral(eval, folded, isLiteral(folded.Operand))
	case lang.Call:
		args := make([]lang.Node, len(n.Args))
		allLiteral := true
		for i, a := range n.Args {
			args[i] = foldConstants(eval, a)
			allLiteral = allLiteral && isLiteral(args[i])
		}
		folded := lang.Call{Callee: n.Callee, Args: args}
		if ident, ok := n.Callee.(lang.Identifier); ok && allLiteral && pureBuiltins[strings.ToLower(ident.Name)] {
			return foldIfLiteral(eval, folded, true)
		}
		return folded
	case lang.ListLiteral:
		els := make([]lang.Node, len(n.Elements))
		for i, el := range n.Elements {
			els[i] = foldConstants(eval, el)
		}
		return lang.ListLiteral{Elements: els}
	case lang.StructLiteral:
		vals := make([]lang.Node, len(n.Values))
		for i, v := range n.Values {
			vals[i] = foldConstants(eval, v)
		}
		return lang.StructLiteral{Keys: n.Keys, Values: vals}
	case *lang.Let:
		return &lang.Let{Name: n.Name, Value: foldConstants(eval, n.Value)}
	case *lang.Return:
		return &lang.Return{Value: foldConstants(eval, n.Value)}
	case *lang.Match:
		cases := make([]lang.MatchCase, len(n.Cases))
		for i, c := range n.Cases {
			pattern := c.Pattern
			if pattern != nil {
				pattern = foldConstants(eval, pattern)
			}
			cases[i] = lang.MatchCase{Pattern: pattern, Body: foldConstants(eval, c.Body)}
		}
		return &lang.Match{Subject: foldConstants(eval, n.Subject), Cases: cases}
	case *lang.For:
		body := make([]lang.Node, len(n.Body))
		for i, s := range n.Body {
			body[i] = foldConstants(eval, s)
		}
		return &lang.For{Var: n.Var, Iter: foldConstants(eval, n.Iter), Body: body}
	case *lang.While:
		body := make([]lang.Node, len(n.Body))
		for i, s := range n.Body {
			body[i] = foldConstants(eval, s)
		}
		return &lang.While{Cond: foldConstants(eval, n.Cond), Body: body}
	case *lang.Try:
		return &lang.Try{Body: foldConstants(eval, n.Body), Catch: foldConstants(eval, n.Catch)}
	default:
		return node
	}
}

// foldIfLiteral evaluates folded (which has no free identifiers once
// operandsLiteral holds) against an empty environment and returns the
// resulting Literal; on any evaluation error (e.g. a folded division by
// zero) the unfolded node is kept so the error surfaces at the original
// call site instead of at specialization time.
func foldIfLiteral(eval *lang.Evaluator, folded lang.Node, operandsLiteral bool) lang.Node {
	if !operandsLiteral {
		return folded
	}
	v, err := eval.Eval(folded, lang.NewEnv(nil), 0)
	if err != nil {
		return folded
	}
	return lang.Literal{Value: v}
}

func isLiteral(n lang.Node) bool {
	_, ok := n.(lang.Literal)
	return ok
}

// fingerprint hashes def's body so a redefinition of the same function
// name invalidates any cache entry built from the old body.
func fingerprint(def *lang.FunctionDef) uint64 {
	h := xxhash.New()
	fmt.Fprintf(h, "%s/%#v", def.Name, def.Body)
	return h.Sum64()
}

// typeSignature renders the runtime type of each argument as a short
// tag, coarse enough that widening (e.g. int64 -> float64) produces a
// different signature and invalidates a now-stale specialization.
func typeSignature(args []lang.Value) string {
	var sb strings.Builder
	for i, a := range args {
		if i > 0 {
			sb.WriteByte('|')
		}
		sb.WriteString(typeTag(a))
	}
	return sb.String()
}

func typeTag(v lang.Value) string {
	switch v.(type) {
	case nil:
		return "null"
	case int64:
		return "int"
	case float64:
		return "float"
	case string:
		return "string"
	case bool:
		return "bool"
	case lang.List:
		return "list"
	case *lang.Struct:
		return "struct"
	case *lang.Function:
		return "fn"
	default:
		return fmt.Sprintf("%T", v)
	}
}

package planner

import (
	"fmt"
	"sort"
	"strings"

	"github.com/strataql/strata/internal/lang"
)

// Normalize renders sel as canonical query text: lower-cased keywords,
// single-spaced, columns/predicates re-serialized from the AST rather
// than copied verbatim from source. CREATE MATERIALIZED VIEW stores a
// view's defining query through this same function, so a later SELECT
// with different literal whitespace/casing but identical structure
// still matches (spec.md §4.G's view-substitution requirement).
func Normalize(sel *lang.Select) string {
	var b strings.Builder
	b.WriteString("select ")
	if sel.Distinct {
		b.WriteString("distinct ")
	}
	cols := make([]string, len(sel.Columns))
	for i, c := range sel.Columns {
		cols[i] = exprString(c)
	}
	b.WriteString(strings.Join(cols, ", "))
	fmt.Fprintf(&b, " from %s", sel.From)
	if sel.Join != nil {
		fmt.Fprintf(&b, " join %s on %s", sel.Join.Table, exprString(sel.Join.On))
	}
	if sel.Where != nil {
		fmt.Fprintf(&b, " where %s", exprString(sel.Where))
	}
	if len(sel.GroupBy) > 0 {
		parts := make([]string, len(sel.GroupBy))
		for i, g := range sel.GroupBy {
			parts[i] = exprString(g)
		}
		fmt.Fprintf(&b, " group by %s", strings.Join(parts, ", "))
	}
	if sel.Having != nil {
		fmt.Fprintf(&b, " having %s", exprString(sel.Having))
	}
	if len(sel.OrderBy) > 0 {
		parts := make([]string, len(sel.OrderBy))
		for i, o := range sel.OrderBy {
			dir := "asc"
			if o.Desc {
				dir = "desc"
			}
			parts[i] = fmt.Sprintf("%s %s", exprString(o.Expr), dir)
		}
		fmt.Fprintf(&b, " order by %s", strings.Join(parts, ", "))
	}
	if sel.HasLimit {
		fmt.Fprintf(&b, " limit %d", sel.Limit)
	}
	return b.String()
}

func exprString(n lang.Node) string {
	switch v := n.(type) {
	case lang.Literal:
		return fmt.Sprintf("%v", v.Value)
	case lang.Identifier:
		return v.Name
	case lang.BinaryOp:
		return fmt.Sprintf("(%s %s %s)", exprString(v.Left), opString(v.Op), exprString(v.Right))
	case lang.UnaryOp:
		return fmt.Sprintf("(%s %s)", opString(v.Op), exprString(v.Operand))
	case lang.Call:
		args := make([]string, len(v.Args))
		for i, a := range v.Args {
			args[i] = exprString(a)
		}
		return fmt.Sprintf("%s(%s)", exprString(v.Callee), strings.Join(args, ", "))
	case lang.WindowCall:
		return "@" + exprString(*v.Agg)
	case lang.FieldAccess:
		return fmt.Sprintf("%s.%s", exprString(v.Target), v.Field)
	case lang.ListLiteral:
		parts := make([]string, len(v.Elements))
		for i, e := range v.Elements {
			parts[i] = exprString(e)
		}
		sort.Strings(parts)
		return "[" + strings.Join(parts, ", ") + "]"
	default:
		return fmt.Sprintf("%v", n)
	}
}

func opString(op lang.TokenType) string {
	switch op {
	case lang.TokEq:
		return "=="
	case lang.TokNotEq:
		return "!="
	case lang.TokGt:
		return ">"
	case lang.TokLt:
		return "<"
	case lang.TokGtEq:
		return ">="
	case lang.TokLtEq:
		return "<="
	case lang.TokAnd:
		return "and"
	case lang.TokOr:
		return "or"
	case lang.TokNot:
		return "not"
	case lang.TokPlus:
		return "+"
	case lang.TokMinus:
		return "-"
	case lang.TokStar:
		return "*"
	case lang.TokSlash:
		return "/"
	case lang.TokCoalesce:
		return "??"
	default:
		return "?"
	}
}

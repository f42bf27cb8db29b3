package exec

import (
	"context"

	"github.com/strataql/strata/internal/catalog"
	"github.com/strataql/strata/internal/errs"
	"github.com/strataql/strata/internal/lang"
	"github.com/strataql/strata/internal/row"
)

// Filter streams rows from src for which expr evaluates truthy. A
// row-local evaluation error is swallowed as a NULL (falsy, so the row
// is dropped) unless strict is set, matching spec.md §7's row-local
// error policy; a strict-mode error aborts the whole plan.
type Filter struct {
	src    RowSource
	table  catalog.Table
	expr   lang.Node
	eval   *lang.Evaluator
	strict bool
}

// NewFilter wraps src, applying expr (WHERE or HAVING) per row.
func NewFilter(src RowSource, table catalog.Table, expr lang.Node, eval *lang.Evaluator, strict bool) *Filter {
	return &Filter{src: src, table: table, expr: expr, eval: eval, strict: strict}
}

func (f *Filter) Next(ctx context.Context) (row.Row, error) {
	if f.expr == nil {
		return f.src.Next(ctx)
	}
	for {
		r, err := f.src.Next(ctx)
		if err != nil {
			return nil, err
		}
		v, evalErr := f.eval.Eval(f.expr, rowEnv(f.table, r), 0)
		if evalErr != nil {
			if f.strict {
				return nil, errs.EvalFault("exec.Filter", evalErr)
			}
			continue
		}
		if lang.Truthy(v) {
			return r, nil
		}
	}
}

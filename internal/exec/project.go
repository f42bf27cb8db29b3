package exec

import (
	"context"
	"io"

	"github.com/strataql/strata/internal/catalog"
	"github.com/strataql/strata/internal/errs"
	"github.com/strataql/strata/internal/lang"
	"github.com/strataql/strata/internal/row"
)

// Project evaluates a SELECT list per row. A bare `*` column expands to
// every source column in table-definition order; anything else
// (identifier, expression, window aggregate placeholder) is evaluated
// against the row's bound environment.
//
// A `@AGG(...)` window call has no GROUP BY/PARTITION BY clause in this
// query shape (one with a GROUP BY routes through Aggregate instead), so
// its partition is the whole result set: Project buffers src once, folds
// every row into the window columns' aggStates, then streams the
// buffered rows back out with each window column carrying that single,
// fully-reduced value.
type Project struct {
	src   RowSource
	table catalog.Table
	cols  []lang.Node
	eval  *lang.Evaluator

	hasWindow bool

	started   bool
	buffered  []row.Row
	windowOut []row.Value
	pos       int
}

func NewProject(src RowSource, table catalog.Table, cols []lang.Node, eval *lang.Evaluator) *Project {
	p := &Project{src: src, table: table, cols: cols, eval: eval}
	for _, c := range cols {
		if _, ok := c.(lang.WindowCall); ok {
			p.hasWindow = true
			break
		}
	}
	return p
}

func (p *Project) Next(ctx context.Context) (row.Row, error) {
	if p.hasWindow {
		return p.nextWindowed(ctx)
	}
	r, err := p.src.Next(ctx)
	if err != nil {
		return nil, err
	}
	if len(p.cols) == 1 {
		if ident, ok := p.cols[0].(lang.Identifier); ok && ident.Name == "*" {
			return r, nil
		}
	}
	env := rowEnv(p.table, r)
	out := make(row.Row, len(p.cols))
	for i, c := range p.cols {
		v, err := p.eval.Eval(c, env, 0)
		if err != nil {
			return nil, errs.EvalFault("exec.Project", err)
		}
		out[i] = v
	}
	return out, nil
}

// nextWindowed serves Next when the SELECT list carries at least one
// @AGG window call; it buffers src exactly once (on the first call) to
// compute each window column's whole-partition aggregate before
// streaming any row back out.
func (p *Project) nextWindowed(ctx context.Context) (row.Row, error) {
	if !p.started {
		if err := p.bufferAndAggregate(ctx); err != nil {
			return nil, err
		}
		p.started = true
	}
	if p.pos >= len(p.buffered) {
		return nil, io.EOF
	}
	r := p.buffered[p.pos]
	p.pos++
	env := rowEnv(p.table, r)
	out := make(row.Row, len(p.cols))
	for i, c := range p.cols {
		if _, ok := c.(lang.WindowCall); ok {
			out[i] = p.windowOut[i]
			continue
		}
		v, err := p.eval.Eval(c, env, 0)
		if err != nil {
			return nil, errs.EvalFault("exec.Project", err)
		}
		out[i] = v
	}
	return out, nil
}

// bufferAndAggregate drains src into p.buffered and reduces every window
// column's argument through the same aggState machinery Aggregate uses,
// over the single partition formed by the whole result set.
func (p *Project) bufferAndAggregate(ctx context.Context) error {
	states := make(map[int]*aggState, len(p.cols))
	for {
		r, err := p.src.Next(ctx)
		if err == io.EOF {
			break
		}
		if err != nil {
			return err
		}
		p.buffered = append(p.buffered, r)
		env := rowEnv(p.table, r)
		for i, c := range p.cols {
			wc, ok := c.(lang.WindowCall)
			if !ok {
				continue
			}
			spec, ok := aggCallSpec(*wc.Agg)
			if !ok {
				continue
			}
			st, ok := states[i]
			if !ok {
				st = newAggState()
				states[i] = st
			}
			if spec.Star {
				st.add(int64(1))
				continue
			}
			v, err := p.eval.Eval(spec.Arg, env, 0)
			if err != nil {
				return errs.EvalFault("exec.Project", err)
			}
			st.add(v)
		}
	}

	p.windowOut = make([]row.Value, len(p.cols))
	for i, c := range p.cols {
		wc, ok := c.(lang.WindowCall)
		if !ok {
			continue
		}
		spec, ok := aggCallSpec(*wc.Agg)
		if !ok {
			continue
		}
		st := states[i]
		if st == nil {
			st = newAggState()
		}
		p.windowOut[i] = st.result(spec.Kind)
	}
	return nil
}

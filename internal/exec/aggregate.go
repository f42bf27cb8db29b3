package exec

import (
	"context"
	"io"
	"strings"

	"github.com/strataql/strata/internal/catalog"
	"github.com/strataql/strata/internal/errs"
	"github.com/strataql/strata/internal/lang"
	"github.com/strataql/strata/internal/row"
)

// aggKind is one of the five aggregate functions spec.md's grammar
// names; SUM/COUNT combine associatively, MIN/MAX are monotone, AVG
// carries a (sum, count) pair so partial combines stay exact.
type aggKind int

const (
	aggSum aggKind = iota
	aggCount
	aggAvg
	aggMin
	aggMax
)

func parseAggKind(name string) (aggKind, bool) {
	switch strings.ToUpper(name) {
	case "SUM":
		return aggSum, true
	case "COUNT":
		return aggCount, true
	case "AVG":
		return aggAvg, true
	case "MIN":
		return aggMin, true
	case "MAX":
		return aggMax, true
	default:
		return 0, false
	}
}

// AggSpec describes one aggregate output column: Kind and the
// expression its argument evaluates (nil / Identifier{"*"} for COUNT(*)).
type AggSpec struct {
	Kind aggKind
	Arg  lang.Node
	Star bool
}

// aggCallSpec extracts an AggSpec from a Call whose callee names one of
// the five aggregate functions, or ok=false if it isn't one.
func aggCallSpec(c lang.Call) (AggSpec, bool) {
	ident, ok := c.Callee.(lang.Identifier)
	if !ok {
		return AggSpec{}, false
	}
	kind, ok := parseAggKind(ident.Name)
	if !ok {
		return AggSpec{}, false
	}
	spec := AggSpec{Kind: kind}
	if len(c.Args) == 0 {
		spec.Star = true
		return spec, true
	}
	if id, ok := c.Args[0].(lang.Identifier); ok && id.Name == "*" {
		spec.Star = true
		return spec, true
	}
	spec.Arg = c.Args[0]
	return spec, true
}

type aggState struct {
	sum      float64
	sumIsInt bool
	sumInt   int64
	count    int64
	min, max row.Value
	haveMM   bool
}

func (s *aggState) add(v row.Value) {
	s.count++
	if v == nil {
		return
	}
	switch x := v.(type) {
	case int64:
		s.sumInt += x
		s.sum += float64(x)
	case float64:
		s.sumIsInt = false
		s.sum += x
	}
	if !s.haveMM || row.Compare(v, s.min) < 0 {
		s.min = v
	}
	if !s.haveMM || row.Compare(v, s.max) > 0 {
		s.max = v
	}
	s.haveMM = true
}

func (s *aggState) result(kind aggKind) row.Value {
	switch kind {
	case aggCount:
		return s.count
	case aggSum:
		if s.sumIsInt {
			return s.sumInt
		}
		return s.sum
	case aggAvg:
		if s.count == 0 {
			return nil
		}
		return s.sum / float64(s.count)
	case aggMin:
		return s.min
	case aggMax:
		return s.max
	default:
		return nil
	}
}

func newAggState() *aggState { return &aggState{sumIsInt: true} }

// Aggregate performs hash grouping over src: one bucket per distinct
// GroupBy key tuple, with one aggState per non-window aggregate column.
// It fully drains src before emitting results, since a group's final
// value isn't known until every row contributing to it has been seen.
type Aggregate struct {
	src     RowSource
	table   catalog.Table
	groupBy []lang.Node
	cols    []lang.Node
	eval    *lang.Evaluator

	started bool
	out     []row.Row
	pos     int
}

func NewAggregate(src RowSource, table catalog.Table, groupBy []lang.Node, cols []lang.Node, eval *lang.Evaluator) *Aggregate {
	return &Aggregate{src: src, table: table, groupBy: groupBy, cols: cols, eval: eval}
}

type aggBucket struct {
	key   []row.Value
	row   row.Row
	aggs  map[int]*aggState
}

func (a *Aggregate) Next(ctx context.Context) (row.Row, error) {
	if !a.started {
		if err := a.run(ctx); err != nil {
			return nil, err
		}
		a.started = true
	}
	if a.pos >= len(a.out) {
		return nil, io.EOF
	}
	r := a.out[a.pos]
	a.pos++
	return r, nil
}

func (a *Aggregate) run(ctx context.Context) error {
	buckets := map[string]*aggBucket{}
	var order []string

	// An ungrouped aggregate (no GROUP BY) always produces exactly one
	// output row, even over zero input rows: COUNT(*) and SUM are 0, and
	// AVG/MIN/MAX are NULL (what aggState.result reports for a never-added
	// state). Seed that one bucket up
	// front so the emission loop below still runs when src yields nothing.
	if len(a.groupBy) == 0 {
		k := groupKeyString(nil)
		buckets[k] = &aggBucket{aggs: map[int]*aggState{}}
		order = append(order, k)
	}

	for {
		r, err := a.src.Next(ctx)
		if err == io.EOF {
			break
		}
		if err != nil {
			return err
		}
		env := rowEnv(a.table, r)
		key := make([]row.Value, len(a.groupBy))
		for i, g := range a.groupBy {
			v, err := a.eval.Eval(g, env, 0)
			if err != nil {
				return errs.EvalFault("exec.Aggregate", err)
			}
			key[i] = v
		}
		k := groupKeyString(key)
		b, ok := buckets[k]
		if !ok {
			b = &aggBucket{key: key, aggs: map[int]*aggState{}}
			buckets[k] = b
			order = append(order, k)
		}
		if b.row == nil {
			b.row = r
		}
		for i, c := range a.cols {
			call, isCall := c.(lang.Call)
			if !isCall {
				continue
			}
			spec, ok := aggCallSpec(call)
			if !ok {
				continue
			}
			st, ok := b.aggs[i]
			if !ok {
				st = newAggState()
				b.aggs[i] = st
			}
			if spec.Star {
				st.add(int64(1))
				continue
			}
			v, err := a.eval.Eval(spec.Arg, env, 0)
			if err != nil {
				return errs.EvalFault("exec.Aggregate", err)
			}
			st.add(v)
		}
	}

	a.out = make([]row.Row, 0, len(order))
	for _, k := range order {
		b := buckets[k]
		out := make(row.Row, len(a.cols))
		env := rowEnv(a.table, b.row)
		for i, c := range a.cols {
			if call, ok := c.(lang.Call); ok {
				if spec, ok := aggCallSpec(call); ok {
					st := b.aggs[i]
					if st == nil {
						st = newAggState()
					}
					out[i] = st.result(spec.Kind)
					continue
				}
			}
			v, err := a.eval.Eval(c, env, 0)
			if err != nil {
				return errs.EvalFault("exec.Aggregate", err)
			}
			out[i] = v
		}
		a.out = append(a.out, out)
	}
	return nil
}

func groupKeyString(key []row.Value) string {
	var sb strings.Builder
	for _, v := range key {
		sb.WriteString(formatCell(v))
		sb.WriteByte(0)
	}
	return sb.String()
}

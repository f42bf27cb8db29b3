package exec

import (
	"context"
	"io"
	"sort"

	"github.com/strataql/strata/internal/catalog"
	"github.com/strataql/strata/internal/config"
	"github.com/strataql/strata/internal/lang"
	"github.com/strataql/strata/internal/row"
)

// Order sorts src by a composite key of ORDER BY terms. Once the
// buffered row count crosses memBudgetRows it switches to an external
// sort: accumulated batches are sorted in memory and spilled as
// sortedRuns, then merged by a k-way merge on Next, the same
// spill-then-merge shape Distinct uses for its over-budget path.
type Order struct {
	src   RowSource
	table catalog.Table
	terms []lang.OrderTerm
	eval  *lang.Evaluator

	memBudgetRows int

	started bool
	merge   *runMerge
	buf     []row.Row
	pos     int
}

func NewOrder(src RowSource, table catalog.Table, terms []lang.OrderTerm, eval *lang.Evaluator, cfg config.Engine) *Order {
	budget := cfg.MemoryBudgetBytes / estimatedRowBytes
	if budget < 1 {
		budget = 1
	}
	return &Order{src: src, table: table, terms: terms, eval: eval, memBudgetRows: budget}
}

// estimatedRowBytes is a coarse per-row footprint used only to translate
// a byte budget into a row-count threshold; spec.md leaves the exact
// accounting method open, and a fixed estimate avoids reflecting over
// every cell on every row just to decide when to spill.
const estimatedRowBytes = 128

func (o *Order) Next(ctx context.Context) (row.Row, error) {
	if !o.started {
		if err := o.run(ctx); err != nil {
			return nil, err
		}
		o.started = true
	}
	if o.merge != nil {
		return o.merge.next()
	}
	if o.pos >= len(o.buf) {
		return nil, io.EOF
	}
	r := o.buf[o.pos]
	o.pos++
	return r, nil
}

func (o *Order) run(ctx context.Context) error {
	var runs []*sortedRun
	var batch []row.Row
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		o.sortBatch(batch)
		run, err := spillRun(batch)
		if err != nil {
			return err
		}
		runs = append(runs, run)
		batch = nil
		return nil
	}
	for {
		r, err := o.src.Next(ctx)
		if err == io.EOF {
			break
		}
		if err != nil {
			return err
		}
		batch = append(batch, r)
		if len(batch) >= o.memBudgetRows {
			if err := flush(); err != nil {
				return err
			}
		}
	}
	if len(runs) == 0 {
		o.sortBatch(batch)
		o.buf = batch
		return nil
	}
	if err := flush(); err != nil {
		return err
	}
	merge, err := newRunMerge(runs, o.less)
	if err != nil {
		return err
	}
	o.merge = merge
	return nil
}

func (o *Order) sortBatch(rows []row.Row) {
	sort.SliceStable(rows, func(i, j int) bool { return o.less(rows[i], rows[j]) })
}

func (o *Order) less(a, b row.Row) bool {
	for _, t := range o.terms {
		av, aerr := o.eval.Eval(t.Expr, rowEnv(o.table, a), 0)
		bv, berr := o.eval.Eval(t.Expr, rowEnv(o.table, b), 0)
		if aerr != nil || berr != nil {
			continue
		}
		c := row.Compare(av, bv)
		if c == 0 {
			continue
		}
		if t.Desc {
			return c > 0
		}
		return c < 0
	}
	return false
}

// runMerge performs a k-way merge of already-sorted runs using less to
// pick the next row among the runs' current heads.
type runMerge struct {
	readers []*runReader
	runs    []*sortedRun
	less    func(a, b row.Row) bool
}

func newRunMerge(runs []*sortedRun, less func(a, b row.Row) bool) (*runMerge, error) {
	readers := make([]*runReader, len(runs))
	for i, rn := range runs {
		rr, err := rn.open()
		if err != nil {
			return nil, err
		}
		readers[i] = rr
	}
	return &runMerge{readers: readers, runs: runs, less: less}, nil
}

func (m *runMerge) next() (row.Row, error) {
	best := -1
	for i, rr := range m.readers {
		if rr.eof {
			continue
		}
		if best == -1 || m.less(rr.cur, m.readers[best].cur) {
			best = i
		}
	}
	if best == -1 {
		m.cleanup()
		return nil, io.EOF
	}
	out := m.readers[best].cur
	m.readers[best].advance()
	return out, nil
}

func (m *runMerge) cleanup() {
	for i, rr := range m.readers {
		rr.close()
		m.runs[i].remove()
	}
}

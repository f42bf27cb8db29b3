package exec

import (
	"context"
	"io"

	"golang.org/x/sync/errgroup"

	"github.com/strataql/strata/internal/catalog"
	"github.com/strataql/strata/internal/errs"
	"github.com/strataql/strata/internal/lang"
	"github.com/strataql/strata/internal/planner"
	"github.com/strataql/strata/internal/row"
	"github.com/strataql/strata/internal/stripe"
)

func toStripeOp(op lang.TokenType) (stripe.Op, bool) {
	switch op {
	case lang.TokEq:
		return stripe.OpEQ, true
	case lang.TokNotEq:
		return stripe.OpNE, true
	case lang.TokLt:
		return stripe.OpLT, true
	case lang.TokLtEq:
		return stripe.OpLE, true
	case lang.TokGt:
		return stripe.OpGT, true
	case lang.TokGtEq:
		return stripe.OpGE, true
	default:
		return 0, false
	}
}

// toStripePredicates translates planner.Conditions referencing real
// columns into stripe.Predicates the footer/bloom pruning gate
// understands. Conditions on unknown columns or unsupported operators
// are dropped here; they still get applied row-by-row by the Filter
// operator, so dropping one only costs a pruning opportunity, never
// correctness.
func toStripePredicates(table catalog.Table, conditions []planner.Condition) []stripe.Predicate {
	out := make([]stripe.Predicate, 0, len(conditions))
	for _, c := range conditions {
		idx := table.ColumnIndex(c.Column)
		if idx < 0 {
			continue
		}
		op, ok := toStripeOp(c.Op)
		if !ok {
			continue
		}
		out = append(out, stripe.Predicate{Column: idx, Op: op, Value: c.Value})
	}
	return out
}

// SeqScan enumerates every stripe of a table's snapshot, skipping whole
// stripes the footer/bloom stats prove can't satisfy conditions, and
// decoding the rest into a row stream. Snapshot stripe selection (which
// blobs belong to "the table as of this plan's root") happens before
// this operator is constructed; SeqScan only ever walks the slice it is
// given.
type SeqScan struct {
	table      catalog.Table
	stripes    []*stripe.Stripe
	predicates []stripe.Predicate
	pollEvery  int

	si      int
	cols    [][]row.Value
	ri      int
	nPolled int
}

// NewSeqScan builds a SeqScan over stripes, pruning by conditions.
// pollEvery is the row count between ctx.Err() checks (spec.md §5's
// row-poll boundary); 0 disables per-row polling (ctx is then checked
// only between stripes).
func NewSeqScan(table catalog.Table, stripes []*stripe.Stripe, conditions []planner.Condition, pollEvery int) *SeqScan {
	return &SeqScan{table: table, stripes: stripes, predicates: toStripePredicates(table, conditions), pollEvery: pollEvery}
}

func (s *SeqScan) Next(ctx context.Context) (row.Row, error) {
	for {
		if s.cols == nil {
			if err := s.advance(ctx); err != nil {
				return nil, err
			}
		}
		if len(s.cols) == 0 || s.ri >= len(s.cols[0]) {
			s.cols = nil
			continue
		}
		r := make(row.Row, len(s.cols))
		for c := range s.cols {
			r[c] = s.cols[c][s.ri]
		}
		s.ri++
		s.nPolled++
		if s.pollEvery > 0 && s.nPolled%s.pollEvery == 0 {
			if err := ctx.Err(); err != nil {
				return nil, errs.Aborted("exec.SeqScan", err)
			}
		}
		return r, nil
	}
}

func (s *SeqScan) advance(ctx context.Context) error {
	for s.si < len(s.stripes) {
		st := s.stripes[s.si]
		s.si++
		if err := ctx.Err(); err != nil {
			return errs.Aborted("exec.SeqScan", err)
		}
		if len(s.predicates) > 0 && !st.MaySatisfy(s.predicates) {
			continue
		}
		cols := make([][]row.Value, len(s.table.Columns))
		for i := range cols {
			vals, err := st.Column(i)
			if err != nil {
				return errs.IOError("exec.SeqScan", err)
			}
			cols[i] = vals
		}
		s.cols = cols
		s.ri = 0
		return nil
	}
	return io.EOF
}

// partition splits stripes into at most degree contiguous, near-equal
// chunks, preserving stripe order within and across chunks so the same
// stripe set always yields the same chunking (spec.md §5's determinism
// requirement for parallel scan).
func partition(stripes []*stripe.Stripe, degree int) [][]*stripe.Stripe {
	if degree < 1 {
		degree = 1
	}
	if degree > len(stripes) {
		degree = len(stripes)
	}
	if degree <= 1 {
		return [][]*stripe.Stripe{stripes}
	}
	chunks := make([][]*stripe.Stripe, 0, degree)
	base := len(stripes) / degree
	rem := len(stripes) % degree
	start := 0
	for i := 0; i < degree; i++ {
		size := base
		if i < rem {
			size++
		}
		chunks = append(chunks, stripes[start:start+size])
		start += size
	}
	return chunks
}

// NewParallelScan runs `degree` SeqScans concurrently, one per stripe
// chunk, each worker appending to its own local buffer; the owning
// goroutine drains buffers back in chunk-submission order once every
// worker finishes, so ordering stays deterministic despite concurrent
// execution (spec.md §5: "thread-safe merger... owning thread drains in
// submission order").
func NewParallelScan(ctx context.Context, table catalog.Table, stripes []*stripe.Stripe, conditions []planner.Condition, degree, pollEvery int) (RowSource, error) {
	chunks := partition(stripes, degree)
	bufs := make([][]row.Row, len(chunks))

	g, gctx := errgroup.WithContext(ctx)
	for i, chunk := range chunks {
		i, chunk := i, chunk
		g.Go(func() error {
			src := NewSeqScan(table, chunk, conditions, pollEvery)
			local, err := Drain(gctx, src)
			if err != nil {
				return err
			}
			bufs[i] = local
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var merged []row.Row
	for _, b := range bufs {
		merged = append(merged, b...)
	}
	return newSliceSource(merged), nil
}

// Package exec implements the pull-based streaming operators of
// spec.md §4.H: scan, index_scan, parallel_scan, filter, project,
// distinct, group+aggregate, join, and order, each consuming the
// QueryPlan internal/planner emits and producing a RowSource the caller
// pulls one row at a time from (`Next() -> Row | io.EOF | error`, the
// `next() -> Row|Done|Error` shape of spec.md §4.H expressed the way Go
// iterates: a sentinel io.EOF rather than a three-state enum).
package exec

import (
	"context"
	"io"

	"github.com/strataql/strata/internal/row"
)

// RowSource is a pull-based row stream. Next returns io.EOF (no other
// error) once exhausted. Implementations must be safe to abandon
// mid-stream (a caller hitting LIMIT or a deadline simply stops calling
// Next).
type RowSource interface {
	Next(ctx context.Context) (row.Row, error)
}

// sliceSource is a RowSource over an already-materialized slice, used
// to hand pre-computed results (parallel scan's merged output, a sorted
// run) back into the operator pipeline.
type sliceSource struct {
	rows []row.Row
	pos  int
}

func newSliceSource(rows []row.Row) *sliceSource { return &sliceSource{rows: rows} }

func (s *sliceSource) Next(ctx context.Context) (row.Row, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.pos >= len(s.rows) {
		return nil, io.EOF
	}
	r := s.rows[s.pos]
	s.pos++
	return r, nil
}

// Drain pulls every remaining row from src into a slice. Only meant for
// operators (distinct, order) that must see the whole input to do their
// job; streaming operators never call this on the engine's main scan.
func Drain(ctx context.Context, src RowSource) ([]row.Row, error) {
	var out []row.Row
	for {
		r, err := src.Next(ctx)
		if err == io.EOF {
			return out, nil
		}
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
}

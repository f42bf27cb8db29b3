package exec

import (
	"context"
	"io"

	"github.com/strataql/strata/internal/catalog"
	"github.com/strataql/strata/internal/errs"
	"github.com/strataql/strata/internal/lang"
	"github.com/strataql/strata/internal/row"
)

// Join evaluates ON against the concatenation of a left and right row
// (left columns first). Equality joins build a hash table over the
// planner-chosen smaller side and probe with the other; joins without
// an equality predicate fall back to a nested loop, since there is no
// single probe key to hash on.
type Join struct {
	left, right   RowSource
	leftT, rightT catalog.Table
	on            lang.Node
	eval          *lang.Evaluator
	hashJoin      bool
	buildIsLeft   bool
	eqLeftCol     string
	eqRightCol    string

	started bool
	out     []row.Row
	pos     int
}

func NewJoin(left, right RowSource, leftT, rightT catalog.Table, on lang.Node, eval *lang.Evaluator, hashJoin, buildIsLeft bool) *Join {
	j := &Join{left: left, right: right, leftT: leftT, rightT: rightT, on: on, eval: eval, hashJoin: hashJoin, buildIsLeft: buildIsLeft}
	if hashJoin {
		j.eqLeftCol, j.eqRightCol, _ = equalityColumns(on)
	}
	return j
}

// equalityColumns extracts the two bare-identifier operands of a
// top-level `left.col == right.col`-shaped predicate (unqualified
// identifiers resolved independently against each side's row
// environment); ok=false means the ON clause isn't a single plain
// equality and the caller should fall back to nested-loop semantics.
func equalityColumns(on lang.Node) (left, right string, ok bool) {
	b, isBin := on.(lang.BinaryOp)
	if !isBin || b.Op != lang.TokEq {
		return "", "", false
	}
	li, lok := b.Left.(lang.Identifier)
	ri, rok := b.Right.(lang.Identifier)
	if !lok || !rok {
		return "", "", false
	}
	return li.Name, ri.Name, true
}

func (j *Join) Next(ctx context.Context) (row.Row, error) {
	if !j.started {
		if err := j.run(ctx); err != nil {
			return nil, err
		}
		j.started = true
	}
	if j.pos >= len(j.out) {
		return nil, io.EOF
	}
	r := j.out[j.pos]
	j.pos++
	return r, nil
}

func (j *Join) run(ctx context.Context) error {
	leftRows, err := Drain(ctx, j.left)
	if err != nil {
		return err
	}
	rightRows, err := Drain(ctx, j.right)
	if err != nil {
		return err
	}
	if j.hashJoin && j.eqLeftCol != "" {
		return j.runHash(leftRows, rightRows)
	}
	return j.runNestedLoop(leftRows, rightRows)
}

func (j *Join) runHash(leftRows, rightRows []row.Row) error {
	buildRows, probeRows := leftRows, rightRows
	buildTable, probeTable := j.leftT, j.rightT
	buildCol, probeCol := j.eqLeftCol, j.eqRightCol
	buildIsLeftSide := true
	if !j.buildIsLeft {
		buildRows, probeRows = rightRows, leftRows
		buildTable, probeTable = j.rightT, j.leftT
		buildCol, probeCol = j.eqRightCol, j.eqLeftCol
		buildIsLeftSide = false
	}

	buildColIdx := buildTable.ColumnIndex(buildCol)
	probeColIdx := probeTable.ColumnIndex(probeCol)
	if buildColIdx < 0 || probeColIdx < 0 {
		return j.runNestedLoop(leftRows, rightRows)
	}

	ht := map[string][]row.Row{}
	for _, r := range buildRows {
		if buildColIdx >= len(r) {
			continue
		}
		k := groupKeyString([]row.Value{r[buildColIdx]})
		ht[k] = append(ht[k], r)
	}

	for _, pr := range probeRows {
		if probeColIdx >= len(pr) {
			continue
		}
		k := groupKeyString([]row.Value{pr[probeColIdx]})
		for _, br := range ht[k] {
			var combined row.Row
			if buildIsLeftSide {
				combined = concatRows(br, pr)
			} else {
				combined = concatRows(pr, br)
			}
			ok, err := j.evalOn(combined)
			if err != nil {
				return err
			}
			if ok {
				j.out = append(j.out, combined)
			}
		}
	}
	return nil
}

func (j *Join) runNestedLoop(leftRows, rightRows []row.Row) error {
	for _, lr := range leftRows {
		for _, rr := range rightRows {
			combined := concatRows(lr, rr)
			ok, err := j.evalOn(combined)
			if err != nil {
				return err
			}
			if ok {
				j.out = append(j.out, combined)
			}
		}
	}
	return nil
}

// evalOn binds both sides' columns (right-side names win on collision,
// matching the teacher evaluator's last-definition-wins scoping) into
// one environment and evaluates the ON predicate against it.
func (j *Join) evalOn(combined row.Row) (bool, error) {
	env := lang.NewEnv(nil)
	for i, col := range j.leftT.Columns {
		if i < len(combined) {
			env.Define(col.Name, combined[i])
		}
	}
	off := len(j.leftT.Columns)
	for i, col := range j.rightT.Columns {
		idx := off + i
		if idx < len(combined) {
			env.Define(col.Name, combined[idx])
		}
	}
	v, err := j.eval.Eval(j.on, env, 0)
	if err != nil {
		return false, errs.EvalFault("exec.Join", err)
	}
	return lang.Truthy(v), nil
}

func concatRows(a, b row.Row) row.Row {
	out := make(row.Row, 0, len(a)+len(b))
	out = append(out, a...)
	out = append(out, b...)
	return out
}

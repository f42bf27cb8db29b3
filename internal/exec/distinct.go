package exec

import (
	"context"
	"fmt"
	"io"

	"github.com/cespare/xxhash/v2"

	"github.com/strataql/strata/internal/config"
	"github.com/strataql/strata/internal/row"
)

// Distinct removes duplicate rows from src. Below the memory budget it
// keeps an in-memory set keyed by a hash of each row's formatted cells;
// once the budget is exceeded it falls back to sort-then-merge: the
// buffered rows (plus everything still to come) are sorted and spilled
// as one run so that duplicates end up adjacent, and Next skips a row
// identical to the one before it or already returned before the spill.
type Distinct struct {
	src RowSource

	memBudgetRows int
	seen          map[uint64][]row.Row

	sorted   RowSource
	prev     row.Row
	havePrev bool
}

func NewDistinct(src RowSource, cfg config.Engine) *Distinct {
	budget := cfg.MemoryBudgetBytes / estimatedRowBytes
	if budget < 1 {
		budget = 1
	}
	return &Distinct{src: src, memBudgetRows: budget, seen: make(map[uint64][]row.Row)}
}

func (d *Distinct) Next(ctx context.Context) (row.Row, error) {
	if d.sorted != nil {
		return d.nextFromSorted(ctx)
	}
	for {
		r, err := d.src.Next(ctx)
		if err == io.EOF {
			return nil, io.EOF
		}
		if err != nil {
			return nil, err
		}
		if d.overBudget() {
			return d.spillAndContinue(ctx, r)
		}
		h := hashRow(r)
		bucket := d.seen[h]
		dup := false
		for _, prior := range bucket {
			if rowsEqual(prior, r) {
				dup = true
				break
			}
		}
		if dup {
			continue
		}
		d.seen[h] = append(bucket, r)
		return r, nil
	}
}

func (d *Distinct) overBudget() bool {
	total := 0
	for _, b := range d.seen {
		total += len(b)
	}
	return total >= d.memBudgetRows
}

// spillAndContinue is reached the moment the in-memory set would grow
// past budget: it materializes everything seen so far plus the
// remainder of src into one spill run sorted by sortForDistinct (sorting
// on every cell in order gives duplicates adjacency without needing a
// distinct comparator), then switches Next over to a scan that skips
// repeats. The in-memory set is kept so that rows already returned
// before the spill are not returned again.
func (d *Distinct) spillAndContinue(ctx context.Context, pending row.Row) (row.Row, error) {
	var all []row.Row
	for _, b := range d.seen {
		all = append(all, b...)
	}
	all = append(all, pending)
	rest, err := Drain(ctx, d.src)
	if err != nil {
		return nil, err
	}
	all = append(all, rest...)

	run, err := spillRun(sortForDistinct(all))
	if err != nil {
		return nil, err
	}
	merge, err := newRunMerge([]*sortedRun{run}, rowLess)
	if err != nil {
		return nil, err
	}
	d.sorted = &mergeSource{m: merge}
	return d.nextFromSorted(ctx)
}

func (d *Distinct) nextFromSorted(ctx context.Context) (row.Row, error) {
	for {
		r, err := d.sorted.Next(ctx)
		if err != nil {
			return nil, err
		}
		if d.havePrev && rowsEqual(d.prev, r) {
			continue
		}
		d.prev = r
		d.havePrev = true
		emitted := false
		for _, prior := range d.seen[hashRow(r)] {
			if rowsEqual(prior, r) {
				emitted = true
				break
			}
		}
		if emitted {
			continue
		}
		return r, nil
	}
}

type mergeSource struct{ m *runMerge }

func (s *mergeSource) Next(ctx context.Context) (row.Row, error) { return s.m.next() }

func sortForDistinct(rows []row.Row) []row.Row {
	out := make([]row.Row, len(rows))
	copy(out, rows)
	insertionSortStable(out, rowLess)
	return out
}

// insertionSortStable is adequate here: Distinct's spill path only
// triggers once the whole set already exceeds the memory budget, a
// case expected to be rare enough that an O(n^2) fallback independent
// of sort's reflection overhead is an acceptable, simple choice.
func insertionSortStable(rows []row.Row, less func(a, b row.Row) bool) {
	for i := 1; i < len(rows); i++ {
		for j := i; j > 0 && less(rows[j], rows[j-1]); j-- {
			rows[j], rows[j-1] = rows[j-1], rows[j]
		}
	}
}

func rowLess(a, b row.Row) bool {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	for i := 0; i < n; i++ {
		c := row.Compare(a[i], b[i])
		if c != 0 {
			return c < 0
		}
	}
	return len(a) < len(b)
}

func rowsEqual(a, b row.Row) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if row.Compare(a[i], b[i]) != 0 {
			return false
		}
	}
	return true
}

func hashRow(r row.Row) uint64 {
	h := xxhash.New()
	for _, v := range r {
		h.Write([]byte(formatCell(v)))
		h.Write([]byte{0})
	}
	return h.Sum64()
}

func formatCell(v row.Value) string {
	if v == nil {
		return "\x00null"
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprintf("%v", v)
}

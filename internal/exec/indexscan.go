package exec

import (
	"context"
	"io"

	"github.com/strataql/strata/internal/index"
	"github.com/strataql/strata/internal/row"
)

// RowLocator resolves a secondary index's RowIDs back to decoded rows.
// Row identity is assigned by the write path when a stripe is built
// (spec.md doesn't pin an exact RowID scheme); the locator is how the
// executor stays decoupled from whatever addressing the storage layer
// settles on - stripe offset, a (stripe_hash, position) pair, or a flat
// counter are all valid implementations.
type RowLocator interface {
	Row(ctx context.Context, id index.RowID) (row.Row, error)
}

// IndexScan resolves an index lookup's RowIDs and decodes just those
// rows, the minimal-decode path spec.md §4.H calls for instead of a
// full stripe walk.
type IndexScan struct {
	ids     []index.RowID
	locator RowLocator
	pos     int
}

// NewIndexScan resolves key against idx and builds an IndexScan over
// the result, deferring actual row decode to Next.
func NewIndexScan(idx index.Index, key index.Key, locator RowLocator) (*IndexScan, error) {
	ids, err := idx.Lookup(key)
	if err != nil {
		return nil, err
	}
	return &IndexScan{ids: ids, locator: locator}, nil
}

// NewIndexScanFromIDs builds an IndexScan directly over an already
// resolved RowID set (bitmap IN-list union via LookupAny, for example).
func NewIndexScanFromIDs(ids []index.RowID, locator RowLocator) *IndexScan {
	return &IndexScan{ids: ids, locator: locator}
}

func (s *IndexScan) Next(ctx context.Context) (row.Row, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.pos >= len(s.ids) {
		return nil, io.EOF
	}
	id := s.ids[s.pos]
	s.pos++
	return s.locator.Row(ctx, id)
}

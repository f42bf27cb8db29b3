// Package index implements the secondary index kinds of spec.md §4.D:
// btree (ordered range scans), hash (equality), bloom (membership,
// never a false negative), and bitmap (low-cardinality set membership).
// Every kind maps a key tuple to the set of logical row identifiers
// that carry it; the planner decides which kind, if any, answers a
// given predicate.
package index

import (
	"errors"

	"github.com/strataql/strata/internal/catalog"
	"github.com/strataql/strata/internal/row"
)

// RowID is an opaque row identifier chosen by whoever inserts into the
// index. The database layer packs a stripe's position in the table's
// current stripe list and the row's offset within it, so a RowID is only
// valid until that stripe list changes. Resolving a RowID to a row is
// the caller's job (an exec.RowLocator), not the index's.
type RowID uint64

// Key is an ordered tuple of column values forming an index key.
type Key []row.Value

// keyBytes renders a Key into a single comparable byte string, used by
// the hash and bloom kinds.
func keyBytes(k Key) []byte {
	var out []byte
	for _, v := range k {
		out = append(out, row.Bytes(v)...)
		out = append(out, 0x1f) // unit separator between fields
	}
	return out
}

// compareKeys orders two key tuples lexicographically by row.Compare.
func compareKeys(a, b Key) int {
	for i := 0; i < len(a) && i < len(b); i++ {
		if c := row.Compare(a[i], b[i]); c != 0 {
			return c
		}
	}
	switch {
	case len(a) < len(b):
		return -1
	case len(a) > len(b):
		return 1
	default:
		return 0
	}
}

// Index is the common interface every index kind satisfies. Lookup and
// Range are optional by kind: an index that cannot answer a query shape
// returns ErrUnsupported so the planner falls back to a scan.
type Index interface {
	Kind() catalog.IndexKind
	Unique() bool
	Insert(k Key, id RowID) error
	Delete(k Key, id RowID)
	Lookup(k Key) ([]RowID, error)
	Range(lo, hi Key, loIncl, hiIncl bool) ([]RowID, error)
}

// ErrUnsupported is returned by an index kind that cannot answer a
// given query shape (e.g. a Range call against a hash index), so the
// planner can catch it with errors.Is and fall back to a scan.
var ErrUnsupported = errors.New("index: query shape unsupported by this index kind")

// New constructs an empty index of the given kind.
func New(kind catalog.IndexKind, unique bool, bloomExpected uint64, bloomFPRate float64, bloomMaxBits uint64) Index {
	switch kind {
	case catalog.IndexBTree:
		return newBTreeIndex(unique)
	case catalog.IndexHash:
		return newHashIndex(unique)
	case catalog.IndexBloom:
		return newBloomIndex(bloomExpected, bloomFPRate, bloomMaxBits)
	case catalog.IndexBitmap:
		return newBitmapIndex(unique)
	default:
		return newHashIndex(unique)
	}
}

package index

import (
	"github.com/google/btree"

	"github.com/strataql/strata/internal/catalog"
	"github.com/strataql/strata/internal/errs"
)

// btreeEntry is one (key, row id) pair ordered by key, then by id to
// keep duplicate keys distinct within the tree.
type btreeEntry struct {
	key Key
	id  RowID
}

func btreeLess(a, b btreeEntry) bool {
	if c := compareKeys(a.key, b.key); c != 0 {
		return c < 0
	}
	return a.id < b.id
}

// btreeIndex is an ordered index over google/btree, supporting both
// equality lookup and range scans.
type btreeIndex struct {
	tree   *btree.BTreeG[btreeEntry]
	unique bool
	// seen tracks, for unique indexes, the single row id holding each key
	// so a duplicate insert can be rejected as a constraint violation.
	seen map[string]RowID
}

func newBTreeIndex(unique bool) *btreeIndex {
	return &btreeIndex{
		tree:   btree.NewG(32, btreeLess),
		unique: unique,
		seen:   map[string]RowID{},
	}
}

func (b *btreeIndex) Kind() catalog.IndexKind { return catalog.IndexBTree }
func (b *btreeIndex) Unique() bool            { return b.unique }

func (b *btreeIndex) Insert(k Key, id RowID) error {
	if b.unique {
		kb := string(keyBytes(k))
		if existing, ok := b.seen[kb]; ok && existing != id {
			return errs.Newf(errs.Constraint, "index.btree.Insert", "duplicate key for unique index")
		}
		b.seen[kb] = id
	}
	b.tree.ReplaceOrInsert(btreeEntry{key: k, id: id})
	return nil
}

func (b *btreeIndex) Delete(k Key, id RowID) {
	b.tree.Delete(btreeEntry{key: k, id: id})
	if b.unique {
		delete(b.seen, string(keyBytes(k)))
	}
}

func (b *btreeIndex) Lookup(k Key) ([]RowID, error) {
	var out []RowID
	b.tree.AscendRange(
		btreeEntry{key: k, id: 0},
		btreeEntry{key: k, id: ^RowID(0)},
		func(e btreeEntry) bool {
			if compareKeys(e.key, k) == 0 {
				out = append(out, e.id)
			}
			return true
		},
	)
	return out, nil
}

func (b *btreeIndex) Range(lo, hi Key, loIncl, hiIncl bool) ([]RowID, error) {
	var out []RowID
	visit := func(e btreeEntry) bool {
		if lo != nil {
			c := compareKeys(e.key, lo)
			if c < 0 || (c == 0 && !loIncl) {
				return true
			}
		}
		if hi != nil {
			c := compareKeys(e.key, hi)
			if c > 0 || (c == 0 && !hiIncl) {
				return false
			}
		}
		out = append(out, e.id)
		return true
	}
	switch {
	case lo == nil && hi == nil:
		b.tree.Ascend(visit)
	case lo == nil:
		b.tree.AscendRange(btreeEntry{}, btreeEntry{key: hi, id: ^RowID(0)}, visit)
	case hi == nil:
		b.tree.AscendGreaterOrEqual(btreeEntry{key: lo, id: 0}, visit)
	default:
		b.tree.AscendRange(btreeEntry{key: lo, id: 0}, btreeEntry{key: hi, id: ^RowID(0)}, visit)
	}
	return out, nil
}

package index

import (
	"github.com/strataql/strata/internal/catalog"
	"github.com/strataql/strata/internal/errs"
)

// hashIndex answers equality lookups in O(1) via a plain Go map; no
// third-party library specializes exact-match lookup better than the
// builtin for an in-memory structure like this.
type hashIndex struct {
	unique bool
	buckets map[string][]RowID
}

func newHashIndex(unique bool) *hashIndex {
	return &hashIndex{unique: unique, buckets: map[string][]RowID{}}
}

func (h *hashIndex) Kind() catalog.IndexKind { return catalog.IndexHash }
func (h *hashIndex) Unique() bool            { return h.unique }

func (h *hashIndex) Insert(k Key, id RowID) error {
	kb := string(keyBytes(k))
	existing := h.buckets[kb]
	if h.unique {
		for _, e := range existing {
			if e != id {
				return errs.Newf(errs.Constraint, "index.hash.Insert", "duplicate key for unique index")
			}
		}
	}
	for _, e := range existing {
		if e == id {
			return nil
		}
	}
	h.buckets[kb] = append(existing, id)
	return nil
}

func (h *hashIndex) Delete(k Key, id RowID) {
	kb := string(keyBytes(k))
	existing := h.buckets[kb]
	for i, e := range existing {
		if e == id {
			h.buckets[kb] = append(existing[:i], existing[i+1:]...)
			return
		}
	}
}

func (h *hashIndex) Lookup(k Key) ([]RowID, error) {
	return append([]RowID(nil), h.buckets[string(keyBytes(k))]...), nil
}

func (h *hashIndex) Range(lo, hi Key, loIncl, hiIncl bool) ([]RowID, error) {
	return nil, ErrUnsupported
}

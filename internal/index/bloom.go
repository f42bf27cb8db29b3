package index

import (
	"github.com/strataql/strata/internal/bloomkit"
	"github.com/strataql/strata/internal/catalog"
)

// bloomIndex is a membership-only pre-filter over a whole column, not a
// per-key locator map: a single filter tests "does this table carry
// this value at all", so when it answers no, the executor can skip this
// table's rows entirely; when it answers yes, Lookup degrades to the
// full candidate set and the executor must recheck each row itself.
// This mirrors the stripe footer's own bloom statistics (internal/stripe)
// and is the only index kind that cannot narrow a lookup on its own.
type bloomIndex struct {
	filter *bloomkit.Filter
	all    []RowID
}

func newBloomIndex(expected uint64, fpRate float64, maxBits uint64) *bloomIndex {
	return &bloomIndex{filter: bloomkit.New(expected, fpRate, maxBits)}
}

func (b *bloomIndex) Kind() catalog.IndexKind { return catalog.IndexBloom }
func (b *bloomIndex) Unique() bool            { return false }

func (b *bloomIndex) Insert(k Key, id RowID) error {
	b.filter.Add(keyBytes(k))
	b.all = append(b.all, id)
	return nil
}

func (b *bloomIndex) Delete(k Key, id RowID) {
	for i, e := range b.all {
		if e == id {
			b.all = append(b.all[:i], b.all[i+1:]...)
			break
		}
	}
	// The filter itself never forgets a key: once added, it may keep
	// reporting "possibly present" after every row with that key is
	// gone, which is safe under the no-false-negative guarantee.
}

// Lookup reports every currently-tracked row id as a candidate when the
// filter admits k may be present, or nil when it can prove k is absent.
func (b *bloomIndex) Lookup(k Key) ([]RowID, error) {
	if !b.filter.Contains(keyBytes(k)) {
		return nil, nil
	}
	return append([]RowID(nil), b.all...), nil
}

func (b *bloomIndex) Range(lo, hi Key, loIncl, hiIncl bool) ([]RowID, error) {
	return nil, ErrUnsupported
}

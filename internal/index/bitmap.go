package index

import (
	"github.com/RoaringBitmap/roaring/v2"

	"github.com/strataql/strata/internal/catalog"
	"github.com/strataql/strata/internal/errs"
)

// bitmapIndex suits low-cardinality columns: one compressed roaring
// bitmap of row ids per distinct value, so equality lookup, and set
// operations across values (used by the planner for IN-lists and OR of
// equalities), are cheap regardless of table size.
type bitmapIndex struct {
	unique  bool
	byValue map[string]*roaring.Bitmap
	keys    map[string]Key
}

func newBitmapIndex(unique bool) *bitmapIndex {
	return &bitmapIndex{
		unique:  unique,
		byValue: map[string]*roaring.Bitmap{},
		keys:    map[string]Key{},
	}
}

func (b *bitmapIndex) Kind() catalog.IndexKind { return catalog.IndexBitmap }
func (b *bitmapIndex) Unique() bool            { return b.unique }

func (b *bitmapIndex) Insert(k Key, id RowID) error {
	kb := string(keyBytes(k))
	bm, ok := b.byValue[kb]
	if !ok {
		bm = roaring.New()
		b.byValue[kb] = bm
		b.keys[kb] = k
	}
	if b.unique && bm.GetCardinality() > 0 && !bm.Contains(uint32(id)) {
		return errs.Newf(errs.Constraint, "index.bitmap.Insert", "duplicate key for unique index")
	}
	bm.Add(uint32(id))
	return nil
}

func (b *bitmapIndex) Delete(k Key, id RowID) {
	kb := string(keyBytes(k))
	if bm, ok := b.byValue[kb]; ok {
		bm.Remove(uint32(id))
		if bm.IsEmpty() {
			delete(b.byValue, kb)
			delete(b.keys, kb)
		}
	}
}

func (b *bitmapIndex) Lookup(k Key) ([]RowID, error) {
	bm, ok := b.byValue[string(keyBytes(k))]
	if !ok {
		return nil, nil
	}
	return toRowIDs(bm), nil
}

func (b *bitmapIndex) Range(lo, hi Key, loIncl, hiIncl bool) ([]RowID, error) {
	return nil, ErrUnsupported
}

// LookupAny unions the bitmaps for every key in ks, answering an IN-list
// or an OR of equalities in one pass.
func (b *bitmapIndex) LookupAny(ks []Key) []RowID {
	union := roaring.New()
	for _, k := range ks {
		if bm, ok := b.byValue[string(keyBytes(k))]; ok {
			union.Or(bm)
		}
	}
	return toRowIDs(union)
}

func toRowIDs(bm *roaring.Bitmap) []RowID {
	arr := bm.ToArray()
	out := make([]RowID, len(arr))
	for i, v := range arr {
		out[i] = RowID(v)
	}
	return out
}

// Package stripe implements the columnar stripe/page storage format of
// spec.md §4.C: a stripe is a content-addressed blob holding one or more
// pages per column, trailed by a footer of per-column statistics that
// lets the planner/executor prune the whole stripe before decompressing
// a single page.
package stripe

// Binary layout of a stripe blob, all integers little-endian:
//
//	magic(4) | version(1) | column_count(4) | columns... | footer | footer_len(4) | stripe_hash(32)
//
// Each column section is:
//
//	page_count(4) | pages...
//
// Each page is:
//
//	encoding(1) | row_count(4) | uncompressed_len(4) | compressed_len(4) | compressed_bytes
//
// stripe_hash is sha256 over every preceding byte, allowing the reader
// to verify integrity before trusting the footer it is about to parse.
// The footer sits at the tail (not the head) so the writer can stream
// page bytes out before it knows final per-column statistics, but the
// reader still inspects it before touching page bytes: footer_len and
// stripe_hash are fixed-size trailers, so a reader loads the whole blob,
// slices backward to recover the footer, verifies the hash, and only
// then decides which pages (if any) are worth decompressing.
const (
	magic           = uint32(0x53545250) // "STRP"
	formatVersion   = uint8(1)
	hashLen         = 32
	footerLenSize   = 4
	trailerSize     = footerLenSize + hashLen
	headerFixedSize = 4 + 1 + 4 // magic + version + column_count
)

// Encoding identifies how a page's values were serialized before
// compression.
type Encoding uint8

const (
	// EncodingPlain stores each value as a tagged value (type tag then
	// value bytes), the same codec the footer uses for min/max.
	EncodingPlain Encoding = iota
	// EncodingDictionary stores a deduplicated value dictionary plus a
	// per-row index into it, chosen when sampled cardinality is low.
	EncodingDictionary
	// EncodingRLE stores (value, run_length) pairs, chosen when sampled
	// runs are long (e.g. a column that arrives pre-sorted).
	EncodingRLE
)

package stripe

import (
	"crypto/sha256"
	"encoding/binary"
	"fmt"

	"github.com/strataql/strata/internal/errs"
	"github.com/strataql/strata/internal/row"
)

// Op is a predicate comparison operator usable for stripe pruning.
type Op int

const (
	OpEQ Op = iota
	OpNE
	OpLT
	OpLE
	OpGT
	OpGE
)

// Predicate is a single-column comparison the planner pushes down to
// decide whether a stripe (or, within it, a column's pages) can be
// skipped without decompression.
type Predicate struct {
	Column int
	Op     Op
	Value  row.Value
}

// MaySatisfy reports whether some row in a column with the given stats
// could satisfy p. A false result means the stripe is provably safe to
// skip for this predicate.
func (p Predicate) MaySatisfy(stats ColumnStats) bool {
	if stats.RowCount == 0 {
		return false
	}
	switch p.Op {
	case OpEQ:
		return stats.MayContain(p.Value)
	case OpNE:
		// A range of a single constant value can be excluded; anything
		// wider always may satisfy !=.
		return !(stats.MinValue != nil && stats.MaxValue != nil &&
			row.Equal(stats.MinValue, stats.MaxValue) && row.Equal(stats.MinValue, p.Value))
	case OpLT:
		return stats.MinValue == nil || row.Compare(stats.MinValue, p.Value) < 0
	case OpLE:
		return stats.MinValue == nil || row.Compare(stats.MinValue, p.Value) <= 0
	case OpGT:
		return stats.MaxValue == nil || row.Compare(stats.MaxValue, p.Value) > 0
	case OpGE:
		return stats.MaxValue == nil || row.Compare(stats.MaxValue, p.Value) >= 0
	default:
		return true
	}
}

// BloomStatsConfig bounds how the footer's per-column bloom filters are
// sized, mirroring config.Engine's bloom_false_positive_rate/
// bloom_max_bits.
type BloomStatsConfig struct {
	FalsePositiveRate float64
	MaxBits           uint64
}

// Stripe is a decoded handle onto one stripe blob: its footer is always
// resolved eagerly (cheap, fixed-cost tail read); page bodies decode
// lazily, one column at a time, only when a caller actually needs rows.
type Stripe struct {
	raw    []byte
	footer Footer

	// columnOffsets[i] is the byte offset into raw where column i's
	// page_count field begins.
	columnOffsets []int
}

// Encode builds a stripe blob from columnar data: columns[i] holds every
// value for column i, all columns the same length.
func Encode(schemaFingerprint uint64, columns [][]row.Value, bloomCfg BloomStatsConfig) ([]byte, error) {
	if len(columns) == 0 {
		return nil, errs.Newf(errs.Syntax, "stripe.Encode", "stripe must have at least one column")
	}
	rowCount := len(columns[0])
	for i, col := range columns {
		if len(col) != rowCount {
			return nil, errs.Newf(errs.Syntax, "stripe.Encode", "column %d has %d rows, want %d", i, len(col), rowCount)
		}
	}

	out := appendUint32(nil, magic)
	out = append(out, formatVersion)
	out = appendUint32(out, uint32(len(columns)))

	footer := Footer{SchemaFingerprint: schemaFingerprint, Columns: make([]ColumnStats, len(columns))}

	for i, col := range columns {
		sb := newStatBuilder(uint64(rowCount), bloomCfg.FalsePositiveRate, bloomCfg.MaxBits)
		for _, v := range col {
			sb.observe(v)
		}
		footer.Columns[i] = sb.build()

		out = appendUint32(out, 1) // page_count: one page per column per stripe
		pageBytes, err := encodePage(col)
		if err != nil {
			return nil, errs.IOError("stripe.Encode", err)
		}
		out = append(out, pageBytes...)
	}

	footerBytes, err := encodeFooter(footer)
	if err != nil {
		return nil, errs.IOError("stripe.Encode", err)
	}
	out = append(out, footerBytes...)
	out = appendUint32(out, uint32(len(footerBytes)))

	sum := sha256.Sum256(out)
	out = append(out, sum[:]...)
	return out, nil
}

func appendUint32(b []byte, v uint32) []byte {
	var tmp [4]byte
	binary.LittleEndian.PutUint32(tmp[:], v)
	return append(b, tmp[:]...)
}

// Decode parses a stripe blob, verifying its trailing hash and resolving
// the footer, without decompressing any page. Use Column to materialize
// a specific column's values on demand.
func Decode(data []byte) (*Stripe, error) {
	if len(data) < headerFixedSize+trailerSize {
		return nil, errs.Invariant("stripe.Decode", "I-STRIPE-LEN", fmt.Errorf("stripe blob too small (%d bytes)", len(data)))
	}

	body := data[:len(data)-hashLen]
	wantHash := data[len(data)-hashLen:]
	gotHash := sha256.Sum256(body)
	for i := range gotHash {
		if gotHash[i] != wantHash[i] {
			return nil, errs.Corrupt("stripe.Decode", fmt.Errorf("stripe hash mismatch"))
		}
	}

	footerLenStart := len(body) - footerLenSize
	footerLen := binary.LittleEndian.Uint32(body[footerLenStart:])
	footerStart := footerLenStart - int(footerLen)
	if footerStart < headerFixedSize {
		return nil, errs.Corrupt("stripe.Decode", fmt.Errorf("stripe footer length out of range"))
	}
	footer, err := decodeFooter(body[footerStart:footerLenStart])
	if err != nil {
		return nil, errs.Corrupt("stripe.Decode", fmt.Errorf("stripe footer decode: %w", err))
	}

	gotMagic := binary.LittleEndian.Uint32(data[0:4])
	if gotMagic != magic {
		return nil, errs.Corrupt("stripe.Decode", fmt.Errorf("bad stripe magic"))
	}
	version := data[4]
	if version != formatVersion {
		return nil, errs.Newf(errs.Integrity, "stripe.Decode", "unsupported stripe format version %d", version)
	}
	colCount := binary.LittleEndian.Uint32(data[5:9])
	if int(colCount) != len(footer.Columns) {
		return nil, errs.Corrupt("stripe.Decode", fmt.Errorf("column count mismatch: header=%d footer=%d", colCount, len(footer.Columns)))
	}

	offsets := make([]int, colCount)
	cursor := headerFixedSize
	for i := 0; i < int(colCount); i++ {
		offsets[i] = cursor
		if cursor+4 > footerStart {
			return nil, errs.Corrupt("stripe.Decode", fmt.Errorf("truncated column section %d", i))
		}
		pageCount := binary.LittleEndian.Uint32(data[cursor : cursor+4])
		cursor += 4
		for p := uint32(0); p < pageCount; p++ {
			// Skip by the fixed 13-byte page header's compressed length;
			// page bodies stay compressed until Column asks for them.
			if cursor+13 > footerStart {
				return nil, errs.Corrupt("stripe.Decode", fmt.Errorf("column %d page %d: truncated page header", i, p))
			}
			cursor += 13 + int(binary.LittleEndian.Uint32(data[cursor+9:cursor+13]))
			if cursor > footerStart {
				return nil, errs.Corrupt("stripe.Decode", fmt.Errorf("column %d page %d: truncated page body", i, p))
			}
		}
	}

	return &Stripe{raw: data, footer: footer, columnOffsets: offsets}, nil
}

// Footer exposes the resolved per-column statistics.
func (s *Stripe) Footer() Footer { return s.footer }

// MaySatisfy reports whether this stripe could contain a row matching
// every predicate, using only footer statistics (no decompression).
func (s *Stripe) MaySatisfy(predicates []Predicate) bool {
	for _, p := range predicates {
		if p.Column < 0 || p.Column >= len(s.footer.Columns) {
			continue
		}
		if !p.MaySatisfy(s.footer.Columns[p.Column]) {
			return false
		}
	}
	return true
}

// Column decodes and returns every value of column idx.
func (s *Stripe) Column(idx int) ([]row.Value, error) {
	if idx < 0 || idx >= len(s.columnOffsets) {
		return nil, errs.Newf(errs.Internal, "stripe.Column", "column index %d out of range", idx)
	}
	cursor := s.columnOffsets[idx]
	pageCount := binary.LittleEndian.Uint32(s.raw[cursor : cursor+4])
	cursor += 4
	var values []row.Value
	for p := uint32(0); p < pageCount; p++ {
		pg, consumed, err := decodePage(s.raw[cursor:])
		if err != nil {
			return nil, errs.Corrupt("stripe.Column", err)
		}
		values = append(values, pg.values...)
		cursor += consumed
	}
	return values, nil
}

// RowCount returns the number of rows encoded in this stripe.
func (s *Stripe) RowCount() int {
	if len(s.footer.Columns) == 0 {
		return 0
	}
	return int(s.footer.Columns[0].RowCount)
}

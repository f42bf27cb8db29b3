package stripe

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"time"

	"github.com/strataql/strata/internal/bloomkit"
	"github.com/strataql/strata/internal/row"
)

// ColumnStats carries the pruning statistics for one column of one
// stripe: min/max under row.Compare, a null count, and a bloom
// membership filter over every non-null value observed.
type ColumnStats struct {
	MinValue  row.Value
	MaxValue  row.Value
	NullCount uint32
	RowCount  uint32
	Bloom     *bloomkit.Filter
}

// MayContain reports whether v could appear in this column, using the
// min/max range first (cheap) and the bloom filter second (still cheap,
// no decompression required).
func (s ColumnStats) MayContain(v row.Value) bool {
	if v == nil {
		return s.NullCount > 0
	}
	if s.RowCount == s.NullCount {
		return false
	}
	if s.MinValue != nil && row.Compare(v, s.MinValue) < 0 {
		return false
	}
	if s.MaxValue != nil && row.Compare(v, s.MaxValue) > 0 {
		return false
	}
	if s.Bloom != nil {
		return s.Bloom.Contains(row.Bytes(v))
	}
	return true
}

// Footer is the trailer of a stripe: per-column statistics plus the
// schema fingerprint the stripe was written against.
type Footer struct {
	SchemaFingerprint uint64
	Columns           []ColumnStats
}

// statBuilder accumulates ColumnStats across the rows appended to one
// column during encoding.
type statBuilder struct {
	min, max  row.Value
	nullCount uint32
	rowCount  uint32
	bloom     *bloomkit.Filter
}

func newStatBuilder(expectedRows uint64, fpRate float64, maxBits uint64) *statBuilder {
	return &statBuilder{bloom: bloomkit.New(expectedRows, fpRate, maxBits)}
}

func (b *statBuilder) observe(v row.Value) {
	b.rowCount++
	if v == nil {
		b.nullCount++
		return
	}
	if b.min == nil || row.Compare(v, b.min) < 0 {
		b.min = v
	}
	if b.max == nil || row.Compare(v, b.max) > 0 {
		b.max = v
	}
	b.bloom.Add(row.Bytes(v))
}

func (b *statBuilder) build() ColumnStats {
	return ColumnStats{
		MinValue:  b.min,
		MaxValue:  b.max,
		NullCount: b.nullCount,
		RowCount:  b.rowCount,
		Bloom:     b.bloom,
	}
}

// encodeFooter serializes f to its on-disk form.
func encodeFooter(f Footer) ([]byte, error) {
	var buf bytes.Buffer
	if err := binary.Write(&buf, binary.LittleEndian, f.SchemaFingerprint); err != nil {
		return nil, err
	}
	if err := binary.Write(&buf, binary.LittleEndian, uint32(len(f.Columns))); err != nil {
		return nil, err
	}
	for _, cs := range f.Columns {
		if err := encodeColumnStats(&buf, cs); err != nil {
			return nil, err
		}
	}
	return buf.Bytes(), nil
}

func encodeColumnStats(buf *bytes.Buffer, cs ColumnStats) error {
	writeTaggedValue(buf, cs.MinValue)
	writeTaggedValue(buf, cs.MaxValue)
	if err := binary.Write(buf, binary.LittleEndian, cs.NullCount); err != nil {
		return err
	}
	if err := binary.Write(buf, binary.LittleEndian, cs.RowCount); err != nil {
		return err
	}
	bloomBytes, err := cs.Bloom.MarshalBinary()
	if err != nil {
		return err
	}
	if err := binary.Write(buf, binary.LittleEndian, uint32(len(bloomBytes))); err != nil {
		return err
	}
	buf.Write(bloomBytes)
	return nil
}

// decodeFooter is the inverse of encodeFooter.
func decodeFooter(data []byte) (Footer, error) {
	r := bytes.NewReader(data)
	var f Footer
	if err := binary.Read(r, binary.LittleEndian, &f.SchemaFingerprint); err != nil {
		return Footer{}, err
	}
	var colCount uint32
	if err := binary.Read(r, binary.LittleEndian, &colCount); err != nil {
		return Footer{}, err
	}
	f.Columns = make([]ColumnStats, colCount)
	for i := range f.Columns {
		cs, err := decodeColumnStats(r)
		if err != nil {
			return Footer{}, err
		}
		f.Columns[i] = cs
	}
	return f, nil
}

func decodeColumnStats(r *bytes.Reader) (ColumnStats, error) {
	var cs ColumnStats
	var err error
	if cs.MinValue, err = readTaggedValue(r); err != nil {
		return cs, err
	}
	if cs.MaxValue, err = readTaggedValue(r); err != nil {
		return cs, err
	}
	if err := binary.Read(r, binary.LittleEndian, &cs.NullCount); err != nil {
		return cs, err
	}
	if err := binary.Read(r, binary.LittleEndian, &cs.RowCount); err != nil {
		return cs, err
	}
	var bloomLen uint32
	if err := binary.Read(r, binary.LittleEndian, &bloomLen); err != nil {
		return cs, err
	}
	bloomBytes := make([]byte, bloomLen)
	if _, err := r.Read(bloomBytes); err != nil {
		return cs, err
	}
	cs.Bloom = &bloomkit.Filter{}
	if err := cs.Bloom.UnmarshalBinary(bloomBytes); err != nil {
		return cs, err
	}
	return cs, nil
}

// Tagged-value encoding used inside the footer for min/max cells: a
// one-byte type tag matching catalog.ColumnType, nil meaning no value
// observed (all-null column), followed by the value's own bytes.
const (
	tagNull byte = iota
	tagInt
	tagFloat
	tagString
	tagBool
	tagTimestamp
	tagBinary
)

func writeTaggedValue(buf *bytes.Buffer, v row.Value) {
	if v == nil {
		buf.WriteByte(tagNull)
		return
	}
	switch x := v.(type) {
	case int64:
		buf.WriteByte(tagInt)
		binary.Write(buf, binary.LittleEndian, x) //nolint:errcheck // bytes.Buffer never errors
	case float64:
		buf.WriteByte(tagFloat)
		binary.Write(buf, binary.LittleEndian, x) //nolint:errcheck
	case string:
		buf.WriteByte(tagString)
		writeLenPrefixed(buf, []byte(x))
	case bool:
		buf.WriteByte(tagBool)
		if x {
			buf.WriteByte(1)
		} else {
			buf.WriteByte(0)
		}
	case time.Time:
		buf.WriteByte(tagTimestamp)
		binary.Write(buf, binary.LittleEndian, x.UTC().UnixNano()) //nolint:errcheck
	case []byte:
		buf.WriteByte(tagBinary)
		writeLenPrefixed(buf, x)
	default:
		buf.WriteByte(tagString)
		writeLenPrefixed(buf, row.Bytes(v))
	}
}

func writeLenPrefixed(buf *bytes.Buffer, b []byte) {
	binary.Write(buf, binary.LittleEndian, uint32(len(b))) //nolint:errcheck
	buf.Write(b)
}

func readTaggedValue(r *bytes.Reader) (row.Value, error) {
	tag, err := r.ReadByte()
	if err != nil {
		return nil, err
	}
	switch tag {
	case tagNull:
		return nil, nil
	case tagInt:
		var x int64
		err := binary.Read(r, binary.LittleEndian, &x)
		return x, err
	case tagFloat:
		var x float64
		err := binary.Read(r, binary.LittleEndian, &x)
		return x, err
	case tagString:
		b, err := readLenPrefixed(r)
		return string(b), err
	case tagBool:
		b, err := r.ReadByte()
		return b != 0, err
	case tagTimestamp:
		var nanos int64
		err := binary.Read(r, binary.LittleEndian, &nanos)
		return time.Unix(0, nanos).UTC(), err
	case tagBinary:
		return readLenPrefixed(r)
	default:
		return nil, fmt.Errorf("stripe: unknown value tag %d", tag)
	}
}

func readLenPrefixed(r *bytes.Reader) ([]byte, error) {
	var n uint32
	if err := binary.Read(r, binary.LittleEndian, &n); err != nil {
		return nil, err
	}
	b := make([]byte, n)
	if n > 0 {
		if _, err := r.Read(b); err != nil {
			return nil, err
		}
	}
	return b, nil
}

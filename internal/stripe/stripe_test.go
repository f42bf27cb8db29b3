package stripe

import (
	"testing"
	"time"

	"github.com/strataql/strata/internal/row"
)

func testBloomCfg() BloomStatsConfig {
	return BloomStatsConfig{FalsePositiveRate: 0.01, MaxBits: 1 << 20}
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	columns := [][]row.Value{
		{int64(1), int64(2), int64(3), int64(4), nil},
		{"a", "a", "a", "b", "c"},
	}
	blob, err := Encode(42, columns, testBloomCfg())
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	s, err := Decode(blob)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if s.RowCount() != 5 {
		t.Fatalf("RowCount = %d, want 5", s.RowCount())
	}
	col0, err := s.Column(0)
	if err != nil {
		t.Fatalf("Column(0): %v", err)
	}
	want0 := []row.Value{int64(1), int64(2), int64(3), int64(4), nil}
	for i := range want0 {
		if !row.Equal(col0[i], want0[i]) {
			t.Fatalf("col0[%d] = %v, want %v", i, col0[i], want0[i])
		}
	}
	col1, err := s.Column(1)
	if err != nil {
		t.Fatalf("Column(1): %v", err)
	}
	want1 := []row.Value{"a", "a", "a", "b", "c"}
	for i := range want1 {
		if !row.Equal(col1[i], want1[i]) {
			t.Fatalf("col1[%d] = %v, want %v", i, col1[i], want1[i])
		}
	}
}

func TestFooterRangePruning(t *testing.T) {
	columns := [][]row.Value{{int64(10), int64(20), int64(30)}}
	blob, err := Encode(1, columns, testBloomCfg())
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	s, err := Decode(blob)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if s.MaySatisfy([]Predicate{{Column: 0, Op: OpGT, Value: int64(30)}}) {
		t.Fatalf("stripe should be prunable for value > max")
	}
	if s.MaySatisfy([]Predicate{{Column: 0, Op: OpLT, Value: int64(10)}}) {
		t.Fatalf("stripe should be prunable for value < min")
	}
	if !s.MaySatisfy([]Predicate{{Column: 0, Op: OpEQ, Value: int64(20)}}) {
		t.Fatalf("stripe should not be prunable for value within range")
	}
}

func TestBloomEqualityPruning(t *testing.T) {
	columns := [][]row.Value{{"alpha", "beta", "gamma"}}
	blob, err := Encode(1, columns, testBloomCfg())
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	s, err := Decode(blob)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if !s.MaySatisfy([]Predicate{{Column: 0, Op: OpEQ, Value: "beta"}}) {
		t.Fatalf("bloom filter must not produce a false negative for a present value")
	}
}

func TestCorruptHashRejected(t *testing.T) {
	columns := [][]row.Value{{int64(1), int64(2)}}
	blob, err := Encode(1, columns, testBloomCfg())
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	blob[0] ^= 0xFF
	if _, err := Decode(blob); err == nil {
		t.Fatalf("Decode should reject a corrupted stripe")
	}
}

func TestDictionaryEncodingRoundTrip(t *testing.T) {
	values := make([]row.Value, 0, 300)
	cats := []string{"red", "green", "blue"}
	for i := 0; i < 300; i++ {
		values = append(values, cats[i%3])
	}
	columns := [][]row.Value{values}
	blob, err := Encode(1, columns, testBloomCfg())
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	s, err := Decode(blob)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	got, err := s.Column(0)
	if err != nil {
		t.Fatalf("Column(0): %v", err)
	}
	for i := range values {
		if !row.Equal(got[i], values[i]) {
			t.Fatalf("value %d = %v, want %v", i, got[i], values[i])
		}
	}
}

func TestTimestampColumnRoundTripAndPruning(t *testing.T) {
	t0 := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	t1 := time.Date(2026, 6, 15, 12, 30, 0, 0, time.UTC)
	t2 := time.Date(2026, 12, 31, 23, 59, 59, 0, time.UTC)
	columns := [][]row.Value{{t0, t1, t2, nil}}
	blob, err := Encode(1, columns, testBloomCfg())
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	s, err := Decode(blob)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	got, err := s.Column(0)
	if err != nil {
		t.Fatalf("Column(0): %v", err)
	}
	want := []row.Value{t0, t1, t2, nil}
	for i := range want {
		if !row.Equal(got[i], want[i]) {
			t.Fatalf("value %d = %#v, want %#v", i, got[i], want[i])
		}
		if i < 3 {
			if _, ok := got[i].(time.Time); !ok {
				t.Fatalf("value %d decoded as %T, want time.Time", i, got[i])
			}
		}
	}

	if s.MaySatisfy([]Predicate{{Column: 0, Op: OpGT, Value: t2}}) {
		t.Fatalf("stripe should be prunable for a timestamp after max")
	}
	if s.MaySatisfy([]Predicate{{Column: 0, Op: OpLT, Value: t0}}) {
		t.Fatalf("stripe should be prunable for a timestamp before min")
	}
	if !s.MaySatisfy([]Predicate{{Column: 0, Op: OpEQ, Value: t1}}) {
		t.Fatalf("stripe should not be prunable for a timestamp within range")
	}
}

func TestRLEEncodingRoundTrip(t *testing.T) {
	values := make([]row.Value, 0, 100)
	for i := 0; i < 10; i++ {
		for j := 0; j < 10; j++ {
			values = append(values, int64(i))
		}
	}
	columns := [][]row.Value{values}
	blob, err := Encode(1, columns, testBloomCfg())
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	s, err := Decode(blob)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	got, err := s.Column(0)
	if err != nil {
		t.Fatalf("Column(0): %v", err)
	}
	for i := range values {
		if !row.Equal(got[i], values[i]) {
			t.Fatalf("value %d = %v, want %v", i, got[i], values[i])
		}
	}
}

package cache

import (
	"testing"

	"github.com/strataql/strata/internal/row"
)

func TestPutGetRoundTrip(t *testing.T) {
	c, err := New(8, 1<<20)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	fp := NewFingerprint("select * from t", nil)
	entry := Entry{Rows: []row.Row{{int64(1)}}, Dependencies: map[string]string{"t": "snap1"}, SizeBytes: 8}
	c.Put(fp, entry)

	got, ok := c.Get(fp, map[string]string{"t": "snap1"})
	if !ok {
		t.Fatalf("Get: expected hit")
	}
	if len(got.Rows) != 1 {
		t.Fatalf("Get: got %+v", got)
	}
}

func TestGetMissOnStaleSnapshot(t *testing.T) {
	c, err := New(8, 1<<20)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	fp := NewFingerprint("select * from t", nil)
	c.Put(fp, Entry{Dependencies: map[string]string{"t": "snap1"}})

	if _, ok := c.Get(fp, map[string]string{"t": "snap2"}); ok {
		t.Fatalf("Get: expected miss after snapshot advanced")
	}
	if c.Len() != 0 {
		t.Fatalf("stale entry should have been evicted, Len=%d", c.Len())
	}
}

func TestInvalidateTableDropsDependents(t *testing.T) {
	c, err := New(8, 1<<20)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	fpA := NewFingerprint("select * from a", nil)
	fpB := NewFingerprint("select * from b", nil)
	c.Put(fpA, Entry{Dependencies: map[string]string{"a": "s1"}})
	c.Put(fpB, Entry{Dependencies: map[string]string{"b": "s1"}})

	c.InvalidateTable("a")

	if _, ok := c.Get(fpA, map[string]string{"a": "s1"}); ok {
		t.Fatalf("entry depending on invalidated table should be gone")
	}
	if _, ok := c.Get(fpB, map[string]string{"b": "s1"}); !ok {
		t.Fatalf("entry not depending on invalidated table should survive")
	}
}

func TestByteBudgetEviction(t *testing.T) {
	c, err := New(100, 100)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	fp1 := NewFingerprint("q1", nil)
	fp2 := NewFingerprint("q2", nil)
	c.Put(fp1, Entry{SizeBytes: 60})
	c.Put(fp2, Entry{SizeBytes: 60})

	if c.Len() != 1 {
		t.Fatalf("byte budget should have evicted the oldest entry, Len=%d", c.Len())
	}
	if _, ok := c.Get(fp2, nil); !ok {
		t.Fatalf("most recently put entry should survive byte-budget eviction")
	}
}

func TestFingerprintDeterministic(t *testing.T) {
	a := NewFingerprint("select 1", []row.Value{int64(5), "x"})
	b := NewFingerprint("select 1", []row.Value{int64(5), "x"})
	if a != b {
		t.Fatalf("fingerprint not deterministic: %d != %d", a, b)
	}
	c := NewFingerprint("select 1", []row.Value{int64(6), "x"})
	if a == c {
		t.Fatalf("fingerprint should differ for different parameters")
	}
}

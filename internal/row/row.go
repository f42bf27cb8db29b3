// Package row defines the scalar cell representation shared by the
// stripe encoder, secondary indexes, and the executor: one of the types
// named in spec.md §3 (int64, float64, string, bool, time.Time, []byte),
// or nil for NULL.
package row

import (
	"bytes"
	"fmt"
	"time"
)

// Value is a single table-cell value. A nil Value is SQL NULL.
type Value = any

// Row is one decoded record, indexed by physical column position.
type Row []Value

// Clone returns a shallow copy of r (cells are value types or immutable
// []byte/string, so a slice copy is a full copy for our purposes).
func (r Row) Clone() Row {
	out := make(Row, len(r))
	copy(out, r)
	return out
}

// Compare orders two values of the same underlying type. NULL sorts
// before every non-NULL value. Comparing across incompatible types
// returns 0 (callers needing strict typing should have rejected the
// comparison earlier via catalog.ColumnType).
func Compare(a, b Value) int {
	if a == nil && b == nil {
		return 0
	}
	if a == nil {
		return -1
	}
	if b == nil {
		return 1
	}
	switch av := a.(type) {
	case int64:
		bv, ok := asInt64(b)
		if !ok {
			return 0
		}
		return cmpOrdered(av, bv)
	case float64:
		bv, ok := asFloat64(b)
		if !ok {
			return 0
		}
		return cmpOrdered(av, bv)
	case string:
		bv, ok := b.(string)
		if !ok {
			return 0
		}
		return cmpOrdered(av, bv)
	case bool:
		bv, ok := b.(bool)
		if !ok {
			return 0
		}
		return cmpOrdered(boolToInt(av), boolToInt(bv))
	case time.Time:
		bv, ok := b.(time.Time)
		if !ok {
			return 0
		}
		switch {
		case av.Before(bv):
			return -1
		case av.After(bv):
			return 1
		default:
			return 0
		}
	case []byte:
		bv, ok := b.([]byte)
		if !ok {
			return 0
		}
		return bytes.Compare(av, bv)
	default:
		return 0
	}
}

func cmpOrdered[T int64 | float64 | string](a, b T) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

func boolToInt(b bool) int64 {
	if b {
		return 1
	}
	return 0
}

func asInt64(v Value) (int64, bool) {
	switch n := v.(type) {
	case int64:
		return n, true
	case int:
		return int64(n), true
	}
	return 0, false
}

func asFloat64(v Value) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int64:
		return float64(n), true
	case int:
		return float64(n), true
	}
	return 0, false
}

// Equal reports whether a and b compare equal.
func Equal(a, b Value) bool { return Compare(a, b) == 0 }

// Truthy implements the truthiness rule from the glossary: false, null,
// 0, "", and empty list/struct are falsy; everything else is truthy.
func Truthy(v Value) bool {
	switch x := v.(type) {
	case nil:
		return false
	case bool:
		return x
	case int64:
		return x != 0
	case float64:
		return x != 0
	case string:
		return x != ""
	case []byte:
		return len(x) != 0
	case []Value:
		return len(x) != 0
	case map[string]Value:
		return len(x) != 0
	default:
		return true
	}
}

// Bytes renders v into a canonical byte encoding used for content hashing,
// bloom-filter keys, and index keys.
func Bytes(v Value) []byte {
	if v == nil {
		return []byte{0x00}
	}
	switch x := v.(type) {
	case int64:
		return []byte(fmt.Sprintf("i:%d", x))
	case float64:
		return []byte(fmt.Sprintf("f:%v", x))
	case string:
		return []byte("s:" + x)
	case bool:
		if x {
			return []byte("b:1")
		}
		return []byte("b:0")
	case time.Time:
		return []byte("t:" + x.UTC().Format(time.RFC3339Nano))
	case []byte:
		out := make([]byte, 0, len(x)+2)
		out = append(out, 'x', ':')
		return append(out, x...)
	default:
		return []byte(fmt.Sprintf("?:%v", x))
	}
}

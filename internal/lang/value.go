package lang

import (
	"fmt"
	"strings"
)

// Value is the runtime value type of the language evaluator: one of
// int64, float64, string, bool, nil (null), List, *Struct, *Function, or
// *LangError. Kept as `any` rather than a closed interface so scalar
// literals pass through without boxing, mirroring internal/row.Value.
type Value = any

// List is an ordered sequence of Values.
type List []Value

// Struct is an ordered string-keyed record. A plain map would lose
// field order on iteration/printing; Struct keeps declaration order.
type Struct struct {
	Keys   []string
	Values map[string]Value
}

// NewStruct builds a Struct from parallel key/value slices.
func NewStruct(keys []string, values []Value) *Struct {
	s := &Struct{Keys: append([]string(nil), keys...), Values: make(map[string]Value, len(keys))}
	for i, k := range keys {
		s.Values[k] = values[i]
	}
	return s
}

// Get looks up a field by name.
func (s *Struct) Get(name string) (Value, bool) {
	v, ok := s.Values[name]
	return v, ok
}

// Function is a closure: a FunctionDef paired with the environment it
// was defined in.
type Function struct {
	Def     *FunctionDef
	Closure *Env
}

// LangError is the language's first-class error value, distinct from a
// Go error: MATCH/TRY operate on it as data.
type LangError struct {
	Message string
	Context map[string]Value
}

func (e *LangError) Error() string { return e.Message }

// Truthy implements the language's truthiness rule for external callers
// (the executor's WHERE/HAVING filters) that only have a Value, not an
// Evaluator, to test.
func Truthy(v Value) bool { return truthy(v) }

func truthy(v Value) bool {
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
	case List:
		return len(x) != 0
	case *Struct:
		return len(x.Keys) != 0
	default:
		return true
	}
}

func valuesEqual(a, b Value) bool {
	af, aok := asFloat(a)
	bf, bok := asFloat(b)
	if aok && bok {
		return af == bf
	}
	as, asok := a.(string)
	bs, bsok := b.(string)
	if asok && bsok {
		return as == bs
	}
	ab, abok := a.(bool)
	bb, bbok := b.(bool)
	if abok && bbok {
		return ab == bb
	}
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	al, alok := a.(List)
	bl, blok := b.(List)
	if alok && blok {
		if len(al) != len(bl) {
			return false
		}
		for i := range al {
			if !valuesEqual(al[i], bl[i]) {
				return false
			}
		}
		return true
	}
	return false
}

func asFloat(v Value) (float64, bool) {
	switch x := v.(type) {
	case int64:
		return float64(x), true
	case float64:
		return x, true
	default:
		return 0, false
	}
}

// formatValue renders a Value for display (error messages, string cast).
func formatValue(v Value) string {
	switch x := v.(type) {
	case nil:
		return "null"
	case string:
		return x
	case List:
		parts := make([]string, len(x))
		for i, e := range x {
			parts[i] = formatValue(e)
		}
		return "[" + strings.Join(parts, ", ") + "]"
	case *Struct:
		parts := make([]string, 0, len(x.Keys))
		for _, k := range x.Keys {
			parts = append(parts, fmt.Sprintf("%s: %s", k, formatValue(x.Values[k])))
		}
		return "{" + strings.Join(parts, ", ") + "}"
	case *Function:
		return fmt.Sprintf("<function %s>", x.Def.Name)
	case *LangError:
		return fmt.Sprintf("<error %s>", x.Message)
	default:
		return fmt.Sprintf("%v", x)
	}
}

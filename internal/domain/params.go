package domain

import (
	"encoding/json"
	"fmt"
	"reflect"
	"sort"
	"strconv"
	"strings"
)

// ValueKind tags the variant held by a Value.
type ValueKind uint8

const (
	KindNull ValueKind = iota
	KindInt
	KindFloat
	KindString
	KindBool
	KindSeq
	KindMap
)

func (k ValueKind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindInt:
		return "int"
	case KindFloat:
		return "float"
	case KindString:
		return "string"
	case KindBool:
		return "bool"
	case KindSeq:
		return "sequence"
	case KindMap:
		return "mapping"
	}
	return "unknown"
}

// Value is one node of a parameter tree: a scalar, an ordered sequence of
// values, or a mapping from string keys to values. The zero Value is null.
type Value struct {
	kind ValueKind
	i    int64
	f    float64
	s    string
	b    bool
	seq  []Value
	m    Params
}

func Null() Value              { return Value{} }
func Int(v int64) Value        { return Value{kind: KindInt, i: v} }
func Float(v float64) Value    { return Value{kind: KindFloat, f: v} }
func String(v string) Value    { return Value{kind: KindString, s: v} }
func Bool(v bool) Value        { return Value{kind: KindBool, b: v} }
func Map(p Params) Value       { return Value{kind: KindMap, m: p.Clone()} }
func Seq(items ...Value) Value { return Value{kind: KindSeq, seq: append([]Value{}, items...)} }

// Ints builds a sequence of integers, preserving argument order.
func Ints(items ...int64) Value {
	seq := make([]Value, len(items))
	for i, v := range items {
		seq[i] = Int(v)
	}
	return Value{kind: KindSeq, seq: seq}
}

// Strings builds a sequence of strings, preserving argument order.
func Strings(items ...string) Value {
	seq := make([]Value, len(items))
	for i, v := range items {
		seq[i] = String(v)
	}
	return Value{kind: KindSeq, seq: seq}
}

func (v Value) Kind() ValueKind { return v.kind }
func (v Value) IsNull() bool    { return v.kind == KindNull }

// Items returns a copy of the elements of a sequence, nil otherwise.
func (v Value) Items() []Value {
	if v.kind != KindSeq {
		return nil
	}
	return append([]Value{}, v.seq...)
}

// Fields returns a copy of the entries of a mapping, nil otherwise.
func (v Value) Fields() Params {
	if v.kind != KindMap {
		return nil
	}
	return v.m.Clone()
}

// Native converts the value to plain Go: int64, float64, string, bool, nil,
// []any or map[string]any.
func (v Value) Native() any {
	switch v.kind {
	case KindInt:
		return v.i
	case KindFloat:
		return v.f
	case KindString:
		return v.s
	case KindBool:
		return v.b
	case KindSeq:
		out := make([]any, len(v.seq))
		for i, item := range v.seq {
			out[i] = item.Native()
		}
		return out
	case KindMap:
		return v.m.Native()
	}
	return nil
}

func (v Value) String() string {
	switch v.kind {
	case KindNull:
		return "null"
	case KindInt:
		return strconv.FormatInt(v.i, 10)
	case KindFloat:
		return strconv.FormatFloat(v.f, 'g', -1, 64)
	case KindString:
		return strconv.Quote(v.s)
	case KindBool:
		return strconv.FormatBool(v.b)
	case KindSeq:
		parts := make([]string, len(v.seq))
		for i, item := range v.seq {
			parts[i] = item.String()
		}
		return "[" + strings.Join(parts, ", ") + "]"
	default:
		return v.m.String()
	}
}

// Equal reports whether two trees hold the same logical value.
func (v Value) Equal(o Value) bool {
	if v.kind != o.kind {
		return false
	}
	switch v.kind {
	case KindNull:
		return true
	case KindInt:
		return v.i == o.i
	case KindFloat:
		return v.f == o.f
	case KindString:
		return v.s == o.s
	case KindBool:
		return v.b == o.b
	case KindSeq:
		if len(v.seq) != len(o.seq) {
			return false
		}
		for i := range v.seq {
			if !v.seq[i].Equal(o.seq[i]) {
				return false
			}
		}
		return true
	default:
		if len(v.m) != len(o.m) {
			return false
		}
		for k, item := range v.m {
			other, ok := o.m[k]
			if !ok || !item.Equal(other) {
				return false
			}
		}
		return true
	}
}

// Params is the root mapping of a parameter tree, handed to one script
// invocation.
type Params map[string]Value

// NewParams returns an empty parameter tree.
func NewParams() Params { return Params{} }

// Put sets key to v, replacing any previous value, and returns p for chaining.
func (p Params) Put(key string, v Value) Params {
	if v.kind == KindMap || v.kind == KindSeq {
		v = v.clone()
	}
	p[key] = v
	return p
}

// Clone returns a deep copy of p.
func (p Params) Clone() Params {
	if p == nil {
		return nil
	}
	out := make(Params, len(p))
	for k, v := range p {
		out[k] = v.clone()
	}
	return out
}

func (v Value) clone() Value {
	switch v.kind {
	case KindSeq:
		seq := make([]Value, len(v.seq))
		for i, item := range v.seq {
			seq[i] = item.clone()
		}
		v.seq = seq
	case KindMap:
		v.m = v.m.Clone()
	}
	return v
}

// Lookup resolves a dotted path ("amap.cids.cid") through nested mappings.
func (p Params) Lookup(path string) (Value, bool) {
	if path == "" {
		return Value{}, false
	}
	cur := p
	segs := strings.Split(path, ".")
	for i, seg := range segs {
		v, ok := cur[seg]
		if !ok {
			return Value{}, false
		}
		if i == len(segs)-1 {
			return v, true
		}
		if v.kind != KindMap {
			return Value{}, false
		}
		cur = v.m
	}
	return Value{}, false
}

// Native converts the tree to map[string]any.
func (p Params) Native() map[string]any {
	out := make(map[string]any, len(p))
	for k, v := range p {
		out[k] = v.Native()
	}
	return out
}

func (p Params) String() string {
	keys := make([]string, 0, len(p))
	for k := range p {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = k + ": " + p[k].String()
	}
	return "{" + strings.Join(parts, ", ") + "}"
}

// FromAny converts a plain Go value into a Value. Unsupported kinds and
// self-referencing maps or slices fail with a ParameterError.
func FromAny(x any) (Value, error) {
	return fromAny(x, visiting{})
}

// ParamsFromMap converts a decoded JSON-like object into a parameter tree.
func ParamsFromMap(m map[string]any) (Params, error) {
	return paramsFromMap(m, visiting{})
}

// visiting holds the maps and slices on the current conversion path.
type visiting map[uintptr]bool

// enter marks rv as being converted. It fails when rv is already on the path.
func (v visiting) enter(rv reflect.Value) (uintptr, error) {
	if rv.Len() == 0 {
		return 0, nil
	}
	p := rv.Pointer()
	if v[p] {
		return 0, NewError(KindParameterError, "marshal", fmt.Errorf("cyclic %s value", rv.Type()))
	}
	v[p] = true
	return p, nil
}

func (v visiting) leave(p uintptr) { delete(v, p) }

func paramsFromMap(m map[string]any, seen visiting) (Params, error) {
	ptr, err := seen.enter(reflect.ValueOf(m))
	if err != nil {
		return nil, err
	}
	defer seen.leave(ptr)

	p := make(Params, len(m))
	for k, raw := range m {
		v, err := fromAny(raw, seen)
		if err != nil {
			return nil, fmt.Errorf("parameter %q: %w", k, err)
		}
		p[k] = v
	}
	return p, nil
}

func fromAny(x any, seen visiting) (Value, error) {
	switch t := x.(type) {
	case nil:
		return Null(), nil
	case Value:
		return t.clone(), nil
	case Params:
		return Map(t), nil
	case string:
		return String(t), nil
	case bool:
		return Bool(t), nil
	case int:
		return Int(int64(t)), nil
	case int64:
		return Int(t), nil
	case float64:
		return Float(t), nil
	case json.Number:
		if i, err := t.Int64(); err == nil {
			return Int(i), nil
		}
		f, err := t.Float64()
		if err != nil {
			return Value{}, NewError(KindParameterError, "marshal", err)
		}
		return Float(f), nil
	case map[string]any:
		p, err := paramsFromMap(t, seen)
		if err != nil {
			return Value{}, err
		}
		return Value{kind: KindMap, m: p}, nil
	}

	rv := reflect.ValueOf(x)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return Int(rv.Int()), nil
	case reflect.String:
		return String(rv.String()), nil
	case reflect.Bool:
		return Bool(rv.Bool()), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		u := rv.Uint()
		if u > 1<<63-1 {
			return Value{}, NewError(KindParameterError, "marshal", fmt.Errorf("unsigned value %d overflows int64", u))
		}
		return Int(int64(u)), nil
	case reflect.Float32, reflect.Float64:
		return Float(rv.Float()), nil
	case reflect.Slice, reflect.Array:
		if rv.Kind() == reflect.Slice {
			ptr, err := seen.enter(rv)
			if err != nil {
				return Value{}, err
			}
			defer seen.leave(ptr)
		}
		seq := make([]Value, rv.Len())
		for i := range seq {
			v, err := fromAny(rv.Index(i).Interface(), seen)
			if err != nil {
				return Value{}, err
			}
			seq[i] = v
		}
		return Value{kind: KindSeq, seq: seq}, nil
	case reflect.Map:
		if rv.Type().Key().Kind() != reflect.String {
			break
		}
		ptr, err := seen.enter(rv)
		if err != nil {
			return Value{}, err
		}
		defer seen.leave(ptr)

		p := make(Params, rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			v, err := fromAny(iter.Value().Interface(), seen)
			if err != nil {
				return Value{}, err
			}
			p[iter.Key().String()] = v
		}
		return Value{kind: KindMap, m: p}, nil
	}
	return Value{}, NewError(KindParameterError, "marshal", fmt.Errorf("unsupported parameter type %T", x))
}

// value.go: runtime value model shared by capture environments and scope
// snapshots.
//
// This file defines the tagged Value carrier the rest of the package traffics
// in. A capture environment is a map[string]Value; scope-frame locals are
// map[string]Value; closure cells hold Values. The frontend never evaluates
// script code itself, so the model is deliberately small: scalars, arrays,
// ordered maps, function and class values (definition.go), and opaque host
// handles for embedding-provided payloads such as buffer constructors.
package kernelscript

import (
	"fmt"
	"strconv"
)

// Version is the frontend version reported by the ksc CLI.
const Version = "0.3.1"

// BuildDate is stamped by the release build via -ldflags.
var BuildDate = "unknown"

// ValueTag enumerates all runtime kinds a Value may hold.
// The tag determines which Go type Value.Data is (see Value docs).
type ValueTag int

const (
	VTNull   ValueTag = iota // null (no payload)
	VTBool                   // bool
	VTInt                    // int64
	VTNum                    // float64
	VTStr                    // string
	VTArray                  // []Value
	VTMap                    // *MapObject (ordered map)
	VTFun                    // *Function (script function with capture metadata)
	VTClass                  // *Class (script class; ordered member table)
	VTHandle                 // *Handle (opaque host payload)
)

// String names the tag for diagnostics.
func (t ValueTag) String() string {
	switch t {
	case VTNull:
		return "null"
	case VTBool:
		return "bool"
	case VTInt:
		return "int"
	case VTNum:
		return "num"
	case VTStr:
		return "str"
	case VTArray:
		return "array"
	case VTMap:
		return "map"
	case VTFun:
		return "function"
	case VTClass:
		return "class"
	case VTHandle:
		return "handle"
	}
	return "unknown"
}

// Value is the universal runtime carrier used across the capture core.
//
// Fields:
//   - Tag : discriminant indicating which case is active.
//   - Data: Go value appropriate for Tag (e.g. int64 for VTInt).
//
// Invariants:
//   - When Tag==VTNull, Data is nil.
//   - When Tag==VTMap, Data is *MapObject preserving insertion order.
//   - When Tag==VTFun/VTClass, Data is *Function / *Class (definition.go).
type Value struct {
	Tag  ValueTag
	Data interface{}
}

// String renders a compact, human-friendly debug representation.
func (v Value) String() string {
	switch v.Tag {
	case VTNull:
		return "null"
	case VTBool:
		return fmt.Sprintf("%v", v.Data.(bool))
	case VTInt:
		return strconv.FormatInt(v.Data.(int64), 10)
	case VTNum:
		return strconv.FormatFloat(v.Data.(float64), 'g', -1, 64)
	case VTStr:
		return fmt.Sprintf("%q", v.Data.(string))
	case VTArray:
		return fmt.Sprintf("<array len=%d>", len(v.Data.([]Value)))
	case VTMap:
		return "<map>"
	case VTFun:
		if f, ok := v.Data.(*Function); ok && f.Name != "" {
			return fmt.Sprintf("<fun %s>", f.Name)
		}
		return "<fun>"
	case VTClass:
		if c, ok := v.Data.(*Class); ok && c.Name != "" {
			return fmt.Sprintf("<class %s>", c.Name)
		}
		return "<class>"
	case VTHandle:
		if h, ok := v.Data.(*Handle); ok && h.Kind != "" {
			return fmt.Sprintf("<handle %s>", h.Kind)
		}
		return "<handle>"
	default:
		return "<unknown>"
	}
}

// Null is the singleton null Value (no payload).
var Null = Value{Tag: VTNull}

// Primitive constructors for convenience.
func Bool(b bool) Value    { return Value{Tag: VTBool, Data: b} }
func Int(n int64) Value    { return Value{Tag: VTInt, Data: n} }
func Num(f float64) Value  { return Value{Tag: VTNum, Data: f} }
func Str(s string) Value   { return Value{Tag: VTStr, Data: s} }
func Arr(xs []Value) Value { return Value{Tag: VTArray, Data: xs} }

// MapObject is an ordered map preserving insertion order.
//
// Fields:
//   - Entries: the key/value storage (by string key).
//   - Keys   : insertion order (unique keys); use this to iterate predictably.
//
// Class member tables use MapObject so that aggregation walks members in
// declaration order.
type MapObject struct {
	Entries map[string]Value
	Keys    []string
}

// NewMapObject returns an empty ordered map.
func NewMapObject() *MapObject {
	return &MapObject{Entries: map[string]Value{}}
}

// Set binds key to v, appending key to the insertion order on first write.
func (m *MapObject) Set(key string, v Value) {
	if _, ok := m.Entries[key]; !ok {
		m.Keys = append(m.Keys, key)
	}
	m.Entries[key] = v
}

// Get returns the value bound to key, if any.
func (m *MapObject) Get(key string) (Value, bool) {
	v, ok := m.Entries[key]
	return v, ok
}

// Len reports the number of entries.
func (m *MapObject) Len() int { return len(m.Keys) }

// Map constructs a VTMap from a plain Go map. Insertion order equals Go map
// iteration order; hosts that care about ordering should build a MapObject
// directly via NewMapObject/Set.
func Map(m map[string]Value) Value {
	mo := &MapObject{Entries: m}
	mo.Keys = make([]string, 0, len(m))
	for k := range m {
		mo.Keys = append(mo.Keys, k)
	}
	return Value{Tag: VTMap, Data: mo}
}

// FunVal wraps *Function into a Value (Tag=VTFun).
func FunVal(f *Function) Value { return Value{Tag: VTFun, Data: f} }

// ClassVal wraps *Class into a Value (Tag=VTClass).
func ClassVal(c *Class) Value { return Value{Tag: VTClass, Data: c} }

// Handle is an opaque, universal host payload (Lua-like userdata). Embeddings
// bind handles into scopes for things the script world references but the
// frontend never interprets: buffer constructors, target descriptors, etc.
type Handle struct {
	Kind string
	Data any
}

// HandleVal wraps a host payload into a Value (Tag=VTHandle).
func HandleVal(kind string, data any) Value {
	return Value{Tag: VTHandle, Data: &Handle{Kind: kind, Data: data}}
}

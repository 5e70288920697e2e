package vm

import (
	"fmt"
	"math"
	"strconv"
)

// ValueKind tags the variant held by a Value.
type ValueKind uint8

const (
	KindNull ValueKind = iota
	KindBool
	KindNumber
	KindObject
)

// Value is a Kestrel runtime value: null, bool, number or an object
// reference. Values are copied shallowly; objects are shared.
type Value struct {
	kind ValueKind
	num  float64
	obj  Object
}

// Pre-defined values
var (
	Null  = Value{kind: KindNull}
	True  = Value{kind: KindBool, num: 1}
	False = Value{kind: KindBool}
)

// ---------------------------------------------------------------------------
// Constructors
// ---------------------------------------------------------------------------

// Bool converts a Go bool to a Value.
func Bool(b bool) Value {
	if b {
		return True
	}
	return False
}

// Number creates a number value.
func Number(n float64) Value {
	return Value{kind: KindNumber, num: n}
}

// FromObject wraps an object reference.
func FromObject(o Object) Value {
	if o == nil {
		return Null
	}
	return Value{kind: KindObject, obj: o}
}

// Str creates a string value. The String object is not registered with any
// heap; the interpreter registers the strings it allocates itself.
func Str(s string) Value {
	return FromObject(&String{Value: s})
}

// ---------------------------------------------------------------------------
// Type checking and extraction
// ---------------------------------------------------------------------------

// Kind returns the variant tag.
func (v Value) Kind() ValueKind { return v.kind }

// IsNull returns true if v is null.
func (v Value) IsNull() bool { return v.kind == KindNull }

// IsBool returns true if v is a boolean.
func (v Value) IsBool() bool { return v.kind == KindBool }

// IsNumber returns true if v is a number.
func (v Value) IsNumber() bool { return v.kind == KindNumber }

// IsObject returns true if v references an object.
func (v Value) IsObject() bool { return v.kind == KindObject }

// AsBool returns the boolean payload. Only valid when IsBool is true.
func (v Value) AsBool() bool { return v.num != 0 }

// AsNumber returns the number payload. Only valid when IsNumber is true.
func (v Value) AsNumber() float64 { return v.num }

// AsObject returns the referenced object, or nil.
func (v Value) AsObject() Object { return v.obj }

// AsString returns the string payload and whether v is a string.
func (v Value) AsString() (string, bool) {
	if s, ok := v.obj.(*String); ok {
		return s.Value, true
	}
	return "", false
}

// IsString returns true if v references a String.
func (v Value) IsString() bool {
	_, ok := v.obj.(*String)
	return ok
}

// Truthy reports whether v counts as true in a condition.
// Only null and false are falsy.
func (v Value) Truthy() bool {
	switch v.kind {
	case KindNull:
		return false
	case KindBool:
		return v.AsBool()
	}
	return true
}

// TypeName returns the runtime type name of v.
func (v Value) TypeName() string {
	switch v.kind {
	case KindNull:
		return "null"
	case KindBool:
		return "bool"
	case KindNumber:
		return "number"
	}
	return v.obj.Kind().String()
}

// Equals compares two values. Numbers, bools and strings compare by
// content; other objects by identity.
func (v Value) Equals(other Value) bool {
	if v.kind != other.kind {
		return false
	}
	switch v.kind {
	case KindNull:
		return true
	case KindBool, KindNumber:
		return v.num == other.num
	}
	if a, ok := v.obj.(*String); ok {
		if b, ok := other.obj.(*String); ok {
			return a.Value == b.Value
		}
		return false
	}
	return v.obj == other.obj
}

// ---------------------------------------------------------------------------
// Formatting
// ---------------------------------------------------------------------------

// FormatNumber renders a number in its shortest form.
func FormatNumber(n float64) string {
	switch {
	case math.IsInf(n, 1):
		return "inf"
	case math.IsInf(n, -1):
		return "-inf"
	case math.IsNaN(n):
		return "nan"
	}
	return strconv.FormatFloat(n, 'f', -1, 64)
}

// String renders v for display.
func (v Value) String() string {
	switch v.kind {
	case KindNull:
		return "null"
	case KindBool:
		return strconv.FormatBool(v.AsBool())
	case KindNumber:
		return FormatNumber(v.num)
	}
	return v.obj.String()
}

// GoString renders v for debugging, quoting strings.
func (v Value) GoString() string {
	if s, ok := v.AsString(); ok {
		return strconv.Quote(s)
	}
	return v.String()
}

// concatPart renders one side of a string concatenation. Numbers use two
// decimal places.
func concatPart(v Value) string {
	if v.kind == KindNumber {
		return fmt.Sprintf("%.2f", v.num)
	}
	if s, ok := v.AsString(); ok {
		return s
	}
	return v.String()
}

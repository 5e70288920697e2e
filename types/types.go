// Package types implements the Kestrel static type lattice.
//
// A Type is a bit set of primitive categories plus optional handles to
// nested structural information, one per extended category: function
// signature, table shape and array element list. Nested information lives in an Arena that is owned by a
// single compilation unit; handles are only meaningful against the arena
// that produced them.
package types

import (
	"sort"
	"strings"
)

// ---------------------------------------------------------------------------
// Flags
// ---------------------------------------------------------------------------

// Flag is a single category bit of the type lattice.
type Flag uint16

const (
	Unknown Flag = 1 << iota
	Null
	Number
	Bool
	String
	Table
	Array
	Function
	Native
	Closure
	Upvalue
	None
	Auto
)

// Extended categories carry nested structural information.
const extended = Table | Array | Function

var flagNames = []struct {
	flag Flag
	name string
}{
	{Unknown, "any"},
	{Null, "null"},
	{Number, "number"},
	{Bool, "bool"},
	{String, "string"},
	{Table, "table"},
	{Array, "array"},
	{Function, "function"},
	{Native, "native"},
	{Closure, "closure"},
	{Upvalue, "upvalue"},
	{None, "none"},
	{Auto, "auto"},
}

// FlagByName maps a source-level type keyword to its flag.
func FlagByName(name string) (Flag, bool) {
	for _, fn := range flagNames {
		if fn.name == name {
			return fn.flag, true
		}
	}
	return 0, false
}

// Handle indexes nested information inside an Arena. Zero means none.
type Handle uint32

// Type is a flag set plus optional nested information for each extended
// category it contains.
type Type struct {
	Flags Flag
	Sig   Handle // function signature
	Shape Handle // table properties
	Elems Handle // array elements
}

// handle returns t's nested handle for one extended category.
func (t Type) handle(category Flag) Handle {
	switch category {
	case Function:
		return t.Sig
	case Table:
		return t.Shape
	case Array:
		return t.Elems
	}
	return 0
}

// withHandle returns t with the nested handle of category set to h.
func (t Type) withHandle(category Flag, h Handle) Type {
	switch category {
	case Function:
		t.Sig = h
	case Table:
		t.Shape = h
	case Array:
		t.Elems = h
	}
	return t
}

// extendedFlags lists the extended categories in display order.
var extendedFlags = []Flag{Table, Array, Function}

// Of builds a primitive type from flags.
func Of(flags Flag) Type {
	return Type{Flags: flags}
}

// Well-known primitive types.
var (
	TUnknown = Of(Unknown)
	TNull    = Of(Null)
	TNumber  = Of(Number)
	TBool    = Of(Bool)
	TString  = Of(String)
	TNone    = Of(None)
	TAuto    = Of(Auto)
)

// Is reports whether any of the given flags are set.
func (t Type) Is(f Flag) bool {
	return t.Flags&f != 0
}

// IsUnknown reports whether t is the absorbing gradual type.
func (t Type) IsUnknown() bool {
	return t.Flags&Unknown != 0
}

// IsAuto reports whether t asks for inference from an initializer.
func (t Type) IsAuto() bool {
	return t.Flags&Auto != 0
}

// IsCallable reports whether values of t may be called.
func (t Type) IsCallable() bool {
	return t.IsUnknown() || t.Flags&(Function|Native|Closure) != 0
}

// ---------------------------------------------------------------------------
// Nested information
// ---------------------------------------------------------------------------

// Field is a named type: a function argument or a table property.
type Field struct {
	Name string
	Type Type
}

// Info is the nested structural information of one extended category.
// Only the part matching Category is meaningful.
type Info struct {
	Category Flag    // Function, Table or Array
	Return   Type    // function return type
	Args     []Field // function arguments, in order
	Props    []Field // table properties, sorted by name
	Elems    []Type  // array element types, positional
}

// Arena stores nested information for one compilation unit.
type Arena struct {
	infos []Info
}

// NewArena creates an empty arena. Handle 0 is reserved.
func NewArena() *Arena {
	return &Arena{infos: make([]Info, 1, 16)}
}

// Info returns the nested information behind h, or nil.
func (a *Arena) Info(h Handle) *Info {
	if h == 0 || int(h) >= len(a.infos) {
		return nil
	}
	return &a.infos[h]
}

// nested returns the information t carries for category, or nil.
func (a *Arena) nested(t Type, category Flag) *Info {
	if t.Flags&category == 0 {
		return nil
	}
	info := a.Info(t.handle(category))
	if info == nil || info.Category != category {
		return nil
	}
	return info
}

func (a *Arena) add(info Info) Handle {
	a.infos = append(a.infos, info)
	return Handle(len(a.infos) - 1)
}

// Func creates a function type with the given arguments and return type.
func (a *Arena) Func(ret Type, args ...Field) Type {
	h := a.add(Info{Category: Function, Return: ret, Args: append([]Field(nil), args...)})
	return Type{Flags: Function, Sig: h}
}

// NativeFunc creates the type of a native callable with a known signature.
func (a *Arena) NativeFunc(ret Type, args ...Field) Type {
	t := a.Func(ret, args...)
	t.Flags |= Native
	return t
}

// TableOf creates a table type with a fixed property shape.
func (a *Arena) TableOf(props ...Field) Type {
	sorted := append([]Field(nil), props...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Name < sorted[j].Name })
	h := a.add(Info{Category: Table, Props: sorted})
	return Type{Flags: Table, Shape: h}
}

// ArrayOf creates an array type with positional element types.
func (a *Arena) ArrayOf(elems ...Type) Type {
	h := a.add(Info{Category: Array, Elems: append([]Type(nil), elems...)})
	return Type{Flags: Array, Elems: h}
}

// Return returns the declared return type of a function type, or unknown.
func (a *Arena) Return(t Type) Type {
	if info := a.nested(t, Function); info != nil {
		return info.Return
	}
	return TUnknown
}

// Args returns the argument list of a function type and whether it is known.
func (a *Arena) Args(t Type) ([]Field, bool) {
	if info := a.nested(t, Function); info != nil {
		return info.Args, true
	}
	return nil, false
}

// Property looks up a table property type. The second result reports
// whether the table shape is known; the third whether the property exists.
func (a *Arena) Property(t Type, name string) (Type, bool, bool) {
	info := a.nested(t, Table)
	if info == nil {
		return TUnknown, false, false
	}
	for _, p := range info.Props {
		if p.Name == name {
			return p.Type, true, true
		}
	}
	return TUnknown, true, false
}

// ---------------------------------------------------------------------------
// Relations
// ---------------------------------------------------------------------------

// IsAssignable reports whether a value of type expr may be stored into a
// slot of type target. Unknown on either side always succeeds. Nested
// information is compared for each extended category the two overlap in.
func (a *Arena) IsAssignable(target, expr Type) bool {
	if target.IsUnknown() || expr.IsUnknown() {
		return true
	}
	overlap := target.Flags & expr.Flags
	if overlap == 0 {
		return false
	}
	for _, category := range extendedFlags {
		if overlap&category == 0 {
			continue
		}
		ti, ei := a.nested(target, category), a.nested(expr, category)
		if ti == nil {
			// An unshaped target accepts any shape of its category.
			continue
		}
		if ei == nil || !a.infoEquals(ti, ei) {
			return false
		}
	}
	return true
}

// DeepEquals is the strict form: identical flags and identical nested
// shapes in every extended category.
func (a *Arena) DeepEquals(x, y Type) bool {
	if x.Flags != y.Flags {
		return false
	}
	for _, category := range extendedFlags {
		xi, yi := a.nested(x, category), a.nested(y, category)
		if xi == nil || yi == nil {
			if xi != yi {
				return false
			}
			continue
		}
		if !a.infoEquals(xi, yi) {
			return false
		}
	}
	return true
}

func (a *Arena) infoEquals(x, y *Info) bool {
	if x == y {
		return true
	}
	if x.Category != y.Category {
		return false
	}
	switch x.Category {
	case Function:
		if len(x.Args) != len(y.Args) || !a.DeepEquals(x.Return, y.Return) {
			return false
		}
		for i := range x.Args {
			if !a.DeepEquals(x.Args[i].Type, y.Args[i].Type) {
				return false
			}
		}
	case Table:
		if len(x.Props) != len(y.Props) {
			return false
		}
		for i := range x.Props {
			if x.Props[i].Name != y.Props[i].Name || !a.DeepEquals(x.Props[i].Type, y.Props[i].Type) {
				return false
			}
		}
	case Array:
		if len(x.Elems) != len(y.Elems) {
			return false
		}
		for i := range x.Elems {
			if !a.DeepEquals(x.Elems[i], y.Elems[i]) {
				return false
			}
		}
	}
	return true
}

// Join unions two types. It fails, returning t unchanged and false, when
// both sides carry different nested shapes for the same category.
// Shapes of different categories sit side by side.
func (a *Arena) Join(t, other Type) (Type, bool) {
	joined := Type{Flags: t.Flags | other.Flags}
	for _, category := range extendedFlags {
		ti, oi := a.nested(t, category), a.nested(other, category)
		switch {
		case ti != nil && oi != nil:
			if !a.infoEquals(ti, oi) {
				return t, false
			}
			joined = joined.withHandle(category, t.handle(category))
		case ti != nil:
			joined = joined.withHandle(category, t.handle(category))
		case oi != nil:
			joined = joined.withHandle(category, other.handle(category))
		}
	}
	return joined, true
}

// ---------------------------------------------------------------------------
// Display
// ---------------------------------------------------------------------------

// String renders t the way it would be written in source.
func (a *Arena) String(t Type) string {
	if t.Flags == 0 {
		return "none"
	}
	var parts []string
	for _, fn := range flagNames {
		if t.Flags&fn.flag == 0 {
			continue
		}
		if info := a.nested(t, fn.flag&extended); info != nil {
			parts = append(parts, a.infoString(info))
			continue
		}
		if fn.flag == Native && a.nested(t, Function) != nil {
			continue
		}
		parts = append(parts, fn.name)
	}
	return strings.Join(parts, " | ")
}

func (a *Arena) infoString(info *Info) string {
	var sb strings.Builder
	switch info.Category {
	case Function:
		sb.WriteString("function(")
		for i, arg := range info.Args {
			if i > 0 {
				sb.WriteString(", ")
			}
			sb.WriteString(a.String(arg.Type))
		}
		sb.WriteString("): ")
		sb.WriteString(a.String(info.Return))
	case Table:
		sb.WriteString("{ ")
		for i, p := range info.Props {
			if i > 0 {
				sb.WriteString(", ")
			}
			sb.WriteString(p.Name)
			sb.WriteString(": ")
			sb.WriteString(a.String(p.Type))
		}
		sb.WriteString(" }")
	case Array:
		sb.WriteString("[")
		for i, e := range info.Elems {
			if i > 0 {
				sb.WriteString(", ")
			}
			sb.WriteString(a.String(e))
		}
		sb.WriteString("]")
	}
	return sb.String()
}

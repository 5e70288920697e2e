package vm

import (
	"fmt"
	"sort"
	"strings"
)

// ---------------------------------------------------------------------------
// Object kinds
// ---------------------------------------------------------------------------

// ObjectKind identifies a heap object variant.
type ObjectKind uint8

const (
	ObjString ObjectKind = iota
	ObjFunction
	ObjClosure
	ObjUpvalue
	ObjTable
	ObjArray
	ObjNative
)

var objectKindNames = [...]string{
	ObjString:   "string",
	ObjFunction: "function",
	ObjClosure:  "closure",
	ObjUpvalue:  "upvalue",
	ObjTable:    "table",
	ObjArray:    "array",
	ObjNative:   "native",
}

func (k ObjectKind) String() string {
	if int(k) < len(objectKindNames) {
		return objectKindNames[k]
	}
	return fmt.Sprintf("ObjectKind(%d)", k)
}

// Object is implemented by every heap-allocated value.
type Object interface {
	Kind() ObjectKind
	String() string
}

// ---------------------------------------------------------------------------
// String
// ---------------------------------------------------------------------------

// String is an immutable string object.
type String struct {
	Value string
}

func (s *String) Kind() ObjectKind { return ObjString }
func (s *String) String() string   { return s.Value }

// ---------------------------------------------------------------------------
// Function
// ---------------------------------------------------------------------------

// Param describes one declared parameter of a function.
type Param struct {
	Name string
	Type string // declared type as written, for display
}

// Function is a compiled function body. It is created by the compiler and
// never mutated by the interpreter.
type Function struct {
	Name         string
	Params       []Param
	UpvalueCount int
	Chunk        *Chunk
}

// NewFunction creates a function with an empty chunk.
func NewFunction(name string) *Function {
	return &Function{Name: name, Chunk: NewChunk()}
}

// Arity returns the declared parameter count.
func (f *Function) Arity() int { return len(f.Params) }

func (f *Function) Kind() ObjectKind { return ObjFunction }

func (f *Function) String() string {
	if f.Name == "" {
		return "<fn>"
	}
	return fmt.Sprintf("<fn %s>", f.Name)
}

// ---------------------------------------------------------------------------
// Closure
// ---------------------------------------------------------------------------

// Closure pairs a function with its captured upvalues and an optional bound
// receiver used for method calls.
type Closure struct {
	Function *Function
	Upvalues []*Upvalue
	Receiver Value
}

func (c *Closure) Kind() ObjectKind { return ObjClosure }
func (c *Closure) String() string   { return c.Function.String() }

// Bind returns a copy of c whose receiver is recv.
func (c *Closure) Bind(recv Value) *Closure {
	return &Closure{Function: c.Function, Upvalues: c.Upvalues, Receiver: recv}
}

// ---------------------------------------------------------------------------
// Upvalue
// ---------------------------------------------------------------------------

// Upvalue is a captured variable. While open it aliases a stack slot by
// index; once closed it owns a copy of the value.
type Upvalue struct {
	Slot   int
	Open   bool
	Closed Value
}

func (u *Upvalue) Kind() ObjectKind { return ObjUpvalue }
func (u *Upvalue) String() string   { return "<upvalue>" }

// ---------------------------------------------------------------------------
// Table
// ---------------------------------------------------------------------------

// Table is an unordered name to value map.
type Table struct {
	Fields map[string]Value
}

// NewTable creates an empty table.
func NewTable() *Table {
	return &Table{Fields: make(map[string]Value)}
}

func (t *Table) Kind() ObjectKind { return ObjTable }

func (t *Table) String() string {
	keys := make([]string, 0, len(t.Fields))
	for k := range t.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var sb strings.Builder
	sb.WriteString("{")
	for i, k := range keys {
		if i > 0 {
			sb.WriteString(",")
		}
		fmt.Fprintf(&sb, " %s = %s", k, t.Fields[k].GoString())
	}
	if len(keys) > 0 {
		sb.WriteString(" ")
	}
	sb.WriteString("}")
	return sb.String()
}

// ---------------------------------------------------------------------------
// Array
// ---------------------------------------------------------------------------

// Array is an ordered value sequence. Methods is shared by every array of
// one VM and holds the natives registered by modules.
type Array struct {
	Elements []Value
	Methods  map[string]*Native
}

func (a *Array) Kind() ObjectKind { return ObjArray }

func (a *Array) String() string {
	var sb strings.Builder
	sb.WriteString("[")
	for i, e := range a.Elements {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString(e.GoString())
	}
	sb.WriteString("]")
	return sb.String()
}

// ---------------------------------------------------------------------------
// Native
// ---------------------------------------------------------------------------

// NativeFunc is the signature of a Go function callable from Kestrel.
// args[0] is the bound receiver, or the native itself when unbound; the
// call arguments follow.
type NativeFunc func(vm *VM, args []Value) (Value, error)

// Native wraps a Go function. Arity counts call arguments, not args[0];
// -1 accepts any count.
type Native struct {
	Name     string
	Arity    int
	Fn       NativeFunc
	Receiver Value
}

func (n *Native) Kind() ObjectKind { return ObjNative }
func (n *Native) String() string   { return fmt.Sprintf("<native %s>", n.Name) }

// Bind returns a copy of n whose receiver is recv.
func (n *Native) Bind(recv Value) *Native {
	return &Native{Name: n.Name, Arity: n.Arity, Fn: n.Fn, Receiver: recv}
}

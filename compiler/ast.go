package compiler

import (
	"fmt"
	"strings"
)

// ---------------------------------------------------------------------------
// AST: tagged-variant nodes for Kestrel
// ---------------------------------------------------------------------------

// Shape says which payload fields of a Node are meaningful.
type Shape uint8

const (
	ShapeTerm    Shape = iota // no payload
	ShapeValue                // Str or Num
	ShapeSimple               // Left
	ShapeComplex              // Left and Right
	ShapeList                 // List, plus Left for calls and functions
)

var shapeNames = [...]string{"term", "value", "simple", "complex", "list"}

func (s Shape) String() string {
	if int(s) < len(shapeNames) {
		return shapeNames[s]
	}
	return fmt.Sprintf("Shape(%d)", s)
}

// Kind identifies the construct a Node represents.
type Kind uint8

const (
	// Terms
	KindNull Kind = iota
	KindTrue
	KindFalse
	KindThis

	// Values
	KindNumber
	KindString
	KindIdentifier
	KindVar    // Str = name, Type = annotation
	KindConst  // Str = name, Type = annotation
	KindImport // Str = module name

	// Simple
	KindNegate
	KindNot
	KindPreIncrement
	KindPreDecrement
	KindPostIncrement
	KindPostDecrement
	KindReturn // Left may be nil
	KindMember // Left = object, Str = property
	KindField  // Str = name, Left = value (inside a table literal)

	// Complex
	KindAdd
	KindSubtract
	KindMultiply
	KindDivide
	KindModulo
	KindPower
	KindEqual
	KindNotEqual
	KindLess
	KindLessEqual
	KindGreater
	KindGreaterEqual
	KindAnd
	KindOr
	KindAssign
	KindAddAssign
	KindSubtractAssign
	KindMultiplyAssign
	KindDivideAssign
	KindIndex   // Left = object, Right = index
	KindWhile   // Left = condition, Right = body
	KindDoWhile // Left = body, Right = condition

	// Lists
	KindProgram
	KindBlock
	KindCall     // Left = callee, List = arguments
	KindArray    // List = elements
	KindTable    // List = KindField nodes
	KindIf       // List = condition, then, else (else may be nil)
	KindFor      // List = init, condition, step, body (any but body may be nil)
	KindFunction // Str = name, List = KindVar params, Left = body, Type = return annotation
)

var kindNames = map[Kind]string{
	KindNull:           "null",
	KindTrue:           "true",
	KindFalse:          "false",
	KindThis:           "this",
	KindNumber:         "number",
	KindString:         "string",
	KindIdentifier:     "identifier",
	KindVar:            "var",
	KindConst:          "const",
	KindImport:         "import",
	KindNegate:         "negate",
	KindNot:            "not",
	KindPreIncrement:   "pre-increment",
	KindPreDecrement:   "pre-decrement",
	KindPostIncrement:  "post-increment",
	KindPostDecrement:  "post-decrement",
	KindReturn:         "return",
	KindMember:         "member",
	KindField:          "field",
	KindAdd:            "add",
	KindSubtract:       "subtract",
	KindMultiply:       "multiply",
	KindDivide:         "divide",
	KindModulo:         "modulo",
	KindPower:          "power",
	KindEqual:          "equal",
	KindNotEqual:       "not-equal",
	KindLess:           "less",
	KindLessEqual:      "less-equal",
	KindGreater:        "greater",
	KindGreaterEqual:   "greater-equal",
	KindAnd:            "and",
	KindOr:             "or",
	KindAssign:         "assign",
	KindAddAssign:      "add-assign",
	KindSubtractAssign: "subtract-assign",
	KindMultiplyAssign: "multiply-assign",
	KindDivideAssign:   "divide-assign",
	KindIndex:          "index",
	KindWhile:          "while",
	KindDoWhile:        "do-while",
	KindProgram:        "program",
	KindBlock:          "block",
	KindCall:           "call",
	KindArray:          "array",
	KindTable:          "table",
	KindIf:             "if",
	KindFor:            "for",
	KindFunction:       "function",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("Kind(%d)", k)
}

// shapeOf returns the payload shape every node of kind k carries.
func shapeOf(k Kind) Shape {
	switch {
	case k <= KindThis:
		return ShapeTerm
	case k <= KindImport:
		return ShapeValue
	case k <= KindField:
		return ShapeSimple
	case k <= KindDoWhile:
		return ShapeComplex
	default:
		return ShapeList
	}
}

// Node is one AST node. Shape selects which payload fields are in use.
type Node struct {
	Shape Shape
	Kind  Kind
	Token Token // the token the node was built from, for positions

	Str  string
	Num  float64
	Type *TypeExpr

	Left  *Node
	Right *Node
	List  []*Node
}

// IsDeclaration reports whether n declares a name.
func (n *Node) IsDeclaration() bool {
	return n.Kind == KindVar || n.Kind == KindConst
}

// isBlockLike reports whether a statement built from n ends without a
// semicolon.
func (n *Node) isBlockLike() bool {
	switch n.Kind {
	case KindBlock, KindIf, KindWhile, KindFor:
		return true
	case KindFunction:
		return n.Str != ""
	}
	return false
}

// String renders n as an s-expression, for tests and debugging.
func (n *Node) String() string {
	if n == nil {
		return "_"
	}
	var sb strings.Builder
	n.write(&sb)
	return sb.String()
}

func (n *Node) write(sb *strings.Builder) {
	switch n.Shape {
	case ShapeTerm:
		sb.WriteString(n.Kind.String())
		return
	case ShapeValue:
		switch n.Kind {
		case KindNumber:
			fmt.Fprintf(sb, "%g", n.Num)
		case KindString:
			fmt.Fprintf(sb, "%q", n.Str)
		case KindIdentifier:
			sb.WriteString(n.Str)
		default:
			fmt.Fprintf(sb, "(%s %s", n.Kind, n.Str)
			if n.Type != nil {
				fmt.Fprintf(sb, " : %s", n.Type)
			}
			sb.WriteByte(')')
		}
		return
	}

	fmt.Fprintf(sb, "(%s", n.Kind)
	if n.Str != "" && n.Kind != KindMember {
		fmt.Fprintf(sb, " %s", n.Str)
	}
	for _, c := range n.children() {
		sb.WriteByte(' ')
		sb.WriteString(c.String())
	}
	if n.Kind == KindMember {
		fmt.Fprintf(sb, " %s", n.Str)
	}
	if n.Type != nil {
		fmt.Fprintf(sb, " : %s", n.Type)
	}
	sb.WriteByte(')')
}

// children returns the direct children of n in source order. Missing
// optional children are reported as nil.
func (n *Node) children() []*Node {
	switch n.Shape {
	case ShapeSimple:
		return []*Node{n.Left}
	case ShapeComplex:
		return []*Node{n.Left, n.Right}
	case ShapeList:
		switch n.Kind {
		case KindCall:
			return append([]*Node{n.Left}, n.List...)
		case KindFunction:
			return append(append([]*Node(nil), n.List...), n.Left)
		}
		return n.List
	}
	return nil
}

// Walk calls fn for n and each descendant in depth-first order, stopping
// descent below a node when fn returns false.
func Walk(n *Node, fn func(*Node) bool) {
	if n == nil || !fn(n) {
		return
	}
	for _, c := range n.children() {
		Walk(c, fn)
	}
}

// ---------------------------------------------------------------------------
// Type annotations
// ---------------------------------------------------------------------------

// TypeExprKind selects the form of a type annotation.
type TypeExprKind uint8

const (
	TypeNamed    TypeExprKind = iota // number, string, any, ...
	TypeFunction                     // function(number, string): bool
	TypeTable                        // { label: string }
	TypeArray                        // [number, string]
	TypeUnion                        // number | string
)

// TypeField is a named member of a table annotation.
type TypeField struct {
	Name string
	Type *TypeExpr
}

// TypeExpr is a parsed, unresolved type annotation.
type TypeExpr struct {
	Kind   TypeExprKind
	Token  Token
	Name   string
	Params []*TypeExpr // function parameters, array elements or union members
	Return *TypeExpr
	Fields []TypeField
}

func (t *TypeExpr) String() string {
	if t == nil {
		return "auto"
	}
	parts := func(list []*TypeExpr, sep string) string {
		s := make([]string, len(list))
		for i, p := range list {
			s[i] = p.String()
		}
		return strings.Join(s, sep)
	}
	switch t.Kind {
	case TypeFunction:
		s := "function(" + parts(t.Params, ", ") + ")"
		if t.Return != nil {
			s += ": " + t.Return.String()
		}
		return s
	case TypeTable:
		s := make([]string, len(t.Fields))
		for i, f := range t.Fields {
			s[i] = f.Name + ": " + f.Type.String()
		}
		return "{ " + strings.Join(s, ", ") + " }"
	case TypeArray:
		return "[" + parts(t.Params, ", ") + "]"
	case TypeUnion:
		return parts(t.Params, " | ")
	}
	return t.Name
}

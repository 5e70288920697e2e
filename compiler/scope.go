package compiler

import (
	"github.com/chazu/kestrel/types"
	"github.com/chazu/kestrel/vm"
)

// ---------------------------------------------------------------------------
// Variables and scopes
// ---------------------------------------------------------------------------

// Variable is a resolved name: a local slot, an upvalue or a global.
type Variable struct {
	Name     string
	Const    bool
	Type     types.Type
	Slot     int  // local slot or upvalue index
	Captured bool // a nested closure captured this local
	Token    Token

	origin *Variable // the captured variable an upvalue refers to
}

// root is the variable v ultimately refers to: itself, or for an upvalue
// the local or global it captures.
func (v *Variable) root() *Variable {
	for v.origin != nil {
		v = v.origin
	}
	return v
}

// upvalueRef is one captured variable of a function.
type upvalueRef struct {
	name    string
	isLocal bool // index is a slot of the enclosing frame, else its upvalue
	index   int
	v       *Variable
}

// funcContext is the compilation state of one function body.
type funcContext struct {
	enclosing *funcContext
	fn        *vm.Function
	scopes    [][]*Variable
	upvalues  []upvalueRef
	locals    int // live locals, excluding slot 0

	declaredReturn types.Type
	returns        []types.Type
}

func newFuncContext(enclosing *funcContext, name string) *funcContext {
	return &funcContext{
		enclosing:      enclosing,
		fn:             vm.NewFunction(name),
		declaredReturn: types.TAuto,
	}
}

func (c *funcContext) chunk() *vm.Chunk {
	return c.fn.Chunk
}

// depth is the number of open block scopes.
func (c *funcContext) depth() int {
	return len(c.scopes)
}

// isTop reports whether c compiles the program's top level.
func (c *funcContext) isTop() bool {
	return c.enclosing == nil
}

func (c *funcContext) pushScope() {
	c.scopes = append(c.scopes, nil)
}

// popScope closes the innermost scope and returns its locals in
// declaration order.
func (c *funcContext) popScope() []*Variable {
	last := c.scopes[len(c.scopes)-1]
	c.scopes = c.scopes[:len(c.scopes)-1]
	c.locals -= len(last)
	return last
}

// addLocal appends a local to the innermost scope and returns it. A name
// may be declared again in the same scope; the newer slot hides the older.
func (c *funcContext) addLocal(name string, isConst bool, t types.Type, tok Token) *Variable {
	c.locals++
	v := &Variable{Name: name, Const: isConst, Type: t, Slot: c.locals, Token: tok}
	top := len(c.scopes) - 1
	c.scopes[top] = append(c.scopes[top], v)
	return v
}

// findLocal resolves name among the open scopes, innermost first.
func (c *funcContext) findLocal(name string) *Variable {
	for i := len(c.scopes) - 1; i >= 0; i-- {
		scope := c.scopes[i]
		for j := len(scope) - 1; j >= 0; j-- {
			if scope[j].Name == name {
				return scope[j]
			}
		}
	}
	return nil
}

// findUpvalue resolves name as a variable captured from an enclosing
// function, requesting it through every intermediate function. The
// returned Variable's Slot is the upvalue index in c.
func (c *funcContext) findUpvalue(name string) *Variable {
	if c.enclosing == nil {
		return nil
	}
	for i, up := range c.upvalues {
		if up.name == name {
			return upvalueVar(up, i)
		}
	}
	if local := c.enclosing.findLocal(name); local != nil {
		local.Captured = true
		return c.requestUpvalue(name, true, local.Slot, local)
	}
	if outer := c.enclosing.findUpvalue(name); outer != nil {
		return c.requestUpvalue(name, false, outer.Slot, outer)
	}
	return nil
}

// requestUpvalue records a capture. Each name is captured at most once
// per function.
func (c *funcContext) requestUpvalue(name string, isLocal bool, index int, v *Variable) *Variable {
	up := upvalueRef{name: name, isLocal: isLocal, index: index, v: v}
	c.upvalues = append(c.upvalues, up)
	return upvalueVar(up, len(c.upvalues)-1)
}

func upvalueVar(up upvalueRef, index int) *Variable {
	root := up.v.root()
	return &Variable{
		Name:   up.name,
		Const:  root.Const,
		Type:   root.Type,
		Slot:   index,
		Token:  root.Token,
		origin: root,
	}
}

package compiler

import (
	"github.com/chazu/kestrel/types"
	"github.com/chazu/kestrel/vm"
)

// loopSlack is the room left in a loop instruction's width choice for the
// conditional exit jump inserted between its target and itself.
const loopSlack = 5

// ---------------------------------------------------------------------------
// Blocks and scopes
// ---------------------------------------------------------------------------

// compileBlock compiles a statement list. A block opens a scope; the
// program's own statement list is the global scope.
func (a *Assembler) compileBlock(n *Node) {
	scoped := n.Kind == KindBlock
	if scoped {
		a.ctx.pushScope()
	}
	for _, stmt := range n.List {
		a.compile(stmt, 0)
	}
	if scoped {
		a.popScope()
	}
}

// compileBody compiles the body of an if, else or loop. An unbraced body
// still gets a scope of its own, so a declaration in it is dropped when
// the body ends.
func (a *Assembler) compileBody(n *Node) {
	if n == nil || n.Kind == KindBlock {
		a.compile(n, 0)
		return
	}
	a.ctx.pushScope()
	a.compile(n, 0)
	a.popScope()
}

// popScope closes the innermost scope. Captured locals are closed one by
// one, in reverse declaration order; runs of other locals are dropped
// together.
func (a *Assembler) popScope() {
	locals := a.ctx.popScope()
	pending := 0
	for i := len(locals) - 1; i >= 0; i-- {
		if !locals[i].Captured {
			pending++
			continue
		}
		a.emitPops(pending)
		pending = 0
		a.emit(vm.OpCloseUpvalue)
	}
	a.emitPops(pending)
}

// isGlobalScope reports whether declarations here create globals.
func (a *Assembler) isGlobalScope() bool {
	return a.ctx.isTop() && a.ctx.depth() == 0
}

// ---------------------------------------------------------------------------
// Declarations
// ---------------------------------------------------------------------------

// compileDeclaration compiles var/const with an optional initializer.
// Unannotated declarations take the initializer's type; without an
// initializer they are any.
func (a *Assembler) compileDeclaration(decl, init *Node, mode Mode) types.Type {
	if mode.has(ModeExpression) {
		a.errorf(MsgInvalidDeclaration, decl.Token, "declaration of %q is not allowed in an expression", decl.Str)
		a.compile(init, ModeExpression)
		return types.TUnknown
	}

	isConst := decl.Kind == KindConst
	if isConst && init == nil {
		a.errorf(MsgUninitializedConst, decl.Token, "constant %q must be initialized", decl.Str)
	}

	declared := types.TUnknown
	switch {
	case decl.Type != nil:
		declared = a.resolveType(decl.Type)
	case init != nil:
		declared = types.TAuto
	}

	global := a.isGlobalScope()
	redeclared := false
	if global {
		if prev, exists := a.globals[decl.Str]; exists {
			a.errorf(MsgGlobalRedeclared, decl.Token, "global %q is already declared at %d:%d",
				decl.Str, prev.Token.Line, prev.Token.Column)
			redeclared = true
		}
	}

	v := &Variable{Name: decl.Str, Const: isConst, Token: decl.Token}
	var t types.Type
	switch {
	case init == nil:
		a.emit(vm.OpNull)
		t = types.TNull
	case init.Kind == KindFunction && init.Str == "":
		start := a.chunk().Len()
		t, _ = a.compileFunction(init, v)
		a.symbol(init, start)
	default:
		t = a.compile(init, ModeExpression)
	}

	switch {
	case declared.IsAuto():
		v.Type = t
		if t.Flags == types.Null || t.Flags == types.None {
			v.Type = types.TUnknown
		}
	default:
		if init != nil {
			a.checkAssignable(init.Token, declared, t, "declaration of "+decl.Str)
		}
		v.Type = declared
	}

	if global {
		if !redeclared {
			a.globals[decl.Str] = v
		}
		a.chunk().EmitWithOperand(vm.OpDefineGlobal, a.nameConstant(decl.Str))
		return types.TNone
	}
	a.ctx.addLocal(decl.Str, isConst, v.Type, decl.Token)
	return types.TNone
}

// compileFunctionDeclaration binds a named function as a constant. The
// name is declared before the body compiles so the function can call
// itself; a local function captures its own slot for that.
func (a *Assembler) compileFunctionDeclaration(n *Node) {
	if a.isGlobalScope() {
		v := &Variable{Name: n.Str, Const: true, Type: types.Of(types.Function), Token: n.Token}
		if prev, exists := a.globals[n.Str]; exists {
			a.errorf(MsgGlobalRedeclared, n.Token, "global %q is already declared at %d:%d",
				n.Str, prev.Token.Line, prev.Token.Column)
		} else {
			a.globals[n.Str] = v
		}
		a.compileFunction(n, v)
		a.chunk().EmitWithOperand(vm.OpDefineGlobal, a.nameConstant(n.Str))
		return
	}
	v := a.ctx.addLocal(n.Str, true, types.Of(types.Function), n.Token)
	a.compileFunction(n, v)
}

// compileImport declares a native module's globals and emits the runtime
// import. Imports are only valid at the top level.
func (a *Assembler) compileImport(n *Node) {
	if !a.isGlobalScope() {
		a.errorf(MsgImportNotTopLevel, n.Token, "import of %q must be at the top level", n.Str)
		return
	}
	m, ok := a.modules.Lookup(n.Str)
	if !ok {
		a.errorf(MsgUnknownModule, n.Token, "unknown module %q", n.Str)
		return
	}
	if !a.imported[n.Str] {
		a.importTok = n.Token
		m.Declare(a)
		a.imported[n.Str] = true
	}
	a.chunk().EmitWithOperand(vm.OpImport, a.nameConstant(n.Str))
}

// compileReturn compiles return. Inside a function the value's type is
// checked against the declared return type and recorded for inference.
func (a *Assembler) compileReturn(n *Node) {
	t := a.compile(n.Left, ModeExpression)
	if !a.ctx.isTop() {
		if !a.ctx.declaredReturn.IsAuto() {
			a.checkAssignable(n.Token, a.ctx.declaredReturn, t, "return")
		}
		a.ctx.returns = append(a.ctx.returns, t)
	}
	a.emit(vm.OpReturn)
}

// ---------------------------------------------------------------------------
// Control flow
// ---------------------------------------------------------------------------

// compileIf emits
//
//	cond JUMP_IF_FALSE(else) then JUMP(end) else
//
// The jumps are inserted after the branches are emitted, when their
// distances are known.
func (a *Assembler) compileIf(n *Node) {
	cond, then, otherwise := n.List[0], n.List[1], n.List[2]
	a.compile(cond, ModeExpression)
	x := a.chunk().Len()
	a.compileBody(then)
	if otherwise == nil {
		a.placeJump(n.Token, x, vm.OpJumpIfFalse, a.chunk().Len())
		return
	}
	x2 := a.chunk().Len()
	a.compileBody(otherwise)
	n2 := a.placeJump(n.Token, x2, vm.OpJump, a.chunk().Len())
	a.placeJump(n.Token, x, vm.OpJumpIfFalse, x2+n2)
}

// compileWhile emits
//
//	start: cond JUMP_IF_FALSE(end) body LOOP(start) end:
func (a *Assembler) compileWhile(n *Node) {
	start := a.chunk().Len()
	a.compile(n.Left, ModeExpression)
	x := a.chunk().Len()
	a.compileBody(n.Right)
	loop := a.chunk().EmitLoop(start, loopSlack)
	loop += a.placeJump(n.Token, x, vm.OpJumpIfFalse, a.chunk().Len())
	a.closeLoop(n.Token, loop, start)
}

// compileDoWhile emits
//
//	start: body cond JUMP_IF_FALSE(end) LOOP(start) end:
func (a *Assembler) compileDoWhile(n *Node) {
	start := a.chunk().Len()
	a.compileBody(n.Left)
	a.compile(n.Right, ModeExpression)
	x := a.chunk().Len()
	loop := a.chunk().EmitLoop(start, loopSlack)
	loop += a.placeJump(n.Token, x, vm.OpJumpIfFalse, a.chunk().Len())
	a.closeLoop(n.Token, loop, start)
}

// compileFor emits
//
//	init start: cond JUMP_IF_FALSE(end) body step LOOP(start) end:
//
// inside a scope of its own, so the loop variable ends with the loop.
func (a *Assembler) compileFor(n *Node) {
	init, cond, step, body := n.List[0], n.List[1], n.List[2], n.List[3]
	a.ctx.pushScope()
	a.compile(init, 0)
	start := a.chunk().Len()
	x := -1
	if cond != nil {
		a.compile(cond, ModeExpression)
		x = a.chunk().Len()
	}
	a.compileBody(body)
	a.compile(step, 0)
	loop := a.chunk().EmitLoop(start, loopSlack)
	if x >= 0 {
		loop += a.placeJump(n.Token, x, vm.OpJumpIfFalse, a.chunk().Len())
	}
	a.closeLoop(n.Token, loop, start)
	a.popScope()
}

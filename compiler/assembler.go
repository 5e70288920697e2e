package compiler

import (
	"sort"

	"github.com/chazu/kestrel/types"
	"github.com/chazu/kestrel/vm"
)

// ---------------------------------------------------------------------------
// Compile modes
// ---------------------------------------------------------------------------

// Mode tells a node how it is being compiled.
type Mode uint8

const (
	// ModeExpression: the node must leave exactly one value on the stack.
	// Without it the node is a statement and leaves the stack unchanged.
	ModeExpression Mode = 1 << iota
	// ModeAssignTarget: the value to store is on the stack; the node emits
	// the store instead of a load.
	ModeAssignTarget
	// ModeInitializer: the store initializes a declaration, so const
	// targets are accepted.
	ModeInitializer
)

func (m Mode) has(f Mode) bool { return m&f != 0 }

// maxOperands bounds call arguments and function parameters.
const maxOperands = 255

// ---------------------------------------------------------------------------
// Assembler
// ---------------------------------------------------------------------------

// Assembler walks a parsed program, resolving names and checking types,
// and emits bytecode into one vm.Function per function body.
type Assembler struct {
	arena        *types.Arena
	ctx          *funcContext
	globals      map[string]*Variable
	arrayMethods map[string]types.Type
	modules      *vm.Registry
	imported     map[string]bool
	diags        diagnosticSink
	symbols      bool
	importTok    Token // the import whose module is declaring
}

// NewAssembler creates an assembler that resolves imports from modules.
func NewAssembler(modules *vm.Registry, maxDiagnostics int, symbols bool) *Assembler {
	return &Assembler{
		arena:        types.NewArena(),
		globals:      make(map[string]*Variable),
		arrayMethods: make(map[string]types.Type),
		modules:      modules,
		imported:     make(map[string]bool),
		diags:        diagnosticSink{stage: StageSemantic, limit: maxDiagnostics},
		symbols:      symbols,
	}
}

// Types returns the type arena of this compilation unit.
func (a *Assembler) Types() *types.Arena {
	return a.arena
}

// DeclareGlobal makes a module global visible to the program. Declaring
// a name again with an identical type is a no-op; any other redeclaration
// is reported against the import.
func (a *Assembler) DeclareGlobal(name string, t types.Type) {
	if prev, exists := a.globals[name]; exists {
		if !a.arena.DeepEquals(prev.Type, t) {
			a.errorf(MsgGlobalRedeclared, a.importTok, "module global %q conflicts with %s declared at %d:%d",
				name, a.arena.String(prev.Type), prev.Token.Line, prev.Token.Column)
		}
		return
	}
	a.globals[name] = &Variable{Name: name, Const: true, Type: t, Token: a.importTok}
}

// DeclareArrayMethod makes a method visible on array values.
func (a *Assembler) DeclareArrayMethod(name string, t types.Type) {
	a.arrayMethods[name] = t
}

var _ vm.CompileScope = (*Assembler)(nil)

// Diagnostics returns the semantic diagnostics collected so far.
func (a *Assembler) Diagnostics() Diagnostics {
	return a.diags.list
}

// Globals returns the program's globals sorted by name.
func (a *Assembler) Globals() []*Variable {
	out := make([]*Variable, 0, len(a.globals))
	for _, v := range a.globals {
		out = append(out, v)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Assemble compiles a program node into the top-level function.
func (a *Assembler) Assemble(prog *Node, name string) *vm.Function {
	a.ctx = newFuncContext(nil, name)
	a.compile(prog, 0)
	fn := a.ctx.fn
	a.ctx = nil
	return fn
}

func (a *Assembler) errorf(id string, tok Token, format string, args ...any) {
	a.diags.add(id, tok, format, args...)
}

// ---------------------------------------------------------------------------
// Dispatch
// ---------------------------------------------------------------------------

// compile emits n in the given mode and returns the static type of the
// value it leaves (types.TNone for statements). A debug range covering the
// emitted bytes is recorded for the node.
func (a *Assembler) compile(n *Node, mode Mode) types.Type {
	if n == nil {
		if mode.has(ModeExpression) {
			a.emit(vm.OpNull)
			return types.TNull
		}
		return types.TNone
	}
	start := a.chunk().Len()
	t := a.compileNode(n, mode)
	a.symbol(n, start)
	return t
}

// symbol records the debug range of n from start to the current offset.
func (a *Assembler) symbol(n *Node, start int) {
	if a.symbols {
		a.chunk().AddSymbol(start, a.chunk().Len(), n.Token.Line, n.Token.Column, n.Token.Lexeme)
	}
}

func (a *Assembler) compileNode(n *Node, mode Mode) types.Type {
	if mode.has(ModeAssignTarget) {
		return a.compileStore(n, mode)
	}

	switch n.Kind {
	case KindProgram, KindBlock:
		if a.statementOnly(n, mode) {
			a.compileBlock(n)
		}
		return types.TNone
	case KindVar, KindConst:
		return a.compileDeclaration(n, nil, mode)
	case KindImport:
		if a.statementOnly(n, mode) {
			a.compileImport(n)
		}
		return types.TNone
	case KindReturn:
		if a.statementOnly(n, mode) {
			a.compileReturn(n)
		}
		return types.TNone
	case KindIf:
		if a.statementOnly(n, mode) {
			a.compileIf(n)
		}
		return types.TNone
	case KindWhile:
		if a.statementOnly(n, mode) {
			a.compileWhile(n)
		}
		return types.TNone
	case KindDoWhile:
		if a.statementOnly(n, mode) {
			a.compileDoWhile(n)
		}
		return types.TNone
	case KindFor:
		if a.statementOnly(n, mode) {
			a.compileFor(n)
		}
		return types.TNone
	case KindFunction:
		if n.Str != "" && !mode.has(ModeExpression) {
			a.compileFunctionDeclaration(n)
			return types.TNone
		}
	case KindAssign:
		if n.Left.IsDeclaration() {
			return a.compileDeclaration(n.Left, n.Right, mode|ModeInitializer)
		}
	case KindPostIncrement, KindPostDecrement:
		if !mode.has(ModeExpression) {
			a.compileIncrement(n, mode)
			a.emit(vm.OpPop)
			return types.TNone
		}
	case KindField:
		a.errorf(MsgInvalidExpression, n.Token, "field %q outside a table literal", n.Str)
		return types.TUnknown
	}

	if !mode.has(ModeExpression) {
		a.compileExpression(n, mode|ModeExpression)
		a.emit(vm.OpPop)
		return types.TNone
	}
	return a.compileExpression(n, mode)
}

// statementOnly reports whether n may be compiled in mode. A statement in
// expression position is diagnosed and replaced by null.
func (a *Assembler) statementOnly(n *Node, mode Mode) bool {
	if !mode.has(ModeExpression) {
		return true
	}
	a.errorf(MsgInvalidExpression, n.Token, "%s is a statement, not an expression", n.Kind)
	a.emit(vm.OpNull)
	return false
}

// compileExpression emits an expression node that leaves one value.
func (a *Assembler) compileExpression(n *Node, mode Mode) types.Type {
	switch n.Kind {
	case KindNull:
		a.emit(vm.OpNull)
		return types.TNull
	case KindTrue:
		a.emit(vm.OpTrue)
		return types.TBool
	case KindFalse:
		a.emit(vm.OpFalse)
		return types.TBool
	case KindThis:
		if a.ctx.isTop() {
			a.errorf(MsgThisOutsideFunction, n.Token, "'this' used outside a function")
		}
		a.emit(vm.OpGetLocal0)
		return types.TUnknown
	case KindNumber:
		a.chunk().EmitConstant(vm.Number(n.Num))
		return types.TNumber
	case KindString:
		a.chunk().EmitConstant(vm.Str(n.Str))
		return types.TString
	case KindIdentifier:
		return a.compileLoad(n)
	case KindNegate, KindNot:
		return a.compileUnary(n)
	case KindPreIncrement, KindPreDecrement, KindPostIncrement, KindPostDecrement:
		return a.compileIncrement(n, mode)
	case KindAssign, KindAddAssign, KindSubtractAssign, KindMultiplyAssign, KindDivideAssign:
		return a.compileAssign(n, mode)
	case KindMember:
		return a.compileMember(n)
	case KindIndex:
		return a.compileIndex(n)
	case KindCall:
		return a.compileCall(n)
	case KindArray:
		return a.compileArray(n)
	case KindTable:
		return a.compileTable(n)
	case KindFunction:
		t, _ := a.compileFunction(n, nil)
		return t
	}
	if _, ok := binaryOps[n.Kind]; ok {
		return a.compileBinary(n)
	}
	a.errorf(MsgInvalidExpression, n.Token, "%s cannot be used as an expression", n.Kind)
	a.emit(vm.OpNull)
	return types.TUnknown
}

// ---------------------------------------------------------------------------
// Emission helpers
// ---------------------------------------------------------------------------

func (a *Assembler) chunk() *vm.Chunk {
	return a.ctx.chunk()
}

func (a *Assembler) emit(op vm.Opcode) {
	a.chunk().Emit(op)
}

// nameConstant pools a name string. Every use gets its own entry.
func (a *Assembler) nameConstant(name string) int {
	return a.chunk().AddConstant(vm.Str(name))
}

func (a *Assembler) emitGetLocal(slot int) {
	if slot <= 3 {
		a.emit(vm.OpGetLocal0 + vm.Opcode(slot))
		return
	}
	a.chunk().EmitWithOperand(vm.OpGetLocal, slot)
}

func (a *Assembler) emitSetLocal(slot int) {
	if slot <= 3 {
		a.emit(vm.OpSetLocal0 + vm.Opcode(slot))
		return
	}
	a.chunk().EmitWithOperand(vm.OpSetLocal, slot)
}

func (a *Assembler) emitCall(argc int) {
	if argc <= 3 {
		a.emit(vm.OpCall0 + vm.Opcode(argc))
		return
	}
	a.chunk().EmitByte(vm.OpCall, byte(argc))
}

// emitPops discards n values, splitting counts that do not fit a byte.
func (a *Assembler) emitPops(n int) {
	for n > 0 {
		k := min(n, 0xFF)
		if k == 1 {
			a.emit(vm.OpPop)
		} else {
			a.chunk().EmitByte(vm.OpPopN, byte(k))
		}
		n -= k
	}
}

// placeJump inserts a forward jump and returns the number of bytes
// inserted. A jump the chunk rejects is reported against tok.
func (a *Assembler) placeJump(tok Token, at int, op vm.Opcode, target int) int {
	n, err := a.chunk().PlaceJump(at, op, target)
	if err != nil {
		a.errorf(MsgInvalidJump, tok, "%v", err)
		return 0
	}
	return n
}

// closeLoop points the loop instruction at loopAt back to target.
func (a *Assembler) closeLoop(tok Token, loopAt, target int) {
	c := a.chunk()
	if loopAt < 0 || loopAt >= len(c.Code) {
		a.errorf(MsgInvalidJump, tok, "loop at %d is outside the chunk", loopAt)
		return
	}
	op := vm.Opcode(c.Code[loopAt])
	if err := c.PatchJump(loopAt, vm.OpLoop, loopAt+op.Size()-target); err != nil {
		a.errorf(MsgInvalidJump, tok, "%v", err)
	}
}

// ---------------------------------------------------------------------------
// Variables
// ---------------------------------------------------------------------------

type storage uint8

const (
	storageLocal storage = iota
	storageUpvalue
	storageGlobal
)

// resolve finds name as a local, then an upvalue, then a global.
func (a *Assembler) resolve(name string) (*Variable, storage, bool) {
	if v := a.ctx.findLocal(name); v != nil {
		return v, storageLocal, true
	}
	if v := a.ctx.findUpvalue(name); v != nil {
		return v, storageUpvalue, true
	}
	if v, ok := a.globals[name]; ok {
		return v, storageGlobal, true
	}
	return nil, 0, false
}

func (a *Assembler) compileLoad(n *Node) types.Type {
	v, where, ok := a.resolve(n.Str)
	if !ok {
		a.errorf(MsgUnknownIdentifier, n.Token, "unknown identifier %q", n.Str)
		a.emit(vm.OpNull)
		return types.TUnknown
	}
	switch where {
	case storageLocal:
		a.emitGetLocal(v.Slot)
	case storageUpvalue:
		a.chunk().EmitWithOperand(vm.OpGetUpvalue, v.Slot)
	case storageGlobal:
		a.chunk().EmitWithOperand(vm.OpGetGlobal, a.nameConstant(n.Str))
	}
	return v.Type
}

// compileStore emits the store of the value on top of the stack into the
// place n names. Only identifiers are stored this way; members and index
// expressions need their object below the value and are handled by
// compileAssign.
func (a *Assembler) compileStore(n *Node, mode Mode) types.Type {
	if n.Kind != KindIdentifier {
		a.errorf(MsgInvalidAssignmentTarget, n.Token, "cannot assign to %s", n.Kind)
		return types.TUnknown
	}
	v, where, ok := a.resolve(n.Str)
	if !ok {
		a.errorf(MsgUnknownIdentifier, n.Token, "unknown identifier %q", n.Str)
		return types.TUnknown
	}
	if v.Const && !mode.has(ModeInitializer) {
		a.errorf(MsgConstAssignment, n.Token, "cannot assign to constant %q", n.Str)
	}
	switch where {
	case storageLocal:
		a.emitSetLocal(v.Slot)
	case storageUpvalue:
		a.chunk().EmitWithOperand(vm.OpSetUpvalue, v.Slot)
	case storageGlobal:
		a.chunk().EmitWithOperand(vm.OpSetGlobal, a.nameConstant(n.Str))
	}
	return v.Type
}

// checkAssignable reports a type-mismatch when a value of type got may
// not be stored where want is expected.
func (a *Assembler) checkAssignable(tok Token, want, got types.Type, what string) {
	if !a.arena.IsAssignable(want, got) {
		a.errorf(MsgTypeMismatch, tok, "cannot use %s as %s in %s",
			a.arena.String(got), a.arena.String(want), what)
	}
}

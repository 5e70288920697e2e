package compiler

import (
	"fmt"

	"github.com/chazu/kestrel/types"
	"github.com/chazu/kestrel/vm"
)

// ---------------------------------------------------------------------------
// Operators
// ---------------------------------------------------------------------------

var binaryOps = map[Kind]vm.Opcode{
	KindAdd:          vm.OpAdd,
	KindSubtract:     vm.OpSub,
	KindMultiply:     vm.OpMul,
	KindDivide:       vm.OpDiv,
	KindModulo:       vm.OpMod,
	KindPower:        vm.OpPow,
	KindEqual:        vm.OpEqual,
	KindNotEqual:     vm.OpNotEqual,
	KindLess:         vm.OpLess,
	KindLessEqual:    vm.OpLessEqual,
	KindGreater:      vm.OpGreater,
	KindGreaterEqual: vm.OpGreaterEqual,
	KindAnd:          vm.OpAnd,
	KindOr:           vm.OpOr,
}

var compoundOps = map[Kind]vm.Opcode{
	KindAddAssign:      vm.OpAdd,
	KindSubtractAssign: vm.OpSub,
	KindMultiplyAssign: vm.OpMul,
	KindDivideAssign:   vm.OpDiv,
}

func (a *Assembler) compileBinary(n *Node) types.Type {
	op := binaryOps[n.Kind]
	lt := a.compile(n.Left, ModeExpression)
	rt := a.compile(n.Right, ModeExpression)
	a.emit(op)
	return a.operatorType(n.Token, op, lt, rt)
}

func (a *Assembler) compileUnary(n *Node) types.Type {
	t := a.compile(n.Left, ModeExpression)
	if n.Kind == KindNot {
		a.emit(vm.OpNot)
		return types.TBool
	}
	if !t.IsUnknown() && !t.Is(types.Number) {
		a.errorf(MsgTypeMismatch, n.Token, "cannot negate %s", a.arena.String(t))
	}
	a.emit(vm.OpNegate)
	return types.TNumber
}

// ---------------------------------------------------------------------------
// Assignment
// ---------------------------------------------------------------------------

// compileAssign compiles plain and compound assignment. The assigned value
// is left on the stack.
func (a *Assembler) compileAssign(n *Node, mode Mode) types.Type {
	op, compound := compoundOps[n.Kind]
	rhs := func() types.Type { return a.compile(n.Right, ModeExpression) }
	if compound {
		return a.compileUpdate(n.Left, op, n.Token, rhs)
	}

	target := n.Left
	switch target.Kind {
	case KindMember:
		objT := a.compile(target.Left, ModeExpression)
		t := rhs()
		want := a.storeType(objT, target.Left, target.Str, target.Token)
		a.checkAssignable(target.Token, want, t, "assignment to ."+target.Str)
		a.chunk().EmitWithOperand(vm.OpSetProperty, a.nameConstant(target.Str))
		return t
	case KindIndex:
		objT := a.compile(target.Left, ModeExpression)
		a.compile(target.Right, ModeExpression)
		t := rhs()
		a.checkIndexable(target.Token, objT)
		if key := target.Right; key.Kind == KindString && isTable(objT) {
			want := a.storeType(objT, target.Left, key.Str, target.Token)
			a.checkAssignable(target.Token, want, t, fmt.Sprintf("assignment to [%q]", key.Str))
		}
		a.emit(vm.OpSetIndex)
		return t
	}

	t := rhs()
	want := a.compile(target, ModeExpression|ModeAssignTarget|mode&ModeInitializer)
	a.checkAssignable(n.Token, want, t, "assignment")
	return t
}

// compileUpdate compiles target = target <op> rhs, evaluating the target's
// object and index only once. The new value is left on the stack.
func (a *Assembler) compileUpdate(target *Node, op vm.Opcode, tok Token, rhs func() types.Type) types.Type {
	switch target.Kind {
	case KindIdentifier:
		cur := a.compileLoad(target)
		t := a.operatorType(tok, op, cur, rhs())
		a.emit(op)
		want := a.compile(target, ModeExpression|ModeAssignTarget)
		a.checkAssignable(tok, want, t, "assignment")
		return t

	case KindMember:
		objT := a.compile(target.Left, ModeExpression)
		a.emit(vm.OpDup)
		cur := a.memberType(objT, target.Str, target.Token)
		a.chunk().EmitWithOperand(vm.OpGetProperty, a.nameConstant(target.Str))
		t := a.operatorType(tok, op, cur, rhs())
		a.emit(op)
		a.checkAssignable(tok, cur, t, "assignment to ."+target.Str)
		a.chunk().EmitWithOperand(vm.OpSetProperty, a.nameConstant(target.Str))
		return t

	case KindIndex:
		objT := a.compile(target.Left, ModeExpression)
		a.compile(target.Right, ModeExpression)
		a.checkIndexable(target.Token, objT)
		a.emit(vm.OpDup2)
		a.emit(vm.OpGetIndex)
		cur := types.TUnknown
		key := target.Right
		if key.Kind == KindString && isTable(objT) {
			cur = a.memberType(objT, key.Str, target.Token)
		}
		t := a.operatorType(tok, op, cur, rhs())
		a.emit(op)
		a.checkAssignable(tok, cur, t, fmt.Sprintf("assignment to [%q]", key.Str))
		a.emit(vm.OpSetIndex)
		return t
	}

	a.errorf(MsgInvalidAssignmentTarget, target.Token, "cannot assign to %s", target.Kind)
	rhs()
	return types.TUnknown
}

// compileIncrement compiles ++ and --. The postfix forms compile as the
// prefix form followed by the inverse step, which recovers the old value.
func (a *Assembler) compileIncrement(n *Node, mode Mode) types.Type {
	op, inverse := vm.OpAdd, vm.OpSub
	if n.Kind == KindPreDecrement || n.Kind == KindPostDecrement {
		op, inverse = vm.OpSub, vm.OpAdd
	}
	one := func() types.Type {
		a.chunk().EmitConstant(vm.Number(1))
		return types.TNumber
	}
	t := a.compileUpdate(n.Left, op, n.Token, one)
	post := n.Kind == KindPostIncrement || n.Kind == KindPostDecrement
	if post && mode.has(ModeExpression) {
		one()
		a.emit(inverse)
	}
	return t
}

// ---------------------------------------------------------------------------
// Members, indexing and calls
// ---------------------------------------------------------------------------

func (a *Assembler) compileMember(n *Node) types.Type {
	objT := a.compile(n.Left, ModeExpression)
	t := a.memberType(objT, n.Str, n.Token)
	a.chunk().EmitWithOperand(vm.OpGetProperty, a.nameConstant(n.Str))
	return t
}

// memberType is the static type of a load of obj.name. Properties missing
// from a known table shape, and array methods no import declared, are
// reported.
func (a *Assembler) memberType(objT types.Type, name string, tok Token) types.Type {
	if objT.IsUnknown() {
		return types.TUnknown
	}
	if objT.Is(types.Table) {
		t, shaped, ok := a.arena.Property(objT, name)
		if ok {
			return t
		}
		if shaped && !objT.Is(types.Array) {
			a.errorf(MsgUnknownProperty, tok, "%s has no property %q", a.arena.String(objT), name)
		}
		if !objT.Is(types.Array) {
			return types.TUnknown
		}
	}
	if objT.Is(types.Array) {
		if t, ok := a.arrayMethods[name]; ok {
			return t
		}
		a.errorf(MsgUnknownProperty, tok, "arrays have no method %q", name)
		return types.TUnknown
	}
	a.errorf(MsgUnknownProperty, tok, "%s has no property %q", a.arena.String(objT), name)
	return types.TUnknown
}

// storeType is the static type a store to obj.name must satisfy. Tables
// are open: storing a property missing from a known shape is allowed and
// widens the variable obj names to an unshaped table.
func (a *Assembler) storeType(objT types.Type, obj *Node, name string, tok Token) types.Type {
	if !isTable(objT) {
		return a.memberType(objT, name, tok)
	}
	t, shaped, ok := a.arena.Property(objT, name)
	if ok {
		return t
	}
	if shaped && obj.Kind == KindIdentifier {
		if v, _, found := a.resolve(obj.Str); found {
			v.root().Type.Shape = 0
		}
	}
	return types.TUnknown
}

// isTable reports whether t is a table and nothing a property could
// mean something else for.
func isTable(t types.Type) bool {
	return t.Is(types.Table) && !t.Is(types.Array|types.String)
}

func (a *Assembler) checkIndexable(tok Token, objT types.Type) {
	if objT.IsUnknown() || objT.Is(types.Array|types.Table|types.String) {
		return
	}
	a.errorf(MsgTypeMismatch, tok, "cannot index %s", a.arena.String(objT))
}

func (a *Assembler) compileIndex(n *Node) types.Type {
	objT := a.compile(n.Left, ModeExpression)
	a.compile(n.Right, ModeExpression)
	a.checkIndexable(n.Token, objT)
	a.emit(vm.OpGetIndex)

	// Array elements are loaded as any: stores and array methods change
	// them after the literal that typed the variable.
	switch {
	case objT.Flags == types.String:
		return types.TString
	case n.Right.Kind == KindString && isTable(objT):
		return a.memberType(objT, n.Right.Str, n.Token)
	}
	return types.TUnknown
}

func (a *Assembler) compileCall(n *Node) types.Type {
	calleeT := a.compile(n.Left, ModeExpression)
	if !calleeT.IsCallable() {
		a.errorf(MsgNotCallable, n.Token, "cannot call a value of type %s", a.arena.String(calleeT))
	}
	if len(n.List) > maxOperands {
		a.errorf(MsgTooManyArguments, n.Token, "too many arguments (%d, limit %d)", len(n.List), maxOperands)
	}

	params, known := a.arena.Args(calleeT)
	if known && len(params) != len(n.List) {
		a.errorf(MsgArityMismatch, n.Token, "%s expects %d arguments, got %d",
			a.arena.String(calleeT), len(params), len(n.List))
		known = false
	}
	for i, arg := range n.List {
		t := a.compile(arg, ModeExpression)
		if known {
			a.checkAssignable(arg.Token, params[i].Type, t, "argument "+params[i].Name)
		}
	}
	a.emitCall(min(len(n.List), maxOperands))
	return a.arena.Return(calleeT)
}

// ---------------------------------------------------------------------------
// Literals
// ---------------------------------------------------------------------------

func (a *Assembler) compileArray(n *Node) types.Type {
	elems := make([]types.Type, len(n.List))
	for i, e := range n.List {
		elems[i] = a.compile(e, ModeExpression)
	}
	a.chunk().EmitWithOperand(vm.OpNewArray, len(n.List))
	return a.arena.ArrayOf(elems...)
}

// compileTable emits NewTable, then for each field: Dup, value,
// SetProperty, Pop. Later fields with the same name win.
func (a *Assembler) compileTable(n *Node) types.Type {
	a.emit(vm.OpNewTable)
	var props []types.Field
	index := make(map[string]int)
	for _, field := range n.List {
		a.emit(vm.OpDup)
		t := a.compile(field.Left, ModeExpression)
		a.chunk().EmitWithOperand(vm.OpSetProperty, a.nameConstant(field.Str))
		a.emit(vm.OpPop)
		if i, ok := index[field.Str]; ok {
			props[i].Type = t
			continue
		}
		index[field.Str] = len(props)
		props = append(props, types.Field{Name: field.Str, Type: t})
	}
	return a.arena.TableOf(props...)
}

// ---------------------------------------------------------------------------
// Functions
// ---------------------------------------------------------------------------

// compileFunction compiles a function body into its own vm.Function and
// emits the closure instruction in the enclosing chunk. When self is not
// nil it is the variable the function is bound to; its type is set to the
// provisional signature while the body compiles so recursion checks.
func (a *Assembler) compileFunction(n *Node, self *Variable) (types.Type, *vm.Function) {
	name := n.Str
	if name == "" && self != nil {
		name = self.Name
	}
	if name == "" {
		name = "<anonymous>"
	}

	enclosing := a.ctx
	ctx := newFuncContext(enclosing, name)
	ctx.pushScope()

	if len(n.List) > maxOperands {
		a.errorf(MsgTooManyArguments, n.Token, "too many parameters (%d, limit %d)", len(n.List), maxOperands)
	}
	args := make([]types.Field, len(n.List))
	for i, p := range n.List {
		t := types.TUnknown
		param := vm.Param{Name: p.Str}
		if p.Type != nil {
			t = a.resolveType(p.Type)
			param.Type = a.arena.String(t)
		}
		args[i] = types.Field{Name: p.Str, Type: t}
		ctx.addLocal(p.Str, false, t, p.Token)
		ctx.fn.Params = append(ctx.fn.Params, param)
	}
	if n.Type != nil {
		ctx.declaredReturn = a.resolveType(n.Type)
	}
	if self != nil {
		provisional := ctx.declaredReturn
		if provisional.IsAuto() {
			provisional = types.TUnknown
		}
		self.Type = a.arena.Func(provisional, args...)
	}

	a.ctx = ctx
	for _, stmt := range n.Left.List {
		a.compile(stmt, 0)
	}
	a.emit(vm.OpNull)
	a.emit(vm.OpReturn)
	a.ctx = enclosing

	ret := ctx.declaredReturn
	if ret.IsAuto() {
		ret = a.inferReturn(n.Token, ctx.returns)
	}
	fnType := a.arena.Func(ret, args...)
	if self != nil {
		self.Type = fnType
	}

	fn := ctx.fn
	fn.UpvalueCount = len(ctx.upvalues)
	c := a.chunk()
	c.EmitWithOperand(vm.OpClosure, c.AddConstant(vm.FromObject(fn)))
	for _, up := range ctx.upvalues {
		c.EmitUpvalue(up.isLocal, up.index)
	}
	return fnType, fn
}

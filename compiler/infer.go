package compiler

import (
	"github.com/chazu/kestrel/types"
	"github.com/chazu/kestrel/vm"
)

// ---------------------------------------------------------------------------
// Type annotations
// ---------------------------------------------------------------------------

// annotationFlags are the flags a type name may spell in source.
const annotationFlags = types.Unknown | types.Null | types.Number | types.Bool |
	types.String | types.Table | types.Array | types.Function | types.Auto

// resolveType turns an annotation into a type of this unit's arena.
func (a *Assembler) resolveType(te *TypeExpr) types.Type {
	switch te.Kind {
	case TypeNamed:
		flag, ok := types.FlagByName(te.Name)
		if !ok || flag&annotationFlags == 0 {
			a.errorf(MsgUnknownType, te.Token, "unknown type %q", te.Name)
			return types.TUnknown
		}
		return types.Of(flag)

	case TypeFunction:
		args := make([]types.Field, len(te.Params))
		for i, p := range te.Params {
			args[i] = types.Field{Type: a.resolveType(p)}
		}
		ret := types.TUnknown
		if te.Return != nil {
			ret = a.resolveType(te.Return)
		}
		return a.arena.Func(ret, args...)

	case TypeTable:
		props := make([]types.Field, len(te.Fields))
		for i, f := range te.Fields {
			props[i] = types.Field{Name: f.Name, Type: a.resolveType(f.Type)}
		}
		return a.arena.TableOf(props...)

	case TypeArray:
		elems := make([]types.Type, len(te.Params))
		for i, p := range te.Params {
			elems[i] = a.resolveType(p)
		}
		return a.arena.ArrayOf(elems...)

	case TypeUnion:
		t := a.resolveType(te.Params[0])
		for _, p := range te.Params[1:] {
			next := a.resolveType(p)
			joined, ok := a.arena.Join(t, next)
			if !ok {
				a.errorf(MsgIncompatibleTypes, p.Token, "cannot join %s with %s",
					a.arena.String(t), a.arena.String(next))
				continue
			}
			t = joined
		}
		return t
	}
	return types.TUnknown
}

// ---------------------------------------------------------------------------
// Operators
// ---------------------------------------------------------------------------

// operatorType is the result type of a binary operator, reporting operand
// types that can never succeed at run time.
func (a *Assembler) operatorType(tok Token, op vm.Opcode, l, r types.Type) types.Type {
	switch op {
	case vm.OpEqual, vm.OpNotEqual, vm.OpAnd, vm.OpOr:
		return types.TBool

	case vm.OpAdd:
		const addable = types.Number | types.String
		if (!l.IsUnknown() && !l.Is(addable)) || (!r.IsUnknown() && !r.Is(addable)) {
			a.mismatch(tok, l, r)
			return types.TUnknown
		}
		switch {
		case l.Flags == types.String || r.Flags == types.String:
			return types.TString
		case l.IsUnknown() || r.IsUnknown():
			return types.TUnknown
		case l.Is(types.String) || r.Is(types.String):
			return types.Of(types.Number | types.String)
		}
		return types.TNumber

	case vm.OpLess, vm.OpLessEqual, vm.OpGreater, vm.OpGreaterEqual:
		if l.IsUnknown() || r.IsUnknown() {
			return types.TBool
		}
		if !(l.Is(types.Number) && r.Is(types.Number)) && !(l.Is(types.String) && r.Is(types.String)) {
			a.mismatch(tok, l, r)
		}
		return types.TBool
	}

	// Remaining arithmetic is numeric only.
	if (!l.IsUnknown() && !l.Is(types.Number)) || (!r.IsUnknown() && !r.Is(types.Number)) {
		a.mismatch(tok, l, r)
	}
	return types.TNumber
}

func (a *Assembler) mismatch(tok Token, l, r types.Type) {
	a.errorf(MsgTypeMismatch, tok, "operator %s cannot be applied to %s and %s",
		tok.Lexeme, a.arena.String(l), a.arena.String(r))
}

// ---------------------------------------------------------------------------
// Return inference
// ---------------------------------------------------------------------------

// inferReturn unions the types of a function's return statements. With
// no returns the function returns null; any unknown return makes the
// result unknown.
func (a *Assembler) inferReturn(tok Token, returns []types.Type) types.Type {
	if len(returns) == 0 {
		return types.TNull
	}
	for _, t := range returns {
		if t.IsUnknown() {
			return types.TUnknown
		}
	}
	result := returns[0]
	for _, t := range returns[1:] {
		joined, ok := a.arena.Join(result, t)
		if !ok {
			a.errorf(MsgIncompatibleTypes, tok, "return types %s and %s cannot be joined",
				a.arena.String(result), a.arena.String(t))
			return types.TUnknown
		}
		result = joined
	}
	return result
}

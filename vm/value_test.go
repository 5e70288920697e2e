package vm

import "testing"

func TestTruthiness(t *testing.T) {
	tests := []struct {
		v    Value
		want bool
	}{
		{Null, false},
		{False, false},
		{True, true},
		{Number(0), true},
		{Str(""), true},
		{FromObject(NewTable()), true},
	}
	for _, tt := range tests {
		if got := tt.v.Truthy(); got != tt.want {
			t.Errorf("Truthy(%s) = %v, want %v", tt.v.GoString(), got, tt.want)
		}
	}
}

func TestValueString(t *testing.T) {
	tbl := NewTable()
	tbl.Fields["b"] = Str("x")
	tbl.Fields["a"] = Number(1)
	tests := []struct {
		v    Value
		want string
	}{
		{Null, "null"},
		{True, "true"},
		{Number(3), "3"},
		{Number(0.25), "0.25"},
		{Str("hi"), "hi"},
		{FromObject(tbl), `{ a = 1, b = "x" }`},
		{FromObject(&Array{Elements: []Value{Number(1), Str("a")}}), `[1, "a"]`},
		{FromObject(NewFunction("f")), "<fn f>"},
	}
	for _, tt := range tests {
		if got := tt.v.String(); got != tt.want {
			t.Errorf("String = %q, want %q", got, tt.want)
		}
	}
}

func TestEquals(t *testing.T) {
	tbl := FromObject(NewTable())
	if !Str("a").Equals(Str("a")) {
		t.Error("strings compare by content")
	}
	if tbl.Equals(FromObject(NewTable())) {
		t.Error("tables compare by identity")
	}
	if !tbl.Equals(tbl) {
		t.Error("a table equals itself")
	}
	if Number(0).Equals(False) {
		t.Error("values of different kinds are never equal")
	}
}

func TestOpcodeWidth(t *testing.T) {
	if OpGetGlobalLong.Width(3) != OpGetGlobal || OpGetGlobal.Width(256) != OpGetGlobalLong {
		t.Error("Width should pick the form that fits")
	}
	if OpAdd.Width(1000) != OpAdd {
		t.Error("opcodes without a pair are returned unchanged")
	}
	if !OpLoopLong.IsLong() || OpLoop.IsLong() || OpAdd.IsLong() {
		t.Error("IsLong misclassified an opcode")
	}
	for op, info := range opcodeTable {
		if info.Short != info.Long && op != info.Short && op != info.Long {
			t.Errorf("%s is not part of its own pair", op)
		}
	}
}

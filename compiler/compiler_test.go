package compiler

import (
	"bytes"
	"fmt"
	"io"
	"strings"
	"testing"

	"github.com/chazu/kestrel/types"
	"github.com/chazu/kestrel/vm"
)

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

// sampleModule is a small native module used to exercise imports.
type sampleModule struct{}

func (sampleModule) Name() string { return "sample" }

func (sampleModule) Declare(scope vm.CompileScope) {
	a := scope.Types()
	scope.DeclareGlobal("double", a.NativeFunc(types.TNumber, types.Field{Name: "n", Type: types.TNumber}))
	scope.DeclareArrayMethod("size", a.NativeFunc(types.TNumber))
}

func (sampleModule) Install(m *vm.VM) error {
	m.DefineNative("double", 1, func(_ *vm.VM, args []vm.Value) (vm.Value, error) {
		return vm.Number(args[1].AsNumber() * 2), nil
	})
	m.DefineArrayMethod("size", 0, func(_ *vm.VM, args []vm.Value) (vm.Value, error) {
		arr := args[0].AsObject().(*vm.Array)
		return vm.Number(float64(len(arr.Elements))), nil
	})
	return nil
}

func testModules() *vm.Registry {
	return vm.NewRegistry(sampleModule{})
}

func compileOK(t *testing.T, src string) *vm.Function {
	t.Helper()
	fn, err := Compile(src, Options{Name: "test", Modules: testModules()})
	if err != nil {
		t.Fatalf("Compile(%q): %v", src, err)
	}
	return fn
}

func run(t *testing.T, src string) (vm.Value, error) {
	t.Helper()
	fn := compileOK(t, src)
	machine := vm.New(vm.Options{Modules: testModules(), Stdout: io.Discard, MaxFrames: 64})
	return machine.Execute(fn)
}

func runValue(t *testing.T, src string) vm.Value {
	t.Helper()
	v, err := run(t, src)
	if err != nil {
		t.Fatalf("Execute(%q): %v", src, err)
	}
	return v
}

// opcodes counts the opcodes used by fn and every nested function.
func opcodes(t *testing.T, fn *vm.Function) map[vm.Opcode]int {
	t.Helper()
	counts := make(map[vm.Opcode]int)
	for _, f := range vm.Functions(fn) {
		insts, err := vm.Decode(f)
		if err != nil {
			t.Fatalf("Decode(%s): %v", f, err)
		}
		for _, inst := range insts {
			counts[inst.Op]++
		}
	}
	return counts
}

// ---------------------------------------------------------------------------
// Semantic diagnostics
// ---------------------------------------------------------------------------

func TestCompileDiagnostics(t *testing.T) {
	tests := []struct {
		name  string
		input string
		id    string
	}{
		{"global const", "const c = 1; c = 2;", MsgConstAssignment},
		{"local const compound", "{ const c = 1; c += 1; }", MsgConstAssignment},
		{"const function", "function f() {} f = 1;", MsgConstAssignment},
		{"literal target", "1 = 2;", MsgInvalidAssignmentTarget},
		{"call target", "var f; f() += 1;", MsgInvalidAssignmentTarget},
		{"unknown store", "x = 1;", MsgUnknownIdentifier},
		{"unknown load", "return y;", MsgUnknownIdentifier},
		{"block scope ends", "if (true) { var x = 1; } x;", MsgUnknownIdentifier},
		{"annotated declaration", `var n: number = "s";`, MsgTypeMismatch},
		{"numeric operator", `var s = "a" - 1;`, MsgTypeMismatch},
		{"comparison", `return 1 < "a";`, MsgTypeMismatch},
		{"negate", `-"s";`, MsgTypeMismatch},
		{"argument type", `function f(a: number) { return a; } f("s");`, MsgTypeMismatch},
		{"return type", `function f(): number { return "s"; }`, MsgTypeMismatch},
		{"index a number", "var n = 1; n[0];", MsgTypeMismatch},
		{"arity", "function f(a, b) { return a; } f(1);", MsgArityMismatch},
		{"native arity", "import sample; double(1, 2);", MsgArityMismatch},
		{"global redeclared", "var a = 1; var a = 2;", MsgGlobalRedeclared},
		{"function redeclared", "var f = 1; function f() {}", MsgGlobalRedeclared},
		{"nested import", "{ import sample; }", MsgImportNotTopLevel},
		{"unknown module", "import nope;", MsgUnknownModule},
		{"this at top level", "this;", MsgThisOutsideFunction},
		{"declaration as expression", "var x = (var y = 1);", MsgInvalidDeclaration},
		{"uninitialized const", "const c;", MsgUninitializedConst},
		{"shaped table", "var t = { a = 1 }; t.b;", MsgUnknownProperty},
		{"undeclared array method", "var xs = [1]; xs.push(2);", MsgUnknownProperty},
		{"primitive property", "var n = 1; n.x;", MsgUnknownProperty},
		{"not callable", "var n = 1; n();", MsgNotCallable},
		{"unknown type", "var x: widget;", MsgUnknownType},
		{"internal flag", "var x: native;", MsgUnknownType},
		{"union of shapes", "var x: { a: number } | { b: number };", MsgIncompatibleTypes},
		{"return shapes", "function f(b) { if (b) return { a = 1 }; return { b = 2 }; }", MsgIncompatibleTypes},
		{"statement as expression", "var x = (if (true) 1;);", MsgInvalidExpression},
		{"known property store", `var t = { a = 1 }; t.a = "s";`, MsgTypeMismatch},
		{"known property index store", `var t = { a = 1 }; t["a"] = "s";`, MsgTypeMismatch},
		{"known property index update", `var t = { a = "s" }; t["a"] -= 1;`, MsgTypeMismatch},
		{"shaped table index", `var t = { a = 1 }; t["b"];`, MsgUnknownProperty},
		{"unbraced body scope ends", "if (true) var x = 1; x;", MsgUnknownIdentifier},
		{"module global conflict", "var double = 1; import sample;", MsgGlobalRedeclared},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			unit := Analyze(tc.input, Options{Modules: testModules()})
			if !unit.Diagnostics.Has(tc.id) {
				t.Fatalf("diagnostics %v do not contain %s", unit.Diagnostics, tc.id)
			}
			if unit.Function != nil {
				t.Error("a unit with diagnostics must not produce a function")
			}
		})
	}
}

func TestCompileAcceptsGradualTypes(t *testing.T) {
	inputs := []string{
		"var x; x = 1; x = \"s\";",
		"var f: any = 1; f();",
		"var t: table = {}; t.anything = 1;",
		"var y: number | string = 1; y = \"s\";",
		"var f: function = function(a) { return a; };",
		"var g: function(number): number = function(n: number): number { return n; };",
		"function id(v) { return v; } id(1); id(\"s\");",
		"var s = \"n=\" + 1;",
		"import sample; import sample; double(2);",
		"{ var a = 1; { var a = \"shadow\"; a; } a; }",
		"var t = {}; t.x = 1; t.x;",
		"var t = { a = 1 }; t[\"b\"] = 2; t.b; t[\"b\"];",
		"var t = { a = 1 }; function f() { t.b = 2; } t.b;",
		"var xs = [null]; xs[0] = function() { return 1; }; xs[0]();",
		"var xs = [0]; xs[0] = \"s\"; var s: string = xs[0];",
	}
	for _, src := range inputs {
		unit := Analyze(src, Options{Modules: testModules()})
		if len(unit.Diagnostics) > 0 {
			t.Errorf("Analyze(%q): %v", src, unit.Diagnostics)
		}
	}
}

func TestCompileCollectsAllSemanticDiagnostics(t *testing.T) {
	unit := Analyze("a;\nb;\nc;", Options{})
	if len(unit.Diagnostics) != 3 {
		t.Fatalf("got %d diagnostics, want 3: %v", len(unit.Diagnostics), unit.Diagnostics)
	}
	for i, d := range unit.Diagnostics {
		if d.Stage != StageSemantic || d.Line != i+1 {
			t.Errorf("diagnostic %d = %s line %d", i, d.Stage, d.Line)
		}
	}
}

func TestCompileSkipsSemanticsAfterSyntaxErrors(t *testing.T) {
	unit := Analyze("x = ;\ny;", Options{})
	if len(unit.Diagnostics) != 1 || unit.Diagnostics[0].Stage != StageParser {
		t.Fatalf("diagnostics = %v, want one parser diagnostic", unit.Diagnostics)
	}
	if unit.Function != nil {
		t.Error("no function expected")
	}
}

func TestCompileDiagnosticLimit(t *testing.T) {
	src := "a; b; c; d; e;"
	tests := []struct {
		limit int
		want  int
	}{
		{2, 2},
		{0, 5}, // default cap is well above five
		{-1, 5},
	}
	for _, tc := range tests {
		unit := Analyze(src, Options{MaxDiagnostics: tc.limit})
		if len(unit.Diagnostics) != tc.want {
			t.Errorf("limit %d: got %d diagnostics, want %d", tc.limit, len(unit.Diagnostics), tc.want)
		}
	}

	var many strings.Builder
	for i := 0; i < DefaultMaxDiagnostics+20; i++ {
		fmt.Fprintf(&many, "u%d;\n", i)
	}
	unit := Analyze(many.String(), Options{})
	if len(unit.Diagnostics) != DefaultMaxDiagnostics {
		t.Errorf("default cap: got %d diagnostics", len(unit.Diagnostics))
	}
}

func TestCompileErrorIsDiagnostics(t *testing.T) {
	_, err := Compile("var = ;", Options{})
	ds, ok := AsDiagnostics(fmt.Errorf("compile main.ks: %w", err))
	if !ok || len(ds) == 0 {
		t.Fatalf("AsDiagnostics(%v) failed", err)
	}
	if !strings.Contains(err.Error(), MsgExpectedToken) {
		t.Errorf("error text %q lacks the message id", err.Error())
	}
}

func TestDiagnosticFormat(t *testing.T) {
	src := "var x = 1;\nreturn y + x;"
	unit := Analyze(src, Options{})
	if len(unit.Diagnostics) != 1 {
		t.Fatalf("diagnostics = %v", unit.Diagnostics)
	}
	out := unit.Diagnostics[0].Format("main.ks", src)
	for _, want := range []string{
		"error[unknown-identifier]",
		"--> main.ks:2:8",
		"2 | return y + x;",
		"  |        ^",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("Format output lacks %q:\n%s", want, out)
		}
	}
}

func TestCompileTooManyArguments(t *testing.T) {
	args := make([]string, 256)
	for i := range args {
		args[i] = "1"
	}
	unit := Analyze("var f; f("+strings.Join(args, ", ")+");", Options{})
	if !unit.Diagnostics.Has(MsgTooManyArguments) {
		t.Errorf("diagnostics = %v", unit.Diagnostics)
	}

	params := make([]string, 256)
	for i := range params {
		params[i] = fmt.Sprintf("p%d", i)
	}
	unit = Analyze("function f("+strings.Join(params, ", ")+") {}", Options{})
	if !unit.Diagnostics.Has(MsgTooManyArguments) {
		t.Errorf("diagnostics = %v", unit.Diagnostics)
	}
}

func TestCompileGlobals(t *testing.T) {
	unit := Analyze(`var n = 1;
const s: string = "x";
function f(a: number): number { return a; }
var t = { label = "p" };`, Options{})
	if len(unit.Diagnostics) > 0 {
		t.Fatal(unit.Diagnostics)
	}
	want := []Symbol{
		{Name: "f", Type: "function(number): number", Const: true, Line: 3, Column: 10},
		{Name: "n", Type: "number", Line: 1, Column: 5},
		{Name: "s", Type: "string", Const: true, Line: 2, Column: 7},
		{Name: "t", Type: "{ label: string }", Line: 4, Column: 5},
	}
	if len(unit.Globals) != len(want) {
		t.Fatalf("globals = %+v", unit.Globals)
	}
	for i, g := range unit.Globals {
		if g != want[i] {
			t.Errorf("global %d = %+v, want %+v", i, g, want[i])
		}
	}
	if unit.Nodes == 0 {
		t.Error("node count not recorded")
	}
}

// ---------------------------------------------------------------------------
// Emission
// ---------------------------------------------------------------------------

func TestCompileShortForms(t *testing.T) {
	fn := compileOK(t, `{
  var a = 1; var b = 2; var c = 3; var d = 4;
  a; d;
  var f = function(x, y, z, w) { return x; };
  var g = function(x) { return x; };
  g(1); f(1, 2, 3, 4);
}`)
	ops := opcodes(t, fn)
	for _, op := range []vm.Opcode{vm.OpGetLocal1, vm.OpGetLocal, vm.OpCall1, vm.OpCall, vm.OpPopN, vm.OpConstant} {
		if ops[op] == 0 {
			t.Errorf("expected %s in %v", op, ops)
		}
	}
	for _, op := range []vm.Opcode{vm.OpConstantLong, vm.OpJumpLong, vm.OpGetLocalLong} {
		if ops[op] != 0 {
			t.Errorf("unexpected %s", op)
		}
	}
}

func TestCompileLongForms(t *testing.T) {
	var src strings.Builder
	for i := 0; i < 300; i++ {
		fmt.Fprintf(&src, "var g%d = %d;\n", i, i)
	}
	src.WriteString("if (g1 == 1) {\n")
	for i := 0; i < 60; i++ {
		src.WriteString("  g0 = g0 + 1;\n")
	}
	src.WriteString("} else {\n")
	for i := 0; i < 60; i++ {
		src.WriteString("  g0 = g0 - 1;\n")
	}
	src.WriteString("}\nwhile (g0 < 200) {\n")
	for i := 0; i < 60; i++ {
		src.WriteString("  g0 = g0 + 1;\n")
	}
	src.WriteString("}\nreturn g0 + g299;\n")

	fn := compileOK(t, src.String())
	ops := opcodes(t, fn)
	for _, op := range []vm.Opcode{vm.OpConstantLong, vm.OpDefineGlobalLong, vm.OpGetGlobalLong,
		vm.OpSetGlobalLong, vm.OpJumpLong, vm.OpJumpIfFalseLong, vm.OpLoopLong} {
		if ops[op] == 0 {
			t.Errorf("expected %s", op)
		}
	}

	v, err := vm.New(vm.Options{}).Execute(fn)
	if err != nil {
		t.Fatal(err)
	}
	// the then branch lifts g0 to 60, the loop to 240 in steps of 60
	if v.AsNumber() != 240+299 {
		t.Errorf("result = %v", v)
	}
}

func TestJumpErrorsAreDiagnostics(t *testing.T) {
	a := NewAssembler(nil, 0, false)
	a.ctx = newFuncContext(nil, "jumps")
	tok := Token{Type: TokenWhile, Lexeme: "while", Line: 3, Column: 1}

	if n := a.placeJump(tok, 10, vm.OpJump, 0); n != 0 {
		t.Errorf("placeJump past the chunk inserted %d bytes", n)
	}
	a.closeLoop(tok, 4, 0)
	a.chunk().EmitByte(vm.OpPop, 0)
	a.closeLoop(tok, 0, 0)

	ds := a.Diagnostics()
	if len(ds) != 3 {
		t.Fatalf("got %d diagnostics, want 3: %v", len(ds), ds)
	}
	for _, d := range ds {
		if d.MessageID != MsgInvalidJump || d.Line != 3 {
			t.Errorf("diagnostic %v, want %s on line 3", d, MsgInvalidJump)
		}
	}
}

func TestCompileDisassemblyRoundTrip(t *testing.T) {
	programs := []string{
		"return 2 + 2;",
		`var s = 0;
for (var i = 0; i < 10; i++) { if (i % 2 == 0) s += i; else s -= 1; }
do { s--; } while (s > 100);
return s;`,
		`function outer(a) {
  var b = a * 2;
  return function(c) {
    return function() { return a + b + c; };
  };
}
return outer(1)(2)();`,
		`var t = { n = 1, f = function() { this.n++; return this.n; } };
var xs = [1, "two", t];
xs[0] += 1;
return t.f();`,
	}
	for _, src := range programs {
		fn := compileOK(t, src)
		listing, err := vm.Disassemble(fn)
		if err != nil {
			t.Fatalf("Disassemble: %v", err)
		}
		parsed, err := vm.ParseListing(listing)
		if err != nil {
			t.Fatalf("ParseListing: %v\n%s", err, listing)
		}
		fns := vm.Functions(fn)
		if len(parsed) != len(fns) {
			t.Fatalf("listing has %d functions, want %d", len(parsed), len(fns))
		}
		for i, f := range fns {
			if got := vm.Encode(parsed[i].Instructions); !bytes.Equal(got, f.Chunk.Code) {
				t.Errorf("%s: re-encoded listing differs from code\n%s", f, listing)
			}
		}
	}
}

func TestCompileDebugSymbols(t *testing.T) {
	fn := compileOK(t, "var x = 1;\nreturn x + 2;")
	if len(fn.Chunk.Symbols) == 0 {
		t.Fatal("no debug symbols recorded")
	}
	for _, s := range fn.Chunk.Symbols {
		if s.From >= s.To || s.To > len(fn.Chunk.Code) {
			t.Errorf("bad symbol range %+v for %d bytes", s, len(fn.Chunk.Code))
		}
	}

	stripped, err := Compile("var x = 1;", Options{OmitSymbols: true})
	if err != nil {
		t.Fatal(err)
	}
	if len(stripped.Chunk.Symbols) != 0 {
		t.Error("OmitSymbols still recorded symbols")
	}
}

func TestCompileUpvalueDescriptors(t *testing.T) {
	fn := compileOK(t, `function outer() {
  var a = 1;
  var b = 2;
  return function() {
    return function() { return b + a + b; };
  };
}`)
	fns := vm.Functions(fn)
	if len(fns) != 4 {
		t.Fatalf("got %d functions", len(fns))
	}
	middle, inner := fns[2], fns[3]
	if middle.UpvalueCount != 2 || inner.UpvalueCount != 2 {
		t.Errorf("upvalue counts = %d, %d, want 2, 2", middle.UpvalueCount, inner.UpvalueCount)
	}

	insts, err := vm.Decode(fns[1])
	if err != nil {
		t.Fatal(err)
	}
	var closure *vm.Instruction
	for i := range insts {
		if insts[i].Op == vm.OpClosure {
			closure = &insts[i]
		}
	}
	if closure == nil {
		t.Fatal("outer emits no closure")
	}
	// b is captured first, then a; both are locals of outer
	want := []vm.UpvalueDesc{{IsLocal: true, Index: 2}, {IsLocal: true, Index: 1}}
	for i, u := range closure.Upvalues {
		if u != want[i] {
			t.Errorf("upvalue %d = %+v, want %+v", i, u, want[i])
		}
	}
}

// ---------------------------------------------------------------------------
// Execution
// ---------------------------------------------------------------------------

func TestCompileAndExecute(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  any
	}{
		{"arithmetic", "return 2 + 2;", 4.0},
		{"precedence", "return 1 + 2 * 3 - 4 / 2;", 5.0},
		{"power", "return 2 ** 10;", 1024.0},
		{"modulo", "return 17 % 5;", 2.0},
		{"concat", `return "n=" + 1;`, "n=1.00"},
		{"string compare", `return "a" < "b";`, true},
		{"logic", "return (1 < 2) && !(2 < 1) || false;", true},
		{"compound", "var x = 5; x -= 2; x *= 3; x /= 9; x += 1; return x;", 2.0},
		{"postfix value", "var i = 1; var j = i++; return j * 10 + i;", 12.0},
		{"prefix value", "var i = 1; return ++i + i;", 4.0},
		{"decrement", "var i = 3; i--; --i; return i;", 1.0},
		{"for", "var s = 0; for (var i = 0; i < 5; i++) { s += i; } return s;", 10.0},
		{"for without clauses", "var n = 0; for (;;) { n++; if (n == 3) return n; }", 3.0},
		{"while", "var n = 0; while (n < 10) n++; return n;", 10.0},
		{"do while", "var n = 0; do { n += 3; } while (n < 10); return n;", 12.0},
		{"else if", `var x = 7; var r = ""; if (x < 5) r = "low"; else if (x < 10) r = "mid"; else r = "high"; return r;`, "mid"},
		{"recursion", "function fib(n) { if (n < 2) return n; return fib(n - 1) + fib(n - 2); } return fib(10);", 55.0},
		{"local recursion", "{ function fact(n) { if (n <= 1) return 1; return n * fact(n - 1); } return fact(5); }", 120.0},
		{"counter", `function counter() {
  var n = 0;
  return function() { n++; return n; };
}
var c = counter();
c(); c();
return c();`, 3.0},
		{"closed in loop", `var fs = [null, null, null];
for (var i = 0; i < 3; i++) { var k = i * 10; fs[i] = function() { return k; }; }
return fs[0]() + fs[2]();`, 20.0},
		{"shadowing", "var x = 1; { var x = 2; { var x = 3; } } return x;", 1.0},
		{"table", "var t = { n = 1 }; t.n += 4; return t.n;", 5.0},
		{"table string key", `var t = {}; t["k"] = 2; return t.k;`, 2.0},
		{"open table", "var t = {}; t.x = 1; return t.x;", 1.0},
		{"open shaped table", `var t = { a = 1 }; t["b"] = 2; return t.a + t.b;`, 3.0},
		{"open table through upvalue", "{ var t = {}; var set = function() { t.x = 4; }; set(); return t.x; }", 4.0},
		{"array element retyped", `var xs = [0]; xs[0] = "s"; return xs[0] + 1;`, "s1.00"},
		{"array element becomes callable", "var fs = [null, null]; fs[0] = function() { return 3; }; return fs[0]();", 3.0},
		{"unbraced if declaration", "function f(c) { if (c) var x = 1; var y = 2; return y; } return f(false) + f(true) * 10;", 22.0},
		{"unbraced else declaration", "function f(c) { if (c) c; else var x = 5; var y = 3; return y; } return f(false);", 3.0},
		{"unbraced while declaration", "function g() { var i = 0; while (i < 3) var k = i++; var z = 42; return z; } return g();", 42.0},
		{"unbraced do declaration", "function h() { var i = 0; do var k = i++; while (i < 3); var z = 7; return z + i; } return h();", 10.0},
		{"unbraced for declaration", "function h() { for (var i = 0; i < 3; i++) var k = i; var z = 5; return z; } return h();", 5.0},
		{"unbraced top-level declaration", "if (true) var t = 1; var u = 9; return u;", 9.0},
		{"unbraced closure declaration", `function f() {
  var n = 0;
  while (n < 2) var c = function() { n++; return n; }();
  var z = 8;
  return z + n;
}
return f();`, 10.0},
		{"method this", `var counter = { n = 0, bump = function() { this.n += 1; return this.n; } };
counter.bump();
return counter.bump();`, 2.0},
		{"array", "var xs = [1, 2]; xs[1] *= 10; return xs[1];", 20.0},
		{"string index", `var s = "abc"; return s[1];`, "b"},
		{"native module", "import sample; var xs = [1, 2, 3]; xs[0] = 10; return xs[0] + xs.size() + double(2);", 17.0},
		{"implicit return", "var x = 1;", nil},
		{"function without return", "function f() {} return f();", nil},
		{"equality", `return "a" + "b" == "ab";`, true},
		{"null is falsy", "if (null) return 1; return 2;", 2.0},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			v := runValue(t, tc.input)
			switch want := tc.want.(type) {
			case float64:
				if !v.IsNumber() || v.AsNumber() != want {
					t.Errorf("result = %#v, want %v", v, want)
				}
			case string:
				if s, ok := v.AsString(); !ok || s != want {
					t.Errorf("result = %#v, want %q", v, want)
				}
			case bool:
				if !v.IsBool() || v.AsBool() != want {
					t.Errorf("result = %#v, want %v", v, want)
				}
			case nil:
				if !v.IsNull() {
					t.Errorf("result = %#v, want null", v)
				}
			}
		})
	}
}

func TestCompileRuntimeErrors(t *testing.T) {
	tests := []struct {
		input string
		id    string
		line  int
	}{
		{"var f: any = 1;\nf();", vm.ErrNotCallable, 2},
		{"var t: table = {};\nreturn t.missing;", vm.ErrUnknownProperty, 2},
		{"var f: any = function(a) { return a; };\nf(1, 2);", vm.ErrArityMismatch, 2},
		{"var xs = [1];\nvar i: any = 3;\nreturn xs[i];", vm.ErrIndexOutOfRange, 3},
		{"var a: any = true;\nreturn a + 1;", vm.ErrTypeError, 2},
		{"function r() { return r(); }\nr();", vm.ErrStackOverflow, 1},
	}
	for _, tc := range tests {
		_, err := run(t, tc.input)
		if !vm.IsRuntimeError(err, tc.id) {
			t.Errorf("Execute(%q) = %v, want %s", tc.input, err, tc.id)
			continue
		}
		re := err.(*vm.RuntimeError)
		if re.Line != tc.line {
			t.Errorf("Execute(%q) error at line %d, want %d", tc.input, re.Line, tc.line)
		}
	}
}

package compiler

import (
	"bytes"
	"testing"

	"github.com/chazu/kestrel/vm"
)

// ---------------------------------------------------------------------------
// FuzzLexer: ensure the lexer never panics on arbitrary input.
// ---------------------------------------------------------------------------

func FuzzLexer(f *testing.F) {
	seeds := []string{
		// Punctuation and operators
		`( ) [ ] { } , ; . : |`,
		`+ - * / % ** = += -= *= /= == != < <= > >= ! && || ++ --`,
		`a+++b`, `x**-y`, `!!a`,
		// Numbers
		`42`, `0`, `3.14`, `1.`, `.5`, `1.2.3`,
		// Strings
		`"hello"`, `""`, `"say \"hi\""`, `"tab\there"`, `"unterminated`, `"\`,
		// Identifiers and reserved words
		`foo`, `_private`, `foo123`, `this`, `null`, `true`, `false`,
		`var`, `variable`, `iffy`, `done`, `format`,
		// Comments
		"a // line\nb", `/* block */ c`, `/* unterminated`, `//`,
		// Unicode
		`"こんにちは"`, `café`, `naïve`,
		// Empty and whitespace
		``, `   `, "\t\n\r",
		// Illegal characters
		`@ # $ ~ ^ ? \`,
	}

	for _, s := range seeds {
		f.Add(s)
	}

	f.Fuzz(func(t *testing.T, data string) {
		defer func() {
			if r := recover(); r != nil {
				t.Fatalf("lexer panicked on input %q: %v", data, r)
			}
		}()

		toks := Tokenize(data)
		if len(toks) == 0 || toks[len(toks)-1].Type != TokenEOF {
			t.Fatalf("token stream of %q does not end with EOF", data)
		}
		if len(toks) > len(data)+1 {
			t.Fatalf("%d tokens from %d bytes", len(toks), len(data))
		}
	})
}

// ---------------------------------------------------------------------------
// FuzzParser: ensure the parser never panics on arbitrary input.
// Syntax errors are acceptable; panics are not.
// ---------------------------------------------------------------------------

func FuzzParser(f *testing.F) {
	seeds := []string{
		// Expressions
		`1 + 2 * 3;`, `-a ** 2;`, `a = b = c;`, `x++ + ++y;`, `f()(1)[2].g;`,
		// Declarations
		`var x;`, `var x: number | string = 1;`, `const c: { a: [number, string] } = t;`,
		`var f: function(number): bool;`,
		// Functions
		`function f(a, b: number): number { return a + b; }`,
		`var g = function() { return this; };`,
		// Literals
		`var t = { a = 1, b = "x" };`, `var xs = [1, [2], {}];`,
		// Control flow
		`if (a) b; else if (c) d; else e;`, `while (x) { x--; }`,
		`do { } while (false);`, `for (;;) {}`, `for (var i = 0; i < 3; i++) {}`,
		`import system;`, `return;`,
		// Broken input
		``, `(`, `)`, `{`, `}`, `[`, `]`, `;;;`, `var = 5;`, `x = ;`, `return );`,
		`function`, `function (`, `var x: ;`, `if`, `for (`, `{ var x = 1;`,
		`var t = { 1 = 2 };`, `a.;`, `a[;`, `f(1, 2;`,
	}

	for _, s := range seeds {
		f.Add(s)
	}

	f.Fuzz(func(t *testing.T, data string) {
		defer func() {
			if r := recover(); r != nil {
				t.Fatalf("parser panicked on input %q: %v", data, r)
			}
		}()

		prog, diags := Parse(data)
		if prog == nil || prog.Kind != KindProgram {
			t.Fatalf("Parse(%q) returned no program", data)
		}
		last := prog.List[len(prog.List)-1]
		if last.Kind != KindReturn {
			t.Fatalf("Parse(%q) lacks the implicit return", data)
		}
		for _, d := range diags {
			if d.Stage != StageParser || d.MessageID == "" {
				t.Fatalf("Parse(%q) produced malformed diagnostic %+v", data, d)
			}
		}
	})
}

// ---------------------------------------------------------------------------
// FuzzCompile: feed arbitrary source through the full pipeline. Diagnostics
// are fine, panics are not, and every compiled function must survive a
// decode/encode round trip of its code.
// ---------------------------------------------------------------------------

func FuzzCompile(f *testing.F) {
	seeds := []string{
		`return 2 + 2;`,
		`return "lo" + "ng";`,
		`var x = 1; x += 2; return x;`,
		`function fib(n) { if (n < 2) return n; return fib(n - 1) + fib(n - 2); } return fib(5);`,
		`function outer() { var a = 1; function inner() { a++; return a; } return inner; }`,
		`var t = { n = 0, bump = function() { this.n += 1; return this.n; } }; t.bump();`,
		`var xs = [1, 2, 3]; xs[1] *= 2; return xs[1];`,
		`{ var a = 1; { var a = 2; } return a; }`,
		`import system; println("x");`,
		`const c = 1; c = 2;`,
		`1 = 2;`,
		`return y;`,
		`var s: string = 1;`,
		`function f(a: number) {} f("s");`,
		`{ import system; }`,
		`this;`,
		``,
	}

	for _, s := range seeds {
		f.Add(s)
	}

	f.Fuzz(func(t *testing.T, data string) {
		defer func() {
			if r := recover(); r != nil {
				t.Fatalf("Compile panicked on input %q: %v", data, r)
			}
		}()

		unit := Analyze(data, Options{Modules: vm.NewRegistry(sampleModule{})})
		if unit.Function == nil {
			if len(unit.Diagnostics) == 0 {
				t.Fatalf("Analyze(%q) produced neither code nor diagnostics", data)
			}
			return
		}

		for _, fn := range vm.Functions(unit.Function) {
			insts, err := vm.Decode(fn)
			if err != nil {
				t.Fatalf("Decode(%s) of %q: %v", fn.Name, data, err)
			}
			if got := vm.Encode(insts); !bytes.Equal(got, fn.Chunk.Code) {
				t.Fatalf("round trip of %s changed the code of %q", fn.Name, data)
			}
		}
	})
}

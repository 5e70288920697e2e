package vm_test

import (
	"io"
	"testing"

	"github.com/chazu/kestrel/compiler"
	"github.com/chazu/kestrel/stdlib"
	"github.com/chazu/kestrel/vm"
)

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

func compileBench(b *testing.B, source string) *vm.Function {
	b.Helper()
	fn, err := compiler.Compile(source, compiler.Options{Name: "bench", Modules: stdlib.Registry()})
	if err != nil {
		b.Fatalf("compile: %v", err)
	}
	return fn
}

func runBench(b *testing.B, source string, want float64) {
	b.Helper()
	fn := compileBench(b, source)
	opts := vm.Options{Modules: stdlib.Registry(), Stdout: io.Discard}
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		v, err := vm.New(opts).Execute(fn)
		if err != nil {
			b.Fatal(err)
		}
		if v.AsNumber() != want {
			b.Fatalf("result = %v, want %v", v, want)
		}
	}
}

// ---------------------------------------------------------------------------
// Programs
// ---------------------------------------------------------------------------

func BenchmarkFibonacciRecursive(b *testing.B) {
	runBench(b, `
function fib(n) { if (n < 2) return n; return fib(n - 1) + fib(n - 2); }
return fib(18);`, 2584)
}

func BenchmarkFibonacciIterative(b *testing.B) {
	runBench(b, `
var a = 0; var b = 1;
for (var i = 0; i < 60; i++) { var t = a + b; a = b; b = t; }
return a;`, 1548008755920)
}

func BenchmarkSumLoopLocals(b *testing.B) {
	runBench(b, `
{ var s = 0; for (var i = 0; i < 10000; i++) { s += i; } return s; }`, 49995000)
}

func BenchmarkSumLoopGlobals(b *testing.B) {
	runBench(b, `
var s = 0; var i = 0;
while (i < 10000) { s += i; i++; }
return s;`, 49995000)
}

func BenchmarkClosureCounter(b *testing.B) {
	runBench(b, `
function counter() { var n = 0; return function() { n++; return n; }; }
var c = counter();
for (var i = 0; i < 999; i++) c();
return c();`, 1000)
}

func BenchmarkTableProperty(b *testing.B) {
	runBench(b, `
var t = { n = 0 };
for (var i = 0; i < 5000; i++) t.n += 2;
return t.n;`, 10000)
}

func BenchmarkMethodCall(b *testing.B) {
	runBench(b, `
var acc = { n = 0, add = function(k) { this.n += k; return this.n; } };
for (var i = 0; i < 2000; i++) acc.add(1);
return acc.n;`, 2000)
}

func BenchmarkArrayIndex(b *testing.B) {
	runBench(b, `
import array;
var xs = range(100);
var s = 0;
for (var r = 0; r < 20; r++) { for (var i = 0; i < 100; i++) s += xs[i]; }
return s;`, 99000)
}

func BenchmarkStringConcat(b *testing.B) {
	runBench(b, `
var s = "";
for (var i = 0; i < 200; i++) s = s + "x";
return 0;`, 0)
}

func BenchmarkCompile(b *testing.B) {
	src := `
function fib(n) { if (n < 2) return n; return fib(n - 1) + fib(n - 2); }
var t = { n = 0, bump = function() { this.n += 1; return this.n; } };
var xs = [1, 2, 3];
for (var i = 0; i < 3; i++) { xs[i] *= fib(i); t.bump(); }
return xs[2] + t.n;`
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		if _, err := compiler.Compile(src, compiler.Options{}); err != nil {
			b.Fatal(err)
		}
	}
}

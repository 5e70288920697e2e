package stdlib

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/chazu/kestrel/compiler"
	"github.com/chazu/kestrel/vm"
)

// execute compiles and runs src against reg, returning the exit value and
// everything printed.
func execute(t *testing.T, reg *vm.Registry, src, stdin string) (vm.Value, string, error) {
	t.Helper()
	fn, err := compiler.Compile(src, compiler.Options{Modules: reg})
	if err != nil {
		t.Fatalf("Compile(%q): %v", src, err)
	}
	var out bytes.Buffer
	m := vm.New(vm.Options{Modules: reg, Stdout: &out, Stdin: strings.NewReader(stdin)})
	v, err := m.Execute(fn)
	return v, out.String(), err
}

func TestRegistryNames(t *testing.T) {
	names := Registry().Names()
	want := []string{"array", "system", "time"}
	if strings.Join(names, ",") != strings.Join(want, ",") {
		t.Errorf("Names() = %v, want %v", names, want)
	}
}

func TestSystemOutput(t *testing.T) {
	_, out, err := execute(t, Registry(), `import system;
print("a");
print(1.5);
println(" b");
println(true);
println(null);
println([1, "x"]);`, "")
	if err != nil {
		t.Fatal(err)
	}
	want := "a1.5 b\ntrue\nnull\n[1, \"x\"]\n"
	if out != want {
		t.Errorf("output = %q, want %q", out, want)
	}
}

func TestSystemInput(t *testing.T) {
	v, _, err := execute(t, Registry(), `import system;
var a = input();
var b = input();
var c = input();
return a + "|" + b + "|" + typeOf(c);`, "first\nsecond\r\n")
	if err != nil {
		t.Fatal(err)
	}
	if s, _ := v.AsString(); s != "first|second|null" {
		t.Errorf("result = %q", s)
	}
}

func TestSystemIntrospection(t *testing.T) {
	tests := []struct {
		expr string
		want string
	}{
		{"typeOf(1)", "number"},
		{`typeOf("s")`, "string"},
		{"typeOf([])", "array"},
		{"typeOf({})", "table"},
		{"typeOf(null)", "null"},
		{"typeOf(typeOf)", "native"},
		{"typeOf(function() {})", "closure"},
		{"toString(2.5)", "2.5"},
		{"toString(false)", "false"},
	}
	for _, tc := range tests {
		v, _, err := execute(t, Registry(), "import system; return "+tc.expr+";", "")
		if err != nil {
			t.Errorf("%s: %v", tc.expr, err)
			continue
		}
		if s, _ := v.AsString(); s != tc.want {
			t.Errorf("%s = %q, want %q", tc.expr, s, tc.want)
		}
	}
}

func TestTimeModule(t *testing.T) {
	now := time.UnixMilli(1_000_000)
	var slept []time.Duration
	clock := &Time{
		Now: func() time.Time { return now },
		Sleep: func(d time.Duration) {
			slept = append(slept, d)
			now = now.Add(d)
		},
	}
	reg := vm.NewRegistry(clock)

	v, _, err := execute(t, reg, `import time;
var start = now();
sleep(250);
sleep(0);
return (now() - start) + clock() * 1000;`, "")
	if err != nil {
		t.Fatal(err)
	}
	if v.AsNumber() != 500 {
		t.Errorf("result = %v, want 500", v)
	}
	if len(slept) != 1 || slept[0] != 250*time.Millisecond {
		t.Errorf("slept = %v", slept)
	}
}

func TestArrayMethods(t *testing.T) {
	v, _, err := execute(t, Registry(), `import array;
var xs = range(3);
xs.push(10);
var last = xs.pop();
xs.push(last + 1);
return xs.join(",") + ";" + xs.size() + ";" + xs.contains(11) + ";" + xs.contains("0");`, "")
	if err != nil {
		t.Fatal(err)
	}
	if s, _ := v.AsString(); s != "0,1,2,11;4.00;true;false" {
		t.Errorf("result = %q", s)
	}
}

func TestArrayErrors(t *testing.T) {
	tests := []struct {
		src string
		id  string
	}{
		{"import array; var xs: array = []; xs.pop();", vm.ErrIndexOutOfRange},
		{"import array; range(-1);", vm.ErrTypeError},
		{"import array; range(1.5);", vm.ErrTypeError},
		{"import array; var sep: any = 1; [1].join(sep);", vm.ErrTypeError},
	}
	for _, tc := range tests {
		_, _, err := execute(t, Registry(), tc.src, "")
		if !vm.IsRuntimeError(err, tc.id) {
			t.Errorf("%s: err = %v, want %s", tc.src, err, tc.id)
		}
	}
}

func TestModuleTypesAreChecked(t *testing.T) {
	tests := []struct {
		src string
		id  string
	}{
		{"import time; sleep(\"soon\");", compiler.MsgTypeMismatch},
		{"import system; print(1, 2);", compiler.MsgArityMismatch},
		{"import array; [1].join(1);", compiler.MsgTypeMismatch},
		{"import array; [1].sort();", compiler.MsgUnknownProperty},
		{"print(1);", compiler.MsgUnknownIdentifier},
	}
	for _, tc := range tests {
		unit := compiler.Analyze(tc.src, compiler.Options{Modules: Registry()})
		if !unit.Diagnostics.Has(tc.id) {
			t.Errorf("%s: diagnostics %v lack %s", tc.src, unit.Diagnostics, tc.id)
		}
	}
}

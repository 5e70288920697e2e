package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/chazu/kestrel/manifest"
	"github.com/chazu/kestrel/vm"
)

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

// writeFile writes a file into dir and returns its path.
func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	if err := os.WriteFile(p, []byte(content), 0644); err != nil {
		t.Fatalf("writing %s: %v", p, err)
	}
	return p
}

// newTestApp builds an app rooted at a temp dir with its cache and
// metrics textfile inside it.
func newTestApp(t *testing.T) (*app, string, *bytes.Buffer, *bytes.Buffer) {
	t.Helper()
	dir := t.TempDir()
	cfg := manifest.Default()
	cfg.Dir = dir
	cfg.Cache.Path = filepath.Join(dir, "cache", "images.db")
	cfg.Metrics.Textfile = filepath.Join(dir, "kestrel.prom")

	var stdout, stderr bytes.Buffer
	a, err := newApp(cfg, &stdout, &stderr)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { a.close() })
	return a, dir, &stdout, &stderr
}

// ---------------------------------------------------------------------------
// Commands
// ---------------------------------------------------------------------------

func TestRunExitCode(t *testing.T) {
	a, dir, stdout, _ := newTestApp(t)
	path := writeFile(t, dir, "main.ks", "import system;\nprintln(\"hi\");\nreturn 2 + 2;\n")

	if code := a.run(path); code != 4 {
		t.Errorf("exit code = %d, want 4", code)
	}
	if stdout.String() != "hi\n" {
		t.Errorf("stdout = %q", stdout.String())
	}
}

func TestRunNonIntegralResult(t *testing.T) {
	a, dir, _, _ := newTestApp(t)
	path := writeFile(t, dir, "main.ks", "return 1.5;")
	if code := a.run(path); code != 0 {
		t.Errorf("exit code = %d, want 0", code)
	}
}

func TestRunReportsDiagnostics(t *testing.T) {
	a, dir, _, stderr := newTestApp(t)
	path := writeFile(t, dir, "bad.ks", "var x = 1;\nreturn y + x;\nconst c = 1;\nc = 2;\n")

	if code := a.run(path); code != exitFailure {
		t.Errorf("exit code = %d, want %d", code, exitFailure)
	}
	out := stderr.String()
	for _, want := range []string{"unknown-identifier", "const-assignment", "bad.ks:2:8", "2 error(s)"} {
		if !strings.Contains(out, want) {
			t.Errorf("stderr missing %q:\n%s", want, out)
		}
	}
}

func TestRunReportsRuntimeError(t *testing.T) {
	a, dir, _, stderr := newTestApp(t)
	path := writeFile(t, dir, "boom.ks", "var f: any = 1;\nf();\n")

	if code := a.run(path); code != exitFailure {
		t.Errorf("exit code = %d, want %d", code, exitFailure)
	}
	if !strings.Contains(stderr.String(), "not-callable") {
		t.Errorf("stderr = %q", stderr.String())
	}
}

func TestCompileImageAndRun(t *testing.T) {
	a, dir, _, _ := newTestApp(t)
	src := writeFile(t, dir, "main.ks", "function sq(n) { return n * n; }\nreturn sq(7);\n")
	img := filepath.Join(dir, "main.ksc")

	if code := a.compileImage(src, img); code != 0 {
		t.Fatalf("compileImage exit code = %d", code)
	}
	if code := a.run(img); code != 49 {
		t.Errorf("running image exit code = %d, want 49", code)
	}
	if code := a.compileImage(img, filepath.Join(dir, "again.ksc")); code != exitUsage {
		t.Errorf("compiling an image exit code = %d, want %d", code, exitUsage)
	}
}

func TestRunCorruptImage(t *testing.T) {
	a, dir, _, stderr := newTestApp(t)
	img := writeFile(t, dir, "junk.ksc", "not cbor at all")
	if code := a.run(img); code != exitFailure {
		t.Errorf("exit code = %d, want %d", code, exitFailure)
	}
	if !strings.Contains(stderr.String(), "junk.ksc") {
		t.Errorf("stderr = %q", stderr.String())
	}
}

func TestRunImageWithBadOperands(t *testing.T) {
	a, dir, _, stderr := newTestApp(t)
	main := vm.NewFunction("main")
	main.Chunk.EmitByte(vm.OpConstant, 7)
	main.Chunk.Emit(vm.OpReturn)
	data, err := vm.MarshalImage(main)
	if err != nil {
		t.Fatal(err)
	}
	img := filepath.Join(dir, "bad.ksc")
	if err := os.WriteFile(img, data, 0644); err != nil {
		t.Fatal(err)
	}

	if code := a.run(img); code != exitFailure {
		t.Errorf("exit code = %d, want %d", code, exitFailure)
	}
	if !strings.Contains(stderr.String(), "constant 7 out of range") {
		t.Errorf("stderr = %q", stderr.String())
	}
}

func TestDisassemble(t *testing.T) {
	a, dir, stdout, _ := newTestApp(t)
	path := writeFile(t, dir, "main.ks", "var x = 1;\nreturn x;\n")
	if code := a.disassemble(path); code != 0 {
		t.Fatalf("exit code = %d", code)
	}
	if !strings.Contains(stdout.String(), "main.ks") || !strings.Contains(stdout.String(), "RETURN") {
		t.Errorf("listing = %q", stdout.String())
	}
}

func TestCloseWritesMetrics(t *testing.T) {
	a, dir, _, _ := newTestApp(t)
	path := writeFile(t, dir, "main.ks", "return 0;")
	a.run(path)
	a.run(path)
	if err := a.close(); err != nil {
		t.Fatal(err)
	}
	a.opts.Cache = nil
	a.opts.Metrics = nil

	data, err := os.ReadFile(filepath.Join(dir, "kestrel.prom"))
	if err != nil {
		t.Fatal(err)
	}
	text := string(data)
	for _, want := range []string{
		`kestrel_cache_lookups_total{result="hit"} 1`,
		`kestrel_vm_executions_total{result="ok"} 2`,
	} {
		if !strings.Contains(text, want) {
			t.Errorf("metrics missing %q:\n%s", want, text)
		}
	}
}

// ---------------------------------------------------------------------------
// Configuration
// ---------------------------------------------------------------------------

func TestLoadConfigDefaults(t *testing.T) {
	dir := t.TempDir()
	cfg, err := loadConfig(dir)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.EntryPath() != filepath.Join(dir, "main.ks") {
		t.Errorf("entry = %q", cfg.EntryPath())
	}
}

func TestLoadConfigManifest(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, manifest.FileName, "[project]\nentry = \"app.ks\"\n[modules]\nenabled = [\"system\"]\n")
	sub := filepath.Join(dir, "nested")
	if err := os.Mkdir(sub, 0755); err != nil {
		t.Fatal(err)
	}

	cfg, err := loadConfig(sub)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.EntryPath() != filepath.Join(dir, "app.ks") {
		t.Errorf("entry = %q", cfg.EntryPath())
	}

	cfg.Cache.Enabled = false
	var stdout, stderr bytes.Buffer
	a, err := newApp(cfg, &stdout, &stderr)
	if err != nil {
		t.Fatal(err)
	}
	path := writeFile(t, dir, "app.ks", "import array;")
	if code := a.run(path); code != exitFailure || !strings.Contains(stderr.String(), "unknown-module") {
		t.Errorf("import of a disabled module: code %d, stderr %q", code, stderr.String())
	}
}

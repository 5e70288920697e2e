package manifest

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/chazu/kestrel/compiler"
	"github.com/chazu/kestrel/vm"
)

func writeManifest(t *testing.T, dir, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, FileName), []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
}

func TestLoadManifest(t *testing.T) {
	dir := t.TempDir()
	writeManifest(t, dir, `
[project]
name = "test-app"
entry = "src/app.ks"

[compiler]
max-diagnostics = 10
debug-symbols = false

[vm]
initial-stack = 512
max-frames = 64
trace = true

[modules]
enabled = ["system", "array"]

[cache]
enabled = false
path = "build/images.db"

[log]
verbosity = 2
file = "kestrel.log"

[metrics]
textfile = "metrics.prom"
`)

	m, err := Load(dir)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if m.Project.Name != "test-app" {
		t.Errorf("project name = %q, want test-app", m.Project.Name)
	}
	if got, want := m.EntryPath(), filepath.Join(m.Dir, "src", "app.ks"); got != want {
		t.Errorf("entry path = %q, want %q", got, want)
	}
	if m.Compiler.MaxDiagnostics != 10 || m.Compiler.DebugSymbols {
		t.Errorf("compiler = %+v", m.Compiler)
	}
	if m.VM.InitialStack != 512 || m.VM.MaxFrames != 64 || !m.VM.Trace {
		t.Errorf("vm = %+v", m.VM)
	}
	if len(m.Modules.Enabled) != 2 {
		t.Errorf("enabled modules = %v, want 2", m.Modules.Enabled)
	}
	if m.Cache.Enabled {
		t.Error("cache enabled = true, want false")
	}
	if got, want := m.Cache.Path, filepath.Join(m.Dir, "build", "images.db"); got != want {
		t.Errorf("cache path = %q, want %q", got, want)
	}
	if m.Log.Verbosity != 2 || m.Log.File != filepath.Join(m.Dir, "kestrel.log") {
		t.Errorf("log = %+v", m.Log)
	}
	if m.Metrics.Textfile != filepath.Join(m.Dir, "metrics.prom") {
		t.Errorf("metrics textfile = %q", m.Metrics.Textfile)
	}
}

func TestLoadManifestDefaults(t *testing.T) {
	dir := t.TempDir()
	writeManifest(t, dir, `
[project]
name = "minimal"
`)

	m, err := Load(dir)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if m.Project.Entry != "main.ks" {
		t.Errorf("default entry = %q, want main.ks", m.Project.Entry)
	}
	if m.Compiler.MaxDiagnostics != compiler.DefaultMaxDiagnostics || !m.Compiler.DebugSymbols {
		t.Errorf("default compiler = %+v", m.Compiler)
	}
	if m.VM.InitialStack != vm.DefaultInitialStack || m.VM.MaxFrames != vm.DefaultMaxFrames {
		t.Errorf("default vm = %+v", m.VM)
	}
	if len(m.Modules.Enabled) != 3 {
		t.Errorf("default modules = %v, want all three", m.Modules.Enabled)
	}
	if !m.Cache.Enabled || m.Cache.Path == "" {
		t.Errorf("default cache = %+v", m.Cache)
	}
	if m.Metrics.Textfile != "" {
		t.Errorf("default metrics textfile = %q, want empty", m.Metrics.Textfile)
	}
}

func TestLoadManifestRejectsInvalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"unknown section", "[source]\ndirs = [\"src\"]\n"},
		{"unknown key", "[vm]\nstack = 10\n"},
		{"wrong type", "[compiler]\ndebug-symbols = \"yes\"\n"},
		{"out of range", "[vm]\nmax-frames = 0\n"},
		{"unknown module", "[modules]\nenabled = [\"network\"]\n"},
		{"bad entry", "[project]\nentry = \"main.js\"\n"},
		{"syntax", "[project\nname = 1\n"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			dir := t.TempDir()
			writeManifest(t, dir, tc.content)
			if _, err := Load(dir); err == nil {
				t.Errorf("Load accepted %q", tc.content)
			} else if !strings.Contains(err.Error(), FileName) {
				t.Errorf("error %q does not name the file", err)
			}
		})
	}
}

func TestLoadManifestMissing(t *testing.T) {
	if _, err := Load(t.TempDir()); err == nil {
		t.Error("expected error for missing kestrel.toml")
	}
}

func TestFindAndLoad(t *testing.T) {
	root := t.TempDir()
	writeManifest(t, root, `
[project]
name = "parent"
`)

	sub := filepath.Join(root, "src", "deep")
	if err := os.MkdirAll(sub, 0755); err != nil {
		t.Fatal(err)
	}

	m, err := FindAndLoad(sub)
	if err != nil {
		t.Fatalf("FindAndLoad failed: %v", err)
	}
	if m == nil {
		t.Fatal("FindAndLoad returned nil")
	}
	if m.Project.Name != "parent" {
		t.Errorf("project name = %q, want parent", m.Project.Name)
	}
}

func TestFindAndLoadNoManifest(t *testing.T) {
	m, err := FindAndLoad(t.TempDir())
	if err != nil {
		t.Fatalf("FindAndLoad failed: %v", err)
	}
	if m != nil {
		t.Error("expected nil manifest when none exists")
	}
}

func TestManifestRegistry(t *testing.T) {
	m := Default()
	m.Modules.Enabled = []string{"time"}
	reg, err := m.Registry()
	if err != nil {
		t.Fatal(err)
	}
	if names := reg.Names(); len(names) != 1 || names[0] != "time" {
		t.Errorf("registry names = %v, want [time]", names)
	}

	m.Modules.Enabled = []string{"nope"}
	if _, err := m.Registry(); err == nil {
		t.Error("expected error for unknown module")
	}
}

func TestManifestOptions(t *testing.T) {
	m := Default()
	m.Compiler.DebugSymbols = false
	m.VM.MaxFrames = 32
	reg, err := m.Registry()
	if err != nil {
		t.Fatal(err)
	}

	copts := m.CompilerOptions("main.ks", reg)
	if copts.Name != "main.ks" || !copts.OmitSymbols || copts.Modules != reg {
		t.Errorf("compiler options = %+v", copts)
	}
	vopts := m.VMOptions(reg)
	if vopts.MaxFrames != 32 || vopts.Modules != reg {
		t.Errorf("vm options = %+v", vopts)
	}
}

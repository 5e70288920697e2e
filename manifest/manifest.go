// Package manifest handles kestrel.toml project configuration.
package manifest

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"

	"github.com/chazu/kestrel/compiler"
	"github.com/chazu/kestrel/stdlib"
	"github.com/chazu/kestrel/vm"
)

// FileName is the name of the project file.
const FileName = "kestrel.toml"

// Manifest represents a kestrel.toml project configuration.
type Manifest struct {
	Project  Project  `toml:"project"`
	Compiler Compiler `toml:"compiler"`
	VM       VM       `toml:"vm"`
	Modules  Modules  `toml:"modules"`
	Cache    Cache    `toml:"cache"`
	Log      Log      `toml:"log"`
	Metrics  Metrics  `toml:"metrics"`

	// Dir is the directory containing the kestrel.toml file (set at load time).
	Dir string `toml:"-"`
}

// Project contains project metadata.
type Project struct {
	Name  string `toml:"name"`
	Entry string `toml:"entry"`
}

// Compiler configures compilation.
type Compiler struct {
	MaxDiagnostics int  `toml:"max-diagnostics"`
	DebugSymbols   bool `toml:"debug-symbols"`
}

// VM configures execution.
type VM struct {
	InitialStack int  `toml:"initial-stack"`
	MaxFrames    int  `toml:"max-frames"`
	Trace        bool `toml:"trace"`
}

// Modules selects the native modules programs may import.
type Modules struct {
	Enabled []string `toml:"enabled"`
}

// Cache configures the compiled image cache.
type Cache struct {
	Enabled bool   `toml:"enabled"`
	Path    string `toml:"path"`
}

// Log configures logging.
type Log struct {
	Verbosity int    `toml:"verbosity"`
	File      string `toml:"file"`
}

// Metrics configures the metrics textfile export. An empty path disables it.
type Metrics struct {
	Textfile string `toml:"textfile"`
}

// Default returns the configuration used when no kestrel.toml exists.
func Default() *Manifest {
	cachePath := filepath.Join(os.TempDir(), "kestrel", "images.db")
	if dir, err := os.UserCacheDir(); err == nil {
		cachePath = filepath.Join(dir, "kestrel", "images.db")
	}
	return &Manifest{
		Project:  Project{Entry: "main.ks"},
		Compiler: Compiler{MaxDiagnostics: compiler.DefaultMaxDiagnostics, DebugSymbols: true},
		VM:       VM{InitialStack: vm.DefaultInitialStack, MaxFrames: vm.DefaultMaxFrames},
		Modules:  Modules{Enabled: stdlib.Registry().Names()},
		Cache:    Cache{Enabled: true, Path: cachePath},
	}
}

// Load parses and validates the kestrel.toml file in dir. Settings the
// file leaves out keep their defaults.
func Load(dir string) (*Manifest, error) {
	path := filepath.Join(dir, FileName)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read %s: %w", path, err)
	}

	var raw map[string]any
	if err := toml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse error in %s: %w", path, err)
	}
	if err := Validate(raw); err != nil {
		return nil, fmt.Errorf("invalid %s: %w", path, err)
	}

	m := Default()
	if err := toml.Unmarshal(data, m); err != nil {
		return nil, fmt.Errorf("parse error in %s: %w", path, err)
	}

	m.Dir, err = filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("cannot resolve path %s: %w", dir, err)
	}
	if !filepath.IsAbs(m.Cache.Path) {
		m.Cache.Path = filepath.Join(m.Dir, m.Cache.Path)
	}
	if m.Metrics.Textfile != "" && !filepath.IsAbs(m.Metrics.Textfile) {
		m.Metrics.Textfile = filepath.Join(m.Dir, m.Metrics.Textfile)
	}
	if m.Log.File != "" && !filepath.IsAbs(m.Log.File) {
		m.Log.File = filepath.Join(m.Dir, m.Log.File)
	}
	return m, nil
}

// FindAndLoad walks up from startDir to find a kestrel.toml file,
// then loads and returns the manifest. Returns nil if no manifest is found.
func FindAndLoad(startDir string) (*Manifest, error) {
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return nil, err
	}

	for {
		path := filepath.Join(dir, FileName)
		if _, err := os.Stat(path); err == nil {
			return Load(dir)
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			// Reached root
			return nil, nil
		}
		dir = parent
	}
}

// EntryPath returns the absolute path of the entry source file.
func (m *Manifest) EntryPath() string {
	if filepath.IsAbs(m.Project.Entry) {
		return m.Project.Entry
	}
	return filepath.Join(m.Dir, m.Project.Entry)
}

// Registry returns the standard modules restricted to the enabled ones.
func (m *Manifest) Registry() (*vm.Registry, error) {
	return stdlib.Registry().Restrict(m.Modules.Enabled)
}

// CompilerOptions maps the [compiler] section onto compiler options.
func (m *Manifest) CompilerOptions(name string, modules *vm.Registry) compiler.Options {
	return compiler.Options{
		Name:           name,
		Modules:        modules,
		MaxDiagnostics: m.Compiler.MaxDiagnostics,
		OmitSymbols:    !m.Compiler.DebugSymbols,
	}
}

// VMOptions maps the [vm] section onto VM options.
func (m *Manifest) VMOptions(modules *vm.Registry) vm.Options {
	return vm.Options{
		InitialStack: m.VM.InitialStack,
		MaxFrames:    m.VM.MaxFrames,
		Trace:        m.VM.Trace,
		Modules:      modules,
	}
}

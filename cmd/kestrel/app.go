package main

import (
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strings"

	"github.com/chazu/kestrel"
	"github.com/chazu/kestrel/cache"
	"github.com/chazu/kestrel/compiler"
	"github.com/chazu/kestrel/manifest"
	"github.com/chazu/kestrel/metrics"
	"github.com/chazu/kestrel/vm"
)

// Exit codes other than a program's own.
const (
	exitFailure = 1
	exitUsage   = 2
)

// loadConfig finds kestrel.toml from dir upwards, falling back to defaults
// rooted at dir.
func loadConfig(dir string) (*manifest.Manifest, error) {
	cfg, err := manifest.FindAndLoad(dir)
	if err != nil {
		return nil, err
	}
	if cfg == nil {
		cfg = manifest.Default()
		if cfg.Dir, err = filepath.Abs(dir); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}

// app holds what one CLI invocation needs: configuration, the options
// passed to the kestrel package and the writers it reports to.
type app struct {
	cfg    *manifest.Manifest
	opts   kestrel.Options
	stdout io.Writer
	stderr io.Writer
}

func newApp(cfg *manifest.Manifest, stdout, stderr io.Writer) (*app, error) {
	modules, err := cfg.Registry()
	if err != nil {
		return nil, err
	}
	copts := cfg.CompilerOptions("", modules)
	a := &app{
		cfg: cfg,
		opts: kestrel.Options{
			Modules:        modules,
			MaxDiagnostics: copts.MaxDiagnostics,
			OmitSymbols:    copts.OmitSymbols,
			VM:             cfg.VMOptions(modules),
		},
		stdout: stdout,
		stderr: stderr,
	}
	a.opts.VM.Stdout = stdout

	if cfg.Cache.Enabled {
		store, err := cache.Open(cfg.Cache.Path)
		if err != nil {
			return nil, err
		}
		a.opts.Cache = store
	}
	if cfg.Metrics.Textfile != "" {
		a.opts.Metrics = metrics.New()
	}
	return a, nil
}

// close releases the cache and writes the metrics textfile.
func (a *app) close() error {
	var errs []error
	if a.opts.Cache != nil {
		errs = append(errs, a.opts.Cache.Close())
	}
	if a.opts.Metrics != nil {
		errs = append(errs, a.opts.Metrics.WriteToTextfile(a.cfg.Metrics.Textfile))
	}
	return errors.Join(errs...)
}

func isImage(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".ksc")
}

// load returns the compiled program at path: a .ksc image is decoded,
// anything else is compiled. Diagnostics are reported to stderr.
func (a *app) load(path string) (*vm.Function, bool) {
	data, err := os.ReadFile(path)
	if err != nil {
		fmt.Fprintf(a.stderr, "Error: %v\n", err)
		return nil, false
	}

	if isImage(path) {
		fn, err := vm.UnmarshalImage(data)
		if err != nil {
			fmt.Fprintf(a.stderr, "Error: %s: %v\n", path, err)
			return nil, false
		}
		return fn, true
	}

	opts := a.opts
	opts.Name = filepath.Base(path)
	source := string(data)
	fn, err := kestrel.Compile(source, opts)
	if err != nil {
		if diags, ok := compiler.AsDiagnostics(err); ok {
			for _, d := range diags {
				fmt.Fprintln(a.stderr, d.Format(path, source))
			}
			fmt.Fprintf(a.stderr, "%d error(s) in %s\n", len(diags), path)
		} else {
			fmt.Fprintf(a.stderr, "Error: %v\n", err)
		}
		return nil, false
	}
	return fn, true
}

// run executes the program at path. An integral numeric exit value in
// 0..255 becomes the process exit code.
func (a *app) run(path string) int {
	fn, ok := a.load(path)
	if !ok {
		return exitFailure
	}

	result, err := kestrel.Execute(fn, a.opts)
	if err != nil {
		fmt.Fprintf(a.stderr, "%s: %v\n", path, err)
		var re *vm.RuntimeError
		if errors.As(err, &re) {
			for _, frame := range re.Trace {
				fmt.Fprintf(a.stderr, "  at %s\n", frame)
			}
		}
		return exitFailure
	}

	if result.IsNumber() {
		n := result.AsNumber()
		if n == math.Trunc(n) && n >= 0 && n <= 255 {
			return int(n)
		}
	}
	return 0
}

// compileImage compiles the source at path and writes its image to out.
func (a *app) compileImage(path, out string) int {
	if isImage(path) {
		fmt.Fprintf(a.stderr, "Error: %s is already an image\n", path)
		return exitUsage
	}
	fn, ok := a.load(path)
	if !ok {
		return exitFailure
	}
	data, err := vm.MarshalImage(fn)
	if err != nil {
		fmt.Fprintf(a.stderr, "Error: %v\n", err)
		return exitFailure
	}
	if err := os.WriteFile(out, data, 0644); err != nil {
		fmt.Fprintf(a.stderr, "Error: %v\n", err)
		return exitFailure
	}
	fmt.Fprintf(a.stderr, "Wrote %s (%d bytes)\n", out, len(data))
	return 0
}

// disassemble prints the listing of the program at path.
func (a *app) disassemble(path string) int {
	fn, ok := a.load(path)
	if !ok {
		return exitFailure
	}
	listing, err := vm.Disassemble(fn)
	fmt.Fprint(a.stdout, listing)
	if err != nil {
		fmt.Fprintf(a.stderr, "Error: %v\n", err)
		return exitFailure
	}
	return 0
}

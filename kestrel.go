// Package kestrel is the program boundary of the Kestrel toolchain.
//
// Compile turns source text into a top-level function or a batch of
// diagnostics; Execute runs a function on a fresh VM and returns its exit
// value or the first runtime error. Run does both.
package kestrel

import (
	"strconv"
	"strings"
	"time"

	"github.com/tliron/commonlog"

	"github.com/chazu/kestrel/cache"
	"github.com/chazu/kestrel/compiler"
	"github.com/chazu/kestrel/metrics"
	"github.com/chazu/kestrel/stdlib"
	"github.com/chazu/kestrel/vm"
)

var log = commonlog.GetLogger("kestrel")

// Options configures compilation and execution. The zero value compiles
// against the standard modules and runs with default VM limits.
type Options struct {
	// Name names the top-level function, usually the source file.
	Name string
	// Modules are the native modules programs may import. Nil means
	// stdlib.Registry().
	Modules *vm.Registry
	// MaxDiagnostics caps collected diagnostics. Negative means unlimited.
	MaxDiagnostics int
	// OmitSymbols drops debug symbols from compiled functions.
	OmitSymbols bool

	// VM configures execution. Its Modules field is replaced by Modules.
	VM vm.Options

	// Cache, when set, is consulted before compiling and filled after.
	Cache *cache.Store
	// Metrics, when set, records compilations, executions and cache lookups.
	Metrics *metrics.Collector
}

func (o *Options) modules() *vm.Registry {
	if o.Modules == nil {
		o.Modules = stdlib.Registry()
	}
	return o.Modules
}

// cacheKey identifies the compiled form of source under these options.
func (o *Options) cacheKey(source string) string {
	return cache.Key(source,
		o.Name,
		strings.Join(o.modules().Names(), ","),
		strconv.FormatBool(o.OmitSymbols))
}

// Compile compiles source. On failure the error is a compiler.Diagnostics
// batch holding every diagnostic collected for the unit.
func Compile(source string, opts Options) (*vm.Function, error) {
	modules := opts.modules()

	var key string
	if opts.Cache != nil {
		key = opts.cacheKey(source)
		fn, ok, err := opts.Cache.Get(key)
		if err != nil {
			log.Warningf("image cache lookup failed: %s", err)
		}
		if opts.Metrics != nil {
			opts.Metrics.ObserveCacheLookup(ok)
		}
		if ok {
			return fn, nil
		}
	}

	start := time.Now()
	fn, err := compiler.Compile(source, compiler.Options{
		Name:           opts.Name,
		Modules:        modules,
		MaxDiagnostics: opts.MaxDiagnostics,
		OmitSymbols:    opts.OmitSymbols,
	})
	if opts.Metrics != nil {
		var ids []string
		if diags, ok := compiler.AsDiagnostics(err); ok {
			for _, d := range diags {
				ids = append(ids, d.MessageID)
			}
		}
		opts.Metrics.ObserveCompile(time.Since(start), ids)
	}
	if err != nil {
		return nil, err
	}

	if opts.Cache != nil {
		if err := opts.Cache.Put(key, fn.Name, fn); err != nil {
			log.Warningf("image cache store failed: %s", err)
		}
	}
	return fn, nil
}

// Execute runs fn on a new VM and returns its exit value.
func Execute(fn *vm.Function, opts Options) (vm.Value, error) {
	vmOpts := opts.VM
	vmOpts.Modules = opts.modules()
	machine := vm.New(vmOpts)

	start := time.Now()
	result, err := machine.Execute(fn)
	if opts.Metrics != nil {
		opts.Metrics.ObserveExecute(time.Since(start), machine.Instructions(), err)
	}
	stats := machine.LastSweep()
	log.Debugf("%s: %d instructions, sweep retained %d released %d",
		fn.Name, machine.Instructions(), stats.Retained, stats.Released)
	return result, err
}

// Run compiles and executes source.
func Run(source string, opts Options) (vm.Value, error) {
	fn, err := Compile(source, opts)
	if err != nil {
		return vm.Null, err
	}
	return Execute(fn, opts)
}

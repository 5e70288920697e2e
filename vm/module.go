package vm

import (
	"fmt"
	"sort"

	"github.com/chazu/kestrel/types"
)

// ---------------------------------------------------------------------------
// Native module registration
// ---------------------------------------------------------------------------

// CompileScope is the compile-time view a module declares itself into.
type CompileScope interface {
	// Types returns the arena of the compilation unit.
	Types() *types.Arena
	// DeclareGlobal makes a const global with the given type visible.
	DeclareGlobal(name string, t types.Type)
	// DeclareArrayMethod makes a method visible on every array value.
	DeclareArrayMethod(name string, t types.Type)
}

// Module is a native library that can be imported by name.
type Module interface {
	Name() string
	// Declare registers the module's globals and their types for the compiler.
	Declare(scope CompileScope)
	// Install binds the module's callables into a VM.
	Install(vm *VM) error
}

// Registry holds the modules available to import.
type Registry struct {
	modules map[string]Module
}

// NewRegistry creates a registry holding the given modules.
func NewRegistry(mods ...Module) *Registry {
	r := &Registry{modules: make(map[string]Module)}
	for _, m := range mods {
		r.Register(m)
	}
	return r
}

// Register adds or replaces a module.
func (r *Registry) Register(m Module) {
	r.modules[m.Name()] = m
}

// Lookup finds a module by name.
func (r *Registry) Lookup(name string) (Module, bool) {
	if r == nil {
		return nil, false
	}
	m, ok := r.modules[name]
	return m, ok
}

// Names returns the registered module names in sorted order.
func (r *Registry) Names() []string {
	if r == nil {
		return nil
	}
	names := make([]string, 0, len(r.modules))
	for n := range r.modules {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Restrict returns a registry containing only the named modules.
func (r *Registry) Restrict(names []string) (*Registry, error) {
	out := NewRegistry()
	for _, n := range names {
		m, ok := r.Lookup(n)
		if !ok {
			return nil, fmt.Errorf("unknown module %q", n)
		}
		out.Register(m)
	}
	return out, nil
}

// ---------------------------------------------------------------------------
// Runtime environment hooks used by Module.Install
// ---------------------------------------------------------------------------

// DefineNative installs a native function as a global.
func (vm *VM) DefineNative(name string, arity int, fn NativeFunc) {
	n := &Native{Name: name, Arity: arity, Fn: fn}
	vm.heap.track(n)
	vm.globals[name] = FromObject(n)
}

// DefineGlobal installs an arbitrary global value.
func (vm *VM) DefineGlobal(name string, v Value) {
	vm.globals[name] = v
}

// DefineArrayMethod installs a native method shared by every array.
func (vm *VM) DefineArrayMethod(name string, arity int, fn NativeFunc) {
	n := &Native{Name: name, Arity: arity, Fn: fn}
	vm.heap.track(n)
	vm.arrayMethods[name] = n
}

// importModule runs a module's runtime hook once per VM.
func (vm *VM) importModule(name string) error {
	if vm.imported[name] {
		return nil
	}
	m, ok := vm.modules.Lookup(name)
	if !ok {
		return vm.runtimeError(ErrUnknownModule, "unknown module %q", name)
	}
	if err := m.Install(vm); err != nil {
		return vm.wrapNativeError(fmt.Errorf("import %s: %w", name, err))
	}
	vm.imported[name] = true
	return nil
}

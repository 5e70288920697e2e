package stdlib

import (
	"errors"
	"fmt"
	"io"

	"github.com/chazu/kestrel/types"
	"github.com/chazu/kestrel/vm"
)

// System is the "system" module: console output and input plus value
// introspection.
type System struct{}

func (System) Name() string { return "system" }

func (System) Declare(scope vm.CompileScope) {
	a := scope.Types()
	value := types.Field{Name: "value", Type: types.TUnknown}
	scope.DeclareGlobal("print", a.NativeFunc(types.TNull, value))
	scope.DeclareGlobal("println", a.NativeFunc(types.TNull, value))
	scope.DeclareGlobal("input", a.NativeFunc(types.Of(types.String|types.Null)))
	scope.DeclareGlobal("typeOf", a.NativeFunc(types.TString, value))
	scope.DeclareGlobal("toString", a.NativeFunc(types.TString, value))
}

func (System) Install(m *vm.VM) error {
	m.DefineNative("print", 1, func(m *vm.VM, args []vm.Value) (vm.Value, error) {
		_, err := fmt.Fprint(m.Stdout(), args[1].String())
		return vm.Null, err
	})
	m.DefineNative("println", 1, func(m *vm.VM, args []vm.Value) (vm.Value, error) {
		_, err := fmt.Fprintln(m.Stdout(), args[1].String())
		return vm.Null, err
	})
	m.DefineNative("input", 0, func(m *vm.VM, _ []vm.Value) (vm.Value, error) {
		line, err := m.ReadLine()
		if errors.Is(err, io.EOF) {
			return vm.Null, nil
		}
		if err != nil {
			return vm.Null, fmt.Errorf("input: %w", err)
		}
		return m.NewString(line), nil
	})
	m.DefineNative("typeOf", 1, func(m *vm.VM, args []vm.Value) (vm.Value, error) {
		return m.NewString(args[1].TypeName()), nil
	})
	m.DefineNative("toString", 1, func(m *vm.VM, args []vm.Value) (vm.Value, error) {
		return m.NewString(args[1].String()), nil
	})
	log.Debug("installed system")
	return nil
}

// Package stdlib provides the native modules Kestrel programs can import.
//
// Each module declares the static types of its globals to the compiler
// and installs the matching natives into a VM on first import.
package stdlib

import (
	"github.com/tliron/commonlog"

	"github.com/chazu/kestrel/vm"
)

var log = commonlog.GetLogger("kestrel.stdlib")

// Registry returns a registry holding every standard module.
func Registry() *vm.Registry {
	return vm.NewRegistry(System{}, NewTime(), Array{})
}

// ---------------------------------------------------------------------------
// Argument helpers
// ---------------------------------------------------------------------------

// Natives receive the receiver or callee in args[0]; call arguments start
// at index 1, which is also the index reported in argument errors.

func numberArg(native string, args []vm.Value, i int) (float64, error) {
	if !args[i].IsNumber() {
		return 0, vm.ArgError(native, i, "number", args[i])
	}
	return args[i].AsNumber(), nil
}

func stringArg(native string, args []vm.Value, i int) (string, error) {
	s, ok := args[i].AsString()
	if !ok {
		return "", vm.ArgError(native, i, "string", args[i])
	}
	return s, nil
}

func arrayReceiver(native string, args []vm.Value) (*vm.Array, error) {
	a, ok := args[0].AsObject().(*vm.Array)
	if !ok {
		return nil, vm.ArgError(native, 0, "array", args[0])
	}
	return a, nil
}

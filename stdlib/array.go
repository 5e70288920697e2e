package stdlib

import (
	"fmt"
	"strings"

	"github.com/chazu/kestrel/types"
	"github.com/chazu/kestrel/vm"
)

// Array is the "array" module. It adds methods to every array value and
// the global range.
type Array struct{}

func (Array) Name() string { return "array" }

func (Array) Declare(scope vm.CompileScope) {
	a := scope.Types()
	value := types.Field{Name: "value", Type: types.TUnknown}
	scope.DeclareArrayMethod("push", a.NativeFunc(types.TNumber, value))
	scope.DeclareArrayMethod("pop", a.NativeFunc(types.TUnknown))
	scope.DeclareArrayMethod("size", a.NativeFunc(types.TNumber))
	scope.DeclareArrayMethod("contains", a.NativeFunc(types.TBool, value))
	scope.DeclareArrayMethod("join", a.NativeFunc(types.TString, types.Field{Name: "separator", Type: types.TString}))
	scope.DeclareGlobal("range", a.NativeFunc(types.Of(types.Array), types.Field{Name: "n", Type: types.TNumber}))
}

func (Array) Install(m *vm.VM) error {
	m.DefineArrayMethod("push", 1, arrayPush)
	m.DefineArrayMethod("pop", 0, arrayPop)
	m.DefineArrayMethod("size", 0, arraySize)
	m.DefineArrayMethod("contains", 1, arrayContains)
	m.DefineArrayMethod("join", 1, arrayJoin)
	m.DefineNative("range", 1, arrayRange)
	log.Debug("installed array")
	return nil
}

// arrayPush appends a value and returns the new size.
func arrayPush(_ *vm.VM, args []vm.Value) (vm.Value, error) {
	a, err := arrayReceiver("push", args)
	if err != nil {
		return vm.Null, err
	}
	a.Elements = append(a.Elements, args[1])
	return vm.Number(float64(len(a.Elements))), nil
}

// arrayPop removes and returns the last element.
func arrayPop(_ *vm.VM, args []vm.Value) (vm.Value, error) {
	a, err := arrayReceiver("pop", args)
	if err != nil {
		return vm.Null, err
	}
	n := len(a.Elements)
	if n == 0 {
		return vm.Null, &vm.NativeError{MessageID: vm.ErrIndexOutOfRange, Message: "pop: array is empty"}
	}
	v := a.Elements[n-1]
	a.Elements[n-1] = vm.Null
	a.Elements = a.Elements[:n-1]
	return v, nil
}

func arraySize(_ *vm.VM, args []vm.Value) (vm.Value, error) {
	a, err := arrayReceiver("size", args)
	if err != nil {
		return vm.Null, err
	}
	return vm.Number(float64(len(a.Elements))), nil
}

func arrayContains(_ *vm.VM, args []vm.Value) (vm.Value, error) {
	a, err := arrayReceiver("contains", args)
	if err != nil {
		return vm.Null, err
	}
	for _, e := range a.Elements {
		if e.Equals(args[1]) {
			return vm.True, nil
		}
	}
	return vm.False, nil
}

func arrayJoin(m *vm.VM, args []vm.Value) (vm.Value, error) {
	a, err := arrayReceiver("join", args)
	if err != nil {
		return vm.Null, err
	}
	sep, err := stringArg("join", args, 1)
	if err != nil {
		return vm.Null, err
	}
	parts := make([]string, len(a.Elements))
	for i, e := range a.Elements {
		parts[i] = e.String()
	}
	return m.NewString(strings.Join(parts, sep)), nil
}

// arrayRange returns [0, 1, ..., n-1].
func arrayRange(m *vm.VM, args []vm.Value) (vm.Value, error) {
	n, err := numberArg("range", args, 1)
	if err != nil {
		return vm.Null, err
	}
	count := int(n)
	if float64(count) != n || count < 0 {
		return vm.Null, &vm.NativeError{
			MessageID: vm.ErrTypeError,
			Message:   fmt.Sprintf("range: argument 1 must be a non-negative integer, got %s", vm.FormatNumber(n)),
		}
	}
	elems := make([]vm.Value, count)
	for i := range elems {
		elems[i] = vm.Number(float64(i))
	}
	return vm.FromObject(m.NewArray(elems)), nil
}

package stdlib

import (
	"time"

	"github.com/chazu/kestrel/types"
	"github.com/chazu/kestrel/vm"
)

// Time is the "time" module: a monotonic clock, wall-clock time and
// sleeping. Now and Sleep may be replaced, mostly for tests.
type Time struct {
	Now   func() time.Time
	Sleep func(time.Duration)
}

// NewTime returns a Time module backed by the system clock.
func NewTime() *Time {
	return &Time{Now: time.Now, Sleep: time.Sleep}
}

func (*Time) Name() string { return "time" }

func (*Time) Declare(scope vm.CompileScope) {
	a := scope.Types()
	scope.DeclareGlobal("clock", a.NativeFunc(types.TNumber))
	scope.DeclareGlobal("now", a.NativeFunc(types.TNumber))
	scope.DeclareGlobal("sleep", a.NativeFunc(types.TNull, types.Field{Name: "ms", Type: types.TNumber}))
}

// Install binds the natives. clock counts seconds from the import, now
// is Unix time in milliseconds.
func (t *Time) Install(m *vm.VM) error {
	start := t.Now()
	m.DefineNative("clock", 0, func(*vm.VM, []vm.Value) (vm.Value, error) {
		return vm.Number(t.Now().Sub(start).Seconds()), nil
	})
	m.DefineNative("now", 0, func(*vm.VM, []vm.Value) (vm.Value, error) {
		return vm.Number(float64(t.Now().UnixMilli())), nil
	})
	m.DefineNative("sleep", 1, func(_ *vm.VM, args []vm.Value) (vm.Value, error) {
		ms, err := numberArg("sleep", args, 1)
		if err != nil {
			return vm.Null, err
		}
		if ms > 0 {
			t.Sleep(time.Duration(ms * float64(time.Millisecond)))
		}
		return vm.Null, nil
	})
	log.Debug("installed time")
	return nil
}

package vm

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"runtime"
	"strings"

	"github.com/tliron/commonlog"
)

var log = commonlog.GetLogger("kestrel.vm")

// Defaults used when Options leave a field zero.
const (
	DefaultInitialStack = 256
	DefaultMaxFrames    = 1024
)

// Options configures a VM.
type Options struct {
	InitialStack int       // initial value stack capacity
	MaxFrames    int       // call depth limit
	Trace        bool      // log every executed instruction at debug level
	Modules      *Registry // modules available to import
	Stdout       io.Writer // output used by natives, os.Stdout if nil
	Stdin        io.Reader // input used by natives, os.Stdin if nil
}

// ---------------------------------------------------------------------------
// Call frames
// ---------------------------------------------------------------------------

// frame is the execution state of one function invocation.
type frame struct {
	closure *Closure
	ip      int // next instruction
	last    int // start of the instruction being executed
	base    int // stack slot of the callee; locals start here
}

func (f *frame) chunk() *Chunk {
	return f.closure.Function.Chunk
}

// ---------------------------------------------------------------------------
// VM
// ---------------------------------------------------------------------------

// VM executes Kestrel bytecode. A VM is single-threaded and owns its stack,
// globals, open upvalues and heap registry exclusively.
type VM struct {
	stack        []Value
	sp           int // next free slot
	frames       []frame
	globals      map[string]Value
	openUpvalues []*Upvalue // ordered by ascending stack slot
	arrayMethods map[string]*Native
	modules      *Registry
	imported     map[string]bool
	heap         *heap
	opts         Options
	stdout       io.Writer
	stdin        *bufio.Reader

	instructions uint64
	sweep        SweepStats
}

// New creates a VM.
func New(opts Options) *VM {
	if opts.InitialStack <= 0 {
		opts.InitialStack = DefaultInitialStack
	}
	if opts.MaxFrames <= 0 {
		opts.MaxFrames = DefaultMaxFrames
	}
	vm := &VM{
		stack:        make([]Value, opts.InitialStack),
		frames:       make([]frame, 0, 16),
		globals:      make(map[string]Value),
		arrayMethods: make(map[string]*Native),
		modules:      opts.Modules,
		imported:     make(map[string]bool),
		heap:         newHeap(),
		opts:         opts,
		stdout:       opts.Stdout,
	}
	if vm.stdout == nil {
		vm.stdout = os.Stdout
	}
	in := opts.Stdin
	if in == nil {
		in = os.Stdin
	}
	vm.stdin = bufio.NewReader(in)
	return vm
}

// Stdout returns the writer natives print to.
func (vm *VM) Stdout() io.Writer { return vm.stdout }

// ReadLine reads one line of input without the trailing newline.
func (vm *VM) ReadLine() (string, error) {
	line, err := vm.stdin.ReadString('\n')
	if err != nil && (err != io.EOF || line == "") {
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}

// Instructions returns the number of instructions executed so far.
func (vm *VM) Instructions() uint64 { return vm.instructions }

// LastSweep returns the statistics of the most recent teardown sweep.
func (vm *VM) LastSweep() SweepStats { return vm.sweep }

// HeapSize returns the number of objects the VM currently owns.
func (vm *VM) HeapSize() int { return vm.heap.Len() }

// Track registers an object allocated by a native with the VM heap.
func (vm *VM) Track(o Object) Value {
	vm.heap.track(o)
	return FromObject(o)
}

// NewArray allocates a tracked array sharing the VM's array methods.
func (vm *VM) NewArray(elems []Value) *Array {
	a := &Array{Elements: elems, Methods: vm.arrayMethods}
	vm.heap.track(a)
	return a
}

// NewString allocates a tracked string.
func (vm *VM) NewString(s string) Value {
	return vm.Track(&String{Value: s})
}

// ---------------------------------------------------------------------------
// Stack operations
// ---------------------------------------------------------------------------

// stackUnderflow is raised by pop/peek and turned into a RuntimeError by run.
type stackUnderflow struct{}

func (vm *VM) push(v Value) {
	if vm.sp >= len(vm.stack) {
		grown := make([]Value, len(vm.stack)*2)
		copy(grown, vm.stack)
		vm.stack = grown
	}
	vm.stack[vm.sp] = v
	vm.sp++
}

func (vm *VM) pop() Value {
	if vm.sp <= 0 {
		panic(stackUnderflow{})
	}
	vm.sp--
	v := vm.stack[vm.sp]
	vm.stack[vm.sp] = Null
	return v
}

func (vm *VM) peek(distance int) Value {
	if vm.sp-1-distance < 0 {
		panic(stackUnderflow{})
	}
	return vm.stack[vm.sp-1-distance]
}

func (vm *VM) drop(n int) {
	if vm.sp < n {
		panic(stackUnderflow{})
	}
	for i := vm.sp - n; i < vm.sp; i++ {
		vm.stack[i] = Null
	}
	vm.sp -= n
}

// ---------------------------------------------------------------------------
// Errors
// ---------------------------------------------------------------------------

func (vm *VM) runtimeError(id, format string, args ...any) *RuntimeError {
	err := &RuntimeError{MessageID: id, Message: fmt.Sprintf(format, args...)}
	for i := len(vm.frames) - 1; i >= 0; i-- {
		f := &vm.frames[i]
		sym, ok := f.chunk().SymbolAt(f.last)
		name := f.closure.Function.Name
		if name == "" {
			name = "<anonymous>"
		}
		if ok {
			if i == len(vm.frames)-1 {
				err.Line, err.Column, err.Token = sym.Line, sym.Column, sym.Token
			}
			err.Trace = append(err.Trace, fmt.Sprintf("%s at %d:%d", name, sym.Line, sym.Column))
		} else {
			err.Trace = append(err.Trace, name)
		}
	}
	return err
}

func (vm *VM) wrapNativeError(err error) *RuntimeError {
	if re, ok := err.(*RuntimeError); ok {
		return re
	}
	id := ErrNativeError
	var ne *NativeError
	if errors.As(err, &ne) {
		id = ne.MessageID
	}
	re := vm.runtimeError(id, "%s", err.Error())
	re.Err = err
	return re
}

// ---------------------------------------------------------------------------
// Execution
// ---------------------------------------------------------------------------

// Execute runs a compiled top-level function and returns its exit value.
// Globals and imported modules persist across calls on the same VM.
func (vm *VM) Execute(fn *Function) (Value, error) {
	vm.frames = vm.frames[:0]
	vm.sp = 0
	vm.openUpvalues = vm.openUpvalues[:0]

	main := &Closure{Function: fn}
	vm.heap.track(main)
	vm.push(FromObject(main))
	if err := vm.call(FromObject(main), 0); err != nil {
		return Null, err
	}

	result, err := vm.run()
	vm.halt(result)
	if err != nil {
		log.Debugf("execution of %s failed after %d instructions: %s", fn.Name, vm.instructions, err)
		return Null, err
	}
	log.Debugf("execution of %s finished after %d instructions", fn.Name, vm.instructions)
	return result, nil
}

// halt sweeps the heap from the exit value, globals, remaining stack and
// open upvalues, then resets execution state.
func (vm *VM) halt(exit Value) {
	roots := make([]Value, 0, len(vm.globals)+vm.sp+1)
	roots = append(roots, exit)
	for _, v := range vm.globals {
		roots = append(roots, v)
	}
	roots = append(roots, vm.stack[:vm.sp]...)
	for _, n := range vm.arrayMethods {
		roots = append(roots, FromObject(n))
	}
	vm.sweep = vm.heap.sweep(roots, vm.openUpvalues, vm.stack[:vm.sp])
	log.Debugf("heap sweep: allocated=%d released=%d retained=%d",
		vm.sweep.Allocated, vm.sweep.Released, vm.sweep.Retained)

	vm.closeUpvalues(0)
	vm.drop(vm.sp)
	vm.frames = vm.frames[:0]
}

// call invokes callee with argc arguments already on the stack above it.
func (vm *VM) call(callee Value, argc int) error {
	base := vm.sp - argc - 1
	switch fn := callee.AsObject().(type) {
	case *Closure:
		if argc != fn.Function.Arity() {
			return vm.runtimeError(ErrArityMismatch, "%s expects %d arguments, got %d",
				fn.Function, fn.Function.Arity(), argc)
		}
		if len(vm.frames) >= vm.opts.MaxFrames {
			return vm.runtimeError(ErrStackOverflow, "call depth exceeds %d frames", vm.opts.MaxFrames)
		}
		if !fn.Receiver.IsNull() {
			vm.stack[base] = fn.Receiver
		}
		vm.frames = append(vm.frames, frame{closure: fn, base: base})
		return nil

	case *Native:
		if fn.Arity >= 0 && argc != fn.Arity {
			return vm.runtimeError(ErrArityMismatch, "%s expects %d arguments, got %d", fn.Name, fn.Arity, argc)
		}
		args := make([]Value, argc+1)
		copy(args, vm.stack[base:vm.sp])
		if !fn.Receiver.IsNull() {
			args[0] = fn.Receiver
		}
		result, err := fn.Fn(vm, args)
		if err != nil {
			return vm.wrapNativeError(err)
		}
		vm.drop(vm.sp - base)
		vm.push(result)
		return nil
	}
	return vm.runtimeError(ErrNotCallable, "cannot call a value of type %s", callee.TypeName())
}

// run is the fetch-decode-dispatch loop. It returns when the outermost
// frame returns or a runtime error is raised.
func (vm *VM) run() (result Value, err error) {
	defer func() {
		switch r := recover().(type) {
		case nil:
		case stackUnderflow:
			result, err = Null, vm.runtimeError(ErrStackUnderflow, "stack underflow")
		case runtime.Error:
			// Unverified code reaching outside the stack or a table.
			result, err = Null, vm.runtimeError(ErrInvalidBytecode, "%v", r)
		default:
			panic(r)
		}
	}()

	f := &vm.frames[len(vm.frames)-1]
	for {
		chunk := f.chunk()
		code := chunk.Code
		if f.ip >= len(code) {
			vm.push(Null)
			if done, res := vm.doReturn(); done {
				return res, nil
			}
			f = &vm.frames[len(vm.frames)-1]
			continue
		}

		f.last = f.ip
		op := Opcode(code[f.ip])
		operand, next := chunk.ReadOperand(op, f.ip)
		f.ip = next
		vm.instructions++
		if vm.opts.Trace {
			log.Debugf("%s %04d %-18s %d sp=%d", f.closure.Function, f.last, op, operand, vm.sp)
		}

		switch op {
		case OpPop:
			vm.pop()
		case OpPopN:
			vm.drop(operand)
		case OpDup:
			vm.push(vm.peek(0))
		case OpDup2:
			a, b := vm.peek(1), vm.peek(0)
			vm.push(a)
			vm.push(b)

		case OpConstant, OpConstantLong:
			vm.push(chunk.Constants[operand])
		case OpNull:
			vm.push(Null)
		case OpTrue:
			vm.push(True)
		case OpFalse:
			vm.push(False)

		case OpGetLocal, OpGetLocalLong:
			vm.push(vm.stack[f.base+operand])
		case OpGetLocal0, OpGetLocal1, OpGetLocal2, OpGetLocal3:
			vm.push(vm.stack[f.base+int(op-OpGetLocal0)])
		case OpSetLocal, OpSetLocalLong:
			vm.stack[f.base+operand] = vm.peek(0)
		case OpSetLocal0, OpSetLocal1, OpSetLocal2, OpSetLocal3:
			vm.stack[f.base+int(op-OpSetLocal0)] = vm.peek(0)

		case OpGetUpvalue, OpGetUpvalueLng:
			vm.push(vm.upvalueGet(f.closure.Upvalues[operand]))
		case OpSetUpvalue, OpSetUpvalueLng:
			vm.upvalueSet(f.closure.Upvalues[operand], vm.peek(0))
		case OpCloseUpvalue:
			vm.closeUpvalues(vm.sp - 1)
			vm.pop()

		case OpDefineGlobal, OpDefineGlobalLong:
			name := constantName(chunk, operand)
			vm.globals[name] = vm.pop()
		case OpGetGlobal, OpGetGlobalLong:
			name := constantName(chunk, operand)
			v, ok := vm.globals[name]
			if !ok {
				return Null, vm.runtimeError(ErrUndefinedGlobal, "undefined global %q", name)
			}
			vm.push(v)
		case OpSetGlobal, OpSetGlobalLong:
			name := constantName(chunk, operand)
			if _, ok := vm.globals[name]; !ok {
				return Null, vm.runtimeError(ErrUndefinedGlobal, "undefined global %q", name)
			}
			vm.globals[name] = vm.peek(0)

		case OpAdd, OpSub, OpMul, OpDiv, OpMod, OpPow,
			OpLess, OpLessEqual, OpGreater, OpGreaterEqual:
			b := vm.pop()
			a := vm.pop()
			v, err := vm.binary(op, a, b)
			if err != nil {
				return Null, err
			}
			vm.push(v)
		case OpEqual:
			b := vm.pop()
			vm.push(Bool(vm.pop().Equals(b)))
		case OpNotEqual:
			b := vm.pop()
			vm.push(Bool(!vm.pop().Equals(b)))
		case OpAnd:
			b := vm.pop()
			a := vm.pop()
			vm.push(Bool(a.Truthy() && b.Truthy()))
		case OpOr:
			b := vm.pop()
			a := vm.pop()
			vm.push(Bool(a.Truthy() || b.Truthy()))
		case OpNot:
			vm.push(Bool(!vm.pop().Truthy()))
		case OpNegate:
			v := vm.pop()
			if !v.IsNumber() {
				return Null, vm.runtimeError(ErrTypeError, "cannot negate %s", v.TypeName())
			}
			vm.push(Number(-v.AsNumber()))

		case OpJump, OpJumpLong:
			f.ip += operand
		case OpJumpIfFalse, OpJumpIfFalseLong:
			if !vm.pop().Truthy() {
				f.ip += operand
			}
		case OpLoop, OpLoopLong:
			f.ip -= operand

		case OpCall, OpCall0, OpCall1, OpCall2, OpCall3:
			argc := operand
			if op != OpCall {
				argc = int(op - OpCall0)
			}
			if err := vm.call(vm.peek(argc), argc); err != nil {
				return Null, err
			}
			f = &vm.frames[len(vm.frames)-1]

		case OpClosure, OpClosureLong:
			fn, ok := chunk.Constants[operand].AsObject().(*Function)
			if !ok {
				return Null, vm.runtimeError(ErrTypeError, "closure operand is not a function")
			}
			cl := &Closure{Function: fn, Upvalues: make([]*Upvalue, fn.UpvalueCount)}
			for i := range cl.Upvalues {
				isLocal, index := decodeUpvalue(code[f.ip:])
				f.ip += UpvalueDescriptorSize
				if isLocal {
					cl.Upvalues[i] = vm.captureUpvalue(f.base + index)
				} else {
					cl.Upvalues[i] = f.closure.Upvalues[index]
				}
			}
			vm.push(vm.Track(cl))

		case OpReturn:
			if done, res := vm.doReturn(); done {
				return res, nil
			}
			f = &vm.frames[len(vm.frames)-1]

		case OpImport, OpImportLong:
			if err := vm.importModule(constantName(chunk, operand)); err != nil {
				return Null, err
			}

		case OpNewTable:
			vm.push(vm.Track(NewTable()))
		case OpNewArray, OpNewArrayLong:
			if operand > vm.sp {
				panic(stackUnderflow{})
			}
			elems := make([]Value, operand)
			copy(elems, vm.stack[vm.sp-operand:vm.sp])
			vm.drop(operand)
			vm.push(FromObject(vm.NewArray(elems)))
		case OpGetProperty, OpGetPropertyLong:
			v, err := vm.getProperty(vm.pop(), constantName(chunk, operand))
			if err != nil {
				return Null, err
			}
			vm.push(v)
		case OpSetProperty, OpSetPropertyLong:
			v := vm.pop()
			obj := vm.pop()
			if err := vm.setProperty(obj, constantName(chunk, operand), v); err != nil {
				return Null, err
			}
			vm.push(v)
		case OpGetIndex:
			idx := vm.pop()
			v, err := vm.getIndex(vm.pop(), idx)
			if err != nil {
				return Null, err
			}
			vm.push(v)
		case OpSetIndex:
			v := vm.pop()
			idx := vm.pop()
			if err := vm.setIndex(vm.pop(), idx, v); err != nil {
				return Null, err
			}
			vm.push(v)

		default:
			return Null, vm.runtimeError(ErrTypeError, "invalid opcode 0x%02x", byte(op))
		}
	}
}

// doReturn pops the current frame. It reports whether the outermost frame
// returned, together with the exit value.
func (vm *VM) doReturn() (bool, Value) {
	result := vm.pop()
	f := vm.frames[len(vm.frames)-1]
	vm.closeUpvalues(f.base)
	vm.drop(vm.sp - f.base)
	vm.frames = vm.frames[:len(vm.frames)-1]
	if len(vm.frames) == 0 {
		return true, result
	}
	vm.push(result)
	return false, Null
}

func constantName(c *Chunk, idx int) string {
	s, _ := c.Constants[idx].AsString()
	return s
}

// ---------------------------------------------------------------------------
// Operators
// ---------------------------------------------------------------------------

func (vm *VM) binary(op Opcode, a, b Value) (Value, error) {
	if a.IsNumber() && b.IsNumber() {
		x, y := a.AsNumber(), b.AsNumber()
		switch op {
		case OpAdd:
			return Number(x + y), nil
		case OpSub:
			return Number(x - y), nil
		case OpMul:
			return Number(x * y), nil
		case OpDiv:
			return Number(x / y), nil
		case OpMod:
			return Number(math.Mod(x, y)), nil
		case OpPow:
			return Number(math.Pow(x, y)), nil
		case OpLess:
			return Bool(x < y), nil
		case OpLessEqual:
			return Bool(x <= y), nil
		case OpGreater:
			return Bool(x > y), nil
		case OpGreaterEqual:
			return Bool(x >= y), nil
		}
	}

	if op == OpAdd && (a.IsString() || b.IsString()) {
		return vm.NewString(concatPart(a) + concatPart(b)), nil
	}

	if as, ok := a.AsString(); ok {
		if bs, ok := b.AsString(); ok {
			switch op {
			case OpLess:
				return Bool(as < bs), nil
			case OpLessEqual:
				return Bool(as <= bs), nil
			case OpGreater:
				return Bool(as > bs), nil
			case OpGreaterEqual:
				return Bool(as >= bs), nil
			}
		}
	}
	return Null, vm.runtimeError(ErrTypeError, "unsupported operands for %s: %s and %s",
		op, a.TypeName(), b.TypeName())
}

// ---------------------------------------------------------------------------
// Properties and indexing
// ---------------------------------------------------------------------------

// bindMethod binds callables read from an object to that object.
func (vm *VM) bindMethod(obj, v Value) Value {
	switch fn := v.AsObject().(type) {
	case *Closure:
		return vm.Track(fn.Bind(obj))
	case *Native:
		return vm.Track(fn.Bind(obj))
	}
	return v
}

func (vm *VM) getProperty(obj Value, name string) (Value, error) {
	switch o := obj.AsObject().(type) {
	case *Table:
		v, ok := o.Fields[name]
		if !ok {
			return Null, vm.runtimeError(ErrUnknownProperty, "table has no property %q", name)
		}
		return vm.bindMethod(obj, v), nil
	case *Array:
		m, ok := o.Methods[name]
		if !ok {
			return Null, vm.runtimeError(ErrUnknownProperty, "array has no method %q", name)
		}
		return vm.bindMethod(obj, FromObject(m)), nil
	}
	return Null, vm.runtimeError(ErrTypeError, "cannot read property %q of %s", name, obj.TypeName())
}

func (vm *VM) setProperty(obj Value, name string, v Value) error {
	t, ok := obj.AsObject().(*Table)
	if !ok {
		return vm.runtimeError(ErrTypeError, "cannot set property %q on %s", name, obj.TypeName())
	}
	t.Fields[name] = v
	return nil
}

func (vm *VM) arrayIndex(a *Array, idx Value) (int, error) {
	if !idx.IsNumber() {
		return 0, vm.runtimeError(ErrTypeError, "array index must be a number, got %s", idx.TypeName())
	}
	n := idx.AsNumber()
	i := int(n)
	if float64(i) != n || i < 0 || i >= len(a.Elements) {
		return 0, vm.runtimeError(ErrIndexOutOfRange, "index %s out of range [0, %d)", FormatNumber(n), len(a.Elements))
	}
	return i, nil
}

func (vm *VM) getIndex(obj, idx Value) (Value, error) {
	switch o := obj.AsObject().(type) {
	case *Array:
		i, err := vm.arrayIndex(o, idx)
		if err != nil {
			return Null, err
		}
		return o.Elements[i], nil
	case *Table:
		key, ok := idx.AsString()
		if !ok {
			return Null, vm.runtimeError(ErrTypeError, "table key must be a string, got %s", idx.TypeName())
		}
		v, ok := o.Fields[key]
		if !ok {
			return Null, vm.runtimeError(ErrUnknownProperty, "table has no property %q", key)
		}
		return v, nil
	case *String:
		if !idx.IsNumber() {
			return Null, vm.runtimeError(ErrTypeError, "string index must be a number, got %s", idx.TypeName())
		}
		i := int(idx.AsNumber())
		if float64(i) != idx.AsNumber() || i < 0 || i >= len(o.Value) {
			return Null, vm.runtimeError(ErrIndexOutOfRange, "index %s out of range [0, %d)", idx, len(o.Value))
		}
		return vm.NewString(o.Value[i : i+1]), nil
	}
	return Null, vm.runtimeError(ErrTypeError, "cannot index %s", obj.TypeName())
}

func (vm *VM) setIndex(obj, idx, v Value) error {
	switch o := obj.AsObject().(type) {
	case *Array:
		i, err := vm.arrayIndex(o, idx)
		if err != nil {
			return err
		}
		o.Elements[i] = v
		return nil
	case *Table:
		key, ok := idx.AsString()
		if !ok {
			return vm.runtimeError(ErrTypeError, "table key must be a string, got %s", idx.TypeName())
		}
		o.Fields[key] = v
		return nil
	}
	return vm.runtimeError(ErrTypeError, "cannot assign into %s", obj.TypeName())
}

package vm

import (
	"errors"
	"fmt"
	"strings"
)

// Runtime error message ids.
const (
	ErrStackUnderflow  = "stack-underflow"
	ErrNotCallable     = "not-callable"
	ErrArityMismatch   = "arity-mismatch"
	ErrTypeError       = "type-error"
	ErrUnknownProperty = "unknown-property"
	ErrIndexOutOfRange = "index-out-of-range"
	ErrNativeError     = "native-error"
	ErrUndefinedGlobal = "undefined-global"
	ErrStackOverflow   = "stack-overflow"
	ErrUnknownModule   = "unknown-module"
	ErrInvalidBytecode = "invalid-bytecode"
)

// RuntimeError is a fatal error raised while executing a program. Position
// fields are recovered from the faulting chunk's debug symbols when present.
type RuntimeError struct {
	MessageID string
	Message   string
	Line      int
	Column    int
	Token     string
	Trace     []string // innermost frame first
	Err       error    // underlying error from a native, if any
}

func (e *RuntimeError) Error() string {
	var sb strings.Builder
	if e.Line > 0 {
		fmt.Fprintf(&sb, "%d:%d: ", e.Line, e.Column)
	}
	fmt.Fprintf(&sb, "runtime error [%s]: %s", e.MessageID, e.Message)
	if e.Token != "" {
		fmt.Fprintf(&sb, " (at %q)", e.Token)
	}
	return sb.String()
}

func (e *RuntimeError) Unwrap() error { return e.Err }

// IsRuntimeError reports whether err is a RuntimeError with the given id.
func IsRuntimeError(err error, id string) bool {
	var re *RuntimeError
	return errors.As(err, &re) && re.MessageID == id
}

// NativeError lets a native function choose the message id of the runtime
// error it raises. Plain errors returned by natives become native-error.
type NativeError struct {
	MessageID string
	Message   string
}

func (e *NativeError) Error() string { return e.Message }

// ArgError reports a type-mismatched native argument.
func ArgError(native string, index int, want string, got Value) error {
	return &NativeError{
		MessageID: ErrTypeError,
		Message:   fmt.Sprintf("%s: argument %d must be %s, got %s", native, index, want, got.TypeName()),
	}
}

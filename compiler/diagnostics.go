package compiler

import (
	"errors"
	"fmt"
	"strings"
)

// ---------------------------------------------------------------------------
// Diagnostics
// ---------------------------------------------------------------------------

// Stage identifies which compiler phase produced a diagnostic.
type Stage string

const (
	StageParser   Stage = "parser"
	StageSemantic Stage = "semantic"
)

// Stable message ids. Tools match on these rather than on message text.
const (
	MsgUnexpectedToken         = "unexpected-token"
	MsgExpectedToken           = "expected-token"
	MsgIllegalCharacter        = "illegal-character"
	MsgInvalidNumber           = "invalid-number"
	MsgUnknownIdentifier       = "unknown-identifier"
	MsgUnknownType             = "unknown-type"
	MsgConstAssignment         = "const-assignment"
	MsgInvalidAssignmentTarget = "invalid-assignment-target"
	MsgTypeMismatch            = "type-mismatch"
	MsgArityMismatch           = "arity-mismatch"
	MsgTooManyArguments        = "too-many-arguments"
	MsgGlobalRedeclared        = "global-redeclared"
	MsgImportNotTopLevel       = "import-not-top-level"
	MsgUnknownModule           = "unknown-module"
	MsgUnknownProperty         = "unknown-property"
	MsgNotCallable             = "not-callable"
	MsgInvalidDeclaration      = "invalid-declaration"
	MsgInvalidExpression       = "invalid-expression"
	MsgUninitializedConst      = "uninitialized-const"
	MsgThisOutsideFunction     = "this-outside-function"
	MsgIncompatibleTypes       = "incompatible-types"
	MsgInvalidJump             = "invalid-jump"
)

// Diagnostic is a positioned compiler message.
type Diagnostic struct {
	Stage     Stage
	MessageID string
	Message   string
	Line      int
	Column    int
	Token     string
}

func (d *Diagnostic) Error() string {
	return fmt.Sprintf("%d:%d: %s [%s]", d.Line, d.Column, d.Message, d.MessageID)
}

// Diagnostics is the batch of diagnostics of one compilation unit.
type Diagnostics []*Diagnostic

func (ds Diagnostics) Error() string {
	switch len(ds) {
	case 0:
		return "no diagnostics"
	case 1:
		return ds[0].Error()
	}
	lines := make([]string, len(ds))
	for i, d := range ds {
		lines[i] = d.Error()
	}
	return fmt.Sprintf("%d diagnostics:\n%s", len(ds), strings.Join(lines, "\n"))
}

// Has reports whether any diagnostic carries id.
func (ds Diagnostics) Has(id string) bool {
	for _, d := range ds {
		if d.MessageID == id {
			return true
		}
	}
	return false
}

// AsDiagnostics extracts the diagnostics carried by err, if any.
func AsDiagnostics(err error) (Diagnostics, bool) {
	var ds Diagnostics
	if errors.As(err, &ds) {
		return ds, true
	}
	return nil, false
}

// Format renders d with the offending source line and a caret under the
// reported column.
func (d *Diagnostic) Format(filename, source string) string {
	var sb strings.Builder
	if filename == "" {
		filename = "<input>"
	}
	fmt.Fprintf(&sb, "error[%s]: %s\n", d.MessageID, d.Message)
	fmt.Fprintf(&sb, "  --> %s:%d:%d\n", filename, d.Line, d.Column)

	lines := strings.Split(source, "\n")
	if d.Line < 1 || d.Line > len(lines) {
		return sb.String()
	}
	text := strings.TrimRight(lines[d.Line-1], "\r")
	gutter := fmt.Sprintf("%d", d.Line)
	pad := strings.Repeat(" ", len(gutter))
	fmt.Fprintf(&sb, "%s |\n", pad)
	fmt.Fprintf(&sb, "%s | %s\n", gutter, text)

	width := len([]rune(d.Token))
	if width == 0 {
		width = 1
	}
	col := d.Column - 1
	if col < 0 {
		col = 0
	}
	fmt.Fprintf(&sb, "%s | %s%s\n", pad, strings.Repeat(" ", col), strings.Repeat("^", width))
	return sb.String()
}

// ---------------------------------------------------------------------------
// Collection
// ---------------------------------------------------------------------------

// diagnosticSink accumulates diagnostics up to a limit.
type diagnosticSink struct {
	list  Diagnostics
	limit int // zero means unlimited
	stage Stage
}

func (s *diagnosticSink) add(id string, tok Token, format string, args ...any) {
	if s.full() {
		return
	}
	s.list = append(s.list, &Diagnostic{
		Stage:     s.stage,
		MessageID: id,
		Message:   fmt.Sprintf(format, args...),
		Line:      tok.Line,
		Column:    tok.Column,
		Token:     tok.Lexeme,
	})
}

func (s *diagnosticSink) full() bool {
	return s.limit > 0 && len(s.list) >= s.limit
}

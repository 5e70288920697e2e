// Package compiler turns Kestrel source into bytecode for the vm package.
//
// Compilation runs in two passes over one unit: a Pratt parser builds an
// arena-allocated tree, then the assembler resolves names, checks types
// and emits code. All diagnostics of a pass are collected before the
// unit is rejected.
package compiler

import (
	"github.com/tliron/commonlog"

	"github.com/chazu/kestrel/vm"
)

var log = commonlog.GetLogger("kestrel.compiler")

// DefaultMaxDiagnostics is the diagnostic cap used when Options leaves it
// unset.
const DefaultMaxDiagnostics = 100

// Options configures a compilation.
type Options struct {
	// Name names the top-level function, usually the source file.
	Name string
	// Modules are the native modules import may name.
	Modules *vm.Registry
	// MaxDiagnostics caps collected diagnostics. Negative means unlimited.
	MaxDiagnostics int
	// OmitSymbols drops the debug symbol table.
	OmitSymbols bool
}

// Symbol describes a global of a compiled unit.
type Symbol struct {
	Name   string
	Type   string
	Const  bool
	Line   int
	Column int
}

// Unit is the result of analyzing one source text.
type Unit struct {
	Name        string
	Program     *Node
	Function    *vm.Function // nil when Diagnostics is not empty
	Diagnostics Diagnostics
	Globals     []Symbol
	Nodes       int // AST nodes allocated
}

// Analyze parses and compiles source, returning everything known about
// it. Semantic analysis is skipped when the source has syntax errors.
func Analyze(source string, opts Options) *Unit {
	if opts.Name == "" {
		opts.Name = "main"
	}
	limit := opts.MaxDiagnostics
	switch {
	case limit == 0:
		limit = DefaultMaxDiagnostics
	case limit < 0:
		limit = 0
	}

	p := NewParser(source)
	p.diags.limit = limit
	prog := p.ParseProgram()
	unit := &Unit{Name: opts.Name, Program: prog, Nodes: p.nodes.Len()}
	if diags := p.Diagnostics(); len(diags) > 0 {
		unit.Diagnostics = diags
		log.Debugf("compile %s: %d bytes, %d syntax diagnostics", opts.Name, len(source), len(diags))
		return unit
	}

	a := NewAssembler(opts.Modules, limit, !opts.OmitSymbols)
	fn := a.Assemble(prog, opts.Name)
	for _, v := range a.Globals() {
		unit.Globals = append(unit.Globals, Symbol{
			Name:   v.Name,
			Type:   a.arena.String(v.Type),
			Const:  v.Const,
			Line:   v.Token.Line,
			Column: v.Token.Column,
		})
	}
	unit.Diagnostics = a.Diagnostics()
	if len(unit.Diagnostics) == 0 {
		unit.Function = fn
	}
	log.Debugf("compile %s: %d bytes, %d nodes, %d diagnostics", opts.Name, len(source), unit.Nodes, len(unit.Diagnostics))
	return unit
}

// Compile compiles source into its top-level function. On failure the
// error is a Diagnostics batch.
func Compile(source string, opts Options) (*vm.Function, error) {
	unit := Analyze(source, opts)
	if len(unit.Diagnostics) > 0 {
		return nil, unit.Diagnostics
	}
	return unit.Function, nil
}

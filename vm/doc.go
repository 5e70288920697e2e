// Package vm implements the Kestrel virtual machine.
//
// This package contains:
//   - Tagged value representation and heap objects
//   - Bytecode opcodes, chunks and the listing assembler
//   - Stack interpreter with closures and upvalues
//   - Native module registry
//   - CBOR images for compiled programs
package vm

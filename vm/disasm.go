package vm

import (
	"encoding/binary"
	"fmt"
	"strconv"
	"strings"
)

// UpvalueDesc is one decoded closure upvalue descriptor.
type UpvalueDesc struct {
	IsLocal bool
	Index   int
}

// Instruction is one decoded instruction.
type Instruction struct {
	Offset   int
	Op       Opcode
	Operand  int
	Upvalues []UpvalueDesc // closure instructions only
}

// ---------------------------------------------------------------------------
// Decoding
// ---------------------------------------------------------------------------

// Decode splits a function's code into instructions.
func Decode(fn *Function) ([]Instruction, error) {
	c := fn.Chunk
	var out []Instruction
	for ip := 0; ip < len(c.Code); {
		op := Opcode(c.Code[ip])
		if !op.IsValid() {
			return out, fmt.Errorf("decode %s: invalid opcode 0x%02x at %d", fn, byte(op), ip)
		}
		if ip+op.Size() > len(c.Code) {
			return out, fmt.Errorf("decode %s: truncated %s at %d", fn, op, ip)
		}
		inst := Instruction{Offset: ip, Op: op}
		inst.Operand, ip = c.ReadOperand(op, ip)
		if op == OpClosure || op == OpClosureLong {
			if inst.Operand >= len(c.Constants) {
				return out, fmt.Errorf("decode %s: closure constant %d out of range", fn, inst.Operand)
			}
			nested, ok := c.Constants[inst.Operand].AsObject().(*Function)
			if !ok {
				return out, fmt.Errorf("decode %s: closure constant %d is not a function", fn, inst.Operand)
			}
			for i := 0; i < nested.UpvalueCount; i++ {
				if ip+UpvalueDescriptorSize > len(c.Code) {
					return out, fmt.Errorf("decode %s: truncated upvalue descriptor at %d", fn, ip)
				}
				isLocal, index := decodeUpvalue(c.Code[ip:])
				inst.Upvalues = append(inst.Upvalues, UpvalueDesc{IsLocal: isLocal, Index: index})
				ip += UpvalueDescriptorSize
			}
		}
		out = append(out, inst)
	}
	return out, nil
}

// Encode is the inverse of Decode.
func Encode(insts []Instruction) []byte {
	var b []byte
	for _, inst := range insts {
		b = append(b, byte(inst.Op))
		switch inst.Op.Size() {
		case 2:
			b = append(b, byte(inst.Operand))
		case 5:
			b = binary.LittleEndian.AppendUint32(b, uint32(inst.Operand))
		}
		for _, u := range inst.Upvalues {
			flag := byte(0)
			if u.IsLocal {
				flag = 1
			}
			b = append(b, flag)
			b = binary.LittleEndian.AppendUint32(b, uint32(u.Index))
		}
	}
	return b
}

// Functions returns fn and every function nested in its constants, depth
// first, in the order Disassemble lists them.
func Functions(fn *Function) []*Function {
	var out []*Function
	var walk func(*Function)
	walk = func(f *Function) {
		out = append(out, f)
		for _, c := range f.Chunk.Constants {
			if nested, ok := c.AsObject().(*Function); ok {
				walk(nested)
			}
		}
	}
	walk(fn)
	return out
}

// ---------------------------------------------------------------------------
// Verification
// ---------------------------------------------------------------------------

// Verify checks that every operand of fn and its nested functions refers
// to something that exists: constants, names, upvalues and jump targets.
// Code from the compiler always verifies; images read from disk may not.
func Verify(fn *Function) error {
	if fn.UpvalueCount != 0 {
		return fmt.Errorf("verify %s: entry function captures %d upvalues", fn, fn.UpvalueCount)
	}
	for _, f := range Functions(fn) {
		insts, err := Decode(f)
		if err != nil {
			return err
		}
		for _, inst := range insts {
			if err := verifyInstruction(f, inst); err != nil {
				return fmt.Errorf("verify %s: %s at %d: %w", f, inst.Op, inst.Offset, err)
			}
		}
	}
	return nil
}

func verifyInstruction(f *Function, inst Instruction) error {
	c := f.Chunk
	if usesConstant(inst.Op) {
		if inst.Operand >= len(c.Constants) {
			return fmt.Errorf("constant %d out of range (%d constants)", inst.Operand, len(c.Constants))
		}
		switch inst.Op.Info().Short {
		case OpDefineGlobal, OpGetGlobal, OpSetGlobal, OpImport, OpGetProperty, OpSetProperty:
			if _, ok := c.Constants[inst.Operand].AsString(); !ok {
				return fmt.Errorf("constant %d is not a name", inst.Operand)
			}
		}
	}

	end := inst.Offset + inst.Op.Size() + len(inst.Upvalues)*UpvalueDescriptorSize
	switch inst.Op.Info().Short {
	case OpGetUpvalue, OpSetUpvalue:
		if inst.Operand >= f.UpvalueCount {
			return fmt.Errorf("upvalue %d out of range (%d upvalues)", inst.Operand, f.UpvalueCount)
		}
	case OpJump, OpJumpIfFalse:
		if end+inst.Operand > len(c.Code) {
			return fmt.Errorf("jump target %d past end of code", end+inst.Operand)
		}
	case OpLoop:
		if end-inst.Operand < 0 {
			return fmt.Errorf("loop target %d before start of code", end-inst.Operand)
		}
	}
	for _, u := range inst.Upvalues {
		if !u.IsLocal && u.Index >= f.UpvalueCount {
			return fmt.Errorf("captured upvalue %d out of range (%d upvalues)", u.Index, f.UpvalueCount)
		}
	}
	return nil
}

// ---------------------------------------------------------------------------
// Disassembly
// ---------------------------------------------------------------------------

// Disassemble returns a human-readable listing of fn and its nested functions.
func Disassemble(fn *Function) (string, error) {
	var sb strings.Builder
	for i, f := range Functions(fn) {
		if i > 0 {
			sb.WriteString("\n")
		}
		if err := disassembleFunction(&sb, f); err != nil {
			return sb.String(), err
		}
	}
	return sb.String(), nil
}

func disassembleFunction(sb *strings.Builder, fn *Function) error {
	name := fn.Name
	if name == "" {
		name = "<anonymous>"
	}
	fmt.Fprintf(sb, "; === %s ===\n", name)
	if len(fn.Params) > 0 {
		params := make([]string, len(fn.Params))
		for i, p := range fn.Params {
			params[i] = p.Name
			if p.Type != "" {
				params[i] += ": " + p.Type
			}
		}
		fmt.Fprintf(sb, "; Parameters (%d): %s\n", len(params), strings.Join(params, ", "))
	}
	if fn.UpvalueCount > 0 {
		fmt.Fprintf(sb, "; Upvalues: %d\n", fn.UpvalueCount)
	}

	insts, err := Decode(fn)
	for _, inst := range insts {
		sb.WriteString(formatInstruction(fn.Chunk, inst))
		sb.WriteString("\n")
	}
	return err
}

func formatInstruction(c *Chunk, inst Instruction) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%04d  %s", inst.Offset, inst.Op.Name())
	if inst.Op.Size() > 1 {
		fmt.Fprintf(&sb, " %d", inst.Operand)
	}
	for _, u := range inst.Upvalues {
		if u.IsLocal {
			fmt.Fprintf(&sb, " local:%d", u.Index)
		} else {
			fmt.Fprintf(&sb, " upvalue:%d", u.Index)
		}
	}

	var comment string
	end := inst.Offset + inst.Op.Size() + len(inst.Upvalues)*UpvalueDescriptorSize
	switch inst.Op {
	case OpJump, OpJumpLong, OpJumpIfFalse, OpJumpIfFalseLong:
		comment = fmt.Sprintf("-> %04d", end+inst.Operand)
	case OpLoop, OpLoopLong:
		comment = fmt.Sprintf("-> %04d", end-inst.Operand)
	default:
		if inst.Op.Info().Operand != OperandNone && usesConstant(inst.Op) && inst.Operand < len(c.Constants) {
			comment = c.Constants[inst.Operand].GoString()
		}
	}
	if sym, ok := c.SymbolAt(inst.Offset); ok {
		if comment != "" {
			comment += "  "
		}
		comment += fmt.Sprintf("line %d", sym.Line)
	}
	if comment != "" {
		fmt.Fprintf(&sb, "  ; %s", comment)
	}
	return sb.String()
}

func usesConstant(op Opcode) bool {
	switch op.Info().Short {
	case OpConstant, OpDefineGlobal, OpGetGlobal, OpSetGlobal, OpClosure,
		OpImport, OpGetProperty, OpSetProperty:
		return true
	}
	return false
}

// ---------------------------------------------------------------------------
// Listing parser
// ---------------------------------------------------------------------------

// ListingFunction is one function section parsed from a listing.
type ListingFunction struct {
	Name         string
	Instructions []Instruction
}

// ParseListing parses the output of Disassemble back into instructions.
// Comments are ignored; offsets are checked against the decoded sizes.
func ParseListing(text string) ([]ListingFunction, error) {
	var out []ListingFunction
	var cur *ListingFunction
	offset := 0

	for n, raw := range strings.Split(text, "\n") {
		line := strings.TrimSpace(raw)
		if strings.HasPrefix(line, "; ===") {
			name := strings.TrimSpace(strings.TrimSuffix(strings.TrimPrefix(line, "; ==="), "==="))
			out = append(out, ListingFunction{Name: name})
			cur = &out[len(out)-1]
			offset = 0
			continue
		}
		if i := strings.Index(line, ";"); i >= 0 {
			line = strings.TrimSpace(line[:i])
		}
		if line == "" {
			continue
		}
		if cur == nil {
			return nil, fmt.Errorf("listing line %d: instruction outside a function", n+1)
		}

		inst, err := parseInstruction(line)
		if err != nil {
			return nil, fmt.Errorf("listing line %d: %w", n+1, err)
		}
		if inst.Offset != offset {
			return nil, fmt.Errorf("listing line %d: offset %d, expected %d", n+1, inst.Offset, offset)
		}
		offset += inst.Op.Size() + len(inst.Upvalues)*UpvalueDescriptorSize
		cur.Instructions = append(cur.Instructions, inst)
	}
	return out, nil
}

func parseInstruction(line string) (Instruction, error) {
	fields := strings.Fields(line)
	if len(fields) < 2 {
		return Instruction{}, fmt.Errorf("malformed instruction %q", line)
	}
	offset, err := strconv.Atoi(fields[0])
	if err != nil {
		return Instruction{}, fmt.Errorf("bad offset %q", fields[0])
	}
	op, ok := opcodeByName[fields[1]]
	if !ok {
		return Instruction{}, fmt.Errorf("unknown opcode %q", fields[1])
	}
	inst := Instruction{Offset: offset, Op: op}
	rest := fields[2:]
	if op.Size() > 1 {
		if len(rest) == 0 {
			return inst, fmt.Errorf("%s: missing operand", op)
		}
		if inst.Operand, err = strconv.Atoi(rest[0]); err != nil {
			return inst, fmt.Errorf("%s: bad operand %q", op, rest[0])
		}
		rest = rest[1:]
	}
	for _, f := range rest {
		kind, idx, found := strings.Cut(f, ":")
		if !found {
			return inst, fmt.Errorf("%s: unexpected %q", op, f)
		}
		index, err := strconv.Atoi(idx)
		if err != nil {
			return inst, fmt.Errorf("%s: bad upvalue index %q", op, idx)
		}
		switch kind {
		case "local":
			inst.Upvalues = append(inst.Upvalues, UpvalueDesc{IsLocal: true, Index: index})
		case "upvalue":
			inst.Upvalues = append(inst.Upvalues, UpvalueDesc{Index: index})
		default:
			return inst, fmt.Errorf("%s: unexpected %q", op, f)
		}
	}
	return inst, nil
}

package vm

import (
	"encoding/binary"
	"fmt"
)

// DebugSymbol maps a byte range of a chunk to the source construct that
// produced it. Ranges are half-open: [From, To).
type DebugSymbol struct {
	From   int
	To     int
	Line   int
	Column int
	Token  string
}

// Chunk represents compiled bytecode for one function body.
type Chunk struct {
	Code      []byte        // instructions and inline operands
	Constants []Value       // constant pool, not deduplicated
	Symbols   []DebugSymbol // debug ranges, never read by the interpreter
}

// NewChunk creates a new empty chunk.
func NewChunk() *Chunk {
	return &Chunk{
		Code:      make([]byte, 0, 64),
		Constants: make([]Value, 0, 8),
	}
}

// Len returns the current code length.
func (c *Chunk) Len() int {
	return len(c.Code)
}

// ---------------------------------------------------------------------------
// Emission
// ---------------------------------------------------------------------------

// AddConstant appends a value to the constant pool and returns its index.
func (c *Chunk) AddConstant(v Value) int {
	c.Constants = append(c.Constants, v)
	return len(c.Constants) - 1
}

// Emit appends an operand-less instruction.
func (c *Chunk) Emit(op Opcode) {
	c.Code = append(c.Code, byte(op))
}

// EmitByte appends an instruction with a one-byte operand.
func (c *Chunk) EmitByte(op Opcode, operand byte) {
	c.Code = append(c.Code, byte(op), operand)
}

// EmitRaw appends raw bytes, used for closure upvalue descriptors.
func (c *Chunk) EmitRaw(b ...byte) {
	c.Code = append(c.Code, b...)
}

// EmitUint32 appends a little-endian 32-bit value.
func (c *Chunk) EmitUint32(v uint32) {
	c.Code = binary.LittleEndian.AppendUint32(c.Code, v)
}

// EmitWithOperand appends op with an operand, selecting the short form when
// the operand fits in one byte and the long form otherwise. The choice is
// made per call site. It returns the opcode actually emitted.
func (c *Chunk) EmitWithOperand(op Opcode, operand int) Opcode {
	op = op.Width(operand)
	if op.Info().Operand == OperandLong || op == OpClosureLong {
		c.Emit(op)
		c.EmitUint32(uint32(operand))
	} else {
		c.EmitByte(op, byte(operand))
	}
	return op
}

// EmitConstant adds v to the pool and emits the instruction that loads it.
func (c *Chunk) EmitConstant(v Value) int {
	idx := c.AddConstant(v)
	c.EmitWithOperand(OpConstant, idx)
	return idx
}

// ---------------------------------------------------------------------------
// Jumps
// ---------------------------------------------------------------------------

// jumpOffset computes the operand for a jump of width n placed at `at`.
// Forward targets are given in pre-insertion coordinates, so the offset does
// not depend on the width. Backward targets precede `at` and do not move.
func jumpOffset(at, n, target int) int {
	if target >= at {
		return target - at
	}
	return at + n - target
}

// PlaceJump inserts a jump at byte offset `at` targeting `target`, shifting
// every later byte and every debug range that falls after the insertion
// point. op may be either width of a jump pair; the width is chosen from the
// distance. It returns the number of bytes inserted.
func (c *Chunk) PlaceJump(at int, op Opcode, target int) (int, error) {
	if !op.IsJump() {
		return 0, fmt.Errorf("place jump: %s is not a jump", op)
	}
	if at < 0 || at > len(c.Code) {
		return 0, fmt.Errorf("place jump: offset %d out of range", at)
	}
	op = op.Width(jumpOffset(at, 2, target))
	n := op.Size()
	offset := jumpOffset(at, n, target)

	inst := make([]byte, n)
	inst[0] = byte(op)
	if n == 2 {
		inst[1] = byte(offset)
	} else {
		binary.LittleEndian.PutUint32(inst[1:], uint32(offset))
	}

	c.Code = append(c.Code[:at], append(inst, c.Code[at:]...)...)
	for i := range c.Symbols {
		s := &c.Symbols[i]
		if s.From >= at {
			s.From += n
		}
		if s.To > at {
			s.To += n
		}
	}
	return n, nil
}

// EmitLoop appends a backward jump to target. slack is the number of bytes
// that may still be inserted between target and the loop instruction; the
// wide form is chosen if the distance could exceed one byte. The operand
// must be fixed with PatchJump once those insertions are done. It returns
// the loop instruction's offset.
func (c *Chunk) EmitLoop(target, slack int) int {
	at := len(c.Code)
	op := OpLoop.Width(at + slack + 2 - target)
	c.EmitWithOperand(op, jumpOffset(at, op.Size(), target))
	return at
}

// PatchJump rewrites the operand of the jump at `at`. It fails if the
// instruction there is not a jump of the same family as op, or if offset
// does not fit its width.
func (c *Chunk) PatchJump(at int, op Opcode, offset int) error {
	if at < 0 || at >= len(c.Code) {
		return fmt.Errorf("patch jump: offset %d out of range", at)
	}
	found := Opcode(c.Code[at])
	if !found.IsJump() || found.Info().Short != op.Info().Short {
		return fmt.Errorf("patch jump: expected %s at %d, found %s", op.Info().Short, at, found)
	}
	if offset < 0 {
		return fmt.Errorf("patch jump: negative offset %d", offset)
	}
	if found.IsLong() {
		if at+5 > len(c.Code) {
			return fmt.Errorf("patch jump: invalid long jump at %d", at)
		}
		binary.LittleEndian.PutUint32(c.Code[at+1:], uint32(offset))
		return nil
	}
	if offset > 0xFF {
		return fmt.Errorf("patch jump: offset %d does not fit %s at %d", offset, found, at)
	}
	c.Code[at+1] = byte(offset)
	return nil
}

// ---------------------------------------------------------------------------
// Debug symbols
// ---------------------------------------------------------------------------

// AddSymbol records a debug range. Empty ranges are ignored.
func (c *Chunk) AddSymbol(from, to, line, column int, token string) {
	if to <= from {
		return
	}
	c.Symbols = append(c.Symbols, DebugSymbol{From: from, To: to, Line: line, Column: column, Token: token})
}

// SymbolAt returns the smallest debug range enclosing offset.
func (c *Chunk) SymbolAt(offset int) (DebugSymbol, bool) {
	var best DebugSymbol
	found := false
	for _, s := range c.Symbols {
		if offset < s.From || offset >= s.To {
			continue
		}
		if !found || s.To-s.From < best.To-best.From {
			best = s
			found = true
		}
	}
	return best, found
}

// ---------------------------------------------------------------------------
// Reading
// ---------------------------------------------------------------------------

// ReadOperand decodes the operand of the instruction at ip according to op's
// width. It returns the operand and the offset of the next byte.
func (c *Chunk) ReadOperand(op Opcode, ip int) (int, int) {
	switch op.Size() {
	case 2:
		return int(c.Code[ip+1]), ip + 2
	case 5:
		return int(binary.LittleEndian.Uint32(c.Code[ip+1:])), ip + 5
	}
	return 0, ip + 1
}

// EmitUpvalue appends one closure upvalue descriptor.
func (c *Chunk) EmitUpvalue(isLocal bool, index int) {
	flag := byte(0)
	if isLocal {
		flag = 1
	}
	c.Code = append(c.Code, flag)
	c.EmitUint32(uint32(index))
}

func decodeUpvalue(b []byte) (bool, int) {
	return b[0] == 1, int(binary.LittleEndian.Uint32(b[1:UpvalueDescriptorSize]))
}

package vm

import "fmt"

// ---------------------------------------------------------------------------
// Opcode definitions
// ---------------------------------------------------------------------------

// Opcode represents a single bytecode instruction.
type Opcode byte

// Stack operations
const (
	OpPop  Opcode = 0x00 // discard top of stack
	OpPopN Opcode = 0x01 // discard N values (8-bit count)
	OpDup  Opcode = 0x02 // duplicate top of stack
	OpDup2 Opcode = 0x03 // duplicate top two values
)

// Constants
const (
	OpConstant     Opcode = 0x10 // push constant (8-bit index)
	OpConstantLong Opcode = 0x11 // push constant (32-bit index)
	OpNull         Opcode = 0x12 // push null
	OpTrue         Opcode = 0x13 // push true
	OpFalse        Opcode = 0x14 // push false
)

// Locals
const (
	OpGetLocal      Opcode = 0x20 // push local (8-bit slot)
	OpGetLocalLong  Opcode = 0x21 // push local (32-bit slot)
	OpGetLocal0     Opcode = 0x22
	OpGetLocal1     Opcode = 0x23
	OpGetLocal2     Opcode = 0x24
	OpGetLocal3     Opcode = 0x25
	OpSetLocal      Opcode = 0x26 // store top into local (8-bit slot), value stays
	OpSetLocalLong  Opcode = 0x27 // store top into local (32-bit slot), value stays
	OpSetLocal0     Opcode = 0x28
	OpSetLocal1     Opcode = 0x29
	OpSetLocal2     Opcode = 0x2A
	OpSetLocal3     Opcode = 0x2B
	OpCloseUpvalue  Opcode = 0x2C // close upvalue for top slot, then pop
	OpGetUpvalue    Opcode = 0x2D // push upvalue (8-bit index)
	OpGetUpvalueLng Opcode = 0x2E // push upvalue (32-bit index)
	OpSetUpvalue    Opcode = 0x2F // store into upvalue (8-bit index), value stays
	OpSetUpvalueLng Opcode = 0x30 // store into upvalue (32-bit index), value stays
)

// Globals (operand is the constant index of the name)
const (
	OpDefineGlobal     Opcode = 0x38 // pop value, define global
	OpDefineGlobalLong Opcode = 0x39
	OpGetGlobal        Opcode = 0x3A
	OpGetGlobalLong    Opcode = 0x3B
	OpSetGlobal        Opcode = 0x3C // store top into global, value stays
	OpSetGlobalLong    Opcode = 0x3D
)

// Arithmetic, comparison and logic (no operands)
const (
	OpAdd          Opcode = 0x40
	OpSub          Opcode = 0x41
	OpMul          Opcode = 0x42
	OpDiv          Opcode = 0x43
	OpMod          Opcode = 0x44
	OpPow          Opcode = 0x45
	OpNegate       Opcode = 0x46
	OpNot          Opcode = 0x47
	OpEqual        Opcode = 0x48
	OpNotEqual     Opcode = 0x49
	OpLess         Opcode = 0x4A
	OpLessEqual    Opcode = 0x4B
	OpGreater      Opcode = 0x4C
	OpGreaterEqual Opcode = 0x4D
	OpAnd          Opcode = 0x4E
	OpOr           Opcode = 0x4F
)

// Control flow. Offsets are relative to the end of the instruction.
const (
	OpJump            Opcode = 0x50 // forward jump (8-bit offset)
	OpJumpLong        Opcode = 0x51 // forward jump (32-bit offset)
	OpJumpIfFalse     Opcode = 0x52 // pop, jump forward if falsy (8-bit offset)
	OpJumpIfFalseLong Opcode = 0x53 // pop, jump forward if falsy (32-bit offset)
	OpLoop            Opcode = 0x54 // backward jump (8-bit offset)
	OpLoopLong        Opcode = 0x55 // backward jump (32-bit offset)
)

// Calls and functions
const (
	OpCall        Opcode = 0x60 // call with 8-bit argument count
	OpCall0       Opcode = 0x61
	OpCall1       Opcode = 0x62
	OpCall2       Opcode = 0x63
	OpCall3       Opcode = 0x64
	OpClosure     Opcode = 0x65 // 8-bit function constant, then upvalue descriptors
	OpClosureLong Opcode = 0x66 // 32-bit function constant, then upvalue descriptors
	OpReturn      Opcode = 0x67
	OpImport      Opcode = 0x68 // import module named by constant (8-bit index)
	OpImportLong  Opcode = 0x69
)

// Tables and arrays
const (
	OpNewTable        Opcode = 0x70 // push empty table
	OpNewArray        Opcode = 0x71 // pop N elements, push array (8-bit count)
	OpNewArrayLong    Opcode = 0x72 // pop N elements, push array (32-bit count)
	OpGetProperty     Opcode = 0x73 // replace object with property (8-bit name constant)
	OpGetPropertyLong Opcode = 0x74
	OpSetProperty     Opcode = 0x75 // [obj value] -> [value] (8-bit name constant)
	OpSetPropertyLong Opcode = 0x76
	OpGetIndex        Opcode = 0x77 // [obj index] -> [value]
	OpSetIndex        Opcode = 0x78 // [obj index value] -> [value]
)

// UpvalueDescriptorSize is the encoded size of one closure upvalue descriptor:
// a flag byte (1 = enclosing local, 0 = enclosing upvalue) and a 32-bit index.
const UpvalueDescriptorSize = 5

// ---------------------------------------------------------------------------
// Opcode metadata
// ---------------------------------------------------------------------------

// OperandKind describes how an instruction's operand is encoded.
type OperandKind uint8

const (
	OperandNone  OperandKind = iota // no operand
	OperandByte                     // one byte
	OperandLong                     // four bytes, little-endian
	OperandClose                    // closure: constant index + upvalue descriptors
)

// OpcodeInfo holds metadata about an opcode.
type OpcodeInfo struct {
	Name    string      // human-readable name
	Operand OperandKind // operand encoding
	Short   Opcode      // narrow form of a short/long pair
	Long    Opcode      // wide form of a short/long pair
}

// opcodeTable maps opcodes to their metadata.
var opcodeTable = map[Opcode]OpcodeInfo{
	OpPop:  {Name: "POP"},
	OpPopN: {Name: "POP_N", Operand: OperandByte},
	OpDup:  {Name: "DUP"},
	OpDup2: {Name: "DUP2"},

	OpConstant:     {"CONSTANT", OperandByte, OpConstant, OpConstantLong},
	OpConstantLong: {"CONSTANT_LONG", OperandLong, OpConstant, OpConstantLong},
	OpNull:         {Name: "NULL"},
	OpTrue:         {Name: "TRUE"},
	OpFalse:        {Name: "FALSE"},

	OpGetLocal:      {"GET_LOCAL", OperandByte, OpGetLocal, OpGetLocalLong},
	OpGetLocalLong:  {"GET_LOCAL_LONG", OperandLong, OpGetLocal, OpGetLocalLong},
	OpGetLocal0:     {Name: "GET_LOCAL_0"},
	OpGetLocal1:     {Name: "GET_LOCAL_1"},
	OpGetLocal2:     {Name: "GET_LOCAL_2"},
	OpGetLocal3:     {Name: "GET_LOCAL_3"},
	OpSetLocal:      {"SET_LOCAL", OperandByte, OpSetLocal, OpSetLocalLong},
	OpSetLocalLong:  {"SET_LOCAL_LONG", OperandLong, OpSetLocal, OpSetLocalLong},
	OpSetLocal0:     {Name: "SET_LOCAL_0"},
	OpSetLocal1:     {Name: "SET_LOCAL_1"},
	OpSetLocal2:     {Name: "SET_LOCAL_2"},
	OpSetLocal3:     {Name: "SET_LOCAL_3"},
	OpCloseUpvalue:  {Name: "CLOSE_UPVALUE"},
	OpGetUpvalue:    {"GET_UPVALUE", OperandByte, OpGetUpvalue, OpGetUpvalueLng},
	OpGetUpvalueLng: {"GET_UPVALUE_LONG", OperandLong, OpGetUpvalue, OpGetUpvalueLng},
	OpSetUpvalue:    {"SET_UPVALUE", OperandByte, OpSetUpvalue, OpSetUpvalueLng},
	OpSetUpvalueLng: {"SET_UPVALUE_LONG", OperandLong, OpSetUpvalue, OpSetUpvalueLng},

	OpDefineGlobal:     {"DEFINE_GLOBAL", OperandByte, OpDefineGlobal, OpDefineGlobalLong},
	OpDefineGlobalLong: {"DEFINE_GLOBAL_LONG", OperandLong, OpDefineGlobal, OpDefineGlobalLong},
	OpGetGlobal:        {"GET_GLOBAL", OperandByte, OpGetGlobal, OpGetGlobalLong},
	OpGetGlobalLong:    {"GET_GLOBAL_LONG", OperandLong, OpGetGlobal, OpGetGlobalLong},
	OpSetGlobal:        {"SET_GLOBAL", OperandByte, OpSetGlobal, OpSetGlobalLong},
	OpSetGlobalLong:    {"SET_GLOBAL_LONG", OperandLong, OpSetGlobal, OpSetGlobalLong},

	OpAdd:          {Name: "ADD"},
	OpSub:          {Name: "SUB"},
	OpMul:          {Name: "MUL"},
	OpDiv:          {Name: "DIV"},
	OpMod:          {Name: "MOD"},
	OpPow:          {Name: "POW"},
	OpNegate:       {Name: "NEGATE"},
	OpNot:          {Name: "NOT"},
	OpEqual:        {Name: "EQUAL"},
	OpNotEqual:     {Name: "NOT_EQUAL"},
	OpLess:         {Name: "LESS"},
	OpLessEqual:    {Name: "LESS_EQUAL"},
	OpGreater:      {Name: "GREATER"},
	OpGreaterEqual: {Name: "GREATER_EQUAL"},
	OpAnd:          {Name: "AND"},
	OpOr:           {Name: "OR"},

	OpJump:            {"JUMP", OperandByte, OpJump, OpJumpLong},
	OpJumpLong:        {"JUMP_LONG", OperandLong, OpJump, OpJumpLong},
	OpJumpIfFalse:     {"JUMP_IF_FALSE", OperandByte, OpJumpIfFalse, OpJumpIfFalseLong},
	OpJumpIfFalseLong: {"JUMP_IF_FALSE_LONG", OperandLong, OpJumpIfFalse, OpJumpIfFalseLong},
	OpLoop:            {"LOOP", OperandByte, OpLoop, OpLoopLong},
	OpLoopLong:        {"LOOP_LONG", OperandLong, OpLoop, OpLoopLong},

	OpCall:        {Name: "CALL", Operand: OperandByte},
	OpCall0:       {Name: "CALL_0"},
	OpCall1:       {Name: "CALL_1"},
	OpCall2:       {Name: "CALL_2"},
	OpCall3:       {Name: "CALL_3"},
	OpClosure:     {"CLOSURE", OperandClose, OpClosure, OpClosureLong},
	OpClosureLong: {"CLOSURE_LONG", OperandClose, OpClosure, OpClosureLong},
	OpReturn:      {Name: "RETURN"},
	OpImport:      {"IMPORT", OperandByte, OpImport, OpImportLong},
	OpImportLong:  {"IMPORT_LONG", OperandLong, OpImport, OpImportLong},

	OpNewTable:        {Name: "NEW_TABLE"},
	OpNewArray:        {"NEW_ARRAY", OperandByte, OpNewArray, OpNewArrayLong},
	OpNewArrayLong:    {"NEW_ARRAY_LONG", OperandLong, OpNewArray, OpNewArrayLong},
	OpGetProperty:     {"GET_PROPERTY", OperandByte, OpGetProperty, OpGetPropertyLong},
	OpGetPropertyLong: {"GET_PROPERTY_LONG", OperandLong, OpGetProperty, OpGetPropertyLong},
	OpSetProperty:     {"SET_PROPERTY", OperandByte, OpSetProperty, OpSetPropertyLong},
	OpSetPropertyLong: {"SET_PROPERTY_LONG", OperandLong, OpSetProperty, OpSetPropertyLong},
	OpGetIndex:        {Name: "GET_INDEX"},
	OpSetIndex:        {Name: "SET_INDEX"},
}

// opcodeByName is the reverse of opcodeTable, used by the listing parser.
var opcodeByName = func() map[string]Opcode {
	m := make(map[string]Opcode, len(opcodeTable))
	for op, info := range opcodeTable {
		m[info.Name] = op
	}
	return m
}()

// Info returns the metadata for an opcode.
func (op Opcode) Info() OpcodeInfo {
	if info, ok := opcodeTable[op]; ok {
		return info
	}
	return OpcodeInfo{Name: fmt.Sprintf("UNKNOWN_%02X", byte(op))}
}

// Name returns the human-readable name for an opcode.
func (op Opcode) Name() string {
	return op.Info().Name
}

// String implements the Stringer interface.
func (op Opcode) String() string {
	return op.Name()
}

// IsValid reports whether op is a known opcode.
func (op Opcode) IsValid() bool {
	_, ok := opcodeTable[op]
	return ok
}

// IsLong reports whether op is the wide form of a short/long pair.
func (op Opcode) IsLong() bool {
	info := op.Info()
	return info.Long == op && info.Short != info.Long
}

// IsJump reports whether op is a forward or backward jump of either width.
func (op Opcode) IsJump() bool {
	switch op {
	case OpJump, OpJumpLong, OpJumpIfFalse, OpJumpIfFalseLong, OpLoop, OpLoopLong:
		return true
	}
	return false
}

// Width returns the narrow or wide form of op that can encode operand.
// Opcodes without a short/long pair are returned unchanged.
func (op Opcode) Width(operand int) Opcode {
	info := op.Info()
	if info.Short == info.Long {
		return op
	}
	if operand >= 0 && operand <= 0xFF {
		return info.Short
	}
	return info.Long
}

// Size returns the encoded size of an instruction with this opcode, not
// counting closure upvalue descriptors.
func (op Opcode) Size() int {
	switch op.Info().Operand {
	case OperandByte:
		return 2
	case OperandLong:
		return 5
	case OperandClose:
		if op == OpClosureLong {
			return 5
		}
		return 2
	}
	return 1
}

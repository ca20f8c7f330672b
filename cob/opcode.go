package cob

import "fmt"

// ---------------------------------------------------------------------------
// Opcode definitions
// ---------------------------------------------------------------------------

// Word is a single code word. Instructions, immediates and stack values are
// all words.
type Word = int32

// Opcode is the first word of an instruction. Opcode values are wide
// constants (0x10XXX00X), not small ordinals.
type Opcode int32

// Piece manipulation
const (
	OpMovePieceWithSpeed Opcode = 0x10001000 // piece, axis; pops destination, speed
	OpTurnPieceWithSpeed Opcode = 0x10002000 // piece, axis; pops destination, speed
	OpStartSpin          Opcode = 0x10003000 // piece, axis; pops speed, acceleration
	OpStopSpin           Opcode = 0x10004000 // piece, axis; pops deceleration
	OpShowPiece          Opcode = 0x10005000 // piece
	OpHidePiece          Opcode = 0x10006000 // piece
	OpCachePiece         Opcode = 0x10007000 // piece
	OpDontCachePiece     Opcode = 0x10008000 // piece
	OpDontShadow         Opcode = 0x1000A000 // piece
	OpMovePieceNow       Opcode = 0x1000B000 // piece, axis; pops destination
	OpTurnPieceNow       Opcode = 0x1000C000 // piece, axis; pops destination
	OpDontShade          Opcode = 0x1000E000 // piece
	OpEmitSfx            Opcode = 0x1000F000 // piece; pops sfx type
)

// Waits
const (
	OpWaitForTurn Opcode = 0x10011000 // piece, axis
	OpWaitForMove Opcode = 0x10012000 // piece, axis
	OpSleep       Opcode = 0x10013000 // pops duration (ms)
)

// Stack and variables
const (
	OpPushImmediate Opcode = 0x10021001 // value
	OpPushLocal     Opcode = 0x10021002 // local index
	OpPushStatic    Opcode = 0x10021004 // static index
	OpStackAllocate Opcode = 0x10022000 // push 0 (local prologue)
	OpSetLocal      Opcode = 0x10023002 // local index; pops value
	OpSetStatic     Opcode = 0x10023004 // static index; pops value
	OpPopStack      Opcode = 0x10024000 // pops and discards
)

// Arithmetic
const (
	OpAdd        Opcode = 0x10031000
	OpSubtract   Opcode = 0x10032000
	OpMultiply   Opcode = 0x10033000
	OpDivide     Opcode = 0x10034000
	OpBitwiseAnd Opcode = 0x10035000
	OpBitwiseOr  Opcode = 0x10036000
	OpUnknown1   Opcode = 0x10039000
	OpUnknown2   Opcode = 0x1003A000
	OpUnknown3   Opcode = 0x1003B000
)

// Host queries
const (
	OpRandom            Opcode = 0x10041000 // pops max, min
	OpGetUnitValue      Opcode = 0x10042000 // pops selector
	OpGetFunctionResult Opcode = 0x10043000 // pops 4 params, selector
)

// Comparison and logic
const (
	OpLessThan           Opcode = 0x10051000
	OpLessThanOrEqual    Opcode = 0x10052000
	OpGreaterThan        Opcode = 0x10053000
	OpGreaterThanOrEqual Opcode = 0x10054000
	OpEqual              Opcode = 0x10055000
	OpNotEqual           Opcode = 0x10056000
	OpAnd                Opcode = 0x10057000
	OpOr                 Opcode = 0x10058000
	OpNot                Opcode = 0x1005A000
)

// Control flow
const (
	OpStartScript         Opcode = 0x10061000 // module index, param count
	OpCallScript          Opcode = 0x10062000 // module index, param count
	OpJumpToOffset        Opcode = 0x10064000 // absolute code offset
	OpReturn              Opcode = 0x10065000 // pops value
	OpJumpToOffsetIfFalse Opcode = 0x10066000 // absolute code offset; pops condition
	OpSignal              Opcode = 0x10067000 // pops mask
	OpSetSignalMask       Opcode = 0x10068000 // pops mask
)

// Host effects
const (
	OpExplode      Opcode = 0x10071000 // piece; pops explode type
	OpPlaySound    Opcode = 0x10072000 // sound index
	OpMapCommand   Opcode = 0x10073000 // two opaque words
	OpSetUnitValue Opcode = 0x10082000 // pops value, selector
	OpAttachUnit   Opcode = 0x10083000 // pops arg, piece, unit
	OpDropUnit     Opcode = 0x10084000 // pops unit
)

// ---------------------------------------------------------------------------
// Opcode metadata
// ---------------------------------------------------------------------------

// OpcodeInfo holds metadata about an opcode.
type OpcodeInfo struct {
	Name        string // mnemonic
	Immediates  int    // number of code words following the opcode
	StackEffect int    // net effect on the operand stack (-1 = variable)
}

// Size returns the instruction length in code words.
func (i OpcodeInfo) Size() int {
	return 1 + i.Immediates
}

var opcodeTable = map[Opcode]OpcodeInfo{
	OpMovePieceWithSpeed: {"MOVE", 2, -2},
	OpTurnPieceWithSpeed: {"TURN", 2, -2},
	OpStartSpin:          {"SPIN", 2, -2},
	OpStopSpin:           {"STOP_SPIN", 2, -1},
	OpShowPiece:          {"SHOW", 1, 0},
	OpHidePiece:          {"HIDE", 1, 0},
	OpCachePiece:         {"CACHE", 1, 0},
	OpDontCachePiece:     {"DONT_CACHE", 1, 0},
	OpDontShadow:         {"DONT_SHADOW", 1, 0},
	OpMovePieceNow:       {"MOVE_NOW", 2, -1},
	OpTurnPieceNow:       {"TURN_NOW", 2, -1},
	OpDontShade:          {"DONT_SHADE", 1, 0},
	OpEmitSfx:            {"EMIT_SFX", 1, -1},

	OpWaitForTurn: {"WAIT_FOR_TURN", 2, 0},
	OpWaitForMove: {"WAIT_FOR_MOVE", 2, 0},
	OpSleep:       {"SLEEP", 0, -1},

	OpPushImmediate: {"PUSH_CONSTANT", 1, 1},
	OpPushLocal:     {"PUSH_LOCAL", 1, 1},
	OpPushStatic:    {"PUSH_STATIC", 1, 1},
	OpStackAllocate: {"STACK_ALLOCATE", 0, 1},
	OpSetLocal:      {"SET_LOCAL", 1, -1},
	OpSetStatic:     {"SET_STATIC", 1, -1},
	OpPopStack:      {"POP_STACK", 0, -1},

	OpAdd:        {"ADD", 0, -1},
	OpSubtract:   {"SUB", 0, -1},
	OpMultiply:   {"MUL", 0, -1},
	OpDivide:     {"DIV", 0, -1},
	OpBitwiseAnd: {"BITWISE_AND", 0, -1},
	OpBitwiseOr:  {"BITWISE_OR", 0, -1},
	OpUnknown1:   {"UNKNOWN_1", 0, -1},
	OpUnknown2:   {"UNKNOWN_2", 0, -1},
	OpUnknown3:   {"UNKNOWN_3", 0, -1},

	OpRandom:            {"RANDOM", 0, -1},
	OpGetUnitValue:      {"GET_UNIT_VALUE", 0, 0},
	OpGetFunctionResult: {"GET_FUNCTION_RESULT", 0, -4},

	OpLessThan:           {"LESS", 0, -1},
	OpLessThanOrEqual:    {"LESS_EQUAL", 0, -1},
	OpGreaterThan:        {"GREATER", 0, -1},
	OpGreaterThanOrEqual: {"GREATER_EQUAL", 0, -1},
	OpEqual:              {"EQUAL", 0, -1},
	OpNotEqual:           {"NOT_EQUAL", 0, -1},
	OpAnd:                {"AND", 0, -1},
	OpOr:                 {"OR", 0, -1},
	OpNot:                {"NOT", 0, 0},

	OpStartScript:         {"START_SCRIPT", 2, -1},
	OpCallScript:          {"CALL_SCRIPT", 2, -1},
	OpJumpToOffset:        {"JUMP", 1, 0},
	OpReturn:              {"RETURN", 0, -1},
	OpJumpToOffsetIfFalse: {"JUMP_IF_FALSE", 1, -1},
	OpSignal:              {"SIGNAL", 0, -1},
	OpSetSignalMask:       {"SET_SIGNAL_MASK", 0, -1},

	OpExplode:      {"EXPLODE", 1, -1},
	OpPlaySound:    {"PLAY_SOUND", 1, 0},
	OpMapCommand:   {"MAP_COMMAND", 2, 0},
	OpSetUnitValue: {"SET_UNIT_VALUE", 0, -2},
	OpAttachUnit:   {"ATTACH_UNIT", 0, -3},
	OpDropUnit:     {"DROP_UNIT", 0, -1},
}

// Info returns the metadata for an opcode.
func (op Opcode) Info() OpcodeInfo {
	if info, ok := opcodeTable[op]; ok {
		return info
	}
	return OpcodeInfo{Name: fmt.Sprintf("UNKNOWN_%08X", uint32(op))}
}

// Name returns the mnemonic for an opcode.
func (op Opcode) Name() string {
	return op.Info().Name
}

// Valid reports whether op is a recognised opcode.
func (op Opcode) Valid() bool {
	_, ok := Decode(Word(op))
	return ok
}

// String implements the Stringer interface.
func (op Opcode) String() string {
	return op.Name()
}

// ---------------------------------------------------------------------------
// Decoding
// ---------------------------------------------------------------------------

// Every opcode has the shape 0x100GG00S: a group byte G and a sub-variant S
// in the low three bits. Packing the two gives a small ordinal that indexes
// flat tables, so decoding never hashes.

// NumOrdinals bounds the ordinals returned by Ordinal.
const NumOrdinals = 256 << 3

var (
	opcodeByOrdinal [NumOrdinals]Opcode
	sizeByOrdinal   [NumOrdinals]uint8
)

func init() {
	for op, info := range opcodeTable {
		ord, ok := rawOrdinal(Word(op))
		if !ok || opcodeByOrdinal[ord] != 0 {
			panic(fmt.Sprintf("cob: opcode %08X has no unique ordinal", uint32(op)))
		}
		opcodeByOrdinal[ord] = op
		sizeByOrdinal[ord] = uint8(info.Size())
	}
}

func rawOrdinal(w Word) (int, bool) {
	u := uint32(w)
	if u>>20 != 0x100 || u&0xFF8 != 0 {
		return 0, false
	}
	return int((u>>12)&0xFF)<<3 | int(u&0x7), true
}

// Decode validates a code word as an opcode.
func Decode(w Word) (Opcode, bool) {
	ord, ok := rawOrdinal(w)
	if !ok || opcodeByOrdinal[ord] != Opcode(w) {
		return 0, false
	}
	return Opcode(w), true
}

// Ordinal returns the dense table index of a valid opcode.
func (op Opcode) Ordinal() int {
	ord, _ := rawOrdinal(Word(op))
	return ord
}

// Size returns the instruction length in code words of a valid opcode.
func (op Opcode) Size() int {
	return int(sizeByOrdinal[op.Ordinal()])
}

// Opcodes returns every recognised opcode in ascending order.
func Opcodes() []Opcode {
	ops := make([]Opcode, 0, len(opcodeTable))
	for _, op := range opcodeByOrdinal {
		if op != 0 {
			ops = append(ops, op)
		}
	}
	return ops
}

package bytecode

import (
	"fmt"
	"sort"
)

// Opcode represents a bytecode instruction.
// Opcodes are organized into ranges by category for easy identification.
type Opcode byte

const (
	// ========================================================================
	// Register loads (0x10-0x1F)
	// ========================================================================

	OpLDA Opcode = 0x10 // Load A
	OpLDB Opcode = 0x11 // Load B
	OpLDC Opcode = 0x12 // Load C
	OpLDX Opcode = 0x13 // Load X (receiver)
	OpLDY Opcode = 0x14 // Load Y

	// ========================================================================
	// Register stores (0x20-0x2F)
	// ========================================================================

	OpSTA  Opcode = 0x20 // Store A; implicit stores into the instruction's own slot
	OpSTB  Opcode = 0x21 // Store B
	OpSTC  Opcode = 0x22 // Store C
	OpSTX  Opcode = 0x23 // Store X
	OpSTY  Opcode = 0x24 // Store Y
	OpPUSH Opcode = 0x28 // Append operand to the frame's pending arguments

	// ========================================================================
	// Arithmetic (0x30-0x3F): A = B op C
	// ========================================================================

	OpADD Opcode = 0x30
	OpSUB Opcode = 0x31
	OpMUL Opcode = 0x32
	OpDIV Opcode = 0x33
	OpMOD Opcode = 0x34
	OpEXP Opcode = 0x35
	OpSAR Opcode = 0x36 // Arithmetic shift right: A = B >> C

	// ========================================================================
	// Comparison (0x40-0x47): A = Bool(B op C)
	// ========================================================================

	OpEQ Opcode = 0x40
	OpNE Opcode = 0x41
	OpGT Opcode = 0x42
	OpLT Opcode = 0x43
	OpGQ Opcode = 0x44
	OpLQ Opcode = 0x45

	// ========================================================================
	// Logical operations (0x48-0x4F)
	// ========================================================================

	OpAND Opcode = 0x48
	OpOR  Opcode = 0x49

	// ========================================================================
	// Conversions of A (0x50-0x57)
	// ========================================================================

	OpA2I Opcode = 0x50 // to int
	OpA2F Opcode = 0x51 // to float
	OpA2D Opcode = 0x52 // to double
	OpA2B Opcode = 0x53 // to byte
	OpA2S Opcode = 0x54 // to string
	OpA2C Opcode = 0x55 // to char
	OpA2O Opcode = 0x56 // to bool

	// ========================================================================
	// Collections (0x58-0x5F)
	// ========================================================================

	OpLEN Opcode = 0x58 // A = length of A

	// ========================================================================
	// Control flow (0x60-0x6F)
	// ========================================================================

	OpJMP   Opcode = 0x60 // Unconditional jump
	OpJMPA  Opcode = 0x61 // Jump if A is true
	OpFN    Opcode = 0x62 // Function header marker
	OpCALL  Opcode = 0x63 // Call function at location
	OpCALLN Opcode = 0x64 // Call native import
	OpCO    Opcode = 0x65 // Construct array or class instance
	OpRET   Opcode = 0x66 // Drop the current frame
	OpBRK   Opcode = 0x67 // Software breakpoint
)

// OpcodeInfo contains metadata about an opcode.
type OpcodeInfo struct {
	Name     string
	Modes    ModeSet  // addressing modes the executor is total over
	Register Register // register read or written by loads and stores
}

var (
	loadModes  = Modes(ModeImmediate, ModeAbsolute, ModeAbsoluteIndex, ModeAbsoluteProperty, ModeParameter) | indirectModes
	storeModes = Modes(ModeImplicit, ModeAbsolute, ModeAbsoluteIndex, ModeAbsoluteProperty) | indirectModes
	implicit   = Modes(ModeImplicit)
	absolute   = Modes(ModeAbsolute)
)

// opcodeInfoTable maps opcodes to their metadata. It is never written after
// package initialization.
var opcodeInfoTable = map[Opcode]OpcodeInfo{
	// Loads
	OpLDA: {"LDA", loadModes, RegA},
	OpLDB: {"LDB", loadModes, RegB},
	OpLDC: {"LDC", loadModes, RegC},
	OpLDX: {"LDX", loadModes, RegX},
	OpLDY: {"LDY", loadModes, RegY},

	// Stores
	OpSTA:  {"STA", storeModes, RegA},
	OpSTB:  {"STB", storeModes, RegB},
	OpSTC:  {"STC", storeModes, RegC},
	OpSTX:  {"STX", storeModes, RegX},
	OpSTY:  {"STY", storeModes, RegY},
	OpPUSH: {"PUSH", Modes(ModeImmediate, ModeAbsolute) | indirectModes, RegA},

	// Arithmetic
	OpADD: {"ADD", implicit, RegA},
	OpSUB: {"SUB", implicit, RegA},
	OpMUL: {"MUL", implicit, RegA},
	OpDIV: {"DIV", implicit, RegA},
	OpMOD: {"MOD", implicit, RegA},
	OpEXP: {"EXP", implicit, RegA},
	OpSAR: {"SAR", implicit, RegA},

	// Comparison
	OpEQ: {"EQ", implicit, RegA},
	OpNE: {"NE", implicit, RegA},
	OpGT: {"GT", implicit, RegA},
	OpLT: {"LT", implicit, RegA},
	OpGQ: {"GQ", implicit, RegA},
	OpLQ: {"LQ", implicit, RegA},

	// Logical
	OpAND: {"AND", implicit, RegA},
	OpOR:  {"OR", implicit, RegA},

	// Conversions
	OpA2I: {"A2I", implicit, RegA},
	OpA2F: {"A2F", implicit, RegA},
	OpA2D: {"A2D", implicit, RegA},
	OpA2B: {"A2B", implicit, RegA},
	OpA2S: {"A2S", implicit, RegA},
	OpA2C: {"A2C", implicit, RegA},
	OpA2O: {"A2O", implicit, RegA},

	// Collections
	OpLEN: {"LEN", implicit, RegA},

	// Control flow
	OpJMP:   {"JMP", absolute, RegA},
	OpJMPA:  {"JMPA", absolute, RegA},
	OpFN:    {"FN", Modes(ModeImmediate), RegA},
	OpCALL:  {"CALL", absolute, RegA},
	OpCALLN: {"CALLN", Modes(ModeImmediate), RegA},
	OpCO:    {"CO", Modes(ModeImmediate, ModeAbsoluteIndex), RegA},
	OpRET:   {"RET", implicit, RegA},
	OpBRK:   {"BRK", implicit, RegA},
}

// GetOpcodeInfo returns metadata for an opcode.
func GetOpcodeInfo(op Opcode) OpcodeInfo {
	if info, ok := opcodeInfoTable[op]; ok {
		return info
	}
	return OpcodeInfo{Name: fmt.Sprintf("UNKNOWN(0x%02X)", byte(op))}
}

// Known reports whether op is part of the instruction set.
func (op Opcode) Known() bool {
	_, ok := opcodeInfoTable[op]
	return ok
}

// String returns the human-readable name of an opcode.
func (op Opcode) String() string {
	return GetOpcodeInfo(op).Name
}

// Accepts reports whether op's executor is defined for mode m.
func (op Opcode) Accepts(m Mode) bool {
	return GetOpcodeInfo(op).Modes.Has(m)
}

// IsLoad returns true for LDA..LDY.
func (op Opcode) IsLoad() bool {
	return op >= OpLDA && op <= OpLDY
}

// IsStore returns true for STA..STY.
func (op Opcode) IsStore() bool {
	return op >= OpSTA && op <= OpSTY
}

// IsJump returns true if this opcode is a jump instruction.
func (op Opcode) IsJump() bool {
	return op == OpJMP || op == OpJMPA
}

// IsCall returns true if this opcode may push a frame or call out.
func (op Opcode) IsCall() bool {
	return op == OpCALL || op == OpCALLN || op == OpCO
}

// LoadOp returns the load opcode targeting register r.
func LoadOp(r Register) Opcode { return OpLDA + Opcode(r) }

// StoreOp returns the store opcode reading register r.
func StoreOp(r Register) Opcode { return OpSTA + Opcode(r) }

// AllOpcodes returns every defined opcode in ascending order.
func AllOpcodes() []Opcode {
	opcodes := make([]Opcode, 0, len(opcodeInfoTable))
	for op := range opcodeInfoTable {
		opcodes = append(opcodes, op)
	}
	sort.Slice(opcodes, func(i, j int) bool { return opcodes[i] < opcodes[j] })
	return opcodes
}

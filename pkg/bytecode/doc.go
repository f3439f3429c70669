// Package bytecode defines the ellie instruction set: opcodes, addressing
// modes, values, assembled Programs and their debug side tables.
//
// # Instruction Model
//
// An Instruction is an opcode plus one decoded operand (an AddressingValue).
// Every opcode declares the addressing modes it accepts in an immutable
// metadata table; the VM rejects any other combination with a panic rather
// than guessing.
//
// Locations are absolute instruction indices. Memory slots are named by the
// location of the instruction that defines them, so an instruction stream
// needs no relocation.
//
// # Formats
//
// Programs have two encodings:
//
//   - The binary render ("ELBC"), whose operand width follows the Program's
//     Architecture (32 or 64 bit).
//
//   - A versioned CBOR artifact bundling the Program with its optional
//     DebugInfo. Canonical encoding makes equal programs encode to equal
//     bytes, which ArtifactDigest relies on.
//
// DebugInfo is never needed to execute a Program.
package bytecode

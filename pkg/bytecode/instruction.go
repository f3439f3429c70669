package bytecode

import "fmt"

// Instruction is one decoded record of a Program.
type Instruction struct {
	Op   Opcode          `cbor:"1,keyasint"`
	Addr AddressingValue `cbor:"2,keyasint"`
}

// New builds an instruction.
func New(op Opcode, av AddressingValue) Instruction {
	return Instruction{Op: op, Addr: av}
}

// Valid reports whether the opcode is known and accepts the addressing mode.
func (in Instruction) Valid() bool {
	return in.Op.Known() && in.Op.Accepts(in.Addr.Mode)
}

// Equal compares two instructions structurally.
func (in Instruction) Equal(o Instruction) bool {
	return in.Op == o.Op && in.Addr.Equal(o.Addr)
}

func (in Instruction) String() string {
	operand := in.Addr.String()
	if operand == "" {
		return in.Op.String()
	}
	return fmt.Sprintf("%-5s %s", in.Op, operand)
}

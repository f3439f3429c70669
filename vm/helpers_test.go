package vm

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/chazu/ellie/pkg/bytecode"
)

// ins builds an instruction; without an operand it is Implicit.
func ins(op bytecode.Opcode, av ...bytecode.AddressingValue) bytecode.Instruction {
	if len(av) == 0 {
		return bytecode.New(op, bytecode.Implicit())
	}
	return bytecode.New(op, av[0])
}

func imm(v bytecode.Value) bytecode.AddressingValue { return bytecode.Immediate(v) }
func loc(n int) bytecode.AddressingValue            { return bytecode.Absolute(n) }
func param(i int) bytecode.AddressingValue          { return bytecode.Parameter(i) }
func reg(r bytecode.Register) bytecode.AddressingValue {
	return bytecode.Indirect(r)
}

func mainProgram(code ...bytecode.Instruction) *bytecode.Program {
	return &bytecode.Program{
		Arch:         bytecode.Arch64,
		Instructions: code,
		Main:         &bytecode.MainFunction{Hash: 1, Start: 0, End: len(code) - 1},
	}
}

// mulProgram is mul(a, b) at 0 with a local copy of a, called by main as
// mul(6, 7).
func mulProgram() *bytecode.Program {
	return mainProgram(
		ins(bytecode.OpFN, imm(bytecode.Int(7))),
		ins(bytecode.OpJMP, loc(8)),
		ins(bytecode.OpLDA, param(0)),
		ins(bytecode.OpSTA),
		ins(bytecode.OpLDB, loc(3)),
		ins(bytecode.OpLDC, param(1)),
		ins(bytecode.OpMUL),
		ins(bytecode.OpRET),
		ins(bytecode.OpPUSH, imm(bytecode.Int(6))),
		ins(bytecode.OpPUSH, imm(bytecode.Int(7))),
		ins(bytecode.OpCALL, loc(0)),
		ins(bytecode.OpRET),
	)
}

// factorialProgram is a recursive fact(n) called by main as fact(n).
func factorialProgram(n int64) *bytecode.Program {
	return mainProgram(
		ins(bytecode.OpFN, imm(bytecode.Int(9))),
		ins(bytecode.OpJMP, loc(20)),
		ins(bytecode.OpLDA, param(0)),
		ins(bytecode.OpSTA),
		ins(bytecode.OpLDB, loc(3)),
		ins(bytecode.OpLDC, imm(bytecode.Int(1))),
		ins(bytecode.OpLQ),
		ins(bytecode.OpJMPA, loc(9)),
		ins(bytecode.OpJMP, loc(11)),
		ins(bytecode.OpLDA, imm(bytecode.Int(1))),
		ins(bytecode.OpRET),
		ins(bytecode.OpLDB, loc(3)),
		ins(bytecode.OpLDC, imm(bytecode.Int(1))),
		ins(bytecode.OpSUB),
		ins(bytecode.OpPUSH, reg(bytecode.RegA)),
		ins(bytecode.OpCALL, loc(0)),
		ins(bytecode.OpLDC, reg(bytecode.RegA)),
		ins(bytecode.OpLDB, loc(3)),
		ins(bytecode.OpMUL),
		ins(bytecode.OpRET),
		ins(bytecode.OpPUSH, imm(bytecode.Int(n))),
		ins(bytecode.OpCALL, loc(0)),
		ins(bytecode.OpRET),
	)
}

func newThread(t *testing.T, iso *Isolate, p *bytecode.Program) *Thread {
	t.Helper()
	lp, err := iso.Load(p)
	require.NoError(t, err)
	th, err := iso.NewThread(lp)
	require.NoError(t, err)
	require.NoError(t, th.PrepareMain())
	return th
}

func runProgram(t *testing.T, p *bytecode.Program) (*Thread, bytecode.Value, error) {
	t.Helper()
	th := newThread(t, NewIsolate(), p)
	v, err := th.Run(context.Background())
	return th, v, err
}

package bytecode

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleProgram(arch Architecture) *Program {
	return &Program{
		Arch: arch,
		Instructions: []Instruction{
			New(OpLDA, Immediate(Int(-42))),
			New(OpLDB, Immediate(Float(1.5))),
			New(OpLDC, Immediate(Double(2.25))),
			New(OpLDX, Immediate(Byte(0xfe))),
			New(OpLDY, Immediate(Bool(true))),
			New(OpLDA, Immediate(Char('λ'))),
			New(OpLDA, Immediate(String("hello, ellie"))),
			New(OpLDA, Immediate(String(""))),
			New(OpLDA, Immediate(Null())),
			New(OpLDA, Immediate(Void())),
			New(OpLDA, Immediate(Ref(7))),
			New(OpSTA, Implicit()),
			New(OpLDA, Absolute(11)),
			New(OpLDA, AbsoluteIndex(11, 12)),
			New(OpSTA, AbsoluteProperty(11, 3)),
			New(OpLDA, Parameter(1)),
			New(OpLDC, Indirect(RegA)),
			New(OpJMP, Absolute(0)),
			New(OpRET, Implicit()),
		},
		Main: &MainFunction{Hash: 99, Start: 0, End: 18},
		Natives: []NativeImport{
			{Index: 0, Name: "println", Hash: 3, Params: []Kind{KindString}, Return: KindVoid},
			{Index: 1, Name: "clock", Hash: 4, Return: KindInt},
		},
	}
}

func TestBinaryRoundTrip(t *testing.T) {
	for _, arch := range []Architecture{Arch32, Arch64} {
		t.Run(arch.String(), func(t *testing.T) {
			p := sampleProgram(arch)
			data, err := p.MarshalBinary()
			require.NoError(t, err)
			assert.Equal(t, BinaryMagic, data[0:4])
			assert.Equal(t, byte(arch), data[6])

			got, err := UnmarshalProgram(data)
			require.NoError(t, err)
			assert.True(t, p.Equal(got), "decoded program differs:\n%s\nvs\n%s", p.Disassemble(), got.Disassemble())

			again, err := got.MarshalBinary()
			require.NoError(t, err)
			assert.Equal(t, data, again)
		})
	}
}

func TestBinaryOperandWidth(t *testing.T) {
	p := &Program{Arch: Arch32, Instructions: []Instruction{New(OpJMP, Absolute(3))}}
	d32, err := p.MarshalBinary()
	require.NoError(t, err)

	p.Arch = Arch64
	d64, err := p.MarshalBinary()
	require.NoError(t, err)

	// instruction count, the jump operand and the native count each widen
	assert.Equal(t, 3*4, len(d64)-len(d32))
}

func TestBinaryArch32Overflow(t *testing.T) {
	p := &Program{Arch: Arch32, Instructions: []Instruction{New(OpLDA, Immediate(Int(1 << 40)))}}
	_, err := p.MarshalBinary()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "does not fit in b32")
}

func TestUnmarshalRejectsGarbage(t *testing.T) {
	_, err := UnmarshalProgram([]byte("nope"))
	assert.Error(t, err)

	_, err = UnmarshalProgram([]byte("XXXX\x01\x00\x40\x00"))
	assert.ErrorContains(t, err, "invalid bytecode magic")

	data, err := sampleProgram(Arch64).MarshalBinary()
	require.NoError(t, err)
	_, err = UnmarshalProgram(data[:len(data)-3])
	assert.ErrorContains(t, err, "unexpected end of bytecode")

	_, err = UnmarshalProgram(append(data, 0))
	assert.ErrorContains(t, err, "trailing 1 bytes")
}

func TestValidate(t *testing.T) {
	p := sampleProgram(Arch64)
	require.NoError(t, p.Validate(DefaultMaxProgramSize))

	err := p.Validate(4)
	assert.True(t, errors.Is(err, ErrProgramTooLarge))

	p.Main = &MainFunction{Start: 0, End: 100}
	assert.ErrorContains(t, p.Validate(0), "main range")

	p = sampleProgram(Arch64)
	p.Natives[1].Index = 5
	assert.ErrorContains(t, p.Validate(0), "native import")
}

func TestFunctions(t *testing.T) {
	p := &Program{Arch: Arch64, Instructions: []Instruction{
		New(OpFN, Immediate(Int(10))),
		New(OpJMP, Absolute(3)),
		New(OpRET, Implicit()),
		New(OpFN, Immediate(Int(20))),
		New(OpJMP, Absolute(6)),
		New(OpRET, Implicit()),
	}}
	assert.Equal(t, map[uint64]int{10: 0, 20: 3}, p.Functions())
}

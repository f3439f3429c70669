package bytecode

import (
	"fmt"
	"strings"
)

// Register names one slot of a frame's register file.
type Register uint8

const (
	RegA Register = iota
	RegB
	RegC
	RegX
	RegY
	regCount
)

var registerNames = [...]string{"A", "B", "C", "X", "Y"}

func (r Register) String() string {
	if r < regCount {
		return registerNames[r]
	}
	return fmt.Sprintf("R%d", uint8(r))
}

// Valid reports whether r is one of A, B, C, X, Y.
func (r Register) Valid() bool { return r < regCount }

// Mode is the addressing mode tag of an operand.
type Mode uint8

const (
	ModeImplicit Mode = iota
	ModeImmediate
	ModeAbsolute
	ModeAbsoluteIndex
	ModeAbsoluteProperty
	ModeParameter
	ModeIndirectA
	ModeIndirectB
	ModeIndirectC
	ModeIndirectX
	ModeIndirectY
	modeCount
)

var modeNames = [...]string{
	ModeImplicit:         "implicit",
	ModeImmediate:        "immediate",
	ModeAbsolute:         "absolute",
	ModeAbsoluteIndex:    "absolute_index",
	ModeAbsoluteProperty: "absolute_property",
	ModeParameter:        "parameter",
	ModeIndirectA:        "indirect_a",
	ModeIndirectB:        "indirect_b",
	ModeIndirectC:        "indirect_c",
	ModeIndirectX:        "indirect_x",
	ModeIndirectY:        "indirect_y",
}

func (m Mode) String() string {
	if m < modeCount {
		return modeNames[m]
	}
	return fmt.Sprintf("mode(%d)", uint8(m))
}

// Valid reports whether m is a declared mode.
func (m Mode) Valid() bool { return m < modeCount }

// Register returns the register an indirect mode reads.
func (m Mode) Register() (Register, bool) {
	if m >= ModeIndirectA && m <= ModeIndirectY {
		return Register(m - ModeIndirectA), true
	}
	return 0, false
}

// ModeSet is a bit set of accepted modes.
type ModeSet uint16

// Modes builds a ModeSet.
func Modes(ms ...Mode) ModeSet {
	var s ModeSet
	for _, m := range ms {
		s |= 1 << m
	}
	return s
}

// indirectModes accepts every register as an operand.
var indirectModes = Modes(ModeIndirectA, ModeIndirectB, ModeIndirectC, ModeIndirectX, ModeIndirectY)

// Has reports whether m is in the set.
func (s ModeSet) Has(m Mode) bool { return m < modeCount && s&(1<<m) != 0 }

func (s ModeSet) String() string {
	var names []string
	for m := Mode(0); m < modeCount; m++ {
		if s.Has(m) {
			names = append(names, m.String())
		}
	}
	return strings.Join(names, "|")
}

// AddressingValue is a decoded operand.
//
// Loc carries the location for Absolute, the array slot for AbsoluteIndex,
// the object slot for AbsoluteProperty and the argument index for Parameter.
// Index carries the index slot for AbsoluteIndex and the field number for
// AbsoluteProperty. Imm is only meaningful for Immediate.
type AddressingValue struct {
	Mode  Mode  `cbor:"1,keyasint"`
	Loc   int   `cbor:"2,keyasint,omitempty"`
	Index int   `cbor:"3,keyasint,omitempty"`
	Imm   Value `cbor:"4,keyasint"`
}

func Implicit() AddressingValue { return AddressingValue{Mode: ModeImplicit} }

func Immediate(v Value) AddressingValue { return AddressingValue{Mode: ModeImmediate, Imm: v} }

func Absolute(loc int) AddressingValue { return AddressingValue{Mode: ModeAbsolute, Loc: loc} }

func AbsoluteIndex(array, index int) AddressingValue {
	return AddressingValue{Mode: ModeAbsoluteIndex, Loc: array, Index: index}
}

func AbsoluteProperty(object, field int) AddressingValue {
	return AddressingValue{Mode: ModeAbsoluteProperty, Loc: object, Index: field}
}

func Parameter(i int) AddressingValue { return AddressingValue{Mode: ModeParameter, Loc: i} }

func Indirect(r Register) AddressingValue {
	return AddressingValue{Mode: ModeIndirectA + Mode(r)}
}

// Equal compares operands structurally.
func (av AddressingValue) Equal(o AddressingValue) bool {
	return av.Mode == o.Mode && av.Loc == o.Loc && av.Index == o.Index && av.Imm.Equal(o.Imm)
}

func (av AddressingValue) String() string {
	switch av.Mode {
	case ModeImplicit:
		return ""
	case ModeImmediate:
		return "#" + av.Imm.GoString()
	case ModeAbsolute:
		return fmt.Sprintf("$%d", av.Loc)
	case ModeAbsoluteIndex:
		return fmt.Sprintf("$%d[$%d]", av.Loc, av.Index)
	case ModeAbsoluteProperty:
		return fmt.Sprintf("$%d.%d", av.Loc, av.Index)
	case ModeParameter:
		return fmt.Sprintf("@%d", av.Loc)
	}
	if r, ok := av.Mode.Register(); ok {
		return r.String()
	}
	return av.Mode.String()
}

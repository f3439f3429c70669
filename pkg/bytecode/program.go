package bytecode

import (
	"errors"
	"fmt"
)

// DefaultMaxProgramSize is the instruction ceiling of a single Program.
const DefaultMaxProgramSize = 4096

// ErrProgramTooLarge is wrapped by every size-ceiling failure.
var ErrProgramTooLarge = errors.New("program too large")

// MainFunction describes the entry point of a Program.
type MainFunction struct {
	Hash  uint64 `cbor:"1,keyasint" yaml:"hash"`
	Start int    `cbor:"2,keyasint" yaml:"start"`
	End   int    `cbor:"3,keyasint" yaml:"end"`
}

// NativeImport is a native function the Program calls through CALLN. Index is
// the operand the call site carries.
type NativeImport struct {
	Index  int    `cbor:"1,keyasint"`
	Name   string `cbor:"2,keyasint"`
	Hash   uint64 `cbor:"3,keyasint"`
	Params []Kind `cbor:"4,keyasint"`
	Return Kind   `cbor:"5,keyasint"`
}

// Program is an assembled, immutable instruction stream.
type Program struct {
	Arch         Architecture   `cbor:"1,keyasint"`
	Instructions []Instruction  `cbor:"2,keyasint"`
	Main         *MainFunction  `cbor:"3,keyasint,omitempty"`
	Natives      []NativeImport `cbor:"4,keyasint,omitempty"`
}

// Len returns the number of instructions.
func (p *Program) Len() int { return len(p.Instructions) }

// At returns the instruction at loc.
func (p *Program) At(loc int) (Instruction, bool) {
	if loc < 0 || loc >= len(p.Instructions) {
		return Instruction{}, false
	}
	return p.Instructions[loc], true
}

// Validate checks the structural properties a loader relies on. Opcode and
// addressing-mode checks are left to the executor, which reports them as
// panics at the offending location.
func (p *Program) Validate(maxSize int) error {
	if !p.Arch.Valid() {
		return fmt.Errorf("invalid architecture %d", uint8(p.Arch))
	}
	if maxSize > 0 && len(p.Instructions) > maxSize {
		return fmt.Errorf("%w: %d instructions exceeds %d", ErrProgramTooLarge, len(p.Instructions), maxSize)
	}
	if m := p.Main; m != nil {
		if m.Start < 0 || m.Start > m.End || m.End >= len(p.Instructions) {
			return fmt.Errorf("main range [%d, %d] outside program of %d instructions", m.Start, m.End, len(p.Instructions))
		}
	}
	for i, n := range p.Natives {
		if n.Index != i {
			return fmt.Errorf("native import %q has index %d at position %d", n.Name, n.Index, i)
		}
	}
	return nil
}

// Functions indexes every function header (FN with an integer immediate) by
// its hash.
func (p *Program) Functions() map[uint64]int {
	fns := make(map[uint64]int)
	for loc, in := range p.Instructions {
		if in.Op != OpFN || in.Addr.Mode != ModeImmediate {
			continue
		}
		if h, ok := in.Addr.Imm.AsInt(); ok {
			if _, dup := fns[uint64(h)]; !dup {
				fns[uint64(h)] = loc
			}
		}
	}
	return fns
}

// Equal compares two programs instruction by instruction.
func (p *Program) Equal(o *Program) bool {
	if p.Arch != o.Arch || len(p.Instructions) != len(o.Instructions) || len(p.Natives) != len(o.Natives) {
		return false
	}
	if (p.Main == nil) != (o.Main == nil) || (p.Main != nil && *p.Main != *o.Main) {
		return false
	}
	for i := range p.Instructions {
		if !p.Instructions[i].Equal(o.Instructions[i]) {
			return false
		}
	}
	for i := range p.Natives {
		a, b := p.Natives[i], o.Natives[i]
		if a.Index != b.Index || a.Name != b.Name || a.Hash != b.Hash || a.Return != b.Return || len(a.Params) != len(b.Params) {
			return false
		}
		for j := range a.Params {
			if a.Params[j] != b.Params[j] {
				return false
			}
		}
	}
	return true
}

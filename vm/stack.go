package vm

import "github.com/chazu/ellie/pkg/bytecode"

// Stack is one call frame. Pos is the next instruction to execute; Base and
// End bound the function (and its slot pool). Return values travel in A,
// with B as the secondary value.
type Stack struct {
	ID   uint64
	Pos  int
	Base int
	End  int

	A, B, C, X, Y bytecode.Value

	// Args are the arguments this frame received; Pending collects the
	// arguments of the next call it makes.
	Args    []bytecode.Value
	Pending []bytecode.Value

	Arch bytecode.Architecture

	owner Owner
}

func newStack(id uint64, base, end, pos int, arch bytecode.Architecture, owner Owner) *Stack {
	void := bytecode.Void()
	return &Stack{
		ID: id, Pos: pos, Base: base, End: end,
		A: void, B: void, C: void, X: void, Y: void,
		Arch:  arch,
		owner: owner,
	}
}

// Register returns the value of r.
func (s *Stack) Register(r bytecode.Register) bytecode.Value {
	switch r {
	case bytecode.RegA:
		return s.A
	case bytecode.RegB:
		return s.B
	case bytecode.RegC:
		return s.C
	case bytecode.RegX:
		return s.X
	case bytecode.RegY:
		return s.Y
	}
	return bytecode.Void()
}

// SetRegister assigns r.
func (s *Stack) SetRegister(r bytecode.Register, v bytecode.Value) {
	switch r {
	case bytecode.RegA:
		s.A = v
	case bytecode.RegB:
		s.B = v
	case bytecode.RegC:
		s.C = v
	case bytecode.RegX:
		s.X = v
	case bytecode.RegY:
		s.Y = v
	}
}

// Owner returns the thread the frame runs on.
func (s *Stack) Owner() Owner { return s.owner }

func (s *Stack) clone() Stack {
	c := *s
	c.Args = append([]bytecode.Value(nil), s.Args...)
	c.Pending = append([]bytecode.Value(nil), s.Pending...)
	return c
}

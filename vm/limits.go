package vm

import (
	"fmt"

	"github.com/chazu/ellie/pkg/bytecode"
)

// Limits are the resource ceilings a Thread enforces. Exceeding a ceiling
// panics with StackOverflow or HeapOutOfBounds, or fails Isolate.Load.
type Limits struct {
	// FrameSlots caps the slot pool of one function frame. The main frame's
	// pool is the whole program and is bounded by ProgramSize instead.
	FrameSlots int
	// CallDepth caps the number of live frames.
	CallDepth int
	// ProgramSize caps the instruction count of a loaded Program.
	ProgramSize int
	// StackSlots caps the slots of all live pools of a thread together.
	StackSlots int
	// ObjectSlots caps the field count of one constructed instance.
	ObjectSlots int
}

// DefaultLimits returns the stock ceilings.
func DefaultLimits() Limits {
	return Limits{
		FrameSlots:  2048,
		CallDepth:   512,
		ProgramSize: bytecode.DefaultMaxProgramSize,
		StackSlots:  262144,
		ObjectSlots: 65536,
	}
}

// Validate rejects non-positive ceilings.
func (l Limits) Validate() error {
	switch {
	case l.FrameSlots <= 0:
		return fmt.Errorf("frame slots must be positive, got %d", l.FrameSlots)
	case l.CallDepth <= 0:
		return fmt.Errorf("call depth must be positive, got %d", l.CallDepth)
	case l.ProgramSize <= 0:
		return fmt.Errorf("program size must be positive, got %d", l.ProgramSize)
	case l.StackSlots <= 0:
		return fmt.Errorf("stack slots must be positive, got %d", l.StackSlots)
	case l.ObjectSlots <= 0:
		return fmt.Errorf("object slots must be positive, got %d", l.ObjectSlots)
	}
	return nil
}

package vm

import "github.com/chazu/ellie/pkg/bytecode"

// load reads the value an addressing mode names.
func load(heap *HeapMemory, frame *Stack, mem *StackMemory, av bytecode.AddressingValue) (bytecode.Value, error) {
	switch av.Mode {
	case bytecode.ModeImmediate:
		return av.Imm, nil
	case bytecode.ModeAbsolute:
		return mem.Read(av.Loc)
	case bytecode.ModeAbsoluteIndex:
		ref, i, err := element(mem, av)
		if err != nil {
			return bytecode.Value{}, err
		}
		return heap.Element(ref, i)
	case bytecode.ModeAbsoluteProperty:
		ref, err := refAt(mem, av.Loc)
		if err != nil {
			return bytecode.Value{}, err
		}
		return heap.Element(ref, av.Index)
	case bytecode.ModeParameter:
		if av.Loc < 0 || av.Loc >= len(frame.Args) {
			return bytecode.Value{}, newPanic(ParameterAccessViolation, "parameter %d of %d", av.Loc, len(frame.Args))
		}
		return frame.Args[av.Loc], nil
	}
	if r, ok := av.Mode.Register(); ok {
		return frame.Register(r), nil
	}
	return bytecode.Value{}, newPanic(IllegalAddressingValue, "cannot load from %s", av.Mode)
}

// store writes v to the place an addressing mode names. Implicit names the
// slot of the executing instruction.
func store(heap *HeapMemory, frame *Stack, mem *StackMemory, av bytecode.AddressingValue, v bytecode.Value) error {
	switch av.Mode {
	case bytecode.ModeImplicit:
		return mem.Write(frame.Pos, v)
	case bytecode.ModeAbsolute:
		return mem.Write(av.Loc, v)
	case bytecode.ModeAbsoluteIndex:
		ref, i, err := element(mem, av)
		if err != nil {
			return err
		}
		return heap.SetElement(ref, i, v)
	case bytecode.ModeAbsoluteProperty:
		ref, err := refAt(mem, av.Loc)
		if err != nil {
			return err
		}
		return heap.SetElement(ref, av.Index, v)
	}
	if r, ok := av.Mode.Register(); ok {
		frame.SetRegister(r, v)
		return nil
	}
	return newPanic(IllegalAddressingValue, "cannot store to %s", av.Mode)
}

func refAt(mem *StackMemory, loc int) (uint64, error) {
	v, err := mem.Read(loc)
	if err != nil {
		return 0, err
	}
	ref, ok := v.AsRef()
	if !ok {
		if v.IsNull() {
			return 0, newPanic(NullReference, "slot %d holds null", loc)
		}
		return 0, newPanic(UnexpectedType, "slot %d holds %s, not a reference", loc, v.Kind())
	}
	return ref, nil
}

func element(mem *StackMemory, av bytecode.AddressingValue) (uint64, int, error) {
	ref, err := refAt(mem, av.Loc)
	if err != nil {
		return 0, 0, err
	}
	iv, err := mem.Read(av.Index)
	if err != nil {
		return 0, 0, err
	}
	i, ok := iv.AsInt()
	if !ok {
		if b, isByte := iv.AsByte(); isByte {
			return ref, int(b), nil
		}
		return 0, 0, newPanic(UnexpectedType, "index is %s, not int", iv.Kind())
	}
	return ref, int(i), nil
}

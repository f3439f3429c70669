package vm

import (
	"unicode/utf8"

	"github.com/chazu/ellie/pkg/bytecode"
)

// ---------------------------------------------------------------------------
// Executers: one function per opcode
// ---------------------------------------------------------------------------

// ResultKind tells the thread what to do after an instruction.
type ResultKind uint8

const (
	// Continue advances to the next instruction.
	Continue ResultKind = iota
	// DropStack returns from the current frame.
	DropStack
	// Call pushes a frame for the function whose header is at Target.
	Call
	// CallNative invokes native import Target.
	CallNative
	// Suspend parks the thread at a software breakpoint.
	Suspend
)

var resultNames = [...]string{"Continue", "DropStack", "Call", "CallNative", "Suspend"}

func (k ResultKind) String() string {
	if int(k) < len(resultNames) {
		return resultNames[k]
	}
	return "ResultKind(?)"
}

// ExecuterResult is what an Executer hands back to the thread.
type ExecuterResult struct {
	Kind   ResultKind
	Target int
}

var resultContinue = ExecuterResult{Kind: Continue}

// Executer runs one instruction. Executers keep no state of their own: all
// effects go through the frame, the stack memory and the heap.
type Executer func(heap *HeapMemory, program *bytecode.Program, frame *Stack, mem *StackMemory,
	av bytecode.AddressingValue, arch bytecode.Architecture) (ExecuterResult, error)

var executers = [256]Executer{
	bytecode.OpLDA: execLoad(bytecode.RegA),
	bytecode.OpLDB: execLoad(bytecode.RegB),
	bytecode.OpLDC: execLoad(bytecode.RegC),
	bytecode.OpLDX: execLoad(bytecode.RegX),
	bytecode.OpLDY: execLoad(bytecode.RegY),

	bytecode.OpSTA:  execStore(bytecode.RegA),
	bytecode.OpSTB:  execStore(bytecode.RegB),
	bytecode.OpSTC:  execStore(bytecode.RegC),
	bytecode.OpSTX:  execStore(bytecode.RegX),
	bytecode.OpSTY:  execStore(bytecode.RegY),
	bytecode.OpPUSH: execPush,

	bytecode.OpADD: execArith(bytecode.OpADD),
	bytecode.OpSUB: execArith(bytecode.OpSUB),
	bytecode.OpMUL: execArith(bytecode.OpMUL),
	bytecode.OpDIV: execArith(bytecode.OpDIV),
	bytecode.OpMOD: execArith(bytecode.OpMOD),
	bytecode.OpEXP: execArith(bytecode.OpEXP),
	bytecode.OpSAR: execArith(bytecode.OpSAR),

	bytecode.OpEQ: execCompare(bytecode.OpEQ),
	bytecode.OpNE: execCompare(bytecode.OpNE),
	bytecode.OpGT: execCompare(bytecode.OpGT),
	bytecode.OpLT: execCompare(bytecode.OpLT),
	bytecode.OpGQ: execCompare(bytecode.OpGQ),
	bytecode.OpLQ: execCompare(bytecode.OpLQ),

	bytecode.OpAND: execLogic(bytecode.OpAND),
	bytecode.OpOR:  execLogic(bytecode.OpOR),

	bytecode.OpA2I: execConvert(bytecode.KindInt),
	bytecode.OpA2F: execConvert(bytecode.KindFloat),
	bytecode.OpA2D: execConvert(bytecode.KindDouble),
	bytecode.OpA2B: execConvert(bytecode.KindByte),
	bytecode.OpA2S: execConvert(bytecode.KindString),
	bytecode.OpA2C: execConvert(bytecode.KindChar),
	bytecode.OpA2O: execConvert(bytecode.KindBool),
	bytecode.OpLEN: execLen,

	bytecode.OpJMP:   execJump,
	bytecode.OpJMPA:  execJumpIf,
	bytecode.OpFN:    execFn,
	bytecode.OpCALL:  execCall,
	bytecode.OpCALLN: execCallNative,
	bytecode.OpCO:    execConstruct,
	bytecode.OpRET:   execReturn,
	bytecode.OpBRK:   execBreak,
}

// executerFor returns the Executer of op.
func executerFor(op bytecode.Opcode) (Executer, bool) {
	e := executers[op]
	return e, e != nil
}

func execLoad(r bytecode.Register) Executer {
	return func(heap *HeapMemory, _ *bytecode.Program, frame *Stack, mem *StackMemory,
		av bytecode.AddressingValue, _ bytecode.Architecture) (ExecuterResult, error) {
		v, err := load(heap, frame, mem, av)
		if err != nil {
			return resultContinue, err
		}
		frame.SetRegister(r, v)
		return resultContinue, nil
	}
}

func execStore(r bytecode.Register) Executer {
	return func(heap *HeapMemory, _ *bytecode.Program, frame *Stack, mem *StackMemory,
		av bytecode.AddressingValue, _ bytecode.Architecture) (ExecuterResult, error) {
		return resultContinue, store(heap, frame, mem, av, frame.Register(r))
	}
}

func execPush(heap *HeapMemory, _ *bytecode.Program, frame *Stack, mem *StackMemory,
	av bytecode.AddressingValue, _ bytecode.Architecture) (ExecuterResult, error) {
	v, err := load(heap, frame, mem, av)
	if err != nil {
		return resultContinue, err
	}
	frame.Pending = append(frame.Pending, v)
	return resultContinue, nil
}

func execArith(op bytecode.Opcode) Executer {
	return func(_ *HeapMemory, _ *bytecode.Program, frame *Stack, _ *StackMemory,
		_ bytecode.AddressingValue, arch bytecode.Architecture) (ExecuterResult, error) {
		v, err := arith(op, frame.B, frame.C, arch)
		if err != nil {
			return resultContinue, err
		}
		frame.A = v
		return resultContinue, nil
	}
}

func execCompare(op bytecode.Opcode) Executer {
	return func(_ *HeapMemory, _ *bytecode.Program, frame *Stack, _ *StackMemory,
		_ bytecode.AddressingValue, _ bytecode.Architecture) (ExecuterResult, error) {
		v, err := compare(op, frame.B, frame.C)
		if err != nil {
			return resultContinue, err
		}
		frame.A = v
		return resultContinue, nil
	}
}

func execLogic(op bytecode.Opcode) Executer {
	return func(_ *HeapMemory, _ *bytecode.Program, frame *Stack, _ *StackMemory,
		_ bytecode.AddressingValue, _ bytecode.Architecture) (ExecuterResult, error) {
		v, err := logic(op, frame.B, frame.C)
		if err != nil {
			return resultContinue, err
		}
		frame.A = v
		return resultContinue, nil
	}
}

func execConvert(to bytecode.Kind) Executer {
	return func(_ *HeapMemory, _ *bytecode.Program, frame *Stack, _ *StackMemory,
		_ bytecode.AddressingValue, arch bytecode.Architecture) (ExecuterResult, error) {
		v, err := convert(to, frame.A, arch)
		if err != nil {
			return resultContinue, err
		}
		frame.A = v
		return resultContinue, nil
	}
}

func execLen(heap *HeapMemory, _ *bytecode.Program, frame *Stack, _ *StackMemory,
	_ bytecode.AddressingValue, _ bytecode.Architecture) (ExecuterResult, error) {
	switch frame.A.Kind() {
	case bytecode.KindString:
		s, _ := frame.A.AsString()
		frame.A = bytecode.Int(int64(utf8.RuneCountInString(s)))
	case bytecode.KindRef:
		h, _ := frame.A.AsRef()
		n, err := heap.BlockLen(h)
		if err != nil {
			return resultContinue, err
		}
		frame.A = bytecode.Int(int64(n))
	default:
		return resultContinue, newPanic(UnexpectedType, "length of %s", frame.A.Kind())
	}
	return resultContinue, nil
}

func jumpTo(program *bytecode.Program, frame *Stack, target int) (ExecuterResult, error) {
	if target < 0 || target >= program.Len() {
		return resultContinue, newPanic(OutOfInstructions, "jump to %d outside program of %d", target, program.Len())
	}
	// the thread advances Pos after Continue
	frame.Pos = target - 1
	return resultContinue, nil
}

func execJump(_ *HeapMemory, program *bytecode.Program, frame *Stack, _ *StackMemory,
	av bytecode.AddressingValue, _ bytecode.Architecture) (ExecuterResult, error) {
	return jumpTo(program, frame, av.Loc)
}

func execJumpIf(_ *HeapMemory, program *bytecode.Program, frame *Stack, _ *StackMemory,
	av bytecode.AddressingValue, _ bytecode.Architecture) (ExecuterResult, error) {
	cond, ok := frame.A.AsBool()
	if !ok {
		return resultContinue, newPanic(UnexpectedType, "JMPA on %s", frame.A.Kind())
	}
	if !cond {
		return resultContinue, nil
	}
	return jumpTo(program, frame, av.Loc)
}

func execFn(_ *HeapMemory, _ *bytecode.Program, _ *Stack, _ *StackMemory,
	_ bytecode.AddressingValue, _ bytecode.Architecture) (ExecuterResult, error) {
	return resultContinue, nil
}

// functionAt checks the header at loc and returns the function's hash and
// the location of its closing RET.
func functionAt(program *bytecode.Program, loc int) (uint64, int, error) {
	fn, ok := program.At(loc)
	if !ok || fn.Op != bytecode.OpFN || fn.Addr.Mode != bytecode.ModeImmediate {
		return 0, 0, newPanic(CallToUnknown, "no function header at %d", loc)
	}
	h, ok := fn.Addr.Imm.AsInt()
	if !ok {
		return 0, 0, newPanic(CallToUnknown, "function header at %d has a %s hash", loc, fn.Addr.Imm.Kind())
	}
	skip, ok := program.At(loc + 1)
	if !ok || skip.Op != bytecode.OpJMP || skip.Addr.Mode != bytecode.ModeAbsolute {
		return 0, 0, newPanic(CallToUnknown, "function at %d has no body jump", loc)
	}
	end := skip.Addr.Loc - 1
	ret, ok := program.At(end)
	if !ok || end < loc+2 || ret.Op != bytecode.OpRET {
		return 0, 0, newPanic(CallToUnknown, "function at %d does not end in RET", loc)
	}
	return uint64(h), end, nil
}

func execCall(_ *HeapMemory, program *bytecode.Program, _ *Stack, _ *StackMemory,
	av bytecode.AddressingValue, _ bytecode.Architecture) (ExecuterResult, error) {
	if _, _, err := functionAt(program, av.Loc); err != nil {
		return resultContinue, err
	}
	return ExecuterResult{Kind: Call, Target: av.Loc}, nil
}

func execCallNative(_ *HeapMemory, _ *bytecode.Program, _ *Stack, _ *StackMemory,
	av bytecode.AddressingValue, _ bytecode.Architecture) (ExecuterResult, error) {
	idx, ok := av.Imm.AsInt()
	if !ok {
		return resultContinue, newPanic(UnexpectedType, "native index is %s", av.Imm.Kind())
	}
	return ExecuterResult{Kind: CallNative, Target: int(idx)}, nil
}

// execConstruct builds an array from the last n pending values
// (Immediate n), or allocates an instance and calls its constructor
// (AbsoluteIndex(ctor, fields)).
func execConstruct(heap *HeapMemory, program *bytecode.Program, frame *Stack, _ *StackMemory,
	av bytecode.AddressingValue, _ bytecode.Architecture) (ExecuterResult, error) {
	if av.Mode == bytecode.ModeImmediate {
		n, ok := av.Imm.AsInt()
		if !ok || n < 0 {
			return resultContinue, newPanic(UnexpectedType, "array size %s", av.Imm)
		}
		if int(n) > len(frame.Pending) {
			return resultContinue, newPanic(ParameterAccessViolation, "array of %d from %d pending values", n, len(frame.Pending))
		}
		cut := len(frame.Pending) - int(n)
		h := heap.AllocateBlock(frame.owner, frame.Pending[cut:])
		frame.Pending = frame.Pending[:cut]
		frame.A = bytecode.Ref(h)
		return resultContinue, nil
	}

	if _, _, err := functionAt(program, av.Loc); err != nil {
		return resultContinue, err
	}
	if av.Index < 0 {
		return resultContinue, newPanic(IllegalAddressingValue, "negative field count %d", av.Index)
	}
	if err := heap.checkBlock(av.Index); err != nil {
		return resultContinue, err
	}
	fields := make([]bytecode.Value, av.Index)
	for i := range fields {
		fields[i] = bytecode.Null()
	}
	frame.X = bytecode.Ref(heap.AllocateBlock(frame.owner, fields))
	return ExecuterResult{Kind: Call, Target: av.Loc}, nil
}

func execReturn(_ *HeapMemory, _ *bytecode.Program, _ *Stack, _ *StackMemory,
	_ bytecode.AddressingValue, _ bytecode.Architecture) (ExecuterResult, error) {
	return ExecuterResult{Kind: DropStack}, nil
}

func execBreak(_ *HeapMemory, _ *bytecode.Program, _ *Stack, _ *StackMemory,
	_ bytecode.AddressingValue, _ bytecode.Architecture) (ExecuterResult, error) {
	return ExecuterResult{Kind: Suspend}, nil
}

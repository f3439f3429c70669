package vm

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chazu/ellie/pkg/bytecode"
)

// ---------------------------------------------------------------------------
// Straight-line execution
// ---------------------------------------------------------------------------

func TestRunArithmetic(t *testing.T) {
	th, v, err := runProgram(t, mainProgram(
		ins(bytecode.OpLDB, imm(bytecode.Int(2))),
		ins(bytecode.OpLDC, imm(bytecode.Int(3))),
		ins(bytecode.OpADD),
		ins(bytecode.OpRET),
	))
	require.NoError(t, err)
	assert.Equal(t, bytecode.Int(5), v)
	assert.Equal(t, Completed, th.State())
	assert.Equal(t, bytecode.Int(5), th.Result())
	assert.Equal(t, uint64(4), th.Stats().Steps)
}

func TestImplicitStoreNamesOwnSlot(t *testing.T) {
	_, v, err := runProgram(t, mainProgram(
		ins(bytecode.OpLDA, imm(bytecode.Int(5))),
		ins(bytecode.OpSTA),
		ins(bytecode.OpLDB, loc(1)),
		ins(bytecode.OpLDC, imm(bytecode.Int(2))),
		ins(bytecode.OpSUB),
		ins(bytecode.OpRET),
	))
	require.NoError(t, err)
	assert.Equal(t, bytecode.Int(3), v)
}

func TestConditionalJump(t *testing.T) {
	prog := func(cond bool) *bytecode.Program {
		return mainProgram(
			ins(bytecode.OpLDA, imm(bytecode.Bool(cond))),
			ins(bytecode.OpJMPA, loc(4)),
			ins(bytecode.OpLDA, imm(bytecode.String("else"))),
			ins(bytecode.OpRET),
			ins(bytecode.OpLDA, imm(bytecode.String("then"))),
			ins(bytecode.OpRET),
		)
	}
	_, v, err := runProgram(t, prog(true))
	require.NoError(t, err)
	assert.Equal(t, bytecode.String("then"), v)
	_, v, err = runProgram(t, prog(false))
	require.NoError(t, err)
	assert.Equal(t, bytecode.String("else"), v)
}

// ---------------------------------------------------------------------------
// Calls
// ---------------------------------------------------------------------------

func TestCallWithArguments(t *testing.T) {
	th, v, err := runProgram(t, mulProgram())
	require.NoError(t, err)
	assert.Equal(t, bytecode.Int(42), v)
	assert.Equal(t, uint64(2), th.Stats().Pushes)
	assert.Equal(t, th.Stats().Pushes, th.Stats().Drops)
	assert.Zero(t, th.Memory().Depth())
}

func TestRecursionGetsFreshLocals(t *testing.T) {
	th, v, err := runProgram(t, factorialProgram(5))
	require.NoError(t, err)
	assert.Equal(t, bytecode.Int(120), v)
	assert.Equal(t, uint64(6), th.Stats().Pushes)
	assert.Equal(t, th.Stats().Pushes, th.Stats().Drops)
}

func TestPrepareCall(t *testing.T) {
	iso := NewIsolate()
	lp, err := iso.Load(mulProgram())
	require.NoError(t, err)
	th, err := iso.NewThread(lp)
	require.NoError(t, err)

	require.NoError(t, th.PrepareCall(7, bytecode.Int(3), bytecode.Int(4)))
	assert.Error(t, th.PrepareMain(), "a thread is prepared once")

	v, err := th.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, bytecode.Int(12), v)

	th2, err := iso.NewThread(lp)
	require.NoError(t, err)
	assert.ErrorIs(t, th2.PrepareCall(8), CallToUnknown)
}

func TestConstructArrayAndIndex(t *testing.T) {
	build := func(index int64) *bytecode.Program {
		return mainProgram(
			ins(bytecode.OpPUSH, imm(bytecode.Int(10))),
			ins(bytecode.OpPUSH, imm(bytecode.Int(20))),
			ins(bytecode.OpPUSH, imm(bytecode.Int(30))),
			ins(bytecode.OpCO, imm(bytecode.Int(3))),
			ins(bytecode.OpSTA),
			ins(bytecode.OpLDA, imm(bytecode.Int(index))),
			ins(bytecode.OpSTA),
			ins(bytecode.OpLDA, bytecode.AbsoluteIndex(4, 6)),
			ins(bytecode.OpRET),
		)
	}

	th, v, err := runProgram(t, build(1))
	require.NoError(t, err)
	assert.Equal(t, bytecode.Int(20), v)
	assert.Equal(t, 4, th.iso.Heap().Len())

	th, _, err = runProgram(t, build(3))
	assert.ErrorIs(t, err, IndexOutOfBounds)
	assert.Equal(t, 7, th.Panic().Pos)
}

func TestLength(t *testing.T) {
	_, v, err := runProgram(t, mainProgram(
		ins(bytecode.OpPUSH, imm(bytecode.Int(1))),
		ins(bytecode.OpPUSH, imm(bytecode.Int(2))),
		ins(bytecode.OpCO, imm(bytecode.Int(2))),
		ins(bytecode.OpLEN),
		ins(bytecode.OpRET),
	))
	require.NoError(t, err)
	assert.Equal(t, bytecode.Int(2), v)

	_, v, err = runProgram(t, mainProgram(
		ins(bytecode.OpLDA, imm(bytecode.String("héllo"))),
		ins(bytecode.OpLEN),
		ins(bytecode.OpRET),
	))
	require.NoError(t, err)
	assert.Equal(t, bytecode.Int(5), v)
}

func TestConstructInstance(t *testing.T) {
	th, v, err := runProgram(t, mainProgram(
		ins(bytecode.OpFN, imm(bytecode.Int(3))),
		ins(bytecode.OpJMP, loc(8)),
		ins(bytecode.OpLDA, reg(bytecode.RegX)),
		ins(bytecode.OpSTA),
		ins(bytecode.OpLDA, param(0)),
		ins(bytecode.OpSTA, bytecode.AbsoluteProperty(3, 1)),
		ins(bytecode.OpLDA, loc(3)),
		ins(bytecode.OpRET),
		ins(bytecode.OpPUSH, imm(bytecode.Int(99))),
		ins(bytecode.OpCO, bytecode.AbsoluteIndex(0, 2)),
		ins(bytecode.OpSTA),
		ins(bytecode.OpLDA, bytecode.AbsoluteProperty(10, 1)),
		ins(bytecode.OpRET),
	))
	require.NoError(t, err)
	assert.Equal(t, bytecode.Int(99), v)
	assert.Equal(t, uint64(2), th.Stats().Drops)
}

func TestConstructChecksObjectSlots(t *testing.T) {
	p := mainProgram(
		ins(bytecode.OpFN, imm(bytecode.Int(1))),
		ins(bytecode.OpJMP, loc(3)),
		ins(bytecode.OpRET),
	)
	heap := NewHeapMemory()
	heap.maxBlock = 4
	frame := newStack(1, 0, 2, 3, bytecode.Arch64, 1)

	_, err := execConstruct(heap, p, frame, nil, bytecode.AbsoluteIndex(0, 1<<40), bytecode.Arch64)
	assert.ErrorIs(t, err, HeapOutOfBounds)
	assert.Equal(t, 0, heap.Len(), "nothing allocated")

	res, err := execConstruct(heap, p, frame, nil, bytecode.AbsoluteIndex(0, 4), bytecode.Arch64)
	require.NoError(t, err)
	assert.Equal(t, Call, res.Kind)
	assert.Equal(t, 5, heap.Len())
}

func TestJumpSkipsToTarget(t *testing.T) {
	th := newThread(t, NewIsolate(), mainProgram(
		ins(bytecode.OpJMP, loc(3)),
		ins(bytecode.OpLDA, imm(bytecode.Int(1))),
		ins(bytecode.OpRET),
		ins(bytecode.OpLDA, imm(bytecode.Int(2))),
		ins(bytecode.OpRET),
	))
	var executed []int
	th.SetTrace(func(frame *Stack, _ bytecode.Instruction) { executed = append(executed, frame.Pos) })

	v, err := th.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []int{0, 3, 4}, executed)
	assert.Equal(t, bytecode.Int(2), v)
}

// ---------------------------------------------------------------------------
// Panics
// ---------------------------------------------------------------------------

func TestPanics(t *testing.T) {
	tests := []struct {
		name string
		prog *bytecode.Program
		want PanicReason
		pos  int
	}{
		{"division by zero", mainProgram(
			ins(bytecode.OpLDB, imm(bytecode.Int(1))),
			ins(bytecode.OpLDC, imm(bytecode.Int(0))),
			ins(bytecode.OpDIV),
			ins(bytecode.OpRET),
		), DivisionByZero, 2},
		{"double division by zero", mainProgram(
			ins(bytecode.OpLDB, imm(bytecode.Double(1))),
			ins(bytecode.OpLDC, imm(bytecode.Double(0))),
			ins(bytecode.OpDIV),
			ins(bytecode.OpRET),
		), DivisionByZero, 2},
		{"unknown opcode", mainProgram(
			ins(bytecode.OpLDA, imm(bytecode.Int(1))),
			bytecode.Instruction{Op: 0x99},
		), UnknownOpcode, 1},
		{"illegal mode", mainProgram(
			ins(bytecode.OpADD, imm(bytecode.Int(1))),
			ins(bytecode.OpRET),
		), IllegalAddressingValue, 0},
		{"ret with an operand", mainProgram(
			ins(bytecode.OpRET, imm(bytecode.Int(1))),
		), IllegalAddressingValue, 0},
		{"run off the end", mainProgram(
			ins(bytecode.OpLDA, imm(bytecode.Int(1))),
		), OutOfInstructions, 1},
		{"jump outside", mainProgram(
			ins(bytecode.OpJMP, loc(40)),
		), OutOfInstructions, 0},
		{"missing parameter", mainProgram(
			ins(bytecode.OpLDA, param(0)),
			ins(bytecode.OpRET),
		), ParameterAccessViolation, 0},
		{"unset slot", mainProgram(
			ins(bytecode.OpLDA, loc(1)),
			ins(bytecode.OpRET),
		), NullReference, 0},
		{"call a non-function", mainProgram(
			ins(bytecode.OpCALL, loc(1)),
			ins(bytecode.OpRET),
		), CallToUnknown, 0},
		{"branch on int", mainProgram(
			ins(bytecode.OpLDA, imm(bytecode.Int(1))),
			ins(bytecode.OpJMPA, loc(0)),
		), UnexpectedType, 1},
		{"length of int", mainProgram(
			ins(bytecode.OpLDA, imm(bytecode.Int(1))),
			ins(bytecode.OpLEN),
		), UnexpectedType, 1},
		{"bad conversion", mainProgram(
			ins(bytecode.OpLDA, imm(bytecode.String("x"))),
			ins(bytecode.OpA2I),
		), CannotConvertToType, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			th, _, err := runProgram(t, tt.prog)
			require.ErrorIs(t, err, tt.want)
			assert.Equal(t, Panicked, th.State())
			p := th.Panic()
			require.NotNil(t, p)
			assert.Equal(t, tt.pos, p.Pos)
			assert.Equal(t, uint64(1), p.Frame)
			assert.NotEmpty(t, p.CodeLocation)

			reason, ok := ReasonOf(err)
			assert.True(t, ok)
			assert.Equal(t, tt.want, reason)
		})
	}
}

func TestStackOverflow(t *testing.T) {
	iso := NewIsolate(WithLimits(Limits{FrameSlots: 16, CallDepth: 8, ProgramSize: 100, StackSlots: 1000, ObjectSlots: 16}))
	th := newThread(t, iso, mainProgram(
		ins(bytecode.OpFN, imm(bytecode.Int(1))),
		ins(bytecode.OpJMP, loc(4)),
		ins(bytecode.OpCALL, loc(0)),
		ins(bytecode.OpRET),
		ins(bytecode.OpCALL, loc(0)),
		ins(bytecode.OpRET),
	))
	_, err := th.Run(context.Background())
	require.ErrorIs(t, err, StackOverflow)
	assert.Equal(t, 2, th.Panic().Pos)
	assert.Len(t, th.Frames(), 8)
}

func TestArch32Overflow(t *testing.T) {
	p := mainProgram(
		ins(bytecode.OpLDB, imm(bytecode.Int(1<<31-1))),
		ins(bytecode.OpLDC, imm(bytecode.Int(1))),
		ins(bytecode.OpADD),
		ins(bytecode.OpRET),
	)
	p.Arch = bytecode.Arch32
	_, _, err := runProgram(t, p)
	assert.ErrorIs(t, err, IntegerOverflow)
}

// ---------------------------------------------------------------------------
// Breakpoints, stepping and cancellation
// ---------------------------------------------------------------------------

func addProgram() *bytecode.Program {
	return mainProgram(
		ins(bytecode.OpLDB, imm(bytecode.Int(2))),
		ins(bytecode.OpLDC, imm(bytecode.Int(3))),
		ins(bytecode.OpADD),
		ins(bytecode.OpRET),
	)
}

func TestBreakpoint(t *testing.T) {
	ctx := context.Background()
	th := newThread(t, NewIsolate(), addProgram())
	require.NoError(t, th.SetBreakpoint(2))
	assert.Error(t, th.SetBreakpoint(4))
	assert.Equal(t, []int{2}, th.Breakpoints())

	v, err := th.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, bytecode.Value{}, v)
	assert.Equal(t, AtBreakpoint, th.State())
	assert.Equal(t, 2, th.Pos())
	frames := th.Frames()
	require.Len(t, frames, 1)
	assert.Equal(t, bytecode.Int(2), frames[0].B)
	assert.Equal(t, bytecode.Int(3), frames[0].C)

	v, err = th.Continue(ctx)
	require.NoError(t, err)
	assert.Equal(t, bytecode.Int(5), v)

	_, err = th.Continue(ctx)
	assert.Error(t, err, "a completed thread cannot continue")
	assert.Error(t, th.ClearBreakpoint(3))
	require.NoError(t, th.ClearBreakpoint(2))
}

func TestStep(t *testing.T) {
	ctx := context.Background()
	th := newThread(t, NewIsolate(), addProgram())

	for want := 1; want <= 3; want++ {
		require.NoError(t, th.Step(ctx))
		assert.Equal(t, AtBreakpoint, th.State())
		assert.Equal(t, want, th.Pos())
	}
	require.NoError(t, th.Step(ctx))
	assert.Equal(t, Completed, th.State())
	assert.Equal(t, bytecode.Int(5), th.Result())
	assert.Error(t, th.Step(ctx))
}

func TestSoftwareBreakpoint(t *testing.T) {
	ctx := context.Background()
	th := newThread(t, NewIsolate(), mainProgram(
		ins(bytecode.OpLDA, imm(bytecode.Int(1))),
		ins(bytecode.OpBRK),
		ins(bytecode.OpRET),
	))
	_, err := th.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, AtBreakpoint, th.State())
	assert.Equal(t, 2, th.Pos())

	v, err := th.Continue(ctx)
	require.NoError(t, err)
	assert.Equal(t, bytecode.Int(1), v)
}

func loopProgram() *bytecode.Program {
	return mainProgram(ins(bytecode.OpJMP, loc(0)))
}

func TestCancelByContext(t *testing.T) {
	th := newThread(t, NewIsolate(), loopProgram())
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := th.Run(ctx)
	assert.ErrorIs(t, err, ErrCancelled)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, Cancelled, th.State())
}

func TestCancelFromAnotherGoroutine(t *testing.T) {
	th := newThread(t, NewIsolate(), loopProgram())
	go func() {
		time.Sleep(10 * time.Millisecond)
		th.Cancel()
	}()
	_, err := th.Run(context.Background())
	assert.ErrorIs(t, err, ErrCancelled)
	assert.True(t, th.State().Terminal())
}

func TestTrace(t *testing.T) {
	th := newThread(t, NewIsolate(), mulProgram())
	var ops []bytecode.Opcode
	th.SetTrace(func(_ *Stack, in bytecode.Instruction) {
		ops = append(ops, in.Op)
	})
	_, err := th.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, th.Stats().Steps, uint64(len(ops)))
	assert.Equal(t, bytecode.OpFN, ops[0])
	assert.Equal(t, bytecode.OpRET, ops[len(ops)-1])
}

func TestCloseReleasesHeap(t *testing.T) {
	iso := NewIsolate()
	th := newThread(t, iso, mainProgram(
		ins(bytecode.OpPUSH, imm(bytecode.Int(1))),
		ins(bytecode.OpCO, imm(bytecode.Int(1))),
		ins(bytecode.OpRET),
	))
	_, err := th.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, iso.Heap().Len())

	th.Close()
	assert.Zero(t, iso.Heap().Len())
	assert.Equal(t, Completed, th.State())
}

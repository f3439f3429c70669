package vm

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chazu/ellie/pkg/bytecode"
)

func mulDebugInfo() *bytecode.DebugInfo {
	d := &bytecode.DebugInfo{}
	d.Add(bytecode.DebugHeader{Kind: bytecode.DebugFunction, Name: "main", Module: "main.ei", Start: 0, End: 12,
		Pos: bytecode.Span{StartLine: 1, StartCol: 1, EndLine: 9, EndCol: 1}})
	d.Add(bytecode.DebugHeader{Kind: bytecode.DebugFunction, Name: "mul", Module: "main.ei", Start: 0, End: 8,
		Pos: bytecode.Span{StartLine: 2, StartCol: 1, EndLine: 5, EndCol: 2}})
	d.Add(bytecode.DebugHeader{Kind: bytecode.DebugParameter, Name: "a", Module: "main.ei", Start: 3, End: 4,
		Pos: bytecode.Span{StartLine: 2, StartCol: 8, EndLine: 2, EndCol: 9}})
	return d
}

func drain(d *Debugger) []DebugEvent {
	var events []DebugEvent
	for {
		select {
		case ev := <-d.Events():
			events = append(events, ev)
		default:
			return events
		}
	}
}

func loadedDebugger(t *testing.T) *Debugger {
	t.Helper()
	d := NewDebugger(NewIsolate())
	require.NoError(t, d.Load(mulProgram(), mulDebugInfo()))
	return d
}

func TestDebuggerNothingLoaded(t *testing.T) {
	d := NewDebugger(NewIsolate())
	assert.Error(t, d.SetBreakpoint(0))
	assert.Nil(t, d.Breakpoints())
	assert.Nil(t, d.InspectStack())
	_, err := d.Run(context.Background())
	assert.Error(t, err)
}

func TestDebuggerBreakAtFunction(t *testing.T) {
	ctx := context.Background()
	d := loadedDebugger(t)

	loc, err := d.BreakAtFunction("mul")
	require.NoError(t, err)
	assert.Equal(t, 2, loc)
	assert.Equal(t, []int{2}, d.Breakpoints())
	_, err = d.BreakAtFunction("div")
	assert.Error(t, err)

	_, err = d.Run(ctx)
	require.NoError(t, err)
	events := drain(d)
	require.Len(t, events, 1)
	assert.Equal(t, "breakpointHit", events[0].Type)
	assert.Equal(t, 2, events[0].Pos)
	require.NotNil(t, events[0].Location)
	assert.Equal(t, "mul", events[0].Location.Function)
	assert.Equal(t, 2, events[0].Location.Line)

	stack := d.InspectStack()
	require.Len(t, stack, 2)
	assert.Equal(t, 1, stack[0].Depth, "innermost first")
	assert.Equal(t, uint64(7), stack[0].ID)
	require.Len(t, stack[0].Args, 2)
	assert.Equal(t, "6", stack[0].Args[0].Value)
	assert.Equal(t, "int", stack[0].Args[1].Type)
	assert.Empty(t, stack[0].Locals, "a is not stored yet")
	assert.Len(t, stack[0].Registers, 5)
	assert.Equal(t, "main", stack[1].Location.Function)

	require.NoError(t, d.Step(ctx))
	require.NoError(t, d.Step(ctx))
	stack = d.InspectStack()
	require.Len(t, stack[0].Locals, 1)
	assert.Equal(t, Variable{Name: "a", Value: "6", Type: "int"}, stack[0].Locals[0])
	assert.Empty(t, stack[1].Locals)

	events = drain(d)
	require.Len(t, events, 2)
	assert.Equal(t, "stopped", events[1].Type)
	assert.Equal(t, 4, events[1].Pos)

	v, err := d.Continue(ctx)
	require.NoError(t, err)
	assert.Equal(t, bytecode.Int(42), v)
	events = drain(d)
	require.Len(t, events, 2)
	assert.Equal(t, "continued", events[0].Type)
	assert.Equal(t, "terminated", events[1].Type)
	assert.Equal(t, "completed", events[1].Reason)
}

func TestDebuggerStepOverAndOut(t *testing.T) {
	ctx := context.Background()
	d := loadedDebugger(t)

	require.NoError(t, d.SetBreakpoint(10))
	_, err := d.Run(ctx)
	require.NoError(t, err)
	require.Equal(t, 10, d.Thread().Pos())

	require.NoError(t, d.StepWith(ctx, StepOver))
	th := d.Thread()
	assert.Equal(t, 11, th.Pos())
	frames := th.Frames()
	require.Len(t, frames, 1)
	assert.Equal(t, bytecode.Int(42), frames[0].A)

	d = loadedDebugger(t)
	_, err = d.BreakAtFunction("mul")
	require.NoError(t, err)
	_, err = d.Run(ctx)
	require.NoError(t, err)
	require.NoError(t, d.StepWith(ctx, StepOut))
	assert.Equal(t, 11, d.Thread().Pos())
	assert.Len(t, d.Thread().Frames(), 1)
}

func TestDebuggerStepOverStopsAtBreakpoint(t *testing.T) {
	ctx := context.Background()
	d := loadedDebugger(t)
	require.NoError(t, d.SetBreakpoint(10))
	require.NoError(t, d.SetBreakpoint(4))
	_, err := d.Run(ctx)
	require.NoError(t, err)

	require.NoError(t, d.StepWith(ctx, StepOver))
	assert.Equal(t, 4, d.Thread().Pos())
	events := drain(d)
	assert.Equal(t, "breakpointHit", events[len(events)-1].Type)
}

func TestDebuggerException(t *testing.T) {
	d := NewDebugger(NewIsolate())
	require.NoError(t, d.Load(mainProgram(
		ins(bytecode.OpLDB, imm(bytecode.Int(1))),
		ins(bytecode.OpLDC, imm(bytecode.Int(0))),
		ins(bytecode.OpDIV),
		ins(bytecode.OpRET),
	), nil))

	_, err := d.Run(context.Background())
	require.ErrorIs(t, err, DivisionByZero)
	events := drain(d)
	require.Len(t, events, 1)
	assert.Equal(t, "exception", events[0].Type)
	assert.Equal(t, 2, events[0].Pos)
	assert.Nil(t, events[0].Location, "no debug info")
}

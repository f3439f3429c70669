package vm

import (
	"context"
	"fmt"
	"sync"

	"github.com/chazu/ellie/pkg/bytecode"
)

// ---------------------------------------------------------------------------
// Debugger: breakpoints, stepping and stack inspection over one Thread
// ---------------------------------------------------------------------------

// Debugger drives a single Thread for interactive debugging. DebugInfo is
// optional; without it frames and locals are reported by location only.
type Debugger struct {
	iso       *Isolate
	thread    *Thread
	debug     *bytecode.DebugInfo
	eventChan chan DebugEvent
	mu        sync.Mutex
}

// StepMode selects how far Step-family calls run.
type StepMode int

const (
	StepInto StepMode = iota
	StepOver
	StepOut
)

// ---------------------------------------------------------------------------
// Debug events for clients
// ---------------------------------------------------------------------------

// DebugEvent is sent on the Events channel whenever the thread stops.
type DebugEvent struct {
	Type     string // "stopped", "breakpointHit", "exception", "terminated"
	Reason   string
	Pos      int
	Location *SourceLocation
}

// SourceLocation names the code around an instruction.
type SourceLocation struct {
	Module   string
	Function string
	Line     int
	Column   int
}

// StackFrame is one frame as seen by InspectStack.
type StackFrame struct {
	Depth     int
	ID        uint64
	Pos       int
	Location  *SourceLocation
	Registers []Variable
	Args      []Variable
	Locals    []Variable
}

// Variable is a named value rendered for display.
type Variable struct {
	Name  string
	Value string
	Type  string
}

// NewDebugger creates a debugger over iso.
func NewDebugger(iso *Isolate) *Debugger {
	return &Debugger{
		iso:       iso,
		eventChan: make(chan DebugEvent, 16),
	}
}

// Events returns the event channel. Events are dropped when it is full.
func (d *Debugger) Events() <-chan DebugEvent {
	return d.eventChan
}

// Load binds p to the Isolate and prepares a thread at its main function.
func (d *Debugger) Load(p *bytecode.Program, debug *bytecode.DebugInfo) error {
	lp, err := d.iso.Load(p)
	if err != nil {
		return err
	}
	t, err := d.iso.NewThread(lp)
	if err != nil {
		return err
	}
	if err := t.PrepareMain(); err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.thread != nil {
		d.thread.Close()
	}
	d.thread = t
	d.debug = debug
	return nil
}

// Thread returns the debugged thread.
func (d *Debugger) Thread() *Thread {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.thread
}

func (d *Debugger) loaded() (*Thread, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.thread == nil {
		return nil, fmt.Errorf("no program loaded")
	}
	return d.thread, nil
}

// ---------------------------------------------------------------------------
// Breakpoint management
// ---------------------------------------------------------------------------

// SetBreakpoint sets a breakpoint at instruction loc.
func (d *Debugger) SetBreakpoint(loc int) error {
	t, err := d.loaded()
	if err != nil {
		return err
	}
	return t.SetBreakpoint(loc)
}

// BreakAtFunction sets a breakpoint on the first body instruction of the
// function, method or constructor called name. It needs DebugInfo.
func (d *Debugger) BreakAtFunction(name string) (int, error) {
	for _, kind := range []bytecode.DebugKind{
		bytecode.DebugFunction, bytecode.DebugConstructor, bytecode.DebugGetter,
		bytecode.DebugSetter, bytecode.DebugNativeFunction,
	} {
		if h, ok := d.debug.Lookup(kind, name); ok {
			loc := h.Start + 2
			return loc, d.SetBreakpoint(loc)
		}
	}
	return 0, fmt.Errorf("function not found: %s", name)
}

// ClearBreakpoint removes the breakpoint at loc.
func (d *Debugger) ClearBreakpoint(loc int) error {
	t, err := d.loaded()
	if err != nil {
		return err
	}
	return t.ClearBreakpoint(loc)
}

// Breakpoints returns all breakpoint locations in order.
func (d *Debugger) Breakpoints() []int {
	t, err := d.loaded()
	if err != nil {
		return nil
	}
	return t.Breakpoints()
}

// ---------------------------------------------------------------------------
// Execution control
// ---------------------------------------------------------------------------

// Run runs the thread until it stops.
func (d *Debugger) Run(ctx context.Context) (bytecode.Value, error) {
	t, err := d.loaded()
	if err != nil {
		return bytecode.Value{}, err
	}
	v, err := t.Run(ctx)
	d.report(t, "run")
	return v, err
}

// Continue resumes from a breakpoint.
func (d *Debugger) Continue(ctx context.Context) (bytecode.Value, error) {
	t, err := d.loaded()
	if err != nil {
		return bytecode.Value{}, err
	}
	d.sendEvent(DebugEvent{Type: "continued", Reason: "resume", Pos: t.Pos()})
	v, err := t.Continue(ctx)
	d.report(t, "continue")
	return v, err
}

// Step executes one instruction.
func (d *Debugger) Step(ctx context.Context) error {
	return d.StepWith(ctx, StepInto)
}

// StepWith steps according to mode. StepOver runs calls made by the current
// instruction to completion; StepOut runs until the current frame returns.
// Breakpoints met on the way stop the step early.
func (d *Debugger) StepWith(ctx context.Context, mode StepMode) error {
	t, err := d.loaded()
	if err != nil {
		return err
	}
	depth := len(t.frames)
	if err := t.Step(ctx); err != nil || t.State() != AtBreakpoint {
		d.report(t, "step")
		return err
	}
	for mode != StepInto && t.State() == AtBreakpoint {
		cur := len(t.frames)
		if mode == StepOver && cur <= depth {
			break
		}
		if mode == StepOut && cur < depth {
			break
		}
		if t.hasBreakpoint(t.Pos()) {
			d.report(t, "breakpoint")
			return nil
		}
		if err := t.Step(ctx); err != nil {
			d.report(t, "step")
			return err
		}
	}
	d.report(t, "step")
	return nil
}

// Location describes the innermost named code containing pos.
func (d *Debugger) Location(pos int) *SourceLocation {
	for _, h := range d.debug.At(pos) {
		switch h.Kind {
		case bytecode.DebugVariable, bytecode.DebugParameter, bytecode.DebugSelf:
			continue
		}
		return &SourceLocation{Module: h.Module, Function: h.Name, Line: h.Pos.StartLine, Column: h.Pos.StartCol}
	}
	return nil
}

// ---------------------------------------------------------------------------
// Call stack inspection
// ---------------------------------------------------------------------------

// InspectStack returns the live frames, innermost first, with registers,
// arguments and the locals DebugInfo names.
func (d *Debugger) InspectStack() []StackFrame {
	t, err := d.loaded()
	if err != nil {
		return nil
	}
	frames := t.Frames()
	out := make([]StackFrame, 0, len(frames))
	for depth := len(frames) - 1; depth >= 0; depth-- {
		f := frames[depth]
		sf := StackFrame{
			Depth:    depth,
			ID:       f.ID,
			Pos:      f.Pos,
			Location: d.Location(f.Pos),
		}
		for r := bytecode.RegA; r <= bytecode.RegY; r++ {
			sf.Registers = append(sf.Registers, variable(r.String(), f.Register(r)))
		}
		for i, a := range f.Args {
			sf.Args = append(sf.Args, variable(fmt.Sprintf("@%d", i), a))
		}
		sf.Locals = d.locals(t, depth)
		out = append(out, sf)
	}
	return out
}

func (d *Debugger) locals(t *Thread, depth int) []Variable {
	if d.debug == nil {
		return nil
	}
	var vars []Variable
	for _, h := range d.debug.Headers {
		switch h.Kind {
		case bytecode.DebugVariable, bytecode.DebugParameter, bytecode.DebugSelf:
		default:
			continue
		}
		if v, ok := t.mem.Peek(depth, h.Start); ok {
			vars = append(vars, variable(h.Name, v))
		}
	}
	return vars
}

func variable(name string, v bytecode.Value) Variable {
	return Variable{Name: name, Value: v.GoString(), Type: v.Kind().String()}
}

// report sends the event matching the thread's state.
func (d *Debugger) report(t *Thread, reason string) {
	pos := t.Pos()
	ev := DebugEvent{Reason: reason, Pos: pos, Location: d.Location(pos)}
	switch t.State() {
	case AtBreakpoint:
		ev.Type = "stopped"
		if t.hasBreakpoint(pos) {
			ev.Type = "breakpointHit"
			ev.Reason = "breakpoint"
		}
	case Panicked:
		p := t.Panic()
		ev.Type = "exception"
		ev.Reason = p.Error()
		ev.Pos = p.Pos
		ev.Location = d.Location(p.Pos)
	case Completed:
		ev.Type = "terminated"
		ev.Reason = "completed"
	case Cancelled:
		ev.Type = "terminated"
		ev.Reason = "cancelled"
	default:
		return
	}
	d.sendEvent(ev)
}

// sendEvent sends a debug event to listeners.
func (d *Debugger) sendEvent(event DebugEvent) {
	select {
	case d.eventChan <- event:
	default:
		// Channel full, drop event
	}
}

package vm

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/chazu/ellie/pkg/bytecode"
)

// ---------------------------------------------------------------------------
// Thread: one instruction pointer over a LoadedProgram
// ---------------------------------------------------------------------------

// ThreadState is the lifecycle position of a Thread.
type ThreadState uint8

const (
	NotStarted ThreadState = iota
	Running
	AtBreakpoint
	Completed
	Panicked
	Cancelled
)

var stateNames = [...]string{"NotStarted", "Running", "AtBreakpoint", "Completed", "Panicked", "Cancelled"}

func (s ThreadState) String() string {
	if int(s) < len(stateNames) {
		return stateNames[s]
	}
	return fmt.Sprintf("ThreadState(%d)", uint8(s))
}

// Terminal reports whether the thread can no longer run.
func (s ThreadState) Terminal() bool {
	return s == Completed || s == Panicked || s == Cancelled
}

// Stats counts executed instructions and frame traffic. A thread that
// completes normally has Pushes == Drops.
type Stats struct {
	Steps  uint64
	Pushes uint64
	Drops  uint64
}

// TraceFunc observes every instruction just before it executes.
type TraceFunc func(frame *Stack, in bytecode.Instruction)

// Thread executes a LoadedProgram on its Isolate. A Thread is driven by one
// goroutine at a time; Cancel and the breakpoint setters may be called from
// any goroutine.
type Thread struct {
	id   Owner
	iso  *Isolate
	prog *LoadedProgram

	frames []*Stack
	mem    *StackMemory

	state  ThreadState
	result bytecode.Value
	panic  *ExecuterPanic
	stats  Stats
	trace  TraceFunc

	cancel cancellation

	bpMu        sync.Mutex
	breakpoints map[int]bool
	resumeAt    int
}

// ID returns the thread's heap owner identity.
func (t *Thread) ID() Owner { return t.id }

// State returns the current state.
func (t *Thread) State() ThreadState { return t.state }

// Result returns A of the outermost frame once Completed.
func (t *Thread) Result() bytecode.Value { return t.result }

// Panic returns the panic that stopped the thread, if any.
func (t *Thread) Panic() *ExecuterPanic { return t.panic }

// Stats returns the counters so far.
func (t *Thread) Stats() Stats { return t.stats }

// SetTrace installs f as the trace hook. Nil removes it.
func (t *Thread) SetTrace(f TraceFunc) { t.trace = f }

// Program returns the program the thread runs.
func (t *Thread) Program() *LoadedProgram { return t.prog }

// Pos returns the next instruction of the innermost frame, or -1.
func (t *Thread) Pos() int {
	if len(t.frames) == 0 {
		return -1
	}
	return t.frames[len(t.frames)-1].Pos
}

// Frames returns copies of the live frames, outermost first.
func (t *Thread) Frames() []Stack {
	out := make([]Stack, len(t.frames))
	for i, f := range t.frames {
		out[i] = f.clone()
	}
	return out
}

// Memory returns the thread's slot storage for inspection.
func (t *Thread) Memory() *StackMemory { return t.mem }

// Cancel stops the thread at its next instruction boundary.
func (t *Thread) Cancel() { t.cancel.Cancel() }

// ---------------------------------------------------------------------------
// Entry points
// ---------------------------------------------------------------------------

// PrepareMain positions the thread at the program's main function.
func (t *Thread) PrepareMain() error {
	if err := t.preparable(); err != nil {
		return err
	}
	p := t.prog.Program
	if p.Main == nil {
		return fmt.Errorf("program has no main function")
	}
	if err := t.mem.Push(0, p.Len()-1, true); err != nil {
		return err
	}
	frame := newStack(p.Main.Hash, p.Main.Start, p.Main.End, p.Main.Start, p.Arch, t.id)
	t.frames = append(t.frames, frame)
	t.stats.Pushes++
	return nil
}

// PrepareCall positions the thread at the function with hash h, called
// with args. The function returns straight to the host.
func (t *Thread) PrepareCall(h uint64, args ...bytecode.Value) error {
	if err := t.preparable(); err != nil {
		return err
	}
	loc, ok := t.prog.Function(h)
	if !ok {
		return newPanic(CallToUnknown, "no function with hash %d", h)
	}
	id, end, err := functionAt(t.prog.Program, loc)
	if err != nil {
		return err
	}
	if err := t.mem.Push(loc, end, false); err != nil {
		return err
	}
	frame := newStack(id, loc, end, loc+2, t.prog.Program.Arch, t.id)
	frame.Args = slices.Clone(args)
	t.frames = append(t.frames, frame)
	t.stats.Pushes++
	return nil
}

func (t *Thread) preparable() error {
	if t.state != NotStarted || len(t.frames) != 0 {
		return fmt.Errorf("thread %d already prepared (%s)", t.id, t.state)
	}
	return nil
}

// ---------------------------------------------------------------------------
// Breakpoints
// ---------------------------------------------------------------------------

// SetBreakpoint stops the thread before it executes loc.
func (t *Thread) SetBreakpoint(loc int) error {
	if loc < 0 || loc >= t.prog.Program.Len() {
		return fmt.Errorf("breakpoint %d outside program of %d instructions", loc, t.prog.Program.Len())
	}
	t.bpMu.Lock()
	defer t.bpMu.Unlock()
	t.breakpoints[loc] = true
	return nil
}

// ClearBreakpoint removes the breakpoint at loc.
func (t *Thread) ClearBreakpoint(loc int) error {
	t.bpMu.Lock()
	defer t.bpMu.Unlock()
	if !t.breakpoints[loc] {
		return fmt.Errorf("no breakpoint at %d", loc)
	}
	delete(t.breakpoints, loc)
	return nil
}

// Breakpoints returns the breakpoint locations in order.
func (t *Thread) Breakpoints() []int {
	t.bpMu.Lock()
	defer t.bpMu.Unlock()
	locs := make([]int, 0, len(t.breakpoints))
	for loc := range t.breakpoints {
		locs = append(locs, loc)
	}
	slices.Sort(locs)
	return locs
}

func (t *Thread) hasBreakpoint(loc int) bool {
	t.bpMu.Lock()
	defer t.bpMu.Unlock()
	return t.breakpoints[loc]
}

// ---------------------------------------------------------------------------
// Execution
// ---------------------------------------------------------------------------

// Run executes until the thread completes, panics, is cancelled or reaches
// a breakpoint. Run on a thread parked at a breakpoint resumes it.
func (t *Thread) Run(ctx context.Context) (bytecode.Value, error) {
	switch t.state {
	case NotStarted:
		if len(t.frames) == 0 {
			return bytecode.Value{}, fmt.Errorf("thread %d is not prepared", t.id)
		}
	case AtBreakpoint:
		t.resumeAt = t.Pos()
	default:
		return bytecode.Value{}, fmt.Errorf("thread %d cannot run from %s", t.id, t.state)
	}

	t.state = Running
	for t.state == Running {
		t.cycle(ctx, false)
	}
	return t.outcome()
}

// Continue resumes a thread parked at a breakpoint. The breakpoint it is
// parked on does not fire again.
func (t *Thread) Continue(ctx context.Context) (bytecode.Value, error) {
	if t.state != AtBreakpoint {
		return bytecode.Value{}, fmt.Errorf("thread %d is %s, not at a breakpoint", t.id, t.state)
	}
	return t.Run(ctx)
}

// Step executes exactly one instruction and parks the thread again, unless
// that instruction ended it.
func (t *Thread) Step(ctx context.Context) error {
	switch t.state {
	case NotStarted:
		if len(t.frames) == 0 {
			return fmt.Errorf("thread %d is not prepared", t.id)
		}
	case AtBreakpoint:
	default:
		return fmt.Errorf("thread %d cannot step from %s", t.id, t.state)
	}

	t.state = Running
	t.cycle(ctx, true)
	if t.state == Running {
		t.state = AtBreakpoint
	}
	_, err := t.outcome()
	return err
}

func (t *Thread) outcome() (bytecode.Value, error) {
	switch t.state {
	case Completed:
		return t.result, nil
	case Panicked:
		return bytecode.Value{}, t.panic
	case Cancelled:
		return bytecode.Value{}, t.cancel.Err()
	}
	return bytecode.Value{}, nil
}

// cycle executes one instruction of the innermost frame.
func (t *Thread) cycle(ctx context.Context, step bool) {
	if t.cancel.IsCancelled(ctx) {
		t.state = Cancelled
		log.Debugf("thread %d cancelled", t.id)
		return
	}

	frame := t.frames[len(t.frames)-1]
	pos := frame.Pos
	in, ok := t.prog.Program.At(pos)
	if !ok {
		t.fail(newPanic(OutOfInstructions, "no instruction at %d", pos), frame, pos)
		return
	}

	if !step && t.resumeAt != pos && t.hasBreakpoint(pos) {
		t.state = AtBreakpoint
		return
	}
	t.resumeAt = -1

	exec, ok := executerFor(in.Op)
	if !ok || !in.Op.Known() {
		t.fail(newPanic(UnknownOpcode, "opcode 0x%02X", byte(in.Op)), frame, pos)
		return
	}
	if !in.Op.Accepts(in.Addr.Mode) {
		t.fail(newPanic(IllegalAddressingValue, "%s does not take %s", in.Op, in.Addr.Mode), frame, pos)
		return
	}
	if t.trace != nil {
		t.trace(frame, in)
	}

	if err := t.dispatch(exec, frame, in); err != nil {
		t.fail(err, frame, pos)
	}
}

// dispatch runs exec under the Isolate lock and applies its result.
func (t *Thread) dispatch(exec Executer, frame *Stack, in bytecode.Instruction) error {
	t.iso.mu.Lock()
	defer t.iso.mu.Unlock()

	p := t.prog.Program
	res, err := exec(t.iso.heap, p, frame, t.mem, in.Addr, p.Arch)
	t.stats.Steps++
	if err != nil {
		return err
	}

	switch res.Kind {
	case Continue:
		frame.Pos++
	case DropStack:
		t.drop()
	case Call:
		return t.call(frame, res.Target)
	case CallNative:
		if err := t.callNative(frame, res.Target); err != nil {
			return err
		}
		frame.Pos++
	case Suspend:
		frame.Pos++
		t.state = AtBreakpoint
	}
	return nil
}

func (t *Thread) call(caller *Stack, target int) error {
	id, end, err := functionAt(t.prog.Program, target)
	if err != nil {
		return err
	}
	if err := t.mem.Push(target, end, false); err != nil {
		return err
	}
	callee := newStack(id, target, end, target+2, caller.Arch, t.id)
	callee.X = caller.X
	callee.Args = caller.Pending
	caller.Pending = nil
	t.frames = append(t.frames, callee)
	t.stats.Pushes++
	return nil
}

func (t *Thread) drop() {
	top := t.frames[len(t.frames)-1]
	t.frames[len(t.frames)-1] = nil
	t.frames = t.frames[:len(t.frames)-1]
	t.mem.Pop()
	t.stats.Drops++

	if len(t.frames) == 0 {
		t.state = Completed
		t.result = top.A
		log.Debugf("thread %d completed with %s after %d steps", t.id, top.A, t.stats.Steps)
		return
	}
	caller := t.frames[len(t.frames)-1]
	caller.A = top.A
	caller.B = top.B
	caller.Pos++
}

func (t *Thread) fail(err error, frame *Stack, pos int) {
	var p *ExecuterPanic
	if !errors.As(err, &p) {
		p = &ExecuterPanic{Reason: IllegalAddressingValue, Detail: err.Error()}
	}
	p.Pos = pos
	p.Frame = frame.ID
	t.panic = p
	t.state = Panicked
	log.Debugf("thread %d panicked: %s [%s]", t.id, p, p.CodeLocation)
}

// Close releases the thread's heap arena. The thread cannot run afterwards.
func (t *Thread) Close() {
	t.cancel.Cancel()
	t.iso.mu.Lock()
	n := t.iso.heap.Release(t.id)
	t.iso.mu.Unlock()
	t.mem.Reset()
	t.frames = nil
	if !t.state.Terminal() {
		t.state = Cancelled
	}
	log.Debugf("thread %d closed, released %d heap cells", t.id, n)
}

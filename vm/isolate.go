package vm

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/tliron/commonlog"
	"golang.org/x/sync/errgroup"

	"github.com/chazu/ellie/pkg/bytecode"
)

var log = commonlog.GetLogger("ellie.vm")

// ---------------------------------------------------------------------------
// Isolate: shared heap, native table and lock
// ---------------------------------------------------------------------------

// Isolate owns the heap and the native table shared by its Threads. Threads
// of one Isolate serialize on its mutex, one instruction at a time.
type Isolate struct {
	id     uuid.UUID
	mu     sync.Mutex
	heap   *HeapMemory
	limits Limits

	// nativesMu guards natives apart from mu, so callbacks running under
	// mu can still list and register natives.
	nativesMu sync.RWMutex
	natives   map[string]*NativeFunction

	nextThread atomic.Uint64
}

// IsolateOption configures an Isolate.
type IsolateOption func(*Isolate)

// WithLimits replaces the default resource ceilings.
func WithLimits(l Limits) IsolateOption {
	return func(iso *Isolate) { iso.limits = l }
}

// NewIsolate creates an Isolate with an empty heap and no natives.
func NewIsolate(opts ...IsolateOption) *Isolate {
	iso := &Isolate{
		id:      uuid.New(),
		heap:    NewHeapMemory(),
		limits:  DefaultLimits(),
		natives: make(map[string]*NativeFunction),
	}
	for _, opt := range opts {
		opt(iso)
	}
	iso.heap.maxBlock = iso.limits.ObjectSlots
	log.Debugf("isolate %s created", iso.id)
	return iso
}

// ID returns the Isolate's identity.
func (iso *Isolate) ID() uuid.UUID { return iso.id }

// Heap returns the shared heap. Outside a native callback the caller must
// hold the Isolate with Lock.
func (iso *Isolate) Heap() *HeapMemory { return iso.heap }

// Limits returns the ceilings new threads run under.
func (iso *Isolate) Limits() Limits { return iso.limits }

// Lock blocks every thread of the Isolate at its next instruction.
func (iso *Isolate) Lock() { iso.mu.Lock() }

// Unlock releases Lock.
func (iso *Isolate) Unlock() { iso.mu.Unlock() }

// RegisterNative adds nf to the native table. Names are unique.
func (iso *Isolate) RegisterNative(nf NativeFunction) error {
	if nf.Name == "" {
		return fmt.Errorf("native function has no name")
	}
	if nf.Callback == nil {
		return fmt.Errorf("native function %q has no callback", nf.Name)
	}
	iso.nativesMu.Lock()
	defer iso.nativesMu.Unlock()
	if _, dup := iso.natives[nf.Name]; dup {
		return fmt.Errorf("native function %q already registered", nf.Name)
	}
	nf.Params = slices.Clone(nf.Params)
	iso.natives[nf.Name] = &nf
	log.Debugf("registered native %s/%d", nf.Name, len(nf.Params))
	return nil
}

// Natives returns the registered native names, sorted.
func (iso *Isolate) Natives() []string {
	iso.nativesMu.RLock()
	defer iso.nativesMu.RUnlock()
	names := make([]string, 0, len(iso.natives))
	for name := range iso.natives {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// LoadedProgram is a Program bound to an Isolate's natives.
type LoadedProgram struct {
	Program *bytecode.Program

	iso       *Isolate
	natives   []*NativeFunction
	functions map[uint64]int
}

// Function returns the header location of the function with hash h. The
// hash is narrowed to the program's architecture first.
func (lp *LoadedProgram) Function(h uint64) (int, bool) {
	if lp.Program.Arch == bytecode.Arch32 {
		h &= 1<<31 - 1
	}
	loc, ok := lp.functions[h]
	return loc, ok
}

// Load validates p and binds its native imports. Every failure is a
// *LoadError.
func (iso *Isolate) Load(p *bytecode.Program) (*LoadedProgram, error) {
	if p == nil {
		return nil, &LoadError{Msg: "nil program"}
	}
	if err := p.Validate(iso.limits.ProgramSize); err != nil {
		return nil, &LoadError{Msg: err.Error(), Err: err}
	}
	for i, in := range p.Instructions {
		if in.Op != bytecode.OpCO || in.Addr.Mode != bytecode.ModeAbsoluteIndex {
			continue
		}
		if n := in.Addr.Index; n < 0 || n > iso.limits.ObjectSlots {
			err := newPanic(HeapOutOfBounds, "CO at %d constructs %d fields, limit is %d", i, n, iso.limits.ObjectSlots)
			err.Pos = i
			return nil, &LoadError{Msg: err.Detail, Err: err}
		}
	}

	iso.nativesMu.RLock()
	defer iso.nativesMu.RUnlock()

	bound := make([]*NativeFunction, len(p.Natives))
	for i, imp := range p.Natives {
		nf, ok := iso.natives[imp.Name]
		if !ok {
			return nil, &LoadError{Native: imp.Name, Msg: "not registered"}
		}
		if len(nf.Params) != len(imp.Params) {
			return nil, &LoadError{Native: imp.Name,
				Msg: fmt.Sprintf("imported with %d parameters, registered with %d", len(imp.Params), len(nf.Params))}
		}
		for j := range imp.Params {
			if imp.Params[j] != nf.Params[j] {
				return nil, &LoadError{Native: imp.Name,
					Msg: fmt.Sprintf("parameter %d is %s, registered as %s", j, imp.Params[j], nf.Params[j])}
			}
		}
		if imp.Return != nf.Return {
			return nil, &LoadError{Native: imp.Name,
				Msg: fmt.Sprintf("returns %s, registered as %s", imp.Return, nf.Return)}
		}
		bound[i] = nf
	}

	lp := &LoadedProgram{Program: p, iso: iso, natives: bound, functions: p.Functions()}
	log.Infof("loaded program: %d instructions, %d functions, %d natives", p.Len(), len(lp.functions), len(bound))
	return lp, nil
}

// NewThread creates a thread that runs lp on this Isolate.
func (iso *Isolate) NewThread(lp *LoadedProgram) (*Thread, error) {
	if lp == nil || lp.iso != iso {
		return nil, fmt.Errorf("program was not loaded by isolate %s", iso.id)
	}
	t := &Thread{
		id:          Owner(iso.nextThread.Add(1)),
		iso:         iso,
		prog:        lp,
		mem:         NewStackMemory(iso.limits),
		breakpoints: make(map[int]bool),
		resumeAt:    -1,
	}
	return t, nil
}

// RunThreads runs prepared threads concurrently and waits for all of them.
// The first failure cancels the others. Results are in thread order.
func (iso *Isolate) RunThreads(ctx context.Context, threads ...*Thread) ([]bytecode.Value, error) {
	results := make([]bytecode.Value, len(threads))
	g, gctx := errgroup.WithContext(ctx)
	for i, t := range threads {
		i, t := i, t
		g.Go(func() error {
			v, err := t.Run(gctx)
			if err != nil {
				return fmt.Errorf("thread %d: %w", t.ID(), err)
			}
			results[i] = v
			return nil
		})
	}
	err := g.Wait()
	return results, err
}

package compiler

import (
	"fmt"

	"github.com/hashicorp/go-multierror"
	"github.com/tliron/commonlog"

	"github.com/chazu/ellie/compiler/hash"
	"github.com/chazu/ellie/pkg/bytecode"
)

// ---------------------------------------------------------------------------
// Assembler: page graph to Program
// ---------------------------------------------------------------------------

var log = commonlog.GetLogger("ellie.compiler")

// Option configures an Assembler.
type Option func(*Assembler)

// WithArchitecture selects the target word size. The default is b64.
func WithArchitecture(arch bytecode.Architecture) Option {
	return func(a *Assembler) { a.arch = arch }
}

// WithMaxProgramSize sets the instruction ceiling. Zero disables it.
func WithMaxProgramSize(n int) Option {
	return func(a *Assembler) { a.maxSize = n }
}

// Assemble lowers the pages reachable from entry into a Program and its
// DebugInfo. On failure the returned error holds every problem found, each
// an *Error.
func Assemble(graph *Graph, entry uint64, opts ...Option) (*bytecode.Program, *bytecode.DebugInfo, error) {
	return NewAssembler(graph, opts...).Assemble(entry)
}

// Assembler holds the state of one assembly. It is not reusable.
type Assembler struct {
	graph   *Graph
	arch    bytecode.Architecture
	maxSize int
	entry   uint64

	// pass 1
	symbols map[uint64]symbol
	limited map[uint64]uint64
	classes map[uint64]*classShape
	hoisted map[uint64][]pageRef
	inner   map[uint64]bool
	imports map[uint64][]uint64

	// pass 2
	instructions []bytecode.Instruction
	debug        bytecode.DebugInfo
	locals       []LocalHeader
	byHash       map[uint64]int
	natives      []bytecode.NativeImport
	fixups       []fixup
	processed    map[uint64]bool
	scope        []*Page
	module       *Page
	ctx          routineCtx

	errs *multierror.Error
	used bool
}

// NewAssembler creates an Assembler over graph.
func NewAssembler(graph *Graph, opts ...Option) *Assembler {
	a := &Assembler{
		graph:     graph,
		arch:      bytecode.Arch64,
		maxSize:   bytecode.DefaultMaxProgramSize,
		symbols:   make(map[uint64]symbol),
		limited:   make(map[uint64]uint64),
		classes:   make(map[uint64]*classShape),
		hoisted:   make(map[uint64][]pageRef),
		inner:     make(map[uint64]bool),
		imports:   make(map[uint64][]uint64),
		byHash:    make(map[uint64]int),
		processed: make(map[uint64]bool),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Assemble runs all three passes starting at the entry page.
func (a *Assembler) Assemble(entry uint64) (*bytecode.Program, *bytecode.DebugInfo, error) {
	if a.used {
		return nil, nil, fmt.Errorf("assembler already used")
	}
	a.used = true
	if !a.arch.Valid() {
		return nil, nil, fmt.Errorf("invalid architecture %d", a.arch)
	}
	a.entry = entry

	root, ok := a.graph.Page(entry)
	if !ok {
		return nil, nil, &Error{Kind: UnresolvedDependency, Page: entry, Msg: "entry page not in graph"}
	}

	a.collectModule(root.Hash, Span{}, root)
	if err := a.errs.ErrorOrNil(); err != nil {
		return nil, nil, err
	}
	log.Debugf("collected %d symbols, %d classes", len(a.symbols), len(a.classes))

	a.assembleModule(entry)
	a.emit(bytecode.OpRET, bytecode.Implicit())

	a.resolveFixups()

	if a.maxSize > 0 && len(a.instructions) > a.maxSize {
		a.fail(&Error{
			Kind: ProgramTooLarge, Page: root.Hash, Path: root.Path,
			Msg: fmt.Sprintf("%d instructions exceed the limit of %d", len(a.instructions), a.maxSize),
		})
	}
	if err := a.errs.ErrorOrNil(); err != nil {
		return nil, nil, err
	}

	prog := &bytecode.Program{
		Arch:         a.arch,
		Instructions: a.instructions,
		Main: &bytecode.MainFunction{
			Hash:  hash.Limit(entry, a.arch),
			Start: 0,
			End:   len(a.instructions) - 1,
		},
		Natives: a.natives,
	}
	debug := a.debug
	log.Infof("assembled %s: %d instructions, %d natives", root.Path, len(prog.Instructions), len(prog.Natives))
	return prog, &debug, nil
}

// Locals returns the headers registered during emission, in order.
func (a *Assembler) Locals() []LocalHeader {
	return append([]LocalHeader(nil), a.locals...)
}

func (a *Assembler) fail(err error) {
	a.errs = multierror.Append(a.errs, err)
}

func (a *Assembler) errorAt(kind ErrorKind, p *Page, pos Span, name, format string, args ...any) *Error {
	e := &Error{Kind: kind, Pos: pos, Name: name, Msg: fmt.Sprintf(format, args...)}
	if p != nil {
		e.Page = p.Hash
		e.Path = p.Path
	}
	return e
}

// ---------------------------------------------------------------------------
// Emission helpers
// ---------------------------------------------------------------------------

func (a *Assembler) here() int { return len(a.instructions) }

func (a *Assembler) emit(op bytecode.Opcode, av bytecode.AddressingValue) int {
	a.instructions = append(a.instructions, bytecode.New(op, av))
	return len(a.instructions) - 1
}

func (a *Assembler) patch(at int, av bytecode.AddressingValue) {
	a.instructions[at].Addr = av
}

// spill stores A into a fresh slot and returns its location.
func (a *Assembler) spill() int {
	return a.emit(bytecode.OpSTA, bytecode.Implicit())
}

// move copies A into reg.
func (a *Assembler) move(reg bytecode.Register) {
	if reg != bytecode.RegA {
		a.emit(bytecode.LoadOp(reg), bytecode.Indirect(bytecode.RegA))
	}
}

// ---------------------------------------------------------------------------
// Pass 2 traversal
// ---------------------------------------------------------------------------

// assembleModule emits a module page after everything it depends on.
func (a *Assembler) assembleModule(h uint64) {
	if a.processed[h] {
		return
	}
	a.processed[h] = true
	for _, d := range a.hoisted[h] {
		if !a.inner[d.hash] {
			a.assembleModule(d.hash)
		}
	}
	p, _ := a.graph.Page(h)
	log.Debugf("assembling %s at %d", p.Path, a.here())

	saved, savedScope := a.module, a.scope
	a.module, a.scope = p, []*Page{p}
	a.items(p)
	a.module, a.scope = saved, savedScope
}

// block emits an inner page inline, with its own scope.
func (a *Assembler) block(h uint64) {
	if h == 0 {
		return
	}
	p, ok := a.graph.Page(h)
	if !ok {
		return
	}
	a.processed[h] = true
	a.enter(p)
	a.items(p)
	a.leave()
}

func (a *Assembler) enter(p *Page) { a.scope = append(a.scope, p) }
func (a *Assembler) leave()        { a.scope = a.scope[:len(a.scope)-1] }

func (a *Assembler) current() *Page {
	if len(a.scope) == 0 {
		return a.module
	}
	return a.scope[len(a.scope)-1]
}

func (a *Assembler) items(p *Page) {
	for _, it := range p.Items {
		if err := a.item(p, it); err != nil {
			a.fail(err)
		}
	}
}

// visible reports whether locals of page h can be named from the current
// scope.
func (a *Assembler) visible(h uint64) bool {
	for i := len(a.scope) - 1; i >= 0; i-- {
		p := a.scope[i]
		if p.Hash == h {
			return true
		}
		for _, d := range p.Dependencies {
			if d == h {
				return true
			}
		}
		for _, d := range a.imports[p.Hash] {
			if d == h {
				return true
			}
		}
	}
	return false
}

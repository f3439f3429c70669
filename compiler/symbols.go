package compiler

import (
	"fmt"

	"github.com/chazu/ellie/compiler/hash"
	"github.com/chazu/ellie/pkg/bytecode"
)

type symKind uint8

const (
	symCallable symKind = iota
	symClass
	symVariable
)

func (k symKind) String() string {
	switch k {
	case symCallable:
		return "function"
	case symClass:
		return "class"
	default:
		return "variable"
	}
}

// symbol is a declaration seen in pass 1.
type symbol struct {
	kind symKind
	name string
	page *Page
	pos  Span
}

type classShape struct {
	name   string
	hash   uint64
	body   uint64
	fields []*Variable
	index  map[string]int
	ctor   *Constructor
}

type pageRef struct {
	hash uint64
	pos  Span
}

// LocalHeader records where an emitted symbol lives and how references to
// it are encoded.
type LocalHeader struct {
	Name      string
	Hash      uint64
	PageHash  uint64
	Location  int
	Reference bytecode.AddressingValue
	Kind      bytecode.DebugKind
}

func (l LocalHeader) isValue() bool {
	switch l.Kind {
	case bytecode.DebugVariable, bytecode.DebugParameter, bytecode.DebugSelf:
		return true
	}
	return false
}

// fixup is a placeholder operand waiting for the symbol hash.
type fixup struct {
	at   int
	hash uint64
	page *Page
	pos  Span
}

type routineCtx struct {
	depth int
	class *classShape
}

// declare registers a pass 1 symbol. Anonymous symbols (hash 0) are not
// referenceable and are skipped.
func (a *Assembler) declare(h uint64, s symbol) bool {
	if h == 0 {
		return true
	}
	if old, ok := a.symbols[h]; ok {
		a.fail(a.errorAt(DuplicateSymbol, s.page, s.pos, s.name,
			"hash %d already declared by %s %q in %s", h, old.kind, old.name, old.page.Path))
		return false
	}
	lh := hash.Limit(h, a.arch)
	if other, ok := a.limited[lh]; ok {
		a.fail(a.errorAt(DuplicateSymbol, s.page, s.pos, s.name,
			"hash collides with %q under %s", a.symbols[other].name, a.arch))
		return false
	}
	a.symbols[h] = s
	a.limited[lh] = h
	return true
}

// declareLocal registers an emitted symbol.
func (a *Assembler) declareLocal(l LocalHeader, pos Span) error {
	if l.Hash != 0 {
		if _, ok := a.byHash[l.Hash]; ok {
			return a.errorAt(DuplicateSymbol, a.current(), pos, l.Name, "emitted twice")
		}
	}
	if l.Kind == bytecode.DebugVariable {
		for i := len(a.locals) - 1; i >= 0; i-- {
			o := a.locals[i]
			if o.PageHash == l.PageHash && o.Name == l.Name && o.Kind == bytecode.DebugVariable {
				return a.errorAt(DuplicateSymbol, a.current(), pos, l.Name, "already declared in this scope")
			}
		}
	}
	a.locals = append(a.locals, l)
	if l.Hash != 0 {
		a.byHash[l.Hash] = len(a.locals) - 1
	}
	return nil
}

// lookupName finds the most recent visible value local called name.
func (a *Assembler) lookupName(name string) (LocalHeader, bool) {
	for i := len(a.locals) - 1; i >= 0; i-- {
		l := a.locals[i]
		if l.Name == name && l.isValue() && a.visible(l.PageHash) {
			return l, true
		}
	}
	return LocalHeader{}, false
}

// reference emits op against the symbol h, or a placeholder when h has not
// been emitted yet.
func (a *Assembler) reference(op bytecode.Opcode, h uint64, want symKind, pos Span) error {
	s, ok := a.symbols[h]
	if !ok {
		return a.errorAt(UnresolvedSymbol, a.current(), pos, "", "no declaration for hash %d", h)
	}
	if s.kind != want {
		return a.errorAt(InvalidItem, a.current(), pos, s.name, "is a %s, not a %s", s.kind, want)
	}
	if i, ok := a.byHash[h]; ok {
		ref := a.locals[i].Reference
		if !op.Accepts(ref.Mode) {
			return a.errorAt(InvalidItem, a.current(), pos, s.name, "%s cannot take %s", op, ref)
		}
		a.emit(op, ref)
		return nil
	}
	placeholder := bytecode.Absolute(0)
	if s.kind == symClass {
		placeholder = bytecode.AbsoluteIndex(0, len(a.classes[h].fields))
	}
	at := a.emit(op, placeholder)
	a.fixups = append(a.fixups, fixup{at: at, hash: h, page: a.current(), pos: pos})
	return nil
}

// resolveFixups is pass 3.
func (a *Assembler) resolveFixups() {
	for _, f := range a.fixups {
		i, ok := a.byHash[f.hash]
		if !ok {
			a.fail(a.errorAt(UnresolvedSymbol, f.page, f.pos, a.symbols[f.hash].name,
				"declared but never emitted (placeholder at %d)", f.at))
			continue
		}
		ref := a.locals[i].Reference
		op := a.instructions[f.at].Op
		if !op.Accepts(ref.Mode) {
			a.fail(a.errorAt(InvalidItem, f.page, f.pos, a.locals[i].Name, "%s cannot take %s", op, ref))
			continue
		}
		a.patch(f.at, ref)
	}
	log.Debugf("resolved %d placeholders", len(a.fixups))
}

func (s *classShape) field(name string) (int, error) {
	i, ok := s.index[name]
	if !ok {
		return 0, fmt.Errorf("class %s has no field %q", s.name, name)
	}
	return i, nil
}

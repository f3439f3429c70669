package compiler

import (
	"github.com/chazu/ellie/compiler/hash"
	"github.com/chazu/ellie/pkg/bytecode"
)

// ---------------------------------------------------------------------------
// Pass 2: item emission
// ---------------------------------------------------------------------------

func (a *Assembler) item(p *Page, it Item) error {
	switch it := it.(type) {
	case *Class:
		return a.class(p, it)
	case *Function:
		return a.routine(p, routine{
			name: it.Name, hash: it.Hash, kind: bytecode.DebugFunction,
			params: it.Params, body: it.Body, pos: it.Pos, native: -1,
		})
	case *NativeFunction:
		return a.native(p, it)
	case *Variable:
		return a.variable(p, it)
	case *Condition:
		return a.condition(p, it)
	case *Loop:
		return a.loop(it)
	case *Ret:
		return a.ret(p, it)
	case *Import:
		// hoisted in pass 1; only visibility is left to record
		return nil
	case *ExprStmt:
		return a.resolve(it.Value, bytecode.RegA)
	case *Assign:
		return a.assign(it)
	case *SelfItem:
		if a.ctx.class == nil {
			return a.errorAt(Unsupported, p, it.Pos, "", "self outside a class member")
		}
		return nil
	}
	return a.errorAt(Unsupported, p, it.Position(), "", "%s is not allowed here", itemName(it))
}

// routine describes anything emitted with the FN/JMP/.../RET layout.
type routine struct {
	name   string
	hash   uint64
	kind   bytecode.DebugKind
	params []Param
	body   uint64
	pos    Span

	self   bool        // bind the receiver from X
	ctor   *classShape // constructor of this class
	native int         // CALLN index, or -1 when ctor or body code
}

// routine emits
//
//	L   FN   #hash
//	L+1 JMP  $end+1
//	... prologue, body, epilogue
//	end RET
func (a *Assembler) routine(p *Page, r routine) error {
	start := a.emit(bytecode.OpFN, bytecode.Immediate(bytecode.Int(int64(hash.Limit(r.hash, a.arch)))))
	skip := a.emit(bytecode.OpJMP, bytecode.Absolute(0))

	local := LocalHeader{Name: r.name, Hash: r.hash, PageHash: p.Hash, Location: start,
		Reference: bytecode.Absolute(start), Kind: r.kind}
	if r.ctor != nil {
		local.Kind = bytecode.DebugClass
		local.Reference = bytecode.AbsoluteIndex(start, len(r.ctor.fields))
	}
	if err := a.declareLocal(local, r.pos); err != nil {
		return err
	}

	// parameters of a body-less routine get a scope of their own
	scope := p
	switch {
	case r.body != 0:
		if bp, ok := a.graph.Page(r.body); ok {
			scope = bp
			a.processed[bp.Hash] = true
		}
	case r.hash != 0 && r.native < 0:
		scope = &Page{Hash: r.hash, Path: p.Path}
	}
	a.enter(scope)
	saved := a.ctx
	a.ctx.depth++
	defer func() {
		a.ctx = saved
		a.leave()
	}()

	selfLoc := -1
	if r.self {
		a.emit(bytecode.OpLDA, bytecode.Indirect(bytecode.RegX))
		selfLoc = a.spill()
		if err := a.declareLocal(LocalHeader{Name: "self", PageHash: scope.Hash, Location: selfLoc,
			Reference: bytecode.Absolute(selfLoc), Kind: bytecode.DebugSelf}, r.pos); err != nil {
			return err
		}
		a.debugHeader(bytecode.DebugSelf, 0, "self", selfLoc, selfLoc+1, r.pos)
	}

	if r.native < 0 {
		paramLocs := make([]int, len(r.params))
		for i, prm := range r.params {
			a.emit(bytecode.OpLDA, bytecode.Parameter(i))
			loc := a.spill()
			paramLocs[i] = loc
			if err := a.declareLocal(LocalHeader{Name: prm.Name, PageHash: scope.Hash, Location: loc,
				Reference: bytecode.Absolute(loc), Kind: bytecode.DebugParameter}, prm.Pos); err != nil {
				return err
			}
			a.debugHeader(bytecode.DebugParameter, 0, prm.Name, loc, loc+1, prm.Pos)
		}
		if r.ctor != nil {
			if err := a.initFields(r.ctor, selfLoc, r.params, paramLocs); err != nil {
				return err
			}
		}
		if r.body != 0 && scope != p {
			a.items(scope)
		}
	} else {
		a.emit(bytecode.OpCALLN, bytecode.Immediate(bytecode.Int(int64(r.native))))
	}

	switch {
	case r.ctor != nil:
		a.emit(bytecode.OpLDA, bytecode.Absolute(selfLoc))
	case r.native < 0:
		a.emit(bytecode.OpLDA, bytecode.Immediate(bytecode.Void()))
	}
	end := a.emit(bytecode.OpRET, bytecode.Implicit())
	a.patch(skip, bytecode.Absolute(end+1))

	a.debugHeader(r.kind, r.hash, r.name, start, end+1, r.pos)
	return nil
}

// initFields runs the field initializers, then copies constructor
// parameters into the fields that share their names.
func (a *Assembler) initFields(shape *classShape, selfLoc int, params []Param, paramLocs []int) error {
	for i, f := range shape.fields {
		if f.Value == nil {
			continue
		}
		if err := a.resolve(f.Value, bytecode.RegA); err != nil {
			return err
		}
		a.emit(bytecode.OpSTA, bytecode.AbsoluteProperty(selfLoc, i))
	}
	for i, prm := range params {
		idx, ok := shape.index[prm.Name]
		if !ok {
			continue
		}
		a.emit(bytecode.OpLDA, bytecode.Absolute(paramLocs[i]))
		a.emit(bytecode.OpSTA, bytecode.AbsoluteProperty(selfLoc, idx))
	}
	return nil
}

func (a *Assembler) class(p *Page, c *Class) error {
	shape, ok := a.classes[c.Hash]
	if !ok {
		return a.errorAt(UnresolvedSymbol, p, c.Pos, c.Name, "class was not collected")
	}
	body, ok := a.graph.Page(shape.body)
	if !ok {
		return a.errorAt(UnresolvedDependency, p, c.Pos, c.Name, "class body page %d is not in the graph", shape.body)
	}
	a.processed[body.Hash] = true

	start := a.here()
	saved := a.ctx
	a.ctx.class = shape
	a.enter(body)
	defer func() {
		a.leave()
		a.ctx = saved
	}()

	ctor := routine{name: c.Name, hash: c.Hash, kind: bytecode.DebugConstructor, pos: c.Pos,
		self: true, ctor: shape, native: -1}
	if shape.ctor != nil {
		ctor.params = shape.ctor.Params
		ctor.body = shape.ctor.Body
		ctor.pos = shape.ctor.Pos
	}
	if err := a.routine(body, ctor); err != nil {
		return err
	}

	for _, it := range body.Items {
		var err error
		switch it := it.(type) {
		case *Function:
			err = a.routine(body, routine{name: it.Name, hash: it.Hash, kind: bytecode.DebugFunction,
				params: it.Params, body: it.Body, pos: it.Pos, self: true, native: -1})
		case *Getter:
			err = a.routine(body, routine{name: it.Name, hash: it.Hash, kind: bytecode.DebugGetter,
				body: it.Body, pos: it.Pos, self: true, native: -1})
		case *Setter:
			err = a.routine(body, routine{name: it.Name, hash: it.Hash, kind: bytecode.DebugSetter,
				params: []Param{it.Param}, body: it.Body, pos: it.Pos, self: true, native: -1})
		}
		if err != nil {
			a.fail(err)
		}
	}

	a.debugHeader(bytecode.DebugClass, c.Hash, c.Name, start, a.here(), c.Pos)
	return nil
}

func (a *Assembler) native(p *Page, n *NativeFunction) error {
	idx := len(a.natives)
	kinds := make([]bytecode.Kind, len(n.Params))
	for i, prm := range n.Params {
		kinds[i] = prm.Type
	}
	a.natives = append(a.natives, bytecode.NativeImport{
		Index:  idx,
		Name:   n.Name,
		Hash:   hash.Limit(n.Hash, a.arch),
		Params: kinds,
		Return: n.Return,
	})
	return a.routine(p, routine{name: n.Name, hash: n.Hash, kind: bytecode.DebugNativeFunction,
		params: n.Params, pos: n.Pos, native: idx})
}

func (a *Assembler) variable(p *Page, v *Variable) error {
	local := LocalHeader{Name: v.Name, Hash: v.Hash, PageHash: p.Hash, Kind: bytecode.DebugVariable}

	lit, constant := v.Value.(*Literal)
	switch {
	case v.Constant && constant:
		a.emit(bytecode.OpLDA, bytecode.Immediate(lit.Value))
		local.Location = a.spill()
		local.Reference = bytecode.Immediate(lit.Value)
	case v.Value == nil:
		a.emit(bytecode.OpLDA, bytecode.Immediate(bytecode.Null()))
		local.Location = a.spill()
		local.Reference = bytecode.Absolute(local.Location)
	default:
		if err := a.resolve(v.Value, bytecode.RegA); err != nil {
			return err
		}
		local.Location = a.spill()
		local.Reference = bytecode.Absolute(local.Location)
	}
	if err := a.declareLocal(local, v.Pos); err != nil {
		return err
	}
	a.debugHeader(bytecode.DebugVariable, v.Hash, v.Name, local.Location, local.Location+1, v.Pos)
	return nil
}

// condition emits a JMPA ladder:
//
//	cond1; JMPA $b1
//	cond2; JMPA $b2
//	else body; JMP $end
//	b1: body1; JMP $end
//	b2: body2; JMP $end
//	end:
func (a *Assembler) condition(p *Page, c *Condition) error {
	var tests []int
	var bodies []uint64
	var elseBody uint64
	for i, ch := range c.Chains {
		switch ch.Kind {
		case ChainIf, ChainElseIf:
			if (ch.Kind == ChainIf) != (i == 0) || elseBody != 0 {
				return a.errorAt(InvalidItem, p, ch.Pos, "", "misplaced branch in conditional chain")
			}
			if ch.Cond == nil {
				return a.errorAt(InvalidItem, p, ch.Pos, "", "branch without a condition")
			}
			if err := a.resolve(ch.Cond, bytecode.RegA); err != nil {
				return err
			}
			tests = append(tests, a.emit(bytecode.OpJMPA, bytecode.Absolute(0)))
			bodies = append(bodies, ch.Body)
		case ChainElse:
			if i == 0 || i != len(c.Chains)-1 {
				return a.errorAt(InvalidItem, p, ch.Pos, "", "else must end a conditional chain")
			}
			elseBody = ch.Body
		}
	}

	exits := make([]int, 0, len(bodies)+1)
	a.block(elseBody)
	exits = append(exits, a.emit(bytecode.OpJMP, bytecode.Absolute(0)))
	for i, b := range bodies {
		a.patch(tests[i], bytecode.Absolute(a.here()))
		a.block(b)
		exits = append(exits, a.emit(bytecode.OpJMP, bytecode.Absolute(0)))
	}
	end := a.here()
	for _, at := range exits {
		a.patch(at, bytecode.Absolute(end))
	}
	return nil
}

// loop emits
//
//	start: cond; JMPA $body
//	JMP $exit
//	body: ...; JMP $start
//	exit:
func (a *Assembler) loop(l *Loop) error {
	start := a.here()
	if err := a.resolve(l.Cond, bytecode.RegA); err != nil {
		return err
	}
	test := a.emit(bytecode.OpJMPA, bytecode.Absolute(0))
	a.patch(test, bytecode.Absolute(test+2))
	exit := a.emit(bytecode.OpJMP, bytecode.Absolute(0))
	a.block(l.Body)
	a.emit(bytecode.OpJMP, bytecode.Absolute(start))
	a.patch(exit, bytecode.Absolute(a.here()))
	return nil
}

func (a *Assembler) ret(p *Page, r *Ret) error {
	if a.ctx.depth == 0 && a.module.Hash != a.entry {
		return a.errorAt(InvalidItem, p, r.Pos, "", "return outside a function in a non-entry module")
	}
	if r.Value == nil {
		a.emit(bytecode.OpLDA, bytecode.Immediate(bytecode.Void()))
	} else if err := a.resolve(r.Value, bytecode.RegA); err != nil {
		return err
	}
	a.emit(bytecode.OpRET, bytecode.Implicit())
	return nil
}

func (a *Assembler) assign(s *Assign) error {
	switch t := s.Target.(type) {
	case *VarRef:
		l, err := a.lookupVar(t)
		if err != nil {
			return err
		}
		if l == nil {
			// forward reference to a hashed variable
			if err := a.resolve(s.Value, bytecode.RegA); err != nil {
				return err
			}
			return a.reference(bytecode.OpSTA, t.Hash, symVariable, t.Pos)
		}
		if l.Kind == bytecode.DebugSelf || l.Reference.Mode != bytecode.ModeAbsolute {
			return a.errorAt(InvalidItem, a.current(), t.Pos, l.Name, "cannot be assigned")
		}
		if err := a.resolve(s.Value, bytecode.RegA); err != nil {
			return err
		}
		a.emit(bytecode.OpSTA, l.Reference)
	case *FieldGet:
		idx, err := a.fieldIndex(t)
		if err != nil {
			return err
		}
		if err := a.resolve(t.Object, bytecode.RegA); err != nil {
			return err
		}
		obj := a.spill()
		if err := a.resolve(s.Value, bytecode.RegA); err != nil {
			return err
		}
		a.emit(bytecode.OpSTA, bytecode.AbsoluteProperty(obj, idx))
	case *Index:
		if err := a.resolve(t.Array, bytecode.RegA); err != nil {
			return err
		}
		arr := a.spill()
		if err := a.resolve(t.Index, bytecode.RegA); err != nil {
			return err
		}
		idx := a.spill()
		if err := a.resolve(s.Value, bytecode.RegA); err != nil {
			return err
		}
		a.emit(bytecode.OpSTA, bytecode.AbsoluteIndex(arr, idx))
	default:
		return a.errorAt(Unsupported, a.current(), s.Pos, "", "cannot assign to this expression")
	}
	return nil
}

func (a *Assembler) debugHeader(kind bytecode.DebugKind, h uint64, name string, start, end int, pos Span) {
	a.debug.Add(bytecode.DebugHeader{
		Kind:       kind,
		Hash:       h,
		Module:     a.module.Path,
		ModuleHash: a.module.Hash,
		Name:       name,
		Start:      start,
		End:        end,
		Pos:        pos,
	})
}

package compiler

// ---------------------------------------------------------------------------
// Pass 1: symbol and class shape collection
// ---------------------------------------------------------------------------

// collectModule walks the module page h, its inner pages and everything they
// depend on. The dependencies found anywhere inside the module are hoisted so
// pass 2 emits them before the module itself.
func (a *Assembler) collectModule(h uint64, pos Span, from *Page) {
	if _, ok := a.hoisted[h]; ok {
		return
	}
	p, ok := a.graph.Page(h)
	if !ok {
		a.fail(a.errorAt(UnresolvedDependency, from, pos, "", "page %d is not in the graph", h))
		return
	}
	if a.inner[h] {
		a.fail(a.errorAt(InvalidItem, from, pos, p.Path, "page is the body of an item and cannot be imported"))
		return
	}
	a.hoisted[h] = nil

	var deps []pageRef
	a.collectPage(p, &deps)

	var hoisted []pageRef
	for _, d := range deps {
		if d.hash == h || a.inner[d.hash] {
			continue
		}
		hoisted = append(hoisted, d)
	}
	a.hoisted[h] = hoisted
	for _, d := range hoisted {
		a.collectModule(d.hash, d.pos, p)
	}
}

// innerPage claims the body page h for an item of owner.
func (a *Assembler) innerPage(owner *Page, h uint64, pos Span) *Page {
	if h == 0 {
		return nil
	}
	p, ok := a.graph.Page(h)
	if !ok {
		a.fail(a.errorAt(UnresolvedDependency, owner, pos, "", "body page %d is not in the graph", h))
		return nil
	}
	if _, isModule := a.hoisted[h]; isModule || a.inner[h] {
		a.fail(a.errorAt(InvalidItem, owner, pos, p.Path, "page is already in use"))
		return nil
	}
	a.inner[h] = true
	return p
}

func (a *Assembler) collectBody(owner *Page, h uint64, pos Span, deps *[]pageRef) {
	if p := a.innerPage(owner, h, pos); p != nil {
		a.collectPage(p, deps)
	}
}

func (a *Assembler) collectPage(p *Page, deps *[]pageRef) {
	for _, d := range p.Dependencies {
		*deps = append(*deps, pageRef{hash: d})
	}
	for _, it := range p.Items {
		switch it := it.(type) {
		case *Class:
			shape := &classShape{name: it.Name, hash: it.Hash, body: it.Body, index: make(map[string]int)}
			if !a.declare(it.Hash, symbol{kind: symClass, name: it.Name, page: p, pos: it.Pos}) {
				continue
			}
			a.classes[it.Hash] = shape
			body := a.innerPage(p, it.Body, it.Pos)
			if body == nil {
				if it.Body == 0 {
					a.fail(a.errorAt(InvalidItem, p, it.Pos, it.Name, "class has no body page"))
				}
				continue
			}
			a.collectClass(body, shape, deps)
		case *Function:
			a.declare(it.Hash, symbol{kind: symCallable, name: it.Name, page: p, pos: it.Pos})
			a.collectBody(p, it.Body, it.Pos, deps)
		case *NativeFunction:
			a.declare(it.Hash, symbol{kind: symCallable, name: it.Name, page: p, pos: it.Pos})
		case *Variable:
			a.declare(it.Hash, symbol{kind: symVariable, name: it.Name, page: p, pos: it.Pos})
		case *Condition:
			for _, ch := range it.Chains {
				a.collectBody(p, ch.Body, ch.Pos, deps)
			}
		case *Loop:
			a.collectBody(p, it.Body, it.Pos, deps)
		case *Import:
			*deps = append(*deps, pageRef{hash: it.Page, pos: it.Pos})
			a.imports[p.Hash] = append(a.imports[p.Hash], it.Page)
		case *Constructor, *Getter, *Setter:
			a.fail(a.errorAt(Unsupported, p, it.Position(), "", "%s outside a class body", itemName(it)))
		}
	}
}

func (a *Assembler) collectClass(body *Page, shape *classShape, deps *[]pageRef) {
	for _, d := range body.Dependencies {
		*deps = append(*deps, pageRef{hash: d})
	}
	for _, it := range body.Items {
		switch it := it.(type) {
		case *Variable:
			if _, dup := shape.index[it.Name]; dup {
				a.fail(a.errorAt(DuplicateSymbol, body, it.Pos, it.Name, "field declared twice in class %s", shape.name))
				continue
			}
			shape.index[it.Name] = len(shape.fields)
			shape.fields = append(shape.fields, it)
		case *Constructor:
			if shape.ctor != nil {
				a.fail(a.errorAt(DuplicateSymbol, body, it.Pos, shape.name, "class has two constructors"))
				continue
			}
			shape.ctor = it
			a.collectBody(body, it.Body, it.Pos, deps)
		case *Function:
			a.declare(it.Hash, symbol{kind: symCallable, name: it.Name, page: body, pos: it.Pos})
			a.collectBody(body, it.Body, it.Pos, deps)
		case *Getter:
			a.declare(it.Hash, symbol{kind: symCallable, name: it.Name, page: body, pos: it.Pos})
			a.collectBody(body, it.Body, it.Pos, deps)
		case *Setter:
			a.declare(it.Hash, symbol{kind: symCallable, name: it.Name, page: body, pos: it.Pos})
			a.collectBody(body, it.Body, it.Pos, deps)
		case *SelfItem:
		default:
			a.fail(a.errorAt(Unsupported, body, it.Position(), shape.name, "%s in a class body", itemName(it)))
		}
	}
}

func itemName(it Item) string {
	switch it.(type) {
	case *Class:
		return "class"
	case *Function:
		return "function"
	case *Constructor:
		return "constructor"
	case *Getter:
		return "getter"
	case *Setter:
		return "setter"
	case *Condition:
		return "condition"
	case *Loop:
		return "loop"
	case *Ret:
		return "return"
	case *Variable:
		return "variable"
	case *SelfItem:
		return "self"
	case *NativeFunction:
		return "native function"
	case *Import:
		return "import"
	case *ExprStmt:
		return "expression"
	case *Assign:
		return "assignment"
	}
	return "item"
}

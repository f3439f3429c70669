package compiler

import (
	"github.com/chazu/ellie/pkg/bytecode"
)

// ---------------------------------------------------------------------------
// Pass 2: expression emission
// ---------------------------------------------------------------------------

var convertOps = map[bytecode.Kind]bytecode.Opcode{
	bytecode.KindInt:    bytecode.OpA2I,
	bytecode.KindFloat:  bytecode.OpA2F,
	bytecode.KindDouble: bytecode.OpA2D,
	bytecode.KindByte:   bytecode.OpA2B,
	bytecode.KindString: bytecode.OpA2S,
	bytecode.KindChar:   bytecode.OpA2C,
	bytecode.KindBool:   bytecode.OpA2O,
}

// resolve emits code leaving the value of e in reg. Intermediate values are
// spilled to slots so nested expressions never clobber each other.
func (a *Assembler) resolve(e Expr, reg bytecode.Register) error {
	switch e := e.(type) {
	case *Literal:
		a.emit(bytecode.LoadOp(reg), bytecode.Immediate(e.Value))
	case *VarRef:
		l, err := a.lookupVar(e)
		if err != nil {
			return err
		}
		if l == nil {
			return a.reference(bytecode.LoadOp(reg), e.Hash, symVariable, e.Pos)
		}
		a.emit(bytecode.LoadOp(reg), l.Reference)
	case *SelfRef:
		if a.ctx.class == nil {
			return a.errorAt(Unsupported, a.current(), e.Pos, "", "self outside a class member")
		}
		l, ok := a.lookupName("self")
		if !ok {
			return a.errorAt(UnresolvedSymbol, a.current(), e.Pos, "self", "no receiver in scope")
		}
		a.emit(bytecode.LoadOp(reg), l.Reference)
	case *Binary:
		return a.binary(e, reg)
	case *Unary:
		return a.unary(e, reg)
	case *Call:
		return a.call(e, reg)
	case *New:
		slots, err := a.spillAll(e.Args)
		if err != nil {
			return err
		}
		a.pushAll(slots)
		if err := a.reference(bytecode.OpCO, e.Class, symClass, e.Pos); err != nil {
			return err
		}
		a.move(reg)
	case *FieldGet:
		idx, err := a.fieldIndex(e)
		if err != nil {
			return err
		}
		if err := a.resolve(e.Object, bytecode.RegA); err != nil {
			return err
		}
		obj := a.spill()
		a.emit(bytecode.LoadOp(reg), bytecode.AbsoluteProperty(obj, idx))
	case *Index:
		if err := a.resolve(e.Array, bytecode.RegA); err != nil {
			return err
		}
		arr := a.spill()
		if err := a.resolve(e.Index, bytecode.RegA); err != nil {
			return err
		}
		idx := a.spill()
		a.emit(bytecode.LoadOp(reg), bytecode.AbsoluteIndex(arr, idx))
	case *ArrayLit:
		slots, err := a.spillAll(e.Elements)
		if err != nil {
			return err
		}
		a.pushAll(slots)
		a.emit(bytecode.OpCO, bytecode.Immediate(bytecode.Int(int64(len(slots)))))
		a.move(reg)
	case *Len:
		if err := a.resolve(e.Value, bytecode.RegA); err != nil {
			return err
		}
		a.emit(bytecode.OpLEN, bytecode.Implicit())
		a.move(reg)
	case *Convert:
		op, ok := convertOps[e.To]
		if !ok {
			return a.errorAt(Unsupported, a.current(), e.Pos, "", "cannot convert to %s", e.To)
		}
		if err := a.resolve(e.Value, bytecode.RegA); err != nil {
			return err
		}
		a.emit(op, bytecode.Implicit())
		a.move(reg)
	case nil:
		return a.errorAt(InvalidItem, a.current(), Span{}, "", "missing expression")
	default:
		return a.errorAt(Unsupported, a.current(), e.Position(), "", "unknown expression %T", e)
	}
	return nil
}

// binary emits
//
//	left -> A; STA s
//	right -> A; LDC A; LDB $s
//	OP
func (a *Assembler) binary(e *Binary, reg bytecode.Register) error {
	op, ok := e.Op.Opcode()
	if !ok {
		return a.errorAt(Unsupported, a.current(), e.Pos, "", "unknown operator %d", e.Op)
	}
	if err := a.resolve(e.Left, bytecode.RegA); err != nil {
		return err
	}
	left := a.spill()
	if err := a.resolve(e.Right, bytecode.RegA); err != nil {
		return err
	}
	a.emit(bytecode.OpLDC, bytecode.Indirect(bytecode.RegA))
	a.emit(bytecode.OpLDB, bytecode.Absolute(left))
	a.emit(op, bytecode.Implicit())
	a.move(reg)
	return nil
}

func (a *Assembler) unary(e *Unary, reg bytecode.Register) error {
	if err := a.resolve(e.Value, bytecode.RegA); err != nil {
		return err
	}
	switch e.Op {
	case OpNeg:
		a.emit(bytecode.OpLDC, bytecode.Indirect(bytecode.RegA))
		a.emit(bytecode.OpLDB, bytecode.Immediate(bytecode.Int(0)))
		a.emit(bytecode.OpSUB, bytecode.Implicit())
	case OpNot:
		a.emit(bytecode.OpLDB, bytecode.Indirect(bytecode.RegA))
		a.emit(bytecode.OpLDC, bytecode.Immediate(bytecode.Bool(false)))
		a.emit(bytecode.OpEQ, bytecode.Implicit())
	default:
		return a.errorAt(Unsupported, a.current(), e.Pos, "", "unknown unary operator %d", e.Op)
	}
	a.move(reg)
	return nil
}

// call evaluates the arguments and the receiver into slots before pushing
// anything, so a nested call cannot interleave with this one's Pending list.
func (a *Assembler) call(e *Call, reg bytecode.Register) error {
	slots, err := a.spillAll(e.Args)
	if err != nil {
		return err
	}
	recv := -1
	if e.Receiver != nil {
		if err := a.resolve(e.Receiver, bytecode.RegA); err != nil {
			return err
		}
		recv = a.spill()
	}
	a.pushAll(slots)
	if recv >= 0 {
		a.emit(bytecode.OpLDX, bytecode.Absolute(recv))
	}
	if err := a.reference(bytecode.OpCALL, e.Target, symCallable, e.Pos); err != nil {
		return err
	}
	a.move(reg)
	return nil
}

func (a *Assembler) spillAll(exprs []Expr) ([]int, error) {
	slots := make([]int, 0, len(exprs))
	for _, x := range exprs {
		if err := a.resolve(x, bytecode.RegA); err != nil {
			return nil, err
		}
		slots = append(slots, a.spill())
	}
	return slots, nil
}

func (a *Assembler) pushAll(slots []int) {
	for _, s := range slots {
		a.emit(bytecode.OpPUSH, bytecode.Absolute(s))
	}
}

// lookupVar resolves a VarRef to its header. A nil header with a nil error
// means the variable is declared but not emitted yet.
func (a *Assembler) lookupVar(v *VarRef) (*LocalHeader, error) {
	if v.Hash != 0 {
		if i, ok := a.byHash[v.Hash]; ok {
			l := a.locals[i]
			if !l.isValue() {
				return nil, a.errorAt(InvalidItem, a.current(), v.Pos, l.Name, "is not a variable")
			}
			return &l, nil
		}
		if s, ok := a.symbols[v.Hash]; ok {
			if s.kind != symVariable {
				return nil, a.errorAt(InvalidItem, a.current(), v.Pos, s.name, "is not a variable")
			}
			return nil, nil
		}
		return nil, a.errorAt(UnresolvedSymbol, a.current(), v.Pos, v.Name, "no declaration for hash %d", v.Hash)
	}
	l, ok := a.lookupName(v.Name)
	if !ok {
		return nil, a.errorAt(UnresolvedSymbol, a.current(), v.Pos, v.Name, "not declared in a visible scope")
	}
	return &l, nil
}

func (a *Assembler) fieldIndex(f *FieldGet) (int, error) {
	shape, ok := a.classes[f.Class]
	if !ok {
		return 0, a.errorAt(UnresolvedSymbol, a.current(), f.Pos, f.Field, "unknown class %d", f.Class)
	}
	idx, err := shape.field(f.Field)
	if err != nil {
		return 0, a.errorAt(UnresolvedSymbol, a.current(), f.Pos, f.Field, "%v", err)
	}
	return idx, nil
}

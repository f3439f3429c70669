package compiler

import "github.com/chazu/ellie/pkg/bytecode"

// ---------------------------------------------------------------------------
// Expressions
// ---------------------------------------------------------------------------

// Expr is implemented by every expression node. The set is closed.
type Expr interface {
	Position() Span
	expr()
}

// Literal is a constant of any scalar kind, including Null and Void.
type Literal struct {
	Value bytecode.Value
	Pos   Span
}

// VarRef names a variable or parameter. A non-zero Hash
// binds it to a declaration on another page; otherwise Name is looked up in
// the visible scopes.
type VarRef struct {
	Name string
	Hash uint64
	Pos  Span
}

// SelfRef is the receiver inside a class member.
type SelfRef struct {
	Pos Span
}

// Operator is a binary operator.
type Operator uint8

const (
	OpAdd Operator = iota
	OpSub
	OpMul
	OpDiv
	OpMod
	OpExp
	OpShr
	OpEq
	OpNe
	OpGt
	OpLt
	OpGe
	OpLe
	OpAnd
	OpOr
)

var operatorCodes = [...]bytecode.Opcode{
	OpAdd: bytecode.OpADD,
	OpSub: bytecode.OpSUB,
	OpMul: bytecode.OpMUL,
	OpDiv: bytecode.OpDIV,
	OpMod: bytecode.OpMOD,
	OpExp: bytecode.OpEXP,
	OpShr: bytecode.OpSAR,
	OpEq:  bytecode.OpEQ,
	OpNe:  bytecode.OpNE,
	OpGt:  bytecode.OpGT,
	OpLt:  bytecode.OpLT,
	OpGe:  bytecode.OpGQ,
	OpLe:  bytecode.OpLQ,
	OpAnd: bytecode.OpAND,
	OpOr:  bytecode.OpOR,
}

// Opcode returns the instruction implementing op.
func (op Operator) Opcode() (bytecode.Opcode, bool) {
	if int(op) < len(operatorCodes) {
		return operatorCodes[op], true
	}
	return 0, false
}

// Binary is Left Op Right.
type Binary struct {
	Op    Operator
	Left  Expr
	Right Expr
	Pos   Span
}

// UnaryOp is a prefix operator.
type UnaryOp uint8

const (
	OpNeg UnaryOp = iota
	OpNot
)

// Unary is Op Value.
type Unary struct {
	Op    UnaryOp
	Value Expr
	Pos   Span
}

// Call invokes the function, method, accessor or native whose hash is
// Target. Receiver is nil for free functions.
type Call struct {
	Target   uint64
	Receiver Expr
	Args     []Expr
	Pos      Span
}

// New constructs an instance of Class.
type New struct {
	Class uint64
	Args  []Expr
	Pos   Span
}

// FieldGet reads Field of Object, whose class is Class.
type FieldGet struct {
	Object Expr
	Class  uint64
	Field  string
	Pos    Span
}

// Index reads Array[Index].
type Index struct {
	Array Expr
	Index Expr
	Pos   Span
}

// ArrayLit builds an array from its elements.
type ArrayLit struct {
	Elements []Expr
	Pos      Span
}

// Len is the length of a string or array.
type Len struct {
	Value Expr
	Pos   Span
}

// Convert converts Value to the scalar kind To.
type Convert struct {
	Value Expr
	To    bytecode.Kind
	Pos   Span
}

func (n *Literal) Position() Span  { return n.Pos }
func (n *VarRef) Position() Span   { return n.Pos }
func (n *SelfRef) Position() Span  { return n.Pos }
func (n *Binary) Position() Span   { return n.Pos }
func (n *Unary) Position() Span    { return n.Pos }
func (n *Call) Position() Span     { return n.Pos }
func (n *New) Position() Span      { return n.Pos }
func (n *FieldGet) Position() Span { return n.Pos }
func (n *Index) Position() Span    { return n.Pos }
func (n *ArrayLit) Position() Span { return n.Pos }
func (n *Len) Position() Span      { return n.Pos }
func (n *Convert) Position() Span  { return n.Pos }

func (*Literal) expr()  {}
func (*VarRef) expr()   {}
func (*SelfRef) expr()  {}
func (*Binary) expr()   {}
func (*Unary) expr()    {}
func (*Call) expr()     {}
func (*New) expr()      {}
func (*FieldGet) expr() {}
func (*Index) expr()    {}
func (*ArrayLit) expr() {}
func (*Len) expr()      {}
func (*Convert) expr()  {}

// Lit is shorthand for a Literal without a position.
func Lit(v bytecode.Value) *Literal { return &Literal{Value: v} }

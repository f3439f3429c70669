package compiler

import "github.com/chazu/ellie/pkg/bytecode"

// ---------------------------------------------------------------------------
// Items: the statements and declarations a page holds
// ---------------------------------------------------------------------------

// Item is implemented by every page entry. The set is closed.
type Item interface {
	Position() Span
	item()
}

// Param is a declared parameter of a function, constructor, setter or
// native.
type Param struct {
	Name string
	Type bytecode.Kind
	Pos  Span
}

// Class declares a class. Body is the page holding its fields (Variables),
// its Constructor and its members.
type Class struct {
	Name string
	Hash uint64
	Body uint64
	Pos  Span
}

// Function declares a free function, or a method when it appears in a class
// body. Body may be zero for an empty function.
type Function struct {
	Name   string
	Hash   uint64
	Params []Param
	Body   uint64
	Pos    Span
}

// Constructor is the optional constructor of the enclosing class.
type Constructor struct {
	Params []Param
	Body   uint64
	Pos    Span
}

// Getter declares a property getter of the enclosing class.
type Getter struct {
	Name string
	Hash uint64
	Body uint64
	Pos  Span
}

// Setter declares a property setter of the enclosing class.
type Setter struct {
	Name  string
	Hash  uint64
	Param Param
	Body  uint64
	Pos   Span
}

// ChainKind is the role of one link in a conditional chain.
type ChainKind uint8

const (
	ChainIf ChainKind = iota
	ChainElseIf
	ChainElse
)

// Chain is one branch of a Condition. Cond is nil for ChainElse.
type Chain struct {
	Kind ChainKind
	Cond Expr
	Body uint64
	Pos  Span
}

// Condition is an if / else if / else chain.
type Condition struct {
	Chains []Chain
	Pos    Span
}

// Loop runs Body while Cond holds.
type Loop struct {
	Cond Expr
	Body uint64
	Pos  Span
}

// Ret returns from the enclosing function, or ends the program when it
// appears at the top level of the entry page. A nil Value returns void.
type Ret struct {
	Value Expr
	Pos   Span
}

// Variable declares a local, a module variable or, in a class body, a field.
// Hash is zero for locals nobody references across pages.
type Variable struct {
	Name     string
	Hash     uint64
	Type     bytecode.Kind
	Value    Expr
	Constant bool
	Pos      Span
}

// SelfItem marks a class member as taking the receiver. Members always bind
// self, so it emits nothing.
type SelfItem struct {
	Pos Span
}

// NativeFunction declares a function provided by the host.
type NativeFunction struct {
	Name   string
	Hash   uint64
	Params []Param
	Return bytecode.Kind
	Pos    Span
}

// Import makes the items of another page visible from this point.
type Import struct {
	Page uint64
	Pos  Span
}

// ExprStmt evaluates an expression for its effect. The value is left in A.
type ExprStmt struct {
	Value Expr
	Pos   Span
}

// Assign stores Value into a variable, field or array element.
type Assign struct {
	Target Expr
	Value  Expr
	Pos    Span
}

func (n *Class) Position() Span          { return n.Pos }
func (n *Function) Position() Span       { return n.Pos }
func (n *Constructor) Position() Span    { return n.Pos }
func (n *Getter) Position() Span         { return n.Pos }
func (n *Setter) Position() Span         { return n.Pos }
func (n *Condition) Position() Span      { return n.Pos }
func (n *Loop) Position() Span           { return n.Pos }
func (n *Ret) Position() Span            { return n.Pos }
func (n *Variable) Position() Span       { return n.Pos }
func (n *SelfItem) Position() Span       { return n.Pos }
func (n *NativeFunction) Position() Span { return n.Pos }
func (n *Import) Position() Span         { return n.Pos }
func (n *ExprStmt) Position() Span       { return n.Pos }
func (n *Assign) Position() Span         { return n.Pos }

func (*Class) item()          {}
func (*Function) item()       {}
func (*Constructor) item()    {}
func (*Getter) item()         {}
func (*Setter) item()         {}
func (*Condition) item()      {}
func (*Loop) item()           {}
func (*Ret) item()            {}
func (*Variable) item()       {}
func (*SelfItem) item()       {}
func (*NativeFunction) item() {}
func (*Import) item()         {}
func (*ExprStmt) item()       {}
func (*Assign) item()         {}

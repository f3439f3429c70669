package compiler

import (
	"errors"
	"fmt"

	"github.com/hashicorp/go-multierror"

	"github.com/chazu/ellie/pkg/bytecode"
)

// ErrorKind classifies an assembly error.
type ErrorKind uint8

const (
	Unsupported ErrorKind = iota + 1
	DuplicateSymbol
	UnresolvedSymbol
	UnresolvedDependency
	ProgramTooLarge
	InvalidItem
)

var errorKindNames = map[ErrorKind]string{
	Unsupported:          "unsupported",
	DuplicateSymbol:      "duplicate symbol",
	UnresolvedSymbol:     "unresolved symbol",
	UnresolvedDependency: "unresolved dependency",
	ProgramTooLarge:      "program too large",
	InvalidItem:          "invalid item",
}

func (k ErrorKind) String() string {
	if s, ok := errorKindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("ErrorKind(%d)", uint8(k))
}

// Error is an assembly-time error. It is never raised at run time.
type Error struct {
	Kind ErrorKind
	Page uint64
	Path string
	Pos  Span
	Name string
	Msg  string
}

func (e *Error) Error() string {
	loc := e.Path
	if loc == "" {
		loc = fmt.Sprintf("page %d", e.Page)
	}
	if e.Pos != (Span{}) {
		loc = fmt.Sprintf("%s:%d:%d", loc, e.Pos.StartLine, e.Pos.StartCol)
	}
	if e.Name != "" {
		return fmt.Sprintf("%s: %s %q: %s", loc, e.Kind, e.Name, e.Msg)
	}
	return fmt.Sprintf("%s: %s: %s", loc, e.Kind, e.Msg)
}

// Unwrap lets errors.Is match bytecode.ErrProgramTooLarge.
func (e *Error) Unwrap() error {
	if e.Kind == ProgramTooLarge {
		return bytecode.ErrProgramTooLarge
	}
	return nil
}

// Errors flattens the result of Assemble into its individual errors.
func Errors(err error) []*Error {
	if err == nil {
		return nil
	}
	var out []*Error
	var merr *multierror.Error
	if errors.As(err, &merr) {
		for _, e := range merr.Errors {
			out = append(out, Errors(e)...)
		}
		return out
	}
	var ce *Error
	if errors.As(err, &ce) {
		out = append(out, ce)
	}
	return out
}

// HasKind reports whether err contains an Error of kind k.
func HasKind(err error, k ErrorKind) bool {
	for _, e := range Errors(err) {
		if e.Kind == k {
			return true
		}
	}
	return false
}

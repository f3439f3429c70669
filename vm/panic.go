package vm

import (
	"errors"
	"fmt"
	"path/filepath"
	"runtime"

	"github.com/chazu/ellie/pkg/bytecode"
)

// PanicReason classifies a runtime panic. A PanicReason is itself an error
// so callers can write errors.Is(err, vm.DivisionByZero).
type PanicReason uint8

const (
	IllegalAddressingValue PanicReason = iota + 1
	StackOverflow
	HeapOutOfBounds
	DivisionByZero
	UnknownOpcode
	NativeArityMismatch
	IndexOutOfBounds
	NullReference
	UnexpectedType
	IntegerOverflow
	ParameterAccessViolation
	OutOfInstructions
	CallToUnknown
	CannotConvertToType
	ProgramTooLarge
	FloatOverflow
	DoubleOverflow
)

var reasonNames = map[PanicReason]string{
	IllegalAddressingValue:   "IllegalAddressingValue",
	StackOverflow:            "StackOverflow",
	HeapOutOfBounds:          "HeapOutOfBounds",
	DivisionByZero:           "DivisionByZero",
	UnknownOpcode:            "UnknownOpcode",
	NativeArityMismatch:      "NativeArityMismatch",
	IndexOutOfBounds:         "IndexOutOfBounds",
	NullReference:            "NullReference",
	UnexpectedType:           "UnexpectedType",
	IntegerOverflow:          "IntegerOverflow",
	ParameterAccessViolation: "ParameterAccessViolation",
	OutOfInstructions:        "OutOfInstructions",
	CallToUnknown:            "CallToUnknown",
	CannotConvertToType:      "CannotConvertToType",
	ProgramTooLarge:          "ProgramTooLarge",
	FloatOverflow:            "FloatOverflow",
	DoubleOverflow:           "DoubleOverflow",
}

func (r PanicReason) String() string {
	if s, ok := reasonNames[r]; ok {
		return s
	}
	return fmt.Sprintf("PanicReason(%d)", uint8(r))
}

func (r PanicReason) Error() string { return r.String() }

// ExecuterPanic is the terminal error of a Thread. Pos and Frame locate the
// offending instruction; CodeLocation names the Go code that raised it.
type ExecuterPanic struct {
	Reason       PanicReason
	Pos          int
	Frame        uint64
	Detail       string
	CodeLocation string
}

func (p *ExecuterPanic) Error() string {
	if p.Detail == "" {
		return fmt.Sprintf("%s at %d (frame %d)", p.Reason, p.Pos, p.Frame)
	}
	return fmt.Sprintf("%s at %d (frame %d): %s", p.Reason, p.Pos, p.Frame, p.Detail)
}

// Is matches a PanicReason or another ExecuterPanic with the same reason.
func (p *ExecuterPanic) Is(target error) bool {
	switch t := target.(type) {
	case PanicReason:
		return t == p.Reason
	case *ExecuterPanic:
		return t.Reason == p.Reason
	}
	return false
}

// newPanic builds an ExecuterPanic recording the caller as its code
// location. The thread fills in Pos and Frame.
func newPanic(reason PanicReason, format string, args ...any) *ExecuterPanic {
	p := &ExecuterPanic{Reason: reason, Detail: fmt.Sprintf(format, args...)}
	if _, file, line, ok := runtime.Caller(1); ok {
		p.CodeLocation = fmt.Sprintf("%s:%d", filepath.Base(file), line)
	}
	return p
}

// ReasonOf extracts the PanicReason carried by err.
func ReasonOf(err error) (PanicReason, bool) {
	var p *ExecuterPanic
	if errors.As(err, &p) {
		return p.Reason, true
	}
	var r PanicReason
	if errors.As(err, &r) {
		return r, true
	}
	return 0, false
}

// LoadError reports a Program that cannot be bound to an Isolate.
type LoadError struct {
	Native string
	Msg    string
	Err    error
}

func (e *LoadError) Error() string {
	if e.Native != "" {
		return fmt.Sprintf("load: native %q: %s", e.Native, e.Msg)
	}
	return "load: " + e.Msg
}

func (e *LoadError) Unwrap() error { return e.Err }

// Is lets an oversized program match ProgramTooLarge.
func (e *LoadError) Is(target error) bool {
	return target == ProgramTooLarge && errors.Is(e.Err, bytecode.ErrProgramTooLarge)
}

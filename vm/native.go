package vm

import (
	"fmt"

	"github.com/chazu/ellie/pkg/bytecode"
)

// ---------------------------------------------------------------------------
// Native bridge
// ---------------------------------------------------------------------------

// NativeCallback implements a native function. It runs with the Isolate
// locked and must reach the heap through iso.Heap(). It may call Natives,
// RegisterNative and Load, but calling iso.Lock deadlocks.
type NativeCallback func(iso *Isolate, args []bytecode.Value) NativeAnswer

// NativeFunction is a host function programs can import by name.
type NativeFunction struct {
	Name     string
	Params   []bytecode.Kind
	Return   bytecode.Kind
	Callback NativeCallback
}

// NativeAnswer is the outcome of a native call: a value or an exception.
type NativeAnswer struct {
	value     bytecode.Value
	code      int64
	message   string
	exception bool
}

// Response answers a native call with v.
func Response(v bytecode.Value) NativeAnswer { return NativeAnswer{value: v} }

// Exception answers a native call with an error record. It is not a panic:
// the caller sees it in A with B set to true.
func Exception(code int64, message string) NativeAnswer {
	return NativeAnswer{code: code, message: message, exception: true}
}

// IsException reports whether the answer is an Exception.
func (a NativeAnswer) IsException() bool { return a.exception }

// Value returns the value of a Response.
func (a NativeAnswer) Value() bytecode.Value { return a.value }

// Code returns the code of an Exception.
func (a NativeAnswer) Code() int64 { return a.code }

// Message returns the message of an Exception.
func (a NativeAnswer) Message() string { return a.message }

// Exception codes below zero are reserved for the bridge.
const ExceptionNativePanic = -1

func invoke(nf *NativeFunction, iso *Isolate, args []bytecode.Value) (ans NativeAnswer) {
	defer func() {
		if r := recover(); r != nil {
			log.Warningf("native %s panicked: %v", nf.Name, r)
			ans = Exception(ExceptionNativePanic, fmt.Sprint(r))
		}
	}()
	return nf.Callback(iso, args)
}

// callNative runs native import idx with the frame's arguments. The Isolate
// is locked by the caller.
func (t *Thread) callNative(frame *Stack, idx int) error {
	natives := t.prog.natives
	if idx < 0 || idx >= len(natives) {
		return newPanic(CallToUnknown, "native import %d of %d", idx, len(natives))
	}
	imp := t.prog.Program.Natives[idx]
	if len(frame.Args) != len(imp.Params) {
		return newPanic(NativeArityMismatch, "%s takes %d arguments, got %d", imp.Name, len(imp.Params), len(frame.Args))
	}
	args := append([]bytecode.Value(nil), frame.Args...)
	ans := invoke(natives[idx], t.iso, args)
	if ans.exception {
		rec := t.iso.heap.AllocateBlock(t.id, []bytecode.Value{bytecode.Int(ans.code), bytecode.String(ans.message)})
		frame.A = bytecode.Ref(rec)
		frame.B = bytecode.Bool(true)
		return nil
	}
	frame.A = ans.value
	frame.B = bytecode.Bool(false)
	return nil
}

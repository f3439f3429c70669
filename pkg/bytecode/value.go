package bytecode

import (
	"fmt"
	"math"
	"strconv"
)

// Kind tags the variant held by a Value.
type Kind uint8

const (
	KindVoid Kind = iota
	KindNull
	KindInt
	KindFloat
	KindDouble
	KindByte
	KindBool
	KindChar
	KindString
	KindRef
)

var kindNames = [...]string{
	KindVoid:   "void",
	KindNull:   "null",
	KindInt:    "int",
	KindFloat:  "float",
	KindDouble: "double",
	KindByte:   "byte",
	KindBool:   "bool",
	KindChar:   "char",
	KindString: "string",
	KindRef:    "ref",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("kind(%d)", uint8(k))
}

// Valid reports whether k is one of the declared kinds.
func (k Kind) Valid() bool {
	return int(k) < len(kindNames)
}

// ParseKind maps a type name to its Kind.
func ParseKind(name string) (Kind, error) {
	for k, n := range kindNames {
		if n == name {
			return Kind(k), nil
		}
	}
	return 0, fmt.Errorf("unknown type %q", name)
}

// Value is the tagged union every register, memory slot and immediate holds.
// The zero Value is void.
type Value struct {
	kind Kind
	n    int64
	f    float64
	s    string
}

func Void() Value { return Value{kind: KindVoid} }
func Null() Value { return Value{kind: KindNull} }
func Int(n int64) Value { return Value{kind: KindInt, n: n} }
func Float(f float32) Value { return Value{kind: KindFloat, f: float64(f)} }
func Double(f float64) Value { return Value{kind: KindDouble, f: f} }
func Byte(b byte) Value { return Value{kind: KindByte, n: int64(b)} }
func Char(r rune) Value { return Value{kind: KindChar, n: int64(r)} }
func String(s string) Value { return Value{kind: KindString, s: s} }
func Ref(handle uint64) Value { return Value{kind: KindRef, n: int64(handle)} }
func Bool(b bool) Value {
	if b {
		return Value{kind: KindBool, n: 1}
	}
	return Value{kind: KindBool}
}

// Kind returns the variant tag.
func (v Value) Kind() Kind { return v.kind }

func (v Value) IsVoid() bool { return v.kind == KindVoid }
func (v Value) IsNull() bool { return v.kind == KindNull }

func (v Value) AsInt() (int64, bool) { return v.n, v.kind == KindInt }
func (v Value) AsFloat() (float32, bool) { return float32(v.f), v.kind == KindFloat }
func (v Value) AsDouble() (float64, bool) {
	return v.f, v.kind == KindDouble
}
func (v Value) AsByte() (byte, bool) { return byte(v.n), v.kind == KindByte }
func (v Value) AsBool() (bool, bool) { return v.n != 0, v.kind == KindBool }
func (v Value) AsChar() (rune, bool) { return rune(v.n), v.kind == KindChar }
func (v Value) AsString() (string, bool) { return v.s, v.kind == KindString }
func (v Value) AsRef() (uint64, bool) { return uint64(v.n), v.kind == KindRef }

// IsNumeric reports whether v takes part in arithmetic.
func (v Value) IsNumeric() bool {
	switch v.kind {
	case KindInt, KindFloat, KindDouble, KindByte:
		return true
	}
	return false
}

// Number widens a numeric value to float64.
func (v Value) Number() (float64, bool) {
	switch v.kind {
	case KindInt, KindByte:
		return float64(v.n), true
	case KindFloat, KindDouble:
		return v.f, true
	}
	return 0, false
}

// Equal is strict: both kind and payload must match.
func (v Value) Equal(o Value) bool {
	if v.kind != o.kind {
		return false
	}
	switch v.kind {
	case KindVoid, KindNull:
		return true
	case KindFloat, KindDouble:
		return v.f == o.f || (math.IsNaN(v.f) && math.IsNaN(o.f))
	case KindString:
		return v.s == o.s
	}
	return v.n == o.n
}

// String renders the value the way the language prints it.
func (v Value) String() string {
	switch v.kind {
	case KindVoid:
		return "void"
	case KindNull:
		return "null"
	case KindInt:
		return strconv.FormatInt(v.n, 10)
	case KindFloat:
		return strconv.FormatFloat(v.f, 'g', -1, 32)
	case KindDouble:
		return strconv.FormatFloat(v.f, 'g', -1, 64)
	case KindByte:
		return strconv.FormatInt(v.n, 10)
	case KindBool:
		return strconv.FormatBool(v.n != 0)
	case KindChar:
		return string(rune(v.n))
	case KindString:
		return v.s
	case KindRef:
		return fmt.Sprintf("ref#%d", uint64(v.n))
	}
	return "?"
}

// GoString is used by the disassembler and %#v, quoting strings and chars.
func (v Value) GoString() string {
	switch v.kind {
	case KindString:
		return strconv.Quote(v.s)
	case KindChar:
		return strconv.QuoteRune(rune(v.n))
	case KindFloat:
		return v.String() + "f"
	case KindByte:
		return fmt.Sprintf("0x%02x", byte(v.n))
	}
	return v.String()
}

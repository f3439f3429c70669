package vm

import (
	"math"
	"strings"

	"github.com/chazu/ellie/pkg/bytecode"
)

// numeric ranks used for promotion: byte and int compute as int, then float,
// then double.
type rank uint8

const (
	rankInt rank = iota
	rankFloat
	rankDouble
)

func rankOf(v bytecode.Value) (rank, bool) {
	switch v.Kind() {
	case bytecode.KindInt, bytecode.KindByte:
		return rankInt, true
	case bytecode.KindFloat:
		return rankFloat, true
	case bytecode.KindDouble:
		return rankDouble, true
	}
	return 0, false
}

func intOf(v bytecode.Value) int64 {
	if n, ok := v.AsInt(); ok {
		return n
	}
	b, _ := v.AsByte()
	return int64(b)
}

// arith computes b op c for ADD SUB MUL DIV MOD EXP and SAR.
func arith(op bytecode.Opcode, b, c bytecode.Value, arch bytecode.Architecture) (bytecode.Value, error) {
	if op == bytecode.OpSAR {
		return shiftRight(b, c)
	}
	if op == bytecode.OpADD && (b.Kind() == bytecode.KindString || c.Kind() == bytecode.KindString) {
		return concat(b, c)
	}
	rb, okb := rankOf(b)
	rc, okc := rankOf(c)
	if !okb || !okc {
		return bytecode.Value{}, newPanic(UnexpectedType, "%s %s %s", b.Kind(), op, c.Kind())
	}
	r := max(rb, rc)
	if r == rankInt {
		return intArith(op, intOf(b), intOf(c), arch)
	}
	x, _ := b.Number()
	y, _ := c.Number()
	if y == 0 && (op == bytecode.OpDIV || op == bytecode.OpMOD) {
		return bytecode.Value{}, newPanic(DivisionByZero, "%v %s 0", x, op)
	}
	f := floatArith(op, x, y)
	if r == rankFloat {
		f32 := float32(f)
		if !finite(float64(f32)) {
			return bytecode.Value{}, newPanic(FloatOverflow, "%v %s %v", x, op, y)
		}
		return bytecode.Float(f32), nil
	}
	if !finite(f) {
		return bytecode.Value{}, newPanic(DoubleOverflow, "%v %s %v", x, op, y)
	}
	return bytecode.Double(f), nil
}

func finite(f float64) bool { return !math.IsInf(f, 0) && !math.IsNaN(f) }

func concat(b, c bytecode.Value) (bytecode.Value, error) {
	for _, v := range []bytecode.Value{b, c} {
		switch v.Kind() {
		case bytecode.KindRef, bytecode.KindVoid:
			return bytecode.Value{}, newPanic(UnexpectedType, "cannot concatenate %s", v.Kind())
		}
	}
	var sb strings.Builder
	sb.WriteString(b.String())
	sb.WriteString(c.String())
	return bytecode.String(sb.String()), nil
}

func intArith(op bytecode.Opcode, x, y int64, arch bytecode.Architecture) (bytecode.Value, error) {
	var r int64
	switch op {
	case bytecode.OpADD:
		r = x + y
		if (r > x) != (y > 0) {
			return overflow(op, x, y)
		}
	case bytecode.OpSUB:
		r = x - y
		if (r < x) != (y > 0) {
			return overflow(op, x, y)
		}
	case bytecode.OpMUL:
		r = x * y
		if x != 0 && (r/x != y || (x == -1 && y == math.MinInt64)) {
			return overflow(op, x, y)
		}
	case bytecode.OpDIV:
		if y == 0 {
			return bytecode.Value{}, newPanic(DivisionByZero, "%d / 0", x)
		}
		if x == arch.MinInt() && y == -1 {
			return overflow(op, x, y)
		}
		r = x / y
	case bytecode.OpMOD:
		if y == 0 {
			return bytecode.Value{}, newPanic(DivisionByZero, "%d %% 0", x)
		}
		if y == -1 {
			r = 0
		} else {
			r = x % y
		}
	case bytecode.OpEXP:
		if y < 0 {
			f := math.Pow(float64(x), float64(y))
			if !finite(f) {
				return bytecode.Value{}, newPanic(DoubleOverflow, "%d ** %d", x, y)
			}
			return bytecode.Double(f), nil
		}
		var err error
		if r, err = intPow(x, y, arch); err != nil {
			return bytecode.Value{}, err
		}
	default:
		return bytecode.Value{}, newPanic(UnknownOpcode, "%s is not arithmetic", op)
	}
	if !arch.FitsInt(r) {
		return overflow(op, x, y)
	}
	return bytecode.Int(r), nil
}

func intPow(x, y int64, arch bytecode.Architecture) (int64, error) {
	r := int64(1)
	base := x
	for e := y; e > 0; e >>= 1 {
		if e&1 == 1 {
			v, err := intArith(bytecode.OpMUL, r, base, arch)
			if err != nil {
				return 0, newPanic(IntegerOverflow, "%d ** %d", x, y)
			}
			r, _ = v.AsInt()
		}
		if e > 1 {
			v, err := intArith(bytecode.OpMUL, base, base, arch)
			if err != nil {
				return 0, newPanic(IntegerOverflow, "%d ** %d", x, y)
			}
			base, _ = v.AsInt()
		}
	}
	return r, nil
}

func overflow(op bytecode.Opcode, x, y int64) (bytecode.Value, error) {
	return bytecode.Value{}, newPanic(IntegerOverflow, "%d %s %d", x, op, y)
}

func floatArith(op bytecode.Opcode, x, y float64) float64 {
	switch op {
	case bytecode.OpADD:
		return x + y
	case bytecode.OpSUB:
		return x - y
	case bytecode.OpMUL:
		return x * y
	case bytecode.OpDIV:
		return x / y
	case bytecode.OpMOD:
		return math.Mod(x, y)
	case bytecode.OpEXP:
		return math.Pow(x, y)
	}
	return math.NaN()
}

func shiftRight(b, c bytecode.Value) (bytecode.Value, error) {
	x, okx := b.AsInt()
	n, okn := c.AsInt()
	if !okx || !okn {
		return bytecode.Value{}, newPanic(UnexpectedType, "%s >> %s", b.Kind(), c.Kind())
	}
	if n < 0 || n > 63 {
		return bytecode.Value{}, newPanic(IntegerOverflow, "shift count %d outside [0, 63]", n)
	}
	return bytecode.Int(x >> uint(n)), nil
}

// compare computes b op c for EQ NE GT LT GQ LQ.
func compare(op bytecode.Opcode, b, c bytecode.Value) (bytecode.Value, error) {
	if op == bytecode.OpEQ || op == bytecode.OpNE {
		eq := equal(b, c)
		return bytecode.Bool(eq == (op == bytecode.OpEQ)), nil
	}
	cmp, err := order(b, c)
	if err != nil {
		return bytecode.Value{}, err
	}
	var r bool
	switch op {
	case bytecode.OpGT:
		r = cmp > 0
	case bytecode.OpLT:
		r = cmp < 0
	case bytecode.OpGQ:
		r = cmp >= 0
	case bytecode.OpLQ:
		r = cmp <= 0
	}
	return bytecode.Bool(r), nil
}

// equal is numeric across numeric kinds and strict otherwise.
func equal(b, c bytecode.Value) bool {
	rb, okb := rankOf(b)
	rc, okc := rankOf(c)
	if okb && okc {
		if rb == rankInt && rc == rankInt {
			return intOf(b) == intOf(c)
		}
		x, _ := b.Number()
		y, _ := c.Number()
		return x == y
	}
	return b.Equal(c)
}

func order(b, c bytecode.Value) (int, error) {
	rb, okb := rankOf(b)
	rc, okc := rankOf(c)
	switch {
	case okb && okc && rb == rankInt && rc == rankInt:
		return cmpOrdered(intOf(b), intOf(c)), nil
	case okb && okc:
		x, _ := b.Number()
		y, _ := c.Number()
		return cmpOrdered(x, y), nil
	case b.Kind() == bytecode.KindString && c.Kind() == bytecode.KindString:
		x, _ := b.AsString()
		y, _ := c.AsString()
		return strings.Compare(x, y), nil
	case b.Kind() == bytecode.KindChar && c.Kind() == bytecode.KindChar:
		x, _ := b.AsChar()
		y, _ := c.AsChar()
		return cmpOrdered(x, y), nil
	}
	return 0, newPanic(UnexpectedType, "cannot order %s and %s", b.Kind(), c.Kind())
}

func cmpOrdered[T int64 | float64 | rune](x, y T) int {
	switch {
	case x < y:
		return -1
	case x > y:
		return 1
	}
	return 0
}

// logic computes AND and OR over booleans.
func logic(op bytecode.Opcode, b, c bytecode.Value) (bytecode.Value, error) {
	x, okx := b.AsBool()
	y, oky := c.AsBool()
	if !okx || !oky {
		return bytecode.Value{}, newPanic(UnexpectedType, "%s %s %s", b.Kind(), op, c.Kind())
	}
	if op == bytecode.OpAND {
		return bytecode.Bool(x && y), nil
	}
	return bytecode.Bool(x || y), nil
}

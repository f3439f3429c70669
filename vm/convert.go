package vm

import (
	"math"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/chazu/ellie/pkg/bytecode"
)

// convert implements the A2x family.
func convert(to bytecode.Kind, v bytecode.Value, arch bytecode.Architecture) (bytecode.Value, error) {
	if v.Kind() == to {
		return v, nil
	}
	fail := func() (bytecode.Value, error) {
		return bytecode.Value{}, newPanic(CannotConvertToType, "%s %s to %s", v.Kind(), v, to)
	}

	switch to {
	case bytecode.KindInt:
		var n int64
		switch v.Kind() {
		case bytecode.KindByte:
			n = intOf(v)
		case bytecode.KindChar:
			c, _ := v.AsChar()
			n = int64(c)
		case bytecode.KindBool:
			if b, _ := v.AsBool(); b {
				n = 1
			}
		case bytecode.KindFloat, bytecode.KindDouble:
			f, _ := v.Number()
			if math.IsNaN(f) || math.IsInf(f, 0) || f >= math.MaxInt64 || f < math.MinInt64 {
				return fail()
			}
			n = int64(f)
		case bytecode.KindString:
			s, _ := v.AsString()
			var err error
			if n, err = strconv.ParseInt(strings.TrimSpace(s), 10, 64); err != nil {
				return fail()
			}
		default:
			return fail()
		}
		if !arch.FitsInt(n) {
			return bytecode.Value{}, newPanic(IntegerOverflow, "%d does not fit %s", n, arch)
		}
		return bytecode.Int(n), nil

	case bytecode.KindFloat, bytecode.KindDouble:
		var f float64
		switch {
		case v.IsNumeric():
			f, _ = v.Number()
		case v.Kind() == bytecode.KindString:
			s, _ := v.AsString()
			size := 64
			if to == bytecode.KindFloat {
				size = 32
			}
			var err error
			if f, err = strconv.ParseFloat(strings.TrimSpace(s), size); err != nil {
				return fail()
			}
		default:
			return fail()
		}
		if to == bytecode.KindFloat {
			return bytecode.Float(float32(f)), nil
		}
		return bytecode.Double(f), nil

	case bytecode.KindByte:
		var n int64
		switch v.Kind() {
		case bytecode.KindInt:
			n, _ = v.AsInt()
		case bytecode.KindChar:
			c, _ := v.AsChar()
			n = int64(c)
		case bytecode.KindBool:
			if b, _ := v.AsBool(); b {
				n = 1
			}
		case bytecode.KindString:
			s, _ := v.AsString()
			u, err := strconv.ParseUint(strings.TrimSpace(s), 10, 8)
			if err != nil {
				return fail()
			}
			n = int64(u)
		default:
			return fail()
		}
		if n < 0 || n > math.MaxUint8 {
			return fail()
		}
		return bytecode.Byte(byte(n)), nil

	case bytecode.KindString:
		switch v.Kind() {
		case bytecode.KindRef, bytecode.KindVoid:
			return fail()
		}
		return bytecode.String(v.String()), nil

	case bytecode.KindChar:
		switch v.Kind() {
		case bytecode.KindInt, bytecode.KindByte:
			n := intOf(v)
			if n < 0 || n > utf8.MaxRune || !utf8.ValidRune(rune(n)) {
				return fail()
			}
			return bytecode.Char(rune(n)), nil
		case bytecode.KindString:
			s, _ := v.AsString()
			if utf8.RuneCountInString(s) != 1 {
				return fail()
			}
			r, _ := utf8.DecodeRuneInString(s)
			return bytecode.Char(r), nil
		}
		return fail()

	case bytecode.KindBool:
		switch v.Kind() {
		case bytecode.KindInt, bytecode.KindByte:
			return bytecode.Bool(intOf(v) != 0), nil
		case bytecode.KindNull:
			return bytecode.Bool(false), nil
		case bytecode.KindString:
			s, _ := v.AsString()
			b, err := strconv.ParseBool(strings.TrimSpace(s))
			if err != nil {
				return fail()
			}
			return bytecode.Bool(b), nil
		}
		return fail()
	}
	return fail()
}

package bytecode

import (
	"encoding/binary"
	"fmt"
	"math"
)

// BinaryMagic identifies a rendered Program ("ELlie ByteCode").
var BinaryMagic = []byte("ELBC")

// BinaryVersion is bumped whenever the render format changes.
const BinaryVersion uint16 = 1

// MarshalBinary renders the Program. The format is:
//
//	[magic:4] [version:2] [arch:1] [has_main:1]
//	[main_start:W] [main_end:W] [main_hash:W]   (if has_main)
//	[count:W] { [op:1] [mode:1] [operand...] }
//	[native_count:W] { [name_len:2] [name] [hash:W] [return:1] [param_count:1] [params...] }
//
// W is the architecture width and all multi-byte values are little endian.
// Operands: Absolute and Parameter carry one W word, AbsoluteIndex and
// AbsoluteProperty two, Immediate a kind byte plus its payload, and the
// implicit and indirect modes nothing.
func (p *Program) MarshalBinary() ([]byte, error) {
	if !p.Arch.Valid() {
		return nil, fmt.Errorf("invalid architecture %d", uint8(p.Arch))
	}
	w := &binWriter{arch: p.Arch, buf: make([]byte, 0, 16+len(p.Instructions)*(2+p.Arch.Width()))}

	w.buf = append(w.buf, BinaryMagic...)
	w.buf = binary.LittleEndian.AppendUint16(w.buf, BinaryVersion)
	w.buf = append(w.buf, byte(p.Arch))

	if p.Main != nil {
		w.buf = append(w.buf, 1)
		w.uword(uint64(p.Main.Start), "main start")
		w.uword(uint64(p.Main.End), "main end")
		w.uword(p.Main.Hash, "main hash")
	} else {
		w.buf = append(w.buf, 0)
	}

	w.uword(uint64(len(p.Instructions)), "instruction count")
	for i, in := range p.Instructions {
		w.instruction(i, in)
	}

	w.uword(uint64(len(p.Natives)), "native count")
	for _, n := range p.Natives {
		if len(n.Name) > math.MaxUint16 {
			w.fail(fmt.Errorf("native %q: name too long", n.Name))
			break
		}
		w.buf = binary.LittleEndian.AppendUint16(w.buf, uint16(len(n.Name)))
		w.buf = append(w.buf, n.Name...)
		w.uword(n.Hash, "native hash")
		w.buf = append(w.buf, byte(n.Return), byte(len(n.Params)))
		for _, k := range n.Params {
			w.buf = append(w.buf, byte(k))
		}
	}

	if w.err != nil {
		return nil, w.err
	}
	return w.buf, nil
}

// UnmarshalProgram decodes a rendered Program.
func UnmarshalProgram(data []byte) (*Program, error) {
	if len(data) < 8 {
		return nil, fmt.Errorf("bytecode too short: need at least 8 bytes, got %d", len(data))
	}
	if string(data[0:4]) != string(BinaryMagic) {
		return nil, fmt.Errorf("invalid bytecode magic: expected %q, got %q", BinaryMagic, data[0:4])
	}
	if v := binary.LittleEndian.Uint16(data[4:6]); v != BinaryVersion {
		return nil, fmt.Errorf("bytecode version %d is not supported (want %d)", v, BinaryVersion)
	}
	arch := Architecture(data[6])
	if !arch.Valid() {
		return nil, fmt.Errorf("invalid architecture %d", data[6])
	}

	r := &binReader{arch: arch, data: data, pos: 8}
	p := &Program{Arch: arch}

	if data[7] != 0 {
		start := r.uword("main start")
		end := r.uword("main end")
		hash := r.uword("main hash")
		p.Main = &MainFunction{Hash: hash, Start: int(start), End: int(end)}
	}

	count := r.uword("instruction count")
	if r.err == nil && count > uint64(len(data)) {
		return nil, fmt.Errorf("instruction count %d exceeds input size", count)
	}
	p.Instructions = make([]Instruction, 0, count)
	for i := uint64(0); i < count && r.err == nil; i++ {
		p.Instructions = append(p.Instructions, r.instruction(int(i)))
	}

	natives := r.uword("native count")
	for i := uint64(0); i < natives && r.err == nil; i++ {
		lb := r.take(2, "native name length")
		if lb == nil {
			break
		}
		n := NativeImport{Index: int(i), Name: string(r.take(int(binary.LittleEndian.Uint16(lb)), "native name"))}
		n.Hash = r.uword("native hash")
		hdr := r.take(2, "native signature")
		if r.err != nil {
			break
		}
		n.Return = Kind(hdr[0])
		for _, k := range r.take(int(hdr[1]), "native params") {
			n.Params = append(n.Params, Kind(k))
		}
		p.Natives = append(p.Natives, n)
	}

	if r.err != nil {
		return nil, r.err
	}
	if r.pos != len(data) {
		return nil, fmt.Errorf("trailing %d bytes after program", len(data)-r.pos)
	}
	return p, nil
}

// ---------------------------------------------------------------------------
// Writer
// ---------------------------------------------------------------------------

type binWriter struct {
	arch Architecture
	buf  []byte
	err  error
}

func (w *binWriter) fail(err error) {
	if w.err == nil {
		w.err = err
	}
}

func (w *binWriter) uword(v uint64, what string) {
	if w.arch == Arch32 {
		if v > math.MaxUint32 {
			w.fail(fmt.Errorf("%s %d does not fit in %s", what, v, w.arch))
			return
		}
		w.buf = binary.LittleEndian.AppendUint32(w.buf, uint32(v))
		return
	}
	w.buf = binary.LittleEndian.AppendUint64(w.buf, v)
}

func (w *binWriter) sword(v int64, what string) {
	if !w.arch.FitsInt(v) {
		w.fail(fmt.Errorf("%s %d does not fit in %s", what, v, w.arch))
		return
	}
	if w.arch == Arch32 {
		w.buf = binary.LittleEndian.AppendUint32(w.buf, uint32(int32(v)))
		return
	}
	w.buf = binary.LittleEndian.AppendUint64(w.buf, uint64(v))
}

func (w *binWriter) location(v int, at int) {
	if v < 0 {
		w.fail(fmt.Errorf("instruction %d: negative operand %d", at, v))
		return
	}
	w.uword(uint64(v), fmt.Sprintf("instruction %d operand", at))
}

func (w *binWriter) instruction(at int, in Instruction) {
	w.buf = append(w.buf, byte(in.Op), byte(in.Addr.Mode))
	switch in.Addr.Mode {
	case ModeImplicit, ModeIndirectA, ModeIndirectB, ModeIndirectC, ModeIndirectX, ModeIndirectY:
	case ModeAbsolute, ModeParameter:
		w.location(in.Addr.Loc, at)
	case ModeAbsoluteIndex, ModeAbsoluteProperty:
		w.location(in.Addr.Loc, at)
		w.location(in.Addr.Index, at)
	case ModeImmediate:
		w.value(in.Addr.Imm, at)
	default:
		w.fail(fmt.Errorf("instruction %d: unknown addressing mode %d", at, in.Addr.Mode))
	}
}

func (w *binWriter) value(v Value, at int) {
	w.buf = append(w.buf, byte(v.kind))
	switch v.kind {
	case KindVoid, KindNull:
	case KindInt:
		w.sword(v.n, fmt.Sprintf("instruction %d immediate", at))
	case KindRef:
		w.uword(uint64(v.n), fmt.Sprintf("instruction %d reference", at))
	case KindFloat:
		w.buf = binary.LittleEndian.AppendUint32(w.buf, math.Float32bits(float32(v.f)))
	case KindDouble:
		w.buf = binary.LittleEndian.AppendUint64(w.buf, math.Float64bits(v.f))
	case KindByte, KindBool:
		w.buf = append(w.buf, byte(v.n))
	case KindChar:
		w.buf = binary.LittleEndian.AppendUint32(w.buf, uint32(v.n))
	case KindString:
		w.uword(uint64(len(v.s)), fmt.Sprintf("instruction %d string length", at))
		w.buf = append(w.buf, v.s...)
	default:
		w.fail(fmt.Errorf("instruction %d: unknown value kind %d", at, v.kind))
	}
}

// ---------------------------------------------------------------------------
// Reader
// ---------------------------------------------------------------------------

type binReader struct {
	arch Architecture
	data []byte
	pos  int
	err  error
}

func (r *binReader) take(n int, what string) []byte {
	if r.err != nil {
		return nil
	}
	if n < 0 || r.pos+n > len(r.data) {
		r.err = fmt.Errorf("unexpected end of bytecode reading %s at pos %d", what, r.pos)
		return nil
	}
	b := r.data[r.pos : r.pos+n]
	r.pos += n
	return b
}

func (r *binReader) uword(what string) uint64 {
	b := r.take(r.arch.Width(), what)
	if b == nil {
		return 0
	}
	if r.arch == Arch32 {
		return uint64(binary.LittleEndian.Uint32(b))
	}
	return binary.LittleEndian.Uint64(b)
}

func (r *binReader) sword(what string) int64 {
	b := r.take(r.arch.Width(), what)
	if b == nil {
		return 0
	}
	if r.arch == Arch32 {
		return int64(int32(binary.LittleEndian.Uint32(b)))
	}
	return int64(binary.LittleEndian.Uint64(b))
}

func (r *binReader) location(what string) int {
	v := r.uword(what)
	if v > math.MaxInt32 && r.err == nil {
		r.err = fmt.Errorf("%s %d out of range", what, v)
	}
	return int(v)
}

func (r *binReader) instruction(at int) Instruction {
	hdr := r.take(2, fmt.Sprintf("instruction %d", at))
	if hdr == nil {
		return Instruction{}
	}
	in := Instruction{Op: Opcode(hdr[0]), Addr: AddressingValue{Mode: Mode(hdr[1])}}
	what := fmt.Sprintf("instruction %d operand", at)
	switch in.Addr.Mode {
	case ModeImplicit, ModeIndirectA, ModeIndirectB, ModeIndirectC, ModeIndirectX, ModeIndirectY:
	case ModeAbsolute, ModeParameter:
		in.Addr.Loc = r.location(what)
	case ModeAbsoluteIndex, ModeAbsoluteProperty:
		in.Addr.Loc = r.location(what)
		in.Addr.Index = r.location(what)
	case ModeImmediate:
		in.Addr.Imm = r.value(at)
	default:
		r.err = fmt.Errorf("instruction %d: unknown addressing mode %d", at, hdr[1])
	}
	return in
}

func (r *binReader) value(at int) Value {
	what := fmt.Sprintf("instruction %d immediate", at)
	kb := r.take(1, what)
	if kb == nil {
		return Value{}
	}
	switch k := Kind(kb[0]); k {
	case KindVoid:
		return Void()
	case KindNull:
		return Null()
	case KindInt:
		return Int(r.sword(what))
	case KindRef:
		return Ref(r.uword(what))
	case KindFloat:
		if b := r.take(4, what); b != nil {
			return Float(math.Float32frombits(binary.LittleEndian.Uint32(b)))
		}
	case KindDouble:
		if b := r.take(8, what); b != nil {
			return Double(math.Float64frombits(binary.LittleEndian.Uint64(b)))
		}
	case KindByte:
		if b := r.take(1, what); b != nil {
			return Byte(b[0])
		}
	case KindBool:
		if b := r.take(1, what); b != nil {
			return Bool(b[0] != 0)
		}
	case KindChar:
		if b := r.take(4, what); b != nil {
			return Char(rune(binary.LittleEndian.Uint32(b)))
		}
	case KindString:
		n := r.uword(what)
		if r.err == nil && n > uint64(len(r.data)-r.pos) {
			r.err = fmt.Errorf("%s: string length %d exceeds input", what, n)
			return Value{}
		}
		if b := r.take(int(n), what); b != nil {
			return String(string(b))
		}
		return String("")
	default:
		r.err = fmt.Errorf("instruction %d: unknown value kind %d", at, kb[0])
	}
	return Value{}
}

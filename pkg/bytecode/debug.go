package bytecode

import (
	"fmt"
	"io"
	"strings"

	"gopkg.in/yaml.v3"
)

// DebugKind classifies what a DebugHeader describes.
type DebugKind uint8

const (
	DebugFunction DebugKind = iota
	DebugVariable
	DebugParameter
	DebugClass
	DebugConstructor
	DebugGetter
	DebugSetter
	DebugNativeFunction
	DebugSelf
)

var debugKindNames = [...]string{
	DebugFunction:       "function",
	DebugVariable:       "variable",
	DebugParameter:      "parameter",
	DebugClass:          "class",
	DebugConstructor:    "constructor",
	DebugGetter:         "getter",
	DebugSetter:         "setter",
	DebugNativeFunction: "native_function",
	DebugSelf:           "self",
}

func (k DebugKind) String() string {
	if int(k) < len(debugKindNames) {
		return debugKindNames[k]
	}
	return fmt.Sprintf("debug(%d)", uint8(k))
}

// MarshalYAML writes the kind by name.
func (k DebugKind) MarshalYAML() (any, error) { return k.String(), nil }

// Span is a source range, 1-based.
type Span struct {
	StartLine int `cbor:"1,keyasint" yaml:"start_line"`
	StartCol  int `cbor:"2,keyasint" yaml:"start_col"`
	EndLine   int `cbor:"3,keyasint" yaml:"end_line"`
	EndCol    int `cbor:"4,keyasint" yaml:"end_col"`
}

func (s Span) String() string {
	return fmt.Sprintf("%d:%d-%d:%d", s.StartLine, s.StartCol, s.EndLine, s.EndCol)
}

// DebugHeader correlates the instruction range [Start, End) with a source
// name and position.
type DebugHeader struct {
	Kind       DebugKind `cbor:"1,keyasint" yaml:"kind"`
	Hash       uint64    `cbor:"2,keyasint" yaml:"hash"`
	Module     string    `cbor:"3,keyasint" yaml:"module"`
	ModuleHash uint64    `cbor:"4,keyasint" yaml:"module_hash"`
	Name       string    `cbor:"5,keyasint" yaml:"name"`
	Start      int       `cbor:"6,keyasint" yaml:"start"`
	End        int       `cbor:"7,keyasint" yaml:"end"`
	Pos        Span      `cbor:"8,keyasint" yaml:"pos"`
}

// Contains reports whether loc falls in the header's range.
func (h DebugHeader) Contains(loc int) bool {
	return loc >= h.Start && loc < h.End
}

// DebugInfo is the optional side table emitted next to a Program.
type DebugInfo struct {
	Headers []DebugHeader `cbor:"1,keyasint" yaml:"headers"`
}

// Add appends a header.
func (d *DebugInfo) Add(h DebugHeader) {
	d.Headers = append(d.Headers, h)
}

// At returns the headers covering loc, innermost (narrowest) first.
func (d *DebugInfo) At(loc int) []DebugHeader {
	if d == nil {
		return nil
	}
	var out []DebugHeader
	for _, h := range d.Headers {
		if h.Contains(loc) {
			out = append(out, h)
		}
	}
	for i := 1; i < len(out); i++ {
		for j := i; j > 0 && out[j].End-out[j].Start < out[j-1].End-out[j-1].Start; j-- {
			out[j], out[j-1] = out[j-1], out[j]
		}
	}
	return out
}

// Lookup returns the first header with the given kind and name.
func (d *DebugInfo) Lookup(kind DebugKind, name string) (DebugHeader, bool) {
	if d == nil {
		return DebugHeader{}, false
	}
	for _, h := range d.Headers {
		if h.Kind == kind && h.Name == name {
			return h, true
		}
	}
	return DebugHeader{}, false
}

// Render writes the text table, one header per line:
//
//	kind:start:end:hash:module_hash:module:name:line:col-line:col
func (d *DebugInfo) Render() string {
	var sb strings.Builder
	for _, h := range d.Headers {
		fmt.Fprintf(&sb, "%s:%d:%d:%d:%d:%s:%s:%s\n",
			h.Kind, h.Start, h.End, h.Hash, h.ModuleHash, h.Module, h.Name, h.Pos)
	}
	return sb.String()
}

// WriteYAML writes the side table in a human-readable form.
func (d *DebugInfo) WriteYAML(w io.Writer) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(d); err != nil {
		return fmt.Errorf("encode debug info: %w", err)
	}
	return enc.Close()
}

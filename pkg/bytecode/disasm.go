package bytecode

import (
	"fmt"
	"strings"
)

// Disassemble returns a human-readable listing of the program.
func (p *Program) Disassemble() string {
	return p.DisassembleWith(nil)
}

// DisassembleWith returns a listing annotated with names from the debug
// side table. debug may be nil.
func (p *Program) DisassembleWith(debug *DebugInfo) string {
	var sb strings.Builder

	// Header
	sb.WriteString(fmt.Sprintf("; ellie bytecode (%s, %d instructions)\n", p.Arch, len(p.Instructions)))
	if p.Main != nil {
		sb.WriteString(fmt.Sprintf("; main: hash=%d range=[%d, %d]\n", p.Main.Hash, p.Main.Start, p.Main.End))
	}

	// Natives
	if len(p.Natives) > 0 {
		sb.WriteString("; Natives:\n")
		for _, n := range p.Natives {
			params := make([]string, len(n.Params))
			for i, k := range n.Params {
				params[i] = k.String()
			}
			sb.WriteString(fmt.Sprintf(";   [%3d] %s(%s) %s\n", n.Index, n.Name, strings.Join(params, ", "), n.Return))
		}
	}
	sb.WriteString("\n")

	labels := make(map[int][]string)
	if debug != nil {
		for _, h := range debug.Headers {
			labels[h.Start] = append(labels[h.Start], fmt.Sprintf("%s %s", h.Kind, h.Name))
		}
	}

	for loc, in := range p.Instructions {
		for _, l := range labels[loc] {
			sb.WriteString(fmt.Sprintf("        ; %s\n", l))
		}
		sb.WriteString(fmt.Sprintf("%04d    %s\n", loc, in))
	}
	return sb.String()
}

package recompiler

import (
	"fmt"
	"strings"

	"golang.org/x/arch/x86/x86asm"
)

// Disassemble renders amd64 code loaded at pc, one instruction per line.
// Undecodable bytes are shown as .byte and decoding resumes after them.
func Disassemble(code []byte, pc uint64) []string {
	var out []string
	for off := 0; off < len(code); {
		inst, err := x86asm.Decode(code[off:], 64)
		if err != nil || inst.Len == 0 {
			out = append(out, fmt.Sprintf("%#010x  %02x  .byte", pc+uint64(off), code[off]))
			off++
			continue
		}
		raw := code[off : off+inst.Len]
		out = append(out, fmt.Sprintf("%#010x  %-24x  %s", pc+uint64(off), raw, x86asm.IntelSyntax(inst, pc+uint64(off), nil)))
		off += inst.Len
	}
	return out
}

// DisassembleUnit renders the guest instructions of u followed by its host
// code.
func DisassembleUnit(u *TranslatedUnit) string {
	var b strings.Builder
	fmt.Fprintf(&b, "; %s\n", u)
	for i := range u.Instructions {
		inst := &u.Instructions[i]
		fmt.Fprintf(&b, ";   %08x  %s\n", inst.Address, inst)
	}
	for _, line := range Disassemble(u.Code, uint64(u.Entry)) {
		b.WriteString(line)
		b.WriteByte('\n')
	}
	return b.String()
}

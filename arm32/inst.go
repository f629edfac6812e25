package arm32

import (
	"fmt"
	"strings"
)

const (
	RegSP = 13
	RegLR = 14
	RegPC = 15
)

type Cond uint8

const (
	CondEQ Cond = iota
	CondNE
	CondCS
	CondCC
	CondMI
	CondPL
	CondVS
	CondVC
	CondHI
	CondLS
	CondGE
	CondLT
	CondGT
	CondLE
	CondAL
	CondNV
)

var condStrings = [16]string{"eq", "ne", "cs", "cc", "mi", "pl", "vs", "vc", "hi", "ls", "ge", "lt", "gt", "le", "", "nv"}

func (c Cond) String() string {
	return condStrings[c&0xf]
}

type ShiftType uint8

const (
	ShiftLSL ShiftType = iota
	ShiftLSR
	ShiftASR
	ShiftROR
	ShiftRRX
)

var shiftStrings = [...]string{"lsl", "lsr", "asr", "ror", "rrx"}

func (s ShiftType) String() string {
	return shiftStrings[s]
}

type OperandKind uint8

const (
	OperandNone   OperandKind = iota
	OperandImm                // Imm, with Carry when the rotation produced one
	OperandRegImm             // Rm shifted by Amount
	OperandRegReg             // Rm shifted by the low byte of Rs
)

// Operand is the flexible second operand of data processing and the offset
// of single loads and stores.
type Operand struct {
	Kind   OperandKind
	Imm    uint32
	Carry  int8 // -1 when the immediate leaves the carry flag alone
	Rm     uint8
	Shift  ShiftType
	Amount uint8 // 0 means no shift; 32 is a real LSR/ASR #32
	Rs     uint8
}

// Inst is one decoded guest instruction.
type Inst struct {
	Op      Opcode
	Flags   InstFlags
	Address uint32
	Size    uint32
	Raw     uint32
	Cond    Cond
	S       bool // updates NZCV

	Rd, Rn, Ra uint8
	Rt, Rt2    uint8
	RdLo, RdHi uint8
	Op2        Operand

	Index   bool // P: offset applied before the access
	Add     bool // U: offset added
	WBack   bool // base register updated
	RegList uint16

	Imm     uint32 // MOVW/MOVT imm16, SVC number, extend rotation
	Target  uint32 // branch destination, bit 0 set for Thumb
	AlignPC bool   // PC reads as Align(PC, 4)
}

func (i *Inst) Name() Name {
	return Info(i.Op).Name
}

func (i *Inst) Encoding() Encoding {
	return Info(i.Op).Encoding
}

func (i *Inst) IsThumb() bool {
	return i.Encoding() != EncA32
}

// PCValue is what a read of r15 yields while executing i.
func (i *Inst) PCValue() uint32 {
	if i.IsThumb() {
		v := i.Address + 4
		if i.AlignPC {
			v &^= 3
		}
		return v
	}
	return i.Address + 8
}

// NextKey is the dispatch key of the sequentially following instruction.
func (i *Inst) NextKey() uint32 {
	next := i.Address + i.Size
	if i.IsThumb() {
		next |= 1
	}
	return next
}

// Key is the dispatch key of i itself.
func (i *Inst) Key() uint32 {
	if i.IsThumb() {
		return i.Address | 1
	}
	return i.Address
}

// WritesPC reports whether i loads r15 through a data or memory path.
func (i *Inst) WritesPC() bool {
	switch n := i.Name(); {
	case n == LDM:
		return i.RegList&(1<<RegPC) != 0
	case n == LDR:
		return i.Rt == RegPC
	case n.IsDataProcessing():
		return i.Flags&FlagRd != 0 && i.Rd == RegPC
	}
	return false
}

// IsTerminator reports whether i ends a block.
func (i *Inst) IsTerminator() bool {
	switch i.Name() {
	case B, BL, BLX, BX, SVC, UDF:
		return true
	}
	return i.WritesPC()
}

// MemSize is the access width of a single load or store, in bytes.
func (i *Inst) MemSize() uint32 {
	switch i.Name() {
	case LDRB, LDRSB, STRB:
		return 1
	case LDRH, LDRSH, STRH:
		return 2
	case LDRD, STRD:
		return 8
	case LDR, STR:
		return 4
	}
	return 0
}

func regName(r uint8) string {
	switch r {
	case RegSP:
		return "sp"
	case RegLR:
		return "lr"
	case RegPC:
		return "pc"
	}
	return fmt.Sprintf("r%d", r)
}

func (o Operand) String() string {
	switch o.Kind {
	case OperandImm:
		return fmt.Sprintf("#%d", o.Imm)
	case OperandRegImm:
		switch {
		case o.Shift == ShiftRRX:
			return regName(o.Rm) + ", rrx"
		case o.Amount == 0:
			return regName(o.Rm)
		}
		return fmt.Sprintf("%s, %s #%d", regName(o.Rm), o.Shift, o.Amount)
	case OperandRegReg:
		return fmt.Sprintf("%s, %s %s", regName(o.Rm), o.Shift, regName(o.Rs))
	}
	return ""
}

func regListString(list uint16) string {
	var regs []string
	for r := uint8(0); r < 16; r++ {
		if list&(1<<r) != 0 {
			regs = append(regs, regName(r))
		}
	}
	return "{" + strings.Join(regs, ", ") + "}"
}

func (i *Inst) memOperand() string {
	base := regName(i.Rn)
	off := i.Op2.String()
	if i.Op2.Kind == OperandImm {
		if i.Op2.Imm == 0 && i.Index && !i.WBack {
			return "[" + base + "]"
		}
		if !i.Add {
			off = fmt.Sprintf("#-%d", i.Op2.Imm)
		}
	} else if !i.Add {
		off = "-" + off
	}
	switch {
	case !i.Index:
		return fmt.Sprintf("[%s], %s", base, off)
	case i.WBack:
		return fmt.Sprintf("[%s, %s]!", base, off)
	}
	return fmt.Sprintf("[%s, %s]", base, off)
}

// String renders i in UAL-like syntax.
func (i *Inst) String() string {
	n := i.Name()
	mn := n.String()
	if i.S && !n.IsCompare() {
		mn += "s"
	}
	mn += i.Cond.String()

	switch {
	case n.IsCompare():
		return fmt.Sprintf("%s %s, %s", mn, regName(i.Rn), i.Op2)
	case n == MOV || n == MVN:
		return fmt.Sprintf("%s %s, %s", mn, regName(i.Rd), i.Op2)
	case n.IsDataProcessing():
		return fmt.Sprintf("%s %s, %s, %s", mn, regName(i.Rd), regName(i.Rn), i.Op2)
	case n == MUL:
		return fmt.Sprintf("%s %s, %s, %s", mn, regName(i.Rd), regName(i.Op2.Rm), regName(i.Op2.Rs))
	case n == MLA:
		return fmt.Sprintf("%s %s, %s, %s, %s", mn, regName(i.Rd), regName(i.Op2.Rm), regName(i.Op2.Rs), regName(i.Ra))
	case n >= UMULL && n <= SMLAL:
		return fmt.Sprintf("%s %s, %s, %s, %s", mn, regName(i.RdLo), regName(i.RdHi), regName(i.Op2.Rm), regName(i.Op2.Rs))
	case n == MOVW || n == MOVT:
		return fmt.Sprintf("%s %s, #0x%x", mn, regName(i.Rd), i.Imm)
	case n == CLZ || n == REV:
		return fmt.Sprintf("%s %s, %s", mn, regName(i.Rd), regName(i.Op2.Rm))
	case n >= SXTB && n <= UXTH:
		if i.Imm != 0 {
			return fmt.Sprintf("%s %s, %s, ror #%d", mn, regName(i.Rd), regName(i.Op2.Rm), i.Imm)
		}
		return fmt.Sprintf("%s %s, %s", mn, regName(i.Rd), regName(i.Op2.Rm))
	case n == LDRD || n == STRD:
		return fmt.Sprintf("%s %s, %s, %s", mn, regName(i.Rt), regName(i.Rt2), i.memOperand())
	case n.IsLoad() || n.IsStore():
		return fmt.Sprintf("%s %s, %s", mn, regName(i.Rt), i.memOperand())
	case n == LDM || n == STM:
		if i.Rn == RegSP && i.WBack && ((n == STM && i.Index && !i.Add) || (n == LDM && !i.Index && i.Add)) {
			if n == STM {
				return "push" + i.Cond.String() + " " + regListString(i.RegList)
			}
			return "pop" + i.Cond.String() + " " + regListString(i.RegList)
		}
		mode := map[[2]bool]string{{false, true}: "ia", {true, true}: "ib", {false, false}: "da", {true, false}: "db"}[[2]bool{i.Index, i.Add}]
		wb := ""
		if i.WBack {
			wb = "!"
		}
		return fmt.Sprintf("%s%s %s%s, %s", n, mode+i.Cond.String(), regName(i.Rn), wb, regListString(i.RegList))
	case n == B || n == BL || (n == BLX && i.Op2.Kind == OperandNone):
		return fmt.Sprintf("%s 0x%x", mn, i.Target&^1)
	case n == BX || n == BLX:
		return fmt.Sprintf("%s %s", mn, regName(i.Op2.Rm))
	case n == SVC:
		return fmt.Sprintf("%s #%d", mn, i.Imm)
	case n == UDF:
		return fmt.Sprintf("udf 0x%x", i.Raw)
	}
	return mn
}

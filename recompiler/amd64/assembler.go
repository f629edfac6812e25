package amd64

import (
	"encoding/binary"
	"fmt"

	"github.com/colorfulnotion/armjit/jiterrors"
)

// Label names a code position that may be bound after it is referenced.
type Label int

type fixup struct {
	pos   int // offset of the rel32 field
	label Label
}

// Assembler accumulates position-independent x86-64 code. Branches to labels
// are emitted as rel32 and patched by Bytes.
type Assembler struct {
	code   []byte
	labels []int
	fixups []fixup
}

func NewAssembler() *Assembler {
	return &Assembler{code: make([]byte, 0, 256)}
}

func (a *Assembler) Len() int {
	return len(a.code)
}

// NewLabel reserves an unbound label.
func (a *Assembler) NewLabel() Label {
	a.labels = append(a.labels, -1)
	return Label(len(a.labels) - 1)
}

// Bind places l at the current position.
func (a *Assembler) Bind(l Label) {
	a.labels[l] = len(a.code)
}

// Bytes resolves every label reference and returns the code.
func (a *Assembler) Bytes() ([]byte, error) {
	for _, f := range a.fixups {
		target := a.labels[f.label]
		if target < 0 {
			return nil, fmt.Errorf("%w: label %d never bound", jiterrors.ErrEncoding, f.label)
		}
		rel := int32(target - (f.pos + 4))
		binary.LittleEndian.PutUint32(a.code[f.pos:], uint32(rel))
	}
	return a.code, nil
}

func (a *Assembler) emit(b ...byte) {
	a.code = append(a.code, b...)
}

func (a *Assembler) emitU32(v uint32) {
	a.code = binary.LittleEndian.AppendUint32(a.code, v)
}

func (a *Assembler) emitU64(v uint64) {
	a.code = binary.LittleEndian.AppendUint64(a.code, v)
}

func (a *Assembler) emitRel(l Label) {
	a.fixups = append(a.fixups, fixup{pos: len(a.code), label: l})
	a.emitU32(0)
}

// rex builds a REX prefix; zero means none is needed.
func rex(w bool, r, x, b byte) byte {
	var v byte
	if w {
		v |= X86_REX_W
	}
	v |= r<<2 | x<<1 | b
	if v == 0 {
		return 0
	}
	return X86_REX_BASE | v
}

func (a *Assembler) emitRex(w bool, r, x, b byte) {
	if p := rex(w, r, x, b); p != 0 {
		a.emit(p)
	}
}

func modrm(mod, reg, rm byte) byte {
	return mod<<6 | (reg&7)<<3 | rm&7
}

// ---- context memory, always [r15 + disp32] ----

func (a *Assembler) ctxOperand(reg byte, off int32) {
	a.emit(modrm(X86_MOD_INDIRECT_DISP32, reg, regCtx.RegBits))
	a.emitU32(uint32(off))
}

// LoadCtx32 emits mov dst32, [r15+off].
func (a *Assembler) LoadCtx32(dst X86Reg, off int32) {
	a.emitRex(false, dst.REXBit, 0, regCtx.REXBit)
	a.emit(X86_OP_MOV_R_RM)
	a.ctxOperand(dst.RegBits, off)
}

// LoadCtx64 emits mov dst64, [r15+off].
func (a *Assembler) LoadCtx64(dst X86Reg, off int32) {
	a.emitRex(true, dst.REXBit, 0, regCtx.REXBit)
	a.emit(X86_OP_MOV_R_RM)
	a.ctxOperand(dst.RegBits, off)
}

// StoreCtx32 emits mov [r15+off], src32.
func (a *Assembler) StoreCtx32(off int32, src X86Reg) {
	a.emitRex(false, src.REXBit, 0, regCtx.REXBit)
	a.emit(X86_OP_MOV_RM_R)
	a.ctxOperand(src.RegBits, off)
}

// StoreCtxImm32 emits mov dword [r15+off], imm.
func (a *Assembler) StoreCtxImm32(off int32, imm uint32) {
	a.emitRex(false, 0, 0, regCtx.REXBit)
	a.emit(X86_OP_MOV_RM_IMM)
	a.ctxOperand(0, off)
	a.emitU32(imm)
}

// StoreCtxImm8 emits mov byte [r15+off], imm.
func (a *Assembler) StoreCtxImm8(off int32, imm byte) {
	a.emitRex(false, 0, 0, regCtx.REXBit)
	a.emit(X86_OP_MOV_RM_IMM8)
	a.ctxOperand(0, off)
	a.emit(imm)
}

// LoadCtxZX8 emits movzx dst32, byte [r15+off].
func (a *Assembler) LoadCtxZX8(dst X86Reg, off int32) {
	a.emitRex(false, dst.REXBit, 0, regCtx.REXBit)
	a.emit(X86_PREFIX_0F, X86_OP2_MOVZX_R_RM8)
	a.ctxOperand(dst.RegBits, off)
}

// CmpCtx8 emits cmp byte [r15+off], imm.
func (a *Assembler) CmpCtx8(off int32, imm byte) {
	a.emitRex(false, 0, 0, regCtx.REXBit)
	a.emit(0x80)
	a.ctxOperand(X86_REG_CMP, off)
	a.emit(imm)
}

// CmpCtx32 emits cmp dword [r15+off], imm8 (sign extended).
func (a *Assembler) CmpCtx32(off int32, imm int8) {
	a.emitRex(false, 0, 0, regCtx.REXBit)
	a.emit(X86_OP_GROUP1_RM_IMM8)
	a.ctxOperand(X86_REG_CMP, off)
	a.emit(byte(imm))
}

// SetccCtx emits setcc byte [r15+off].
func (a *Assembler) SetccCtx(cc byte, off int32) {
	a.emitRex(false, 0, 0, regCtx.REXBit)
	a.emit(X86_PREFIX_0F, X86_OP2_SETCC+cc)
	a.ctxOperand(0, off)
}

// DecCtx64 emits dec qword [r15+off].
func (a *Assembler) DecCtx64(off int32) {
	a.emitRex(true, 0, 0, regCtx.REXBit)
	a.emit(X86_OP_GROUP5_RM)
	a.ctxOperand(X86_REG_DEC, off)
}

// ---- guest memory, always [r14 + index] ----

func (a *Assembler) guestOperand(reg, index X86Reg) {
	a.emit(modrm(X86_MOD_INDIRECT, reg.RegBits, X86_RM_SIB))
	a.emit(index.RegBits<<3 | regMem.RegBits)
}

// LoadGuest emits a size-byte load from [r14+index] into dst32, zero or sign
// extended.
func (a *Assembler) LoadGuest(size int, signed bool, dst, index X86Reg) {
	a.emit(rex(false, dst.REXBit, index.REXBit, regMem.REXBit))
	switch {
	case size == 1 && signed:
		a.emit(X86_PREFIX_0F, X86_OP2_MOVSX_R_RM8)
	case size == 1:
		a.emit(X86_PREFIX_0F, X86_OP2_MOVZX_R_RM8)
	case size == 2 && signed:
		a.emit(X86_PREFIX_0F, X86_OP2_MOVSX_R_RM16)
	case size == 2:
		a.emit(X86_PREFIX_0F, X86_OP2_MOVZX_R_RM16)
	default:
		a.emit(X86_OP_MOV_R_RM)
	}
	a.guestOperand(dst, index)
}

// StoreGuest emits a size-byte store of src to [r14+index].
func (a *Assembler) StoreGuest(size int, src, index X86Reg) {
	if size == 2 {
		a.emit(X86_OP_OPERAND16)
	}
	a.emit(rex(false, src.REXBit, index.REXBit, regMem.REXBit))
	if size == 1 {
		a.emit(X86_OP_MOV_RM8_R8)
	} else {
		a.emit(X86_OP_MOV_RM_R)
	}
	a.guestOperand(src, index)
}

// LoadQwordScaled emits mov dst64, [base + index*8].
func (a *Assembler) LoadQwordScaled(dst, base, index X86Reg) {
	a.emitRex(true, dst.REXBit, index.REXBit, base.REXBit)
	a.emit(X86_OP_MOV_R_RM)
	a.emit(modrm(X86_MOD_INDIRECT, dst.RegBits, X86_RM_SIB))
	a.emit(3<<6 | index.RegBits<<3 | base.RegBits)
}

// ---- register forms ----

// AluRR32 emits op dst32, src32 for an r/m,r opcode such as X86_OP_ADD_RM_R.
func (a *Assembler) AluRR32(op byte, dst, src X86Reg) {
	a.emitRex(false, src.REXBit, 0, dst.REXBit)
	a.emit(op, modrm(X86_MOD_REGISTER, src.RegBits, dst.RegBits))
}

func (a *Assembler) AluRR64(op byte, dst, src X86Reg) {
	a.emitRex(true, src.REXBit, 0, dst.REXBit)
	a.emit(op, modrm(X86_MOD_REGISTER, src.RegBits, dst.RegBits))
}

func (a *Assembler) MovRR32(dst, src X86Reg) {
	a.AluRR32(X86_OP_MOV_RM_R, dst, src)
}

func (a *Assembler) MovRR64(dst, src X86Reg) {
	a.AluRR64(X86_OP_MOV_RM_R, dst, src)
}

// AluRI32 emits a group 1 operation dst32, imm32.
func (a *Assembler) AluRI32(ext byte, dst X86Reg, imm uint32) {
	a.emitRex(false, 0, 0, dst.REXBit)
	a.emit(X86_OP_GROUP1_RM_IMM32, modrm(X86_MOD_REGISTER, ext, dst.RegBits))
	a.emitU32(imm)
}

// TestRI32 emits test dst32, imm32.
func (a *Assembler) TestRI32(dst X86Reg, imm uint32) {
	a.emitRex(false, 0, 0, dst.REXBit)
	a.emit(X86_OP_GROUP3_RM, modrm(X86_MOD_REGISTER, X86_REG_TEST, dst.RegBits))
	a.emitU32(imm)
}

// Unary32 emits a group 3 operation such as NOT or NEG.
func (a *Assembler) Unary32(ext byte, dst X86Reg) {
	a.emitRex(false, 0, 0, dst.REXBit)
	a.emit(X86_OP_GROUP3_RM, modrm(X86_MOD_REGISTER, ext, dst.RegBits))
}

func (a *Assembler) ShiftRI32(ext byte, dst X86Reg, n byte) {
	a.emitRex(false, 0, 0, dst.REXBit)
	a.emit(X86_OP_GROUP2_RM_IMM8, modrm(X86_MOD_REGISTER, ext, dst.RegBits), n)
}

func (a *Assembler) ShiftRI64(ext byte, dst X86Reg, n byte) {
	a.emitRex(true, 0, 0, dst.REXBit)
	a.emit(X86_OP_GROUP2_RM_IMM8, modrm(X86_MOD_REGISTER, ext, dst.RegBits), n)
}

// ShiftRCL32 shifts dst32 by cl.
func (a *Assembler) ShiftRCL32(ext byte, dst X86Reg) {
	a.emitRex(false, 0, 0, dst.REXBit)
	a.emit(X86_OP_GROUP2_RM_CL, modrm(X86_MOD_REGISTER, ext, dst.RegBits))
}

func (a *Assembler) ShiftRCL64(ext byte, dst X86Reg) {
	a.emitRex(true, 0, 0, dst.REXBit)
	a.emit(X86_OP_GROUP2_RM_CL, modrm(X86_MOD_REGISTER, ext, dst.RegBits))
}

// ShiftOne32 shifts dst32 by one; RCR through carry only has this form here.
func (a *Assembler) ShiftOne32(ext byte, dst X86Reg) {
	a.emitRex(false, 0, 0, dst.REXBit)
	a.emit(X86_OP_GROUP2_RM_1, modrm(X86_MOD_REGISTER, ext, dst.RegBits))
}

func (a *Assembler) ShiftOne64(ext byte, dst X86Reg) {
	a.emitRex(true, 0, 0, dst.REXBit)
	a.emit(X86_OP_GROUP2_RM_1, modrm(X86_MOD_REGISTER, ext, dst.RegBits))
}

func (a *Assembler) Imul32(dst, src X86Reg) {
	a.emitRex(false, dst.REXBit, 0, src.REXBit)
	a.emit(X86_PREFIX_0F, X86_OP2_IMUL_R_RM, modrm(X86_MOD_REGISTER, dst.RegBits, src.RegBits))
}

func (a *Assembler) Imul64(dst, src X86Reg) {
	a.emitRex(true, dst.REXBit, 0, src.REXBit)
	a.emit(X86_PREFIX_0F, X86_OP2_IMUL_R_RM, modrm(X86_MOD_REGISTER, dst.RegBits, src.RegBits))
}

// Movsxd emits movsxd dst64, src32.
func (a *Assembler) Movsxd(dst, src X86Reg) {
	a.emitRex(true, dst.REXBit, 0, src.REXBit)
	a.emit(X86_OP_MOVSXD, modrm(X86_MOD_REGISTER, dst.RegBits, src.RegBits))
}

// extend emits a two-byte-opcode reg,reg form. A REX prefix is always present
// so the byte forms address the low byte of every register.
func (a *Assembler) extend(op2 byte, dst, src X86Reg) {
	a.emit(X86_REX_BASE | dst.REXBit<<2 | src.REXBit)
	a.emit(X86_PREFIX_0F, op2, modrm(X86_MOD_REGISTER, dst.RegBits, src.RegBits))
}

func (a *Assembler) Movzx8(dst, src X86Reg) { a.extend(X86_OP2_MOVZX_R_RM8, dst, src) }
func (a *Assembler) Movzx16(dst, src X86Reg) { a.extend(X86_OP2_MOVZX_R_RM16, dst, src) }
func (a *Assembler) Movsx8(dst, src X86Reg) { a.extend(X86_OP2_MOVSX_R_RM8, dst, src) }
func (a *Assembler) Movsx16(dst, src X86Reg) { a.extend(X86_OP2_MOVSX_R_RM16, dst, src) }

func (a *Assembler) Bsr32(dst, src X86Reg) {
	a.emitRex(false, dst.REXBit, 0, src.REXBit)
	a.emit(X86_PREFIX_0F, X86_OP2_BSR, modrm(X86_MOD_REGISTER, dst.RegBits, src.RegBits))
}

func (a *Assembler) Bswap32(r X86Reg) {
	a.emitRex(false, 0, 0, r.REXBit)
	a.emit(X86_PREFIX_0F, X86_OP2_BSWAP+r.RegBits)
}

// Bt32 copies bit n of r into CF.
func (a *Assembler) Bt32(r X86Reg, n byte) {
	a.emitRex(false, 0, 0, r.REXBit)
	a.emit(X86_PREFIX_0F, X86_OP2_GROUP8, modrm(X86_MOD_REGISTER, X86_REG_BT, r.RegBits), n)
}

func (a *Assembler) MovRI32(dst X86Reg, imm uint32) {
	a.emitRex(false, 0, 0, dst.REXBit)
	a.emit(X86_OP_MOV_R_IMM + dst.RegBits)
	a.emitU32(imm)
}

func (a *Assembler) MovRI64(dst X86Reg, imm uint64) {
	a.emitRex(true, 0, 0, dst.REXBit)
	a.emit(X86_OP_MOV_R_IMM + dst.RegBits)
	a.emitU64(imm)
}

func (a *Assembler) Push(r X86Reg) {
	a.emitRex(false, 0, 0, r.REXBit)
	a.emit(X86_OP_PUSH_R + r.RegBits)
}

func (a *Assembler) Pop(r X86Reg) {
	a.emitRex(false, 0, 0, r.REXBit)
	a.emit(X86_OP_POP_R + r.RegBits)
}

func (a *Assembler) Ret() {
	a.emit(X86_OP_RET)
}

// ---- control flow ----

func (a *Assembler) JmpReg(r X86Reg) {
	a.emitRex(false, 0, 0, r.REXBit)
	a.emit(X86_OP_GROUP5_RM, modrm(X86_MOD_REGISTER, X86_REG_JMP, r.RegBits))
}

func (a *Assembler) Jmp(l Label) {
	a.emit(X86_OP_JMP_REL32)
	a.emitRel(l)
}

func (a *Assembler) Jcc(cc byte, l Label) {
	a.emit(X86_PREFIX_0F, X86_OP2_JCC+cc)
	a.emitRel(l)
}

// Bt64 copies bit n (0-63) of r into CF.
func (a *Assembler) Bt64(r X86Reg, n byte) {
	a.emitRex(true, 0, 0, r.REXBit)
	a.emit(X86_PREFIX_0F, X86_OP2_GROUP8, modrm(X86_MOD_REGISTER, X86_REG_BT, r.RegBits), n)
}

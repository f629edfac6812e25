package amd64

import (
	"fmt"
	"math/bits"

	"github.com/colorfulnotion/armjit/arm32"
	"github.com/colorfulnotion/armjit/jiterrors"
	"github.com/colorfulnotion/armjit/recompiler/state"
)

// Encoder lowers one block of guest instructions. Every guest register lives
// in the context; translated code only keeps values in host registers for the
// duration of one instruction.
type Encoder struct {
	asm      *Assembler
	dispatch uint64
	count    int
}

// NewEncoder returns an encoder whose block exits jump to the dispatch stub at
// the given host address.
func NewEncoder(dispatch uint64) *Encoder {
	return &Encoder{asm: NewAssembler(), dispatch: dispatch}
}

// Len is the size of the code emitted so far.
func (e *Encoder) Len() int {
	return e.asm.Len()
}

// Instructions is the number of guest instructions emitted.
func (e *Encoder) Instructions() int {
	return e.count
}

// Finish resolves internal branches and returns the block's code.
func (e *Encoder) Finish() ([]byte, error) {
	return e.asm.Bytes()
}

// EmitFallthrough ends the block by continuing at key.
func (e *Encoder) EmitFallthrough(key uint32) {
	e.exitTo(key)
}

// EmitInstruction appends the translation of inst. A conditional terminator
// gets a fallthrough exit for the not-taken path.
func (e *Encoder) EmitInstruction(inst *arm32.Inst) error {
	conditional := inst.Flags.Has(arm32.FlagCond) && inst.Cond != arm32.CondAL
	var skip Label
	if conditional {
		if inst.Cond == arm32.CondNV {
			return fmt.Errorf("%w: %s with condition nv", jiterrors.ErrEncoding, inst)
		}
		skip = e.asm.NewLabel()
		e.emitCondition(inst.Cond, skip)
	}
	if err := e.emitBody(inst); err != nil {
		return err
	}
	if conditional {
		e.asm.Bind(skip)
		if inst.IsTerminator() {
			e.exitTo(inst.NextKey())
		}
	}
	e.count++
	return nil
}

func (e *Encoder) emitBody(inst *arm32.Inst) error {
	switch n := inst.Name(); {
	case n.IsDataProcessing():
		e.emitDataProcessing(inst)
	case n.IsLoad() || n.IsStore():
		e.emitTransfer(inst)
	default:
		switch n {
		case arm32.MUL, arm32.MLA:
			e.emitMultiply(inst)
		case arm32.UMULL, arm32.UMLAL, arm32.SMULL, arm32.SMLAL:
			e.emitLongMultiply(inst)
		case arm32.MOVW, arm32.MOVT:
			e.emitMoveWide(inst)
		case arm32.CLZ:
			e.emitCountLeadingZeros(inst)
		case arm32.SXTB, arm32.SXTH, arm32.UXTB, arm32.UXTH, arm32.REV:
			e.emitExtend(inst)
		case arm32.LDM, arm32.STM:
			e.emitBlockTransfer(inst)
		case arm32.B, arm32.BL, arm32.BLX, arm32.BX:
			e.emitBranch(inst)
		case arm32.SVC:
			e.asm.StoreCtxImm32(state.OffsetSvcImm, inst.Imm)
			e.asm.StoreCtxImm32(state.OffsetExit, state.ExitSVC)
			e.exitTo(inst.NextKey())
		case arm32.UDF:
			e.asm.StoreCtxImm32(state.OffsetCurPC, inst.Key())
			e.asm.StoreCtxImm32(state.OffsetExit, state.ExitUndefined)
			e.exitTo(inst.Key())
		case arm32.NOP:
		default:
			return fmt.Errorf("%w: no lowering for %s", jiterrors.ErrEncoding, inst)
		}
	}
	return nil
}

// ---- registers and exits ----

func (e *Encoder) loadReg(dst X86Reg, inst *arm32.Inst, r uint8) {
	if r == arm32.RegPC {
		e.asm.MovRI32(dst, inst.PCValue())
		return
	}
	e.asm.LoadCtx32(dst, state.OffsetReg(r))
}

func (e *Encoder) storeReg(r uint8, src X86Reg) {
	e.asm.StoreCtx32(state.OffsetReg(r), src)
}

// writeReg stores eax to guest register r. A write to pc ends the block.
func (e *Encoder) writeReg(inst *arm32.Inst, r uint8) {
	if r != arm32.RegPC {
		e.storeReg(r, regDst)
		return
	}
	if inst.IsThumb() && inst.Name().IsDataProcessing() {
		e.asm.AluRI32(X86_REG_OR, regDst, 1)
		e.exitIndirect(false)
		return
	}
	e.exitIndirect(true)
}

func (e *Encoder) jumpDispatch() {
	e.asm.MovRI64(RAX, e.dispatch)
	e.asm.JmpReg(RAX)
}

func (e *Encoder) exitTo(key uint32) {
	e.asm.StoreCtxImm32(state.OffsetNextPC, key)
	e.jumpDispatch()
}

// exitIndirect continues at the address in eax. With interworking, bit 0
// selects Thumb and an ARM target is word aligned.
func (e *Encoder) exitIndirect(interworking bool) {
	a := e.asm
	if interworking {
		thumb := a.NewLabel()
		a.TestRI32(regDst, 1)
		a.Jcc(X86_CC_NE, thumb)
		a.AluRI32(X86_REG_AND, regDst, ^uint32(3))
		a.Bind(thumb)
	}
	a.StoreCtx32(state.OffsetNextPC, regDst)
	e.jumpDispatch()
}

// emitCondition branches to skip when cond does not hold.
func (e *Encoder) emitCondition(cond arm32.Cond, skip Label) {
	a := e.asm
	flag := func(off int32, holdsWhenSet bool) {
		a.CmpCtx8(off, 0)
		if holdsWhenSet {
			a.Jcc(X86_CC_E, skip)
		} else {
			a.Jcc(X86_CC_NE, skip)
		}
	}
	switch cond {
	case arm32.CondEQ:
		flag(state.OffsetZ, true)
	case arm32.CondNE:
		flag(state.OffsetZ, false)
	case arm32.CondCS:
		flag(state.OffsetC, true)
	case arm32.CondCC:
		flag(state.OffsetC, false)
	case arm32.CondMI:
		flag(state.OffsetN, true)
	case arm32.CondPL:
		flag(state.OffsetN, false)
	case arm32.CondVS:
		flag(state.OffsetV, true)
	case arm32.CondVC:
		flag(state.OffsetV, false)
	case arm32.CondHI, arm32.CondLS:
		// r8d = C & !Z
		a.LoadCtxZX8(R8D, state.OffsetC)
		a.LoadCtxZX8(R9D, state.OffsetZ)
		a.AluRI32(X86_REG_XOR, R9D, 1)
		a.AluRR32(X86_OP_AND_RM_R, R8D, R9D)
		if cond == arm32.CondHI {
			a.Jcc(X86_CC_E, skip)
		} else {
			a.Jcc(X86_CC_NE, skip)
		}
	case arm32.CondGE, arm32.CondLT:
		// r8d = N ^ V
		a.LoadCtxZX8(R8D, state.OffsetN)
		a.LoadCtxZX8(R9D, state.OffsetV)
		a.AluRR32(X86_OP_XOR_RM_R, R8D, R9D)
		if cond == arm32.CondGE {
			a.Jcc(X86_CC_NE, skip)
		} else {
			a.Jcc(X86_CC_E, skip)
		}
	case arm32.CondGT, arm32.CondLE:
		// r8d = (N ^ V) | Z
		a.LoadCtxZX8(R8D, state.OffsetN)
		a.LoadCtxZX8(R9D, state.OffsetV)
		a.AluRR32(X86_OP_XOR_RM_R, R8D, R9D)
		a.LoadCtxZX8(R9D, state.OffsetZ)
		a.AluRR32(X86_OP_OR_RM_R, R8D, R9D)
		if cond == arm32.CondGT {
			a.Jcc(X86_CC_NE, skip)
		} else {
			a.Jcc(X86_CC_E, skip)
		}
	}
}

// ---- shifter ----

func (e *Encoder) storeCarry(setCarry bool) {
	if setCarry {
		e.asm.SetccCtx(X86_CC_B, state.OffsetC)
	}
}

// carryIn loads the guest carry, inverted for subtract-with-carry, into CF.
func (e *Encoder) carryIn(invert bool) {
	a := e.asm
	a.LoadCtxZX8(R8D, state.OffsetC)
	if invert {
		a.AluRI32(X86_REG_XOR, R8D, 1)
	}
	a.Bt32(R8D, 0)
}

// emitOperand2 leaves the shifter output in edx. Register-shifted forms use
// ecx for the count.
func (e *Encoder) emitOperand2(inst *arm32.Inst, setCarry bool) {
	a := e.asm
	op := inst.Op2
	switch op.Kind {
	case arm32.OperandNone:
		a.MovRI32(regOp2, 0)
	case arm32.OperandImm:
		a.MovRI32(regOp2, op.Imm)
		if setCarry && op.Carry >= 0 {
			a.StoreCtxImm8(state.OffsetC, byte(op.Carry))
		}
	case arm32.OperandRegImm:
		e.loadReg(regOp2, inst, op.Rm)
		e.shiftImmediate(op.Shift, op.Amount, setCarry)
	case arm32.OperandRegReg:
		e.loadReg(regBase, inst, op.Rs)
		e.loadReg(regOp2, inst, op.Rm)
		e.shiftRegister(op.Shift, setCarry)
	}
}

func (e *Encoder) shiftImmediate(shift arm32.ShiftType, amount uint8, setCarry bool) {
	a := e.asm
	switch shift {
	case arm32.ShiftLSL:
		if amount == 0 {
			return
		}
		a.ShiftRI32(X86_REG_SHL, regOp2, amount)
		e.storeCarry(setCarry)
	case arm32.ShiftLSR:
		if amount >= 32 {
			if setCarry {
				a.Bt32(regOp2, 31)
				e.storeCarry(true)
			}
			a.MovRI32(regOp2, 0)
			return
		}
		if amount == 0 {
			return
		}
		a.ShiftRI32(X86_REG_SHR, regOp2, amount)
		e.storeCarry(setCarry)
	case arm32.ShiftASR:
		if amount >= 32 {
			a.ShiftRI32(X86_REG_SAR, regOp2, 31)
			if setCarry {
				a.Bt32(regOp2, 0)
				e.storeCarry(true)
			}
			return
		}
		if amount == 0 {
			return
		}
		a.ShiftRI32(X86_REG_SAR, regOp2, amount)
		e.storeCarry(setCarry)
	case arm32.ShiftROR:
		if amount&31 == 0 {
			return
		}
		a.ShiftRI32(X86_REG_ROR, regOp2, amount)
		e.storeCarry(setCarry)
	case arm32.ShiftRRX:
		e.carryIn(false)
		a.ShiftOne32(X86_REG_RCR, regOp2)
		e.storeCarry(setCarry)
	}
}

// shiftRegister shifts edx by the low byte of ecx. A zero count leaves both
// the value and the carry alone; counts of 32 and above follow the guest's
// saturating rules, so LSL/LSR/ASR run as 64-bit shifts.
func (e *Encoder) shiftRegister(shift arm32.ShiftType, setCarry bool) {
	a := e.asm
	done := a.NewLabel()
	a.AluRI32(X86_REG_AND, regBase, 0xff)
	a.Jcc(X86_CC_E, done)
	clamp := func() {
		ok := a.NewLabel()
		a.AluRI32(X86_REG_CMP, regBase, 33)
		a.Jcc(X86_CC_BE, ok)
		a.MovRI32(regBase, 33)
		a.Bind(ok)
	}
	switch shift {
	case arm32.ShiftLSL:
		clamp()
		a.ShiftRCL64(X86_REG_SHL, RDX)
		if setCarry {
			a.Bt64(RDX, 32)
			e.storeCarry(true)
		}
	case arm32.ShiftLSR, arm32.ShiftASR:
		ext := byte(X86_REG_SHR)
		if shift == arm32.ShiftASR {
			ext = X86_REG_SAR
			a.Movsxd(RDX, regOp2)
		}
		clamp()
		a.AluRI32(X86_REG_SUB, regBase, 1)
		a.ShiftRCL64(ext, RDX)
		if setCarry {
			a.Bt32(regOp2, 0)
			e.storeCarry(true)
		}
		a.ShiftOne64(ext, RDX)
	default:
		a.ShiftRCL32(X86_REG_ROR, regOp2)
		if setCarry {
			a.Bt32(regOp2, 31)
			e.storeCarry(true)
		}
	}
	a.Bind(done)
}

// ---- data processing ----

func (e *Encoder) emitDataProcessing(inst *arm32.Inst) {
	a := e.asm
	n := inst.Name()
	setFlags := inst.S || n.IsCompare()
	e.emitOperand2(inst, setFlags && n.IsLogical())
	switch {
	case inst.Flags.Has(arm32.FlagRn):
		e.loadReg(regBase, inst, inst.Rn)
	case inst.Flags.Has(arm32.FlagReadRd):
		e.loadReg(regBase, inst, inst.Rd)
	}

	switch n {
	case arm32.AND, arm32.TST:
		a.MovRR32(regDst, regBase)
		a.AluRR32(X86_OP_AND_RM_R, regDst, regOp2)
	case arm32.EOR, arm32.TEQ:
		a.MovRR32(regDst, regBase)
		a.AluRR32(X86_OP_XOR_RM_R, regDst, regOp2)
	case arm32.ORR:
		a.MovRR32(regDst, regBase)
		a.AluRR32(X86_OP_OR_RM_R, regDst, regOp2)
	case arm32.BIC:
		a.Unary32(X86_REG_NOT, regOp2)
		a.MovRR32(regDst, regBase)
		a.AluRR32(X86_OP_AND_RM_R, regDst, regOp2)
	case arm32.MOV:
		a.MovRR32(regDst, regOp2)
	case arm32.MVN:
		a.MovRR32(regDst, regOp2)
		a.Unary32(X86_REG_NOT, regDst)
	case arm32.ADD, arm32.CMN:
		a.MovRR32(regDst, regBase)
		a.AluRR32(X86_OP_ADD_RM_R, regDst, regOp2)
	case arm32.SUB, arm32.CMP:
		a.MovRR32(regDst, regBase)
		a.AluRR32(X86_OP_SUB_RM_R, regDst, regOp2)
	case arm32.RSB:
		a.MovRR32(regDst, regOp2)
		a.AluRR32(X86_OP_SUB_RM_R, regDst, regBase)
	case arm32.ADC:
		e.carryIn(false)
		a.MovRR32(regDst, regBase)
		a.AluRR32(X86_OP_ADC_RM_R, regDst, regOp2)
	case arm32.SBC:
		e.carryIn(true)
		a.MovRR32(regDst, regBase)
		a.AluRR32(X86_OP_SBB_RM_R, regDst, regOp2)
	case arm32.RSC:
		e.carryIn(true)
		a.MovRR32(regDst, regOp2)
		a.AluRR32(X86_OP_SBB_RM_R, regDst, regBase)
	}

	if setFlags {
		if n == arm32.MOV || n == arm32.MVN {
			a.AluRR32(X86_OP_TEST_RM_R, regDst, regDst)
		}
		a.SetccCtx(X86_CC_S, state.OffsetN)
		a.SetccCtx(X86_CC_E, state.OffsetZ)
		if !n.IsLogical() {
			switch n {
			case arm32.ADD, arm32.ADC, arm32.CMN:
				a.SetccCtx(X86_CC_B, state.OffsetC)
			default:
				// the guest carry is the inverted borrow
				a.SetccCtx(X86_CC_AE, state.OffsetC)
			}
			a.SetccCtx(X86_CC_O, state.OffsetV)
		}
	}
	if !n.IsCompare() {
		e.writeReg(inst, inst.Rd)
	}
}

// ---- multiplies and miscellaneous ----

func (e *Encoder) emitMultiply(inst *arm32.Inst) {
	a := e.asm
	e.loadReg(regDst, inst, inst.Op2.Rm)
	e.loadReg(regOp2, inst, inst.Op2.Rs)
	a.Imul32(regDst, regOp2)
	if inst.Name() == arm32.MLA {
		e.loadReg(regBase, inst, inst.Ra)
		a.AluRR32(X86_OP_ADD_RM_R, regDst, regBase)
	}
	if inst.S {
		a.AluRR32(X86_OP_TEST_RM_R, regDst, regDst)
		a.SetccCtx(X86_CC_S, state.OffsetN)
		a.SetccCtx(X86_CC_E, state.OffsetZ)
	}
	e.storeReg(inst.Rd, regDst)
}

func (e *Encoder) emitLongMultiply(inst *arm32.Inst) {
	a := e.asm
	n := inst.Name()
	e.loadReg(regDst, inst, inst.Op2.Rm)
	e.loadReg(regOp2, inst, inst.Op2.Rs)
	if n == arm32.SMULL || n == arm32.SMLAL {
		a.Movsxd(RAX, regDst)
		a.Movsxd(RDX, regOp2)
	}
	a.Imul64(RAX, RDX)
	if inst.Flags.Has(arm32.FlagReadRd) {
		e.loadReg(R8D, inst, inst.RdLo)
		e.loadReg(R9D, inst, inst.RdHi)
		a.ShiftRI64(X86_REG_SHL, R9, 32)
		a.AluRR64(X86_OP_OR_RM_R, R8, R9)
		a.AluRR64(X86_OP_ADD_RM_R, RAX, R8)
	}
	if inst.S {
		a.AluRR64(X86_OP_TEST_RM_R, RAX, RAX)
		a.SetccCtx(X86_CC_S, state.OffsetN)
		a.SetccCtx(X86_CC_E, state.OffsetZ)
	}
	e.storeReg(inst.RdLo, regDst)
	a.MovRR64(RDX, RAX)
	a.ShiftRI64(X86_REG_SHR, RDX, 32)
	e.storeReg(inst.RdHi, regOp2)
}

func (e *Encoder) emitMoveWide(inst *arm32.Inst) {
	a := e.asm
	if inst.Flags.Has(arm32.FlagReadRd) {
		e.loadReg(regDst, inst, inst.Rd)
		a.AluRI32(X86_REG_AND, regDst, 0xffff)
		a.AluRI32(X86_REG_OR, regDst, inst.Imm<<16)
	} else {
		a.MovRI32(regDst, inst.Imm)
	}
	e.storeReg(inst.Rd, regDst)
}

func (e *Encoder) emitCountLeadingZeros(inst *arm32.Inst) {
	a := e.asm
	nonzero := a.NewLabel()
	e.loadReg(regOp2, inst, inst.Op2.Rm)
	a.Bsr32(regDst, regOp2)
	a.Jcc(X86_CC_NE, nonzero)
	a.MovRI32(regDst, 0xffffffff)
	a.Bind(nonzero)
	a.MovRI32(R8D, 31)
	a.AluRR32(X86_OP_SUB_RM_R, R8D, regDst)
	e.storeReg(inst.Rd, R8D)
}

func (e *Encoder) emitExtend(inst *arm32.Inst) {
	a := e.asm
	e.loadReg(regOp2, inst, inst.Op2.Rm)
	if rot := byte(inst.Imm & 31); rot != 0 {
		a.ShiftRI32(X86_REG_ROR, regOp2, rot)
	}
	switch inst.Name() {
	case arm32.SXTB:
		a.Movsx8(regDst, regOp2)
	case arm32.SXTH:
		a.Movsx16(regDst, regOp2)
	case arm32.UXTB:
		a.Movzx8(regDst, regOp2)
	case arm32.UXTH:
		a.Movzx16(regDst, regOp2)
	case arm32.REV:
		a.MovRR32(regDst, regOp2)
		a.Bswap32(regDst)
	}
	e.storeReg(inst.Rd, regDst)
}

// ---- memory ----

// emitTransfer lowers single and doubleword loads and stores. The access
// happens before base writeback, and a loaded register is written last.
func (e *Encoder) emitTransfer(inst *arm32.Inst) {
	a := e.asm
	n := inst.Name()
	imm := inst.Op2.Kind == arm32.OperandImm
	if !imm {
		e.emitOperand2(inst, false)
	}
	e.loadReg(regBase, inst, inst.Rn)

	// r9d = offset address
	a.MovRR32(R9D, regBase)
	ext, op := byte(X86_REG_ADD), byte(X86_OP_ADD_RM_R)
	if !inst.Add {
		ext, op = X86_REG_SUB, X86_OP_SUB_RM_R
	}
	if imm {
		if inst.Op2.Imm != 0 {
			a.AluRI32(ext, R9D, inst.Op2.Imm)
		}
	} else {
		a.AluRR32(op, R9D, regOp2)
	}
	if inst.Index {
		a.MovRR32(regBase, R9D)
	}

	a.StoreCtxImm32(state.OffsetCurPC, inst.Key())
	size := int(inst.MemSize())
	switch {
	case n == arm32.LDRD:
		a.LoadGuest(4, false, regDst, RCX)
		a.MovRR32(R10D, regBase)
		a.AluRI32(X86_REG_ADD, R10D, 4)
		a.LoadGuest(4, false, regOp2, R10)
	case n == arm32.STRD:
		e.loadReg(regDst, inst, inst.Rt)
		e.loadReg(regOp2, inst, inst.Rt2)
		a.MovRR32(R10D, regBase)
		a.AluRI32(X86_REG_ADD, R10D, 4)
		a.StoreGuest(4, regDst, RCX)
		a.StoreGuest(4, regOp2, R10)
	case n.IsLoad():
		a.LoadGuest(size, n == arm32.LDRSB || n == arm32.LDRSH, regDst, RCX)
	default:
		e.loadReg(regDst, inst, inst.Rt)
		a.StoreGuest(size, regDst, RCX)
	}

	if inst.Flags.Has(arm32.FlagWBack) && inst.WBack {
		e.storeReg(inst.Rn, R9D)
	}
	if n == arm32.LDRD {
		e.storeReg(inst.Rt, regDst)
		e.storeReg(inst.Rt2, regOp2)
	} else if n.IsLoad() {
		e.writeReg(inst, inst.Rt)
	}
}

// emitBlockTransfer lowers LDM/STM in all four addressing modes. Loaded
// values are staged in the context so a fault part way through leaves the
// guest registers untouched.
func (e *Encoder) emitBlockTransfer(inst *arm32.Inst) {
	a := e.asm
	count := uint32(bits.OnesCount16(inst.RegList))
	e.loadReg(regBase, inst, inst.Rn)

	// r9d = written-back base
	a.MovRR32(R9D, regBase)
	if inst.Add {
		a.AluRI32(X86_REG_ADD, R9D, 4*count)
	} else {
		a.AluRI32(X86_REG_SUB, R9D, 4*count)
	}
	switch {
	case inst.Add && inst.Index:
		a.AluRI32(X86_REG_ADD, regBase, 4)
	case !inst.Add && inst.Index:
		a.AluRI32(X86_REG_SUB, regBase, 4*count)
	case !inst.Add && count > 1:
		a.AluRI32(X86_REG_SUB, regBase, 4*count-4)
	}

	a.StoreCtxImm32(state.OffsetCurPC, inst.Key())
	wback := inst.Flags.Has(arm32.FlagWBack) && inst.WBack
	if inst.Name() == arm32.STM {
		for r := uint8(0); r < 16; r++ {
			if inst.RegList&(1<<r) == 0 {
				continue
			}
			e.loadReg(regDst, inst, r)
			a.StoreGuest(4, regDst, RCX)
			a.AluRI32(X86_REG_ADD, regBase, 4)
		}
		if wback {
			e.storeReg(inst.Rn, R9D)
		}
		return
	}

	slot := 0
	for r := uint8(0); r < 16; r++ {
		if inst.RegList&(1<<r) == 0 {
			continue
		}
		a.LoadGuest(4, false, regDst, RCX)
		a.StoreCtx32(state.OffsetScratchSlot(slot), regDst)
		a.AluRI32(X86_REG_ADD, regBase, 4)
		slot++
	}
	if wback && inst.RegList&(1<<inst.Rn) == 0 {
		e.storeReg(inst.Rn, R9D)
	}
	slot = 0
	for r := uint8(0); r < 15; r++ {
		if inst.RegList&(1<<r) == 0 {
			continue
		}
		a.LoadCtx32(regDst, state.OffsetScratchSlot(slot))
		e.storeReg(r, regDst)
		slot++
	}
	if inst.RegList&(1<<arm32.RegPC) != 0 {
		a.LoadCtx32(regDst, state.OffsetScratchSlot(slot))
		e.exitIndirect(true)
	}
}

// ---- branches ----

func (e *Encoder) emitBranch(inst *arm32.Inst) {
	a := e.asm
	switch inst.Name() {
	case arm32.B:
		e.exitTo(inst.Target)
	case arm32.BL:
		a.StoreCtxImm32(state.OffsetReg(arm32.RegLR), inst.NextKey())
		e.exitTo(inst.Target)
	case arm32.BLX:
		if inst.Op2.Kind == arm32.OperandNone {
			a.StoreCtxImm32(state.OffsetReg(arm32.RegLR), inst.NextKey())
			e.exitTo(inst.Target)
			return
		}
		e.loadReg(regDst, inst, inst.Op2.Rm)
		a.StoreCtxImm32(state.OffsetReg(arm32.RegLR), inst.NextKey())
		e.exitIndirect(true)
	case arm32.BX:
		e.loadReg(regDst, inst, inst.Op2.Rm)
		e.exitIndirect(true)
	}
}

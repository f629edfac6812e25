package arm32

import "math/bits"

func signExtend(v uint32, width uint) uint32 {
	shift := 32 - width
	return uint32(int32(v<<shift) >> shift)
}

func (i *Inst) set(op Opcode) {
	i.Op = op
	i.Flags = Classify(op)
}

func undefinedA32(inst Inst) Inst {
	inst.set(UdfA32)
	inst.Cond = CondAL
	return inst
}

// DecodeA32 decodes one 32-bit ARM-state instruction at addr. Encodings the
// translator does not implement come back as UDF.
func DecodeA32(addr, w uint32) Inst {
	inst := Inst{Address: addr, Size: 4, Raw: w, Cond: Cond(w >> 28)}
	if inst.Cond == CondNV {
		if w&0x0e000000 == 0x0a000000 {
			off := signExtend((w&0x00ffffff)<<2, 26) | (w>>24&1)<<1
			inst.set(BlxImmA32)
			inst.Cond = CondAL
			inst.Target = (addr + 8 + off) | 1
			return inst
		}
		return undefinedA32(inst)
	}

	switch (w >> 25) & 7 {
	case 0:
		return decodeA32Register(inst, w)
	case 1:
		return decodeA32Immediate(inst, w)
	case 2:
		return decodeA32SingleTransfer(inst, w, false)
	case 3:
		if w&0x10 != 0 {
			return decodeA32Media(inst, w)
		}
		return decodeA32SingleTransfer(inst, w, true)
	case 4:
		return decodeA32Block(inst, w)
	case 5:
		if w&0x01000000 != 0 {
			inst.set(BlA32)
		} else {
			inst.set(BA32)
		}
		inst.Target = addr + 8 + signExtend((w&0x00ffffff)<<2, 26)
		return inst
	case 7:
		if w&0x01000000 != 0 {
			inst.set(SvcA32)
			inst.Imm = w & 0x00ffffff
			return inst
		}
	}
	return undefinedA32(inst)
}

func decodeA32Register(inst Inst, w uint32) Inst {
	switch {
	case w&0x0ffffff0 == 0x012fff10:
		inst.set(BxA32)
		inst.Op2 = Operand{Kind: OperandRegImm, Rm: uint8(w & 0xf)}
		return inst
	case w&0x0ffffff0 == 0x012fff30:
		if w&0xf == RegPC {
			return undefinedA32(inst)
		}
		inst.set(BlxRegA32)
		inst.Op2 = Operand{Kind: OperandRegImm, Rm: uint8(w & 0xf)}
		return inst
	case w&0x0fff0ff0 == 0x016f0f10:
		inst.set(ClzA32)
		inst.Rd = uint8(w >> 12 & 0xf)
		inst.Op2 = Operand{Kind: OperandRegImm, Rm: uint8(w & 0xf)}
		if inst.Rd == RegPC || inst.Op2.Rm == RegPC {
			return undefinedA32(inst)
		}
		return inst
	case w&0x0f0000f0 == 0x00000090:
		return decodeA32Multiply(inst, w)
	case w&0x90 == 0x90:
		if w&0x60 == 0 {
			return undefinedA32(inst)
		}
		return decodeA32ExtraTransfer(inst, w)
	}

	opc := w >> 21 & 0xf
	inst.S = w&0x00100000 != 0
	if opc >= uint32(TST) && opc <= uint32(CMN) && !inst.S {
		return undefinedA32(inst)
	}
	inst.Op2 = Operand{Rm: uint8(w & 0xf), Shift: ShiftType(w >> 5 & 3)}
	if w&0x10 == 0 {
		inst.Op2.Kind = OperandRegImm
		inst.Op2.Amount = uint8(w >> 7 & 0x1f)
		if inst.Op2.Amount == 0 {
			switch inst.Op2.Shift {
			case ShiftLSR, ShiftASR:
				inst.Op2.Amount = 32
			case ShiftROR:
				inst.Op2.Shift = ShiftRRX
				inst.Op2.Amount = 1
			}
		}
	} else {
		inst.Op2.Kind = OperandRegReg
		inst.Op2.Rs = uint8(w >> 8 & 0xf)
		if inst.Op2.Rs == RegPC || inst.Op2.Rm == RegPC || w>>12&0xf == RegPC || w>>16&0xf == RegPC {
			return undefinedA32(inst)
		}
	}
	return finishDataProcessing(inst, w, opc)
}

func decodeA32Immediate(inst Inst, w uint32) Inst {
	switch {
	case w&0x0ff00000 == 0x03000000, w&0x0ff00000 == 0x03400000:
		if w&0x00400000 != 0 {
			inst.set(MovtA32)
		} else {
			inst.set(MovwA32)
		}
		inst.Rd = uint8(w >> 12 & 0xf)
		inst.Imm = (w>>4)&0xf000 | w&0xfff
		if inst.Rd == RegPC {
			return undefinedA32(inst)
		}
		return inst
	case w&0x0fffff00 == 0x0320f000:
		inst.set(NopA32)
		return inst
	}

	opc := w >> 21 & 0xf
	inst.S = w&0x00100000 != 0
	if opc >= uint32(TST) && opc <= uint32(CMN) && !inst.S {
		return undefinedA32(inst)
	}
	rot := (w >> 8 & 0xf) * 2
	imm := bits.RotateLeft32(w&0xff, -int(rot))
	inst.Op2 = Operand{Kind: OperandImm, Imm: imm, Carry: -1}
	if rot != 0 {
		inst.Op2.Carry = int8(imm >> 31)
	}
	return finishDataProcessing(inst, w, opc)
}

func finishDataProcessing(inst Inst, w, opc uint32) Inst {
	inst.set(AndA32 + Opcode(opc))
	n := Name(opc)
	if !n.IsCompare() {
		inst.Rd = uint8(w >> 12 & 0xf)
		if inst.Rd == RegPC && inst.S {
			// exception return, needs privileged state
			return undefinedA32(inst)
		}
	}
	if n != MOV && n != MVN {
		inst.Rn = uint8(w >> 16 & 0xf)
	}
	return inst
}

func decodeA32Multiply(inst Inst, w uint32) Inst {
	inst.S = w&0x00100000 != 0
	rm, rs := uint8(w&0xf), uint8(w>>8&0xf)
	inst.Op2 = Operand{Kind: OperandRegReg, Rm: rm, Rs: rs}
	hi, lo := uint8(w>>16&0xf), uint8(w>>12&0xf)
	switch w >> 21 & 7 {
	case 0:
		inst.set(MulA32)
		inst.Rd = hi
	case 1:
		inst.set(MlaA32)
		inst.Rd, inst.Ra = hi, lo
	case 4:
		inst.set(UmullA32)
	case 5:
		inst.set(UmlalA32)
	case 6:
		inst.set(SmullA32)
	case 7:
		inst.set(SmlalA32)
	default:
		return undefinedA32(inst)
	}
	if inst.Flags&FlagRdLo != 0 {
		inst.RdHi, inst.RdLo = hi, lo
		if hi == lo || hi == RegPC || lo == RegPC {
			return undefinedA32(inst)
		}
	} else if inst.Rd == RegPC || inst.Ra == RegPC {
		return undefinedA32(inst)
	}
	if rm == RegPC || rs == RegPC {
		return undefinedA32(inst)
	}
	return inst
}

func decodeA32ExtraTransfer(inst Inst, w uint32) Inst {
	load := w&0x00100000 != 0
	switch op2 := w >> 5 & 3; {
	case op2 == 1 && !load:
		inst.set(StrhA32)
	case op2 == 1:
		inst.set(LdrhA32)
	case op2 == 2 && !load:
		inst.set(LdrdA32)
	case op2 == 2:
		inst.set(LdrsbA32)
	case op2 == 3 && !load:
		inst.set(StrdA32)
	default:
		inst.set(LdrshA32)
	}
	inst.Index = w&0x01000000 != 0
	inst.Add = w&0x00800000 != 0
	inst.WBack = w&0x00200000 != 0 || !inst.Index
	if !inst.Index && w&0x00200000 != 0 {
		return undefinedA32(inst)
	}
	inst.Rn = uint8(w >> 16 & 0xf)
	inst.Rt = uint8(w >> 12 & 0xf)
	if w&0x00400000 != 0 {
		inst.Op2 = Operand{Kind: OperandImm, Imm: (w>>4)&0xf0 | w&0xf, Carry: -1}
	} else {
		inst.Op2 = Operand{Kind: OperandRegImm, Rm: uint8(w & 0xf)}
		if inst.Op2.Rm == RegPC {
			return undefinedA32(inst)
		}
	}
	if n := inst.Name(); n == LDRD || n == STRD {
		if inst.Rt&1 != 0 || inst.Rt == RegLR {
			return undefinedA32(inst)
		}
		inst.Rt2 = inst.Rt + 1
		if n == LDRD && inst.WBack && (inst.Rn == inst.Rt || inst.Rn == inst.Rt2) {
			return undefinedA32(inst)
		}
	} else if inst.Rt == RegPC {
		return undefinedA32(inst)
	}
	if inst.WBack && inst.Rn == RegPC {
		return undefinedA32(inst)
	}
	if inst.WBack && inst.Name().IsLoad() && inst.Rn == inst.Rt {
		return undefinedA32(inst)
	}
	return inst
}

func decodeA32SingleTransfer(inst Inst, w uint32, register bool) Inst {
	load := w&0x00100000 != 0
	byteSize := w&0x00400000 != 0
	switch {
	case load && byteSize:
		inst.set(LdrbA32)
	case load:
		inst.set(LdrA32)
	case byteSize:
		inst.set(StrbA32)
	default:
		inst.set(StrA32)
	}
	inst.Index = w&0x01000000 != 0
	inst.Add = w&0x00800000 != 0
	if !inst.Index && w&0x00200000 != 0 {
		// LDRT/STRT
		return undefinedA32(inst)
	}
	inst.WBack = w&0x00200000 != 0 || !inst.Index
	inst.Rn = uint8(w >> 16 & 0xf)
	inst.Rt = uint8(w >> 12 & 0xf)
	if register {
		inst.Op2 = Operand{Kind: OperandRegImm, Rm: uint8(w & 0xf), Shift: ShiftType(w >> 5 & 3), Amount: uint8(w >> 7 & 0x1f)}
		if inst.Op2.Amount == 0 {
			switch inst.Op2.Shift {
			case ShiftLSR, ShiftASR:
				inst.Op2.Amount = 32
			case ShiftROR:
				inst.Op2.Shift = ShiftRRX
				inst.Op2.Amount = 1
			}
		}
		if inst.Op2.Rm == RegPC {
			return undefinedA32(inst)
		}
	} else {
		inst.Op2 = Operand{Kind: OperandImm, Imm: w & 0xfff, Carry: -1}
	}
	if inst.WBack && (inst.Rn == RegPC || (load && inst.Rn == inst.Rt)) {
		return undefinedA32(inst)
	}
	if byteSize && inst.Rt == RegPC {
		return undefinedA32(inst)
	}
	return inst
}

func decodeA32Media(inst Inst, w uint32) Inst {
	inst.Rd = uint8(w >> 12 & 0xf)
	inst.Op2 = Operand{Kind: OperandRegImm, Rm: uint8(w & 0xf)}
	switch {
	case w&0x0fff03f0 == 0x06af0070:
		inst.set(SxtbA32)
	case w&0x0fff03f0 == 0x06bf0070:
		inst.set(SxthA32)
	case w&0x0fff03f0 == 0x06ef0070:
		inst.set(UxtbA32)
	case w&0x0fff03f0 == 0x06ff0070:
		inst.set(UxthA32)
	case w&0x0fff0ff0 == 0x06bf0f30:
		inst.set(RevA32)
	default:
		return undefinedA32(inst)
	}
	if inst.Name() != REV {
		inst.Imm = (w >> 10 & 3) * 8
	}
	if inst.Rd == RegPC || inst.Op2.Rm == RegPC {
		return undefinedA32(inst)
	}
	return inst
}

func decodeA32Block(inst Inst, w uint32) Inst {
	if w&0x00100000 != 0 {
		inst.set(LdmA32)
	} else {
		inst.set(StmA32)
	}
	inst.Index = w&0x01000000 != 0
	inst.Add = w&0x00800000 != 0
	inst.WBack = w&0x00200000 != 0
	inst.Rn = uint8(w >> 16 & 0xf)
	inst.RegList = uint16(w)
	if w&0x00400000 != 0 || inst.RegList == 0 || inst.Rn == RegPC {
		return undefinedA32(inst)
	}
	return inst
}

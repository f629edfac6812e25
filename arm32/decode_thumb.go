package arm32

func undefinedT16(inst Inst) Inst {
	inst.set(UdfT16)
	inst.Cond = CondAL
	return inst
}

// IsThumb32Prefix reports whether hw is the first halfword of a 32-bit
// Thumb encoding.
func IsThumb32Prefix(hw uint16) bool {
	switch hw >> 11 {
	case 0x1d, 0x1e, 0x1f:
		return true
	}
	return false
}

func lowReg(hw uint16, shift uint) uint8 {
	return uint8(hw>>shift) & 7
}

// DecodeT16 decodes one 16-bit Thumb instruction at addr. The switch follows
// the ARM7TDMI Thumb instruction formats; v6 additions (extends, REV, hints)
// are slotted in next to the format they share a prefix with.
func DecodeT16(addr uint32, hw uint16) Inst {
	inst := Inst{Address: addr, Size: 2, Raw: uint32(hw), Cond: CondAL}

	switch {
	case hw&0xf800 == 0xe000:
		// format 18: unconditional branch
		inst.set(BT16)
		inst.Target = (addr + 4 + signExtend(uint32(hw&0x7ff)<<1, 12)) | 1

	case hw&0xf000 == 0xd000:
		// format 16/17: conditional branch, software interrupt
		cond := Cond(hw >> 8 & 0xf)
		switch cond {
		case CondAL:
			return undefinedT16(inst)
		case CondNV:
			inst.set(SvcT16)
			inst.Imm = uint32(hw & 0xff)
		default:
			inst.set(BCondT16)
			inst.Cond = cond
			inst.Target = (addr + 4 + signExtend(uint32(hw&0xff)<<1, 9)) | 1
		}

	case hw&0xf000 == 0xc000:
		// format 15: multiple load/store
		inst.Rn = lowReg(hw, 8)
		inst.RegList = hw & 0xff
		if inst.RegList == 0 {
			return undefinedT16(inst)
		}
		inst.Add = true
		inst.WBack = true
		if hw&0x0800 != 0 {
			inst.set(LdmT16)
			if inst.RegList&(1<<inst.Rn) != 0 {
				inst.WBack = false
			}
		} else {
			inst.set(StmT16)
		}

	case hw&0xff00 == 0xbf00:
		if hw&0x000f != 0 {
			// IT blocks are not translated
			return undefinedT16(inst)
		}
		inst.set(NopT16)

	case hw&0xf600 == 0xb400:
		// format 14: push/pop registers
		inst.Rn = RegSP
		inst.WBack = true
		inst.RegList = hw & 0xff
		if hw&0x0800 != 0 {
			inst.set(LdmT16)
			inst.Add = true
			if hw&0x0100 != 0 {
				inst.RegList |= 1 << RegPC
			}
		} else {
			inst.set(StmT16)
			inst.Index = true
			if hw&0x0100 != 0 {
				inst.RegList |= 1 << RegLR
			}
		}
		if inst.RegList == 0 {
			return undefinedT16(inst)
		}

	case hw&0xff00 == 0xb000:
		// format 13: add offset to stack pointer
		inst.Rd, inst.Rn = RegSP, RegSP
		inst.Op2 = Operand{Kind: OperandImm, Imm: uint32(hw&0x7f) << 2, Carry: -1}
		if hw&0x0080 != 0 {
			inst.set(SubT16)
		} else {
			inst.set(AddSpT16)
		}

	case hw&0xff00 == 0xb200:
		inst.Rd = lowReg(hw, 0)
		inst.Op2 = Operand{Kind: OperandRegImm, Rm: lowReg(hw, 3)}
		inst.set([4]Opcode{SxthT16, SxtbT16, UxthT16, UxtbT16}[hw>>6&3])

	case hw&0xffc0 == 0xba00:
		inst.set(RevT16)
		inst.Rd = lowReg(hw, 0)
		inst.Op2 = Operand{Kind: OperandRegImm, Rm: lowReg(hw, 3)}

	case hw&0xf000 == 0xa000:
		// format 12: load address
		inst.Rd = lowReg(hw, 8)
		inst.Op2 = Operand{Kind: OperandImm, Imm: uint32(hw&0xff) << 2, Carry: -1}
		if hw&0x0800 != 0 {
			inst.set(AddSpT16)
			inst.Rn = RegSP
		} else {
			inst.set(AdrT16)
			inst.Rn = RegPC
			inst.AlignPC = true
		}

	case hw&0xf000 == 0x9000:
		// format 11: SP-relative load/store
		inst.Rt = lowReg(hw, 8)
		inst.Rn = RegSP
		inst.Op2 = Operand{Kind: OperandImm, Imm: uint32(hw&0xff) << 2, Carry: -1}
		inst.Index, inst.Add = true, true
		if hw&0x0800 != 0 {
			inst.set(LdrT16)
		} else {
			inst.set(StrT16)
		}

	case hw&0xf000 == 0x8000:
		// format 10: load/store halfword
		inst.Rt = lowReg(hw, 0)
		inst.Rn = lowReg(hw, 3)
		inst.Op2 = Operand{Kind: OperandImm, Imm: uint32(hw>>6&0x1f) << 1, Carry: -1}
		inst.Index, inst.Add = true, true
		if hw&0x0800 != 0 {
			inst.set(LdrhT16)
		} else {
			inst.set(StrhT16)
		}

	case hw&0xe000 == 0x6000:
		// format 9: load/store with immediate offset
		inst.Rt = lowReg(hw, 0)
		inst.Rn = lowReg(hw, 3)
		inst.Index, inst.Add = true, true
		imm := uint32(hw >> 6 & 0x1f)
		byteSize := hw&0x1000 != 0
		if !byteSize {
			imm <<= 2
		}
		inst.Op2 = Operand{Kind: OperandImm, Imm: imm, Carry: -1}
		switch load := hw&0x0800 != 0; {
		case load && byteSize:
			inst.set(LdrbT16)
		case load:
			inst.set(LdrT16)
		case byteSize:
			inst.set(StrbT16)
		default:
			inst.set(StrT16)
		}

	case hw&0xf200 == 0x5200:
		// format 8: load/store sign-extended byte/halfword
		inst.Rt = lowReg(hw, 0)
		inst.Rn = lowReg(hw, 3)
		inst.Op2 = Operand{Kind: OperandRegImm, Rm: lowReg(hw, 6)}
		inst.Index, inst.Add = true, true
		inst.set([4]Opcode{StrhT16, LdrsbT16, LdrhT16, LdrshT16}[hw>>10&3])

	case hw&0xf200 == 0x5000:
		// format 7: load/store with register offset
		inst.Rt = lowReg(hw, 0)
		inst.Rn = lowReg(hw, 3)
		inst.Op2 = Operand{Kind: OperandRegImm, Rm: lowReg(hw, 6)}
		inst.Index, inst.Add = true, true
		inst.set([4]Opcode{StrT16, StrbT16, LdrT16, LdrbT16}[hw>>10&3])

	case hw&0xf800 == 0x4800:
		// format 6: PC-relative load
		inst.set(LdrT16)
		inst.Rt = lowReg(hw, 8)
		inst.Rn = RegPC
		inst.AlignPC = true
		inst.Op2 = Operand{Kind: OperandImm, Imm: uint32(hw&0xff) << 2, Carry: -1}
		inst.Index, inst.Add = true, true

	case hw&0xfc00 == 0x4400:
		return decodeT16HiRegister(inst, hw)

	case hw&0xfc00 == 0x4000:
		return decodeT16ALU(inst, hw)

	case hw&0xe000 == 0x2000:
		// format 3: move/compare/add/subtract immediate
		rd := lowReg(hw, 8)
		inst.S = true
		inst.Op2 = Operand{Kind: OperandImm, Imm: uint32(hw & 0xff), Carry: -1}
		switch hw >> 11 & 3 {
		case 0:
			inst.set(MovT16)
			inst.Rd = rd
		case 1:
			inst.set(CmpT16)
			inst.Rn = rd
		case 2:
			inst.set(AddT16)
			inst.Rd, inst.Rn = rd, rd
		case 3:
			inst.set(SubT16)
			inst.Rd, inst.Rn = rd, rd
		}

	case hw&0xf800 == 0x1800:
		// format 2: add/subtract
		inst.S = true
		inst.Rd = lowReg(hw, 0)
		inst.Rn = lowReg(hw, 3)
		if hw&0x0400 != 0 {
			inst.Op2 = Operand{Kind: OperandImm, Imm: uint32(hw >> 6 & 7), Carry: -1}
		} else {
			inst.Op2 = Operand{Kind: OperandRegImm, Rm: lowReg(hw, 6)}
		}
		if hw&0x0200 != 0 {
			inst.set(SubT16)
		} else {
			inst.set(AddT16)
		}

	case hw&0xe000 == 0x0000:
		// format 1: move shifted register
		inst.set(MovT16)
		inst.S = true
		inst.Rd = lowReg(hw, 0)
		inst.Op2 = Operand{Kind: OperandRegImm, Rm: lowReg(hw, 3), Shift: ShiftType(hw >> 11 & 3), Amount: uint8(hw >> 6 & 0x1f)}
		if inst.Op2.Amount == 0 && inst.Op2.Shift != ShiftLSL {
			inst.Op2.Amount = 32
		}

	default:
		return undefinedT16(inst)
	}
	return inst
}

func decodeT16HiRegister(inst Inst, hw uint16) Inst {
	// format 5: hi register operations/branch exchange
	rd := uint8(hw&7) | uint8(hw>>4&8)
	rm := uint8(hw >> 3 & 0xf)
	inst.Op2 = Operand{Kind: OperandRegImm, Rm: rm}
	switch hw >> 8 & 3 {
	case 0:
		inst.set(AddHiT16)
		inst.Rd, inst.Rn = rd, rd
	case 1:
		inst.set(CmpHiT16)
		inst.Rn = rd
		inst.S = true
		if rd == RegPC || rm == RegPC {
			return undefinedT16(inst)
		}
	case 2:
		inst.set(MovHiT16)
		inst.Rd = rd
	case 3:
		if hw&7 != 0 {
			return undefinedT16(inst)
		}
		if hw&0x0080 != 0 {
			if rm == RegPC {
				return undefinedT16(inst)
			}
			inst.set(BlxRegT16)
		} else {
			inst.set(BxT16)
		}
	}
	return inst
}

var t16ALU = [16]Opcode{
	AndT16, EorT16, MovT16, MovT16, MovT16, AdcT16, SbcT16, MovT16,
	TstT16, RsbT16, CmpT16, CmnT16, OrrT16, MulT16, BicT16, MvnT16,
}

func decodeT16ALU(inst Inst, hw uint16) Inst {
	// format 4: ALU operations
	rd, rm := lowReg(hw, 0), lowReg(hw, 3)
	op := hw >> 6 & 0xf
	inst.set(t16ALU[op])
	inst.S = true
	inst.Op2 = Operand{Kind: OperandRegImm, Rm: rm}
	switch op {
	case 2, 3, 4, 7:
		// shifts by register: MOVS rd, rd, <shift> rm
		shift := map[uint16]ShiftType{2: ShiftLSL, 3: ShiftLSR, 4: ShiftASR, 7: ShiftROR}[op]
		inst.Rd = rd
		inst.Op2 = Operand{Kind: OperandRegReg, Rm: rd, Rs: rm, Shift: shift}
	case 8, 10, 11:
		inst.Rn = rd
	case 9:
		// NEG is RSBS rd, rm, #0
		inst.Rd, inst.Rn = rd, rm
		inst.Op2 = Operand{Kind: OperandImm, Carry: -1}
	case 13:
		// MULS rd, rm, rd
		inst.Rd = rd
		inst.Op2 = Operand{Kind: OperandRegReg, Rm: rm, Rs: rd}
	case 15:
		inst.Rd = rd
	default:
		inst.Rd, inst.Rn = rd, rd
	}
	return inst
}

// DecodeT32 decodes a 32-bit Thumb instruction. Only BL and BLX (immediate)
// are translated.
func DecodeT32(addr uint32, hw1, hw2 uint16) Inst {
	inst := Inst{Address: addr, Size: 4, Raw: uint32(hw1)<<16 | uint32(hw2), Cond: CondAL}
	if hw1&0xf800 != 0xf000 || hw2&0xc000 != 0xc000 {
		inst.set(UdfT32)
		return inst
	}
	s := uint32(hw1 >> 10 & 1)
	j1 := uint32(hw2 >> 13 & 1)
	j2 := uint32(hw2 >> 11 & 1)
	i1 := ^(j1 ^ s) & 1
	i2 := ^(j2 ^ s) & 1
	off := signExtend(s<<24|i1<<23|i2<<22|uint32(hw1&0x3ff)<<12|uint32(hw2&0x7ff)<<1, 25)
	if hw2&0x1000 != 0 {
		inst.set(BlT32)
		inst.Target = (addr + 4 + off) | 1
		return inst
	}
	if hw2&1 != 0 {
		inst.set(UdfT32)
		return inst
	}
	inst.set(BlxImmT32)
	inst.Target = ((addr + 4) &^ 3) + off
	return inst
}

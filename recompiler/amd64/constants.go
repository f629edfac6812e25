// Package amd64 lowers decoded guest instructions to x86-64 machine code.
package amd64

// ================================================================================================
// X86 Instruction Constants
// ================================================================================================

// REX Prefix Constants
const (
	X86_REX_BASE = 0x40 // REX prefix base
	X86_REX_W    = 0x08 // REX.W - 64-bit operand size
	X86_REX_R    = 0x04 // REX.R - Extension of ModRM reg field
	X86_REX_X    = 0x02 // REX.X - Extension of SIB index field
	X86_REX_B    = 0x01 // REX.B - Extension of ModRM r/m, SIB base, or opcode reg field
)

// ModRM Mode Constants
const (
	X86_MOD_INDIRECT        = 0x00 // [reg] or [sib]
	X86_MOD_INDIRECT_DISP32 = 0x02 // [reg + disp32]
	X86_MOD_REGISTER        = 0x03 // reg
	X86_RM_SIB              = 0x04 // r/m selects a SIB byte
)

// Primary Opcodes
const (
	X86_OP_ADD_RM_R        = 0x01 // ADD r/m, r
	X86_OP_OR_RM_R         = 0x09 // OR r/m, r
	X86_OP_ADC_RM_R        = 0x11 // ADC r/m, r
	X86_OP_SBB_RM_R        = 0x19 // SBB r/m, r
	X86_OP_AND_RM_R        = 0x21 // AND r/m, r
	X86_OP_SUB_RM_R        = 0x29 // SUB r/m, r
	X86_OP_XOR_RM_R        = 0x31 // XOR r/m, r
	X86_OP_CMP_RM_R        = 0x39 // CMP r/m, r
	X86_OP_PUSH_R          = 0x50 // PUSH r64 (+ reg)
	X86_OP_POP_R           = 0x58 // POP r64 (+ reg)
	X86_OP_MOVSXD          = 0x63 // MOVSXD r64, r/m32
	X86_OP_OPERAND16       = 0x66 // operand-size override
	X86_OP_GROUP1_RM_IMM32 = 0x81 // Group 1 operations with imm32
	X86_OP_GROUP1_RM_IMM8  = 0x83 // Group 1 operations with imm8
	X86_OP_TEST_RM_R       = 0x85 // TEST r/m, r
	X86_OP_MOV_RM8_R8      = 0x88 // MOV r/m8, r8
	X86_OP_MOV_RM_R        = 0x89 // MOV r/m, r
	X86_OP_MOV_R_RM        = 0x8B // MOV r, r/m
	X86_OP_MOV_R_IMM       = 0xB8 // MOV r, imm (+ reg)
	X86_OP_GROUP2_RM_IMM8  = 0xC1 // Group 2 shift operations with imm8
	X86_OP_RET             = 0xC3 // RET
	X86_OP_MOV_RM_IMM8     = 0xC6 // MOV r/m8, imm8
	X86_OP_MOV_RM_IMM      = 0xC7 // MOV r/m, imm32
	X86_OP_GROUP2_RM_1     = 0xD1 // Group 2 shift operations by 1
	X86_OP_GROUP2_RM_CL    = 0xD3 // Group 2 shift operations by CL
	X86_OP_JMP_REL32       = 0xE9 // JMP rel32
	X86_OP_GROUP3_RM       = 0xF7 // Group 3 unary operations
	X86_OP_GROUP5_RM       = 0xFF // Group 5 operations (INC, DEC, CALL, JMP, PUSH)
	X86_PREFIX_0F          = 0x0F // two-byte opcode escape
)

// Two-byte Opcodes (0x0F prefix)
const (
	X86_OP2_JCC          = 0x80 // Jcc rel32 (+ cond)
	X86_OP2_SETCC        = 0x90 // SETcc r/m8 (+ cond)
	X86_OP2_IMUL_R_RM    = 0xAF // IMUL r, r/m
	X86_OP2_MOVZX_R_RM8  = 0xB6 // MOVZX r, r/m8
	X86_OP2_MOVZX_R_RM16 = 0xB7 // MOVZX r, r/m16
	X86_OP2_GROUP8       = 0xBA // BT/BTS/BTR/BTC r/m, imm8
	X86_OP2_BSR          = 0xBD // BSR r, r/m
	X86_OP2_MOVSX_R_RM8  = 0xBE // MOVSX r, r/m8
	X86_OP2_MOVSX_R_RM16 = 0xBF // MOVSX r, r/m16
	X86_OP2_BSWAP        = 0xC8 // BSWAP r32/r64 (+ reg)
)

// Condition codes, added to X86_OP2_JCC and X86_OP2_SETCC.
const (
	X86_CC_O  = 0x0
	X86_CC_NO = 0x1
	X86_CC_B  = 0x2 // carry set
	X86_CC_AE = 0x3 // carry clear
	X86_CC_E  = 0x4
	X86_CC_NE = 0x5
	X86_CC_BE = 0x6
	X86_CC_A  = 0x7
	X86_CC_S  = 0x8
	X86_CC_NS = 0x9
	X86_CC_L  = 0xC
	X86_CC_GE = 0xD
	X86_CC_LE = 0xE
	X86_CC_G  = 0xF
)

// ModRM reg field constants for opcodes with sub-operations
const (
	X86_REG_ADD = 0 // ADD (for 0x81/0x83 opcode)
	X86_REG_OR  = 1 // OR
	X86_REG_ADC = 2 // ADC
	X86_REG_SBB = 3 // SBB
	X86_REG_AND = 4 // AND
	X86_REG_SUB = 5 // SUB
	X86_REG_XOR = 6 // XOR
	X86_REG_CMP = 7 // CMP
)

// Unary operation reg field constants (for 0xF7 opcode)
const (
	X86_REG_TEST = 0 // TEST
	X86_REG_NOT  = 2 // NOT
	X86_REG_NEG  = 3 // NEG
)

// Shift operation reg field constants (for 0xC1/0xD1/0xD3 opcodes)
const (
	X86_REG_ROL = 0 // ROL
	X86_REG_ROR = 1 // ROR
	X86_REG_RCL = 2 // RCL
	X86_REG_RCR = 3 // RCR
	X86_REG_SHL = 4 // SHL/SAL
	X86_REG_SHR = 5 // SHR
	X86_REG_SAR = 7 // SAR
)

// Group 5 and group 8 reg fields
const (
	X86_REG_DEC = 1 // DEC (for 0xFF opcode)
	X86_REG_JMP = 4 // JMP r/m (for 0xFF opcode)
	X86_REG_BT  = 4 // BT (for 0x0F 0xBA opcode)
)

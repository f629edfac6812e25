package arm32

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassifyIsTotal(t *testing.T) {
	for _, op := range Opcodes() {
		info := Info(op)
		require.Equal(t, info.Flags, Classify(op), "opcode %d", op)
		switch info.Encoding {
		case EncT16:
			assert.True(t, info.Flags.Has(FlagThumb16), "%s T16 without compact flag", info.Name)
		default:
			assert.False(t, info.Flags.Has(FlagThumb16), "%s %s with compact flag", info.Name, info.Encoding)
		}
	}
	require.Equal(t, FlagNone, Classify(opcodeCount+10))
	require.Equal(t, UDF, Info(opcodeCount).Name)
}

func TestCompositeFlagsExposeAtoms(t *testing.T) {
	movt := Classify(MovtA32)
	require.True(t, movt.Has(FlagRd))
	require.True(t, movt.Has(FlagReadRd))
	require.True(t, movt.Has(FlagCond))
	require.Equal(t, FlagCond|FlagRd|FlagReadRd, movt)

	umlal := Classify(UmlalA32)
	require.True(t, umlal.Has(FlagRdLo|FlagRdHi|FlagReadRd))

	stm := Classify(StmA32)
	require.True(t, stm.Has(FlagRlist|FlagReadRd|FlagWBack|FlagRn))
	require.Equal(t, "Cond|Rn|Rlist|ReadRd|WBack", stm.String())
	require.Equal(t, "None", FlagNone.String())
}

func TestDecodeA32DataProcessing(t *testing.T) {
	inst := DecodeA32(0x1000, 0xe3a00001)
	require.Equal(t, MovA32, inst.Op)
	require.Equal(t, uint8(0), inst.Rd)
	require.Equal(t, OperandImm, inst.Op2.Kind)
	require.Equal(t, uint32(1), inst.Op2.Imm)
	require.Equal(t, int8(-1), inst.Op2.Carry)
	require.Equal(t, "mov r0, #1", inst.String())

	inst = DecodeA32(0x1000, 0xe0921003)
	require.Equal(t, AddA32, inst.Op)
	require.True(t, inst.S)
	require.Equal(t, uint8(1), inst.Rd)
	require.Equal(t, uint8(2), inst.Rn)
	require.Equal(t, uint8(3), inst.Op2.Rm)
	require.Equal(t, "adds r1, r2, r3", inst.String())
	require.False(t, inst.IsTerminator())

	// mov pc, lr ends the block
	inst = DecodeA32(0x1000, 0xe1a0f00e)
	require.True(t, inst.WritesPC())
	require.True(t, inst.IsTerminator())

	// movs pc, lr needs privileged state
	require.Equal(t, UdfA32, DecodeA32(0x1000, 0xe1b0f00e).Op)

	inst = DecodeA32(0, 0xe3410234)
	require.Equal(t, MovtA32, inst.Op)
	require.Equal(t, uint32(0x1234), inst.Imm)

	// rotated immediate produces a shifter carry
	inst = DecodeA32(0, 0xe3b004ff) // movs r0, #0xff000000
	require.Equal(t, uint32(0xff000000), inst.Op2.Imm)
	require.Equal(t, int8(1), inst.Op2.Carry)

	// lsr #0 encodes lsr #32, ror #0 encodes rrx
	inst = DecodeA32(0, 0xe1a00021)
	require.Equal(t, ShiftLSR, inst.Op2.Shift)
	require.Equal(t, uint8(32), inst.Op2.Amount)
	inst = DecodeA32(0, 0xe1a00061)
	require.Equal(t, ShiftRRX, inst.Op2.Shift)
}

func TestDecodeA32Memory(t *testing.T) {
	inst := DecodeA32(0, 0xe5b10004)
	require.Equal(t, LdrA32, inst.Op)
	require.True(t, inst.Index)
	require.True(t, inst.Add)
	require.True(t, inst.WBack)
	require.Equal(t, "ldr r0, [r1, #4]!", inst.String())

	inst = DecodeA32(0, 0xe4910004)
	require.False(t, inst.Index)
	require.True(t, inst.WBack)
	require.Equal(t, "ldr r0, [r1], #4", inst.String())

	inst = DecodeA32(0, 0xe1c020d8)
	require.Equal(t, LdrdA32, inst.Op)
	require.Equal(t, uint8(2), inst.Rt)
	require.Equal(t, uint8(3), inst.Rt2)
	require.Equal(t, uint32(8), inst.Op2.Imm)
	require.Equal(t, uint32(8), inst.MemSize())

	inst = DecodeA32(0, 0xe92d4010)
	require.Equal(t, StmA32, inst.Op)
	require.Equal(t, uint16(0x4010), inst.RegList)
	require.Equal(t, "push {r4, lr}", inst.String())

	inst = DecodeA32(0, 0xe8bd8010)
	require.Equal(t, LdmA32, inst.Op)
	require.True(t, inst.IsTerminator())
	require.Equal(t, "pop {r4, pc}", inst.String())

	inst = DecodeA32(0, 0xe0a10392)
	require.Equal(t, UmlalA32, inst.Op)
	require.Equal(t, uint8(0), inst.RdLo)
	require.Equal(t, uint8(1), inst.RdHi)
}

func TestDecodeA32Branches(t *testing.T) {
	inst := DecodeA32(0x1000, 0xeb000010)
	require.Equal(t, BlA32, inst.Op)
	require.Equal(t, uint32(0x1048), inst.Target)
	require.Equal(t, uint32(0x1004), inst.NextKey())

	inst = DecodeA32(0x1000, 0xeafffffe)
	require.Equal(t, uint32(0x1000), inst.Target)

	inst = DecodeA32(0, 0xfa000000)
	require.Equal(t, BlxImmA32, inst.Op)
	require.Equal(t, uint32(9), inst.Target)

	inst = DecodeA32(0, 0xe12fff1e)
	require.Equal(t, BxA32, inst.Op)
	require.Equal(t, uint8(RegLR), inst.Op2.Rm)
	require.Equal(t, "bx lr", inst.String())

	inst = DecodeA32(0, 0xef000000)
	require.Equal(t, SvcA32, inst.Op)
	require.True(t, inst.IsTerminator())

	require.Equal(t, NopA32, DecodeA32(0, 0xe320f000).Op)
	udf := DecodeA32(0, 0xe7f000f0)
	require.Equal(t, UdfA32, udf.Op)
	require.True(t, udf.IsTerminator())
}

func TestDecodeThumb(t *testing.T) {
	cases := []struct {
		hw   uint16
		op   Opcode
		text string
	}{
		{0x2005, MovT16, "movs r0, #5"},
		{0x1888, AddT16, "adds r0, r1, r2"},
		{0x00d1, MovT16, "movs r1, r2, lsl #3"},
		{0x4248, RsbT16, "rsbs r0, r1, #0"},
		{0x4488, AddHiT16, "add r8, r8, r1"},
		{0x4770, BxT16, "bx lr"},
		{0xb510, StmT16, "push {r4, lr}"},
		{0xbd10, LdmT16, "pop {r4, pc}"},
		{0xdf01, SvcT16, "svc #1"},
		{0xbf00, NopT16, "nop"},
		{0xb2c8, UxtbT16, "uxtb r0, r1"},
	}
	for _, c := range cases {
		inst := DecodeT16(0x100, c.hw)
		require.Equal(t, c.op, inst.Op, "%04x", c.hw)
		require.True(t, inst.Flags.Has(FlagThumb16))
		require.Equal(t, c.text, inst.String(), "%04x", c.hw)
	}

	hi := DecodeT16(0x100, 0x4488)
	require.True(t, hi.Flags.Has(FlagRdRead))
	require.True(t, hi.Flags.Has(FlagRd16))

	lit := DecodeT16(0x102, 0x4801)
	require.Equal(t, LdrT16, lit.Op)
	require.Equal(t, uint32(0x104), lit.PCValue())

	b := DecodeT16(0x100, 0xe7fe)
	require.Equal(t, uint32(0x101), b.Target)
	require.Equal(t, uint32(0x102|1), b.NextKey())

	beq := DecodeT16(0x200, 0xd0fe)
	require.Equal(t, BCondT16, beq.Op)
	require.Equal(t, CondEQ, beq.Cond)
	require.Equal(t, uint32(0x201), beq.Target)

	require.Equal(t, UdfT16, DecodeT16(0, 0xde00).Op)
	require.Equal(t, UdfT16, DecodeT16(0, 0xbf08).Op)
}

func TestDecodeThumb32(t *testing.T) {
	require.True(t, IsThumb32Prefix(0xf000))
	require.False(t, IsThumb32Prefix(0xe7fe))

	bl := DecodeT32(0x1000, 0xf000, 0xf802)
	require.Equal(t, BlT32, bl.Op)
	require.Equal(t, uint32(0x1009), bl.Target)
	require.Equal(t, uint32(0x1005), bl.NextKey())

	back := DecodeT32(0x1000, 0xf7ff, 0xfffe)
	require.Equal(t, uint32(0x1000|1), back.Target)

	blx := DecodeT32(0x1002, 0xf000, 0xe802)
	require.Equal(t, BlxImmT32, blx.Op)
	require.Equal(t, uint32(0x1008), blx.Target)

	require.Equal(t, UdfT32, DecodeT32(0, 0xe800, 0x0000).Op)
}

func TestDecodeBytesStopsAtTerminator(t *testing.T) {
	code := []byte{
		0x01, 0x00, 0xa0, 0xe3, // mov r0, #1
		0x02, 0x10, 0xa0, 0xe3, // mov r1, #2
		0x1e, 0xff, 0x2f, 0xe1, // bx lr
		0x00, 0x00, 0xa0, 0xe3, // unreachable
	}
	insts := DecodeBytes(code, 0x8000, false, true)
	require.Len(t, insts, 3)
	require.Equal(t, BxA32, insts[2].Op)
	require.Len(t, DecodeBytes(code, 0x8000, false, false), 4)
}

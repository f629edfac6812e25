package amd64

import (
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/arch/x86/x86asm"

	"github.com/colorfulnotion/armjit/addrtable"
	"github.com/colorfulnotion/armjit/arm32"
	"github.com/colorfulnotion/armjit/jiterrors"
	"github.com/colorfulnotion/armjit/recompiler/state"
)

const testDispatch = 0x7f00_0000_1000

func decodeOps(t *testing.T, code []byte) []x86asm.Op {
	t.Helper()
	var ops []x86asm.Op
	for off := 0; off < len(code); {
		inst, err := x86asm.Decode(code[off:], 64)
		require.NoError(t, err, "offset %d: % x", off, code[off:])
		ops = append(ops, inst.Op)
		off += inst.Len
	}
	return ops
}

func encodeA32(t *testing.T, words ...uint32) []byte {
	t.Helper()
	e := NewEncoder(testDispatch)
	for i, w := range words {
		inst := arm32.DecodeA32(0x8000+uint32(4*i), w)
		require.NoError(t, e.EmitInstruction(&inst), "%08x", w)
	}
	code, err := e.Finish()
	require.NoError(t, err)
	require.Equal(t, len(words), e.Instructions())
	return code
}

func TestEmitterEncodings(t *testing.T) {
	cases := []struct {
		name string
		emit func(a *Assembler)
		want []byte
	}{
		{"load guest", func(a *Assembler) { a.LoadGuest(4, false, EAX, RCX) }, []byte{0x41, 0x8b, 0x04, 0x0e}},
		{"store guest half", func(a *Assembler) { a.StoreGuest(2, EAX, RCX) }, []byte{0x66, 0x41, 0x89, 0x04, 0x0e}},
		{"store guest byte r10", func(a *Assembler) { a.StoreGuest(1, EDX, R10) }, []byte{0x43, 0x88, 0x14, 0x16}},
		{"store ctx imm", func(a *Assembler) { a.StoreCtxImm32(state.OffsetNextPC, 0x1234) },
			[]byte{0x41, 0xc7, 0x87, 0x48, 0, 0, 0, 0x34, 0x12, 0, 0}},
		{"dec budget", func(a *Assembler) { a.DecCtx64(state.OffsetBudget) }, []byte{0x49, 0xff, 0x8f, 0x60, 0, 0, 0}},
		{"table load", func(a *Assembler) { a.LoadQwordScaled(RDX, RDX, RCX) }, []byte{0x48, 0x8b, 0x14, 0xca}},
		{"ctx pointer", func(a *Assembler) { a.MovRR64(R15, RDI) }, []byte{0x49, 0x89, 0xff}},
		{"movzx byte", func(a *Assembler) { a.Movzx8(EAX, EDX) }, []byte{0x40, 0x0f, 0xb6, 0xc2}},
		{"add", func(a *Assembler) { a.AluRR32(X86_OP_ADD_RM_R, EAX, EDX) }, []byte{0x01, 0xd0}},
		{"jmp rax", func(a *Assembler) { a.JmpReg(RAX) }, []byte{0xff, 0xe0}},
		{"push r15", func(a *Assembler) { a.Push(R15) }, []byte{0x41, 0x57}},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			a := NewAssembler()
			c.emit(a)
			got, err := a.Bytes()
			require.NoError(t, err)
			require.Equal(t, c.want, got)
		})
	}
}

func TestLabels(t *testing.T) {
	a := NewAssembler()
	back := a.NewLabel()
	a.Bind(back)
	fwd := a.NewLabel()
	a.Jcc(X86_CC_E, fwd)
	a.Jmp(back)
	a.Bind(fwd)
	a.Ret()
	code, err := a.Bytes()
	require.NoError(t, err)
	// je +5 skips the jmp, jmp -11 returns to the start
	require.Equal(t, []byte{0x0f, 0x84, 5, 0, 0, 0, 0xe9, 0xf5, 0xff, 0xff, 0xff, 0xc3}, code)

	a = NewAssembler()
	a.Jmp(a.NewLabel())
	_, err = a.Bytes()
	require.ErrorIs(t, err, jiterrors.ErrEncoding)
}

func TestDataProcessingLowering(t *testing.T) {
	ops := decodeOps(t, encodeA32(t, 0xe0921003)) // adds r1, r2, r3
	require.Equal(t, []x86asm.Op{
		x86asm.MOV, x86asm.MOV, x86asm.MOV, x86asm.ADD,
		x86asm.SETS, x86asm.SETE, x86asm.SETB, x86asm.SETO,
		x86asm.MOV,
	}, ops)

	ops = decodeOps(t, encodeA32(t, 0xe0521003)) // subs r1, r2, r3
	require.Equal(t, x86asm.SETAE, ops[6])

	ops = decodeOps(t, encodeA32(t, 0x03a00001)) // moveq r0, #1
	require.Equal(t, []x86asm.Op{x86asm.CMP, x86asm.JE, x86asm.MOV, x86asm.MOV, x86asm.MOV}, ops)
}

func TestBranchLowering(t *testing.T) {
	ops := decodeOps(t, encodeA32(t, 0xef000000)) // svc #0
	require.Equal(t, []x86asm.Op{x86asm.MOV, x86asm.MOV, x86asm.MOV, x86asm.MOV, x86asm.JMP}, ops)

	ops = decodeOps(t, encodeA32(t, 0xe12fff1e)) // bx lr
	require.Equal(t, []x86asm.Op{
		x86asm.MOV, x86asm.TEST, x86asm.JNE, x86asm.AND, x86asm.MOV, x86asm.MOV, x86asm.JMP,
	}, ops)

	// bne: the taken exit is followed by the fallthrough exit
	ops = decodeOps(t, encodeA32(t, 0x1afffffe))
	require.Equal(t, []x86asm.Op{
		x86asm.CMP, x86asm.JNE,
		x86asm.MOV, x86asm.MOV, x86asm.JMP,
		x86asm.MOV, x86asm.MOV, x86asm.JMP,
	}, ops)
}

func TestEveryConditionEncodes(t *testing.T) {
	for c := arm32.CondEQ; c < arm32.CondAL; c++ {
		w := uint32(c)<<28 | 0x01a00001 // mov<c> r0, r1
		code := encodeA32(t, w)
		require.NotEmpty(t, decodeOps(t, code), "cond %s", c)
	}
	e := NewEncoder(testDispatch)
	inst := arm32.DecodeA32(0, 0xe0921003)
	inst.Cond = arm32.CondNV
	require.ErrorIs(t, e.EmitInstruction(&inst), jiterrors.ErrEncoding)
}

func TestBlockDecodesCleanly(t *testing.T) {
	words := []uint32{
		0xe3a00001, // mov r0, #1
		0xe0921003, // adds r1, r2, r3
		0xe1a00211, // mov r0, r1, lsl r2
		0xe1b00251, // movs r0, r1, asr r2
		0xe1b00271, // movs r0, r1, ror r2
		0xe1a00021, // mov r0, r1, lsr #32
		0xe1b00061, // movs r0, r1, rrx
		0xe3410234, // movt r0, #0x1234
		0xe16f0f11, // clz r0, r1
		0xe0a10392, // umlal r0, r1, r2, r3
		0xe5b10004, // ldr r0, [r1, #4]!
		0xe4910004, // ldr r0, [r1], #4
		0xe1c020d8, // ldrd r2, r3, [r0, #8]
		0xe92d4010, // push {r4, lr}
		0xe8bd8010, // pop {r4, pc}
	}
	code := encodeA32(t, words...)
	ops := decodeOps(t, code)
	require.Contains(t, ops, x86asm.BSR)
	require.Contains(t, ops, x86asm.RCR)
	require.Contains(t, ops, x86asm.IMUL)
	require.Contains(t, ops, x86asm.BT)
	require.Equal(t, x86asm.JMP, ops[len(ops)-1])
}

func TestThumbBlock(t *testing.T) {
	e := NewEncoder(testDispatch)
	for i, hw := range []uint16{0x2005, 0x1888, 0x4488, 0xb510, 0xb2c8, 0xbd10} {
		inst := arm32.DecodeT16(0x100+uint32(2*i), hw)
		require.NoError(t, e.EmitInstruction(&inst))
	}
	code, err := e.Finish()
	require.NoError(t, err)
	ops := decodeOps(t, code)
	require.Contains(t, ops, x86asm.MOVZX)
	require.Equal(t, x86asm.JMP, ops[len(ops)-1])
}

func TestStubs(t *testing.T) {
	s, err := GenerateStubs(0x7f00_0000_0000, addrtable.DefaultLevels)
	require.NoError(t, err)
	require.Zero(t, s.Enter)
	require.Less(t, s.Enter, s.Leave)
	require.Less(t, s.Leave, s.Dispatch)

	ops := decodeOps(t, s.Code)
	push := []x86asm.Op{x86asm.PUSH, x86asm.PUSH, x86asm.PUSH, x86asm.PUSH, x86asm.PUSH, x86asm.PUSH}
	require.Equal(t, push, ops[:6])
	require.Equal(t, []x86asm.Op{x86asm.MOV, x86asm.MOV, x86asm.JMP}, ops[6:9])

	dispatch := decodeOps(t, s.Code[s.Dispatch:])
	require.Equal(t, []x86asm.Op{x86asm.CMP, x86asm.JNE, x86asm.DEC, x86asm.JLE, x86asm.MOV, x86asm.MOV}, dispatch[:6])
	require.Equal(t, x86asm.JMP, dispatch[len(dispatch)-1])

	_, err = GenerateStubs(0, []addrtable.Level{{Shift: 0, Bits: 8}})
	require.Error(t, err)
}

// Package state defines the guest register file shared between Go and
// translated code. Translated code addresses every field relative to the
// context pointer, so the layout is part of the code generator's contract.
package state

import (
	"fmt"
	"unsafe"
)

// Exit reasons written by translated code before it returns to the host.
const (
	ExitNone      uint32 = 0
	ExitMiss      uint32 = 1 // NextPC has no translated unit
	ExitBudget    uint32 = 2 // dispatch budget exhausted
	ExitSVC       uint32 = 3 // supervisor call, SvcImm holds the number
	ExitUndefined uint32 = 4 // undefined instruction at CurPC
)

// Context is the guest register file. Flags are stored one per byte.
type Context struct {
	Regs    [16]uint32
	N       uint8
	Z       uint8
	C       uint8
	V       uint8
	Exit    uint32
	NextPC  uint32 // dispatch key to continue at; bit 0 selects Thumb
	CurPC   uint32 // key of the instruction performing a memory access
	SvcImm  uint32
	_       uint32
	MemBase uint64 // host address guest address 0 maps to
	Budget  int64
	Scratch [16]uint32 // staging for multi-register loads
}

const (
	OffsetRegs    = int32(unsafe.Offsetof(Context{}.Regs))
	OffsetN       = int32(unsafe.Offsetof(Context{}.N))
	OffsetZ       = int32(unsafe.Offsetof(Context{}.Z))
	OffsetC       = int32(unsafe.Offsetof(Context{}.C))
	OffsetV       = int32(unsafe.Offsetof(Context{}.V))
	OffsetExit    = int32(unsafe.Offsetof(Context{}.Exit))
	OffsetNextPC  = int32(unsafe.Offsetof(Context{}.NextPC))
	OffsetCurPC   = int32(unsafe.Offsetof(Context{}.CurPC))
	OffsetSvcImm  = int32(unsafe.Offsetof(Context{}.SvcImm))
	OffsetMemBase = int32(unsafe.Offsetof(Context{}.MemBase))
	OffsetBudget  = int32(unsafe.Offsetof(Context{}.Budget))
	OffsetScratch = int32(unsafe.Offsetof(Context{}.Scratch))

	Size = int(unsafe.Sizeof(Context{}))
)

// OffsetReg is the context offset of guest register r.
func OffsetReg(r uint8) int32 {
	return OffsetRegs + 4*int32(r&0xf)
}

// OffsetScratchSlot is the context offset of LDM staging slot i.
func OffsetScratchSlot(i int) int32 {
	return OffsetScratch + 4*int32(i&0xf)
}

// CPSR packs the flag bytes into the NZCV bits of a program status word.
func (c *Context) CPSR(thumb bool) uint32 {
	var v uint32
	v |= uint32(c.N&1) << 31
	v |= uint32(c.Z&1) << 30
	v |= uint32(c.C&1) << 29
	v |= uint32(c.V&1) << 28
	if thumb {
		v |= 1 << 5
	}
	return v | 0x10
}

func (c *Context) SetCPSR(v uint32) {
	c.N = uint8(v >> 31 & 1)
	c.Z = uint8(v >> 30 & 1)
	c.C = uint8(v >> 29 & 1)
	c.V = uint8(v >> 28 & 1)
}

func (c *Context) String() string {
	return fmt.Sprintf("r0=%08x r1=%08x r2=%08x r3=%08x sp=%08x lr=%08x next=%08x nzcv=%d%d%d%d exit=%d",
		c.Regs[0], c.Regs[1], c.Regs[2], c.Regs[3], c.Regs[13], c.Regs[14], c.NextPC, c.N, c.Z, c.C, c.V, c.Exit)
}

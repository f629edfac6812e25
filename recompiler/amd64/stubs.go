package amd64

import (
	"github.com/colorfulnotion/armjit/addrtable"
	"github.com/colorfulnotion/armjit/recompiler/state"
)

// Stubs is the shared entry, exit and dispatch code placed once per address
// table. Offsets are relative to the start of Code.
type Stubs struct {
	Code     []byte
	Enter    int
	Leave    int
	Dispatch int
}

// GenerateStubs emits the three stubs for a table rooted at root.
//
//	enter(ctx):  save callee-saved registers, r15 = ctx, r14 = ctx.MemBase,
//	             fall into dispatch
//	leave:       restore and return to the host
//	dispatch:    leave if ctx.Exit is set, charge the budget, then walk the
//	             table with ctx.NextPC and jump to the unit or leave with
//	             ExitMiss
func GenerateStubs(root uintptr, levels []addrtable.Level) (*Stubs, error) {
	if err := addrtable.ValidateLevels(levels); err != nil {
		return nil, err
	}
	a := NewAssembler()
	leave := a.NewLabel()
	dispatch := a.NewLabel()
	miss := a.NewLabel()
	budget := a.NewLabel()
	s := &Stubs{}

	s.Enter = a.Len()
	for _, r := range calleeSaved {
		a.Push(r)
	}
	a.MovRR64(regCtx, RDI)
	a.LoadCtx64(regMem, state.OffsetMemBase)
	a.Jmp(dispatch)

	s.Leave = a.Len()
	a.Bind(leave)
	for i := len(calleeSaved) - 1; i >= 0; i-- {
		a.Pop(calleeSaved[i])
	}
	a.Ret()

	s.Dispatch = a.Len()
	a.Bind(dispatch)
	a.CmpCtx32(state.OffsetExit, 0)
	a.Jcc(X86_CC_NE, leave)
	a.DecCtx64(state.OffsetBudget)
	a.Jcc(X86_CC_LE, budget)
	a.LoadCtx32(EAX, state.OffsetNextPC)
	a.MovRI64(RDX, uint64(root))
	for _, l := range levels {
		a.MovRR32(ECX, EAX)
		if l.Shift != 0 {
			a.ShiftRI32(X86_REG_SHR, ECX, byte(l.Shift))
		}
		a.AluRI32(X86_REG_AND, ECX, l.Mask())
		a.LoadQwordScaled(RDX, RDX, RCX)
		a.AluRR64(X86_OP_TEST_RM_R, RDX, RDX)
		a.Jcc(X86_CC_E, miss)
	}
	a.JmpReg(RDX)

	a.Bind(budget)
	a.StoreCtxImm32(state.OffsetExit, state.ExitBudget)
	a.Jmp(leave)
	a.Bind(miss)
	a.StoreCtxImm32(state.OffsetExit, state.ExitMiss)
	a.Jmp(leave)

	code, err := a.Bytes()
	if err != nil {
		return nil, err
	}
	s.Code = code
	return s, nil
}

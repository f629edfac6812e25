// Package cpu runs guest threads on translated code.
package cpu

import (
	"context"
	"fmt"

	"github.com/colorfulnotion/armjit/jiterrors"
	"github.com/colorfulnotion/armjit/log"
	"github.com/colorfulnotion/armjit/memory"
	"github.com/colorfulnotion/armjit/native"
	"github.com/colorfulnotion/armjit/recompiler"
	"github.com/colorfulnotion/armjit/recompiler/state"
	"github.com/colorfulnotion/armjit/types"
)

// maxFaultRetries bounds how often the same instruction may fault and be
// resumed in a row.
const maxFaultRetries = 16

// SupervisorCall handles SVC #imm. Returning stop ends Run without error.
type SupervisorCall func(e *Execution, imm uint32) (stop bool, err error)

// Execution is one guest thread. Its register file lives outside the Go
// heap where translated code reads and writes it directly. An Execution is
// not safe for concurrent use; run several for several guest threads.
type Execution struct {
	mm     *memory.Manager
	tr     *recompiler.Translator
	block  *state.Block
	budget int64
	svc    SupervisorCall

	exits map[uint32]uint64
}

// NewExecution creates a guest thread over mm whose code comes from tr.
func NewExecution(mm *memory.Manager, tr *recompiler.Translator, budget int64) (*Execution, error) {
	block, err := state.NewBlock()
	if err != nil {
		return nil, err
	}
	if budget <= 0 {
		budget = types.DefaultDispatchBudget
	}
	block.Ctx.MemBase = mm.ReservedSize()
	return &Execution{mm: mm, tr: tr, block: block, budget: budget, exits: make(map[uint32]uint64)}, nil
}

func (e *Execution) SetSupervisorCall(fn SupervisorCall) {
	e.svc = fn
}

// SetPC sets where the next Run starts.
func (e *Execution) SetPC(pc uint32, thumb bool) {
	e.block.Ctx.NextPC = types.NewGuestAddress(pc, thumb).Key()
}

// PC is the dispatch key Run continues at.
func (e *Execution) PC() types.GuestAddress {
	return types.GuestAddress(e.block.Ctx.NextPC)
}

func (e *Execution) Reg(r int) uint32 {
	if r == 15 {
		return e.PC().PC()
	}
	return e.block.Ctx.Regs[r&0xf]
}

func (e *Execution) SetReg(r int, v uint32) {
	if r == 15 {
		e.block.Ctx.NextPC = types.DecodeKey(v).Key()
		return
	}
	e.block.Ctx.Regs[r&0xf] = v
}

// Flags returns N, Z, C and V.
func (e *Execution) Flags() (n, z, c, v bool) {
	ctx := e.block.Ctx
	return ctx.N != 0, ctx.Z != 0, ctx.C != 0, ctx.V != 0
}

func (e *Execution) SetFlags(n, z, c, v bool) {
	ctx := e.block.Ctx
	ctx.N, ctx.Z, ctx.C, ctx.V = b2u(n), b2u(z), b2u(c), b2u(v)
}

func (e *Execution) Snapshot() State {
	return stateOf(e.block.Ctx)
}

func (e *Execution) Restore(s State) {
	s.apply(e.block.Ctx)
}

// ExitCounts reports how often each exit reason ended a native run.
func (e *Execution) ExitCounts() map[string]uint64 {
	out := make(map[string]uint64, len(e.exits))
	for code, n := range e.exits {
		out[exitName(code)] = n
	}
	return out
}

func exitName(code uint32) string {
	switch code {
	case state.ExitMiss:
		return "miss"
	case state.ExitBudget:
		return "budget"
	case state.ExitSVC:
		return "svc"
	case state.ExitUndefined:
		return "undefined"
	case exitFault:
		return "fault"
	}
	return "none"
}

const exitFault = ^uint32(0)

// Run executes guest code from the current PC until a supervisor call asks
// to stop, the guest faults without resolution, an undefined instruction is
// reached or ctx is done. Cancellation is noticed whenever the dispatch
// budget runs out.
func (e *Execution) Run(ctx context.Context) error {
	if !native.Supported() {
		return jiterrors.ErrUnsupportedPlatform
	}
	if e.mm.AddressSpaceSize() != types.DefaultAddressSpaceSize {
		return fmt.Errorf("%w: translated code needs a %#x byte address space, have %#x",
			jiterrors.ErrUnsupportedPlatform, types.DefaultAddressSpaceSize, e.mm.AddressSpaceSize())
	}
	table := e.tr.Table()
	c := e.block.Ctx
	var lastFault uint32
	retries := 0
	for {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("%w: %v", jiterrors.ErrExecutionCancelled, err)
		}
		c.Exit = state.ExitNone
		c.Budget = e.budget
		res, err := native.Run(table.EnterAddress(), e.block.Addr())
		if err != nil {
			return err
		}
		if res.Faulted {
			e.exits[exitFault]++
			if err := e.resolveFault(res, &lastFault, &retries); err != nil {
				return err
			}
			continue
		}
		retries = 0
		e.exits[c.Exit]++

		switch c.Exit {
		case state.ExitMiss:
			if _, err := e.tr.Translate(ctx, types.GuestAddress(c.NextPC)); err != nil {
				return fmt.Errorf("translate %s: %w", types.GuestAddress(c.NextPC), err)
			}
		case state.ExitBudget:
		case state.ExitSVC:
			if e.svc == nil {
				return fmt.Errorf("%w: svc #%d before %s", jiterrors.ErrSupervisorCall, c.SvcImm, e.PC())
			}
			stop, err := e.svc(e, c.SvcImm)
			if err != nil {
				return err
			}
			if stop {
				return nil
			}
		case state.ExitUndefined:
			return fmt.Errorf("%w: at %s", jiterrors.ErrUndefinedInstruction, types.GuestAddress(c.CurPC))
		default:
			return fmt.Errorf("translated code returned without an exit reason (%d) at %s", c.Exit, e.PC())
		}
	}
}

// resolveFault consults the memory manager about a native fault and sets up
// the re-execution of the faulting instruction.
func (e *Execution) resolveFault(res native.Result, lastFault *uint32, retries *int) error {
	c := e.block.Ctx
	at := types.GuestAddress(c.CurPC)
	v := e.mm.HandleFault(res.Addr, res.Write)
	log.Debug(log.CPUMonitoring, "guest fault", "pc", at, "fault", res, "verdict", v)
	if v != memory.VerdictRetry {
		return fmt.Errorf("%w: %s by %s (%s)", jiterrors.ErrInvalidAccess, res, at, v)
	}
	if c.CurPC == *lastFault {
		*retries++
	} else {
		*lastFault, *retries = c.CurPC, 1
	}
	if *retries > maxFaultRetries {
		return fmt.Errorf("%w: %s by %s keeps faulting", jiterrors.ErrInvalidAccess, res, at)
	}
	c.NextPC = c.CurPC
	return nil
}

// Close releases the register file.
func (e *Execution) Close() error {
	return e.block.Close()
}

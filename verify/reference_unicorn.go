//go:build unicorn

package verify

import (
	"fmt"

	uc "github.com/unicorn-engine/unicorn/bindings/go/unicorn"

	"github.com/colorfulnotion/armjit/cpu"
)

const pageSize = uint64(0x1000)

var armRegs = [15]int{
	uc.ARM_REG_R0, uc.ARM_REG_R1, uc.ARM_REG_R2, uc.ARM_REG_R3,
	uc.ARM_REG_R4, uc.ARM_REG_R5, uc.ARM_REG_R6, uc.ARM_REG_R7,
	uc.ARM_REG_R8, uc.ARM_REG_R9, uc.ARM_REG_R10, uc.ARM_REG_R11,
	uc.ARM_REG_R12, uc.ARM_REG_SP, uc.ARM_REG_LR,
}

// RunReference runs p on unicorn until the first supervisor call or maxInsts
// instructions.
func RunReference(p Program, maxInsts uint64) (cpu.State, error) {
	mu, err := uc.NewUnicorn(uc.ARCH_ARM, uc.MODE_ARM)
	if err != nil {
		return cpu.State{}, fmt.Errorf("unicorn: %w", err)
	}
	defer mu.Close()

	for _, r := range p.Regions {
		start := uint64(r.Addr) &^ (pageSize - 1)
		end := (uint64(r.Addr) + r.size() + pageSize - 1) &^ (pageSize - 1)
		if err := mu.MemMap(start, end-start); err != nil {
			return cpu.State{}, fmt.Errorf("unicorn map %#x: %w", start, err)
		}
		if err := mu.MemWrite(uint64(r.Addr), r.Data); err != nil {
			return cpu.State{}, fmt.Errorf("unicorn write %#x: %w", r.Addr, err)
		}
	}

	init := p.initial()
	for i, reg := range armRegs {
		if err := mu.RegWrite(reg, uint64(init.Regs[i])); err != nil {
			return cpu.State{}, err
		}
	}
	cpsr, err := mu.RegRead(uc.ARM_REG_CPSR)
	if err != nil {
		return cpu.State{}, err
	}
	cpsr = cpsr&0x0fffffff | uint64(init.CPSR()&0xf0000000)
	if err := mu.RegWrite(uc.ARM_REG_CPSR, cpsr); err != nil {
		return cpu.State{}, err
	}

	if _, err := mu.HookAdd(uc.HOOK_INTR, func(mu uc.Unicorn, intno uint32) {
		mu.Stop()
	}, 1, 0); err != nil {
		return cpu.State{}, err
	}

	begin := uint64(p.Entry)
	if p.Thumb {
		begin |= 1
	}
	if err := mu.StartWithOptions(begin, 0, &uc.UcOptions{Count: maxInsts}); err != nil {
		return cpu.State{}, fmt.Errorf("unicorn run: %w", err)
	}
	return readState(mu)
}

func readState(mu uc.Unicorn) (cpu.State, error) {
	var s cpu.State
	for i, reg := range armRegs {
		v, err := mu.RegRead(reg)
		if err != nil {
			return s, err
		}
		s.Regs[i] = uint32(v)
	}
	pc, err := mu.RegRead(uc.ARM_REG_PC)
	if err != nil {
		return s, err
	}
	cpsr, err := mu.RegRead(uc.ARM_REG_CPSR)
	if err != nil {
		return s, err
	}
	s.N = cpsr>>31&1 != 0
	s.Z = cpsr>>30&1 != 0
	s.C = cpsr>>29&1 != 0
	s.V = cpsr>>28&1 != 0
	s.Thumb = cpsr>>5&1 != 0
	s.PC = uint32(pc) &^ 1
	s.Regs[15] = s.PC
	return s, nil
}

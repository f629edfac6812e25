package cpu

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/colorfulnotion/armjit/jiterrors"
	"github.com/colorfulnotion/armjit/log"
	"github.com/colorfulnotion/armjit/memory"
	"github.com/colorfulnotion/armjit/recompiler"
	"github.com/colorfulnotion/armjit/types"
)

// Guest bundles the memory manager, the translated code and the translator
// of one guest address space. Executions created from it share all three.
type Guest struct {
	Config     types.Config
	Memory     *memory.Manager
	Table      *recompiler.AddressTable
	Translator *recompiler.Translator

	mu     sync.Mutex
	nextPA uint64
}

func NewGuest(cfg types.Config) (*Guest, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	mm, err := memory.NewManager(cfg.AddressSpaceSize, cfg.BackingSize)
	if err != nil {
		return nil, err
	}
	table, err := recompiler.NewAddressTable(cfg)
	if err != nil {
		mm.Close()
		return nil, err
	}
	g := &Guest{
		Config:     cfg,
		Memory:     mm,
		Table:      table,
		Translator: recompiler.NewTranslator(mm, table, cfg.DetectSelfModifying),
	}
	log.Info(log.CPUMonitoring, "guest created", "arch", cfg.Arch, "space", cfg.AddressSpaceSize, "backing", cfg.BackingSize)
	return g, nil
}

func pageSpan(addr uint32, size uint64) (start, end uint64) {
	start = uint64(addr) &^ (memory.PageSize - 1)
	end = (uint64(addr) + size + memory.PageSize - 1) &^ (memory.PageSize - 1)
	return start, end
}

// MapZero maps fresh backing memory over the pages covering
// [addr, addr+size).
func (g *Guest) MapZero(addr uint32, size uint64) error {
	start, end := pageSpan(addr, size)
	if end == start {
		end += memory.PageSize
	}
	g.mu.Lock()
	pa := g.nextPA
	if pa+(end-start) > g.Memory.BackingSize() {
		g.mu.Unlock()
		return fmt.Errorf("%w: backing exhausted mapping %#x bytes", jiterrors.ErrAllocationFailure, end-start)
	}
	g.nextPA += end - start
	g.mu.Unlock()
	return g.Memory.Map(g.Memory.ReservedSize()+start, pa, end-start, 0)
}

// Load maps the pages covering image at addr and copies it in.
func (g *Guest) Load(addr uint32, image []byte) error {
	if err := g.MapZero(addr, uint64(len(image))); err != nil {
		return err
	}
	return g.Memory.Write(g.Memory.VirtualAddress(addr), image)
}

// NewExecution creates a guest thread starting at pc.
func (g *Guest) NewExecution(pc uint32, thumb bool) (*Execution, error) {
	e, err := NewExecution(g.Memory, g.Translator, g.Config.DispatchBudget)
	if err != nil {
		return nil, err
	}
	e.SetPC(pc, thumb)
	return e, nil
}

// Warm pre-translates keys, typically from a stored profile.
func (g *Guest) Warm(ctx context.Context, keys []types.GuestAddress) error {
	return g.Translator.Warm(ctx, keys)
}

func (g *Guest) Close() error {
	g.Translator.Close()
	return errors.Join(g.Table.Close(), g.Memory.Close())
}

package verify

import (
	"context"
	"errors"
	"fmt"

	"github.com/colorfulnotion/armjit/cpu"
	"github.com/colorfulnotion/armjit/types"
)

// ErrNoReference is returned when the binary was built without a reference
// emulator.
var ErrNoReference = errors.New("verify: built without the unicorn reference emulator (build tag unicorn)")

// Region is one piece of guest memory. Size may exceed len(Data); the rest
// is zero.
type Region struct {
	Addr uint32
	Data []byte
	Size uint64
}

func (r Region) size() uint64 {
	if r.Size > uint64(len(r.Data)) {
		return r.Size
	}
	return uint64(len(r.Data))
}

// Program is a guest image plus the state it starts in. It runs until the
// first supervisor call.
type Program struct {
	Regions []Region
	Entry   uint32
	Thumb   bool
	Init    cpu.State
}

func (p Program) initial() cpu.State {
	s := p.Init
	s.PC = p.Entry
	s.Thumb = p.Thumb
	return s
}

// RunTranslated runs p on translated code in a fresh guest built from cfg.
func RunTranslated(ctx context.Context, cfg types.Config, p Program) (cpu.State, error) {
	g, err := cpu.NewGuest(cfg)
	if err != nil {
		return cpu.State{}, err
	}
	defer g.Close()
	for _, r := range p.Regions {
		if err := g.MapZero(r.Addr, r.size()); err != nil {
			return cpu.State{}, fmt.Errorf("map region %#x: %w", r.Addr, err)
		}
		if err := g.Memory.Write(g.Memory.VirtualAddress(r.Addr), r.Data); err != nil {
			return cpu.State{}, fmt.Errorf("load region %#x: %w", r.Addr, err)
		}
	}
	e, err := g.NewExecution(p.Entry, p.Thumb)
	if err != nil {
		return cpu.State{}, err
	}
	defer e.Close()
	e.Restore(p.initial())
	e.SetSupervisorCall(func(*cpu.Execution, uint32) (bool, error) { return true, nil })
	if err := e.Run(ctx); err != nil {
		return e.Snapshot(), err
	}
	return e.Snapshot(), nil
}

// Report is the outcome of Compare.
type Report struct {
	Reference  cpu.State
	Translated cpu.State
	Match      bool
	Diff       string
}

// Compare runs p on both engines. maxInsts bounds the reference run.
func Compare(ctx context.Context, cfg types.Config, p Program, maxInsts uint64) (Report, error) {
	ref, err := RunReference(p, maxInsts)
	if err != nil {
		return Report{}, err
	}
	got, err := RunTranslated(ctx, cfg, p)
	if err != nil {
		return Report{Reference: ref, Translated: got}, err
	}
	diff, modified, err := Diff(ref, got, false)
	if err != nil {
		return Report{}, err
	}
	return Report{Reference: ref, Translated: got, Match: !modified, Diff: diff}, nil
}

package cpu

import (
	"encoding/json"

	"github.com/colorfulnotion/armjit/recompiler/state"
	"github.com/colorfulnotion/armjit/types"
)

// State is a serializable copy of a guest register file.
type State struct {
	Regs  [16]uint32 `json:"regs"`
	N     bool       `json:"n"`
	Z     bool       `json:"z"`
	C     bool       `json:"c"`
	V     bool       `json:"v"`
	PC    uint32     `json:"pc"`
	Thumb bool       `json:"thumb"`
}

func stateOf(c *state.Context) State {
	key := types.GuestAddress(c.NextPC)
	s := State{
		Regs:  c.Regs,
		N:     c.N != 0,
		Z:     c.Z != 0,
		C:     c.C != 0,
		V:     c.V != 0,
		PC:    key.PC(),
		Thumb: key.IsThumb(),
	}
	s.Regs[15] = s.PC
	return s
}

func (s State) apply(c *state.Context) {
	c.Regs = s.Regs
	c.N, c.Z, c.C, c.V = b2u(s.N), b2u(s.Z), b2u(s.C), b2u(s.V)
	c.NextPC = types.NewGuestAddress(s.PC, s.Thumb).Key()
	c.Regs[15] = s.PC
}

func b2u(b bool) uint8 {
	if b {
		return 1
	}
	return 0
}

// CPSR packs the flags and the Thumb bit into a program status word.
func (s State) CPSR() uint32 {
	c := state.Context{N: b2u(s.N), Z: b2u(s.Z), C: b2u(s.C), V: b2u(s.V)}
	return c.CPSR(s.Thumb)
}

// String method returns the State as a formatted JSON string
func (s State) String() string {
	b, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return err.Error()
	}
	return string(b)
}

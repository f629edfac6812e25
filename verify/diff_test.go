package verify

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/colorfulnotion/armjit/cpu"
	"github.com/colorfulnotion/armjit/types"
)

func TestDiffEqualStates(t *testing.T) {
	s := cpu.State{PC: 0x1000}
	s.Regs[0] = 3
	out, modified, err := Diff(s, s, false)
	require.NoError(t, err)
	require.False(t, modified)
	require.Empty(t, out)
}

func TestDiffReportsRegister(t *testing.T) {
	want := cpu.State{PC: 0x100c, Z: true}
	got := want
	got.Regs[1] = 0xff
	got.Z = false

	out, modified, err := Diff(want, got, false)
	require.NoError(t, err)
	require.True(t, modified)
	require.Contains(t, out, "regs")
	require.Contains(t, out, "255")
	require.Contains(t, out, "\"z\"")
}

func TestProgramInitialState(t *testing.T) {
	p := Program{Entry: 0x2000, Thumb: true}
	p.Init.Regs[3] = 9
	s := p.initial()
	require.Equal(t, uint32(0x2000), s.PC)
	require.True(t, s.Thumb)
	require.Equal(t, uint32(9), s.Regs[3])
	require.Equal(t, uint64(16), Region{Data: make([]byte, 16)}.size())
	require.Equal(t, uint64(4096), Region{Data: make([]byte, 16), Size: 4096}.size())
}

func TestRunTranslatedRejectsBadConfig(t *testing.T) {
	cfg := types.DefaultConfig()
	cfg.BackingSize = 0
	_, err := RunTranslated(context.Background(), cfg, Program{})
	require.Error(t, err)
}

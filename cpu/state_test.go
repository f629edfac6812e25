package cpu

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/colorfulnotion/armjit/recompiler/state"
)

func TestStateFromContext(t *testing.T) {
	var c state.Context
	c.Regs[0] = 7
	c.Regs[15] = 0xdead
	c.N, c.C = 1, 1
	c.NextPC = 0x8001

	s := stateOf(&c)
	require.Equal(t, uint32(0x8000), s.PC)
	require.True(t, s.Thumb)
	require.Equal(t, uint32(0x8000), s.Regs[15])
	require.True(t, s.N)
	require.False(t, s.Z)
	require.Equal(t, uint32(0xa0000030), s.CPSR())

	var back state.Context
	s.apply(&back)
	require.Equal(t, uint32(0x8001), back.NextPC)
	require.Equal(t, uint8(1), back.C)
	require.Equal(t, uint32(7), back.Regs[0])

	var decoded map[string]any
	require.NoError(t, json.Unmarshal([]byte(s.String()), &decoded))
	require.Equal(t, true, decoded["thumb"])
	require.Equal(t, float64(0x8000), decoded["pc"])
}

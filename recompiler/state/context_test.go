package state

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestContextLayout(t *testing.T) {
	require.Equal(t, int32(0), OffsetRegs)
	require.Equal(t, int32(64), OffsetN)
	require.Equal(t, int32(66), OffsetC)
	require.Equal(t, int32(68), OffsetExit)
	require.Equal(t, int32(72), OffsetNextPC)
	require.Equal(t, int32(76), OffsetCurPC)
	require.Equal(t, int32(88), OffsetMemBase)
	require.Equal(t, int32(96), OffsetBudget)
	require.Equal(t, int32(104), OffsetScratch)
	require.Equal(t, int32(60), OffsetReg(15))
	require.Equal(t, 168, Size)
}

func TestCPSRRoundTrip(t *testing.T) {
	b, err := NewBlock()
	require.NoError(t, err)
	defer b.Close()

	b.Ctx.SetCPSR(0xa0000000)
	require.Equal(t, uint8(1), b.Ctx.N)
	require.Equal(t, uint8(0), b.Ctx.Z)
	require.Equal(t, uint8(1), b.Ctx.C)
	require.Equal(t, uint32(0xa0000030), b.Ctx.CPSR(true))
	require.NotZero(t, b.Addr())
}

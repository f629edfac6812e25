package native

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/colorfulnotion/armjit/jiterrors"
)

func TestExecutableMemoryAllocate(t *testing.T) {
	em, err := NewExecutableMemory(256)
	require.NoError(t, err)
	defer em.Free()

	a, err := em.Allocate([]byte{0xc3})
	require.NoError(t, err)
	b, err := em.Allocate([]byte{0x90, 0xc3})
	require.NoError(t, err)
	require.Equal(t, uintptr(codeAlign), b-a)
	require.Equal(t, []byte{0x90, 0xc3}, em.Bytes(b, 2))
	require.Equal(t, codeAlign+2, em.Used())

	start, end := em.Bounds()
	require.Equal(t, a, start)
	require.Equal(t, uintptr(256), end-start)

	_, err = em.Allocate(make([]byte, 200))
	require.ErrorIs(t, err, jiterrors.ErrCodeMemoryFull)

	require.NoError(t, em.Free())
	require.NoError(t, em.Free())
	_, err = em.Allocate([]byte{0xc3})
	require.ErrorIs(t, err, jiterrors.ErrClosed)
}

func TestResultString(t *testing.T) {
	require.Equal(t, "returned", Result{}.String())
	require.Equal(t, "fault write at 0x1000", Result{Faulted: true, Addr: 0x1000, Write: true}.String())
}

//go:build linux

package memory

import (
	"testing"
	"unsafe"

	"github.com/stretchr/testify/require"

	"github.com/colorfulnotion/armjit/jiterrors"
)

func TestBlockGuardPage(t *testing.T) {
	b, err := NewBlock(4*PageSize, PageSize)
	require.NoError(t, err)
	defer b.Close()

	require.Equal(t, uint64(4*PageSize), b.Size())
	require.Len(t, b.full, 4*PageSize+guardSize)
	require.Equal(t, b.base+uintptr(b.Size()), uintptr(unsafe.Pointer(&b.full[b.Size()])))

	// top page mapped read-write, then a 4-byte access straddling the end
	require.NoError(t, b.MapView(3*PageSize, 0, PageSize, PermReadWrite, false))
	b.mem[b.Size()-1] = 0xaa
	addr, faulted := tryAccess(func() {
		_ = *(*uint32)(unsafe.Pointer(&b.full[b.Size()-2]))
	})
	require.True(t, faulted)
	require.GreaterOrEqual(t, addr, b.base+uintptr(b.Size()))
	require.Less(t, addr, b.base+uintptr(b.Size())+guardSize)

	require.ErrorIs(t, b.MapView(b.Size(), 0, PageSize, PermReadWrite, false), jiterrors.ErrInvalidAddress)
}

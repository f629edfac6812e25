//go:build linux

package memory

import (
	"os"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/colorfulnotion/armjit/jiterrors"
)

const testSpace = 1 << 24

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	m, err := NewManager(testSpace, 1<<20)
	require.NoError(t, err)
	t.Cleanup(func() { m.Close() })
	return m
}

func TestAddressToOffset(t *testing.T) {
	m := newTestManager(t)
	base := m.ReservedSize()
	require.NotZero(t, base)
	require.Equal(t, uint64(testSpace), m.AddressSpaceSize())
	require.Equal(t, os.Getpagesize() == PageSize, m.Supports4KBPages())

	off, err := m.AddressToOffset(base + 0x1234)
	require.NoError(t, err)
	require.Equal(t, uint64(0x1234), off)

	_, err = m.AddressToOffset(base - 1)
	require.ErrorIs(t, err, jiterrors.ErrInvalidAddress)
	_, err = m.AddressToOffset(base + testSpace)
	require.ErrorIs(t, err, jiterrors.ErrInvalidAddress)

	require.Equal(t, base+0x8000, m.VirtualAddress(0x8000))
}

func TestMapUnmapRemap(t *testing.T) {
	m := newTestManager(t)
	va := m.VirtualAddress(0x10000)

	require.NoError(t, m.Map(va, 0, 2*PageSize, 0))
	require.True(t, m.IsMapped(va))
	require.True(t, m.IsMapped(va+PageSize))
	require.False(t, m.IsMapped(va+2*PageSize))

	require.NoError(t, m.WriteUint32(va+PageSize, 0xdeadbeef))
	v, err := m.ReadUint32(va + PageSize)
	require.NoError(t, err)
	require.Equal(t, uint32(0xdeadbeef), v)

	require.NoError(t, m.Unmap(va, 2*PageSize))
	require.False(t, m.IsMapped(va))
	require.Empty(t, m.Mappings())

	// a shared view shows what the previous one wrote to the backing
	other := m.VirtualAddress(0x40000)
	require.NoError(t, m.Map(other, 0, 2*PageSize, 0))
	v, err = m.ReadUint32(other + PageSize)
	require.NoError(t, err)
	require.Equal(t, uint32(0xdeadbeef), v)

	pa, ok := m.Translate(other + PageSize + 4)
	require.True(t, ok)
	require.Equal(t, uint64(PageSize+4), pa)
}

func TestPrivateMappingDoesNotReachBacking(t *testing.T) {
	m := newTestManager(t)
	shared := m.VirtualAddress(0x10000)
	private := m.VirtualAddress(0x20000)
	require.NoError(t, m.Map(shared, 0, PageSize, 0))
	require.NoError(t, m.Map(private, 0, PageSize, MapPrivate))

	require.NoError(t, m.WriteUint32(private, 7))
	v, err := m.ReadUint32(shared)
	require.NoError(t, err)
	require.Zero(t, v)
}

func TestMapValidation(t *testing.T) {
	m := newTestManager(t)
	va := m.VirtualAddress(0x10000)

	require.ErrorIs(t, m.Map(va+1, 0, PageSize, 0), jiterrors.ErrMisaligned)
	require.ErrorIs(t, m.Map(va, 0, 100, 0), jiterrors.ErrMisaligned)
	require.ErrorIs(t, m.Map(va, 0, 0, 0), jiterrors.ErrMisaligned)
	require.ErrorIs(t, m.Map(va, 1, PageSize, 0), jiterrors.ErrMisaligned)
	require.ErrorIs(t, m.Map(m.ReservedSize()-PageSize, 0, PageSize, 0), jiterrors.ErrInvalidAddress)
	require.ErrorIs(t, m.Map(va, 1<<20, PageSize, 0), jiterrors.ErrInvalidAddress)

	require.NoError(t, m.Map(va, 0, 2*PageSize, 0))
	require.ErrorIs(t, m.Map(va+PageSize, 0, 2*PageSize, 0), jiterrors.ErrAlreadyMapped)
	require.Len(t, m.Mappings(), 1)
}

func TestUnmapNotifiesBeforeRemoval(t *testing.T) {
	m := newTestManager(t)
	va := m.VirtualAddress(0x10000)
	require.NoError(t, m.Map(va, 0, 4*PageSize, 0))

	type call struct{ va, size uint64 }
	var calls []call
	var mappedDuring bool
	cancel := m.SubscribeUnmap(func(uva, usize uint64) {
		calls = append(calls, call{uva, usize})
		_, mappedDuring = m.pt.lookup(uva - m.ReservedSize())
	})

	require.NoError(t, m.Unmap(va+PageSize, PageSize))
	require.Equal(t, []call{{va + PageSize, PageSize}}, calls)
	require.True(t, mappedDuring)

	// split leaves the outer pieces in place
	mp := m.Mappings()
	require.Len(t, mp, 2)
	require.Equal(t, Mapping{VA: va, Size: PageSize}, mp[0])
	require.Equal(t, Mapping{VA: va + 2*PageSize, Size: 2 * PageSize, PA: 2 * PageSize}, mp[1])

	// nothing mapped there any more, still one notification
	require.NoError(t, m.Unmap(va+PageSize, PageSize))
	require.Len(t, calls, 2)

	cancel()
	require.NoError(t, m.Unmap(va, PageSize))
	require.Len(t, calls, 2)
}

func TestUnmapFailureKeepsBookkeeping(t *testing.T) {
	m := newTestManager(t)
	va := m.VirtualAddress(0x10000)
	require.NoError(t, m.Map(va, 0, 2*PageSize, 0))
	require.NoError(t, m.WriteUint32(va, 0x11223344))

	// shrink the view bounds so the host unmap is rejected
	mem := m.block.mem
	m.block.mem = mem[:0x10000]
	err := m.Unmap(va, 2*PageSize)
	m.block.mem = mem
	require.ErrorIs(t, err, jiterrors.ErrInvalidAddress)

	require.Equal(t, []Mapping{{VA: va, Size: 2 * PageSize}}, m.Mappings())
	require.True(t, m.IsMapped(va+PageSize))
	perm, ok := m.Tracking().Permission(va)
	require.True(t, ok)
	require.Equal(t, PermReadWrite, perm)
	v, err := m.ReadUint32(va)
	require.NoError(t, err)
	require.Equal(t, uint32(0x11223344), v)

	require.NoError(t, m.Unmap(va, 2*PageSize))
	require.False(t, m.IsMapped(va))
}

func TestReprotectAndSoftFault(t *testing.T) {
	m := newTestManager(t)
	va := m.VirtualAddress(0x10000)
	require.NoError(t, m.Map(va, 0, PageSize, 0))

	var invoked bool
	m.SetInvalidAccessHandler(func(uint64, AccessKind) Verdict {
		invoked = true
		return VerdictInvalid
	})

	require.NoError(t, m.Reprotect(va, PageSize, PermReadOnly))
	require.NoError(t, m.WriteUint32(va, 42))
	require.False(t, invoked)
	require.True(t, m.Tracking().IsDirty(va))

	v, err := m.ReadUint32(va)
	require.NoError(t, err)
	require.Equal(t, uint32(42), v)

	require.ErrorIs(t, m.Reprotect(va, 2*PageSize, PermReadOnly), jiterrors.ErrInvalidAddress)
}

func TestSoftFaultsAcrossManyPages(t *testing.T) {
	const pages = 3 * maxFaultRetries
	m := newTestManager(t)
	va := m.VirtualAddress(0x10000)
	require.NoError(t, m.Map(va, 0, pages*PageSize, 0))
	m.SetInvalidAccessHandler(func(uint64, AccessKind) Verdict {
		t.Error("tracking fault reached the invalid-access callback")
		return VerdictInvalid
	})

	data := make([]byte, pages*PageSize)
	for i := range data {
		data[i] = byte(i / PageSize)
	}
	require.NoError(t, m.Reprotect(va, pages*PageSize, PermReadOnly))
	require.NoError(t, m.Write(va, data))
	for p := uint64(0); p < pages; p++ {
		require.True(t, m.Tracking().IsDirty(va+p*PageSize), "page %d", p)
	}

	require.NoError(t, m.Reprotect(va, pages*PageSize, PermNone))
	got := make([]byte, len(data))
	require.NoError(t, m.Read(va, got))
	require.Equal(t, data, got)
}

func TestRetryWithoutFixIsBounded(t *testing.T) {
	m := newTestManager(t)
	va := m.VirtualAddress(0x10000)
	calls := 0
	m.SetInvalidAccessHandler(func(uint64, AccessKind) Verdict {
		calls++
		return VerdictRetry
	})
	_, err := m.ReadUint32(va)
	require.ErrorIs(t, err, jiterrors.ErrInvalidAccess)
	require.Equal(t, maxFaultRetries+1, calls)
}

func TestInvalidAccessCallback(t *testing.T) {
	m := newTestManager(t)
	va := m.VirtualAddress(0x10000)

	_, err := m.ReadUint32(va)
	require.ErrorIs(t, err, jiterrors.ErrInvalidAccess)

	var seen []uint64
	m.SetInvalidAccessHandler(func(fva uint64, kind AccessKind) Verdict {
		seen = append(seen, fva)
		if err := m.Map(pageFloor(fva), 0, PageSize, 0); err != nil {
			return VerdictInvalid
		}
		return VerdictRetry
	})
	require.NoError(t, m.WriteUint32(va+8, 5))
	require.Equal(t, []uint64{va + 8}, seen)

	// fetch never consults the callback
	buf := make([]byte, 4)
	require.ErrorIs(t, m.Fetch(0x30000, buf), jiterrors.ErrInvalidAccess)
	require.Len(t, seen, 1)
	require.NoError(t, m.Fetch(0x10008, buf))
	require.Equal(t, []byte{5, 0, 0, 0}, buf)
}

func TestGuestProtectDeniesWrite(t *testing.T) {
	m := newTestManager(t)
	va := m.VirtualAddress(0x10000)
	require.NoError(t, m.Map(va, 0, PageSize, 0))
	require.NoError(t, m.Tracking().Protect(va, PageSize, PermReadOnly))

	require.ErrorIs(t, m.WriteUint32(va, 1), jiterrors.ErrInvalidAccess)
	_, err := m.ReadUint32(va)
	require.NoError(t, err)

	perm, ok := m.Tracking().Permission(va)
	require.True(t, ok)
	require.Equal(t, PermReadOnly, perm)
}

func TestObserveReportsFirstWrite(t *testing.T) {
	m := newTestManager(t)
	va := m.VirtualAddress(0x10000)
	require.NoError(t, m.Map(va, 0, 2*PageSize, 0))

	var mu sync.Mutex
	var writes []uint64
	m.Tracking().SubscribeWrite(func(wva, size uint64) {
		mu.Lock()
		defer mu.Unlock()
		require.Equal(t, uint64(PageSize), size)
		writes = append(writes, wva)
	})
	require.NoError(t, m.Tracking().Observe(va, 2*PageSize))
	require.True(t, m.Tracking().IsObserved(va))

	// reads leave the page observed
	_, err := m.ReadUint32(va + PageSize)
	require.NoError(t, err)
	require.True(t, m.Tracking().IsObserved(va+PageSize))

	require.NoError(t, m.WriteUint32(va+PageSize+16, 1))
	require.NoError(t, m.WriteUint32(va+PageSize+20, 2))
	require.Equal(t, []uint64{va + PageSize}, writes)
	require.False(t, m.Tracking().IsObserved(va+PageSize))
	require.True(t, m.Tracking().IsObserved(va))

	require.Equal(t, []uint64{va + PageSize}, m.Tracking().PopDirty())
	require.Empty(t, m.Tracking().PopDirty())

	regions := m.Tracking().Regions()
	require.Len(t, regions, 1)
	require.Equal(t, RegionInfo{VA: va, Size: 2 * PageSize, Observed: 1}, regions[0])
}

func TestManagedAccessAcrossPages(t *testing.T) {
	m := newTestManager(t)
	va := m.VirtualAddress(0x10000)
	require.NoError(t, m.Map(va, 0, 2*PageSize, 0))

	src := make([]byte, 61)
	for i := range src {
		src[i] = byte(i + 1)
	}
	require.NoError(t, m.Write(va+PageSize-30, src))
	dst := make([]byte, len(src))
	require.NoError(t, m.Read(va+PageSize-30, dst))
	require.Equal(t, src, dst)

	h, err := m.ReadUint16(va + PageSize - 30)
	require.NoError(t, err)
	require.Equal(t, uint16(0x0201), h)
}

func TestCloseIsIdempotent(t *testing.T) {
	m, err := NewManager(testSpace, 1<<20)
	require.NoError(t, err)
	va := m.VirtualAddress(0x10000)
	require.NoError(t, m.Map(va, 0, PageSize, 0))

	var notified bool
	m.SubscribeUnmap(func(uint64, uint64) { notified = true })

	require.NoError(t, m.Close())
	require.NoError(t, m.Close())
	require.False(t, notified)

	require.ErrorIs(t, m.Map(va, 0, PageSize, 0), jiterrors.ErrClosed)
	require.ErrorIs(t, m.Unmap(va, PageSize), jiterrors.ErrClosed)
	_, err = m.ReadUint32(va)
	require.ErrorIs(t, err, jiterrors.ErrClosed)
	require.False(t, m.IsMapped(va))
}

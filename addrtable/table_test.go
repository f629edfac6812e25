package addrtable

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

func newTestTable(t *testing.T) *Table {
	t.Helper()
	tbl, err := New(DefaultLevels)
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, tbl.Close()) })
	return tbl
}

func TestValidateLevels(t *testing.T) {
	require.NoError(t, ValidateLevels(DefaultLevels))
	require.NoError(t, ValidateLevels([]Level{{16, 16}, {0, 16}}))
	require.Error(t, ValidateLevels(nil))
	require.Error(t, ValidateLevels([]Level{{22, 10}, {0, 12}}))
	require.Error(t, ValidateLevels([]Level{{22, 10}, {12, 10}}))
	_, err := New([]Level{{0, 32}})
	require.Error(t, err)
}

func TestInsertLookupRemove(t *testing.T) {
	tbl := newTestTable(t)
	require.Zero(t, tbl.Lookup(0x8000))

	got, ok, err := tbl.Insert(0x8000, 0x1000)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, uintptr(0x1000), got)
	require.Equal(t, uintptr(0x1000), tbl.Lookup(0x8000))

	// thumb key of the same address is distinct
	require.Zero(t, tbl.Lookup(0x8001))

	got, ok, err = tbl.Insert(0x8000, 0x2000)
	require.NoError(t, err)
	require.False(t, ok)
	require.Equal(t, uintptr(0x1000), got)

	require.False(t, tbl.RemoveIf(0x8000, 0x2000))
	require.Equal(t, uintptr(0x1000), tbl.Remove(0x8000))
	require.Zero(t, tbl.Lookup(0x8000))
	require.Zero(t, tbl.Remove(0x8000))
	require.Equal(t, 0, tbl.Len())

	_, _, err = tbl.Insert(1, 0)
	require.Error(t, err)
}

func TestWalkOrdered(t *testing.T) {
	tbl := newTestTable(t)
	keys := []uint32{0xffff_fffe, 0x10, 0x0040_0000, 0x8001}
	for i, k := range keys {
		_, _, err := tbl.Insert(k, uintptr(i+1))
		require.NoError(t, err)
	}
	var seen []uint32
	tbl.Walk(func(k uint32, _ uintptr) bool {
		seen = append(seen, k)
		return true
	})
	require.Equal(t, []uint32{0x10, 0x8001, 0x0040_0000, 0xffff_fffe}, seen)

	n := 0
	tbl.Walk(func(uint32, uintptr) bool {
		n++
		return false
	})
	require.Equal(t, 1, n)
	require.Equal(t, 4, tbl.Stats().Entries)
}

func TestConcurrentInsertFirstWins(t *testing.T) {
	tbl := newTestTable(t)
	const workers = 8
	winners := make([]uintptr, workers)
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for k := uint32(0); k < 512; k++ {
				got, _, err := tbl.Insert(k<<12, uintptr(w+1))
				if err != nil {
					t.Error(err)
					return
				}
				if k == 511 {
					winners[w] = got
				}
			}
		}(w)
	}
	wg.Wait()
	require.Equal(t, 512, tbl.Len())
	for _, got := range winners {
		require.Equal(t, winners[0], got)
		require.Equal(t, got, tbl.Lookup(511<<12))
	}
}

func TestClosedTable(t *testing.T) {
	tbl, err := New(DefaultLevels)
	require.NoError(t, err)
	_, _, err = tbl.Insert(4, 8)
	require.NoError(t, err)
	require.NoError(t, tbl.Close())
	require.NoError(t, tbl.Close())
	require.Zero(t, tbl.Lookup(4))
	_, _, err = tbl.Insert(4, 8)
	require.Error(t, err)
}

//go:build linux

package recompiler

import (
	"context"
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/colorfulnotion/armjit/memory"
	"github.com/colorfulnotion/armjit/types"
)

func newTestGuest(t *testing.T, detectSMC bool) (*memory.Manager, *Translator) {
	t.Helper()
	mm, err := memory.NewManager(1<<24, 1<<20)
	require.NoError(t, err)
	t.Cleanup(func() { mm.Close() })
	table := newTestTable(t, 0)
	tr := NewTranslator(mm, table, detectSMC)
	t.Cleanup(tr.Close)

	require.NoError(t, mm.Map(mm.VirtualAddress(0x10000), 0, 2*memory.PageSize, 0))
	code := make([]byte, 12)
	binary.LittleEndian.PutUint32(code[0:], movR0One)
	binary.LittleEndian.PutUint32(code[4:], addR0Two)
	binary.LittleEndian.PutUint32(code[8:], bxLR)
	require.NoError(t, mm.Write(mm.VirtualAddress(0x10000), code))
	return mm, tr
}

func TestTranslateCachesUnits(t *testing.T) {
	_, tr := newTestGuest(t, false)
	ctx := context.Background()

	u, err := tr.Translate(ctx, 0x10000)
	require.NoError(t, err)
	again, err := tr.Translate(ctx, 0x10000)
	require.NoError(t, err)
	require.Same(t, u, again)

	st := tr.Stats()
	require.Equal(t, uint64(2), st.Lookups)
	require.Equal(t, uint64(1), st.Hits)
	require.Equal(t, uint64(1), st.Compiles)
	require.Equal(t, uint64(3), st.GuestInsts)

	profile := tr.Profile()
	require.Len(t, profile, 1)
	require.Equal(t, types.GuestAddress(0x10000), profile[0].Key)
	require.Equal(t, uint32(3), profile[0].Instructions)
	require.Equal(t, u.GuestHash, profile[0].GuestHash)
}

func TestUnmapInvalidatesUnits(t *testing.T) {
	mm, tr := newTestGuest(t, false)
	_, err := tr.Translate(context.Background(), 0x10000)
	require.NoError(t, err)

	require.NoError(t, mm.Unmap(mm.VirtualAddress(0x11000), memory.PageSize))
	require.NotNil(t, tr.Table().Lookup(0x10000))

	require.NoError(t, mm.Unmap(mm.VirtualAddress(0x10000), memory.PageSize))
	require.Nil(t, tr.Table().Lookup(0x10000))
	require.Equal(t, uint64(1), tr.Stats().Invalidations)

	_, err = tr.Translate(context.Background(), 0x10000)
	require.Error(t, err)
}

func TestCodeWriteInvalidatesUnits(t *testing.T) {
	mm, tr := newTestGuest(t, true)
	_, err := tr.Translate(context.Background(), 0x10000)
	require.NoError(t, err)
	require.True(t, mm.Tracking().IsObserved(mm.VirtualAddress(0x10000)))

	require.NoError(t, mm.WriteUint32(mm.VirtualAddress(0x10004), addR0Two|3))
	require.Nil(t, tr.Table().Lookup(0x10000))

	u, err := tr.Translate(context.Background(), 0x10000)
	require.NoError(t, err)
	require.Equal(t, uint32(addR0Two|3), u.Instructions[1].Raw)
}

func TestWarm(t *testing.T) {
	_, tr := newTestGuest(t, false)
	keys := []types.GuestAddress{0x10000, 0x10004, 0x10008, 0x40000}
	require.NoError(t, tr.Warm(context.Background(), keys))
	require.Equal(t, 3, tr.Table().Len())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.ErrorIs(t, tr.Warm(ctx, []types.GuestAddress{0x10000}), context.Canceled)
}

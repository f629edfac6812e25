package recompiler

import (
	"encoding/binary"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/colorfulnotion/armjit/jiterrors"
	"github.com/colorfulnotion/armjit/types"
)

type codeBuf struct {
	base uint32
	code []byte
}

func (c codeBuf) Fetch(addr uint32, dst []byte) error {
	if addr < c.base || int(addr-c.base)+len(dst) > len(c.code) {
		return jiterrors.ErrInvalidAccess
	}
	copy(dst, c.code[addr-c.base:])
	return nil
}

func a32(base uint32, words ...uint32) codeBuf {
	b := make([]byte, 4*len(words))
	for i, w := range words {
		binary.LittleEndian.PutUint32(b[4*i:], w)
	}
	return codeBuf{base: base, code: b}
}

func t16(base uint32, halves ...uint16) codeBuf {
	b := make([]byte, 2*len(halves))
	for i, h := range halves {
		binary.LittleEndian.PutUint16(b[2*i:], h)
	}
	return codeBuf{base: base, code: b}
}

const (
	movR0One   = 0xe3a00001 // mov r0, #1
	addR0Two   = 0xe2800002 // add r0, r0, #2
	bxLR       = 0xe12fff1e // bx lr
	movR0R0    = 0xe1a00000 // mov r0, r0
	branchSelf = 0xeafffffe // b .
)

func newTestTable(t *testing.T, maxBlock int) *AddressTable {
	t.Helper()
	cfg := types.DefaultConfig()
	cfg.Arch = types.ArchAmd64
	cfg.CodeMemorySize = 1 << 20
	cfg.MaxBlockInstructions = maxBlock
	table, err := NewAddressTable(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { table.Close() })
	return table
}

func compileAt(t *testing.T, table *AddressTable, code codeBuf, addr uint32, thumb bool) *TranslatedUnit {
	t.Helper()
	u, err := Compile(types.ArchAmd64, code, types.NewGuestAddress(addr, thumb), table, table.DispatchAddress(), thumb)
	require.NoError(t, err)
	return u
}

func TestUnsupportedTargetInstallsNothing(t *testing.T) {
	table := newTestTable(t, 0)
	code := a32(0x1000, movR0One, bxLR)

	_, err := Compile(types.ArchArm64, code, 0x1000, table, table.DispatchAddress(), false)
	require.ErrorIs(t, err, jiterrors.ErrUnsupportedTarget)
	require.Zero(t, table.Len())
	require.Nil(t, table.Lookup(0x1000))
	used, _ := table.CodeUsage()
	require.Equal(t, len(table.stubs.code), used)

	cfg := types.DefaultConfig()
	cfg.Arch = types.ArchArm64
	_, err = NewAddressTable(cfg)
	require.ErrorIs(t, err, jiterrors.ErrUnsupportedTarget)
	require.False(t, Supported(types.ArchArm64))
	require.True(t, Supported(types.ArchAmd64))
}

func TestCompileInstallsUnit(t *testing.T) {
	table := newTestTable(t, 0)
	u := compileAt(t, table, a32(0x1000, movR0One, addR0Two, bxLR, movR0R0), 0x1000, false)

	require.Len(t, u.Instructions, 3)
	require.Equal(t, uint32(0x1000), u.Start)
	require.Equal(t, uint32(0x100c), u.End)
	require.False(t, u.Thumb)
	require.Equal(t, types.ArchAmd64, u.Arch)
	require.NotZero(t, u.Entry)
	require.Same(t, u, table.Lookup(0x1000))
	require.Equal(t, 1, table.Len())

	for _, line := range Disassemble(u.Code, uint64(u.Entry)) {
		require.NotContains(t, line, ".byte")
	}
	require.True(t, strings.Contains(DisassembleUnit(u), "bx lr"))
}

func TestCompileStopsAtLimit(t *testing.T) {
	table := newTestTable(t, 2)
	u := compileAt(t, table, a32(0x2000, movR0R0, movR0R0, movR0R0, branchSelf), 0x2000, false)
	require.Len(t, u.Instructions, 2)
	require.Equal(t, uint32(0x2008), u.End)
}

func TestCompileFetchFailure(t *testing.T) {
	table := newTestTable(t, 0)
	code := a32(0x1000, movR0One, addR0Two)

	_, err := Compile(types.ArchAmd64, code, 0x8000, table, table.DispatchAddress(), false)
	require.ErrorIs(t, err, jiterrors.ErrInvalidAccess)
	require.Zero(t, table.Len())

	// the block ends before the first unreadable instruction
	u := compileAt(t, table, code, 0x1000, false)
	require.Len(t, u.Instructions, 2)
	require.Equal(t, uint32(0x1008), u.End)
}

func TestThumbBlock(t *testing.T) {
	table := newTestTable(t, 0)
	u := compileAt(t, table, t16(0x3000, 0x2001, 0x4770), 0x3000, true)
	require.True(t, u.Thumb)
	require.True(t, u.Key.IsThumb())
	require.Equal(t, uint32(0x3001), u.Key.Key())
	require.Len(t, u.Instructions, 2)
	require.Equal(t, uint32(0x3004), u.End)

	require.Same(t, u, table.Lookup(types.NewGuestAddress(0x3000, true)))
	require.Nil(t, table.Lookup(types.NewGuestAddress(0x3000, false)))
}

func TestConcurrentCompileOneWinner(t *testing.T) {
	table := newTestTable(t, 0)
	code := a32(0x1000, movR0One, addR0Two, bxLR)

	const n = 8
	units := make([]*TranslatedUnit, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			u, err := Compile(types.ArchAmd64, code, 0x1000, table, table.DispatchAddress(), false)
			if err == nil {
				units[i] = u
			}
		}(i)
	}
	wg.Wait()

	installed := table.Lookup(0x1000)
	require.NotNil(t, installed)
	require.Equal(t, 1, table.Len())
	found := false
	for _, u := range units {
		require.NotNil(t, u)
		require.NotZero(t, u.Entry)
		require.Len(t, u.Instructions, 3)
		require.Equal(t, installed.Code, u.Code)
		if u == installed {
			found = true
		}
	}
	require.True(t, found)
	require.Len(t, table.Units(), 1)
}

func TestInvalidateRange(t *testing.T) {
	table := newTestTable(t, 0)
	compileAt(t, table, a32(0x1000, movR0One, bxLR), 0x1000, false)
	second := compileAt(t, table, a32(0x2000, addR0Two, bxLR), 0x2000, false)

	require.Zero(t, table.InvalidateRange(0x1008, 0x2000))
	require.Equal(t, 1, table.InvalidateRange(0x1004, 0x1005))
	require.Nil(t, table.Lookup(0x1000))
	require.Equal(t, []*TranslatedUnit{second}, table.Units())
	require.Equal(t, 1, table.Len())

	// a fresh compile reinstalls the key
	u := compileAt(t, table, a32(0x1000, movR0One, bxLR), 0x1000, false)
	require.Same(t, u, table.Lookup(0x1000))
}

func TestStubAddresses(t *testing.T) {
	table := newTestTable(t, 0)
	code, enter, leave, dispatch := table.StubCode()
	require.NotEmpty(t, code)
	require.Equal(t, 0, enter)
	require.Greater(t, dispatch, leave)
	require.Equal(t, uint64(table.EnterAddress())+uint64(dispatch), table.DispatchAddress())
}

//go:build unicorn && linux && amd64 && cgo

package verify

import (
	"context"
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/colorfulnotion/armjit/types"
)

func program(words ...uint32) Program {
	code := make([]byte, 4*len(words))
	for i, w := range words {
		binary.LittleEndian.PutUint32(code[4*i:], w)
	}
	return Program{
		Regions: []Region{{Addr: 0x10000, Data: code}, {Addr: 0x20000, Size: 0x1000}},
		Entry:   0x10000,
	}
}

func TestCompareAgainstReference(t *testing.T) {
	cfg := types.DefaultConfig()
	cfg.BackingSize = 1 << 20
	cfg.CodeMemorySize = 1 << 20

	p := program(
		0xe3a0000a, // mov r0, #10
		0xe3a01000, // mov r1, #0
		0xe0811000, // add r1, r1, r0
		0xe2500001, // subs r0, r0, #1
		0x1afffffc, // bne .-8
		0xe5821000, // str r1, [r2]
		0xe5923000, // ldr r3, [r2]
		0xe1a04183, // lsl r4, r3, #3
		0xef000000, // svc #0
	)
	p.Init.Regs[2] = 0x20000
	p.Init.Regs[13] = 0x20800

	report, err := Compare(context.Background(), cfg, p, 1000)
	require.NoError(t, err)
	require.True(t, report.Match, report.Diff)
	require.Equal(t, uint32(55), report.Translated.Regs[1])
	require.Equal(t, uint32(55*8), report.Translated.Regs[4])
}

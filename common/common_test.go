package common

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestComputeHash(t *testing.T) {
	a := ComputeHash([]byte{0x00, 0x00, 0xa0, 0xe3})
	b := ComputeHash([]byte{0x00, 0x00, 0xa0, 0xe3})
	c := ComputeHash([]byte{0x01, 0x00, 0xa0, 0xe3})
	require.Equal(t, a, b)
	require.NotEqual(t, a, c)
	require.Len(t, a.Hex(), 66)
}

func TestShortHash(t *testing.T) {
	require.Equal(t, "0123abcd", shortHash("0123abcdef"))
	require.Equal(t, "abc", shortHash("abc"))
	require.NotEmpty(t, GetCommitHash())
}

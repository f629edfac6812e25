package types

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestGuestAddressTagging(t *testing.T) {
	a := NewGuestAddress(0x8003, true)
	require.True(t, a.IsThumb())
	require.Equal(t, uint32(0x8002), a.PC())
	require.Equal(t, uint32(0x8003), a.Key())

	b := NewGuestAddress(0x8003, false)
	require.False(t, b.IsThumb())
	require.Equal(t, uint32(0x8000), b.PC())

	require.Equal(t, a, DecodeKey(0x8003))
	require.Equal(t, GuestAddress(0x8000), DecodeKey(0x8000))
}

func TestConfigJSON(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Arch = ArchArm64
	cfg.LogModules = "jit_mod"

	path := filepath.Join(t.TempDir(), "cfg.json")
	data, err := json.Marshal(&cfg)
	require.NoError(t, err)
	require.Contains(t, string(data), `"arch":"arm64"`)
	require.NoError(t, os.WriteFile(path, data, 0o644))

	loaded, err := LoadConfig(path)
	require.NoError(t, err)
	require.Equal(t, cfg, loaded)

	loaded.MaxBlockInstructions = 0
	require.Error(t, loaded.Validate())
}

func TestParseArchitecture(t *testing.T) {
	a, err := ParseArchitecture("x86_64")
	require.NoError(t, err)
	require.Equal(t, ArchAmd64, a)
	_, err = ParseArchitecture("mips")
	require.Error(t, err)
}

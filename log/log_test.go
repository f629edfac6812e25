package log

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	lvl, err := ParseLevel("trace")
	require.NoError(t, err)
	require.Equal(t, LevelTrace, lvl)

	lvl, err = ParseLevel("WARNING")
	require.NoError(t, err)
	require.Equal(t, LevelWarn, lvl)

	_, err = ParseLevel("loud")
	require.Error(t, err)
}

func TestModuleFiltering(t *testing.T) {
	var buf bytes.Buffer
	prev := Root()
	defer SetDefault(prev)
	require.NoError(t, InitWriterLogger(&buf, "trace"))

	DisableModule(JitMonitoring)
	Debug(JitMonitoring, "hidden block", "pc", 0x1000)
	require.Empty(t, buf.String())

	EnableModules("jit_mod, cpu_mod")
	defer DisableModule(JitMonitoring)
	defer DisableModule(CPUMonitoring)
	Debug(JitMonitoring, "compiled block", "pc", 0x1000)
	require.True(t, strings.Contains(buf.String(), "compiled block"))
	require.True(t, IsModuleEnabled(CPUMonitoring))

	buf.Reset()
	Info(MemoryMonitoring, "mapped")
	require.Contains(t, buf.String(), "mapped")
}
